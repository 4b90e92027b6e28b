package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/workmesh/workledger/internal/app/domain/account"
	"github.com/workmesh/workledger/internal/app/domain/payment"
	"github.com/workmesh/workledger/internal/app/domain/project"
	"github.com/workmesh/workledger/internal/app/storage"
	"github.com/workmesh/workledger/internal/errors"
)

// DefaultHistoryLimit bounds the per-account history view.
const DefaultHistoryLimit = 100

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development. A single mutex makes every multi-record write trivially
// atomic.
type Store struct {
	mu              sync.RWMutex
	historyLimit    int
	accounts        map[string]account.Account
	accountsByOwner map[string]string
	entries         map[string][]account.Entry
	transactions    map[string]payment.Transaction
	projects        map[string]project.Project
}

var _ storage.AccountStore = (*Store)(nil)
var _ storage.TransactionStore = (*Store)(nil)
var _ storage.EscrowStore = (*Store)(nil)
var _ storage.ProjectStore = (*Store)(nil)

// Option adjusts store construction.
type Option func(*Store)

// WithHistoryLimit overrides the bounded history size.
func WithHistoryLimit(limit int) Option {
	return func(s *Store) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		historyLimit:    DefaultHistoryLimit,
		accounts:        make(map[string]account.Account),
		accountsByOwner: make(map[string]string),
		entries:         make(map[string][]account.Entry),
		transactions:    make(map[string]payment.Transaction),
		projects:        make(map[string]project.Project),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccountStore implementation -------------------------------------------------

func (s *Store) CreateAccount(_ context.Context, acct account.Account) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(acct.OwnerID) == "" {
		return account.Account{}, errors.Validation("owner_id is required")
	}
	if _, exists := s.accountsByOwner[acct.OwnerID]; exists {
		return account.Account{}, errors.Conflict("account for owner %s already exists", acct.OwnerID)
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	if acct.Currency == "" {
		acct.Currency = account.DefaultCurrency
	}

	now := time.Now().UTC()
	acct.Version = 1
	acct.CreatedAt = now
	acct.UpdatedAt = now

	s.accounts[acct.ID] = acct
	s.accountsByOwner[acct.OwnerID] = acct.ID
	return acct, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return account.Account{}, errors.NotFound("account %s", id)
	}
	return acct, nil
}

func (s *Store) GetAccountByOwner(_ context.Context, ownerID string) (account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.accountsByOwner[ownerID]
	if !ok {
		return account.Account{}, errors.NotFound("account for owner %s", ownerID)
	}
	return s.accounts[id], nil
}

func (s *Store) ListAccounts(_ context.Context) ([]account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]account.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, acct)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) UpdateAccount(_ context.Context, acct account.Account, entries ...account.Entry) (account.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateAccountLocked(acct, entries...)
}

func (s *Store) updateAccountLocked(acct account.Account, entries ...account.Entry) (account.Account, error) {
	original, ok := s.accounts[acct.ID]
	if !ok {
		return account.Account{}, errors.NotFound("account %s", acct.ID)
	}
	if original.Version != acct.Version {
		return account.Account{}, errors.Conflict("account %s version %d, expected %d", acct.ID, original.Version, acct.Version)
	}

	acct.Version++
	acct.CreatedAt = original.CreatedAt
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[acct.ID] = acct

	for _, entry := range entries {
		s.appendEntryLocked(entry)
	}
	return acct, nil
}

func (s *Store) appendEntryLocked(entry account.Entry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	history := append(s.entries[entry.AccountID], entry)
	if len(history) > s.historyLimit {
		history = history[len(history)-s.historyLimit:]
	}
	s.entries[entry.AccountID] = history
}

func (s *Store) ListEntries(_ context.Context, accountID string) ([]account.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.entries[accountID]
	result := make([]account.Entry, len(history))
	for i, entry := range history {
		result[len(history)-1-i] = entry
	}
	return result, nil
}

// TransactionStore implementation ---------------------------------------------

func (s *Store) CreateTransaction(_ context.Context, tx payment.Transaction) (payment.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createTransactionLocked(tx)
}

func (s *Store) createTransactionLocked(tx payment.Transaction) (payment.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if _, exists := s.transactions[tx.ID]; exists {
		return payment.Transaction{}, errors.Conflict("transaction %s already exists", tx.ID)
	}

	now := time.Now().UTC()
	tx.Version = 1
	tx.CreatedAt = now
	tx.UpdatedAt = now
	tx.Events = cloneEvents(tx.Events)

	s.transactions[tx.ID] = tx
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, tx payment.Transaction) (payment.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTransactionLocked(tx)
}

func (s *Store) updateTransactionLocked(tx payment.Transaction) (payment.Transaction, error) {
	original, ok := s.transactions[tx.ID]
	if !ok {
		return payment.Transaction{}, errors.NotFound("transaction %s", tx.ID)
	}
	if original.Version != tx.Version {
		return payment.Transaction{}, errors.Conflict("transaction %s version %d, expected %d", tx.ID, original.Version, tx.Version)
	}

	tx.Version++
	tx.CreatedAt = original.CreatedAt
	tx.UpdatedAt = time.Now().UTC()
	tx.Events = cloneEvents(tx.Events)

	s.transactions[tx.ID] = tx
	return tx, nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (payment.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return payment.Transaction{}, errors.NotFound("transaction %s", id)
	}
	tx.Events = cloneEvents(tx.Events)
	return tx, nil
}

func (s *Store) ListTransactionsByAccount(_ context.Context, accountID string) ([]payment.Transaction, error) {
	return s.listTransactions(func(tx payment.Transaction) bool {
		return tx.PayerID == accountID || tx.PayeeID == accountID
	})
}

func (s *Store) ListTransactionsByProject(_ context.Context, projectID string) ([]payment.Transaction, error) {
	return s.listTransactions(func(tx payment.Transaction) bool {
		return tx.ProjectID == projectID
	})
}

func (s *Store) ListRetryableTransactions(_ context.Context) ([]payment.Transaction, error) {
	return s.listTransactions(func(tx payment.Transaction) bool {
		return tx.Status == payment.StatusFailed && tx.Retryable
	})
}

func (s *Store) listTransactions(match func(payment.Transaction) bool) ([]payment.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []payment.Transaction
	for _, tx := range s.transactions {
		if match(tx) {
			tx.Events = cloneEvents(tx.Events)
			result = append(result, tx)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

// EscrowStore implementation --------------------------------------------------

func (s *Store) ApplyHold(_ context.Context, payer account.Account, tx payment.Transaction, entry account.Entry) (payment.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.updateAccountLocked(payer, entry); err != nil {
		return payment.Transaction{}, err
	}
	return s.createTransactionLocked(tx)
}

func (s *Store) Settle(_ context.Context, accounts []account.Account, tx payment.Transaction, entries []account.Entry) (payment.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Version-check every account before writing anything so a conflict on
	// the second leg cannot leave the first applied.
	for _, acct := range accounts {
		original, ok := s.accounts[acct.ID]
		if !ok {
			return payment.Transaction{}, errors.NotFound("account %s", acct.ID)
		}
		if original.Version != acct.Version {
			return payment.Transaction{}, errors.Conflict("account %s version %d, expected %d", acct.ID, original.Version, acct.Version)
		}
	}
	if original, ok := s.transactions[tx.ID]; !ok {
		return payment.Transaction{}, errors.NotFound("transaction %s", tx.ID)
	} else if original.Version != tx.Version {
		return payment.Transaction{}, errors.Conflict("transaction %s version %d, expected %d", tx.ID, original.Version, tx.Version)
	}

	for _, acct := range accounts {
		if _, err := s.updateAccountLocked(acct); err != nil {
			return payment.Transaction{}, err
		}
	}
	for _, entry := range entries {
		s.appendEntryLocked(entry)
	}
	return s.updateTransactionLocked(tx)
}

// ProjectStore implementation -------------------------------------------------

func (s *Store) CreateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if _, exists := s.projects[p.ID]; exists {
		return project.Project{}, errors.Conflict("project %s already exists", p.ID)
	}

	now := time.Now().UTC()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Milestones = cloneMilestones(p.Milestones)
	p.Bids = cloneBids(p.Bids)

	s.projects[p.ID] = p
	return p, nil
}

func (s *Store) GetProject(_ context.Context, id string) (project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return project.Project{}, errors.NotFound("project %s", id)
	}
	return cloneProject(p), nil
}

func (s *Store) ListProjectsByOwner(_ context.Context, ownerID string) ([]project.Project, error) {
	return s.listProjects(func(p project.Project) bool { return p.OwnerID == ownerID })
}

func (s *Store) ListActiveProjects(_ context.Context) ([]project.Project, error) {
	return s.listProjects(func(p project.Project) bool {
		return p.Status == project.StatusOpen || p.Status == project.StatusInProgress
	})
}

func (s *Store) listProjects(match func(project.Project) bool) ([]project.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []project.Project
	for _, p := range s.projects {
		if match(p) {
			result = append(result, cloneProject(p))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) UpdateProject(_ context.Context, p project.Project) (project.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.projects[p.ID]
	if !ok {
		return project.Project{}, errors.NotFound("project %s", p.ID)
	}
	if original.Version != p.Version {
		return project.Project{}, errors.Conflict("project %s version %d, expected %d", p.ID, original.Version, p.Version)
	}

	p.Version++
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.Milestones = cloneMilestones(p.Milestones)
	p.Bids = cloneBids(p.Bids)

	s.projects[p.ID] = p
	return cloneProject(p), nil
}

func (s *Store) DeleteProject(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.projects[id]; !ok {
		return errors.NotFound("project %s", id)
	}
	delete(s.projects, id)
	return nil
}

// helpers ---------------------------------------------------------------------

func cloneEvents(events []payment.Event) []payment.Event {
	if events == nil {
		return nil
	}
	out := make([]payment.Event, len(events))
	copy(out, events)
	return out
}

func cloneMilestones(milestones []project.Milestone) []project.Milestone {
	if milestones == nil {
		return nil
	}
	out := make([]project.Milestone, len(milestones))
	copy(out, milestones)
	return out
}

func cloneBids(bids []project.Bid) []project.Bid {
	if bids == nil {
		return nil
	}
	out := make([]project.Bid, len(bids))
	copy(out, bids)
	return out
}

func cloneProject(p project.Project) project.Project {
	p.Milestones = cloneMilestones(p.Milestones)
	p.Bids = cloneBids(p.Bids)
	return p
}
