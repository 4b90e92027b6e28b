// Package postgres implements the storage interfaces backed by PostgreSQL.
// Every update is a compare-and-swap on the row's version column; multi-record
// escrow writes run inside a single SQL transaction so they apply completely
// or not at all.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/workmesh/workledger/internal/app/domain/account"
	"github.com/workmesh/workledger/internal/app/domain/payment"
	"github.com/workmesh/workledger/internal/app/domain/project"
	"github.com/workmesh/workledger/internal/app/storage"
	apperr "github.com/workmesh/workledger/internal/errors"
)

// DefaultHistoryLimit bounds the per-account history view.
const DefaultHistoryLimit = 100

// Store implements the storage interfaces over a sqlx database handle.
type Store struct {
	db           *sqlx.DB
	historyLimit int
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

// New creates a Store using the provided database handle.
func New(db *sqlx.DB, opts ...Option) *Store {
	s := &Store{db: db, historyLimit: DefaultHistoryLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// row types ------------------------------------------------------------------

type accountRow struct {
	ID          string    `db:"id"`
	OwnerID     string    `db:"owner_id"`
	Balance     int64     `db:"balance"`
	HeldBalance int64     `db:"held_balance"`
	TotalEarned int64     `db:"total_earned"`
	TotalSpent  int64     `db:"total_spent"`
	Currency    string    `db:"currency"`
	Version     int64     `db:"version"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r accountRow) toDomain() account.Account {
	return account.Account(r)
}

type entryRow struct {
	ID            string    `db:"id"`
	AccountID     string    `db:"account_id"`
	EntryType     string    `db:"entry_type"`
	Amount        int64     `db:"amount"`
	BalanceAfter  int64     `db:"balance_after"`
	HeldAfter     int64     `db:"held_after"`
	Reason        string    `db:"reason"`
	ProjectID     string    `db:"project_id"`
	TransactionID string    `db:"transaction_id"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r entryRow) toDomain() account.Entry {
	return account.Entry{
		ID:            r.ID,
		AccountID:     r.AccountID,
		Type:          account.EntryType(r.EntryType),
		Amount:        r.Amount,
		BalanceAfter:  r.BalanceAfter,
		HeldAfter:     r.HeldAfter,
		Reason:        r.Reason,
		ProjectID:     r.ProjectID,
		TransactionID: r.TransactionID,
		CreatedAt:     r.CreatedAt,
	}
}

type transactionRow struct {
	ID            string    `db:"id"`
	PayerID       string    `db:"payer_id"`
	PayeeID       string    `db:"payee_id"`
	ProjectID     string    `db:"project_id"`
	MilestoneID   string    `db:"milestone_id"`
	Amount        int64     `db:"amount"`
	Currency      string    `db:"currency"`
	PlatformFee   int64     `db:"platform_fee"`
	ProcessingFee int64     `db:"processing_fee"`
	Status        string    `db:"status"`
	Retryable     bool      `db:"retryable"`
	Events        []byte    `db:"events"`
	Version       int64     `db:"version"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (r transactionRow) toDomain() (payment.Transaction, error) {
	tx := payment.Transaction{
		ID:          r.ID,
		PayerID:     r.PayerID,
		PayeeID:     r.PayeeID,
		ProjectID:   r.ProjectID,
		MilestoneID: r.MilestoneID,
		Amount:      r.Amount,
		Currency:    r.Currency,
		Fees:        payment.Fees{Platform: r.PlatformFee, Processing: r.ProcessingFee},
		Status:      payment.Status(r.Status),
		Retryable:   r.Retryable,
		Version:     r.Version,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.Events) > 0 {
		if err := json.Unmarshal(r.Events, &tx.Events); err != nil {
			return payment.Transaction{}, err
		}
	}
	return tx, nil
}

type projectRow struct {
	ID           string       `db:"id"`
	OwnerID      string       `db:"owner_id"`
	AssigneeID   string       `db:"assignee_id"`
	Title        string       `db:"title"`
	Description  string       `db:"description"`
	Status       string       `db:"status"`
	BudgetTotal  int64        `db:"budget_total"`
	AgreedBudget int64        `db:"agreed_budget"`
	Currency     string       `db:"currency"`
	StartDate    sql.NullTime `db:"start_date"`
	EndDate      sql.NullTime `db:"end_date"`
	Milestones   []byte       `db:"milestones"`
	Bids         []byte       `db:"bids"`
	Completion   []byte       `db:"completion"`
	HealthScore  int          `db:"health_score"`
	Version      int64        `db:"version"`
	CreatedAt    time.Time    `db:"created_at"`
	UpdatedAt    time.Time    `db:"updated_at"`
}

func (r projectRow) toDomain() (project.Project, error) {
	p := project.Project{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		AssigneeID:   r.AssigneeID,
		Title:        r.Title,
		Description:  r.Description,
		Status:       project.Status(r.Status),
		BudgetTotal:  r.BudgetTotal,
		AgreedBudget: r.AgreedBudget,
		Currency:     r.Currency,
		HealthScore:  r.HealthScore,
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.StartDate.Valid {
		p.StartDate = r.StartDate.Time
	}
	if r.EndDate.Valid {
		p.EndDate = r.EndDate.Time
	}
	if len(r.Milestones) > 0 {
		if err := json.Unmarshal(r.Milestones, &p.Milestones); err != nil {
			return project.Project{}, err
		}
	}
	if len(r.Bids) > 0 {
		if err := json.Unmarshal(r.Bids, &p.Bids); err != nil {
			return project.Project{}, err
		}
	}
	if len(r.Completion) > 0 {
		if err := json.Unmarshal(r.Completion, &p.Completion); err != nil {
			return project.Project{}, err
		}
	}
	return p, nil
}

// AccountStore ----------------------------------------------------------------

func (s *Store) CreateAccount(ctx context.Context, acct account.Account) (account.Account, error) {
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

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, owner_id, balance, held_balance, total_earned, total_spent, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, acct.ID, acct.OwnerID, acct.Balance, acct.HeldBalance, acct.TotalEarned, acct.TotalSpent, acct.Currency, acct.Version, acct.CreatedAt, acct.UpdatedAt)
	if isUniqueViolation(err) {
		// Concurrent first use of the same owner; the caller re-reads the
		// account the other writer created.
		return account.Account{}, apperr.Conflict("account for owner %s already exists", acct.OwnerID)
	}
	if err != nil {
		return account.Account{}, err
	}
	return acct, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *Store) GetAccount(ctx context.Context, id string) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, owner_id, balance, held_balance, total_earned, total_spent, currency, version, created_at, updated_at
		FROM accounts WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, apperr.NotFound("account %s", id)
	}
	if err != nil {
		return account.Account{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) GetAccountByOwner(ctx context.Context, ownerID string) (account.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, owner_id, balance, held_balance, total_earned, total_spent, currency, version, created_at, updated_at
		FROM accounts WHERE owner_id = $1
	`, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return account.Account{}, apperr.NotFound("account for owner %s", ownerID)
	}
	if err != nil {
		return account.Account{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]account.Account, error) {
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, owner_id, balance, held_balance, total_earned, total_spent, currency, version, created_at, updated_at
		FROM accounts ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	result := make([]account.Account, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) UpdateAccount(ctx context.Context, acct account.Account, entries ...account.Entry) (account.Account, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return account.Account{}, err
	}
	defer tx.Rollback()

	updated, err := s.updateAccountTx(ctx, tx, acct)
	if err != nil {
		return account.Account{}, err
	}
	for _, entry := range entries {
		if err := s.insertEntryTx(ctx, tx, entry); err != nil {
			return account.Account{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return account.Account{}, err
	}
	return updated, nil
}

func (s *Store) updateAccountTx(ctx context.Context, tx *sqlx.Tx, acct account.Account) (account.Account, error) {
	expected := acct.Version
	acct.Version++
	acct.UpdatedAt = time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $3, held_balance = $4, total_earned = $5, total_spent = $6, version = $7, updated_at = $8
		WHERE id = $1 AND version = $2
	`, acct.ID, expected, acct.Balance, acct.HeldBalance, acct.TotalEarned, acct.TotalSpent, acct.Version, acct.UpdatedAt)
	if err != nil {
		return account.Account{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return account.Account{}, apperr.Conflict("account %s: version %d is stale", acct.ID, expected)
	}
	return acct, nil
}

func (s *Store) insertEntryTx(ctx context.Context, tx *sqlx.Tx, entry account.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO account_entries (id, account_id, entry_type, amount, balance_after, held_after, reason, project_id, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, entry.ID, entry.AccountID, string(entry.Type), entry.Amount, entry.BalanceAfter, entry.HeldAfter, entry.Reason, entry.ProjectID, entry.TransactionID, entry.CreatedAt)
	if err != nil {
		return err
	}

	// Bounded history: evict everything older than the newest N entries.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM account_entries
		WHERE account_id = $1 AND id NOT IN (
			SELECT id FROM account_entries
			WHERE account_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		)
	`, entry.AccountID, s.historyLimit)
	return err
}

func (s *Store) ListEntries(ctx context.Context, accountID string) ([]account.Entry, error) {
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, account_id, entry_type, amount, balance_after, held_after, reason, project_id, transaction_id, created_at
		FROM account_entries
		WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, accountID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	result := make([]account.Entry, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

// TransactionStore ------------------------------------------------------------

func (s *Store) CreateTransaction(ctx context.Context, txr payment.Transaction) (payment.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return payment.Transaction{}, err
	}
	defer tx.Rollback()

	created, err := s.insertTransactionTx(ctx, tx, txr)
	if err != nil {
		return payment.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return payment.Transaction{}, err
	}
	return created, nil
}

func (s *Store) insertTransactionTx(ctx context.Context, tx *sqlx.Tx, txr payment.Transaction) (payment.Transaction, error) {
	if txr.ID == "" {
		txr.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	txr.Version = 1
	txr.CreatedAt = now
	txr.UpdatedAt = now

	eventsJSON, err := json.Marshal(txr.Events)
	if err != nil {
		return payment.Transaction{}, err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transactions (id, payer_id, payee_id, project_id, milestone_id, amount, currency, platform_fee, processing_fee, status, retryable, events, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, txr.ID, txr.PayerID, txr.PayeeID, txr.ProjectID, txr.MilestoneID, txr.Amount, txr.Currency, txr.Fees.Platform, txr.Fees.Processing, string(txr.Status), txr.Retryable, eventsJSON, txr.Version, txr.CreatedAt, txr.UpdatedAt)
	if err != nil {
		return payment.Transaction{}, err
	}
	return txr, nil
}

func (s *Store) UpdateTransaction(ctx context.Context, txr payment.Transaction) (payment.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return payment.Transaction{}, err
	}
	defer tx.Rollback()

	updated, err := s.updateTransactionTx(ctx, tx, txr)
	if err != nil {
		return payment.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return payment.Transaction{}, err
	}
	return updated, nil
}

func (s *Store) updateTransactionTx(ctx context.Context, tx *sqlx.Tx, txr payment.Transaction) (payment.Transaction, error) {
	expected := txr.Version
	txr.Version++
	txr.UpdatedAt = time.Now().UTC()

	eventsJSON, err := json.Marshal(txr.Events)
	if err != nil {
		return payment.Transaction{}, err
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $3, retryable = $4, events = $5, version = $6, updated_at = $7
		WHERE id = $1 AND version = $2
	`, txr.ID, expected, string(txr.Status), txr.Retryable, eventsJSON, txr.Version, txr.UpdatedAt)
	if err != nil {
		return payment.Transaction{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return payment.Transaction{}, apperr.Conflict("transaction %s: version %d is stale", txr.ID, expected)
	}
	return txr, nil
}

const transactionColumns = `id, payer_id, payee_id, project_id, milestone_id, amount, currency, platform_fee, processing_fee, status, retryable, events, version, created_at, updated_at`

func (s *Store) GetTransaction(ctx context.Context, id string) (payment.Transaction, error) {
	var row transactionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+transactionColumns+` FROM transactions WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return payment.Transaction{}, apperr.NotFound("transaction %s", id)
	}
	if err != nil {
		return payment.Transaction{}, err
	}
	return row.toDomain()
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string) ([]payment.Transaction, error) {
	return s.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE payer_id = $1 OR payee_id = $1
		ORDER BY created_at
	`, accountID)
}

func (s *Store) ListTransactionsByProject(ctx context.Context, projectID string) ([]payment.Transaction, error) {
	return s.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE project_id = $1
		ORDER BY created_at
	`, projectID)
}

func (s *Store) ListRetryableTransactions(ctx context.Context) ([]payment.Transaction, error) {
	return s.listTransactions(ctx, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = 'failed' AND retryable
		ORDER BY created_at
	`)
}

func (s *Store) listTransactions(ctx context.Context, query string, args ...interface{}) ([]payment.Transaction, error) {
	var rows []transactionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make([]payment.Transaction, 0, len(rows))
	for _, row := range rows {
		txr, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, txr)
	}
	return result, nil
}

// EscrowStore -----------------------------------------------------------------

func (s *Store) ApplyHold(ctx context.Context, payer account.Account, txr payment.Transaction, entry account.Entry) (payment.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return payment.Transaction{}, err
	}
	defer tx.Rollback()

	if _, err := s.updateAccountTx(ctx, tx, payer); err != nil {
		return payment.Transaction{}, err
	}
	if err := s.insertEntryTx(ctx, tx, entry); err != nil {
		return payment.Transaction{}, err
	}
	created, err := s.insertTransactionTx(ctx, tx, txr)
	if err != nil {
		return payment.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return payment.Transaction{}, err
	}
	return created, nil
}

func (s *Store) Settle(ctx context.Context, accounts []account.Account, txr payment.Transaction, entries []account.Entry) (payment.Transaction, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return payment.Transaction{}, err
	}
	defer tx.Rollback()

	for _, acct := range accounts {
		if _, err := s.updateAccountTx(ctx, tx, acct); err != nil {
			return payment.Transaction{}, err
		}
	}
	for _, entry := range entries {
		if err := s.insertEntryTx(ctx, tx, entry); err != nil {
			return payment.Transaction{}, err
		}
	}
	settled, err := s.updateTransactionTx(ctx, tx, txr)
	if err != nil {
		return payment.Transaction{}, err
	}
	if err := tx.Commit(); err != nil {
		return payment.Transaction{}, err
	}
	return settled, nil
}

// ProjectStore ----------------------------------------------------------------

const projectColumns = `id, owner_id, assignee_id, title, description, status, budget_total, agreed_budget, currency, start_date, end_date, milestones, bids, completion, health_score, version, created_at, updated_at`

func (s *Store) CreateProject(ctx context.Context, p project.Project) (project.Project, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	p.Version = 1
	p.CreatedAt = now
	p.UpdatedAt = now

	milestonesJSON, bidsJSON, completionJSON, err := marshalProjectJSON(p)
	if err != nil {
		return project.Project{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, owner_id, assignee_id, title, description, status, budget_total, agreed_budget, currency, start_date, end_date, milestones, bids, completion, health_score, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`, p.ID, p.OwnerID, p.AssigneeID, p.Title, p.Description, string(p.Status), p.BudgetTotal, p.AgreedBudget, p.Currency,
		nullTime(p.StartDate), nullTime(p.EndDate), milestonesJSON, bidsJSON, completionJSON, p.HealthScore, p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return project.Project{}, err
	}
	return p, nil
}

func (s *Store) GetProject(ctx context.Context, id string) (project.Project, error) {
	var row projectRow
	err := s.db.GetContext(ctx, &row, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return project.Project{}, apperr.NotFound("project %s", id)
	}
	if err != nil {
		return project.Project{}, err
	}
	return row.toDomain()
}

func (s *Store) ListProjectsByOwner(ctx context.Context, ownerID string) ([]project.Project, error) {
	return s.listProjects(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE owner_id = $1 ORDER BY created_at
	`, ownerID)
}

func (s *Store) ListActiveProjects(ctx context.Context) ([]project.Project, error) {
	return s.listProjects(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE status IN ('open', 'in_progress') ORDER BY created_at
	`)
}

func (s *Store) listProjects(ctx context.Context, query string, args ...interface{}) ([]project.Project, error) {
	var rows []projectRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	result := make([]project.Project, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, nil
}

func (s *Store) UpdateProject(ctx context.Context, p project.Project) (project.Project, error) {
	expected := p.Version
	p.Version++
	p.UpdatedAt = time.Now().UTC()

	milestonesJSON, bidsJSON, completionJSON, err := marshalProjectJSON(p)
	if err != nil {
		return project.Project{}, err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE projects
		SET assignee_id = $3, title = $4, description = $5, status = $6, budget_total = $7, agreed_budget = $8,
			start_date = $9, end_date = $10, milestones = $11, bids = $12, completion = $13, health_score = $14,
			version = $15, updated_at = $16
		WHERE id = $1 AND version = $2
	`, p.ID, expected, p.AssigneeID, p.Title, p.Description, string(p.Status), p.BudgetTotal, p.AgreedBudget,
		nullTime(p.StartDate), nullTime(p.EndDate), milestonesJSON, bidsJSON, completionJSON, p.HealthScore, p.Version, p.UpdatedAt)
	if err != nil {
		return project.Project{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return project.Project{}, apperr.Conflict("project %s: version %d is stale", p.ID, expected)
	}
	return p, nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperr.NotFound("project %s", id)
	}
	return nil
}

func marshalProjectJSON(p project.Project) (milestones, bids, completion []byte, err error) {
	if milestones, err = json.Marshal(p.Milestones); err != nil {
		return nil, nil, nil, err
	}
	if bids, err = json.Marshal(p.Bids); err != nil {
		return nil, nil, nil, err
	}
	if completion, err = json.Marshal(p.Completion); err != nil {
		return nil, nil, nil, err
	}
	return milestones, bids, completion, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
