// Package app wires the domain services to their stores and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/workmesh/workledger/internal/app/cache"
	"github.com/workmesh/workledger/internal/app/notify"
	"github.com/workmesh/workledger/internal/app/services/escrow"
	"github.com/workmesh/workledger/internal/app/services/ledger"
	"github.com/workmesh/workledger/internal/app/services/projects"
	"github.com/workmesh/workledger/internal/app/storage"
	"github.com/workmesh/workledger/internal/app/storage/memory"
	"github.com/workmesh/workledger/internal/app/system"
	"github.com/workmesh/workledger/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Accounts     storage.AccountStore
	Transactions storage.TransactionStore
	Escrow       storage.EscrowStore
	Projects     storage.ProjectStore
}

// Options tunes optional application components.
type Options struct {
	Escrow            escrow.Config
	HealthCache       *cache.HealthCache
	Notifier          notify.Notifier
	ReconcileSchedule string
	WatchSchedule     string
}

// Application ties the domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Ledger   *ledger.Service
	Escrow   *escrow.Service
	Projects *projects.Service
	Hub      *notify.Hub
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Accounts == nil {
		stores.Accounts = mem
	}
	if stores.Transactions == nil {
		stores.Transactions = mem
	}
	if stores.Escrow == nil {
		stores.Escrow = mem
	}
	if stores.Projects == nil {
		stores.Projects = mem
	}

	hub := notify.NewHub(log.WithField("module", "notify-hub"))
	notifier := notify.Notifier(notify.Multi{notify.NewLogNotifier(log.WithField("module", "notify")), hub})
	if opts.Notifier != nil {
		notifier = notify.Multi{opts.Notifier, hub}
	}

	ledgerSvc := ledger.NewService(stores.Accounts, log.WithField("module", "ledger"))
	escrowSvc := escrow.NewService(opts.Escrow, ledgerSvc, stores.Transactions, stores.Escrow, notifier, log.WithField("module", "escrow"))
	projectSvc := projects.NewService(stores.Projects, opts.HealthCache, notifier, log.WithField("module", "projects"))

	manager := system.NewManager(log.WithField("module", "system"))
	lifecycle := []system.Service{
		ledgerSvc,
		escrowSvc,
		projectSvc,
		escrow.NewReconciler(escrowSvc, opts.ReconcileSchedule, log.WithField("module", "escrow-reconciler")),
		projects.NewWatcher(projectSvc, opts.WatchSchedule, log.WithField("module", "project-watcher")),
	}
	for _, svc := range lifecycle {
		if err := manager.Register(svc); err != nil {
			return nil, fmt.Errorf("register %s: %w", svc.Name(), err)
		}
	}

	return &Application{
		manager:  manager,
		log:      log,
		Ledger:   ledgerSvc,
		Escrow:   escrowSvc,
		Projects: projectSvc,
		Hub:      hub,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services and disconnects notification clients.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.Stop(ctx)
	a.Hub.Close()
	return err
}
