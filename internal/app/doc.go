// Package app composes the workledger services into a running application.
//
// # Package Structure
//
//	internal/app/
//	├── application.go      # Application struct, wiring, and lifecycle
//	├── auth/               # Actor identity and role checks
//	├── cache/              # Redis-backed health score cache
//	├── domain/             # Domain models (pure data and rules)
//	│   ├── account/        # Ledger accounts and entries
//	│   ├── payment/        # Escrow transactions and audit events
//	│   └── project/        # Project lifecycle, bids, milestones, health
//	├── storage/            # Store interfaces plus memory and postgres backends
//	├── services/           # Business logic (ledger, escrow, projects)
//	├── httpapi/            # HTTP handlers, routing, audit log
//	├── notify/             # Event notifier and websocket hub
//	├── system/             # Service lifecycle manager and health snapshot
//	└── metrics/            # Prometheus collectors
//
// # Dependency Direction
//
//	cmd/server/
//	      │
//	      ▼
//	internal/app/ (composition)
//	      │
//	      ├──► internal/app/services/ (business logic)
//	      │           │
//	      │           └──► internal/app/storage/ (interfaces only)
//	      │
//	      ├──► internal/app/storage/memory, postgres (backends)
//	      │
//	      └──► internal/app/httpapi/ (transport)
//
// Domain packages hold pure data and rules and depend on nothing above them.
// Services depend on store interfaces, never on a concrete backend; the
// backend is chosen in cmd/server at startup.
//
// # Adding a New Domain
//
//  1. Create domain models in internal/app/domain/<name>/
//  2. Add a store interface to internal/app/storage/interfaces.go
//  3. Implement it in internal/app/storage/memory/ and postgres/
//  4. Create the service in internal/app/services/<name>/service.go
//  5. Wire the service in internal/app/application.go
//  6. Add HTTP routes in internal/app/httpapi/handler.go
package app
