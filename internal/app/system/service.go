package system

import (
	"context"
	"fmt"
	"sync"

	"github.com/workmesh/workledger/pkg/logger"
)

// Service represents a lifecycle-managed component. All application modules
// must implement this interface so the system manager can start and stop them
// deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Manager starts registered services in order and stops them in reverse.
type Manager struct {
	log *logger.Logger

	mu       sync.Mutex
	services []Service
	started  bool
}

// NewManager creates an empty manager.
func NewManager(log *logger.Logger) *Manager {
	if log == nil {
		log = logger.NewDefault("system")
	}
	return &Manager{log: log}
}

// Register adds a service. Registration after Start is a programming error
// and is rejected.
func (m *Manager) Register(svc Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("cannot register %s: manager already started", svc.Name())
	}
	m.services = append(m.services, svc)
	return nil
}

// Start brings every registered service up. On failure the already-started
// services are stopped in reverse order before returning.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return nil
	}

	for i, svc := range m.services {
		if err := svc.Start(ctx); err != nil {
			for j := i - 1; j >= 0; j-- {
				if stopErr := m.services[j].Stop(ctx); stopErr != nil {
					m.log.WithError(stopErr).Warnf("stopping %s during rollback", m.services[j].Name())
				}
			}
			return fmt.Errorf("start %s: %w", svc.Name(), err)
		}
		m.log.WithField("service", svc.Name()).Info("service started")
	}
	m.started = true
	return nil
}

// Stop shuts services down in reverse registration order. All services are
// attempted; the first error is returned.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.started {
		return nil
	}

	var firstErr error
	for i := len(m.services) - 1; i >= 0; i-- {
		svc := m.services[i]
		if err := svc.Stop(ctx); err != nil {
			m.log.WithError(err).Warnf("stopping %s", svc.Name())
			if firstErr == nil {
				firstErr = fmt.Errorf("stop %s: %w", svc.Name(), err)
			}
			continue
		}
		m.log.WithField("service", svc.Name()).Info("service stopped")
	}
	m.started = false
	return firstErr
}
