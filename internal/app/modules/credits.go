package modules

import (
	"context"
	"time"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"halcyon.studio/cinema/internal/api/handlers"
	"halcyon.studio/cinema/internal/credits"
	"halcyon.studio/cinema/internal/messaging"
	"halcyon.studio/cinema/internal/pkg/logger"
	"halcyon.studio/cinema/internal/repository"
	"halcyon.studio/cinema/internal/usecase"
)

const defaultReconcileInterval = 30 * time.Second

// CreditsModule owns the ledger, billing and deferred-deduction
// reconciliation.
type CreditsModule struct {
	infra      *Infrastructure
	Service    *credits.Service
	Reconciler *credits.Reconciler
	Billing    *usecase.Billing
	useCase    *usecase.CreditsUseCase
	consumer   *messaging.ReconcileHandler
}

func NewCreditsModule(infra *Infrastructure) *CreditsModule {
	var ledger credits.Ledger = credits.NewMemoryLedger()
	if infra.Pool != nil {
		ledger = repository.NewPostgresLedger(infra.Pool)
	}
	svc := credits.NewService(ledger, infra.Events, infra.Config.Credits.StartingBalance)

	var pub credits.Publisher
	if infra.Bus != nil {
		pub = infra.Bus
	}
	rec := credits.NewReconciler(svc, pub)

	m := &CreditsModule{
		infra:      infra,
		Service:    svc,
		Reconciler: rec,
		Billing:    usecase.NewBilling(svc, rec),
		useCase:    usecase.NewCreditsUseCase(svc, infra.AuditLogger, infra.Notifier),
	}
	if infra.NATS != nil {
		m.consumer = messaging.NewReconcileHandler(rec, infra.NATS, infra.Config.NATS.QueueGroup)
	}
	return m
}

func (m *CreditsModule) Name() string { return "credits" }

func (m *CreditsModule) ContributeServerDeps(deps *handlers.ServerDeps) {
	deps.Credits = m.useCase
}

func (m *CreditsModule) RegisterWorkers(_ *river.Workers) {}

// Start runs the local retry loop and, with NATS, the queue consumer.
func (m *CreditsModule) Start(ctx context.Context) error {
	interval := m.infra.Config.Credits.ReconcileInterval
	if interval <= 0 {
		interval = defaultReconcileInterval
	}
	if err := m.Reconciler.Start(m.infra.Pools, interval); err != nil {
		return err
	}
	if m.consumer == nil {
		return nil
	}
	go func() {
		if err := m.consumer.Start(ctx); err != nil {
			logger.Error("credit reconciliation consumer stopped", zap.Error(err))
		}
	}()
	return nil
}

func (m *CreditsModule) Shutdown(context.Context) error { return nil }
