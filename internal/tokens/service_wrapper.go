package tokens

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/token-recycle/internal/metrics"
	"github.com/smartdevs17/token-recycle/internal/models"
)

// ServiceWithMetrics wraps a token ledger with request metrics
type ServiceWithMetrics struct {
	Service
	metricsManager *metrics.Manager
}

// NewServiceWithMetrics creates a token ledger wrapper with metrics
func NewServiceWithMetrics(service Service, metricsManager *metrics.Manager) *ServiceWithMetrics {
	return &ServiceWithMetrics{
		Service:        service,
		metricsManager: metricsManager,
	}
}

func (s *ServiceWithMetrics) record(operation string, start time.Time, err error) {
	if s.metricsManager == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metricsManager.GetPrometheusMetrics().RecordTokenLedgerRequest(operation, status, time.Since(start))
}

func (s *ServiceWithMetrics) Account(ctx context.Context, address common.Address) (*models.TokenAccount, error) {
	start := time.Now()
	account, err := s.Service.Account(ctx, address)
	s.record("account", start, err)
	return account, err
}

func (s *ServiceWithMetrics) Burn(ctx context.Context, account, owner common.Address, amount uint64) error {
	start := time.Now()
	err := s.Service.Burn(ctx, account, owner, amount)
	s.record(OpBurn, start, err)
	return err
}

func (s *ServiceWithMetrics) Transfer(ctx context.Context, from, to common.Address, authority Authority, amount uint64) error {
	start := time.Now()
	err := s.Service.Transfer(ctx, from, to, authority, amount)
	s.record(OpTransfer, start, err)
	return err
}

func (s *ServiceWithMetrics) RevertBurn(ctx context.Context, account common.Address, amount uint64) error {
	start := time.Now()
	err := s.Service.RevertBurn(ctx, account, amount)
	s.record(OpRevertBurn, start, err)
	return err
}

func (s *ServiceWithMetrics) RevertTransfer(ctx context.Context, from, to common.Address, amount uint64) error {
	start := time.Now()
	err := s.Service.RevertTransfer(ctx, from, to, amount)
	s.record(OpRevertTransfer, start, err)
	return err
}
