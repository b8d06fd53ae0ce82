package payment

import (
	"context"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Poller periodically resolves payments the provider never called back
// about. Webhooks are the primary channel; the poller is the safety net for
// lost deliveries.
type Poller struct {
	service  *Service
	payments Repository
	interval time.Duration
	minAge   time.Duration
	batch    int
}

// NewPoller creates a Poller that every interval reconciles up to batch
// active payments untouched for at least minAge.
func NewPoller(service *Service, payments Repository, interval, minAge time.Duration, batch int) *Poller {
	if batch <= 0 {
		batch = 50
	}
	return &Poller{
		service:  service,
		payments: payments,
		interval: interval,
		minAge:   minAge,
		batch:    batch,
	}
}

// Run blocks until ctx is cancelled, polling on the configured interval.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.tick(ctx); err != nil {
				zctx.From(ctx).Warn("Payment poll failed", zap.Error(err))
			}
		}
	}
}

func (p *Poller) tick(ctx context.Context) error {
	cutoff := time.Now().Add(-p.minAge)
	stale, err := p.payments.ListActive(ctx, cutoff, p.batch)
	if err != nil {
		return err
	}
	for _, stuck := range stale {
		if _, err := p.service.GetPaymentStatus(ctx, stuck.ID); err != nil {
			zctx.From(ctx).Warn("Payment reconcile failed",
				zap.String("payment_id", stuck.ID),
				zap.Error(err),
			)
		}
	}
	return nil
}
