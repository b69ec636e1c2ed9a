package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SettlementProcessorConfig holds configuration for the settlement processor
type SettlementProcessorConfig struct {
	// PollInterval is how often pending overlay payments are resubmitted (default: 30s)
	PollInterval time.Duration

	// MemberIDs are reconciled against the store on every cycle
	MemberIDs []string
}

// DefaultSettlementProcessorConfig returns sensible defaults
func DefaultSettlementProcessorConfig() SettlementProcessorConfig {
	return SettlementProcessorConfig{
		PollInterval: 30 * time.Second,
	}
}

// Settler is the part of PaymentService the processor drives.
type Settler interface {
	SubmitPending(ctx context.Context) (int, error)
	Reconcile(ctx context.Context, memberID string) (int, error)
}

// SettlementProcessor periodically submits payments held in the overlay
// and prunes entries the store already reports as paid. It backs up the
// AMQP path when messages are lost.
type SettlementProcessor struct {
	payments Settler
	config   SettlementProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSettlementProcessor(payments Settler, config SettlementProcessorConfig) *SettlementProcessor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultSettlementProcessorConfig().PollInterval
	}
	return &SettlementProcessor{
		payments: payments,
		config:   config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SettlementProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("settlement processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Settlement processor started",
		"poll_interval", p.config.PollInterval,
		"members", len(p.config.MemberIDs))
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SettlementProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Settlement processor stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Settlement processor stop timed out")
		return ctx.Err()
	}
}

func (p *SettlementProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SettlementProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Settle immediately on startup
	p.RunOnce(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RunOnce(ctx)
		}
	}
}

// RunOnce runs a single reconcile and submit cycle.
func (p *SettlementProcessor) RunOnce(ctx context.Context) {
	for _, memberID := range p.config.MemberIDs {
		if _, err := p.payments.Reconcile(ctx, memberID); err != nil {
			slog.WarnContext(ctx, "Overlay reconcile failed",
				"member_id", memberID,
				"error", err)
		}
	}

	settled, err := p.payments.SubmitPending(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Some pending payments could not be submitted",
			"settled", settled,
			"error", err)
		return
	}
	if settled > 0 {
		slog.InfoContext(ctx, "Pending payments settled", "count", settled)
	}
}
