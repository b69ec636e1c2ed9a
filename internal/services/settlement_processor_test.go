package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type countingSettler struct {
	mu         sync.Mutex
	submits    int
	reconciled []string
	submitErr  error
}

func (c *countingSettler) SubmitPending(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submits++
	return 1, c.submitErr
}

func (c *countingSettler) Reconcile(_ context.Context, memberID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconciled = append(c.reconciled, memberID)
	return 0, nil
}

func (c *countingSettler) submitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submits
}

func TestDefaultSettlementProcessorConfig(t *testing.T) {
	config := DefaultSettlementProcessorConfig()

	if config.PollInterval != 30*time.Second {
		t.Errorf("expected PollInterval 30s, got %v", config.PollInterval)
	}
	if len(config.MemberIDs) != 0 {
		t.Errorf("expected no members, got %v", config.MemberIDs)
	}
}

func TestNewSettlementProcessor_DefaultsInterval(t *testing.T) {
	processor := NewSettlementProcessor(&countingSettler{}, SettlementProcessorConfig{})

	if processor.config.PollInterval != 30*time.Second {
		t.Errorf("expected default PollInterval, got %v", processor.config.PollInterval)
	}
	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestSettlementProcessor_RunOnce(t *testing.T) {
	settler := &countingSettler{submitErr: errors.New("partial")}
	processor := NewSettlementProcessor(settler, SettlementProcessorConfig{
		PollInterval: time.Minute,
		MemberIDs:    []string{"a", "b"},
	})

	processor.RunOnce(context.Background())

	if settler.submitCount() != 1 {
		t.Errorf("expected one submit, got %d", settler.submitCount())
	}
	if len(settler.reconciled) != 2 || settler.reconciled[0] != "a" || settler.reconciled[1] != "b" {
		t.Errorf("unexpected reconciled members %v", settler.reconciled)
	}
}

func TestSettlementProcessor_StartTwice(t *testing.T) {
	processor := NewSettlementProcessor(&countingSettler{}, SettlementProcessorConfig{PollInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := processor.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := processor.Start(ctx); err == nil {
		t.Error("expected error when starting already running processor")
	}
	if err := processor.Stop(ctx); err != nil {
		t.Errorf("stop: %v", err)
	}
}

func TestSettlementProcessor_StopNotRunning(t *testing.T) {
	processor := NewSettlementProcessor(&countingSettler{}, DefaultSettlementProcessorConfig())

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestSettlementProcessor_SettlesOnStartup(t *testing.T) {
	settler := &countingSettler{}
	processor := NewSettlementProcessor(settler, SettlementProcessorConfig{PollInterval: time.Hour})

	ctx := context.Background()
	if err := processor.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for settler.submitCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := processor.Stop(stopCtx); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if settler.submitCount() == 0 {
		t.Error("expected a settlement cycle on startup")
	}
	if processor.IsRunning() {
		t.Error("processor should not be running after stop")
	}
}
