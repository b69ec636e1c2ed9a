// Package overlay holds payments recorded locally before the store has
// confirmed them. Entries are advisory: an authoritative PAID record always
// dominates, and malformed persisted state resets to an empty mapping.
package overlay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"opticash/internal/core"
)

// Entry is one locally recorded payment.
type Entry struct {
	OriginalAmount core.Money `json:"originalAmount"`
	RecordedAt     *time.Time `json:"recordedAt,omitempty"`
}

var ErrEmptyID = errors.New("empty member contribution id")

// Overlay maps member contribution IDs to local payment entries.
type Overlay struct {
	mu      sync.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

type Option func(*Overlay)

// WithClock overrides the clock used for RecordedAt.
func WithClock(now func() time.Time) Option {
	return func(o *Overlay) { o.now = now }
}

func New(opts ...Option) *Overlay {
	o := &Overlay{entries: map[string]Entry{}, now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RecordLocalPayment upserts an entry for id. Recording the same payment
// again refreshes the amount and keeps the first RecordedAt.
func (o *Overlay) RecordLocalPayment(id string, original core.Money) (Entry, error) {
	if id == "" {
		return Entry{}, ErrEmptyID
	}
	if original.Cents < 0 {
		return Entry{}, fmt.Errorf("%w: negative original amount", core.ErrInvalidAmount)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	e, ok := o.entries[id]
	if !ok || e.RecordedAt == nil {
		at := o.now().UTC()
		e.RecordedAt = &at
	}
	e.OriginalAmount = original
	o.entries[id] = e
	return e, nil
}

func (o *Overlay) Lookup(id string) (Entry, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	e, ok := o.entries[id]
	return e, ok
}

// Resolve reconciles an authoritative record with the overlay. It never
// mutates either.
func (o *Overlay) Resolve(mc core.MemberContribution) core.DisplayedShare {
	ds := core.MirrorShare(mc)
	if mc.Status.IsPaid() {
		return ds
	}
	e, ok := o.Lookup(mc.ID)
	if !ok {
		return ds
	}
	ds.Status = core.StatusPaid
	ds.Optimistic = true
	ds.Remaining = core.Money{}
	ds.Original = e.OriginalAmount
	ds.PaidAt = e.RecordedAt
	return ds
}

// Retire drops the entry for id and reports whether one existed.
func (o *Overlay) Retire(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.entries[id]
	delete(o.entries, id)
	return ok
}

// Prune drops entries whose authoritative record reports PAID and returns
// the number removed.
func (o *Overlay) Prune(records []core.MemberContribution) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	removed := 0
	for _, mc := range records {
		if !mc.Status.IsPaid() {
			continue
		}
		if _, ok := o.entries[mc.ID]; ok {
			delete(o.entries, mc.ID)
			removed++
		}
	}
	return removed
}

func (o *Overlay) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}

// IDs returns the overlaid member contribution IDs in sorted order.
func (o *Overlay) IDs() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	ids := make([]string, 0, len(o.entries))
	for id := range o.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Snapshot serializes the overlay as a flat JSON object keyed by ID.
func (o *Overlay) Snapshot() ([]byte, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return json.Marshal(o.entries)
}

// Restore replaces the overlay contents with data. Empty data yields an
// empty overlay. Data that is not a JSON object of entries also yields an
// empty overlay and healed is true.
func (o *Overlay) Restore(data []byte) (healed bool) {
	entries, err := decode(data)
	if err != nil {
		entries = map[string]Entry{}
		healed = true
	}
	o.mu.Lock()
	o.entries = entries
	o.mu.Unlock()
	return healed
}

func decode(data []byte) (map[string]Entry, error) {
	entries := map[string]Entry{}
	if len(data) == 0 {
		return entries, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, errors.New("overlay state is null")
	}
	for id, msg := range raw {
		var e Entry
		if err := json.Unmarshal(msg, &e); err != nil {
			return nil, fmt.Errorf("entry %s: %w", id, err)
		}
		if id == "" || e.OriginalAmount.Cents < 0 {
			return nil, fmt.Errorf("entry %q: invalid", id)
		}
		entries[id] = e
	}
	return entries, nil
}
