package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"opticash/internal/core"
	"opticash/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store keeps every resource in process memory.
type Store struct {
	mu            sync.Mutex
	now           func() time.Time
	households    map[string]core.Household
	members       map[string][]core.Member
	bills         []core.Bill
	contributions []core.Contribution
	shares        []core.MemberContribution
}

func New() *Store {
	return &Store{
		now:        time.Now,
		households: map[string]core.Household{},
		members:    map[string][]core.Member{},
	}
}

type seedFile struct {
	Households []struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		Description      string `json:"description"`
		Currency         string `json:"currency"`
		RepresentativeID string `json:"representativeId"`
	} `json:"households"`
	Members []struct {
		UserID      string      `json:"userId"`
		HouseholdID string      `json:"householdId"`
		Income      *core.Money `json:"income"`
	} `json:"members"`
	Bills []struct {
		ID          string     `json:"id"`
		HouseholdID string     `json:"householdId"`
		Description string     `json:"description"`
		Amount      core.Money `json:"amount"`
		Date        string     `json:"date"`
		CreatedBy   string     `json:"createdBy"`
	} `json:"bills"`
}

// NewFromFile seeds a store from a JSON file. A missing file yields an
// empty store.
func NewFromFile(path string) (*Store, error) {
	s := New()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	for _, h := range seed.Households {
		s.AddHousehold(core.Household{
			ID:               h.ID,
			Name:             h.Name,
			Description:      h.Description,
			CurrencyCode:     h.Currency,
			RepresentativeID: h.RepresentativeID,
		})
	}
	for _, m := range seed.Members {
		s.AddMember(core.Member{UserID: m.UserID, HouseholdID: m.HouseholdID, Income: m.Income})
	}
	for _, b := range seed.Bills {
		var date time.Time
		if strings.TrimSpace(b.Date) != "" {
			date, err = time.Parse("2006-01-02", b.Date)
			if err != nil {
				return nil, fmt.Errorf("bill %s: parse date: %w", b.ID, err)
			}
		}
		s.AddBill(core.Bill{
			ID:          b.ID,
			HouseholdID: b.HouseholdID,
			Description: b.Description,
			Amount:      b.Amount,
			Date:        date,
			CreatedBy:   b.CreatedBy,
		})
	}
	return s, nil
}

func (s *Store) AddHousehold(h core.Household) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.households[h.ID] = h
}

// AddMember appends m to its household roster, keeping insertion order.
func (s *Store) AddMember(m core.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.HouseholdID] = append(s.members[m.HouseholdID], m)
}

// AddBill stores b, assigning an ID when empty.
func (s *Store) AddBill(b core.Bill) core.Bill {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	s.bills = append(s.bills, b)
	return b
}

func (s *Store) ListBills(_ context.Context, householdID string) ([]core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Bill, 0, len(s.bills))
	for _, b := range s.bills {
		if householdID == "" || b.HouseholdID == householdID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) GetBill(_ context.Context, id string) (core.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bills {
		if b.ID == id {
			return b, nil
		}
	}
	return core.Bill{}, fmt.Errorf("bill %s: %w", id, store.ErrNotFound)
}

func (s *Store) ListContributions(_ context.Context, householdID string) ([]core.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Contribution, 0, len(s.contributions))
	for _, c := range s.contributions {
		if householdID == "" || c.HouseholdID == householdID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Store) CreateContribution(_ context.Context, c core.Contribution) (core.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	for _, existing := range s.contributions {
		if existing.ID == c.ID {
			return core.Contribution{}, fmt.Errorf("contribution %s: %w", c.ID, store.ErrConflict)
		}
	}
	s.contributions = append(s.contributions, c)
	return c, nil
}

func (s *Store) ListMemberContributions(_ context.Context, memberID string) ([]core.MemberContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.MemberContribution, 0)
	for _, mc := range s.shares {
		if mc.MemberID == memberID {
			out = append(out, mc)
		}
	}
	return out, nil
}

func (s *Store) CreateMemberContribution(_ context.Context, mc core.MemberContribution) (core.MemberContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.shares {
		if existing.Key() == mc.Key() {
			return core.MemberContribution{}, fmt.Errorf("member contribution %s: %w", mc.Key(), store.ErrConflict)
		}
	}
	if mc.ID == "" {
		mc.ID = uuid.NewString()
	}
	if mc.Status == "" {
		mc.Status = core.StatusPending
	}
	s.shares = append(s.shares, mc)
	return mc, nil
}

func (s *Store) PayMemberContribution(_ context.Context, id string, amount core.Money) (core.MemberContribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, mc := range s.shares {
		if mc.ID != id {
			continue
		}
		paid, err := mc.MarkPaid(amount, s.now())
		if err != nil {
			return core.MemberContribution{}, fmt.Errorf("member contribution %s: %w: %w", id, store.ErrConflict, err)
		}
		s.shares[i] = paid
		return paid, nil
	}
	return core.MemberContribution{}, fmt.Errorf("member contribution %s: %w", id, store.ErrNotFound)
}

func (s *Store) ListHouseholdMembers(_ context.Context, householdID string) ([]core.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.households[householdID]; !ok && len(s.members[householdID]) == 0 {
		return nil, fmt.Errorf("household %s: %w", householdID, store.ErrNotFound)
	}
	return append([]core.Member(nil), s.members[householdID]...), nil
}

// Households returns the seeded households sorted by ID.
func (s *Store) Households() []core.Household {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.Household, 0, len(s.households))
	for _, h := range s.households {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Close() error { return nil }
