package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"opticash/internal/core"
)

// Wire status values used by the API.
const (
	wirePending = "PENDIENTE"
	wirePaid    = "PAGADO"
)

// wireID accepts numeric or string identifiers and always encodes back
// as a number when the value is numeric.
type wireID string

func (id *wireID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = wireID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", data, err)
	}
	*id = wireID(n.String())
	return nil
}

func (id wireID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// wireTime accepts RFC 3339 timestamps and plain dates.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	var s string
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid time %q", s)
}

func (t wireTime) ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

type billDTO struct {
	ID          wireID      `json:"id"`
	HouseholdID wireID      `json:"householdId"`
	Description string      `json:"description"`
	Monto       *core.Money `json:"monto"`
	Amount      *core.Money `json:"amount"`
	Fecha       wireTime    `json:"fecha"`
	Date        wireTime    `json:"date"`
	CreatedBy   wireID      `json:"createdBy"`
}

func (d billDTO) toCore() core.Bill {
	b := core.Bill{
		ID:          string(d.ID),
		HouseholdID: string(d.HouseholdID),
		Description: d.Description,
		Date:        d.Fecha.Time,
		CreatedBy:   string(d.CreatedBy),
	}
	if b.Date.IsZero() {
		b.Date = d.Date.Time
	}
	switch {
	case d.Monto != nil:
		b.Amount = *d.Monto
	case d.Amount != nil:
		b.Amount = *d.Amount
	}
	return b
}

type contributionDTO struct {
	ID          wireID   `json:"id"`
	BillID      wireID   `json:"billId"`
	HouseholdID wireID   `json:"householdId"`
	Description string   `json:"description"`
	Strategy    string   `json:"strategy"`
	DueDate     wireTime `json:"dueDate"`
	FechaLimite wireTime `json:"fechaLimite"`
}

func (d contributionDTO) toCore() core.Contribution {
	c := core.Contribution{
		ID:          string(d.ID),
		BillID:      string(d.BillID),
		HouseholdID: string(d.HouseholdID),
		Description: d.Description,
		Strategy:    core.StrategyTag(strings.ToUpper(strings.TrimSpace(d.Strategy))),
		DueDate:     d.DueDate.Time,
	}
	if c.DueDate.IsZero() {
		c.DueDate = d.FechaLimite.Time
	}
	return c
}

type createContributionDTO struct {
	BillID      wireID `json:"billId"`
	HouseholdID wireID `json:"householdId"`
	Description string `json:"description"`
	Strategy    string `json:"strategy"`
	FechaLimite string `json:"fechaLimite,omitempty"`
}

type memberContributionDTO struct {
	ID             wireID     `json:"id"`
	ContributionID wireID     `json:"contributionId"`
	MemberID       wireID     `json:"memberId"`
	Monto          core.Money `json:"monto"`
	Status         string     `json:"status"`
	PagadoEn       wireTime   `json:"pagadoEn"`
}

func (d memberContributionDTO) toCore() core.MemberContribution {
	return core.MemberContribution{
		ID:             string(d.ID),
		ContributionID: string(d.ContributionID),
		MemberID:       string(d.MemberID),
		Amount:         d.Monto,
		Status:         statusFromWire(d.Status),
		PaidAt:         d.PagadoEn.ptr(),
	}
}

type createMemberContributionDTO struct {
	ContributionID wireID     `json:"contributionId"`
	MemberID       wireID     `json:"memberId"`
	Monto          core.Money `json:"monto"`
	Status         string     `json:"status"`
	PagadoEn       *string    `json:"pagadoEn"`
}

type payDTO struct {
	Monto core.Money `json:"monto"`
}

type householdMemberDTO struct {
	HouseholdID wireID `json:"householdId"`
	UserID      wireID `json:"userId"`
	User        *struct {
		Ingresos *core.Money `json:"ingresos"`
	} `json:"user"`
	Ingresos *core.Money `json:"ingresos"`
}

func (d householdMemberDTO) toCore() core.Member {
	m := core.Member{UserID: string(d.UserID), HouseholdID: string(d.HouseholdID), Income: d.Ingresos}
	if m.Income == nil && d.User != nil {
		m.Income = d.User.Ingresos
	}
	return m
}

// statusFromWire accepts both the Spanish and the English status values.
func statusFromWire(s string) core.Status {
	if strings.EqualFold(strings.TrimSpace(s), wirePaid) {
		return core.StatusPaid
	}
	return core.ParseStatus(s)
}

func statusToWire(s core.Status) string {
	if s.IsPaid() {
		return wirePaid
	}
	return wirePending
}
