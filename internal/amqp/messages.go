package amqp

import (
	"encoding/json"
	"errors"
	"time"

	"opticash/internal/core"
)

// PaymentMessage asks the worker to submit a payment that was recorded
// offline. The overlay entry for MemberContributionID stays in place until
// the store reports the record as PAID.
type PaymentMessage struct {
	MemberContributionID string     `json:"memberContributionId"`
	MemberID             string     `json:"memberId"`
	HouseholdID          string     `json:"householdId,omitempty"`
	Amount               core.Money `json:"monto"`
	RecordedAt           time.Time  `json:"recordedAt"`
	Timestamp            time.Time  `json:"timestamp"`
}

func NewPaymentMessage(id, memberID, householdID string, amount core.Money, recordedAt time.Time) *PaymentMessage {
	return &PaymentMessage{
		MemberContributionID: id,
		MemberID:             memberID,
		HouseholdID:          householdID,
		Amount:               amount,
		RecordedAt:           recordedAt,
		Timestamp:            time.Now(),
	}
}

func (m *PaymentMessage) Validate() error {
	if m.MemberContributionID == "" {
		return errors.New("payment message without member contribution id")
	}
	if err := m.Amount.Validate(); err != nil {
		return err
	}
	return nil
}

func (m *PaymentMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// PaymentMessageFromJSON decodes and validates a message.
func PaymentMessageFromJSON(data []byte) (*PaymentMessage, error) {
	var msg PaymentMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
