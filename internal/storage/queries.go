package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type Bill struct {
	ID          string
	HouseholdID string
	Description string
	AmountCents int64
	BillDate    sql.NullString
	CreatedBy   string
}

type Contribution struct {
	ID          string
	BillID      string
	HouseholdID string
	Description string
	Strategy    string
	DueDate     sql.NullString
}

type MemberContribution struct {
	ID             string
	ContributionID string
	MemberID       string
	AmountCents    int64
	Status         string
	PaidAt         sql.NullString
}

type HouseholdMember struct {
	HouseholdID string
	UserID      string
	IncomeCents sql.NullInt64
}

const upsertHousehold = `
INSERT INTO households (id, name, description, currency_code, representative_id)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET
    name = excluded.name,
    description = excluded.description,
    representative_id = excluded.representative_id
`

type UpsertHouseholdParams struct {
	ID               string
	Name             string
	Description      string
	CurrencyCode     string
	RepresentativeID string
}

// UpsertHousehold keeps the currency of an existing household.
func (q *Queries) UpsertHousehold(ctx context.Context, arg UpsertHouseholdParams) error {
	_, err := q.db.ExecContext(ctx, upsertHousehold, arg.ID, arg.Name, arg.Description, arg.CurrencyCode, arg.RepresentativeID)
	return err
}

const householdExists = `SELECT EXISTS (SELECT 1 FROM households WHERE id = ?)`

func (q *Queries) HouseholdExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, householdExists, id).Scan(&exists)
	return exists, err
}

const upsertMember = `
INSERT INTO household_members (household_id, user_id, income_cents, position)
VALUES (?, ?, ?, (SELECT COALESCE(MAX(position), 0) + 1 FROM household_members WHERE household_id = ?))
ON CONFLICT (household_id, user_id) DO UPDATE SET income_cents = excluded.income_cents
`

func (q *Queries) UpsertMember(ctx context.Context, arg HouseholdMember) error {
	_, err := q.db.ExecContext(ctx, upsertMember, arg.HouseholdID, arg.UserID, arg.IncomeCents, arg.HouseholdID)
	return err
}

const listMembers = `
SELECT household_id, user_id, income_cents FROM household_members
WHERE household_id = ?
ORDER BY position
`

func (q *Queries) ListMembers(ctx context.Context, householdID string) ([]HouseholdMember, error) {
	rows, err := q.db.QueryContext(ctx, listMembers, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []HouseholdMember
	for rows.Next() {
		var i HouseholdMember
		if err := rows.Scan(&i.HouseholdID, &i.UserID, &i.IncomeCents); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createBill = `
INSERT INTO bills (id, household_id, description, amount_cents, bill_date, created_by)
VALUES (?, ?, ?, ?, ?, ?)
`

func (q *Queries) CreateBill(ctx context.Context, arg Bill) error {
	_, err := q.db.ExecContext(ctx, createBill, arg.ID, arg.HouseholdID, arg.Description, arg.AmountCents, arg.BillDate, arg.CreatedBy)
	return err
}

const getBill = `
SELECT id, household_id, description, amount_cents, bill_date, created_by FROM bills
WHERE id = ?
`

func (q *Queries) GetBill(ctx context.Context, id string) (Bill, error) {
	var i Bill
	err := q.db.QueryRowContext(ctx, getBill, id).Scan(&i.ID, &i.HouseholdID, &i.Description, &i.AmountCents, &i.BillDate, &i.CreatedBy)
	return i, err
}

const listBills = `
SELECT id, household_id, description, amount_cents, bill_date, created_by FROM bills
WHERE household_id = ?
ORDER BY rowid
`

func (q *Queries) ListBills(ctx context.Context, householdID string) ([]Bill, error) {
	rows, err := q.db.QueryContext(ctx, listBills, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Bill
	for rows.Next() {
		var i Bill
		if err := rows.Scan(&i.ID, &i.HouseholdID, &i.Description, &i.AmountCents, &i.BillDate, &i.CreatedBy); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createContribution = `
INSERT INTO contributions (id, bill_id, household_id, description, strategy, due_date)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING
`

// CreateContribution reports false when the ID is already taken.
func (q *Queries) CreateContribution(ctx context.Context, arg Contribution) (bool, error) {
	res, err := q.db.ExecContext(ctx, createContribution, arg.ID, arg.BillID, arg.HouseholdID, arg.Description, arg.Strategy, arg.DueDate)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const listContributions = `
SELECT id, bill_id, household_id, description, strategy, due_date FROM contributions
WHERE household_id = ?
ORDER BY rowid
`

func (q *Queries) ListContributions(ctx context.Context, householdID string) ([]Contribution, error) {
	rows, err := q.db.QueryContext(ctx, listContributions, householdID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Contribution
	for rows.Next() {
		var i Contribution
		if err := rows.Scan(&i.ID, &i.BillID, &i.HouseholdID, &i.Description, &i.Strategy, &i.DueDate); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createMemberContribution = `
INSERT INTO member_contributions (id, contribution_id, member_id, amount_cents, status, paid_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`

// CreateMemberContribution reports false when the ID or the
// (contribution, member) pair is already taken.
func (q *Queries) CreateMemberContribution(ctx context.Context, arg MemberContribution) (bool, error) {
	res, err := q.db.ExecContext(ctx, createMemberContribution, arg.ID, arg.ContributionID, arg.MemberID, arg.AmountCents, arg.Status, arg.PaidAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const getMemberContribution = `
SELECT id, contribution_id, member_id, amount_cents, status, paid_at FROM member_contributions
WHERE id = ?
`

func (q *Queries) GetMemberContribution(ctx context.Context, id string) (MemberContribution, error) {
	var i MemberContribution
	err := q.db.QueryRowContext(ctx, getMemberContribution, id).Scan(&i.ID, &i.ContributionID, &i.MemberID, &i.AmountCents, &i.Status, &i.PaidAt)
	return i, err
}

const listMemberContributions = `
SELECT id, contribution_id, member_id, amount_cents, status, paid_at FROM member_contributions
WHERE member_id = ?
ORDER BY rowid
`

func (q *Queries) ListMemberContributions(ctx context.Context, memberID string) ([]MemberContribution, error) {
	rows, err := q.db.QueryContext(ctx, listMemberContributions, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MemberContribution
	for rows.Next() {
		var i MemberContribution
		if err := rows.Scan(&i.ID, &i.ContributionID, &i.MemberID, &i.AmountCents, &i.Status, &i.PaidAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const markMemberContributionPaid = `
UPDATE member_contributions
SET status = 'PAID', amount_cents = ?, paid_at = ?
WHERE id = ? AND status = 'PENDING'
`

type MarkPaidParams struct {
	ID          string
	AmountCents int64
	PaidAt      string
}

// MarkMemberContributionPaid reports false when no pending record matched.
func (q *Queries) MarkMemberContributionPaid(ctx context.Context, arg MarkPaidParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, markMemberContributionPaid, arg.AmountCents, arg.PaidAt, arg.ID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

const getState = `SELECT value FROM client_state WHERE key = ?`

func (q *Queries) GetState(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := q.db.QueryRowContext(ctx, getState, key).Scan(&value)
	return value, err
}

const setState = `
INSERT INTO client_state (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
`

func (q *Queries) SetState(ctx context.Context, key string, value []byte) error {
	_, err := q.db.ExecContext(ctx, setState, key, value)
	return err
}
