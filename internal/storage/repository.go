package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"opticash/internal/core"
	"opticash/internal/store"

	_ "modernc.org/sqlite"
)

const dateLayout = "2006-01-02"

var _ store.Store = (*SQLiteRepository)(nil)

// SQLiteRepository is a local store of households, bills and contributions.
// It also keeps client state such as the payment overlay.
type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("SQLite schema ready", "path", dbPath, "version", version)

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// SaveHousehold inserts or updates a household.
func (r *SQLiteRepository) SaveHousehold(ctx context.Context, h core.Household) error {
	err := r.queries.UpsertHousehold(ctx, UpsertHouseholdParams{
		ID:               h.ID,
		Name:             h.Name,
		Description:      h.Description,
		CurrencyCode:     h.CurrencyCode,
		RepresentativeID: h.RepresentativeID,
	})
	if err != nil {
		return fmt.Errorf("save household %s: %w", h.ID, err)
	}
	return nil
}

// SaveMember adds m to the end of its household roster, or updates its
// income when already present.
func (r *SQLiteRepository) SaveMember(ctx context.Context, m core.Member) error {
	var income sql.NullInt64
	if m.Income != nil {
		income = sql.NullInt64{Int64: m.Income.Cents, Valid: true}
	}
	err := r.queries.UpsertMember(ctx, HouseholdMember{HouseholdID: m.HouseholdID, UserID: m.UserID, IncomeCents: income})
	if err != nil {
		return fmt.Errorf("save member %s: %w", m.UserID, err)
	}
	return nil
}

// SaveBill stores a new bill, assigning an ID when empty.
func (r *SQLiteRepository) SaveBill(ctx context.Context, b core.Bill) (core.Bill, error) {
	if err := b.Validate(); err != nil {
		return core.Bill{}, fmt.Errorf("bill %s: %w", b.ID, err)
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := r.queries.CreateBill(ctx, Bill{
		ID:          b.ID,
		HouseholdID: b.HouseholdID,
		Description: b.Description,
		AmountCents: b.Amount.Cents,
		BillDate:    formatDate(b.Date),
		CreatedBy:   b.CreatedBy,
	})
	if err != nil {
		return core.Bill{}, fmt.Errorf("create bill: %w", err)
	}
	slog.InfoContext(ctx, "Bill saved to SQLite",
		"id", b.ID,
		"household_id", b.HouseholdID,
		"amount_cents", b.Amount.Cents)
	return b, nil
}

func (r *SQLiteRepository) ListBills(ctx context.Context, householdID string) ([]core.Bill, error) {
	rows, err := r.queries.ListBills(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	bills := make([]core.Bill, len(rows))
	for i, row := range rows {
		bills[i] = billFromRow(row)
	}
	return bills, nil
}

func (r *SQLiteRepository) GetBill(ctx context.Context, id string) (core.Bill, error) {
	row, err := r.queries.GetBill(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Bill{}, fmt.Errorf("bill %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.Bill{}, fmt.Errorf("get bill %s: %w", id, err)
	}
	return billFromRow(row), nil
}

func (r *SQLiteRepository) ListContributions(ctx context.Context, householdID string) ([]core.Contribution, error) {
	rows, err := r.queries.ListContributions(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	out := make([]core.Contribution, len(rows))
	for i, row := range rows {
		out[i] = core.Contribution{
			ID:          row.ID,
			BillID:      row.BillID,
			HouseholdID: row.HouseholdID,
			Description: row.Description,
			Strategy:    core.StrategyTag(row.Strategy),
			DueDate:     parseDate(row.DueDate),
		}
	}
	return out, nil
}

func (r *SQLiteRepository) CreateContribution(ctx context.Context, c core.Contribution) (core.Contribution, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	created, err := r.queries.CreateContribution(ctx, Contribution{
		ID:          c.ID,
		BillID:      c.BillID,
		HouseholdID: c.HouseholdID,
		Description: c.Description,
		Strategy:    string(c.Strategy),
		DueDate:     formatDate(c.DueDate),
	})
	if err != nil {
		return core.Contribution{}, fmt.Errorf("create contribution: %w", err)
	}
	if !created {
		return core.Contribution{}, fmt.Errorf("contribution %s: %w", c.ID, store.ErrConflict)
	}
	slog.InfoContext(ctx, "Contribution saved to SQLite",
		"id", c.ID,
		"bill_id", c.BillID,
		"strategy", c.Strategy)
	return c, nil
}

func (r *SQLiteRepository) ListMemberContributions(ctx context.Context, memberID string) ([]core.MemberContribution, error) {
	rows, err := r.queries.ListMemberContributions(ctx, memberID)
	if err != nil {
		return nil, fmt.Errorf("list member contributions: %w", err)
	}
	out := make([]core.MemberContribution, len(rows))
	for i, row := range rows {
		out[i] = memberContributionFromRow(row)
	}
	return out, nil
}

func (r *SQLiteRepository) CreateMemberContribution(ctx context.Context, mc core.MemberContribution) (core.MemberContribution, error) {
	if mc.ID == "" {
		mc.ID = uuid.NewString()
	}
	if mc.Status == "" {
		mc.Status = core.StatusPending
	}
	var paidAt sql.NullString
	if mc.PaidAt != nil {
		paidAt = sql.NullString{String: mc.PaidAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	created, err := r.queries.CreateMemberContribution(ctx, MemberContribution{
		ID:             mc.ID,
		ContributionID: mc.ContributionID,
		MemberID:       mc.MemberID,
		AmountCents:    mc.Amount.Cents,
		Status:         string(mc.Status),
		PaidAt:         paidAt,
	})
	if err != nil {
		return core.MemberContribution{}, fmt.Errorf("create member contribution: %w", err)
	}
	if !created {
		return core.MemberContribution{}, fmt.Errorf("member contribution %s: %w", mc.Key(), store.ErrConflict)
	}
	return mc, nil
}

// PayMemberContribution marks a pending record as paid inside a
// transaction.
func (r *SQLiteRepository) PayMemberContribution(ctx context.Context, id string, amount core.Money) (core.MemberContribution, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return core.MemberContribution{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()
	q := r.queries.WithTx(tx)

	row, err := q.GetMemberContribution(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MemberContribution{}, fmt.Errorf("member contribution %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return core.MemberContribution{}, fmt.Errorf("get member contribution %s: %w", id, err)
	}

	paid, err := memberContributionFromRow(row).MarkPaid(amount, r.now())
	if err != nil {
		if errors.Is(err, core.ErrAlreadyPaid) {
			return core.MemberContribution{}, fmt.Errorf("member contribution %s: %w: %w", id, store.ErrConflict, err)
		}
		return core.MemberContribution{}, err
	}

	updated, err := q.MarkMemberContributionPaid(ctx, MarkPaidParams{
		ID:          id,
		AmountCents: paid.Amount.Cents,
		PaidAt:      paid.PaidAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		return core.MemberContribution{}, fmt.Errorf("mark member contribution paid: %w", err)
	}
	if !updated {
		return core.MemberContribution{}, fmt.Errorf("member contribution %s: %w: %w", id, store.ErrConflict, core.ErrAlreadyPaid)
	}
	if err := tx.Commit(); err != nil {
		return core.MemberContribution{}, fmt.Errorf("commit payment: %w", err)
	}

	slog.InfoContext(ctx, "Member contribution marked as paid",
		"id", id,
		"amount_cents", paid.Amount.Cents)
	return paid, nil
}

func (r *SQLiteRepository) ListHouseholdMembers(ctx context.Context, householdID string) ([]core.Member, error) {
	rows, err := r.queries.ListMembers(ctx, householdID)
	if err != nil {
		return nil, fmt.Errorf("list household members: %w", err)
	}
	if len(rows) == 0 {
		exists, err := r.queries.HouseholdExists(ctx, householdID)
		if err != nil {
			return nil, fmt.Errorf("check household: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("household %s: %w", householdID, store.ErrNotFound)
		}
	}
	members := make([]core.Member, len(rows))
	for i, row := range rows {
		members[i] = core.Member{UserID: row.UserID, HouseholdID: row.HouseholdID}
		if row.IncomeCents.Valid {
			income := core.NewMoney(row.IncomeCents.Int64)
			members[i].Income = &income
		}
	}
	return members, nil
}

// Get implements overlay.KV.
func (r *SQLiteRepository) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := r.queries.GetState(ctx, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get state %s: %w", key, err)
	}
	return value, true, nil
}

// Set implements overlay.KV.
func (r *SQLiteRepository) Set(ctx context.Context, key string, value []byte) error {
	if err := r.queries.SetState(ctx, key, value); err != nil {
		return fmt.Errorf("set state %s: %w", key, err)
	}
	return nil
}

func billFromRow(row Bill) core.Bill {
	return core.Bill{
		ID:          row.ID,
		HouseholdID: row.HouseholdID,
		Description: row.Description,
		Amount:      core.NewMoney(row.AmountCents),
		Date:        parseDate(row.BillDate),
		CreatedBy:   row.CreatedBy,
	}
}

func memberContributionFromRow(row MemberContribution) core.MemberContribution {
	mc := core.MemberContribution{
		ID:             row.ID,
		ContributionID: row.ContributionID,
		MemberID:       row.MemberID,
		Amount:         core.NewMoney(row.AmountCents),
		Status:         core.ParseStatus(row.Status),
	}
	if row.PaidAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, row.PaidAt.String); err == nil {
			mc.PaidAt = &t
		}
	}
	return mc
}

func formatDate(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func parseDate(s sql.NullString) time.Time {
	if !s.Valid {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
