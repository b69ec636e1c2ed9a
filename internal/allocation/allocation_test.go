package allocation

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opticash/internal/core"
)

func roster(ids ...string) []core.Member {
	out := make([]core.Member, len(ids))
	for i, id := range ids {
		out[i] = core.Member{UserID: id, HouseholdID: "h-1"}
	}
	return out
}

func withIncomes(members []core.Member, cents ...int64) []core.Member {
	for i := range members {
		income := core.NewMoney(cents[i])
		members[i].Income = &income
	}
	return members
}

func amounts(shares []Share) []int64 {
	out := make([]int64, len(shares))
	for i, s := range shares {
		out[i] = s.Amount.Cents
	}
	return out
}

func TestResolve(t *testing.T) {
	for _, tag := range []core.StrategyTag{"EQUAL", "equal", " INCOME_BASED "} {
		s, err := Resolve(tag)
		require.NoError(t, err, tag)
		assert.NotNil(t, s)
	}

	_, err := Resolve("PERCENTAGE")
	require.ErrorIs(t, err, core.ErrUnknownStrategy)
	assert.Contains(t, err.Error(), "PERCENTAGE")

	assert.ElementsMatch(t, []core.StrategyTag{core.StrategyEqual, core.StrategyIncomeBased}, Tags())
}

func TestEqualAllocate(t *testing.T) {
	tests := []struct {
		name   string
		total  int64
		roster []core.Member
		want   []int64
	}{
		{"100.00 among three", 10000, roster("a", "b", "c"), []int64{3334, 3333, 3333}},
		{"exact division", 9000, roster("a", "b", "c"), []int64{3000, 3000, 3000}},
		{"remainder of two", 1001, roster("a", "b", "c"), []int64{334, 334, 333}},
		{"single member", 4999, roster("a"), []int64{4999}},
		{"fewer cents than members", 2, roster("a", "b", "c"), []int64{1, 1, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := Equal{}.Allocate(core.NewMoney(tt.total), tt.roster)
			require.NoError(t, err)
			assert.Equal(t, tt.want, amounts(shares))
			for i, s := range shares {
				assert.Equal(t, tt.roster[i].UserID, s.MemberID)
			}
		})
	}
}

func TestEqualAllocateErrors(t *testing.T) {
	_, err := Equal{}.Allocate(core.NewMoney(0), roster("a"))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	_, err = Equal{}.Allocate(core.NewMoney(100), nil)
	assert.ErrorIs(t, err, core.ErrEmptyRoster)
}

func TestIncomeBasedAllocate(t *testing.T) {
	tests := []struct {
		name    string
		total   int64
		roster  []core.Member
		want    []int64
		wantErr error
	}{
		{
			name:   "90.00 with incomes 1000/2000/3000",
			total:  9000,
			roster: withIncomes(roster("a", "b", "c"), 100000, 200000, 300000),
			want:   []int64{1500, 3000, 4500},
		},
		{
			name:   "thirds hand the lost cent to the top earner",
			total:  10000,
			roster: withIncomes(roster("a", "b", "c"), 100000, 100000, 100000),
			want:   []int64{3334, 3333, 3333},
		},
		{
			name:   "tie on the half cent goes to the lowest member id",
			total:  1,
			roster: withIncomes(roster("b", "a"), 500, 500),
			want:   []int64{0, 1},
		},
		{
			name:   "excess cent removed from the lowest member id",
			total:  3,
			roster: withIncomes(roster("a", "b"), 500, 500),
			want:   []int64{1, 2},
		},
		{
			name: "missing income counts as zero",
			total: 5000,
			roster: func() []core.Member {
				r := withIncomes(roster("a", "b"), 100000, 0)
				r[1].Income = nil
				return r
			}(),
			want: []int64{5000, 0},
		},
		{
			name:    "no income data",
			total:   9000,
			roster:  roster("a", "b", "c"),
			wantErr: core.ErrInsufficientData,
		},
		{
			name:    "all incomes zero",
			total:   9000,
			roster:  withIncomes(roster("a", "b"), 0, 0),
			wantErr: core.ErrInsufficientData,
		},
		{
			name:    "negative income",
			total:   9000,
			roster:  withIncomes(roster("a", "b"), -1, 100),
			wantErr: core.ErrInvalidAmount,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shares, err := IncomeBased{}.Allocate(core.NewMoney(tt.total), tt.roster)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, shares)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, amounts(shares))
		})
	}
}

func TestEqualProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 500; iter++ {
		total := rng.Int63n(10_000_000) + 1
		n := rng.Intn(12) + 1
		ids := make([]string, n)
		for i := range ids {
			ids[i] = fmt.Sprintf("m-%02d", i)
		}

		shares, err := Equal{}.Allocate(core.NewMoney(total), roster(ids...))
		require.NoError(t, err)
		require.Len(t, shares, n)

		minC, maxC := shares[0].Amount.Cents, shares[0].Amount.Cents
		for _, s := range shares {
			minC = min(minC, s.Amount.Cents)
			maxC = max(maxC, s.Amount.Cents)
		}
		require.Equal(t, total, sumShares(shares).Cents, "total %d n %d", total, n)
		require.LessOrEqual(t, maxC-minC, int64(1))
	}
}

func TestIncomeBasedProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		total := rng.Int63n(10_000_000) + 1
		n := rng.Intn(8) + 1
		ids := make([]string, n)
		incomes := make([]int64, n)
		var sum int64
		for i := range ids {
			ids[i] = fmt.Sprintf("m-%02d", rng.Intn(50))
			incomes[i] = rng.Int63n(1_000_000)
			sum += incomes[i]
		}
		if sum == 0 {
			incomes[0] = 1
			sum = 1
		}

		shares, err := IncomeBased{}.Allocate(core.NewMoney(total), withIncomes(roster(ids...), incomes...))
		require.NoError(t, err)
		require.Equal(t, total, sumShares(shares).Cents)

		for i, s := range shares {
			// |share - total*income/sum| <= 1  <=>  |share*sum - total*income| <= sum
			dev := s.Amount.Cents*sum - total*incomes[i]
			if dev < 0 {
				dev = -dev
			}
			require.LessOrEqual(t, dev, sum, "member %d share %d total %d incomes %v", i, s.Amount.Cents, total, incomes)
		}
	}
}

func TestCreateAllocation(t *testing.T) {
	bill := core.Bill{ID: "b-1", HouseholdID: "h-1", Amount: core.NewMoney(10000)}
	meta := core.Contribution{ID: "c-1", BillID: "b-1", HouseholdID: "h-1", Strategy: core.StrategyEqual}

	records, err := CreateAllocation(bill, meta, roster("a", "b", "c"), core.StrategyEqual)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		assert.Equal(t, "c-1", r.ContributionID)
		assert.Equal(t, []string{"a", "b", "c"}[i], r.MemberID)
		assert.Equal(t, core.StatusPending, r.Status)
		assert.Nil(t, r.PaidAt)
	}
	assert.True(t, Unassigned(bill, records).IsZero())
	assert.Equal(t, int64(3334), records[0].Amount.Cents)
}

func TestCreateAllocationErrors(t *testing.T) {
	bill := core.Bill{ID: "b-1", Amount: core.NewMoney(9000)}
	meta := core.Contribution{ID: "c-1"}

	tests := []struct {
		name    string
		bill    core.Bill
		roster  []core.Member
		tag     core.StrategyTag
		wantErr error
	}{
		{"unknown strategy", bill, roster("a"), "RANDOM", core.ErrUnknownStrategy},
		{"zero amount", core.Bill{ID: "b-2"}, roster("a"), core.StrategyEqual, core.ErrInvalidAmount},
		{"negative amount", core.Bill{ID: "b-3", Amount: core.NewMoney(-5)}, roster("a"), core.StrategyEqual, core.ErrInvalidAmount},
		{"empty roster", bill, nil, core.StrategyEqual, core.ErrEmptyRoster},
		{"duplicate member", bill, roster("a", "a"), core.StrategyEqual, core.ErrDuplicateMember},
		{"income based without incomes", bill, roster("a", "b"), core.StrategyIncomeBased, core.ErrInsufficientData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := CreateAllocation(tt.bill, meta, tt.roster, tt.tag)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, records)
		})
	}
}

func TestUnassigned(t *testing.T) {
	bill := core.Bill{Amount: core.NewMoney(10000)}
	records := []core.MemberContribution{{Amount: core.NewMoney(3000)}, {Amount: core.NewMoney(3000)}}
	assert.Equal(t, int64(4000), Unassigned(bill, records).Cents)
}
