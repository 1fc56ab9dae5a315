package balance

import (
	"errors"
	"testing"
	"time"

	"github.com/okoshkina/benefit-system/internal/model"
)

var testRates = RateConfig{
	PerPersonCents:      2500,
	InfantModifierCents: 500,
}

func voucher(id int64, state model.VoucherState, age time.Duration) model.Voucher {
	return model.Voucher{
		ID:         id,
		Type:       model.VoucherTypeGrocery,
		State:      state,
		Multiplier: 1,
		CreatedAt:  time.Now().Add(-age),
	}
}

func TestVoucherAmount_InfantModifier(t *testing.T) {
	p := model.Participant{Adults: 2, Children: 1, Infants: 1}

	if got := BaseBalance(p, testRates); got != 10000 {
		t.Fatalf("BaseBalance = %d, want 10000", got)
	}
	// Базовая ставка плюс надбавка за младенца.
	if got := VoucherAmount(p, testRates); got != 10500 {
		t.Fatalf("VoucherAmount = %d, want 10500", got)
	}
}

func TestAvailable_CapsAtTwoVouchers(t *testing.T) {
	snap := Snapshot{
		Participant: model.Participant{Adults: 2},
		Vouchers: []model.Voucher{
			voucher(1, model.VoucherStateApplied, 3*time.Hour),
			voucher(2, model.VoucherStateApplied, 2*time.Hour),
			voucher(3, model.VoucherStateApplied, time.Hour),
		},
	}

	if got := Available(snap, testRates); got != 10000 {
		t.Fatalf("Available = %d, want 10000 (two vouchers of 5000)", got)
	}

	spendable := SpendableVouchers(snap)
	if len(spendable) != 2 {
		t.Fatalf("spendable vouchers = %d, want 2", len(spendable))
	}
	if spendable[0].ID != 1 || spendable[1].ID != 2 {
		t.Fatalf("spendable order = %d,%d, want oldest first 1,2", spendable[0].ID, spendable[1].ID)
	}
}

func TestAvailable_AppliesMultiplier(t *testing.T) {
	v1 := voucher(1, model.VoucherStateApplied, 2*time.Hour)
	v1.PauseFlag = true
	v1.Multiplier = 2
	v2 := voucher(2, model.VoucherStateApplied, time.Hour)
	v2.PauseFlag = true
	v2.Multiplier = 2

	snap := Snapshot{
		Participant:     model.Participant{Adults: 2},
		Vouchers:        []model.Voucher{v1, v2},
		PauseGateActive: true,
	}

	if got := Available(snap, testRates); got != 20000 {
		t.Fatalf("Available with multiplier 2 = %d, want 20000", got)
	}
	// Полный баланс считает те же эффективные номиналы.
	if got := Full(snap, testRates); got != 20000 {
		t.Fatalf("Full with multiplier 2 = %d, want 20000", got)
	}
}

func TestFull_NeverBelowAvailable(t *testing.T) {
	flagged := func(id int64, age time.Duration) model.Voucher {
		v := voucher(id, model.VoucherStateApplied, age)
		v.PauseFlag = true
		v.Multiplier = 2
		return v
	}

	snaps := map[string]Snapshot{
		"no pause": {
			Participant: model.Participant{Adults: 2},
			Vouchers: []model.Voucher{
				voucher(1, model.VoucherStateApplied, 2*time.Hour),
				voucher(2, model.VoucherStateApplied, time.Hour),
			},
		},
		"both flagged": {
			Participant:     model.Participant{Adults: 2},
			Vouchers:        []model.Voucher{flagged(1, 2*time.Hour), flagged(2, time.Hour)},
			PauseGateActive: true,
		},
		"one flagged": {
			Participant: model.Participant{Adults: 2},
			Vouchers: []model.Voucher{
				flagged(1, 2*time.Hour),
				voucher(2, model.VoucherStateApplied, time.Hour),
			},
			PauseGateActive: true,
		},
		"three vouchers one flagged": {
			Participant: model.Participant{Adults: 1, Infants: 1},
			Vouchers: []model.Voucher{
				voucher(1, model.VoucherStatePending, 3*time.Hour),
				flagged(2, 2*time.Hour),
				voucher(3, model.VoucherStateApplied, time.Hour),
			},
			PauseGateActive: true,
		},
	}

	for name, snap := range snaps {
		full, available := Full(snap, testRates), Available(snap, testRates)
		if full < available {
			t.Errorf("%s: full %d is below available %d", name, full, available)
		}
	}

	both := snaps["both flagged"]
	if full, available := Full(both, testRates), Available(both, testRates); full != 20000 || available != 20000 {
		t.Fatalf("both flagged: full %d available %d, want 20000 each", full, available)
	}
}

func TestAvailable_GateFiltersUnflagged(t *testing.T) {
	flagged := voucher(1, model.VoucherStateApplied, 2*time.Hour)
	flagged.PauseFlag = true
	flagged.Multiplier = 2

	snap := Snapshot{
		Participant:     model.Participant{Adults: 1},
		Vouchers:        []model.Voucher{flagged, voucher(2, model.VoucherStateApplied, time.Hour)},
		PauseGateActive: true,
	}

	spendable := SpendableVouchers(snap)
	if len(spendable) != 1 || spendable[0].ID != 1 {
		t.Fatalf("only the flagged voucher must be spendable, got %+v", spendable)
	}
	if got := Available(snap, testRates); got != 5000 {
		t.Fatalf("Available = %d, want 5000", got)
	}
}

func TestFull_CountsPendingAndApplied(t *testing.T) {
	snap := Snapshot{
		Participant: model.Participant{Adults: 2},
		Vouchers: []model.Voucher{
			voucher(1, model.VoucherStatePending, 4*time.Hour),
			voucher(2, model.VoucherStateApplied, 3*time.Hour),
			voucher(3, model.VoucherStateApplied, 2*time.Hour),
			voucher(4, model.VoucherStateConsumed, time.Hour),
			voucher(5, model.VoucherStateExpired, time.Hour),
		},
	}

	if got := Full(snap, testRates); got != 15000 {
		t.Fatalf("Full = %d, want 15000", got)
	}

	if full, available := Full(snap, testRates), Available(snap, testRates); full < available {
		t.Fatalf("full %d must not be less than available %d", full, available)
	}
}

func TestSummary_HygieneIsThirdOfAvailable(t *testing.T) {
	snap := Snapshot{
		Participant: model.Participant{Adults: 2, Children: 1},
		Vouchers: []model.Voucher{
			voucher(1, model.VoucherStateApplied, 2*time.Hour),
			voucher(2, model.VoucherStateApplied, time.Hour),
		},
	}

	summary, err := Summary(snap, testRates)
	if err != nil {
		t.Fatalf("Summary error: %v", err)
	}
	if summary.AvailableCents != 15000 {
		t.Fatalf("available = %d, want 15000", summary.AvailableCents)
	}
	if summary.HygieneCents != summary.AvailableCents/3 {
		t.Fatalf("hygiene = %d, want %d", summary.HygieneCents, summary.AvailableCents/3)
	}
	if summary.GoFreshCents != 0 {
		t.Fatalf("go-fresh disabled, want 0, got %d", summary.GoFreshCents)
	}
}

func TestSummary_ConfigurationMissing(t *testing.T) {
	snap := Snapshot{
		Participant: model.Participant{Adults: 2},
		Vouchers:    []model.Voucher{voucher(1, model.VoucherStateApplied, time.Hour)},
	}

	summary, err := Summary(snap, RateConfig{})
	if !errors.Is(err, ErrConfigurationMissing) {
		t.Fatalf("expected ErrConfigurationMissing, got %v", err)
	}
	if summary != (model.BalanceSummary{}) {
		t.Fatalf("balances must be zero without a rate, got %+v", summary)
	}
}

func TestGoFresh_Tiers(t *testing.T) {
	cfg := testRates
	cfg.GoFreshEnabled = true
	cfg.GoFreshSmallMax = 2
	cfg.GoFreshMediumMax = 4
	cfg.GoFreshSmallCents = 1000
	cfg.GoFreshMediumCents = 1500
	cfg.GoFreshLargeCents = 2000

	tests := []struct {
		adults, children int
		want             int64
	}{
		{1, 0, 1000},
		{2, 0, 1000},
		{2, 1, 1500},
		{2, 2, 1500},
		{2, 3, 2000},
	}

	for _, tt := range tests {
		p := model.Participant{Adults: tt.adults, Children: tt.children}
		if got := GoFresh(p, cfg); got != tt.want {
			t.Errorf("GoFresh(household %d) = %d, want %d", p.HouseholdSize(), got, tt.want)
		}
	}
}
