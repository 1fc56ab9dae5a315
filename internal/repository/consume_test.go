package repository

import (
	"errors"
	"testing"
)

func TestPlanConsumption_SingleVoucherCovers(t *testing.T) {
	// Два ваучера по 5000 с множителем 2: эффективные номиналы 10000.
	apps, err := planConsumption([]int64{10000, 10000}, 6300)
	if err != nil {
		t.Fatalf("planConsumption error: %v", err)
	}
	if len(apps) != 1 || apps[0] != 6300 {
		t.Fatalf("applications = %v, want [6300]", apps)
	}
}

func TestPlanConsumption_TwoVouchers(t *testing.T) {
	apps, err := planConsumption([]int64{10000, 10000}, 11300)
	if err != nil {
		t.Fatalf("planConsumption error: %v", err)
	}
	if len(apps) != 2 {
		t.Fatalf("applications = %v, want two entries", apps)
	}
	if apps[0] != 10000 || apps[1] != 1300 {
		t.Fatalf("applications = %v, want [10000 1300]", apps)
	}
	if apps[0]+apps[1] != 11300 {
		t.Fatalf("applications must sum to the order total")
	}
}

func TestPlanConsumption_ExceedsBoth(t *testing.T) {
	// Без множителя два ваучера по 5000 не покрывают 10100.
	_, err := planConsumption([]int64{5000, 5000}, 10100)
	if !errors.Is(err, ErrInsufficientBenefit) {
		t.Fatalf("expected ErrInsufficientBenefit, got %v", err)
	}
}

func TestPlanConsumption_ExactBoundary(t *testing.T) {
	apps, err := planConsumption([]int64{5000, 5000}, 10000)
	if err != nil {
		t.Fatalf("planConsumption error: %v", err)
	}
	if len(apps) != 2 || apps[0] != 5000 || apps[1] != 5000 {
		t.Fatalf("applications = %v, want [5000 5000]", apps)
	}
}

func TestPlanConsumption_SingleVoucherOnly(t *testing.T) {
	apps, err := planConsumption([]int64{5000}, 4000)
	if err != nil {
		t.Fatalf("planConsumption error: %v", err)
	}
	if len(apps) != 1 || apps[0] != 4000 {
		t.Fatalf("applications = %v, want [4000]", apps)
	}

	_, err = planConsumption([]int64{5000}, 5001)
	if !errors.Is(err, ErrInsufficientBenefit) {
		t.Fatalf("expected ErrInsufficientBenefit for total above single voucher, got %v", err)
	}
}

func TestPlanConsumption_NoVouchers(t *testing.T) {
	_, err := planConsumption(nil, 100)
	if !errors.Is(err, ErrInsufficientBenefit) {
		t.Fatalf("expected ErrInsufficientBenefit, got %v", err)
	}
}
