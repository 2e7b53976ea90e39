package account

import (
	"context"
	"errors"
	"math"
	"testing"
)

type stubTrader struct{}

func (stubTrader) ExecuteProportional(context.Context, ProportionalOrder) (Receipt, error) {
	return Receipt{}, nil
}

func (stubTrader) ExecuteFixed(context.Context, FixedOrder) (Receipt, error) {
	return Receipt{}, nil
}

func TestRegistry(t *testing.T) {
	reg, err := NewRegistry(
		Account{ID: "a", Nickname: "主账户", Trader: stubTrader{}},
		Account{ID: "b", Trader: stubTrader{}},
		Account{ID: "c", Index: 99, Trader: stubTrader{}},
	)
	if err != nil {
		t.Fatalf("NewRegistry returned error: %v", err)
	}
	if reg.Len() != 3 {
		t.Fatalf("expected 3 accounts, got %d", reg.Len())
	}

	all := reg.All()
	for i, acc := range all {
		if acc.Index != i {
			t.Fatalf("account %s has index %d, want %d", acc.ID, acc.Index, i)
		}
	}
	if all[0].DisplayName() != "主账户" || all[1].DisplayName() != "账户2" {
		t.Fatalf("unexpected display names: %q %q", all[0].DisplayName(), all[1].DisplayName())
	}

	all[0].ID = "mutated"
	if acc, _ := reg.Get(0); acc.ID != "a" {
		t.Fatal("All must return a copy")
	}

	one := 1
	selected, err := reg.Select(&one)
	if err != nil || len(selected) != 1 || selected[0].ID != "b" {
		t.Fatalf("unexpected selection: %+v %v", selected, err)
	}
	out := 3
	if _, err := reg.Select(&out); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected ErrIndexOutOfRange, got %v", err)
	}
	if selected, _ := reg.Select(nil); len(selected) != 3 {
		t.Fatalf("expected all accounts, got %d", len(selected))
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	if _, err := NewRegistry(Account{ID: "a"}); err == nil {
		t.Fatal("expected error for missing trader")
	}
	if _, err := NewRegistry(Account{ID: "a", Trader: stubTrader{}}, Account{ID: "a", Trader: stubTrader{}}); err == nil {
		t.Fatal("expected error for duplicate ids")
	}
}

func TestPositionEnrich(t *testing.T) {
	p := Position{Symbol: "600000.SH", Volume: 1000, CanUseVolume: 1000, AvgPrice: 10}

	got := p.Enrich(11, "浦发银行")
	if got.MarketValue != 10000 {
		t.Fatalf("expected fallback market value 10000, got %v", got.MarketValue)
	}
	if got.CurrentPrice != 11 || got.Name != "浦发银行" {
		t.Fatalf("unexpected price/name: %v %q", got.CurrentPrice, got.Name)
	}
	if math.Abs(got.Profit-1000) > 1e-9 || math.Abs(got.ProfitRatio-10) > 1e-9 {
		t.Fatalf("unexpected profit: %v %v", got.Profit, got.ProfitRatio)
	}

	fallback := p.Enrich(0, "")
	if fallback.CurrentPrice != 10 || fallback.Name != "600000.SH" || fallback.Profit != 0 {
		t.Fatalf("unexpected fallback enrichment: %+v", fallback)
	}

	noCost := Position{Symbol: "x", Volume: 100, MarketValue: 500}.Enrich(6, "")
	if noCost.Profit != 0 || noCost.ProfitRatio != 0 || noCost.MarketValue != 500 {
		t.Fatalf("expected zero profit without cost, got %+v", noCost)
	}
}

func TestOrderStatus(t *testing.T) {
	if StatusPartSucc.String() != "部成" || OrderStatus(1).String() != "未知" {
		t.Fatalf("unexpected status names")
	}
	if !StatusReported.Cancelable() || StatusSucceeded.Cancelable() {
		t.Fatal("unexpected cancelable flags")
	}
}
