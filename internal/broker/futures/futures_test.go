package futures

import (
	"context"
	"errors"
	"testing"

	"trade-gateway/internal/account"
	"trade-gateway/internal/exchange"
	"trade-gateway/internal/order"
)

type fakeClient struct {
	balance   exchange.Balance
	positions []exchange.PositionDetail
	book      exchange.OrderBookSnapshot
	submitted []exchange.OrderRequest
	submitErr error
}

func (f *fakeClient) Market(symbol string) (string, error) {
	if symbol == "600000.SH" {
		return "BTC/USDT:USDT", nil
	}
	return "", exchange.ErrUnmappedSymbol
}

func (f *fakeClient) FetchBalance(ctx context.Context) (exchange.Balance, error) {
	return f.balance, nil
}

func (f *fakeClient) FetchPositions(ctx context.Context) ([]exchange.PositionDetail, error) {
	return f.positions, nil
}

func (f *fakeClient) FetchOrderBook(ctx context.Context, market string, depth int64) (exchange.OrderBookSnapshot, error) {
	return f.book, nil
}

func (f *fakeClient) SubmitOrder(ctx context.Context, req exchange.OrderRequest) (string, error) {
	f.submitted = append(f.submitted, req)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "ex-1", nil
}

func TestExecuteProportional_BuyUsesEquityCappedByFree(t *testing.T) {
	client := &fakeClient{balance: exchange.Balance{TotalEquity: 10000, FreeQuote: 2000}}
	acc := newAccount("ex", client, 0.001, nil)

	receipt, err := acc.ExecuteProportional(context.Background(), account.ProportionalOrder{
		Side: order.Buy, Symbol: "600000", Price: 50000, PriceType: order.PriceLimit, Pct: 0.5,
	})
	if err != nil {
		t.Fatalf("ExecuteProportional returned error: %v", err)
	}
	req := client.submitted[0]
	if req.Type != "limit" || req.Price != 50000 || req.Amount != 0.04 {
		t.Fatalf("unexpected order request %+v", req)
	}
	if receipt.Quantity != 40 || receipt.Amount != 0.04 || receipt.OrderID != "ex-1" {
		t.Errorf("unexpected receipt %+v", receipt)
	}
}

func TestExecuteProportional_SellReducesLong(t *testing.T) {
	client := &fakeClient{
		positions: []exchange.PositionDetail{{Symbol: "600000.SH", Side: "LONG", Size: 0.5}},
		book: exchange.OrderBookSnapshot{
			Bids: []exchange.OrderBookLevel{{Price: 59990}},
			Asks: []exchange.OrderBookLevel{{Price: 60010}},
		},
	}
	acc := newAccount("ex", client, 1, nil)

	_, err := acc.ExecuteProportional(context.Background(), account.ProportionalOrder{
		Side: order.Sell, Symbol: "600000.SH", PriceType: order.PriceLatest, Pct: 0.5,
	})
	if err != nil {
		t.Fatalf("ExecuteProportional returned error: %v", err)
	}
	req := client.submitted[0]
	if req.Type != "market" || req.Amount != 0.25 || req.Params["reduceOnly"] != true {
		t.Errorf("unexpected order request %+v", req)
	}
}

func TestExecuteFixed_ScalesQuantity(t *testing.T) {
	client := &fakeClient{}
	acc := newAccount("ex", client, 0.01, nil)

	receipt, err := acc.ExecuteFixed(context.Background(), account.FixedOrder{
		Side: order.Buy, Symbol: "600000.SH", Price: 100, PriceType: order.PriceOwnBest, Quantity: 300,
	})
	if err != nil {
		t.Fatalf("ExecuteFixed returned error: %v", err)
	}
	if req := client.submitted[0]; req.Amount != 3 || req.Type != "market" {
		t.Errorf("unexpected order request %+v", req)
	}
	if receipt.Value != 300 {
		t.Errorf("expected value 300, got %f", receipt.Value)
	}
}

func TestExecute_Errors(t *testing.T) {
	client := &fakeClient{}
	acc := newAccount("ex", client, 1, nil)
	ctx := context.Background()

	_, err := acc.ExecuteFixed(ctx, account.FixedOrder{Side: order.Buy, Symbol: "000001.SZ", Price: 1, Quantity: 100})
	if !errors.Is(err, exchange.ErrUnmappedSymbol) {
		t.Errorf("expected ErrUnmappedSymbol, got %v", err)
	}

	_, err = acc.ExecuteFixed(ctx, account.FixedOrder{Side: order.Sell, Symbol: "600000.SH", Price: 1, Quantity: 100})
	if !errors.Is(err, ErrNoPosition) {
		t.Errorf("expected ErrNoPosition, got %v", err)
	}

	_, err = acc.ExecuteProportional(ctx, account.ProportionalOrder{Side: order.Buy, Symbol: "600000.SH", Price: 1, Pct: 0.5})
	if !errors.Is(err, ErrZeroAmount) {
		t.Errorf("expected ErrZeroAmount with empty balance, got %v", err)
	}

	client.submitErr = errors.New("rejected")
	if _, err := acc.ExecuteFixed(ctx, account.FixedOrder{Side: order.Buy, Symbol: "600000.SH", Price: 1, Quantity: 1}); err == nil {
		t.Error("expected submit error")
	}
}

func TestPortfolioAndPositions(t *testing.T) {
	client := &fakeClient{
		balance: exchange.Balance{TotalEquity: 11000, FreeQuote: 8000, MarginUsed: 3000, Unrealized: 1000},
		positions: []exchange.PositionDetail{
			{Symbol: "600000.SH", Side: "LONG", Size: 0.2, EntryPrice: 50000, MarkPrice: 55000, PositionValue: 11000, UnrealizedPnl: 1000},
		},
	}
	acc := newAccount("ex", client, 0.001, nil)
	ctx := context.Background()

	portfolio, err := acc.Portfolio(ctx)
	if err != nil {
		t.Fatalf("Portfolio returned error: %v", err)
	}
	if portfolio.TotalAsset != 11000 || portfolio.MarketValue != 11000 || portfolio.ProfitRatio != 10 {
		t.Errorf("unexpected portfolio %+v", portfolio)
	}

	positions, err := acc.Positions(ctx)
	if err != nil {
		t.Fatalf("Positions returned error: %v", err)
	}
	if len(positions) != 1 || positions[0].Volume != 200 || positions[0].CurrentPrice != 55000 {
		t.Errorf("unexpected positions %+v", positions)
	}
}
