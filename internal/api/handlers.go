package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/sourcegraph/conc/iter"
	"go.uber.org/zap"

	"trade-gateway/internal/account"
	"trade-gateway/internal/auth"
	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/order"
)

// positionLookups 持仓补全行情时的最大并发数。
const positionLookups = 8

type tradeResponse struct {
	Message      string             `json:"message"`
	RequestID    string             `json:"request_id"`
	Operation    order.Operation    `json:"operation"`
	SizingMode   order.SizingMode   `json:"sizing_mode"`
	SizingValue  interface{}        `json:"sizing_value"`
	StrategyName string             `json:"strategy_name"`
	Results      []dispatch.Outcome `json:"results"`
}

type fanoutResponse struct {
	Message   string             `json:"message"`
	RequestID string             `json:"request_id"`
	Results   []dispatch.Outcome `json:"results"`
}

type reverseRepoRequest struct {
	TraderIndex   *json.Number `json:"trader_index"`
	ReserveAmount *json.Number `json:"reserve_amount"`
}

type reverseRepoResponse struct {
	Message       string             `json:"message"`
	RequestID     string             `json:"request_id"`
	ReserveAmount float64            `json:"reserve_amount"`
	Results       []dispatch.Outcome `json:"results"`
}

type accountInfo struct {
	Index     int    `json:"index"`
	AccountID string `json:"account_id"`
	NickName  string `json:"nick_name"`
}

type orderRequest struct {
	OrderID        json.RawMessage `json:"order_id"`
	TraderIndex    *json.Number    `json:"trader_index"`
	CancelableOnly bool            `json:"cancelable_only"`
}

// decodeBody 解析 JSON 请求体，空请求体保持零值。
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return auth.ErrBodyTooLarge
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"accounts": s.engine.Registry().Len(),
	})
}

func (s *Server) handleOuterTrade(w http.ResponseWriter, r *http.Request) {
	operation := mux.Vars(r)["operation"]
	if _, err := order.ParseOperation(operation); err != nil {
		s.writeFailure(w, r, err)
		return
	}

	var raw order.RawOrder
	if err := decodeBody(r, &raw); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	intent, err := s.resolver.Resolve(operation, raw)
	if err != nil {
		s.logger.Info("下单参数校验失败", zap.String("operation", operation), zap.Error(err))
		s.writeFailure(w, r, err)
		return
	}

	s.logger.Info("开始执行外部交易",
		zap.String("request_id", dispatch.RequestID(r.Context())),
		zap.String("operation", string(intent.Operation)),
		zap.String("symbol", intent.Symbol),
		zap.Float64("price", intent.Price),
		zap.String("sizing_mode", string(intent.Sizing.Mode())),
		zap.Any("sizing_value", intent.Sizing.Value()),
		zap.String("strategy", intent.Strategy),
	)

	result, err := s.engine.Dispatch(r.Context(), intent)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	payload := intentPayload(r.Context(), intent, result)
	s.journal.RecordDispatch(r.Context(), payload)
	s.notifier.NotifyDispatch(r.Context(), fmt.Sprintf("%s交易执行完成", intent.Operation), payload)
	writeJSON(w, http.StatusOK, tradeResponse{
		Message:      fmt.Sprintf("%s交易执行完成", intent.Operation),
		RequestID:    result.RequestID,
		Operation:    intent.Operation,
		SizingMode:   intent.Sizing.Mode(),
		SizingValue:  intent.Sizing.Value(),
		StrategyName: intent.Strategy,
		Results:      result.Outcomes,
	})
}

// handleAllIn 以比例 1 全仓买入，价格字段为 cur_price。
func (s *Server) handleAllIn(w http.ResponseWriter, r *http.Request) {
	var raw order.RawOrder
	if err := decodeBody(r, &raw); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	allIn := order.RawOrder{
		Symbol:       raw.Symbol,
		TradePrice:   raw.TradePrice,
		CurPrice:     raw.CurPrice,
		PriceType:    raw.PriceType,
		StrategyName: raw.StrategyName,
		TraderIndex:  raw.TraderIndex,
		Proportion:   order.Number("1"),
	}
	intent, err := s.resolver.Resolve(string(order.Buy), allIn)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	result, err := s.engine.Dispatch(r.Context(), intent)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	payload := intentPayload(r.Context(), intent, result)
	s.journal.RecordDispatch(r.Context(), payload)
	s.notifier.NotifyDispatch(r.Context(), "全仓买入完成", payload)
	writeJSON(w, http.StatusOK, fanoutResponse{
		Message:   "全仓买入完成",
		RequestID: result.RequestID,
		Results:   result.Outcomes,
	})
}

// handleReverseRepo 各账户保留 reserve_amount 后，剩余资金买入逆回购。
func (s *Server) handleReverseRepo(w http.ResponseWriter, r *http.Request) {
	var req reverseRepoRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	target, err := order.ParseAccountIndex(req.TraderIndex, s.engine.Registry().Len(), false)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	reserve, err := order.ParseReserveAmount(req.ReserveAmount)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	s.logger.Info("开始执行逆回购",
		zap.String("request_id", dispatch.RequestID(r.Context())),
		zap.Float64("reserve_amount", reserve),
	)
	result, err := s.engine.ReverseRepo(r.Context(), reserve, target)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	payload := journalPayload(r.Context(), order.Buy, result)
	payload.Symbol = dispatch.ReverseRepoSymbol
	payload.Strategy = "逆回购"
	s.journal.RecordDispatch(r.Context(), payload)
	s.notifier.NotifyDispatch(r.Context(), "逆回购执行完成", payload)
	writeJSON(w, http.StatusOK, reverseRepoResponse{
		Message:       "逆回购执行完成",
		RequestID:     result.RequestID,
		ReserveAmount: reserve,
		Results:       result.Outcomes,
	})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	all := s.engine.Registry().All()
	accounts := make([]accountInfo, 0, len(all))
	for _, acc := range all {
		accounts = append(accounts, accountInfo{
			Index:     acc.Index,
			AccountID: acc.ID,
			NickName:  acc.DisplayName(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"accounts": accounts})
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	reader, err := s.portfolioReader(mux.Vars(r)["trader_index"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	portfolio, err := reader.Portfolio(r.Context())
	if err != nil {
		s.writeFailure(w, r, fmt.Errorf("api: 获取资产信息失败: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"portfolio": portfolio})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	reader, err := s.portfolioReader(mux.Vars(r)["trader_index"])
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	positions, err := reader.Positions(r.Context())
	if err != nil {
		s.writeFailure(w, r, fmt.Errorf("api: 获取持仓失败: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"positions": s.enrichPositions(r.Context(), positions)})
}

// enrichPositions 并发查询最新价与名称，查询失败时以成本价和代码代替。
func (s *Server) enrichPositions(ctx context.Context, positions []account.Position) []account.Position {
	if s.market == nil {
		out := make([]account.Position, len(positions))
		for i, p := range positions {
			out[i] = p.Enrich(0, "")
		}
		return out
	}
	mapper := iter.Mapper[account.Position, account.Position]{MaxGoroutines: positionLookups}
	return mapper.Map(positions, func(p *account.Position) account.Position {
		last, err := s.market.LastPrice(ctx, p.Symbol)
		if err != nil {
			last = 0
		}
		name, err := s.market.InstrumentName(ctx, p.Symbol)
		if err != nil {
			name = ""
		}
		return p.Enrich(last, name)
	})
}

func (s *Server) handleCancelAll(side order.Operation) http.HandlerFunc {
	message := "取消所有买单完成"
	if side == order.Sell {
		message = "取消所有卖单完成"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req orderRequest
		if err := decodeBody(r, &req); err != nil {
			s.writeFailure(w, r, err)
			return
		}
		target, err := order.ParseAccountIndex(req.TraderIndex, s.engine.Registry().Len(), false)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		result, err := s.engine.CancelAll(r.Context(), side, target)
		if err != nil {
			s.writeFailure(w, r, err)
			return
		}
		payload := journalPayload(r.Context(), side, result)
		s.journal.RecordCancelAll(r.Context(), payload)
		s.notifier.NotifyDispatch(r.Context(), message, payload)
		writeJSON(w, http.StatusOK, fanoutResponse{
			Message:   message,
			RequestID: result.RequestID,
			Results:   result.Outcomes,
		})
	}
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	manager, req, err := s.orderManager(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	orderID, err := parseOrderID(req.OrderID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	res, err := manager.CancelOrder(r.Context(), orderID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	manager, req, err := s.orderManager(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	orderID, err := parseOrderID(req.OrderID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	o, err := manager.Order(r.Context(), orderID)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	manager, req, err := s.orderManager(r)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	orders, err := manager.Orders(r.Context(), req.CancelableOnly)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) account(index *json.Number) (account.Account, error) {
	registry := s.engine.Registry()
	idx, err := order.ParseAccountIndex(index, registry.Len(), true)
	if err != nil {
		return account.Account{}, err
	}
	acc, _ := registry.Get(*idx)
	return acc, nil
}

func (s *Server) portfolioReader(index string) (account.PortfolioReader, error) {
	acc, err := s.account(order.Number(index))
	if err != nil {
		return nil, err
	}
	reader, ok := acc.Trader.(account.PortfolioReader)
	if !ok {
		return nil, dispatch.ErrCapabilityUnsupported
	}
	return reader, nil
}

func (s *Server) orderManager(r *http.Request) (account.OrderManager, orderRequest, error) {
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		return nil, req, err
	}
	acc, err := s.account(req.TraderIndex)
	if err != nil {
		return nil, req, err
	}
	manager, ok := acc.Trader.(account.OrderManager)
	if !ok {
		return nil, req, dispatch.ErrCapabilityUnsupported
	}
	return manager, req, nil
}

// parseOrderID 委托号可以是字符串或数字。
func parseOrderID(raw json.RawMessage) (string, error) {
	text := strings.TrimSpace(string(raw))
	if text == "" || text == "null" {
		return "", &order.ValidationError{Kind: order.KindMissingField, Field: "order_id", Msg: "缺少必要参数: order_id"}
	}
	if strings.HasPrefix(text, `"`) {
		var id string
		if err := json.Unmarshal(raw, &id); err != nil || strings.TrimSpace(id) == "" {
			return "", &order.ValidationError{Kind: order.KindMissingField, Field: "order_id", Msg: "order_id 无效"}
		}
		return strings.TrimSpace(id), nil
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		return "", &order.ValidationError{Kind: order.KindMissingField, Field: "order_id", Msg: "order_id 无效"}
	}
	return num.String(), nil
}
