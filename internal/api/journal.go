package api

import (
	"context"
	"net/http"
	"strconv"

	"trade-gateway/internal/auth"
	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/monitor"
	"trade-gateway/internal/order"
)

const maxEventsLimit = 500

// Journal 记录分发与异常事件，由 monitor.Service 实现。
type Journal interface {
	RecordDispatch(ctx context.Context, payload monitor.DispatchPayload)
	RecordCancelAll(ctx context.Context, payload monitor.DispatchPayload)
	RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{})
	ListEvents(ctx context.Context, eventType monitor.EventType, limit int) ([]monitor.Event, error)
}

type nopJournal struct{}

func (nopJournal) RecordDispatch(context.Context, monitor.DispatchPayload) {}
func (nopJournal) RecordCancelAll(context.Context, monitor.DispatchPayload) {}
func (nopJournal) RecordError(context.Context, string, error, map[string]interface{}) {}
func (nopJournal) ListEvents(context.Context, monitor.EventType, int) ([]monitor.Event, error) {
	return nil, nil
}

func journalPayload(ctx context.Context, operation order.Operation, result dispatch.Result) monitor.DispatchPayload {
	succeeded, failed := result.Count()
	payload := monitor.DispatchPayload{
		RequestID: result.RequestID,
		Operation: string(operation),
		Succeeded: succeeded,
		Failed:    failed,
		Outcomes:  result.Outcomes,
	}
	if p, ok := auth.PrincipalFrom(ctx); ok {
		payload.ClientID = p.ClientID
	}
	return payload
}

func intentPayload(ctx context.Context, intent order.Intent, result dispatch.Result) monitor.DispatchPayload {
	payload := journalPayload(ctx, intent.Operation, result)
	payload.Symbol = intent.Symbol
	payload.Price = intent.Price
	payload.SizingMode = string(intent.Sizing.Mode())
	payload.SizingValue = intent.Sizing.Value()
	payload.Strategy = intent.Strategy
	return payload
}

type eventsResponse struct {
	Events []monitor.Event `json:"events"`
}

// handleEvents 按类型查询最近的监控事件。
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	eventType, ok := monitor.ParseEventType(q.Get("type"))
	if !ok {
		writeError(w, http.StatusBadRequest, kindInvalidRequest, "不支持的事件类型: "+q.Get("type"))
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxEventsLimit {
			writeError(w, http.StatusBadRequest, kindInvalidRequest, "limit 必须为 1 到 500 之间的整数")
			return
		}
		limit = n
	}

	events, err := s.journal.ListEvents(r.Context(), eventType, limit)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	if events == nil {
		events = []monitor.Event{}
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}
