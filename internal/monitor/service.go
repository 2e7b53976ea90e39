// Package monitor 把网关事件写入 SQLite，供事后审计。
package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"trade-gateway/internal/store"
)

const defaultListLimit = 100

// Service 负责持久化监控事件。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService 初始化监控服务，创建所需表结构。
func NewService(ctx context.Context, store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS monitor_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	request_id TEXT NOT NULL DEFAULT '',
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);`,
		`CREATE INDEX IF NOT EXISTS idx_monitor_events_type ON monitor_events(event_type);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("monitor: 初始化表失败: %w", err)
		}
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	var requestID string
	if p, ok := event.Payload.(DispatchPayload); ok {
		requestID = p.RequestID
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO monitor_events (event_type, request_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(event.Type), requestID, string(payload), event.Timestamp.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordDispatch 记录下单分发。
func (s *Service) RecordDispatch(ctx context.Context, payload DispatchPayload) {
	s.recordBestEffort(ctx, EventDispatch, payload, "记录分发事件失败")
}

// RecordCancelAll 记录批量撤单。
func (s *Service) RecordCancelAll(ctx context.Context, payload DispatchPayload) {
	s.recordBestEffort(ctx, EventCancelAll, payload, "记录撤单事件失败")
}

// RecordError 记录异常。
func (s *Service) RecordError(ctx context.Context, msg string, err error, ctxMap map[string]interface{}) {
	payload := ErrorPayload{Message: msg, Context: ctxMap}
	if err != nil {
		payload.Error = err.Error()
	}
	s.recordBestEffort(ctx, EventError, payload, "记录异常事件失败")
}

// recordBestEffort 写入失败只记日志。请求可能已被取消，写入使用独立的 context。
func (s *Service) recordBestEffort(ctx context.Context, typ EventType, payload interface{}, failMsg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.Record(ctx, Event{Type: typ, Timestamp: s.now(), Payload: payload}); err != nil {
		s.logger.Warn(failMsg, zap.String("event_type", string(typ)), zap.Error(err))
	}
}

// ListEvents 按类型检索最近事件，eventType 为空时返回全部类型。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	query := `SELECT event_type, payload, created_at FROM monitor_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			s.logger.Warn("事件时间格式无效", zap.String("created_at", created))
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 遍历事件失败: %w", err)
	}

	return events, nil
}
