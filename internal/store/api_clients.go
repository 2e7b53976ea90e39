package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS api_clients (
		client_id  TEXT PRIMARY KEY,
		secret     TEXT NOT NULL,
		enabled    INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL
	);`,
}

// APIClient 为 api_clients 表中的一行。
type APIClient struct {
	ClientID  string
	Secret    string
	Enabled   bool
	CreatedAt time.Time
}

// ListAPIClients 返回全部客户端凭证，按 client_id 排序。
func (s *Store) ListAPIClients(ctx context.Context) ([]APIClient, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_id, secret, enabled, created_at FROM api_clients ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("查询 api_clients 失败: %w", err)
	}
	defer rows.Close()

	var clients []APIClient
	for rows.Next() {
		var c APIClient
		if err := rows.Scan(&c.ClientID, &c.Secret, &c.Enabled, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("读取 api_clients 失败: %w", err)
		}
		clients = append(clients, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 api_clients 失败: %w", err)
	}
	return clients, nil
}

// UpsertAPIClient 新增或更新一个客户端凭证，created_at 只在首次写入时设置。
func (s *Store) UpsertAPIClient(ctx context.Context, client APIClient) error {
	id := strings.TrimSpace(client.ClientID)
	if id == "" || client.Secret == "" {
		return errors.New("store: client_id 与 secret 均不能为空")
	}
	createdAt := client.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_clients (client_id, secret, enabled, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(client_id) DO UPDATE SET
			secret = excluded.secret,
			enabled = excluded.enabled`,
		id, client.Secret, client.Enabled, createdAt)
	if err != nil {
		return fmt.Errorf("写入 api_clients 失败: %w", err)
	}
	return nil
}
