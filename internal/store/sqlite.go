package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"trade-gateway/internal/config"
)

// Store 封装 SQLite 连接。
type Store struct {
	db *sql.DB
}

// NewSQLite 根据配置初始化 SQLite 存储并完成建表。
func NewSQLite(ctx context.Context, cfg config.DatabaseConfig) (*Store, error) {
	dsn := cfg.Path
	maxOpen := cfg.MaxOpenConns
	if cfg.InMemory {
		// 每个 :memory: 连接都是独立的库，只能保留一个连接。
		dsn = ":memory:"
		maxOpen = 1
	} else if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", dsn))
	if err != nil {
		return nil, fmt.Errorf("打开 SQLite 数据库失败: %w", err)
	}

	conn.SetMaxOpenConns(maxOpen)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if cfg.InMemory {
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	}

	pragmas := []struct {
		stmt string
		desc string
	}{
		{"PRAGMA journal_mode=WAL;", "设置 SQLite WAL 模式失败"},
		{"PRAGMA synchronous=NORMAL;", "设置 SQLite 同步级别失败"},
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p.stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("%s: %w", p.desc, err)
		}
	}

	s := &Store{db: conn}
	if err := s.migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("初始化数据表失败: %w", err)
		}
	}
	return nil
}

// DB 返回底层 *sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureDir(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("创建目录 %q 失败: %w", path, err)
	}
	return nil
}
