package store

import (
	"context"
	"testing"

	"trade-gateway/internal/config"
)

func newMemoryStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewSQLite(context.Background(), config.DatabaseConfig{InMemory: true, MaxOpenConns: 4, MaxIdleConns: 1})
	if err != nil {
		t.Fatalf("NewSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsertAndListAPIClients(t *testing.T) {
	ctx := context.Background()
	s := newMemoryStore(t)

	if err := s.UpsertAPIClient(ctx, APIClient{ClientID: "beta", Secret: "b1", Enabled: true}); err != nil {
		t.Fatalf("upsert beta: %v", err)
	}
	if err := s.UpsertAPIClient(ctx, APIClient{ClientID: "alpha", Secret: "a1", Enabled: false}); err != nil {
		t.Fatalf("upsert alpha: %v", err)
	}
	if err := s.UpsertAPIClient(ctx, APIClient{ClientID: "beta", Secret: "b2", Enabled: true}); err != nil {
		t.Fatalf("update beta: %v", err)
	}

	clients, err := s.ListAPIClients(ctx)
	if err != nil {
		t.Fatalf("ListAPIClients returned error: %v", err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(clients))
	}
	if clients[0].ClientID != "alpha" || clients[0].Enabled {
		t.Fatalf("unexpected first client: %+v", clients[0])
	}
	if clients[1].ClientID != "beta" || clients[1].Secret != "b2" {
		t.Fatalf("expected updated secret for beta, got %+v", clients[1])
	}
	if clients[1].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be populated")
	}
}

func TestUpsertAPIClient_RejectsEmptyFields(t *testing.T) {
	s := newMemoryStore(t)
	if err := s.UpsertAPIClient(context.Background(), APIClient{ClientID: " ", Secret: "x"}); err == nil {
		t.Fatal("expected error for blank client id")
	}
}
