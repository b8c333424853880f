package store

import (
	"encoding/hex"
	"testing"
)

func TestComputeDedupKeyFromID(t *testing.T) {
	body := []byte(`{"id":"evt_123","type":"x"}`)
	got := computeDedupKey(body)
	if got != "evt_123" {
		t.Fatalf("want evt_123, got %s", got)
	}
}

func TestComputeDedupKeyFromHash(t *testing.T) {
	body := []byte(`{"notId":"x"}`)
	got := computeDedupKey(body)
	// hex-encoded first 8 bytes -> 16 hex chars
	b, err := hex.DecodeString(got)
	if err != nil {
		t.Fatalf("invalid hex: %v", err)
	}
	if len(b) != 8 {
		t.Fatalf("expected 8 bytes, got %d", len(b))
	}
}

func TestRebindPostgres(t *testing.T) {
	s := &SQL{dialect: dialectPostgres}
	got := s.rebind(`SELECT 1 FROM operations WHERE id=? AND status=?`)
	if got != `SELECT 1 FROM operations WHERE id=$1 AND status=$2` {
		t.Fatalf("unexpected rebind: %s", got)
	}
	lite := &SQL{dialect: dialectSQLite}
	if q := lite.rebind(`id=?`); q != `id=?` {
		t.Fatalf("sqlite must keep ? placeholders, got %s", q)
	}
}
