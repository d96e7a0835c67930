package utils

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestConcurrencyCap_CounterExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	key := "cap:t1:u1:checkout"
	if ok, err := AcquireConcurrencyCap(context.Background(), rdb, key, 1, 30*time.Second); err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL(key); ttl <= 0 || ttl > 30*time.Second {
		t.Fatalf("expected a ttl of at most 30s, got %s", ttl)
	}

	mr.FastForward(31 * time.Second)
	if ok, err := AcquireConcurrencyCap(context.Background(), rdb, key, 1, 30*time.Second); err != nil || !ok {
		t.Fatalf("a leaked slot must free itself, ok=%v err=%v", ok, err)
	}
}

func TestConcurrencyCap_AcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ctx := context.Background()
	key := "cap:t1:u1:checkout"

	ok, err := AcquireConcurrencyCap(ctx, rdb, key, 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first acquire to succeed, ok=%v err=%v", ok, err)
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, key, 1, time.Minute)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ok {
		t.Fatalf("expected second acquire to be rejected")
	}

	if err := ReleaseConcurrencyCap(ctx, rdb, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = AcquireConcurrencyCap(ctx, rdb, key, 1, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected acquire after release, ok=%v err=%v", ok, err)
	}
}

func TestConcurrencyCap_RejectsBadArgs(t *testing.T) {
	if _, err := AcquireConcurrencyCap(context.Background(), nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
