package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

func TestClientCacheOps(t *testing.T) {
	client, server := newTestClientWithServer(t)
	ctx := context.Background()

	if err := client.Set(ctx, "k1", "v1", 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err := client.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "v1" {
		t.Fatalf("unexpected value: %s", val)
	}

	exists, err := client.Exists(ctx, "k1")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != 1 {
		t.Fatalf("unexpected exists: %d", exists)
	}

	if err := client.Expire(ctx, "k1", 2*time.Second); err != nil {
		t.Fatalf("expire: %v", err)
	}
	server.FastForward(3 * time.Second)

	exists, err = client.Exists(ctx, "k1")
	if err != nil {
		t.Fatalf("exists after expire: %v", err)
	}
	if exists != 0 {
		t.Fatalf("expected expired key")
	}
}

func TestClientGetMissing(t *testing.T) {
	client := newTestClient(t)

	_, err := client.Get(context.Background(), "nope")
	if !errors.Is(err, goredis.Nil) {
		t.Fatalf("expected redis.Nil, got: %v", err)
	}
}

func TestClientDelReturnsCount(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_ = client.Set(ctx, "a", "1", 0)
	_ = client.Set(ctx, "b", "2", 0)

	n, err := client.Del(ctx, "a", "b", "missing")
	if err != nil {
		t.Fatalf("del: %v", err)
	}
	if n != 2 {
		t.Fatalf("unexpected delete count: %d", n)
	}
}

func TestClientScan(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = client.Set(ctx, fmt.Sprintf("tenant:t1:user:%d", i), "x", 0)
	}
	_ = client.Set(ctx, "tenant:t2:user:0", "x", 0)

	var (
		cursor uint64
		found  []string
	)
	for {
		keys, next, err := client.Scan(ctx, cursor, "tenant:t1:*", 2)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		found = append(found, keys...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Strings(found)
	if len(found) != 5 {
		t.Fatalf("unexpected scan result: %v", found)
	}
}

func TestClientDeleteByPattern(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	_ = client.Set(ctx, "hl8:cache:tenant:t1:user:list", "x", 0)
	_ = client.Set(ctx, "hl8:cache:tenant:t1:user:detail", "x", 0)
	_ = client.Set(ctx, "hl8:cache:tenant:t2:user:list", "x", 0)

	deleted, err := client.DeleteByPattern(ctx, "hl8:cache:tenant:t1:*")
	if err != nil {
		t.Fatalf("delete by pattern: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("unexpected deleted count: %d", deleted)
	}

	exists, err := client.Exists(ctx, "hl8:cache:tenant:t2:user:list")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists != 1 {
		t.Fatalf("other tenant keys must survive")
	}
}
