package cache

import (
	"context"
	"testing"
	"time"

	"github.com/hl8/hl8-go-pkg/errors"
	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/logger"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
)

// redisStub adapts a raw go-redis client to the Clienter surface for tests.
type redisStub struct {
	rdb *goredis.Client
}

func (s *redisStub) Get(ctx context.Context, key string) (string, error) {
	return s.rdb.Get(ctx, key).Result()
}

func (s *redisStub) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return s.rdb.Set(ctx, key, value, expiration).Err()
}

func (s *redisStub) Del(ctx context.Context, keys ...string) (int64, error) {
	return s.rdb.Del(ctx, keys...).Result()
}

func (s *redisStub) Exists(ctx context.Context, keys ...string) (int64, error) {
	return s.rdb.Exists(ctx, keys...).Result()
}

func (s *redisStub) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return s.rdb.Scan(ctx, cursor, match, count).Result()
}

func (s *redisStub) DeleteByPattern(ctx context.Context, pattern string) (int64, error) {
	var (
		cursor  uint64
		deleted int64
	)
	for {
		keys, next, err := s.Scan(ctx, cursor, pattern, 100)
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.Del(ctx, keys...)
			deleted += n
			if err != nil {
				return deleted, err
			}
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	rdb := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	store := &Store{
		client: &redisStub{rdb: rdb},
		prefix: isolation.DefaultKeyPrefix,
		ttl:    time.Minute,
		log:    logger.NewNop(),
	}
	return store, server
}

func tenantCtx(t *testing.T, tenantID string) context.Context {
	t.Helper()
	ic, err := isolation.Tenant(tenantID)
	if err != nil {
		t.Fatalf("tenant context: %v", err)
	}
	return isolation.WithContext(context.Background(), ic)
}

type profile struct {
	Name string `json:"name"`
	Age  int    `json:"age"`
}

func TestStoreRoundTrip(t *testing.T) {
	store, server := newTestStore(t)
	ctx := tenantCtx(t, "t1")

	in := profile{Name: "alice", Age: 30}
	if err := store.Set(ctx, "user", "alice", in, 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	// key is namespaced under the tenant scope
	if !server.Exists("hl8:cache:tenant:t1:user:alice") {
		t.Fatalf("expected tenant-scoped key, keys: %v", server.Keys())
	}

	var out profile
	if err := store.Get(ctx, "user", "alice", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestStoreMissIsNotFound(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := tenantCtx(t, "t1")

	var out profile
	err := store.Get(ctx, "user", "nobody", &out)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got: %v", err)
	}
}

func TestStoreIsolationBetweenTenants(t *testing.T) {
	store, _ := newTestStore(t)
	ctxA := tenantCtx(t, "t1")
	ctxB := tenantCtx(t, "t2")

	if err := store.Set(ctxA, "user", "alice", profile{Name: "alice"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	var out profile
	if err := store.Get(ctxB, "user", "alice", &out); !errors.Is(err, errors.ErrNotFound) {
		t.Fatalf("tenant t2 must not see t1 keys, got: %v", err)
	}
}

func TestStoreWithoutContextIsPlatformScoped(t *testing.T) {
	store, server := newTestStore(t)

	if err := store.Set(context.Background(), "config", "flags", profile{Name: "x"}, 0); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !server.Exists("hl8:cache:platform:config:flags") {
		t.Fatalf("expected platform key, keys: %v", server.Keys())
	}
}

func TestStoreDeleteAndExists(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := tenantCtx(t, "t1")

	_ = store.Set(ctx, "user", "alice", profile{Name: "alice"}, 0)

	ok, err := store.Exists(ctx, "user", "alice")
	if err != nil || !ok {
		t.Fatalf("exists: %v %v", ok, err)
	}

	deleted, err := store.Delete(ctx, "user", "alice")
	if err != nil || !deleted {
		t.Fatalf("delete: %v %v", deleted, err)
	}

	ok, err = store.Exists(ctx, "user", "alice")
	if err != nil || ok {
		t.Fatalf("exists after delete: %v %v", ok, err)
	}
}

func TestStoreInvalidateNamespace(t *testing.T) {
	store, server := newTestStore(t)
	ctx := tenantCtx(t, "t1")

	_ = store.Set(ctx, "user", "list", []string{"a"}, 0)
	_ = store.Set(ctx, "user", "detail-a", profile{Name: "a"}, 0)
	_ = store.Set(ctx, "order", "list", []string{"o"}, 0)
	_ = store.Set(tenantCtx(t, "t2"), "user", "list", []string{"b"}, 0)

	deleted, err := store.InvalidateNamespace(ctx, "user")
	if err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("unexpected deleted count: %d, keys: %v", deleted, server.Keys())
	}

	// other namespaces and tenants survive
	if !server.Exists("hl8:cache:tenant:t1:order:list") {
		t.Fatalf("order namespace must survive")
	}
	if !server.Exists("hl8:cache:tenant:t2:user:list") {
		t.Fatalf("other tenant must survive")
	}
}

func TestStoreInvalidateScope(t *testing.T) {
	store, server := newTestStore(t)

	org, err := isolation.Organization("t1", "o1")
	if err != nil {
		t.Fatalf("organization context: %v", err)
	}
	ctx := isolation.WithContext(context.Background(), org)

	_ = store.Set(ctx, "user", "list", []string{"a"}, 0)
	_ = store.Set(ctx, "order", "list", []string{"o"}, 0)
	_ = store.Set(tenantCtx(t, "t1"), "user", "list", []string{"t"}, 0)

	deleted, err := store.InvalidateScope(ctx)
	if err != nil {
		t.Fatalf("invalidate scope: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("unexpected deleted count: %d, keys: %v", deleted, server.Keys())
	}

	// tenant-level keys are outside the organization scope prefix
	if !server.Exists("hl8:cache:tenant:t1:user:list") {
		t.Fatalf("tenant-level key must survive organization scope invalidation")
	}
}
