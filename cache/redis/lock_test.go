package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hl8/hl8-go-pkg/isolation"
)

func TestLockAcquireRelease(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	opt := LockOption{TTL: 200 * time.Millisecond, RetryTimes: 1, RetryDelay: 10 * time.Millisecond}

	lock := client.NewLock("resource", opt)
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire lock: %v", err)
	}

	contender := client.NewLock("resource", opt)
	if err := contender.Acquire(ctx); !errors.Is(err, ErrLockFailed) {
		t.Fatalf("expected ErrLockFailed, got: %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release lock: %v", err)
	}

	if err := contender.Acquire(ctx); err != nil {
		t.Fatalf("acquire lock after release: %v", err)
	}
}

func TestLockReleaseOnlyByHolder(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	opt := LockOption{TTL: time.Second, RetryTimes: 1, RetryDelay: 10 * time.Millisecond}

	lock := client.NewLock("guarded", opt)
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire lock: %v", err)
	}

	impostor := client.NewLock("guarded", opt)
	if err := impostor.Release(ctx); !errors.Is(err, ErrUnlockFailed) {
		t.Fatalf("expected ErrUnlockFailed for non-holder, got: %v", err)
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("holder release: %v", err)
	}
}

func TestScopedLockIsolatesTenants(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	icA, err := isolation.New("tenant-a", "", "", "")
	if err != nil {
		t.Fatalf("isolation context: %v", err)
	}
	icB, err := isolation.New("tenant-b", "", "", "")
	if err != nil {
		t.Fatalf("isolation context: %v", err)
	}

	opt := LockOption{TTL: time.Second, RetryTimes: 1, RetryDelay: 10 * time.Millisecond}

	lockA, err := client.NewScopedLock(icA, "billing-run", opt)
	if err != nil {
		t.Fatalf("scoped lock: %v", err)
	}
	lockB, err := client.NewScopedLock(icB, "billing-run", opt)
	if err != nil {
		t.Fatalf("scoped lock: %v", err)
	}

	if lockA.Key() == lockB.Key() {
		t.Fatalf("tenant locks share key %q", lockA.Key())
	}

	// 不同租户的同名资源可同时持有
	if err := lockA.Acquire(ctx); err != nil {
		t.Fatalf("acquire tenant-a lock: %v", err)
	}
	if err := lockB.Acquire(ctx); err != nil {
		t.Fatalf("acquire tenant-b lock: %v", err)
	}

	// 同一租户内仍互斥
	lockA2, err := client.NewScopedLock(icA, "billing-run", opt)
	if err != nil {
		t.Fatalf("scoped lock: %v", err)
	}
	if err := lockA2.Acquire(ctx); !errors.Is(err, ErrLockFailed) {
		t.Fatalf("expected ErrLockFailed within tenant, got: %v", err)
	}
}

func TestLockExtend(t *testing.T) {
	client, server := newTestClientWithServer(t)
	ctx := context.Background()

	lock := client.NewLock("extend", LockOption{TTL: 500 * time.Millisecond, RetryTimes: 1, RetryDelay: 10 * time.Millisecond})
	if err := lock.Acquire(ctx); err != nil {
		t.Fatalf("acquire lock: %v", err)
	}

	if err := lock.Extend(ctx, 2*time.Second); err != nil {
		t.Fatalf("extend: %v", err)
	}

	// 过期时间前进 1s，若延长生效锁仍存在
	server.FastForward(time.Second)
	exists, err := client.Exists(ctx, lock.Key())
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists == 0 {
		t.Fatalf("expected lock to survive after extend")
	}

	if err := lock.Release(ctx); err != nil {
		t.Fatalf("release lock: %v", err)
	}
}
