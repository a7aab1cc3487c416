package sessions

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLockerMutualExclusion(t *testing.T) {
	locker := NewLocker()

	var inCritical atomic.Int32
	var maxSeen atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locker.Acquire(context.Background(), "conv-1")
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer release()

			n := inCritical.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inCritical.Add(-1)
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Errorf("observed %d concurrent holders for one conversation", maxSeen.Load())
	}
}

func TestLockerDifferentConversationsDoNotBlock(t *testing.T) {
	locker := NewLocker()

	releaseA, err := locker.Acquire(context.Background(), "conv-a")
	if err != nil {
		t.Fatalf("Acquire conv-a: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := locker.Acquire(ctx, "conv-b")
	if err != nil {
		t.Fatalf("Acquire conv-b blocked by conv-a: %v", err)
	}
	releaseB()
}

func TestLockerAcquireRespectsContext(t *testing.T) {
	locker := NewLocker()

	release, err := locker.Acquire(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Acquire(ctx, "conv-1"); err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestLockerTryAcquire(t *testing.T) {
	locker := NewLocker()

	release, ok := locker.TryAcquire("conv-1")
	if !ok {
		t.Fatal("first TryAcquire must succeed")
	}
	if _, ok := locker.TryAcquire("conv-1"); ok {
		t.Error("second TryAcquire must fail while held")
	}
	if !locker.IsLocked("conv-1") {
		t.Error("IsLocked must report held lock")
	}

	release()
	if locker.IsLocked("conv-1") {
		t.Error("IsLocked must report free lock after release")
	}
}

func TestLockerReleaseNotHeldPanics(t *testing.T) {
	locker := NewLocker()

	release, err := locker.Acquire(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release()

	defer func() {
		if recover() == nil {
			t.Error("double release must panic")
		}
	}()
	release()
}
