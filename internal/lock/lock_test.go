package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRLockAllowsConcurrentReaders(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	rel1 := r.RLock(ctx, "main")
	done := make(chan struct{})
	go func() {
		rel2 := r.RLock(ctx, "main")
		rel2()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second reader should not block behind first reader")
	}
	rel1()
}

func TestLockExcludesOtherWriters(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	rel := r.Lock(ctx, "main")
	acquired := make(chan struct{})
	go func() {
		rel2 := r.Lock(ctx, "main")
		rel2()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second writer should not acquire lock while first holds it")
	case <-time.After(50 * time.Millisecond):
	}
	rel()
	<-acquired
}

func TestDifferentBranchesDoNotContend(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	relMain := r.Lock(ctx, "main")
	defer relMain()

	done := make(chan struct{})
	go func() {
		rel := r.Lock(ctx, "feature")
		rel()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("locks on different branches must not contend")
	}
}
