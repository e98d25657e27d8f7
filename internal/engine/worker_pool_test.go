package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPool_CallerRunsWhenFull(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var ran atomic.Int32
	var callerRan atomic.Bool

	p := newWorkerPool(context.Background(), 1, 1, func(_ context.Context, name string) {
		switch name {
		case "blocker":
			close(started)
			<-release
		case "overflow":
			callerRan.Store(true)
		}
		ran.Add(1)
	})

	if !p.Submit("blocker") {
		t.Fatal("first task was not queued")
	}
	<-started // the only worker is now busy and the queue is empty
	if !p.Submit("queued") {
		t.Fatal("second task was not queued")
	}
	if p.QueueLen() != 1 || p.QueueCap() != 1 {
		t.Fatalf("queue len=%d cap=%d", p.QueueLen(), p.QueueCap())
	}
	if p.Submit("overflow") {
		t.Fatal("task queued past capacity")
	}
	if !callerRan.Load() {
		t.Fatal("overflow task did not run on the submitting goroutine")
	}

	close(release)
	p.Drain()
	if ran.Load() != 3 {
		t.Fatalf("ran %d tasks, want 3", ran.Load())
	}
}

func TestWorkerPool_CancelStopsWorkers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := newWorkerPool(ctx, 2, 4, func(context.Context, int) {})
	cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("workers still running after cancel")
	}
}
