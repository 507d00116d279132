package arbor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTaskQueueStopUnblocksFullQueue(t *testing.T) {
	q := newTaskQueue(1)
	if err := q.post(func() {}); err != nil {
		t.Fatalf("post: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- q.post(func() {}) }()

	time.Sleep(10 * time.Millisecond)
	q.stop()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrStopped) {
			t.Errorf("blocked post err = %v, want ErrStopped", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("post still blocked after stop")
	}
}

func TestTaskQueueRunsQueuedTasksOnStop(t *testing.T) {
	q := newTaskQueue(4)
	ran := 0
	for range 3 {
		if err := q.post(func() { ran++ }); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	q.run(ctx)
	if ran != 3 {
		t.Errorf("ran = %d, want 3", ran)
	}
	if err := q.post(func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("post after run err = %v, want ErrStopped", err)
	}
}

func TestTaskQueueAcceptedTasksAlwaysRun(t *testing.T) {
	q := newTaskQueue(4)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.run(ctx)
		close(done)
	}()

	var accepted, ran atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				if q.post(func() { ran.Add(1) }) == nil {
					accepted.Add(1)
				}
			}
		}()
	}
	time.Sleep(time.Millisecond)
	cancel()
	<-done
	wg.Wait()
	if accepted.Load() != ran.Load() {
		t.Errorf("accepted %d tasks, ran %d", accepted.Load(), ran.Load())
	}
}

func TestHardwareThreadPostTaskDuringStop(t *testing.T) {
	hw := NewHardwareThread(nil, WithHardwareQueueSize(1))
	if err := hw.PostTask(func() {}); err != nil {
		t.Fatalf("PostTask: %v", err)
	}
	errc := make(chan error, 1)
	go func() { errc <- hw.PostTask(func() {}) }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := hw.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case err := <-errc:
		if err != nil && !errors.Is(err, ErrStopped) {
			t.Errorf("PostTask err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PostTask blocked after Run returned")
	}
}
