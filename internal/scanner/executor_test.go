package scanner

import (
	"context"
	"errors"
	"testing"
)

func TestMainQueueRunsInOrder(t *testing.T) {
	q := NewMainQueue()
	q.Start()
	defer q.Close()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		q.Dispatch(func() { got = append(got, i) })
	}
	if err := q.Sync(context.Background(), func() {}); err != nil {
		t.Fatal(err)
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("order = %v", got)
		}
	}
	if len(got) != 10 {
		t.Fatalf("ran %d closures, want 10", len(got))
	}
}

func TestMainQueueNestedDispatch(t *testing.T) {
	q := NewMainQueue()
	q.Start()
	defer q.Close()

	done := make(chan struct{})
	q.Dispatch(func() {
		q.Dispatch(func() { close(done) })
	})
	<-done
}

func TestMainQueueClose(t *testing.T) {
	q := NewMainQueue()
	q.Start()

	ran := false
	q.Dispatch(func() { ran = true })
	q.Close()

	if !ran {
		t.Error("queued work dropped on Close")
	}
	if q.Dispatch(func() {}) {
		t.Error("Dispatch accepted work after Close")
	}
	if err := q.Sync(context.Background(), func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Sync after Close = %v, want ErrClosed", err)
	}
	q.Close()
}
