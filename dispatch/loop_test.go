package dispatch

import (
	"testing"
	"time"
)

func TestPostOrder(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var got []int
	for i := 0; i < 100; i++ {
		n := i
		if !l.Post(func() { got = append(got, n) }) {
			t.Fatalf("post %d rejected", n)
		}
	}

	l.Call(func() {})

	if len(got) != 100 {
		t.Fatalf("expected 100 tasks to run, got %d", len(got))
	}
	for i, n := range got {
		if n != i {
			t.Fatalf("task %d ran out of order (got %d)", i, n)
		}
	}
}

func TestReentrantPost(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	ran := make(chan struct{})
	l.Post(func() {
		// posting from inside a task must not block
		l.Post(func() { close(ran) })
	})

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatalf("reentrant post never ran")
	}
}

func TestCall(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	v := 0
	if !l.Call(func() { v = 42 }) {
		t.Fatalf("call rejected")
	}
	if v != 42 {
		t.Fatalf("expected call to finish before returning, v=%d", v)
	}
}

func TestAfterFires(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	fired := make(chan struct{})
	l.After(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("timer never fired")
	}
}

func TestAfterStop(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	fired := false
	tm := l.After(50*time.Millisecond, func() { fired = true })
	if !tm.Stop() {
		t.Fatalf("expected stop to succeed")
	}

	time.Sleep(100 * time.Millisecond)
	l.Call(func() {})
	if fired {
		t.Fatalf("stopped timer fired anyway")
	}
}

func TestCloseDrains(t *testing.T) {
	l := NewLoop()

	ran := 0
	for i := 0; i < 10; i++ {
		l.Post(func() { ran++ })
	}
	l.Close()

	if ran != 10 {
		t.Fatalf("expected queued tasks to drain on close, ran %d", ran)
	}
}

func TestPostAfterClose(t *testing.T) {
	l := NewLoop()
	l.Close()

	if l.Post(func() {}) {
		t.Fatalf("post accepted after close")
	}
	if l.Call(func() {}) {
		t.Fatalf("call accepted after close")
	}

	// second close must not hang
	l.Close()
}
