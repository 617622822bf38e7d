package netmon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type fakeProber struct {
	mu  sync.Mutex
	err error
}

func (f *fakeProber) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeProber) set(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func TestInitialStateIsMeasured(t *testing.T) {
	p := &fakeProber{}
	m := New(p, time.Hour, slog.New(slog.DiscardHandler))

	m.Start(context.Background())
	defer m.Stop()

	if !m.IsOnline() {
		t.Error("expected online after successful initial probe")
	}

	s := m.Status()
	if !s.IsOnline {
		t.Error("status should report online")
	}
	if s.LastChecked.IsZero() {
		t.Error("expected last checked to be set")
	}
}

func TestInitialStateOffline(t *testing.T) {
	p := &fakeProber{err: errors.New("unreachable")}
	m := New(p, time.Hour, slog.New(slog.DiscardHandler))

	m.Start(context.Background())
	defer m.Stop()

	if m.IsOnline() {
		t.Error("expected offline after failed initial probe")
	}
}

func TestListenersNotifiedOnTransition(t *testing.T) {
	p := &fakeProber{err: errors.New("unreachable")}
	m := New(p, time.Hour, slog.New(slog.DiscardHandler))
	m.Start(context.Background())
	defer m.Stop()

	var mu sync.Mutex
	var got []bool
	m.AddListener(func(online bool) {
		mu.Lock()
		got = append(got, online)
		mu.Unlock()
	})

	// Same state again: no notification.
	m.CheckNow(context.Background())
	// Offline -> online: one notification.
	p.set(nil)
	m.CheckNow(context.Background())
	// Online -> offline: one notification.
	p.set(errors.New("unreachable"))
	m.CheckNow(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %v", got)
	}
	if !got[0] || got[1] {
		t.Errorf("notifications = %v, want [true false]", got)
	}
}

func TestMultipleListeners(t *testing.T) {
	p := &fakeProber{err: errors.New("unreachable")}
	m := New(p, time.Hour, slog.New(slog.DiscardHandler))
	m.Start(context.Background())
	defer m.Stop()

	var mu sync.Mutex
	counts := make([]int, 3)
	for i := 0; i < 3; i++ {
		i := i
		m.AddListener(func(bool) {
			mu.Lock()
			counts[i]++
			mu.Unlock()
		})
	}

	p.set(nil)
	m.CheckNow(context.Background())

	mu.Lock()
	defer mu.Unlock()
	for i, c := range counts {
		if c != 1 {
			t.Errorf("listener %d notified %d times, want 1", i, c)
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	p := &fakeProber{err: errors.New("unreachable")}
	m := New(p, time.Hour, slog.New(slog.DiscardHandler))
	m.Start(context.Background())
	defer m.Stop()

	var mu sync.Mutex
	calls := 0
	unsub := m.AddListener(func(bool) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	unsub()

	p.set(nil)
	m.CheckNow(context.Background())

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("unsubscribed listener called %d times", calls)
	}
}

func TestCheckNowReturnsState(t *testing.T) {
	p := &fakeProber{}
	m := New(p, time.Hour, slog.New(slog.DiscardHandler))

	if !m.CheckNow(context.Background()) {
		t.Error("expected true for reachable server")
	}

	p.set(errors.New("unreachable"))
	if m.CheckNow(context.Background()) {
		t.Error("expected false for unreachable server")
	}
}
