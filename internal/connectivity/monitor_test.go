package connectivity

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

type fakeProbe struct {
	reachable atomic.Bool
}

func (p *fakeProbe) Reachable(_ context.Context) bool {
	return p.reachable.Load()
}

func TestCheckNow_StartsOffline(t *testing.T) {
	p := &fakeProbe{}
	m := NewMonitor(p, time.Second)

	if m.Online() {
		t.Error("Online() = true before any probe, want false")
	}
	if m.CheckNow(context.Background()) {
		t.Error("CheckNow = true with unreachable probe, want false")
	}

	// Offline -> offline is not a transition; no event is published.
	select {
	case ev := <-m.Events():
		t.Errorf("unexpected event %+v", ev)
	default:
	}
}

func TestCheckNow_EmitsOnTransitionOnly(t *testing.T) {
	p := &fakeProbe{}
	p.reachable.Store(true)
	m := NewMonitor(p, time.Second)

	if !m.CheckNow(context.Background()) {
		t.Fatal("CheckNow = false with reachable probe, want true")
	}

	select {
	case ev := <-m.Events():
		if !ev.Online {
			t.Errorf("event Online = false, want true")
		}
	default:
		t.Fatal("no event after offline->online transition")
	}

	// Same state again: edge-triggered, so no second event.
	m.CheckNow(context.Background())
	select {
	case ev := <-m.Events():
		t.Errorf("unexpected event %+v for unchanged state", ev)
	default:
	}

	// Back offline: one event.
	p.reachable.Store(false)
	if m.CheckNow(context.Background()) {
		t.Error("CheckNow = true with unreachable probe, want false")
	}
	select {
	case ev := <-m.Events():
		if ev.Online {
			t.Errorf("event Online = true, want false")
		}
	default:
		t.Fatal("no event after online->offline transition")
	}

	if m.Online() {
		t.Error("Online() = true, want false")
	}
}

func TestRun_PollsAndPublishes(t *testing.T) {
	p := &fakeProbe{}
	m := NewMonitor(p, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		m.Run(ctx)
	}()

	p.reachable.Store(true)

	select {
	case ev := <-m.Events():
		if !ev.Online {
			t.Errorf("event Online = false, want true")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event published after probe became reachable")
	}

	if !m.Online() {
		t.Error("Online() = false after online event, want true")
	}

	cancel()
	<-done
}

func TestEvents_DropWhenConsumerLags(t *testing.T) {
	p := &fakeProbe{}
	m := NewMonitor(p, time.Second)

	// Flip state more times than the channel buffers without consuming.
	for i := 0; i < 20; i++ {
		p.reachable.Store(i%2 == 0)
		m.CheckNow(context.Background())
	}

	// The monitor must not block; level state stays correct.
	if want := false; m.Online() != want {
		t.Errorf("Online() = %v, want %v", m.Online(), want)
	}
}
