package registry

import (
	"context"
	"testing"

	"github.com/parley-ai/parley/pkg/models"
)

func TestRegisterAndEmit(t *testing.T) {
	r := New(nil)
	ch := make(chan models.Event, 1)
	sink := NewChanSink(ch)

	r.Register("s1", sink)
	r.Emit(context.Background(), models.NewEvent(models.EventChatCompletion, "s1"))

	select {
	case e := <-ch:
		if e.Type != models.EventChatCompletion {
			t.Fatalf("unexpected event type %q", e.Type)
		}
	default:
		t.Fatal("expected event to be delivered")
	}
}

func TestEmitUnregisteredSessionDrops(t *testing.T) {
	r := New(nil)
	// Must not panic or block.
	r.Emit(context.Background(), models.NewEvent(models.EventChatError, "missing"))
}

func TestUnregisterStaleSinkIsNoop(t *testing.T) {
	r := New(nil)
	old := NewChanSink(make(chan models.Event, 1))
	replacement := NewChanSink(make(chan models.Event, 1))

	r.Register("s1", old)
	r.Register("s1", replacement)

	// Old connection tears down after being superseded.
	r.Unregister("s1", old)

	if _, ok := r.Sink("s1"); !ok {
		t.Fatal("replacement sink should still be registered")
	}

	r.Unregister("s1", replacement)
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d entries", r.Len())
	}
}

func TestEmitReachesTapAndSink(t *testing.T) {
	r := New(nil)
	sinkCh := make(chan models.Event, 1)
	tapCh := make(chan models.Event, 2)
	r.Register("s1", NewChanSink(sinkCh))
	r.SetTap(NewChanSink(tapCh))

	r.Emit(context.Background(), models.NewEvent(models.EventChatCompletion, "s1"))
	if len(sinkCh) != 1 {
		t.Fatalf("client sink events = %d", len(sinkCh))
	}
	if len(tapCh) != 1 {
		t.Fatalf("tap events = %d", len(tapCh))
	}

	// An unattached session still reaches the tap.
	r.Emit(context.Background(), models.NewEvent(models.EventChatError, "ghost"))
	if len(sinkCh) != 1 {
		t.Fatal("foreign session event leaked to a client sink")
	}
	if len(tapCh) != 2 {
		t.Fatalf("tap events = %d", len(tapCh))
	}
}

func TestChanSinkDropsWhenFull(t *testing.T) {
	ch := make(chan models.Event, 1)
	sink := NewChanSink(ch)

	sink.Emit(context.Background(), models.NewEvent(models.EventToolStart, "s1"))
	// Nobody is reading; the second emit must return without blocking or
	// displacing the queued event.
	sink.Emit(context.Background(), models.NewEvent(models.EventToolProgress, "s1"))

	if len(ch) != 1 {
		t.Fatalf("buffered events = %d", len(ch))
	}
	if e := <-ch; e.Type != models.EventToolStart {
		t.Fatalf("queued event type = %q", e.Type)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a := make(chan models.Event, 1)
	b := make(chan models.Event, 1)
	sink := NewMultiSink(NewChanSink(a), nil, NewChanSink(b))

	sink.Emit(context.Background(), models.NewEvent(models.EventAgent, "s1"))

	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d and %d", len(a), len(b))
	}
}
