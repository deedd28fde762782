package prompt

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/pkg/models"
)

func TestAskAndAnswer(t *testing.T) {
	reg := registry.New(nil)
	ch := make(chan models.Event, 1)
	reg.Register("s1", registry.NewChanSink(ch))

	b := New(reg, time.Minute, nil)

	answered := make(chan string, 1)
	go func() {
		answer, err := b.Ask(context.Background(), "s1", "files", "which file?")
		if err != nil {
			t.Errorf("ask failed: %v", err)
		}
		answered <- answer
	}()

	var e models.Event
	select {
	case e = <-ch:
	case <-time.After(time.Second):
		t.Fatal("input request was never pushed to the session")
	}
	if e.Type != models.EventInputRequest || e.Input == nil {
		t.Fatalf("unexpected event %+v", e)
	}
	if e.Input.Question != "which file?" || e.Input.Provider != "files" {
		t.Fatalf("unexpected input payload %+v", e.Input)
	}

	b.Answer(e.Input.CorrelationID, "report.txt")

	select {
	case answer := <-answered:
		if answer != "report.txt" {
			t.Fatalf("unexpected answer %q", answer)
		}
	case <-time.After(time.Second):
		t.Fatal("ask never returned")
	}
}

func TestAskTimesOut(t *testing.T) {
	b := New(nil, 20*time.Millisecond, nil)

	_, err := b.Ask(context.Background(), "s1", "files", "anyone there?")
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestAnswerUnknownIDIsNoop(t *testing.T) {
	b := New(nil, time.Minute, nil)
	b.Answer("missing", "hello") // must not panic
}

func TestAskCancelledContext(t *testing.T) {
	b := New(nil, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.Ask(ctx, "s1", "files", "q"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
