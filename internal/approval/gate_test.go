package approval

import (
	"context"
	"testing"
	"time"

	"github.com/parley-ai/parley/internal/registry"
	"github.com/parley-ai/parley/pkg/models"
)

func testCall(id string) models.ToolCall {
	return models.ToolCall{
		ID:        id,
		Provider:  "files",
		Name:      "delete_file",
		Arguments: map[string]any{"path": "/tmp/x"},
	}
}

func TestRequestEmitsWaitingBeforeHandleReturns(t *testing.T) {
	reg := registry.New(nil)
	ch := make(chan models.Event, 4)
	reg.Register("s1", registry.NewChanSink(ch))

	g := New(reg, time.Minute, nil)
	if _, err := g.Request(context.Background(), "s1", testCall("c1"), true, false); err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if len(ch) < 2 {
		t.Fatalf("expected waiting and request events, got %d", len(ch))
	}
	first := <-ch
	if first.Type != models.EventApprovalWaiting {
		t.Fatalf("first event should be approval.waiting, got %q", first.Type)
	}
	second := <-ch
	if second.Type != models.EventApprovalRequest {
		t.Fatalf("second event should be approval.request, got %q", second.Type)
	}
	if second.Approval == nil || second.Approval.CorrelationID != "c1" {
		t.Fatal("approval payload missing correlation id")
	}
}

func TestDuplicateRequestFailsFast(t *testing.T) {
	g := New(nil, time.Minute, nil)

	if _, err := g.Request(context.Background(), "s1", testCall("dup"), false, false); err != nil {
		t.Fatalf("first request failed: %v", err)
	}
	if _, err := g.Request(context.Background(), "s1", testCall("dup"), false, false); err == nil {
		t.Fatal("second request for the same correlation id must fail")
	}
	if got := g.PendingCount(); got != 1 {
		t.Fatalf("duplicate request must not overwrite the first, pending=%d", got)
	}
}

func TestResolveApproveUnedited(t *testing.T) {
	g := New(nil, time.Minute, nil)
	p, err := g.Request(context.Background(), "s1", testCall("c1"), true, false)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	g.Resolve(models.ApprovalResponse{CorrelationID: "c1", Approved: true})
	d := p.Wait(context.Background())

	if !d.Approved || d.Edited {
		t.Fatalf("expected unedited approval, got %+v", d)
	}
	if d.Arguments["path"] != "/tmp/x" {
		t.Fatalf("expected original arguments, got %v", d.Arguments)
	}
	if g.PendingCount() != 0 {
		t.Fatal("resolved entry must be removed")
	}
}

func TestResolveWithEditReturnsEditedArguments(t *testing.T) {
	g := New(nil, time.Minute, nil)
	p, _ := g.Request(context.Background(), "s1", testCall("c1"), true, false)

	g.Resolve(models.ApprovalResponse{
		CorrelationID: "c1",
		Approved:      true,
		Arguments:     map[string]any{"path": "/tmp/y"},
	})
	d := p.Wait(context.Background())

	if !d.Edited || d.Arguments["path"] != "/tmp/y" {
		t.Fatalf("expected edited arguments, got %+v", d)
	}
}

func TestEditIgnoredWhenEditsNotAllowed(t *testing.T) {
	g := New(nil, time.Minute, nil)
	p, _ := g.Request(context.Background(), "s1", testCall("c1"), false, false)

	g.Resolve(models.ApprovalResponse{
		CorrelationID: "c1",
		Approved:      true,
		Arguments:     map[string]any{"path": "/tmp/y"},
	})
	d := p.Wait(context.Background())

	if d.Edited || d.Arguments["path"] != "/tmp/x" {
		t.Fatalf("edit should be ignored when not allowed, got %+v", d)
	}
}

func TestRejectCarriesReason(t *testing.T) {
	g := New(nil, time.Minute, nil)
	p, _ := g.Request(context.Background(), "s1", testCall("c1"), false, false)

	g.Resolve(models.ApprovalResponse{CorrelationID: "c1", Approved: false})
	d := p.Wait(context.Background())

	if d.Approved || d.Reason != models.ApprovalReasonRejected {
		t.Fatalf("expected rejection, got %+v", d)
	}
}

func TestTimeoutAutoRejects(t *testing.T) {
	g := New(nil, 20*time.Millisecond, nil)
	p, _ := g.Request(context.Background(), "s1", testCall("c1"), false, false)

	d := p.Wait(context.Background())
	if d.Approved || d.Reason != models.ApprovalReasonTimeout {
		t.Fatalf("expected timeout rejection, got %+v", d)
	}
	if g.PendingCount() != 0 {
		t.Fatal("expired entry must be removed")
	}
}

func TestResolveAfterTimeoutIsNoop(t *testing.T) {
	g := New(nil, 20*time.Millisecond, nil)
	p, _ := g.Request(context.Background(), "s1", testCall("c1"), false, false)

	d := p.Wait(context.Background())
	if d.Reason != models.ApprovalReasonTimeout {
		t.Fatalf("expected timeout, got %+v", d)
	}

	// Late client decision must not panic or resurrect the request.
	g.Resolve(models.ApprovalResponse{CorrelationID: "c1", Approved: true})
	if g.PendingCount() != 0 {
		t.Fatal("late resolve must not re-register the request")
	}
}

func TestTimeoutAfterResolveIsNoop(t *testing.T) {
	g := New(nil, 30*time.Millisecond, nil)
	p, _ := g.Request(context.Background(), "s1", testCall("c1"), false, false)

	g.Resolve(models.ApprovalResponse{CorrelationID: "c1", Approved: true})
	d := p.Wait(context.Background())
	if !d.Approved {
		t.Fatalf("expected approval, got %+v", d)
	}

	// Give the timer a chance to fire; the resolved entry is gone so the
	// expiry must be a no-op.
	time.Sleep(60 * time.Millisecond)
	if g.PendingCount() != 0 {
		t.Fatal("gate must stay empty after timer fires")
	}
}

func TestWaitCancelledContext(t *testing.T) {
	g := New(nil, time.Minute, nil)
	p, _ := g.Request(context.Background(), "s1", testCall("c1"), false, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := p.Wait(ctx)
	if d.Approved {
		t.Fatal("cancelled wait must not approve")
	}
}
