package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/parley-ai/parley/internal/routing"
	"github.com/parley-ai/parley/pkg/models"
)

func echoCapability() Capability {
	return Capability{
		Name:        "echo",
		Description: "echoes its input",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}}}`),
	}
}

func TestLoopbackInvoke(t *testing.T) {
	conn := NewLoopback("test", nil)
	defer conn.Close()

	conn.Register(echoCapability(), func(ctx context.Context, args map[string]any, oob OutOfBand) (*Result, error) {
		text, _ := args["text"].(string)
		return &Result{Content: "echo: " + text}, nil
	})

	res, err := conn.Invoke(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if res.Content != "echo: hi" {
		t.Fatalf("unexpected content %q", res.Content)
	}
}

func TestLoopbackUnknownCapability(t *testing.T) {
	conn := NewLoopback("test", nil)
	defer conn.Close()

	if _, err := conn.Invoke(context.Background(), "missing", nil); err == nil {
		t.Fatal("expected error for unknown capability")
	}
}

func TestLoopbackHandlerPanicBecomesError(t *testing.T) {
	conn := NewLoopback("test", nil)
	defer conn.Close()

	conn.Register(echoCapability(), func(ctx context.Context, args map[string]any, oob OutOfBand) (*Result, error) {
		panic("boom")
	})

	_, err := conn.Invoke(context.Background(), "echo", nil)
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("expected panic error, got %v", err)
	}

	// The receive loop must survive for the next call.
	conn.Register(Capability{Name: "ok"}, func(ctx context.Context, args map[string]any, oob OutOfBand) (*Result, error) {
		return &Result{Content: "fine"}, nil
	})
	res, err := conn.Invoke(context.Background(), "ok", nil)
	if err != nil || res.Content != "fine" {
		t.Fatalf("receive loop did not survive panic: %v", err)
	}
}

func TestLoopbackInvokeAfterClose(t *testing.T) {
	conn := NewLoopback("test", nil)
	conn.Close()

	_, err := conn.Invoke(context.Background(), "echo", nil)
	var transport *TransportError
	if !errors.As(err, &transport) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestLoopbackOutOfBandCrossesTaskBoundary(t *testing.T) {
	tbl := routing.NewTable(nil)
	conn := NewLoopback("files", tbl.Dispatch)
	defer conn.Close()

	conn.Register(echoCapability(), func(ctx context.Context, args map[string]any, oob OutOfBand) (*Result, error) {
		answer, ok := oob.AskUser(ctx, "which file?")
		if !ok {
			return &Result{Content: "cancelled", IsError: true}, nil
		}
		return &Result{Content: "picked " + answer}, nil
	})

	entry := &routing.Entry{
		Provider:  "files",
		SessionID: "s1",
		Call:      &models.ToolCall{ID: "c1", Provider: "files", Name: "echo"},
		PromptUser: func(ctx context.Context, question string) (string, error) {
			return "report.txt", nil
		},
	}
	if err := tbl.Install(entry); err != nil {
		t.Fatalf("install failed: %v", err)
	}
	defer tbl.Remove("files")

	res, err := conn.Invoke(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
	if res.Content != "picked report.txt" {
		t.Fatalf("unexpected content %q", res.Content)
	}
}

func TestLoopbackOutOfBandWithoutEntryIsCancelled(t *testing.T) {
	tbl := routing.NewTable(nil)
	conn := NewLoopback("files", tbl.Dispatch)
	defer conn.Close()

	conn.Register(echoCapability(), func(ctx context.Context, args map[string]any, oob OutOfBand) (*Result, error) {
		if _, ok := oob.AskUser(ctx, "q"); ok {
			t.Error("ask should be cancelled with no routing entry")
		}
		return &Result{Content: "done"}, nil
	})

	if _, err := conn.Invoke(context.Background(), "echo", nil); err != nil {
		t.Fatalf("invoke failed: %v", err)
	}
}

func TestCapabilityDeclaredKeys(t *testing.T) {
	c := Capability{InputSchema: json.RawMessage(
		`{"type":"object","properties":{"path":{"type":"string"},"identity":{"type":"string"}}}`)}

	keys := c.DeclaredKeys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	if !c.DeclaresIdentity() {
		t.Fatal("identity should be declared")
	}

	bad := Capability{InputSchema: json.RawMessage(`not json`)}
	if bad.DeclaredKeys() != nil || bad.DeclaresIdentity() {
		t.Fatal("unparseable schema must declare nothing")
	}
}
