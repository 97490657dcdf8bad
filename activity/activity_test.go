package activity_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/craftedsys/durable/activity"
)

func TestRegistry(t *testing.T) {
	reg := activity.NewRegistry()

	reg.Register("echo", func(_ context.Context, args []json.RawMessage) (any, error) {
		return string(args[0]), nil
	})

	if _, ok := reg.Get("echo"); !ok {
		t.Fatal("registered activity not found")
	}
	if _, ok := reg.Get("missing"); ok {
		t.Error("unregistered activity should not be found")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "echo" {
		t.Errorf("Names() = %v, want [echo]", names)
	}
}

func TestRegisterReplaces(t *testing.T) {
	reg := activity.NewRegistry()

	reg.Register("a", func(_ context.Context, _ []json.RawMessage) (any, error) { return 1, nil })
	reg.Register("a", func(_ context.Context, _ []json.RawMessage) (any, error) { return 2, nil })

	h, _ := reg.Get("a")
	got, err := h(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Errorf("handler result = %v, want 2 (latest registration)", got)
	}
}

func TestDecode(t *testing.T) {
	args, err := activity.EncodeArgs("contacts", map[string]int{"total": 5}, nil)
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}

	var kind string
	var payload map[string]int
	if err := activity.Decode(args, &kind, &payload); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if kind != "contacts" {
		t.Errorf("kind = %q, want %q", kind, "contacts")
	}
	if payload["total"] != 5 {
		t.Errorf("payload[total] = %d, want 5", payload["total"])
	}
}

func TestDecodeTooFewArgs(t *testing.T) {
	var a, b string
	err := activity.Decode([]json.RawMessage{json.RawMessage(`"only"`)}, &a, &b)
	if err == nil {
		t.Error("expected error decoding 1 arg into 2 targets")
	}
}

func TestDecodeTypeMismatch(t *testing.T) {
	var n int
	err := activity.Decode([]json.RawMessage{json.RawMessage(`"text"`)}, &n)
	if err == nil {
		t.Error("expected error decoding string into int")
	}
}
