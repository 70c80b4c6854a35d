package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
)

func TestDispatcher_InvokeUnknownCommand(t *testing.T) {
	d := NewDispatcher()
	_, err := d.Invoke(context.Background(), "nope", nil, Data{})
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("err = %v, want ErrUnknownCommand", err)
	}
}

func TestDispatcher_RegisterAndInvoke(t *testing.T) {
	d := NewDispatcher()
	d.Register("echo", func(ctx context.Context, req *Request) (*Result, error) {
		return OK(map[string]any{"uid": req.Caller.UID}), nil
	}, RequireAuthentication())

	if _, err := d.Invoke(context.Background(), "echo", nil, Data{}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("unauthenticated invoke err = %v", err)
	}

	result, err := d.Invoke(context.Background(), "echo", &Caller{UID: "u1"}, Data{})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if !result.Success || result.Extra["uid"] != "u1" {
		t.Errorf("result = %+v", result)
	}
}

func TestDispatcher_DuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	d := NewDispatcher()
	h := func(ctx context.Context, req *Request) (*Result, error) { return OK(nil), nil }
	d.Register("dup", h)
	d.Register("dup", h)
}

func TestDispatcher_Commands(t *testing.T) {
	d := NewDispatcher()
	h := func(ctx context.Context, req *Request) (*Result, error) { return OK(nil), nil }
	d.Register("b", h)
	d.Register("a", h)

	names := d.Commands()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Commands() = %v, want sorted [a b]", names)
	}
}

func TestResult_MarshalJSON(t *testing.T) {
	ok := OK(map[string]any{"orderId": "PAY-1"})
	data, err := json.Marshal(ok)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["success"] != true || decoded["orderId"] != "PAY-1" {
		t.Errorf("decoded = %v", decoded)
	}
	if _, present := decoded["errorCode"]; present {
		t.Error("errorCode must be omitted on success")
	}

	fail := Fail(CodeValidation, "bad")
	data, _ = json.Marshal(fail)
	decoded = map[string]any{}
	json.Unmarshal(data, &decoded) //nolint:errcheck
	if decoded["success"] != false || decoded["errorCode"] != float64(CodeValidation) || decoded["errorMessage"] != "bad" {
		t.Errorf("decoded failure = %v", decoded)
	}
}
