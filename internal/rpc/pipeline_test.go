package rpc

import (
	"context"
	"testing"
)

func TestChain_OrderIsOutermostFirst(t *testing.T) {
	var order []string
	stage := func(name string) Stage {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, req *Request) (*Result, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	handler := func(ctx context.Context, req *Request) (*Result, error) {
		order = append(order, "handler")
		return OK(nil), nil
	}

	chained := Chain(handler, stage("a"), stage("b"), stage("c"))
	if _, err := chained(context.Background(), &Request{}); err != nil {
		t.Fatalf("chain: %v", err)
	}

	want := []string{"a", "b", "c", "handler"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestChain_ShortCircuitSkipsLaterStages(t *testing.T) {
	executed := 0
	counting := func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (*Result, error) {
			executed++
			return next(ctx, req)
		}
	}
	rejecting := func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (*Result, error) {
			return Fail(CodeValidation, "rejected"), nil
		}
	}

	handlerRuns := 0
	handler := func(ctx context.Context, req *Request) (*Result, error) {
		handlerRuns++
		return OK(nil), nil
	}

	result, err := Chain(handler, Stage(counting), Stage(rejecting), Stage(counting))(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if result.Success {
		t.Error("expected failure result")
	}
	if executed != 1 {
		t.Errorf("stages executed = %d, want 1 (stage after short-circuit must not run)", executed)
	}
	if handlerRuns != 0 {
		t.Errorf("handler ran %d times, want 0", handlerRuns)
	}
}

func TestChain_NoStages(t *testing.T) {
	handler := func(ctx context.Context, req *Request) (*Result, error) {
		return OK(map[string]any{"value": 42}), nil
	}
	result, err := Chain(handler)(context.Background(), &Request{})
	if err != nil {
		t.Fatalf("chain: %v", err)
	}
	if !result.Success {
		t.Error("expected success")
	}
}
