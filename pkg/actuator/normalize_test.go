package actuator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeShapes(t *testing.T) {
	cases := []struct {
		name     string
		resp     Response
		err      error
		wantOK   bool
		wantMsg  string
		wantCode string
	}{
		{name: "success", resp: Response{Success: true, Data: map[string]any{"ok": true}}, wantOK: true},
		{name: "top level error", resp: Response{Error: "device offline", ErrorCode: "E42"}, wantMsg: "device offline", wantCode: "E42"},
		{
			name:    "data.message",
			resp:    Response{Data: map[string]any{"message": "humidifier busy"}},
			wantMsg: "humidifier busy",
		},
		{
			name:     "stringified json in message",
			resp:     Response{Data: map[string]any{"message": `{"code":"rate_limited","msg":"slow down"}`}},
			wantMsg:  "slow down",
			wantCode: "rate_limited",
		},
		{
			name:     "nested error.msg",
			resp:     Response{Data: map[string]any{"error": map[string]any{"msg": "quota", "code": float64(429)}}},
			wantMsg:  "quota",
			wantCode: "429",
		},
		{name: "empty failure", resp: Response{}, wantMsg: defaultFail},
		{name: "go error", err: &CallError{Code: "network", Msg: "connection refused"}, wantMsg: "network: connection refused", wantCode: "network"},
		{name: "wrapped deadline", err: fmt.Errorf("call: %w", context.DeadlineExceeded), wantMsg: "call: context deadline exceeded", wantCode: "timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Normalize(tc.resp, tc.err)
			assert.Equal(t, tc.wantOK, got.Success)
			assert.Equal(t, tc.wantMsg, got.Error)
			assert.Equal(t, tc.wantCode, got.ErrorCode)
		})
	}
}

func TestDispatchRecoversPanics(t *testing.T) {
	inv := InvokerFunc(func(context.Context, string, string, map[string]any) (Response, error) {
		panic("boom")
	})
	got := Dispatch(context.Background(), inv, "climate", "set_temperature", nil)
	assert.False(t, got.Success)
	assert.Equal(t, CodePanic, got.ErrorCode)
	assert.Contains(t, got.Error, "boom")
}

func TestDispatchPassesArguments(t *testing.T) {
	var gotDomain, gotCmd string
	inv := InvokerFunc(func(_ context.Context, d, c string, p map[string]any) (Response, error) {
		gotDomain, gotCmd = d, c
		return Response{Success: true}, nil
	})
	out := Dispatch(context.Background(), inv, "number", "set_value", map[string]any{"value": 2})
	assert.True(t, out.Success)
	assert.Equal(t, "number", gotDomain)
	assert.Equal(t, "set_value", gotCmd)

	assert.False(t, Dispatch(context.Background(), nil, "x", "y", nil).Success)
}

func TestRateLimitSignature(t *testing.T) {
	sig := DefaultRateLimitSignature()
	assert.True(t, sig.Match(Outcome{ErrorCode: "429"}))
	assert.True(t, sig.Match(Outcome{ErrorCode: "RATE_LIMITED"}))
	assert.True(t, sig.Match(Outcome{Error: "Too Many Requests, retry later"}))
	assert.True(t, sig.Match(Outcome{Error: "vendor rate-limit hit"}))
	assert.False(t, sig.Match(Outcome{Error: "device offline", ErrorCode: "E42"}))
	assert.False(t, sig.Match(Outcome{Success: true, ErrorCode: "429"}))
	assert.False(t, RateLimitSignature{}.Match(Outcome{Error: "rate limit"}))
}

func TestCallErrorUnwrapsCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &CallError{Code: "503", Msg: "unavailable"})
	var ce *CallError
	assert.True(t, errors.As(err, &ce))
	assert.Equal(t, "503", Normalize(Response{}, err).ErrorCode)
}
