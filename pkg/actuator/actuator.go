// Package actuator is the single dispatch boundary towards the sensor/actuator provider.
// Whatever shape the provider answers with, callers only ever see an Outcome.
package actuator

import "context"

// Response is the raw provider answer. Data may carry vendor specific nesting
// (data.message, data.error.msg, stringified JSON...) that Normalize understands.
type Response struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

// Invoker calls one provider command. Implementations must not retry.
type Invoker interface {
	Invoke(ctx context.Context, domain, command string, params map[string]any) (Response, error)
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, domain, command string, params map[string]any) (Response, error)

func (f InvokerFunc) Invoke(ctx context.Context, domain, command string, params map[string]any) (Response, error) {
	return f(ctx, domain, command, params)
}

// Outcome is the normalized result of a dispatch.
type Outcome struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
}

// CallError is returned by invokers for transport level failures.
type CallError struct {
	Code string
	Msg  string
}

func (e *CallError) Error() string {
	if e.Code == "" {
		return e.Msg
	}
	return e.Code + ": " + e.Msg
}

func (e *CallError) ErrorCode() string { return e.Code }
