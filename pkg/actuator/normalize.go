package actuator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	CodePanic   = "panic"
	defaultFail = "actuator call failed"
)

// Dispatch invokes inv and collapses every possible result, including a panic inside the
// invoker, into an Outcome. It is the primitive shared by the executor and the guardrail.
func Dispatch(ctx context.Context, inv Invoker, domain, command string, params map[string]any) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Success: false, Error: fmt.Sprintf("panic: %v", r), ErrorCode: CodePanic}
		}
	}()
	if inv == nil {
		return Outcome{Error: "no actuator invoker configured", ErrorCode: "unconfigured"}
	}
	resp, err := inv.Invoke(ctx, domain, command, params)
	return Normalize(resp, err)
}

// Normalize maps (Response, error) to an Outcome.
func Normalize(resp Response, err error) Outcome {
	if err != nil {
		out := Outcome{Error: err.Error()}
		var coded interface{ ErrorCode() string }
		if errors.As(err, &coded) {
			out.ErrorCode = coded.ErrorCode()
		}
		if errors.Is(err, context.DeadlineExceeded) && out.ErrorCode == "" {
			out.ErrorCode = "timeout"
		}
		return out
	}
	if resp.Success {
		return Outcome{Success: true}
	}
	msg, code := strings.TrimSpace(resp.Error), strings.TrimSpace(resp.ErrorCode)
	dm, dc := extract(resp.Data, 0)
	if msg == "" {
		msg = dm
	}
	if code == "" {
		code = dc
	}
	if msg == "" {
		msg = defaultFail
	}
	return Outcome{Success: false, Error: msg, ErrorCode: code}
}

// extract digs the human message and the code out of a vendor payload.
func extract(v any, depth int) (msg, code string) {
	if depth > 4 || v == nil {
		return "", ""
	}
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "{") {
			var inner map[string]any
			if json.Unmarshal([]byte(s), &inner) == nil {
				if m, c := extract(inner, depth+1); m != "" || c != "" {
					return m, c
				}
			}
		}
		return s, ""
	case []byte:
		return extract(string(t), depth+1)
	case error:
		return t.Error(), ""
	case map[string]any:
		for _, k := range []string{"code", "errorCode", "error_code"} {
			if c := scalar(t[k]); c != "" {
				code = c
				break
			}
		}
		if e, ok := t["error"]; ok {
			if m, c := extract(e, depth+1); m != "" || c != "" {
				return firstNonEmpty(m, scalar(t["message"])), firstNonEmpty(c, code)
			}
		}
		for _, k := range []string{"message", "msg", "detail"} {
			if raw, ok := t[k]; ok {
				m, c := extract(raw, depth+1)
				if m != "" {
					return m, firstNonEmpty(c, code)
				}
			}
		}
		if d, ok := t["data"]; ok {
			m, c := extract(d, depth+1)
			return m, firstNonEmpty(c, code)
		}
		return "", code
	}
	return "", ""
}

func scalar(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
