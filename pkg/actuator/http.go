package actuator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/LeonardoBeccarini/climate_controller/internal/model/entities"
)

type HTTPConfig struct {
	BaseURL         string
	Token           string
	Timeout         time.Duration
	BreakerFailures int
	BreakerOpenFor  time.Duration
}

// HTTPInvoker calls the provider REST API (POST {base}/api/services/{domain}/{command})
// behind a circuit breaker. Transport errors and 5xx answers count as breaker failures;
// 4xx answers (rate limits included) are normal negative responses.
type HTTPInvoker struct {
	base    string
	token   string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

var _ Invoker = (*HTTPInvoker)(nil)

func NewHTTPInvoker(cfg HTTPConfig) *HTTPInvoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.BreakerFailures < 1 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerOpenFor <= 0 {
		cfg.BreakerOpenFor = 30 * time.Second
	}
	fails := uint32(cfg.BreakerFailures)
	return &HTTPInvoker{
		base:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:  cfg.Token,
		client: &http.Client{Timeout: cfg.Timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "actuator-provider",
			Timeout: cfg.BreakerOpenFor,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= fails
			},
		}),
	}
}

func (h *HTTPInvoker) Invoke(ctx context.Context, domain, command string, params map[string]any) (Response, error) {
	res, err := h.breaker.Execute(func() (any, error) {
		return h.call(ctx, domain, command, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Response{}, &CallError{Code: "breaker_open", Msg: "actuator provider circuit open"}
	}
	if err != nil {
		return Response{}, err
	}
	return res.(Response), nil
}

func (h *HTTPInvoker) BreakerState() string { return h.breaker.State().String() }

func (h *HTTPInvoker) call(ctx context.Context, domain, command string, params map[string]any) (Response, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return Response{}, &CallError{Code: "bad_params", Msg: err.Error()}
	}
	url := fmt.Sprintf("%s/api/services/%s/%s", h.base, domain, command)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Response{}, &CallError{Code: "network", Msg: err.Error()}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 500 {
		return Response{}, &CallError{Code: strconv.Itoa(resp.StatusCode), Msg: strings.TrimSpace(string(raw))}
	}
	var data any
	if len(bytes.TrimSpace(raw)) > 0 {
		if json.Unmarshal(raw, &data) != nil {
			data = string(raw)
		}
	}
	if resp.StatusCode >= 400 {
		return Response{Success: false, Data: data, ErrorCode: strconv.Itoa(resp.StatusCode)}, nil
	}
	out := Response{Success: true, Data: data}
	// some vendors answer 200 with {"success":false,...}
	if m, ok := data.(map[string]any); ok {
		if s, ok := m["success"].(bool); ok && !s {
			out.Success = false
		}
	}
	return out, nil
}

// HTTPStateReader reads actuator state from GET {base}/api/states/{entity}.
type HTTPStateReader struct {
	base     string
	token    string
	client   *http.Client
	entities Entities
}

func NewHTTPStateReader(cfg HTTPConfig, ents Entities) *HTTPStateReader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPStateReader{
		base:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		token:    cfg.Token,
		client:   &http.Client{Timeout: cfg.Timeout},
		entities: ents,
	}
}

type providerState struct {
	State       string         `json:"state"`
	Attributes  map[string]any `json:"attributes"`
	LastUpdated time.Time      `json:"last_updated"`
}

func (r *HTTPStateReader) ReadActuatorState(ctx context.Context, device entities.Device) (entities.ActuatorState, error) {
	out := entities.ActuatorState{Device: device}
	switch device {
	case entities.DeviceHumidifier:
		sw, err := r.get(ctx, r.entities.Humidifier)
		if err != nil {
			return out, err
		}
		out.Mode, out.ReportedAt = sw.State, sw.LastUpdated
		in, err := r.get(ctx, r.entities.HumidifierIntensity)
		if err != nil {
			return out, err
		}
		if out.CurrentPower, err = parseFloat(r.entities.HumidifierIntensity, in.State); err != nil {
			return out, err
		}
	case entities.DeviceExhaustFan, entities.DeviceLight:
		entity := r.entities.ExhaustFan
		if device == entities.DeviceLight {
			entity = r.entities.Light
		}
		st, err := r.get(ctx, entity)
		if err != nil {
			return out, err
		}
		if out.CurrentPower, err = parseFloat(entity, st.State); err != nil {
			return out, err
		}
		out.ReportedAt = st.LastUpdated
		out.Mode = entities.ModeOff
		if out.CurrentPower > 0 {
			out.Mode = entities.ModeOn
		}
	case entities.DeviceHeater:
		st, err := r.get(ctx, r.entities.Heater)
		if err != nil {
			return out, err
		}
		out.Mode, out.ReportedAt = st.State, st.LastUpdated
		if v, ok := st.Attributes["temperature"].(float64); ok {
			out.Setpoint = &v
		}
	default:
		return out, fmt.Errorf("unknown device %q", device)
	}
	return out, nil
}

func (r *HTTPStateReader) get(ctx context.Context, entity string) (providerState, error) {
	var st providerState
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.base+"/api/states/"+entity, nil)
	if err != nil {
		return st, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return st, fmt.Errorf("state %s: %w", entity, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return st, fmt.Errorf("state %s: status %d", entity, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return st, fmt.Errorf("state %s decode: %w", entity, err)
	}
	if st.State == "unavailable" || st.State == "unknown" {
		return st, fmt.Errorf("state %s: %s", entity, st.State)
	}
	return st, nil
}

// parseFloat accepts a decimal comma; a non-numeric state is an error, never zero.
func parseFloat(entity, s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(s), ",", "."), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("state %s: not a number: %q", entity, s)
	}
	return f, nil
}
