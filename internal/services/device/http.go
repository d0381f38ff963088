package device

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// NewRouter exposes the provider REST surface used by actuator.HTTPInvoker and
// actuator.HTTPStateReader. An empty token disables authentication.
func NewRouter(d *DeviceService, token string) *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	if token != "" {
		api.Use(bearer(token))
	}
	api.HandleFunc("/services/{domain}/{service}", func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		var data map[string]any
		if err := json.NewDecoder(req.Body).Decode(&data); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid JSON body"})
			return
		}
		st, err := d.Call(vars["domain"], vars["service"], data)
		if err != nil {
			writeJSON(w, statusFor(err), map[string]any{"success": false, "message": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, []EntityState{st})
	}).Methods(http.MethodPost)

	api.HandleFunc("/states/{entity}", func(w http.ResponseWriter, req *http.Request) {
		st, err := d.State(mux.Vars(req)["entity"])
		if err != nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"message": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, st)
	}).Methods(http.MethodGet)

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	return r
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrUnknownEntity):
		return http.StatusNotFound
	default:
		return http.StatusBadRequest
	}
}

func bearer(token string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ") != token {
				writeJSON(w, http.StatusUnauthorized, map[string]any{"message": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
