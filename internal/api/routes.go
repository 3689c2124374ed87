package api

import (
	"encoding/json"
	"net/http"

	"github.com/yanun0323/logs"

	"main/internal/store"
)

// NewMux builds the HTTP surface. wsHandler is optional; pass nil when
// the process does not serve the status stream.
func NewMux(intake *Intake, wsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders/execute", handleExecute(intake))
	mux.HandleFunc("GET /api/orders/{id}", handleGetOrder(intake))
	if wsHandler != nil {
		mux.Handle("GET /ws/orders/{id}", wsHandler)
	}
	return mux
}

func handleExecute(intake *Intake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ExecuteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		order, err := intake.Submit(r.Context(), req)
		switch {
		case err == nil:
		case isValidationError(err):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		default:
			logs.Errorf("submit order: %+v", err)
			writeError(w, http.StatusInternalServerError, "failed to accept order")
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"orderId": order.ID})
	}
}

func handleGetOrder(intake *Intake) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		order, err := intake.GetStatus(r.Context(), r.PathValue("id"))
		if err != nil {
			if store.IsNotFound(err) {
				writeError(w, http.StatusNotFound, "order not found")
				return
			}
			logs.Errorf("get order: %+v", err)
			writeError(w, http.StatusInternalServerError, "failed to load order")
			return
		}
		writeJSON(w, http.StatusOK, order)
	}
}

func isValidationError(err error) bool {
	switch err {
	case ErrUnsupportedKind, ErrMissingTokens, ErrInvalidAmount:
		return true
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
