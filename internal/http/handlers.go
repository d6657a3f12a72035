package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"gumball/internal/core"
	"gumball/internal/log"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 500
)

type coinRequest struct {
	Coin string `json:"coin"`
}

type dispenseRequest struct {
	Color string `json:"color"`
}

type balanceResponse struct {
	Balance core.Cents `json:"balance"`
	Display string     `json:"display"`
}

type menuResponse struct {
	Coins    []core.MenuItem `json:"coins"`
	Gumballs []core.MenuItem `json:"gumballs"`
}

type eventsResponse struct {
	Events []core.Event `json:"events"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err.Error())
			writeJSONError(w, http.StatusServiceUnavailable, "not_ready", err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleMenu(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, menuResponse{Coins: core.Coins(), Gumballs: core.Products()})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	b := s.vending.Balance()
	writeJSON(w, http.StatusOK, balanceResponse{Balance: b, Display: b.String()})
}

func (s *Server) handleInsertCoin(w http.ResponseWriter, r *http.Request) {
	var req coinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Coin) == "" {
		writeJSONError(w, http.StatusBadRequest, "validation_error", "coin is required")
		return
	}
	writeJSON(w, http.StatusOK, s.vending.InsertCoin(r.Context(), req.Coin))
}

func (s *Server) handleDispense(w http.ResponseWriter, r *http.Request) {
	var req dispenseRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Color) == "" {
		writeJSONError(w, http.StatusBadRequest, "validation_error", "color is required")
		return
	}
	writeJSON(w, http.StatusOK, s.vending.Dispense(r.Context(), req.Color))
}

func (s *Server) handleReturnChange(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.vending.ReturnChange(r.Context()))
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSONError(w, http.StatusNotFound, "ledger_disabled", "set DATA_BACKEND=sqlite to record events")
		return
	}

	limit := defaultEventLimit
	if v := strings.TrimSpace(r.URL.Query().Get("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxEventLimit {
			writeJSONError(w, http.StatusBadRequest, "validation_error", "limit must be between 1 and "+strconv.Itoa(maxEventLimit))
			return
		}
		limit = n
	}

	events, err := s.ledger.ListEvents(r.Context(), limit)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to list events", log.FieldError, err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

func (s *Server) handleSalesSummary(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeJSONError(w, http.StatusNotFound, "ledger_disabled", "set DATA_BACKEND=sqlite to record events")
		return
	}
	summary, err := s.ledger.SalesSummary(r.Context())
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Failed to build sales summary", log.FieldError, err.Error())
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// decodeBody reads a single JSON object into dst. It writes the error
// response itself and reports false when the body is unusable.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			writeJSONError(w, http.StatusRequestEntityTooLarge, "body_too_large", "")
		case errors.Is(err, io.EOF):
			writeJSONError(w, http.StatusBadRequest, "invalid_json", "request body is empty")
		default:
			writeJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		}
		return false
	}
	if dec.More() {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "body must contain a single object")
		return false
	}
	return true
}
