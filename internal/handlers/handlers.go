package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/Billy-Davies-2/frc-line-service/internal/dal"
	"github.com/Billy-Davies-2/frc-line-service/internal/logger"
	"github.com/Billy-Davies-2/frc-line-service/internal/market"
	"github.com/Billy-Davies-2/frc-line-service/internal/models"
	"github.com/Billy-Davies-2/frc-line-service/internal/pubsub"
)

// maxBodyBytes caps request bodies; a full simulate or predict request is
// far below this.
const maxBodyBytes = 1 << 20

// APIHandlers contains all API handler methods
type APIHandlers struct {
	svc    *market.Service
	pubsub *pubsub.PubSub
}

// NewAPIHandlers creates a new API handlers instance
func NewAPIHandlers(svc *market.Service, ps *pubsub.PubSub) *APIHandlers {
	return &APIHandlers{
		svc:    svc,
		pubsub: ps,
	}
}

// Routes maps each API path to its handler
func (h *APIHandlers) Routes() map[string]http.HandlerFunc {
	return map[string]http.HandlerFunc{
		"/api/predict":         h.Predict,
		"/api/simulate":        h.Simulate,
		"/api/matches/line":    h.GetLine,
		"/api/matches/history": h.LineHistory,
		"/api/bets":            h.Bets,
		"/api/bets/get":        h.GetBet,
		"/api/config":          h.GetConfig,
		"/api/events":          h.EventsSSE,
	}
}

// Predict values two alliances and returns the match line
func (h *APIHandlers) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req market.PredictRequest
	if !decode(w, r, &req) {
		return
	}

	prediction, err := h.svc.Predict(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// Simulate predicts a batch of synthetic matches
func (h *APIHandlers) Simulate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req market.SimulateRequest
	if !decode(w, r, &req) {
		return
	}

	predictions, err := h.svc.Simulate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":     market.Summarize(predictions),
		"predictions": predictions,
	})
}

// GetLine returns the current line for ?matchId=
func (h *APIHandlers) GetLine(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	prediction, err := h.svc.GetLine(r.Context(), r.URL.Query().Get("matchId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, prediction)
}

// LineHistory returns recorded line snapshots for ?matchId=
func (h *APIHandlers) LineHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	history, err := h.svc.LineHistory(r.Context(), r.URL.Query().Get("matchId"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, history)
}

// Bets lists bets on GET and places a bet on POST
func (h *APIHandlers) Bets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listBets(w, r)
	case http.MethodPost:
		h.placeBet(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *APIHandlers) placeBet(w http.ResponseWriter, r *http.Request) {
	var req market.PlaceBetRequest
	if !decode(w, r, &req) {
		return
	}

	bet, err := h.svc.PlaceBet(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bet)
}

func (h *APIHandlers) listBets(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	bets, err := h.svc.ListBets(r.Context(), models.BetFilter{
		MatchID: q.Get("matchId"),
		User:    q.Get("user"),
		Limit:   limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bets)
}

// GetBet returns the bet with ?id=
func (h *APIHandlers) GetBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := r.URL.Query().Get("id")
	if raw == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "Invalid id parameter", http.StatusBadRequest)
		return
	}

	bet, err := h.svc.GetBet(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bet)
}

// GetConfig returns the valuation constants and the stake cap
func (h *APIHandlers) GetConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valuation":      h.svc.Config(),
		"maxBet":         h.svc.MaxBet(),
		"maxSimulations": market.MaxSimulations,
	})
}

// EventsSSE streams market events as Server-Sent Events. ?replay=N first
// sends up to N recent events when the event bus retains them.
func (h *APIHandlers) EventsSSE(w http.ResponseWriter, r *http.Request) {
	replay, err := queryInt(r, "replay")
	if err != nil || replay < 0 {
		http.Error(w, "invalid replay parameter", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	eventChan := h.pubsub.SubscribeReplay(replay)
	defer h.pubsub.Unsubscribe(eventChan)

	flush := func() {
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}

	fmt.Fprintf(w, "data: {\"type\":\"connected\"}\n\n")
	flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				logger.Warn("Failed to encode SSE event", "type", event.Type, "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flush()
		case <-r.Context().Done():
			logger.Debug("SSE client disconnected")
			return
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flush()
		}
	}
}

// decode reads a JSON body into v, writing a 400 on failure
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		logger.Warn("Failed to decode request", "path", r.URL.Path, "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", key)
	}
	return n, nil
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrInvalidRequest), errors.Is(err, market.ErrInvalidBet):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrUnknownMatch), errors.Is(err, dal.ErrBetNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	}
	http.Error(w, err.Error(), status)
}

// writeJSON encodes v before touching the response, so an encoding failure
// becomes a 500 instead of a truncated success.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Failed to encode response", "error", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(data, '\n'))
}
