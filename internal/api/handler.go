package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/laozhen/realtime-fraud-detection-system/internal/config"
	"github.com/laozhen/realtime-fraud-detection-system/internal/engine"
	"github.com/laozhen/realtime-fraud-detection-system/internal/fraud"
	"github.com/laozhen/realtime-fraud-detection-system/internal/transaction"
)

const (
	maxBodyBytes   = 1 << 20
	readyThreshold = 0.8
)

// Pipeline is what the control plane needs from the engine.
type Pipeline interface {
	Publish(tx transaction.Transaction, ack engine.Acknowledger) error
	State() engine.State
	Utilization() float64
	RemainingCapacity() int
	Stats() engine.Stats
}

// Reloader re-reads the configuration file.
type Reloader interface {
	Reload() (*config.Config, error)
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	pipeline Pipeline
	rules    *fraud.RuleSet
	loader   Reloader
	logger   *slog.Logger
	mux      *http.ServeMux
}

// New creates an HTTP handler and registers all routes. loader may be nil when
// running without a config file.
func New(p Pipeline, rules *fraud.RuleSet, loader Reloader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{pipeline: p, rules: rules, loader: loader, logger: logger, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/transactions", h.ingestTransaction)
	h.mux.HandleFunc("POST /v1/blacklist", h.addToBlacklist)
	h.mux.HandleFunc("GET /v1/blacklist", h.listBlacklist)
	h.mux.HandleFunc("GET /v1/rules", h.listRules)
	h.mux.HandleFunc("POST /v1/rules/reload", h.reloadRules)
	h.mux.HandleFunc("GET /v1/stats", h.stats)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(logger, h.mux)
}

// POST /v1/transactions — admit one transaction. Analysis is asynchronous;
// HTTP-ingested transactions carry no ack handle.
func (h *Handler) ingestTransaction(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var tx transaction.Transaction
	if err := json.Unmarshal(body, &tx); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if err := tx.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.pipeline.Publish(tx, nil); err != nil {
		if errors.Is(err, engine.ErrBufferUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"transactionId": tx.ID,
		"status":        "accepted",
	})
}

type blacklistRequest struct {
	AccountID string `json:"account_id"`
}

// POST /v1/blacklist — add an account to the suspicious list at runtime.
func (h *Handler) addToBlacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}
	added := h.rules.Suspicious.AddToBlacklist(req.AccountID)
	if added {
		h.logger.Info("account blacklisted", "account_id", req.AccountID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"account_id": req.AccountID,
		"added":      added,
	})
}

// GET /v1/blacklist
func (h *Handler) listBlacklist(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"accounts": h.rules.Suspicious.Accounts(),
	})
}

type ruleView struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Expression string `json:"expression,omitempty"`
	Threshold  string `json:"threshold,omitempty"`
	Limit      int    `json:"max_per_minute,omitempty"`
}

// GET /v1/rules — list active rules in evaluation order.
func (h *Handler) listRules(w http.ResponseWriter, r *http.Request) {
	rules := h.rules.Detector.Rules()
	out := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		v := ruleView{Name: rule.Name(), Kind: "builtin"}
		switch rr := rule.(type) {
		case *fraud.LargeAmountRule:
			v.Threshold = rr.Threshold().String()
		case *fraud.RapidFireRule:
			v.Limit = rr.MaxPerMinute()
		case *fraud.ExpressionRule:
			v.Kind = "expression"
			v.Expression = rr.Expression()
		}
		out = append(out, v)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rules": out})
}

// POST /v1/rules/reload — re-read the config file and apply rule changes.
func (h *Handler) reloadRules(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusConflict, "no config file to reload")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err := h.rules.Reload(cfg.Rules); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":    true,
		"rules_count": len(h.rules.Detector.Rules()),
	})
}

// GET /v1/stats
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":              h.pipeline.State().String(),
		"utilization":        h.pipeline.Utilization(),
		"remaining_capacity": h.pipeline.RemainingCapacity(),
		"totals":             h.pipeline.Stats(),
		"rapid_fire_tracked": h.rules.RapidFire.Tracked(),
	})
}

// GET /healthz — always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz — 503 unless started and the ring buffer is at most 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	state := h.pipeline.State()
	util := h.pipeline.Utilization()
	body := map[string]interface{}{
		"state":              state.String(),
		"buffer_utilization": util,
	}
	switch {
	case state != engine.StateStarted:
		body["status"] = "not_running"
		writeJSON(w, http.StatusServiceUnavailable, body)
	case util > readyThreshold:
		body["status"] = "overloaded"
		writeJSON(w, http.StatusServiceUnavailable, body)
	default:
		body["status"] = "ready"
		writeJSON(w, http.StatusOK, body)
	}
}
