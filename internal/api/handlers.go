package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"defiwatch-telegram-bot/internal/database"
	"defiwatch-telegram-bot/internal/monitor"
	"defiwatch-telegram-bot/internal/ratelimit"
	"defiwatch-telegram-bot/internal/subgraph"
	"defiwatch-telegram-bot/internal/telegram"
	"defiwatch-telegram-bot/internal/types"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MonitorController is the monitor lifecycle surface the boundary exposes.
type MonitorController interface {
	Start()
	Stop()
	IsActive() bool
	TestAlert(ownerID, alertID string) (*monitor.TestResult, error)
}

// Notifier is the messaging surface the boundary exposes.
type Notifier interface {
	TestConnection() (*telegram.ChannelInfo, error)
	Send(ctx context.Context, target, message string) error
	SendToUsername(ctx context.Context, handle, message string) error
}

// Querier submits a cached, rate-limited upstream query.
type Querier interface {
	Query(ctx context.Context, clientID string, req subgraph.QueryRequest) (*subgraph.QueryResult, error)
}

// Server wires the boundary handlers to the core services.
type Server struct {
	Monitor  MonitorController
	Alerts   *database.AlertStore
	Subgraph Querier
	Bot      Notifier
}

// NewRouter builds the API router. Owner-scoped routes require an
// authenticated identity supplied by the session layer in front of us.
func NewRouter(s *Server) chi.Router {
	r := chi.NewRouter()

	r.Route("/api", func(r chi.Router) {
		r.Post("/monitor/start", s.handleMonitorStart)
		r.Post("/monitor/stop", s.handleMonitorStop)
		r.Get("/monitor/status", s.handleMonitorStatus)

		r.Group(func(r chi.Router) {
			r.Use(requireOwner)
			r.Post("/alerts", s.handleCreateAlert)
			r.Get("/alerts", s.handleListAlerts)
			r.Patch("/alerts/{alertID}", s.handleToggleAlert)
			r.Delete("/alerts/{alertID}", s.handleDeleteAlert)
			r.Post("/alerts/{alertID}/test", s.handleTestAlert)
		})

		r.Post("/subgraph/query", s.handleSubgraphQuery)
		r.Get("/notifications/test", s.handleNotifyTest)
		r.Post("/notifications/send", s.handleNotifySend)
	})

	return r
}

type ctxKey int

const ownerKey ctxKey = iota

// requireOwner pulls the authenticated owner identity from the request.
// Session handling lives outside the core; an absent identity is a 401.
func requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := r.Header.Get("X-User-ID")
		if owner == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "missing user identity"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ownerKey, owner)))
	})
}

func ownerFrom(r *http.Request) string {
	owner, _ := r.Context().Value(ownerKey).(string)
	return owner
}

func (s *Server) handleMonitorStart(w http.ResponseWriter, r *http.Request) {
	s.Monitor.Start()
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.Monitor.IsActive()})
}

func (s *Server) handleMonitorStop(w http.ResponseWriter, r *http.Request) {
	s.Monitor.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.Monitor.IsActive()})
}

func (s *Server) handleMonitorStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"running": s.Monitor.IsActive()})
}

type createAlertRequest struct {
	AlertName       string           `json:"alert_name"`
	WidgetType      types.WidgetType `json:"widget_type"`
	Condition       types.Condition  `json:"condition"`
	Threshold       float64          `json:"threshold"`
	NotifyTarget    string           `json:"notify_target"`
	CustomMessage   string           `json:"custom_message"`
	CooldownMinutes int              `json:"cooldown_minutes"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("invalid request body"))
		return
	}

	alert := &types.Alert{
		OwnerID:         ownerFrom(r),
		AlertName:       req.AlertName,
		WidgetType:      req.WidgetType,
		Condition:       req.Condition,
		Threshold:       req.Threshold,
		NotifyTarget:    req.NotifyTarget,
		CustomMessage:   req.CustomMessage,
		CooldownMinutes: req.CooldownMinutes,
	}

	if err := s.Alerts.InsertAlert(alert); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, alert)
}

type alertListItem struct {
	types.Alert
	CreatedAgo   string `json:"created_ago"`
	LastFiredAgo string `json:"last_fired_ago,omitempty"`
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.Alerts.GetAlertsByOwner(ownerFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]alertListItem, 0, len(alerts))
	for _, a := range alerts {
		item := alertListItem{Alert: a, CreatedAgo: humanize.Time(a.CreatedAt)}
		if a.LastFiredAt != nil {
			item.LastFiredAgo = humanize.Time(*a.LastFiredAt)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"alerts": items})
}

func (s *Server) handleToggleAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsActive *bool `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		writeError(w, types.NewValidationError("is_active is required"))
		return
	}

	if err := s.Alerts.SetAlertActive(ownerFrom(r), chi.URLParam(r, "alertID"), *req.IsActive); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"is_active": *req.IsActive})
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.Alerts.DeleteAlert(ownerFrom(r), chi.URLParam(r, "alertID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTestAlert(w http.ResponseWriter, r *http.Request) {
	result, err := s.Monitor.TestAlert(ownerFrom(r), chi.URLParam(r, "alertID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubgraphQuery(w http.ResponseWriter, r *http.Request) {
	var req subgraph.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewValidationError("invalid request body"))
		return
	}

	result, err := s.Subgraph.Query(r.Context(), ratelimit.ClientIdentifier(r), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	info, err := s.Bot.TestConnection()
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"channel_info": info,
	})
}

func (s *Server) handleNotifySend(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target  string `json:"target"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" || req.Message == "" {
		writeError(w, types.NewValidationError("target and message are required"))
		return
	}

	var err error
	if strings.HasPrefix(req.Target, "@") {
		err = s.Bot.SendToUsername(r.Context(), req.Target, req.Message)
	} else {
		err = s.Bot.Send(r.Context(), req.Target, req.Message)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"delivered": true,
		"target":    req.Target,
		"timestamp": time.Now().UTC(),
	})
}

// writeError maps the error taxonomy onto HTTP statuses. Throttled callers
// get a Retry-After header alongside the retryAfter field.
func writeError(w http.ResponseWriter, err error) {
	var rl *types.RateLimitError
	switch {
	case types.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case types.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", fmt.Sprintf("%d", rl.RetryAfter))
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
			"error":      err.Error(),
			"retryAfter": rl.RetryAfter,
		})
	case types.IsUpstream(err), types.IsDispatch(err):
		log.Errorf("gateway failure: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
	default:
		log.Errorf("internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Errorf("failed to encode response: %v", err)
	}
}
