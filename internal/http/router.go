package httpx

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/botforge/botforge/internal/domain"
	"github.com/botforge/botforge/internal/repository"
	"github.com/botforge/botforge/internal/service/bot"
	"github.com/botforge/botforge/internal/service/deploy"
	"github.com/botforge/botforge/internal/service/execution"
	"github.com/botforge/botforge/internal/service/telemetry"
	"github.com/botforge/botforge/internal/service/webhook"
	"github.com/botforge/botforge/internal/ws"
)

// Router wires HTTP endpoints to services.
type Router struct {
	mux        *http.ServeMux
	logger     *slog.Logger
	bots       *bot.Service
	deploys    *deploy.Service
	executions *execution.Service
	telemetry  *telemetry.Service
	webhooks   *webhook.Service
	upgrader   websocket.Upgrader
	limiter    RateLimiter
	jwtSecret  string
	dbHealth   func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

const (
	rateWindowDefault  = time.Minute
	rateWindowRealtime = 30 * time.Second
	rateLimitUserWrite = 60
	rateLimitUserRead  = 120
	rateLimitWebsocket = 30
	rateLimitWebhook   = 120
	healthCheckTimeout = 2 * time.Second
	sseHeartbeat       = 15 * time.Second
)

// NewRouter assembles routes with dependencies.
func NewRouter(
	logger *slog.Logger,
	botSvc *bot.Service,
	deploySvc *deploy.Service,
	executionSvc *execution.Service,
	telemetrySvc *telemetry.Service,
	webhookSvc *webhook.Service,
	limiter RateLimiter,
	jwtSecret string,
	dbHealth func(context.Context) error,
) *Router {
	r := &Router{
		mux:        http.NewServeMux(),
		logger:     logger,
		bots:       botSvc,
		deploys:    deploySvc,
		executions: executionSvc,
		telemetry:  telemetrySvc,
		webhooks:   webhookSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		limiter:   limiter,
		jwtSecret: jwtSecret,
		dbHealth:  dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.Handle("/metrics", promhttp.Handler())
	r.mux.HandleFunc("/bots", r.audit("/bots", r.handlerAuthRate("/bots", rateLimitUserWrite, rateWindowDefault, r.handleBots)))
	r.mux.HandleFunc("/bots/", r.audit("/bots/{id}", r.handlerAuthRate("/bots/{id}", rateLimitUserWrite, rateWindowDefault, r.handleBotSubroutes)))
	r.mux.HandleFunc("/deployments/", r.audit("/deployments/{id}", r.handlerAuthRate("/deployments/{id}", rateLimitUserRead, rateWindowDefault, r.handleDeploymentSubroutes)))
	r.mux.HandleFunc("/executions", r.audit("/executions", r.handlerAuthRate("/executions", rateLimitUserRead, rateWindowDefault, r.handleRecentExecutions)))
	r.mux.HandleFunc("/executions/", r.audit("/executions/{id}", r.handlerAuthRate("/executions/{id}", rateLimitUserRead, rateWindowDefault, r.handleExecutionSubroutes)))
	r.mux.HandleFunc("/webhook/", r.audit("/webhook/{bot}", r.withRateLimit("/webhook/{bot}", rateLimitWebhook, rateWindowDefault, rateLimitKeyIP, r.handleWebhookTrigger)))
	r.mux.HandleFunc("/ws/events", r.audit("/ws/events", r.handlerAuthRate("/ws/events", rateLimitWebsocket, rateWindowRealtime, r.handleEventsWS)))
	r.mux.HandleFunc("/sse/events", r.audit("/sse/events", r.handlerAuthRate("/sse/events", rateLimitWebsocket, rateWindowRealtime, r.handleEventsSSE)))
}

func (r *Router) handleBots(w http.ResponseWriter, req *http.Request) {
	userID, ok := r.userID(w, req)
	if !ok {
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Name        string          `json:"name"`
			Description string          `json:"description"`
			SourceCode  string          `json:"source_code"`
			Config      json.RawMessage `json:"config"`
			EnvVars     json.RawMessage `json:"env_vars"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.bots.Create(req.Context(), userID, bot.CreateInput{
			Name:        payload.Name,
			Description: payload.Description,
			SourceCode:  payload.SourceCode,
			Config:      payload.Config,
			EnvVars:     payload.EnvVars,
		})
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		bots, err := r.bots.List(req.Context(), userID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bots)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleBotSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/bots/")
	parts := strings.Split(trimmed, "/")
	botID := parts[0]
	if botID == "" {
		r.notFound(w)
		return
	}
	userID, ok := r.userID(w, req)
	if !ok {
		return
	}
	if len(parts) == 1 {
		r.handleBot(w, req, userID, botID)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "publish":
			r.handleBotPublish(w, req, userID, botID)
		case "versions":
			r.handleBotVersions(w, req, userID, botID)
		case "deployments":
			r.handleBotDeployments(w, req, userID, botID)
		case "executions":
			r.handleBotExecutions(w, req, userID, botID)
		case "statistics":
			r.handleBotStatistics(w, req, userID, botID)
		case "events":
			r.handleBotEvents(w, req, userID, botID)
		case "telemetry":
			r.handleBotTelemetry(w, req, userID, botID)
		case "webhook-secret":
			r.handleBotWebhookSecret(w, req, userID, botID)
		default:
			r.notFound(w)
		}
		return
	}
	if len(parts) == 3 && parts[1] == "deployments" && parts[2] == "active" {
		r.handleBotActiveDeployment(w, req, userID, botID)
		return
	}
	r.notFound(w)
}

func (r *Router) handleBot(w http.ResponseWriter, req *http.Request, userID, botID string) {
	switch req.Method {
	case http.MethodGet:
		b, err := r.bots.Get(req.Context(), userID, botID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, b)
	case http.MethodPatch:
		var payload struct {
			Description     *string         `json:"description"`
			SourceCode      *string         `json:"source_code"`
			CompiledCode    json.RawMessage `json:"compiled_code"`
			CompilerVersion *string         `json:"compiler_version"`
			Config          json.RawMessage `json:"config"`
			EnvVars         json.RawMessage `json:"env_vars"`
		}
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		updated, err := r.bots.UpdateDraft(req.Context(), userID, botID, bot.DraftInput{
			Description:     payload.Description,
			SourceCode:      payload.SourceCode,
			CompiledCode:    payload.CompiledCode,
			CompilerVersion: payload.CompilerVersion,
			Config:          payload.Config,
			EnvVars:         payload.EnvVars,
		})
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleBotPublish(w http.ResponseWriter, req *http.Request, userID, botID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Version   string `json:"version"`
		Changelog string `json:"changelog"`
	}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	version, err := r.bots.Publish(req.Context(), userID, botID, payload.Version, payload.Changelog)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, version)
}

func (r *Router) handleBotVersions(w http.ResponseWriter, req *http.Request, userID, botID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	versions, err := r.bots.Versions(req.Context(), userID, botID, limit)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (r *Router) handleBotDeployments(w http.ResponseWriter, req *http.Request, userID, botID string) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Environment   string `json:"environment"`
			CommitMessage string `json:"commit_message"`
		}
		_ = json.NewDecoder(req.Body).Decode(&payload)
		deployment, err := r.deploys.Create(req.Context(), userID, deploy.CreateInput{
			BotID:         botID,
			Environment:   payload.Environment,
			CommitMessage: payload.CommitMessage,
		})
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deployment)
	case http.MethodGet:
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		deployments, err := r.deploys.List(req.Context(), userID, botID, req.URL.Query().Get("environment"), limit)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deployments)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleBotActiveDeployment(w http.ResponseWriter, req *http.Request, userID, botID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	deployment, err := r.deploys.Active(req.Context(), userID, botID, req.URL.Query().Get("environment"))
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployment)
}

func (r *Router) handleBotExecutions(w http.ResponseWriter, req *http.Request, userID, botID string) {
	switch req.Method {
	case http.MethodPost:
		var payload struct {
			Environment   string          `json:"environment"`
			TriggerType   string          `json:"trigger_type"`
			TriggerSource string          `json:"trigger_source"`
			Input         json.RawMessage `json:"input"`
		}
		_ = json.NewDecoder(req.Body).Decode(&payload)
		exec, err := r.executions.Execute(req.Context(), userID, execution.ExecuteInput{
			BotID:         botID,
			Environment:   payload.Environment,
			TriggerType:   payload.TriggerType,
			TriggerSource: payload.TriggerSource,
			InputData:     payload.Input,
		})
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, exec)
	case http.MethodGet:
		limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
		executions, err := r.executions.List(req.Context(), userID, botID, req.URL.Query().Get("status"), limit, offset)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, executions)
	default:
		r.methodNotAllowed(w)
	}
}

func (r *Router) handleBotStatistics(w http.ResponseWriter, req *http.Request, userID, botID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	windowDays := 1
	if raw := req.URL.Query().Get("window_days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "window_days must be a positive integer")
			return
		}
		windowDays = parsed
	}
	stats, err := r.executions.Statistics(req.Context(), userID, botID, windowDays)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (r *Router) handleBotEvents(w http.ResponseWriter, req *http.Request, userID, botID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, err := r.bots.Get(req.Context(), userID, botID); err != nil {
		r.writeServiceError(w, err)
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(req.URL.Query().Get("offset"))
	events, err := r.telemetry.ListEvents(req.Context(), botID, req.URL.Query().Get("event_type"), limit, offset)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (r *Router) handleBotTelemetry(w http.ResponseWriter, req *http.Request, userID, botID string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if _, err := r.bots.Get(req.Context(), userID, botID); err != nil {
		r.writeServiceError(w, err)
		return
	}
	var from, to time.Time
	if raw := req.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from timestamp")
			return
		}
		from = parsed
	}
	if raw := req.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to timestamp")
			return
		}
		to = parsed
	}
	window, err := r.telemetry.Window(req.Context(), botID, from, to)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

func (r *Router) handleBotWebhookSecret(w http.ResponseWriter, req *http.Request, userID, botID string) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	secret, err := r.webhooks.RotateSecret(req.Context(), userID, botID)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"secret": secret})
}

func (r *Router) handleDeploymentSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/deployments/")
	parts := strings.Split(trimmed, "/")
	deploymentID := parts[0]
	if deploymentID == "" {
		r.notFound(w)
		return
	}
	userID, ok := r.userID(w, req)
	if !ok {
		return
	}
	switch {
	case len(parts) == 1 && req.Method == http.MethodGet:
		deployment, err := r.deploys.Get(req.Context(), userID, deploymentID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, deployment)
	case len(parts) == 2 && parts[1] == "cancel" && req.Method == http.MethodPost:
		if err := r.deploys.Cancel(req.Context(), userID, deploymentID); err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": domain.DeploymentStatusCancelled})
	case len(parts) == 2 && parts[1] == "promote" && req.Method == http.MethodPost:
		deployment, err := r.deploys.Promote(req.Context(), userID, deploymentID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deployment)
	case len(parts) == 2 && parts[1] == "rollback" && req.Method == http.MethodPost:
		deployment, err := r.deploys.Rollback(req.Context(), userID, deploymentID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, deployment)
	default:
		r.notFound(w)
	}
}

func (r *Router) handleRecentExecutions(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	userID, ok := r.userID(w, req)
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))
	executions, err := r.executions.ListRecent(req.Context(), userID, limit)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, executions)
}

func (r *Router) handleExecutionSubroutes(w http.ResponseWriter, req *http.Request) {
	trimmed := strings.TrimPrefix(req.URL.Path, "/executions/")
	parts := strings.Split(trimmed, "/")
	executionID := parts[0]
	if executionID == "" {
		r.notFound(w)
		return
	}
	userID, ok := r.userID(w, req)
	if !ok {
		return
	}
	switch {
	case len(parts) == 1 && req.Method == http.MethodGet:
		exec, err := r.executions.Get(req.Context(), userID, executionID)
		if err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, exec)
	case len(parts) == 2 && parts[1] == "cancel" && req.Method == http.MethodPost:
		if err := r.executions.Cancel(req.Context(), userID, executionID); err != nil {
			r.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": domain.ExecutionStatusCancelled})
	default:
		r.notFound(w)
	}
}

func (r *Router) handleWebhookTrigger(w http.ResponseWriter, req *http.Request) {
	botID := strings.TrimPrefix(req.URL.Path, "/webhook/")
	if botID == "" || strings.Contains(botID, "/") {
		r.notFound(w)
		return
	}
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read body")
		return
	}
	signature := req.Header.Get("X-Webhook-Signature")
	exec, err := r.webhooks.Trigger(req.Context(), botID, req.URL.Query().Get("environment"), body, signature)
	if err != nil {
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"execution_id": exec.ID,
		"status":       exec.Status,
	})
}

func (r *Router) handleEventsWS(w http.ResponseWriter, req *http.Request) {
	userID, ok := r.userID(w, req)
	if !ok {
		return
	}
	botID := req.URL.Query().Get("bot_id")
	if botID == "" {
		writeError(w, http.StatusBadRequest, "bot_id query parameter required")
		return
	}
	if _, err := r.bots.Get(req.Context(), userID, botID); err != nil {
		r.writeServiceError(w, err)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	client := ws.NewClient(conn, r.logger)
	r.telemetry.Hub().Register(botID, client)
	go func() {
		defer func() {
			r.telemetry.Hub().Unregister(botID, client)
			client.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (r *Router) handleEventsSSE(w http.ResponseWriter, req *http.Request) {
	userID, ok := r.userID(w, req)
	if !ok {
		return
	}
	botID := req.URL.Query().Get("bot_id")
	if botID == "" {
		writeError(w, http.StatusBadRequest, "bot_id query parameter required")
		return
	}
	if _, err := r.bots.Get(req.Context(), userID, botID); err != nil {
		r.writeServiceError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	client := ws.NewSSEClient(w, flusher, r.logger)
	r.telemetry.Hub().Register(botID, client)
	defer func() {
		r.telemetry.Hub().Unregister(botID, client)
		client.Close()
	}()

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-req.Context().Done():
			return
		case <-heartbeat.C:
			if err := client.Heartbeat(); err != nil {
				return
			}
		}
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			components["database"] = map[string]any{
				"status": "down",
				"error":  err.Error(),
			}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// userID extracts the authenticated user from context; middleware guarantees
// it is present on authenticated routes.
func (r *Router) userID(w http.ResponseWriter, req *http.Request) (string, bool) {
	info, ok := authInfoFromContext(req.Context())
	if !ok || info.UserID == "" {
		r.logger.Error("auth context missing", "path", req.URL.Path)
		writeError(w, http.StatusInternalServerError, "authorization context missing")
		return "", false
	}
	return info.UserID, true
}

// writeServiceError maps service and repository errors onto HTTP statuses.
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, bot.ErrNotOwner),
		errors.Is(err, deploy.ErrNotOwner),
		errors.Is(err, execution.ErrNotOwner),
		errors.Is(err, webhook.ErrNotOwner):
		writeError(w, http.StatusForbidden, "access denied")
	case errors.Is(err, deploy.ErrAlreadyTerminal),
		errors.Is(err, execution.ErrAlreadyTerminal),
		errors.Is(err, repository.ErrStatusConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, deploy.ErrInvalidPromotionSource),
		errors.Is(err, deploy.ErrInvalidRollbackTarget),
		errors.Is(err, execution.ErrNotDeployed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, bot.ErrInvalidInput),
		errors.Is(err, bot.ErrArchived),
		errors.Is(err, deploy.ErrInvalidEnvironment),
		errors.Is(err, execution.ErrInvalidTrigger),
		errors.Is(err, domain.ErrEmptyArtifact),
		errors.Is(err, repository.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, webhook.ErrInvalidSignature):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, webhook.ErrNoSecret):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		r.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (r *Router) audit(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		ctx := recorder.ctx
		if ctx == nil {
			ctx = req.Context()
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, route, status, duration)

		actor := "anonymous"
		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}
		if info, ok := authInfoFromContext(ctx); ok {
			actor = "user"
			fields = append(fields, "user_id", info.UserID)
		} else if strings.HasPrefix(req.URL.Path, "/webhook/") {
			actor = "webhook"
		}
		fields = append(fields, "actor", actor)

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	ctx    context.Context
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func (sr *statusRecorder) SetContext(ctx context.Context) {
	sr.ctx = ctx
}

func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := sr.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func (sr *statusRecorder) Push(target string, opts *http.PushOptions) error {
	if p, ok := sr.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) applyRateHeaders(w http.ResponseWriter, limit int, decision rateDecision) {
	if limit <= 0 {
		return
	}
	remaining := limit - decision.count
	if remaining < 0 {
		remaining = 0
	}
	headers := w.Header()
	headers.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	headers.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	if !decision.windowEnd.IsZero() {
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(decision.windowEnd.Unix(), 10))
	}
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func (r *Router) notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, "not found")
}
