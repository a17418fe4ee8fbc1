package public

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// BuildMetadata holds build-time information.
type BuildMetadata struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// StatusHandlers provides health and readiness endpoint handlers.
type StatusHandlers struct {
	redisClient      *redis.Client
	conversationPool *pgxpool.Pool
	buildMetadata    BuildMetadata
	logger           *zap.Logger
	healthTimeout    time.Duration
	readyTimeout     time.Duration
}

// StatusHandlersConfig configures the status handlers.
type StatusHandlersConfig struct {
	RedisClient      *redis.Client
	ConversationPool *pgxpool.Pool
	BuildMetadata    BuildMetadata
	Logger           *zap.Logger
	HealthTimeout    time.Duration
	ReadyTimeout     time.Duration
}

// NewStatusHandlers creates a new status handlers instance.
func NewStatusHandlers(cfg StatusHandlersConfig) *StatusHandlers {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = 1 * time.Second
	}
	if cfg.ReadyTimeout == 0 {
		cfg.ReadyTimeout = 5 * time.Second
	}

	return &StatusHandlers{
		redisClient:      cfg.RedisClient,
		conversationPool: cfg.ConversationPool,
		buildMetadata:    cfg.BuildMetadata,
		logger:           cfg.Logger,
		healthTimeout:    cfg.HealthTimeout,
		readyTimeout:     cfg.ReadyTimeout,
	}
}

// HealthResponse represents the health endpoint response.
type HealthResponse struct {
	Status    string         `json:"status"`
	Build     *BuildMetadata `json:"build,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
}

// ReadinessResponse represents the readiness endpoint response.
type ReadinessResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
	Build      *BuildMetadata    `json:"build,omitempty"`
	Timestamp  string            `json:"timestamp"`
}

// Healthz handles GET /healthz - basic liveness check.
func (h *StatusHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().Format(time.RFC3339),
	}
	if h.buildMetadata.Version != "" {
		response.Build = &h.buildMetadata
	}

	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode health response", zap.Error(err))
	}
}

// Readyz handles GET /readyz - readiness check with component probes. Only
// dependencies this service owns are probed: the conversation database
// always, Redis only when configured (it is an optional org-lookup cache,
// not a hard dependency).
func (h *StatusHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), h.readyTimeout)
	defer cancel()

	components := make(map[string]string)
	allHealthy := true

	if h.conversationPool != nil {
		dbCtx, dbCancel := context.WithTimeout(ctx, h.healthTimeout)
		if err := h.conversationPool.Ping(dbCtx); err != nil {
			components["postgres"] = "unhealthy"
			allHealthy = false
			h.logger.Debug("postgres health check failed", zap.Error(err))
		} else {
			components["postgres"] = "healthy"
		}
		dbCancel()
	} else {
		components["postgres"] = "unhealthy"
		allHealthy = false
		h.logger.Debug("conversation database pool not available")
	}

	if h.redisClient != nil {
		redisCtx, redisCancel := context.WithTimeout(ctx, h.healthTimeout)
		if err := h.redisClient.Ping(redisCtx).Err(); err != nil {
			components["redis"] = "unhealthy"
			allHealthy = false
			h.logger.Debug("redis health check failed", zap.Error(err))
		} else {
			components["redis"] = "healthy"
		}
		redisCancel()
	} else {
		components["redis"] = "not_configured"
	}

	var build *BuildMetadata
	if h.buildMetadata.Version != "" {
		build = &h.buildMetadata
	}

	response := ReadinessResponse{
		Status:     "ready",
		Components: components,
		Build:      build,
		Timestamp:  time.Now().Format(time.RFC3339),
	}

	if !allHealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		response.Status = "degraded"
		h.logger.Warn("readiness check failed, service degraded", zap.Any("components", components))
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error("failed to encode readiness response", zap.Error(err))
	}
}
