package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/auth"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	claimsContextKey         = "affiliatedesk_claims"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingTokenIssuer     = errors.New("token issuer dependency required")
	errMissingTokenValidator  = errors.New("token validator dependency required")
	errMissingUsersService    = errors.New("users service dependency required")
	errMissingAffiliatesStore = errors.New("affiliates service dependency required")
)

// SessionTokenIssuer signs session tokens for authenticated accounts.
type SessionTokenIssuer interface {
	IssueSessionToken(ctx context.Context, principal auth.Principal) (string, int64, error)
}

// SessionTokenValidator authenticates incoming requests.
type SessionTokenValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// Dependencies wires the HTTP handler to its collaborators.
type Dependencies struct {
	TokenIssuer    SessionTokenIssuer
	TokenValidator SessionTokenValidator
	Users          *users.Service
	Affiliates     *affiliates.Service
	Logger         *zap.Logger
	Realtime       *RealtimeDispatcher
	Metrics        *Metrics
	// AllowedOrigins defaults to every origin.
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

// NewHTTPHandler builds the REST API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenIssuer == nil {
		return nil, errMissingTokenIssuer
	}
	if deps.TokenValidator == nil {
		return nil, errMissingTokenValidator
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Affiliates == nil {
		return nil, errMissingAffiliatesStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:     deps.TokenIssuer,
		validator:  deps.TokenValidator,
		users:      deps.Users,
		affiliates: deps.Affiliates,
		logger:     logger,
		realtime:   realtime,
		metrics:    metrics,
		heartbeat:  heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/users/profile", handler.handleProfile)
	protected.GET("/affiliates", handler.handleListAffiliates)
	protected.GET("/affiliates/stats", handler.handleAffiliateStats)
	protected.GET("/affiliates/stream", handler.handleAffiliateStream)
	protected.POST("/affiliates", handler.handleCreateAffiliate)
	protected.POST("/affiliates/:id/approve", handler.handleApproveAffiliate)
	protected.POST("/affiliates/:id/suspend", handler.handleSuspendAffiliate)
	protected.PATCH("/affiliates/:id", handler.handlePatchAffiliate)
	protected.DELETE("/affiliates/:id", handler.handleDeleteAffiliate)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			origins = nil
			break
		}
		origins = append(origins, origin)
	}
	if len(origins) == 0 {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

type httpHandler struct {
	tokens     SessionTokenIssuer
	validator  SessionTokenValidator
	users      *users.Service
	affiliates *affiliates.Service
	logger     *zap.Logger
	realtime   *RealtimeDispatcher
	metrics    *Metrics
	heartbeat  time.Duration
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.validator.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorPayload{
			Error:   "unauthorized",
			Message: "Unauthorized",
		})
		return
	}
	c.Set(claimsContextKey, claims)
	c.Next()
}

func sessionClaims(c *gin.Context) (auth.SessionClaims, bool) {
	value, ok := c.Get(claimsContextKey)
	if !ok {
		return auth.SessionClaims{}, false
	}
	claims, ok := value.(auth.SessionClaims)
	return claims, ok
}
