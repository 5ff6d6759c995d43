package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/export"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/photos"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/realtime"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"github.com/MarcoPoloResearchLab/pneus/backend/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const (
	userNameContextKey       = "pneus_user_name"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingAuthenticator = errors.New("authenticator dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingTiresService  = errors.New("tires service dependency required")
	errMissingExporter      = errors.New("exporter dependency required")
	errMissingUploader      = errors.New("photo uploader dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// Authenticator checks login credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, name, password string) (users.User, error)
}

// TokenManager issues and validates session tokens.
type TokenManager interface {
	IssueSessionToken(ctx context.Context, userName string) (string, int64, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

// Exporter renders month exports.
type Exporter interface {
	Export(ctx context.Context, monthID tires.MonthID, layout export.Layout, responsible string) (export.Artifact, error)
}

// PhotoUploader stores a batch of tire photos.
type PhotoUploader interface {
	UploadBatch(ctx context.Context, ref tires.TireRef, uploads []photos.Upload) ([]string, error)
}

// PhotoFiles serves locally stored photos.
type PhotoFiles interface {
	Open(key string) (afero.File, error)
}

// MetricsRecorder instruments requests and exposes a scrape endpoint.
type MetricsRecorder interface {
	Middleware() gin.HandlerFunc
	Handler() http.Handler
}

// Dependencies lists the collaborators of the HTTP API. PhotoFiles and Metrics are optional.
type Dependencies struct {
	Users             Authenticator
	Tokens            TokenManager
	TiresService      *tires.Service
	Exporter          Exporter
	Photos            PhotoUploader
	PhotoFiles        PhotoFiles
	Realtime          *realtime.Dispatcher
	Metrics           MetricsRecorder
	Logger            *zap.Logger
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

// NewHTTPHandler builds the gin engine with every route.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Users == nil {
		return nil, errMissingAuthenticator
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.TiresService == nil {
		return nil, errMissingTiresService
	}
	if deps.Exporter == nil {
		return nil, errMissingExporter
	}
	if deps.Photos == nil {
		return nil, errMissingUploader
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Realtime
	if dispatcher == nil {
		dispatcher = realtime.NewDispatcher(0)
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.Middleware())
	}
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		users:     deps.Users,
		tokens:    deps.Tokens,
		tires:     deps.TiresService,
		exporter:  deps.Exporter,
		uploader:  deps.Photos,
		files:     deps.PhotoFiles,
		realtime:  dispatcher,
		logger:    logger,
		heartbeat: heartbeat,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/auth/login", handler.handleLogin)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.PhotoFiles != nil {
		router.GET("/photos/*key", handler.handlePhotoFile)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/months", handler.handleListMonths)
	protected.POST("/months", handler.handleCreateMonth)
	protected.GET("/months/stream", handler.handleMonthsStream)
	protected.GET("/months/:monthID", handler.handleGetMonth)
	protected.DELETE("/months/:monthID", handler.handleDeleteMonth)
	protected.POST("/months/:monthID/toggle-status", handler.handleToggleMonth)
	protected.POST("/months/:monthID/finalize", handler.handleFinalizeMonth)
	protected.GET("/months/:monthID/export", handler.handleExportMonth)

	protected.GET("/months/:monthID/tires", handler.handleListTires)
	protected.POST("/months/:monthID/tires", handler.handleCreateTire)
	protected.GET("/months/:monthID/tires/stream", handler.handleTiresStream)
	protected.GET("/months/:monthID/tires/:tireID", handler.handleGetTire)
	protected.PUT("/months/:monthID/tires/:tireID", handler.handleSaveTire)
	protected.DELETE("/months/:monthID/tires/:tireID", handler.handleDeleteTire)
	protected.POST("/months/:monthID/tires/:tireID/duplicate", handler.handleDuplicateTire)
	protected.POST("/months/:monthID/tires/:tireID/finalize", handler.handleFinalizeTire)
	protected.POST("/months/:monthID/tires/:tireID/photos", handler.handleUploadPhotos)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 || containsWildcard(origins) {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func containsWildcard(origins []string) bool {
	for _, origin := range origins {
		if origin == "*" {
			return true
		}
	}
	return false
}

type httpHandler struct {
	users     Authenticator
	tokens    TokenManager
	tires     *tires.Service
	exporter  Exporter
	uploader  PhotoUploader
	files     PhotoFiles
	realtime  *realtime.Dispatcher
	logger    *zap.Logger
	heartbeat time.Duration
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type loginRequestPayload struct {
	Name     string `json:"nome"`
	Password string `json:"senha"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	UserName    string `json:"nome"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.users.Authenticate(c.Request.Context(), request.Name, request.Password)
	switch {
	case errors.Is(err, users.ErrMissingCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing_credentials"})
		return
	case errors.Is(err, users.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	case err != nil:
		h.logger.Error("credential lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(c.Request.Context(), user.Name)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		UserName:    user.Name,
	})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := auth.TokenFromRequest(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, jwt.ErrTokenExpired) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userNameContextKey, claims.Subject)
	c.Next()
}

// respondError maps service sentinels onto HTTP statuses.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal_error"
	switch {
	case errors.Is(err, tires.ErrInvalidMonthID), errors.Is(err, tires.ErrInvalidTireID), errors.Is(err, tires.ErrInvalidPeriod):
		status, message = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, export.ErrUnknownLayout):
		status, message = http.StatusBadRequest, "unknown_layout"
	case errors.Is(err, photos.ErrTooManyPhotos):
		status, message = http.StatusBadRequest, "too_many_photos"
	case errors.Is(err, photos.ErrInvalidKey):
		status, message = http.StatusBadRequest, "invalid_photo_key"
	case errors.Is(err, tires.ErrMonthNotFound):
		status, message = http.StatusNotFound, "month_not_found"
	case errors.Is(err, tires.ErrTireNotFound):
		status, message = http.StatusNotFound, "tire_not_found"
	case errors.Is(err, photos.ErrObjectNotFound):
		status, message = http.StatusNotFound, "photo_not_found"
	case errors.Is(err, tires.ErrMonthFinalized):
		status, message = http.StatusConflict, "month_finalized"
	case errors.Is(err, tires.ErrTireFinalized):
		status, message = http.StatusConflict, "tire_finalized"
	case errors.Is(err, tires.ErrCounterMissing):
		status, message = http.StatusConflict, "counter_missing"
	case errors.Is(err, export.ErrNothingToExport):
		status, message = http.StatusUnprocessableEntity, "nothing_to_export"
	}

	body := gin.H{"error": message}
	var serviceErr *tires.ServiceError
	if errors.As(err, &serviceErr) {
		body["code"] = serviceErr.Code()
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func (h *httpHandler) monthIDParam(c *gin.Context) (tires.MonthID, bool) {
	monthID, err := tires.NewMonthID(c.Param("monthID"))
	if err != nil {
		h.respondError(c, err)
		return "", false
	}
	return monthID, true
}

func (h *httpHandler) tireRefParam(c *gin.Context) (tires.TireRef, bool) {
	ref, err := tires.NewTireRef(c.Param("monthID"), c.Param("tireID"))
	if err != nil {
		h.respondError(c, err)
		return tires.TireRef{}, false
	}
	return ref, true
}

func (h *httpHandler) monthsChanged(ids ...string) {
	h.realtime.Publish(realtime.Message{
		Topic:     realtime.MonthsTopic(),
		EventType: realtime.EventMonthsChanged,
		IDs:       ids,
	})
}

func (h *httpHandler) tiresChanged(monthID tires.MonthID, ids ...string) {
	h.realtime.Publish(realtime.Message{
		Topic:     realtime.TiresTopic(monthID.String()),
		EventType: realtime.EventTiresChanged,
		IDs:       ids,
	})
}
