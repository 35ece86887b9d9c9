package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/groupguard/groupguard/automod"
	"github.com/groupguard/groupguard/automod/engine"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	slogecho "github.com/samber/slog-echo"
)

// HTTP API for operators: trust overrides, thread exclusion, unbans, and stats.
type AdminServer struct {
	echo   *echo.Echo
	httpd  *http.Server
	engine *automod.Engine
	logger *slog.Logger
}

type GenericError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type GenericStatus struct {
	Daemon  string `json:"daemon"`
	Status  string `json:"status"`
	Message string `json:"msg,omitempty"`
}

type TrustRequest struct {
	Trusted bool `json:"trusted"`
}

type ExcludedThreadsRequest struct {
	Threads []int `json:"threads"`
}

// If token is empty, only the health check is served.
func NewAdminServer(eng *automod.Engine, logger *slog.Logger, bind, token string, reg prometheus.Registerer) *AdminServer {
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &AdminServer{
		echo:   e,
		engine: eng,
		logger: logger.With("system", "admin"),
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(srv.logger))
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "groupguard",
		Registerer: reg,
	}))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)

	if token == "" {
		srv.logger.Warn("no admin token configured, admin API disabled")
		return srv
	}
	admin := e.Group("/admin", middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing admin token")
		},
	}))
	admin.GET("/stats", srv.HandleGlobalStats)
	admin.GET("/chats/:chat", srv.HandleChatStats)
	admin.PUT("/chats/:chat/threads/excluded", srv.HandleExcludeThreads)
	admin.GET("/chats/:chat/members/:member", srv.HandleMemberStatus)
	admin.PUT("/chats/:chat/members/:member/trust", srv.HandleOverrideTrust)
	admin.POST("/chats/:chat/members/:member/unban", srv.HandleUnban)

	return srv
}

func (srv *AdminServer) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

func (srv *AdminServer) Run() error {
	srv.logger.Info("starting admin server", "bind", srv.httpd.Addr)
	if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin HTTP server shutting down unexpectedly: %w", err)
	}
	return nil
}

func (srv *AdminServer) Shutdown() error {
	srv.logger.Info("shutting down admin server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}

func (srv *AdminServer) errorHandler(err error, c echo.Context) {
	code := http.StatusInternalServerError
	var errorMessage string
	if he, ok := err.(*echo.HTTPError); ok {
		code = he.Code
		errorMessage = fmt.Sprintf("%s", he.Message)
	}
	if code >= 500 {
		srv.logger.Warn("groupguard-http-internal-error", "err", err)
	}
	c.JSON(code, GenericStatus{Status: "error", Daemon: "groupguard", Message: errorMessage})
}

func (srv *AdminServer) HandleHealthCheck(c echo.Context) error {
	return c.JSON(200, GenericStatus{Status: "ok", Daemon: "groupguard"})
}

// Maps engine errors to an HTTP status and error response.
func (srv *AdminServer) engineError(c echo.Context, op string, err error) error {
	adminOpCount.WithLabelValues(op, "error").Inc()
	switch {
	case errors.Is(err, engine.ErrPlatformActionFailed):
		return c.JSON(http.StatusBadGateway, GenericError{Error: "PlatformActionFailed", Message: err.Error()})
	case errors.Is(err, engine.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, GenericError{Error: "StoreUnavailable", Message: err.Error()})
	default:
		return c.JSON(http.StatusBadRequest, GenericError{Error: "InvalidRequest", Message: err.Error()})
	}
}

func parseChatMember(c echo.Context, withMember bool) (chatID, memberID int64, err error) {
	chatID, err = strconv.ParseInt(c.Param("chat"), 10, 64)
	if err != nil || chatID == 0 {
		return 0, 0, fmt.Errorf("invalid chat ID: %q", c.Param("chat"))
	}
	if !withMember {
		return chatID, 0, nil
	}
	memberID, err = strconv.ParseInt(c.Param("member"), 10, 64)
	if err != nil || memberID == 0 {
		return 0, 0, fmt.Errorf("invalid member ID: %q", c.Param("member"))
	}
	return chatID, memberID, nil
}

func badRequest(c echo.Context, name string, err error) error {
	return c.JSON(http.StatusBadRequest, GenericError{Error: name, Message: err.Error()})
}

func (srv *AdminServer) HandleGlobalStats(c echo.Context) error {
	stats, err := srv.engine.GlobalStats(c.Request().Context())
	if err != nil {
		return srv.engineError(c, "global-stats", err)
	}
	return c.JSON(http.StatusOK, stats)
}

func (srv *AdminServer) HandleChatStats(c echo.Context) error {
	chatID, _, err := parseChatMember(c, false)
	if err != nil {
		return badRequest(c, "InvalidChatID", err)
	}
	agg, err := srv.engine.ChatStats(c.Request().Context(), chatID)
	if err != nil {
		return srv.engineError(c, "chat-stats", err)
	}
	return c.JSON(http.StatusOK, agg)
}

func (srv *AdminServer) HandleExcludeThreads(c echo.Context) error {
	chatID, _, err := parseChatMember(c, false)
	if err != nil {
		return badRequest(c, "InvalidChatID", err)
	}
	var req ExcludedThreadsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "InvalidBody", err)
	}
	for _, t := range req.Threads {
		if t <= 0 {
			return badRequest(c, "InvalidThreadID", fmt.Errorf("invalid thread ID: %d", t))
		}
	}
	if err := srv.engine.ExcludeThreads(c.Request().Context(), chatID, req.Threads); err != nil {
		return srv.engineError(c, "exclude-threads", err)
	}
	adminOpCount.WithLabelValues("exclude-threads", "ok").Inc()
	return srv.HandleChatStats(c)
}

func (srv *AdminServer) HandleMemberStatus(c echo.Context) error {
	chatID, memberID, err := parseChatMember(c, true)
	if err != nil {
		return badRequest(c, "InvalidID", err)
	}
	status, err := srv.engine.MemberStatus(c.Request().Context(), memberID, chatID)
	if err != nil {
		return srv.engineError(c, "member-status", err)
	}
	return c.JSON(http.StatusOK, status)
}

func (srv *AdminServer) HandleOverrideTrust(c echo.Context) error {
	chatID, memberID, err := parseChatMember(c, true)
	if err != nil {
		return badRequest(c, "InvalidID", err)
	}
	var req TrustRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "InvalidBody", err)
	}
	if err := srv.engine.OverrideTrust(c.Request().Context(), memberID, chatID, req.Trusted); err != nil {
		return srv.engineError(c, "override-trust", err)
	}
	adminOpCount.WithLabelValues("override-trust", "ok").Inc()
	return srv.HandleMemberStatus(c)
}

func (srv *AdminServer) HandleUnban(c echo.Context) error {
	chatID, memberID, err := parseChatMember(c, true)
	if err != nil {
		return badRequest(c, "InvalidID", err)
	}
	if err := srv.engine.Unban(c.Request().Context(), memberID, chatID); err != nil {
		return srv.engineError(c, "unban", err)
	}
	adminOpCount.WithLabelValues("unban", "ok").Inc()
	return srv.HandleMemberStatus(c)
}
