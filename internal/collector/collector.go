// Package collector is a small HTTP endpoint that accepts script telemetry
// records and stores them in a sink.
package collector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/nfrund/hostscript/internal/middleware"
	"github.com/nfrund/hostscript/internal/telemetry"
	"github.com/tidwall/gjson"
)

// RoutePath is where records are posted.
const RoutePath = "/api/v2/scripts"

// maxRecordSize bounds one posted record.
const maxRecordSize = 1 << 20

// requestValidator implements echo.Validator.
type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

// recordRequest holds the fields a record must carry to be accepted.
type recordRequest struct {
	Meta struct {
		Schema string `json:"schema" validate:"required,eq=2.0"`
	} `json:"meta"`
	SessionID   string `json:"session_id" validate:"required"`
	ExecID      string `json:"exec_id" validate:"required"`
	CommandName string `json:"command_name" validate:"required"`
	ResultCode  *int   `json:"result_code" validate:"required,min=0"`
}

// Server accepts records over HTTP.
type Server struct {
	E      *echo.Echo
	sink   telemetry.Sink
	logger *slog.Logger
}

// New creates a collector that stores accepted records in sink.
func New(sink telemetry.Sink, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "collector")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validator: validator.New()}
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.BodyLimit("1M"))

	s := &Server{E: e, sink: sink, logger: logger}
	api := e.Group(RoutePath)
	api.POST("", s.postRecord, middleware.RateLimiter(50))
	api.GET("/health", s.health)
	return s
}

func (s *Server) postRecord(c echo.Context) error {
	ctx := c.Request().Context()
	logger := middleware.FromContext(ctx)

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxRecordSize))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body.")
	}
	if !gjson.ValidBytes(body) {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}

	var req recordRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format.")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.sink.Send(ctx, body); err != nil {
		logger.Error("Failed to store telemetry record", slog.String("exec_id", req.ExecID), slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to store record.")
	}
	logger.Debug("Stored telemetry record", "exec_id", req.ExecID, "command", req.CommandName)
	return c.JSON(http.StatusCreated, map[string]string{"exec_id": req.ExecID})
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Start serves on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Telemetry collector listening", "addr", addr)
	if err := s.E.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.E.Shutdown(ctx)
}
