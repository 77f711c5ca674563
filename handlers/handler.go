package handlers

import (
	"context"

	"interrogation/agent"
	"interrogation/config"
	"interrogation/db"
	"interrogation/models"

	"github.com/labstack/echo/v4"
)

// Runner is the part of agent.Pipeline the HTTP layer needs.
type Runner interface {
	Run(ctx context.Context, req *models.InvocationRequest) (*models.InvocationResponse, error)
	RunStream(ctx context.Context, req *models.InvocationRequest) <-chan agent.StreamEvent
}

type Handler struct {
	runner Runner
	store  db.Store
	cfg    *config.Config
}

// New builds the handlers. store may be nil when no audit store is
// configured.
func New(runner Runner, store db.Store, cfg *config.Config) *Handler {
	return &Handler{runner: runner, store: store, cfg: cfg}
}

func (h *Handler) Register(e *echo.Echo) {
	e.POST("/invoke", h.Invoke)
	e.POST("/invoke/stream", h.InvokeStream)
	e.GET("/health", h.Health)
	e.GET("/config", h.Config)
}
