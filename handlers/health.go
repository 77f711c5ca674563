package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type HealthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Error  string `json:"error,omitempty"`
}

// Health reports ok while the process is up. A failing store degrades the
// report but not the status code, since replies are still served without it.
func (h *Handler) Health(c echo.Context) error {
	resp := HealthResponse{Status: "ok", Store: "disabled"}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			resp.Store = "unavailable"
			resp.Error = err.Error()
		} else {
			resp.Store = "ok"
		}
	}
	return c.JSON(http.StatusOK, resp)
}

type ConfigResponse struct {
	InferenceService string `json:"inference_service"`
	Model            string `json:"model"`
	ModelKey         string `json:"model_key"`
	MaxTokens        int    `json:"max_tokens"`
	PromptsVersion   string `json:"prompts_version"`
	Store            string `json:"store"`
	CritiqueMatch    string `json:"critique_match"`
}

// Config reports the active model settings. Credentials are never included.
func (h *Handler) Config(c echo.Context) error {
	return c.JSON(http.StatusOK, ConfigResponse{
		InferenceService: h.cfg.Inference.Service,
		Model:            h.cfg.Inference.Model,
		ModelKey:         h.cfg.Inference.ModelKey,
		MaxTokens:        h.cfg.Inference.MaxTokens,
		PromptsVersion:   h.cfg.PromptsVersion,
		Store:            h.cfg.Store.Kind,
		CritiqueMatch:    h.cfg.CritiqueMatch,
	})
}
