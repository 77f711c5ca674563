package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"interrogation/llm"
	"interrogation/models"

	"github.com/labstack/echo/v4"
)

func decodeRequest(c echo.Context) (*models.InvocationRequest, error) {
	var req models.InvocationRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
	}
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return &req, nil
}

// Invoke runs the full generate, critique, refine pipeline for one turn.
func (h *Handler) Invoke(c echo.Context) error {
	start := time.Now()
	req, err := decodeRequest(c)
	if err != nil {
		return err
	}

	resp, err := h.runner.Run(c.Request().Context(), req)
	if err != nil {
		log.Printf("[INVOKE_FAILED] actor %s: %v", req.Actor.Name, err)
		switch {
		case errors.Is(err, models.ErrInvalidRequest):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, llm.ErrStageTimeout):
			return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
	}

	log.Printf("[INVOKE] turn %d served in %s", resp.TurnID, time.Since(start))
	return c.JSON(http.StatusOK, resp)
}

// InvokeStream streams the character's reply as server-sent events. Each
// frame is a JSON StreamEvent; the last one is always "end" or "error".
func (h *Handler) InvokeStream(c echo.Context) error {
	req, err := decodeRequest(c)
	if err != nil {
		return err
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	// Keep draining after a write failure so the pipeline can finish its
	// cleanup; it stops on its own once the request context is cancelled.
	writeFailed := false
	for ev := range h.runner.RunStream(c.Request().Context(), req) {
		if writeFailed {
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[STREAM_ENCODE_FAILED] %v", err)
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			log.Printf("[STREAM_WRITE_FAILED] %v", err)
			writeFailed = true
			continue
		}
		w.Flush()
	}
	return nil
}
