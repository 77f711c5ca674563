package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"interrogation/agent"
	"interrogation/config"
	"interrogation/db"
	"interrogation/handlers"
	"interrogation/llm"
	_ "interrogation/llm/anthropic"
	_ "interrogation/llm/gemini"
	_ "interrogation/llm/ollama"
	_ "interrogation/llm/openai"
	"interrogation/middleware"
	"interrogation/prompts"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}

	cfg, err := config.Load(prompts.Version)
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}
	log.Printf("Inference service: %s, model: %s (key %s), max tokens: %d, prompts version: %s",
		cfg.Inference.Service, cfg.Inference.Model, cfg.Inference.ModelKey, cfg.Inference.MaxTokens, cfg.PromptsVersion)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := llm.New(ctx, cfg.Inference)
	if err != nil {
		log.Fatal("Failed to configure inference backend: ", err)
	}

	classify, err := agent.ClassifierFor(cfg.CritiqueMatch)
	if err != nil {
		log.Fatal("Invalid CRITIQUE_MATCH: ", err)
	}

	store, err := db.New(ctx, cfg.Store)
	if err != nil {
		log.Fatal("Failed to open audit store: ", err)
	}
	if store == nil {
		log.Println("Warning: no audit store configured, turns will not be recorded")
	} else {
		defer store.Close(context.Background())
	}

	invoker := llm.NewInvoker(backend, cfg.Inference, cfg.StageTimeout)
	pipeline := agent.NewPipeline(invoker, store, classify)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Logger(), echomw.Recover(), middleware.CORS(cfg.AllowedOrigins))
	handlers.New(pipeline, store, cfg).Register(e)

	go func() {
		log.Printf("Server running on http://localhost:%s", cfg.Port)
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown: %v", err)
	}
}
