// Nakama is an AI teammate that joins group chats and takes part in team
// tasks like any other member.
//
// All configuration is loaded from environment variables.
//
// Storage and transports:
//
//	NAKAMA_DATABASE_PATH     - path to the SQLite database (default: ./nakama.db)
//	NAKAMA_HTTP_ADDR         - WebSocket gateway and JSON API address (default: ":8080")
//	NAKAMA_ALLOWED_ORIGINS   - comma-separated extra browser origins for chat sockets
//	MATRIX_HOMESERVER        - Matrix homeserver URL; enables the Matrix transport
//	MATRIX_USER_ID           - the teammate's Matrix ID
//	MATRIX_ACCESS_TOKEN      - the teammate's Matrix access token (or MATRIX_ACCESS_TOKEN_FILE)
//	MATRIX_ROOMS             - comma-separated room IDs to join
//
// Language model:
//
//	NAKAMA_LLM_PROVIDER      - "openai" (default), "anthropic" or "none"
//	NAKAMA_LLM_API_KEY       - API key for the provider (or NAKAMA_LLM_API_KEY_FILE)
//	NAKAMA_LLM_ENDPOINT      - override the API base URL (e.g. for Ollama)
//	NAKAMA_LLM_MODEL         - model name
//	NAKAMA_CACHE_BACKEND     - completion cache: "memory" (default), "redis" or "none"
//	NAKAMA_REDIS_ADDR        - host:port or redis:// URL for the redis cache
//
// Behaviour:
//
//	NAKAMA_PERSONAS_FILE     - YAML file of persona presets
//	NAKAMA_DEFAULT_PERSONA   - preset new rooms start with (default: random)
//	NAKAMA_DEFAULT_TASK      - task text for new rooms (default: Desert Survival)
//	NAKAMA_RESPOND_COOLDOWN  - window for the per-room reply cap (default: off)
//	NAKAMA_TYPING_DELAY      - pause before replying like a human typist (default: true)
//	LOG_LEVEL                - "debug", "info", "warn", "error" (default: "info")
//	LOG_FORMAT               - "text" or "json" (default: "text")
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bdobrica/nakama/common/version"
	"github.com/bdobrica/nakama/internal/nakama/app"
	"github.com/bdobrica/nakama/internal/nakama/observability"
)

func main() {
	fmt.Println(version.Banner("Nakama"))

	cfg, err := app.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	observability.Setup(cfg.LogLevel, cfg.LogFormat, cfg.Secrets()...)

	nakama, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize Nakama", "err", err)
		os.Exit(1)
	}
	defer nakama.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := nakama.Run(ctx); err != nil {
		slog.Error("Nakama exited with error", "err", err)
		nakama.Stop()
		os.Exit(1)
	}
}
