// Package app wires the Nakama services together and runs them.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/nakama/common/redact"
	"github.com/bdobrica/nakama/common/version"
	"github.com/bdobrica/nakama/internal/nakama/compose"
	"github.com/bdobrica/nakama/internal/nakama/decision"
	"github.com/bdobrica/nakama/internal/nakama/gateway"
	"github.com/bdobrica/nakama/internal/nakama/llm"
	"github.com/bdobrica/nakama/internal/nakama/matrix"
	"github.com/bdobrica/nakama/internal/nakama/memory"
	"github.com/bdobrica/nakama/internal/nakama/personality"
	"github.com/bdobrica/nakama/internal/nakama/room"
	"github.com/bdobrica/nakama/internal/nakama/store"
)

// Cache namespaces, one per kind of model call.
const (
	nsDecision = "decision"
	nsResponse = "response"
	nsMemory   = "memory"
	nsIdentity = "identity"
)

// App is a running Nakama instance.
type App struct {
	config *Config
	logger *slog.Logger

	store    *store.Store
	registry *room.Registry
	pipeline *room.Pipeline
	personas *personality.Service
	gateway  *gateway.Server
	matrix   *matrix.Client

	closers []func()
}

// New builds every component from config. Nothing is started until Run.
func New(config *Config) (*App, error) {
	logger := slog.Default()
	a := &App{config: config, logger: logger}

	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, func() {
		if err := st.Close(); err != nil {
			logger.Warn("app: close store", "err", err)
		}
	})

	client, err := a.buildLLM()
	if err != nil {
		a.Stop()
		return nil, err
	}

	var presets map[string]*personality.Personality
	if config.PersonasFile != "" {
		presets, err = personality.LoadPresetsFile(config.PersonasFile)
		if err != nil {
			a.Stop()
			return nil, fmt.Errorf("app: %w", err)
		}
		logger.Info("loaded persona presets", "count", len(presets), "file", config.PersonasFile)
	}
	if config.DefaultPersona != "" {
		if _, ok := presets[config.DefaultPersona]; !ok {
			a.Stop()
			return nil, fmt.Errorf("app: default persona %q is not a known preset", config.DefaultPersona)
		}
	}

	var (
		summariser memory.Summariser = memory.NewNoopSummariser(logger)
		identities personality.IdentityGenerator
		decider    decision.Decider
		generator  compose.Generator
	)
	if client != nil {
		summariser = memory.NewLLMSummariser(llm.NewAdapter(client(nsMemory)))
		identities = personality.NewLLMIdentityGenerator(llm.NewAdapter(client(nsIdentity)))
		decider = llm.NewAdapter(client(nsDecision))
		generator = llm.NewAdapter(client(nsResponse))
	} else {
		logger.Warn("no language model configured; the teammate will stay silent")
	}

	a.personas = personality.NewService(personality.ServiceConfig{
		Store:     st,
		Generator: identities,
		Logger:    logger,
		Presets:   presets,
	})
	mem := memory.NewManager(memory.Config{
		ShortTermLimit: config.ShortTermLimit,
		Threshold:      config.SummaryThreshold,
		Summariser:     summariser,
		Persistence:    st,
		Logger:         logger,
	})
	engine := decision.NewEngine(decision.Config{
		Decider:        decider,
		Logger:         logger,
		CooldownWindow: config.RespondCooldown,
		CooldownLimit:  config.RespondLimit,
	})
	a.registry = room.NewRegistry(room.RegistryConfig{
		Personas:    a.personas,
		Tasks:       st,
		Forget:      []room.Forgetter{mem, engine},
		Preset:      config.DefaultPersona,
		DefaultTask: config.DefaultTask,
		Logger:      logger,
	})
	a.pipeline = room.NewPipeline(room.PipelineConfig{
		Registry:    a.registry,
		Memory:      mem,
		Decisions:   engine,
		Composer:    compose.New(generator, logger),
		Journal:     st,
		TypingDelay: config.TypingDelay,
		Logger:      logger,
	})

	if config.HTTPAddr != "" {
		a.gateway = gateway.New(gateway.Config{
			Addr:     config.HTTPAddr,
			Rooms:    st,
			Registry: a.registry,
			Pipeline: a.pipeline,
			Personas: a.personas,
			Logger:   logger,
			APIRate:  config.APIRate,
			APIBurst: max(int(config.APIRate)*2, 1),

			AllowedOrigins: config.AllowedOrigins,
		})
	}

	if config.MatrixEnabled() {
		mc := config.Matrix
		mc.DB = st.DB()
		mc.Logger = logger
		a.matrix, err = matrix.New(mc)
		if err != nil {
			a.Stop()
			return nil, fmt.Errorf("app: create matrix client: %w", err)
		}
	}

	return a, nil
}

// buildLLM returns a factory of per-namespace clients sharing one provider
// and one cache, or nil when the provider is "none".
func (a *App) buildLLM() (func(namespace string) llm.Client, error) {
	cfg := a.config.LLM
	var base llm.Client
	switch cfg.Provider {
	case ProviderNone:
		return nil, nil
	case ProviderAnthropic:
		base = llm.NewAnthropicClient(llm.AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.Endpoint,
			Model:   cfg.Model,
		})
	case ProviderOpenAI, "":
		base = llm.NewOpenAIClient(llm.OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.Endpoint,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("app: unknown llm provider %q", cfg.Provider)
	}
	a.logger.Info("language model configured",
		"provider", cfg.Provider,
		"endpoint", redact.URL(cfg.Endpoint),
		"api_key", redact.Hint(cfg.APIKey))

	cache, err := a.buildCache()
	if err != nil {
		return nil, err
	}
	if cache == nil {
		return func(string) llm.Client { return base }, nil
	}
	return func(ns string) llm.Client {
		return llm.NewCachedClient(base, cache, ns, a.logger)
	}, nil
}

func (a *App) buildCache() (llm.Cache, error) {
	cfg := a.config.Cache
	switch cfg.Backend {
	case CacheNone:
		return nil, nil
	case CacheRedis:
		opts, err := redisOptions(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("app: redis address %s: %w", redact.URL(cfg.RedisAddr), err)
		}
		client := redis.NewClient(opts)
		a.closers = append(a.closers, func() { client.Close() })
		a.logger.Info("completion cache: redis", "addr", redact.URL(cfg.RedisAddr), "ttl", cfg.TTL)
		return llm.NewRedisCache(client, llm.RedisCacheConfig{TTL: cfg.TTL}), nil
	case CacheMemory, "":
		c, err := llm.NewRistrettoCache(llm.RistrettoConfig{MaxCost: cfg.MaxCost, TTL: cfg.TTL})
		if err != nil {
			return nil, fmt.Errorf("app: create completion cache: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		a.logger.Info("completion cache: memory", "max_bytes", cfg.MaxCost, "ttl", cfg.TTL)
		return c, nil
	default:
		return nil, fmt.Errorf("app: unknown cache backend %q", cfg.Backend)
	}
}

// redisOptions accepts either a redis:// URL or a bare host:port.
func redisOptions(addr string) (*redis.Options, error) {
	if strings.Contains(addr, "://") {
		return redis.ParseURL(addr)
	}
	return &redis.Options{Addr: addr}, nil
}

// Pipeline returns the message pipeline.
func (a *App) Pipeline() *room.Pipeline { return a.pipeline }

// Registry returns the room registry.
func (a *App) Registry() *room.Registry { return a.registry }

// Store returns the persistent store.
func (a *App) Store() *store.Store { return a.store }

// Gateway returns the HTTP gateway, or nil when disabled.
func (a *App) Gateway() *gateway.Server { return a.gateway }

// Run starts the transports and blocks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if a.gateway != nil {
		if err := a.gateway.Start(ctx); err != nil {
			return fmt.Errorf("app: start gateway: %w", err)
		}
	}

	if a.matrix != nil {
		bridge := matrix.NewBridge(ctx, matrix.BridgeConfig{
			Sender:   a.matrix,
			Pipeline: a.pipeline,
			Registry: a.registry,
			Names:    a.store,
			Logger:   a.logger,
		})
		a.logger.Info("starting Matrix sync", "rooms", len(a.config.Matrix.Rooms))
		if err := a.matrix.Start(ctx, bridge); err != nil {
			return fmt.Errorf("app: start matrix client: %w", err)
		}
		g.Go(func() error {
			<-ctx.Done()
			a.matrix.Stop()
			bridge.Wait()
			return nil
		})
	}

	a.logger.Info("nakama is running", "version", version.Info(), "config", a.config)
	g.Go(func() error {
		<-ctx.Done()
		a.logger.Info("shutting down")
		return nil
	})
	return g.Wait()
}

// Stop releases every resource. It is safe to call more than once.
func (a *App) Stop() {
	if a.gateway != nil {
		a.gateway.Stop()
	}
	if a.matrix != nil {
		a.matrix.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
