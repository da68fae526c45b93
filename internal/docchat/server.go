package docchat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
	"github.com/redis/go-redis/v9"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/internal/docchat/handler"
	"github.com/kart-io/docchat/internal/docchat/router"
	"github.com/kart-io/docchat/internal/docchat/store"
	"github.com/kart-io/docchat/pkg/extractor"
	"github.com/kart-io/docchat/pkg/llm"

	_ "github.com/kart-io/docchat/pkg/llm/ollama"
	_ "github.com/kart-io/docchat/pkg/llm/openai"
)

// Config is the completed, validated runtime configuration.
type Config struct {
	*Options
}

// Config validates and completes the options into a runnable Config.
func (o *Options) Config() (*Config, error) {
	if err := o.Complete(); err != nil {
		return nil, err
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return &Config{Options: o}, nil
}

// Server is the assembled docchat service.
type Server struct {
	httpServer      *http.Server
	factory         store.Factory
	redisClient     *redis.Client
	pool            *ants.Pool
	shutdownTimeout time.Duration
}

// NewServer wires the service from the configuration.
func (c *Config) NewServer(ctx context.Context) (*Server, error) {
	// 1. Initialize logger
	c.Log.AddInitialField("service.name", appName)
	if err := c.Log.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Info("Starting docchat service...")

	// 2. Initialize stores
	factory, err := store.NewSQLiteFactory(c.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.Infow("Document store initialized", "path", c.Database.Path)

	contexts, redisClient := c.newContextStore(ctx)

	// 3. Initialize LLM providers
	chat, err := llm.NewChatProvider(c.Chat.Provider, c.Chat.ToConfigMap())
	if err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to initialize chat provider: %w", err)
	}
	logger.Infow("Chat provider initialized", "provider", chat.Name(), "model", c.Chat.Model)

	embedder := c.newEmbedder()

	// 4. Initialize the tool execution pool
	pool, err := ants.NewPool(c.DocChat.Workers)
	if err != nil {
		_ = factory.Close()
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	// 5. Initialize the biz layer
	service := biz.NewService(factory, contexts, extractor.NewPDF(), chat, embedder, pool, &biz.ServiceConfig{
		TopK:         c.DocChat.TopK,
		HistoryLimit: c.DocChat.HistoryLimit,
	})
	logger.Info("Answer pipeline initialized")

	// 6. Initialize the HTTP layer
	gin.SetMode(c.Server.Mode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.Register(engine, handler.NewDocChatHandler(service))

	return &Server{
		httpServer: &http.Server{
			Addr:    c.Server.Addr,
			Handler: engine,
		},
		factory:         factory,
		redisClient:     redisClient,
		pool:            pool,
		shutdownTimeout: c.Server.ShutdownTimeout,
	}, nil
}

// newContextStore picks Redis when it is enabled and reachable, and
// degrades to the in-memory store otherwise.
func (c *Config) newContextStore(ctx context.Context) (store.ContextStore, *redis.Client) {
	if !c.Redis.Enabled {
		logger.Info("Redis disabled, using in-memory conversation context")
		return store.NewMemoryContextStore(), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     c.Redis.Addr(),
		Password: c.Redis.Password,
		DB:       c.Redis.Database,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warnw("Redis unreachable, using in-memory conversation context",
			"addr", c.Redis.Addr(), "error", err.Error())
		_ = client.Close()
		return store.NewMemoryContextStore(), nil
	}

	logger.Infow("Redis context store initialized", "addr", c.Redis.Addr())
	return store.NewRedisContextStore(client, c.Redis.TTL), client
}

// newEmbedder builds the embedding provider. Missing configuration is
// not an error: ranking degrades to the lexical path.
func (c *Config) newEmbedder() llm.EmbeddingProvider {
	if c.Embedding.Provider == "" {
		logger.Info("No embedding provider configured, ranking is lexical only")
		return nil
	}
	if c.Embedding.Provider == "openai" && c.Embedding.APIKey == "" {
		logger.Info("No embedding credential configured, ranking is lexical only")
		return nil
	}

	embedder, err := llm.NewEmbeddingProvider(c.Embedding.Provider, c.Embedding.ToConfigMap())
	if err != nil {
		logger.Warnw("Failed to initialize embedding provider, ranking is lexical only",
			"provider", c.Embedding.Provider, "error", err.Error())
		return nil
	}
	logger.Infow("Embedding provider initialized", "provider", embedder.Name(), "model", c.Embedding.Model)
	return embedder
}

// Run starts the HTTP server and blocks until the context is cancelled
// or the server fails.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.cleanup()
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down docchat service...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	s.cleanup()
	logger.Info("Docchat service stopped")
	return err
}

func (s *Server) cleanup() {
	s.pool.Release()
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if err := s.factory.Close(); err != nil {
		logger.Warnw("Failed to close document store", "error", err.Error())
	}
}
