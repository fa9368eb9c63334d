package server

import (
	"context"
	"log"
	"log/slog"
	"time"

	"raggate/app/api"
	"raggate/app/middleware"
	"raggate/limiter"
	"raggate/model"
	"raggate/store"
	"raggate/types"

	"github.com/gofiber/fiber/v2"
)

var config = fiber.Config{
	ErrorHandler: api.ErrorHandler,
}

type Server struct {
	cfg    types.Config
	logger *slog.Logger
	done   chan struct{}
}

func NewServer(cfg types.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
		done:   make(chan struct{}),
	}
}

func (s *Server) Stop() {
	close(s.done)
	s.logger.Info("server stopped")
}

func (s *Server) Run() {
	ctx := context.Background()

	pg, err := store.NewPostgresStore(ctx, s.cfg.ConnString(), s.cfg.EmbedDim)
	if err != nil {
		log.Fatal("error to connect to Postgres database", err)
		return
	}

	if err := pg.Init(ctx); err != nil {
		log.Fatal("error to create tables", err)
		return
	}

	var (
		embedder  = model.NewOpenAIEmbedder(s.cfg.EmbedURL, s.cfg.EmbedAPIKey, s.cfg.EmbedModel)
		generator = model.NewOpenAIGenerator(s.cfg.LLMURL, s.cfg.LLMAPIKey, s.cfg.LLMModel)
		app       = NewApp(s.cfg, embedder, generator, pg, pg, pg)
	)

	go s.purgeLoop(ctx, pg)

	if err := app.Listen(s.cfg.ServerAddr); err != nil {
		s.logger.Error("error to start server", "error", err.Error())
		return
	}
}

// NewApp wires middleware, handlers and routes onto a fiber app. Collaborator
// interfaces are injected so tests can run the full HTTP surface against
// fakes.
func NewApp(cfg types.Config, embedder model.EmbedderInterface, generator model.GeneratorInterface, index store.VectorIndexer, blobs store.BlobStorer, counters limiter.CounterStore) *fiber.App {
	var (
		app           = fiber.New(config)
		checkHandler  = api.NewCheckHandler()
		chatHandler   = api.NewChatHandler(cfg, embedder, generator, index, blobs)
		ingestHandler = api.NewIngestHandler(cfg, embedder, index, blobs)
		lim           = limiter.New(counters, cfg.RateWindowSec, cfg.RateMaxRequests)
	)

	// Origin enforcement runs before everything else, preflights included.
	app.Use(middleware.CORS(cfg.AllowedOrigins))

	app.Get("/check/healthy", checkHandler.HandleHealthy)
	app.Post("/chat", middleware.RateLimit(lim), chatHandler.HandleChat)
	app.Post("/admin/ingest", ingestHandler.HandleIngest)

	return app
}

// purgeLoop compacts rate buckets whose window has rolled over. Buckets are
// keyed by window index, so anything older than two windows is garbage.
func (s *Server) purgeLoop(ctx context.Context, purger store.BucketPurger) {
	window := time.Duration(s.cfg.RateWindowSec) * time.Second
	ticker := time.NewTicker(window)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if err := purger.PurgeBuckets(ctx, 2*window); err != nil {
				s.logger.Warn("rate bucket purge failed", "error", err.Error())
			}
		}
	}
}
