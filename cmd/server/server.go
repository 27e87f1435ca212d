package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"github.com/deepakparameswar/csflow/graph"
	"github.com/deepakparameswar/csflow/graph/emit"
	"github.com/deepakparameswar/csflow/graph/model"
	"github.com/deepakparameswar/csflow/graph/model/anthropic"
	"github.com/deepakparameswar/csflow/graph/model/google"
	"github.com/deepakparameswar/csflow/graph/model/openai"
	"github.com/deepakparameswar/csflow/graph/store"
	"github.com/deepakparameswar/csflow/internal/api"
	"github.com/deepakparameswar/csflow/internal/config"
	"github.com/deepakparameswar/csflow/internal/damage"
	"github.com/deepakparameswar/csflow/internal/demo"
	"github.com/deepakparameswar/csflow/internal/inquiry"
	"github.com/deepakparameswar/csflow/internal/retrieval"
	"github.com/deepakparameswar/csflow/internal/sop"
	"github.com/deepakparameswar/csflow/internal/support"
	"github.com/deepakparameswar/csflow/internal/websearch"
	"github.com/deepakparameswar/csflow/pkg/lifecycle"
	"github.com/deepakparameswar/csflow/pkg/logx"
)

// Server owns the engines, their stores and the HTTP listeners.
type Server struct {
	cfg       *config.Config
	lifecycle *lifecycle.Coordinator
	servers   []*httpServer
}

type pinger interface {
	Ping(ctx context.Context) error
}

type closer interface {
	Close() error
}

// NewServer wires every collaborator from cfg.
func NewServer(cfg *config.Config) (*Server, error) {
	lc := lifecycle.New()
	logger := logx.Logger()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := graph.NewPrometheusMetrics(reg)
	meter := model.NewCostMeter(reg)

	tp := newTracerProvider(logger)
	otelEmitter := emit.NewOTelEmitter(otel.Tracer("csflow"))
	history := emit.NewBufferedEmitter(emit.WithMaxEventsPerRun(500))
	emitter := emit.Multi(emit.NewLogEmitter(logger), otelEmitter, history)

	chat, err := newChatModel(cfg.LLM, meter)
	if err != nil {
		return nil, err
	}

	var rdb *goredis.Client
	if cfg.Store.Driver == "redis" {
		if rdb, err = cfg.Store.Redis.New(); err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
	}

	inqStore, err := openStore[inquiry.State](cfg.Store, inquiry.GraphName, rdb)
	if err != nil {
		return nil, err
	}
	sopStore, err := openStore[sop.State](cfg.Store, sop.GraphName, rdb)
	if err != nil {
		return nil, err
	}

	docs, err := retrieval.LoadCorpus(cfg.CorpusPath)
	if err != nil {
		return nil, err
	}

	var searcher websearch.Searcher
	if cfg.Search.TavilyAPIKey != "" {
		t, err := websearch.NewTavily(cfg.Search.TavilyAPIKey, websearch.WithURL(cfg.Search.TavilyURL))
		if err != nil {
			return nil, err
		}
		searcher = t
	}

	var classifier damage.Classifier
	if cfg.Damage.URL != "" {
		classifier = damage.NewHTTPClassifier(cfg.Damage.URL)
	}

	dir := support.DefaultDirectory()
	catalog, err := support.NewCatalog(dir, classifier)
	if err != nil {
		return nil, err
	}

	retry := &graph.RetryPolicy{
		MaxAttempts: cfg.Graph.RetryAttempts,
		BaseDelay:   cfg.Graph.RetryBaseDelay,
		MaxDelay:    20 * cfg.Graph.RetryBaseDelay,
		Retryable:   model.IsRetryable,
	}
	engineOpts := []graph.Option{
		graph.WithMaxSteps(cfg.Graph.MaxSteps),
		graph.WithDefaultNodeTimeout(cfg.Graph.NodeTimeout),
		graph.WithMetrics(metrics),
	}
	if cfg.Graph.RestartCompleted {
		engineOpts = append(engineOpts, graph.WithRestartCompleted())
	}
	if cfg.Graph.DeleteOnComplete {
		engineOpts = append(engineOpts, graph.WithDeleteOnComplete())
	}

	inqDef, err := inquiry.NewDefinition(inquiry.Deps{
		Model:        chat,
		Retriever:    retrieval.NewIndex(docs...),
		Searcher:     searcher,
		MaxRevisions: cfg.Graph.MaxRevisions,
		NodeTimeout:  cfg.Graph.NodeTimeout,
		Retry:        retry,
	})
	if err != nil {
		return nil, err
	}
	inqEngine, err := graph.New(inqDef, inqStore, emitter, engineOpts...)
	if err != nil {
		return nil, err
	}

	sopDef, err := sop.NewDefinition(sop.Deps{
		Model:       chat,
		Catalog:     catalog,
		NodeTimeout: cfg.Graph.NodeTimeout,
		Retry:       retry,
	})
	if err != nil {
		return nil, err
	}
	sopEngine, err := graph.New(sopDef, sopStore, emitter, engineOpts...)
	if err != nil {
		return nil, err
	}

	metricsHandler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	handler, err := api.New(api.Config{
		Inquiry:   inqEngine,
		SOP:       sopEngine,
		Directory: dir,
		Events:    history,
		Readiness: lc,
		Metrics:   metricsHandler,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{cfg: cfg, lifecycle: lc}
	s.servers = append(s.servers, newHTTPServer("http", cfg.Server.Addr, handler.Routes(),
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, logger))
	if cfg.Server.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", metricsHandler)
		s.servers = append(s.servers, newHTTPServer("metrics", cfg.Server.MetricsAddr, mux,
			cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, logger))
	}

	s.registerHooks(tp, otelEmitter, rdb, inqStore, sopStore)
	return s, nil
}

// registerHooks checks the stores at startup and releases them on shutdown.
func (s *Server) registerHooks(tp *sdktrace.TracerProvider, oe *emit.OTelEmitter, rdb *goredis.Client, stores ...any) {
	lc := s.lifecycle
	for _, st := range stores {
		if p, ok := st.(pinger); ok {
			lc.OnStartup(func() {
				ctx, cancel := context.WithTimeout(lc.Context(), 10*time.Second)
				defer cancel()
				if err := p.Ping(ctx); err != nil {
					logx.Error().Err(err).Msg("store ping failed")
				}
			})
		}
	}

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := oe.Flush(ctx); err != nil {
			logx.Warn().Err(err).Msg("span flush failed")
		}
		if err := tp.Shutdown(ctx); err != nil {
			logx.Warn().Err(err).Msg("tracer shutdown failed")
		}
		for _, st := range stores {
			if c, ok := st.(closer); ok {
				if err := c.Close(); err != nil {
					logx.Warn().Err(err).Msg("store close failed")
				}
			}
		}
		if rdb != nil {
			_ = rdb.Close()
		}
	})
}

// Run serves until ctx is cancelled or a listener fails.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		s.lifecycle.WaitForStartup()
		logx.Info().Msg("all subsystems ready")
	}()

	g, gctx := errgroup.WithContext(ctx)
	for _, hs := range s.servers {
		g.Go(hs.serve)
	}
	g.Go(func() error {
		<-gctx.Done()
		for _, hs := range s.servers {
			hs.shutdown(s.cfg.Server.ShutdownTimeout)
		}
		return nil
	})
	return g.Wait()
}

// Shutdown runs the lifecycle shutdown hooks.
func (s *Server) Shutdown(timeout time.Duration) error {
	logx.Info().Msg("initiating shutdown")
	return s.lifecycle.Shutdown(timeout)
}

func newChatModel(cfg config.LLM, meter *model.CostMeter) (model.ChatModel, error) {
	var (
		m    model.ChatModel
		name = cfg.Model
	)
	switch cfg.Provider {
	case "anthropic":
		m = anthropic.NewChatModel(cfg.APIKey, cfg.Model)
		if name == "" {
			name = anthropic.DefaultModel
		}
	case "openai":
		m = openai.NewChatModel(cfg.APIKey, cfg.Model)
		if name == "" {
			name = openai.DefaultModel
		}
	case "google":
		m = google.NewChatModel(cfg.APIKey, cfg.Model)
		if name == "" {
			name = google.DefaultModel
		}
	case "mock":
		return model.NewMetered(demo.NewChatModel(), meter, "mock"), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	limited := model.NewRateLimited(m, cfg.RequestsPerMinute, cfg.Burst)
	return model.NewMetered(limited, meter, name), nil
}

func openStore[S any](cfg config.Store, graphName string, rdb *goredis.Client) (store.Store[S], error) {
	switch cfg.Driver {
	case "memory":
		return store.NewMemStore[S](), nil
	case "sqlite":
		return store.NewSQLiteStore[S](cfg.DSN)
	case "mysql":
		return store.NewMySQLStore[S](cfg.DSN)
	case "postgres":
		return store.NewPostgresStore[S](cfg.DSN)
	case "redis":
		return store.NewRedisStore[S](rdb, "csflow:"+graphName+":", cfg.Retention), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}
