package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/codec"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/config"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/controller"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/gate"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/llm"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/logging"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/metrics"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/retrieval"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/store"
	"github.com/danielpatrickdp/agentic-rag/go-controller/internal/tools"
)

// app owns every long-lived component of one CLI invocation.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	controller *controller.Controller
	store      *store.Store
	closers    []func() error
}

// #region wiring
// newBaseApp loads configuration and builds the logger.
func newBaseApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.Logging())
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error { _ = logger.Sync(); return nil })
	return a, nil
}

// newApp wires the full controller.
func newApp(ctx context.Context) (*app, error) {
	a, err := newBaseApp()
	if err != nil {
		return nil, err
	}
	cfg, logger := a.cfg, a.logger
	m := a.startMetrics()

	if cfg.Store.Path != "" {
		st, err := store.NewStore(cfg.Store.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.store = st
		a.closers = append(a.closers, st.Close)
	}

	provider, embedder, sidecar, err := a.models()
	if err != nil {
		a.Close()
		return nil, err
	}

	vector, text, err := a.retrievers(ctx, embedder, sidecar)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := tools.Deps{Vector: vector, Text: text}
	if cfg.LLM.Provider == "codec" {
		deps.Reranker, deps.Judge = sidecar, sidecar
	} else {
		deps.Reranker = llm.NewReranker(provider, cfg.Agent.SnippetLength)
		deps.Judge = llm.NewJudge(provider)
	}
	g := gate.NewGate(gate.GateConfig{Thresholds: cfg.Thresholds()})
	tb := tools.NewToolbox(deps, g, cfg.Limits(), tools.WithLogger(logger), tools.WithMetrics(m))

	opts := []controller.Option{controller.WithLogger(logger), controller.WithMetrics(m)}
	if a.store != nil {
		opts = append(opts, controller.WithRecorder(a.store))
	}
	c, err := controller.New(llm.NewDecisionMaker(provider, cfg.Thresholds()), tb, cfg.Controller(), opts...)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.controller = c
	return a, nil
}

// models returns the chat provider, the embedder and, when the codec provider
// or backend is configured, the sidecar connection.
func (a *app) models() (llm.Provider, retrieval.Embedder, *codec.CodecClient, error) {
	cfg := a.cfg
	var (
		provider llm.Provider
		embedder retrieval.Embedder
		sidecar  *codec.CodecClient
	)
	if cfg.LLM.Provider == "codec" || cfg.Retrieval.Backend == "codec" {
		cc, err := codec.NewCodecClient(cfg.Codec.Addr)
		if err != nil {
			return nil, nil, nil, err
		}
		a.closers = append(a.closers, cc.Close)
		sidecar = cc
	}
	switch cfg.LLM.Provider {
	case "codec":
		provider, embedder = sidecar, sidecar
	default:
		o := llm.NewOllamaProvider(cfg.LLM.BaseURL, cfg.LLM.Model)
		o.EmbeddingModel = cfg.LLM.EmbeddingModel
		o.Temperature = cfg.LLM.Temperature
		provider, embedder = o, o
	}

	switch cfg.Retrieval.Cache {
	case "memory":
		embedder = retrieval.NewCachedEmbedder(embedder, retrieval.NewMemoryCache(cfg.Retrieval.CacheTTL), cfg.LLM.EmbeddingModel)
	case "redis":
		rc := redis.NewClient(&redis.Options{Addr: cfg.Retrieval.RedisAddr})
		a.closers = append(a.closers, rc.Close)
		embedder = retrieval.NewCachedEmbedder(embedder, retrieval.NewRedisCache(rc, "agentic-rag:emb:", cfg.Retrieval.CacheTTL), cfg.LLM.EmbeddingModel)
	}
	return provider, embedder, sidecar, nil
}

// retrievers builds the vector backend and the keyword index. The corpus
// directory, when set, feeds the keyword index and the in-memory vector index.
func (a *app) retrievers(ctx context.Context, embedder retrieval.Embedder, sidecar *codec.CodecClient) (tools.VectorRetriever, tools.TextRetriever, error) {
	cfg := a.cfg.Retrieval
	var passages []retrieval.Passage
	if cfg.Corpus != "" {
		ps, err := retrieval.LoadCorpus(cfg.Corpus, cfg.ChunkSize, cfg.ChunkOverlap)
		if err != nil {
			return nil, nil, err
		}
		passages = ps
		a.logger.Info("corpus loaded", zap.String("dir", cfg.Corpus), zap.Int("passages", len(ps)))
	}

	text, err := retrieval.NewTextIndex()
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, text.Close)
	if err := text.Add(passages...); err != nil {
		return nil, nil, err
	}

	switch cfg.Backend {
	case "codec":
		return retrieval.NewRetriever(sidecar, a.cfg.Sidecar()), text, nil
	case "pgvector":
		pg, err := retrieval.OpenPGVector(cfg.PostgresDSN, embedder, cfg.SimilarityThreshold)
		if err != nil {
			return nil, nil, err
		}
		a.closers = append(a.closers, pg.Close)
		return pg, text, nil
	default:
		mem := retrieval.NewMemoryIndex(embedder, cfg.SimilarityThreshold)
		if err := mem.Add(ctx, passages...); err != nil {
			return nil, nil, fmt.Errorf("embed corpus: %w", err)
		}
		return mem, text, nil
	}
}

func (a *app) startMetrics() *metrics.Metrics {
	if a.cfg.Metrics.Addr == "" {
		return metrics.New(nil)
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Warn("metrics listener stopped", zap.Error(err))
		}
	}()
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	a.logger.Info("metrics listening", zap.String("addr", a.cfg.Metrics.Addr))
	return m
}

// #endregion wiring

// Close releases components in reverse order of creation.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
