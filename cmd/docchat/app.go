package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/config"
	"github.com/xxxsen/docchat/internal/convert"
	"github.com/xxxsen/docchat/internal/db"
	"github.com/xxxsen/docchat/internal/embedcache"
	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/handler"
	"github.com/xxxsen/docchat/internal/indexstore"
	"github.com/xxxsen/docchat/internal/job"
	"github.com/xxxsen/docchat/internal/middleware"
	"github.com/xxxsen/docchat/internal/prompt"
	"github.com/xxxsen/docchat/internal/repo"
	"github.com/xxxsen/docchat/internal/retrieval"
	"github.com/xxxsen/docchat/internal/router"
	"github.com/xxxsen/docchat/internal/schedule"
	"github.com/xxxsen/docchat/internal/service"
	"github.com/xxxsen/docchat/internal/session"
)

const (
	indexCacheSize = 64
	indexCacheTTL  = 30 * time.Minute
)

type app struct {
	cfg       *config.Config
	db        *sql.DB
	documents *service.DocumentService
	chat      *service.ChatService
	extract   *service.ExtractService
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	logger := logutil.GetLogger(ctx)

	files, err := filestore.New(cfg.FileStore)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}
	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return nil, err
	}
	prompts := prompt.Default()
	if cfg.PromptFile != "" {
		if prompts, err = prompt.Load(cfg.PromptFile); err != nil {
			return nil, err
		}
	}

	a := &app{cfg: cfg}
	var catalog service.DocumentCatalog
	if cfg.Database != nil {
		a.db, err = db.Open(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		catalog = repo.NewDocumentRepo(a.db)
	}

	sessions := session.NewStore(cfg.SessionCacheSize, time.Duration(cfg.SessionTTLHours)*time.Hour)
	a.documents = service.NewDocumentService(
		service.UploadLimits{MaxSize: cfg.Upload.MaxSize, Extensions: cfg.Upload.Extensions},
		files,
		indexstore.New(files, indexCacheSize, indexCacheTTL),
		convert.New(cfg.Convert),
		embedder,
		cfg.Retrieval.EmbedBudget,
		sessions,
		catalog,
	)

	models := router.NewFromConfig(cfg.Models)
	selfHosted, err := ai.NewCompleter(cfg.SelfHosted.Type, cfg.SelfHosted)
	if err != nil {
		logger.Warn("self-hosted backend disabled", zap.String("type", cfg.SelfHosted.Type), zap.Error(err))
		selfHosted = nil
	}
	assembler := retrieval.NewAssembler(embedder, retrieval.AssemblerConfig{
		TopK:   cfg.Retrieval.TopK,
		Window: cfg.Retrieval.Window,
		Budget: cfg.Retrieval.ContextBudget,
	})
	a.chat = service.NewChatService(prompts, models, selfHosted, a.documents, assembler, time.Duration(cfg.LLMTimeout)*time.Second)

	var extractBackend ai.ICompleter
	if cfg.Extraction.Backend.Type != "" {
		extractBackend, err = ai.NewCompleter(cfg.Extraction.Backend.Type, cfg.Extraction.Backend)
		if err != nil {
			logger.Warn("extraction backend disabled", zap.String("type", cfg.Extraction.Backend.Type), zap.Error(err))
			extractBackend = nil
		}
	}
	a.extract = service.NewExtractService(extractBackend, selfHosted, models, cfg.Extraction.Concurrency, cfg.Extraction.SegmentChars)
	return a, nil
}

func (a *app) Close() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

func buildEmbedder(cfg config.EmbeddingConfig) (ai.IEmbedder, error) {
	entries := make([]ai.EmbedderEntry, 0, len(cfg.Backends))
	for _, backend := range cfg.Backends {
		e, err := ai.NewEmbedder(backend.Type, backend)
		if err != nil {
			return nil, fmt.Errorf("init embedder %s: %w", backend.Type, err)
		}
		e = embedcache.WrapLruCacheToEmbedder(e, cfg.CacheSize, time.Duration(cfg.CacheTTLSeconds)*time.Second)
		entries = append(entries, ai.EmbedderEntry{Name: backend.Type, Embedder: e})
	}
	group := ai.NewGroupEmbedder(entries)
	if group == nil {
		return nil, fmt.Errorf("no embedding backend configured")
	}
	return group, nil
}

func runServer(cfg *config.Config) error {
	logutil.GetLogger(context.Background()).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("file_store", cfg.FileStore.Type),
		zap.Bool("catalog", cfg.Database != nil),
	)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.db != nil {
		scheduler := schedule.NewCronScheduler()
		if err := scheduler.AddJob(job.NewIndexRetentionJob(a.documents, cfg.Retention.Days), cfg.Retention.Spec); err != nil {
			return err
		}
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	deps := handler.RouterDeps{
		Documents:     handler.NewDocumentHandler(a.documents, cfg.Upload.MaxSize),
		Chat:          handler.NewChatHandler(a.chat),
		Examples:      handler.NewExampleHandler(a.chat),
		Extract:       handler.NewExtractHandler(a.extract),
		Meta:          handler.NewMetaHandler(cfg.ModelNames(), a.chat),
		SessionSecret: []byte(cfg.SessionSecret),
		SessionTTL:    time.Duration(cfg.SessionTTLHours) * time.Hour,
		RateLimit:     time.Duration(cfg.RateLimitMillis) * time.Millisecond,
	}

	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.CORSAllowlist),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
