package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/handler"
	"github.com/xxxsen/ragchat/internal/job"
	"github.com/xxxsen/ragchat/internal/middleware"
	"github.com/xxxsen/ragchat/internal/model"
	"github.com/xxxsen/ragchat/internal/pkg/jwt"
	"github.com/xxxsen/ragchat/internal/schedule"
	"github.com/xxxsen/ragchat/internal/service"
)

func main() {
	var (
		configPath string
		envPath    string
	)

	rootCmd := &cobra.Command{
		Use:           "ragchat",
		Short:         "retrieval augmented chat backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "path to the credentials env file")

	load := func() (*config.Config, error) {
		if configPath == "" {
			return nil, fmt.Errorf("--config is required")
		}
		if err := config.LoadEnv(envPath); err != nil {
			return nil, err
		}
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(
			cfg.LogConfig.File,
			cfg.LogConfig.Level,
			int(cfg.LogConfig.FileCount),
			int(cfg.LogConfig.FileSize),
			int(cfg.LogConfig.KeepDays),
			cfg.LogConfig.Console,
		)
		logutil.GetLogger(context.Background()).Info("config loaded", zap.String("config", configPath))
		return cfg, nil
	}
	withApp := func(fn func(ctx context.Context, a *app) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return fn(ctx, a)
		}
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run the http server",
		RunE: withApp(func(ctx context.Context, a *app) error {
			return runServer(ctx, a)
		}),
	}

	schemaCmd := &cobra.Command{
		Use:   "schema",
		Short: "drop and recreate the vector collection (destroys stored chunks)",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if err := a.vectors.EnsureSchema(ctx); err != nil {
				return err
			}
			fmt.Printf("collection %s recreated\n", a.vectors.Collection().Name)
			return nil
		}),
	}

	var (
		ingestSample bool
		ingestAppID  string
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "chunk, embed and insert documents",
	}
	ingestCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if !ingestSample && len(args) == 0 {
			return fmt.Errorf("pass files to ingest or --sample")
		}
		return withApp(func(ctx context.Context, a *app) error {
			return runIngest(ctx, a, args, ingestSample, ingestAppID)
		})(cmd, args)
	}
	ingestCmd.Flags().BoolVar(&ingestSample, "sample", false, "insert the built-in demo rows")
	ingestCmd.Flags().StringVar(&ingestAppID, "app-id", "", "app id for the chunks (defaults to chunk.app_id)")

	var (
		searchLimit  int
		searchRadius float64
	)
	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "query the vector store",
		Args:  cobra.MinimumNArgs(1),
	}
	searchCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			limit, radius := searchLimit, searchRadius
			if limit <= 0 {
				limit = a.cfg.Search.Limit
			}
			if radius <= 0 {
				radius = a.cfg.Search.MaxDistance
			}
			outcome := a.vectors.SearchOutcome(ctx, strings.Join(args, " "), limit, radius)
			if !outcome.Available {
				return fmt.Errorf("search unavailable: %w", outcome.Err)
			}
			return printJSON(outcome.Results())
		})(cmd, args)
	}
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max results")
	searchCmd.Flags().Float64Var(&searchRadius, "radius", 0, "max distance")

	var noRetrieval bool
	chatCmd := &cobra.Command{
		Use:   "chat <model-id> <message>",
		Short: "run one turn and print the streamed answer",
		Args:  cobra.MinimumNArgs(2),
	}
	chatCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app) error {
			turn, err := a.chat.Stream(ctx, service.ChatRequest{
				ModelID:      args[0],
				Messages:     []model.Message{{Role: model.RoleUser, Content: strings.Join(args[1:], " ")}},
				UseRetrieval: !noRetrieval,
			})
			if err != nil {
				return err
			}
			failed := false
			for delta := range turn.Stream.All() {
				failed = failed || ai.IsErrorDelta(delta)
				fmt.Print(delta)
			}
			fmt.Println()
			if failed {
				return fmt.Errorf("generation failed")
			}
			return nil
		})(cmd, args)
	}
	chatCmd.Flags().BoolVar(&noRetrieval, "no-retrieval", false, "skip the vector search")

	var (
		tokenSubject string
		tokenTTL     time.Duration
	)
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "print an admin bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cfg.AdminSecret == "" {
				return fmt.Errorf("admin_secret is not configured")
			}
			token, err := jwt.GenerateToken(tokenSubject, jwt.RoleAdmin, []byte(cfg.AdminSecret), tokenTTL)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "admin", "token subject")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")

	cleanupCmd := &cobra.Command{
		Use:   "cache-cleanup",
		Short: "prune expired rows from the embedding cache",
		RunE: withApp(func(ctx context.Context, a *app) error {
			if a.cacheRepo == nil {
				return fmt.Errorf("embedding cache needs a database")
			}
			sched, err := newScheduler(a)
			if err != nil {
				return err
			}
			if err := sched.RunNow(ctx, job.EmbeddingCacheCleanupName); err != nil {
				return err
			}
			counts, err := a.cacheRepo.CountByModel(ctx)
			if err != nil {
				return err
			}
			return printJSON(map[string]interface{}{"remaining": counts})
		}),
	}

	rootCmd.AddCommand(runCmd, schemaCmd, ingestCmd, searchCmd, chatCmd, tokenCmd, cleanupCmd)

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runIngest(ctx context.Context, a *app, files []string, sample bool, appID string) error {
	if sample {
		report, err := a.ingest.IngestSample(ctx)
		if err != nil {
			return err
		}
		if err := printJSON(report); err != nil {
			return err
		}
	}
	var failed int
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		res, err := a.ingest.Ingest(ctx, service.IngestInput{
			Name:  filepath.Base(path),
			Data:  data,
			AppID: appID,
		})
		if err != nil {
			logutil.GetLogger(ctx).Error("ingest failed", zap.String("file", path), zap.Error(err))
			failed++
			continue
		}
		if err := printJSON(res); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(files))
	}
	return nil
}

// newScheduler registers the cache cleanup job when the database cache is in
// use.
func newScheduler(a *app) (*schedule.CronScheduler, error) {
	sched := schedule.NewCronScheduler()
	if a.cacheRepo == nil {
		return sched, nil
	}
	cleanup := job.NewEmbeddingCacheCleanupJob(a.cacheRepo, a.cfg.EmbedCache.RetentionDays)
	if err := sched.AddJob(cleanup, a.cfg.EmbedCache.CleanupCron); err != nil {
		return nil, fmt.Errorf("schedule %s: %w", cleanup.Name(), err)
	}
	return sched, nil
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(ctx).Info(
		"starting server",
		zap.Int("port", cfg.Port),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.Bool("admin_guard", cfg.AdminSecret != ""),
	)

	deps := handler.RouterDeps{
		Chat:          handler.NewChatHandler(a.chat),
		Search:        handler.NewSearchHandler(a.vectors, cfg.Search.Limit, cfg.Search.MaxDistance),
		Documents:     handler.NewDocumentHandler(a.ingest, a.vectors, cfg.HTTP.MaxUploadMB*1024*1024),
		Prompts:       handler.NewPromptHandler(a.prompts),
		AdminSecret:   []byte(cfg.AdminSecret),
		ChatRateLimit: time.Duration(cfg.HTTP.ChatRateLimitMS) * time.Millisecond,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.HTTP.CORSOrigins),
			gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/api/v1" + handler.ChatPath})),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}

	sched, err := newScheduler(a)
	if err != nil {
		return err
	}
	sched.Start(ctx)
	defer sched.Stop()

	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))
	go func() {
		if err := engine.Run(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}
