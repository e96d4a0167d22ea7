package cmd

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"story-pipeline/core/config"
	"story-pipeline/core/docstore"
	"story-pipeline/core/jobs"
	"story-pipeline/core/loader"
	"story-pipeline/core/logger"
	"story-pipeline/core/middleware/auth"
	"story-pipeline/core/middleware/rayid"
	"story-pipeline/core/tracing"
	storiesReconcile "story-pipeline/feature/stories/reconcile"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const auditJob = "shareid-audit"

// startCmd represents the start command
var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the pipeline server",
	Long: `Starts the HTTP server for the event webhooks, the bucket notification
listener, the document change feed and the scheduled share id audit.`,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Configuration
		cfg, err := config.LoadConfig(".")
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}

		// 2. Initialize Logger
		logg, err := logger.New(&cfg.Log)
		if err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		defer logg.Sync()
		zap.ReplaceGlobals(logg)

		if !cfg.Server.IsValidEventSource() {
			logg.Fatal("Invalid event source", zap.String("event_source", cfg.Server.EventSource))
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 3. Tracing
		shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
		if err != nil {
			logg.Fatal("Failed to set up tracing", zap.Error(err))
		}

		// 4. Backends and the stories feature
		p, err := openPipeline(ctx, cfg, logg, prometheus.DefaultRegisterer)
		if err != nil {
			logg.Fatal("Failed to initialize pipeline", zap.Error(err))
		}
		svc := p.feature.Service()

		app := fiber.New(fiber.Config{
			DisableStartupMessage: true,
		})

		mgr := loader.NewManager()
		mgr.Register(p.feature)

		// RayID first so every log line below carries it.
		app.Use(rayid.New())

		app.Use(func(c *fiber.Ctx) error {
			l := logger.WithRayID(logg, c)
			l.Info("Request started",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", c.IP()),
			)
			err := c.Next()
			if err != nil {
				l.Error("Request error", zap.Error(err))
			}
			return err
		})

		prom := fiberprometheus.New("story_pipeline")
		prom.RegisterAt(app, "/metrics")
		app.Use(prom.Middleware)

		app.Get("/health", func(c *fiber.Ctx) error {
			return c.SendString("ok")
		})

		app.Use(auth.New(auth.Config{ApiKey: cfg.Server.ApiKey, Public: []string{"/metrics", "/health"}}))

		if err := mgr.LoadAll(app); err != nil {
			logg.Fatal("Failed to load features", zap.Error(err))
		}

		// 5. In-process event sources
		listener := p.feature.Listener(logg)
		if cfg.Server.Listens() {
			go listener.ListenObjects(ctx)
		}
		if cfg.Server.WatchDocuments {
			if w, ok := p.store.(docstore.Watcher); ok {
				go func() {
					if err := listener.WatchRecords(ctx, w); err != nil && !errors.Is(err, context.Canceled) {
						logg.Error("Document change feed stopped", zap.Error(err))
					}
				}()
			} else {
				logg.Warn("Document store has no change feed", zap.String("driver", cfg.DocStore.Driver))
			}
		}

		// 6. Scheduled audit
		sched, err := jobs.New(logg)
		if err != nil {
			logg.Fatal("Failed to create scheduler", zap.Error(err))
		}
		if cfg.Reconcile.AuditSchedule != "" {
			err := sched.Register(auditJob, cfg.Reconcile.AuditSchedule, func(ctx context.Context) error {
				plan, err := svc.AuditShareIDs(ctx)
				if err != nil {
					return err
				}
				logg.Info("Share id audit",
					zap.Int("total", plan.Summary.TotalItems),
					zap.Int("missing", plan.Summary.Counts[storiesReconcile.CountMissing]),
					zap.Int("duplicates", plan.Summary.Counts[storiesReconcile.CountDuplicates]),
				)
				return nil
			})
			if err != nil {
				logg.Fatal("Failed to schedule share id audit", zap.Error(err))
			}
		}
		sched.Start()
		if cfg.Reconcile.AuditSchedule != "" {
			if next, err := sched.NextRun(auditJob); err == nil {
				logg.Info("Share id audit scheduled", zap.Time("next_run", next))
			}
			if cfg.Reconcile.AuditOnStart {
				if err := sched.RunNow(auditJob); err != nil {
					logg.Warn("Failed to run share id audit", zap.Error(err))
				}
			}
		}

		// 7. Start Server
		go func() {
			logg.Info("Starting server",
				zap.String("port", cfg.Server.Port),
				zap.String("event_source", cfg.Server.EventSource),
				zap.String("docstore", cfg.DocStore.Driver),
			)
			if err := app.Listen(":" + cfg.Server.Port); err != nil {
				logg.Fatal("Server failed to start", zap.Error(err))
			}
		}()

		// 8. Graceful Shutdown
		<-ctx.Done()
		logg.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logg.Warn("Server shutdown failed", zap.Error(err))
		}
		if err := sched.Shutdown(); err != nil {
			logg.Warn("Scheduler shutdown failed", zap.Error(err))
		}
		if err := p.Close(shutdownCtx); err != nil {
			logg.Warn("Failed to close backends", zap.Error(err))
		}
		if err := shutdownTracing(shutdownCtx); err != nil {
			logg.Warn("Failed to flush traces", zap.Error(err))
		}
	},
}

func init() {
	RootCmd.AddCommand(startCmd)
}
