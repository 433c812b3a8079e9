package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/alex/mirra/internal/comfy"
	"github.com/alex/mirra/internal/config"
	"github.com/alex/mirra/internal/creature"
	"github.com/alex/mirra/internal/drawing"
	"github.com/alex/mirra/internal/llm"
	"github.com/alex/mirra/internal/mood"
	"github.com/alex/mirra/internal/server"
	"github.com/alex/mirra/internal/servo"
	"github.com/alex/mirra/internal/store"
	"github.com/alex/mirra/internal/vision"
	"github.com/alex/mirra/internal/watcher"
)

var (
	flagConfig string
	flagSim    bool
	flagNoDB   bool
	flagDebug  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Wake the creature and run until interrupted",
	RunE:  runCreature,
}

func init() {
	runCmd.Flags().BoolVar(&flagSim, "sim", false, "simulate mood instead of using camera and LLM")
	runCmd.Flags().BoolVar(&flagNoDB, "no-db", false, "disable the event log database")
	runCmd.Flags().BoolVar(&flagDebug, "debug", false, "verbose logging")
}

// recorderProxy breaks the wiring cycle between the drawing dispatcher
// and the creature: the dispatcher is built first and reports into
// whatever target is set afterward.
type recorderProxy struct {
	target *creature.Creature
}

func (p *recorderProxy) RecordDrawing(prompt string, queued bool, reason string) {
	if p.target != nil {
		p.target.RecordDrawing(prompt, queued, reason)
	}
}

func runCreature(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(flagDebug)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Event log database.
	var db *store.DB
	runID := store.NewRunID()
	if !flagNoDB {
		dbPath := cfg.Database.Path
		if dbPath == "" {
			dbPath, err = store.DefaultDBPath()
			if err != nil {
				return err
			}
		}
		db, err = store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		if _, err := db.BeginRun(runID); err != nil {
			return fmt.Errorf("begin run: %w", err)
		}
		logger.Info("run started", zap.String("run_id", runID), zap.String("db", dbPath))
	}

	moodSignal := mood.NewSignal()
	feed := vision.NewFeed()

	// Mood source: the LLM pipeline when reachable, a random walk
	// otherwise. The creature breathes either way.
	moods, caption := buildMoodSource(ctx, cfg, moodSignal, feed, logger)

	// Drawing pipeline.
	comfyClient, err := comfy.NewClient(comfy.Config{
		BaseURL:      cfg.Drawing.ComfyURL,
		WorkflowFile: cfg.Drawing.WorkflowFile,
		PromptNode:   cfg.Drawing.PromptNode,
	})
	if err != nil {
		return fmt.Errorf("drawing pipeline: %w", err)
	}
	recorder := &recorderProxy{}
	dispatcher := drawing.NewDispatcher(comfyClient, recorder, logger, 10*time.Second)

	// Servos, when there is a body attached.
	var servos creature.Actuator
	if cfg.Servo.Enabled {
		port, err := servo.OpenFilePort(cfg.Servo.Port)
		if err != nil {
			logger.Warn("servo port unavailable, running bodiless", zap.Error(err))
		} else {
			ctrl := servo.New(port)
			defer ctrl.Close()
			servos = ctrl
		}
	}

	var events creature.EventSink
	if db != nil {
		events = db
	}

	c := creature.New(creature.Options{
		Config:  cfg,
		Logger:  logger,
		RunID:   runID,
		Signal:  moodSignal,
		Moods:   moods,
		Caption: caption,
		Faces:   feed,
		Frames:  feed,
		Servos:  servos,
		Express: dispatcher,
		Events:  events,
	})
	recorder.target = c

	// Watch the render output folder so finished drawings get logged.
	monitor, err := watcher.NewMonitor(cfg.Drawing.OutputFolder, logger, c.OnImage)
	if err != nil {
		return fmt.Errorf("output watcher: %w", err)
	}
	if err := monitor.Start(ctx); err != nil {
		return err
	}
	defer monitor.Stop()

	// Status API.
	srv := server.New(db, c.Status, feed, VersionString())
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Run(ctx) })
	g.Go(func() error {
		logger.Info("status api listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	if db != nil {
		status := "completed"
		if err != nil {
			status = "failed"
		}
		if endErr := db.EndRun(runID, status); endErr != nil {
			logger.Warn("end run failed", zap.Error(endErr))
		}
	}
	return err
}

// buildMoodSource picks the LLM pipeline or the simulator. A short ping
// decides; a creature that cannot see still has to breathe.
func buildMoodSource(ctx context.Context, cfg config.Config, moodSignal *mood.Signal, feed *vision.Feed, logger *zap.Logger) (creature.MoodSource, func() string) {
	if flagSim {
		logger.Info("mood simulation enabled")
		return creature.SimulatedSource{Sim: mood.NewSimulator(moodSignal, nil)}, nil
	}

	client := llm.NewClient(llm.Config{
		BaseURL: cfg.Mood.OllamaURL,
		Model:   cfg.Mood.Model,
		Timeout: cfg.Mood.Timeout.Std(),
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx); err != nil {
		logger.Warn("ollama unreachable, falling back to mood simulation",
			zap.String("url", cfg.Mood.OllamaURL), zap.Error(err))
		return creature.SimulatedSource{Sim: mood.NewSimulator(moodSignal, nil)}, nil
	}
	if ok, models, err := client.CheckModel(pingCtx); err == nil && !ok {
		logger.Warn("configured model not present on ollama",
			zap.String("model", cfg.Mood.Model), zap.Strings("available", models))
	}

	engine := mood.NewEngine(moodSignal, feed, client, client)
	logger.Info("mood pipeline ready",
		zap.String("url", cfg.Mood.OllamaURL), zap.String("model", cfg.Mood.Model))
	return engine, engine.LastCaption
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
