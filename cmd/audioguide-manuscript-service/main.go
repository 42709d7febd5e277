// ./cmd/audioguide-manuscript-service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/audioguide-manuscript-service/internal/api"
	"github.com/book-expert/audioguide-manuscript-service/internal/config"
	"github.com/book-expert/audioguide-manuscript-service/internal/llm"
	"github.com/book-expert/audioguide-manuscript-service/internal/pipeline"
	"github.com/book-expert/audioguide-manuscript-service/internal/promptbuilder"
	"github.com/book-expert/audioguide-manuscript-service/internal/worker"
)

const (
	serviceName            = "audioguide-manuscript-service"
	shutdownTimeoutSeconds = 30
	readHeaderTimeout      = 10 * time.Second
)

var errMissingAPIKey = errors.New("generation API key is not set")

func main() {
	// A temporary logger for the bootstrap process
	log, err := logger.New(os.TempDir(), serviceName+"-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create bootstrap logger: %v\n", err)
		os.Exit(1)
	}

	if envErr := godotenv.Load(); envErr != nil && !errors.Is(envErr, os.ErrNotExist) {
		log.Warnf("Failed to load .env: %v", envErr)
	}

	cfg, err := config.Load(os.Getenv("AUDIOGUIDE_CONFIG"), log)
	if err != nil {
		log.Errorf("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	// Initialize the final logger based on the loaded configuration
	log, err = logger.New(cfg.Service.LogDir, serviceName+".log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create final logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Errorf("Service stopped with error: %v", err)
		stop()
		os.Exit(1)
	}

	log.Infof("Shutdown complete.")
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	llmCfg := llmConfig(cfg)
	if llmCfg.APIKey == "" {
		return fmt.Errorf("%w: ensure %s is set", errMissingAPIKey, cfg.LLM.APIKeyEnvironmentVariable)
	}

	client, err := llm.NewClient(ctx, llmCfg, log)
	if err != nil {
		return fmt.Errorf("initialize generation client: %w", err)
	}

	generationPipeline, err := pipeline.New(client, pipelineSettings(cfg), log)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Service.HTTPAddress,
		Handler:           api.NewServer(generationPipeline, requestTimeout(cfg), log).Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Infof("HTTP API listening on %s", server.Addr)

		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return fmt.Errorf("serve HTTP: %w", serveErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Infof("Shutdown signal received, gracefully shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if cfg.NATS.Enabled {
		group.Go(func() error {
			return runWorker(groupCtx, cfg, generationPipeline, log)
		})
	}

	return group.Wait()
}

func runWorker(ctx context.Context, cfg *config.Config, generationPipeline *pipeline.Pipeline, log *logger.Logger) error {
	natsConn, jetstream, err := worker.Connect(cfg.NATS.URL, serviceName, log)
	if err != nil {
		return err
	}
	defer natsConn.Close()

	workerCfg := workerConfig(cfg)

	if err := worker.EnsureStream(jetstream, workerCfg.StreamName, workerCfg.StreamSubjects(), log); err != nil {
		return err
	}

	store, err := worker.ManuscriptStore(jetstream, cfg.NATS.ObjectStore.ManuscriptBucket, log)
	if err != nil {
		return err
	}

	natsWorker, err := worker.New(jetstream, store, generationPipeline, workerCfg, log)
	if err != nil {
		return fmt.Errorf("initialize NATS worker: %w", err)
	}

	log.Infof("Starting NATS worker...")

	return natsWorker.Run(ctx, jetstream)
}

func llmConfig(cfg *config.Config) *llm.Config {
	return &llm.Config{
		APIKey:            cfg.GetAPIKey(),
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Temperature:       temperature(cfg),
		TimeoutSeconds:    cfg.LLM.TimeoutSeconds,
		MaxRetries:        cfg.LLM.MaxRetries,
		RetryDelaySeconds: cfg.LLM.RetryDelaySeconds,
	}
}

func temperature(cfg *config.Config) float64 {
	if cfg.LLM.Temperature == nil {
		return config.DefaultTemperature
	}

	return *cfg.LLM.Temperature
}

func pipelineSettings(cfg *config.Config) pipeline.Settings {
	return pipeline.Settings{
		Director: promptbuilder.DirectorConfig{
			ThemeSystemInstruction:   cfg.Prompts.ThemeSystemInstruction,
			SectionSystemInstruction: cfg.Prompts.SectionSystemInstruction,
		},
		DefaultNarratorVoice:   cfg.Prompts.DefaultNarratorVoice,
		ThemeMaxOutputTokens:   cfg.LLM.ThemeMaxOutputTokens,
		SectionMaxOutputTokens: cfg.LLM.SectionMaxOutputTokens,
	}
}

func requestTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Service.RequestTimeoutSeconds) * time.Second
}

func workerConfig(cfg *config.Config) worker.Config {
	subjects := cfg.NATS.Subjects

	return worker.Config{
		Subjects: worker.Subjects{
			ThemesRequested:     subjects.ThemesRequested,
			ThemesProposed:      subjects.ThemesProposed,
			ManuscriptRequested: subjects.ManuscriptRequested,
			ManuscriptProgress:  subjects.ManuscriptProgress,
			ManuscriptCompleted: subjects.ManuscriptCompleted,
			GenerationFailed:    subjects.GenerationFailed,
			DeadLetter:          cfg.NATS.DLQSubject,
		},
		StreamName:    cfg.NATS.Consumer.Stream,
		FilterSubject: cfg.NATS.Consumer.Subject,
		ConsumerName:  cfg.NATS.Consumer.Durable,
		JobTimeout:    requestTimeout(cfg),
	}
}
