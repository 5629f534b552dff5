package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/memory"
	pgloader "live-quiz-service/internal/infra/postgres"
	rediscache "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/scoring"
	"live-quiz-service/internal/server"
	"live-quiz-service/internal/transport/tcp"
	"live-quiz-service/internal/transport/ws"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		// No config file: defaults plus the built-in question bank.
		cfg = config.Config{}
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8888"
	}
	httpPort := cfg.Server.HTTPPort
	if httpPort == "" {
		httpPort = "8080"
	}

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	var loader memory.SetLoader = memory.DefaultBank()
	if pool != nil {
		loader = pgloader.NewQuestionLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var questions ws.QuestionRepository
	if redisClient != nil {
		questions = rediscache.NewQuestionRepository(redisClient, loader, quizTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, quizTTL)
	}

	hub := ws.NewHub()
	coord := server.NewCoordinator(server.Options{
		Policy:        scoring.ForName(cfg.Quiz.ScoringPolicy),
		Sink:          hub,
		AdvancePolicy: server.AdvancePolicy(cfg.Quiz.AdvancePolicy),
		TickInterval:  config.TTLDuration(cfg.Quiz.TickInterval, 0),
		StartDelay:    config.TTLDuration(cfg.Quiz.StartDelay, 0),
		AdvanceDelay:  config.TTLDuration(cfg.Quiz.AdvanceDelay, 0),
		AdvanceBuffer: config.TTLDuration(cfg.Quiz.AdvanceBuffer, 0),
	})
	defer coord.Stop()

	quizServer := tcp.NewServer(coord)
	if err := quizServer.Listen(":" + finalPort); err != nil {
		return err
	}
	log.Info().Str("addr", quizServer.Addr().String()).Msg("quiz wire listening")

	dashboard := ws.NewHandler(coord, hub, questions)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", dashboard.ServeWS)

	httpServer := &http.Server{
		Addr:         ":" + httpPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", httpPort).Msg("dashboard listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("dashboard server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down")
	}

	if err := quizServer.Close(); err != nil {
		log.Warn().Err(err).Msg("closing quiz listener")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
