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

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"weather-chatbot/internal/agent/agent"
	"weather-chatbot/internal/agent/config"
	"weather-chatbot/internal/chat"
	"weather-chatbot/internal/logging"
	"weather-chatbot/internal/observability"
	"weather-chatbot/internal/weather"
)

func main() {
	cmd := &cli.Command{
		Name:  "weatherchat",
		Usage: "chat about current weather, forecasts and air quality",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "env-file", Value: ".env", Usage: "dotenv file to load before reading the environment"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"V"}, Usage: "enable debug logging", Sources: cli.EnvVars("WEATHERCHAT_VERBOSE")},
			&cli.IntFlag{Name: "max-iterations", Usage: "maximum model calls per turn (overrides AGENT_MAX_ITERATIONS)"},
			&cli.IntFlag{Name: "chunk-size", Usage: "characters per streamed fragment (overrides STREAM_CHUNK_SIZE)"},
			&cli.StringFlag{Name: "metrics-addr", Usage: "serve Prometheus metrics on this address (overrides METRICS_ADDR)"},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	cfg, err := config.NewConfig(cmd.String("env-file"))
	if err != nil {
		return err
	}
	if cmd.Bool("verbose") {
		cfg.Log.Level = "debug"
	}
	if cmd.IsSet("max-iterations") {
		cfg.Agent.MaxIterations = int(cmd.Int("max-iterations"))
	}
	if cmd.IsSet("chunk-size") {
		cfg.Agent.ChunkSize = int(cmd.Int("chunk-size"))
	}
	if cmd.IsSet("metrics-addr") {
		cfg.Agent.MetricsAddr = cmd.String("metrics-addr")
	}

	log, err := logging.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	if cfg.Weather.APIKey == "" {
		log.Warn("WEATHER_API_KEY is not set, weather tools will report an error")
	}
	weatherClient := weather.NewClient(
		weather.WithBaseURL(cfg.Weather.BaseURL),
		weather.WithAPIKey(cfg.Weather.APIKey),
		weather.WithTimeout(cfg.Weather.Timeout),
		weather.WithLogger(log.WithField("component", "weather")),
	)
	tools, err := weather.NewTools(weatherClient)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics()
	if cfg.Agent.MetricsAddr != "" {
		go serveMetrics(cfg.Agent.MetricsAddr, metrics, log)
	}

	weatherAgent, err := agent.NewAgent(
		agent.WithLLMConfig(*cfg.LLM),
		agent.WithTools(tools),
		agent.WithMaxIterations(cfg.Agent.MaxIterations),
		agent.WithLogger(log.WithField("component", "agent")),
		agent.WithMetrics(metrics),
	)
	if err != nil {
		log.WithError(err).Fatal("failed to create agent")
	}
	log.WithFields(logrus.Fields{
		"model":    cfg.LLM.Model,
		"base_url": cfg.LLM.BaseURL,
		"tools":    len(weatherAgent.Tools()),
	}).Info("agent ready")

	session := agent.NewSession(weatherAgent, agent.WithSessionChunkSize(cfg.Agent.ChunkSize))
	repl := chat.NewREPL(session, os.Stdin, os.Stdout, log.WithField("component", "chat"))

	if err := repl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func serveMetrics(addr string, metrics *observability.Metrics, log logrus.FieldLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.WithField("addr", addr).Info("serving metrics")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("metrics server stopped")
	}
}
