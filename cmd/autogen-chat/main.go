// autogen-chat runs a two-agent conversation from the terminal.
//
//	autogen-chat -config config.yaml -task "Design a rate limiter."
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/microsoft/autogen-sub008"
	"github.com/microsoft/autogen-sub008/agent"
	"github.com/microsoft/autogen-sub008/config"
	"github.com/microsoft/autogen-sub008/conversation"
	"github.com/microsoft/autogen-sub008/internal/telemetry"
	"github.com/microsoft/autogen-sub008/llm"
	"github.com/microsoft/autogen-sub008/llm/openai"
	"github.com/microsoft/autogen-sub008/types"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file")
	task := flag.String("task", "", "the task to discuss")
	stream := flag.Bool("stream", false, "stream replies as they are generated")
	flag.Parse()

	if *task == "" {
		fmt.Fprintln(os.Stderr, "usage: autogen-chat -task \"...\" [-config config.yaml] [-stream]")
		os.Exit(2)
	}

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := autogen.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Fatal("telemetry init failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	if err := run(cfg, logger, *task, *stream); err != nil {
		logger.Fatal("chat failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger, task string, stream bool) error {
	client, err := buildClient(cfg, logger)
	if err != nil {
		return err
	}

	solver, err := agent.NewAssistant("solver", "works on the task", client,
		agent.WithSystemPrompt("You work on the given task step by step."),
		agent.WithAssistantLogger(logger))
	if err != nil {
		return err
	}
	reviewer, err := agent.NewAssistant("reviewer", "reviews the solver's work", client,
		agent.WithSystemPrompt(fmt.Sprintf(
			"You review the solver's work. When the task is solved, reply with %s.",
			cfg.Chat.TerminationKeyword)),
		agent.WithAssistantLogger(logger))
	if err != nil {
		return err
	}

	termination, err := conversation.NewDefaultTermination(cfg.Chat.MaxTurns, cfg.Chat.TerminationKeyword)
	if err != nil {
		return err
	}

	opts := []conversation.Option{
		conversation.WithTermination(termination),
		conversation.WithSeedMessages(types.NewUserMessage(task)),
		conversation.WithLogger(logger),
	}
	if cfg.Chat.Introduce {
		opts = append(opts, conversation.WithIntroduction())
	}
	orc, err := conversation.NewOrchestrator([]types.Agent{solver, reviewer}, opts...)
	if err != nil {
		return err
	}

	if stream {
		return runStreaming(orc)
	}

	result, err := orc.Run(context.Background())
	if err != nil {
		return err
	}
	printResult(result, client)
	return nil
}

func runStreaming(orc *conversation.Orchestrator) error {
	for orc.State() != conversation.StateDone {
		for ev := range orc.StepStream(context.Background()) {
			switch ev.Kind {
			case conversation.EventDelta:
				fmt.Print(ev.Delta)
			case conversation.EventMessage:
				fmt.Printf("\n--- %s ---\n", ev.Speaker)
			case conversation.EventDone:
				if ev.Err != nil {
					return ev.Err
				}
				fmt.Printf("\nStopped: %s\n", ev.Result.StopReason.Reason)
			}
		}
	}
	return nil
}

// buildClient assembles the model client, attaching Prometheus metrics
// and a scrape endpoint when telemetry is enabled.
func buildClient(cfg *config.Config, logger *zap.Logger) (llm.ModelClient, error) {
	if !cfg.Telemetry.Enabled {
		return autogen.NewModelClient(cfg, logger)
	}

	registry := prometheus.NewRegistry()
	metrics := llm.NewMetrics(cfg.Telemetry.ServiceName, registry)

	backend := openai.New(openai.Config{
		APIKey:  cfg.Model.APIKey,
		BaseURL: cfg.Model.BaseURL,
		Timeout: cfg.Model.Timeout,
	}, logger)
	client, err := llm.NewClient(backend, cfg.Model.Name,
		llm.WithLogger(logger),
		llm.WithMetrics(metrics))
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(cfg.Telemetry.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return client, nil
}

func printResult(result *conversation.ChatResult, client llm.ModelClient) {
	for _, msg := range result.History {
		name := msg.Name
		if name == "" {
			name = string(msg.Role)
		}
		fmt.Printf("[%s] %s\n\n", name, msg.Text())
	}
	fmt.Printf("Stopped: %s (%s)\n", result.StopReason.Reason, result.StopReason.Explanation)
	fmt.Printf("Summary: %s\n", result.Summary)

	usage := client.TotalUsage()
	fmt.Printf("Tokens: %d prompt, %d completion, $%.4f\n",
		usage.PromptTokens, usage.CompletionTokens, usage.Cost)
}
