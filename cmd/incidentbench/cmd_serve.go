package main

import (
	"fmt"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/spachava753/incidentbench/internal/config"
	"github.com/spachava753/incidentbench/internal/llm"
	"github.com/spachava753/incidentbench/internal/metrics"
	"github.com/spachava753/incidentbench/internal/service"
)

var serveFlags struct {
	addr      string
	ollamaURL string
	model     string
}

var serveCmd = &cobra.Command{
	Use:   "serve copilot|multiagent",
	Short: "Run a decision service backed by a local language model",
	Long: `Serve starts one of the two decision services queried during a run.

  copilot     POST /analyze      single model call guarded by a circuit breaker
  multiagent  POST /orchestrate  diagnosis and risk agents in parallel

Both expose GET /health and GET /metrics. The model endpoint is read from
OLLAMA_URL, MODEL_NAME, TEMPERATURE and MAX_TOKENS, then from flags.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"copilot", "multiagent"},
	RunE:      runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", "", "Listen address (default :8000)")
	f.StringVar(&serveFlags.ollamaURL, "ollama-url", "", "Ollama server root URL")
	f.StringVar(&serveFlags.model, "model", "", "Model name")
}

func runServe(cmd *cobra.Command, args []string) error {
	kind := args[0]

	cfg := config.DefaultCopilotConfig()
	if kind == "multiagent" {
		cfg = config.DefaultMultiAgentConfig()
	}
	if err := config.ApplyServiceEnv(&cfg, nil); err != nil {
		return err
	}
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Addr = serveFlags.addr
	}
	if f.Changed("ollama-url") {
		cfg.OllamaURL = serveFlags.ollamaURL
	}
	if f.Changed("model") {
		cfg.Model = serveFlags.model
	}
	if err := config.ValidateServiceConfig(cfg); err != nil {
		return err
	}

	gen := llm.NewOpenAIGenerator(llm.Config{
		BaseURL:     cfg.OllamaURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Timeout:     cfg.LLMTimeout,
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewServiceMetrics(reg, kind)

	var h service.Handler
	switch kind {
	case "copilot":
		h = service.NewCopilot(gen, cfg, m)
	case "multiagent":
		h = service.NewMultiAgent(gen, cfg, m)
	default:
		return fmt.Errorf("unknown service %q", kind)
	}

	gin.SetMode(gin.ReleaseMode)
	router := service.NewRouter(h, reg, m)

	slog.Info("starting service", "service", h.Name(), "addr", cfg.Addr, "model", cfg.Model)
	return service.ListenAndServe(cmd.Context(), cfg.Addr, router)
}
