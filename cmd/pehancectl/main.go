// In file: cmd/pehancectl/main.go

// Package main implements pehancectl, the operator CLI for Pehance. It applies
// database migrations, runs the local classifier and probes upstream models.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pehance/pehance/internal/classifier"
	"github.com/pehance/pehance/internal/guardrail"
	"github.com/pehance/pehance/internal/llm"
	"github.com/pehance/pehance/internal/store"
)

var (
	logger  *zap.Logger
	verbose bool
	timeout time.Duration

	databaseURL string
	modelsFile  string
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:   "pehancectl",
	Short: "Operator tooling for the Pehance prompt enhancement service",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// A missing .env is fine; the environment may be provided directly.
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE:  runMigrate,
}

var classifyCmd = &cobra.Command{
	Use:   "classify [prompt]",
	Short: "Print the local classification and safety verdict for a prompt",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runClassify,
}

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Probe every catalog model and print its availability",
	Long: `Sends a one-token request to every model in the catalog through the
same guarded clients the server uses. Provider keys are read from
GROQ_API_KEY, GEMINI_API_KEY and ANTHROPIC_API_KEY. When REDIS_URL is set the
results are also written to the shared probe cache.`,
	RunE: runProbe,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	migrateCmd.Flags().StringVar(&databaseURL, "dsn", "", "Postgres DSN (default: DATABASE_URL)")
	probeCmd.Flags().StringVar(&modelsFile, "models", "", "Model catalog file (default: PEHANCE_MODELS_FILE or the embedded catalog)")
	probeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")

	rootCmd.AddCommand(migrateCmd, classifyCmd, probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	dsn := firstNonEmpty(databaseURL, os.Getenv("DATABASE_URL"))
	if dsn == "" {
		return errors.New("no database configured: pass --dsn or set DATABASE_URL")
	}
	db, err := store.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.Migrate(ctx, db.DB()); err != nil {
		return err
	}
	v, err := store.Version(ctx, db.DB())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
	return nil
}

type classifyOutput struct {
	Prompt         string            `json:"prompt"`
	Classification classifier.Result `json:"classification"`
	Safety         guardrail.Verdict `json:"safety"`
}

func runClassify(cmd *cobra.Command, args []string) error {
	prompt := strings.Join(args, " ")
	out := classifyOutput{
		Prompt:         prompt,
		Classification: classifier.New().Classify(prompt),
		Safety:         guardrail.New().Check(prompt),
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func runProbe(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	catalog, err := llm.LoadCatalog(firstNonEmpty(modelsFile, os.Getenv("PEHANCE_MODELS_FILE")))
	if err != nil {
		return err
	}
	providers, err := llm.NewProviders(ctx, llm.ProviderKeys{
		Groq:        os.Getenv("GROQ_API_KEY"),
		GroqBaseURL: os.Getenv("GROQ_BASE_URL"),
		Gemini:      os.Getenv("GEMINI_API_KEY"),
		Anthropic:   os.Getenv("ANTHROPIC_API_KEY"),
	}, llm.DefaultGuardConfig(), logger)
	if err != nil {
		return err
	}
	defer providers.Close()

	var recorder llm.ProbeRecorder
	if url := os.Getenv("REDIS_URL"); url != "" {
		opts, err := redis.ParseURL(url)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		recorder = llm.NewProfiler(rdb, 5*time.Minute, logger)
	}

	registry := llm.NewRegistry(catalog, nil, logger)
	providers.Register(registry)
	results := llm.NewProber(catalog, registry, registry, recorder, 10*time.Second, logger).ProbeAll(ctx, true)
	return printProbe(cmd.OutOrStdout(), results, jsonOutput)
}

type probeRow struct {
	Model     string `json:"model"`
	Provider  string `json:"provider"`
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func printProbe(w io.Writer, results []llm.ProbeResult, asJSON bool) error {
	rows := make([]probeRow, 0, len(results))
	for _, r := range results {
		row := probeRow{Model: r.Model.Name, Provider: r.Model.Provider, Status: r.Status, LatencyMS: r.Latency.Milliseconds()}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		rows = append(rows, row)
	}
	summary := llm.Summarize(results)

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Models  []probeRow       `json:"models"`
			Summary llm.ProbeSummary `json:"summary"`
		}{rows, summary})
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tPROVIDER\tSTATUS\tLATENCY")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%dms\n", row.Model, row.Provider, row.Status, row.LatencyMS)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d/%d models available (%.1f%%)\n", summary.AvailableModels, summary.TotalModels, summary.AvailabilityRate*100)
	return err
}

// commandContext bounds a command by --timeout. Commands invoked directly
// (not through Execute) have no context of their own.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
