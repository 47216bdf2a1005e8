package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/rehearsa/internal/app"
	"github.com/MrWong99/rehearsa/internal/config"
	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/internal/questions"
	"github.com/MrWong99/rehearsa/internal/store"
	"github.com/MrWong99/rehearsa/internal/store/memstore"
	"github.com/MrWong99/rehearsa/internal/store/postgres"
)

const shutdownTimeout = 15 * time.Second

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "rehearsa",
		Short: "rehearsa - spoken mock-interview server",
		Long: `rehearsa runs spoken mock interviews: it asks scripted questions aloud,
records and transcribes the candidate's answers, decides on follow-ups and
scores the finished transcript.

Without a subcommand rehearsa starts the server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadEnv(opts.envFile)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the config; missing files are ignored")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Start the HTTP and websocket server",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd, opts)
			},
		},
		newMigrateCmd(opts),
		newQuestionsCmd(opts),
	)
	return root
}

// loadEnv loads a dotenv file into the process environment so "${VAR}"
// placeholders in the config expand. Variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found, copy configs/example.yaml to get started", path)
		}
		return nil, err
	}
	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	return cfg, nil
}

// ── serve ─────────────────────────────────────────────────────────────────────

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	slog.Info("rehearsa starting",
		"version", version,
		"config", opts.configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion:   version,
		TraceSampleRatio: cfg.Server.TraceSampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	providers, err := buildProviders(cfg, reg)
	if err != nil {
		return err
	}

	printStartupSummary(cmd.OutOrStdout(), cfg)

	application, err := app.New(ctx, cfg, providers, app.WithMetricsHandler(promhttp.Handler()))
	if err != nil {
		return err
	}

	slog.Info("server ready, press Ctrl+C to shut down")
	runErr := application.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("run error", "err", runErr)
	}

	slog.Info("shutdown signal received, stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	slog.Info("goodbye")
	return nil
}

// ── migrate ───────────────────────────────────────────────────────────────────

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Long: `Create the interviews and feedback tables in the database named by
store.postgres_dsn. Migration is idempotent; serve applies it as well.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cfg.Store.PostgresDSN == "" {
				return errors.New("store.postgres_dsn is not set")
			}
			st, err := postgres.NewStore(cmd.Context(), cfg.Store.PostgresDSN, cfg.Store.MaxConns)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	}
}

// ── questions ─────────────────────────────────────────────────────────────────

type questionsOptions struct {
	name      string
	role      string
	level     string
	kind      string
	techStack string
	amount    int
}

func newQuestionsCmd(opts *rootOptions) *cobra.Command {
	qo := &questionsOptions{}
	cmd := &cobra.Command{
		Use:   "questions",
		Short: "Generate a question set and print it as YAML",
		Long: `Generate interview questions with the configured LLM and print them as a
question_sets entry that can be pasted into the configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			reg := config.NewRegistry()
			registerBuiltinProviders(reg)
			providers, err := buildProviders(cfg, reg)
			if err != nil {
				return err
			}
			if providers.LLM == nil {
				return errors.New("providers.llm is not configured")
			}
			return generateQuestions(cmd.Context(), cmd.OutOrStdout(), questions.New(providers.LLM, memstore.New()), qo)
		},
	}
	f := cmd.Flags()
	f.StringVar(&qo.name, "name", "", "question set name (default: derived from role and level)")
	f.StringVar(&qo.role, "role", "", "job role, e.g. \"Backend Engineer\"")
	f.StringVar(&qo.level, "level", "", "seniority, e.g. \"Senior\"")
	f.StringVar(&qo.kind, "type", string(config.QuestionsMixed), "behavioural, technical or mixed")
	f.StringVar(&qo.techStack, "techstack", "", "comma-separated technologies")
	f.IntVar(&qo.amount, "amount", 5, "number of questions (1-50)")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("level")
	_ = cmd.MarkFlagRequired("techstack")
	return cmd
}

// questionGenerator is satisfied by [questions.Generator].
type questionGenerator interface {
	Generate(ctx context.Context, req questions.Request) (*store.Interview, error)
}

func generateQuestions(ctx context.Context, w io.Writer, gen questionGenerator, qo *questionsOptions) error {
	iv, err := gen.Generate(ctx, questions.Request{
		UserID:    "cli",
		Role:      qo.role,
		Level:     qo.level,
		Type:      qo.kind,
		TechStack: qo.techStack,
		Amount:    qo.amount,
	})
	if err != nil {
		return err
	}

	name := qo.name
	if name == "" {
		name = strings.ToLower(strings.Join(strings.Fields(qo.level+" "+qo.role), "-"))
	}
	set := []config.QuestionSetConfig{{
		Name:      name,
		Role:      iv.Role,
		Level:     iv.Level,
		Type:      config.QuestionType(iv.Type),
		TechStack: iv.TechStack,
		Questions: iv.Questions,
	}}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any{"question_sets": set}); err != nil {
		return fmt.Errorf("encode question set: %w", err)
	}
	return enc.Close()
}

// ── startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "╔═══════════════════════════════════════╗")
	fmt.Fprintln(w, "║        rehearsa - startup summary     ║")
	fmt.Fprintln(w, "╠═══════════════════════════════════════╣")
	printProvider(w, "LLM", cfg.Providers.LLM)
	printProvider(w, "STT", cfg.Providers.STT)
	printProvider(w, "TTS", cfg.Providers.TTS)
	backend := "memory"
	if cfg.Store.PostgresDSN != "" {
		backend = "postgres"
	}
	fmt.Fprintf(w, "║  Store           : %-19s ║\n", backend)
	fmt.Fprintf(w, "║  Question sets   : %-19d ║\n", len(cfg.QuestionSets))
	fmt.Fprintf(w, "║  Max sessions    : %-19d ║\n", cfg.Interview.MaxSessions)
	fmt.Fprintf(w, "║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Fprintln(w, "╚═══════════════════════════════════════╝")
}

func printProvider(w io.Writer, kind string, e config.ProviderEntry) {
	value := e.Name
	if value == "" {
		value = "(not configured)"
	} else if e.Model != "" {
		value = e.Name + " / " + e.Model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Fprintf(w, "║  %-12s    : %-19s ║\n", kind, value)
}

// ── logger ────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
