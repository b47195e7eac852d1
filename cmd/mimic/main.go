package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MikeSquared-Agency/mimic/internal/api"
	"github.com/MikeSquared-Agency/mimic/internal/build"
	"github.com/MikeSquared-Agency/mimic/internal/config"
	"github.com/MikeSquared-Agency/mimic/internal/dataset"
	"github.com/MikeSquared-Agency/mimic/internal/hermes"
	"github.com/MikeSquared-Agency/mimic/internal/slack"
	"github.com/MikeSquared-Agency/mimic/internal/store"
	"github.com/MikeSquared-Agency/mimic/internal/telegram"
	"github.com/MikeSquared-Agency/mimic/internal/telemetry"
)

const usage = `usage: mimic <command> [flags]

commands:
  build    convert a Telegram export into a multi-turn JSONL dataset
  chats    list the chats of an export
  extract  write a single chat of an export to its own file
  serve    run the HTTP conversion API
`

// exitError carries a process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "build":
		err = runBuild(ctx, args)
	case "chats":
		err = runChats(args)
	case "extract":
		err = runExtract(args)
	case "serve":
		err = runServe(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		if errors.Is(err, config.ErrInvalid) {
			code = 2
		}
		slog.Error("mimic failed", "error", err)
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(code)
	}
}

// pipelineFlags are the flags shared by build and serve. Only flags given on
// the command line override the loaded configuration.
type pipelineFlags struct {
	configPath      string
	turnWindow      float64
	conversationGap float64
	ownName         string
	ownAliases      string
	roleMatch       string
	minMessages     int
	includeGroups   bool
	requireExchange bool
	systemPrompt    bool
	workers         int
	logLevel        string
	logFile         string
}

func (p *pipelineFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&p.configPath, "config", "", "YAML configuration file")
	fs.Float64Var(&p.turnWindow, "turn-window", dataset.DefaultTurnWindow.Minutes(), "minutes within which same-sender messages merge into one turn")
	fs.Float64Var(&p.conversationGap, "conversation-gap", dataset.DefaultConversationGap.Minutes(), "minutes of silence that start a new conversation")
	fs.StringVar(&p.ownName, "own-name", "Pasquale", "your display name; your turns become assistant turns")
	fs.StringVar(&p.ownAliases, "own-aliases", "", "comma-separated extra names that are also you")
	fs.StringVar(&p.roleMatch, "role-match", config.RoleMatchExact, "name comparison: exact or fold (case-insensitive)")
	fs.IntVar(&p.minMessages, "min-messages", dataset.DefaultMinTurns, "minimum turns (after merging) a conversation needs to be kept")
	fs.BoolVar(&p.includeGroups, "include-groups", false, "also build conversations from group chats")
	fs.BoolVar(&p.requireExchange, "require-exchange", false, "drop conversations where only one side speaks")
	fs.BoolVar(&p.systemPrompt, "system-prompt", false, "prepend a system message to every conversation")
	fs.IntVar(&p.workers, "workers", 1, "chats processed in parallel; output order is unaffected")
	fs.StringVar(&p.logLevel, "log-level", "info", "debug, info, warn or error")
	fs.StringVar(&p.logFile, "log-file", "", "write logs to a rotating file instead of stderr")
}

// resolve loads env, the optional YAML file, then explicitly set flags.
func (p *pipelineFlags) resolve(fs *flag.FlagSet) (config.Config, error) {
	cfg := config.Load()
	if p.configPath != "" {
		var err error
		if cfg, err = config.LoadFile(p.configPath, cfg); err != nil {
			return cfg, &exitError{code: 2, err: err}
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "turn-window":
			cfg.TurnWindow = p.turnWindow
		case "conversation-gap":
			cfg.ConversationGap = p.conversationGap
		case "own-name":
			cfg.OwnName = p.ownName
		case "own-aliases":
			cfg.OwnAliases = splitList(p.ownAliases)
		case "role-match":
			cfg.RoleMatch = p.roleMatch
		case "min-messages":
			cfg.MinMessages = p.minMessages
		case "include-groups":
			cfg.IncludeGroups = p.includeGroups
		case "require-exchange":
			cfg.RequireExchange = p.requireExchange
		case "system-prompt":
			cfg.SystemPrompt = p.systemPrompt
		case "workers":
			cfg.Workers = p.workers
		case "log-level":
			cfg.LogLevel = p.logLevel
		case "log-file":
			cfg.LogFile = p.logFile
		}
	})
	return cfg, cfg.Validate()
}

func runBuild(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	var pf pipelineFlags
	pf.register(fs)
	input := fs.String("i", "result.json", "Telegram export to read (- for stdin)")
	output := fs.String("o", "dataset.jsonl", "dataset to write (- for stdout)")
	reportPath := fs.String("report", "", "also save the run report as JSON")
	if err := fs.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}
	if fs.NArg() > 0 {
		*input = fs.Arg(0)
	}

	cfg, err := pf.resolve(fs)
	if err != nil {
		return err
	}
	closeLog, err := setupLogging(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	p, err := cfg.Pipeline()
	if err != nil {
		return err
	}

	tel, err := telemetry.Setup(ctx, cfg.MetricsFile)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	runner := build.NewRunner(p, cfg.Workers, slog.Default())
	runner.Metrics = tel
	runner.Output = *output

	closeSinks, err := attachSinks(ctx, cfg, runner)
	if err != nil {
		return err
	}
	defer closeSinks()

	src, closeSrc, err := openInput(*input)
	if err != nil {
		return err
	}
	defer closeSrc()

	dst, commit, err := openOutput(*output)
	if err != nil {
		return err
	}

	report, runErr := runner.Run(ctx, src, dst)
	if err := commit(); err != nil && runErr == nil {
		runErr = err
	}
	if report != nil {
		fmt.Fprint(os.Stderr, "\n"+formatTerminal(report))
		if *reportPath != "" {
			if err := report.Save(*reportPath); err != nil {
				slog.Warn("failed to save report", "path", *reportPath, "error", err)
			}
		}
	}
	return runErr
}

// attachSinks connects the optional Postgres, NATS and Slack sinks.
func attachSinks(ctx context.Context, cfg config.Config, r *build.Runner) (func(), error) {
	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		db, err := store.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return closeAll, fmt.Errorf("connect to database: %w", err)
		}
		closers = append(closers, db.Close)
		if err := db.EnsureSchema(ctx); err != nil {
			closeAll()
			return func() {}, err
		}
		r.Store = db
		slog.Info("database connected")
	}

	if cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			closeAll()
			return func() {}, fmt.Errorf("connect to NATS: %w", err)
		}
		closers = append(closers, hc.Close)
		r.Publisher = hc
		slog.Info("NATS connected", "url", cfg.NatsURL)
	}

	if cfg.SlackBotToken != "" && cfg.SlackChannel != "" {
		r.Notifier = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, slog.Default())
		slog.Info("slack poster ready", "channel", cfg.SlackChannel)
	}
	return closeAll, nil
}

func runChats(args []string) error {
	fs := flag.NewFlagSet("chats", flag.ContinueOnError)
	input := fs.String("i", "result.json", "Telegram export to read (- for stdin)")
	name := fs.String("name", "", "only chats whose name contains this (case-insensitive)")
	typ := fs.String("type", "", "only chats of this type, e.g. personal_chat")
	id := fs.Int64("id", 0, "only the chat with this id")
	full := fs.Bool("full", false, "print the listing as JSON instead of a table")
	output := fs.String("o", "", "also save the listing as JSON")
	if err := fs.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}
	if fs.NArg() > 0 {
		*input = fs.Arg(0)
	}

	q := telegram.Query{Name: *name, Type: *typ}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "id" {
			q.ID, q.HasID = *id, true
		}
	})

	src, closeSrc, err := openInput(*input)
	if err != nil {
		return err
	}
	defer closeSrc()

	summaries, err := telegram.List(src, q)
	if err != nil {
		return err
	}

	if *full {
		if err := writeIndented(os.Stdout, summaries); err != nil {
			return err
		}
	} else if err := telegram.WriteTable(os.Stdout, summaries); err != nil {
		return err
	}

	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("create %s: %w", *output, err)
		}
		defer f.Close()
		if err := writeIndented(f, summaries); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "Saved %d chats to %s\n", len(summaries), *output)
	}
	return nil
}

func runExtract(args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	input := fs.String("i", "result.json", "Telegram export to read (- for stdin)")
	id := fs.Int64("id", 0, "id of the chat to extract (required)")
	output := fs.String("o", "", "file to write (default conversation_<id>.json)")
	if err := fs.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}
	if fs.NArg() > 0 {
		*input = fs.Arg(0)
	}
	idSet := false
	fs.Visit(func(f *flag.Flag) { idSet = idSet || f.Name == "id" })
	if !idSet {
		return &exitError{code: 2, err: errors.New("extract: -id is required")}
	}
	if *output == "" {
		*output = fmt.Sprintf("conversation_%d.json", *id)
	}

	src, closeSrc, err := openInput(*input)
	if err != nil {
		return err
	}
	defer closeSrc()

	chat, err := telegram.Find(src, *id)
	if err != nil {
		return err
	}

	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("create %s: %w", *output, err)
	}
	if err := telegram.WriteChat(f, chat); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", *output, err)
	}

	fmt.Fprintf(os.Stderr, "Extracted chat %d (%s, %d messages) to %s\n", chat.Contact.ID, chat.Contact.Name, chat.Len(), *output)
	return nil
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	var pf pipelineFlags
	pf.register(fs)
	port := fs.Int("port", 8760, "HTTP port")
	if err := fs.Parse(args); err != nil {
		return &exitError{code: 2, err: err}
	}

	cfg, err := pf.resolve(fs)
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "port" {
			cfg.Port = *port
		}
	})
	closeLog, err := setupLogging(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	slog.Info("mimic starting", "port", cfg.Port)
	srv := api.NewServer(cfg, slog.Default())
	err = srv.Start(ctx)
	slog.Info("mimic stopped")
	return err
}

// formatTerminal renders the run summary without Slack markup.
func formatTerminal(r *build.Report) string {
	return strings.Replace(build.FormatSummary(r), "*Dataset Build Summary*", "=== Dataset Build Summary ===", 1)
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "-" {
		return bufio.NewReader(os.Stdin), func() {}, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open export: %w", err)
	}
	return bufio.NewReaderSize(f, 1<<20), func() { f.Close() }, nil
}

// openOutput returns a buffered writer and a commit func that flushes and
// closes it.
func openOutput(path string) (io.Writer, func() error, error) {
	if path == "-" {
		w := bufio.NewWriter(os.Stdout)
		return w, w.Flush, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("create output: %w", err)
	}
	w := bufio.NewWriterSize(f, 1<<20)
	return w, func() error {
		if err := w.Flush(); err != nil {
			f.Close()
			return fmt.Errorf("flush output: %w", err)
		}
		return f.Close()
	}, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func setupLogging(level, file string) (func(), error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	w, closer, err := telemetry.LogWriter(os.Stderr, file)
	if err != nil {
		return nil, err
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
	return func() { _ = closer.Close() }, nil
}
