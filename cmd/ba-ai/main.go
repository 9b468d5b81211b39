// BA-AI is a local AI request router.
//
// It fronts an Ollama backend with intent classification, model
// routing, retrieval, durable memory, sandboxed tools, and response
// validation, exposed over HTTP and WebSocket. Configuration is loaded
// from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]); without one the built-in defaults
// serve.
//
// Usage:
//
//	ba-ai serve              Start the API server
//	ba-ai init [dir]         Initialize a working directory with defaults
//	ba-ai ask <prompt>       Answer a single prompt (for testing)
//	ba-ai index <path>       Build the document index from a directory
//	ba-ai version            Print version and build information
//	ba-ai -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/assemble"
	"github.com/BA-SupportII/BA-AI/internal/buildinfo"
	"github.com/BA-SupportII/BA-AI/internal/config"
	"github.com/BA-SupportII/BA-AI/internal/docindex"
	"github.com/BA-SupportII/BA-AI/internal/embeddings"
	"github.com/BA-SupportII/BA-AI/internal/events"
	"github.com/BA-SupportII/BA-AI/internal/generate"
	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/pipeline"
	"github.com/BA-SupportII/BA-AI/internal/validate"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the ba-ai command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the server and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:], the command-line arguments after the program
//     name. We parse these manually rather than using the flag package
//     to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on package-level
	// globals (flag.CommandLine), which makes it impossible to call run()
	// concurrently from tests. Our argument surface is small enough that
	// manual parsing is clearer than bringing in a CLI framework.
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				// Collect remaining args as subcommand arguments.
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	// Default to human-readable text output.
	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, stderr, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: ba-ai ask <prompt>")
		}
		return runAsk(ctx, stdout, stderr, configPath, cmdArgs)
	case "index":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: ba-ai index <path>")
		}
		return runIndex(ctx, stdout, stderr, configPath, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// ba-ai is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "BA-AI - Local AI Request Router")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: ba-ai [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  init [dir]   Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask          Answer a single prompt (for testing)")
	fmt.Fprintln(w, "  index        Build the document index from a directory")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/ba-ai/config.yaml, /etc/ba-ai/config.yaml")
	fmt.Fprintln(w, "  (built-in defaults are used when no file is found)")
	return nil
}

// runAsk handles the "ba-ai ask <prompt>" subcommand. It boots a
// minimal engine (no cache, no durable memory, no tools) and processes
// a single prompt, printing the answer to stdout. The prompt still goes
// through intent classification and routing so the right model answers.
// Useful for quick smoke tests and debugging without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, args []string) error {
	logger := newLogger(stderr, slog.LevelWarn, "text")

	prompt := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	client := newOllamaClient(cfg, logger)

	engine := pipeline.New(pipeline.Deps{
		Models:    cfg.Models,
		LLM:       client,
		Assembler: assemble.New(assemble.Deps{Models: cfg.Models, Search: cfg.Search, LLM: client, Logger: logger}),
		Generator: generate.New(generate.Deps{LLM: client, Models: cfg.Models, Logger: logger}),
		Validator: validate.New(validate.Deps{LLM: client, Models: cfg.Models, Logger: logger}),
		Logger:    logger,
	})

	res, err := engine.Handle(ctx, pipeline.Request{Prompt: prompt, UserID: "cli"}, events.NewCollector())
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, res.Response)
	return nil
}

// runIndex handles the "ba-ai index <path>" subcommand. It walks the
// given directory, builds the keyword document index, and, when
// embeddings are enabled, the chunk embedding index alongside it. The
// indexes land in the data directory where serve picks them up.
func runIndex(ctx context.Context, stdout io.Writer, stderr io.Writer, configPath string, root string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	// Embeddings are optional. When enabled, each chunk gets a vector
	// for later semantic search; without them only the keyword index
	// is built.
	var embedder docindex.Embedder
	if cfg.Embeddings.Enabled {
		embedder = embeddings.New(embeddings.Config{
			BaseURL: cfg.Ollama.URL,
			Model:   cfg.Embeddings.Model,
			Logger:  logger,
		})
		logger.Info("embeddings enabled", "model", cfg.Embeddings.Model)
	}

	index, err := docindex.New(cfg.DataDir, embedder, logger)
	if err != nil {
		return fmt.Errorf("open document index: %w", err)
	}

	docs, err := index.BuildDocs(ctx, root)
	if err != nil {
		return fmt.Errorf("index documents: %w", err)
	}

	chunks := 0
	if embedder != nil {
		chunks, err = index.BuildChunks(ctx, root, docindex.ChunkParams{})
		if err != nil {
			logger.Warn("chunk embedding incomplete", "err", err)
		}
	}

	if err := index.Flush(); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}

	fmt.Fprintf(stdout, "Indexed %d documents (%d chunks) from %s\n", docs, chunks, root)
	return nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text. All log output in BA-AI goes through slog; this
// helper standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// newOllamaClient builds the backend client from config, converting the
// millisecond knobs to durations.
func newOllamaClient(cfg *config.Config, logger *slog.Logger) *llm.OllamaClient {
	return llm.NewOllamaClient(llm.OllamaConfig{
		BaseURL:        cfg.Ollama.URL,
		HeadersTimeout: time.Duration(cfg.Ollama.HeadersTimeoutMS) * time.Millisecond,
		BodyTimeout:    time.Duration(cfg.Ollama.BodyTimeoutMS) * time.Millisecond,
		KeepAlive:      cfg.Ollama.KeepAlive,
		Logger:         logger,
	})
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise
// [config.FindConfig] searches the default locations; when nothing is
// found the built-in defaults serve, so a bare `ba-ai serve` works on a
// fresh machine. Returns the parsed config, the path that was loaded
// (empty for built-in defaults), and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, "", err
		}
		cfg := config.Default()
		cfg.ApplyEnv()
		return cfg, "", nil
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
