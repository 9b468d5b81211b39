package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/config"
)

// maxOutputChars bounds what a sandbox run may hand back to the caller.
const maxOutputChars = 16000

// Runner executes code snippets in subprocess sandboxes. Each run
// writes the snippet to a file in a throwaway directory and starts the
// interpreter with a hard deadline; expiry kills the process.
type Runner struct {
	cfg    config.ToolsConfig
	logger *slog.Logger
}

func NewRunner(cfg config.ToolsConfig, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger.With("component", "sandbox")}
}

// Run executes code in the sandbox for the given language. Supported
// languages are python, javascript, and typescript plus the usual
// short aliases. Returned output is stdout, clamped to maxOutputChars.
func (r *Runner) Run(ctx context.Context, language, code string) (string, error) {
	lang := normalizeLanguage(language)
	switch lang {
	case "python":
		return r.RunPython(ctx, code)
	case "javascript":
		return r.RunJS(ctx, code)
	case "typescript":
		return r.RunTS(ctx, code)
	default:
		return "", fmt.Errorf("%w: no sandbox for language %q", ErrToolNotFound, language)
	}
}

func (r *Runner) RunPython(ctx context.Context, code string) (string, error) {
	if err := r.checkInput(code); err != nil {
		return "", err
	}
	if err := r.CheckPython(code); err != nil {
		return "", err
	}
	bin := r.cfg.PythonBin
	if bin == "" {
		bin = "python3"
	}
	return r.execute(ctx, "python", code, "main.py", r.scriptTimeout(), bin)
}

func (r *Runner) RunJS(ctx context.Context, code string) (string, error) {
	if err := r.checkInput(code); err != nil {
		return "", err
	}
	if err := r.CheckJS(code); err != nil {
		return "", err
	}
	bin := r.cfg.NodeBin
	if bin == "" {
		return "", fmt.Errorf("%w: javascript runtime not configured", ErrToolNotFound)
	}
	return r.execute(ctx, "javascript", code, "main.js", r.jsTimeout(), bin)
}

// RunTS executes TypeScript under deno, which refuses filesystem and
// network access unless granted. The denylist still applies so safe
// mode behaves the same across runtimes.
func (r *Runner) RunTS(ctx context.Context, code string) (string, error) {
	if err := r.checkInput(code); err != nil {
		return "", err
	}
	if err := r.CheckJS(code); err != nil {
		return "", err
	}
	bin := r.cfg.DenoBin
	if bin == "" {
		return "", fmt.Errorf("%w: typescript runtime not configured", ErrToolNotFound)
	}
	return r.execute(ctx, "typescript", code, "main.ts", r.jsTimeout(), bin, "run", "--quiet", "--no-prompt")
}

func (r *Runner) execute(ctx context.Context, language, code, filename string, timeout time.Duration, bin string, binArgs ...string) (string, error) {
	dir, err := os.MkdirTemp("", "ba-ai-sbx-")
	if err != nil {
		return "", fmt.Errorf("%w: create sandbox dir: %v", ErrSandbox, err)
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(code), 0o600); err != nil {
		return "", fmt.Errorf("%w: write snippet: %v", ErrSandbox, err)
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, bin, append(binArgs, path)...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	elapsed := time.Since(start)

	r.logger.Debug("sandbox run",
		"language", language,
		"bin", bin,
		"duration", elapsed,
		"err", runErr)

	switch {
	case ctx.Err() != nil:
		// The caller went away; report their cancellation, not ours.
		return "", ctx.Err()
	case execCtx.Err() == context.DeadlineExceeded:
		return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
	case runErr != nil:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			detail := strings.TrimSpace(stderr.String())
			if detail == "" {
				detail = strings.TrimSpace(stdout.String())
			}
			return "", fmt.Errorf("%w: exit code %d: %s", ErrSandbox, exitErr.ExitCode(), truncateOutput(detail, 2000))
		}
		return "", fmt.Errorf("%w: start %s: %v", ErrSandbox, bin, runErr)
	}

	out := stdout.String()
	if strings.TrimSpace(out) == "" {
		out = stderr.String()
	}
	return truncateOutput(strings.TrimRight(out, "\n"), maxOutputChars), nil
}

func (r *Runner) checkInput(code string) error {
	limit := r.cfg.MaxInputChars
	if limit <= 0 {
		limit = 12000
	}
	if len(code) > limit {
		return fmt.Errorf("%w: input exceeds %d characters", ErrSandbox, limit)
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("%w: empty code", ErrSandbox)
	}
	return nil
}

func (r *Runner) scriptTimeout() time.Duration {
	if r.cfg.ScriptTimeoutSec > 0 {
		return time.Duration(r.cfg.ScriptTimeoutSec) * time.Second
	}
	return 12 * time.Second
}

func (r *Runner) jsTimeout() time.Duration {
	if r.cfg.JSTimeoutSec > 0 {
		return time.Duration(r.cfg.JSTimeoutSec) * time.Second
	}
	return 2 * time.Second
}

func normalizeLanguage(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "python", "python3", "py", "":
		return "python"
	case "javascript", "js", "node":
		return "javascript"
	case "typescript", "ts", "deno":
		return "typescript"
	default:
		return strings.ToLower(strings.TrimSpace(language))
	}
}

func truncateOutput(s string, max int) string {
	if len(s) <= max {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "\n... (output truncated)"
}
