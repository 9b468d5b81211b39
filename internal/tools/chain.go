package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/BA-SupportII/BA-AI/internal/llm"
	"github.com/BA-SupportII/BA-AI/internal/prompts"
)

const maxChainSteps = 10

// Step is one entry of a chain request. Name may be any registered
// alias; unknown names fail the step, not the chain.
type Step struct {
	Name string `json:"name"`
	Args Args   `json:"args"`
}

// StepResult reports one executed step. Failures are recorded here and
// never abort the remaining steps.
type StepResult struct {
	Name       string `json:"name"`
	OK         bool   `json:"ok"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"errorKind,omitempty"`
	DurationMS int64  `json:"durationMs"`
}

// ChainResult is the full outcome: every step, the accumulated context
// block, and the final model answer synthesized from it.
type ChainResult struct {
	Steps      []StepResult `json:"steps"`
	Context    string       `json:"context"`
	Answer     string       `json:"answer,omitempty"`
	Model      string       `json:"model,omitempty"`
	DurationMS int64        `json:"durationMs"`
}

// RunChain executes steps sequentially, appending each success to a
// growing context block, then makes one model pass over the aggregate
// to answer prompt. An empty prompt skips the model pass. Client
// cancellation stops the chain; everything completed so far is still
// returned.
func (rt *Runtime) RunChain(ctx context.Context, steps []Step, prompt string) (*ChainResult, error) {
	if !rt.cfg.Enabled {
		return nil, ErrDisabled
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: empty chain", ErrSandbox)
	}
	if len(steps) > maxChainSteps {
		return nil, fmt.Errorf("%w: chain exceeds %d steps", ErrSandbox, maxChainSteps)
	}

	start := time.Now()
	result := &ChainResult{Steps: make([]StepResult, 0, len(steps))}
	var contextBlock strings.Builder

	for i, step := range steps {
		if ctx.Err() != nil {
			result.Context = contextBlock.String()
			result.DurationMS = time.Since(start).Milliseconds()
			return result, ctx.Err()
		}

		sr := StepResult{Name: step.Name}
		name, ok := Lookup(step.Name)
		if !ok {
			sr.Error = fmt.Sprintf("unknown tool %q", step.Name)
			sr.ErrorKind = Kind(ErrToolNotFound)
			result.Steps = append(result.Steps, sr)
			continue
		}

		stepStart := time.Now()
		res, err := rt.Run(ctx, name, step.Args)
		sr.DurationMS = time.Since(stepStart).Milliseconds()
		if err != nil {
			sr.Error = err.Error()
			sr.ErrorKind = Kind(err)
			result.Steps = append(result.Steps, sr)
			fmt.Fprintf(&contextBlock, "### step %d: %s (failed)\n%s\n\n", i+1, name, err.Error())
			continue
		}
		sr.OK = true
		sr.Output = res.Output
		result.Steps = append(result.Steps, sr)
		fmt.Fprintf(&contextBlock, "### step %d: %s\n%s\n\n", i+1, name, res.Output)
	}

	result.Context = strings.TrimRight(contextBlock.String(), "\n")

	if strings.TrimSpace(prompt) != "" && rt.llm != nil {
		answer, err := rt.chainAnswer(ctx, result.Context, prompt)
		if err != nil {
			result.DurationMS = time.Since(start).Milliseconds()
			return result, fmt.Errorf("final pass: %w", err)
		}
		result.Answer = answer
		result.Model = rt.models.Chat
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func (rt *Runtime) chainAnswer(ctx context.Context, contextBlock, prompt string) (string, error) {
	user := "Tool outputs:\n\n" + contextBlock + "\n\nRequest: " + prompt
	resp, err := rt.llm.Chat(ctx, rt.models.Chat, []llm.Message{
		{Role: "system", Content: prompts.ChainFinal},
		{Role: "user", Content: user},
	}, nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Message.Content), nil
}
