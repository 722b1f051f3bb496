package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/jmarlin/focusd/internal/logging"
)

// CLIClient runs the agent as a subprocess in print mode, prompt on stdin,
// one reply on stdout. The caller bounds the call with its context; a slow
// or wedged agent is killed when the deadline passes.
type CLIClient struct {
	Command string
	Model   string
}

func NewCLIClient(command, model string) *CLIClient {
	return &CLIClient{Command: command, Model: model}
}

func (c *CLIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	args := []string{"--print", "--session-id", req.SessionID}
	if c.Model != "" {
		args = append(args, "--model", c.Model)
	}

	cmd := exec.CommandContext(ctx, c.Command, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logging.Debug("agent", "running %s %v, prompt: %s", c.Command, args, logging.Truncate(req.Prompt, 100))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.Command, err)
	}

	go func() {
		defer stdin.Close()
		io.WriteString(stdin, req.Prompt)
	}()

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("agent call: %w", ctx.Err())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s exited: %w: %s", c.Command, err, logging.Truncate(msg, 200))
		}
		return nil, fmt.Errorf("%s exited: %w", c.Command, err)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return nil, fmt.Errorf("%s produced no output", c.Command)
	}
	return ParseResponse(out), nil
}
