// ClawBridge - self-chat to agent task bridge
// License: MIT
//
// Copyright (c) 2026 ClawBridge contributors

package claudecli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"clawbridge/pkg/engine"
	"clawbridge/pkg/logger"
)

// Engine runs tasks through the claude CLI in non-interactive print
// mode. Session continuity uses the CLI's own --resume mechanism, so the
// session id handed back in TaskResult is the CLI's session_id.
type Engine struct {
	command   string
	workspace string

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

func New(workspace string) *Engine {
	return &Engine{
		command:   "claude",
		workspace: workspace,
		running:   make(map[string]context.CancelFunc),
	}
}

func (e *Engine) StartTask(ctx context.Context, taskID string, cfg engine.TaskConfig, cb engine.Callbacks) error {
	if strings.TrimSpace(cfg.Prompt) == "" {
		return fmt.Errorf("empty prompt")
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.running[taskID] = cancel
	e.mu.Unlock()

	go func() {
		defer func() {
			cancel()
			e.mu.Lock()
			delete(e.running, taskID)
			e.mu.Unlock()
		}()
		e.run(runCtx, taskID, cfg, cb)
	}()

	return nil
}

// SendResponse answers a permission request. Print mode never prompts
// (permission-requiring actions fail instead of blocking), so there is
// no pending question to answer; the call is recorded and dropped.
func (e *Engine) SendResponse(taskID, answer string) error {
	logger.DebugCF("claude-cli", "Response for non-interactive task ignored", map[string]interface{}{
		"task_id": taskID,
		"answer":  answer,
	})
	return nil
}

func (e *Engine) run(ctx context.Context, taskID string, cfg engine.TaskConfig, cb engine.Callbacks) {
	args := []string{"-p", "--output-format", "json"}
	if cfg.SessionID != "" {
		args = append(args, "--resume", cfg.SessionID)
	}
	if cfg.ModelID != "" {
		args = append(args, "--model", cfg.ModelID)
	}
	args = append(args, "-")

	cmd := exec.CommandContext(ctx, e.command, args...)
	if e.workspace != "" {
		cmd.Dir = e.workspace
	}
	cmd.Stdin = bytes.NewReader([]byte(cfg.Prompt))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	logger.InfoCF("claude-cli", "Starting task", map[string]interface{}{
		"task_id": taskID,
		"resume":  cfg.SessionID != "",
	})

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("claude cli: %s", msg)
		} else {
			err = fmt.Errorf("claude cli: %w", err)
		}
		emitError(cb, err)
		return
	}

	result, err := parseResult(stdout.String())
	if err != nil {
		emitError(cb, err)
		return
	}

	if result.IsError {
		logger.WarnCF("claude-cli", "Task reported error", map[string]interface{}{
			"task_id": taskID,
		})
		if cb.OnComplete != nil {
			cb.OnComplete(engine.TaskResult{Success: false, SessionID: result.SessionID})
		}
		return
	}

	if cb.OnAssistantMessage != nil && result.Result != "" {
		cb.OnAssistantMessage(result.Result)
	}
	if cb.OnComplete != nil {
		cb.OnComplete(engine.TaskResult{Success: true, SessionID: result.SessionID})
	}
}

// cliResult is the claude CLI's json output format.
type cliResult struct {
	Type       string  `json:"type"`
	Subtype    string  `json:"subtype"`
	IsError    bool    `json:"is_error"`
	Result     string  `json:"result"`
	SessionID  string  `json:"session_id"`
	DurationMS int     `json:"duration_ms"`
	CostUSD    float64 `json:"total_cost_usd"`
}

func parseResult(output string) (*cliResult, error) {
	var res cliResult
	if err := json.Unmarshal([]byte(output), &res); err != nil {
		return nil, fmt.Errorf("parse claude cli output: %w", err)
	}
	res.Result = strings.TrimSpace(res.Result)
	return &res, nil
}

func emitError(cb engine.Callbacks, err error) {
	logger.ErrorCF("claude-cli", "Task failed", map[string]interface{}{
		"error": err.Error(),
	})
	if cb.OnError != nil {
		cb.OnError(err)
	}
}
