package anthropicengine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"

	"clawbridge/pkg/engine"
	"clawbridge/pkg/logger"
)

const defaultModel = "claude-sonnet-4-5"

const systemPrompt = "You are a personal task assistant reached through the owner's " +
	"chat self-channel. Complete the requested task and answer concisely; the reply " +
	"is delivered as a chat message."

// Engine runs tasks directly against the Anthropic API. Session
// continuity is local: conversation history is kept in memory per
// generated session id, since the API itself is stateless.
type Engine struct {
	client *anthropic.Client
	model  string

	mu       sync.Mutex
	sessions map[string][]anthropic.MessageParam
}

func New(apiKey, model string) *Engine {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = defaultModel
	}
	return &Engine{
		client:   &client,
		model:    model,
		sessions: make(map[string][]anthropic.MessageParam),
	}
}

func (e *Engine) StartTask(ctx context.Context, taskID string, cfg engine.TaskConfig, cb engine.Callbacks) error {
	if strings.TrimSpace(cfg.Prompt) == "" {
		return fmt.Errorf("empty prompt")
	}

	go e.run(ctx, taskID, cfg, cb)
	return nil
}

// SendResponse is a no-op: the API adapter performs no tool actions that
// would require approval, so no permission request is ever pending.
func (e *Engine) SendResponse(taskID, answer string) error {
	logger.DebugCF("anthropic", "Response with no pending request ignored", map[string]interface{}{
		"task_id": taskID,
	})
	return nil
}

func (e *Engine) run(ctx context.Context, taskID string, cfg engine.TaskConfig, cb engine.Callbacks) {
	sessionID := cfg.SessionID
	history := e.history(sessionID)
	if sessionID == "" || history == nil {
		sessionID = uuid.New().String()
		history = nil
	}

	model := cfg.ModelID
	if model == "" {
		model = e.model
	}

	messages := append(history, anthropic.NewUserMessage(anthropic.NewTextBlock(cfg.Prompt)))

	logger.InfoCF("anthropic", "Starting task", map[string]interface{}{
		"task_id": taskID,
		"model":   model,
		"resume":  len(history) > 0,
	})

	resp, err := e.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt}},
		Messages:  messages,
	})
	if err != nil {
		logger.ErrorCF("anthropic", "Task failed", map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
		if cb.OnError != nil {
			cb.OnError(fmt.Errorf("anthropic API call: %w", err))
		}
		return
	}

	content := extractText(resp)

	e.mu.Lock()
	e.sessions[sessionID] = append(messages, resp.ToParam())
	e.mu.Unlock()

	if cb.OnAssistantMessage != nil && content != "" {
		cb.OnAssistantMessage(content)
	}
	if cb.OnComplete != nil {
		cb.OnComplete(engine.TaskResult{Success: true, SessionID: sessionID})
	}
}

func (e *Engine) history(sessionID string) []anthropic.MessageParam {
	if sessionID == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	history, ok := e.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]anthropic.MessageParam, len(history))
	copy(out, history)
	return out
}

func extractText(msg *anthropic.Message) string {
	var parts []string
	for _, block := range msg.Content {
		if block.Type == "text" {
			parts = append(parts, block.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}
