package openaiengine

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"clawbridge/pkg/engine"
	"clawbridge/pkg/logger"
)

const defaultModel = "gpt-4o"

const systemPrompt = "You are a personal task assistant reached through the owner's " +
	"chat self-channel. Complete the requested task and answer concisely; the reply " +
	"is delivered as a chat message."

// Engine runs tasks against the OpenAI chat completions API, with the
// same in-memory session scheme as the Anthropic adapter.
type Engine struct {
	client openai.Client
	model  string

	mu       sync.Mutex
	sessions map[string][]openai.ChatCompletionMessageParamUnion
}

func New(apiKey, model string) *Engine {
	if model == "" {
		model = defaultModel
	}
	return &Engine{
		client:   openai.NewClient(option.WithAPIKey(apiKey)),
		model:    model,
		sessions: make(map[string][]openai.ChatCompletionMessageParamUnion),
	}
}

func (e *Engine) StartTask(ctx context.Context, taskID string, cfg engine.TaskConfig, cb engine.Callbacks) error {
	if strings.TrimSpace(cfg.Prompt) == "" {
		return fmt.Errorf("empty prompt")
	}

	go e.run(ctx, taskID, cfg, cb)
	return nil
}

// SendResponse is a no-op for the same reason as the Anthropic adapter.
func (e *Engine) SendResponse(taskID, answer string) error {
	logger.DebugCF("openai", "Response with no pending request ignored", map[string]interface{}{
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

	messages := []openai.ChatCompletionMessageParamUnion{openai.SystemMessage(systemPrompt)}
	messages = append(messages, history...)
	messages = append(messages, openai.UserMessage(cfg.Prompt))

	logger.InfoCF("openai", "Starting task", map[string]interface{}{
		"task_id": taskID,
		"model":   model,
		"resume":  len(history) > 0,
	})

	resp, err := e.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	})
	if err != nil {
		logger.ErrorCF("openai", "Task failed", map[string]interface{}{
			"task_id": taskID,
			"error":   err.Error(),
		})
		if cb.OnError != nil {
			cb.OnError(fmt.Errorf("openai API call: %w", err))
		}
		return
	}

	if len(resp.Choices) == 0 {
		if cb.OnError != nil {
			cb.OnError(fmt.Errorf("openai API returned no choices"))
		}
		return
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)

	e.mu.Lock()
	e.sessions[sessionID] = append(history,
		openai.UserMessage(cfg.Prompt),
		openai.AssistantMessage(content),
	)
	e.mu.Unlock()

	if cb.OnAssistantMessage != nil && content != "" {
		cb.OnAssistantMessage(content)
	}
	if cb.OnComplete != nil {
		cb.OnComplete(engine.TaskResult{Success: true, SessionID: sessionID})
	}
}

func (e *Engine) history(sessionID string) []openai.ChatCompletionMessageParamUnion {
	if sessionID == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	history, ok := e.sessions[sessionID]
	if !ok {
		return nil
	}
	out := make([]openai.ChatCompletionMessageParamUnion, len(history))
	copy(out, history)
	return out
}
