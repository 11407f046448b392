// Package engine defines the boundary to the external task-execution
// engine. The bridge and dispatcher never look past these callbacks.
package engine

import "context"

// TaskConfig configures one task run.
type TaskConfig struct {
	Prompt    string
	SessionID string // resume this engine session when set
	ModelID   string
}

// TaskResult is the terminal outcome of a task.
type TaskResult struct {
	Success   bool
	SessionID string // session to resume for follow-up requests
}

// Callbacks receive engine events for one task. All callbacks are
// optional; the engine skips nil entries.
type Callbacks struct {
	// OnAssistantMessage delivers intermediate assistant-authored content.
	OnAssistantMessage func(content string)
	// OnPermissionRequest asks for approval of a sensitive action. The
	// answer goes back through SendResponse.
	OnPermissionRequest func(request string)
	// OnComplete fires exactly once on success or graceful failure.
	OnComplete func(result TaskResult)
	// OnError fires exactly once when the run aborts.
	OnError func(err error)
}

// Engine starts tasks and routes answers back to running ones.
type Engine interface {
	// StartTask begins executing cfg asynchronously; the error covers
	// start failures only, everything later arrives via callbacks.
	StartTask(ctx context.Context, taskID string, cfg TaskConfig, cb Callbacks) error
	// SendResponse answers a pending permission request of a running task.
	SendResponse(taskID, answer string) error
}
