package claudecli

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"clawbridge/pkg/engine"
)

func TestParseResult(t *testing.T) {
	out := `{
		"type": "result",
		"subtype": "success",
		"is_error": false,
		"result": "Renamed the function and updated 3 call sites.\n",
		"session_id": "b3f9c2a1-0000-4000-8000-000000000000",
		"duration_ms": 8421,
		"total_cost_usd": 0.0312
	}`

	res, err := parseResult(out)
	assert.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "Renamed the function and updated 3 call sites.", res.Result)
	assert.Equal(t, "b3f9c2a1-0000-4000-8000-000000000000", res.SessionID)
	assert.Equal(t, 8421, res.DurationMS)
	assert.InDelta(t, 0.0312, res.CostUSD, 1e-9)
}

func TestParseResultError(t *testing.T) {
	out := `{"type":"result","subtype":"error_during_execution","is_error":true,"session_id":"abc"}`

	res, err := parseResult(out)
	assert.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Empty(t, res.Result)
	assert.Equal(t, "abc", res.SessionID)
}

func TestParseResultMalformed(t *testing.T) {
	_, err := parseResult("claude: command not found")
	assert.Error(t, err)
}

func TestStartTaskRejectsEmptyPrompt(t *testing.T) {
	e := New("")

	err := e.StartTask(context.Background(), "t1", engine.TaskConfig{Prompt: "  \n"}, engine.Callbacks{})
	assert.Error(t, err)
}

func TestSendResponseIsNoop(t *testing.T) {
	e := New("")
	assert.NoError(t, e.SendResponse("t1", "no"))
}
