package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level is the minimum severity that gets written.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu    sync.Mutex
	out   io.Writer = os.Stderr
	level           = LevelInfo
)

// SetLevel sets the global minimum log level from a string ("debug",
// "info", "warn", "error"). Unknown values fall back to info.
func SetLevel(s string) {
	mu.Lock()
	defer mu.Unlock()
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		level = LevelDebug
	case "warn", "warning":
		level = LevelWarn
	case "error":
		level = LevelError
	default:
		level = LevelInfo
	}
}

// SetOutput redirects log output. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

func write(lvl Level, tag, component, msg string, fields map[string]interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if lvl < level {
		return
	}

	line := fmt.Sprintf("%s %s [%s] %s", time.Now().Format("2006-01-02 15:04:05"), tag, component, msg)
	if len(fields) > 0 {
		// Sort keys so log lines are stable for grepping and tests.
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		ordered := make(map[string]interface{}, len(fields))
		for _, k := range keys {
			ordered[k] = fields[k]
		}
		if b, err := json.Marshal(ordered); err == nil {
			line += " " + string(b)
		}
	}
	fmt.Fprintln(out, line)
}

func DebugC(component, msg string) { write(LevelDebug, "DBG", component, msg, nil) }
func InfoC(component, msg string)  { write(LevelInfo, "INF", component, msg, nil) }
func WarnC(component, msg string)  { write(LevelWarn, "WRN", component, msg, nil) }
func ErrorC(component, msg string) { write(LevelError, "ERR", component, msg, nil) }

func DebugCF(component, msg string, fields map[string]interface{}) {
	write(LevelDebug, "DBG", component, msg, fields)
}

func InfoCF(component, msg string, fields map[string]interface{}) {
	write(LevelInfo, "INF", component, msg, fields)
}

func WarnCF(component, msg string, fields map[string]interface{}) {
	write(LevelWarn, "WRN", component, msg, fields)
}

func ErrorCF(component, msg string, fields map[string]interface{}) {
	write(LevelError, "ERR", component, msg, fields)
}
