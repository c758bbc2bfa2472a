// Package logsvc provides the core.Logger implementations used by the binaries.
package logsvc

import (
	"log"
	"strings"

	"github.com/trezcool/minimoodle/core"
)

// New returns a Rollbar logger when a token is configured, a zap logger otherwise.
func New(std *log.Logger, conf *core.Config) (core.Logger, error) {
	if conf.RollbarToken != "" {
		l := NewRollbarLogger(std, conf)
		l.Enable(!conf.TestMode)
		return l, nil
	}
	return NewZapLogger(conf.Debug)
}

// Flush writes out the events l still buffers. Call it before the binary exits.
func Flush(l core.Logger) {
	switch l := l.(type) {
	case *ZapLogger:
		l.Sync()
	case *RollbarLogger:
		l.Wait()
	}
}

var sensitiveKeys = []string{"password", "token", "secret", "authorization"}

// redact hides the values of the sensitive keys of a map[string]interface{} arg.
func redact(arg interface{}) interface{} {
	data, ok := arg.(map[string]interface{})
	if !ok {
		return arg
	}
	out := make(map[string]interface{}, len(data))
	for key, val := range data {
		out[key] = val
		lower := strings.ToLower(key)
		for _, s := range sensitiveKeys {
			if strings.Contains(lower, s) {
				out[key] = "[REDACTED]"
				break
			}
		}
	}
	return out
}
