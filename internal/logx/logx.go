// Package logx writes structured events as one JSON object per line through
// a standard *log.Logger.
package logx

import (
	"encoding/json"
	"log"
	"time"
)

// Event logs msg at level with the given fields. Every line carries ts,
// level and msg; fields never override those three. A nil logger drops the
// event.
func Event(logger *log.Logger, level, msg string, fields map[string]any) {
	if logger == nil {
		return
	}
	payload := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		payload[k] = v
	}
	payload["ts"] = time.Now().UTC().Format(time.RFC3339Nano)
	payload["level"] = level
	payload["msg"] = msg

	b, err := json.Marshal(payload)
	if err != nil {
		b, _ = json.Marshal(map[string]any{
			"ts":    payload["ts"],
			"level": "error",
			"msg":   "log_marshal_failed",
			"event": msg,
			"error": err.Error(),
		})
	}
	logger.Print(string(b))
}
