// Package emit provides event emission and observability for flow execution.
package emit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// LogEmitter implements Emitter by writing structured log output to a writer.
//
// Supports two output modes:
//   - Text mode (default): human-readable key=value pairs.
//   - JSON mode: one JSON object per line (JSONL).
//
// Example text output:
//
//	[node-start] flowID=flow-001 nodeID=fetch
//
// Example JSON output:
//
//	{"type":"node-start","flowID":"flow-001","nodeID":"fetch"}
type LogEmitter struct {
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a new LogEmitter.
//
// writer is where events are written (defaults to os.Stdout when nil);
// jsonMode selects JSONL output instead of the text format.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit writes a single event to the configured writer.
func (l *LogEmitter) Emit(event Event) {
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

type logEventJSON struct {
	Type          EventType      `json:"type"`
	FlowID        string         `json:"flowID"`
	NodeID        string         `json:"nodeID,omitempty"`
	NodeType      string         `json:"nodeType,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	Err           string         `json:"error,omitempty"`
	SuspensionKey string         `json:"suspensionKey,omitempty"`
}

func (l *LogEmitter) emitJSON(event Event) {
	payload := logEventJSON{
		Type:          event.Type,
		FlowID:        event.FlowID,
		NodeID:        event.NodeID,
		NodeType:      event.NodeType,
		Data:          event.Data,
		SuspensionKey: event.SuspensionKey,
	}
	if event.Err != nil {
		payload.Err = event.Err.Error()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		_, _ = fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	_, _ = fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	_, _ = fmt.Fprintf(l.writer, "[%s] flowID=%s nodeID=%s", event.Type, event.FlowID, event.NodeID)
	if event.Err != nil {
		_, _ = fmt.Fprintf(l.writer, " err=%v", event.Err)
	}
	if event.SuspensionKey != "" {
		_, _ = fmt.Fprintf(l.writer, " suspensionKey=%s", event.SuspensionKey)
	}
	if len(event.Data) > 0 {
		if dataJSON, err := json.Marshal(event.Data); err == nil {
			_, _ = fmt.Fprintf(l.writer, " data=%s", dataJSON)
		} else {
			_, _ = fmt.Fprintf(l.writer, " data=%v", event.Data)
		}
	}
	_, _ = fmt.Fprint(l.writer, "\n")
}

// EmitBatch writes each event in order by calling Emit once per event.
func (l *LogEmitter) EmitBatch(_ context.Context, events []Event) error {
	for _, event := range events {
		l.Emit(event)
	}
	return nil
}

// Flush is a no-op: LogEmitter writes synchronously with no internal
// buffering. Wrap writer in a bufio.Writer and flush that directly if
// buffering is desired.
func (l *LogEmitter) Flush(_ context.Context) error {
	return nil
}
