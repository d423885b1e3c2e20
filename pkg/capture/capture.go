package capture

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tradewire-go/tradewire/pkg/client"
)

// Record is one captured engine event.
type Record struct {
	Time  time.Time `json:"time"`
	Event string    `json:"event"`
	Args  []any     `json:"args,omitempty"`
}

// Sink persists capture records.
type Sink interface {
	Write(rec Record) error
	Close() error
}

// FileSink appends records to a local file as JSON lines.
type FileSink struct {
	mu  sync.Mutex
	f   *os.File
	enc *json.Encoder
}

// NewFileSink opens (or creates) path for appending.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("capture: open %s: %w", path, err)
	}
	return &FileSink{f: f, enc: json.NewEncoder(f)}, nil
}

// Write appends one record.
func (s *FileSink) Write(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(rec)
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}

// Recorder subscribes to a client's wildcard event channel and writes a
// timestamped record for every fired event. Sink failures are logged,
// never propagated into the engine.
type Recorder struct {
	sink   Sink
	logger *slog.Logger
}

// Attach wires a recorder onto the client. It must be called before
// Connect to observe the full lifecycle.
func Attach(c *client.Client, sink Sink, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{sink: sink, logger: logger}
	c.OnEvent(client.CallbackFunc(r.record))
	return r
}

// record receives (eventName, args) from the wildcard channel.
func (r *Recorder) record(args []any) {
	rec := Record{Time: time.Now().UTC()}
	if len(args) > 0 {
		rec.Event, _ = args[0].(string)
	}
	if len(args) > 1 {
		if eventArgs, ok := args[1].([]any); ok {
			rec.Args = sanitize(eventArgs)
		}
	}
	if err := r.sink.Write(rec); err != nil {
		r.logger.Error("capture write failed", "event", rec.Event, "error", err)
	}
}

// Close closes the underlying sink.
func (r *Recorder) Close() error {
	return r.sink.Close()
}

// sanitize replaces values json.Marshal cannot handle (socket handles
// on the connected event, error values) with their string form.
func sanitize(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		if err, ok := a.(error); ok {
			out[i] = err.Error()
			continue
		}
		if _, err := json.Marshal(a); err != nil {
			out[i] = fmt.Sprint(a)
			continue
		}
		out[i] = a
	}
	return out
}
