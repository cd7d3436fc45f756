package timers

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"
)

// Field names and channel used by LogAll.
const (
	FieldTimers   = "timers"
	FieldEvent    = "event"
	FieldChannel  = "channel"
	ChannelSystem = "system"

	FieldRequestElapsedMs = "request_elapsed_ms"
	FieldPeakMemory       = "peak_memory"
)

// Logged is the subset of a Record that goes into logs.
type Logged struct {
	Human string  `json:"human"`
	Time  float64 `json:"time"`
	Count int     `json:"count"`
	Max   float64 `json:"max"`
}

// Summary is everything LogAll emitted for one unit of work.
type Summary struct {
	RequestID        string            `json:"request_id,omitempty"`
	Event            string            `json:"event"`
	Channel          string            `json:"channel"`
	Message          string            `json:"message"`
	Timers           map[string]Logged `json:"timers"`
	RequestElapsedMs *int64            `json:"request_elapsed_ms"`
	PeakMemory       uint64            `json:"peak_memory"`
	LoggedAt         time.Time         `json:"logged_at"`
}

// LogOption configures LogAll.
type LogOption func(*logOptions)

type logOptions struct {
	requestStart *time.Time
	peakMemory   uint64
	requestID    string
}

// WithRequestStart sets the instant the unit of work began.
// Without it request_elapsed_ms is logged as null.
func WithRequestStart(t time.Time) LogOption {
	return func(o *logOptions) { o.requestStart = &t }
}

// WithPeakMemory sets the peak memory figure, in bytes.
func WithPeakMemory(bytes uint64) LogOption {
	return func(o *logOptions) { o.peakMemory = bytes }
}

// WithRequestID tags the summary with a request id.
func WithRequestID(id string) LogOption {
	return func(o *logOptions) { o.requestID = id }
}

// Snapshot returns the logged fields of every tracked timer.
func (r *Registry) Snapshot() map[string]Logged {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Registry) snapshot() map[string]Logged {
	res := make(map[string]Logged, len(r.timers))
	for name, rec := range r.timers {
		res[name] = Logged{Human: rec.Human, Time: rec.Time, Count: rec.Count, Max: rec.Max}
	}
	return res
}

// MarshalJSON encodes the registry as its Snapshot.
func (r *Registry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

// LogFormatString returns a message template with a "{name.human}"
// placeholder for every tracked timer.
func (r *Registry) LogFormatString() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logFormatString()
}

func (r *Registry) logFormatString() string {
	names := r.names()
	args := make([]string, len(names))
	for i, n := range names {
		args[i] = n + ": {" + n + ".human}"
	}
	return strings.Join(args, ", ")
}

// LogAll logs every timer as a single info record tagged with event.
func (r *Registry) LogAll(logger Logger, event string, opts ...LogOption) Summary {
	var o logOptions
	for _, opt := range opts {
		opt(&o)
	}

	r.mu.Lock()
	now := r.now()
	summary := Summary{
		RequestID:  o.requestID,
		Event:      event,
		Channel:    ChannelSystem,
		Message:    "elapsed: {" + FieldRequestElapsedMs + "}ms, " + r.logFormatString(),
		Timers:     r.snapshot(),
		PeakMemory: o.peakMemory,
		LoggedAt:   now,
	}
	r.mu.Unlock()

	if o.requestStart != nil {
		ms := now.Sub(*o.requestStart).Milliseconds()
		summary.RequestElapsedMs = &ms
	}

	if logger != nil {
		logger.Info(summary.Message, summary.Fields())
	}
	return summary
}

// Fields returns the structured log fields of the summary.
func (s Summary) Fields() map[string]interface{} {
	timers := make(map[string]interface{}, len(s.Timers)+2)
	for name, t := range s.Timers {
		timers[name] = map[string]interface{}{
			"human": t.Human,
			"time":  t.Time,
			"count": t.Count,
			"max":   t.Max,
		}
	}
	if s.RequestElapsedMs != nil {
		timers[FieldRequestElapsedMs] = *s.RequestElapsedMs
	} else {
		timers[FieldRequestElapsedMs] = nil
	}
	timers[FieldPeakMemory] = s.PeakMemory

	fields := map[string]interface{}{
		FieldTimers:  timers,
		FieldEvent:   s.Event,
		FieldChannel: s.Channel,
	}
	if s.RequestID != "" {
		fields["request_id"] = s.RequestID
	}
	return fields
}

// naturalLess orders strings case-insensitively, comparing digit runs by
// numeric value so "db2" sorts before "db10".
func naturalLess(a, b string) bool {
	ra, rb := []rune(strings.ToLower(a)), []rune(strings.ToLower(b))
	i, j := 0, 0
	for i < len(ra) && j < len(rb) {
		if unicode.IsDigit(ra[i]) && unicode.IsDigit(rb[j]) {
			si := i
			for i < len(ra) && unicode.IsDigit(ra[i]) {
				i++
			}
			sj := j
			for j < len(rb) && unicode.IsDigit(rb[j]) {
				j++
			}
			na := strings.TrimLeft(string(ra[si:i]), "0")
			nb := strings.TrimLeft(string(rb[sj:j]), "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ra[i] != rb[j] {
			return ra[i] < rb[j]
		}
		i++
		j++
	}
	if len(ra)-i != len(rb)-j {
		return len(ra)-i < len(rb)-j
	}
	// Equal ignoring case; keep the order stable and deterministic.
	return a < b
}
