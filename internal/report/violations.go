package report

import (
	"maps"
	"sync"
	"time"

	"github.com/vanilla/proftimers/pkg/timers"
)

// Violation is one timer run that went over its warning limit.
type Violation struct {
	Timer      string                 `json:"timer"`
	ElapsedMs  float64                `json:"elapsed_ms"`
	AllowedMs  float64                `json:"allowed_ms"`
	Human      string                 `json:"human"`
	Context    map[string]interface{} `json:"context,omitempty"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// ViolationLog maintains a ring buffer of recent violations (last N)
type ViolationLog struct {
	samples []Violation
	maxSize int
	now     func() time.Time
	mu      sync.RWMutex
}

// DefaultViolationLogSize is how many violations are kept by default
const DefaultViolationLogSize = 50

// NewViolationLog creates a violation log with fixed size
func NewViolationLog(maxSize int) *ViolationLog {
	if maxSize <= 0 {
		maxSize = DefaultViolationLogSize
	}
	return &ViolationLog{
		samples: make([]Violation, 0, maxSize),
		maxSize: maxSize,
		now:     time.Now,
	}
}

// Record adds a violation sample, dropping the oldest when full. The
// warning context is copied.
func (v *ViolationLog) Record(w timers.Warning) {
	sample := Violation{
		Timer:     w.Timer,
		ElapsedMs: w.ElapsedMs,
		AllowedMs: w.AllowedMs,
		Human:     timers.FormatDuration(w.ElapsedMs),
		Context:   maps.Clone(w.Context),
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	sample.RecordedAt = v.now()
	if len(v.samples) >= v.maxSize {
		v.samples = v.samples[1:]
	}
	v.samples = append(v.samples, sample)
}

// GetRecent returns up to n violations, newest first. n <= 0 means all.
func (v *ViolationLog) GetRecent(n int) []Violation {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if n <= 0 || n > len(v.samples) {
		n = len(v.samples)
	}

	result := make([]Violation, n)
	for i := 0; i < n; i++ {
		result[i] = v.samples[len(v.samples)-1-i]
	}
	return result
}

// Count returns how many violations are currently held
func (v *ViolationLog) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.samples)
}
