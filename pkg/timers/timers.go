// Package timers contains light weight named timers for profiling and logging
// application code.
//
// A Registry is meant to be owned by one unit of work (a request, a job) and
// passed explicitly to the code that needs timing. Put calls to Start and Stop
// around hot spots such as I/O; every timer is identified by a name like "db"
// or "cache". Start and Stop may be called many times with the same name: the
// total time is tracked alongside the min, max and count of runs.
package timers

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// BaseTimers are the timer names every registry recognizes.
var BaseTimers = []string{"cacheRead", "cacheWrite", "dbRead", "dbWrite"}

// ErrInvalidArgument is returned for malformed calls, such as an empty timer name.
var ErrInvalidArgument = errors.New("invalid argument")

// Misuse identifies a start/stop protocol violation that was auto-corrected.
type Misuse string

const (
	// MisuseDoubleStart means Start was called on a running timer.
	MisuseDoubleStart Misuse = "double_start"
	// MisuseStopWithoutStart means Stop was called on a timer that was not running.
	MisuseStopWithoutStart Misuse = "stop_without_start"
)

// Record is the aggregate state of one named timer.
type Record struct {
	Time  float64    `json:"time"`
	Human string     `json:"human"`
	Count int        `json:"count"`
	Min   *float64   `json:"min"`
	Max   float64    `json:"max"`
	Start *time.Time `json:"start,omitempty"`
}

// Running reports whether the timer has a run in flight.
func (r Record) Running() bool {
	return r.Start != nil
}

func newRecord() *Record {
	return &Record{Human: "0"}
}

// copy detaches the pointer fields so callers can't mutate registry state.
func (r *Record) copy() Record {
	c := *r
	if r.Min != nil {
		m := *r.Min
		c.Min = &m
	}
	if r.Start != nil {
		s := *r.Start
		c.Start = &s
	}
	return c
}

// Warning describes a run that took longer than its configured limit.
type Warning struct {
	Timer     string                 `json:"timer"`
	ElapsedMs float64                `json:"elapsedMs"`
	AllowedMs float64                `json:"allowedMs"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// Logger is the structured logging sink used for notices, warnings and LogAll.
type Logger interface {
	Info(message string, fields ...map[string]interface{})
	Warn(message string, fields ...map[string]interface{})
}

// Observer receives every completed run, warning and protocol misuse.
type Observer interface {
	ObserveStop(name string, elapsedMs float64)
	ObserveWarning(w Warning)
	ObserveMisuse(name string, kind Misuse)
}

// Throttle decides whether a warning for the given timer is logged.
type Throttle interface {
	Allow(key string) bool
}

// Registry tracks independently named timers and their warning limits.
type Registry struct {
	mu       sync.Mutex
	timers   map[string]*Record
	custom   []string
	limits   map[string]time.Duration
	now      func() time.Time
	logger   Logger
	observer Observer
	throttle Throttle
	tracer   trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the time source. Defaults to time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the sink for notices and limit warnings.
func WithLogger(l Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithObserver sets an observer, e.g. a metrics collector.
func WithObserver(o Observer) Option {
	return func(r *Registry) { r.observer = o }
}

// WithThrottle limits how often limit warnings are logged per timer.
func WithThrottle(t Throttle) Option {
	return func(r *Registry) { r.throttle = t }
}

// WithTracer makes TimeContext open a span per timed call.
func WithTracer(t trace.Tracer) Option {
	return func(r *Registry) { r.tracer = t }
}

// WithWarningLimits presets warning limits.
func WithWarningLimits(limits map[string]time.Duration) Option {
	return func(r *Registry) {
		for name, limit := range limits {
			r.limits[name] = limit
		}
	}
}

// WithCustomTimers registers custom timer names.
func WithCustomTimers(names ...string) Option {
	return func(r *Registry) { r.custom = append(r.custom, names...) }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		timers: make(map[string]*Record),
		limits: make(map[string]time.Duration),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start starts the named timer and returns its record.
//
// Starting a timer that is already running stops the in-flight run first, so
// the measurement isn't lost, and emits a notice.
func (r *Registry) Start(name string) (Record, error) {
	res, err := r.StartMany([]string{name})
	if err != nil {
		return Record{}, err
	}
	return res[name], nil
}

// StartMany starts every named timer at the same instant.
func (r *Registry) StartMany(names []string) (map[string]Record, error) {
	if err := validateNames("start", names); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	result := make(map[string]Record, len(names))
	for _, n := range names {
		rec := r.record(n)
		if rec.Running() {
			r.notice(n, MisuseDoubleStart, "Timer was started while another one was running: "+n)
			r.stopRecord(n, rec, now, nil)
		}
		startRecord(rec, now)
		result[n] = rec.copy()
	}
	return result, nil
}

// Stop stops the named timer and returns its record.
//
// The optional context is attached to the warning emitted when the run
// exceeds the timer's limit. Stopping a timer that isn't running records a
// zero length run and emits a notice.
func (r *Registry) Stop(name string, warningContext ...map[string]interface{}) (Record, error) {
	res, err := r.StopMany([]string{name}, warningContext...)
	if err != nil {
		return Record{}, err
	}
	return res[name], nil
}

// StopMany stops every named timer at the same instant.
func (r *Registry) StopMany(names []string, warningContext ...map[string]interface{}) (map[string]Record, error) {
	if err := validateNames("stop", names); err != nil {
		return nil, err
	}
	var wctx map[string]interface{}
	if len(warningContext) > 0 {
		wctx = warningContext[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	result := make(map[string]Record, len(names))
	for _, n := range names {
		rec := r.record(n)
		if !rec.Running() {
			r.notice(n, MisuseStopWithoutStart, "Timer was stopped before calling start: "+n)
			startRecord(rec, now)
		}
		r.stopRecord(n, rec, now, wctx)
		result[n] = rec.copy()
	}
	return result, nil
}

// StopAll stops every running timer using one shared timestamp.
func (r *Registry) StopAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for _, n := range r.names() {
		if rec := r.timers[n]; rec.Running() {
			r.stopRecord(n, rec, now, nil)
		}
	}
}

// Get returns the record of a timer, or false if it was never started.
func (r *Registry) Get(name string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.timers[name]
	if !ok {
		return Record{}, false
	}
	return rec.copy(), true
}

// Reset clears all timers and custom timer names. Warning limits are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.timers = make(map[string]*Record)
	r.custom = nil
}

// AddCustomTimer registers a timer name for discovery through Timers.
func (r *Registry) AddCustomTimer(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custom = append(r.custom, name)
}

// Timers returns the base timer names followed by the custom ones.
func (r *Registry) Timers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(BaseTimers)+len(r.custom))
	names = append(names, BaseTimers...)
	return append(names, r.custom...)
}

// SetWarningLimit sets the run length above which the timer logs a warning.
func (r *Registry) SetWarningLimit(name string, limit time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.limits[name] = limit
}

func (r *Registry) record(name string) *Record {
	rec, ok := r.timers[name]
	if !ok {
		rec = newRecord()
		r.timers[name] = rec
	}
	return rec
}

// names returns the tracked timer names in log order. Caller holds r.mu.
func (r *Registry) names() []string {
	names := make([]string, 0, len(r.timers))
	for n := range r.timers {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i], names[j]) })
	return names
}

func startRecord(rec *Record, now time.Time) {
	rec.Count++
	rec.Start = &now
}

func (r *Registry) stopRecord(name string, rec *Record, now time.Time, wctx map[string]interface{}) {
	elapsed := float64(now.Sub(*rec.Start)) / float64(time.Millisecond)
	rec.Start = nil

	if limit, ok := r.limits[name]; ok {
		allowed := float64(limit) / float64(time.Millisecond)
		if elapsed > allowed {
			r.warn(Warning{Timer: name, ElapsedMs: elapsed, AllowedMs: allowed, Context: wctx})
		}
	}

	rec.Time += elapsed
	rec.Human = FormatDuration(rec.Time)
	if rec.Min == nil || *rec.Min > elapsed {
		m := elapsed
		rec.Min = &m
	}
	if elapsed > rec.Max {
		rec.Max = elapsed
	}

	if r.observer != nil {
		r.observer.ObserveStop(name, elapsed)
	}
}

func (r *Registry) warn(w Warning) {
	if r.observer != nil {
		r.observer.ObserveWarning(w)
	}
	if r.logger == nil || (r.throttle != nil && !r.throttle.Allow(w.Timer)) {
		return
	}

	fields := make(map[string]interface{}, len(w.Context)+4)
	for k, v := range w.Context {
		fields[k] = v
	}
	fields["tags"] = []string{"timerWarning", w.Timer}
	fields["timer"] = w.Timer
	fields["elapsedMs"] = w.ElapsedMs
	fields["allowedMs"] = w.AllowedMs

	r.logger.Warn(fmt.Sprintf("Timer %s took %s. This was longer than the allowed limit.",
		w.Timer, FormatDuration(w.ElapsedMs)), fields)
}

func (r *Registry) notice(name string, kind Misuse, message string) {
	if r.observer != nil {
		r.observer.ObserveMisuse(name, kind)
	}
	if r.logger != nil {
		r.logger.Warn(message, map[string]interface{}{
			"timer":  name,
			"notice": string(kind),
		})
	}
}

func validateNames(op string, names []string) error {
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("timers: %s expects non-empty timer names: %w", op, ErrInvalidArgument)
		}
	}
	return nil
}
