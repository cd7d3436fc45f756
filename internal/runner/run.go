// Package runner times child processes on a timer registry.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/vanilla/proftimers/internal/observe"
	"github.com/vanilla/proftimers/pkg/timers"
)

// DefaultSampleInterval is how often the child's memory is sampled.
const DefaultSampleInterval = 50 * time.Millisecond

// Options controls how a command is run.
type Options struct {
	Stdin          io.Reader
	Stdout         io.Writer
	Stderr         io.Writer
	SampleInterval time.Duration
	Clock          observe.Clock

	// Memory reads the peak memory of a pid. Defaults to observe.ProcessPeakMemory.
	Memory func(pid int32) (uint64, error)
}

// Result describes one finished command.
type Result struct {
	Command    string        `json:"command"`
	PID        int           `json:"pid"`
	ExitCode   int           `json:"exit_code"`
	Duration   time.Duration `json:"duration"`
	PeakMemory uint64        `json:"peak_memory"`
	StartedAt  time.Time     `json:"started_at"`
}

// Run executes command under the named timer of reg.
//
// A command that runs but exits non-zero is not an error: its exit code is
// in the result. Errors are returned only when the command could not run.
func Run(ctx context.Context, reg *timers.Registry, name, command string, args []string, opts Options) (*Result, error) {
	if opts.Clock == nil {
		opts.Clock = observe.SystemClock{}
	}
	if opts.SampleInterval <= 0 {
		opts.SampleInterval = DefaultSampleInterval
	}
	if opts.Memory == nil {
		opts.Memory = observe.ProcessPeakMemory
	}

	result := &Result{Command: command}
	timing := observe.NewTiming(opts.Clock)
	result.StartedAt = timing.StartedAt

	err := reg.TimeContext(ctx, name, func(ctx context.Context) error {
		cmd := exec.CommandContext(ctx, command, args...)
		cmd.Stdin = opts.Stdin
		cmd.Stdout = opts.Stdout
		cmd.Stderr = opts.Stderr

		if err := cmd.Start(); err != nil {
			return fmt.Errorf("failed to start %s: %w", command, err)
		}
		result.PID = cmd.Process.Pid

		sampler := newSampler(int32(result.PID), opts.Memory)
		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			sampler.run(done, opts.SampleInterval)
		}()

		err := cmd.Wait()
		close(done)
		wg.Wait()
		result.PeakMemory = sampler.peak()

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return nil
		}
		return err
	})
	timing.Complete()
	result.Duration = timing.Duration()

	return result, err
}

type sampler struct {
	pid  int32
	read func(int32) (uint64, error)

	mu  sync.Mutex
	max uint64
}

func newSampler(pid int32, read func(int32) (uint64, error)) *sampler {
	return &sampler{pid: pid, read: read}
}

func (s *sampler) run(done <-chan struct{}, interval time.Duration) {
	s.sample()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

// sample keeps the highest reading. The process may already be gone.
func (s *sampler) sample() {
	v, err := s.read(s.pid)
	if err != nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v > s.max {
		s.max = v
	}
}

func (s *sampler) peak() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.max
}
