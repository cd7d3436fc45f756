package observe

import (
	"fmt"
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// MemoryProbe returns a memory figure in bytes.
type MemoryProbe func() (uint64, error)

// PeakMemory returns the peak resident set size of this process.
// Platforms that don't report a high water mark fall back to the current RSS.
func PeakMemory() (uint64, error) {
	return ProcessPeakMemory(int32(os.Getpid()))
}

// ProcessPeakMemory returns the peak resident set size of pid.
func ProcessPeakMemory(pid int32) (uint64, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	info, err := p.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("failed to read memory of process %d: %w", pid, err)
	}

	if info.HWM > 0 {
		return info.HWM, nil
	}
	return info.RSS, nil
}
