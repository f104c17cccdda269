// Package device derives an execution profile (precision tier, thread
// count) from the host hardware. Detection never fails: any error falls
// back to a CPU-only profile.
package device

import (
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// Precision is the numeric precision tier used to construct adapters.
type Precision string

const (
	PrecisionFloat16     Precision = "float16"
	PrecisionInt8Float16 Precision = "int8_float16"
	PrecisionInt8        Precision = "int8"
)

// Profile is the derived execution profile. Immutable after Detect;
// pass it by value into whatever needs it.
type Profile struct {
	Accelerator      bool
	AcceleratorMemMB int
	Precision        Precision
	Threads          int
	CPUCount         int
	HostMemMB        int
}

// Options tunes detection thresholds. Zero values use package defaults.
type Options struct {
	// HighVRAMMB and LowVRAMMB are the accelerator memory thresholds
	// for float16 and int8_float16 respectively.
	HighVRAMMB int
	LowVRAMMB  int
	// MaxThreads caps the CPU thread count.
	MaxThreads int

	// Overrides for tests.
	CPUCounts func() (int, error)
	VRAMProbe func() (int, bool)
}

const (
	defaultHighVRAMMB = 8192
	defaultLowVRAMMB  = 4096
	defaultMaxThreads = 16
)

// Detect inspects the host and returns an execution profile.
func Detect(opts Options, log zerolog.Logger) Profile {
	if opts.HighVRAMMB <= 0 {
		opts.HighVRAMMB = defaultHighVRAMMB
	}
	if opts.LowVRAMMB <= 0 {
		opts.LowVRAMMB = defaultLowVRAMMB
	}
	if opts.MaxThreads <= 0 {
		opts.MaxThreads = defaultMaxThreads
	}
	counts := opts.CPUCounts
	if counts == nil {
		counts = func() (int, error) { return cpu.Counts(true) }
	}
	probe := opts.VRAMProbe
	if probe == nil {
		probe = probeNvidiaSMI
	}

	p := Profile{Precision: PrecisionInt8}

	cores, err := counts()
	if err != nil || cores <= 0 {
		cores = 4
	}
	p.CPUCount = cores
	p.Threads = threadsFor(cores, opts.MaxThreads)

	if vm, err := mem.VirtualMemory(); err == nil {
		p.HostMemMB = int(vm.Total / (1024 * 1024))
	}

	if vramMB, ok := probe(); ok && vramMB > 0 {
		p.Accelerator = true
		p.AcceleratorMemMB = vramMB
		p.Precision = precisionFor(vramMB, opts.HighVRAMMB, opts.LowVRAMMB)
		log.Info().Int("vram_mb", vramMB).Str("precision", string(p.Precision)).Msg("accelerator detected")
	} else {
		log.Info().Int("cores", cores).Int("threads", p.Threads).Msg("cpu-only profile")
	}
	return p
}

// precisionFor maps accelerator memory to a precision tier.
func precisionFor(vramMB, highMB, lowMB int) Precision {
	switch {
	case vramMB >= highMB:
		return PrecisionFloat16
	case vramMB >= lowMB:
		return PrecisionInt8Float16
	default:
		return PrecisionInt8
	}
}

// threadsFor picks a CPU thread count that leaves headroom for the
// server itself and avoids oversubscription on big hosts.
func threadsFor(cores, maxThreads int) int {
	var n int
	if cores >= 8 {
		n = cores / 2
		if n < 4 {
			n = 4
		}
	} else {
		n = cores - 1
		if n < 2 {
			n = 2
		}
	}
	if n > maxThreads {
		n = maxThreads
	}
	return n
}

// probeNvidiaSMI queries total memory of the first NVIDIA GPU.
// Any failure (no binary, no driver, unparsable output) means no accelerator.
func probeNvidiaSMI() (int, bool) {
	out, err := exec.Command("nvidia-smi", "--query-gpu=memory.total", "--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0, false
	}
	line := strings.TrimSpace(strings.SplitN(string(out), "\n", 2)[0])
	mb, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || mb <= 0 {
		return 0, false
	}
	return mb, true
}
