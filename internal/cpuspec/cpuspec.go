// Package cpuspec inspects the host CPU to size inference thread pools.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about the host CPU
type CPUSpec struct {
	BrandName        string
	PerformanceCores int
}

// GetCPUSpec returns the CPU brand and the number of performance cores
// when the model is recognized.
func GetCPUSpec() CPUSpec {
	brandName := cpuid.CPU.BrandName
	return CPUSpec{
		BrandName:        brandName,
		PerformanceCores: determinePerformanceCores(brandName),
	}
}

// GetOptimalThreadCount returns the recommended number of threads for
// model inference. On hybrid architectures only performance cores count,
// since scheduling inference on efficiency cores slows the whole batch.
func (c CPUSpec) GetOptimalThreadCount() int {
	availableCPUs := runtime.NumCPU()

	if c.PerformanceCores > 0 {
		if c.PerformanceCores > availableCPUs {
			return availableCPUs
		}
		return c.PerformanceCores
	}

	if n := cpuid.CPU.LogicalCores; n > 0 {
		return n
	}
	return availableCPUs
}

var (
	intelCoreRegex = regexp.MustCompile(`intel.*core.*i[3579]-(\d{5})`)
	appleRegex     = regexp.MustCompile(`(?i)apple\s+(m[1234]\s*(?:pro|max|ultra)?)\s*`)
)

// Known P-core counts for hybrid Intel desktop parts, keyed by the model
// number prefix (generation plus tier).
var intelPerformanceCores = map[string]int{
	"129": 8, "127": 8, "126": 6, "124": 6, "121": 4,
	"139": 8, "137": 8, "136": 6, "135": 6, "134": 6, "131": 4,
	"149": 8, "147": 8, "146": 6, "144": 6, "141": 4,
}

var applePerformanceCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 8, "m3 max": 12, "m3 ultra": 24,
	"m4": 6, "m4 pro": 8, "m4 max": 12,
}

func determinePerformanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	if matches := intelCoreRegex.FindStringSubmatch(brandName); len(matches) > 1 {
		model := matches[1]
		if len(model) >= 3 {
			if cores, ok := intelPerformanceCores[model[:3]]; ok {
				return cores
			}
		}
	}

	if matches := appleRegex.FindStringSubmatch(brandName); len(matches) > 1 {
		chip := strings.ToLower(strings.TrimSpace(matches[1]))
		chip = strings.Join(strings.Fields(chip), " ")
		if cores, ok := applePerformanceCores[chip]; ok {
			return cores
		}
	}

	// Unknown model, caller falls back to logical cores
	return 0
}
