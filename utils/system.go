package utils

import (
	"fmt"
	"math"
	"runtime"
)

// MemUsage summarizes the Go heap for a run report.
func MemUsage() string {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	const mib = 1 << 20
	return fmt.Sprintf("heap %d MiB in use, %d MiB allocated over the run, %d MiB from the OS, %d collections",
		ms.HeapInuse/mib, ms.TotalAlloc/mib, ms.Sys/mib, ms.NumGC)
}

// IsNan reports whether a scalar, slice or dense patch matrix holds a NaN.
func IsNan(A any) bool {
	switch v := A.(type) {
	case float64:
		return math.IsNaN(v)
	case []float64:
		for _, f := range v {
			if math.IsNaN(f) {
				return true
			}
		}
	case *DenseMatrix:
		return IsNan(v.Data())
	}
	return false
}
