package session

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// rssMB reports the process's resident set size in megabytes. On Linux it
// reads /proc/self/statm (field 2, resident pages); elsewhere, and on any
// read failure, it falls back to runtime.MemStats.Sys as an approximation
// — good enough for a soft liveness cap, not for precise accounting. No
// pack example ships a process-memory-inspection library, so this stays on
// the standard library/procfs rather than pulling one in for a single
// gauge read (see DESIGN.md).
func rssMB() float64 {
	if runtime.GOOS == "linux" {
		if mb, ok := readLinuxRSSMB(); ok {
			return mb
		}
	}
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return float64(stats.Sys) / (1024 * 1024)
}

func readLinuxRSSMB() (float64, bool) {
	f, err := os.Open("/proc/self/statm")
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return 0, false
	}
	fields := strings.Fields(scanner.Text())
	if len(fields) < 2 {
		return 0, false
	}
	pages, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, false
	}
	pageSize := int64(os.Getpagesize())
	return float64(pages*pageSize) / (1024 * 1024), true
}
