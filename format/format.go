// Canonical formatting for the numbers that appear in reports and notes: one function per unit
// family, so that every view and every note formats a value the same way.

package format

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Bytes scales by 1024 and prints one decimal: 1536 -> "1.5KB".

func Bytes(size float64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	unit := units[0]
	for _, u := range units {
		unit = u
		if size < 1024 {
			break
		}
		if u != units[len(units)-1] {
			size /= 1024
		}
	}
	return fmt.Sprintf("%.1f%s", size, unit)
}

// Seconds formats a duration as [D-]HH:MM:SS.

func Seconds(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	var prefix string
	if hours >= 24 {
		prefix = fmt.Sprintf("%d-%02d:", hours/24, hours%24)
	} else {
		prefix = fmt.Sprintf("%02d:", hours)
	}
	seconds %= 3600
	return fmt.Sprintf("%s%02d:%02d", prefix, seconds/60, seconds%60)
}

// DateTime formats a unix time like "Mon Jan 2, 2006 at 3:04 PM" in the given location.

func DateTime(unix int64, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return time.Unix(unix, 0).In(loc).Format("Mon Jan 2, 2006 at 3:04 PM")
}

// Ratio formats 100*used/total with one decimal, clamped to [0, 100] and 0 when total is 0:
// "efficiency=97.2%".

func Ratio(used, total float64) string {
	if total == 0 {
		return "0.0%"
	}
	r := 100 * used / total
	switch {
	case math.IsNaN(r) || r < 0:
		r = 0
	case r > 100:
		r = 100
	}
	return fmt.Sprintf("%.1f%%", r)
}

// Percent formats an already rounded percentage.

func Percent(x int) string {
	return strconv.Itoa(x) + "%"
}

// RequestedMemory interprets Slurm's ReqMem for a job with `cores` cores.  It returns the
// requested total in readable form ("8GB", "1.5TB") and, when the value carries a unit, the memory
// per core in decimal units ("2GB", "333.3MB").  perCore is "" when ReqMem has no recognizable unit.

func RequestedMemory(reqmem string, cores int) (total, perCore string) {
	t := reqmem
	for _, r := range [][2]string{{"000M", "G"}, {"000G", "T"}, {".50G", ".5G"}, {".50T", ".5T"}} {
		t = strings.ReplaceAll(t, r[0], r[1])
	}
	total = withByteSuffix(t)

	var scale float64
	switch {
	case strings.HasSuffix(t, "K"):
		scale = 1e3
	case strings.HasSuffix(t, "M"):
		scale = 1e6
	case strings.HasSuffix(t, "G"):
		scale = 1e9
	case strings.HasSuffix(t, "T"):
		scale = 1e12
	default:
		return t, ""
	}
	n, err := strconv.ParseFloat(t[:len(t)-1], 64)
	if err != nil || cores <= 0 {
		return total, ""
	}
	bpc := n * scale / float64(cores)
	unit := "B"
	for _, u := range []string{"B", "KB", "MB", "GB", "TB"} {
		unit = u
		if bpc < 1000 {
			break
		}
		if u != "TB" {
			bpc /= 1000
		}
	}
	perCore = strings.ReplaceAll(fmt.Sprintf("%.1f", bpc), ".0", "")
	return total, perCore + unit
}

func withByteSuffix(s string) string {
	s = strings.ReplaceAll(s, "M", "MB")
	s = strings.ReplaceAll(s, "G", "GB")
	return strings.ReplaceAll(s, "T", "TB")
}
