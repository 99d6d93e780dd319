package services

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

const reportWidth = 54

func printBanner(w io.Writer, title string) {
	sep := strings.Repeat("═", reportWidth)
	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  %s\033[0m\n", title)
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
}

func printFooter(w io.Writer) {
	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", strings.Repeat("═", reportWidth))
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", reportWidth))
}

type labelCount struct {
	label string
	count int
}

// sortedCounts orders a count map by count descending, then label.
func sortedCounts(m map[string]int) []labelCount {
	out := make([]labelCount, 0, len(m))
	for k, v := range m {
		if k != "" {
			out = append(out, labelCount{k, v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].label < out[j].label
	})
	return out
}

// bar scales count against max into at most 30 blocks.
func bar(count, max int) string {
	if max <= 0 || count <= 0 {
		return ""
	}
	n := count * 30 / max
	if n == 0 {
		n = 1
	}
	return strings.Repeat("█", n)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func round2(f float64) float64 {
	if f < 0 {
		return -round2(-f)
	}
	return float64(int64(f*100+0.5)) / 100
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
