package rally

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// FormatDuration renders milliseconds as h:mm:ss.mmm, or m:ss.mmm under an hour.
func FormatDuration(ms int64) string {
	sign := ""
	if ms < 0 {
		sign = "-"
		ms = -ms
	}
	h := ms / 3_600_000
	m := (ms / 60_000) % 60
	s := (ms / 1000) % 60
	frac := ms % 1000
	if h > 0 {
		return fmt.Sprintf("%s%d:%02d:%02d.%03d", sign, h, m, s, frac)
	}
	return fmt.Sprintf("%s%d:%02d.%03d", sign, m, s, frac)
}

// ParseDuration reads "h:mm:ss.f", "m:ss.f" or "ss.f" back into milliseconds.
func ParseDuration(text string) (int64, error) {
	text = strings.TrimSpace(strings.TrimPrefix(text, "+"))
	if text == "" {
		return 0, fmt.Errorf("parse duration: empty")
	}
	parts := strings.Split(text, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("parse duration %q: too many fields", text)
	}
	secPart := parts[len(parts)-1]
	wholeSec, fracPart, _ := strings.Cut(secPart, ".")
	sec, err := strconv.ParseInt(wholeSec, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", text, err)
	}
	var frac int64
	if fracPart != "" {
		if len(fracPart) > 3 {
			fracPart = fracPart[:3]
		}
		for len(fracPart) < 3 {
			fracPart += "0"
		}
		frac, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", text, err)
		}
	}
	total := sec*1000 + frac
	mult := int64(60_000)
	for i := len(parts) - 2; i >= 0; i-- {
		v, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse duration %q: %w", text, err)
		}
		total += v * mult
		mult *= 60
	}
	return total, nil
}

// LeaderGaps returns time minus the fastest time for every non-nil entry.
// Entries without a time get a nil gap.
func LeaderGaps(times []*int64) []*int64 {
	var leader *int64
	for _, t := range times {
		if t != nil && (leader == nil || *t < *leader) {
			leader = t
		}
	}
	gaps := make([]*int64, len(times))
	if leader == nil {
		return gaps
	}
	for i, t := range times {
		if t != nil {
			gaps[i] = Ptr(*t - *leader)
		}
	}
	return gaps
}

// PreviousGaps returns, for every non-nil entry, its time minus the time of
// the entry ranked directly ahead of it. The fastest entry gets 0 and ties
// share a 0 gap. Entries without a time get a nil gap.
func PreviousGaps(times []*int64) []*int64 {
	order := make([]int, 0, len(times))
	for i, t := range times {
		if t != nil {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return *times[order[a]] < *times[order[b]] })
	gaps := make([]*int64, len(times))
	for rank, i := range order {
		if rank == 0 {
			gaps[i] = Ptr(int64(0))
			continue
		}
		gaps[i] = Ptr(*times[i] - *times[order[rank-1]])
	}
	return gaps
}
