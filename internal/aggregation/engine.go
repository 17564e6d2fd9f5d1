package aggregation

import (
	"fmt"
	"sort"
	"time"

	"github.com/cukesight/backend/internal/clock"
	"github.com/cukesight/backend/internal/domain"
)

// Record is one scenario outcome as seen by the engine. Timestamp is kept
// as text so unparsable legacy values reach the time filter.
type Record struct {
	Timestamp   string
	Status      domain.StepStatus
	Tags        []string
	Feature     string
	Environment string
}

// Options narrows the record set. Days <= 0 disables the time window.
// Strict drops records whose timestamp cannot be parsed; by default they
// are kept.
type Options struct {
	Days        int
	Now         time.Time
	Strict      bool
	TopN        int
	Environment string
	Feature     string
}

type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

type Statistics struct {
	Total      int        `json:"total"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Skipped    int        `json:"skipped"`
	Undefined  int        `json:"undefined"`
	Pending    int        `json:"pending"`
	PassRate   float64    `json:"pass_rate"`
	TopTags    []TagCount `json:"top_tags"`
	TimePeriod string     `json:"time_period"`
	// Unparsed counts records kept despite an unreadable timestamp.
	Unparsed int `json:"unparsed_timestamps,omitempty"`
}

// Empty reports whether no record matched.
func (s Statistics) Empty() bool { return s.Total == 0 }

// PassRate returns passed/total, or 0 when total is 0.
func PassRate(passed, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(passed) / float64(total)
}

// TimePeriod describes the window for display.
func TimePeriod(days int) string {
	if days <= 0 {
		return "all time"
	}
	if days == 1 {
		return "last 1 day"
	}
	return fmt.Sprintf("last %d days", days)
}

// Compute counts records in full on every call.
func Compute(records []Record, opts Options) Statistics {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	cutoff := now.UTC().AddDate(0, 0, -opts.Days)

	stats := Statistics{TimePeriod: TimePeriod(opts.Days), TopTags: []TagCount{}}
	tagCounts := map[string]int{}
	var tagOrder []string

	for _, r := range records {
		if opts.Environment != "" && r.Environment != opts.Environment {
			continue
		}
		if opts.Feature != "" && r.Feature != opts.Feature {
			continue
		}
		if opts.Days > 0 {
			ts, err := clock.Parse(r.Timestamp)
			if err != nil {
				if opts.Strict {
					continue
				}
				stats.Unparsed++
			} else if ts.Before(cutoff) {
				continue
			}
		}

		stats.Total++
		switch r.Status {
		case domain.StatusPassed:
			stats.Passed++
		case domain.StatusFailed:
			stats.Failed++
		case domain.StatusSkipped:
			stats.Skipped++
		case domain.StatusPending:
			stats.Pending++
		default:
			stats.Undefined++
		}

		for _, tag := range r.Tags {
			if _, seen := tagCounts[tag]; !seen {
				tagOrder = append(tagOrder, tag)
			}
			tagCounts[tag]++
		}
	}

	stats.PassRate = PassRate(stats.Passed, stats.Total)
	stats.TopTags = TopTags(tagOrder, tagCounts, opts.TopN)
	return stats
}

// TopTags returns the n most frequent tags. Ties keep first-seen order.
func TopTags(order []string, counts map[string]int, n int) []TagCount {
	tags := make([]TagCount, len(order))
	for i, tag := range order {
		tags[i] = TagCount{Tag: tag, Count: counts[tag]}
	}
	sort.SliceStable(tags, func(i, j int) bool {
		return tags[i].Count > tags[j].Count
	})
	if n > 0 && len(tags) > n {
		tags = tags[:n]
	}
	return tags
}
