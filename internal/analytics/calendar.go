package analytics

import "time"

// DayLayout is the ISO date format used for every day label.
const DayLayout = "2006-01-02"

const day = 24 * time.Hour

// DayKey returns the UTC calendar date of t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayLayout)
}

// WindowStart returns the beginning of a trailing window of the given days.
func WindowStart(now time.Time, days int) time.Time {
	return now.UTC().Add(-time.Duration(days) * day)
}

// DayLabels returns days+1 dates, oldest first, ending with the date of now.
func DayLabels(now time.Time, days int) []string {
	labels := make([]string, 0, days+1)
	for i := days; i >= 0; i-- {
		labels = append(labels, DayKey(now.Add(-time.Duration(i)*day)))
	}
	return labels
}

// dayCounts accumulates integer counts per calendar day.
type dayCounts map[string]int

func (d dayCounts) add(t time.Time) {
	d[DayKey(t)]++
}

// align projects the counts onto labels, zero filling missing days.
func (d dayCounts) align(labels []string) []int {
	out := make([]int, len(labels))
	for i, label := range labels {
		out[i] = d[label]
	}
	return out
}

// dayAverages accumulates a running mean per calendar day.
type dayAverages struct {
	sum   map[string]float64
	count map[string]int
}

func newDayAverages() *dayAverages {
	return &dayAverages{sum: map[string]float64{}, count: map[string]int{}}
}

func (d *dayAverages) add(t time.Time, value float64) {
	key := DayKey(t)
	d.sum[key] += value
	d.count[key]++
}

// align projects the per-day means onto labels; empty days report 0.
func (d *dayAverages) align(labels []string) []float64 {
	out := make([]float64, len(labels))
	for i, label := range labels {
		if n := d.count[label]; n > 0 {
			out[i] = round2(d.sum[label] / float64(n))
		}
	}
	return out
}
