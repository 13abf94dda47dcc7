// Package analytics aggregates ticket and activity records into the
// trailing-window report shown on the admin dashboard.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/medsupport/helpdesk/internal/domain"
)

// Supported window sizes in days.
const (
	WeekDays  = 7
	MonthDays = 30
)

// ErrInvalidWindow is returned for window sizes other than a week or a month.
var ErrInvalidWindow = errors.New("analytics window must be 7 or 30 days")

// ErrMalformedTicket is returned when a ticket lacks the timestamps needed for aggregation.
var ErrMalformedTicket = errors.New("ticket is missing timestamps")

// DaysForRange maps the dashboard range parameter to a window size.
func DaysForRange(rangeParam string) int {
	if rangeParam == "week" {
		return WeekDays
	}
	return MonthDays
}

// RangeName is the inverse of DaysForRange.
func RangeName(days int) string {
	if days == WeekDays {
		return "week"
	}
	return "month"
}

// ValidDays reports whether days is a supported window size.
func ValidDays(days int) bool {
	return days == WeekDays || days == MonthDays
}

// Input carries every record the report is computed from. Build applies the
// window filters itself, so callers may pass supersets.
type Input struct {
	Days int
	Now  time.Time
	// Created are tickets created inside the window.
	Created []domain.Ticket
	// Resolved are resolved or closed tickets last updated inside the window.
	Resolved   []domain.Ticket
	Categories []domain.Category
	// Usernames maps assignee ids to display names.
	Usernames      map[string]string
	EscalationLogs []domain.ActivityLog
}

// DaySeries is a count per day label.
type DaySeries struct {
	Labels []string `json:"labels"`
	Counts []int    `json:"counts"`
}

// TrendSeries is an average per day label.
type TrendSeries struct {
	Labels   []string  `json:"labels"`
	AvgHours []float64 `json:"avg_hours"`
}

// CategoryCount is the number of tickets filed in one category.
type CategoryCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// TechnicianStat summarises the resolved work of one assignee.
type TechnicianStat struct {
	Username           string  `json:"username"`
	ClosedCount        int     `json:"closed_count"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
}

// Report is the analytics payload consumed by the dashboard charts.
type Report struct {
	Range                 string           `json:"range"`
	GeneratedAt           time.Time        `json:"generated_at"`
	VolumeByDay           DaySeries        `json:"volume_by_day"`
	CategoryCounts        []CategoryCount  `json:"category_counts"`
	AvgResolutionHours    float64          `json:"avg_resolution_hours"`
	TechnicianPerformance []TechnicianStat `json:"technician_performance"`
	ResolutionTrend       TrendSeries      `json:"resolution_trend"`
	SLABreachesByDay      DaySeries        `json:"sla_breaches_by_day"`
}

// Build computes every facet of the report. Any malformed record fails the
// whole report; no partial result is returned.
func Build(in Input) (*Report, error) {
	if !ValidDays(in.Days) {
		return nil, ErrInvalidWindow
	}
	now := in.Now.UTC()
	start := WindowStart(now, in.Days)
	labels := DayLabels(now, in.Days)

	created, err := createdSince(in.Created, start)
	if err != nil {
		return nil, err
	}
	resolved, err := resolvedSince(in.Resolved, start)
	if err != nil {
		return nil, err
	}

	avgHours, trend := resolutionFacets(resolved, labels)
	return &Report{
		Range:                 RangeName(in.Days),
		GeneratedAt:           now,
		VolumeByDay:           volumeByDay(created, labels),
		CategoryCounts:        categoryCounts(in.Categories, created),
		AvgResolutionHours:    avgHours,
		TechnicianPerformance: technicianPerformance(resolved, in.Usernames),
		ResolutionTrend:       trend,
		SLABreachesByDay:      breachesByDay(in.EscalationLogs, start, labels),
	}, nil
}

func createdSince(tickets []domain.Ticket, start time.Time) ([]domain.Ticket, error) {
	out := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if t.CreatedAt.IsZero() {
			return nil, fmt.Errorf("ticket %s: %w", t.ID, ErrMalformedTicket)
		}
		if t.CreatedAt.Before(start) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func resolvedSince(tickets []domain.Ticket, start time.Time) ([]domain.Ticket, error) {
	out := make([]domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if !t.Status.Done() {
			continue
		}
		if t.CreatedAt.IsZero() || t.UpdatedAt.IsZero() {
			return nil, fmt.Errorf("ticket %s: %w", t.ID, ErrMalformedTicket)
		}
		if t.UpdatedAt.Before(start) {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func volumeByDay(created []domain.Ticket, labels []string) DaySeries {
	counts := dayCounts{}
	for _, t := range created {
		counts.add(t.CreatedAt)
	}
	return DaySeries{Labels: copyLabels(labels), Counts: counts.align(labels)}
}

func categoryCounts(categories []domain.Category, created []domain.Ticket) []CategoryCount {
	perCategory := make(map[string]int, len(categories))
	for _, t := range created {
		if t.CategoryID != nil {
			perCategory[*t.CategoryID]++
		}
	}
	out := make([]CategoryCount, 0, len(categories))
	for _, c := range categories {
		out = append(out, CategoryCount{Name: c.Name, Count: perCategory[c.ID]})
	}
	return out
}

func resolutionFacets(resolved []domain.Ticket, labels []string) (float64, TrendSeries) {
	trend := newDayAverages()
	var total float64
	for _, t := range resolved {
		hours := ResolutionHours(t)
		total += hours
		trend.add(t.UpdatedAt, hours)
	}
	avg := 0.0
	if len(resolved) > 0 {
		avg = round2(total / float64(len(resolved)))
	}
	return avg, TrendSeries{Labels: copyLabels(labels), AvgHours: trend.align(labels)}
}

func technicianPerformance(resolved []domain.Ticket, usernames map[string]string) []TechnicianStat {
	type acc struct {
		closed int
		hours  float64
	}
	byAssignee := map[string]*acc{}
	for _, t := range resolved {
		if t.AssigneeID == nil {
			continue
		}
		a, ok := byAssignee[*t.AssigneeID]
		if !ok {
			a = &acc{}
			byAssignee[*t.AssigneeID] = a
		}
		a.closed++
		a.hours += ResolutionHours(t)
	}

	out := make([]TechnicianStat, 0, len(byAssignee))
	for id, a := range byAssignee {
		name, ok := usernames[id]
		if !ok || name == "" {
			name = "User " + id
		}
		out = append(out, TechnicianStat{
			Username:           name,
			ClosedCount:        a.closed,
			AvgResolutionHours: round2(a.hours / float64(a.closed)),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ClosedCount != out[j].ClosedCount {
			return out[i].ClosedCount > out[j].ClosedCount
		}
		return out[i].Username < out[j].Username
	})
	return out
}

func breachesByDay(logs []domain.ActivityLog, start time.Time, labels []string) DaySeries {
	counts := dayCounts{}
	for _, l := range logs {
		if l.Action != domain.ActionSLAEscalated || l.Timestamp.Before(start) {
			continue
		}
		counts.add(l.Timestamp)
	}
	return DaySeries{Labels: copyLabels(labels), Counts: counts.align(labels)}
}

// ResolutionHours is the time from creation to last update, never negative.
func ResolutionHours(t domain.Ticket) float64 {
	return math.Max(0, t.UpdatedAt.Sub(t.CreatedAt).Seconds()) / 3600
}

func copyLabels(labels []string) []string {
	return append([]string(nil), labels...)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
