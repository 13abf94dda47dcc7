package service

import (
	"math"
	"strings"
	"time"

	"github.com/medsupport/helpdesk/internal/ids"
)

func newEventID(at time.Time) string {
	return ids.New(at)
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func stringPtr(s string) *string {
	return &s
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func roundHours(v float64) float64 {
	return math.Round(v*100) / 100
}
