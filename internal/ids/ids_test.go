package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewIsSortableByTime(t *testing.T) {
	base := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	first := New(base)
	second := New(base.Add(time.Millisecond))
	same := New(base.Add(time.Millisecond))

	assert.Len(t, first, 26)
	assert.Less(t, first, second)
	assert.Less(t, second, same)
}
