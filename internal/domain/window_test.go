package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func window(id string, startHour, endHour int) Window {
	day := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	return Window{
		ID:    id,
		Start: day.Add(time.Duration(startHour) * time.Hour),
		End:   day.Add(time.Duration(endHour) * time.Hour),
	}
}

func TestWindowOverlaps(t *testing.T) {
	testCases := []struct {
		name     string
		a        Window
		b        Window
		expected bool
	}{
		{name: "partial overlap", a: window("a", 9, 11), b: window("b", 10, 12), expected: true},
		{name: "contained", a: window("a", 9, 12), b: window("b", 10, 11), expected: true},
		{name: "identical", a: window("a", 9, 11), b: window("b", 9, 11), expected: true},
		{name: "touching end to start", a: window("a", 9, 10), b: window("b", 10, 11), expected: false},
		{name: "touching start to end", a: window("a", 10, 11), b: window("b", 9, 10), expected: false},
		{name: "disjoint", a: window("a", 8, 9), b: window("b", 10, 11), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.a.Overlaps(tc.b))
			// Overlap is symmetric.
			assert.Equal(t, tc.expected, tc.b.Overlaps(tc.a))
		})
	}
}

func TestHasConflict(t *testing.T) {
	existing := []Window{window("w1", 8, 9), window("w2", 12, 14)}

	assert.False(t, HasConflict(window("c", 9, 12), existing))
	assert.True(t, HasConflict(window("c", 9, 13), existing))
	assert.False(t, HasConflict(window("c", 14, 15), existing))
	assert.False(t, HasConflict(window("c", 9, 12), nil))
}

func TestFindConflicts(t *testing.T) {
	existing := []Window{window("w1", 8, 10), window("w2", 12, 14), window("w3", 9, 13)}

	ids := FindConflicts(window("c", 9, 12), existing)
	assert.Equal(t, []string{"w1", "w3"}, ids)

	assert.Nil(t, FindConflicts(window("c", 14, 16), existing[:2]))
}

func TestCommitmentsWindowsAndExclude(t *testing.T) {
	c := Commitments{
		Trips:    []Window{window("t1", 8, 9)},
		Leaves:   []Window{window("l1", 10, 11)},
		Services: []Window{window("s1", 12, 13)},
	}

	assert.Len(t, c.Windows(), 3)

	excluded := c.Exclude("l1")
	assert.Len(t, excluded.Leaves, 0)
	assert.Len(t, excluded.Windows(), 2)

	// Excluding an unknown id changes nothing.
	assert.Len(t, c.Exclude("nope").Windows(), 3)
}
