package domain

import "time"

// Window is a half-open [Start, End) time interval during which a driver or
// vehicle is committed. Windows of cancelled or rejected entities must not
// reach these functions; repositories exclude them at query time.
type Window struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two windows conflict. Touching endpoints do not
// overlap: [09:00, 10:00) and [10:00, 11:00) are compatible.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && w.End.After(other.Start)
}

// HasConflict reports whether the candidate overlaps any existing window.
func HasConflict(candidate Window, existing []Window) bool {
	for _, w := range existing {
		if candidate.Overlaps(w) {
			return true
		}
	}
	return false
}

// FindConflicts returns the ids of every existing window overlapping the
// candidate, for operator-facing diagnostics.
func FindConflicts(candidate Window, existing []Window) []string {
	var ids []string
	for _, w := range existing {
		if candidate.Overlaps(w) {
			ids = append(ids, w.ID)
		}
	}
	return ids
}

// Commitments is a driver's committed schedule as returned by the
// persistence layer: trips in scheduled/on_going, approved leaves and
// approved vehicle services.
type Commitments struct {
	Trips    []Window
	Leaves   []Window
	Services []Window
}

// Windows flattens the commitment sets for conflict checking.
func (c Commitments) Windows() []Window {
	all := make([]Window, 0, len(c.Trips)+len(c.Leaves)+len(c.Services))
	all = append(all, c.Trips...)
	all = append(all, c.Leaves...)
	all = append(all, c.Services...)
	return all
}

// Exclude drops the window with the given id, used when re-checking a
// modified entity against its own committed window.
func (c Commitments) Exclude(id string) Commitments {
	if id == "" {
		return c
	}
	filter := func(ws []Window) []Window {
		out := ws[:0:0]
		for _, w := range ws {
			if w.ID != id {
				out = append(out, w)
			}
		}
		return out
	}
	return Commitments{Trips: filter(c.Trips), Leaves: filter(c.Leaves), Services: filter(c.Services)}
}
