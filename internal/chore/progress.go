package chore

import (
	"time"

	"github.com/dukerupert/chorechart/internal/model"
)

// Window is an inclusive range of assignment dates.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DayWindow covers the whole calendar day of t in loc, matching the instants
// NormalizeDate produces on write.
func DayWindow(t time.Time, loc *time.Location) Window {
	start := NormalizeDate(t, loc)
	return Window{Start: start, End: start.AddDate(0, 0, 1).Add(-time.Nanosecond)}
}

// Progress is a kid's completion over a set of assignments. It is always
// computed, never stored.
type Progress struct {
	KidID   int64   `json:"kid_id"`
	Window  *Window `json:"window,omitempty"`
	Total   int     `json:"total"`
	Done    int     `json:"done"`
	Percent float64 `json:"percent"`
}

// ProgressFor aggregates the assignments of one kid, optionally restricted to
// a window.
func ProgressFor(assignments []model.Assignment, kidID int64, window *Window) Progress {
	p := Progress{KidID: kidID, Window: window}
	for _, a := range assignments {
		if a.KidID != kidID {
			continue
		}
		if window != nil && !window.Contains(a.Date) {
			continue
		}
		p.Total++
		if a.Status == model.StatusDone {
			p.Done++
		}
	}
	p.Percent = percent(p.Done, p.Total)
	return p
}

// ProgressByKid returns one record for every kid that appears in
// assignments, including kids whose assignments all fall outside window.
func ProgressByKid(assignments []model.Assignment, window *Window) map[int64]Progress {
	out := make(map[int64]Progress)
	for _, a := range assignments {
		p, ok := out[a.KidID]
		if !ok {
			p = Progress{KidID: a.KidID, Window: window}
		}
		if window == nil || window.Contains(a.Date) {
			p.Total++
			if a.Status == model.StatusDone {
				p.Done++
			}
		}
		out[a.KidID] = p
	}
	for id, p := range out {
		p.Percent = percent(p.Done, p.Total)
		out[id] = p
	}
	return out
}

func percent(done, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}
