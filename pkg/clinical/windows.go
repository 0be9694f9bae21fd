package clinical

import (
	"fmt"
	"time"
)

// Protocol visit windows: treatment visits 3-10 allow +/-3 days, visit 11
// onward allows +/-7 days. Screening and baseline visits anchor the
// schedule and have no window.
const (
	TreatmentWindowDays = 3
	FollowUpWindowDays  = 7
	firstWindowedVisit  = 3
	firstFollowUpVisit  = 11
)

// WindowDays returns the allowed deviation for a visit number. ok is false
// for visits without a window.
func WindowDays(visitNumber int) (days int, ok bool) {
	switch {
	case visitNumber < firstWindowedVisit:
		return 0, false
	case visitNumber >= firstFollowUpVisit:
		return FollowUpWindowDays, true
	default:
		return TreatmentWindowDays, true
	}
}

// WindowDeviation is a completed visit that fell outside its window.
type WindowDeviation struct {
	Visit      Visit `json:"visit"`
	DaysOff    int   `json:"days_off"`
	WindowDays int   `json:"window_days"`
}

// Evidence renders the deviation as citable text.
func (d WindowDeviation) Evidence() string {
	direction := "late"
	if d.DaysOff < 0 {
		direction = "early"
	}
	off := d.DaysOff
	if off < 0 {
		off = -off
	}
	return fmt.Sprintf("%s (#%d): scheduled %s, actual %s (%s by %d days, window is +/-%d days) -> OUTSIDE WINDOW",
		d.Visit.VisitName, d.Visit.VisitNumber, d.Visit.ScheduledDate, d.Visit.ActualDate, direction, off, d.WindowDays)
}

// WindowCheck is the outcome of checking a subject's visit schedule.
type WindowCheck struct {
	Checked    int               `json:"total_visits_checked"`
	Deviations []WindowDeviation `json:"out_of_window"`
}

// CheckVisitWindows compares actual and scheduled dates of completed,
// windowed visits. Visits with missing or unparseable dates are skipped.
func CheckVisitWindows(visits []Visit) WindowCheck {
	var wc WindowCheck
	for _, v := range visits {
		if !v.Completed {
			continue
		}
		window, ok := WindowDays(v.VisitNumber)
		if !ok {
			continue
		}
		scheduled, err1 := time.Parse(time.DateOnly, v.ScheduledDate)
		actual, err2 := time.Parse(time.DateOnly, v.ActualDate)
		if err1 != nil || err2 != nil {
			continue
		}

		wc.Checked++
		daysOff := int(actual.Sub(scheduled).Hours() / 24)
		if daysOff > window || daysOff < -window {
			wc.Deviations = append(wc.Deviations, WindowDeviation{Visit: v, DaysOff: daysOff, WindowDays: window})
		}
	}
	return wc
}
