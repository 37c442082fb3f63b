package domain

import (
	"sort"
	"time"
)

// ScheduleSlots is the number of download attempts planned for every entry.
const ScheduleSlots = 4

// ScheduleEntry tracks one scheduled item through its retry timeline.
//
// FailCount indexes into ScheduleDates. Once FailCount has no corresponding
// date the entry is Failed and is never dispatched again, but it stays in the
// schedule until a user removes or re-schedules it.
type ScheduleEntry struct {
	APIID         string      `json:"api_id"`
	Channel       string      `json:"channel"`
	Title         string      `json:"title"`
	DownloadURL   string      `json:"download_url"`
	ScheduleDates []time.Time `json:"schedule_dates"`
	FailCount     int         `json:"fail_count"`
	Failed        bool        `json:"failed"`
	InProgress    bool        `json:"in_progress"`
}

// NextDue returns the date of the next attempt. Exhausted entries report their
// last date so that they keep a stable position in listings.
func (e *ScheduleEntry) NextDue() time.Time {
	if len(e.ScheduleDates) == 0 {
		return time.Time{}
	}
	if e.FailCount >= 0 && e.FailCount < len(e.ScheduleDates) {
		return e.ScheduleDates[e.FailCount]
	}
	return e.ScheduleDates[len(e.ScheduleDates)-1]
}

// Exhausted reports whether every planned attempt has been used up.
func (e *ScheduleEntry) Exhausted() bool {
	return e.FailCount >= len(e.ScheduleDates)
}

// IsDue reports whether the entry may be dispatched at now.
func (e *ScheduleEntry) IsDue(now time.Time) bool {
	if e.Failed || e.InProgress || e.Exhausted() {
		return false
	}
	return e.ScheduleDates[e.FailCount].Before(now)
}

// MarkFailedAttempt applies the failure path: the attempt counter moves on and
// the entry is released. When the incremented counter has no schedule date left
// the entry becomes terminally failed.
func (e *ScheduleEntry) MarkFailedAttempt() {
	e.FailCount++
	e.InProgress = false
	if e.FailCount > len(e.ScheduleDates)-1 {
		e.Failed = true
	}
}

// SortByNextDue orders entries by next due date, ties broken by API ID.
func SortByNextDue(entries []*ScheduleEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		di, dj := entries[i].NextDue(), entries[j].NextDue()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return entries[i].APIID < entries[j].APIID
	})
}

// FinishedEntry records a completed download.
type FinishedEntry struct {
	APIID       string    `json:"api_id"`
	Title       string    `json:"title"`
	Channel     string    `json:"channel"`
	Done        bool      `json:"done"`
	CompletedAt time.Time `json:"completed_at"`
}

// IgnoreEntry is a catalog item the user never wants to see again.
type IgnoreEntry struct {
	APIID   string `json:"api_id"`
	Title   string `json:"title"`
	Channel string `json:"channel"`
}

// ProgressEntry is the live state of one running transfer. It is never persisted.
type ProgressEntry struct {
	APIID    string `json:"api_id"`
	Percent  int    `json:"percent"`
	Size     string `json:"size,omitempty"`
	Speed    string `json:"speed,omitempty"`
	ETA      string `json:"eta,omitempty"`
	File     string `json:"file,omitempty"`
	PartInfo string `json:"part_info,omitempty"`
}
