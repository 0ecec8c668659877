// Package slots computes bookable time slots from a fixed candidate list.
package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"studiotblack/internal/model"
)

// Schedule describes how the fixed candidate list of a day is generated.
type Schedule struct {
	StartTime    string // "09:00"
	EndTime      string // "20:00", exclusive for slot starts
	SlotDuration int    // minutes
	BreakStart   string // optional
	BreakEnd     string // optional
}

// DefaultSchedule yields hourly slots from 09:00 to 19:00.
func DefaultSchedule() Schedule {
	return Schedule{StartTime: "09:00", EndTime: "20:00", SlotDuration: 60}
}

// Candidates generates the fixed candidate list for a schedule. A slot is
// emitted when it fits entirely before EndTime and does not overlap the break.
func Candidates(s Schedule) ([]string, error) {
	if s.SlotDuration <= 0 {
		s.SlotDuration = 60
	}
	start, err := minutesOf(s.StartTime)
	if err != nil {
		return nil, fmt.Errorf("parse start time: %w", err)
	}
	end, err := minutesOf(s.EndTime)
	if err != nil {
		return nil, fmt.Errorf("parse end time: %w", err)
	}
	if end <= start {
		return nil, fmt.Errorf("end time %s is not after start time %s", s.EndTime, s.StartTime)
	}

	var breakStart, breakEnd int
	hasBreak := s.BreakStart != "" && s.BreakEnd != ""
	if hasBreak {
		if breakStart, err = minutesOf(s.BreakStart); err != nil {
			return nil, fmt.Errorf("parse break start: %w", err)
		}
		if breakEnd, err = minutesOf(s.BreakEnd); err != nil {
			return nil, fmt.Errorf("parse break end: %w", err)
		}
	}

	var out []string
	for cursor := start; cursor+s.SlotDuration <= end; cursor += s.SlotDuration {
		if hasBreak && cursor < breakEnd && breakStart < cursor+s.SlotDuration {
			continue
		}
		out = append(out, formatMinutes(cursor))
	}
	return out, nil
}

// Available returns the candidates that are not occupied, in candidate
// order and without duplicates. Occupied values outside the candidate list
// are ignored, so the result is always a subset of candidates.
func Available(candidates, occupied []string) []string {
	taken := make(map[string]struct{}, len(occupied))
	for _, o := range occupied {
		taken[Normalize(o)] = struct{}{}
	}
	seen := make(map[string]struct{}, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := taken[c]; ok {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// WithinWorkingHours keeps slots covered by the professional's hours on weekday.
// Empty working hours leave the list untouched.
func WithinWorkingHours(list []string, hours model.WorkingHours, weekday time.Weekday) []string {
	if len(hours) == 0 {
		return list
	}
	out := make([]string, 0, len(list))
	for _, s := range list {
		if hours.Covers(weekday, s) {
			out = append(out, s)
		}
	}
	return out
}

// NotBefore drops slots on date that start before cutoff.
func NotBefore(list []string, date string, cutoff time.Time, loc *time.Location) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		at, err := model.CombineDateTime(date, s, loc)
		if err != nil || at.Before(cutoff) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Normalize converts stored times like "09:00:00" or "9:00" to "09:00".
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	m, err := minutesOf(s)
	if err != nil {
		return s
	}
	return formatMinutes(m)
}

func minutesOf(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 2 {
		return 0, fmt.Errorf("invalid time format: %s", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour: %s", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute: %s", s)
	}
	return hour*60 + minute, nil
}

func formatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
