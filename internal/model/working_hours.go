package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Interval is an opening interval within a day, [Start, End) in HH:MM.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// WorkingHours is the canonical weekly schedule of a professional.
// A missing day means the professional does not work that day.
type WorkingHours map[time.Weekday][]Interval

var ErrInvalidWorkingHours = errors.New("invalid working hours")

var dayKeys = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

var dayLabels = [7]string{"Dom", "Seg", "Ter", "Qua", "Qui", "Sex", "Sáb"}

var dayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday, "dom": time.Sunday, "domingo": time.Sunday,
	"mon": time.Monday, "monday": time.Monday, "seg": time.Monday, "segunda": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"ter": time.Tuesday, "terça": time.Tuesday, "terca": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday, "qua": time.Wednesday, "quarta": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"qui": time.Thursday, "quinta": time.Thursday,
	"fri": time.Friday, "friday": time.Friday, "sex": time.Friday, "sexta": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
	"sab": time.Saturday, "sáb": time.Saturday, "sabado": time.Saturday, "sábado": time.Saturday,
}

var everyDay = map[string]bool{
	"todos os dias": true, "diariamente": true, "every day": true, "everyday": true, "daily": true,
}

var closedWords = map[string]bool{
	"": true, "-": true, "fechado": true, "closed": true, "folga": true, "off": true,
}

// On returns the intervals for day.
func (w WorkingHours) On(day time.Weekday) []Interval {
	return w[day]
}

// Covers reports whether hhmm falls inside one of day's intervals.
func (w WorkingHours) Covers(day time.Weekday, hhmm string) bool {
	for _, iv := range w[day] {
		if hhmm >= iv.Start && hhmm < iv.End {
			return true
		}
	}
	return false
}

// Lines renders the schedule Monday first, one line per working day.
func (w WorkingHours) Lines() []string {
	lines := make([]string, 0, len(w))
	for i := 1; i <= 7; i++ {
		day := time.Weekday(i % 7)
		ivs := w[day]
		if len(ivs) == 0 {
			continue
		}
		parts := make([]string, len(ivs))
		for j, iv := range ivs {
			parts[j] = iv.Start + "-" + iv.End
		}
		lines = append(lines, dayLabels[day]+" "+strings.Join(parts, ", "))
	}
	return lines
}

// MarshalJSON writes the canonical day-keyed form, e.g. {"mon":[{"start":"09:00","end":"18:00"}]}.
func (w WorkingHours) MarshalJSON() ([]byte, error) {
	out := make(map[string][]Interval, len(w))
	for day, ivs := range w {
		if len(ivs) == 0 {
			continue
		}
		out[dayKeys[day]] = ivs
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts any shape understood by ParseWorkingHours.
func (w *WorkingHours) UnmarshalJSON(data []byte) error {
	parsed, err := DecodeWorkingHours(data)
	if err != nil {
		return err
	}
	*w = parsed
	return nil
}

// DecodeWorkingHours parses a JSON column holding working hours in any
// supported shape.
func DecodeWorkingHours(data []byte) (WorkingHours, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return WorkingHours{}, nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWorkingHours, err)
	}
	return ParseWorkingHours(raw)
}

// ParseWorkingHours normalizes the loosely typed representations found in
// backend rows and catalog files:
//
//   - a list of strings: "09:00-18:00", "Seg-Sex: 9h às 19h", "Domingo: fechado"
//   - a list of objects: {"day": "mon", "start": "09:00", "end": "18:00"}
//   - a day-keyed map whose values are a range string, a list of ranges,
//     a {start, end} object, or a closed marker ("fechado", null, false)
func ParseWorkingHours(raw any) (WorkingHours, error) {
	w := WorkingHours{}
	switch v := raw.(type) {
	case nil:
		return w, nil
	case string:
		if err := w.addLine(v); err != nil {
			return nil, err
		}
	case []string:
		for _, line := range v {
			if err := w.addLine(line); err != nil {
				return nil, err
			}
		}
	case []any:
		for _, item := range v {
			switch it := item.(type) {
			case string:
				if err := w.addLine(it); err != nil {
					return nil, err
				}
			case map[string]any:
				if err := w.addDayObject(it); err != nil {
					return nil, err
				}
			default:
				return nil, fmt.Errorf("%w: unexpected list item %T", ErrInvalidWorkingHours, item)
			}
		}
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			days, err := parseDayKey(k)
			if err != nil {
				return nil, err
			}
			ivs, err := parseDayValue(v[k])
			if err != nil {
				return nil, fmt.Errorf("day %q: %w", k, err)
			}
			for _, d := range days {
				w.set(d, ivs)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unexpected type %T", ErrInvalidWorkingHours, raw)
	}
	w.sortIntervals()
	return w, nil
}

func (w WorkingHours) set(day time.Weekday, ivs []Interval) {
	if len(ivs) == 0 {
		delete(w, day)
		return
	}
	w[day] = append(w[day], ivs...)
}

func (w WorkingHours) sortIntervals() {
	for day := range w {
		sort.Slice(w[day], func(i, j int) bool { return w[day][i].Start < w[day][j].Start })
	}
}

func (w WorkingHours) addLine(line string) error {
	s := strings.Join(strings.Fields(strings.ToLower(line)), " ")
	if s == "" {
		return nil
	}

	idx := strings.IndexFunc(s, unicode.IsDigit)
	if idx < 0 {
		daysPart, rest, _ := strings.Cut(s, ":")
		if !closedWords[strings.TrimSpace(rest)] {
			return fmt.Errorf("%w: %q", ErrInvalidWorkingHours, line)
		}
		days, err := parseDays(daysPart)
		if err != nil {
			return err
		}
		for _, d := range days {
			delete(w, d)
		}
		return nil
	}

	daysPart := strings.TrimSpace(s[:idx])
	for _, suffix := range []string{"das", "de", "from"} {
		daysPart = strings.TrimSpace(strings.TrimSuffix(daysPart, " "+suffix))
	}
	daysPart = strings.TrimRight(daysPart, ": ")

	var days []time.Weekday
	if daysPart == "" {
		days = allDays()
	} else {
		var err error
		if days, err = parseDays(daysPart); err != nil {
			return err
		}
	}

	ivs, err := parseRanges(s[idx:])
	if err != nil {
		return fmt.Errorf("%q: %w", line, err)
	}
	for _, d := range days {
		w.set(d, ivs)
	}
	return nil
}

func (w WorkingHours) addDayObject(obj map[string]any) error {
	rawDay, ok := obj["day"]
	if !ok {
		rawDay = obj["dia"]
	}
	var key string
	switch d := rawDay.(type) {
	case string:
		key = d
	case float64:
		key = strconv.Itoa(int(d))
	case int:
		key = strconv.Itoa(d)
	default:
		return fmt.Errorf("%w: object without day", ErrInvalidWorkingHours)
	}
	days, err := parseDayKey(key)
	if err != nil {
		return err
	}
	ivs, err := parseDayValue(obj)
	if err != nil {
		return err
	}
	for _, d := range days {
		w.set(d, ivs)
	}
	return nil
}

func allDays() []time.Weekday {
	return []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday}
}

func parseDayKey(key string) ([]time.Weekday, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	if n, err := strconv.Atoi(k); err == nil {
		if n < 0 || n > 6 {
			return nil, fmt.Errorf("%w: day index %d", ErrInvalidWorkingHours, n)
		}
		return []time.Weekday{time.Weekday(n)}, nil
	}
	return parseDays(k)
}

func parseDays(s string) ([]time.Weekday, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if everyDay[s] {
		return allDays(), nil
	}
	s = strings.ReplaceAll(s, "-feira", "")
	s = replaceAll(s, "-", " a ", " à ", " to ", " até ", " ate ", "\u2013", "\u2014")
	s = replaceAll(s, ",", " e ", " and ", "/", ";")

	var days []time.Weekday
	for _, token := range strings.Split(s, ",") {
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		from, to, isRange := strings.Cut(token, "-")
		if !isRange {
			d, err := lookupDay(token)
			if err != nil {
				return nil, err
			}
			days = append(days, d)
			continue
		}
		start, err := lookupDay(from)
		if err != nil {
			return nil, err
		}
		end, err := lookupDay(to)
		if err != nil {
			return nil, err
		}
		for d := start; ; d = (d + 1) % 7 {
			days = append(days, d)
			if d == end {
				break
			}
		}
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: no days in %q", ErrInvalidWorkingHours, s)
	}
	return days, nil
}

func lookupDay(name string) (time.Weekday, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".")
	if d, ok := dayNames[name]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("%w: unknown day %q", ErrInvalidWorkingHours, name)
}

func parseDayValue(val any) ([]Interval, error) {
	switch v := val.(type) {
	case nil:
		return nil, nil
	case bool:
		if v {
			return nil, fmt.Errorf("%w: bare true has no hours", ErrInvalidWorkingHours)
		}
		return nil, nil
	case string:
		if closedWords[strings.ToLower(strings.TrimSpace(v))] {
			return nil, nil
		}
		return parseRanges(v)
	case []any:
		var out []Interval
		for _, item := range v {
			ivs, err := parseDayValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ivs...)
		}
		return out, nil
	case []string:
		var out []Interval
		for _, item := range v {
			ivs, err := parseDayValue(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ivs...)
		}
		return out, nil
	case map[string]any:
		if closed, ok := firstKey(v, "closed", "fechado"); ok {
			if b, isBool := closed.(bool); isBool && b {
				return nil, nil
			}
		}
		startRaw, okStart := firstKey(v, "start", "open", "from", "inicio", "início", "abertura")
		endRaw, okEnd := firstKey(v, "end", "close", "to", "fim", "fechamento")
		if !okStart || !okEnd {
			return nil, fmt.Errorf("%w: object without start/end", ErrInvalidWorkingHours)
		}
		start, err := parseClock(fmt.Sprint(startRaw))
		if err != nil {
			return nil, err
		}
		end, err := parseClock(fmt.Sprint(endRaw))
		if err != nil {
			return nil, err
		}
		return newInterval(start, end)
	}
	return nil, fmt.Errorf("%w: unexpected value %T", ErrInvalidWorkingHours, val)
}

func firstKey(m map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v, true
		}
	}
	return nil, false
}

func parseRanges(s string) ([]Interval, error) {
	s = strings.ToLower(s)
	s = replaceAll(s, "-", " às ", " as ", " até ", " ate ", " to ", " a ", "\u2013", "\u2014")
	s = replaceAll(s, ",", " e ", " and ", ";", "/")

	var out []Interval
	for _, chunk := range strings.Split(s, ",") {
		chunk = strings.Join(strings.Fields(chunk), "")
		if chunk == "" {
			continue
		}
		from, to, ok := strings.Cut(chunk, "-")
		if !ok {
			return nil, fmt.Errorf("%w: range %q", ErrInvalidWorkingHours, chunk)
		}
		start, err := parseClock(from)
		if err != nil {
			return nil, err
		}
		end, err := parseClock(to)
		if err != nil {
			return nil, err
		}
		ivs, err := newInterval(start, end)
		if err != nil {
			return nil, err
		}
		out = append(out, ivs...)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no ranges in %q", ErrInvalidWorkingHours, s)
	}
	return out, nil
}

func newInterval(start, end string) ([]Interval, error) {
	if start >= end {
		return nil, fmt.Errorf("%w: %s is not before %s", ErrInvalidWorkingHours, start, end)
	}
	return []Interval{{Start: start, End: end}}, nil
}

// parseClock accepts "9", "9h", "9h30", "09:00" and "9.30".
func parseClock(s string) (string, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.NewReplacer("h", ":", ".", ":").Replace(s)
	s = strings.TrimSuffix(s, ":")
	hourStr, minStr, _ := strings.Cut(s, ":")
	hour, err := strconv.Atoi(hourStr)
	if err != nil {
		return "", fmt.Errorf("%w: clock %q", ErrInvalidWorkingHours, s)
	}
	minute := 0
	if minStr != "" {
		if minute, err = strconv.Atoi(minStr); err != nil {
			return "", fmt.Errorf("%w: clock %q", ErrInvalidWorkingHours, s)
		}
	}
	if hour < 0 || hour > 24 || minute < 0 || minute > 59 || (hour == 24 && minute != 0) {
		return "", fmt.Errorf("%w: clock %q out of range", ErrInvalidWorkingHours, s)
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), nil
}

func replaceAll(s, with string, olds ...string) string {
	pairs := make([]string, 0, len(olds)*2)
	for _, o := range olds {
		pairs = append(pairs, o, with)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}
