package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ErrParse indicates a structurally malformed payload. The whole batch is
// rejected before any writes.
var ErrParse = errors.New("malformed CSV payload")

// Expected header columns of a provider export. Matching is by header name,
// case-insensitive, so column order is free.
const (
	colEmail       = "email"
	colMinutes     = "minutes"
	colLessonTitle = "lessontitle"
	colLessonID    = "lessonid"
	colStartTime   = "starttime"
	colEndTime     = "endtime"
)

// Row is a validated import row. Only rows that pass Validate reach the
// storage layer; optional fields are nil rather than empty strings.
type Row struct {
	Email       string
	Minutes     int
	LessonID    *string
	LessonTitle *string
	StartedAt   *time.Time
	EndedAt     *time.Time
}

// Key returns the row's content-addressed session identity.
func (r Row) Key() string {
	lesson := ""
	if r.LessonID != nil {
		lesson = *r.LessonID
	}
	return SessionKey(r.Email, lesson, r.StartedAt, r.Minutes)
}

// ParseRows decodes a header-aware CSV payload into untyped key-value maps.
// A payload that cannot be parsed at all fails with ErrParse; per-row
// validation happens later so one bad row never sinks the batch.
func ParseRows(r io.Reader) ([]map[string]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.ToLower(strings.TrimSpace(h))
	}

	var rows []map[string]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}

		row := make(map[string]string, len(cols))
		empty := true
		for i, v := range record {
			if i >= len(cols) {
				break
			}
			v = strings.TrimSpace(v)
			if v != "" {
				empty = false
			}
			row[cols[i]] = v
		}
		if !empty {
			rows = append(rows, row)
		}
	}

	return rows, nil
}

// Validate turns an untyped row into a strict Row. A row without a subject
// identifier or a positive minute count is rejected; timestamps are best
// effort and never fail the row.
func Validate(raw map[string]string) (Row, error) {
	email := normalizeSubject(raw[colEmail])
	if email == "" {
		return Row{}, errors.New("missing subject identifier")
	}

	minutes, err := strconv.Atoi(raw[colMinutes])
	if err != nil || minutes <= 0 {
		return Row{}, fmt.Errorf("invalid minute count %q", raw[colMinutes])
	}

	row := Row{
		Email:       email,
		Minutes:     minutes,
		LessonID:    optional(raw[colLessonID]),
		LessonTitle: optional(raw[colLessonTitle]),
		StartedAt:   parseTime(raw[colStartTime]),
		EndedAt:     parseTime(raw[colEndTime]),
	}
	return row, nil
}

func normalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
