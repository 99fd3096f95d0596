package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRows(t *testing.T) {
	payload := `Email,Minutes,LessonTitle,LessonID,StartTime,EndTime
alice@example.com,60,Sanitation Basics,L-101,2026-03-01T09:00:00Z,2026-03-01T10:00:00Z
bob@example.com,45,State Law,L-201,,
`

	rows, err := ParseRows(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "alice@example.com", rows[0]["email"])
	assert.Equal(t, "60", rows[0]["minutes"])
	assert.Equal(t, "Sanitation Basics", rows[0]["lessontitle"])
	assert.Equal(t, "", rows[1]["starttime"])
}

func TestParseRowsHeaderCaseAndOrder(t *testing.T) {
	payload := `MINUTES,email
30,carol@example.com
`

	rows, err := ParseRows(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "carol@example.com", rows[0]["email"])
	assert.Equal(t, "30", rows[0]["minutes"])
}

func TestParseRowsSkipsBlankLines(t *testing.T) {
	payload := "Email,Minutes\nalice@example.com,60\n,\n"

	rows, err := ParseRows(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestParseRowsMalformed(t *testing.T) {
	payload := "Email,Minutes\n\"unterminated,60\n"

	_, err := ParseRows(strings.NewReader(payload))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
}

func TestValidate(t *testing.T) {
	row, err := Validate(map[string]string{
		"email":       "Alice@Example.com",
		"minutes":     "90",
		"lessonid":    "L-102",
		"lessontitle": "Haircutting I",
		"starttime":   "2026-03-02T09:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", row.Email)
	assert.Equal(t, 90, row.Minutes)
	require.NotNil(t, row.LessonID)
	assert.Equal(t, "L-102", *row.LessonID)
	require.NotNil(t, row.StartedAt)
	assert.Nil(t, row.EndedAt)
}

func TestValidateRejectsBadRows(t *testing.T) {
	cases := []struct {
		name string
		raw  map[string]string
	}{
		{"missing email", map[string]string{"minutes": "60"}},
		{"zero minutes", map[string]string{"email": "a@b.com", "minutes": "0"}},
		{"negative minutes", map[string]string{"email": "a@b.com", "minutes": "-5"}},
		{"non-numeric minutes", map[string]string{"email": "a@b.com", "minutes": "lots"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Validate(tc.raw)
			assert.Error(t, err)
		})
	}
}

func TestValidateTimestampsBestEffort(t *testing.T) {
	// An unreadable timestamp never rejects an otherwise valid row
	row, err := Validate(map[string]string{
		"email":     "a@b.com",
		"minutes":   "60",
		"starttime": "last tuesday",
	})
	require.NoError(t, err)
	assert.Nil(t, row.StartedAt)

	// Date-only timestamps are accepted
	row, err = Validate(map[string]string{
		"email":     "a@b.com",
		"minutes":   "60",
		"starttime": "2026-03-01",
	})
	require.NoError(t, err)
	require.NotNil(t, row.StartedAt)
}

func TestRowKeyMatchesSessionKey(t *testing.T) {
	row, err := Validate(map[string]string{
		"email":     "alice@example.com",
		"minutes":   "60",
		"lessonid":  "L-101",
		"starttime": "2026-03-01T09:00:00Z",
	})
	require.NoError(t, err)

	assert.Equal(t, SessionKey("alice@example.com", "L-101", row.StartedAt, 60), row.Key())
}
