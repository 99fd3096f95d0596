package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionKeyDeterministic(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	a := SessionKey("alice@example.com", "L-101", &start, 60)
	b := SessionKey("alice@example.com", "L-101", &start, 60)

	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestSessionKeySubjectNormalization(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	// Case and surrounding whitespace of the subject never change identity
	a := SessionKey("alice@example.com", "L-101", &start, 60)
	b := SessionKey("  Alice@Example.COM  ", "L-101", &start, 60)

	assert.Equal(t, a, b)
}

func TestSessionKeyDistinctness(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	later := start.Add(time.Hour)

	base := SessionKey("alice@example.com", "L-101", &start, 60)

	assert.NotEqual(t, base, SessionKey("bob@example.com", "L-101", &start, 60))
	assert.NotEqual(t, base, SessionKey("alice@example.com", "L-102", &start, 60))
	assert.NotEqual(t, base, SessionKey("alice@example.com", "L-101", &later, 60))
	assert.NotEqual(t, base, SessionKey("alice@example.com", "L-101", &start, 90))
	assert.NotEqual(t, base, SessionKey("alice@example.com", "L-101", nil, 60))
}

func TestSessionKeyTimezoneInsensitive(t *testing.T) {
	utc := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	offset := utc.In(time.FixedZone("AEST", 10*3600))

	// The same instant in a different zone is the same session
	assert.Equal(t,
		SessionKey("alice@example.com", "L-101", &utc, 60),
		SessionKey("alice@example.com", "L-101", &offset, 60))
}
