package service

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCompletionStatus(t *testing.T) {
	rtiRequired := dec("288")
	ojtRequired := dec("1500")

	cases := []struct {
		name     string
		rti, ojt decimal.Decimal
		want     string
	}{
		{"both complete", dec("288"), dec("1500"), LabelReady},
		{"over threshold", dec("300"), dec("1600"), LabelReady},
		{"rti short", dec("287.99"), dec("1500"), LabelRTIIncomplete},
		{"ojt short", dec("288"), dec("1499.5"), LabelOJTIncomplete},
		{"both short", dec("10"), dec("20"), LabelRTIIncomplete},
		{"nothing yet", decimal.Zero, decimal.Zero, LabelRTIIncomplete},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, completionStatus(tc.rti, tc.ojt, rtiRequired, ojtRequired))
		})
	}
}

func TestProgressPercent(t *testing.T) {
	assert.Equal(t, 50.0, progressPercent(dec("144"), dec("288")))
	assert.Equal(t, 100.0, progressPercent(dec("288"), dec("288")))

	// Overshoot is capped
	assert.Equal(t, 100.0, progressPercent(dec("400"), dec("288")))

	// One decimal place
	assert.Equal(t, 33.3, progressPercent(dec("96"), dec("288")))

	// A zero threshold never divides
	assert.Equal(t, 0.0, progressPercent(dec("10"), decimal.Zero))
}

func TestRemaining(t *testing.T) {
	assert.True(t, remaining(dec("100"), dec("288")).Equal(dec("188")))
	assert.True(t, remaining(dec("288"), dec("288")).Equal(decimal.Zero))

	// Never negative
	assert.True(t, remaining(dec("300"), dec("288")).Equal(decimal.Zero))
}

func TestCSVSafe(t *testing.T) {
	assert.Equal(t, "plain", csvSafe("plain"))
	assert.Equal(t, `"a,b"`, csvSafe("a,b"))
	assert.Equal(t, `"say ""hi"""`, csvSafe(`say "hi"`))
	assert.Equal(t, "\"two\nlines\"", csvSafe("two\nlines"))
	assert.Equal(t, "", csvSafe(""))
}
