package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

func TestRingRecorderKeepsMostRecent(t *testing.T) {
	ring := NewRingRecorder(3)
	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		ring.Record(context.Background(), Event{Service: "checkout", Message: msg})
	}
	ring.Record(context.Background(), Event{Service: "cart", Message: "x"})

	got := ring.Events("checkout", 0)
	assert.Len(t, got, 3)
	assert.Equal(t, "c", got[0].Message)
	assert.Equal(t, "e", got[2].Message)

	last := ring.Events("checkout", 1)
	assert.Equal(t, "e", last[0].Message)
	assert.Len(t, ring.Events("cart", 10), 1)
	assert.Empty(t, ring.Events("unknown", 10))
}

func TestMultiRecorderFansOut(t *testing.T) {
	var buf bytes.Buffer
	ring := NewRingRecorder(4)
	multi := MultiRecorder{ring, nil, NewLogRecorder(utils.NewLoggerTo(&buf, "info", false))}

	multi.Record(context.Background(), Event{Service: "checkout", Kind: EventPlan, Message: "plan", Fields: map[string]string{"origin": "forecast"}})

	assert.Len(t, ring.Events("checkout", 0), 1)
	assert.Contains(t, buf.String(), "origin=forecast")
	assert.Contains(t, buf.String(), "kind=plan")
}
