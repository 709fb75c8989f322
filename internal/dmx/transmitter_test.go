package dmx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// recordingLine captures every level written to the data line.
type recordingLine struct {
	levels []bool
}

func (r *recordingLine) Set(high bool) {
	r.levels = append(r.levels, high)
}

// setsPerFrame is the fixed number of Set calls one frame produces: break,
// mark-after-break, then per byte one start bit, eight data bits and one
// (held) stop level, plus the final idle level.
const setsPerFrame = 2 + FrameSize*10 + 1

func newTestTransmitter(line *recordingLine) *Transmitter {
	var l Line
	if line != nil {
		l = line
	}
	t := NewTransmitter(l, nil, Timings{})   // zero timings: no delays
	t.limiter = rate.NewLimiter(rate.Inf, 1) // no pacing in tests
	if line != nil {
		line.levels = nil // drop the construction-time idle level
	}
	return t
}

func TestFrameClamping(t *testing.T) {
	var f Frame

	f.Set(0, 10)
	assert.Equal(t, 10, f.Get(1), "address clamps up to 1")

	f.Set(513, 20)
	assert.Equal(t, 20, f.Get(512), "address clamps down to 512")

	f.Set(5, 300)
	assert.Equal(t, 255, f.Get(5))

	f.Set(5, -7)
	assert.Equal(t, 0, f.Get(5))
}

func TestFramePersistsAcrossWrites(t *testing.T) {
	tx := newTestTransmitter(&recordingLine{})

	tx.WriteChannel(5, 200)
	tx.WriteChannel(7, 10)

	assert.Equal(t, 200, tx.Channel(5))
	assert.Equal(t, 10, tx.Channel(7))
	assert.Equal(t, 0, tx.Channel(6))
}

func TestResetAllZeroesAndTransmitsOnce(t *testing.T) {
	tx := newTestTransmitter(&recordingLine{})

	tx.WriteChannel(5, 200)
	tx.WriteChannel(7, 10)
	before := tx.FramesSent()

	tx.ResetAll()

	assert.Equal(t, before+1, tx.FramesSent(), "reset causes exactly one additional transmit")
	for ch := 1; ch <= 512; ch++ {
		require.Equal(t, 0, tx.Channel(ch))
	}
}

func TestEachWriteRetransmitsFullFrame(t *testing.T) {
	line := &recordingLine{}
	tx := newTestTransmitter(line)

	tx.WriteChannel(1, 255)
	tx.WriteChannel(2, 128)

	assert.Equal(t, int64(2), tx.FramesSent())
	assert.Len(t, line.levels, 2*setsPerFrame)
}

func TestWireFormat(t *testing.T) {
	line := &recordingLine{}
	tx := newTestTransmitter(line)

	tx.WriteChannel(1, 0x55) // 0b01010101

	levels := line.levels
	require.Len(t, levels, setsPerFrame)

	assert.False(t, levels[0], "break is low")
	assert.True(t, levels[1], "mark-after-break is high")

	// Byte 0 is the start code 0x00: start bit low, 8 low data bits, stop high.
	startCode := levels[2 : 2+10]
	for i := 0; i < 9; i++ {
		assert.False(t, startCode[i])
	}
	assert.True(t, startCode[9])

	// Byte 1 is channel 1 = 0x55, sent LSB first: 1,0,1,0,1,0,1,0.
	ch1 := levels[2+10 : 2+20]
	assert.False(t, ch1[0], "start bit is low")
	want := []bool{true, false, true, false, true, false, true, false}
	assert.Equal(t, want, ch1[1:9])
	assert.True(t, ch1[9], "stop bits are high")

	assert.True(t, levels[len(levels)-1], "line idles high after the frame")
}

func TestNoLineDriverDegradesToNoOp(t *testing.T) {
	tx := newTestTransmitter(nil)

	// Must not panic, and state must still update.
	tx.WriteChannel(3, 42)
	tx.ResetAll()
	tx.WriteChannel(3, 99)

	assert.Equal(t, 99, tx.Channel(3))
	assert.Equal(t, int64(3), tx.FramesSent())
}

func TestRefreshPacing(t *testing.T) {
	tx := NewTransmitter(&recordingLine{}, nil, Timings{})

	start := time.Now()
	for i := 0; i < 3; i++ {
		tx.WriteChannel(1, i)
	}
	elapsed := time.Since(start)

	// Burst of 1, then 44 frames/s: two paced waits of ~22ms each.
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
}

func TestEnableSignal(t *testing.T) {
	enable := &recordingLine{}
	tx := NewTransmitter(&recordingLine{}, enable, Timings{})
	tx.limiter = rate.NewLimiter(rate.Inf, 1)

	tx.WriteChannel(1, 255)
	require.NotEmpty(t, enable.levels)
	assert.True(t, enable.levels[len(enable.levels)-1], "enable stays high while running")

	tx.ReleaseSignal()
	assert.False(t, enable.levels[len(enable.levels)-1])
}
