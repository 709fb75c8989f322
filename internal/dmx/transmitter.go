package dmx

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Line is the single data line the transmitter drives. High is the DMX idle
// state. A nil Line degrades the transmitter to a logged no-op.
type Line interface {
	Set(high bool)
}

// Timings holds the DMX512 wire timing parameters.
type Timings struct {
	Break          time.Duration // line low before each frame
	MarkAfterBreak time.Duration // line high between break and data
	Bit            time.Duration // one bit period (4µs at 250kbaud)
}

// DefaultTimings returns the standard DMX512 timing set.
func DefaultTimings() Timings {
	return Timings{
		Break:          100 * time.Microsecond,
		MarkAfterBreak: 12 * time.Microsecond,
		Bit:            4 * time.Microsecond,
	}
}

// MaxRefreshRate caps full-frame retransmits. A full 513-byte frame takes
// about 5.8ms on the wire, so 44 frames per second is the protocol maximum.
const MaxRefreshRate = 44

// Transmitter serializes the in-memory Frame onto a GPIO line following
// DMX512 timing. The engine worker is the only permitted transmit caller;
// the internal mutex guards the frame against concurrent readers only.
type Transmitter struct {
	mu      sync.Mutex
	frame   Frame
	line    Line
	enable  Line
	timings Timings
	limiter *rate.Limiter
	sent    int64
	delay   func(time.Duration)
	log     *logrus.Entry
}

// NewTransmitter builds a transmitter over the given data and enable lines.
// Either line may be nil, in which case transmits become logged no-ops while
// frame state keeps updating.
func NewTransmitter(line, enable Line, timings Timings) *Transmitter {
	t := &Transmitter{
		line:    line,
		enable:  enable,
		timings: timings,
		limiter: rate.NewLimiter(rate.Limit(MaxRefreshRate), 1),
		delay:   spinWait,
		log:     logrus.WithField("component", "dmx"),
	}
	if line == nil {
		t.log.Warn("No DMX line driver available, transmits will be logged only")
	}
	if line != nil {
		line.Set(true) // idle state
	}
	return t
}

// WriteChannel clamps the address and value, updates the persistent frame and
// retransmits the entire frame. Receivers expect periodic full-frame
// refreshes, so a single-channel update still re-sends all 512 channels.
func (t *Transmitter) WriteChannel(address, value int) {
	t.mu.Lock()
	address, value = t.frame.Set(address, value)
	frame := t.frame
	t.mu.Unlock()

	t.log.Debugf("Channel %d = %d", address, value)
	t.transmit(frame)
}

// ResetAll zeroes all channels and transmits the blackout frame once.
func (t *Transmitter) ResetAll() {
	t.mu.Lock()
	t.frame.Reset()
	frame := t.frame
	t.mu.Unlock()

	t.log.Debug("All channels reset")
	t.transmit(frame)
}

// Channel returns the current stored value for a channel.
func (t *Transmitter) Channel(address int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frame.Get(address)
}

// FramesSent returns how many frames have been put on the wire (or would
// have been, when no line driver is present).
func (t *Transmitter) FramesSent() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sent
}

// ReleaseSignal lowers the driver-enable line. Raised again by the next
// transmit.
func (t *Transmitter) ReleaseSignal() {
	if t.enable != nil {
		t.enable.Set(false)
	}
}

// Close drops the line back to idle and lowers the enable signal. Each
// release step runs independently so one failure never blocks the others.
func (t *Transmitter) Close() {
	if t.line != nil {
		t.line.Set(true)
	}
	t.ReleaseSignal()
}

// transmit puts one complete frame on the wire: break, mark-after-break,
// then 513 bytes of start bit + 8 data bits LSB-first + 2 stop bits.
func (t *Transmitter) transmit(frame Frame) {
	// Pace bursts of channel writes down to the DMX refresh maximum.
	_ = t.limiter.Wait(context.Background())

	t.mu.Lock()
	t.sent++
	t.mu.Unlock()

	if t.line == nil {
		t.log.Debug("Transmit skipped, no line driver")
		return
	}

	if t.enable != nil {
		t.enable.Set(true)
	}

	t.line.Set(false)
	t.delay(t.timings.Break)
	t.line.Set(true)
	t.delay(t.timings.MarkAfterBreak)

	for _, b := range frame {
		t.sendByte(b)
	}

	t.line.Set(true) // idle between frames
}

func (t *Transmitter) sendByte(b byte) {
	bit := t.timings.Bit

	// Start bit, always low.
	t.line.Set(false)
	t.delay(bit)

	// Data bits, least significant first.
	for i := 0; i < 8; i++ {
		t.line.Set((b>>i)&1 == 1)
		t.delay(bit)
	}

	// Two stop bits, high.
	t.line.Set(true)
	t.delay(2 * bit)
}

// spinWait busy-waits for d. time.Sleep cannot hold a 4µs bit period, the
// scheduler wakes far too coarsely for that.
func spinWait(d time.Duration) {
	if d <= 0 {
		return
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
	}
}
