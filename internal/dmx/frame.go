// Package dmx emits DMX512 frames over a bit-banged GPIO line.
package dmx

// FrameSize is the start code plus 512 channel slots.
const FrameSize = 513

// MinAddress and MaxAddress bound the valid DMX channel range.
const (
	MinAddress = 1
	MaxAddress = 512
)

// Frame is the persistent 513-byte channel state. Index 0 is the start code
// (always 0), indices 1..512 are channel levels. Values persist across
// transmits until explicitly reset.
type Frame [FrameSize]byte

// Set stores a channel value, clamping both address and value into range.
func (f *Frame) Set(address, value int) (int, int) {
	if address < MinAddress {
		address = MinAddress
	}
	if address > MaxAddress {
		address = MaxAddress
	}
	if value < 0 {
		value = 0
	}
	if value > 255 {
		value = 255
	}
	f[address] = byte(value)
	return address, value
}

// Get returns the stored value for a channel, or 0 for an out-of-range address.
func (f *Frame) Get(address int) int {
	if address < MinAddress || address > MaxAddress {
		return 0
	}
	return int(f[address])
}

// Reset zeroes all 512 channels. The start code stays 0.
func (f *Frame) Reset() {
	*f = Frame{}
}
