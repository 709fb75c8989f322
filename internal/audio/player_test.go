package audio

import (
	"sync"
	"testing"
	"time"

	"github.com/faiface/beep/speaker"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// stubStream stands in for a decoded sound stream.
type stubStream struct {
	closed bool
}

func (s *stubStream) Stream(samples [][2]float64) (int, bool) { return 0, false }
func (s *stubStream) Err() error                              { return nil }
func (s *stubStream) Len() int                                { return 0 }
func (s *stubStream) Position() int                           { return 0 }
func (s *stubStream) Seek(p int) error                        { return nil }
func (s *stubStream) Close() error                            { s.closed = true; return nil }

func newStubPlayer(stream *stubStream) *Player {
	return &Player{
		available: true,
		playing:   true,
		current:   stream,
		log:       logrus.WithField("component", "audio"),
	}
}

// The speaker runs completion callbacks with its package lock held. A Stop
// racing such a callback must not wedge: both sides have to complete even
// when the stream drains at the exact moment playback is being stopped.
func TestStopCompletesWhileStreamDrains(t *testing.T) {
	stream := &stubStream{}
	p := newStubPlayer(stream)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		speaker.Lock()
		p.finished(stream)
		speaker.Unlock()
	}()
	go func() {
		defer wg.Done()
		p.Stop()
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop and stream completion blocked each other")
	}

	assert.False(t, p.IsPlaying())
	assert.True(t, stream.closed)
}

func TestFinishedIgnoresReplacedStream(t *testing.T) {
	current := &stubStream{}
	p := newStubPlayer(current)

	stale := &stubStream{}
	p.finished(stale)

	assert.True(t, p.IsPlaying(), "a drained stale stream must not stop the current one")
	assert.False(t, current.closed)

	p.finished(current)
	assert.False(t, p.IsPlaying())
	assert.True(t, current.closed)
}

func TestStopTwiceClosesOnce(t *testing.T) {
	stream := &stubStream{}
	p := newStubPlayer(stream)

	p.Stop()
	assert.True(t, stream.closed)
	assert.False(t, p.IsPlaying())

	stream.closed = false
	p.Stop()
	assert.False(t, stream.closed, "second stop has nothing to close")
}
