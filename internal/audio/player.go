// Package audio plays sequence sound files through the beep speaker.
package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	"github.com/sirupsen/logrus"
)

// sampleRate is the fixed speaker rate; decoded streams are resampled to it
// so differently encoded files can share one mixer.
const sampleRate = beep.SampleRate(44100)

// Player wraps the process-wide beep speaker. A failed speaker init degrades
// every call to a logged no-op; playback failures are never fatal.
//
// Lock order: speaker calls are never made while holding p.mu. The speaker
// runs completion callbacks with its own lock held and finished takes p.mu,
// so holding p.mu across speaker.Clear or speaker.Play would deadlock the
// moment a stream drains concurrently.
type Player struct {
	mu        sync.Mutex
	available bool
	playing   bool
	current   beep.StreamSeekCloser
	log       *logrus.Entry
}

// NewPlayer initializes the speaker. On machines without an audio device the
// player still constructs, it just reports every file as unplayable.
func NewPlayer() *Player {
	p := &Player{log: logrus.WithField("component", "audio")}

	if err := speaker.Init(sampleRate, sampleRate.N(time.Second/10)); err != nil {
		p.log.Warnf("Audio backend unavailable: %v", err)
		return p
	}
	p.available = true
	return p
}

// Play starts asynchronous playback of the file at the given volume (0..1),
// replacing whatever is currently playing.
func (p *Player) Play(path string, volume float64) error {
	p.mu.Lock()
	available := p.available
	p.mu.Unlock()
	if !available {
		return fmt.Errorf("audio backend unavailable")
	}

	stream, format, err := decode(path)
	if err != nil {
		return err
	}

	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}

	p.Stop()

	var streamer beep.Streamer = beep.Resample(4, format.SampleRate, sampleRate, stream)
	streamer = &effects.Volume{
		Streamer: streamer,
		Base:     2,
		Volume:   volumeGain(volume),
		Silent:   volume == 0,
	}

	p.mu.Lock()
	p.current = stream
	p.playing = true
	p.mu.Unlock()

	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		p.finished(stream)
	})))

	p.log.Infof("Playing %s at volume %.2f", filepath.Base(path), volume)
	return nil
}

// Stop halts playback. No-op when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	if !p.available || !p.playing {
		p.mu.Unlock()
		return
	}
	stream := p.current
	p.current = nil
	p.playing = false
	p.mu.Unlock()

	// speaker.Clear drops streamers without running their callbacks, so the
	// stream is closed here.
	speaker.Clear()
	if stream != nil {
		_ = stream.Close()
	}
}

// IsPlaying reports whether a sound is currently audible.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close releases the current stream, best-effort.
func (p *Player) Close() {
	p.Stop()
}

// finished runs from the speaker goroutine, with the speaker lock held, when
// a stream drains naturally. It only touches p.mu, never the speaker, and a
// Stop or replacing Play that won the race makes it a no-op.
func (p *Player) finished(stream beep.StreamSeekCloser) {
	p.mu.Lock()
	if p.current != stream {
		p.mu.Unlock()
		return
	}
	p.current = nil
	p.playing = false
	p.mu.Unlock()

	_ = stream.Close()
}

// volumeGain converts a linear 0..1 volume into the exponent expected by
// effects.Volume (Base 2).
func volumeGain(volume float64) float64 {
	if volume <= 0 {
		return 0
	}
	return math.Log2(volume)
}

// decode opens and decodes a sound file by extension.
func decode(path string) (beep.StreamSeekCloser, beep.Format, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, beep.Format{}, err
	}

	var stream beep.StreamSeekCloser
	var format beep.Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		stream, format, err = mp3.Decode(file)
	case ".wav":
		stream, format, err = wav.Decode(file)
	case ".flac":
		stream, format, err = flac.Decode(file)
	case ".ogg":
		stream, format, err = vorbis.Decode(file)
	default:
		err = fmt.Errorf("unsupported audio format %q", filepath.Ext(path))
	}
	if err != nil {
		file.Close()
		return nil, beep.Format{}, err
	}
	return stream, format, nil
}
