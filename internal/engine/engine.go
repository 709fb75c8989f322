// Package engine runs one compiled sequence at a time against the lights and
// the audio backend.
package engine

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"dmx-sequenzer/internal/audio"
	"dmx-sequenzer/internal/core"
	"dmx-sequenzer/internal/sequence"
)

// ErrAlreadyRunning is returned by Start while another sequence is active.
var ErrAlreadyRunning = errors.New("a sequence is already running")

// Lights is the transmitter surface the engine drives.
type Lights interface {
	WriteChannel(address, value int)
	ResetAll()
	ReleaseSignal()
}

// Sound is the audio backend surface the engine drives.
type Sound interface {
	Play(path string, volume float64) error
	Stop()
	IsPlaying() bool
}

// Status is a consistent snapshot of the engine, safe under concurrent reads.
type Status struct {
	Running      bool         `json:"running"`
	Mode         core.RunMode `json:"mode,omitempty"`
	SequenceName string       `json:"sequence,omitempty"`
	LoopCount    int          `json:"loop_count"`
	Since        time.Time    `json:"since"`
	SoundPlaying bool         `json:"sound_playing"`
}

// Engine interprets sequence commands on a single dedicated worker. The
// worker is the sole mutator of the lights, the audio backend and the loop
// counter; everyone else only reads snapshots or signals stop.
type Engine struct {
	mu      sync.Mutex
	running atomic.Bool
	done    chan struct{}

	lights    Lights
	sound     Sound
	state     *core.ExecutionState
	actionLog *core.ActionLog
	bus       *core.EventBus
	soundsDir string

	pollInterval time.Duration
	joinTimeout  time.Duration
	log          *logrus.Entry
}

// New builds an idle engine.
func New(lights Lights, sound Sound, actionLog *core.ActionLog, bus *core.EventBus, soundsDir string) *Engine {
	return &Engine{
		lights:       lights,
		sound:        sound,
		state:        core.NewExecutionState(),
		actionLog:    actionLog,
		bus:          bus,
		soundsDir:    soundsDir,
		pollInterval: 100 * time.Millisecond,
		joinTimeout:  2 * time.Second,
		log:          logrus.WithField("component", "engine"),
	}
}

// Start spawns the worker for the given sequence and returns immediately.
// Fails fast with ErrAlreadyRunning instead of queueing.
func (e *Engine) Start(seq *sequence.Sequence, mode core.RunMode) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running.Load() {
		return ErrAlreadyRunning
	}

	e.running.Store(true)
	e.done = make(chan struct{})
	e.state.SetRunning(seq.Name, mode)

	e.log.Infof("Starting sequence '%s' (%s, %d commands)", seq.Name, mode, len(seq.Commands))
	e.actionLog.Append(core.LogSequence, fmt.Sprintf("sequence '%s' started", seq.Name),
		map[string]interface{}{"mode": string(mode), "commands": len(seq.Commands)})
	e.publishStatus()

	go e.run(seq, mode, e.done)
	return nil
}

// Stop requests cancellation and waits for the worker to exit, bounded by the
// join timeout. The stop takes effect at the next checkpoint (pass boundary
// or sound-wait poll), not instantly. No-op when already idle.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if !e.running.Load() && e.done == nil {
		e.mu.Unlock()
		return nil
	}
	e.running.Store(false)
	done := e.done
	e.mu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-time.After(e.joinTimeout):
			// Best effort: a long in-flight sleep may outlive the join
			// timeout. The worker still tears down on its own when it wakes.
			e.log.Warn("Timeout waiting for sequence worker to stop")
		}
	}
	return nil
}

// Status returns a snapshot of the current execution state.
func (e *Engine) Status() Status {
	s := e.state.Clone()
	return Status{
		Running:      s.Running,
		Mode:         s.Mode,
		SequenceName: s.SequenceName,
		LoopCount:    s.LoopCount,
		Since:        s.Since,
		SoundPlaying: e.sound.IsPlaying(),
	}
}

// run is the worker. Loop mode consults the stop flag once per completed
// pass; a pass always runs to its end.
func (e *Engine) run(seq *sequence.Sequence, mode core.RunMode, done chan struct{}) {
	loops := 0
	for {
		e.runPass(seq)
		if mode != core.RunLoop {
			break
		}
		loops = e.state.IncrementLoop()
		e.actionLog.Append(core.LogLoop, fmt.Sprintf("loop %d completed", loops),
			map[string]interface{}{"sequence": seq.Name, "loops": loops})
		if !e.running.Load() {
			break
		}
	}
	e.teardown(seq.Name, loops, done)
	close(done)
}

// runPass executes the full command list once, in program order.
func (e *Engine) runPass(seq *sequence.Sequence) {
	for _, cmd := range seq.Commands {
		switch cmd.Op {
		case sequence.OpWriteDMX:
			e.lights.WriteChannel(cmd.Address, cmd.Value)
			e.actionLog.Append(core.LogDMX, fmt.Sprintf("channel %d = %d", cmd.Address, cmd.Value),
				map[string]interface{}{"address": cmd.Address, "value": cmd.Value})

		case sequence.OpSleep:
			if cmd.Seconds <= 0 {
				continue
			}
			e.actionLog.Append(core.LogSleep, fmt.Sprintf("sleeping %gs", cmd.Seconds),
				map[string]interface{}{"seconds": cmd.Seconds})
			// Sleeps run to completion even when a stop request arrives;
			// cancellation is bounded, not preemptive.
			time.Sleep(time.Duration(cmd.Seconds * float64(time.Second)))

		case sequence.OpPlaySound:
			e.playSound(cmd)

		case sequence.OpWaitForSound:
			e.waitForSound()

		case sequence.OpStopSound:
			e.sound.Stop()
			e.actionLog.Append(core.LogSound, "sound stopped", nil)
		}
	}
}

// playSound resolves the file against the sound library and starts async
// playback. A missing file or backend failure is logged and skipped; the
// sequence keeps going.
func (e *Engine) playSound(cmd sequence.Command) {
	path, err := audio.Resolve(e.soundsDir, cmd.File)
	if err == nil {
		if _, statErr := os.Stat(path); statErr != nil {
			err = fmt.Errorf("sound file not found: %s", cmd.File)
		}
	}
	if err == nil {
		err = e.sound.Play(path, cmd.Volume)
	}
	if err != nil {
		e.log.Warnf("play_sound('%s') failed: %v", cmd.File, err)
		e.actionLog.Append(core.LogError, err.Error(), map[string]interface{}{"file": cmd.File})
		return
	}
	e.actionLog.Append(core.LogSound, fmt.Sprintf("playing %s", cmd.File),
		map[string]interface{}{"file": cmd.File, "volume": cmd.Volume})
}

// waitForSound polls the backend until playback ends. A stop request observed
// at a poll force-stops playback and returns within one poll interval.
func (e *Engine) waitForSound() {
	e.actionLog.Append(core.LogSound, "waiting for sound to finish", nil)
	for e.sound.IsPlaying() {
		if !e.running.Load() {
			e.sound.Stop()
			return
		}
		time.Sleep(e.pollInterval)
	}
}

// teardown releases every owned resource independently so one failing step
// never blocks the others, then transitions to Idle. Always runs, on natural
// completion, stop and error alike.
func (e *Engine) teardown(name string, loops int, done chan struct{}) {
	e.sound.Stop()
	e.lights.ResetAll()
	e.lights.ReleaseSignal()

	e.actionLog.Append(core.LogSystem, fmt.Sprintf("sequence '%s' finished", name),
		map[string]interface{}{"sequence": name, "loops": loops})
	e.log.Infof("Sequence '%s' finished after %d loops", name, loops)

	e.state.SetIdle()
	e.running.Store(false)
	e.publishStatus()

	// A new Start may have installed its own channel once the running flag
	// dropped; only clear the one belonging to this worker.
	e.mu.Lock()
	if e.done == done {
		e.done = nil
	}
	e.mu.Unlock()
}

func (e *Engine) publishStatus() {
	if e.bus != nil {
		e.bus.Publish(core.Event{Type: core.StatusChangedEvent, Payload: e.Status()})
	}
}
