// Package agent wires every component together and owns the central command
// loop.
package agent

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"dmx-sequenzer/internal/audio"
	"dmx-sequenzer/internal/config"
	"dmx-sequenzer/internal/core"
	"dmx-sequenzer/internal/dmx"
	"dmx-sequenzer/internal/engine"
	"dmx-sequenzer/internal/mqtt"
	"dmx-sequenzer/internal/scheduler"
	"dmx-sequenzer/internal/sequence"
	"dmx-sequenzer/internal/server"
)

type Agent struct {
	ctx    context.Context
	cancel context.CancelFunc
	config *config.Config
	log    *logrus.Entry

	bus            *core.EventBus
	commandChannel core.CommandChannel
	actionLog      *core.ActionLog

	transmitter *dmx.Transmitter
	player      *audio.Player
	store       *sequence.Store
	engine      *engine.Engine
	scheduler   *scheduler.Scheduler
	server      *server.Server
	mqttClient  *mqtt.Client
}

func NewAgent(cfg *config.Config) (*Agent, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		ctx:            ctx,
		cancel:         cancel,
		config:         cfg,
		log:            logrus.WithField("component", "agent"),
		bus:            core.NewEventBus(),
		commandChannel: make(core.CommandChannel, 20),
	}
	a.actionLog = core.NewActionLog(a.bus)

	a.transmitter = dmx.NewTransmitter(openLine(cfg.DMX.DataPin), openLine(cfg.DMX.EnablePin), dmx.Timings{
		Break:          mustDuration(cfg.DMX.Break),
		MarkAfterBreak: mustDuration(cfg.DMX.MarkAfterBreak),
		Bit:            mustDuration(cfg.DMX.Bit),
	})

	a.player = audio.NewPlayer()

	store, err := sequence.NewStore(cfg.SequencesDir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open sequence store: %w", err)
	}
	a.store = store

	a.engine = engine.New(a.transmitter, a.player, a.actionLog, a.bus, cfg.SoundsDir)

	a.scheduler = scheduler.NewScheduler(a.commandChannel, cfg.SchedulesFile)

	a.server = server.NewServer(
		a.engine,
		a.store,
		a.actionLog,
		a.bus,
		a.commandChannel,
		a.scheduler.GetAll,
		cfg.Server.Port,
		cfg.SoundsDir,
		cfg.Server.WebFilesDir,
		cfg.Server.AllowedOrigins,
	)

	a.mqttClient = mqtt.NewClient(cfg, a.bus, a.commandChannel)

	return a, nil
}

// Engine exposes the execution engine for CLI-mode callers.
func (a *Agent) Engine() *engine.Engine { return a.engine }

// Store exposes the sequence store for CLI-mode callers.
func (a *Agent) Store() *sequence.Store { return a.store }

// Transmitter exposes the DMX transmitter for CLI-mode callers.
func (a *Agent) Transmitter() *dmx.Transmitter { return a.transmitter }

// Run starts the agent orchestration loop and blocks until Shutdown.
func (a *Agent) Run() {
	if a.mqttClient != nil {
		go func() {
			if err := a.mqttClient.Connect(); err != nil {
				a.log.Errorf("MQTT setup error: %v", err)
			}
		}()
	}

	a.scheduler.Start()

	a.log.Infof("Web interface listening on http://localhost:%s", a.config.Server.Port)
	go func() {
		if err := a.server.ListenAndServe(); err != nil {
			a.log.Errorf("Server error: %v", err)
		}
	}()

	a.actionLog.Append(core.LogSystem, "sequencer started", nil)

	a.log.Info("Agent orchestrator ready")
	for {
		select {
		case <-a.ctx.Done():
			a.log.Info("Agent orchestrator shutting down...")
			return
		case cmd := <-a.commandChannel:
			a.handleCommand(cmd)
		}
	}
}

func (a *Agent) handleCommand(cmd core.Command) {
	a.log.Debugf("Handling command: %s with payload: %v", cmd.Type, cmd.Payload)

	switch cmd.Type {
	case core.CmdStartSequence:
		a.startSequence(cmd, core.RunLoop)

	case core.CmdRunSequence:
		a.startSequence(cmd, core.RunOnce)

	case core.CmdStopSequence:
		if err := a.engine.Stop(); err != nil {
			a.log.Errorf("Error stopping sequence: %v", err)
		}

	case core.CmdDeleteSequence:
		name, ok := cmd.Payload["name"].(string)
		if !ok {
			return
		}
		if a.engine.Status().Running {
			_ = a.engine.Stop()
		}
		if err := a.store.Delete(name); err != nil {
			a.log.Errorf("Error deleting sequence '%s': %v", name, err)
			return
		}
		a.bus.Publish(core.Event{Type: core.SequenceListEvent, Payload: nil})

	case core.CmdClearLog:
		a.actionLog.Clear()

	case core.CmdAddSchedule:
		spec, _ := cmd.Payload["spec"].(string)
		command, _ := cmd.Payload["command"].(string)
		if spec == "" || command == "" {
			return
		}
		a.scheduler.Add(spec, command)
		a.bus.Publish(core.Event{Type: core.ScheduleListEvent, Payload: a.scheduler.GetAll()})

	case core.CmdRemoveSchedule:
		id, ok := payloadInt(cmd.Payload, "id")
		if !ok {
			return
		}
		a.scheduler.Remove(id)
		a.bus.Publish(core.Event{Type: core.ScheduleListEvent, Payload: a.scheduler.GetAll()})

	default:
		a.log.Warnf("Unknown command type: %s", cmd.Type)
	}
}

func (a *Agent) startSequence(cmd core.Command, mode core.RunMode) {
	name, ok := cmd.Payload["name"].(string)
	if !ok || name == "" {
		return
	}
	seq, err := a.store.Load(name)
	if err != nil {
		a.log.Errorf("Cannot start '%s': %v", name, err)
		a.actionLog.Append(core.LogError, fmt.Sprintf("cannot start '%s': %v", name, err), nil)
		return
	}
	if err := a.engine.Start(seq, mode); err != nil {
		a.log.Warnf("Cannot start '%s': %v", name, err)
	}
}

func (a *Agent) Shutdown() {
	a.scheduler.Stop()
	_ = a.server.Shutdown(context.Background())
	a.mqttClient.Disconnect()
	_ = a.engine.Stop()
	a.transmitter.Close()
	a.player.Close()
	a.cancel()
}

// openLine resolves a GPIO pin, degrading to a nil line (logged no-op
// transmits) when the hardware is absent.
func openLine(pin string) dmx.Line {
	line, err := dmx.OpenLine(pin)
	if err != nil {
		logrus.WithField("component", "agent").Warnf("GPIO unavailable (%v), DMX output disabled", err)
		return nil
	}
	return line
}

func mustDuration(s string) (d time.Duration) {
	d, _ = time.ParseDuration(s) // validated by config.Load
	return d
}

// payloadInt reads an integer payload field that may arrive as JSON float or
// string.
func payloadInt(payload map[string]interface{}, key string) (int, bool) {
	switch v := payload[key].(type) {
	case float64:
		return int(v), true
	case string:
		id, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return id, true
	}
	return 0, false
}
