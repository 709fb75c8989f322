// Package server exposes the sequencer over HTTP and WebSocket: a JSON API
// mirroring the editor UI, plus a live stream of status changes and action
// log entries.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"dmx-sequenzer/internal/audio"
	"dmx-sequenzer/internal/core"
	"dmx-sequenzer/internal/engine"
	"dmx-sequenzer/internal/scheduler"
	"dmx-sequenzer/internal/sequence"
)

// Controller is the engine surface the server drives.
type Controller interface {
	Start(seq *sequence.Sequence, mode core.RunMode) error
	Stop() error
	Status() engine.Status
}

// SequenceStore is the compiler/persistence surface the server drives.
type SequenceStore interface {
	Generate(name, text string) (*sequence.Sequence, sequence.Result, error)
	Load(name string) (*sequence.Sequence, error)
	Delete(name string) error
	List() ([]sequence.Info, error)
}

// Server manages the HTTP and WebSocket services.
type Server struct {
	Hub *Hub

	ctrl           Controller
	store          SequenceStore
	actionLog      *core.ActionLog
	bus            *core.EventBus
	commandChannel core.CommandChannel
	getSchedules   func() map[cron.EntryID]scheduler.ScheduleEntry

	soundsDir      string
	staticFilesDir string
	allowedOrigins []string
	upgrader       websocket.Upgrader
	httpServer     *http.Server
	log            *logrus.Entry
}

// NewServer creates a new server instance.
func NewServer(ctrl Controller, store SequenceStore, actionLog *core.ActionLog, bus *core.EventBus,
	cmdChan core.CommandChannel, getSchedules func() map[cron.EntryID]scheduler.ScheduleEntry,
	port, soundsDir, staticFilesDir string, allowedOrigins []string) *Server {

	hub := NewHub()
	go hub.Run()

	s := &Server{
		Hub:            hub,
		ctrl:           ctrl,
		store:          store,
		actionLog:      actionLog,
		bus:            bus,
		commandChannel: cmdChan,
		getSchedules:   getSchedules,
		soundsDir:      soundsDir,
		staticFilesDir: staticFilesDir,
		allowedOrigins: allowedOrigins,
		log:            logrus.WithField("component", "server"),
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(s.allowedOrigins) == 0 {
				s.log.Warn("WebSocket CheckOrigin is disabled")
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range s.allowedOrigins {
				if strings.EqualFold(origin, allowed) {
					return true
				}
			}
			s.log.Warnf("WebSocket connection blocked: Origin '%s' not in allowed list", origin)
			return false
		},
	}

	s.httpServer = &http.Server{Addr: ":" + port, Handler: s.Routes()}

	go s.forwardEvents()

	return s
}

// Routes builds the HTTP mux.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(s.staticFilesDir)))
	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("POST /api/validate", s.handleValidate)
	mux.HandleFunc("POST /api/save", s.handleSave)
	mux.HandleFunc("GET /api/sequences", s.handleListSequences)
	mux.HandleFunc("GET /api/sequences/{name}", s.handleGetSequence)
	mux.HandleFunc("DELETE /api/sequences/{name}", s.handleDeleteSequence)
	mux.HandleFunc("GET /api/control/start/{name}", s.handleStart(core.RunLoop))
	mux.HandleFunc("GET /api/control/run/{name}", s.handleStart(core.RunOnce))
	mux.HandleFunc("GET /api/control/stop", s.handleStop)
	mux.HandleFunc("GET /api/control/status", s.handleStatus)
	mux.HandleFunc("GET /api/sounds", s.handleListSounds)
	mux.HandleFunc("GET /api/examples", s.handleExamples)
	mux.HandleFunc("GET /api/log", s.handleLog)
	mux.HandleFunc("POST /api/log/clear", s.handleLogClear)
	mux.HandleFunc("GET /api/schedules", s.handleSchedules)
	return mux
}

func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// forwardEvents relays bus events to connected WebSocket clients.
func (s *Server) forwardEvents() {
	sub := s.bus.Subscribe(core.StatusChangedEvent, core.LogAppendedEvent, core.SequenceListEvent, core.ScheduleListEvent)
	for event := range sub {
		switch event.Type {
		case core.StatusChangedEvent:
			s.Hub.Broadcast(NewMessage("status", event.Payload))
		case core.LogAppendedEvent:
			s.Hub.Broadcast(NewMessage("log_entry", event.Payload))
		case core.SequenceListEvent:
			s.Hub.Broadcast(NewMessage("sequence_list", event.Payload))
		case core.ScheduleListEvent:
			s.Hub.Broadcast(NewMessage("schedule_list", event.Payload))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sequence string `json:"sequence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result := sequence.Validate(req.Sequence)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    result.Valid(),
		"errors":   issueStrings(result.Errors),
		"warnings": issueStrings(result.Warnings),
	})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Sequence string `json:"sequence"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "sequence name is required")
		return
	}

	seq, result, err := s.store.Generate(req.Name, req.Sequence)
	if errors.Is(err, sequence.ErrInvalid) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"success":  false,
			"errors":   issueStrings(result.Errors),
			"warnings": issueStrings(result.Warnings),
		})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.bus.Publish(core.Event{Type: core.SequenceListEvent, Payload: nil})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"warnings": issueStrings(result.Warnings),
		"message":  "Sequence \"" + seq.Name + "\" saved successfully",
	})
}

func (s *Server) handleListSequences(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "sequences": infos})
}

func (s *Server) handleGetSequence(w http.ResponseWriter, r *http.Request) {
	seq, err := s.store.Load(r.PathValue("name"))
	if errors.Is(err, sequence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Sequence not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"name":    seq.Name,
		"code":    seq.Source,
	})
}

func (s *Server) handleDeleteSequence(w http.ResponseWriter, r *http.Request) {
	// A sequence that is currently playing gets stopped before deletion.
	if s.ctrl.Status().Running {
		_ = s.ctrl.Stop()
	}

	name := r.PathValue("name")
	err := s.store.Delete(name)
	if errors.Is(err, sequence.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Sequence not found or could not be deleted")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.bus.Publish(core.Event{Type: core.SequenceListEvent, Payload: nil})
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Sequence \"" + name + "\" deleted",
	})
}

func (s *Server) handleStart(mode core.RunMode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		seq, err := s.store.Load(name)
		if errors.Is(err, sequence.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Sequence file not found")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		if err := s.ctrl.Start(seq, mode); err != nil {
			if errors.Is(err, engine.ErrAlreadyRunning) {
				writeError(w, http.StatusConflict, "Sequence is already running")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"message": "Started sequence \"" + name + "\" (" + string(mode) + ")",
		})
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Stop(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Sequence stopped"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "status": s.ctrl.Status()})
}

func (s *Server) handleListSounds(w http.ResponseWriter, r *http.Request) {
	sounds, err := audio.ListSounds(s.soundsDir)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "sounds": sounds})
}

func (s *Server) handleExamples(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "examples": sequence.Examples()})
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	n := core.ActionLogCapacity
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "n must be a non-negative integer")
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "entries": s.actionLog.Recent(n)})
}

func (s *Server) handleLogClear(w http.ResponseWriter, r *http.Request) {
	s.actionLog.Clear()
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "Action log cleared"})
}

func (s *Server) handleSchedules(w http.ResponseWriter, r *http.Request) {
	if s.getSchedules == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "schedules": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "schedules": s.getSchedules()})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// Initial snapshot so new clients render without polling.
	_ = conn.WriteJSON(NewMessage("status", s.ctrl.Status()))
	if infos, err := s.store.List(); err == nil {
		_ = conn.WriteJSON(NewMessage("sequence_list", infos))
	}
	if s.getSchedules != nil {
		_ = conn.WriteJSON(NewMessage("schedule_list", s.getSchedules()))
	}
	_ = conn.WriteJSON(NewMessage("action_log", s.actionLog.Recent(core.ActionLogCapacity)))

	s.Hub.register <- conn
	defer func() {
		s.Hub.unregister <- conn
	}()

	for {
		_, msgBytes, err := conn.ReadMessage()
		if err != nil {
			break
		}
		s.dispatch(msgBytes)
	}
}

// dispatch maps an incoming WebSocket command onto the agent command channel.
func (s *Server) dispatch(raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.log.Warnf("Error unmarshalling command: %v", err)
		return
	}

	types := map[string]core.CommandType{
		"startSequence":  core.CmdStartSequence,
		"runSequence":    core.CmdRunSequence,
		"stopSequence":   core.CmdStopSequence,
		"deleteSequence": core.CmdDeleteSequence,
		"clearLog":       core.CmdClearLog,
		"addSchedule":    core.CmdAddSchedule,
		"removeSchedule": core.CmdRemoveSchedule,
	}
	t, ok := types[cmd.Type]
	if !ok {
		s.log.Warnf("Unknown command type: %s", cmd.Type)
		return
	}

	select {
	case s.commandChannel <- core.Command{Type: t, Payload: cmd.Payload}:
	default:
		s.log.Warn("Command channel full, dropping command")
	}
}

func issueStrings(issues []sequence.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, issue := range issues {
		out = append(out, issue.String())
	}
	return out
}
