package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmx-sequenzer/internal/core"
	"dmx-sequenzer/internal/engine"
	"dmx-sequenzer/internal/sequence"
)

type fakeController struct {
	status   engine.Status
	startErr error
	started  []string
	stops    int
}

func (f *fakeController) Start(seq *sequence.Sequence, mode core.RunMode) error {
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, seq.Name+":"+string(mode))
	return nil
}

func (f *fakeController) Stop() error {
	f.stops++
	return nil
}

func (f *fakeController) Status() engine.Status { return f.status }

type fakeStore struct {
	sequences map[string]*sequence.Sequence
}

func newFakeStore() *fakeStore {
	return &fakeStore{sequences: make(map[string]*sequence.Sequence)}
}

func (f *fakeStore) Generate(name, text string) (*sequence.Sequence, sequence.Result, error) {
	commands, result := sequence.Compile(text)
	if !result.Valid() {
		return nil, result, sequence.ErrInvalid
	}
	seq := &sequence.Sequence{Name: name, Source: text, Commands: commands}
	f.sequences[name] = seq
	return seq, result, nil
}

func (f *fakeStore) Load(name string) (*sequence.Sequence, error) {
	seq, ok := f.sequences[name]
	if !ok {
		return nil, sequence.ErrNotFound
	}
	return seq, nil
}

func (f *fakeStore) Delete(name string) error {
	if _, ok := f.sequences[name]; !ok {
		return sequence.ErrNotFound
	}
	delete(f.sequences, name)
	return nil
}

func (f *fakeStore) List() ([]sequence.Info, error) {
	var infos []sequence.Info
	for name := range f.sequences {
		infos = append(infos, sequence.Info{Name: name})
	}
	return infos, nil
}

func newTestServer(t *testing.T, ctrl *fakeController, store *fakeStore) *Server {
	t.Helper()
	bus := core.NewEventBus()
	return NewServer(ctrl, store, core.NewActionLog(bus), bus,
		make(core.CommandChannel, 10), nil,
		"0", t.TempDir(), t.TempDir(), nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	return rec, decoded
}

func TestValidateEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeController{}, newFakeStore())
	h := s.Routes()

	rec, body := doJSON(t, h, "POST", "/api/validate", `{"sequence": "write_dmx(1, 255)\nsleep(1)"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["valid"])

	rec, body = doJSON(t, h, "POST", "/api/validate", `{"sequence": "write_dmx(600, 0)"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["valid"])
	errs, _ := body["errors"].([]interface{})
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "DMX address must be between 1 and 512")
}

func TestSaveAndGetSequence(t *testing.T) {
	store := newFakeStore()
	s := newTestServer(t, &fakeController{}, store)
	h := s.Routes()

	rec, body := doJSON(t, h, "POST", "/api/save", `{"name": "opening", "sequence": "sleep(1)"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])

	rec, body = doJSON(t, h, "GET", "/api/sequences/opening", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "opening", body["name"])
	assert.Equal(t, "sleep(1)", body["code"])

	rec, _ = doJSON(t, h, "GET", "/api/sequences/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaveInvalidSequence(t *testing.T) {
	s := newTestServer(t, &fakeController{}, newFakeStore())
	rec, body := doJSON(t, s.Routes(), "POST", "/api/save", `{"name": "bad", "sequence": "write_dmx(1)"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["errors"])
}

func TestSaveRequiresName(t *testing.T) {
	s := newTestServer(t, &fakeController{}, newFakeStore())
	rec, _ := doJSON(t, s.Routes(), "POST", "/api/save", `{"name": "  ", "sequence": "sleep(1)"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStartConflictWhileRunning(t *testing.T) {
	ctrl := &fakeController{startErr: engine.ErrAlreadyRunning}
	store := newFakeStore()
	_, _, err := store.Generate("show", "sleep(1)")
	require.NoError(t, err)

	s := newTestServer(t, ctrl, store)
	rec, body := doJSON(t, s.Routes(), "GET", "/api/control/start/show", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestStartAndRunModes(t *testing.T) {
	ctrl := &fakeController{}
	store := newFakeStore()
	_, _, err := store.Generate("show", "sleep(1)")
	require.NoError(t, err)

	s := newTestServer(t, ctrl, store)
	h := s.Routes()

	rec, _ := doJSON(t, h, "GET", "/api/control/start/show", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = doJSON(t, h, "GET", "/api/control/run/show", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"show:loop", "show:once"}, ctrl.started)

	rec, _ = doJSON(t, h, "GET", "/api/control/start/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStopEndpoint(t *testing.T) {
	ctrl := &fakeController{}
	s := newTestServer(t, ctrl, newFakeStore())
	rec, _ := doJSON(t, s.Routes(), "GET", "/api/control/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.stops)
}

func TestDeleteStopsRunningSequence(t *testing.T) {
	ctrl := &fakeController{status: engine.Status{Running: true, SequenceName: "show"}}
	store := newFakeStore()
	_, _, err := store.Generate("show", "sleep(1)")
	require.NoError(t, err)

	s := newTestServer(t, ctrl, store)
	rec, _ := doJSON(t, s.Routes(), "DELETE", "/api/sequences/show", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.stops)
	_, loadErr := store.Load("show")
	assert.ErrorIs(t, loadErr, sequence.ErrNotFound)
}

func TestStatusEndpoint(t *testing.T) {
	ctrl := &fakeController{status: engine.Status{Running: true, Mode: core.RunLoop, SequenceName: "show", LoopCount: 3}}
	s := newTestServer(t, ctrl, newFakeStore())

	rec, body := doJSON(t, s.Routes(), "GET", "/api/control/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	status, ok := body["status"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, true, status["running"])
	assert.Equal(t, "show", status["sequence"])
	assert.EqualValues(t, 3, status["loop_count"])
}

func TestLogEndpoints(t *testing.T) {
	s := newTestServer(t, &fakeController{}, newFakeStore())
	h := s.Routes()

	for i := 0; i < 5; i++ {
		s.actionLog.Append(core.LogDMX, "channel write", nil)
	}

	rec, body := doJSON(t, h, "GET", "/api/log?n=3", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	entries, _ := body["entries"].([]interface{})
	assert.Len(t, entries, 3)

	rec, _ = doJSON(t, h, "GET", "/api/log?n=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = doJSON(t, h, "GET", "/api/log?n=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, h, "POST", "/api/log/clear", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.actionLog.Len(), "clear leaves the system marker entry")
}

func TestExamplesEndpoint(t *testing.T) {
	s := newTestServer(t, &fakeController{}, newFakeStore())
	rec, body := doJSON(t, s.Routes(), "GET", "/api/examples", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	examples, ok := body["examples"].(map[string]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, examples)
}

func TestDispatchUnknownCommandDropped(t *testing.T) {
	s := newTestServer(t, &fakeController{}, newFakeStore())

	s.dispatch([]byte(`{"type": "startSequence", "payload": {"name": "show"}}`))
	s.dispatch([]byte(`{"type": "bogus"}`))
	s.dispatch([]byte(`not json`))

	require.Len(t, s.commandChannel, 1)
	cmd := <-s.commandChannel
	assert.Equal(t, core.CmdStartSequence, cmd.Type)
	assert.Equal(t, "show", cmd.Payload["name"])
}
