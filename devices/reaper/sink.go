package reaper

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/hypebeast/go-osc/osc"

	"github.com/jdginn/controlcore/devices"
	"github.com/jdginn/controlcore/logging"
	"github.com/jdginn/controlcore/target"
	"github.com/jdginn/controlcore/value"
)

var sinkLog = logging.Get(logging.APP)

// Sink implements target.HostSink against a running REAPER instance over
// REAPER's built-in OSC surface. Track/FX addressing follows REAPER's own OSC
// convention from its default OSC pattern config (1-indexed tracks,
// "/track/@/volume", "/track/@/fx/@/fxparam/@/value", "/transport/...").
//
// REAPER's OSC surface is fire-and-forget for sets but echoes current state
// back on its own feedback addresses, so Sink binds those addresses through
// its Dispatcher (which captures "@" wildcard segments, appended to the
// message's Arguments by Dispatcher.Dispatch) and caches the last reported
// value; Get* calls read the cache rather than round-tripping.
type Sink struct {
	osc *devices.OscDevice

	mu          sync.RWMutex
	volumes     map[int]value.UnitValue
	bools       map[trackBoolKey]bool
	fxParams    map[fxParamKey]value.UnitValue
	transport   map[target.TransportAction]bool
	projectName string
}

type trackBoolKey struct {
	track int
	prop  target.TrackProperty
}

type fxParamKey struct {
	track, fx, param int
}

// NewSink builds a Sink bound to osc and wires the OSC feedback routes REAPER
// sends back for track volume, track bools, FX parameters, transport state,
// and project name so Get* calls are answerable from cache. osc's dispatcher
// must be a *reaper.Dispatcher (or at least honor "@" wildcard segments) for
// the capture-based routes below to fire.
func NewSink(osc *devices.OscDevice) *Sink {
	s := &Sink{
		osc:       osc,
		volumes:   make(map[int]value.UnitValue),
		bools:     make(map[trackBoolKey]bool),
		fxParams:  make(map[fxParamKey]value.UnitValue),
		transport: make(map[target.TransportAction]bool),
	}
	s.bindFeedback()
	return s
}

func (s *Sink) bindFeedback() {
	s.osc.Dispatcher.AddMsgHandler("/track/@/volume", s.handleTrackVolume)
	s.osc.Dispatcher.AddMsgHandler("/track/@/mute", s.handleTrackBool(target.Mute))
	s.osc.Dispatcher.AddMsgHandler("/track/@/solo", s.handleTrackBool(target.Solo))
	s.osc.Dispatcher.AddMsgHandler("/track/@/recarm", s.handleTrackBool(target.RecordArm))
	s.osc.Dispatcher.AddMsgHandler("/track/@/select", s.handleTrackBool(target.Selected))
	s.osc.Dispatcher.AddMsgHandler("/track/@/fx/@/fxparam/@/value", s.handleFXParam)
	s.osc.Dispatcher.AddMsgHandler("/transport/play", s.handleTransport(target.Play))
	s.osc.Dispatcher.AddMsgHandler("/transport/stop", s.handleTransport(target.Stop))
	s.osc.Dispatcher.AddMsgHandler("/transport/record", s.handleTransport(target.Record))
	s.osc.Dispatcher.AddMsgHandler("/transport/pause", s.handleTransport(target.Pause))
	s.osc.Dispatcher.AddMsgHandler("/transport/repeat", s.handleTransport(target.RepeatToggle))
	s.osc.Dispatcher.AddMsgHandler("/device/project/name/str", s.handleProjectName)
}

// captures reads the n wildcard captures matchAddr appended to the tail of
// msg.Arguments (after the real OSC arguments the message arrived with).
func captures(msg *osc.Message, n int) []string {
	if len(msg.Arguments) < n {
		return nil
	}
	tail := msg.Arguments[len(msg.Arguments)-n:]
	out := make([]string, 0, n)
	for _, a := range tail {
		s, ok := a.(string)
		if !ok {
			return nil
		}
		out = append(out, s)
	}
	return out
}

func floatArg(msg *osc.Message) (float64, bool) {
	if len(msg.Arguments) == 0 {
		return 0, false
	}
	switch v := msg.Arguments[0].(type) {
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func trackIndexFromCapture(capture string) (int, bool) {
	n, err := strconv.Atoi(capture)
	if err != nil || n < 1 {
		return 0, false
	}
	return n - 1, true
}

func (s *Sink) handleTrackVolume(msg *osc.Message) {
	caps := captures(msg, 1)
	if caps == nil {
		return
	}
	idx, ok := trackIndexFromCapture(caps[0])
	if !ok {
		return
	}
	v, ok := floatArg(msg)
	if !ok {
		return
	}
	s.mu.Lock()
	s.volumes[idx] = value.NewUnitValue(v)
	s.mu.Unlock()
}

func (s *Sink) handleTrackBool(prop target.TrackProperty) func(*osc.Message) {
	return func(msg *osc.Message) {
		caps := captures(msg, 1)
		if caps == nil {
			return
		}
		idx, ok := trackIndexFromCapture(caps[0])
		if !ok {
			return
		}
		v, ok := floatArg(msg)
		if !ok {
			return
		}
		s.mu.Lock()
		s.bools[trackBoolKey{idx, prop}] = v > 0.5
		s.mu.Unlock()
	}
}

func (s *Sink) handleFXParam(msg *osc.Message) {
	caps := captures(msg, 3)
	if caps == nil {
		return
	}
	track, ok1 := trackIndexFromCapture(caps[0])
	fx, err2 := strconv.Atoi(caps[1])
	param, err3 := strconv.Atoi(caps[2])
	if !ok1 || err2 != nil || err3 != nil {
		return
	}
	v, ok := floatArg(msg)
	if !ok {
		return
	}
	s.mu.Lock()
	s.fxParams[fxParamKey{track, fx - 1, param - 1}] = value.NewUnitValue(v)
	s.mu.Unlock()
}

func (s *Sink) handleTransport(a target.TransportAction) func(*osc.Message) {
	return func(msg *osc.Message) {
		v, ok := floatArg(msg)
		if !ok {
			return
		}
		s.mu.Lock()
		s.transport[a] = v > 0.5
		s.mu.Unlock()
	}
}

func (s *Sink) handleProjectName(msg *osc.Message) {
	if len(msg.Arguments) == 0 {
		return
	}
	name, ok := msg.Arguments[0].(string)
	if !ok {
		return
	}
	s.mu.Lock()
	s.projectName = name
	s.mu.Unlock()
}

func (s *Sink) SetTrackVolume(track int, v value.UnitValue) error {
	err := s.osc.SetFloat(fmt.Sprintf("/track/%d/volume", track+1), float64(v))
	if err != nil {
		sinkLog.Error("failed to set track volume", slog.Int("track", track), slog.Any("err", err))
		return err
	}
	s.mu.Lock()
	s.volumes[track] = v
	s.mu.Unlock()
	return nil
}

func (s *Sink) GetTrackVolume(track int) (value.UnitValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.volumes[track]
	return v, ok
}

func (s *Sink) SetTrackBool(track int, prop target.TrackProperty, v bool) error {
	addr := trackBoolAddress(track, prop)
	if addr == "" {
		return fmt.Errorf("reaper: unsupported track property %s", prop)
	}
	if err := s.osc.SetBool(addr, v); err != nil {
		sinkLog.Error("failed to set track bool", slog.Int("track", track), slog.String("property", prop.String()), slog.Any("err", err))
		return err
	}
	s.mu.Lock()
	s.bools[trackBoolKey{track, prop}] = v
	s.mu.Unlock()
	return nil
}

func (s *Sink) GetTrackBool(track int, prop target.TrackProperty) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.bools[trackBoolKey{track, prop}]
	return v, ok
}

func trackBoolAddress(track int, prop target.TrackProperty) string {
	switch prop {
	case target.Mute:
		return fmt.Sprintf("/track/%d/mute", track+1)
	case target.Solo:
		return fmt.Sprintf("/track/%d/solo", track+1)
	case target.RecordArm:
		return fmt.Sprintf("/track/%d/recarm", track+1)
	case target.Selected:
		return fmt.Sprintf("/track/%d/select", track+1)
	default:
		return ""
	}
}

func (s *Sink) SetFXParam(track, fx, param int, v value.UnitValue) error {
	addr := fmt.Sprintf("/track/%d/fx/%d/fxparam/%d/value", track+1, fx+1, param+1)
	if err := s.osc.SetFloat(addr, float64(v)); err != nil {
		sinkLog.Error("failed to set fx param", slog.Int("track", track), slog.Int("fx", fx), slog.Int("param", param), slog.Any("err", err))
		return err
	}
	s.mu.Lock()
	s.fxParams[fxParamKey{track, fx, param}] = v
	s.mu.Unlock()
	return nil
}

func (s *Sink) GetFXParam(track, fx, param int) (value.UnitValue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.fxParams[fxParamKey{track, fx, param}]
	return v, ok
}

// InvokeAction sends command to REAPER's action-invocation OSC address. A
// purely numeric command is treated as a native REAPER command ID
// ("/action/<id>"); anything else is forwarded to the instance's custom
// action-by-name route.
func (s *Sink) InvokeAction(command string) error {
	if _, err := strconv.Atoi(command); err == nil {
		return s.osc.SetInt(fmt.Sprintf("/action/%s", command), 1)
	}
	return s.osc.SetString("/action/str", command)
}

func (s *Sink) SetTransport(a target.TransportAction, v bool) error {
	addr := transportAddress(a)
	if addr == "" {
		return fmt.Errorf("reaper: unsupported transport action %s", a)
	}
	if err := s.osc.SetBool(addr, v); err != nil {
		sinkLog.Error("failed to set transport", slog.String("action", a.String()), slog.Any("err", err))
		return err
	}
	s.mu.Lock()
	s.transport[a] = v
	s.mu.Unlock()
	return nil
}

func (s *Sink) GetTransport(a target.TransportAction) (bool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.transport[a]
	return v, ok
}

func transportAddress(a target.TransportAction) string {
	switch a {
	case target.Play:
		return "/transport/play"
	case target.Stop:
		return "/transport/stop"
	case target.Record:
		return "/transport/record"
	case target.Pause:
		return "/transport/pause"
	case target.RepeatToggle:
		return "/transport/repeat"
	default:
		return ""
	}
}

func (s *Sink) ProjectName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.projectName
}

var _ target.HostSink = (*Sink)(nil)
