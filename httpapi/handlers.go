package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/modules"
	"github.com/hubertat/lockbox/pins"
	"github.com/hubertat/lockbox/snapshot"
)

type boardView struct {
	ID       string `json:"id"`
	DNA      string `json:"dna"`
	Loopback bool   `json:"loopback"`
}

type digitalView struct {
	Pin       string `json:"pin"`
	ID        int    `json:"id"`
	Direction string `json:"direction"`
	State     int    `json:"state"`
}

type analogView struct {
	Pin     string  `json:"pin"`
	ID      int     `json:"id"`
	Raw     uint32  `json:"raw"`
	Voltage float64 `json:"voltage"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "1", "true", "on", "high", "enable":
		return true, nil
	case "0", "false", "off", "low", "disable":
		return false, nil
	}
	return false, errors.Wrapf(errcode.InvalidParam, "bad boolean %q", s)
}

func parseFloat32(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, errors.Wrapf(errcode.InvalidParam, "bad number %q", s)
	}
	return float32(v), nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.Wrapf(errcode.InvalidChannel, "bad index %q", s)
	}
	return i, nil
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	s.writeJson(w, http.StatusOK, boardView{
		ID:       fmt.Sprintf("0x%08x", s.Digital.ID()),
		DNA:      fmt.Sprintf("0x%014x", s.Digital.DNA()),
		Loopback: s.Digital.Loopback(),
	})
}

func (s *Server) handleLoopback(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	enable, err := parseBool(p.ByName("enable"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.Digital.SetLoopback(enable)
	s.handleBoard(w, r, p)
}

func (s *Server) digitalView(pin pins.LogicalPin) (view digitalView, err error) {
	dir, err := s.Digital.GetDirection(pin)
	if err != nil {
		return
	}
	state, err := s.Digital.GetState(pin)
	if err != nil {
		return
	}
	return digitalView{Pin: pin.String(), ID: pin.ID(), Direction: dir.String(), State: int(state.Bit())}, nil
}

func (s *Server) handleGetDigital(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pin, err := pins.ParseLogicalPin(p.ByName("pin"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	view, err := s.digitalView(pin)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusOK, view)
}

func (s *Server) handleSetDirection(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pin, err := pins.ParseLogicalPin(p.ByName("pin"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	dir, err := pins.ParseDirection(p.ByName("dir"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err = s.Digital.SetDirection(pin, dir); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetDigital(w, r, p)
}

func (s *Server) handleSetState(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pin, err := pins.ParseLogicalPin(p.ByName("pin"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	on, err := parseBool(p.ByName("state"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err = s.Digital.SetState(pin, pins.State(on)); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetDigital(w, r, p)
}

func (s *Server) handleGetAnalog(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pin, err := pins.ParseAnalogPin(p.ByName("pin"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	raw, err := s.Analog.GetValueRaw(pin)
	if err != nil {
		s.writeError(w, err)
		return
	}
	voltage, _ := s.Analog.GetValue(pin)
	rng := s.Analog.GetRange(pin)

	s.writeJson(w, http.StatusOK, analogView{
		Pin:     pin.String(),
		ID:      pin.ID(),
		Raw:     raw,
		Voltage: voltage,
		Min:     rng.Min,
		Max:     rng.Max,
	})
}

func (s *Server) handleSetVoltage(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pin, err := pins.ParseAnalogPin(p.ByName("pin"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	v, err := strconv.ParseFloat(p.ByName("value"), 64)
	if err != nil {
		s.writeError(w, errors.Wrapf(errcode.InvalidParam, "bad voltage %q", p.ByName("value")))
		return
	}
	if err = s.Analog.SetValue(pin, v); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetAnalog(w, r, p)
}

func (s *Server) handleSetRaw(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pin, err := pins.ParseAnalogPin(p.ByName("pin"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	raw, err := strconv.ParseUint(p.ByName("value"), 0, 32)
	if err != nil {
		s.writeError(w, errors.Wrapf(errcode.OutOfRange, "bad raw value %q", p.ByName("value")))
		return
	}
	if err = s.Analog.SetValueRaw(pin, uint32(raw)); err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetAnalog(w, r, p)
}

func (s *Server) handleGetPID(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pid, err := parseIndex(p.ByName("pid"))
	if err == nil && (pid < 0 || pid >= modules.PIDCount) {
		err = errors.Wrapf(errcode.InvalidChannel, "pid %d", pid)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.Snapshot.Capture()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusOK, rec.PID[pid])
}

func (s *Server) setPID(pid int, param, value string) error {
	switch strings.ToLower(param) {
	case "relock_input":
		pin, err := pins.ParseAnalogPin(value)
		if err != nil {
			return err
		}
		return s.PID.SetRelockInput(pid, pin)
	case "ext_reset_input":
		pin, err := pins.ParseLogicalPin(value)
		if err != nil {
			return err
		}
		return s.PID.SetExtResetInput(pid, pin)
	}

	if pp, err := modules.ParsePIDParam(param); err == nil {
		v, err := parseFloat32(value)
		if err != nil {
			return err
		}
		return s.PID.SetValue(pid, pp, v)
	}

	flag, err := modules.ParsePIDFlag(param)
	if err != nil {
		return err
	}
	on, err := parseBool(value)
	if err != nil {
		return err
	}
	return s.PID.SetFlag(pid, flag, on)
}

func (s *Server) handleSetPID(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	pid, err := parseIndex(p.ByName("pid"))
	if err == nil {
		err = s.setPID(pid, p.ByName("param"), p.ByName("value"))
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetPID(w, r, p)
}

func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ch, err := parseIndex(p.ByName("ch"))
	if err == nil && (ch < 0 || ch >= modules.Channels) {
		err = errors.Wrapf(errcode.InvalidChannel, "channel %d", ch)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	rec, err := s.Snapshot.Capture()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusOK, rec.Channel[ch])
}

func (s *Server) setOutput(ch int, param, value string) error {
	switch strings.ToLower(param) {
	case "enable":
		on, err := parseBool(value)
		if err != nil {
			return err
		}
		if on {
			return s.Generator.Enable(ch)
		}
		return s.Generator.Disable(ch)
	case "poffset":
		on, err := parseBool(value)
		if err != nil {
			return err
		}
		if on {
			return s.Generator.EnablePhaseOffset(ch)
		}
		return s.Generator.DisablePhaseOffset(ch)
	case "waveform":
		wf, err := modules.ParseWaveform(value)
		if err != nil {
			return err
		}
		return s.Generator.SetWaveform(ch, wf)
	}

	setters := map[string]func(int, float32) error{
		"limit_min": s.Limiter.SetMin,
		"limit_max": s.Limiter.SetMax,
		"amp":       s.Generator.SetAmplitude,
		"offset":    s.Generator.SetOffset,
		"freq":      s.Generator.SetFrequency,
	}
	set, found := setters[strings.ToLower(param)]
	if !found {
		return errors.Wrapf(errcode.InvalidParam, "unknown output parameter %q", param)
	}
	v, err := parseFloat32(value)
	if err != nil {
		return err
	}
	return set(ch, v)
}

func (s *Server) handleSetOutput(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	ch, err := parseIndex(p.ByName("ch"))
	if err == nil {
		err = s.setOutput(ch, p.ByName("param"), p.ByName("value"))
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.handleGetOutput(w, r, p)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	rec, err := s.Snapshot.Capture()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusOK, rec)
}

type resultView struct {
	Code   errcode.Code `json:"code"`
	Path   string       `json:"path,omitempty"`
	Record int          `json:"record_size,omitempty"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if err := s.Snapshot.Save(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusOK, resultView{Code: errcode.OK, Path: s.Snapshot.Path, Record: snapshot.RecordSize})
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if err := s.Snapshot.Load(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusOK, resultView{Code: errcode.OK, Path: s.Snapshot.Path})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
	if s.Reset == nil {
		s.writeError(w, errors.New("reset not available"))
		return
	}
	if err := s.Reset(); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJson(w, http.StatusOK, resultView{Code: errcode.OK})
}
