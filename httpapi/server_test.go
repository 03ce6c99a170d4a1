package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/hubertat/lockbox/analog"
	"github.com/hubertat/lockbox/digital"
	"github.com/hubertat/lockbox/drivers"
	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/modules"
	"github.com/hubertat/lockbox/snapshot"
)

const testToken = "s3cret"

type testServer struct {
	*Server
	handler http.Handler
	pid     *modules.PIDBank
	gen     *modules.GeneratorBank
	resets  int
}

func newTestServer(t testing.TB) *testServer {
	t.Helper()

	mr := &drivers.MockRegisters{}
	mr.Setup(context.Background())
	hk, _ := mr.Region(drivers.Housekeeping)
	ams, _ := mr.Region(drivers.AnalogMixedSignals)

	ts := &testServer{pid: modules.NewPIDBank(), gen: modules.NewGeneratorBank()}
	lim := modules.NewLimiterBank()
	ts.Server = &Server{
		Token:     testToken,
		Digital:   digital.New(hk),
		Analog:    analog.New(ams),
		PID:       ts.pid,
		Limiter:   lim,
		Generator: ts.gen,
		Snapshot:  snapshot.New(filepath.Join(t.TempDir(), "lockbox.conf"), ts.pid, lim, ts.gen),
		Reset: func() error {
			ts.resets++
			return nil
		},
	}
	ts.handler = ts.Handler()
	return ts
}

func (ts *testServer) do(method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set(TokenHeader, testToken)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func assertStatus(t testing.TB, rec *httptest.ResponseRecorder, want int) {
	t.Helper()

	if rec.Code != want {
		t.Errorf("got status %d want %d, body: %s", rec.Code, want, rec.Body.String())
	}
}

func decode(t testing.TB, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()

	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("bad json %q: %v", rec.Body.String(), err)
	}
}

func TestTokenRequired(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/board", nil)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assertStatus(t, rec, http.StatusUnauthorized)

	assertStatus(t, ts.do(http.MethodGet, "/board"), http.StatusOK)
}

func TestDigitalPinFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPut, "/dpin/DIO2_N/state/1")
	assertStatus(t, rec, http.StatusConflict)
	var errResp errorResponse
	decode(t, rec, &errResp)
	if errResp.Code != errcode.WriteToInputPin {
		t.Errorf("got code %s", errResp.Code)
	}

	assertStatus(t, ts.do(http.MethodPut, "/dpin/DIO2_N/direction/out"), http.StatusOK)
	rec = ts.do(http.MethodPut, "/dpin/DIO2_N/state/1")
	assertStatus(t, rec, http.StatusOK)

	var view digitalView
	decode(t, rec, &view)
	if view.Direction != "out" || view.State != 1 || view.ID != 18 {
		t.Errorf("got %+v", view)
	}

	assertStatus(t, ts.do(http.MethodPut, "/dpin/LED0/direction/in"), http.StatusBadRequest)
	assertStatus(t, ts.do(http.MethodGet, "/dpin/24"), http.StatusBadRequest)
}

func TestAnalogPinFlow(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPut, "/apin/AOUT1/raw/156")
	assertStatus(t, rec, http.StatusOK)
	var view analogView
	decode(t, rec, &view)
	if view.Raw != 156 || view.Max != 1.8 {
		t.Errorf("got %+v", view)
	}

	assertStatus(t, ts.do(http.MethodPut, "/apin/AOUT1/voltage/2.0"), http.StatusBadRequest)
	assertStatus(t, ts.do(http.MethodPut, "/apin/AIN1/voltage/1.0"), http.StatusBadRequest)
	assertStatus(t, ts.do(http.MethodGet, "/apin/AIN3"), http.StatusOK)
}

func TestPIDAndOutputParams(t *testing.T) {
	ts := newTestServer(t)

	assertStatus(t, ts.do(http.MethodPut, "/pid/1/kp/2.5"), http.StatusOK)
	assertStatus(t, ts.do(http.MethodPut, "/pid/1/enable/on"), http.StatusOK)
	assertStatus(t, ts.do(http.MethodPut, "/pid/1/relock_input/AIN2"), http.StatusOK)
	assertStatus(t, ts.do(http.MethodPut, "/pid/1/kp/-1"), http.StatusBadRequest)
	assertStatus(t, ts.do(http.MethodPut, "/pid/9/kp/1"), http.StatusBadRequest)

	kp, _ := ts.pid.Value(1, modules.Kp)
	on, _ := ts.pid.Flag(1, modules.Enable)
	in, _ := ts.pid.RelockInput(1)
	if kp != 2.5 || !on || in.String() != "AIN2" {
		t.Errorf("got kp=%g enable=%v relock=%s", kp, on, in)
	}

	rec := ts.do(http.MethodPut, "/output/0/waveform/square")
	assertStatus(t, rec, http.StatusOK)
	var block snapshot.ChannelBlock
	decode(t, rec, &block)
	if modules.Waveform(block.GenWaveform) != modules.Square {
		t.Errorf("got waveform %d", block.GenWaveform)
	}

	assertStatus(t, ts.do(http.MethodPut, "/output/0/freq/1e9"), http.StatusBadRequest)
	assertStatus(t, ts.do(http.MethodPut, "/output/0/volume/1"), http.StatusBadRequest)
	assertStatus(t, ts.do(http.MethodPut, "/output/1/enable/1"), http.StatusOK)
	if on, _ := ts.gen.IsEnabled(1); !on {
		t.Error("generator 1 not enabled")
	}
}

func TestConfigSaveLoadReset(t *testing.T) {
	ts := newTestServer(t)

	assertStatus(t, ts.do(http.MethodPost, "/config/load"), http.StatusNotFound)

	ts.pid.SetValue(0, modules.Setpoint, 0.5)
	assertStatus(t, ts.do(http.MethodPost, "/config/save"), http.StatusOK)
	ts.pid.SetValue(0, modules.Setpoint, 0)
	assertStatus(t, ts.do(http.MethodPost, "/config/load"), http.StatusOK)

	if sp, _ := ts.pid.Value(0, modules.Setpoint); sp != 0.5 {
		t.Errorf("got setpoint %g after load", sp)
	}

	assertStatus(t, ts.do(http.MethodPost, "/reset"), http.StatusOK)
	if ts.resets != 1 {
		t.Errorf("got %d resets", ts.resets)
	}
}

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		errcode.InvalidPin:                http.StatusBadRequest,
		errcode.WriteToInputPin:           http.StatusConflict,
		errcode.CorruptConfig:             http.StatusUnprocessableEntity,
		errcode.WriteConfigFileFailed:     http.StatusInternalServerError,
		errcode.IncompatibleConfigVersion: http.StatusUnprocessableEntity,
	}
	for err, want := range cases {
		if got := StatusOf(err); got != want {
			t.Errorf("%v: got %d want %d", err, got, want)
		}
	}
}

func TestSetupReportsBindFailure(t *testing.T) {
	first := newTestServer(t)
	first.Addr = "127.0.0.1:0"
	if err := first.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer first.Close()
	if !first.IsReady() {
		t.Error("first server not ready")
	}

	second := newTestServer(t)
	second.Addr = first.ListenAddr()
	if err := second.Setup(context.Background()); err == nil {
		second.Close()
		t.Fatalf("second server on %s started", second.Addr)
	}
	if second.IsReady() {
		t.Error("second server reports ready")
	}
}

func TestServerErrAfterClose(t *testing.T) {
	ts := newTestServer(t)
	ts.Addr = "127.0.0.1:0"
	if err := ts.Setup(context.Background()); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get("http://" + ts.ListenAddr() + "/board")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("got status %d", resp.StatusCode)
	}

	ts.Close()
	select {
	case err := <-ts.Err():
		if err != http.ErrServerClosed {
			t.Errorf("got %v want ErrServerClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no error delivered after Close")
	}
	if ts.IsReady() {
		t.Error("closed server reports ready")
	}
}
