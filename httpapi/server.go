// Package httpapi exposes the board over a small token protected HTTP API.
package httpapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/hubertat/lockbox/analog"
	"github.com/hubertat/lockbox/digital"
	"github.com/hubertat/lockbox/errcode"
	"github.com/hubertat/lockbox/modules"
	"github.com/hubertat/lockbox/snapshot"
)

const httpTimeoutsMs = 3000
const TokenHeader = "X-Lockbox-Token"

type Server struct {
	Addr  string
	Token string

	Lock      sync.Locker
	Digital   *digital.Controller
	Analog    *analog.Scaler
	PID       modules.PID
	Limiter   modules.Limiter
	Generator modules.Generator
	Snapshot  *snapshot.Snapshot
	Reset     func() error

	server    *http.Server
	listener  net.Listener
	serverErr chan error
	ready     atomic.Bool
	logger    *log.Logger
}

type errorResponse struct {
	Code        errcode.Code `json:"code"`
	Message     string       `json:"message"`
	Description string       `json:"description"`
}

var codeStatus = map[errcode.Code]int{
	errcode.InvalidPin:                http.StatusBadRequest,
	errcode.InvalidDirection:          http.StatusBadRequest,
	errcode.InvalidParam:              http.StatusBadRequest,
	errcode.InvalidChannel:            http.StatusBadRequest,
	errcode.OutOfRange:                http.StatusBadRequest,
	errcode.WriteToInputPin:           http.StatusConflict,
	errcode.OpenConfigFileFailed:      http.StatusNotFound,
	errcode.IncompatibleConfigVersion: http.StatusUnprocessableEntity,
	errcode.CorruptConfig:             http.StatusUnprocessableEntity,
}

// StatusOf maps an error to the HTTP status sent for it.
func StatusOf(err error) int {
	if status, found := codeStatus[errcode.Of(err)]; found {
		return status
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := errcode.Of(err)
	s.writeJson(w, StatusOf(err), errorResponse{Code: code, Message: err.Error(), Description: errcode.Describe(code)})
}

func (s *Server) writeJson(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "err", err)
	}
}

// guard checks the token and serializes the call with every other user of
// the registers.
func (s *Server) guard(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if len(s.Token) > 0 && r.Header.Get(TokenHeader) != s.Token {
			http.Error(w, "token mismatch", http.StatusUnauthorized)
			return
		}

		s.Lock.Lock()
		defer s.Lock.Unlock()
		h(w, r, p)
	}
}

// Handler builds the router. Setup calls it; tests use it directly.
func (s *Server) Handler() http.Handler {
	if s.Lock == nil {
		s.Lock = &sync.Mutex{}
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "HttpApi 🌐: ",
			Level:  log.GetLevel(),
		})
	}

	router := httprouter.New()

	router.GET("/board", s.guard(s.handleBoard))
	router.PUT("/loopback/:enable", s.guard(s.handleLoopback))

	router.GET("/dpin/:pin", s.guard(s.handleGetDigital))
	router.PUT("/dpin/:pin/direction/:dir", s.guard(s.handleSetDirection))
	router.PUT("/dpin/:pin/state/:state", s.guard(s.handleSetState))

	router.GET("/apin/:pin", s.guard(s.handleGetAnalog))
	router.PUT("/apin/:pin/voltage/:value", s.guard(s.handleSetVoltage))
	router.PUT("/apin/:pin/raw/:value", s.guard(s.handleSetRaw))

	router.GET("/pid/:pid", s.guard(s.handleGetPID))
	router.PUT("/pid/:pid/:param/:value", s.guard(s.handleSetPID))

	router.GET("/output/:ch", s.guard(s.handleGetOutput))
	router.PUT("/output/:ch/:param/:value", s.guard(s.handleSetOutput))

	router.GET("/config", s.guard(s.handleGetConfig))
	router.POST("/config/save", s.guard(s.handleSave))
	router.POST("/config/load", s.guard(s.handleLoad))
	router.POST("/reset", s.guard(s.handleReset))

	return router
}

// Setup binds Addr and serves in the background. A bind failure is
// returned here; a later serve failure is logged, clears IsReady and is
// delivered on Err.
func (s *Server) Setup(ctx context.Context) error {
	if len(s.Addr) == 0 {
		return errors.New("http address not set")
	}

	httpTimeout := httpTimeoutsMs * time.Millisecond

	handler := s.Handler()
	listener, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return errors.Wrapf(err, "http api cannot listen on %s", s.Addr)
	}
	s.listener = listener

	s.server = &http.Server{
		Addr:              s.Addr,
		Handler:           handler,
		ReadTimeout:       httpTimeout,
		ReadHeaderTimeout: httpTimeout,
		WriteTimeout:      httpTimeout,
		IdleTimeout:       2 * httpTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	s.serverErr = make(chan error, 1)
	s.ready.Store(true)
	go func() {
		err := s.server.Serve(listener)
		s.ready.Store(false)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http api stopped", "addr", s.Addr, "err", err)
		}
		s.serverErr <- err
	}()

	s.logger.Info("http api listening", "addr", listener.Addr().String())
	return nil
}

// ListenAddr is the bound address, useful when Addr asks for port 0.
func (s *Server) ListenAddr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) IsReady() bool {
	return s.ready.Load()
}

// Err delivers the error Serve returned once the server stops.
func (s *Server) Err() <-chan error {
	return s.serverErr
}

func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	return s.server.Close()
}
