// Package devicesim emulates a Chitu SDCP mainboard: it answers discovery
// requests, accepts uploads and serves the WebSocket command channel.
package devicesim

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/john/chitu_uploader/files"
	"github.com/john/chitu_uploader/sdcp"
)

// Simulator is an in-process mainboard backed by a files.Store.
type Simulator struct {
	device sdcp.Device
	store  *files.Store
	mux    *http.ServeMux
	log    *zap.Logger

	mu             sync.Mutex
	ack            int
	omitAck        bool
	rejectCode     string
	rejectMessages string
	uploads        []Upload
	printing       string
}

// Upload records what an upload request carried.
type Upload struct {
	Filename   string
	HeaderMD5  string
	BodyMD5    string
	Size       int64
	TotalSize  string
	Check      string
	Offset     string
	UUID       string
	ContentLen int64
}

// Option configures a Simulator.
type Option func(*Simulator)

func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) { s.log = l }
}

// WithMachineName sets the name reported in discovery replies.
func WithMachineName(name string) Option {
	return func(s *Simulator) {
		s.device.Name = name
		s.device.MachineName = name
	}
}

// New creates a simulator for dev whose files live in store.
func New(dev sdcp.Device, store *files.Store, opts ...Option) *Simulator {
	s := &Simulator{
		device: dev,
		store:  store,
		mux:    http.NewServeMux(),
		log:    zap.NewNop(),
	}
	if s.device.FirmwareVersion == "" {
		s.device.FirmwareVersion = "V3.0.0"
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Simulator) registerRoutes() {
	s.mux.HandleFunc("POST /uploadFile/upload", s.handleUpload)
	s.mux.HandleFunc("GET /websocket", s.handleWebSocket)
}

// Handler returns the HTTP handler serving uploads and the WebSocket.
func (s *Simulator) Handler() http.Handler {
	return s.mux
}

// Device returns the identity the simulator announces.
func (s *Simulator) Device() sdcp.Device {
	return s.device
}

// SetAck sets the Ack returned for start-print commands.
func (s *Simulator) SetAck(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ack = code
	s.omitAck = false
}

// OmitAck makes start-print replies leave out the Ack field.
func (s *Simulator) OmitAck() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.omitAck = true
}

// RejectUploads makes every upload fail with code and messages. An empty
// code restores normal behavior.
func (s *Simulator) RejectUploads(code, messages string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectCode = code
	s.rejectMessages = messages
}

// Uploads returns the upload requests received so far.
func (s *Simulator) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Upload(nil), s.uploads...)
}

// Printing returns the file the last successful start-print named.
func (s *Simulator) Printing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.printing
}

// ListenAndServe serves HTTP on httpAddr and discovery on udpAddr until ctx
// is cancelled.
func (s *Simulator) ListenAndServe(ctx context.Context, httpAddr, udpAddr string) error {
	pc, err := net.ListenPacket("udp4", udpAddr)
	if err != nil {
		return fmt.Errorf("listening for discovery on %s: %w", udpAddr, err)
	}

	srv := &http.Server{Addr: httpAddr, Handler: s.mux}
	errCh := make(chan error, 2)

	go func() {
		errCh <- s.ServeDiscovery(ctx, pc)
	}()
	go func() {
		s.log.Info("Simulator serving", zap.String("http", httpAddr), zap.String("udp", udpAddr), zap.Stringer("device", s.device))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	pc.Close()
	return err
}
