package printer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/john/chitu_uploader/sdcp"
)

// ErrInvalidState is returned when a session step is attempted before the
// step it depends on has succeeded.
var ErrInvalidState = errors.New("invalid session state")

// StoredFile is the mainboard-side file a print is started from.
type StoredFile = sdcp.FileEntry

// Session is the immutable outcome of the steps run so far. Each
// PrintSession step takes a Session and returns its successor; on failure
// the input is returned unchanged.
type Session struct {
	state  State
	device sdcp.Device
	upload UploadResult
	file   StoredFile
	ack    sdcp.AckCode
}

// Attach starts a session from an already known device, skipping discovery.
func Attach(dev sdcp.Device) Session {
	return Session{state: StateDiscovered, device: dev}
}

func (s Session) State() State         { return s.state }
func (s Session) Device() sdcp.Device  { return s.device }
func (s Session) Upload() UploadResult { return s.upload }
func (s Session) File() StoredFile     { return s.file }
func (s Session) Ack() sdcp.AckCode    { return s.ack }

func (s Session) requires(want State) error {
	if s.state != want {
		return fmt.Errorf("%w: need %s, session is %s", ErrInvalidState, want, s.state)
	}
	return nil
}

// PrintSession runs the discover, upload, list, submit sequence.
type PrintSession struct {
	discoverer Discoverer
	client     *Client
	log        *zap.Logger
}

// NewPrintSession creates a session runner. log may be nil.
func NewPrintSession(d Discoverer, c *Client, log *zap.Logger) *PrintSession {
	if log == nil {
		log = zap.NewNop()
	}
	return &PrintSession{discoverer: d, client: c, log: log}
}

// Discover finds a mainboard and returns a Discovered session.
func (p *PrintSession) Discover(ctx context.Context) (Session, error) {
	if p.discoverer == nil {
		return Session{}, fmt.Errorf("%w: no discoverer configured", ErrInvalidState)
	}
	dev, err := p.discoverer.Discover(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("discovery: %w", err)
	}
	p.log.Info("Session: printer discovered", zap.Stringer("device", dev))
	return Attach(dev), nil
}

// Upload sends path to the session's device.
func (p *PrintSession) Upload(ctx context.Context, s Session, path string, opts ...UploadOption) (Session, error) {
	if err := s.requires(StateDiscovered); err != nil {
		return s, err
	}
	res, err := p.client.Upload(ctx, s.device, path, opts...)
	if err != nil {
		return s, err
	}
	next := s
	next.state = StateUploaded
	next.upload = res
	p.log.Info("Session: file uploaded", zap.String("file", res.LocalName), zap.String("md5", res.MD5))
	return next, nil
}

// ResolveFile lists local storage and takes the first entry as the uploaded
// file. The listing is not matched against the upload's name or digest.
func (p *PrintSession) ResolveFile(ctx context.Context, s Session) (Session, error) {
	if err := s.requires(StateUploaded); err != nil {
		return s, err
	}
	list, err := p.client.ListFiles(ctx, s.device, sdcp.LocalStorage)
	if err != nil {
		return s, err
	}
	if len(list) == 0 {
		return s, fmt.Errorf("%w: uploaded file not found on printer (empty FileList)", sdcp.ErrProtocol)
	}
	if list[0].Name == "" {
		return s, fmt.Errorf("%w: FileList entry has no name", sdcp.ErrProtocol)
	}
	next := s
	next.state = StateFileListed
	next.file = list[0]
	if next.file.Name != s.upload.LocalName {
		p.log.Debug("Session: printer-side name differs from upload",
			zap.String("uploaded", s.upload.LocalName), zap.String("stored", next.file.Name))
	}
	p.log.Info("Session: file resolved", zap.String("file", next.file.Name))
	return next, nil
}

// Submit starts the print. The returned session is Printing or Rejected
// according to the Ack; a non-success Ack is not an error here. If a reply
// arrives without a usable Ack the session moves to Submitted and the
// error is returned.
func (p *PrintSession) Submit(ctx context.Context, s Session) (Session, error) {
	if err := s.requires(StateFileListed); err != nil {
		return s, err
	}
	ack, err := p.client.StartPrint(ctx, s.device, s.file.Name)
	if err != nil {
		if errors.Is(err, sdcp.ErrProtocol) {
			next := s
			next.state = StateSubmitted
			return next, err
		}
		return s, err
	}
	next := s
	next.ack = ack
	if ack == sdcp.AckSuccess {
		next.state = StatePrinting
	} else {
		next.state = StateRejected
	}
	p.log.Info("Session: print submitted", zap.Stringer("state", next.state), zap.Stringer("ack", ack))
	return next, nil
}

// Run performs the whole sequence, stopping at the first failure. A
// rejected print is reported as an *sdcp.AckError alongside the session.
func (p *PrintSession) Run(ctx context.Context, path string, opts ...UploadOption) (Session, error) {
	s, err := p.Discover(ctx)
	if err != nil {
		return s, err
	}
	return p.RunFrom(ctx, s, path, opts...)
}

// RunFrom continues the sequence from a Discovered session.
func (p *PrintSession) RunFrom(ctx context.Context, s Session, path string, opts ...UploadOption) (Session, error) {
	s, err := p.Upload(ctx, s, path, opts...)
	if err != nil {
		return s, err
	}
	if s, err = p.ResolveFile(ctx, s); err != nil {
		return s, err
	}
	if s, err = p.Submit(ctx, s); err != nil {
		return s, err
	}
	return s, s.ack.Err()
}
