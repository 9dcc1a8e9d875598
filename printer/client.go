package printer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/john/chitu_uploader/sdcp"
)

const (
	DefaultUploadTimeout  = 10 * time.Minute
	DefaultCommandTimeout = 10 * time.Second
)

var errNoDevice = errors.New("printer not found")

// Client talks to a mainboard over HTTP (uploads) and WebSocket (commands).
// It holds no connection state: every call dials and closes its own socket.
type Client struct {
	httpPort       int
	uploadTimeout  time.Duration
	commandTimeout time.Duration
	httpClient     *http.Client
	dialer         *websocket.Dialer
	log            *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPPort overrides the mainboard's HTTP/WebSocket port (3030).
func WithHTTPPort(port int) Option {
	return func(c *Client) { c.httpPort = port }
}

func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) { c.uploadTimeout = d }
}

func WithCommandTimeout(d time.Duration) Option {
	return func(c *Client) { c.commandTimeout = d }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a new printer client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpPort:       sdcp.HTTPPort,
		uploadTimeout:  DefaultUploadTimeout,
		commandTimeout: DefaultCommandTimeout,
		httpClient:     &http.Client{},
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.dialer = &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.commandTimeout,
	}
	return c
}

func (c *Client) hostPort(dev sdcp.Device) string {
	return net.JoinHostPort(dev.IP, strconv.Itoa(c.httpPort))
}

// Send opens a WebSocket to the mainboard, writes one command envelope,
// waits for exactly one reply frame and closes the connection.
func (c *Client) Send(ctx context.Context, dev sdcp.Device, cmd int, payload any) (sdcp.Response, error) {
	if dev.IP == "" || dev.MainboardID == "" {
		return sdcp.Response{}, errNoDevice
	}

	req, err := sdcp.NewRequest(dev, cmd, payload)
	if err != nil {
		return sdcp.Response{}, err
	}
	frame, err := sdcp.EncodeRequest(req)
	if err != nil {
		return sdcp.Response{}, fmt.Errorf("encoding cmd %d: %w", cmd, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.commandTimeout)
	defer cancel()

	u := url.URL{Scheme: "ws", Host: c.hostPort(dev), Path: "/websocket"}
	conn, resp, err := c.dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return sdcp.Response{}, connectError(ctx, "dial", u.String(), err)
	}
	defer conn.Close()

	// Cancelling ctx tears the socket down so a stalled read returns.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetWriteDeadline(deadline)
		conn.SetReadDeadline(deadline)
	}

	c.log.Debug("SDCP request", zap.String("id", req.ID), zap.Int("cmd", cmd), zap.String("addr", u.Host))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return sdcp.Response{}, connectError(ctx, "write", u.String(), err)
	}

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return sdcp.Response{}, connectError(ctx, "read", u.String(), err)
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))

	reply, err := sdcp.DecodeResponse(msg)
	if err != nil {
		return sdcp.Response{}, fmt.Errorf("cmd %d reply: %w", cmd, err)
	}
	if reply.Data.Cmd != 0 && reply.Data.Cmd != cmd {
		c.log.Warn("SDCP reply for a different command", zap.Int("sent", cmd), zap.Int("got", reply.Data.Cmd))
	}
	if reply.Data.RequestID != "" && reply.Data.RequestID != req.ID {
		c.log.Warn("SDCP reply for a different request", zap.String("sent", req.ID), zap.String("got", reply.Data.RequestID))
	}
	c.log.Debug("SDCP response", zap.String("id", reply.ID), zap.Int("cmd", reply.Data.Cmd), zap.ByteString("data", reply.Data.Data))
	return reply, nil
}

// ListFiles returns the mainboard's listing of dir (e.g. sdcp.LocalStorage).
func (c *Client) ListFiles(ctx context.Context, dev sdcp.Device, dir string) ([]sdcp.FileEntry, error) {
	reply, err := c.Send(ctx, dev, sdcp.CmdListFiles, sdcp.ListFilesPayload{URL: dir})
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	list, err := sdcp.DecodeFileList(reply)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return list, nil
}

// StartPrint asks the mainboard to print filename from the first layer.
// A non-success AckCode is not an error here; callers decide via AckCode.Err.
func (c *Client) StartPrint(ctx context.Context, dev sdcp.Device, filename string) (sdcp.AckCode, error) {
	reply, err := c.Send(ctx, dev, sdcp.CmdStartPrint, sdcp.StartPrintPayload{Filename: filename, StartLayer: 0})
	if err != nil {
		return 0, fmt.Errorf("starting print of %s: %w", filename, err)
	}
	ack, err := sdcp.DecodeAck(reply)
	if err != nil {
		return 0, fmt.Errorf("starting print of %s: %w", filename, err)
	}
	c.log.Info("Start print acknowledged", zap.String("file", filename), zap.Int("ack", int(ack)), zap.Stringer("outcome", ack))
	return ack, nil
}

func connectError(ctx context.Context, op, addr string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	} else if dl, ok := ctx.Deadline(); ok && !time.Now().Before(dl) {
		// The socket deadline can fire just before ctx notices it expired.
		err = context.DeadlineExceeded
	}
	return &sdcp.ConnectError{Op: op, Addr: addr, Err: err}
}
