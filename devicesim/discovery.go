package devicesim

import (
	"bytes"
	"context"
	"errors"
	"net"

	"go.uber.org/zap"

	"github.com/john/chitu_uploader/sdcp"
)

// ServeDiscovery answers sdcp.DiscoveryRequest datagrams on pc until ctx is cancelled
// or pc is closed. Other datagrams are ignored.
func (s *Simulator) ServeDiscovery(ctx context.Context, pc net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() { pc.Close() })
	defer stop()

	reply, err := sdcp.EncodeDiscoveryReply(s.device)
	if err != nil {
		return err
	}

	buf := make([]byte, 1500)
	for {
		n, from, err := pc.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		if !bytes.Equal(bytes.TrimSpace(buf[:n]), sdcp.DiscoveryRequest) {
			s.log.Debug("Ignoring datagram", zap.Stringer("from", from), zap.ByteString("data", buf[:n]))
			continue
		}
		if _, err := pc.WriteTo(reply, from); err != nil {
			s.log.Warn("Discovery reply failed", zap.Stringer("to", from), zap.Error(err))
			continue
		}
		s.log.Debug("Answered discovery", zap.Stringer("from", from))
	}
}
