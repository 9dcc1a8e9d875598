package sdcp

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDiscoveryTimeout = 5 * time.Second
	LimitedBroadcast        = "255.255.255.255"
)

// Discoverer finds a mainboard on the local network via UDP broadcast.
// The zero value broadcasts to 255.255.255.255:3000 and waits 5 seconds.
type Discoverer struct {
	// BroadcastAddrs are the destinations the request is sent to.
	BroadcastAddrs []string
	Port           int
	Timeout        time.Duration
	Logger         *zap.Logger
}

// Discover broadcasts DiscoveryRequest once and returns the first mainboard that answers.
// A ctx deadline that expires first is reported as ErrDiscoveryTimeout;
// only cancellation returns ctx.Err().
// Go enables SO_BROADCAST on every datagram socket, so no extra socket
// option is needed to reach a broadcast address.
func (d *Discoverer) Discover(ctx context.Context) (Device, error) {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	port := d.Port
	if port == 0 {
		port = DiscoveryPort
	}
	addrs := d.BroadcastAddrs
	if len(addrs) == 0 {
		addrs = []string{LimitedBroadcast}
	}

	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return Device{}, fmt.Errorf("opening discovery socket: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	// Unblock the read as soon as ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	sent := 0
	for _, addr := range addrs {
		dst, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(addr, strconv.Itoa(port)))
		if err != nil {
			log.Warn("Skipping broadcast address", zap.String("addr", addr), zap.Error(err))
			continue
		}
		if _, err := conn.WriteTo(DiscoveryRequest, dst); err != nil {
			log.Warn("Discovery request failed", zap.Stringer("addr", dst), zap.Error(err))
			continue
		}
		sent++
	}
	if sent == 0 {
		if ctx.Err() != nil {
			return Device{}, ctx.Err()
		}
		return Device{}, fmt.Errorf("sending discovery request: no usable broadcast address in %v", addrs)
	}
	log.Debug("Discovery request sent", zap.Strings("addrs", addrs), zap.Int("port", port), zap.Duration("timeout", timeout))

	buf := make([]byte, 2048)
	n, from, err := conn.ReadFromUDP(buf)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return Device{}, ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Device{}, ErrDiscoveryTimeout
		}
		return Device{}, fmt.Errorf("reading discovery reply: %w", err)
	}

	dev, err := DecodeDiscoveryReply(buf[:n])
	if err != nil {
		log.Warn("Undecodable discovery reply", zap.Stringer("from", from), zap.ByteString("data", buf[:n]))
		return Device{}, err
	}
	log.Info("Printer found", zap.String("ip", dev.IP), zap.String("mainboard_id", dev.MainboardID), zap.Stringer("from", from))
	return dev, nil
}

// SubnetBroadcastAddrs returns the directed broadcast address of every
// non-loopback IPv4 network the host is attached to.
func SubnetBroadcastAddrs() ([]string, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var addrs []string
	for _, iface := range ifs {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		ifAddrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range ifAddrs {
			n, ok := addr.(*net.IPNet)
			if !ok || n.IP.IsLoopback() {
				continue
			}
			if s := directedBroadcast(n); s != "" && !seen[s] {
				seen[s] = true
				addrs = append(addrs, s)
			}
		}
	}
	return addrs, nil
}

func directedBroadcast(n *net.IPNet) string {
	v4 := n.IP.To4()
	if v4 == nil {
		return ""
	}
	mask := n.Mask
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return ""
	}
	b := make(net.IP, net.IPv4len)
	binary.BigEndian.PutUint32(b, binary.BigEndian.Uint32(v4)|^binary.BigEndian.Uint32(mask))
	return b.String()
}
