package printer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/john/chitu_uploader/sdcp"
)

// BroadcastAuto selects every attached IPv4 subnet's broadcast address.
const BroadcastAuto = "auto"

// Discoverer locates a mainboard on the network.
type Discoverer interface {
	Discover(ctx context.Context) (sdcp.Device, error)
}

// NewDiscoverer builds a UDP discoverer. broadcast is a single address or
// hostname, BroadcastAuto, or empty for 255.255.255.255.
func NewDiscoverer(broadcast string, port int, timeout time.Duration, log *zap.Logger) (*sdcp.Discoverer, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := &sdcp.Discoverer{Port: port, Timeout: timeout, Logger: log}

	switch broadcast {
	case "":
	case BroadcastAuto:
		addrs, err := sdcp.SubnetBroadcastAddrs()
		if err != nil {
			return nil, fmt.Errorf("listing broadcast addresses: %w", err)
		}
		if len(addrs) == 0 {
			log.Warn("No IPv4 subnet found, falling back to limited broadcast")
			break
		}
		d.BroadcastAddrs = addrs
	default:
		d.BroadcastAddrs = []string{broadcast}
	}
	return d, nil
}
