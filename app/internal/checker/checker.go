// Package checker decides whether the network is usable for uploads.
package checker

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Network reports reachability of the remote API and whether the current
// link is metered.
type Network struct {
	probeURL string
	timeout  time.Duration
	metered  bool
	http     *resty.Client
	logger   *zap.Logger
}

// New creates a Network checker. probeURL may be tcp://host:port, an
// http(s) URL, or empty (always connected).
func New(probeURL string, timeout time.Duration, metered bool, logger *zap.Logger) *Network {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Network{
		probeURL: probeURL,
		timeout:  timeout,
		metered:  metered,
		http:     resty.New().SetTimeout(timeout).SetRetryCount(0),
		logger:   logger,
	}
}

// Metered reports whether uploads would go over a metered (mobile) link
func (n *Network) Metered() bool {
	return n.metered
}

// Connected probes the configured target. Any HTTP response counts as
// reachable; only transport failures do not.
func (n *Network) Connected(ctx context.Context) bool {
	if n.probeURL == "" {
		return true
	}

	if strings.HasPrefix(n.probeURL, "tcp://") {
		addr := strings.TrimPrefix(n.probeURL, "tcp://")
		d := net.Dialer{Timeout: n.timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			n.logger.Debug("tcp probe failed", zap.String("addr", addr), zap.Error(err))
			return false
		}
		_ = conn.Close()
		return true
	}

	_, err := n.http.R().SetContext(ctx).Head(n.probeURL)
	if err != nil {
		n.logger.Debug("http probe failed", zap.String("url", n.probeURL), zap.Error(err))
		return false
	}
	return true
}
