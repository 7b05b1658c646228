/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/InfamousVague/umbra/cluster/network"
	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/cluster/node/protocol"
)

// PeerHandler makes sense of what flows over a federation link. The federation implements it
type PeerHandler interface {
	// OnLinkUp is called once the link is established, before the first frame is read
	OnLinkUp(link *network.Link)

	// HandlePeerFrame processes one text frame received on link
	HandlePeerFrame(link *network.Link, frame []byte)

	// OnLinkDown is called after the link dropped, clean or not
	OnLinkDown(link *network.Link)
}

// DialFunc opens a link towards a federation endpoint
type DialFunc func(ctx context.Context, url string) (*network.Link, error)

// ControlPlaneManager keeps the federation links of a relay alive.
// For every configured peer URL it runs a supervisor that dials the peer's federation endpoint, serves the link
// until it drops, and dials again with an exponential backoff. Inbound links accepted by the HTTP server are
// served through the same ServeLink, so both directions share the keepalive and the handler callbacks.
type ControlPlaneManager struct {
	handler PeerHandler // Receives the link lifecycle and every frame
	dial    DialFunc    // Used by the supervisors, network.Dial by default

	mainLogger nlog.Logger // General subsystem logger

	minBackoff   time.Duration // First delay after a failure, also the delay after a clean close
	maxBackoff   time.Duration // Ceiling of the exponential backoff
	pingInterval time.Duration // Period of the PeerPing keepalive on every link

	supervised  sync.Map     // Peer URLs with a running supervisor
	activeLinks atomic.Int64 // Links currently served, inbound and outbound
	running     atomic.Bool
}

//============================================================================//
// These functions are helpers used to set the required components of the     //
// ControlPlaneManager. They are all required to start the manager correctly  //
//============================================================================//

// NewControlPlaneManager creates a manager with the default timings: backoff from 1s to 60s, keepalive every 30s
func NewControlPlaneManager() *ControlPlaneManager {
	return &ControlPlaneManager{
		dial: func(ctx context.Context, url string) (*network.Link, error) {
			return network.Dial(ctx, url, nil)
		},
		minBackoff:   time.Second,
		maxBackoff:   60 * time.Second,
		pingInterval: 30 * time.Second,
	}
}

// SetMainLogger injects the general logger
func (c *ControlPlaneManager) SetMainLogger(m nlog.Logger) { c.mainLogger = m }

// SetPeerHandler injects the handler of link events
func (c *ControlPlaneManager) SetPeerHandler(h PeerHandler) { c.handler = h }

// SetDialer replaces the function used to open outbound links
func (c *ControlPlaneManager) SetDialer(d DialFunc) { c.dial = d }

// SetBackoff overrides the reconnection delays
func (c *ControlPlaneManager) SetBackoff(min, max time.Duration) {
	c.minBackoff = min
	c.maxBackoff = max
}

// SetPingInterval overrides the keepalive period
func (c *ControlPlaneManager) SetPingInterval(d time.Duration) { c.pingInterval = d }

// IsReady tells whether this manager is ready to start, that is, all required components are set
func (c *ControlPlaneManager) IsReady() bool {
	return c.handler != nil &&
		c.dial != nil &&
		c.mainLogger != nil
}

// ActiveLinks returns how many links are being served right now
func (c *ControlPlaneManager) ActiveLinks() int64 {
	return c.activeLinks.Load()
}

//============================================================================//
//                                                                            //
//	        Supervisors and link handles.                                     //
//                                                                            //
//        THESE SHOULD BE RUN AS GOROUTINES, THEY ARE MOSTLY BLOCKING         //
//                                                                            //
//============================================================================//

// Run starts one supervisor per peer URL. It returns immediately, the supervisors stop with ctx
func (c *ControlPlaneManager) Run(ctx context.Context, peerURLs []string) {
	c.running.Store(true)
	for _, url := range peerURLs {
		c.AddPeer(ctx, url)
	}
	go func() {
		<-ctx.Done()
		c.running.Store(false)
		c.logf("Control plane: Stop signal received")
	}()
}

// AddPeer starts a supervisor for url, unless one is already running for it.
// Used both for the configured peers and the ones handed over by the bootstrap registry
func (c *ControlPlaneManager) AddPeer(ctx context.Context, url string) bool {
	if _, loaded := c.supervised.LoadOrStore(url, struct{}{}); loaded {
		return false
	}
	go c.SuperviseLink(ctx, url)
	return true
}

// SuperviseLink is the persistent connection loop for a single peer.
// A failed dial or a broken link doubles the delay up to maxBackoff, a clean close resets it to minBackoff.
// N.B. This is blocking, run as goroutine preferrably.
func (c *ControlPlaneManager) SuperviseLink(ctx context.Context, peerURL string) {
	defer c.supervised.Delete(peerURL)

	federationURL := node.FederationURL(peerURL)
	backoff := c.minBackoff

	for {
		select {
		case <-ctx.Done():
			c.logf("Supervisor for %s: Stop signal received", peerURL)
			return
		default:
		}

		c.logf("Connecting to peer relay %s...", federationURL)
		link, err := c.dial(ctx, federationURL)
		if err != nil {
			c.logf("Peer connection failed: %v", err)
		} else if clean := c.ServeLink(ctx, link); clean {
			c.logf("Peer connection to %s closed cleanly", federationURL)
			backoff = c.minBackoff
		} else {
			c.logf("Peer connection to %s dropped", federationURL)
		}

		c.logf("Reconnecting to %s after %v...", federationURL, backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > c.maxBackoff {
			backoff = c.maxBackoff
		}
	}
}

// ServeLink runs the writer and the keepalive of link, then reads frames into the handler until the link drops.
// It returns true when the link was closed cleanly.
// N.B. This is blocking, run as goroutine preferrably.
func (c *ControlPlaneManager) ServeLink(ctx context.Context, link *network.Link) bool {
	c.activeLinks.Add(1)
	defer c.activeLinks.Add(-1)

	linkCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go link.RunWriter(linkCtx)
	go c.keepalive(linkCtx, link)

	c.handler.OnLinkUp(link)

	// Recv does not observe ctx, the connection is torn down when the relay stops
	go func() {
		<-linkCtx.Done()
		link.Terminate()
	}()

	var err error
	for {
		var frame []byte
		frame, err = link.Recv()
		if err != nil {
			break
		}
		c.handler.HandlePeerFrame(link, frame)
	}

	cancel()
	link.Terminate()
	c.handler.OnLinkDown(link)
	return network.IsCleanClose(err)
}

// keepalive sends a PeerPing on a fixed period. Independent from the client pings handled by the data plane
func (c *ControlPlaneManager) keepalive(ctx context.Context, link *network.Link) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := link.SendJSON(protocol.NewPeerPing()); err != nil {
				return
			}
		}
	}
}

//============================================================================//
//	Logging wrappers                                                          //
//============================================================================//

// logf logs the given formatting string, with args, on the main logger.
func (c *ControlPlaneManager) logf(format string, v ...any) {
	if c.mainLogger != nil {
		c.mainLogger.Logf(format, v...)
	}
}
