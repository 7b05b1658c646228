/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package cluster

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/InfamousVague/umbra/cluster/bootstrap"
	"github.com/InfamousVague/umbra/cluster/control"
	"github.com/InfamousVague/umbra/cluster/nameserver"
	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/internal"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/handler"
	"github.com/InfamousVague/umbra/internal/input"
	"github.com/InfamousVague/umbra/internal/service"
	"github.com/InfamousVague/umbra/internal/view"
)

// Subsystem log files of a relay
const (
	mainLog       = "relay"
	federationLog = "federation"
	discoveryLog  = "discovery"
	httpLog       = "http"
	storageLog    = "storage"
)

// RelayNode represents a single relay. It holds the different components of the relay together:
// the data plane (sessions, offline queue, rooms, invites), the federation, the discovery directory
// and the HTTP server in front of them
type RelayNode struct {
	ready  atomic.Bool      // Is the relay ready?
	config *internal.Config // Config struct

	ctx          context.Context    // Context
	cancel       context.CancelFunc // Cancel function
	logicalClock *node.LogicalClock // Logical clock, stamps the log lines
	logger       *nlog.RelayLogger  // Logger component
	mainLogger   nlog.Logger

	info       *node.RelayInfo
	dataMan    *data.DataPlaneManager // Data plane manager
	federation *Federation            // nil while the relay runs standalone

	storageMan *data.StorageManager     // Relay directory
	discovery  service.DiscoveryService // Discovery and username registry
	inputMan   *input.InputManager      // HTTP server
}

// NewRelayNode creates a relay from cfg.
// It returns a pointer to said relay if no problems arise. Otherwise, the pointer is nil and an appropriate error is returned
func NewRelayNode(cfg *internal.Config) (*RelayNode, error) {
	info, err := node.NewRelayInfo(node.RelayId(cfg.RelayId), cfg.RelayURL, cfg.Region, cfg.Location, int(cfg.Port))
	if err != nil {
		return nil, err
	}

	clock := node.NewLogicalClock()
	logger, err := nlog.NewRelayLogger(info.GetId(), cfg.LogDirectory(), cfg.EnableLogging, cfg.LogPretty, clock)
	if err != nil {
		return nil, err
	}

	loggers := make(map[string]nlog.Logger)
	for _, name := range []string{mainLog, federationLog, discoveryLog, httpLog, storageLog} {
		l, err := logger.RegisterSubsystem(name)
		if err != nil {
			logger.CloseAll()
			return nil, err
		}
		loggers[name] = l
	}
	mainLogger := loggers[mainLog]
	mainLogger.Logf("Configuration loaded: Id{%s}, URL{%s}, Port{%d}, Peers{%v}", info.GetId(), info.GetURL(), info.GetPort(), cfg.PeerURLs)

	systemClock := node.SystemClock{}
	dm := data.NewDataPlaneManager(systemClock)
	dm.SetLogger(mainLogger)

	var federation *Federation
	if len(cfg.PeerURLs) > 0 || cfg.BootstrapAddr != "" {
		controlMan := control.NewControlPlaneManager()
		controlMan.SetMainLogger(loggers[federationLog])

		federation = NewFederation(info, controlMan)
		federation.SetLogger(loggers[federationLog])
		federation.SetLocalPresence(dm)
		dm.SetForwarder(federation)
	}

	storage, err := data.OpenRelayStorage(cfg.StorageDriver, cfg.DatabasePath(), systemClock.NowMillis())
	if err != nil {
		logger.CloseAll()
		return nil, fmt.Errorf("Could not open the relay directory: %v", err)
	}
	loggers[storageLog].Logf("Relay directory open at %s (%s)", cfg.DatabasePath(), cfg.StorageDriver)

	salt, err := cfg.LoadOrCreateSalt()
	if err != nil {
		storage.Close()
		logger.CloseAll()
		return nil, err
	}
	discovery := service.NewDiscoveryService(service.NewRuntimeContext(storage, systemClock), salt)

	renderer, err := view.NewDefaultPageRenderer()
	if err != nil {
		storage.Close()
		logger.CloseAll()
		return nil, err
	}

	mode := node.Standalone
	if federation != nil {
		mode = node.Federated
	}

	inputMan := input.NewInputManager()
	inputMan.SetLogger(loggers[httpLog])
	inputMan.SetDescription(handler.DescribeRelay(info, mode))
	inputMan.SetDataPlane(dm)
	if federation != nil {
		inputMan.SetFederation(federation)
	}
	inputMan.SetDiscoveryService(discovery)
	inputMan.SetRenderer(renderer)

	logger.Logf(mainLog, "Relay is all set, mode{%s}", mode)

	return &RelayNode{
		config:       cfg,
		logicalClock: clock,
		logger:       logger,
		mainLogger:   mainLogger,
		info:         info,
		dataMan:      dm,
		federation:   federation,
		storageMan:   storage,
		discovery:    discovery,
		inputMan:     inputMan,
	}, nil
}

// DefaultContext sets a default context.
// If successful, error is nil
func (n *RelayNode) DefaultContext() error {
	if n.ready.Load() {
		return fmt.Errorf("A context was already set...")
	}
	n.ready.Store(true)
	n.ctx, n.cancel = context.WithCancel(context.Background())
	return nil
}

// SetCustomContext injects a custom context with a cancel function.
// If successful, error is nil
func (n *RelayNode) SetCustomContext(ctx context.Context, cancel context.CancelFunc) error {
	if n.ready.Load() {
		return fmt.Errorf("A context was already set...")
	}
	n.ready.Store(true)
	n.ctx, n.cancel = ctx, cancel
	return nil
}

// EnableLogging enables the logger, making it so it writes to files again
func (n *RelayNode) EnableLogging() {
	n.logger.EnableLogging()
}

// DisableLogging disables the logger, making it so it doesn't write to files
func (n *RelayNode) DisableLogging() {
	n.logger.DisableLogging()
}

// logf logs the given string on the subsystem filename
func (n *RelayNode) logf(filename, format string, a ...any) {
	n.logger.Logf(filename, format, a...)
}

// Start is used to start every necessary component of the relay
// If the relay is not ready, an error is returned.
// Otherwise, error is nil and the following are started:
//   - Logger
//   - Data plane (federation processor and expiry sweep)
//   - Federation links and the registries, when configured
//   - Discovery cleanup
//   - HTTP server
func (n *RelayNode) Start() error {
	if !n.ready.Load() {
		return fmt.Errorf("Relay is not ready. Either the default or a custom context must be set.")
	}
	if !n.dataMan.IsReady() {
		return fmt.Errorf("Data Plane Manager is not ready... Missing components")
	}
	if !n.inputMan.IsReady() {
		return fmt.Errorf("Input Manager is not ready... Missing components")
	}

	n.logf(mainLog, "Relay booting up...")
	defer n.logf(mainLog, "Relay's goroutines started correctly")

	go n.logger.Run(n.ctx)

	n.dataMan.Run(n.ctx, time.Duration(n.config.SweepInterval)*time.Second)

	if n.federation != nil {
		peers := make([]string, 0, len(n.config.PeerURLs))
		for _, peer := range n.config.PeerURLs {
			peers = append(peers, node.FederationURL(peer))
		}
		n.federation.Start(n.ctx, peers)

		if n.config.BootstrapAddr != "" {
			go n.bootstrapDiscovery()
		}
	}

	go n.discovery.RunCleanup(n.ctx, time.Minute)

	if n.config.NameserverAddr != "" {
		go n.nameServerRegister()
	}

	go func() {
		if err := n.inputMan.Run(n.ctx, n.getInputManagerConfig()); err != nil {
			n.logf(mainLog, "HTTP server stopped: %v", err)
			n.cancel()
		}
	}()

	return nil
}

// Shutdown stops the relay and releases the storage and the log files. The context must be done
func (n *RelayNode) Shutdown() {
	if n.cancel != nil {
		n.cancel()
	}
	n.logf(mainLog, "Relay shutting down...")
	if err := n.storageMan.Close(); err != nil {
		n.logf(storageLog, "Could not close the relay directory: %v", err)
	}
	n.logger.CloseAll()
}

// bootstrapDiscovery registers this relay on the bootstrap registry, which tells it which peers to link to.
// The registry may be down when the relay boots, so registration is retried until it succeeds or the relay stops
func (n *RelayNode) bootstrapDiscovery() {
	self := bootstrap.Participant{
		Id:       n.info.GetId(),
		URL:      n.info.GetURL(),
		Region:   n.info.GetRegion(),
		Location: n.info.GetLocation(),
	}

	delay := time.Second
	for {
		peers, err := bootstrap.RegisterWithBootstrap(n.ctx, n.config.BootstrapAddr, self)
		if err == nil {
			n.logf(federationLog, "Peers recovered from the bootstrap registry: %v", peers)
			for _, peer := range peers {
				if peer.Id == n.info.GetId() {
					continue
				}
				n.federation.AddPeer(n.ctx, node.FederationURL(peer.URL))
			}
			return
		}

		n.logf(federationLog, "Bootstrap registration failed, retrying in %v: %v", delay, err)
		select {
		case <-n.ctx.Done():
			return
		case <-time.After(delay):
		}
		if delay < time.Minute {
			delay *= 2
		}
	}
}

// nameServerRegister announces the public URL of this relay to the nameserver
func (n *RelayNode) nameServerRegister() {
	n.logf(mainLog, "Registering %s on the nameserver %s", n.info.GetURL(), n.config.NameserverAddr)
	if err := nameserver.RegisterWithNameserver(n.ctx, n.config.NameserverAddr, n.info.GetURL()); err != nil {
		n.logf(mainLog, "Nameserver registration failed: %v", err)
	}
}

// getInputManagerConfig returns a struct with input manager configuration
func (n *RelayNode) getInputManagerConfig() *input.IptConfig {
	return &input.IptConfig{
		ServerPort:        n.config.Port,
		ReadHeaderTimeout: n.config.ReadHeaderTimeout,
		IdleTimeout:       n.config.IdleTimeout,
	}
}

// GetId returns the id of the relay
func (n *RelayNode) GetId() node.RelayId {
	return n.info.GetId()
}

// Stats returns the counters served on /stats
func (n *RelayNode) Stats() data.RelayStats {
	return n.dataMan.Stats()
}
