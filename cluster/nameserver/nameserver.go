/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package nameserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/InfamousVague/umbra/cluster/network"
	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/gorilla/sessions"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName    = "umbra.nameserver.Registry"
	RegisterMethod = "Register"

	sessionName = "umbra-relay"
	relayKey    = "relay_url"
)

// NameServer listen to incoming relays and registers their public URL.
// It also listens to incoming HTTP connections, just to redirect
// them onto one of the registered ones. A browser keeps being sent to the same relay while it is registered
type NameServer struct {
	relays            []string // List of registered relay URLs
	mu                sync.Mutex
	roundRobinCounter int
	store             sessions.Store
}

// NewNameServer creates an empty nameserver, sessions are signed with secret
func NewNameServer(secret []byte) *NameServer {
	store := sessions.NewCookieStore(secret)
	store.Options = &sessions.Options{Path: "/", MaxAge: 86400, HttpOnly: true, SameSite: http.SameSiteLaxMode}

	return &NameServer{
		relays: make([]string, 0),
		store:  store,
	}
}

// HandleStruct receives a gRPC registration, adds the relay amongst the other active ones and returns a response
func (s *NameServer) HandleStruct(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	if method != RegisterMethod {
		return nil, status.Errorf(codes.Unimplemented, "Unknown method %s", method)
	}
	relayURL := network.StructString(req, "relay_url")
	if err := node.IsPeerURLValid(relayURL); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	s.Register(relayURL)
	return structpb.NewStruct(map[string]any{"success": true})
}

// Register adds relayURL once
func (s *NameServer) Register(relayURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, known := range s.relays {
		if known == relayURL {
			return
		}
	}
	s.relays = append(s.relays, relayURL)
}

// Relays returns the registered relay URLs
func (s *NameServer) Relays() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string{}, s.relays...)
}

func (s *NameServer) isRegistered(relayURL string) bool {
	for _, known := range s.relays {
		if known == relayURL {
			return true
		}
	}
	return false
}

// UserEntryPoint is used to redirect incoming HTTP connections towards one of the registered relays
func (s *NameServer) UserEntryPoint(w http.ResponseWriter, r *http.Request) {
	session, _ := s.store.Get(r, sessionName) // A bad cookie still yields a fresh session

	s.mu.Lock()
	if len(s.relays) == 0 {
		s.mu.Unlock()
		http.Error(w, "No relay is available now.", http.StatusServiceUnavailable)
		return
	}

	relay, _ := session.Values[relayKey].(string)
	if !s.isRegistered(relay) {
		index := s.roundRobinCounter % len(s.relays)
		s.roundRobinCounter++
		relay = s.relays[index]
	}
	s.mu.Unlock()

	session.Values[relayKey] = relay
	if err := session.Save(r, w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	http.Redirect(w, r, StatusPageURL(relay), http.StatusTemporaryRedirect)
}

// StatusPageURL maps a relay websocket URL onto its HTTP landing page
func StatusPageURL(relayURL string) string {
	u, err := url.Parse(relayURL)
	if err != nil {
		return relayURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	default:
		u.Scheme = "http"
	}
	u.Path = "/"
	u.RawQuery = ""
	return u.String()
}

// Start runs the gRPC registry on grpcPort and the HTTP entry point on httpPort, until ctx is done
func (s *NameServer) Start(ctx context.Context, grpcPort, httpPort uint16) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", grpcPort))
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(network.NewStructServiceDesc(ServiceName, RegisterMethod), s)

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.UserEntryPoint)
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", httpPort), Handler: mux}

	errs := make(chan error, 2)
	go func() { errs <- grpcServer.Serve(lis) }()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err = <-errs:
	}
	grpcServer.GracefulStop()
	httpServer.Close()
	return err
}

// RegisterWithNameserver announces relayURL to the nameserver at addr
func RegisterWithNameserver(ctx context.Context, addr, relayURL string) error {
	res, err := network.InvokeStruct(ctx, addr, ServiceName, RegisterMethod, map[string]any{"relay_url": relayURL})
	if err != nil {
		return err
	}
	if !network.StructBool(res, "success") {
		return fmt.Errorf("The nameserver refused the registration")
	}
	return nil
}
