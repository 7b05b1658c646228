/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sync"

	"github.com/InfamousVague/umbra/cluster/network"
	"github.com/InfamousVague/umbra/cluster/node"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	ServiceName    = "umbra.bootstrap.Registry"
	RegisterMethod = "Register"
)

// Generic number sequence for the number of neighbors of a relay.
var neighborCountSequence = []uint8{1, 1, 1, 2, 1, 1, 1, 3, 1, 2, 1, 3, 2, 1, 3, 1, 2, 3, 1}

// Participant represents a relay instance on the bootstrap server.
type Participant struct {
	Id       node.RelayId `json:"id"`       // Stable relay id
	URL      string       `json:"url"`      // Public client URL, peers derive the federation endpoint from it
	Region   string       `json:"region"`   // Free-form region label
	Location string       `json:"location"` // Free-form location label
}

func (p Participant) toMap() map[string]any {
	return map[string]any{
		"relay_id":  string(p.Id),
		"relay_url": p.URL,
		"region":    p.Region,
		"location":  p.Location,
	}
}

func participantFrom(s *structpb.Struct) Participant {
	return Participant{
		Id:       node.RelayId(network.StructString(s, "relay_id")),
		URL:      network.StructString(s, "relay_url"),
		Region:   network.StructString(s, "region"),
		Location: network.StructString(s, "location"),
	}
}

// BootstrapNode is a server whose job is to listen to entering relays, and assign them federation peers.
// It handles the number of neighbors, and which neighbors, using a mix of increasing (++) and decreasing (--) Round Robin.
type BootstrapNode struct {
	logger   *log.Logger
	fileLock sync.Mutex

	numberIndex    uint8  // This is the index used to access the previous number sequence, to retrieve the number of neighbors
	assigningIndex uint64 // This is the index used to access the current List of relays, to retrieve the actual neighbor

	partecipants []Participant                     // List of registered relays
	topology     map[node.RelayId]([]node.RelayId) // Map of the topology, each relay (marked by ID) as a list of Neighbors

	configFile   string // Path of the configuration file
	configLock   sync.Mutex
	inMemoryLock sync.RWMutex

	logChan chan string // Strings aren't directly written on file, but rather buffered here, and an async function writes them.
}

// NewBootstrapNode creates and returns a pointer to a BootstrapNode, configured with the given logfile and configFile.
// If the creation is successful, the error is nil, otherwise the pointer is nil.
func NewBootstrapNode(logfile string, configFile string) (*BootstrapNode, error) {
	logFile, err := os.OpenFile(logfile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	logger := log.New(logFile, "Bootstrap ", log.Ldate|log.Ltime)
	logger.Printf("Bootstrap node created, config{%s}", configFile)

	return &BootstrapNode{
		logger:       logger,
		partecipants: []Participant{},
		topology:     make(map[node.RelayId]([]node.RelayId)),
		configFile:   configFile,
		logChan:      make(chan string, 500),
	}, nil
}

// writeToLogAsync is a function that continuosly listens on a channel, and when it receives a message
// it writes it onto the logger.
// ctx is a context used to correctly stop the function in case the caller is stopped.
func (b *BootstrapNode) writeToLogAsync(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case toWrite := <-b.logChan:
			b.fileLock.Lock()
			b.logger.Print(toWrite)
			b.fileLock.Unlock()
		}
	}
}

// logf composes the given format string and appends it to the channel, waiting to be logged.
// Lines are dropped when the writer falls behind
func (b *BootstrapNode) logf(format string, v ...any) {
	select {
	case b.logChan <- fmt.Sprintf(format, v...):
	default:
	}
}

// HandleStruct serves the gRPC registry. The only method is Register
func (b *BootstrapNode) HandleStruct(ctx context.Context, method string, req *structpb.Struct) (*structpb.Struct, error) {
	if method != RegisterMethod {
		return nil, status.Errorf(codes.Unimplemented, "Unknown method %s", method)
	}

	p := participantFrom(req)
	if p.Id == "" {
		return nil, status.Error(codes.InvalidArgument, "relay_id is required")
	}
	if err := node.IsPeerURLValid(p.URL); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	peers := b.Register(p)
	list := make([]any, 0, len(peers))
	for _, peer := range peers {
		list = append(list, peer.toMap())
	}
	return structpb.NewStruct(map[string]any{"success": true, "peers": list})
}

// Register adds p to the mesh and returns the peers it should dial
// The state file is rewritten before returning
func (b *BootstrapNode) Register(p Participant) []Participant {
	b.inMemoryLock.Lock()
	neighborIds := b.RegisterRelay(p)
	b.logf("Registered relay{%s, %s}. His neighbors are {%v}", p.Id, p.URL, neighborIds)

	peers := make([]Participant, 0, len(neighborIds))
	for _, id := range neighborIds {
		if neighbor, err := b.getPartecipantById(id); err == nil {
			peers = append(peers, neighbor)
		}
	}
	b.inMemoryLock.Unlock()

	if err := b.StoreConfig(); err != nil {
		b.logf("Could not store the state: %v", err)
	}
	return peers
}

// getPartecipantById retrieves a Participant by its id.
// Returns it and, if successful, err == nil, otherwise the participant is empty and err contains an error.
func (b *BootstrapNode) getPartecipantById(id node.RelayId) (Participant, error) {
	for _, p := range b.partecipants {
		if p.Id == id {
			return p, nil
		}
	}
	return Participant{}, fmt.Errorf("The relay %s is not present", id)
}

// StartBootstrap starts the gRPC server of the BootstrapNode, waiting for incoming relays to serve.
// ctx is a context used to gracefully terminate the server in case of a sender shutoff.
// The gRPC server listens on tcp:port. It returns when the server stops
func (b *BootstrapNode) StartBootstrap(ctx context.Context, port uint16) error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	return b.Serve(ctx, lis)
}

// Serve runs the registry on an already open listener
func (b *BootstrapNode) Serve(ctx context.Context, lis net.Listener) error {
	go b.writeToLogAsync(ctx)

	b.logf("Started listening on %s", lis.Addr())
	grpcServer := grpc.NewServer()
	grpcServer.RegisterService(network.NewStructServiceDesc(ServiceName, RegisterMethod), b)

	go func() {
		<-ctx.Done()
		b.logf("Shutting down gRPC server...")
		grpcServer.GracefulStop()
	}()

	b.logf("Awaiting to serve")
	return grpcServer.Serve(lis)
}

// RegisterRelay is the actual logic called inside the gRPC registration request handler.
// neighbors is a list of ID's, marking the neighbors of the asking relay. If a relay happens to get '[]' as neighbors, it means
// it is the first one in the mesh. The caller holds inMemoryLock
func (b *BootstrapNode) RegisterRelay(p Participant) (neighbors []node.RelayId) {
	b.logf("Registering relay...ID{%s}, URL{%s}", p.Id, p.URL)

	for idx, partecipant := range b.partecipants {
		if partecipant.Id == p.Id {
			b.logf("Relay %s already present, refreshing its details", p.Id)
			b.partecipants[idx] = p
			return b.topology[p.Id]
		}
	}

	b.logf("Relay %s is new, calculating his neighbors", p.Id)
	partecipantCount := len(b.partecipants)
	if partecipantCount == 0 {
		b.logf("There are no partecipants, relay %s is alone", p.Id)
		b.partecipants = append(b.partecipants, p)
		b.topology[p.Id] = []node.RelayId{}
		return []node.RelayId{}
	}

	// We need to decide its neighbors
	nextIdx := b.nextNumberIndex()
	neighborCount := int(neighborCountSequence[nextIdx]) // How many neighbors?
	if neighborCount > partecipantCount {
		b.logf("[%s] There are only %d partecipants, shrinking %d => %d", p.Id, partecipantCount, neighborCount, partecipantCount)
		neighborCount = partecipantCount
	}

	neighbors = []node.RelayId{}
	for len(neighbors) < neighborCount {
		next := b.partecipants[b.nextAssigningIndex()]
		if !containsId(neighbors, next.Id) {
			neighbors = append(neighbors, next.Id)
		}
	}

	b.partecipants = append(b.partecipants, p) // Add it later to not cause inconsitencies
	b.topology[p.Id] = neighbors
	for _, id := range neighbors {
		b.topology[id] = append(b.topology[id], p.Id)
	}

	return b.topology[p.Id]
}

func containsId(ids []node.RelayId, id node.RelayId) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// RemoveRelay removes a relay from the mesh, based on the given id
func (b *BootstrapNode) RemoveRelay(id node.RelayId) {
	b.inMemoryLock.Lock()
	defer b.inMemoryLock.Unlock()

	i := 0
	for idx, partecipant := range b.partecipants {
		if partecipant.Id != id {
			b.partecipants[i] = b.partecipants[idx]
			i++
		}
	}
	b.partecipants = b.partecipants[:i]

	delete(b.topology, id)
	for other, neighbors := range b.topology {
		kept := neighbors[:0]
		for _, n := range neighbors {
			if n != id {
				kept = append(kept, n)
			}
		}
		b.topology[other] = kept
	}
}

// Neighbors returns the current neighbors of id
func (b *BootstrapNode) Neighbors(id node.RelayId) []node.RelayId {
	b.inMemoryLock.RLock()
	defer b.inMemoryLock.RUnlock()

	return append([]node.RelayId{}, b.topology[id]...)
}

// nextNumberIndex calculate the next neighbor number index in the sequence.
// It uses Round Robin.
func (b *BootstrapNode) nextNumberIndex() uint8 {
	b.numberIndex++
	return b.numberIndex % uint8(len(neighborCountSequence))
}

// nextAssigningIndex calculate the next index in the current relay list.
// It uses a reversed Round Robin (decreasing, circular).
func (b *BootstrapNode) nextAssigningIndex() uint64 {
	if len(b.partecipants) == 0 {
		return 0
	}

	if b.assigningIndex == 0 {
		b.assigningIndex = uint64(len(b.partecipants))
	}
	b.assigningIndex--
	return b.assigningIndex % uint64(len(b.partecipants))
}

type savedState struct {
	AssigningIndex uint64                          `json:"assigning-index"`
	NumberIndex    uint8                           `json:"number-index"`
	Partecipants   []Participant                   `json:"partecipants"`
	Topology       map[node.RelayId][]node.RelayId `json:"topology"`
}

// StoreConfig saves the current state of the BootstrapNode on its config file
// Everything is saved in JSON format for simplicity, and can be hand modified.
// It returns nil when succesful
func (b *BootstrapNode) StoreConfig() error {
	b.inMemoryLock.RLock()
	payload, err := json.Marshal(savedState{
		b.assigningIndex,
		b.numberIndex,
		b.partecipants,
		b.topology,
	})
	b.inMemoryLock.RUnlock()
	if err != nil {
		return err
	}

	b.configLock.Lock()
	defer b.configLock.Unlock()

	tmp := fmt.Sprintf("%s.tmp", b.configFile)
	if err := os.WriteFile(tmp, payload, 0644); err != nil {
		return err
	}
	b.logf("Storing state on config file...")
	return os.Rename(tmp, b.configFile)
}

// LoadConfig retrieves the state of the BootstrapNode from its config file
// An empty or missing file leaves the registry empty
func (b *BootstrapNode) LoadConfig() error {
	b.configLock.Lock()
	file, err := os.OpenFile(b.configFile, os.O_RDONLY|os.O_CREATE, 0644)
	if err != nil {
		b.configLock.Unlock()
		return err
	}
	payload, err := io.ReadAll(file)
	file.Close()
	b.configLock.Unlock()
	if err != nil {
		return err
	}

	if len(payload) == 0 {
		return nil
	}

	var state savedState
	if err = json.Unmarshal(payload, &state); err != nil {
		return err
	}
	if state.Topology == nil {
		state.Topology = make(map[node.RelayId][]node.RelayId)
	}

	b.inMemoryLock.Lock()
	b.assigningIndex = state.AssigningIndex
	b.numberIndex = state.NumberIndex
	b.partecipants = state.Partecipants
	b.topology = state.Topology
	b.inMemoryLock.Unlock()

	b.logf("Loaded %d relays from config file", len(state.Partecipants))
	return nil
}

// RegisterWithBootstrap is the relay side of the registry: it announces self to the registry at addr
// and returns the peers the registry assigned
func RegisterWithBootstrap(ctx context.Context, addr string, self Participant) ([]Participant, error) {
	res, err := network.InvokeStruct(ctx, addr, ServiceName, RegisterMethod, self.toMap())
	if err != nil {
		return nil, err
	}
	if !network.StructBool(res, "success") {
		return nil, fmt.Errorf("The bootstrap registry refused the registration")
	}

	var peers []Participant
	for _, item := range network.StructList(res, "peers") {
		peers = append(peers, participantFrom(item))
	}
	return peers, nil
}
