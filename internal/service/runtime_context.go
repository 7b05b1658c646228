/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package service

import (
	"sync"
	"time"

	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/cluster/node"
	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/data"
	"github.com/InfamousVague/umbra/internal/identity"
)

// RelaySender is the part of the relay connection the services need: handing an envelope to the relay for a DID
type RelaySender interface {
	Send(toDid, payload string) error
}

// RuntimeContext stores the state of one running client: its identity, database, relay connection and event sink.
// Services receive it by reference and read it under the shared lock; only identity changes take the exclusive one
type RuntimeContext struct {
	mutex sync.RWMutex

	identity *identity.Identity   // Loaded or created identity, nil before onboarding
	storage  *data.StorageManager // Database handle, nil until opened
	relay    RelaySender          // Relay connection, nil while offline
	events   EventSink            // Where domain events are published
	clock    node.Clock           // Source of timestamps
	logger   nlog.Logger          // Logs a format string
}

//=========================================================//
// The following functions are basically wrappers of the   //
// fields of the RuntimeContext, the only difference is    //
// that they are mutex guarded                             //
//=========================================================//

// NewRuntimeContext returns a new runtime context over storage, without identity nor relay
func NewRuntimeContext(storage *data.StorageManager, clock node.Clock) *RuntimeContext {
	if clock == nil {
		clock = node.SystemClock{}
	}
	return &RuntimeContext{storage: storage, events: NopSink{}, clock: clock}
}

// SetIdentity sets id as the active identity
func (r *RuntimeContext) SetIdentity(id *identity.Identity) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.identity = id
}

// Identity returns the active identity, NoIdentity when none was loaded
func (r *RuntimeContext) Identity() (*identity.Identity, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.identity == nil {
		return nil, apperr.New(apperr.NoIdentity, "no identity loaded")
	}
	return r.identity, nil
}

// Storage returns the database handle, NotInitialized when it was never opened
func (r *RuntimeContext) Storage() (*data.StorageManager, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.storage == nil {
		return nil, apperr.New(apperr.NotInitialized, "storage is not open")
	}
	return r.storage, nil
}

// SetRelay sets the relay connection, nil when going offline
func (r *RuntimeContext) SetRelay(relay RelaySender) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.relay = relay
}

// Relay returns the relay connection, NetworkNotStarted while offline
func (r *RuntimeContext) Relay() (RelaySender, error) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	if r.relay == nil {
		return nil, apperr.New(apperr.NetworkNotStarted, "not connected to a relay")
	}
	return r.relay, nil
}

// SetEventSink sets where events go, nil restores the no-op sink
func (r *RuntimeContext) SetEventSink(sink EventSink) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if sink == nil {
		sink = NopSink{}
	}
	r.events = sink
}

// Publish hands an event to the current sink
func (r *RuntimeContext) Publish(domain, kind string, payload any) {
	r.mutex.RLock()
	sink := r.events
	r.mutex.RUnlock()

	sink.Publish(Event{Domain: domain, Kind: kind, Payload: payload})
}

func (r *RuntimeContext) SetLogger(l nlog.Logger) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.logger = l
}

func (r *RuntimeContext) Logf(format string, v ...any) {
	r.mutex.RLock()
	l := r.logger
	r.mutex.RUnlock()

	if l != nil {
		l.Logf(format, v...)
	}
}

// NowMillis reads the context clock
func (r *RuntimeContext) NowMillis() int64 {
	return r.clock.NowMillis()
}

func (r *RuntimeContext) Now() time.Time {
	return r.clock.Now()
}
