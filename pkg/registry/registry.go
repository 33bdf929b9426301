// Copyright 2024 The wsgate-go Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package registry provides the thread-safe, in-memory mapping from device
// identities to their live connections. It is the single source of truth for
// "is this device currently reachable through this gateway instance". The
// registry holds at most one connection per device: registration is
// first-writer-wins, so a duplicate connection claiming an already-bound
// device cannot hijack command routing until the prior binding is removed.
package registry

import "sync"

// Conn is the send capability the registry stores per device. The command
// relay uses it to deliver backend payloads without knowing anything about
// the transport behind it.
type Conn interface {
	// Deliver writes a text payload to the device. It returns an error if
	// the write fails or the connection is gone.
	Deliver(payload string) error
}

// Registry maps device identities to active connections.
type Registry struct {
	mu      sync.RWMutex
	devices map[string]Conn
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{devices: make(map[string]Conn)}
}

// Register binds deviceID to conn and reports whether the binding was
// inserted. If the device is already bound to a different connection the
// registry is left untouched and Register returns false. Re-registering the
// same connection is an idempotent no-op that returns false.
func (r *Registry) Register(deviceID string, conn Conn) bool {
	if deviceID == "" || conn == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.devices[deviceID]; ok {
		return false
	}
	r.devices[deviceID] = conn
	return true
}

// Lookup returns the connection bound to deviceID, if any.
func (r *Registry) Lookup(deviceID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.devices[deviceID]
	return conn, ok
}

// Unregister removes the entry whose value is conn and returns the device
// identity it was bound under. It is idempotent and a no-op for connections
// that never bound a device; the second return reports whether a binding was
// removed, which the lifecycle cleanup uses to decide on a disconnect
// notification.
func (r *Registry) Unregister(conn Conn) (string, bool) {
	if conn == nil {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.devices {
		if c == conn {
			delete(r.devices, id)
			return id, true
		}
	}
	return "", false
}

// Len returns the number of bound devices.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
