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

// Package relay delivers backend-originated commands to connected devices.
// A command addressed to a device that is not connected through this gateway
// instance is dropped without retry or queuing: holding commands for offline
// devices is the backend's job, not the gateway's.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/turtacn/wsgate-go/pkg/metrics"
	"github.com/turtacn/wsgate-go/pkg/registry"
)

// ackMessageSent is the acknowledgement text the backend expects for a
// delivered command.
const ackMessageSent = "Message Sent"

// Backend is the slice of the platform surface the relay needs.
type Backend interface {
	SendCommandResponse(ctx context.Context, commandID, response string) error
	Log(data string)
	ReportError(err error)
}

// Relay looks up command targets in the connection registry and writes the
// payload to the live connection, acknowledging deliveries back to the
// backend keyed by the command id.
type Relay struct {
	reg     *registry.Registry
	backend Backend
}

// New creates a relay over the given registry and backend.
func New(reg *registry.Registry, backend Backend) *Relay {
	return &Relay{reg: reg, backend: backend}
}

// Relay delivers one command. Commands to different devices may be relayed
// concurrently; each call handles exactly one delivery attempt and never
// returns an error to the caller, all failures are reported to the backend.
func (r *Relay) Relay(ctx context.Context, device, commandID, command string) {
	conn, ok := r.reg.Lookup(device)
	if !ok {
		// Not connected here. The backend holds or discards the command.
		metrics.CommandsDroppedTotal.Inc()
		return
	}

	if err := conn.Deliver(command + "\n"); err != nil {
		metrics.CommandsFailedTotal.Inc()
		r.backend.ReportError(fmt.Errorf("delivering command %s to device %s: %w", commandID, device, err))
		return
	}

	metrics.CommandsRelayedTotal.Inc()
	if err := r.backend.SendCommandResponse(ctx, commandID, ackMessageSent); err != nil {
		r.backend.ReportError(fmt.Errorf("acknowledging command %s for device %s: %w", commandID, device, err))
		return
	}

	event, err := json.Marshal(struct {
		Title     string `json:"title"`
		Device    string `json:"device"`
		CommandID string `json:"commandId"`
		Command   string `json:"command"`
	}{
		Title:     ackMessageSent,
		Device:    device,
		CommandID: commandID,
		Command:   command,
	})
	if err != nil {
		r.backend.ReportError(fmt.Errorf("encoding relay log event: %w", err))
		return
	}
	r.backend.Log(string(event))
}
