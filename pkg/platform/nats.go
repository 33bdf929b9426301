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

package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"
)

// Subjects of the gateway <-> platform contract. The platform.* subjects are
// published by the gateway; the gateway.* subjects are published by the
// backend and surfaced as Events.
const (
	subjReady          = "platform.gateway.ready"
	subjClose          = "platform.gateway.close"
	subjConnection     = "platform.device.connection"
	subjDisconnect     = "platform.device.disconnect"
	subjDeviceInfoReq  = "platform.deviceinfo.request"
	subjData           = "platform.device.data"
	subjMessageDevice  = "platform.message.device"
	subjMessageGroup   = "platform.message.group"
	subjCommandResp    = "platform.command.response"
	subjLog            = "platform.log"
	subjError          = "platform.error"
	subjCommand        = "gateway.command"
	subjDeviceAdded    = "gateway.device.added"
	subjDeviceRemoved  = "gateway.device.removed"
	subjDeviceInfoResp = "gateway.deviceinfo.response"
	subjShutdown       = "gateway.shutdown"
)

// NATS is a Platform implementation over a NATS connection. Outbound calls
// publish JSON payloads; backend events arrive on gateway.* subjects and are
// decoded onto the Events channel.
type NATS struct {
	nc     *nats.Conn
	owned  bool
	events chan Event
	subs   []*nats.Subscription
}

// DialNATS connects to the given NATS URL and wraps the connection. The
// connection is owned and closed by Close.
func DialNATS(url, name string) (*NATS, error) {
	nc, err := nats.Connect(url,
		nats.Name(name),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	p, err := NewNATS(nc)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.owned = true
	return p, nil
}

// NewNATS wraps an existing NATS connection. The caller keeps ownership of
// the connection unless it came from DialNATS.
func NewNATS(nc *nats.Conn) (*NATS, error) {
	p := &NATS{nc: nc, events: make(chan Event, 256)}

	subscriptions := []struct {
		subject string
		decode  func(data []byte) (Event, error)
	}{
		{subjCommand, func(data []byte) (Event, error) {
			var ev CommandEvent
			err := json.Unmarshal(data, &ev)
			return ev, err
		}},
		{subjDeviceAdded, func(data []byte) (Event, error) {
			var ev DeviceAddedEvent
			err := json.Unmarshal(data, &ev)
			return ev, err
		}},
		{subjDeviceRemoved, func(data []byte) (Event, error) {
			var ev DeviceRemovedEvent
			err := json.Unmarshal(data, &ev)
			return ev, err
		}},
		{subjDeviceInfoResp, func(data []byte) (Event, error) {
			var ev DeviceInfoEvent
			err := json.Unmarshal(data, &ev)
			return ev, err
		}},
		{subjShutdown, func(data []byte) (Event, error) {
			return ShutdownEvent{}, nil
		}},
	}

	for _, s := range subscriptions {
		decode := s.decode
		subject := s.subject
		sub, err := nc.Subscribe(subject, func(m *nats.Msg) {
			ev, err := decode(m.Data)
			if err != nil {
				log.Printf("[WARN] Dropping malformed platform event on %s: %v", subject, err)
				return
			}
			select {
			case p.events <- ev:
			default:
				log.Printf("[WARN] Platform event buffer full, dropping event from %s", subject)
			}
		})
		if err != nil {
			p.unsubscribeAll()
			return nil, fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		p.subs = append(p.subs, sub)
	}

	return p, nil
}

func (p *NATS) publish(ctx context.Context, subject string, v any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", subject, err)
	}
	if err := p.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// NotifyReady publishes the ready signal.
func (p *NATS) NotifyReady(ctx context.Context) error {
	return p.publish(ctx, subjReady, struct{}{})
}

// NotifyConnection publishes a device-online notification.
func (p *NATS) NotifyConnection(ctx context.Context, device string) error {
	if device == "" {
		return ErrMissingDevice
	}
	return p.publish(ctx, subjConnection, map[string]string{"device": device})
}

// NotifyDisconnection publishes a device-offline notification.
func (p *NATS) NotifyDisconnection(ctx context.Context, device string) error {
	if device == "" {
		return ErrMissingDevice
	}
	return p.publish(ctx, subjDisconnect, map[string]string{"device": device})
}

// NotifyClose publishes the close signal.
func (p *NATS) NotifyClose(ctx context.Context) error {
	return p.publish(ctx, subjClose, struct{}{})
}

// RequestDeviceInfo publishes the request leg of a pull-mode lookup. The
// backend answers on the gateway.deviceinfo.response subject with the same
// token.
func (p *NATS) RequestDeviceInfo(ctx context.Context, token, device string) error {
	if device == "" {
		return ErrMissingDevice
	}
	return p.publish(ctx, subjDeviceInfoReq, map[string]string{
		"requestId": token,
		"deviceId":  device,
	})
}

// ProcessData publishes a raw data frame for ingestion.
func (p *NATS) ProcessData(ctx context.Context, device, data string) error {
	if device == "" {
		return ErrMissingDevice
	}
	if data == "" {
		return ErrMissingMessage
	}
	return p.publish(ctx, subjData, map[string]string{"device": device, "data": data})
}

// SendMessageToDevice publishes a direct message envelope.
func (p *NATS) SendMessageToDevice(ctx context.Context, device, message string) error {
	if device == "" {
		return ErrMissingDevice
	}
	if message == "" {
		return ErrMissingMessage
	}
	return p.publish(ctx, subjMessageDevice, map[string]string{"device": device, "message": message})
}

// SendMessageToGroup publishes a group-addressed envelope.
func (p *NATS) SendMessageToGroup(ctx context.Context, group, message string) error {
	if group == "" {
		return ErrMissingGroup
	}
	if message == "" {
		return ErrMissingMessage
	}
	return p.publish(ctx, subjMessageGroup, map[string]string{"group": group, "message": message})
}

// SendCommandResponse publishes a command acknowledgement.
func (p *NATS) SendCommandResponse(ctx context.Context, commandID, response string) error {
	if commandID == "" {
		return ErrMissingCommandID
	}
	return p.publish(ctx, subjCommandResp, map[string]string{
		"commandId": commandID,
		"response":  response,
	})
}

// Log publishes a structured event to the platform log sinks. Publish
// failures are logged locally and never propagate.
func (p *NATS) Log(data string) {
	if data == "" {
		return
	}
	if err := p.publish(context.Background(), subjLog, map[string]string{"data": data}); err != nil {
		log.Printf("[WARN] Failed to publish platform log: %v", err)
	}
}

// ReportError publishes an error to the platform exception sinks.
func (p *NATS) ReportError(reported error) {
	if reported == nil {
		return
	}
	err := p.publish(context.Background(), subjError, map[string]string{"message": reported.Error()})
	if err != nil {
		log.Printf("[WARN] Failed to publish platform error: %v", err)
	}
}

// Events returns the backend event stream.
func (p *NATS) Events() <-chan Event {
	return p.events
}

// Close drains the subscriptions and, for owned connections, closes the
// underlying NATS connection.
func (p *NATS) Close() error {
	p.unsubscribeAll()
	if p.owned {
		p.nc.Close()
	}
	close(p.events)
	return nil
}

func (p *NATS) unsubscribeAll() {
	for _, sub := range p.subs {
		_ = sub.Unsubscribe()
	}
	p.subs = nil
}
