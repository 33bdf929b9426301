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

// Package platform abstracts the backend platform the gateway bridges to.
// The Platform interface covers the outbound surface (connection and data
// notifications, message forwarding, command acknowledgements, logging) and
// exposes the backend-originated event stream (commands to relay, directory
// updates, pull-mode lookup responses, shutdown). Two transports are
// provided: a NATS-based one for production and an in-process loopback used
// by tests and standalone runs.
package platform

import (
	"context"
	"errors"
)

var (
	// ErrMissingDevice is returned when a call requires a device identifier
	// and none was given.
	ErrMissingDevice = errors.New("a valid client/device identifier is required")
	// ErrMissingGroup is returned when a group call has no group name.
	ErrMissingGroup = errors.New("a valid group name is required")
	// ErrMissingMessage is returned when a message call has no payload.
	ErrMissingMessage = errors.New("a valid message is required")
	// ErrMissingCommandID is returned when a command acknowledgement has no
	// correlation id.
	ErrMissingCommandID = errors.New("a valid command id is required")
)

// Event is a backend-originated event delivered through Platform.Events.
// The concrete types are CommandEvent, DeviceAddedEvent, DeviceRemovedEvent,
// DeviceInfoEvent and ShutdownEvent.
type Event any

// CommandEvent instructs the gateway to relay a command to a connected
// device. CommandID is the backend's correlation key for the delivery
// acknowledgement.
type CommandEvent struct {
	Device    string `json:"device"`
	CommandID string `json:"commandId"`
	Command   string `json:"command"`
}

// DeviceAddedEvent announces that a device identity became authorized
// (push-mode directory synchronization).
type DeviceAddedEvent struct {
	Device string `json:"device"`
}

// DeviceRemovedEvent announces that a device identity was deauthorized.
type DeviceRemovedEvent struct {
	Device string `json:"device"`
}

// DeviceInfoEvent answers a pull-mode directory lookup. Token echoes the
// correlation token of the request; an empty Info means the device is not
// registered.
type DeviceInfoEvent struct {
	Token string `json:"requestId"`
	Info  string `json:"deviceInfo"`
}

// ShutdownEvent asks the gateway to shut down gracefully.
type ShutdownEvent struct{}

// Platform is the gateway's view of the backend.
//
// All outbound calls are safe for concurrent use. Log and ReportError are
// fire-and-forget by design: the original gateway never let a failing log
// call disturb frame processing, and neither does this one.
type Platform interface {
	// NotifyReady signals that the gateway finished initializing.
	NotifyReady(ctx context.Context) error
	// NotifyConnection marks a device online after its first accepted data
	// frame.
	NotifyConnection(ctx context.Context, device string) error
	// NotifyDisconnection marks a device offline after its bound connection
	// closed.
	NotifyDisconnection(ctx context.Context, device string) error
	// NotifyClose signals that resources were released and the gateway can
	// terminate.
	NotifyClose(ctx context.Context) error
	// RequestDeviceInfo issues the request leg of a pull-mode directory
	// lookup. The response arrives later as a DeviceInfoEvent carrying the
	// same token.
	RequestDeviceInfo(ctx context.Context, token, device string) error
	// ProcessData forwards a raw data frame for ingestion.
	ProcessData(ctx context.Context, device, data string) error
	// SendMessageToDevice forwards a direct message envelope.
	SendMessageToDevice(ctx context.Context, device, message string) error
	// SendMessageToGroup forwards a group-addressed envelope. Resolving the
	// group to member devices is the backend's responsibility.
	SendMessageToGroup(ctx context.Context, group, message string) error
	// SendCommandResponse acknowledges a relayed command using the
	// backend's command id as correlation key.
	SendCommandResponse(ctx context.Context, commandID, response string) error
	// Log submits a structured event (a JSON document) to the platform's
	// log sinks.
	Log(data string)
	// ReportError submits an error to the platform's exception sinks.
	ReportError(err error)
	// Events returns the backend-originated event stream. The channel is
	// closed when the platform is closed.
	Events() <-chan Event
	// Close releases the transport.
	Close() error
}
