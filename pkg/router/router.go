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

// Package router dispatches parsed inbound frames by topic. Each frame goes
// through parse, validation, directory authorization and topic dispatch; every
// frame produces exactly one reply to the originating connection and exactly
// one structured log or error report toward the backend, so a client can tell
// success from failure without watching for a close.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"

	"github.com/gorilla/websocket"

	"github.com/turtacn/wsgate-go/pkg/codec"
	"github.com/turtacn/wsgate-go/pkg/config"
	"github.com/turtacn/wsgate-go/pkg/directory"
	"github.com/turtacn/wsgate-go/pkg/metrics"
	"github.com/turtacn/wsgate-go/pkg/registry"
)

// Reply and close-reason texts. Deployed devices parse these strings, so they
// are part of the wire contract and must not be reworded.
const (
	replyDataReceived = "Data Received"

	errInvalidData = `Invalid data sent. Must be a valid JSON String with a "topic" field and a "device" field which corresponds to a registered Device ID.`

	errInvalidCommand = `Invalid message or command. Message must be a valid JSON String with "device" or "deviceGroup" and "command" fields. "device" is the a registered Device ID. "command" is the payload.`
)

// Conn is the router-facing view of a live connection: it can be written to
// and it can be closed with a WebSocket status code.
type Conn interface {
	registry.Conn
	// Close terminates the connection with a close status code and reason.
	Close(code int, reason string) error
}

// Backend is the slice of the platform surface the router needs.
type Backend interface {
	NotifyConnection(ctx context.Context, device string) error
	ProcessData(ctx context.Context, device, data string) error
	SendMessageToDevice(ctx context.Context, device, message string) error
	SendMessageToGroup(ctx context.Context, group, message string) error
	Log(data string)
	ReportError(err error)
}

// Router routes inbound frames. It is the only component that inserts
// registry entries: a connection is bound under its device identity on the
// first data frame that clears authorization and backend ingestion.
type Router struct {
	topics  config.TopicsConfig
	dir     directory.Directory
	reg     *registry.Registry
	backend Backend
}

// New creates a router over the given topic taxonomy, directory policy,
// registry and backend.
func New(topics config.TopicsConfig, dir directory.Directory, reg *registry.Registry, backend Backend) *Router {
	return &Router{topics: topics, dir: dir, reg: reg, backend: backend}
}

// Route processes one inbound text frame from conn. All outcomes, including
// failures, are absorbed here: the sender gets its one reply (or a close for
// an unauthorized device) and the backend gets its one log or error report.
func (r *Router) Route(ctx context.Context, conn Conn, raw string) {
	frame, err := codec.Parse(raw)
	if err != nil {
		metrics.FramesTotal.WithLabelValues("malformed").Inc()
		r.backend.ReportError(errors.New(errInvalidData))
		r.reply(conn, errInvalidData)
		return
	}

	authorized, err := r.dir.Authorize(ctx, frame.Device)
	if errors.Is(err, context.Canceled) {
		// The connection went away while the lookup was in flight. Abandon
		// the frame: no reply toward a dead socket, no error noise.
		return
	}
	if err != nil {
		metrics.DirectoryLookupsTotal.WithLabelValues("error").Inc()
		r.backend.ReportError(fmt.Errorf("directory lookup for device %s: %w", frame.Device, err))
		authorized = false
	} else if authorized {
		metrics.DirectoryLookupsTotal.WithLabelValues("authorized").Inc()
	} else {
		metrics.DirectoryLookupsTotal.WithLabelValues("unauthorized").Inc()
	}

	if !authorized {
		metrics.FramesTotal.WithLabelValues("unauthorized").Inc()
		r.logEvent(struct {
			Title  string `json:"title"`
			Device string `json:"device"`
		}{
			Title:  "WS Gateway - Access Denied. Unauthorized Device",
			Device: frame.Device,
		})
		if err := conn.Close(websocket.ClosePolicyViolation, fmt.Sprintf("Device not registered. Device ID: %s\n", frame.Device)); err != nil {
			r.backend.ReportError(fmt.Errorf("closing unauthorized connection for device %s: %w", frame.Device, err))
		}
		return
	}

	switch frame.Topic {
	case r.topics.Data:
		r.routeData(ctx, conn, frame)
	case r.topics.Message:
		r.routeMessage(ctx, conn, frame)
	case r.topics.Group:
		r.routeGroupMessage(ctx, conn, frame)
	default:
		metrics.FramesTotal.WithLabelValues("unknown_topic").Inc()
		errMsg := fmt.Sprintf("Invalid topic specified. Topic: %s", frame.Topic)
		r.backend.ReportError(errors.New(errMsg))
		r.reply(conn, errMsg)
	}
}

// routeData forwards the raw frame for ingestion and, on the first success
// for this device, binds the connection in the registry and marks the device
// online.
func (r *Router) routeData(ctx context.Context, conn Conn, frame *codec.Frame) {
	if err := r.backend.ProcessData(ctx, frame.Device, frame.Raw); err != nil {
		r.backend.ReportError(fmt.Errorf("forwarding data for device %s: %w", frame.Device, err))
		return
	}

	metrics.FramesTotal.WithLabelValues("data").Inc()

	if r.reg.Register(frame.Device, conn) {
		if err := r.backend.NotifyConnection(ctx, frame.Device); err != nil {
			r.backend.ReportError(fmt.Errorf("notifying connection for device %s: %w", frame.Device, err))
		}
	}

	r.logEvent(struct {
		Title  string `json:"title"`
		Device string `json:"device"`
		Data   string `json:"data"`
	}{
		Title:  "WS Gateway - Data Received (data topic)",
		Device: frame.Device,
		Data:   frame.Raw,
	})
	r.reply(conn, replyDataReceived)
}

// routeMessage forwards a direct message envelope to the backend's
// device-messaging interface.
func (r *Router) routeMessage(ctx context.Context, conn Conn, frame *codec.Frame) {
	if frame.Message == "" || frame.Target == "" {
		metrics.FramesTotal.WithLabelValues("malformed").Inc()
		r.backend.ReportError(errors.New(errInvalidCommand))
		r.reply(conn, errInvalidCommand)
		return
	}

	if err := r.backend.SendMessageToDevice(ctx, frame.Target, frame.Message); err != nil {
		r.backend.ReportError(fmt.Errorf("forwarding message from device %s to device %s: %w", frame.Device, frame.Target, err))
		return
	}

	metrics.FramesTotal.WithLabelValues("message").Inc()
	r.logEvent(struct {
		Title   string `json:"title"`
		Device  string `json:"device"`
		Target  string `json:"target"`
		Command string `json:"command"`
	}{
		Title:   "WS Gateway - Message Received (command topic)",
		Device:  frame.Device,
		Target:  frame.Target,
		Command: frame.Message,
	})
	r.reply(conn, fmt.Sprintf("Command Received. Device ID: %s. Message: %s\n", frame.Device, frame.Raw))
}

// routeGroupMessage forwards a group-addressed envelope. The gateway never
// resolves group membership; fan-out to member devices is the backend's job.
func (r *Router) routeGroupMessage(ctx context.Context, conn Conn, frame *codec.Frame) {
	if frame.Message == "" || frame.Group == "" {
		metrics.FramesTotal.WithLabelValues("malformed").Inc()
		r.backend.ReportError(errors.New(errInvalidCommand))
		r.reply(conn, errInvalidCommand)
		return
	}

	if err := r.backend.SendMessageToGroup(ctx, frame.Group, frame.Message); err != nil {
		r.backend.ReportError(fmt.Errorf("forwarding message from device %s to group %s: %w", frame.Device, frame.Group, err))
		return
	}

	metrics.FramesTotal.WithLabelValues("group_message").Inc()
	r.logEvent(struct {
		Title   string `json:"title"`
		Device  string `json:"device"`
		Group   string `json:"deviceGroup"`
		Command string `json:"command"`
	}{
		Title:   "WS Gateway - Message Received (command topic)",
		Device:  frame.Device,
		Group:   frame.Group,
		Command: frame.Message,
	})
	r.reply(conn, fmt.Sprintf("Command Received. Device ID: %s. Message: %s\n", frame.Device, frame.Raw))
}

// reply writes a status line back to the originating connection. A write
// failure means the connection is going away; the lifecycle cleanup follows
// from the transport close, and a reply lost to an already-closed connection
// is not an error worth the backend's attention.
func (r *Router) reply(conn Conn, text string) {
	err := conn.Deliver(text)
	if err != nil && !errors.Is(err, net.ErrClosed) {
		r.backend.ReportError(fmt.Errorf("replying to connection: %w", err))
	}
}

// logEvent marshals a structured event and submits it to the backend's log
// sinks.
func (r *Router) logEvent(event any) {
	data, err := json.Marshal(event)
	if err != nil {
		r.backend.ReportError(fmt.Errorf("encoding log event: %w", err))
		return
	}
	r.backend.Log(string(data))
}
