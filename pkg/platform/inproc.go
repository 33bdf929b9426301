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
	"log"
	"sync"
)

// DataRecord is one ProcessData call observed by the loopback.
type DataRecord struct {
	Device string
	Data   string
}

// MessageRecord is one forwarded direct or group message.
type MessageRecord struct {
	Target  string
	Message string
}

// ResponseRecord is one command acknowledgement.
type ResponseRecord struct {
	CommandID string
	Response  string
}

// Loopback is an in-process Platform. It records every outbound call and
// lets callers feed backend events in, which makes it both the default
// transport for standalone runs and the test double for the whole engine.
type Loopback struct {
	// LookupFunc, when set, answers pull-mode directory lookups. It
	// receives the device identity and returns the device info payload; an
	// empty return means unregistered. When nil every lookup answers empty.
	LookupFunc func(device string) string

	mu             sync.Mutex
	events         chan Event
	closed         bool
	ready          int
	closeSignals   int
	connections    []string
	disconnections []string
	data           []DataRecord
	deviceMessages []MessageRecord
	groupMessages  []MessageRecord
	responses      []ResponseRecord
	logs           []string
	errors         []error
}

// NewLoopback creates a loopback platform with a buffered event stream.
func NewLoopback() *Loopback {
	return &Loopback{events: make(chan Event, 64)}
}

// NotifyReady records the ready signal.
func (l *Loopback) NotifyReady(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ready++
	return nil
}

// NotifyConnection records a device coming online.
func (l *Loopback) NotifyConnection(ctx context.Context, device string) error {
	if device == "" {
		return ErrMissingDevice
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connections = append(l.connections, device)
	return nil
}

// NotifyDisconnection records a device going offline.
func (l *Loopback) NotifyDisconnection(ctx context.Context, device string) error {
	if device == "" {
		return ErrMissingDevice
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disconnections = append(l.disconnections, device)
	return nil
}

// NotifyClose records the close signal.
func (l *Loopback) NotifyClose(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeSignals++
	return nil
}

// RequestDeviceInfo answers the lookup through the event stream, the same
// way the real backend would.
func (l *Loopback) RequestDeviceInfo(ctx context.Context, token, device string) error {
	if device == "" {
		return ErrMissingDevice
	}
	info := ""
	if l.LookupFunc != nil {
		info = l.LookupFunc(device)
	}
	l.emit(DeviceInfoEvent{Token: token, Info: info})
	return nil
}

// ProcessData records a forwarded data frame.
func (l *Loopback) ProcessData(ctx context.Context, device, data string) error {
	if device == "" {
		return ErrMissingDevice
	}
	if data == "" {
		return ErrMissingMessage
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.data = append(l.data, DataRecord{Device: device, Data: data})
	return nil
}

// SendMessageToDevice records a forwarded direct message.
func (l *Loopback) SendMessageToDevice(ctx context.Context, device, message string) error {
	if device == "" {
		return ErrMissingDevice
	}
	if message == "" {
		return ErrMissingMessage
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.deviceMessages = append(l.deviceMessages, MessageRecord{Target: device, Message: message})
	return nil
}

// SendMessageToGroup records a forwarded group envelope.
func (l *Loopback) SendMessageToGroup(ctx context.Context, group, message string) error {
	if group == "" {
		return ErrMissingGroup
	}
	if message == "" {
		return ErrMissingMessage
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.groupMessages = append(l.groupMessages, MessageRecord{Target: group, Message: message})
	return nil
}

// SendCommandResponse records a command acknowledgement.
func (l *Loopback) SendCommandResponse(ctx context.Context, commandID, response string) error {
	if commandID == "" {
		return ErrMissingCommandID
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.responses = append(l.responses, ResponseRecord{CommandID: commandID, Response: response})
	return nil
}

// Log records a structured event.
func (l *Loopback) Log(data string) {
	if data == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, data)
}

// ReportError records an error.
func (l *Loopback) ReportError(err error) {
	if err == nil {
		return
	}
	log.Printf("[WARN] platform error report: %v", err)
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, err)
}

// Events returns the backend event stream.
func (l *Loopback) Events() <-chan Event {
	return l.events
}

// Close closes the event stream. Further Emit calls are dropped.
func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	return nil
}

// EmitCommand feeds a backend command into the event stream.
func (l *Loopback) EmitCommand(device, commandID, command string) {
	l.emit(CommandEvent{Device: device, CommandID: commandID, Command: command})
}

// EmitDeviceAdded feeds a push-mode directory addition.
func (l *Loopback) EmitDeviceAdded(device string) {
	l.emit(DeviceAddedEvent{Device: device})
}

// EmitDeviceRemoved feeds a push-mode directory removal.
func (l *Loopback) EmitDeviceRemoved(device string) {
	l.emit(DeviceRemovedEvent{Device: device})
}

// EmitShutdown feeds a shutdown request.
func (l *Loopback) EmitShutdown() {
	l.emit(ShutdownEvent{})
}

// emit holds the lock across the send so a racing Close cannot close the
// channel between the closed check and the send. The send is non-blocking to
// keep Close from deadlocking against an emitter on a full buffer; a full
// buffer drops the event, same as the NATS transport.
func (l *Loopback) emit(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	select {
	case l.events <- ev:
	default:
	}
}

// Accessors below return copies for test assertions.

// Ready returns how many ready signals were sent.
func (l *Loopback) Ready() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ready
}

// CloseSignals returns how many close signals were sent.
func (l *Loopback) CloseSignals() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeSignals
}

// Connections returns the devices announced as connected.
func (l *Loopback) Connections() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.connections...)
}

// Disconnections returns the devices announced as disconnected.
func (l *Loopback) Disconnections() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.disconnections...)
}

// Data returns the forwarded data frames.
func (l *Loopback) Data() []DataRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]DataRecord(nil), l.data...)
}

// DeviceMessages returns the forwarded direct messages.
func (l *Loopback) DeviceMessages() []MessageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MessageRecord(nil), l.deviceMessages...)
}

// GroupMessages returns the forwarded group envelopes.
func (l *Loopback) GroupMessages() []MessageRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]MessageRecord(nil), l.groupMessages...)
}

// CommandResponses returns the command acknowledgements.
func (l *Loopback) CommandResponses() []ResponseRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ResponseRecord(nil), l.responses...)
}

// Logs returns the structured log events.
func (l *Loopback) Logs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.logs...)
}

// Errors returns the reported errors.
func (l *Loopback) Errors() []error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]error(nil), l.errors...)
}
