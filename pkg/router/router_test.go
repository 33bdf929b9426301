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

package router

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/wsgate-go/pkg/config"
	"github.com/turtacn/wsgate-go/pkg/directory"
	"github.com/turtacn/wsgate-go/pkg/registry"
)

type mockConn struct {
	mu         sync.Mutex
	delivered  []string
	deliverErr error
	closed     bool
	closeCode  int
	closeText  string
}

func (c *mockConn) Deliver(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.deliverErr != nil {
		return c.deliverErr
	}
	c.delivered = append(c.delivered, payload)
	return nil
}

func (c *mockConn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.closeCode = code
	c.closeText = reason
	return nil
}

func (c *mockConn) replies() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.delivered...)
}

type mockBackend struct {
	mu          sync.Mutex
	connections []string
	data        [][2]string
	messages    [][2]string
	groups      [][2]string
	logs        []string
	errs        []error

	processDataErr error
	sendMsgErr     error
}

func (b *mockBackend) NotifyConnection(ctx context.Context, device string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connections = append(b.connections, device)
	return nil
}

func (b *mockBackend) ProcessData(ctx context.Context, device, data string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.processDataErr != nil {
		return b.processDataErr
	}
	b.data = append(b.data, [2]string{device, data})
	return nil
}

func (b *mockBackend) SendMessageToDevice(ctx context.Context, device, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendMsgErr != nil {
		return b.sendMsgErr
	}
	b.messages = append(b.messages, [2]string{device, message})
	return nil
}

func (b *mockBackend) SendMessageToGroup(ctx context.Context, group, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.groups = append(b.groups, [2]string{group, message})
	return nil
}

func (b *mockBackend) Log(data string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, data)
}

func (b *mockBackend) ReportError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = append(b.errs, err)
}

func (b *mockBackend) forwardCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data) + len(b.messages) + len(b.groups)
}

type failingDirectory struct{ err error }

func (d *failingDirectory) Authorize(ctx context.Context, deviceID string) (bool, error) {
	return false, d.err
}

func newTestRouter(devices ...string) (*Router, *registry.Registry, *mockBackend) {
	set := directory.NewAuthorizedSet()
	for _, d := range devices {
		_ = set.Add(d)
	}
	reg := registry.New()
	backend := &mockBackend{}
	r := New(config.DefaultConfig().Gateway.Topics, set, reg, backend)
	return r, reg, backend
}

func TestRouteMalformedFrameRepliesAndStaysOpen(t *testing.T) {
	r, reg, backend := newTestRouter("device-1")
	conn := &mockConn{}

	r.Route(context.Background(), conn, "not json at all")

	require.Len(t, conn.replies(), 1)
	assert.Equal(t, errInvalidData, conn.replies()[0])
	assert.False(t, conn.closed)
	assert.Equal(t, 0, backend.forwardCount())
	assert.Equal(t, 0, reg.Len())
	assert.Len(t, backend.errs, 1)
}

func TestRouteMissingFieldsRepliesOnce(t *testing.T) {
	r, reg, backend := newTestRouter("device-1")

	for _, raw := range []string{
		`{"topic":"data"}`,
		`{"device":"device-1"}`,
		`{}`,
	} {
		conn := &mockConn{}
		r.Route(context.Background(), conn, raw)
		assert.Len(t, conn.replies(), 1, "frame %q", raw)
		assert.Equal(t, errInvalidData, conn.replies()[0], "frame %q", raw)
		assert.False(t, conn.closed, "frame %q", raw)
	}
	assert.Equal(t, 0, backend.forwardCount())
	assert.Equal(t, 0, reg.Len())
}

func TestRouteUnauthorizedDeviceClosesConnection(t *testing.T) {
	r, reg, backend := newTestRouter()
	conn := &mockConn{}

	r.Route(context.Background(), conn, `{"topic":"data","device":"ghost","value":1}`)

	assert.True(t, conn.closed)
	assert.Equal(t, websocket.ClosePolicyViolation, conn.closeCode)
	assert.Contains(t, conn.closeText, "Device not registered. Device ID: ghost")
	assert.Empty(t, conn.replies())
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, backend.forwardCount())

	require.Len(t, backend.logs, 1)
	assert.Contains(t, backend.logs[0], "Access Denied")
	assert.Contains(t, backend.logs[0], "ghost")
}

func TestRouteDirectoryErrorTreatedAsUnauthorized(t *testing.T) {
	reg := registry.New()
	backend := &mockBackend{}
	r := New(config.DefaultConfig().Gateway.Topics, &failingDirectory{err: errors.New("lookup timed out")}, reg, backend)
	conn := &mockConn{}

	r.Route(context.Background(), conn, `{"topic":"data","device":"device-1"}`)

	assert.True(t, conn.closed)
	assert.Equal(t, websocket.ClosePolicyViolation, conn.closeCode)
	require.NotEmpty(t, backend.errs)
	assert.Contains(t, backend.errs[0].Error(), "lookup timed out")
}

func TestRouteAbandonedLookupStaysSilent(t *testing.T) {
	reg := registry.New()
	backend := &mockBackend{}
	r := New(config.DefaultConfig().Gateway.Topics, &failingDirectory{err: context.Canceled}, reg, backend)
	conn := &mockConn{}

	r.Route(context.Background(), conn, `{"topic":"data","device":"device-1"}`)

	assert.Empty(t, conn.replies(), "no reply toward a dead connection")
	assert.False(t, conn.closed)
	assert.Empty(t, backend.errs)
	assert.Equal(t, 0, backend.forwardCount())
	assert.Equal(t, 0, reg.Len())
}

func TestRouteReplyToClosedConnectionNotReported(t *testing.T) {
	r, _, backend := newTestRouter("device-1")
	conn := &mockConn{deliverErr: net.ErrClosed}

	r.Route(context.Background(), conn, `{"topic":"data","device":"device-1"}`)

	require.Len(t, backend.data, 1, "ingestion already happened")
	assert.Empty(t, backend.errs, "lost reply on a closed connection is not an error")
}

func TestRouteDataRegistersAndAcks(t *testing.T) {
	r, reg, backend := newTestRouter("device-1")
	conn := &mockConn{}
	raw := `{"topic":"data","device":"device-1","value":42}`

	r.Route(context.Background(), conn, raw)

	require.Len(t, backend.data, 1)
	assert.Equal(t, "device-1", backend.data[0][0])
	assert.Equal(t, raw, backend.data[0][1])

	got, ok := reg.Lookup("device-1")
	require.True(t, ok)
	assert.Same(t, conn, got.(*mockConn))

	assert.Equal(t, []string{"device-1"}, backend.connections)
	require.Len(t, conn.replies(), 1)
	assert.Equal(t, "Data Received", conn.replies()[0])

	require.Len(t, backend.logs, 1)
	assert.Contains(t, backend.logs[0], "Data Received (data topic)")
}

func TestRouteDataIdempotentRegistration(t *testing.T) {
	r, reg, backend := newTestRouter("device-1")
	conn := &mockConn{}
	raw := `{"topic":"data","device":"device-1","value":1}`

	r.Route(context.Background(), conn, raw)
	r.Route(context.Background(), conn, raw)

	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, []string{"device-1"}, backend.connections, "connection notified once")
	assert.Len(t, conn.replies(), 2, "each frame still acked")
}

func TestRouteDataSecondConnectionDoesNotSteal(t *testing.T) {
	r, reg, backend := newTestRouter("device-1")
	first := &mockConn{}
	second := &mockConn{}
	raw := `{"topic":"data","device":"device-1","value":1}`

	r.Route(context.Background(), first, raw)
	r.Route(context.Background(), second, raw)

	got, ok := reg.Lookup("device-1")
	require.True(t, ok)
	assert.Same(t, first, got.(*mockConn))
	assert.Equal(t, []string{"device-1"}, backend.connections)
	assert.Len(t, second.replies(), 1, "duplicate still gets its data ack")
}

func TestRouteDataBackendFailureSuppressesAck(t *testing.T) {
	r, reg, backend := newTestRouter("device-1")
	backend.processDataErr = errors.New("ingestion unavailable")
	conn := &mockConn{}

	r.Route(context.Background(), conn, `{"topic":"data","device":"device-1"}`)

	assert.Empty(t, conn.replies())
	assert.False(t, conn.closed)
	assert.Equal(t, 0, reg.Len())
	require.Len(t, backend.errs, 1)
	assert.Contains(t, backend.errs[0].Error(), "ingestion unavailable")
}

func TestRouteDirectMessage(t *testing.T) {
	r, _, backend := newTestRouter("device-1")
	conn := &mockConn{}
	raw := `{"topic":"command","device":"device-1","target":"device-2","message":"reboot"}`

	r.Route(context.Background(), conn, raw)

	require.Len(t, backend.messages, 1)
	assert.Equal(t, "device-2", backend.messages[0][0])
	assert.Equal(t, "reboot", backend.messages[0][1])

	require.Len(t, conn.replies(), 1)
	assert.Contains(t, conn.replies()[0], "Command Received. Device ID: device-1")
	require.Len(t, backend.logs, 1)
	assert.Contains(t, backend.logs[0], "Message Received (command topic)")
}

func TestRouteDirectMessageLegacyCommandField(t *testing.T) {
	r, _, backend := newTestRouter("device-1")
	conn := &mockConn{}

	r.Route(context.Background(), conn, `{"topic":"command","device":"device-1","target":"device-2","command":"reboot"}`)

	require.Len(t, backend.messages, 1)
	assert.Equal(t, "reboot", backend.messages[0][1])
}

func TestRouteDirectMessageMissingPayload(t *testing.T) {
	r, _, backend := newTestRouter("device-1")

	for _, raw := range []string{
		`{"topic":"command","device":"device-1","target":"device-2"}`,
		`{"topic":"command","device":"device-1","message":"reboot"}`,
	} {
		conn := &mockConn{}
		r.Route(context.Background(), conn, raw)
		require.Len(t, conn.replies(), 1, "frame %q", raw)
		assert.Equal(t, errInvalidCommand, conn.replies()[0], "frame %q", raw)
		assert.False(t, conn.closed, "frame %q", raw)
	}
	assert.Empty(t, backend.messages)
}

func TestRouteGroupMessage(t *testing.T) {
	r, _, backend := newTestRouter("device-1")
	conn := &mockConn{}

	r.Route(context.Background(), conn, `{"topic":"groupcommand","device":"device-1","group":"floor-3","message":"lights off"}`)

	require.Len(t, backend.groups, 1)
	assert.Equal(t, "floor-3", backend.groups[0][0])
	assert.Equal(t, "lights off", backend.groups[0][1])
	require.Len(t, conn.replies(), 1)
	assert.Contains(t, conn.replies()[0], "Command Received")
}

func TestRouteGroupMessageLegacyDeviceGroupField(t *testing.T) {
	r, _, backend := newTestRouter("device-1")
	conn := &mockConn{}

	r.Route(context.Background(), conn, `{"topic":"groupcommand","device":"device-1","deviceGroup":"floor-3","command":"lights off"}`)

	require.Len(t, backend.groups, 1)
	assert.Equal(t, "floor-3", backend.groups[0][0])
	assert.Equal(t, "lights off", backend.groups[0][1])
}

func TestRouteUnknownTopicRepliesAndStaysOpen(t *testing.T) {
	r, reg, backend := newTestRouter("device-1")
	conn := &mockConn{}

	r.Route(context.Background(), conn, `{"topic":"telemetry","device":"device-1"}`)

	require.Len(t, conn.replies(), 1)
	assert.Equal(t, "Invalid topic specified. Topic: telemetry", conn.replies()[0])
	assert.False(t, conn.closed)
	assert.Equal(t, 0, backend.forwardCount())
	assert.Equal(t, 0, reg.Len())
	require.Len(t, backend.errs, 1)
}

func TestRouteCustomTopicNames(t *testing.T) {
	set := directory.NewAuthorizedSet()
	_ = set.Add("device-1")
	reg := registry.New()
	backend := &mockBackend{}
	topics := config.TopicsConfig{Data: "telemetry", Message: "msg", Group: "broadcast"}
	r := New(topics, set, reg, backend)
	conn := &mockConn{}

	r.Route(context.Background(), conn, `{"topic":"telemetry","device":"device-1"}`)
	require.Len(t, backend.data, 1)

	r.Route(context.Background(), conn, `{"topic":"data","device":"device-1"}`)
	require.Len(t, conn.replies(), 2)
	assert.Contains(t, conn.replies()[1], "Invalid topic specified")
}
