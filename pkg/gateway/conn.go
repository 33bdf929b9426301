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

package gateway

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/turtacn/wsgate-go/pkg/actor"
	"github.com/turtacn/wsgate-go/pkg/session"
)

// deliverTimeout bounds how long a caller waits for the session actor to pick
// up and complete a write. It must exceed the session's own write deadline so
// a slow socket surfaces as a write error, not a mailbox timeout.
const deliverTimeout = 10 * time.Second

// wsConn is the registry- and router-facing handle for one connection. All
// writes go through the session actor's mailbox so replies and relayed
// commands never interleave on the socket.
type wsConn struct {
	id      string
	mailbox *actor.Mailbox
	closed  atomic.Bool
}

func newConn(id string, mb *actor.Mailbox) *wsConn {
	return &wsConn{id: id, mailbox: mb}
}

// Deliver writes a text payload to the device and reports the write outcome.
// The command relay relies on this result to decide between acknowledging
// the command and reporting a delivery failure.
func (c *wsConn) Deliver(payload string) error {
	if c.closed.Load() {
		return net.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	result := make(chan error, 1)
	if err := c.mailbox.SendContext(ctx, session.Deliver{Payload: payload, Result: result}); err != nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close asks the session to send a close frame and tear the connection down.
func (c *wsConn) Close(code int, reason string) error {
	if c.closed.Load() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()
	return c.mailbox.SendContext(ctx, session.Close{Code: code, Reason: reason})
}

// markClosed makes subsequent Deliver calls fail fast instead of waiting out
// the mailbox timeout against a terminated session actor.
func (c *wsConn) markClosed() {
	c.closed.Store(true)
}
