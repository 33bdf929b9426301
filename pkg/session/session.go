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

// Package session provides the actor that owns all writes to a single device
// connection. Router replies and relayed backend commands both go through
// the session mailbox, which serializes them onto the WebSocket (gorilla
// connections allow only one concurrent writer).
package session

import (
	"context"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/turtacn/wsgate-go/pkg/actor"
)

const writeTimeout = 5 * time.Second

// Deliver asks the session to write a text payload to the device. When
// Result is non-nil the write outcome is reported on it; the command relay
// uses this to decide between acknowledging and reporting a delivery
// failure.
type Deliver struct {
	Payload string
	Result  chan<- error
}

// Close asks the session to send a close frame and terminate.
type Close struct {
	Code   int
	Reason string
}

// Session is the actor managing outbound traffic for one connection.
type Session struct {
	ID   string
	conn *websocket.Conn
}

// New creates a session actor for the given connection.
func New(id string, conn *websocket.Conn) *Session {
	return &Session{ID: id, conn: conn}
}

// Start is the session's main loop. It drains the mailbox until the context
// is cancelled, a Close message arrives, or a write fails.
func (s *Session) Start(ctx context.Context, mb *actor.Mailbox) error {
	for {
		msg, err := mb.Receive(ctx)
		if err != nil {
			// Context cancellation is the normal end of a connection.
			return nil
		}

		switch m := msg.(type) {
		case Deliver:
			err := s.write(m.Payload)
			if m.Result != nil {
				m.Result <- err
			}
			if err != nil {
				log.Printf("[WARN] Session %s write failed: %v", s.ID, err)
				return err
			}
		case Close:
			data := websocket.FormatCloseMessage(m.Code, m.Reason)
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			_ = s.conn.WriteMessage(websocket.CloseMessage, data)
			_ = s.conn.Close()
			return nil
		default:
			log.Printf("[WARN] Session %s received unknown message type: %T", s.ID, m)
		}
	}
}

func (s *Session) write(payload string) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, []byte(payload))
}
