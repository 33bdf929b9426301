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

// Package actor provides the mailbox-based actor primitive used throughout
// the gateway. Each live device connection is served by a session actor that
// owns all writes to the socket, and the backend event dispatcher is an actor
// fed from the platform event stream. Actors communicate exclusively through
// their mailboxes, which keeps all mutable per-connection state confined to a
// single goroutine.
package actor

import "context"

// Actor defines the interface for an actor process.
// In response to a message an actor may send messages to other actors, spawn
// new actors, or update its own state for the next message.
type Actor interface {
	// Start runs the actor loop. The context controls the actor's lifetime
	// and the mailbox delivers its messages. Start blocks until the actor
	// terminates and returns a non-nil error on abnormal termination.
	Start(ctx context.Context, mb *Mailbox) error
}

// Mailbox is a buffered, channel-based message queue for an actor.
// Senders append messages asynchronously; the owning actor drains them in
// arrival order.
type Mailbox struct {
	messages chan any
}

// NewMailbox creates a new mailbox with the given buffer size.
// A larger buffer reduces the chance of a sender blocking while the actor is
// busy, at the cost of memory.
func NewMailbox(size int) *Mailbox {
	return &Mailbox{
		messages: make(chan any, size),
	}
}

// Send puts a message into the mailbox. It blocks while the buffer is full.
func (mb *Mailbox) Send(msg any) {
	mb.messages <- msg
}

// SendContext puts a message into the mailbox, giving up when ctx is
// cancelled. It returns ctx.Err() if the message could not be enqueued,
// which lets callers bound how long they wait on a wedged actor.
func (mb *Mailbox) SendContext(ctx context.Context, msg any) error {
	select {
	case mb.messages <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks until a message arrives or the context is cancelled.
// On cancellation it returns nil and the context's error. Actors call this
// in a loop to process their mailbox.
func (mb *Mailbox) Receive(ctx context.Context) (any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-mb.messages:
		return msg, nil
	}
}

// Chan returns the underlying message channel as read-only, for callers that
// need to select across several sources at once.
func (mb *Mailbox) Chan() <-chan any {
	return mb.messages
}
