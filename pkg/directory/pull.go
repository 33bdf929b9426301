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

package directory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Requester issues the request leg of a pull-mode lookup. The platform
// transport satisfies this with its RequestDeviceInfo call.
type Requester interface {
	RequestDeviceInfo(ctx context.Context, token, device string) error
}

// LookupClient is the pull-mode directory policy. Each lookup generates a
// fresh correlation token, parks a waiter in the pending table and suspends
// the calling flow until the matching response arrives or the bound expires.
// Responses for tokens that are no longer pending are dropped, so a late
// backend answer after a timeout or a closed connection cannot cross-deliver
// to another lookup.
type LookupClient struct {
	requester Requester
	timeout   time.Duration

	mu      sync.Mutex
	pending map[string]chan string
}

// NewLookupClient creates a pull-mode client. A non-positive timeout falls
// back to five seconds; an unbounded lookup leaks a pending entry whenever
// the backend never answers.
func NewLookupClient(requester Requester, timeout time.Duration) *LookupClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &LookupClient{
		requester: requester,
		timeout:   timeout,
		pending:   make(map[string]chan string),
	}
}

// Authorize performs one correlated lookup. A non-empty device info response
// means authorized; an empty response means the device is not registered.
// Cancellation of ctx (the owning connection going away) abandons the lookup
// without error noise beyond ctx.Err().
func (c *LookupClient) Authorize(ctx context.Context, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, ErrMissingDeviceID
	}

	token := uuid.NewString()
	waiter := make(chan string, 1)

	c.mu.Lock()
	c.pending[token] = waiter
	c.mu.Unlock()
	defer c.abandon(token)

	if err := c.requester.RequestDeviceInfo(ctx, token, deviceID); err != nil {
		return false, err
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case info := <-waiter:
		return info != "", nil
	case <-timer.C:
		return false, ErrLookupTimeout
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve delivers a backend response to the pending lookup identified by
// token. It reports whether a waiter was found; late or unmatched responses
// return false and are discarded.
func (c *LookupClient) Resolve(token, info string) bool {
	c.mu.Lock()
	waiter, ok := c.pending[token]
	if ok {
		delete(c.pending, token)
	}
	c.mu.Unlock()
	if !ok {
		return false
	}
	waiter <- info
	return true
}

// PendingLookups returns the number of outstanding lookups.
func (c *LookupClient) PendingLookups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func (c *LookupClient) abandon(token string) {
	c.mu.Lock()
	delete(c.pending, token)
	c.mu.Unlock()
}
