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
)

// AuthorizedSet is the push-synchronized directory policy: a local set of
// authorized device identities updated by deviceAdded/deviceRemoved platform
// events. Lookups are O(1) and never block.
type AuthorizedSet struct {
	mu      sync.RWMutex
	devices map[string]struct{}
}

// NewAuthorizedSet creates an empty authorized set.
func NewAuthorizedSet() *AuthorizedSet {
	return &AuthorizedSet{devices: make(map[string]struct{})}
}

// Add marks a device identity as authorized. An empty identity is rejected
// without mutating state.
func (s *AuthorizedSet) Add(deviceID string) error {
	if deviceID == "" {
		return ErrMissingDeviceID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[deviceID] = struct{}{}
	return nil
}

// Remove deauthorizes a device identity. An empty identity is rejected
// without mutating state; removing an unknown identity is a no-op.
func (s *AuthorizedSet) Remove(deviceID string) error {
	if deviceID == "" {
		return ErrMissingDeviceID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.devices, deviceID)
	return nil
}

// Authorize reports whether the device identity is in the set.
func (s *AuthorizedSet) Authorize(ctx context.Context, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, ErrMissingDeviceID
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.devices[deviceID]
	return ok, nil
}

// Len returns the number of authorized devices.
func (s *AuthorizedSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.devices)
}
