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

// Package directory decides whether a device identity is known to the
// platform. Three policies are available: a push-synchronized authorized set
// kept current by directory-change events, a pull client that performs a
// correlated request/response round-trip per lookup, and a PostgreSQL-backed
// set for deployments where the device table is directly reachable.
package directory

import (
	"context"
	"errors"
)

var (
	// ErrMissingDeviceID is returned by directory updates and lookups that
	// carry no device identity.
	ErrMissingDeviceID = errors.New("directory update has no device identity")
	// ErrLookupTimeout is returned when a pull-mode lookup exceeds its
	// bound. Callers treat it as unauthorized.
	ErrLookupTimeout = errors.New("device directory lookup timed out")
)

// Directory answers whether a device identity is authorized to use the
// gateway. Authorize never blocks callers other than the one logical flow
// that issued it.
type Directory interface {
	Authorize(ctx context.Context, deviceID string) (bool, error)
}
