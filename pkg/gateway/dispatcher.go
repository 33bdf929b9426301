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
	"fmt"
	"log"

	"github.com/turtacn/wsgate-go/pkg/actor"
	"github.com/turtacn/wsgate-go/pkg/platform"
)

// dispatcher is the actor that consumes backend-originated events: commands
// to relay, directory updates, pull-mode lookup responses and the shutdown
// signal. It runs supervised so a malformed event cannot take the event
// stream down.
type dispatcher struct {
	g *Gateway
}

func (d *dispatcher) Start(ctx context.Context, mb *actor.Mailbox) error {
	for {
		msg, err := mb.Receive(ctx)
		if err != nil {
			return nil
		}

		switch ev := msg.(type) {
		case platform.CommandEvent:
			if ev.Device == "" {
				d.g.pf.ReportError(fmt.Errorf("command %s: %w", ev.CommandID, platform.ErrMissingDevice))
				continue
			}
			// Commands to different devices must not block on each other;
			// the registry lookup and write happen off the dispatcher loop.
			go d.g.relay.Relay(ctx, ev.Device, ev.CommandID, ev.Command)
		case platform.DeviceAddedEvent:
			d.applyDirectoryUpdate(ev.Device, true)
		case platform.DeviceRemovedEvent:
			d.applyDirectoryUpdate(ev.Device, false)
		case platform.DeviceInfoEvent:
			if d.g.lookups == nil {
				continue
			}
			if !d.g.lookups.Resolve(ev.Token, ev.Info) {
				// Late or unmatched response, the requester is gone.
				log.Printf("[DEBUG] Dropping directory response for unknown token %s", ev.Token)
			}
		case platform.ShutdownEvent:
			log.Printf("[INFO] Shutdown requested by platform")
			go d.g.Shutdown(context.Background())
		default:
			log.Printf("[WARN] Dispatcher received unknown event type: %T", ev)
		}
	}
}

// applyDirectoryUpdate mutates the push-mode authorized set. Updates arriving
// under the pull or postgres policy carry no gateway-side state and are
// dropped.
func (d *dispatcher) applyDirectoryUpdate(device string, add bool) {
	if d.g.authSet == nil {
		return
	}
	var err error
	if add {
		err = d.g.authSet.Add(device)
	} else {
		err = d.g.authSet.Remove(device)
	}
	if err != nil {
		d.g.pf.ReportError(fmt.Errorf("directory update: %w", err))
	}
}
