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

// package metrics provides Prometheus metrics for the gateway.
package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal counts WebSocket connections accepted by the gateway.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_connections_total",
		Help: "The total number of WebSocket connections accepted by the gateway.",
	})

	// FramesTotal counts inbound frames by routing outcome.
	// Outcomes: data, message, group_message, malformed, unauthorized, unknown_topic.
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_frames_total",
		Help: "The total number of inbound frames processed, labeled by routing outcome.",
	},
		[]string{"outcome"},
	)

	// CommandsRelayedTotal counts backend commands delivered to a connected device.
	CommandsRelayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_commands_relayed_total",
		Help: "The total number of backend commands successfully written to a device connection.",
	})

	// CommandsDroppedTotal counts backend commands addressed to devices that are
	// not connected through this gateway instance.
	CommandsDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_commands_dropped_total",
		Help: "The total number of backend commands dropped because the target device was not connected.",
	})

	// CommandsFailedTotal counts relay attempts whose connection write failed.
	CommandsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wsgate_commands_failed_total",
		Help: "The total number of backend commands whose delivery write failed.",
	})

	// DirectoryLookupsTotal counts device directory lookups by result
	// (authorized, unauthorized, error).
	DirectoryLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_directory_lookups_total",
		Help: "The total number of device directory lookups, labeled by result.",
	},
		[]string{"result"},
	)

	// SupervisorRestartsTotal counts restarts of supervised actors.
	SupervisorRestartsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wsgate_supervisor_restarts_total",
		Help: "The total number of times a supervised actor has been restarted.",
	},
		[]string{"actor_id"},
	)
)

// Serve starts an HTTP server to expose the Prometheus metrics.
func Serve(addr string) {
	http.Handle("/metrics", promhttp.Handler())
	log.Printf("Metrics server listening on %s", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		logFatalf("Metrics server failed: %v", err)
	}
}

// logFatalf can be replaced by tests to prevent process exit.
var logFatalf = log.Fatalf
