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

// package main is the entrypoint for the wsgate-go gateway.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/turtacn/wsgate-go/pkg/config"
	"github.com/turtacn/wsgate-go/pkg/gateway"
	"github.com/turtacn/wsgate-go/pkg/metrics"
	"github.com/turtacn/wsgate-go/pkg/platform"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML or JSON configuration file")
	flag.Parse()

	log.Println("Starting wsgate-go gateway...")

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	gwCfg := cfg.Gateway

	if gwCfg.NodeID == "" {
		gwCfg.NodeID, _ = os.Hostname()
		if gwCfg.NodeID == "" {
			gwCfg.NodeID = "wsgate-node"
		}
	}
	log.Printf("Node ID: %s", gwCfg.NodeID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Platform Transport ---
	// A NATS URL selects the broker-based transport; without one the gateway
	// runs against the in-process loopback, which is useful for local runs.
	var pf platform.Platform
	if gwCfg.NATS.URL != "" {
		pf, err = platform.DialNATS(gwCfg.NATS.URL, gwCfg.NodeID)
		if err != nil {
			log.Fatalf("Failed to connect to NATS at %s: %v", gwCfg.NATS.URL, err)
		}
		log.Printf("Connected to platform via NATS at %s", gwCfg.NATS.URL)
	} else {
		log.Println("[WARN] No NATS URL configured, using in-process loopback platform")
		pf = platform.NewLoopback()
	}
	defer pf.Close()

	// --- Start Gateway ---
	gw, err := gateway.New(gwCfg, pf)
	if err != nil {
		log.Fatalf("Failed to assemble gateway: %v", err)
	}
	if err := gw.Start(ctx); err != nil {
		log.Fatalf("Failed to start gateway: %v", err)
	}

	// --- Start Metrics Server ---
	go metrics.Serve(gwCfg.MetricsAddr)

	// --- Wait for Shutdown Signal ---
	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-shutdownChan:
		log.Printf("Signal %v received. Shutting down...", sig)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), gwCfg.ShutdownGrace())
		defer shutdownCancel()
		gw.Shutdown(shutdownCtx)
		<-gw.Done()
	case <-gw.Done():
		// The platform asked for shutdown or the listener failed fatally.
	}

	log.Println("Gateway stopped.")
}
