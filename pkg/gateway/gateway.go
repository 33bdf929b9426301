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

// Package gateway wires the WebSocket listener, the connection registry, the
// topic router, the command relay and the backend event dispatcher into one
// running gateway instance. Each accepted connection gets a session actor
// owning its writes; the read loop routes inbound frames in arrival order, so
// replies for one connection always match the order its frames came in.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/turtacn/wsgate-go/pkg/actor"
	"github.com/turtacn/wsgate-go/pkg/config"
	"github.com/turtacn/wsgate-go/pkg/directory"
	"github.com/turtacn/wsgate-go/pkg/metrics"
	"github.com/turtacn/wsgate-go/pkg/platform"
	"github.com/turtacn/wsgate-go/pkg/registry"
	"github.com/turtacn/wsgate-go/pkg/relay"
	"github.com/turtacn/wsgate-go/pkg/router"
	"github.com/turtacn/wsgate-go/pkg/session"
	"github.com/turtacn/wsgate-go/pkg/supervisor"
)

// notifyTimeout bounds backend notifications issued during connection
// teardown, after the gateway's own context may already be cancelled.
const notifyTimeout = 5 * time.Second

// Gateway is one gateway instance bridging WebSocket device connections to a
// backend platform.
type Gateway struct {
	cfg config.GatewayConfig
	pf  platform.Platform

	reg    *registry.Registry
	router *router.Router
	relay  *relay.Relay
	sup    *supervisor.OneForOneSupervisor

	// authSet is non-nil under the push directory policy, lookups under the
	// pull policy. dirCloser releases the postgres directory, when used.
	authSet   *directory.AuthorizedSet
	lookups   *directory.LookupClient
	dirCloser io.Closer

	upgrader websocket.Upgrader
	srv      *http.Server
	ln       net.Listener

	ctx      context.Context
	cancel   context.CancelFunc
	handlers sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// New assembles a gateway from its configuration and a platform transport.
// The directory policy decides which authorization backend is built; the
// registry, router and relay are shared by every connection.
func New(cfg config.GatewayConfig, pf platform.Platform) (*Gateway, error) {
	g := &Gateway{
		cfg:  cfg,
		pf:   pf,
		reg:  registry.New(),
		sup:  supervisor.NewOneForOneSupervisor(),
		done: make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Devices are not browsers; there is no origin to check.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	var dir directory.Directory
	switch cfg.Directory.Policy {
	case config.PolicyPush, "":
		g.authSet = directory.NewAuthorizedSet()
		dir = g.authSet
	case config.PolicyPull:
		g.lookups = directory.NewLookupClient(pf, cfg.Directory.LookupTimeout())
		dir = g.lookups
	case config.PolicyPostgres:
		pg, err := directory.OpenPostgres(cfg.Directory.PostgresDSN, cfg.Directory.PostgresTable)
		if err != nil {
			return nil, fmt.Errorf("opening postgres directory: %w", err)
		}
		g.dirCloser = pg
		dir = pg
	default:
		return nil, fmt.Errorf("unsupported directory policy: %s", cfg.Directory.Policy)
	}

	g.router = router.New(cfg.Topics, dir, g.reg, pf)
	g.relay = relay.New(g.reg, pf)
	return g, nil
}

// Start binds the listener and launches the accept loop and the backend
// event dispatcher. It does not block; use Done to wait for termination.
func (g *Gateway) Start(ctx context.Context) error {
	g.ctx, g.cancel = context.WithCancel(ctx)

	ln, err := net.Listen("tcp", g.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.cfg.ListenAddr, err)
	}
	g.ln = ln

	mb := actor.NewMailbox(256)
	g.sup.StartChild(g.ctx, supervisor.Spec{
		ID:      "event-dispatcher",
		Actor:   &dispatcher{g: g},
		Restart: supervisor.RestartPermanent,
		Mailbox: mb,
	})
	go g.pumpEvents(mb)

	g.srv = &http.Server{Handler: http.HandlerFunc(g.handleUpgrade)}
	go func() {
		if err := g.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.fatal(err)
		}
	}()

	log.Printf("[INFO] Gateway %s listening on %s", g.cfg.NodeID, ln.Addr())
	if err := g.pf.NotifyReady(g.ctx); err != nil {
		g.pf.ReportError(fmt.Errorf("notifying ready: %w", err))
	}
	return nil
}

// Addr returns the bound listen address, useful when the configuration asked
// for port 0.
func (g *Gateway) Addr() string {
	if g.ln != nil {
		return g.ln.Addr().String()
	}
	return g.cfg.ListenAddr
}

// Done is closed once the gateway has fully shut down.
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// pumpEvents copies the platform event stream into the dispatcher's mailbox.
func (g *Gateway) pumpEvents(mb *actor.Mailbox) {
	for {
		select {
		case <-g.ctx.Done():
			return
		case ev, ok := <-g.pf.Events():
			if !ok {
				return
			}
			if err := mb.SendContext(g.ctx, ev); err != nil {
				return
			}
		}
	}
}

// handleUpgrade accepts one WebSocket connection and serves it until the
// transport closes. Teardown always unregisters the connection; the backend
// is told about the disconnect only if the connection had bound a device.
func (g *Gateway) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] Upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	g.handlers.Add(1)
	defer g.handlers.Done()

	metrics.ConnectionsTotal.Inc()
	log.Printf("[INFO] Connection accepted from %s", r.RemoteAddr)

	connCtx, connCancel := context.WithCancel(g.ctx)
	defer connCancel()

	mb := actor.NewMailbox(32)
	g.sup.StartChild(connCtx, supervisor.Spec{
		ID:      "session-" + r.RemoteAddr,
		Actor:   session.New(r.RemoteAddr, ws),
		Restart: supervisor.RestartTemporary,
		Mailbox: mb,
	})
	c := newConn(r.RemoteAddr, mb)

	// Closing the socket is the only way to interrupt a blocked ReadMessage;
	// without it a shutdown would wait forever on live connections, since
	// http.Server.Close does not touch hijacked connections.
	go func() {
		<-connCtx.Done()
		_ = ws.Close()
	}()

	g.readLoop(connCtx, c, ws)

	// Closing -> Closed: stop the session actor, drop the socket, clean the
	// registry, then notify. Resource release must not depend on the
	// notification succeeding.
	c.markClosed()
	connCancel()
	_ = ws.Close()

	device, bound := g.reg.Unregister(c)
	if !bound {
		return
	}
	log.Printf("[INFO] Device %s disconnected", device)
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := g.pf.NotifyDisconnection(ctx, device); err != nil {
		g.pf.ReportError(fmt.Errorf("notifying disconnection of device %s: %w", device, err))
	}
}

// readLoop routes inbound frames one at a time, which keeps replies for this
// connection in arrival order. A pull-mode directory lookup suspends only
// this loop; other connections keep being served.
func (g *Gateway) readLoop(ctx context.Context, c *wsConn, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.ClosePolicyViolation) {
				log.Printf("[WARN] Connection %s read failed: %v", c.id, err)
			}
			return
		}
		g.router.Route(ctx, c, string(data))
	}
}

// fatal handles an unrecoverable listener error: report it, wait out the
// grace period so in-flight work can finish, then shut down.
func (g *Gateway) fatal(err error) {
	log.Printf("[ERROR] Gateway listener failed: %v", err)
	g.pf.ReportError(err)
	time.Sleep(g.cfg.ShutdownGrace())
	g.Shutdown(context.Background())
}

// Shutdown stops accepting connections, tears down every live connection,
// waits for their disconnect notifications and signals closure to the
// backend. It is idempotent.
func (g *Gateway) Shutdown(ctx context.Context) {
	g.stopOnce.Do(func() {
		log.Printf("[INFO] Gateway %s shutting down", g.cfg.NodeID)
		if g.srv != nil {
			_ = g.srv.Close()
		}
		if g.cancel != nil {
			g.cancel()
		}
		g.handlers.Wait()
		if g.dirCloser != nil {
			if err := g.dirCloser.Close(); err != nil {
				log.Printf("[WARN] Closing directory: %v", err)
			}
		}
		if err := g.pf.NotifyClose(ctx); err != nil {
			g.pf.ReportError(fmt.Errorf("notifying close: %w", err))
		}
		close(g.done)
	})
}
