// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
)

// Server accepts TCP connections on DefaultPort and dispatches wire
// protocol lines to a Store. It retries binding every 3 seconds if the
// port is already in use, matching the original's "bind failed; already
// running a server?" retry loop.
type Server struct {
	store *Store
	port  int
}

// NewServer wraps s for TCP access on port (0 uses DefaultPort).
func NewServer(s *Store, port int) *Server {
	if port == 0 {
		port = DefaultPort
	}
	return &Server{store: s, port: port}
}

// Run binds and serves until ctx is canceled. The watch pump starts
// before the bind loop so periodic watches held by in-process clients
// keep firing even while the port is still contested.
func (srv *Server) Run(ctx context.Context) error {
	go srv.store.RunWatchPump(ctx.Done())

	var ln net.Listener
	var err error
	addr := net.JoinHostPort("0.0.0.0", strconv.Itoa(srv.port))
	for {
		ln, err = net.Listen("tcp", addr)
		if err == nil {
			break
		}
		log.Printf("store: bind %s failed (%v); already running a server?", addr, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !sleepCtx(ctx, bindRetryInterval) {
			return ctx.Err()
		}
	}
	log.Printf("store: listening on %s", addr)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("store: accept: %w", err)
			}
		}
		if srv.store.connCount() >= MaxConnections {
			if oldest := srv.store.oldestConn(); oldest != nil {
				log.Printf("store: max connections reached, evicting oldest")
				oldest.close()
				srv.store.removeConn(oldest)
			}
		}
		conn := newConn(nc)
		srv.store.addConn(conn)
		go srv.serveConn(ctx, conn)
	}
}

func (srv *Server) serveConn(ctx context.Context, conn *Conn) {
	defer func() {
		srv.store.removeConn(conn)
		conn.close()
	}()
	conn.writeLine(srv.store.valuesMsg())

	scanner := bufio.NewScanner(conn.nc)
	for scanner.Scan() {
		srv.store.handleLine(conn, scanner.Text())
	}
}
