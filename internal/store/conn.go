// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"bufio"
	"net"
	"sync"
	"time"
)

// Conn is one wire-protocol client connection, TCP or in-process pipe.
// Reads are line-delimited; writes are serialized behind mu since the
// watch pump and the read loop both write to the same socket.
type Conn struct {
	nc     net.Conn
	w      *bufio.Writer
	mu     sync.Mutex
	opened time.Time

	watchMu sync.Mutex
	watched map[string]time.Duration
}

func newConn(nc net.Conn) *Conn {
	return &Conn{
		nc:      nc,
		w:       bufio.NewWriter(nc),
		opened:  time.Now(),
		watched: make(map[string]time.Duration),
	}
}

func (c *Conn) writeLine(line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(line) == 0 || line[len(line)-1] != '\n' {
		line += "\n"
	}
	if _, err := c.w.WriteString(line); err != nil {
		return
	}
	c.w.Flush()
}

func (c *Conn) setWatch(name string, period time.Duration) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	c.watched[name] = period
}

func (c *Conn) clearWatch(name string) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	delete(c.watched, name)
}

func (c *Conn) hasWatch(name string) bool {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	_, ok := c.watched[name]
	return ok
}

// isContinuousWatch reports whether name is watched at period 0
// (push-on-every-publish), the case firePublish delivers to.
func (c *Conn) isContinuousWatch(name string) bool {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	period, ok := c.watched[name]
	return ok && period == 0
}

func (c *Conn) close() {
	c.nc.Close()
}
