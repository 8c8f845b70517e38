// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"reflect"
	"strings"
	"sync"
	"time"
)

// connectRetryInterval and connectMaxDelay bound the client's
// reconnect backoff, matching CLIENT_CONNECT_RETRY_TIME and
// CLIENT_CONNECT_MAX_DELAY in the original client.
const (
	connectRetryInterval = time.Second
	connectMaxDelay      = 20 * time.Second
)

// Update is one "name=value" line received from a remote store.
type Update struct {
	Name  string
	Value any
}

// Client is a TCP wire-protocol client for out-of-process consumers:
// cypilotctl, the SignalK bridge, or any process that talks to the
// store over the network instead of holding a *Store directly.
type Client struct {
	addr string

	mu   sync.Mutex
	nc   net.Conn
	w    *bufio.Writer

	updates chan Update

	lastValues map[string]any
}

// NewClient creates a client that connects to addr (host:port) lazily,
// on the first Run call.
func NewClient(addr string) *Client {
	return &Client{addr: addr, updates: make(chan Update, 256)}
}

// Updates returns the channel of incoming value updates.
func (c *Client) Updates() <-chan Update { return c.updates }

// Connected reports whether the client currently holds a live
// connection to the server.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.w != nil
}

// Run connects and reconnects with exponential backoff (capped at
// connectMaxDelay) until ctx is canceled, dispatching every received
// line onto Updates().
func (c *Client) Run(ctx context.Context) {
	delay := connectRetryInterval
	for {
		if err := c.connectAndServe(ctx); err != nil {
			log.Printf("store client: %v, retrying in %s", err, delay)
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !sleepCtx(ctx, delay) {
			return
		}
		delay *= 2
		if delay > connectMaxDelay {
			delay = connectMaxDelay
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	nc, err := net.Dial("tcp", c.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer nc.Close()

	c.mu.Lock()
	c.nc = nc
	c.w = bufio.NewWriter(nc)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.nc = nil
		c.w = nil
		c.mu.Unlock()
	}()

	go func() {
		<-ctx.Done()
		nc.Close()
	}()

	scanner := bufio.NewScanner(nc)
	for scanner.Scan() {
		c.handleLine(scanner.Text())
	}
	return scanner.Err()
}

func (c *Client) handleLine(line string) {
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return
	}
	name, data := line[:eq], line[eq+1:]
	if name == "error" {
		log.Printf("store client: server error: %s", data)
		return
	}
	var v any
	if err := json.Unmarshal([]byte(data), &v); err != nil {
		v = strings.Trim(data, `"`)
	}
	select {
	case c.updates <- Update{Name: name, Value: v}:
	default:
		log.Printf("store client: update channel full, dropping %s", name)
	}
}

// Set writes "name=value\n" to the server.
func (c *Client) Set(name string, value any) error {
	body, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.writeLine(name + "=" + string(body))
}

// Watch registers interest in name at the given period (0 for
// continuous push on every change).
func (c *Client) Watch(name string, period time.Duration) error {
	var p any
	if period <= 0 {
		p = true
	} else {
		p = period.Seconds()
	}
	body, _ := json.Marshal(map[string]any{name: p})
	return c.writeLine("watch=" + string(body))
}

// Register announces a value this client creates locally, claiming
// ownership of name on the server so that writes from other
// connections get forwarded here instead of applied directly. info
// should mirror the descriptor a values.Value.Info() produces (type,
// writable, persistent, ...).
func (c *Client) Register(name string, info map[string]any) error {
	body, err := json.Marshal(map[string]any{name: info})
	if err != nil {
		return err
	}
	return c.writeLine("values=" + string(body))
}

// ListValues watches the catalog and blocks until a "values" update
// arrives or timeout elapses, returning the full name->descriptor
// table. It returns (nil, nil) if the table is unchanged since the
// last call, matching the original client's last_values_list dedup.
func (c *Client) ListValues(timeout time.Duration) (map[string]any, error) {
	if err := c.Watch("values", 0); err != nil {
		return nil, err
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case u := <-c.updates:
			if u.Name != "values" {
				continue
			}
			table, ok := u.Value.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("store client: unexpected values payload %T", u.Value)
			}
			if reflect.DeepEqual(table, c.lastValues) {
				return nil, nil
			}
			c.lastValues = table
			return table, nil
		case <-deadline.C:
			return nil, fmt.Errorf("store client: list_values timed out")
		}
	}
}

func (c *Client) writeLine(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.w == nil {
		return fmt.Errorf("store client: not connected")
	}
	if _, err := c.w.WriteString(line + "\n"); err != nil {
		return err
	}
	return c.w.Flush()
}
