// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package rc decodes small integer "order" codes from a wireless
// remote-control receiver into store writes: nudge the heading
// command, start a tack, toggle ap.enabled, or cycle steering mode.
// Receiver itself is a narrow interface so a real RF front end (an
// RFM69 module, in the original) can be dropped in later without
// touching this decode logic; None is the default no-op.
package rc

import (
	"log"

	"github.com/relabs-tech/cypilot/internal/store"
)

// Order codes, named after the packets the original hardware remote
// sends: small heading nudges, a coarser nudge, tack left/right,
// engage/disengage, and a mode cycle.
const (
	OrderEngage         = 0
	OrderHeadingMinus1  = -1
	OrderHeadingPlus1   = 1
	OrderHeadingMinus10 = -10
	OrderHeadingPlus10  = 10
	OrderTackPort       = -11
	OrderTackStarboard  = 11
	OrderChangeMode     = 20
)

// Receiver is anything that can hand back the next pending order code
// from a remote-control link. ok is false when nothing new arrived.
type Receiver interface {
	Poll() (order int, ok bool)
}

// None is a Receiver that never has anything to report, used when no
// RF hardware is configured.
type None struct{}

// Poll always reports nothing.
func (None) Poll() (int, bool) { return 0, false }

// modeCycle is the order change_mode steps through.
var modeCycle = []string{"compass", "gps", "wind", "true wind"}

// Controller applies Receiver orders onto the value store, mirroring
// the original remote-control dispatch table.
type Controller struct {
	st   *store.Store
	recv Receiver
}

// New returns a Controller reading from recv and writing into st.
func New(st *store.Store, recv Receiver) *Controller {
	return &Controller{st: st, recv: recv}
}

// Poll applies at most one pending order. Call it once per autopilot
// iteration.
func (c *Controller) Poll() {
	order, ok := c.recv.Poll()
	if !ok {
		return
	}

	switch order {
	case OrderEngage:
		c.toggleEngage()
	case OrderHeadingMinus1, OrderHeadingPlus1, OrderHeadingMinus10, OrderHeadingPlus10:
		c.nudgeHeading(float64(order))
	case OrderTackPort:
		c.tack("port")
	case OrderTackStarboard:
		c.tack("starboard")
	case OrderChangeMode:
		c.changeMode()
	default:
		log.Printf("rc: unknown order %d", order)
	}
}

func (c *Controller) toggleEngage() {
	enabled := c.lookupBool("ap.enabled")
	if enabled {
		c.st.Lookup("ap.enabled").Set(false)
		return
	}
	if heading := c.st.Lookup("ap.heading"); heading != nil {
		if h, ok := heading.Get().(float64); ok {
			if cmd := c.st.Lookup("ap.heading_command"); cmd != nil {
				cmd.Set(h)
			}
		}
	}
	if enable := c.st.Lookup("ap.enabled"); enable != nil {
		enable.Set(true)
	}
}

func (c *Controller) nudgeHeading(delta float64) {
	cmd := c.st.Lookup("ap.heading_command")
	if cmd == nil {
		return
	}
	current, _ := cmd.Get().(float64)
	cmd.Set(current + delta)
}

func (c *Controller) tack(direction string) {
	if !c.lookupBool("ap.enabled") {
		log.Printf("rc: tack requested but autopilot not engaged")
		return
	}
	if d := c.st.Lookup("ap.tack.direction"); d != nil {
		d.Set(direction)
	}
	if s := c.st.Lookup("ap.tack.state"); s != nil {
		s.Set("begin")
	}
}

func (c *Controller) changeMode() {
	mode := c.st.Lookup("ap.mode")
	if mode == nil {
		return
	}
	current, _ := mode.Get().(string)
	next := modeCycle[0]
	for i, m := range modeCycle {
		if m == current {
			next = modeCycle[(i+1)%len(modeCycle)]
			break
		}
	}
	mode.Set(next)
}

func (c *Controller) lookupBool(name string) bool {
	v := c.st.Lookup(name)
	if v == nil {
		return false
	}
	b, _ := v.Get().(bool)
	return b
}
