// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package panel drives a single SSD1306 OLED at the helm showing the
// autopilot's current mode, heading command, and wind angle, refreshed
// from the value store on a fixed tick.
package panel

import (
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/cypilot/internal/store"
)

// RefreshInterval is how often the panel redraws from the store.
const RefreshInterval = 500 * time.Millisecond

// Panel owns the physical display and the store it reads from.
type Panel struct {
	st  *store.Store
	dev *ssd1306.Dev
}

// New initializes the SSD1306 at addr on bus and shows a splash screen.
func New(st *store.Store, bus i2c.Bus, addr uint16) (*Panel, error) {
	dev, err := ssd1306.NewI2C(bus, addr, &ssd1306.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("panel: init ssd1306: %w", err)
	}
	p := &Panel{st: st, dev: dev}
	if err := p.splash(); err != nil {
		log.Printf("panel: splash draw error: %v", err)
	}
	return p, nil
}

// Run redraws the panel every RefreshInterval until stop is closed.
func (p *Panel) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := p.draw(); err != nil {
				log.Printf("panel: draw error: %v", err)
			}
		}
	}
}

func (p *Panel) draw() error {
	img := blankFrame()
	drawer := textDrawer(img)

	mode := p.lookupString("ap.mode", "--")
	enabled := p.lookupBool("ap.enabled")
	heading := p.lookupFloat("ap.heading_command")
	windAngle := p.lookupFloat("ap.wind_angle_smoothed")
	windSpeed := p.lookupFloat("ap.wind_speed_smoothed")

	state := "OFF"
	if enabled {
		state = "ON"
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte(fmt.Sprintf("%-10s %s", mode, state)))

	drawer.Dot = fixed.P(0, 30)
	drawer.DrawBytes([]byte(fmt.Sprintf("HDG %5.1f", heading)))

	drawer.Dot = fixed.P(0, 47)
	drawer.DrawBytes([]byte(fmt.Sprintf("WND %5.1f %4.1fkt", windAngle, windSpeed)))

	return p.dev.Draw(p.dev.Bounds(), img, image.Point{})
}

func (p *Panel) splash() error {
	img := blankFrame()
	drawer := textDrawer(img)
	drawer.Dot = fixed.P(15, 26)
	drawer.DrawBytes([]byte("cypilot"))
	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("starting..."))
	return p.dev.Draw(p.dev.Bounds(), img, image.Point{})
}

func blankFrame() *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	for i := range img.Pix {
		img.Pix[i] = 0
	}
	return img
}

func textDrawer(img *image1bit.VerticalLSB) *font.Drawer {
	return &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: basicfont.Face7x13,
	}
}

func (p *Panel) lookupString(name, fallback string) string {
	v := p.st.Lookup(name)
	if v == nil {
		return fallback
	}
	s, ok := v.Get().(string)
	if !ok {
		return fallback
	}
	return s
}

func (p *Panel) lookupFloat(name string) float64 {
	v := p.st.Lookup(name)
	if v == nil {
		return 0
	}
	f, _ := v.Get().(float64)
	return f
}

func (p *Panel) lookupBool(name string) bool {
	v := p.st.Lookup(name)
	if v == nil {
		return false
	}
	b, _ := v.Get().(bool)
	return b
}
