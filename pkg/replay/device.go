// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package replay

import (
	"fmt"

	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// DefaultSpeed is the SPI clock used when none is given. The SX128x
// accepts up to 18 MHz.
const DefaultSpeed = 8 * physic.MegaHertz

// Device is an SX128x attached to a Linux spidev port
type Device struct {
	port spi.PortCloser
	conn spi.Conn
	busy gpio.PinIn
}

// Open initializes the host drivers and connects to the radio on dev
// (e.g. "/dev/spidev0.0" or "SPI0.0"). busy names the GPIO wired to the
// radio's BUSY output; empty disables BUSY polling.
func Open(dev string, speed physic.Frequency, busy string) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize host: %w", err)
	}
	if _, err := driverreg.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize drivers: %w", err)
	}

	p, err := spireg.Open(dev)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %q: %w", dev, err)
	}
	if speed == 0 {
		speed = DefaultSpeed
	}
	c, err := p.Connect(speed, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to configure SPI port: %w", err)
	}

	d := &Device{port: p, conn: c}
	if busy != "" {
		pin := gpioreg.ByName(busy)
		if pin == nil {
			p.Close()
			return nil, fmt.Errorf("failed to find BUSY pin %q", busy)
		}
		if err := pin.In(gpio.PullDown, gpio.NoEdge); err != nil {
			p.Close()
			return nil, fmt.Errorf("failed to configure BUSY pin: %w", err)
		}
		d.busy = pin
	}
	return d, nil
}

// Tx runs one full-duplex transaction
func (d *Device) Tx(w, r []byte) error {
	return d.conn.Tx(w, r)
}

// Busy returns the BUSY line, or nil when it is not wired
func (d *Device) Busy() BusyPin {
	if d.busy == nil {
		return nil
	}
	return d.busy
}

// Close releases the SPI port
func (d *Device) Close() error {
	return d.port.Close()
}
