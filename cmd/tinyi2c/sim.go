package main

import (
	"log/slog"

	"github.com/micro-nova/tinyi2c/internal/config"
	"github.com/micro-nova/tinyi2c/internal/i2csim"
	"github.com/micro-nova/tinyi2c/internal/twi"
)

// Simulated peripherals: a 24C02-style memory and an RTC.
var simAddrs = []uint8{0x50, 0x68}

// newSimMaster builds the configured backend on simulated peripherals.
func newSimMaster(cfg config.Config) twi.Master {
	devs := make([]*i2csim.Device, len(simAddrs))
	for i, addr := range simAddrs {
		devs[i] = i2csim.NewDevice(addr)
	}
	slog.Info("using simulated peripherals", "addrs", simAddrs)

	switch cfg.Backend {
	case config.BackendTWI:
		return twi.NewTWI(i2csim.NewTWI(i2csim.NewBus(devs...)), cfg.CPUFrequency(), nil)
	case config.BackendTWIM:
		return twi.NewTWIM(i2csim.NewTWIM(i2csim.NewBus(devs...)), cfg.CPUFrequency(), nil)
	default:
		return twi.NewUSI(twi.NewSoftUSI(i2csim.NewWire(devs...).Lines()))
	}
}
