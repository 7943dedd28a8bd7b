//go:build !i2c_standard

package twi

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// Grade is the speed grade this build was compiled for.
const Grade = Fast

// BusFrequency is the SCL frequency the hardware controllers are programmed for.
const BusFrequency = 400 * physic.KiloHertz

const (
	// T2 is the wait before each rising SCL edge (>1.3us).
	T2 = 2 * time.Microsecond
	// T4 is the wait before each falling SCL edge and the start hold time (>0.6us).
	T4 = 1 * time.Microsecond
)
