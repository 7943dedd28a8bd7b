//go:build i2c_standard

package twi

import (
	"time"

	"periph.io/x/conn/v3/physic"
)

// Grade is the speed grade this build was compiled for.
const Grade = Standard

// BusFrequency is the SCL frequency the hardware controllers are programmed for.
const BusFrequency = 100 * physic.KiloHertz

const (
	// T2 is the wait before each rising SCL edge (>4.7us).
	T2 = 5 * time.Microsecond
	// T4 is the wait before each falling SCL edge and the start hold time (>4.0us).
	T4 = 4 * time.Microsecond
)
