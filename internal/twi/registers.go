package twi

// Register is a peripheral register address.
type Register = byte

// Registers is the register file of a byte-oriented two-wire controller.
type Registers interface {
	ReadReg(r Register) byte
	WriteReg(r Register, v byte)
}

// Classic TWI controller register map (ATmega-style).
const (
	RegTWBR Register = 0x00 // Bit rate
	RegTWSR Register = 0x01 // Status [7:3] and prescaler [1:0]
	RegTWAR Register = 0x02 // Own address, unused by a master
	RegTWDR Register = 0x03 // Data
	RegTWCR Register = 0x04 // Control
)

// TWCR bits.
const (
	TWINT byte = 1 << 7 // Job complete; written as 1 to start the next job
	TWEA  byte = 1 << 6 // Acknowledge received bytes
	TWSTA byte = 1 << 5 // Send start
	TWSTO byte = 1 << 4 // Send stop; cleared by hardware when done
	TWWC  byte = 1 << 3 // Write collision
	TWEN  byte = 1 << 2 // Enable
	TWIE  byte = 1 << 0 // Interrupt enable
)

// TWSR status codes after masking with StatusMask.
const (
	StatusMask byte = 0xf8

	StatusStart      byte = 0x08
	StatusRepStart   byte = 0x10
	StatusMTAddrAck  byte = 0x18
	StatusMTAddrNack byte = 0x20
	StatusMTDataAck  byte = 0x28
	StatusMTDataNack byte = 0x30
	StatusArbLost    byte = 0x38
	StatusMRAddrAck  byte = 0x40
	StatusMRAddrNack byte = 0x48
	StatusMRDataAck  byte = 0x50
	StatusMRDataNack byte = 0x58
	StatusNoInfo     byte = 0xf8
	StatusBusError   byte = 0x00
)

// TWI host controller register map (tinyAVR 0/1-series TWI0 master half).
const (
	RegMCTRLA  Register = 0x03
	RegMCTRLB  Register = 0x04
	RegMSTATUS Register = 0x05
	RegMBAUD   Register = 0x06
	RegMADDR   Register = 0x07
	RegMDATA   Register = 0x08
)

// MCTRLA bits.
const MEnable byte = 1 << 0

// MCTRLB fields.
const (
	MFlush       byte = 1 << 3
	MAckActNack  byte = 1 << 2
	MCmdMask     byte = 0x03
	MCmdNoAct    byte = 0x00
	MCmdRepStart byte = 0x01
	MCmdRecvTx   byte = 0x02
	MCmdStop     byte = 0x03
)

// MSTATUS bits and bus states.
const (
	MRIF     byte = 1 << 7 // Read complete
	MWIF     byte = 1 << 6 // Write complete
	MClkHold byte = 1 << 5
	MRxAck   byte = 1 << 4 // Last address or data byte was not acknowledged
	MArbLost byte = 1 << 3
	MBusErr  byte = 1 << 2

	BusStateMask    byte = 0x03
	BusStateUnknown byte = 0x00
	BusStateIdle    byte = 0x01
	BusStateOwner   byte = 0x02
	BusStateBusy    byte = 0x03
)
