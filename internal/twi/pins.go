package twi

// Line is one open-drain bus line with AVR-style port control.
//
// SetOutput selects the data direction. With the line as an output,
// SetLevel(false) pulls it low and SetLevel(true) releases it. With the line
// as an input, SetLevel(true) enables the pull-up. Level samples the
// physical line.
type Line interface {
	SetOutput(out bool)
	SetLevel(high bool)
	Level() bool
}

// BusLines is the clock/data pair a bit-banged bus runs on.
type BusLines struct {
	SCL Line
	SDA Line
}

// drive applies a direction and level to l. The level goes first so a line
// switching to output never glitches through the previous latch value.
func drive(l Line, out, high bool) {
	l.SetLevel(high)
	l.SetOutput(out)
}
