package types

// OutputType selects the base output device of the sink chain
type OutputType string

const (
	OutputNull           OutputType = "null"
	OutputRaw            OutputType = "raw"
	OutputX11Auto        OutputType = "x11_auto"
	OutputX11            OutputType = "x11"
	OutputX11XV          OutputType = "x11_xv"
	OutputSDI            OutputType = "sdi"
	OutputDualSDIX11Auto OutputType = "dual_sdi_x11_auto"
	OutputDualSDIX11     OutputType = "dual_sdi_x11"
	OutputDualSDIX11XV   OutputType = "dual_sdi_x11_xv"
)

// OutputTypes lists every output type in declaration order.
var OutputTypes = []OutputType{
	OutputNull, OutputRaw, OutputX11Auto, OutputX11, OutputX11XV,
	OutputSDI, OutputDualSDIX11Auto, OutputDualSDIX11, OutputDualSDIX11XV,
}

// IsHardware reports whether the output drives a hardware device. External
// window handles only matter for non-hardware outputs.
func (o OutputType) IsHardware() bool {
	switch o {
	case OutputSDI, OutputDualSDIX11Auto, OutputDualSDIX11, OutputDualSDIX11XV:
		return true
	}
	return false
}

// IsDual reports whether the output drives a primary and a secondary device.
func (o OutputType) IsDual() bool {
	switch o {
	case OutputDualSDIX11Auto, OutputDualSDIX11, OutputDualSDIX11XV:
		return true
	}
	return false
}

// Primary returns the primary device type of a dual output, or o itself.
func (o OutputType) Primary() OutputType {
	if o.IsDual() {
		return OutputSDI
	}
	return o
}

// Secondary returns the secondary device type of a dual output, or "".
func (o OutputType) Secondary() OutputType {
	switch o {
	case OutputDualSDIX11Auto:
		return OutputX11Auto
	case OutputDualSDIX11:
		return OutputX11
	case OutputDualSDIX11XV:
		return OutputX11XV
	}
	return ""
}

// VideoSplit is the multi-source split mode of the video switch
type VideoSplit string

const (
	NoSplit   VideoSplit = "none"
	QuadSplit VideoSplit = "quad"
	NonaSplit VideoSplit = "nona"
)

// Slots is the number of sources one split view shows.
func (v VideoSplit) Slots() int {
	switch v {
	case QuadSplit:
		return 4
	case NonaSplit:
		return 9
	}
	return 1
}

// Divisor is the per-axis decimation of one split slot.
func (v VideoSplit) Divisor() int {
	switch v {
	case QuadSplit:
		return 2
	case NonaSplit:
		return 3
	}
	return 1
}

// DisplayDimensionMode selects how the display raster is derived
type DisplayDimensionMode string

const (
	DisplayDimensionAuto    DisplayDimensionMode = "auto"
	DisplayDimensionStatic  DisplayDimensionMode = "static"
	DisplayDimensionDynamic DisplayDimensionMode = "dynamic"
)
