package engine

import "fmt"

// OpenCV depth codes.
const (
	DepthCV8U  MatType = 0
	DepthCV8S  MatType = 1
	DepthCV16U MatType = 2
	DepthCV16S MatType = 3
	DepthCV32S MatType = 4
	DepthCV32F MatType = 5
	DepthCV64F MatType = 6
)

const channelShift = 3

// MakeType combines a depth and a channel count into a type code,
// the same way OpenCV's CV_MAKETYPE does.
func MakeType(depth MatType, channels int) MatType {
	return depth + MatType((channels-1)<<channelShift)
}

// Depth returns the depth part of a type code.
func Depth(t MatType) MatType {
	return t & 7
}

// ChannelsOf returns the channel count encoded in a type code.
func ChannelsOf(t MatType) int {
	return int(t>>channelShift) + 1
}

// ElemSize1 returns the byte size of a single channel value.
func ElemSize1(t MatType) int {
	switch Depth(t) {
	case DepthCV8U, DepthCV8S:
		return 1
	case DepthCV16U, DepthCV16S:
		return 2
	case DepthCV32S, DepthCV32F:
		return 4
	case DepthCV64F:
		return 8
	}
	return 0
}

// OpenCVConstants is the OpenCV type table, with explicit channel counts,
// labelled with OpenCV's CV_<bits><kind>C<n> names.
var OpenCVConstants = buildOpenCVConstants()

func buildOpenCVConstants() []Constant {
	depths := []struct {
		name  string
		depth MatType
	}{
		{"8U", DepthCV8U},
		{"8S", DepthCV8S},
		{"16U", DepthCV16U},
		{"16S", DepthCV16S},
		{"32S", DepthCV32S},
		{"32F", DepthCV32F},
		{"64F", DepthCV64F},
	}

	consts := make([]Constant, 0, len(depths)*4)
	for _, d := range depths {
		for ch := 1; ch <= 4; ch++ {
			consts = append(consts, Constant{
				Name:  fmt.Sprintf("CV_%sC%d", d.name, ch),
				Value: MakeType(d.depth, ch),
			})
		}
	}
	return consts
}
