package mattype

import (
	"testing"

	"github.com/teslashibe/go-cvstream/pkg/engine"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name     string
		label    string
		wantOK   bool
		bits     int
		kind     Kind
		channels int
	}{
		{name: "8 bit unsigned 3 channels", label: "CV_8UC3", wantOK: true, bits: 8, kind: Unsigned, channels: 3},
		{name: "16 bit signed 2 channels", label: "CV_16SC2", wantOK: true, bits: 16, kind: Signed, channels: 2},
		{name: "32 bit float 1 channel", label: "CV_32FC1", wantOK: true, bits: 32, kind: Float, channels: 1},
		{name: "64 bit float 4 channels", label: "CV_64FC4", wantOK: true, bits: 64, kind: Float, channels: 4},
		{name: "no channel count", label: "CV_8U", wantOK: true, bits: 8, kind: Unsigned, channels: 0},
		{name: "other prefix", label: "MAT_32SC2", wantOK: true, bits: 32, kind: Signed, channels: 2},
		{name: "unsupported width", label: "CV_12UC1", wantOK: false},
		{name: "no underscore", label: "CV8UC1", wantOK: false},
		{name: "lowercase kind", label: "CV_8uc1", wantOK: false},
		{name: "unrelated constant", label: "IMREAD_COLOR", wantOK: false},
		{name: "zero channels", label: "CV_8UC0", wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tag, ok := ParseLabel(tc.label)
			if ok != tc.wantOK {
				t.Fatalf("ParseLabel(%q) ok = %v, want %v", tc.label, ok, tc.wantOK)
			}
			if !ok {
				return
			}
			if tag.Bits != tc.bits {
				t.Errorf("Bits = %d, want %d", tag.Bits, tc.bits)
			}
			if tag.Kind != tc.kind {
				t.Errorf("Kind = %s, want %s", tag.Kind, tc.kind)
			}
			if tag.Channels != tc.channels {
				t.Errorf("Channels = %d, want %d", tag.Channels, tc.channels)
			}
			if tag.Label != tc.label {
				t.Errorf("Label = %q, want %q", tag.Label, tc.label)
			}
		})
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(engine.OpenCVConstants)

	tag, ok := r.Resolve(engine.MakeType(engine.DepthCV8U, 3))
	if !ok {
		t.Fatal("CV_8UC3 not resolved")
	}
	if tag.Label != "CV_8UC3" || tag.Bits != 8 || tag.Channels != 3 || tag.Kind != Unsigned {
		t.Errorf("unexpected tag %+v", tag)
	}
	if tag.ElemSize() != 1 {
		t.Errorf("ElemSize = %d, want 1", tag.ElemSize())
	}

	tag, ok = r.Resolve(engine.MakeType(engine.DepthCV32F, 2))
	if !ok || tag.Label != "CV_32FC2" {
		t.Errorf("CV_32FC2: got %+v, ok=%v", tag, ok)
	}
}

func TestResolver_Unresolved(t *testing.T) {
	r := NewResolver(engine.OpenCVConstants)

	if _, ok := r.Resolve(engine.MatType(9999)); ok {
		t.Error("expected unknown code to be unresolved")
	}
}

func TestResolver_FirstNameWins(t *testing.T) {
	r := NewResolver([]engine.Constant{
		{Name: "CV_8U", Value: 0},
		{Name: "CV_8UC1", Value: 0},
		{Name: "IMREAD_COLOR", Value: 1},
	})

	tag, ok := r.Resolve(0)
	if !ok {
		t.Fatal("code 0 not resolved")
	}
	if tag.Label != "CV_8U" {
		t.Errorf("Label = %q, want CV_8U", tag.Label)
	}
	if tag.HasChannels() {
		t.Error("CV_8U should carry no channel count")
	}

	if _, ok := r.Resolve(1); ok {
		t.Error("IMREAD_COLOR does not follow the naming convention and must be ignored")
	}

	if got := len(r.Tags()); got != 1 {
		t.Errorf("Tags() has %d entries, want 1", got)
	}

	if tag, ok := r.Lookup("CV_8UC1"); !ok || tag.Channels != 1 {
		t.Errorf("Lookup(CV_8UC1) = %+v, %v", tag, ok)
	}
}

func TestResolver_Tags(t *testing.T) {
	r := NewResolver(engine.OpenCVConstants)

	tags := r.Tags()
	if len(tags) != len(engine.OpenCVConstants) {
		t.Fatalf("Tags() = %d entries, want %d", len(tags), len(engine.OpenCVConstants))
	}
	if tags[0].Label != "CV_8UC1" {
		t.Errorf("first tag = %q, want CV_8UC1", tags[0].Label)
	}
	for _, tag := range tags {
		if got := engine.ChannelsOf(tag.Code); got != tag.Channels {
			t.Errorf("%s: code encodes %d channels, label says %d", tag.Label, got, tag.Channels)
		}
	}
}
