package nl80211

import (
	"bytes"
	"testing"
)

type ie struct {
	ID   uint8
	Data []byte
}

func marshalIEs(ies []ie) []byte {
	buf := bytes.NewBuffer(nil)
	for _, ie := range ies {
		buf.WriteByte(ie.ID)
		buf.WriteByte(uint8(len(ie.Data)))
		buf.Write(ie.Data)
	}

	return buf.Bytes()
}

func TestSSIDFromIEs(t *testing.T) {
	tests := []struct {
		name  string
		b     []byte
		want  []byte
		found bool
	}{
		{
			name: "empty buffer",
		},
		{
			name: "SSID among other elements",
			b: marshalIEs([]ie{
				{ID: 5, Data: []byte("x")},
				{ID: ssidElementID, Data: []byte("MyNet")},
				{ID: 1, Data: []byte("y")},
			}),
			want:  []byte("MyNet"),
			found: true,
		},
		{
			name: "first SSID wins",
			b: marshalIEs([]ie{
				{ID: ssidElementID, Data: []byte("first")},
				{ID: ssidElementID, Data: []byte("second")},
			}),
			want:  []byte("first"),
			found: true,
		},
		{
			name: "zero-length SSID",
			b: marshalIEs([]ie{
				{ID: ssidElementID},
			}),
			want:  []byte{},
			found: true,
		},
		{
			name: "length overruns buffer",
			b:    []byte{ssidElementID, 10, 'a', 'b'},
		},
		{
			name: "truncated header",
			b:    []byte{ssidElementID},
		},
		{
			name: "no SSID element present",
			b: marshalIEs([]ie{
				{ID: 7, Data: []byte("US")},
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := ssidFromIEs(tt.b)
			if found != tt.found {
				t.Fatalf("unexpected found: want %v, got %v", tt.found, found)
			}
			if !bytes.Equal(got, tt.want) {
				t.Fatalf("unexpected SSID: want %q, got %q", tt.want, got)
			}
		})
	}
}
