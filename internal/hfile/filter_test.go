package hfile

import (
	"bytes"
	"testing"
)

func TestDeflateRoundTrip(t *testing.T) {
	f := newDeflate([]uint32{9})
	input := bytes.Repeat([]byte{0xAB, 0xCD, 0x01}, 500)

	encoded, err := f.Encode(input)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if len(encoded) >= len(input) {
		t.Errorf("repetitive input did not compress: %d >= %d", len(encoded), len(input))
	}

	decoded, err := f.Decode(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded, input) {
		t.Error("round trip mismatch")
	}
}

func TestShuffleRoundTrip(t *testing.T) {
	f := newShuffle([]uint32{4})
	input := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	shuffled, err := f.Encode(input)
	if err != nil {
		t.Fatal(err)
	}
	// First bytes of each 4-byte element grouped first.
	want := []byte{1, 5, 9, 2, 6, 10, 3, 7, 11, 4, 8, 12}
	if !bytes.Equal(shuffled, want) {
		t.Errorf("shuffled = %v, want %v", shuffled, want)
	}

	back, err := f.Decode(shuffled)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(back, input) {
		t.Error("round trip mismatch")
	}
}

func TestShuffleMisaligned(t *testing.T) {
	f := newShuffle([]uint32{4})
	input := []byte{1, 2, 3, 4, 5} // not a multiple of the element size
	out, err := f.Encode(input)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, input) {
		t.Error("misaligned input should pass through unchanged")
	}
}

func TestPipelineOrder(t *testing.T) {
	msg := &filtersMsg{Filters: []filterInfo{
		{ID: FilterShuffle, ClientData: []uint32{4}},
		{ID: FilterDeflate, ClientData: []uint32{6}},
	}}
	p, err := newPipeline(msg)
	if err != nil {
		t.Fatal(err)
	}

	input := EncodeFloat32([]float32{1.25, 1.5, 1.75, 2.0, 2.25, 2.5})
	encoded, err := p.Encode(input)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := p.Decode(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(decoded, input) {
		t.Error("pipeline round trip mismatch")
	}
}

func TestPipelineUnknownFilter(t *testing.T) {
	msg := &filtersMsg{Filters: []filterInfo{{ID: 999}}}
	if _, err := newPipeline(msg); err == nil {
		t.Error("expected error for unknown filter")
	}
}

func TestChecksumStability(t *testing.T) {
	data := []byte("grid container metadata block")
	a := checksum(data)
	b := checksum(data)
	if a != b {
		t.Error("checksum not deterministic")
	}
	data[0] ^= 0xFF
	if checksum(data) == a {
		t.Error("checksum did not change with input")
	}
	// Lengths 0-13 exercise the final-bytes switch and the mix loop.
	seen := map[uint32]bool{}
	for n := 0; n <= 13; n++ {
		seen[checksum(make([]byte, n))] = true
	}
	if len(seen) < 10 {
		t.Errorf("checksum collides too often across lengths: %d distinct", len(seen))
	}
}
