package mediacodec

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{0x00},
		{0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a},
		bytes.Repeat([]byte{0xff, 0x01, 0x7f}, 333),
	}
	for _, payload := range payloads {
		decoded, err := Decode(Encode(payload))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !bytes.Equal(decoded, payload) {
			t.Fatalf("round trip mismatch for %d bytes", len(payload))
		}
	}
}

func TestDataURLRoundTripKeepsMime(t *testing.T) {
	payload := []byte("not really a jpeg")
	encoded := EncodeDataURL(payload, "image/jpeg")
	decoded, mime, err := DecodeDataURL(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mime != "image/jpeg" {
		t.Fatalf("mime = %q, want image/jpeg", mime)
	}
	if !bytes.Equal(decoded, payload) {
		t.Fatalf("payload mismatch")
	}
}

func TestEncodeDataURLDefaultsMime(t *testing.T) {
	encoded := EncodeDataURL([]byte{0x01}, "")
	_, mime, err := DecodeDataURL(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mime != "image/png" {
		t.Fatalf("mime = %q, want image/png", mime)
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := []string{
		"",
		"not-base64!!!",
		"data:image/png;base64",
		"data:image/png,plainbytes",
	}
	for _, input := range cases {
		_, err := Decode(input)
		if err == nil {
			t.Fatalf("Decode(%q) succeeded, want error", input)
		}
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("Decode(%q) error = %T, want *DecodeError", input, err)
		}
	}
}
