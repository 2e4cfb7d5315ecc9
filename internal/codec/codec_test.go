package codec

import (
	"errors"
	"testing"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	t.Parallel()

	cases := []string{
		"hello",
		"",
		"with spaces and punctuation!?",
		"unicode: héllo wörld 你好 🙂",
		"newlines\nand\ttabs",
		`{"looks":"like json"}`,
	}

	for _, in := range cases {
		payload := Encode(in)
		out, err := Decode(payload)
		if err != nil {
			t.Fatalf("decode(%q): %v", payload, err)
		}
		if out != in {
			t.Fatalf("round trip mismatch: got %q want %q", out, in)
		}
	}
}

func TestDecode_MalformedPayload(t *testing.T) {
	t.Parallel()

	cases := []string{
		"not base64 at all!!",
		"aGVsbG8",    // truncated padding
		"aGVsbG8===", // excess padding
		"%%%",
	}

	for _, in := range cases {
		if _, err := Decode(in); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("decode(%q): expected ErrInvalidPayload, got %v", in, err)
		}
	}
}

func TestDecode_NonUTF8(t *testing.T) {
	t.Parallel()

	// Valid base64, but the decoded bytes are not valid UTF-8.
	if _, err := Decode("/w=="); !errors.Is(err, ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload for non-UTF-8 bytes, got %v", err)
	}
}
