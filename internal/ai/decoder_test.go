package ai

import (
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkReader serves its input in the exact chunk boundaries given, then EOF.
type chunkReader struct {
	chunks [][]byte
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	if n == len(r.chunks[0]) {
		r.chunks = r.chunks[1:]
	} else {
		r.chunks[0] = r.chunks[0][n:]
	}
	return n, nil
}

// errReader serves one chunk, then fails.
type errReader struct {
	data   []byte
	err    error
	served bool
}

func (r *errReader) Read(p []byte) (int, error) {
	if !r.served {
		r.served = true
		return copy(p, r.data), nil
	}
	return 0, r.err
}

func TestDecodeEventStream_SingleEvent(t *testing.T) {
	var progress []string
	got, err := DecodeEventStream(strings.NewReader("data: Hello\ndata: [DONE]\n"), func(s string) {
		progress = append(progress, s)
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "Hello" {
		t.Fatalf("final content = %q, want %q", got, "Hello")
	}
	if len(progress) != 1 || progress[0] != "Hello" {
		t.Fatalf("progress = %v, want exactly [Hello]", progress)
	}
}

func TestDecodeEventStream_TokenAccumulation(t *testing.T) {
	var progress []string
	got, err := DecodeEventStream(strings.NewReader("data: He\ndata: llo\ndata: [DONE]\n"), func(s string) {
		progress = append(progress, s)
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "Hello" {
		t.Fatalf("final content = %q, want %q", got, "Hello")
	}
	want := []string{"He", "Hello"}
	if len(progress) != len(want) {
		t.Fatalf("progress = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("progress[%d] = %q, want %q", i, progress[i], want[i])
		}
	}
}

func TestDecodeEventStream_ArbitraryChunkBoundaries(t *testing.T) {
	// multi-byte runes included so splits can land mid-rune
	input := "data: héllo ☃ wörld\ndata:  and more\ndata: [DONE]\n"
	want := "héllo ☃ wörld and more"

	for split := 1; split < len(input); split++ {
		r := &chunkReader{chunks: [][]byte{
			[]byte(input[:split]),
			[]byte(input[split:]),
		}}
		got, err := DecodeEventStream(r, nil)
		if err != nil {
			t.Fatalf("split %d: decode: %v", split, err)
		}
		if got != want {
			t.Fatalf("split %d: content = %q, want %q", split, got, want)
		}
	}
}

func TestDecodeEventStream_ByteAtATime(t *testing.T) {
	input := "data: ☃☃☃\ndata: [DONE]\n"
	chunks := make([][]byte, 0, len(input))
	for i := 0; i < len(input); i++ {
		chunks = append(chunks, []byte{input[i]})
	}
	got, err := DecodeEventStream(&chunkReader{chunks: chunks}, nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "☃☃☃" {
		t.Fatalf("content = %q, want %q", got, "☃☃☃")
	}
}

func TestDecodeEventStream_NoTerminator(t *testing.T) {
	got, err := DecodeEventStream(strings.NewReader("data: Hi\n"), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "Hi" {
		t.Fatalf("content = %q, want %q", got, "Hi")
	}
}

func TestDecodeEventStream_TrailingPartialLineIgnored(t *testing.T) {
	got, err := DecodeEventStream(strings.NewReader("data: Hi\ndata: never finished"), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "Hi" {
		t.Fatalf("content = %q, want %q", got, "Hi")
	}
}

func TestDecodeEventStream_IgnoresBlankAndEmptyPayloads(t *testing.T) {
	var progress []string
	input := "\n\ndata:   \nevent: noise\ndata: Hi\n\ndata: [DONE]\n"
	got, err := DecodeEventStream(strings.NewReader(input), func(s string) {
		progress = append(progress, s)
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "Hi" {
		t.Fatalf("content = %q, want %q", got, "Hi")
	}
	if len(progress) != 1 {
		t.Fatalf("progress = %v, want one notification", progress)
	}
}

func TestDecodeEventStream_StopsAtDone(t *testing.T) {
	got, err := DecodeEventStream(strings.NewReader("data: A\ndata: [DONE]\ndata: B\n"), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "A" {
		t.Fatalf("content = %q, want %q", got, "A")
	}
}

func TestDecodeEventStream_LeadingWhitespaceTrimmed(t *testing.T) {
	// leading whitespace is trimmed, internal spacing is preserved
	var progress []string
	got, err := DecodeEventStream(strings.NewReader("data:  Hel\ndata: lo  there\ndata: [DONE]\n"), func(s string) {
		progress = append(progress, s)
	})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "Hello  there" {
		t.Fatalf("content = %q, want %q", got, "Hello  there")
	}
	if progress[0] != "Hel" {
		t.Fatalf("first progress = %q, want %q", progress[0], "Hel")
	}
}

func TestDecodeEventStream_CRLF(t *testing.T) {
	got, err := DecodeEventStream(strings.NewReader("data: Hi\r\ndata: [DONE]\r\n"), nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != "Hi" {
		t.Fatalf("content = %q, want %q", got, "Hi")
	}
}

func TestDecodeEventStream_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	var progress []string
	got, err := DecodeEventStream(&errReader{data: []byte("data: partial\n"), err: boom}, func(s string) {
		progress = append(progress, s)
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if got != "" {
		t.Fatalf("content = %q, want empty on error", got)
	}
	// progress delivered before the failure stands
	if len(progress) != 1 || progress[0] != "partial" {
		t.Fatalf("progress = %v, want [partial]", progress)
	}
}
