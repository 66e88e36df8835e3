package ai

import (
	"io"
	"strings"
	"unicode/utf8"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

const leadingSpace = " \t\r\n"

// DecodeEventStream reads an assistant event-stream body to completion and
// returns the accumulated reply text, left-trimmed of leading whitespace.
//
// Framing is line-oriented: blank lines and lines without the "data: "
// prefix are ignored; a payload equal to "[DONE]" (after trimming) ends the
// stream; an otherwise-empty payload is skipped; any other payload is
// appended verbatim to the running reply. After each appended payload,
// onProgress receives the reply accumulated so far. Multi-byte runes and
// lines may span chunk boundaries; the final partial line is never
// processed.
//
// End-of-body without "[DONE]" is still success. A read error fails the
// decode with no result, though progress already delivered stands.
func DecodeEventStream(r io.Reader, onProgress func(content string)) (string, error) {
	var (
		acc   strings.Builder
		line  strings.Builder
		carry []byte
		buf   = make([]byte, 4096)
	)

	processLine := func(l string) (done bool) {
		l = strings.TrimSuffix(l, "\r")
		if l == "" || !strings.HasPrefix(l, dataPrefix) {
			return false
		}
		payload := l[len(dataPrefix):]
		trimmed := strings.TrimSpace(payload)
		if trimmed == doneSentinel {
			return true
		}
		if trimmed == "" {
			return false
		}
		acc.WriteString(payload)
		if onProgress != nil {
			onProgress(strings.TrimLeft(acc.String(), leadingSpace))
		}
		return false
	}

	for {
		n, err := r.Read(buf)
		if n > 0 {
			text, rest := splitCompleteRunes(append(carry, buf[:n]...))
			carry = rest

			start := 0
			for {
				i := strings.IndexByte(text[start:], '\n')
				if i < 0 {
					line.WriteString(text[start:])
					break
				}
				line.WriteString(text[start : start+i])
				full := line.String()
				line.Reset()
				if processLine(full) {
					return strings.TrimLeft(acc.String(), leadingSpace), nil
				}
				start += i + 1
			}
		}
		if err != nil {
			if err == io.EOF {
				return strings.TrimLeft(acc.String(), leadingSpace), nil
			}
			return "", err
		}
	}
}

// splitCompleteRunes splits b into the longest prefix of whole UTF-8 runes
// and the trailing bytes of a rune still waiting on the next chunk. The
// returned tail is a copy, safe to hold across reads.
func splitCompleteRunes(b []byte) (string, []byte) {
	start := len(b)
	for start > 0 && len(b)-start < utf8.UTFMax {
		start--
		if utf8.RuneStart(b[start]) {
			if utf8.FullRune(b[start:]) {
				return string(b), nil
			}
			return string(b[:start]), append([]byte(nil), b[start:]...)
		}
	}
	// no rune start within reach: invalid input, pass it through as-is
	return string(b), nil
}
