package transport

import (
	"bytes"
	"strings"
)

// MaxLineLen caps a buffered partial line; longer input is discarded.
const MaxLineLen = 512

// LineBuffer splits a byte stream into request lines. Lines end at '\n'
// or NUL; carriage returns and surrounding blanks are stripped, and blank
// lines are skipped.
type LineBuffer struct {
	buf []byte
}

// Feed appends p and returns every complete line it closes.
func (b *LineBuffer) Feed(p []byte) []string {
	b.buf = append(b.buf, p...)

	var lines []string
	for {
		i := bytes.IndexAny(b.buf, "\n\x00")
		if i < 0 {
			break
		}
		if line := TrimLine(string(b.buf[:i])); line != "" {
			lines = append(lines, line)
		}
		b.buf = b.buf[i+1:]
	}

	if len(b.buf) > MaxLineLen {
		b.buf = b.buf[:0]
	}
	return lines
}

// Flush returns whatever partial line is buffered and clears it. Channels
// whose peers send one undelimited command per write call this after
// each read.
func (b *LineBuffer) Flush() string {
	line := TrimLine(string(b.buf))
	b.buf = b.buf[:0]
	return line
}

func (b *LineBuffer) Reset() {
	b.buf = b.buf[:0]
}

// TrimLine strips line terminators, NULs and blanks from both ends of s.
func TrimLine(s string) string {
	return strings.TrimSpace(strings.Trim(s, "\r\n\x00"))
}
