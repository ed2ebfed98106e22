package protocol

import (
	"bytes"
)

// SplitCredentialLine looks for the first CRLF in buf and returns the bytes
// before it (the candidate digest line) and the remainder. ok is false if
// buf contains no CRLF at all, in which case the caller must treat this
// exactly like any other classification failure (spec §4.2: the parser
// never blocks for more bytes).
func SplitCredentialLine(buf []byte) (line string, rest []byte, ok bool) {
	i := bytes.Index(buf, []byte(crlf))
	if i < 0 {
		return "", nil, false
	}
	return string(buf[:i]), buf[i+2:], true
}
