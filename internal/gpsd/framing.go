package gpsd

import "bytes"

// framer accumulates client bytes and cuts them into requests.
//
// A request ends at '\n', '\r' or ';' outside any JSON object, or at the '}'
// that closes the outermost object. Braces inside JSON strings are ignored.
// Bytes after the last complete request stay buffered.
type framer struct {
	buf []byte
	max int
}

func newFramer(max int) *framer {
	if max <= 0 {
		max = 64 * 1024
	}
	return &framer{max: max}
}

// Feed appends p and returns every request completed by it.
//
// When the buffered partial request grows beyond the limit it is discarded
// and ErrRequestTooLarge returned alongside any requests already complete.
func (f *framer) Feed(p []byte) ([][]byte, error) {
	f.buf = append(f.buf, p...)

	var out [][]byte
	start := 0
	depth := 0
	inString := false
	escaped := false

	emit := func(end int) {
		req := bytes.TrimSpace(f.buf[start:end])
		if len(req) > 0 {
			out = append(out, append([]byte(nil), req...))
		}
	}

	for i := 0; i < len(f.buf); i++ {
		c := f.buf[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 {
					emit(i + 1)
					start = i + 1
				}
			}
		case '\n', '\r', ';':
			if depth == 0 {
				emit(i)
				start = i + 1
			}
		}
	}

	rest := f.buf[start:]
	if len(rest) > f.max {
		f.buf = f.buf[:0]
		return out, ErrRequestTooLarge
	}
	// Compact so the buffer does not grow with every request served.
	f.buf = append(f.buf[:0], rest...)
	return out, nil
}

// Buffered reports the number of bytes waiting for a request boundary.
func (f *framer) Buffered() int {
	return len(f.buf)
}
