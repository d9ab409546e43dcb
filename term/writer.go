package term

import (
	"bytes"
	"io"
)

// CRLF wraps a writer with \n → \r\n conversion, needed for tty output
// because raw mode disables the kernel's NL→CRNL translation.
func CRLF(w io.Writer) io.Writer {
	return &crlfWriter{w: w}
}

type crlfWriter struct {
	w io.Writer
}

func (c *crlfWriter) Write(p []byte) (int, error) {
	replaced := bytes.ReplaceAll(p, []byte("\n"), []byte("\r\n"))
	_, err := c.w.Write(replaced)
	return len(p), err // report original length to caller
}
