// Package delta implements the byte-wise delta filter used by 7z
// archives: each output byte is the sum of the input byte and the output
// byte one distance earlier.
package delta

import "io"

// NewReader decodes a delta-filtered stream. dist must be between 1 and
// 256, as encoded by the coder's single property byte plus one.
func NewReader(r io.Reader, dist int) io.Reader {
	return &reader{r: r, hist: make([]byte, dist)}
}

type reader struct {
	r    io.Reader
	hist []byte
	pos  int
}

func (d *reader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	for i := 0; i < n; i++ {
		v := p[i] + d.hist[d.pos]
		p[i] = v
		d.hist[d.pos] = v
		d.pos++
		if d.pos == len(d.hist) {
			d.pos = 0
		}
	}
	return n, err
}

// NewWriter applies the inverse transform, emitting the difference of each
// byte and the raw byte one distance earlier.
func NewWriter(w io.Writer, dist int) io.Writer {
	return &writer{w: w, hist: make([]byte, dist)}
}

type writer struct {
	w    io.Writer
	hist []byte
	pos  int
}

func (d *writer) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	for i, b := range p {
		out[i] = b - d.hist[d.pos]
		d.hist[d.pos] = b
		d.pos++
		if d.pos == len(d.hist) {
			d.pos = 0
		}
	}
	n, err := d.w.Write(out)
	if err != nil {
		return n, err
	}
	return len(p), nil
}
