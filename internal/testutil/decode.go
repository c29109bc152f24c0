package testutil

// Decoder is the incremental decoder contract shared by the socks4 and
// socks5 packages.
type Decoder interface {
	Decode(in []byte) (int, any)
}

// Feed delivers chunks to d the way the pipeline does: bytes accumulate and
// d is invoked until it neither consumes nor produces anything. It returns
// every produced value and the bytes left unconsumed.
func Feed(d Decoder, chunks ...[]byte) ([]any, []byte) {
	var (
		outs []any
		buf  []byte
	)
	for _, chunk := range chunks {
		buf = append(buf, chunk...)
		for {
			n, out := d.Decode(buf)
			buf = buf[n:]
			if out != nil {
				outs = append(outs, out)
			}
			if n == 0 && out == nil {
				break
			}
		}
	}
	return outs, buf
}

// Bytewise splits b into single-byte chunks.
func Bytewise(b []byte) [][]byte {
	chunks := make([][]byte, len(b))
	for i := range b {
		chunks[i] = b[i : i+1]
	}
	return chunks
}
