package audio

// Drain reads from ch until the channel is closed and returns everything it
// received concatenated. Use it to collect the remainder of an
// [InputStream] after Close.
func Drain(ch <-chan []byte) []byte {
	var out []byte
	for b := range ch {
		out = append(out, b...)
	}
	return out
}
