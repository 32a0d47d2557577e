package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use this to prevent goroutine leaks when abandoning a streaming channel
// (e.g. the capture stream during shutdown).
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
