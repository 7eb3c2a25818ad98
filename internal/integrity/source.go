package integrity

// ChannelSource is a SignalSource fed programmatically, used by native host
// wrappers that translate platform callbacks into signals, and by tests.
type ChannelSource struct {
	ch chan Signal
}

// NewChannelSource creates a buffered source.
func NewChannelSource(buffer int) *ChannelSource {
	return &ChannelSource{ch: make(chan Signal, buffer)}
}

// Push delivers one signal. Drops when the buffer is full rather than
// blocking the host callback thread.
func (s *ChannelSource) Push(sig Signal) {
	select {
	case s.ch <- sig:
	default:
	}
}

// Signals implements SignalSource.
func (s *ChannelSource) Signals() <-chan Signal {
	return s.ch
}

// Close ends the stream.
func (s *ChannelSource) Close() {
	close(s.ch)
}
