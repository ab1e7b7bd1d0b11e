// Package metrics records daemon activity. The Prometheus implementation is
// used when a metrics listener is configured; NoopRecorder otherwise.
package metrics

// Recorder is implemented by metric sinks. Implementations must be safe for
// concurrent use.
type Recorder interface {
	SessionOpened()
	SessionClosed()
	Request(command string)
	ProtocolError()
	BytesSent(n int)
	SendDropped()
	Sentence(kind string, ok bool)
}

type NoopRecorder struct{}

func (NoopRecorder) SessionOpened()        {}
func (NoopRecorder) SessionClosed()        {}
func (NoopRecorder) Request(string)        {}
func (NoopRecorder) ProtocolError()        {}
func (NoopRecorder) BytesSent(int)         {}
func (NoopRecorder) SendDropped()          {}
func (NoopRecorder) Sentence(string, bool) {}
