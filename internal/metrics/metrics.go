// Package metrics provides observability for state engine activity.
//
// Components receive a Recorder through dependency injection and default to
// NoopRecorder, so metrics can be enabled by swapping the implementation
// without touching call sites.
package metrics

// Recorder defines all metrics operations the engine emits.
type Recorder interface {
	// SetStateCount sets the current number of repositories in a state.
	SetStateCount(state string, count int)

	// RecordTransition counts an applied transition.
	RecordTransition(from, to string)

	// RecordBlockedTransition counts a silently rejected transition.
	RecordBlockedTransition(from, to string)

	// RecordBroadcast counts an enqueued broadcast entry.
	RecordBroadcast()

	// RecordDetection counts a detection pipeline run by concluded state.
	RecordDetection(result string)
}

// NoopRecorder is the default Recorder; its methods inline to nothing.
type NoopRecorder struct{}

func (NoopRecorder) SetStateCount(string, int)            {}
func (NoopRecorder) RecordTransition(string, string)      {}
func (NoopRecorder) RecordBlockedTransition(string, string) {}
func (NoopRecorder) RecordBroadcast()                     {}
func (NoopRecorder) RecordDetection(string)               {}
