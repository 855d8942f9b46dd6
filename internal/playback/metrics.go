package playback

// Metrics receives counters from the playback core.
type Metrics interface {
	IncReconcile(mode string)
	IncReconcileDeferred()
	IncCameraStart()
	IncCameraFailure(kind string)
	IncPropagation(action string)
	IncDroppedEcho()
	IncLoadFailure(channel string)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) IncReconcile(string)     {}
func (NopMetrics) IncReconcileDeferred()   {}
func (NopMetrics) IncCameraStart()         {}
func (NopMetrics) IncCameraFailure(string) {}
func (NopMetrics) IncPropagation(string)   {}
func (NopMetrics) IncDroppedEcho()         {}
func (NopMetrics) IncLoadFailure(string)   {}
