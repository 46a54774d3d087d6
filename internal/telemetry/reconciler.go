package telemetry

import (
	"github.com/thatsimonsguy/intersection-view/internal/model"
)

// Reconciler holds the normalized latest state for one road. It is not safe for concurrent
// use; a session applies every message from a single goroutine.
type Reconciler struct {
	roadID  int
	frame   model.TelemetryFrame
	signals map[model.GroupID]model.Signal
}

func NewReconciler(roadID int) *Reconciler {
	return &Reconciler{
		roadID:  roadID,
		frame:   model.UnknownFrame(),
		signals: make(map[model.GroupID]model.Signal),
	}
}

func (r *Reconciler) RoadID() int {
	return r.roadID
}

// AnalyticsOpened clears the class breakdown when the analytics feed connects.
func (r *Reconciler) AnalyticsOpened() {
	r.frame.DownByClass = nil
	r.frame.ClassStatus = model.StatusOK
}

// AnalyticsFailed marks the frame after a transport error on the analytics feed.
func (r *Reconciler) AnalyticsFailed() {
	r.frame.TotalDown = model.Marker(model.StatusFeedError)
	r.frame.FPS = model.Marker(model.StatusFeedError)
	r.frame.DownByClass = nil
	r.frame.ClassStatus = model.StatusFeedError
}

// AnalyticsClosed marks the frame after the analytics feed closed.
func (r *Reconciler) AnalyticsClosed() {
	r.frame.TotalDown = model.Marker(model.StatusDisconnected)
	r.frame.FPS = model.Marker(model.StatusUnknown)
	r.frame.DownByClass = nil
	r.frame.ClassStatus = model.StatusDisconnected
}

func (r *Reconciler) Frame() model.TelemetryFrame {
	f := r.frame
	f.DownByClass = append([]model.ClassCount(nil), r.frame.DownByClass...)
	return f
}

func (r *Reconciler) Signals() map[model.GroupID]model.Signal {
	out := make(map[model.GroupID]model.Signal, len(r.signals))
	for g, s := range r.signals {
		out[g] = s
	}
	return out
}
