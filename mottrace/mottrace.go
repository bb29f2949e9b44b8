// Package mottrace provides structured, domain-named logging of tracker
// decisions on top of github.com/sirupsen/logrus: track lifecycle
// transitions (created/suspended/reactivated/deleted) and per-frame
// association outcomes, so callers get a consistent field vocabulary
// instead of ad hoc WithField calls scattered across packages.
package mottrace

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.FieldLogger with the tracker's domain-specific
// logging vocabulary.
type Logger struct {
	log logrus.FieldLogger
}

// New wraps an existing logrus.FieldLogger. A nil log falls back to
// logrus.StandardLogger().
func New(log logrus.FieldLogger) *Logger {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Logger{log: log}
}

// NewWithLevel builds a Logger backed by a fresh *logrus.Logger at the
// named level ("debug", "info", "warn", ...).
func NewWithLevel(levelName string) (*Logger, error) {
	lvl, err := logrus.ParseLevel(levelName)
	if err != nil {
		return nil, errors.Wrapf(err, "mottrace: parse level %q", levelName)
	}
	l := logrus.New()
	l.SetLevel(lvl)
	return &Logger{log: l}, nil
}

// TrackCreated logs a new track id entering the manager, noting whether it
// came from auto-increment or a caller-supplied id.
func (l *Logger) TrackCreated(id int64, autoID bool) {
	l.log.WithFields(logrus.Fields{"track_id": id, "auto_id": autoID}).Debug("track: created")
}

// TrackSuspended logs an active track moving to the suspended map.
func (l *Logger) TrackSuspended(id int64) {
	l.log.WithField("track_id", id).Debug("track: suspended")
}

// TrackReactivated logs a suspended track receiving a new measurement and
// returning to the active map.
func (l *Logger) TrackReactivated(id int64) {
	l.log.WithField("track_id", id).Debug("track: reactivated")
}

// TrackDeleted logs a track being dropped from the manager entirely.
func (l *Logger) TrackDeleted(id int64) {
	l.log.WithField("track_id", id).Debug("track: deleted")
}

// FrameRateUpdated logs the manager rederiving its frame-count thresholds
// for a new camera frame rate.
func (l *Logger) FrameRateUpdated(fps float64, maxUnreliableFrames, nonMeasurementFramesDynamic, nonMeasurementFramesStatic uint32) {
	l.log.WithFields(logrus.Fields{
		"fps":                         fps,
		"max_unreliable_frames":       maxUnreliableFrames,
		"non_measurement_frames_dyn":  nonMeasurementFramesDynamic,
		"non_measurement_frames_stat": nonMeasurementFramesStatic,
	}).Info("track: updated frame-rate-derived thresholds")
}

// Frame returns a field logger scoped to one tracker.Track call, tagging
// every subsequent log line with batchID for correlation across the
// passes of a single frame.
func (l *Logger) Frame(batchID string, detections int) logrus.FieldLogger {
	return l.log.WithFields(logrus.Fields{"batch_id": batchID, "detections": detections})
}

// TrackBorn logs an unmatched detection birthing a new track within frame
// batchID.
func (l *Logger) TrackBorn(batchID string, id int64) {
	l.log.WithFields(logrus.Fields{"batch_id": batchID, "track_id": id}).Debug("tracker: new track born")
}

// AssociationPass logs the outcome of one gated-matching pass (reliable
// against high-score, reliable against low-score, unreliable, or
// suspended) within frame batchID.
func (l *Logger) AssociationPass(batchID, pass string, matched, unmatchedTracks, unmatchedDetections int) {
	l.log.WithFields(logrus.Fields{
		"batch_id":             batchID,
		"pass":                 pass,
		"matched":              matched,
		"unmatched_tracks":     unmatchedTracks,
		"unmatched_detections": unmatchedDetections,
	}).Debug("tracker: association pass complete")
}
