// Package tracker implements the top-level multi-object tracker façade: a
// single Track call per frame that predicts every track forward, runs a
// four-pass gated association (reliable tracks against high-score
// detections, then against low-score detections, then unreliable tracks,
// then suspended tracks), applies the accepted measurements, and finally
// births new tracks from whatever high-score detections are still
// unmatched.
package tracker

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/LdDl/imm-track-go/assignment"
	"github.com/LdDl/imm-track-go/classification"
	"github.com/LdDl/imm-track-go/distance"
	"github.com/LdDl/imm-track-go/mottrace"
	"github.com/LdDl/imm-track-go/track"
)

// Config holds the façade's per-frame tuning knobs.
type Config struct {
	DistanceType      distance.Type
	DistanceThreshold float64
	// ScoreThreshold splits incoming detections into a high-confidence
	// pool (tried against reliable, then unreliable, then suspended
	// tracks, and eligible to birth new tracks) and a low-confidence pool
	// (tried only against the reliable tracks the high-confidence pass
	// left unmatched).
	ScoreThreshold float64
	TrackManager   track.Config
}

// DefaultConfig mirrors the original's distance/threshold defaults: a
// compound Mahalanobis/classification metric with a permissive gate and a
// 0.5 confidence split.
func DefaultConfig() Config {
	return Config{
		DistanceType:      distance.TypeMCEMahalanobis,
		DistanceThreshold: 10.0,
		ScoreThreshold:    0.5,
		TrackManager:      track.DefaultConfig(),
	}
}

// MultipleObjectTracker is the stateful per-sequence tracker.
type MultipleObjectTracker struct {
	manager           *track.Manager
	distanceType      distance.Type
	distanceThreshold float64
	scoreThreshold    float64

	lastTimestamp time.Time
	initialized   bool

	trace *mottrace.Logger
}

// New constructs a tracker with no tracks yet.
func New(cfg Config, classTable *classification.Table, log logrus.FieldLogger) *MultipleObjectTracker {
	return &MultipleObjectTracker{
		manager:           track.NewManager(cfg.TrackManager, classTable, log),
		distanceType:      cfg.DistanceType,
		distanceThreshold: cfg.DistanceThreshold,
		scoreThreshold:    cfg.ScoreThreshold,
		trace:             mottrace.New(log),
	}
}

// splitByScore partitions detections into high-score (classification max
// >= scoreThreshold) and low-score pools, preserving relative order.
func splitByScore(detections []track.TrackedObject, scoreThreshold float64) (high, low []track.TrackedObject) {
	for _, d := range detections {
		if d.Classification.Max() >= scoreThreshold {
			high = append(high, d)
		} else {
			low = append(low, d)
		}
	}
	return high, low
}

func filterByIndex(elements []track.TrackedObject, keep []int) []track.TrackedObject {
	out := make([]track.TrackedObject, 0, len(keep))
	for _, i := range keep {
		out = append(out, elements[i])
	}
	return out
}

// costMatrix builds a tracks x detections distance matrix, treating any
// metric error (e.g. a track with no predicted measurement covariance yet)
// as an unreachable cost rather than aborting the whole match.
func (mot *MultipleObjectTracker) costMatrix(tracks, detections []track.TrackedObject) [][]float64 {
	d := distance.Func(mot.distanceType)
	m := make([][]float64, len(tracks))
	for i, t := range tracks {
		row := make([]float64, len(detections))
		for j, det := range detections {
			cost, err := d(det, t)
			if err != nil {
				cost = assignment.DefaultBoundValue
			}
			row[j] = cost
		}
		m[i] = row
	}
	return m
}

func (mot *MultipleObjectTracker) match(tracks, detections []track.TrackedObject) assignment.Result {
	if len(tracks) == 0 {
		// a cost matrix with no rows carries no column count, so list every
		// detection as unassigned here
		result := assignment.Result{}
		for j := range detections {
			result.UnassignedDetections = append(result.UnassignedDetections, j)
		}
		return result
	}
	return assignment.Solve(mot.costMatrix(tracks, detections), mot.distanceThreshold)
}

func (mot *MultipleObjectTracker) applyMatches(tracks, detections []track.TrackedObject, matches []assignment.Match) {
	for _, mt := range matches {
		mot.manager.SetMeasurement(tracks[mt.TrackIndex].ID, detections[mt.DetectionIndex])
	}
}

// Track processes one frame of detections at timestamp. Every call gets
// its own batch id, purely for correlating the log lines one frame
// produces; it has no bearing on track identity, which stays int64.
func (mot *MultipleObjectTracker) Track(detections []track.TrackedObject, timestamp time.Time) error {
	batchID := uuid.New().String()

	dt := 0.0
	if mot.initialized {
		dt = timestamp.Sub(mot.lastTimestamp).Seconds()
	}
	mot.initialized = true

	if len(detections) == 0 {
		if err := mot.manager.Predict(dt); err != nil {
			return errors.Wrap(err, "tracker: predict")
		}
		if err := mot.manager.Correct(); err != nil {
			return errors.Wrap(err, "tracker: correct")
		}
		mot.lastTimestamp = timestamp
		return nil
	}

	highScore, lowScore := splitByScore(detections, mot.scoreThreshold)

	if err := mot.manager.Predict(dt); err != nil {
		return errors.Wrap(err, "tracker: predict")
	}

	reliable := mot.manager.GetReliableTracks()
	result := mot.match(reliable, highScore)
	mot.applyMatches(reliable, highScore, result.Matches)
	mot.trace.AssociationPass(batchID, "reliable_high_score", len(result.Matches), len(result.UnassignedTracks), len(result.UnassignedDetections))

	remainingReliable := filterByIndex(reliable, result.UnassignedTracks)
	lowResult := mot.match(remainingReliable, lowScore)
	mot.applyMatches(remainingReliable, lowScore, lowResult.Matches)
	mot.trace.AssociationPass(batchID, "reliable_low_score", len(lowResult.Matches), len(lowResult.UnassignedTracks), len(lowResult.UnassignedDetections))

	remainingHighScore := filterByIndex(highScore, result.UnassignedDetections)

	unreliable := mot.manager.GetUnreliableTracks()
	unreliableResult := mot.match(unreliable, remainingHighScore)
	mot.applyMatches(unreliable, remainingHighScore, unreliableResult.Matches)
	mot.trace.AssociationPass(batchID, "unreliable", len(unreliableResult.Matches), len(unreliableResult.UnassignedTracks), len(unreliableResult.UnassignedDetections))
	remainingHighScore = filterByIndex(remainingHighScore, unreliableResult.UnassignedDetections)

	suspended := mot.manager.GetSuspendedTracks()
	suspendedResult := mot.match(suspended, remainingHighScore)
	mot.applyMatches(suspended, remainingHighScore, suspendedResult.Matches)
	mot.trace.AssociationPass(batchID, "suspended", len(suspendedResult.Matches), len(suspendedResult.UnassignedTracks), len(suspendedResult.UnassignedDetections))
	remainingHighScore = filterByIndex(remainingHighScore, suspendedResult.UnassignedDetections)

	if err := mot.manager.Correct(); err != nil {
		return errors.Wrap(err, "tracker: correct")
	}

	for _, det := range remainingHighScore {
		id, err := mot.manager.CreateTrack(det)
		if err != nil {
			return errors.Wrap(err, "tracker: birth")
		}
		mot.trace.TrackBorn(batchID, id)
	}

	mot.lastTimestamp = timestamp
	return nil
}

// GetTracks exposes the underlying manager's full track list.
func (mot *MultipleObjectTracker) GetTracks() []track.TrackedObject {
	return mot.manager.GetTracks()
}

// GetReliableTracks exposes the underlying manager's reliable track list.
func (mot *MultipleObjectTracker) GetReliableTracks() []track.TrackedObject {
	return mot.manager.GetReliableTracks()
}
