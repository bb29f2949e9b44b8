// Package track implements the track lifecycle state machine: a
// TrackManager owns one imm.Estimator per track id, advances them through
// predict/correct cycles, and moves ids between unreliable, reliable,
// suspended, and deleted states based on how many consecutive frames a
// track has gone unmeasured.
package track

import (
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/LdDl/imm-track-go/classification"
	"github.com/LdDl/imm-track-go/imm"
	"github.com/LdDl/imm-track-go/motion"
	"github.com/LdDl/imm-track-go/mottrace"
	"github.com/LdDl/imm-track-go/ukf"
)

// ErrUnknownID is returned when an operation references a track id that is
// registered in neither the active nor the suspended map.
var ErrUnknownID = errors.New("track: id is not registered in this manager")

// TrackedObject is a single track's externally visible state: kinematics,
// size, classification, and the predicted-measurement moments used by
// distance gating.
type TrackedObject struct {
	ID int64

	X, Y, Vx, Vy, Ax, Ay     float64
	Z, Length, Width, Height float64
	Yaw, YawRate, PreviousYaw float64

	Classification classification.Vector
	Attributes     map[string]string

	PredictedMeasurementMean   *mat.VecDense
	PredictedMeasurementCov    *mat.SymDense
	PredictedMeasurementCovInv *mat.Dense
	ErrorCovariance            *mat.SymDense

	Corrected bool
}

// IsDynamic reports whether the track's planar speed exceeds the static
// threshold of 1 m^2/s^2 (in squared-speed terms, to avoid a sqrt).
func (t TrackedObject) IsDynamic() bool {
	return t.Vx*t.Vx+t.Vy*t.Vy > 1.0
}

// StateVector returns t's kinematic state in motion.StateDim layout.
func (t TrackedObject) StateVector() *mat.VecDense {
	return mat.NewVecDense(motion.StateDim, []float64{
		t.X, t.Y, t.Vx, t.Vy, t.Ax, t.Ay,
		t.Z, t.Length, t.Width, t.Height,
		t.Yaw, t.YawRate,
	})
}

// MeasurementVector returns t's pose/size in motion.MeasurementDim layout.
func (t TrackedObject) MeasurementVector() *mat.VecDense {
	return mat.NewVecDense(motion.MeasurementDim, []float64{
		t.X, t.Y, t.Z, t.Length, t.Width, t.Height, t.Yaw,
	})
}

// Config holds the TrackManager's lifecycle thresholds and per-track noise
// defaults. Values mirror the original estimator's frame-rate-independent
// time constants, converted to frame counts via UpdateForFrameRate.
type Config struct {
	NonMeasurementFramesDynamic uint32
	NonMeasurementFramesStatic  uint32
	MaxNumberOfUnreliableFrames uint32
	ReactivationFrames          uint32

	NonMeasurementTimeDynamic float64
	NonMeasurementTimeStatic  float64
	MaxUnreliableTime         float64

	DefaultProcessNoise     float64
	DefaultMeasurementNoise float64
	InitStateCovariance     float64

	MotionModels []motion.Kind

	// AutoIDGeneration controls how CreateTrack assigns an id: true
	// auto-increments an internal counter and overwrites obj.ID, false
	// trusts the caller-supplied obj.ID verbatim.
	AutoIDGeneration bool
}

// DefaultConfig returns the lifecycle thresholds used when none are
// supplied: ~0.27s of missed dynamic-object frames, ~0.53s for static
// objects, a 0.33s warm-up before a track is considered reliable.
func DefaultConfig() Config {
	return Config{
		NonMeasurementFramesDynamic: 15,
		NonMeasurementFramesStatic:  30,
		MaxNumberOfUnreliableFrames: 2,
		ReactivationFrames:          1,

		NonMeasurementTimeDynamic: 0.2666,
		NonMeasurementTimeStatic:  0.5333,
		MaxUnreliableTime:         0.3333,

		DefaultProcessNoise:     1e-3,
		DefaultMeasurementNoise: 1e-2,
		InitStateCovariance:     1.0,

		MotionModels: []motion.Kind{motion.CV, motion.CA, motion.CTRV},

		AutoIDGeneration: true,
	}
}

// UpdateForFrameRate rederives the frame-count thresholds from the
// configured time constants for a new camera frame rate.
func (c *Config) UpdateForFrameRate(fps float64, trace *mottrace.Logger) {
	c.MaxNumberOfUnreliableFrames = uint32(math.Ceil(fps * c.MaxUnreliableTime))
	c.NonMeasurementFramesDynamic = uint32(math.Ceil(fps * c.NonMeasurementTimeDynamic))
	c.NonMeasurementFramesStatic = uint32(math.Ceil(fps * c.NonMeasurementTimeStatic))
	if trace != nil {
		trace.FrameRateUpdated(fps, c.MaxNumberOfUnreliableFrames, c.NonMeasurementFramesDynamic, c.NonMeasurementFramesStatic)
	}
}

type entry struct {
	estimator  *imm.Estimator
	attributes map[string]string
}

// Manager owns the full set of tracks: active (unreliable + reliable) and
// suspended, keyed by an auto-incrementing int64 id.
type Manager struct {
	config     Config
	classTable *classification.Table
	trace      *mottrace.Logger

	nextID int64

	active    map[int64]*entry
	suspended map[int64]*entry

	nonMeasurementFrames map[int64]uint32
	trackedFrames        map[int64]uint32

	pending map[int64]TrackedObject
}

// NewManager constructs an empty TrackManager.
func NewManager(config Config, classTable *classification.Table, log logrus.FieldLogger) *Manager {
	return &Manager{
		config:               config,
		classTable:           classTable,
		trace:                mottrace.New(log),
		active:               make(map[int64]*entry),
		suspended:            make(map[int64]*entry),
		nonMeasurementFrames: make(map[int64]uint32),
		trackedFrames:        make(map[int64]uint32),
		pending:              make(map[int64]TrackedObject),
	}
}

func (m *Manager) scaledIdentity(n int, scale float64) *mat.SymDense {
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		s.SetSym(i, i, scale)
	}
	return s
}

// CreateTrack registers a new track seeded from obj and returns its id. If
// AutoIDGeneration is enabled, the id is auto-incremented and obj.ID is
// ignored; otherwise obj.ID is used verbatim as the new track's id.
func (m *Manager) CreateTrack(obj TrackedObject) (int64, error) {
	var id int64
	if m.config.AutoIDGeneration {
		m.nextID++
		id = m.nextID
	} else {
		id = obj.ID
	}

	initCov := m.scaledIdentity(motion.StateDim, m.config.InitStateCovariance)
	q := m.scaledIdentity(motion.StateDim, m.config.DefaultProcessNoise)
	r := m.scaledIdentity(motion.MeasurementDim, m.config.DefaultMeasurementNoise)

	est, err := imm.NewEstimator(m.config.MotionModels, obj.StateVector(), initCov, q, r, m.classTable, obj.Classification)
	if err != nil {
		return 0, errors.Wrap(err, "track: create")
	}

	m.active[id] = &entry{estimator: est, attributes: obj.Attributes}
	m.nonMeasurementFrames[id] = 0
	m.trackedFrames[id] = 0
	m.trace.TrackCreated(id, m.config.AutoIDGeneration)
	return id, nil
}

// Predict advances every active track's estimator by dt seconds and clears
// any unconsumed pending measurements from the previous cycle. Suspended
// tracks are left untouched, matching the upstream estimator's behavior of
// only iterating the active map.
func (m *Manager) Predict(dt float64) error {
	control := mat.NewVecDense(1, []float64{dt})
	for id, e := range m.active {
		if err := e.estimator.Predict(control); err != nil {
			return errors.Wrapf(err, "track: predict id=%d", id)
		}
	}
	m.pending = make(map[int64]TrackedObject)
	return nil
}

// SetMeasurement stages a measurement for id, to be applied on the next
// Correct call.
func (m *Manager) SetMeasurement(id int64, measurement TrackedObject) {
	m.pending[id] = measurement
}

// Correct applies every staged measurement, reactivating any suspended
// track that received one, advances the non-measurement/tracked-frame
// counters, and transitions tracks between reliable/suspended/deleted
// states.
func (m *Manager) Correct() error {
	for id, e := range m.active {
		meas, ok := m.pending[id]
		if !ok {
			m.nonMeasurementFrames[id]++
			continue
		}
		if err := e.estimator.Correct(meas.MeasurementVector(), meas.Classification); err != nil {
			return errors.Wrapf(err, "track: correct id=%d", id)
		}
		m.nonMeasurementFrames[id] = 0
		m.trackedFrames[id]++
	}

	var reactivations []int64
	for id := range m.suspended {
		if _, ok := m.pending[id]; ok {
			reactivations = append(reactivations, id)
		}
	}
	for _, id := range reactivations {
		m.ReactivateTrack(id)
		meas := m.pending[id]
		if err := m.active[id].estimator.Correct(meas.MeasurementVector(), meas.Classification); err != nil {
			return errors.Wrapf(err, "track: correct reactivated id=%d", id)
		}
		m.nonMeasurementFrames[id] = 0
		m.trackedFrames[id]++
	}

	var toDelete, toSuspend []int64
	for id, missed := range m.nonMeasurementFrames {
		e, ok := m.active[id]
		if !ok {
			continue
		}
		state := stateFromEstimator(id, e, nil)
		if m.IsReliable(id) {
			if state.IsDynamic() {
				if missed > m.config.NonMeasurementFramesDynamic {
					toDelete = append(toDelete, id)
				}
			} else if missed > m.config.NonMeasurementFramesStatic {
				toSuspend = append(toSuspend, id)
			}
		} else if missed > m.config.NonMeasurementFramesDynamic {
			toDelete = append(toDelete, id)
		}
	}
	for _, id := range toDelete {
		m.DeleteTrack(id)
	}
	for _, id := range toSuspend {
		m.SuspendTrack(id)
	}
	return nil
}

// DeleteTrack removes id from whichever map currently holds it.
func (m *Manager) DeleteTrack(id int64) {
	delete(m.active, id)
	delete(m.suspended, id)
	delete(m.nonMeasurementFrames, id)
	delete(m.trackedFrames, id)
	m.trace.TrackDeleted(id)
}

// SuspendTrack moves an active track to the suspended map, preserving its
// tracked-frame count but dropping its non-measurement counter.
func (m *Manager) SuspendTrack(id int64) {
	e, ok := m.active[id]
	if !ok {
		return
	}
	m.suspended[id] = e
	delete(m.active, id)
	delete(m.nonMeasurementFrames, id)
	m.trace.TrackSuspended(id)
}

// ReactivateTrack moves a suspended track back into the active map. Its
// tracked-frame count is set to maxUnreliableFrames-reactivationFrames, so
// a reactivated track needs only reactivationFrames more measured frames
// before being considered reliable again.
func (m *Manager) ReactivateTrack(id int64) {
	e, ok := m.suspended[id]
	if !ok {
		return
	}
	m.active[id] = e
	delete(m.suspended, id)
	m.nonMeasurementFrames[id] = 0
	if m.config.MaxNumberOfUnreliableFrames > m.config.ReactivationFrames {
		m.trackedFrames[id] = m.config.MaxNumberOfUnreliableFrames - m.config.ReactivationFrames
	} else {
		m.trackedFrames[id] = 0
	}
	m.trace.TrackReactivated(id)
}

// IsReliable reports whether id has accumulated at least
// MaxNumberOfUnreliableFrames tracked (corrected) frames.
func (m *Manager) IsReliable(id int64) bool {
	return m.trackedFrames[id] >= m.config.MaxNumberOfUnreliableFrames
}

// IsSuspended reports whether id is currently in the suspended map.
func (m *Manager) IsSuspended(id int64) bool {
	_, ok := m.suspended[id]
	return ok
}

// HasID reports whether id is registered, active or suspended.
func (m *Manager) HasID(id int64) bool {
	if _, ok := m.active[id]; ok {
		return true
	}
	_, ok := m.suspended[id]
	return ok
}

func stateFromEstimator(id int64, e *entry, corrected *bool) TrackedObject {
	state := e.estimator.GetState()
	cov := e.estimator.GetErrorCov()
	predMean := e.estimator.GetPredictedMeasurement()
	predCov := e.estimator.GetPredictedMeasurementCov()

	var predCovInv *mat.Dense
	if predCov != nil {
		predCovInv = ukf.PseudoInverse(predCov)
	}

	obj := TrackedObject{
		ID:                         id,
		X:                          state.AtVec(0),
		Y:                          state.AtVec(1),
		Vx:                         state.AtVec(2),
		Vy:                         state.AtVec(3),
		Ax:                         state.AtVec(4),
		Ay:                         state.AtVec(5),
		Z:                          state.AtVec(6),
		Length:                     state.AtVec(7),
		Width:                      state.AtVec(8),
		Height:                     state.AtVec(9),
		Yaw:                        state.AtVec(10),
		YawRate:                    state.AtVec(11),
		PreviousYaw:                e.estimator.GetPreviousYaw(),
		Classification:             e.estimator.GetClassification(),
		Attributes:                 e.attributes,
		PredictedMeasurementMean:   predMean,
		PredictedMeasurementCov:    predCov,
		PredictedMeasurementCovInv: predCovInv,
		ErrorCovariance:            cov,
	}
	if corrected != nil {
		obj.Corrected = *corrected
	}
	return obj
}

// GetTrack returns the current snapshot for id, or ErrUnknownID.
func (m *Manager) GetTrack(id int64) (TrackedObject, error) {
	if e, ok := m.active[id]; ok {
		return stateFromEstimator(id, e, nil), nil
	}
	if e, ok := m.suspended[id]; ok {
		return stateFromEstimator(id, e, nil), nil
	}
	return TrackedObject{}, errors.Wrapf(ErrUnknownID, "id=%d", id)
}

// GetTracks returns every track, active and suspended.
func (m *Manager) GetTracks() []TrackedObject {
	out := make([]TrackedObject, 0, len(m.active)+len(m.suspended))
	for id, e := range m.active {
		out = append(out, stateFromEstimator(id, e, nil))
	}
	for id, e := range m.suspended {
		out = append(out, stateFromEstimator(id, e, nil))
	}
	return out
}

// GetReliableTracks returns every active track with at least
// MaxNumberOfUnreliableFrames measured frames.
func (m *Manager) GetReliableTracks() []TrackedObject {
	var out []TrackedObject
	for id, e := range m.active {
		if m.IsReliable(id) {
			out = append(out, stateFromEstimator(id, e, nil))
		}
	}
	return out
}

// GetUnreliableTracks returns every active track that is not yet reliable.
func (m *Manager) GetUnreliableTracks() []TrackedObject {
	var out []TrackedObject
	for id, e := range m.active {
		if !m.IsReliable(id) {
			out = append(out, stateFromEstimator(id, e, nil))
		}
	}
	return out
}

// GetSuspendedTracks returns every suspended track.
func (m *Manager) GetSuspendedTracks() []TrackedObject {
	out := make([]TrackedObject, 0, len(m.suspended))
	for id, e := range m.suspended {
		out = append(out, stateFromEstimator(id, e, nil))
	}
	return out
}

// GetDriftingTracks returns reliable active tracks whose non-measurement
// streak already exceeds half of NonMeasurementFramesDynamic: still
// tracked, but trending toward suspension/deletion.
func (m *Manager) GetDriftingTracks() []TrackedObject {
	var out []TrackedObject
	for id, e := range m.active {
		if m.IsReliable(id) && m.nonMeasurementFrames[id] > m.config.NonMeasurementFramesDynamic/2 {
			out = append(out, stateFromEstimator(id, e, nil))
		}
	}
	return out
}
