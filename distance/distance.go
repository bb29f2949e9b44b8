// Package distance implements the cost functions used to score a
// detection against a track during data association: plain Euclidean,
// classification-scaled Euclidean, Mahalanobis against the predicted
// measurement covariance, and a 50/50 blend of the latter two.
package distance

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LdDl/imm-track-go/classification"
	"github.com/LdDl/imm-track-go/track"
)

// yawIndex is the measurement-vector index ignored by Mahalanobis: 2D
// detectors cannot observe heading, so it contributes no information.
const yawIndex = 6

// Euclidean returns the planar distance between a measurement and a track.
func Euclidean(measurement, t track.TrackedObject) float64 {
	dx := measurement.X - t.X
	dy := measurement.Y - t.Y
	return math.Hypot(dx, dy)
}

// MultiClassEuclidean scales Euclidean by (1 + classification conflict),
// so detections whose class disagrees with the track's are penalized.
func MultiClassEuclidean(measurement, t track.TrackedObject) (float64, error) {
	conflict, err := classification.Distance(measurement.Classification, t.Classification)
	if err != nil {
		return 0, errors.Wrap(err, "distance: multiclass euclidean")
	}
	return Euclidean(measurement, t) * (1.0 + conflict), nil
}

// Mahalanobis measures the measurement's innovation against the track's
// predicted measurement covariance, with yaw excluded (2D detections carry
// no heading information).
func Mahalanobis(measurement, t track.TrackedObject) (float64, error) {
	if t.PredictedMeasurementCovInv == nil {
		return 0, errors.New("distance: mahalanobis requires a predicted measurement covariance")
	}
	innovation := mat.NewVecDense(measurement.MeasurementVector().Len(), nil)
	innovation.SubVec(measurement.MeasurementVector(), t.PredictedMeasurementMean)
	innovation.SetVec(yawIndex, 0)

	var scratch mat.VecDense
	scratch.MulVec(t.PredictedMeasurementCovInv, innovation)
	quad := mat.Dot(innovation, &scratch)
	if quad < 0 {
		quad = 0
	}
	return 0.5 * math.Sqrt(quad), nil
}

// MCEMahalanobis is the compound distance: half MultiClassEuclidean, half
// Mahalanobis.
func MCEMahalanobis(measurement, t track.TrackedObject) (float64, error) {
	mce, err := MultiClassEuclidean(measurement, t)
	if err != nil {
		return 0, err
	}
	maha, err := Mahalanobis(measurement, t)
	if err != nil {
		return 0, err
	}
	return 0.5*mce + 0.5*maha, nil
}

// Type is the closed set of distance metrics usable during association.
type Type int

const (
	TypeEuclidean Type = iota
	TypeMultiClassEuclidean
	TypeMahalanobis
	TypeMCEMahalanobis
)

// Func computes d(measurement, track) for the given metric.
func Func(kind Type) func(measurement, t track.TrackedObject) (float64, error) {
	switch kind {
	case TypeMultiClassEuclidean:
		return MultiClassEuclidean
	case TypeMahalanobis:
		return Mahalanobis
	case TypeMCEMahalanobis:
		return MCEMahalanobis
	case TypeEuclidean:
		fallthrough
	default:
		return func(measurement, t track.TrackedObject) (float64, error) {
			return Euclidean(measurement, t), nil
		}
	}
}
