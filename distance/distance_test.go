package distance

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"github.com/LdDl/imm-track-go/classification"
	"github.com/LdDl/imm-track-go/track"
)

func TestEuclideanIsPlanarDistance(t *testing.T) {
	measurement := track.TrackedObject{X: 3, Y: 4}
	trk := track.TrackedObject{X: 0, Y: 0}
	if got, want := Euclidean(measurement, trk), 5.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("got %f want %f", got, want)
	}
}

func TestMultiClassEuclideanPenalizesClassConflict(t *testing.T) {
	measurement := track.TrackedObject{X: 3, Y: 4, Classification: classification.Vector{1, 0}}
	sameClass := track.TrackedObject{X: 0, Y: 0, Classification: classification.Vector{1, 0}}
	diffClass := track.TrackedObject{X: 0, Y: 0, Classification: classification.Vector{0, 1}}

	same, err := MultiClassEuclidean(measurement, sameClass)
	if err != nil {
		t.Fatal(err)
	}
	diff, err := MultiClassEuclidean(measurement, diffClass)
	if err != nil {
		t.Fatal(err)
	}
	if diff <= same {
		t.Errorf("expected conflicting classification to increase distance: same=%f diff=%f", same, diff)
	}
}

func TestMahalanobisZeroesYawComponent(t *testing.T) {
	identityInv := mat.NewDense(7, 7, nil)
	for i := 0; i < 7; i++ {
		identityInv.Set(i, i, 1.0)
	}
	trk := track.TrackedObject{
		X: 0, Y: 0, Z: 0, Length: 4, Width: 2, Height: 1.5, Yaw: 0,
		PredictedMeasurementMean:   mat.NewVecDense(7, nil),
		PredictedMeasurementCovInv: identityInv,
	}
	withYaw := track.TrackedObject{X: 0, Y: 0, Length: 4, Width: 2, Height: 1.5, Yaw: 1.5}
	noYaw := track.TrackedObject{X: 0, Y: 0, Length: 4, Width: 2, Height: 1.5, Yaw: 0}

	d1, err := Mahalanobis(withYaw, trk)
	if err != nil {
		t.Fatal(err)
	}
	d2, err := Mahalanobis(noYaw, trk)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(d1-d2) > 1e-9 {
		t.Errorf("yaw should be excluded from the Mahalanobis distance: got %f and %f", d1, d2)
	}
}

func TestMahalanobisRequiresPredictedCovariance(t *testing.T) {
	measurement := track.TrackedObject{}
	trk := track.TrackedObject{}
	if _, err := Mahalanobis(measurement, trk); err == nil {
		t.Fatal("expected an error when the track has no predicted measurement covariance")
	}
}

func TestMCEMahalanobisIsHalfHalfBlend(t *testing.T) {
	identityInv := mat.NewDense(7, 7, nil)
	for i := 0; i < 7; i++ {
		identityInv.Set(i, i, 1.0)
	}
	measurement := track.TrackedObject{X: 3, Y: 4, Classification: classification.Vector{1, 0}}
	trk := track.TrackedObject{
		X: 0, Y: 0, Classification: classification.Vector{1, 0},
		PredictedMeasurementMean:   mat.NewVecDense(7, nil),
		PredictedMeasurementCovInv: identityInv,
	}

	mce, err := MultiClassEuclidean(measurement, trk)
	if err != nil {
		t.Fatal(err)
	}
	maha, err := Mahalanobis(measurement, trk)
	if err != nil {
		t.Fatal(err)
	}
	compound, err := MCEMahalanobis(measurement, trk)
	if err != nil {
		t.Fatal(err)
	}
	want := 0.5*mce + 0.5*maha
	if math.Abs(compound-want) > 1e-9 {
		t.Errorf("got %f want %f", compound, want)
	}
}
