package motion

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func baseState() *mat.VecDense {
	return mat.NewVecDense(StateDim, []float64{
		0, 0, // x, y
		2, 1, // vx, vy
		0.5, 0.1, // ax, ay
		3, // z
		4, 2, 1.5, // length, width, height
		0.2, // yaw
		0,   // yaw rate
	})
}

func zeroNoise(n int) *mat.VecDense { return mat.NewVecDense(n, nil) }

func TestCVStateTransition(t *testing.T) {
	m := New(CV)
	u := mat.NewVecDense(1, []float64{1.0})
	out := m.StateTransition(baseState(), u, zeroNoise(StateDim))

	if got, want := out.AtVec(0), 2.0; math.Abs(got-want) > 1e-9 {
		t.Errorf("x: got %f want %f", got, want)
	}
	if got, want := out.AtVec(4), 0.0; got != want {
		t.Errorf("ax should be zeroed by CV, got %f", got)
	}
	if got, want := out.AtVec(11), 0.0; got != want {
		t.Errorf("yaw rate should be zeroed by CV, got %f", got)
	}
	if got, want := out.AtVec(7), 4.0; got != want {
		t.Errorf("length should pass through, got %f want %f", got, want)
	}
}

func TestCAStateTransition(t *testing.T) {
	m := New(CA)
	u := mat.NewVecDense(1, []float64{2.0})
	out := m.StateTransition(baseState(), u, zeroNoise(StateDim))

	wantX := 0 + 2*2.0 + 0.5*0.5*4.0
	if got := out.AtVec(0); math.Abs(got-wantX) > 1e-9 {
		t.Errorf("x: got %f want %f", got, wantX)
	}
	wantVx := 2 + 0.5*2.0
	if got := out.AtVec(2); math.Abs(got-wantVx) > 1e-9 {
		t.Errorf("vx: got %f want %f", got, wantVx)
	}
	if got := out.AtVec(4); got != 0.5 {
		t.Errorf("ax should pass through in CA, got %f", got)
	}
}

func TestCPZeroesDynamics(t *testing.T) {
	m := New(CP)
	u := mat.NewVecDense(1, []float64{5.0})
	out := m.StateTransition(baseState(), u, zeroNoise(StateDim))
	for _, idx := range []int{2, 3, 4, 5, 11} {
		if got := out.AtVec(idx); got != 0 {
			t.Errorf("index %d should be zeroed by CP, got %f", idx, got)
		}
	}
	if got, want := out.AtVec(0), 0.0; got != want {
		t.Errorf("position should pass through in CP, got %f want %f", got, want)
	}
}

func TestCTRVDegradesToCVWhenYawRateNearZero(t *testing.T) {
	cv := New(CV)
	ctrv := New(CTRV)
	u := mat.NewVecDense(1, []float64{0.5})
	x := baseState() // yaw rate is 0

	gotCV := cv.StateTransition(x, u, zeroNoise(StateDim))
	gotCTRV := ctrv.StateTransition(x, u, zeroNoise(StateDim))

	for i := 0; i < StateDim; i++ {
		if math.Abs(gotCV.AtVec(i)-gotCTRV.AtVec(i)) > 1e-9 {
			t.Errorf("index %d: CTRV should degrade to CV, got %f want %f", i, gotCTRV.AtVec(i), gotCV.AtVec(i))
		}
	}
}

func TestCTRVPreservesSpeed(t *testing.T) {
	m := New(CTRV)
	x := baseState()
	x.SetVec(11, 0.3) // nonzero yaw rate
	u := mat.NewVecDense(1, []float64{0.1})
	out := m.StateTransition(x, u, zeroNoise(StateDim))

	wantSpeed := math.Hypot(x.AtVec(2), x.AtVec(3))
	gotSpeed := math.Hypot(out.AtVec(2), out.AtVec(3))
	if math.Abs(gotSpeed-wantSpeed) > 1e-9 {
		t.Errorf("speed should be preserved, got %f want %f", gotSpeed, wantSpeed)
	}
	if got := out.AtVec(4); got != 0 {
		t.Errorf("ax should be zeroed by CTRV, got %f", got)
	}
	wantYaw := x.AtVec(10) + x.AtVec(11)*0.1
	if got := out.AtVec(10); math.Abs(got-wantYaw) > 1e-9 {
		t.Errorf("yaw: got %f want %f", got, wantYaw)
	}
}

func TestMeasurementProjection(t *testing.T) {
	m := New(CV)
	out := m.Measurement(baseState(), zeroNoise(MeasurementDim))
	want := []float64{0, 0, 3, 4, 2, 1.5, 0.2}
	for i, w := range want {
		if got := out.AtVec(i); math.Abs(got-w) > 1e-9 {
			t.Errorf("index %d: got %f want %f", i, got, w)
		}
	}
}

func TestKindString(t *testing.T) {
	for _, k := range []Kind{CV, CA, CP, CTRV} {
		if k.String() == "unknown" {
			t.Errorf("unexpected unknown string for %v", k)
		}
	}
}
