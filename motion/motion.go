// Package motion implements the closed set of motion models driving the
// tracker's per-model UKFs: constant velocity (CV), constant acceleration
// (CA), constant position (CP), and constant turn-rate-and-velocity (CTRV).
//
// State vector layout (dimension 12):
//
//	[x, y, vx, vy, ax, ay, z, length, width, height, yaw, yawRate]
//
// Measurement vector layout (dimension 7):
//
//	[x, y, z, length, width, height, yaw]
package motion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// StateDim is the dimension of the state vector.
const StateDim = 12

// MeasurementDim is the dimension of the measurement vector.
const MeasurementDim = 7

// yawRateEpsilon is the threshold below which CTRV degrades to CV, avoiding
// division by a near-zero turn rate in the closed-form update.
const yawRateEpsilon = 1e-4

// Kind is the closed set of supported motion models.
type Kind int

const (
	CV Kind = iota
	CA
	CP
	CTRV
)

// String returns the canonical short name of the model kind.
func (k Kind) String() string {
	switch k {
	case CV:
		return "CV"
	case CA:
		return "CA"
	case CP:
		return "CP"
	case CTRV:
		return "CTRV"
	default:
		return "unknown"
	}
}

// Model is a motion model: a state transition and a measurement
// projection, both pure functions plus additive noise.
type Model interface {
	Kind() Kind
	// StateTransition propagates state x forward by control u (u[0] = dt)
	// and adds process noise v.
	StateTransition(x, u, v *mat.VecDense) *mat.VecDense
	// Measurement projects state x into measurement space and adds
	// measurement noise n.
	Measurement(x, n *mat.VecDense) *mat.VecDense
}

// New constructs the Model for the given Kind.
func New(kind Kind) Model {
	switch kind {
	case CV:
		return cvModel{}
	case CA:
		return caModel{}
	case CP:
		return cpModel{}
	case CTRV:
		return ctrvModel{}
	default:
		panic("motion: unknown model kind")
	}
}

// measurement is shared by every model: it is the identity projection onto
// [x, y, z, length, width, height, yaw] plus additive noise.
func measurement(x, n *mat.VecDense) *mat.VecDense {
	z := mat.NewVecDense(MeasurementDim, []float64{
		x.AtVec(0), // x
		x.AtVec(1), // y
		x.AtVec(6), // z
		x.AtVec(7), // length
		x.AtVec(8), // width
		x.AtVec(9), // height
		x.AtVec(10), // yaw
	})
	z.AddVec(z, n)
	return z
}

// passthrough copies the unmodeled dimensions (z, length, width, height)
// that every model leaves untouched.
func passthrough(dst, src *mat.VecDense) {
	dst.SetVec(6, src.AtVec(6))
	dst.SetVec(7, src.AtVec(7))
	dst.SetVec(8, src.AtVec(8))
	dst.SetVec(9, src.AtVec(9))
}

type cvModel struct{}

func (cvModel) Kind() Kind { return CV }

func (cvModel) StateTransition(x, u, v *mat.VecDense) *mat.VecDense {
	dt := u.AtVec(0)
	xv, yv, vx, vy, yaw := x.AtVec(0), x.AtVec(1), x.AtVec(2), x.AtVec(3), x.AtVec(10)
	out := mat.NewVecDense(StateDim, nil)
	out.SetVec(0, xv+vx*dt)
	out.SetVec(1, yv+vy*dt)
	out.SetVec(2, vx)
	out.SetVec(3, vy)
	out.SetVec(4, 0)
	out.SetVec(5, 0)
	passthrough(out, x)
	out.SetVec(10, yaw)
	out.SetVec(11, 0)
	out.AddVec(out, v)
	return out
}

func (cvModel) Measurement(x, n *mat.VecDense) *mat.VecDense { return measurement(x, n) }

type caModel struct{}

func (caModel) Kind() Kind { return CA }

func (caModel) StateTransition(x, u, v *mat.VecDense) *mat.VecDense {
	dt := u.AtVec(0)
	xv, yv := x.AtVec(0), x.AtVec(1)
	vx, vy := x.AtVec(2), x.AtVec(3)
	ax, ay := x.AtVec(4), x.AtVec(5)
	yaw := x.AtVec(10)

	out := mat.NewVecDense(StateDim, nil)
	out.SetVec(0, xv+vx*dt+0.5*ax*dt*dt)
	out.SetVec(1, yv+vy*dt+0.5*ay*dt*dt)
	out.SetVec(2, vx+ax*dt)
	out.SetVec(3, vy+ay*dt)
	out.SetVec(4, ax)
	out.SetVec(5, ay)
	passthrough(out, x)
	out.SetVec(10, yaw)
	out.SetVec(11, 0)
	out.AddVec(out, v)
	return out
}

func (caModel) Measurement(x, n *mat.VecDense) *mat.VecDense { return measurement(x, n) }

type cpModel struct{}

func (cpModel) Kind() Kind { return CP }

func (cpModel) StateTransition(x, u, v *mat.VecDense) *mat.VecDense {
	_ = u
	out := mat.NewVecDense(StateDim, nil)
	out.SetVec(0, x.AtVec(0))
	out.SetVec(1, x.AtVec(1))
	out.SetVec(2, 0)
	out.SetVec(3, 0)
	out.SetVec(4, 0)
	out.SetVec(5, 0)
	passthrough(out, x)
	out.SetVec(10, x.AtVec(10))
	out.SetVec(11, 0)
	out.AddVec(out, v)
	return out
}

func (cpModel) Measurement(x, n *mat.VecDense) *mat.VecDense { return measurement(x, n) }

type ctrvModel struct{}

func (ctrvModel) Kind() Kind { return CTRV }

func (ctrvModel) StateTransition(x, u, v *mat.VecDense) *mat.VecDense {
	dt := u.AtVec(0)
	xv, yv := x.AtVec(0), x.AtVec(1)
	vx, vy := x.AtVec(2), x.AtVec(3)
	yaw, yawRate := x.AtVec(10), x.AtVec(11)

	out := mat.NewVecDense(StateDim, nil)
	speed := math.Hypot(vx, vy)

	if math.Abs(yawRate) > yawRateEpsilon {
		newYaw := yaw + yawRate*dt
		sinYaw, cosYaw := math.Sin(yaw), math.Cos(yaw)
		sinNewYaw, cosNewYaw := math.Sin(newYaw), math.Cos(newYaw)

		out.SetVec(0, xv+(speed/yawRate)*(sinNewYaw-sinYaw))
		out.SetVec(1, yv+(speed/yawRate)*(cosYaw-cosNewYaw))
		out.SetVec(2, speed*cosNewYaw)
		out.SetVec(3, speed*sinNewYaw)
		out.SetVec(10, newYaw)
	} else {
		// degrade to CV
		out.SetVec(0, xv+vx*dt)
		out.SetVec(1, yv+vy*dt)
		out.SetVec(2, vx)
		out.SetVec(3, vy)
		out.SetVec(10, yaw+yawRate*dt)
	}
	out.SetVec(4, 0)
	out.SetVec(5, 0)
	passthrough(out, x)
	out.SetVec(11, yawRate)
	out.AddVec(out, v)
	return out
}

func (ctrvModel) Measurement(x, n *mat.VecDense) *mat.VecDense { return measurement(x, n) }
