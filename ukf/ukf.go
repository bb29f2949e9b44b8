// Package ukf implements a float64 Unscented Kalman Filter driven by a
// user-supplied motion model. Sigma points are generated
// via Cholesky decomposition of the error covariance; all matrix inversions
// (Kalman gain, pseudo-inverse of the measurement covariance) go through an
// SVD-based pseudo-inverse so that near-singular covariances are tolerated
// rather than causing a hard failure.
package ukf

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LdDl/imm-track-go/motion"
)

// ErrCholeskyFailed is returned by Predict when the error covariance (even
// after jittering) is not positive-definite. Callers (the IMM layer) treat
// this as a recoverable numerical fault and drop the offending model's
// contribution for the step, rather than propagate NaNs.
var ErrCholeskyFailed = errors.New("ukf: cholesky decomposition failed on error covariance")

// jitter is added to the diagonal once, as a retry, before giving up on a
// non-positive-definite covariance.
const jitter = 1e-9

// Config holds the unitless UKF sigma-point parameters.
type Config struct {
	Alpha float64 // spread, default 1.0
	Beta  float64 // distribution shape, default 2.0 (optimal for Gaussian)
	Kappa float64 // secondary scaling, default 3-DP
}

// DefaultConfig returns the conventional UKF parameters for a state of
// dimension dp.
func DefaultConfig(dp int) Config {
	return Config{Alpha: 1.0, Beta: 2.0, Kappa: 3.0 - float64(dp)}
}

// UKF is an Unscented Kalman Filter over a single motion.Model.
type UKF struct {
	model motion.Model
	dp    int
	mp    int

	alpha, beta, kappa float64
	lambda             float64
	gamma              float64
	wm, wc             []float64

	state    *mat.VecDense
	errorCov *mat.SymDense

	processNoiseCov     *mat.SymDense
	measurementNoiseCov *mat.SymDense

	measurementEstimate *mat.VecDense
	measurementCov      *mat.SymDense // Syy, nil until the first Predict
	crossCov            *mat.Dense    // Sxy, nil until the first Predict
}

// New constructs a UKF for the given model, initial state/error covariance
// and noise covariances. All covariances must be symmetric and sized to
// match dp (state dim) or mp (measurement dim).
func New(model motion.Model, state *mat.VecDense, errorCov, processNoiseCov, measurementNoiseCov *mat.SymDense, cfg Config) *UKF {
	dp := state.Len()
	mp := measurementNoiseCov.SymmetricDim()

	lambda := cfg.Alpha*cfg.Alpha*(float64(dp)+cfg.Kappa) - float64(dp)
	gamma := math.Sqrt(lambda + float64(dp))

	n := 2*dp + 1
	wm := make([]float64, n)
	wc := make([]float64, n)
	wm[0] = lambda / (lambda + float64(dp))
	wc[0] = wm[0] + 1 - cfg.Alpha*cfg.Alpha + cfg.Beta
	w := 1.0 / (2.0 * (lambda + float64(dp)))
	for i := 1; i < n; i++ {
		wm[i] = w
		wc[i] = w
	}

	st := mat.NewVecDense(dp, nil)
	st.CopyVec(state)
	ec := mat.NewSymDense(dp, nil)
	ec.CopySym(errorCov)
	pn := mat.NewSymDense(dp, nil)
	pn.CopySym(processNoiseCov)
	mn := mat.NewSymDense(mp, nil)
	mn.CopySym(measurementNoiseCov)

	return &UKF{
		model:               model,
		dp:                  dp,
		mp:                  mp,
		alpha:               cfg.Alpha,
		beta:                cfg.Beta,
		kappa:               cfg.Kappa,
		lambda:              lambda,
		gamma:               gamma,
		wm:                  wm,
		wc:                  wc,
		state:               st,
		errorCov:            ec,
		processNoiseCov:     pn,
		measurementNoiseCov: mn,
		measurementEstimate: mat.NewVecDense(mp, nil),
	}
}

// sigmaPoints generates 2*dp+1 sigma points around mean with the given
// covariance, scaled by gamma. It retries once against a jittered
// covariance if the Cholesky factorization fails, and returns
// ErrCholeskyFailed if that also fails.
func (u *UKF) sigmaPoints(mean *mat.VecDense, cov *mat.SymDense) (*mat.Dense, error) {
	n := u.dp
	L, err := cholesky(cov)
	if err != nil {
		jittered := mat.NewSymDense(n, nil)
		jittered.CopySym(cov)
		for i := 0; i < n; i++ {
			jittered.SetSym(i, i, jittered.At(i, i)+jitter)
		}
		L, err = cholesky(jittered)
		if err != nil {
			return nil, ErrCholeskyFailed
		}
	}

	points := mat.NewDense(n, 2*n+1, nil)
	for r := 0; r < n; r++ {
		points.Set(r, 0, mean.AtVec(r))
	}
	for col := 0; col < n; col++ {
		for r := 0; r < n; r++ {
			offset := u.gamma * L.At(r, col)
			points.Set(r, col+1, mean.AtVec(r)+offset)
			points.Set(r, col+1+n, mean.AtVec(r)-offset)
		}
	}
	return points, nil
}

func cholesky(cov *mat.SymDense) (*mat.TriDense, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(cov); !ok {
		return nil, ErrCholeskyFailed
	}
	var L mat.TriDense
	chol.LTo(&L)
	return &L, nil
}

func (u *UKF) weightedMean(cols *mat.Dense, dim int) *mat.VecDense {
	mean := mat.NewVecDense(dim, nil)
	_, n := cols.Dims()
	for c := 0; c < n; c++ {
		mean.AddScaledVec(mean, u.wm[c], cols.ColView(c))
	}
	return mean
}

func centered(cols *mat.Dense, mean *mat.VecDense) *mat.Dense {
	dim, n := cols.Dims()
	out := mat.NewDense(dim, n, nil)
	for c := 0; c < n; c++ {
		col := mat.NewVecDense(dim, nil)
		col.SubVec(cols.ColView(c), mean)
		out.SetCol(c, col.RawVector().Data)
	}
	return out
}

func weightedOuterSum(wc []float64, a, b *mat.Dense) *mat.Dense {
	ra, n := a.Dims()
	rb, _ := b.Dims()
	sum := mat.NewDense(ra, rb, nil)
	for c := 0; c < n; c++ {
		var outer mat.Dense
		outer.Mul(a.ColView(c), b.ColView(c).T())
		outer.Scale(wc[c], &outer)
		sum.Add(sum, &outer)
	}
	return sum
}

func toSym(d *mat.Dense) *mat.SymDense {
	n, _ := d.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			s.SetSym(i, j, d.At(i, j))
		}
	}
	return s
}

// Predict propagates the filter state forward under control u (u[0] = dt)
// and returns the predicted state. It populates the predicted measurement
// mean/covariance and the cross-covariance used by Correct.
func (u *UKF) Predict(control *mat.VecDense) (*mat.VecDense, error) {
	sp1, err := u.sigmaPoints(u.state, u.errorCov)
	if err != nil {
		return nil, err
	}

	_, n := sp1.Dims()
	fx := mat.NewDense(u.dp, n, nil)
	zeroProcessNoise := mat.NewVecDense(u.dp, nil)
	for c := 0; c < n; c++ {
		propagated := u.model.StateTransition(colVec(sp1, c), control, zeroProcessNoise)
		fx.SetCol(c, propagated.RawVector().Data)
	}

	xPred := u.weightedMean(fx, u.dp)
	fc := centered(fx, xPred)
	errCovD := weightedOuterSum(u.wc, fc, fc)
	errCovD.Add(errCovD, u.processNoiseCov)
	errCovNew := toSym(errCovD)

	sp2, err := u.sigmaPoints(xPred, errCovNew)
	if err != nil {
		return nil, err
	}

	hx := mat.NewDense(u.mp, n, nil)
	zeroMeasNoise := mat.NewVecDense(u.mp, nil)
	for c := 0; c < n; c++ {
		projected := u.model.Measurement(colVec(sp2, c), zeroMeasNoise)
		hx.SetCol(c, projected.RawVector().Data)
	}

	zPred := u.weightedMean(hx, u.mp)
	hc := centered(hx, zPred)
	syyD := weightedOuterSum(u.wc, hc, hc)
	syyD.Add(syyD, u.measurementNoiseCov)

	sxy := weightedOuterSum(u.wc, fc, hc)

	u.state = xPred
	u.errorCov = errCovNew
	u.measurementEstimate = zPred
	u.measurementCov = toSym(syyD)
	u.crossCov = sxy

	out := mat.NewVecDense(u.dp, nil)
	out.CopyVec(xPred)
	return out, nil
}

func colVec(d *mat.Dense, c int) *mat.VecDense {
	r, _ := d.Dims()
	v := mat.NewVecDense(r, nil)
	v.CopyVec(d.ColView(c))
	return v
}

// Correct applies measurement z and returns the corrected state. Predict
// must have been called at least once before Correct.
func (u *UKF) Correct(z *mat.VecDense) (*mat.VecDense, error) {
	if u.crossCov == nil || u.measurementCov == nil {
		return nil, errors.New("ukf: correct called before predict")
	}

	syyInv := pseudoInverse(u.measurementCov)
	var gain mat.Dense
	gain.Mul(u.crossCov, syyInv)

	innovation := mat.NewVecDense(u.mp, nil)
	innovation.SubVec(z, u.measurementEstimate)

	var correction mat.VecDense
	correction.MulVec(&gain, innovation)

	newState := mat.NewVecDense(u.dp, nil)
	newState.AddVec(u.state, &correction)

	var kSxyT mat.Dense
	kSxyT.Mul(&gain, u.crossCov.T())
	newErrCovD := mat.NewDense(u.dp, u.dp, nil)
	newErrCovD.Sub(u.errorCov, &kSxyT)

	u.state = newState
	u.errorCov = toSym(newErrCovD)

	out := mat.NewVecDense(u.dp, nil)
	out.CopyVec(newState)
	return out, nil
}

// SetStateAndCovariance injects externally mixed state and covariance into
// the filter (used by the IMM interaction/mixing step). Unlike the
// original C++'s no-op setter, this actually mutates the instance.
func (u *UKF) SetStateAndCovariance(state *mat.VecDense, errorCov *mat.SymDense) {
	u.state.CopyVec(state)
	u.errorCov.CopySym(errorCov)
}

// GetState returns a copy of the current state estimate.
func (u *UKF) GetState() *mat.VecDense {
	out := mat.NewVecDense(u.dp, nil)
	out.CopyVec(u.state)
	return out
}

// GetErrorCov returns a copy of the current error covariance.
func (u *UKF) GetErrorCov() *mat.SymDense {
	out := mat.NewSymDense(u.dp, nil)
	out.CopySym(u.errorCov)
	return out
}

// GetProcessNoiseCov returns a copy of Q.
func (u *UKF) GetProcessNoiseCov() *mat.SymDense {
	out := mat.NewSymDense(u.dp, nil)
	out.CopySym(u.processNoiseCov)
	return out
}

// GetMeasurementNoiseCov returns a copy of R.
func (u *UKF) GetMeasurementNoiseCov() *mat.SymDense {
	out := mat.NewSymDense(u.mp, nil)
	out.CopySym(u.measurementNoiseCov)
	return out
}

// GetMeasurementCov returns a copy of Syy, or nil if Predict has not run.
func (u *UKF) GetMeasurementCov() *mat.SymDense {
	if u.measurementCov == nil {
		return nil
	}
	out := mat.NewSymDense(u.mp, nil)
	out.CopySym(u.measurementCov)
	return out
}

// GetMeasurementEstimate returns a copy of the predicted measurement mean.
func (u *UKF) GetMeasurementEstimate() *mat.VecDense {
	out := mat.NewVecDense(u.mp, nil)
	out.CopyVec(u.measurementEstimate)
	return out
}

// pseudoInverse computes the Moore-Penrose pseudo-inverse of m via SVD,
// tolerating singular or near-singular matrices (used for every covariance
// inversion in the tracker per spec: Mahalanobis gating and Kalman gain).
func pseudoInverse(m mat.Matrix) *mat.Dense {
	var svd mat.SVD
	ok := svd.Factorize(m, mat.SVDFull)
	r, c := m.Dims()
	if !ok {
		return mat.NewDense(c, r, nil)
	}

	var uMat, vMat mat.Dense
	svd.UTo(&uMat)
	svd.VTo(&vMat)
	values := svd.Values(nil)

	const tol = 1e-10
	sigmaInv := mat.NewDense(len(values), len(values), nil)
	for i, sv := range values {
		if sv > tol {
			sigmaInv.Set(i, i, 1.0/sv)
		}
	}

	var tmp mat.Dense
	tmp.Mul(&vMat, sigmaInv)
	out := mat.NewDense(c, r, nil)
	out.Mul(&tmp, uMat.T())
	return out
}

// PseudoInverse exposes the SVD-based pseudo-inverse for callers outside
// this package (the track package uses it to precompute the inverse
// predicted measurement covariance for Mahalanobis gating, and the imm
// package uses it for model likelihoods).
func PseudoInverse(m mat.Matrix) *mat.Dense {
	return pseudoInverse(m)
}
