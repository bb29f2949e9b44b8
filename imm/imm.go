// Package imm implements the Interacting Multiple Model estimator: a bank
// of per-motion-model UKFs (see package ukf) combined by Bayesian model
// mixing. Each predict/correct cycle mixes the models' states according to
// a fixed transition matrix, runs every model's own UKF step, then
// recombines them weighted by an updated model probability vector.
package imm

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/LdDl/imm-track-go/classification"
	"github.com/LdDl/imm-track-go/motion"
	"github.com/LdDl/imm-track-go/ukf"
)

// yawIndex is the index of the yaw component within the measurement vector.
const yawIndex = 6

// offDiagTransition is the fixed off-diagonal model-switch probability:
// at every step, each model has a small chance of having actually been any
// other model on the previous step.
const offDiagTransition = 0.05

// maxModelProb is the rescale ceiling applied to the post-likelihood model
// probabilities; see Estimator.updateModelProbability.
const maxModelProb = 0.95

// ErrNoModels is returned by NewEstimator when given an empty model list.
var ErrNoModels = errors.New("imm: at least one motion model is required")

// modelState pairs one motion model kind with that model's own UKF.
type modelState struct {
	kind   motion.Kind
	filter *ukf.UKF
}

// Estimator is an Interacting Multiple Model bank over a fixed set of
// motion models.
type Estimator struct {
	dp, mp int

	models     []*modelState
	transition [][]float64
	probs      []float64 // current model probability vector, length M

	minProb, maxProb float64

	classTable *classification.Table
	class      classification.Vector

	state       *mat.VecDense
	errorCov    *mat.SymDense
	measurement *mat.VecDense
	measCov     *mat.SymDense

	// per-model quantities retained between Predict and Correct
	mixingNormalizer []float64 // c_j from the last mixing step

	// previousYaw is the combined yaw as it stood just before the most
	// recent Predict (the initial seed, before any Predict), saved so
	// yaw-ambiguity resolution anchors on it rather than on the
	// just-predicted yaw.
	previousYaw float64
}

// NewEstimator builds an IMM bank over kinds, all models sharing the same
// initial state/error covariance and process/measurement noise. initClass
// seeds the combined classification estimate; if nil, classTable's uniform
// prior is used instead.
func NewEstimator(kinds []motion.Kind, state *mat.VecDense, errorCov, processNoiseCov, measurementNoiseCov *mat.SymDense, classTable *classification.Table, initClass classification.Vector) (*Estimator, error) {
	if len(kinds) == 0 {
		return nil, ErrNoModels
	}
	m := len(kinds)

	models := make([]*modelState, m)
	for i, k := range kinds {
		f := ukf.New(motion.New(k), state, errorCov, processNoiseCov, measurementNoiseCov, ukf.DefaultConfig(state.Len()))
		models[i] = &modelState{kind: k, filter: f}
	}

	transition := make([][]float64, m)
	for i := range transition {
		transition[i] = make([]float64, m)
		if m == 1 {
			transition[i][0] = 1.0
			continue
		}
		for j := range transition[i] {
			if i == j {
				transition[i][j] = 1.0 - offDiagTransition*float64(m-1)
			} else {
				transition[i][j] = offDiagTransition
			}
		}
	}

	minProb := (1.0 - maxModelProb) / math.Max(float64(m-1), 1.0)
	maxProb := maxModelProb
	if m == 1 {
		minProb, maxProb = 1.0, 1.0
	}

	probs := make([]float64, m)
	for i := range probs {
		probs[i] = 1.0 / float64(m)
	}

	var class classification.Vector
	if initClass != nil {
		class = initClass
	} else if classTable != nil {
		class = classTable.Prior()
	}

	st := mat.NewVecDense(state.Len(), nil)
	st.CopyVec(state)
	ec := mat.NewSymDense(errorCov.SymmetricDim(), nil)
	ec.CopySym(errorCov)

	return &Estimator{
		dp:               state.Len(),
		mp:               measurementNoiseCov.SymmetricDim(),
		models:           models,
		transition:       transition,
		probs:            probs,
		minProb:          minProb,
		maxProb:          maxProb,
		classTable:       classTable,
		class:            class,
		state:            st,
		errorCov:         ec,
		mixingNormalizer: make([]float64, m),
		previousYaw:      state.AtVec(10),
	}, nil
}

func angleDifference(a, b float64) float64 {
	return math.Atan2(math.Sin(a-b), math.Cos(a-b))
}

// resolveYaw picks whichever of measuredYaw or measuredYaw+pi lies closer
// to trackYaw, resolving the 0/pi heading ambiguity that symmetric
// (front/back indistinguishable) detections produce. The result is returned
// as trackYaw plus the wrapped difference, so it lies within pi/2 of
// trackYaw and the filter's innovation never carries a 2pi jump.
func resolveYaw(trackYaw, measuredYaw float64) float64 {
	d1 := angleDifference(measuredYaw, trackYaw)
	d2 := angleDifference(measuredYaw+math.Pi, trackYaw)
	if math.Abs(d2) < math.Abs(d1) {
		return trackYaw + d2
	}
	return trackYaw + d1
}

// Predict advances every model in the bank one step under control
// (control[0] = dt), mixing states beforehand per the IMM interaction step.
func (e *Estimator) Predict(control *mat.VecDense) error {
	e.previousYaw = e.state.AtVec(10)

	m := len(e.models)
	if m == 1 {
		pred, err := e.models[0].filter.Predict(control)
		if err != nil {
			return errors.Wrap(err, "imm: single-model predict")
		}
		e.state = pred
		e.errorCov = e.models[0].filter.GetErrorCov()
		e.measurement = e.models[0].filter.GetMeasurementEstimate()
		e.measCov = e.models[0].filter.GetMeasurementCov()
		return nil
	}

	states := make([]*mat.VecDense, m)
	covs := make([]*mat.SymDense, m)
	for i, ms := range e.models {
		states[i] = ms.filter.GetState()
		covs[i] = ms.filter.GetErrorCov()
	}

	// mixing: c_j = sum_i p_i * transition[i][j]; weight[i][j] = p_i*transition[i][j]/c_j
	c := make([]float64, m)
	weight := make([][]float64, m)
	for i := range weight {
		weight[i] = make([]float64, m)
	}
	for j := 0; j < m; j++ {
		for i := 0; i < m; i++ {
			c[j] += e.probs[i] * e.transition[i][j]
		}
	}
	for j := 0; j < m; j++ {
		denom := c[j]
		if denom < 1e-12 {
			denom = 1e-12
		}
		for i := 0; i < m; i++ {
			weight[i][j] = e.probs[i] * e.transition[i][j] / denom
		}
	}
	e.mixingNormalizer = c

	for j, ms := range e.models {
		col := make([]float64, m)
		for i := 0; i < m; i++ {
			col[i] = weight[i][j]
		}
		mixedState := combineVectors(col, states)
		mixedCov := combineCovariances(col, states, mixedState, covs)
		ms.filter.SetStateAndCovariance(mixedState, mixedCov)
	}

	predictedStates := make([]*mat.VecDense, m)
	predictedCovs := make([]*mat.SymDense, m)
	predictedMeas := make([]*mat.VecDense, m)
	predictedMeasCovs := make([]*mat.SymDense, m)
	weights := make([]float64, m)
	copy(weights, e.probs)
	for i, ms := range e.models {
		st, err := ms.filter.Predict(control)
		if err != nil {
			// numerical fault on this model: keep its pre-mixing moments and
			// drop it from this step's combination rather than poisoning the
			// combined estimate with NaN.
			predictedStates[i] = states[i]
			predictedCovs[i] = covs[i]
			predictedMeas[i] = mat.NewVecDense(e.mp, nil)
			predictedMeasCovs[i] = mat.NewSymDense(e.mp, nil)
			weights[i] = 0
			continue
		}
		predictedStates[i] = st
		predictedCovs[i] = ms.filter.GetErrorCov()
		predictedMeas[i] = ms.filter.GetMeasurementEstimate()
		predictedMeasCovs[i] = ms.filter.GetMeasurementCov()
	}
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if total <= 0 {
		return errors.Wrap(ukf.ErrCholeskyFailed, "imm: every model failed to predict")
	}
	for i := range weights {
		weights[i] /= total
	}

	e.state = combineVectors(weights, predictedStates)
	e.errorCov = combineCovariances(weights, predictedStates, e.state, predictedCovs)
	e.measurement = combineVectors(weights, predictedMeas)
	e.measCov = combineCovariances(weights, predictedMeas, e.measurement, predictedMeasCovs)
	return nil
}

// Correct fuses measurement z (motion.MeasurementDim) and detection
// classification into the bank, updating every model's likelihood-weighted
// probability and recombining the state/classification estimates.
func (e *Estimator) Correct(z *mat.VecDense, detectionClass classification.Vector) error {
	adjusted := mat.NewVecDense(z.Len(), nil)
	adjusted.CopyVec(z)
	adjusted.SetVec(yawIndex, resolveYaw(e.previousYaw, z.AtVec(yawIndex)))

	m := len(e.models)
	if m == 1 {
		st, err := e.models[0].filter.Correct(adjusted)
		if err != nil {
			return errors.Wrap(err, "imm: single-model correct")
		}
		e.state = st
		e.errorCov = e.models[0].filter.GetErrorCov()
		e.combineClassification(detectionClass)
		return nil
	}

	correctedStates := make([]*mat.VecDense, m)
	correctedCovs := make([]*mat.SymDense, m)
	likelihoods := make([]float64, m)
	for i, ms := range e.models {
		innovation := mat.NewVecDense(e.mp, nil)
		innovation.SubVec(adjusted, ms.filter.GetMeasurementEstimate())
		syy := ms.filter.GetMeasurementCov()
		likelihoods[i] = gaussianLikelihood(innovation, syy)

		st, err := ms.filter.Correct(adjusted)
		if err != nil {
			correctedStates[i] = ms.filter.GetState()
			correctedCovs[i] = ms.filter.GetErrorCov()
			likelihoods[i] = 0
			continue
		}
		correctedStates[i] = st
		correctedCovs[i] = ms.filter.GetErrorCov()
	}

	e.updateModelProbability(likelihoods)

	e.state = combineVectors(e.probs, correctedStates)
	e.errorCov = combineCovariances(e.probs, correctedStates, e.state, correctedCovs)
	e.combineClassification(detectionClass)
	return nil
}

func (e *Estimator) combineClassification(detectionClass classification.Vector) {
	if detectionClass == nil {
		return
	}
	if e.class == nil {
		e.class = detectionClass
		return
	}
	combined, err := classification.Combine(e.class, detectionClass)
	if err != nil {
		return
	}
	e.class = combined
}

// updateModelProbability applies the likelihood update, a numerically
// stable exponential normalization, and then a deliberate linear rescale
// into [minProb, maxProb], with no renormalization after it. The normalized
// weights sum to 1 and (M-1)*minProb + maxProb = 1, so the rescaled vector
// still sums to 1; the rescale only keeps every model's probability inside
// [minProb, maxProb].
func (e *Estimator) updateModelProbability(likelihoods []float64) {
	m := len(e.models)
	logWeighted := make([]float64, m)
	maxLog := math.Inf(-1)
	for j := 0; j < m; j++ {
		c := e.mixingNormalizer[j]
		if c < 1e-300 {
			c = 1e-300
		}
		l := likelihoods[j]
		if l < 1e-300 {
			l = 1e-300
		}
		logWeighted[j] = math.Log(l) + math.Log(c)
		if logWeighted[j] > maxLog {
			maxLog = logWeighted[j]
		}
	}

	normalized := make([]float64, m)
	sum := 0.0
	for j := 0; j < m; j++ {
		normalized[j] = math.Exp(logWeighted[j] - maxLog)
		sum += normalized[j]
	}
	if sum < 1e-300 {
		sum = 1e-300
	}
	for j := 0; j < m; j++ {
		normalized[j] /= sum
		e.probs[j] = e.minProb + normalized[j]*(e.maxProb-e.minProb)
	}
}

func gaussianLikelihood(innovation *mat.VecDense, cov *mat.SymDense) float64 {
	n := innovation.Len()
	inv := ukf.PseudoInverse(cov)
	var quad mat.VecDense
	quad.MulVec(inv, innovation)
	mahalanobis := mat.Dot(innovation, &quad)

	det := mat.Det(cov)
	if det <= 0 {
		det = 1e-300
	}
	norm := math.Pow(2*math.Pi, float64(n)/2.0) * math.Sqrt(det)
	if norm < 1e-300 {
		norm = 1e-300
	}
	return math.Exp(-0.5*mahalanobis) / norm
}

func combineVectors(weights []float64, vecs []*mat.VecDense) *mat.VecDense {
	n := vecs[0].Len()
	out := mat.NewVecDense(n, nil)
	for i, v := range vecs {
		out.AddScaledVec(out, weights[i], v)
	}
	return out
}

func combineCovariances(weights []float64, vecs []*mat.VecDense, mean *mat.VecDense, covs []*mat.SymDense) *mat.SymDense {
	n := mean.Len()
	sum := mat.NewDense(n, n, nil)
	for i, cov := range covs {
		diff := mat.NewVecDense(n, nil)
		diff.SubVec(vecs[i], mean)
		var outer mat.Dense
		outer.Mul(diff, diff.T())
		outer.Add(&outer, cov)
		outer.Scale(weights[i], &outer)
		sum.Add(sum, &outer)
	}
	out := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			out.SetSym(i, j, sum.At(i, j))
		}
	}
	return out
}

// GetState returns a copy of the combined state estimate.
func (e *Estimator) GetState() *mat.VecDense {
	out := mat.NewVecDense(e.dp, nil)
	out.CopyVec(e.state)
	return out
}

// GetErrorCov returns a copy of the combined error covariance.
func (e *Estimator) GetErrorCov() *mat.SymDense {
	out := mat.NewSymDense(e.dp, nil)
	out.CopySym(e.errorCov)
	return out
}

// GetPredictedMeasurement returns a copy of the combined predicted
// measurement mean, valid after Predict.
func (e *Estimator) GetPredictedMeasurement() *mat.VecDense {
	if e.measurement == nil {
		return nil
	}
	out := mat.NewVecDense(e.mp, nil)
	out.CopyVec(e.measurement)
	return out
}

// GetPredictedMeasurementCov returns a copy of the combined predicted
// measurement covariance, valid after Predict.
func (e *Estimator) GetPredictedMeasurementCov() *mat.SymDense {
	if e.measCov == nil {
		return nil
	}
	out := mat.NewSymDense(e.mp, nil)
	out.CopySym(e.measCov)
	return out
}

// GetModelProbability returns a copy of the current (rescaled, not
// renormalized) model probability vector.
func (e *Estimator) GetModelProbability() []float64 {
	out := make([]float64, len(e.probs))
	copy(out, e.probs)
	return out
}

// GetClassification returns the current combined classification vector.
func (e *Estimator) GetClassification() classification.Vector {
	return e.class
}

// GetPreviousYaw returns the yaw anchor the next Correct's ambiguity
// resolution will use: the combined yaw as it stood just before the most
// recent Predict, or the initial seed yaw if Predict has not yet run.
func (e *Estimator) GetPreviousYaw() float64 {
	return e.previousYaw
}

// SetStateAndCovariance overwrites the combined estimate and every model's
// own filter state.
func (e *Estimator) SetStateAndCovariance(state *mat.VecDense, errorCov *mat.SymDense) {
	e.state.CopyVec(state)
	e.errorCov.CopySym(errorCov)
	for _, ms := range e.models {
		ms.filter.SetStateAndCovariance(state, errorCov)
	}
}
