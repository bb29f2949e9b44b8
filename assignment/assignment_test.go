package assignment

import (
	"math"
	"testing"
)

func TestSolveEmptyInputsAreAllUnassigned(t *testing.T) {
	r := Solve(nil, 1.0)
	if len(r.Matches) != 0 || len(r.UnassignedTracks) != 0 || len(r.UnassignedDetections) != 0 {
		t.Fatalf("expected all-empty result for nil input, got %+v", r)
	}

	r2 := Solve([][]float64{{}, {}}, 1.0)
	if len(r2.UnassignedTracks) != 2 || len(r2.UnassignedDetections) != 0 {
		t.Fatalf("expected 2 unassigned tracks and 0 detections, got %+v", r2)
	}
}

func TestSolveMatchesCheapestPairWithinThreshold(t *testing.T) {
	cost := [][]float64{
		{0.1, 5.0},
		{5.0, 0.2},
	}
	r := Solve(cost, 1.0)
	if len(r.Matches) != 2 {
		t.Fatalf("expected 2 matches, got %d: %+v", len(r.Matches), r.Matches)
	}
	for _, m := range r.Matches {
		if m.TrackIndex != m.DetectionIndex {
			t.Errorf("expected diagonal matching, got track %d -> detection %d", m.TrackIndex, m.DetectionIndex)
		}
	}
}

func TestSolveRejectsOverThresholdPairs(t *testing.T) {
	cost := [][]float64{
		{5.0},
	}
	r := Solve(cost, 1.0)
	if len(r.Matches) != 0 {
		t.Fatalf("expected no matches above threshold, got %+v", r.Matches)
	}
	if len(r.UnassignedTracks) != 1 || len(r.UnassignedDetections) != 1 {
		t.Fatalf("expected both sides unassigned, got %+v", r)
	}
}

func TestSolveDecomposesIntoIndependentComponents(t *testing.T) {
	// Three disjoint 1-1 pairs far apart in cost space; neither should
	// interfere with the other's assignment.
	cost := [][]float64{
		{0.1, 50.0, 50.0},
		{50.0, 0.2, 50.0},
		{50.0, 50.0, 0.3},
	}
	r := Solve(cost, 1.0)
	if len(r.Matches) != 3 {
		t.Fatalf("expected 3 matches, got %d: %+v", len(r.Matches), r.Matches)
	}
}

func TestSolveHandlesUnbalancedComponent(t *testing.T) {
	cost := [][]float64{
		{0.1, 0.2},
	}
	r := Solve(cost, 1.0)
	if len(r.Matches) != 1 {
		t.Fatalf("expected exactly 1 match for a single track, got %+v", r.Matches)
	}
	if len(r.UnassignedDetections) != 1 {
		t.Fatalf("expected 1 unassigned detection, got %+v", r.UnassignedDetections)
	}
}

// bruteForceMatch exhaustively searches every gated matching of
// costMatrix[track][detection] against threshold, and returns the largest
// matched-pair count and, among matchings of that size, the lowest total
// cost. This is the reference Solve is checked against: Solve must never
// leave a cheaper or larger matching on the table.
func bruteForceMatch(costMatrix [][]float64, threshold float64) (bestCount int, bestCost float64) {
	nTracks := len(costMatrix)
	nDets := 0
	if nTracks > 0 {
		nDets = len(costMatrix[0])
	}
	detUsed := make([]bool, nDets)
	bestCount, bestCost = -1, 0

	var walk func(ti int, count int, cost float64)
	walk = func(ti int, count int, cost float64) {
		if ti == nTracks {
			if count > bestCount || (count == bestCount && cost < bestCost) {
				bestCount, bestCost = count, cost
			}
			return
		}
		walk(ti+1, count, cost) // leave track ti unassigned
		for dj := 0; dj < nDets; dj++ {
			if detUsed[dj] || costMatrix[ti][dj] > threshold {
				continue
			}
			detUsed[dj] = true
			walk(ti+1, count+1, cost+costMatrix[ti][dj])
			detUsed[dj] = false
		}
	}
	walk(0, 0, 0)
	return bestCount, bestCost
}

func TestSolveMatchesBruteForceReferenceOnSmallMatrices(t *testing.T) {
	cases := []struct {
		name      string
		cost      [][]float64
		threshold float64
	}{
		{
			name: "diagonal_forced_by_gating",
			cost: [][]float64{
				{1, 9, 9, 9, 9},
				{9, 2, 9, 9, 9},
				{9, 9, 3, 9, 9},
				{9, 9, 9, 4, 9},
				{9, 9, 9, 9, 5},
			},
			threshold: 6,
		},
		{
			name: "one_row_fully_gated_out",
			cost: [][]float64{
				{1, 2, 9},
				{3, 1, 9},
				{9, 9, 9},
			},
			threshold: 4,
		},
		{
			name: "sparse_gating",
			cost: [][]float64{
				{0.5, 10, 10},
				{10, 0.6, 10},
				{10, 10, 10},
			},
			threshold: 1.0,
		},
		{
			name: "crossed_preferences",
			cost: [][]float64{
				{1, 2},
				{1.5, 3},
			},
			threshold: 5,
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := Solve(c.cost, c.threshold)
			wantCount, wantCost := bruteForceMatch(c.cost, c.threshold)

			if len(r.Matches) != wantCount {
				t.Fatalf("matched pairs: got %d want %d (matches=%+v)", len(r.Matches), wantCount, r.Matches)
			}
			var gotCost float64
			for _, mt := range r.Matches {
				if mt.Cost > c.threshold {
					t.Errorf("match %+v exceeds threshold %f", mt, c.threshold)
				}
				gotCost += mt.Cost
			}
			if math.Abs(gotCost-wantCost) > 1e-9 {
				t.Errorf("total matched cost: got %f want %f", gotCost, wantCost)
			}
		})
	}
}

func TestSolveHandlesHundredByHundredBlockDiagonalStress(t *testing.T) {
	const n = 100
	threshold := 1.0
	cost := make([][]float64, n)
	for i := range cost {
		row := make([]float64, n)
		for j := range row {
			if i == j {
				row[j] = float64(i%10) * 0.05
			} else {
				row[j] = 1000.0
			}
		}
		cost[i] = row
	}

	r := Solve(cost, threshold)
	if len(r.Matches) != n {
		t.Fatalf("expected %d matches, got %d", n, len(r.Matches))
	}
	seenTracks := make(map[int]bool, n)
	seenDets := make(map[int]bool, n)
	for _, m := range r.Matches {
		if m.TrackIndex != m.DetectionIndex {
			t.Errorf("expected a diagonal match, got track %d -> detection %d", m.TrackIndex, m.DetectionIndex)
		}
		if m.Cost > threshold {
			t.Errorf("match %+v exceeds threshold %f", m, threshold)
		}
		seenTracks[m.TrackIndex] = true
		seenDets[m.DetectionIndex] = true
	}
	if len(seenTracks) != n || len(seenDets) != n {
		t.Errorf("expected every track and detection matched exactly once, got %d tracks %d detections", len(seenTracks), len(seenDets))
	}
	if len(r.UnassignedTracks) != 0 || len(r.UnassignedDetections) != 0 {
		t.Errorf("expected no unassigned entries, got tracks=%v detections=%v", r.UnassignedTracks, r.UnassignedDetections)
	}
}

func TestSolveHandlesHundredByHundredFullyConnectedStress(t *testing.T) {
	const n = 100
	threshold := 10.0
	cost := make([][]float64, n)
	for i := range cost {
		row := make([]float64, n)
		for j := range row {
			row[j] = math.Abs(float64(i-j)) * 0.01
		}
		cost[i] = row
	}

	r := Solve(cost, threshold)
	if len(r.Matches) != n {
		t.Fatalf("expected a perfect %d-way matching on a single fully gated-in component, got %d matches", n, len(r.Matches))
	}
	for _, m := range r.Matches {
		if m.Cost > threshold {
			t.Errorf("match %+v exceeds threshold %f", m, threshold)
		}
	}
	if len(r.UnassignedTracks) != 0 || len(r.UnassignedDetections) != 0 {
		t.Errorf("expected no unassigned entries, got tracks=%v detections=%v", r.UnassignedTracks, r.UnassignedDetections)
	}
}
