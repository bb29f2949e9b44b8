// Package assignment implements gated bipartite matching: tracks and
// detections are only allowed to pair up when their cost is within a
// threshold, the gating graph is split into independent connected
// components, and each component is solved as its own dense assignment
// problem via the Hungarian algorithm. This mirrors the
// cost_thresh/bound_value contract of the upstream bipartite graph
// matcher: ungated pairs are bounded rather than left at their raw cost,
// and every accepted match still satisfies cost <= threshold.
package assignment

import (
	"github.com/arthurkushman/go-hungarian"
)

// DefaultBoundValue is the cost assigned to a gated-out pair (and to the
// padding cells of a non-square component submatrix) before running the
// Hungarian solver, so a single outlier cost cannot dominate the scoring.
const DefaultBoundValue = 1000.0

// Match is one accepted track-detection pairing.
type Match struct {
	TrackIndex     int
	DetectionIndex int
	Cost           float64
}

// Result is the outcome of a single Solve call.
type Result struct {
	Matches               []Match
	UnassignedTracks      []int
	UnassignedDetections  []int
}

// unionFind is a standard disjoint-set structure over a fixed node count.
type unionFind struct {
	parent []int
}

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[ra] = rb
	}
}

// Solve performs gated Hungarian matching over costMatrix[track][detection]
// using threshold as the gate and DefaultBoundValue as the bound.
func Solve(costMatrix [][]float64, threshold float64) Result {
	return SolveWithBound(costMatrix, threshold, DefaultBoundValue)
}

// SolveWithBound is Solve with an explicit bound value.
func SolveWithBound(costMatrix [][]float64, threshold, boundValue float64) Result {
	nTracks := len(costMatrix)
	nDets := 0
	if nTracks > 0 {
		nDets = len(costMatrix[0])
	}

	result := Result{}
	if nTracks == 0 || nDets == 0 {
		for i := 0; i < nTracks; i++ {
			result.UnassignedTracks = append(result.UnassignedTracks, i)
		}
		for j := 0; j < nDets; j++ {
			result.UnassignedDetections = append(result.UnassignedDetections, j)
		}
		return result
	}

	uf := newUnionFind(nTracks + nDets)
	for i := 0; i < nTracks; i++ {
		for j := 0; j < nDets; j++ {
			if costMatrix[i][j] <= threshold {
				uf.union(i, nTracks+j)
			}
		}
	}

	components := make(map[int][]int) // root -> node ids (tracks: 0..nTracks-1, detections offset by nTracks)
	for n := 0; n < nTracks+nDets; n++ {
		root := uf.find(n)
		components[root] = append(components[root], n)
	}

	matchedTracks := make(map[int]bool)
	matchedDets := make(map[int]bool)

	for _, nodes := range components {
		var tracks, dets []int
		for _, n := range nodes {
			if n < nTracks {
				tracks = append(tracks, n)
			} else {
				dets = append(dets, n-nTracks)
			}
		}
		if len(tracks) == 0 || len(dets) == 0 {
			continue // isolated node on one side only: no possible gated pair
		}

		matches := solveComponent(costMatrix, tracks, dets, threshold, boundValue)
		for _, mt := range matches {
			result.Matches = append(result.Matches, mt)
			matchedTracks[mt.TrackIndex] = true
			matchedDets[mt.DetectionIndex] = true
		}
	}

	for i := 0; i < nTracks; i++ {
		if !matchedTracks[i] {
			result.UnassignedTracks = append(result.UnassignedTracks, i)
		}
	}
	for j := 0; j < nDets; j++ {
		if !matchedDets[j] {
			result.UnassignedDetections = append(result.UnassignedDetections, j)
		}
	}
	return result
}

// solveComponent runs the Hungarian algorithm over one connected component,
// padding to a square matrix and bounding every ungated or padding cell,
// then discards any assignment whose real cost still exceeds threshold
// (padding/bounding can otherwise force a spurious pairing).
func solveComponent(costMatrix [][]float64, tracks, dets []int, threshold, boundValue float64) []Match {
	n := maxInt(len(tracks), len(dets))

	// go-hungarian exposes a maximization solver; minimize cost by
	// maximizing (boundValue - clampedCost), so bounded/padding cells
	// (value 0) are always the least attractive choice.
	value := make([][]float64, n)
	for r := range value {
		value[r] = make([]float64, n)
	}
	for ti, t := range tracks {
		for di, d := range dets {
			cost := costMatrix[t][d]
			if cost > threshold {
				cost = boundValue
			}
			if cost > boundValue {
				cost = boundValue
			}
			value[ti][di] = boundValue - cost
		}
	}

	assignments := hungarian.SolveMax(value)

	var matches []Match
	for ti, row := range assignments {
		if ti >= len(tracks) {
			continue
		}
		for di := range row {
			if di >= len(dets) {
				continue
			}
			t, d := tracks[ti], dets[di]
			cost := costMatrix[t][d]
			if cost <= threshold {
				matches = append(matches, Match{TrackIndex: t, DetectionIndex: d, Cost: cost})
			}
			break
		}
	}
	return matches
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
