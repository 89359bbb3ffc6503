package tracker

import "math"

// forbiddenCost marks a pair outside the gate. It is finite so that potentials
// in the Hungarian solver stay well defined.
const forbiddenCost = 1e12

// associate maps each observation index to a candidate index, or -1 when the
// observation starts a new track. Candidates must be sorted by ascending id.
func associate(strategy Association, maxDist float64, obs []Observation, candidates []*Track) []int {
	if strategy == AssociateOptimal {
		return associateOptimal(maxDist, obs, candidates)
	}
	return associateGreedy(maxDist, obs, candidates)
}

// associateGreedy is order dependent: the first candidate within maxDist wins,
// even when a later candidate is closer. A candidate is claimed at most once.
func associateGreedy(maxDist float64, obs []Observation, candidates []*Track) []int {
	assigned := make([]int, len(obs))
	claimed := make([]bool, len(candidates))
	for i, o := range obs {
		assigned[i] = -1
		for j, c := range candidates {
			if claimed[j] {
				continue
			}
			if o.Center.Dist(c.Center) <= maxDist {
				assigned[i] = j
				claimed[j] = true
				break
			}
		}
	}
	return assigned
}

func associateOptimal(maxDist float64, obs []Observation, candidates []*Track) []int {
	assigned := make([]int, len(obs))
	for i := range assigned {
		assigned[i] = -1
	}
	if len(obs) == 0 || len(candidates) == 0 {
		return assigned
	}

	cost := make([][]float64, len(obs))
	for i, o := range obs {
		cost[i] = make([]float64, len(candidates))
		for j, c := range candidates {
			d := o.Center.Dist(c.Center)
			if d > maxDist {
				d = forbiddenCost
			}
			cost[i][j] = d
		}
	}

	for i, j := range hungarian(cost) {
		if j >= 0 && cost[i][j] < forbiddenCost {
			assigned[i] = j
		}
	}
	return assigned
}

// hungarian solves the rectangular minimum-cost assignment problem with the
// potentials formulation of Kuhn-Munkres in O(n³). It returns rows[i] = column
// assigned to row i, or -1 when row i only received padding.
func hungarian(cost [][]float64) []int {
	rows := len(cost)
	if rows == 0 {
		return nil
	}
	cols := len(cost[0])
	n := rows
	if cols > n {
		n = cols
	}

	// 1-indexed; column 0 is the virtual start of each augmenting path.
	at := func(i, j int) float64 {
		if i <= rows && j <= cols {
			return cost[i-1][j-1]
		}
		return forbiddenCost
	}
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	owner := make([]int, n+1) // owner[j] = row matched to column j
	prev := make([]int, n+1)

	for i := 1; i <= n; i++ {
		owner[0] = i
		j0 := 0
		minv := make([]float64, n+1)
		used := make([]bool, n+1)
		for j := range minv {
			minv[j] = math.Inf(1)
		}

		for {
			used[j0] = true
			i0 := owner[j0]
			delta := math.Inf(1)
			j1 := 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				if cur := at(i0, j) - u[i0] - v[j]; cur < minv[j] {
					minv[j] = cur
					prev[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
				if used[j] {
					u[owner[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if owner[j0] == 0 {
				break
			}
		}

		for j0 != 0 {
			j1 := prev[j0]
			owner[j0] = owner[j1]
			j0 = j1
		}
	}

	result := make([]int, rows)
	for i := range result {
		result[i] = -1
	}
	for j := 1; j <= cols; j++ {
		if i := owner[j]; i >= 1 && i <= rows {
			result[i-1] = j - 1
		}
	}
	return result
}
