// Derived hypergraph quantities: PageRank, Louvain communities, spectral
// clusters, and heat diffusion, computed on gonum's graph/network,
// graph/community, and mat packages against the hypergraph's bipartite
// node/hyperedge projection rather than hand-rolled numerics.
package hypergraph

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/mat"

	"github.com/hyperforge/capiforge/pkg/types"
)

// derivedCache holds version-tagged derived quantities, recomputed
// lazily on first read after a version bump.
type derivedCache struct {
	mu      sync.Mutex
	version uint64
	valid   bool

	pagerank    map[types.NodeID]float64
	communities map[types.NodeID]int
	clusters    map[types.NodeID]int
}

func newDerivedCache() *derivedCache {
	return &derivedCache{}
}

func (d *derivedCache) invalidate() {
	d.mu.Lock()
	d.valid = false
	d.mu.Unlock()
}

// nodeIndex assigns a stable int64 id to each NodeID for gonum's
// graph.Node interface, sorted by NodeID so index assignment (and
// therefore derived labels) is deterministic across runs.
type nodeIndex struct {
	idOf  map[types.NodeID]int64
	order []types.NodeID
}

func (s *Store) buildNodeIndex() nodeIndex {
	ids := make([]types.NodeID, 0, len(s.nodes))
	for id := range s.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	idx := nodeIndex{idOf: make(map[types.NodeID]int64, len(ids)), order: ids}
	for i, id := range ids {
		idx.idOf[id] = int64(i)
	}
	return idx
}

// projectedEdges returns, for each hyperedge, the weighted pairwise
// (source, target) projections contributing to the bipartite graph
// (uniform mass across sources/targets).
func (s *Store) projectedEdges() []struct {
	from, to types.NodeID
	weight   float64
} {
	var out []struct {
		from, to types.NodeID
		weight   float64
	}
	for _, e := range s.edges {
		srcs := e.SourcesSlice()
		tgts := e.TargetsSlice()
		mass := e.Weight / float64(len(srcs)*len(tgts))
		for _, from := range srcs {
			for _, to := range tgts {
				out = append(out, struct {
					from, to types.NodeID
					weight   float64
				}{from, to, mass})
			}
		}
	}
	return out
}

// ensureDerived recomputes pagerank/communities/clusters if the cache is
// stale relative to the current version.
func (s *Store) ensureDerived() {
	s.mu.RLock()
	version := s.version
	s.mu.RUnlock()

	s.derived.mu.Lock()
	defer s.derived.mu.Unlock()
	if s.derived.valid && s.derived.version == version {
		return
	}

	s.mu.RLock()
	idx := s.buildNodeIndex()
	edges := s.projectedEdges()
	s.mu.RUnlock()

	s.derived.pagerank = computePageRank(idx, edges, 0.85, 100, 1e-6)
	s.derived.communities = computeCommunities(idx, edges)
	s.derived.clusters = computeSpectralClusters(idx, edges, 4)
	s.derived.version = version
	s.derived.valid = true
}

func computePageRank(idx nodeIndex, edges []struct {
	from, to types.NodeID
	weight   float64
}, damping float64, maxIter int, tol float64) map[types.NodeID]float64 {
	g := simple.NewWeightedDirectedGraph(0, 0)
	for _, id := range idx.order {
		g.AddNode(simple.Node(idx.idOf[id]))
	}
	for _, e := range edges {
		g.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(idx.idOf[e.from]),
			T: simple.Node(idx.idOf[e.to]),
			W: e.weight,
		})
	}

	ranks := network.PageRank(g, damping, tol)
	_ = maxIter // network.PageRank iterates to tol internally

	out := make(map[types.NodeID]float64, len(idx.order))
	for _, id := range idx.order {
		out[id] = ranks[idx.idOf[id]]
	}
	return out
}

func computeCommunities(idx nodeIndex, edges []struct {
	from, to types.NodeID
	weight   float64
}) map[types.NodeID]int {
	g := simple.NewWeightedUndirectedGraph(0, 0)
	for _, id := range idx.order {
		g.AddNode(simple.Node(idx.idOf[id]))
	}
	for _, e := range edges {
		from, to := idx.idOf[e.from], idx.idOf[e.to]
		if from == to {
			continue
		}
		g.SetWeightedEdge(simple.WeightedEdge{F: simple.Node(from), T: simple.Node(to), W: e.weight})
	}

	out := make(map[types.NodeID]int, len(idx.order))
	if g.Nodes().Len() == 0 {
		return out
	}

	reduced := community.Modularize(g, 1, rand.NewSource(1))
	for communityID, nodes := range reduced.Structure() {
		for _, n := range nodes {
			for _, id := range idx.order {
				if idx.idOf[id] == n.ID() {
					out[id] = communityID
				}
			}
		}
	}
	return out
}

// computeSpectralClusters builds the symmetric normalized Laplacian of the
// projected adjacency, takes the eigenvectors of the k smallest non-zero
// eigenvalues, and k-means clusters the resulting rows.
// Cluster labels are remapped so label 0 is the largest cluster
// (descending by size) for stability across runs.
func computeSpectralClusters(idx nodeIndex, edges []struct {
	from, to types.NodeID
	weight   float64
}, k int) map[types.NodeID]int {
	n := len(idx.order)
	out := make(map[types.NodeID]int, n)
	if n == 0 {
		return out
	}
	if k > n {
		k = n
	}

	adj := mat.NewSymDense(n, nil)
	degree := make([]float64, n)
	for _, e := range edges {
		i, j := idx.idOf[e.from], idx.idOf[e.to]
		if i == j {
			continue
		}
		w := adj.At(int(i), int(j)) + e.weight
		adj.SetSym(int(i), int(j), w)
		degree[i] += e.weight
		degree[j] += e.weight
	}

	// Symmetric normalized Laplacian: L = I - D^-1/2 A D^-1/2.
	lap := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			if i == j {
				lap.SetSym(i, j, 1)
				continue
			}
			if degree[i] == 0 || degree[j] == 0 {
				continue
			}
			norm := -adj.At(i, j) / math.Sqrt(degree[i]*degree[j])
			lap.SetSym(i, j, norm)
		}
	}

	var eig mat.EigenSym
	if !eig.Factorize(lap, true) {
		return out
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// Skip the zero eigenvalue(s) (one per connected component);
	// cluster on the next k smallest.
	type eigPair struct {
		val float64
		col int
	}
	pairs := make([]eigPair, len(values))
	for i, v := range values {
		pairs[i] = eigPair{v, i}
	}
	sort.Slice(pairs, func(a, b int) bool { return pairs[a].val < pairs[b].val })

	nonZero := pairs
	for len(nonZero) > 0 && nonZero[0].val < 1e-9 {
		nonZero = nonZero[1:]
	}
	if len(nonZero) > k {
		nonZero = nonZero[:k]
	}
	if len(nonZero) == 0 {
		return out
	}

	rows := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, len(nonZero))
		for c, p := range nonZero {
			row[c] = vectors.At(i, p.col)
		}
		rows[i] = row
	}

	labels := kMeans(rows, k)

	counts := make(map[int]int)
	for _, l := range labels {
		counts[l]++
	}
	order := make([]int, 0, len(counts))
	for l := range counts {
		order = append(order, l)
	}
	sort.Slice(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	relabel := make(map[int]int, len(order))
	for newLabel, oldLabel := range order {
		relabel[oldLabel] = newLabel
	}

	for i, id := range idx.order {
		out[id] = relabel[labels[i]]
	}
	return out
}

// kMeans clusters rows into at most k groups using a deterministic
// farthest-first seeding (no randomness, so results are reproducible for
// a fixed graph) and Lloyd's algorithm for a fixed number of iterations.
func kMeans(rows [][]float64, k int) []int {
	n := len(rows)
	labels := make([]int, n)
	if n == 0 || k <= 0 {
		return labels
	}
	if k > n {
		k = n
	}
	dim := len(rows[0])

	centers := make([][]float64, k)
	centers[0] = append([]float64(nil), rows[0]...)
	for c := 1; c < k; c++ {
		var bestIdx int
		var bestDist float64 = -1
		for i, r := range rows {
			d := nearestCenterDist(r, centers[:c])
			if d > bestDist {
				bestDist = d
				bestIdx = i
			}
		}
		centers[c] = append([]float64(nil), rows[bestIdx]...)
	}

	for iter := 0; iter < 25; iter++ {
		for i, r := range rows {
			labels[i] = nearestCenterIndex(r, centers)
		}
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, r := range rows {
			l := labels[i]
			counts[l]++
			for d := 0; d < dim; d++ {
				sums[l][d] += r[d]
			}
		}
		for c := 0; c < k; c++ {
			if counts[c] == 0 {
				continue
			}
			for d := 0; d < dim; d++ {
				centers[c][d] = sums[c][d] / float64(counts[c])
			}
		}
	}
	return labels
}

func nearestCenterDist(r []float64, centers [][]float64) float64 {
	best := math.MaxFloat64
	for _, c := range centers {
		d := sqDist(r, c)
		if d < best {
			best = d
		}
	}
	return best
}

func nearestCenterIndex(r []float64, centers [][]float64) int {
	best := 0
	bestDist := math.MaxFloat64
	for i, c := range centers {
		d := sqDist(r, c)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func sqDist(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// PageRank returns the current PageRank distribution, recomputing if
// stale.
func (s *Store) PageRank() map[types.NodeID]float64 {
	s.ensureDerived()
	s.derived.mu.Lock()
	defer s.derived.mu.Unlock()
	out := make(map[types.NodeID]float64, len(s.derived.pagerank))
	for k, v := range s.derived.pagerank {
		out[k] = v
	}
	return out
}

// Communities returns the current Louvain community assignment,
// recomputing if stale.
func (s *Store) Communities() map[types.NodeID]int {
	s.ensureDerived()
	s.derived.mu.Lock()
	defer s.derived.mu.Unlock()
	out := make(map[types.NodeID]int, len(s.derived.communities))
	for k, v := range s.derived.communities {
		out[k] = v
	}
	return out
}

// SpectralClusters returns the current spectral cluster assignment,
// recomputing if stale. The cached assignment always uses k = 4 clusters
// (capped at the node count); no other k can be requested.
func (s *Store) SpectralClusters() map[types.NodeID]int {
	s.ensureDerived()
	s.derived.mu.Lock()
	defer s.derived.mu.Unlock()
	out := make(map[types.NodeID]int, len(s.derived.clusters))
	for k, v := range s.derived.clusters {
		out[k] = v
	}
	return out
}

// HeatDiffusion approximates exp(-t*L) * s (s a one-hot/indicator vector
// over seedNodes) via a degree-m Chebyshev polynomial expansion of the
// symmetric normalized Laplacian, used as a context-spread signal.
func (s *Store) HeatDiffusion(seedNodes []types.NodeID, t float64) map[types.NodeID]float64 {
	s.mu.RLock()
	idx := s.buildNodeIndex()
	edges := s.projectedEdges()
	s.mu.RUnlock()

	n := len(idx.order)
	out := make(map[types.NodeID]float64, n)
	if n == 0 {
		return out
	}

	degree := make([]float64, n)
	adj := mat.NewSymDense(n, nil)
	for _, e := range edges {
		i, j := idx.idOf[e.from], idx.idOf[e.to]
		if i == j {
			continue
		}
		w := adj.At(int(i), int(j)) + e.weight
		adj.SetSym(int(i), int(j), w)
		degree[i] += e.weight
		degree[j] += e.weight
	}

	lap := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		lap.Set(i, i, 1)
		for j := 0; j < n; j++ {
			if i == j || degree[i] == 0 || degree[j] == 0 {
				continue
			}
			a := adj.At(i, j)
			if a == 0 {
				continue
			}
			lap.Set(i, j, -a/math.Sqrt(degree[i]*degree[j]))
		}
	}

	seed := mat.NewVecDense(n, nil)
	for _, id := range seedNodes {
		if i, ok := idx.idOf[id]; ok {
			seed.SetVec(int(i), 1)
		}
	}

	result := chebyshevHeatKernel(lap, seed, t, 2.0, 20)
	for i, id := range idx.order {
		out[id] = result.AtVec(i)
	}
	return out
}

// chebyshevHeatKernel approximates exp(-t*L)*s for symmetric L with
// spectrum in [0, lambdaMax], using an M-term Chebyshev expansion
// evaluated via the standard three-term recurrence (avoids ever forming
// exp(-t*L) densely).
func chebyshevHeatKernel(lap *mat.Dense, s *mat.VecDense, t, lambdaMax float64, m int) *mat.VecDense {
	n, _ := lap.Dims()

	// Rescale L to Ltilde with spectrum in [-1, 1]: Ltilde = (2/lambdaMax)L - I.
	ltilde := mat.NewDense(n, n, nil)
	ltilde.Scale(2/lambdaMax, lap)
	for i := 0; i < n; i++ {
		ltilde.Set(i, i, ltilde.At(i, i)-1)
	}

	f := func(x float64) float64 { return math.Exp(-t * lambdaMax / 2 * (x + 1)) }

	coeffs := chebyshevCoefficients(f, m)

	tPrev := mat.VecDenseCopyOf(s) // T_0(Ltilde) s = s
	tCur := mat.NewVecDense(n, nil)
	tCur.MulVec(ltilde, s) // T_1(Ltilde) s = Ltilde s

	result := mat.NewVecDense(n, nil)
	result.AddScaledVec(result, coeffs[0]/2, tPrev)
	if m >= 1 {
		result.AddScaledVec(result, coeffs[1], tCur)
	}

	for k := 2; k <= m; k++ {
		tNext := mat.NewVecDense(n, nil)
		tNext.MulVec(ltilde, tCur)
		tNext.ScaleVec(2, tNext)
		tNext.SubVec(tNext, tPrev)

		result.AddScaledVec(result, coeffs[k], tNext)
		tPrev, tCur = tCur, tNext
	}

	return result
}

// chebyshevCoefficients computes the degree-m Chebyshev expansion
// coefficients of f over [-1, 1] via Chebyshev-Gauss quadrature.
func chebyshevCoefficients(f func(float64) float64, m int) []float64 {
	n := m + 1
	coeffs := make([]float64, n)
	for k := 0; k < n; k++ {
		var sum float64
		for j := 0; j < n; j++ {
			theta := math.Pi * (float64(j) + 0.5) / float64(n)
			x := math.Cos(theta)
			sum += f(x) * math.Cos(float64(k)*theta)
		}
		coeffs[k] = sum * 2 / float64(n)
	}
	return coeffs
}
