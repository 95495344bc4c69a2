package forest

import (
	"math"
	"math/rand"
	"sort"
)

// Node is one node of a regression tree stored in a flat slice.
// Leaves have Feature == -1.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
	Samples   int     `json:"samples"`
}

// Tree is a CART regression tree split on squared error.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Predict walks the tree for one row. Rows go left when x[feature] <= threshold.
func (t *Tree) Predict(x []float64) float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Feature < 0 {
			return n.Value
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int) int
	walk = func(i int) int {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

// treeBuilder grows one tree on a bootstrap sample.
type treeBuilder struct {
	X           [][]float64
	y           []float64
	params      Params
	maxFeatures int
	rnd         *rand.Rand
	tree        *Tree
	importances []float64 // total squared-error decrease per feature
	features    []int     // scratch permutation
}

func growTree(X [][]float64, y []float64, sample []int, params Params, maxFeatures int, rnd *rand.Rand) (*Tree, []float64) {
	nFeatures := len(X[0])
	b := &treeBuilder{
		X:           X,
		y:           y,
		params:      params,
		maxFeatures: maxFeatures,
		rnd:         rnd,
		tree:        &Tree{},
		importances: make([]float64, nFeatures),
		features:    make([]int, nFeatures),
	}
	for i := range b.features {
		b.features[i] = i
	}
	b.build(sample, 0)
	return b.tree, b.importances
}

// build appends the subtree for idx and returns its node index.
func (b *treeBuilder) build(idx []int, depth int) int {
	sum, sumSq := 0.0, 0.0
	for _, i := range idx {
		sum += b.y[i]
		sumSq += b.y[i] * b.y[i]
	}
	n := float64(len(idx))
	sse := sumSq - sum*sum/n

	nodeIdx := len(b.tree.Nodes)
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: -1, Value: sum / n, Samples: len(idx)})

	if len(idx) < b.params.MinSamplesSplit ||
		len(idx) < 2*b.params.MinSamplesLeaf ||
		(b.params.MaxDepth > 0 && depth >= b.params.MaxDepth) ||
		sse <= 1e-12*n {
		return nodeIdx
	}

	feature, threshold, childSSE, ok := b.bestSplit(idx)
	if !ok {
		return nodeIdx
	}

	left := make([]int, 0, len(idx))
	right := make([]int, 0, len(idx))
	for _, i := range idx {
		if b.X[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	b.importances[feature] += sse - childSSE

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.tree.Nodes[nodeIdx].Feature = feature
	b.tree.Nodes[nodeIdx].Threshold = threshold
	b.tree.Nodes[nodeIdx].Left = l
	b.tree.Nodes[nodeIdx].Right = r
	return nodeIdx
}

// bestSplit scans a random subset of features for the split with the
// lowest summed child squared error that respects MinSamplesLeaf.
func (b *treeBuilder) bestSplit(idx []int) (feature int, threshold, bestSSE float64, ok bool) {
	b.rnd.Shuffle(len(b.features), func(i, j int) {
		b.features[i], b.features[j] = b.features[j], b.features[i]
	})

	bestSSE = math.Inf(1)
	minLeaf := max(b.params.MinSamplesLeaf, 1)
	sorted := make([]int, len(idx))
	n := len(idx)

	for _, f := range b.features[:b.maxFeatures] {
		copy(sorted, idx)
		sort.SliceStable(sorted, func(i, j int) bool {
			return b.X[sorted[i]][f] < b.X[sorted[j]][f]
		})
		if b.X[sorted[0]][f] == b.X[sorted[n-1]][f] {
			continue
		}

		totalSum, totalSq := 0.0, 0.0
		for _, i := range sorted {
			totalSum += b.y[i]
			totalSq += b.y[i] * b.y[i]
		}

		leftSum, leftSq := 0.0, 0.0
		for k := 1; k < n; k++ {
			yi := b.y[sorted[k-1]]
			leftSum += yi
			leftSq += yi * yi
			if k < minLeaf || n-k < minLeaf {
				continue
			}
			lo, hi := b.X[sorted[k-1]][f], b.X[sorted[k]][f]
			if lo == hi {
				continue
			}
			nl, nr := float64(k), float64(n-k)
			rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
			sse := (leftSq - leftSum*leftSum/nl) + (rightSq - rightSum*rightSum/nr)
			if sse < bestSSE {
				bestSSE = sse
				feature = f
				threshold = lo + (hi-lo)/2
				ok = true
			}
		}
	}
	return feature, threshold, bestSSE, ok
}
