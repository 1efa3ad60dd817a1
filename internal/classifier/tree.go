package classifier

import (
	"math/rand"
)

// Node is one node of a decision tree. Internal nodes send x[Feature] > 0.5
// to Right. Leaves carry a class distribution aligned with Forest.Classes.
type Node struct {
	Feature int
	Left    int
	Right   int
	Leaf    bool
	Dist    []float64
}

// Tree is a flattened decision tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node
}

func (t *Tree) predict(x []float64) []float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Dist
		}
		if x[n.Feature] > 0.5 {
			i = n.Right
		} else {
			i = n.Left
		}
	}
}

type treeBuilder struct {
	x           [][]float64
	y           []int // class indexes
	numClasses  int
	maxDepth    int
	minLeaf     int
	maxFeatures int
	rng         *rand.Rand
	nodes       []Node
}

func (b *treeBuilder) build(idx []int, depth int) int {
	counts := b.classCounts(idx)
	self := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	if depth >= b.maxDepth || len(idx) < 2*b.minLeaf || pure(counts) {
		b.nodes[self] = b.leaf(counts, len(idx))
		return self
	}

	feature, ok := b.bestSplit(idx, counts)
	if !ok {
		b.nodes[self] = b.leaf(counts, len(idx))
		return self
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] > 0.5 {
			right = append(right, i)
		} else {
			left = append(left, i)
		}
	}

	l := b.build(left, depth+1)
	r := b.build(right, depth+1)
	b.nodes[self] = Node{Feature: feature, Left: l, Right: r}
	return self
}

// bestSplit draws features in random order and keeps the one with the lowest
// weighted Gini impurity. At least maxFeatures candidates are inspected; the
// search continues past that only while no valid split has been found.
func (b *treeBuilder) bestSplit(idx []int, parent []int) (int, bool) {
	dim := len(b.x[0])
	order := b.rng.Perm(dim)

	best, bestScore := -1, gini(parent, len(idx))
	found := false
	right := make([]int, b.numClasses)

	for tried, f := range order {
		if tried >= b.maxFeatures && found {
			break
		}
		for c := range right {
			right[c] = 0
		}
		nRight := 0
		for _, i := range idx {
			if b.x[i][f] > 0.5 {
				right[b.y[i]]++
				nRight++
			}
		}
		nLeft := len(idx) - nRight
		if nLeft < b.minLeaf || nRight < b.minLeaf {
			continue
		}

		left := make([]int, b.numClasses)
		for c := range left {
			left[c] = parent[c] - right[c]
		}
		n := float64(len(idx))
		score := float64(nLeft)/n*gini(left, nLeft) + float64(nRight)/n*gini(right, nRight)
		if score < bestScore-1e-12 {
			best, bestScore = f, score
			found = true
		}
	}
	return best, found
}

func (b *treeBuilder) classCounts(idx []int) []int {
	counts := make([]int, b.numClasses)
	for _, i := range idx {
		counts[b.y[i]]++
	}
	return counts
}

func (b *treeBuilder) leaf(counts []int, n int) Node {
	dist := make([]float64, b.numClasses)
	for c, k := range counts {
		dist[c] = float64(k) / float64(n)
	}
	return Node{Leaf: true, Dist: dist}
}

func gini(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	g := 1.0
	for _, k := range counts {
		p := float64(k) / float64(n)
		g -= p * p
	}
	return g
}

func pure(counts []int) bool {
	nonZero := 0
	for _, k := range counts {
		if k > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}
