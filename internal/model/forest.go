package model

import (
	"errors"
	"math"
	"sort"

	"golang.org/x/exp/rand"

	"github.com/inodb/vibe-cnv/internal/dataset"
)

// Forest is a random forest of weighted-Gini CART trees grown on bootstrap
// samples. MaxDepth 0 means unlimited; MaxFeatures 0 means sqrt of the
// feature count.
type Forest struct {
	Trees       int
	MaxDepth    int
	MinLeaf     int
	MaxFeatures int

	Classes  []dataset.Class
	Ensemble []Tree
}

// Tree is a fitted decision tree; node 0 is the root.
type Tree struct {
	Nodes []Node
}

// Node is a split on Feature <= Threshold, or a leaf when Feature < 0.
type Node struct {
	Feature     int
	Threshold   float64
	Left, Right int
	Proba       []float64
}

// Labels implements Classifier.
func (f *Forest) Labels() []dataset.Class { return f.Classes }

type treeBuilder struct {
	X        [][]float64
	y        []int
	w        []float64
	k        int
	maxDepth int
	minLeaf  int
	maxFeat  int
	rng      *rand.Rand
	tree     Tree
}

// Fit implements Classifier.
func (f *Forest) Fit(X [][]float64, y []int, w []float64, labels []dataset.Class, rng *rand.Rand) error {
	if len(X) == 0 {
		return errors.New("forest: no training rows")
	}
	p := len(X[0])
	maxFeat := f.MaxFeatures
	if maxFeat <= 0 || maxFeat > p {
		maxFeat = int(math.Max(1, math.Floor(math.Sqrt(float64(p)))))
	}

	f.Classes = append([]dataset.Class(nil), labels...)
	f.Ensemble = make([]Tree, f.Trees)
	n := len(X)
	for t := range f.Ensemble {
		trng := rand.New(rand.NewSource(rng.Uint64()))
		idx := make([]int, n)
		for i := range idx {
			idx[i] = trng.Intn(n)
		}
		b := &treeBuilder{
			X: X, y: y, w: w, k: len(labels),
			maxDepth: f.MaxDepth, minLeaf: f.MinLeaf, maxFeat: maxFeat,
			rng: trng,
		}
		b.grow(idx, 0)
		f.Ensemble[t] = b.tree
	}
	return nil
}

func (b *treeBuilder) classWeights(idx []int) ([]float64, float64) {
	cw := make([]float64, b.k)
	var total float64
	for _, i := range idx {
		cw[b.y[i]] += b.w[i]
		total += b.w[i]
	}
	return cw, total
}

func gini(cw []float64, total float64) float64 {
	if total == 0 {
		return 0
	}
	g := 1.0
	for _, v := range cw {
		q := v / total
		g -= q * q
	}
	return g
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	id := len(b.tree.Nodes)
	cw, total := b.classWeights(idx)
	proba := make([]float64, b.k)
	for c, v := range cw {
		if total > 0 {
			proba[c] = v / total
		}
	}
	b.tree.Nodes = append(b.tree.Nodes, Node{Feature: -1, Proba: proba})

	parent := gini(cw, total)
	if parent == 0 || len(idx) < 2*b.minLeaf || (b.maxDepth > 0 && depth >= b.maxDepth) {
		return id
	}

	feat, thr, ok := b.bestSplit(idx, parent*total)
	if !ok {
		return id
	}
	var left, right []int
	for _, i := range idx {
		if b.X[i][feat] <= thr {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}
	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Nodes[id].Feature = feat
	b.tree.Nodes[id].Threshold = thr
	b.tree.Nodes[id].Left = l
	b.tree.Nodes[id].Right = r
	return id
}

// bestSplit scans a random subset of features for the threshold with the
// lowest weighted child impurity below parentImpurity. Further features are
// tried past maxFeat until one yields a split.
func (b *treeBuilder) bestSplit(idx []int, parentImpurity float64) (int, float64, bool) {
	p := len(b.X[0])
	sorted := make([]int, len(idx))
	best := parentImpurity
	bestFeat, bestThr, found := -1, 0.0, false

	for n, f := range b.rng.Perm(p) {
		if n >= b.maxFeat && found {
			break
		}
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.X[sorted[a]][f] < b.X[sorted[c]][f] })

		right, rTotal := b.classWeights(sorted)
		left := make([]float64, b.k)
		var lTotal float64
		for j := 0; j < len(sorted)-1; j++ {
			i := sorted[j]
			left[b.y[i]] += b.w[i]
			right[b.y[i]] -= b.w[i]
			lTotal += b.w[i]
			rTotal -= b.w[i]
			if j+1 < b.minLeaf || len(sorted)-j-1 < b.minLeaf {
				continue
			}
			v, next := b.X[i][f], b.X[sorted[j+1]][f]
			if v == next {
				continue
			}
			imp := gini(left, lTotal)*lTotal + gini(right, rTotal)*rTotal
			if imp < best-1e-12 {
				thr := v + (next-v)/2
				if thr >= next {
					thr = v
				}
				best, bestFeat, bestThr, found = imp, f, thr, true
			}
		}
	}
	return bestFeat, bestThr, found
}

// PredictProba implements Classifier: the mean leaf distribution over
// all trees.
func (f *Forest) PredictProba(x []float64) []float64 {
	p := make([]float64, len(f.Classes))
	for _, t := range f.Ensemble {
		n := 0
		for t.Nodes[n].Feature >= 0 {
			if x[t.Nodes[n].Feature] <= t.Nodes[n].Threshold {
				n = t.Nodes[n].Left
			} else {
				n = t.Nodes[n].Right
			}
		}
		for c, v := range t.Nodes[n].Proba {
			p[c] += v
		}
	}
	for c := range p {
		p[c] /= float64(len(f.Ensemble))
	}
	return p
}
