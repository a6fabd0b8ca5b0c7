// Package sample looks up dataset values at arbitrary query points by
// nearest-neighbour search.
//
// No interpolation is done: a query gets the values of the closest data
// point, and the distance to it is reported so callers can judge how good
// the match is. When several points are equally close, which one is
// returned is unspecified.
package sample

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/kdtree"

	"github.com/banshee-data/paramstudy/internal/dataset"
	"github.com/banshee-data/paramstudy/internal/studyerr"
)

// Result is one sampled query.
type Result struct {
	Query    [3]float64         `json:"query"`
	Index    int                `json:"index"`
	Point    [3]float64         `json:"point"`
	Values   map[string]float64 `json:"values"`
	Distance float64            `json:"distance"`
}

// Sampler answers nearest-point queries against one dataset.
type Sampler struct {
	ds   *dataset.Dataset
	dims int
	tree *kdtree.Tree
}

// New indexes the first dims coordinates (2 or 3) of ds.
func New(ds *dataset.Dataset, dims int) (*Sampler, error) {
	if dims != 2 && dims != 3 {
		return nil, studyerr.Parameterf("dims", "sampling needs 2 or 3 dimensions, got %d", dims)
	}
	if ds == nil || ds.Len() == 0 {
		path := ""
		if ds != nil {
			path = ds.Path
		}
		return nil, studyerr.DataFormatf(path, "dataset has no points")
	}
	pts := make(nodes, ds.Len())
	for i, p := range ds.Points {
		pts[i] = node{coord: p, dims: dims, idx: i}
	}
	return &Sampler{ds: ds, dims: dims, tree: kdtree.New(pts, false)}, nil
}

// Dataset returns the indexed dataset.
func (s *Sampler) Dataset() *dataset.Dataset { return s.ds }

// Nearest returns the data point closest to q. Coordinates beyond the
// sampler's dims are ignored for the search.
func (s *Sampler) Nearest(q [3]float64) (Result, error) {
	for _, v := range q[:s.dims] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, studyerr.Parameterf("query", "non-finite coordinate in %v", q)
		}
	}
	got, d2 := s.tree.Nearest(node{coord: q, dims: s.dims, idx: -1})
	n := got.(node)
	r := Result{
		Query:    q,
		Index:    n.idx,
		Point:    s.ds.Points[n.idx],
		Values:   make(map[string]float64, len(s.ds.Fields)),
		Distance: math.Sqrt(d2),
	}
	for name, vals := range s.ds.Fields {
		r.Values[name] = vals[n.idx]
	}
	return r, nil
}

// Points samples each query in order.
func (s *Sampler) Points(qs [][3]float64) ([]Result, error) {
	out := make([]Result, len(qs))
	for i, q := range qs {
		r, err := s.Nearest(q)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

// Line samples n evenly spaced points from p0 to p1 inclusive. n = 1
// samples p0 only.
func (s *Sampler) Line(p0, p1 [3]float64, n int) ([]Result, error) {
	qs, err := LinePoints(p0, p1, n)
	if err != nil {
		return nil, err
	}
	return s.Points(qs)
}

// LinePoints returns n evenly spaced points from p0 to p1 inclusive.
func LinePoints(p0, p1 [3]float64, n int) ([][3]float64, error) {
	if n < 1 {
		return nil, studyerr.Parameterf("points", "need at least 1 sample point, got %d", n)
	}
	if n == 1 {
		return [][3]float64{p0}, nil
	}
	qs := make([][3]float64, n)
	axis := make([]float64, n)
	for c := 0; c < 3; c++ {
		floats.Span(axis, p0[c], p1[c])
		for i := range qs {
			qs[i][c] = axis[i]
		}
	}
	return qs, nil
}

// node is a dataset point in the kd-tree.
type node struct {
	coord [3]float64
	dims  int
	idx   int
}

func (n node) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	return n.coord[d] - c.(node).coord[d]
}

func (n node) Dims() int { return n.dims }

// Distance is the squared Euclidean distance, as kdtree expects.
func (n node) Distance(c kdtree.Comparable) float64 {
	o := c.(node)
	var sum float64
	for d := 0; d < n.dims; d++ {
		diff := n.coord[d] - o.coord[d]
		sum += diff * diff
	}
	return sum
}

type nodes []node

func (p nodes) Index(i int) kdtree.Comparable         { return p[i] }
func (p nodes) Len() int                              { return len(p) }
func (p nodes) Pivot(d kdtree.Dim) int                { return plane{nodes: p, dim: d}.pivot() }
func (p nodes) Slice(start, end int) kdtree.Interface { return p[start:end] }

// plane sorts nodes along one dimension for median partitioning.
type plane struct {
	nodes
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool { return p.nodes[i].coord[p.dim] < p.nodes[j].coord[p.dim] }
func (p plane) Swap(i, j int)      { p.nodes[i], p.nodes[j] = p.nodes[j], p.nodes[i] }
func (p plane) Slice(start, end int) kdtree.SortSlicer {
	return plane{nodes: p.nodes[start:end], dim: p.dim}
}

func (p plane) pivot() int { return kdtree.Partition(p, kdtree.MedianOfMedians(p)) }
