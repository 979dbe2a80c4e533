package vectorstore

import (
	"errors"
	"math"
	"sort"
)

// annIndex is an in-memory IVF-flat style partitioning of one dealer's
// catalog vectors. Rows are grouped under k-means centroids; a search probes
// the partitions whose centroids lie closest to the query and scans only
// their members. The structure is immutable after construction and safe for
// concurrent readers; rebuilds swap in a fresh instance.
type annIndex struct {
	dim        int
	centroids  [][]float32
	partitions []partition
}

type partition struct {
	ids  []string
	vecs [][]float32
}

type scoredID struct {
	id    string
	score float64
}

var errDimensionMismatch = errors.New("vectorstore: query dimension does not match index")

// kmeansRounds is fixed: the assignment converges quickly on catalog-sized
// inputs and a bounded loop keeps rebuild cost predictable.
const kmeansRounds = 6

// buildANNIndex clusters the rows into about sqrt(n) partitions. rows must
// arrive in a deterministic order (the store sorts by id) so repeated builds
// over the same catalog produce the same index. Any undecodable or
// odd-dimensioned vector fails the whole build; the caller falls back to
// exact scanning.
func buildANNIndex(ids []string, blobs [][]byte) (*annIndex, error) {
	n := len(ids)
	if n == 0 {
		return nil, errors.New("vectorstore: empty catalog")
	}
	vecs := make([][]float32, n)
	dim := 0
	for i, b := range blobs {
		v, err := DecodeVector(b)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return nil, errDimensionMismatch
		}
		vecs[i] = v
	}

	p := int(math.Round(math.Sqrt(float64(n))))
	if p < 1 {
		p = 1
	}

	// Initial centroids stride the id-ordered input.
	centroids := make([][]float32, p)
	for i := 0; i < p; i++ {
		src := vecs[i*n/p]
		c := make([]float32, dim)
		copy(c, src)
		centroids[i] = c
	}

	assign := make([]int, n)
	for round := 0; round < kmeansRounds; round++ {
		for i, v := range vecs {
			assign[i] = nearestCentroid(centroids, v)
		}
		sums := make([][]float64, p)
		counts := make([]int, p)
		for i := range sums {
			sums[i] = make([]float64, dim)
		}
		for i, v := range vecs {
			c := assign[i]
			counts[c]++
			for d, f := range v {
				sums[c][d] += float64(f)
			}
		}
		for c := 0; c < p; c++ {
			if counts[c] == 0 {
				continue // keep the previous centroid for empty partitions
			}
			for d := 0; d < dim; d++ {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}

	parts := make([]partition, p)
	for i := range vecs {
		c := assign[i]
		parts[c].ids = append(parts[c].ids, ids[i])
		parts[c].vecs = append(parts[c].vecs, vecs[i])
	}
	return &annIndex{dim: dim, centroids: centroids, partitions: parts}, nil
}

func nearestCentroid(centroids [][]float32, v []float32) int {
	best, bestScore := 0, math.Inf(-1)
	for i, c := range centroids {
		if s := cosineSimilarity(c, v); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}

// search returns up to k member ids ranked by cosine similarity to q, ties
// broken by id. It probes roughly sqrt(p) partitions nearest the query and
// widens while the candidate pool is still short of k.
func (ix *annIndex) search(q []float32, k int) ([]scoredID, error) {
	if len(q) != ix.dim {
		return nil, errDimensionMismatch
	}
	if k <= 0 {
		return nil, nil
	}

	p := len(ix.partitions)
	order := make([]int, p)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return cosineSimilarity(ix.centroids[order[a]], q) > cosineSimilarity(ix.centroids[order[b]], q)
	})

	probe := int(math.Ceil(math.Sqrt(float64(p))))
	if probe < 1 {
		probe = 1
	}

	var buf []scoredID
	for rank, pi := range order {
		if rank >= probe && len(buf) >= k {
			break
		}
		part := ix.partitions[pi]
		for i, v := range part.vecs {
			buf = append(buf, scoredID{id: part.ids[i], score: cosineSimilarity(v, q)})
		}
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		return buf[a].id < buf[b].id
	})
	if k > len(buf) {
		k = len(buf)
	}
	return buf[:k], nil
}
