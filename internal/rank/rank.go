// Package rank scores candidate documents against a query embedding and
// selects the subset worth retrieving.
//
// The scorer is a pure function over float32 vectors: it computes cosine
// similarity, drops candidates below a per-source threshold, and returns the
// survivors sorted by descending similarity. Ties keep their input order so
// that upstream ranking (e.g., feed position) acts as the secondary signal.
package rank

import (
	"math"
	"sort"
)

// Candidate is a document proposed by a retrieval adapter, carrying the
// embedding it should be scored by.
type Candidate struct {
	// Ordinal is the candidate's position in the adapter's input slice.
	// Locators may collide (two feeds can syndicate the same link), so
	// adapters map survivors back to their documents by this index.
	Ordinal int

	// Text is the content that was embedded (for feed entries, title+summary).
	Text string

	// SourceLocator is the URL or stable identifier of the document.
	SourceLocator string

	// Embedding is the vector representation of Text. May be of any dimension,
	// but must match the query vector's dimension for a meaningful score.
	Embedding []float32

	// Origin names the adapter that produced this candidate.
	Origin string
}

// Scored is a Candidate together with its cosine similarity to the query,
// in [-1, 1].
type Scored struct {
	Candidate
	Similarity float64
}

// CosineSimilarity returns the cosine of the angle between a and b.
//
// If the vectors differ in length, the comparison runs over the shorter
// prefix. If either vector has zero norm the similarity is undefined
// mathematically; this implementation defines it as 0 (no match) so that
// all-zero embeddings from a failed upstream embed never abort a ranking pass.
func CosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// ScoreAndFilter scores every candidate against query, keeps only those with
// similarity >= threshold, and returns them ordered by descending similarity.
//
// The sort is stable: candidates with equal similarity retain their relative
// input order. The input slice is never mutated.
func ScoreAndFilter(query []float32, candidates []Candidate, threshold float64) []Scored {
	scored := make([]Scored, 0, len(candidates))
	for _, c := range candidates {
		sim := CosineSimilarity(query, c.Embedding)
		if sim >= threshold {
			scored = append(scored, Scored{Candidate: c, Similarity: sim})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	return scored
}

// TopN returns at most n elements from the front of scored. It is a
// convenience for adapters that cap how many documents proceed to the
// body-fetch stage.
func TopN(scored []Scored, n int) []Scored {
	if n <= 0 || n >= len(scored) {
		return scored
	}
	return scored[:n]
}
