package storage

import (
	"math"
	"sort"

	"github.com/bdougie/framegrab/internal/models"
)

const defaultSearchLimit = 5

// cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// rank orders records with embeddings by similarity to the query.
func rank(records []models.FrameRecord, q SearchQuery) []models.SimilarFrame {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	var results []models.SimilarFrame
	for _, rec := range records {
		if rec.ID == q.ExcludeID || len(rec.Embedding) == 0 {
			continue
		}
		results = append(results, models.SimilarFrame{
			ID:          rec.ID,
			Timestamp:   rec.Timestamp,
			FileName:    rec.FileName,
			Description: rec.Description,
			Similarity:  cosine(q.Embedding, rec.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].Timestamp < results[j].Timestamp
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results
}
