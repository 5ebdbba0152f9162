package memory

import (
	"math"
	"sort"

	"github.com/recomind-agent-poc/server/internal/agent/model"
)

// RankBySimilarity orders records by cosine similarity to the query vector,
// descending, ties broken by recency descending, and returns at most k.
// Records whose embedding dimension does not match the query are dropped.
func RankBySimilarity(records []model.MemoryRecord, query []float32, k int) []model.MemoryRecord {
	if k <= 0 || len(records) == 0 {
		return nil
	}

	scored := make([]model.MemoryRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) != len(query) || len(query) == 0 {
			continue
		}
		rec.Score = cosine(rec.Embedding, query)
		scored = append(scored, rec)
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Timestamp.After(scored[j].Timestamp)
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	// recalled records travel without their embeddings
	for i := range scored {
		scored[i].Embedding = nil
	}
	return scored
}

func cosine(a, b []float32) float64 {
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
