package manager

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"github.com/shell-sorter/shellsorter/internal/models"
)

// SearchResult is a camera with its match score
type SearchResult struct {
	Camera models.CameraRecord `json:"camera"`
	Score  float64             `json:"score"`
}

// Search ranks known cameras against a free-text query matched on name,
// hostname and hardware id. An empty query returns every camera.
func (m *Manager) Search(query string, limit int) []SearchResult {
	if limit <= 0 {
		limit = 10
	}
	q := strings.ToLower(strings.TrimSpace(query))

	results := []SearchResult{}
	for _, c := range m.List() {
		score := 1.0
		if q != "" {
			score = max(matchScore(c.Name, q), matchScore(c.Hostname, q), matchScore(c.HardwareID, q))
		}
		if score > 0 {
			results = append(results, SearchResult{Camera: c, Score: score})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > limit {
		results = results[:limit]
	}

	m.logger.Debug("searched cameras", "query", query, "results", len(results))
	return results
}

// matchScore grades how well field matches a lowercased query
func matchScore(field, q string) float64 {
	if field == "" {
		return 0
	}
	f := strings.ToLower(field)

	switch {
	case f == q:
		return 1.0
	case strings.HasPrefix(f, q):
		return 0.85
	case strings.Contains(f, q):
		return 0.75
	case fuzzy.MatchNormalizedFold(q, f):
		return 0.6
	}

	if d := fuzzy.LevenshteinDistance(q, f); d <= len(q)/3 {
		return 0.4
	}
	return 0
}
