package search

import "fmt"

// highQualityBar is the similarity above which a vector hit counts as
// high quality for confidence scoring.
const highQualityBar = 0.8

// Quality summarises how trustworthy a retrieval set is.
type Quality struct {
	HasRelevantResults bool    `json:"has_relevant_results"`
	Confidence         float64 `json:"confidence"`
	Summary            string  `json:"summary"`
}

// Evaluate scores a retrieval set. High-quality vector hits dominate the
// confidence, plain vector hits contribute through their mean similarity,
// and web-only results score a flat floor.
func Evaluate(results []HybridResult) Quality {
	var (
		vectorCount int
		webCount    int
		highQuality int
		simSum      float64
	)
	for _, r := range results {
		switch r.Source {
		case SourceVector:
			vectorCount++
			simSum += r.Similarity
			if r.Similarity > highQualityBar {
				highQuality++
			}
		case SourceWeb:
			webCount++
		}
	}

	var confidence float64
	switch {
	case highQuality > 0:
		confidence = 0.8 + float64(highQuality)*0.05
	case vectorCount > 0:
		confidence = 0.4 + (simSum/float64(vectorCount))*0.4
	case webCount > 0:
		confidence = 0.3
	}
	if confidence > 1 {
		confidence = 1
	}

	return Quality{
		HasRelevantResults: highQuality > 0 || webCount > 0,
		Confidence:         confidence,
		Summary:            fmt.Sprintf("벡터 검색: %d개 (고품질: %d개), 웹 검색: %d개", vectorCount, highQuality, webCount),
	}
}
