package search

import (
	"fmt"
	"strings"
)

// NoResultsMessage is returned when there is nothing to build a prompt from.
const NoResultsMessage = "관련 정보를 찾을 수 없습니다."

// FormatForPrompt renders retrieval results as prompt context: up to three
// vector hits under a study-material heading, then up to two web hits with
// their source URLs.
func FormatForPrompt(results []HybridResult) string {
	if len(results) == 0 {
		return NoResultsMessage
	}

	var sections []string

	var vector, web []HybridResult
	for _, r := range results {
		switch r.Source {
		case SourceVector:
			vector = append(vector, r)
		case SourceWeb:
			web = append(web, r)
		}
	}

	if len(vector) > 0 {
		sections = append(sections, "**학습 자료에서:**")
		for i, r := range vector {
			if i >= 3 {
				break
			}
			fileName := r.FileName
			if fileName == "" {
				fileName = "파일명 없음"
			}
			sections = append(sections, fmt.Sprintf("%d. [%s] (유사도: %.1f%%)", i+1, fileName, r.Similarity*100))
			sections = append(sections, truncate(r.Content, 300))
			sections = append(sections, "")
		}
	}

	if len(web) > 0 {
		sections = append(sections, "**추가 참고자료:**")
		for i, r := range web {
			if i >= 2 {
				break
			}
			title := r.Title
			if title == "" {
				title = "제목 없음"
			}
			sections = append(sections, fmt.Sprintf("%d. %s", i+1, title))
			if r.URL != "" {
				sections = append(sections, fmt.Sprintf("   출처: %s", r.URL))
			}
			sections = append(sections, truncate(r.Content, 200))
			sections = append(sections, "")
		}
	}

	return strings.Join(sections, "\n")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}
