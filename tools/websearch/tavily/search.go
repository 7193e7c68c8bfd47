package tavily

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const searchURL = "https://api.tavily.com/search"

// queryPrefix scopes every search to the exam domain.
const queryPrefix = "정보처리기사 "

// trustedDomains is the allow-list of sites worth citing to students.
var trustedDomains = []string{
	"www.kisa.or.kr",
	"www.tta.or.kr",
	"cafe.naver.com",
	"blog.naver.com",
	"tistory.com",
	"github.io",
}

// Result is one Tavily hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
	Snippet string `json:"snippet,omitempty"`
}

type Search struct {
	APIKey string
}

// Search queries Tavily with the domain prefix and trusted-site allow-list.
// Without an API key it returns no results, keeping retrieval degradable.
func (s Search) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	payload := map[string]any{
		"api_key":             s.APIKey,
		"query":               queryPrefix + query,
		"search_depth":        "basic",
		"include_answer":      false,
		"include_images":      false,
		"include_raw_content": false,
		"max_results":         maxResults,
		"include_domains":     trustedDomains,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, "POST", searchURL, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("web search API returned status: %d", resp.StatusCode)
	}

	var raw struct {
		Results []Result `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	out := raw.Results
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out, nil
}
