package rag

import (
	"fmt"
	"strings"

	"github.com/hagwon-ai/hagwon/internal/search"
)

// Fixed answers for the paths that never reach the completion model.
const (
	NoInfoAnswer  = "죄송합니다. 현재 학습 자료에서 관련 정보를 찾을 수 없습니다. 다른 질문을 해보시거나, 더 구체적인 키워드를 사용해보세요."
	ApologyAnswer = "죄송합니다. 현재 답변을 생성할 수 없습니다. 잠시 후 다시 시도해주세요."
)

// contextText renders retrieval hits as numbered references for the prompt.
func contextText(sources []search.HybridResult) string {
	parts := make([]string, 0, len(sources))
	for i, s := range sources {
		switch s.Source {
		case search.SourceVector:
			parts = append(parts, fmt.Sprintf("[참조 %d] %s\n%s\n(유사도: %.1f%%)", i+1, s.FileName, s.Content, s.Similarity*100))
		case search.SourceWeb:
			ref := fmt.Sprintf("[참조 %d] %s\n%s", i+1, s.Title, s.Content)
			if s.URL != "" {
				ref += fmt.Sprintf("\n(출처: %s)", s.URL)
			}
			parts = append(parts, ref)
		}
	}
	return strings.Join(parts, "\n\n")
}

func directSystemPrompt(subject string) string {
	return fmt.Sprintf(`당신은 %s 분야의 전문 AI 튜터입니다.
제공된 학습 자료를 바탕으로 정확하고 구체적인 답변을 제공하세요.

**중요 지침:**
1. 제공된 참조 자료의 내용을 우선적으로 사용하세요
2. 정확한 정보만 제공하고, 확실하지 않은 내용은 명시하세요
3. 학습자의 수준을 고려하여 이해하기 쉽게 설명하세요
4. 필요시 참조 번호를 언급하여 출처를 명시하세요
5. 한국어로 자연스럽게 답변하세요`, subject)
}

func directUserPrompt(question string, sources []search.HybridResult) string {
	return fmt.Sprintf(`**질문**: %s

**참조 자료**:
%s

위 참조 자료를 바탕으로 질문에 대해 정확하고 자세히 답변해주세요.`, question, contextText(sources))
}

func contextualSystemPrompt(subject string) string {
	return fmt.Sprintf(`당신은 %s 분야의 전문 AI 튜터입니다.
제공된 학습 자료를 참고하되, 필요시 추가적인 전문 지식을 활용하여 완전한 답변을 제공하세요.

**중요 지침:**
1. 제공된 참조 자료의 관련 부분을 활용하세요
2. 참조 자료가 부족한 부분은 전문 지식으로 보완하세요
3. 어떤 부분이 참조 자료에서 온 것인지 구분해주세요
4. 학습 목표에 맞는 수준으로 설명하세요
5. 실용적이고 도움이 되는 정보를 제공하세요`, subject)
}

func contextualUserPrompt(question string, sources []search.HybridResult) string {
	return fmt.Sprintf(`**질문**: %s

**참조 자료**:
%s

위 참조 자료를 참고하되, 필요시 추가 지식을 활용하여 질문에 대해 완전하고 유용한 답변을 제공해주세요.`, question, contextText(sources))
}

func generalSystemPrompt(subject string) string {
	return fmt.Sprintf(`당신은 %s 분야의 전문 AI 튜터입니다.
특정 참조 자료는 없지만, 해당 분야의 전문 지식을 바탕으로 정확하고 유용한 답변을 제공하세요.

**중요 지침:**
1. %s 분야의 전문 지식을 활용하세요
2. 정확성을 최우선으로 하되, 확실하지 않은 내용은 명시하세요
3. 학습 목표와 수준에 적합한 설명을 제공하세요
4. 실용적이고 학습에 도움이 되는 내용을 포함하세요
5. 추가 학습 방향을 제시해주세요`, subject, subject)
}

func generalUserPrompt(question, subject, category string) string {
	return fmt.Sprintf(`**학습 분야**: %s (%s)
**질문**: %s

위 질문에 대해 전문적이고 정확한 답변을 제공해주세요.`, subject, category, question)
}
