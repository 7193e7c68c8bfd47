package materials

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/hagwon-ai/hagwon/internal/cache"
	"github.com/hagwon-ai/hagwon/provider"
)

// GoalType is what the learner is working toward.
type GoalType string

const (
	GoalCertification GoalType = "certification"
	GoalSkill         GoalType = "skill_improvement"
)

// Source tells the caller where a material set came from.
type Source string

const (
	SourceCache     Source = "cache"
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
)

// Room is the study-room scope materials are generated for.
type Room struct {
	ID       string   `json:"id"`
	Subject  string   `json:"subject"`
	GoalType GoalType `json:"goal_type"`
}

// Progress is the learner state that versions the cache.
type Progress struct {
	CurrentStep   int         `json:"current_step"`
	Level         cache.Level `json:"level"`
	TotalProgress int         `json:"total_progress"`
}

// StudyMaterial is one recommended learning item.
type StudyMaterial struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Content       string   `json:"content"`
	Type          string   `json:"type"`
	Difficulty    string   `json:"difficulty"`
	EstimatedTime int      `json:"estimatedTime"`
	Tags          []string `json:"tags"`
	Priority      int      `json:"priority"`
	RoadmapStep   int      `json:"roadmapStep,omitempty"`
}

// MaterialCategory groups materials under a named heading.
type MaterialCategory struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Icon        string          `json:"icon"`
	Description string          `json:"description"`
	Materials   []StudyMaterial `json:"materials"`
}

var jsonBlock = regexp.MustCompile("```json\\s*([\\s\\S]*?)\\s*```")

var categoryTypes = map[string]string{
	"concepts":  "concept",
	"practice":  "practice",
	"exams":     "exam",
	"tips":      "tip",
	"tutorials": "tutorial",
	"resources": "resource",
}

// Engine generates study material recommendations, caching results per room
// and learner state. Generation failures fall back to a deterministic set so
// the caller always gets materials.
type Engine struct {
	llm    provider.Provider
	cache  *cache.Cache[[]MaterialCategory]
	logger *log.Logger
}

func NewEngine(llm provider.Provider, c *cache.Cache[[]MaterialCategory]) *Engine {
	return &Engine{
		llm:    llm,
		cache:  c,
		logger: log.New(log.Writer(), "[MATERIALS] ", log.LstdFlags),
	}
}

func (e *Engine) cacheKey(room Room, progress Progress) cache.Key {
	return cache.Key{
		ScopeID:   room.ID,
		Signature: fmt.Sprintf("%s_%s_%d", room.Subject, room.GoalType, progress.CurrentStep),
		Level:     progress.Level,
		Version:   e.cache.VersionFor(progress.TotalProgress, progress.Level),
	}
}

// Generate returns materials for the room, from cache when possible. The
// returned Source distinguishes cached, freshly generated and fallback sets;
// error is only set alongside a fallback, never with an empty result.
func (e *Engine) Generate(ctx context.Context, room Room, progress Progress) ([]MaterialCategory, Source, error) {
	key := e.cacheKey(room, progress)
	if cached, ok := e.cache.Get(key); ok {
		return cached, SourceCache, nil
	}

	answer, err := e.llm.ChatCompletion(ctx, []provider.Message{
		{Role: "system", Content: buildMaterialPrompt(room, progress)},
	}, provider.CompletionOptions{Temperature: 0.4, MaxTokens: 3000})
	if err != nil {
		e.logger.Printf("material generation failed for room %s: %v", room.ID, err)
		fallback := FallbackMaterials(room)
		_ = e.cache.Set(key, fallback)
		return fallback, SourceFallback, fmt.Errorf("generate materials: %w", err)
	}

	categories, err := parseMaterialResponse(answer, progress.CurrentStep)
	if err != nil {
		e.logger.Printf("material response parse failed for room %s: %v", room.ID, err)
		fallback := FallbackMaterials(room)
		_ = e.cache.Set(key, fallback)
		return fallback, SourceFallback, fmt.Errorf("parse materials: %w", err)
	}

	_ = e.cache.Set(key, categories)
	return categories, SourceGenerated, nil
}

// Invalidate drops cached materials for a room, e.g. when its goal changes.
func (e *Engine) Invalidate(roomID string) int {
	return e.cache.InvalidateScope(roomID)
}

// ProgressChanged invalidates the room cache only when the progress change
// crosses a version quantum.
func (e *Engine) ProgressChanged(roomID string, oldProgress, newProgress int) bool {
	return e.cache.InvalidateOnLevelCrossing(roomID, oldProgress, newProgress)
}

func buildMaterialPrompt(room Room, progress Progress) string {
	isExam := room.GoalType == GoalCertification

	goal := "스킬 향상"
	priority := "실무 활용 가능한 내용"
	if isExam {
		goal = "자격증 취득"
		priority = "시험 출제 경향을 반영한 내용"
	}

	stepInfo := "초기 학습 단계입니다."
	if progress.CurrentStep > 0 {
		stepInfo = fmt.Sprintf("현재 학습 단계는 %d단계입니다.", progress.CurrentStep)
	}

	extraCategories := `,
    {
      "id": "tutorials",
      "name": "실습 가이드",
      "icon": "🛠️",
      "description": "단계별 실습 가이드",
      "materials": []
    },
    {
      "id": "resources",
      "name": "참고 자료",
      "icon": "📚",
      "description": "추가 학습 참고 자료",
      "materials": []
    }`
	if isExam {
		extraCategories = `,
    {
      "id": "exams",
      "name": "기출 문제",
      "icon": "📝",
      "description": "실제 시험 기출 문제",
      "materials": []
    },
    {
      "id": "tips",
      "name": "시험 팁",
      "icon": "🎯",
      "description": "합격을 위한 실전 팁",
      "materials": []
    }`
	}

	return fmt.Sprintf(`당신은 %s 분야의 전문 교육 컨텐츠 제작자입니다.
다음 조건에 맞는 맞춤형 학습 자료를 생성해주세요.

📋 **학습자 정보**:
- **학습 분야**: %s
- **목표 유형**: %s
- **현재 수준**: %s
- **학습 진도**: %s

📚 **요구사항**:
1. 각 카테고리별로 3-5개의 실용적인 학습 자료를 생성하세요
2. 현재 학습 단계에 적합한 난이도로 구성하세요
3. 실제 도움이 되는 구체적인 내용을 포함하세요
4. %s을 우선하세요

📝 **응답 형식** (다음 JSON 형식으로 정확히 응답해주세요):
`+"```json"+`
{
  "categories": [
    {
      "id": "concepts",
      "name": "핵심 개념",
      "icon": "💡",
      "description": "기본 이론과 핵심 개념 설명",
      "materials": [
        {
          "title": "자료 제목",
          "description": "자료 설명 (50자 이내)",
          "content": "실제 학습 내용 (200자 이상 상세 설명)",
          "difficulty": "beginner|intermediate|advanced",
          "estimatedTime": 숫자,
          "tags": ["태그1", "태그2"],
          "priority": 숫자
        }
      ]
    }%s
  ]
}
`+"```"+`

중요: 응답은 반드시 유효한 JSON 형식이어야 하며, 실제 도움이 되는 구체적인 내용을 한국어로 작성해주세요.`,
		room.Subject, room.Subject, goal, progress.Level, stepInfo, priority, extraCategories)
}

func parseMaterialResponse(response string, currentStep int) ([]MaterialCategory, error) {
	jsonStr := response
	if m := jsonBlock.FindStringSubmatch(response); m != nil {
		jsonStr = m[1]
	}

	var parsed struct {
		Categories []MaterialCategory `json:"categories"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(jsonStr)), &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Categories) == 0 {
		return nil, fmt.Errorf("no categories in response")
	}

	for ci := range parsed.Categories {
		cat := &parsed.Categories[ci]
		for mi := range cat.Materials {
			mat := &cat.Materials[mi]
			mat.ID = fmt.Sprintf("%s_%d", cat.ID, mi+1)
			if mat.Title == "" {
				mat.Title = "제목 없음"
			}
			mat.Type = categoryType(cat.ID)
			if mat.Difficulty == "" {
				mat.Difficulty = "beginner"
			}
			if mat.EstimatedTime == 0 {
				mat.EstimatedTime = 10
			}
			if mat.Tags == nil {
				mat.Tags = []string{}
			}
			if mat.Priority == 0 {
				mat.Priority = 5
			}
			mat.RoadmapStep = currentStep
		}
	}
	return parsed.Categories, nil
}

func categoryType(categoryID string) string {
	if t, ok := categoryTypes[categoryID]; ok {
		return t
	}
	return "concept"
}

// FallbackMaterials is the deterministic material set used when generation
// fails. Certification rooms get exam-focused categories, skill rooms get
// tutorials and resources.
func FallbackMaterials(room Room) []MaterialCategory {
	base := []MaterialCategory{
		{
			ID:          "concepts",
			Name:        "핵심 개념",
			Icon:        "💡",
			Description: "기본 이론과 핵심 개념 설명",
			Materials: []StudyMaterial{{
				ID:            "concept_1",
				Title:         fmt.Sprintf("%s 기본 개념", room.Subject),
				Description:   "핵심 개념과 용어 정리",
				Content:       fmt.Sprintf("%s 분야의 기본 개념과 핵심 용어들을 체계적으로 정리한 자료입니다. 초보자도 이해하기 쉽게 설명되어 있습니다.", room.Subject),
				Type:          "concept",
				Difficulty:    "beginner",
				EstimatedTime: 15,
				Tags:          []string{"기초", "개념", "용어"},
				Priority:      9,
			}},
		},
		{
			ID:          "practice",
			Name:        "연습 문제",
			Icon:        "✏️",
			Description: "실력 향상을 위한 연습 문제",
			Materials: []StudyMaterial{{
				ID:            "practice_1",
				Title:         "기초 연습 문제",
				Description:   "개념 이해도를 점검하는 문제",
				Content:       "학습한 개념을 바탕으로 한 기초적인 연습 문제들입니다. 단계별로 난이도가 조정되어 있습니다.",
				Type:          "practice",
				Difficulty:    "beginner",
				EstimatedTime: 20,
				Tags:          []string{"연습", "문제"},
				Priority:      8,
			}},
		},
	}

	if room.GoalType == GoalCertification {
		return append(base,
			MaterialCategory{
				ID:          "exams",
				Name:        "기출 문제",
				Icon:        "📝",
				Description: "실제 시험 기출 문제",
				Materials: []StudyMaterial{{
					ID:            "exam_1",
					Title:         "최근 기출 문제",
					Description:   "실제 시험에 출제된 문제",
					Content:       "최근 시험에서 출제된 실제 문제들을 모아 정리했습니다. 해설과 함께 제공됩니다.",
					Type:          "exam",
					Difficulty:    "intermediate",
					EstimatedTime: 30,
					Tags:          []string{"기출", "시험"},
					Priority:      10,
				}},
			},
			MaterialCategory{
				ID:          "tips",
				Name:        "시험 팁",
				Icon:        "🎯",
				Description: "합격을 위한 실전 팁",
				Materials: []StudyMaterial{{
					ID:            "tip_1",
					Title:         "시험 합격 전략",
					Description:   "효과적인 시험 준비 방법",
					Content:       "시험 합격을 위한 체계적인 학습 전략과 시간 관리 방법을 제공합니다.",
					Type:          "tip",
					Difficulty:    "beginner",
					EstimatedTime: 10,
					Tags:          []string{"전략", "팁"},
					Priority:      7,
				}},
			},
		)
	}

	return append(base,
		MaterialCategory{
			ID:          "tutorials",
			Name:        "실습 가이드",
			Icon:        "🛠️",
			Description: "단계별 실습 가이드",
			Materials: []StudyMaterial{{
				ID:            "tutorial_1",
				Title:         "실습 가이드",
				Description:   "단계별 실습 방법",
				Content:       "초보자도 따라할 수 있는 단계별 실습 가이드입니다. 실제 예제와 함께 설명합니다.",
				Type:          "tutorial",
				Difficulty:    "beginner",
				EstimatedTime: 25,
				Tags:          []string{"실습", "가이드"},
				Priority:      8,
			}},
		},
		MaterialCategory{
			ID:          "resources",
			Name:        "참고 자료",
			Icon:        "📚",
			Description: "추가 학습 참고 자료",
			Materials: []StudyMaterial{{
				ID:            "resource_1",
				Title:         "추가 학습 자료",
				Description:   "심화 학습을 위한 자료",
				Content:       "더 깊이 있는 학습을 원하는 분들을 위한 추가 자료와 참고 링크를 제공합니다.",
				Type:          "resource",
				Difficulty:    "intermediate",
				EstimatedTime: 15,
				Tags:          []string{"참고", "심화"},
				Priority:      6,
			}},
		},
	)
}
