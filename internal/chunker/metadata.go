package chunker

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// examPattern matches exam paper year/round markers such as "2023년 2회".
var examPattern = regexp.MustCompile(`(\d{4})년.*?(\d+)회`)

// subjects are the five fixed exam subjects recognised in uploaded material.
var subjects = []string{
	"소프트웨어 설계",
	"소프트웨어 개발",
	"데이터베이스 구축",
	"프로그래밍 언어 활용",
	"정보시스템 구축관리",
}

// ExamInfo identifies the exam paper a document was taken from.
type ExamInfo struct {
	Year  int `json:"year"`
	Round int `json:"round"`
}

// Metadata is what can be inferred about a document before chunking it.
type Metadata struct {
	Exam         *ExamInfo
	Subject      string
	WordCount    int
	HasQuestions bool
	IsTextbook   bool
}

// ExtractMetadata inspects document content and its source name for exam
// markers, a known subject and question-style structure. Content wins over
// the file name when both match.
func ExtractMetadata(fileName, content string) Metadata {
	var exam *ExamInfo
	m := examPattern.FindStringSubmatch(content)
	if m == nil {
		m = examPattern.FindStringSubmatch(fileName)
	}
	if m != nil {
		year, _ := strconv.Atoi(m[1])
		round, _ := strconv.Atoi(m[2])
		exam = &ExamInfo{Year: year, Round: round}
	}

	var subject string
	for _, s := range subjects {
		if strings.Contains(content, s) || strings.Contains(fileName, s) {
			subject = s
			break
		}
	}

	return Metadata{
		Exam:         exam,
		Subject:      subject,
		WordCount:    utf8.RuneCountInString(content),
		HasQuestions: strings.Contains(content, "문제") && strings.Contains(content, "번"),
		IsTextbook:   !strings.Contains(content, "문제") || strings.Contains(content, "장") || strings.Contains(content, "절"),
	}
}
