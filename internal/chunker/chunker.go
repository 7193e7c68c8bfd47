package chunker

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ChunkType selects the splitting strategy.
type ChunkType string

const (
	TypeAuto     ChunkType = "auto"
	TypeTextbook ChunkType = "textbook"
	TypeQuestion ChunkType = "question"
	TypeMixed    ChunkType = "mixed"
)

const (
	minQuestionChunk = 50
	minTextbookChunk = 100
	maxHealthyChunk  = 5000
)

// questionPattern matches numbered question starts at line boundaries,
// both "12." and "12번" styles.
var questionPattern = regexp.MustCompile(`(?m)(?:^|\n)(?:\d+\.|\d+번)`)

// Chunk is one searchable unit of a document.
type Chunk struct {
	ID          string
	Content     string
	Index       int
	Total       int
	StartOffset int
	EndOffset   int
	Type        ChunkType
	Subject     string
	Exam        *ExamInfo
}

// Options control chunk sizing.
type Options struct {
	MaxChunkSize int
	Overlap      int
	Type         ChunkType
}

// DefaultOptions returns the sizing used for textbook material.
func DefaultOptions() Options {
	return Options{MaxChunkSize: 2000, Overlap: 200, Type: TypeAuto}
}

// Split breaks document content into chunks. The strategy is chosen from the
// detected metadata when Type is auto: question papers split per question,
// textbooks by sliding window. Malformed input never fails; at worst the
// result is empty.
func Split(content, sourceName string, opts Options) []Chunk {
	if opts.MaxChunkSize <= 0 {
		opts.MaxChunkSize = 2000
	}
	if opts.Overlap < 0 || opts.Overlap >= opts.MaxChunkSize {
		opts.Overlap = 200
	}

	meta := ExtractMetadata(sourceName, content)

	chunkType := opts.Type
	if chunkType == "" || chunkType == TypeAuto {
		switch {
		case meta.HasQuestions:
			chunkType = TypeQuestion
		case meta.IsTextbook:
			chunkType = TypeTextbook
		default:
			chunkType = TypeMixed
		}
	}

	switch chunkType {
	case TypeQuestion:
		return splitQuestions(content, sourceName, meta)
	case TypeTextbook:
		return splitTextbook(content, sourceName, meta, opts)
	default:
		// Mixed falls back on the question splitter when questions are
		// present, otherwise on the textbook window.
		if meta.HasQuestions {
			return splitQuestions(content, sourceName, meta)
		}
		return splitTextbook(content, sourceName, meta, opts)
	}
}

// splitQuestions cuts the content at numbered question boundaries. Fragments
// shorter than the minimum are discarded, so chunk indexes can be sparse
// relative to Total.
func splitQuestions(content, sourceName string, meta Metadata) []Chunk {
	bounds := questionPattern.FindAllStringIndex(content, -1)
	if len(bounds) == 0 {
		return splitTextbook(content, sourceName, meta, DefaultOptions())
	}

	var chunks []Chunk
	for i, b := range bounds {
		start := b[0]
		end := len(content)
		if i < len(bounds)-1 {
			end = bounds[i+1][0]
		}
		body := strings.TrimSpace(content[start:end])
		if utf8.RuneCountInString(body) <= minQuestionChunk {
			continue
		}
		chunks = append(chunks, Chunk{
			ID:          fmt.Sprintf("%s_question_%d", sourceName, i+1),
			Content:     body,
			Index:       i,
			Total:       len(bounds),
			StartOffset: start,
			EndOffset:   end,
			Type:        TypeQuestion,
			Subject:     meta.Subject,
			Exam:        meta.Exam,
		})
	}
	return chunks
}

// splitTextbook slides a fixed-size window over the content with overlap.
// The window end is pulled back to the latest sentence boundary when one
// falls past 70% of the window, so chunks end on whole sentences where the
// text allows it.
func splitTextbook(content, sourceName string, meta Metadata, opts Options) []Chunk {
	runes := []rune(content)
	step := opts.MaxChunkSize - opts.Overlap
	total := (len(runes) + step - 1) / step

	var chunks []Chunk
	currentOffset := 0
	chunkIndex := 0
	for currentOffset < len(runes) {
		end := currentOffset + opts.MaxChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		window := runes[currentOffset:end]

		if end < len(runes) {
			if cut := lastSentenceEnd(window); cut > int(float64(opts.MaxChunkSize)*0.7) {
				window = window[:cut+1]
			}
		}

		body := strings.TrimSpace(string(window))
		if utf8.RuneCountInString(body) > minTextbookChunk {
			chunks = append(chunks, Chunk{
				ID:          fmt.Sprintf("%s_chunk_%d", sourceName, chunkIndex),
				Content:     body,
				Index:       chunkIndex,
				Total:       total,
				StartOffset: currentOffset,
				EndOffset:   currentOffset + len(window),
				Type:        TypeTextbook,
				Subject:     meta.Subject,
				Exam:        meta.Exam,
			})
			chunkIndex++
		}

		// the pullback can trim the window below the overlap; a full-window
		// step keeps the offset moving forward
		advance := len(window) - opts.Overlap
		if advance <= 0 {
			advance = len(window)
		}
		currentOffset += advance

		// forward-progress guard for pathological inputs
		if currentOffset >= len(runes)-opts.Overlap {
			break
		}
	}
	return chunks
}

func lastSentenceEnd(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?', '\n':
			return i
		}
	}
	return -1
}

// Report is the outcome of a chunk quality check.
type Report struct {
	OK     bool
	Issues []string
}

// ValidateQuality flags chunk sets that would search poorly: no chunks at
// all, more than 30% short chunks, oversized chunks, or empty chunks.
func ValidateQuality(chunks []Chunk) Report {
	var issues []string

	if len(chunks) == 0 {
		issues = append(issues, "no chunks were produced")
		return Report{OK: false, Issues: issues}
	}

	short := 0
	long := 0
	empty := 0
	for _, c := range chunks {
		n := utf8.RuneCountInString(c.Content)
		if n < minQuestionChunk {
			short++
		}
		if n > maxHealthyChunk {
			long++
		}
		if strings.TrimSpace(c.Content) == "" {
			empty++
		}
	}

	if float64(short) > float64(len(chunks))*0.3 {
		issues = append(issues, fmt.Sprintf("%d%% of chunks are shorter than %d characters", short*100/len(chunks), minQuestionChunk))
	}
	if long > 0 {
		issues = append(issues, fmt.Sprintf("%d chunks exceed the recommended size of %d characters", long, maxHealthyChunk))
	}
	if empty > 0 {
		issues = append(issues, fmt.Sprintf("%d chunks are empty", empty))
	}

	return Report{OK: len(issues) == 0, Issues: issues}
}
