package embedding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/hagwon-ai/hagwon/provider"
)

type fakeProvider struct {
	calls   int
	inputs  [][]string
	embedFn func(texts []string) ([][]float32, error)
}

func (f *fakeProvider) ChatCompletion(ctx context.Context, messages []provider.Message, opts provider.CompletionOptions) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (f *fakeProvider) StreamCompletion(ctx context.Context, messages []provider.Message, opts provider.CompletionOptions) (<-chan provider.StreamChunk, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeProvider) CreateEmbedding(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.inputs = append(f.inputs, texts)
	return f.embedFn(texts)
}

func unitVectors(dim int) func(texts []string) ([][]float32, error) {
	return func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range texts {
			vec := make([]float32, dim)
			vec[0] = 1
			out[i] = vec
		}
		return out, nil
	}
}

func TestPreprocessText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"  안녕   하세요  ", "안녕 하세요"},
		{"hello,  world!", "hello world"},
		{"데이터베이스(DB) 정규화?", "데이터베이스 DB 정규화"},
		{"\t\n줄바꿈\n포함\n", "줄바꿈 포함"},
		// punctuation becomes a boundary, it never glues tokens together
		{"TCP-IP", "TCP IP"},
		{"키/값 저장소", "키 값 저장소"},
	}
	for _, tc := range cases {
		if got := PreprocessText(tc.in); got != tc.want {
			t.Errorf("PreprocessText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestPreprocessTextCapsLength(t *testing.T) {
	long := strings.Repeat("가", 9000)
	got := PreprocessText(long)
	if n := len([]rune(got)); n != 8000 {
		t.Errorf("got %d runes, want 8000", n)
	}
}

func TestGenerateBatchSplitsCalls(t *testing.T) {
	fake := &fakeProvider{embedFn: unitVectors(4)}
	client := NewClient(fake, 4, 2)

	vecs, err := client.GenerateBatch(context.Background(), []string{"하나", "둘", "셋"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	if fake.calls != 2 {
		t.Errorf("got %d provider calls, want 2", fake.calls)
	}
	if len(fake.inputs[0]) != 2 || len(fake.inputs[1]) != 1 {
		t.Errorf("batch sizes %d/%d, want 2/1", len(fake.inputs[0]), len(fake.inputs[1]))
	}
}

func TestGenerateBatchRejectsWrongDimension(t *testing.T) {
	fake := &fakeProvider{embedFn: unitVectors(3)}
	client := NewClient(fake, 4, 16)

	if _, err := client.GenerateBatch(context.Background(), []string{"텍스트"}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestGenerateBatchRejectsNonFinite(t *testing.T) {
	fake := &fakeProvider{embedFn: func(texts []string) ([][]float32, error) {
		return [][]float32{{float32(math.NaN()), 0, 0, 0}}, nil
	}}
	client := NewClient(fake, 4, 16)

	if _, err := client.GenerateBatch(context.Background(), []string{"텍스트"}); err == nil {
		t.Fatal("expected non-finite value error")
	}
}

func TestGeneratePreprocessesInput(t *testing.T) {
	fake := &fakeProvider{embedFn: unitVectors(4)}
	client := NewClient(fake, 4, 16)

	if _, err := client.Generate(context.Background(), "  공백이   많은!!  텍스트  "); err != nil {
		t.Fatal(err)
	}
	if got := fake.inputs[0][0]; got != "공백이 많은 텍스트" {
		t.Errorf("provider received %q", got)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	if got := CosineSimilarity(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical vectors: got %f, want 1", got)
	}
	if got := CosineSimilarity(a, b); got != 0 {
		t.Errorf("orthogonal vectors: got %f, want 0", got)
	}
	if got := CosineSimilarity(a, []float32{1, 0}); got != 0 {
		t.Errorf("mismatched lengths: got %f, want 0", got)
	}
	if got := CosineSimilarity(a, []float32{0, 0, 0}); got != 0 {
		t.Errorf("zero vector: got %f, want 0", got)
	}
}
