package retrieval

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/ai"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
)

type fakeEmbedder struct {
	vectors map[string][]float32
	def     []float32
	calls   [][]string
	err     error
}

func (f *fakeEmbedder) ModelName() string {
	return "fake"
}

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) (*ai.EmbedResult, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := &ai.EmbedResult{}
	for _, text := range texts {
		v, ok := f.vectors[text]
		if !ok {
			v = f.def
		}
		out.Records = append(out.Records, ai.Embedding{Text: text, Vector: v})
		out.TotalTokens += len(strings.Fields(text))
	}
	return out, nil
}

func TestReadLines(t *testing.T) {
	got := ReadLines("  first line \n\n\t\nsecond\r\n   \nthird")
	require.Equal(t, []string{"first line", "second", "third"}, got)
	require.Empty(t, ReadLines(""))
	require.Empty(t, ReadLines("\n \n"))
}

func TestReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello world\n"), 0o644))
	got, err := ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, []string{"hello world"}, got)
}

func repeat(n int) string {
	return strings.Repeat("x", n)
}

func checkPartition(t *testing.T, texts []string, budget int) [][]string {
	t.Helper()
	batches := PartitionByBudget(texts, budget)
	var flat []string
	for _, batch := range batches {
		require.NotEmpty(t, batch)
		sum := 0
		for _, text := range batch {
			sum += textLen(text)
		}
		if len(batch) > 1 {
			require.LessOrEqual(t, sum, budget)
		}
		flat = append(flat, batch...)
	}
	if len(texts) == 0 {
		require.Empty(t, flat)
	} else {
		require.Equal(t, texts, flat)
	}
	return batches
}

func TestPartitionByBudget(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
		budget  int
		want    [][]int
	}{
		{name: "empty", lengths: nil, budget: 10, want: nil},
		{name: "total under budget keeps last chunk", lengths: []int{3, 3, 3}, budget: 10, want: [][]int{{3, 3, 3}}},
		{name: "exact fit", lengths: []int{5, 5}, budget: 10, want: [][]int{{5, 5}}},
		{name: "split", lengths: []int{6, 6, 6}, budget: 10, want: [][]int{{6}, {6}, {6}}},
		{name: "greedy", lengths: []int{4, 4, 4, 4, 1}, budget: 10, want: [][]int{{4, 4}, {4, 4, 1}}},
		{name: "oversized chunk alone", lengths: []int{2, 15, 2, 2}, budget: 10, want: [][]int{{2}, {15}, {2, 2}}},
		{name: "trailing partial batch kept", lengths: []int{9, 9, 1}, budget: 10, want: [][]int{{9}, {9, 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			texts := make([]string, 0, len(tt.lengths))
			for _, n := range tt.lengths {
				texts = append(texts, repeat(n))
			}
			batches := checkPartition(t, texts, tt.budget)
			var got [][]int
			for _, batch := range batches {
				var lens []int
				for _, text := range batch {
					lens = append(lens, len(text))
				}
				got = append(got, lens)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestPartitionByBudgetRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := rng.Intn(30)
		texts := make([]string, 0, n)
		for i := 0; i < n; i++ {
			texts = append(texts, repeat(1+rng.Intn(120)))
		}
		checkPartition(t, texts, 50+rng.Intn(200))
	}
}

func TestPartitionCountsCharactersNotBytes(t *testing.T) {
	texts := []string{"你好你好你", "你好你好你"}
	require.Len(t, PartitionByBudget(texts, 10), 1)
}

func TestEmbedChunksSumsUsageInOrder(t *testing.T) {
	emb := &fakeEmbedder{def: []float32{1, 0}}
	texts := []string{"a b", repeat(8), "c", "d e f"}
	res, err := EmbedChunks(context.Background(), emb, texts, 10)
	require.NoError(t, err)
	require.Len(t, emb.calls, 3)
	got := make([]string, 0, len(res.Records))
	for _, rec := range res.Records {
		got = append(got, rec.Text)
	}
	require.Equal(t, texts, got)
	require.Equal(t, 7, res.TotalTokens)
}

func TestEmbedChunksPropagatesError(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("boom")}
	_, err := EmbedChunks(context.Background(), emb, []string{"a"}, 10)
	require.ErrorContains(t, err, "boom")
}

func TestFlatIndexRoundTrip(t *testing.T) {
	vectors := [][]float32{{0, 0}, {1, 0}, {0, 1}, {3, 4}, {-2, 1}}
	index, err := BuildFlatIndex(vectors)
	require.NoError(t, err)
	for i, v := range vectors {
		hits, err := index.Search(v, 3)
		require.NoError(t, err)
		require.Len(t, hits, 3)
		require.Equal(t, i, hits[0].Position)
		require.Zero(t, hits[0].Distance)
		for j := 1; j < len(hits); j++ {
			require.LessOrEqual(t, hits[j-1].Distance, hits[j].Distance)
		}
	}
}

func TestFlatIndexFewerThanK(t *testing.T) {
	index, err := BuildFlatIndex([][]float32{{0}, {2}})
	require.NoError(t, err)
	hits, err := index.Search([]float32{1.5}, 15)
	require.NoError(t, err)
	require.Equal(t, []Hit{{Position: 1, Distance: 0.25}, {Position: 0, Distance: 2.25}}, hits)
}

func TestFlatIndexTiesKeepConstructionOrder(t *testing.T) {
	index, err := BuildFlatIndex([][]float32{{1}, {-1}, {1}})
	require.NoError(t, err)
	hits, err := index.Search([]float32{0}, 3)
	require.NoError(t, err)
	require.Equal(t, 0, hits[0].Position)
	require.Equal(t, 1, hits[1].Position)
	require.Equal(t, 2, hits[2].Position)
}

func TestFlatIndexErrors(t *testing.T) {
	empty, err := BuildFlatIndex(nil)
	require.NoError(t, err)
	_, err = empty.Search([]float32{1}, 1)
	require.ErrorIs(t, err, ErrIndexNotReady)
	require.ErrorIs(t, err, appErr.ErrNotReady)

	var unbuilt *FlatIndex
	_, err = unbuilt.Search([]float32{1}, 1)
	require.ErrorIs(t, err, ErrIndexNotReady)

	_, err = BuildFlatIndex([][]float32{{1, 2}, {1}})
	require.ErrorIs(t, err, ErrDimensionMismatch)

	index, err := BuildFlatIndex([][]float32{{1, 2}})
	require.NoError(t, err)
	_, err = index.Search([]float32{1}, 1)
	require.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = index.Search([]float32{1, 2}, 0)
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestWindowAndTruncationBoundary(t *testing.T) {
	chunks := []string{repeat(1000), repeat(1000), repeat(1000), repeat(1000)}
	expanded := ExpandWindows(chunks, []Hit{{Position: 0}}, 4)
	require.Len(t, expanded, 4)
	kept := TruncateToBudget(expanded, 2500)
	require.Len(t, kept, 3)
}

func TestTruncateToBudgetWithinBudget(t *testing.T) {
	chunks := []string{"ab", "cd"}
	require.Equal(t, chunks, TruncateToBudget(chunks, 4))
	require.Equal(t, []string{"ab", "cd"}, TruncateToBudget([]string{"ab", "cd", "ef"}, 3))
}

func TestExpandWindowsKeepsDuplicates(t *testing.T) {
	chunks := []string{"a", "b", "c", "d"}
	got := ExpandWindows(chunks, []Hit{{Position: 1}, {Position: 0}, {Position: 3}}, 2)
	require.Equal(t, []string{"b", "c", "a", "b", "d"}, got)
}

func TestAssemble(t *testing.T) {
	emb := &fakeEmbedder{
		vectors: map[string][]float32{
			"alpha": {0, 0},
			"beta":  {10, 10},
			"gamma": {20, 20},
			"query": {19, 19},
		},
	}
	records := []ai.Embedding{
		{Text: "alpha", Vector: []float32{0, 0}},
		{Text: "beta", Vector: []float32{10, 10}},
		{Text: "gamma", Vector: []float32{20, 20}},
	}
	doc, err := NewDocumentIndex("h", records)
	require.NoError(t, err)

	a := NewAssembler(emb, AssemblerConfig{TopK: 2, Window: 2, Budget: 100})
	got, err := a.Assemble(context.Background(), "query", doc)
	require.NoError(t, err)
	require.Equal(t, []string{"gamma", "beta", "gamma"}, got.Chunks)
	require.Equal(t, "gammabetagamma", got.Text)
	require.Equal(t, 1, got.Tokens)
}

func TestAssembleNotReady(t *testing.T) {
	a := NewAssembler(&fakeEmbedder{def: []float32{1}}, AssemblerConfig{})
	_, err := a.Assemble(context.Background(), "q", nil)
	require.ErrorIs(t, err, appErr.ErrNotReady)

	empty, err := NewDocumentIndex("h", nil)
	require.NoError(t, err)
	_, err = a.Assemble(context.Background(), "q", empty)
	require.ErrorIs(t, err, appErr.ErrNotReady)
}

func TestHelloWorldPipeline(t *testing.T) {
	chunks := ReadLines("hello world")
	require.Equal(t, []string{"hello world"}, chunks)

	emb := &fakeEmbedder{def: []float32{1, 0, 0}}
	res, err := EmbedChunks(context.Background(), emb, chunks, DefaultEmbedBudget)
	require.NoError(t, err)
	doc, err := NewDocumentIndex("h", res.Records)
	require.NoError(t, err)
	require.Equal(t, 1, doc.Index.Len())

	hits, err := doc.Index.Search([]float32{1, 0, 0}, DefaultTopK)
	require.NoError(t, err)
	require.Equal(t, 0, hits[0].Position)

	got, err := NewAssembler(emb, AssemblerConfig{}).Assemble(context.Background(), "hello", doc)
	require.NoError(t, err)
	require.Equal(t, "hello world", got.Text)
}

type modelEmbedder struct {
	fakeEmbedder
	models []string
}

func (m *modelEmbedder) Embed(ctx context.Context, texts []string) (*ai.EmbedResult, error) {
	res, err := m.fakeEmbedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	res.Model = m.models[0]
	if len(m.models) > 1 {
		m.models = m.models[1:]
	}
	return res, nil
}

func TestEmbedChunksRecordsModel(t *testing.T) {
	res, err := EmbedChunks(context.Background(), &fakeEmbedder{def: []float32{1}}, []string{"a"}, 10)
	require.NoError(t, err)
	require.Equal(t, "fake", res.Model)

	emb := &modelEmbedder{fakeEmbedder: fakeEmbedder{def: []float32{1}}, models: []string{"small", "large"}}
	_, err = EmbedChunks(context.Background(), emb, []string{"aaaa", "bbbb"}, 4)
	require.ErrorIs(t, err, ErrMixedModels)
	require.ErrorIs(t, err, appErr.ErrUpstream)
}

func TestAssembleRefusesForeignQuery(t *testing.T) {
	doc, err := NewDocumentIndex("h", []ai.Embedding{
		{Text: "alpha", Vector: []float32{0, 0}},
		{Text: "beta", Vector: []float32{1, 1}},
	})
	require.NoError(t, err)
	doc.Model = "small"

	tests := []struct {
		name   string
		models []string
		vector []float32
	}{
		{name: "other model", models: []string{"large"}, vector: []float32{0, 0}},
		{name: "other dims", models: []string{"small"}, vector: []float32{0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emb := &modelEmbedder{fakeEmbedder: fakeEmbedder{def: tt.vector}, models: tt.models}
			_, err := NewAssembler(emb, AssemblerConfig{}).Assemble(context.Background(), "q", doc)
			require.ErrorIs(t, err, ErrQueryMismatch)
			require.ErrorIs(t, err, appErr.ErrUpstream)
			require.False(t, appErr.IsValidation(err))
		})
	}

	emb := &modelEmbedder{fakeEmbedder: fakeEmbedder{def: []float32{1, 1}}, models: []string{"small"}}
	got, err := NewAssembler(emb, AssemblerConfig{TopK: 1, Window: 1}).Assemble(context.Background(), "q", doc)
	require.NoError(t, err)
	require.Equal(t, []string{"beta"}, got.Chunks)
}
