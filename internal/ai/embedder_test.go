package ai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeEmbedProvider struct {
	calls   int
	vectors [][]float32
	err     error
}

func (f *fakeEmbedProvider) Name() string { return "fake" }

func (f *fakeEmbedProvider) Embed(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vectors, nil
}

func l2(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestEmbedder_EmptyInputSkipsProvider(t *testing.T) {
	p := &fakeEmbedProvider{}
	out, err := NewEmbedder(p, "m", 0).Embed(context.Background(), nil, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Empty(t, out)
	require.Equal(t, 0, p.calls)
}

func TestEmbedder_NormalizesInOrder(t *testing.T) {
	p := &fakeEmbedProvider{vectors: [][]float32{{3, 4}, {0, 2}}}
	out, err := NewEmbedder(p, "m", 2).Embed(context.Background(), []string{"t1", "t2"}, TaskRetrievalDocument)
	require.NoError(t, err)
	require.Equal(t, 1, p.calls)
	require.Len(t, out, 2)
	require.InDelta(t, 1.0, l2(out[0]), 1e-6)
	require.InDelta(t, 1.0, l2(out[1]), 1e-6)
	require.InDelta(t, 0.6, out[0][0], 1e-6)
	require.InDelta(t, 1.0, out[1][1], 1e-6)
}

func TestEmbedder_FailuresAreBatchLevel(t *testing.T) {
	cases := map[string]*fakeEmbedProvider{
		"provider error": {err: errors.New("boom")},
		"count mismatch": {vectors: [][]float32{{1, 0}}},
		"dimension":      {vectors: [][]float32{{1, 0}, {1, 0, 0}}},
		"zero vector":    {vectors: [][]float32{{1, 0}, {0, 0}}},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := NewEmbedder(p, "m", 2).Embed(context.Background(), []string{"a", "b"}, "")
			require.Error(t, err)
			require.ErrorIs(t, err, ErrEmbedding)
			require.Nil(t, out)
		})
	}
}

func TestOpenAIEmbedProvider_SendsOneBatchAndOrdersByIndex(t *testing.T) {
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		var req openAIEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, []string{"a", "b"}, req.Input)
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	p, err := NewEmbedProvider("openai", map[string]interface{}{"api_key": "key", "base_url": srv.URL + "/v1"})
	require.NoError(t, err)
	out, err := NewEmbedder(p, "jina", 2).Embed(context.Background(), []string{"a", "b"}, TaskRetrievalQuery)
	require.NoError(t, err)
	require.Equal(t, 1, requests)
	require.Equal(t, []float32{1, 0}, out[0])
	require.Equal(t, []float32{0, 1}, out[1])
}

func TestOpenAIEmbedProvider_NoKeyIsUnavailable(t *testing.T) {
	p, err := NewEmbedProvider("openai", map[string]interface{}{})
	require.NoError(t, err)
	_, err = NewEmbedder(p, "m", 0).Embed(context.Background(), []string{"a"}, "")
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, ErrEmbedding)
}

func TestGroupEmbedder_FallsBack(t *testing.T) {
	bad := NewEmbedder(&fakeEmbedProvider{err: errors.New("down")}, "a", 0)
	good := NewEmbedder(&fakeEmbedProvider{vectors: [][]float32{{2, 0}}}, "b", 0)
	g := NewGroupEmbedder([]EmbedderEntry{{Name: "a", Embedder: bad}, {Name: "b", Embedder: good}})
	out, err := g.Embed(context.Background(), []string{"x"}, "")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 0}}, out)
	require.Equal(t, "a|b", g.ModelName())
}
