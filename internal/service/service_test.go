package service

import (
	"context"
	"errors"
	"hash/fnv"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/filestore"
	"github.com/xxxsen/ragchat/internal/model"
	appErr "github.com/xxxsen/ragchat/internal/pkg/errors"
	"github.com/xxxsen/ragchat/internal/promptstore"
	"github.com/xxxsen/ragchat/internal/vectorstore"
)

const testDim = 16

// bagEmbedder hashes each word into a bucket, so texts sharing words land
// close together.
type bagEmbedder struct{}

func (bagEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, testDim)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(w))
			v[h.Sum32()%testDim]++
		}
		var norm float64
		for _, x := range v {
			norm += float64(x * x)
		}
		if norm == 0 {
			v[0], norm = 1, 1
		}
		for j := range v {
			v[j] = float32(float64(v[j]) / math.Sqrt(norm))
		}
		out[i] = v
	}
	return out, nil
}

func (bagEmbedder) ModelName() string { return "bag" }

type recordingProvider struct {
	history []model.Message
}

func (p *recordingProvider) Class() string { return ai.ClassOpenAI }

func (p *recordingProvider) StartTurn(ctx context.Context, desc model.ModelDescriptor, history []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		p.history = history
		_ = yield("ok", nil)
	}
}

type fixture struct {
	vectors  *vectorstore.Gateway
	ingest   *IngestService
	chat     *ChatService
	prompts  *PromptService
	provider *recordingProvider
	files    filestore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	vectors := vectorstore.NewGateway(vectorstore.NewMemoryBackend(), bagEmbedder{}, vectorstore.CollectionConfig{
		Dimension: testDim,
		Metric:    vectorstore.MetricCosine,
	})
	require.NoError(t, vectors.EnsureSchema(ctx))

	store, err := promptstore.NewFileStore(filepath.Join(t.TempDir(), "prompts.yml"))
	require.NoError(t, err)
	provider := &recordingProvider{}
	gateway := ai.NewGateway([]model.ModelDescriptor{{ID: "openai/o3-mini", ProviderClass: ai.ClassOpenAI, Label: "o3-mini"}}, provider)

	files := filestore.NewLocalStore(t.TempDir())
	overlap := 2
	chat := NewChatService(gateway, vectors, nil, 5, 0.5)
	prompts := NewPromptService(store, chat.KnownModel)
	chat.prompts = prompts
	return &fixture{
		vectors:  vectors,
		ingest:   NewIngestService(files, vectors, config.ChunkConfig{Size: 8, Overlap: &overlap, AppID: "egune-test"}),
		chat:     chat,
		prompts:  prompts,
		provider: provider,
		files:    files,
	}
}

func TestIngest_StoresFileAndChunks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	text := "strawberry coconut juice is sweet and cold. mango lassi is thick and sweet too."
	res, err := f.ingest.Ingest(ctx, IngestInput{Name: "drinks.txt", Data: []byte(text)})
	require.NoError(t, err)
	require.Equal(t, 2, res.Chunks)
	require.False(t, res.Report.HasErrors())
	require.True(t, strings.HasSuffix(res.DocumentPath, ".txt"))

	rc, err := f.files.Open(ctx, res.DocumentPath)
	require.NoError(t, err)
	require.NoError(t, rc.Close())

	hits := f.vectors.Search(ctx, "strawberry coconut juice", 5, 0.9)
	require.NotEmpty(t, hits)
	require.Equal(t, res.DocumentPath, hits[0].DocumentPath)
	require.Equal(t, "egune-test", hits[0].AppID)
}

type failingInserter struct{ err error }

func (f failingInserter) InsertBatch(ctx context.Context, records []model.ChunkRecord) (*vectorstore.InsertReport, error) {
	return nil, f.err
}

func TestIngest_RemovesStoredFileWhenBatchFails(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	overlap := 2
	cause := &vectorstore.InsertError{Count: 1, Err: errors.New("backend down")}
	svc := NewIngestService(filestore.NewLocalStore(dir), failingInserter{err: cause}, config.ChunkConfig{Size: 8, Overlap: &overlap})

	_, err := svc.Ingest(ctx, IngestInput{Name: "drinks.txt", Data: []byte("mango lassi is thick")})
	var insertErr *vectorstore.InsertError
	require.ErrorAs(t, err, &insertErr)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestIngest_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ingest.Ingest(ctx, IngestInput{Name: "a.exe", Data: []byte("x")})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = f.ingest.Ingest(ctx, IngestInput{Name: "a.txt"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = f.ingest.Ingest(ctx, IngestInput{Name: "a.txt", Data: []byte{0xff, 0xfe}})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = f.ingest.IngestText(ctx, "   \n ", "src", "")
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestIngestSample(t *testing.T) {
	f := newFixture(t)
	report, err := f.ingest.IngestSample(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Succeeded(), 4)
}

func TestChat_RendersRetrievedDocuments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.ingest.IngestSample(ctx)
	require.NoError(t, err)
	_, err = f.prompts.Update(ctx, "openai/o3-mini", "Use only:\n{{DOCUMENTS}}")
	require.NoError(t, err)

	turn, err := f.chat.Stream(ctx, ChatRequest{
		ModelID: "openai/o3-mini",
		Messages: []model.Message{
			{Role: model.RoleSystem, Content: "client supplied"},
			{Role: model.RoleUser, Content: "I like strawberry coconut juice"},
		},
		UseRetrieval: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, turn.Sources)
	require.Equal(t, "ok", turn.Stream.Collect())

	h := f.provider.history
	require.Len(t, h, 2)
	require.Equal(t, model.RoleSystem, h[0].Role)
	require.True(t, strings.HasPrefix(h[0].Content, "Use only:\n1. I like strawberry coconut juice"))
	require.NotContains(t, h[0].Content, "client supplied")
	require.Equal(t, model.RoleUser, h[1].Role)
}

func TestChat_NoContextFallback(t *testing.T) {
	f := newFixture(t)
	turn, err := f.chat.Stream(context.Background(), ChatRequest{
		ModelID:      "openai/o3-mini",
		Messages:     []model.Message{{Role: model.RoleUser, Content: "anything"}},
		UseRetrieval: true,
	})
	require.NoError(t, err)
	require.Empty(t, turn.Sources)
	turn.Stream.Collect()
	require.Contains(t, f.provider.history[0].Content, promptstore.NoContext)
}

func TestChat_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.chat.Stream(ctx, ChatRequest{ModelID: "openai/unknown", Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}}})
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = f.chat.Stream(ctx, ChatRequest{ModelID: "openai/o3-mini", Messages: []model.Message{{Role: model.RoleAssistant, Content: "hi"}}})
	require.ErrorIs(t, err, appErr.ErrInvalid)
	_, err = f.chat.Stream(ctx, ChatRequest{ModelID: "openai/o3-mini", Messages: []model.Message{{Role: "tool", Content: "hi"}}})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestPromptService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.Equal(t, DefaultPrompt, f.prompts.Template(ctx, "openai/o3-mini"))

	_, err := f.prompts.Update(ctx, "openai/nope", "x")
	require.ErrorIs(t, err, appErr.ErrNotFound)
	_, err = f.prompts.Update(ctx, "openai/o3-mini", "  ")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	tpl, err := f.prompts.Update(ctx, "openai/o3-mini", "Be terse.")
	require.NoError(t, err)
	require.NotZero(t, tpl.Mtime)
	require.Equal(t, "Be terse.", f.prompts.Template(ctx, "openai/o3-mini"))
}

func TestRenderSystemPrompt(t *testing.T) {
	hits := []model.SearchResult{{Content: "alpha", DocumentPath: "a.txt"}, {Content: "beta"}}
	require.Equal(t, "ctx:\n1. alpha (source: a.txt)\n2. beta", RenderSystemPrompt("ctx:\n{{DOCUMENTS}}", hits, true))
	require.Equal(t, "plain", RenderSystemPrompt("plain", hits, false))
	require.Equal(t, "plain\n\nDocuments:\n"+promptstore.NoContext, RenderSystemPrompt("plain", nil, true))
}
