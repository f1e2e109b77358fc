package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"iter"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"github.com/xxxsen/common/webapi"

	"github.com/xxxsen/ragchat/internal/ai"
	"github.com/xxxsen/ragchat/internal/config"
	"github.com/xxxsen/ragchat/internal/filestore"
	"github.com/xxxsen/ragchat/internal/handler"
	"github.com/xxxsen/ragchat/internal/middleware"
	"github.com/xxxsen/ragchat/internal/model"
	"github.com/xxxsen/ragchat/internal/pkg/jwt"
	"github.com/xxxsen/ragchat/internal/promptstore"
	"github.com/xxxsen/ragchat/internal/service"
	"github.com/xxxsen/ragchat/internal/vectorstore"
)

const (
	testDim     = 16
	adminSecret = "test-admin-secret"
)

type bagEmbedder struct {
	fail bool
}

func (b *bagEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if b.fail {
		return nil, ai.ErrUnavailable
	}
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

func (b *bagEmbedder) ModelName() string { return "bag" }

type echoProvider struct {
	fail bool
}

func (p *echoProvider) Class() string { return ai.ClassOpenAI }

func (p *echoProvider) StartTurn(ctx context.Context, desc model.ModelDescriptor, history []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if p.fail {
			yield("", context.DeadlineExceeded)
			return
		}
		last, _ := model.LastUserMessage(history)
		for _, w := range []string{"you ", "said: ", "", last} {
			if !yield(w, nil) {
				return
			}
		}
	}
}

type testEnv struct {
	router   http.Handler
	embedder *bagEmbedder
	provider *echoProvider
	vectors  *vectorstore.Gateway
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	emb := &bagEmbedder{}
	vectors := vectorstore.NewGateway(vectorstore.NewMemoryBackend(), emb, vectorstore.CollectionConfig{
		Dimension: testDim,
		Metric:    vectorstore.MetricCosine,
	})
	require.NoError(t, vectors.EnsureSchema(ctx))

	provider := &echoProvider{}
	gateway := ai.NewGateway([]model.ModelDescriptor{
		{ID: "openai/o3-mini", ProviderClass: ai.ClassOpenAI, Label: "o3-mini", APIKey: "secret", Timeout: time.Minute},
	}, provider)

	store, err := promptstore.NewFileStore(filepath.Join(t.TempDir(), "prompts.yml"))
	require.NoError(t, err)
	files, err := filestore.New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": t.TempDir()}})
	require.NoError(t, err)

	chat := service.NewChatService(gateway, vectors, nil, 5, 0.5)
	prompts := service.NewPromptService(store, chat.KnownModel)
	chat = service.NewChatService(gateway, vectors, prompts, 5, 0.5)
	overlap := 2
	ingest := service.NewIngestService(files, vectors, config.ChunkConfig{Size: 8, Overlap: &overlap, AppID: "egune-test"})

	deps := handler.RouterDeps{
		Chat:        handler.NewChatHandler(chat),
		Search:      handler.NewSearchHandler(vectors, 5, 0.5),
		Documents:   handler.NewDocumentHandler(ingest, vectors, 1024),
		Prompts:     handler.NewPromptHandler(prompts),
		AdminSecret: []byte(adminSecret),
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		"",
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(nil),
		),
	)
	require.NoError(t, err)
	return &testEnv{router: engine, embedder: emb, provider: provider, vectors: vectors}
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func adminToken(t *testing.T) string {
	token, err := jwt.GenerateToken("ops", jwt.RoleAdmin, []byte(adminSecret), time.Minute)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	require.Equal(t, http.StatusOK, resp.Code)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &env))
	return env
}
