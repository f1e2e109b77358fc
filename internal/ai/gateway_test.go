package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/ragchat/internal/model"
)

type scriptedProvider struct {
	class  string
	deltas []string
	err    error
	closed bool
}

func (p *scriptedProvider) Class() string { return p.class }

func (p *scriptedProvider) StartTurn(ctx context.Context, desc model.ModelDescriptor, history []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer func() { p.closed = true }()
		for _, d := range p.deltas {
			if !yield(d, nil) {
				return
			}
		}
		if p.err != nil {
			yield("", p.err)
		}
	}
}

func userTurn(text string) []model.Message {
	return []model.Message{{Role: model.RoleUser, Content: text}}
}

func collect(s *Stream) []string {
	var out []string
	for d := range s.All() {
		out = append(out, d)
	}
	return out
}

func TestGateway_SkipsEmptyDeltas(t *testing.T) {
	p := &scriptedProvider{class: "fake", deltas: []string{"", "Hel", "", "lo", ""}}
	g := NewGateway([]model.ModelDescriptor{{ID: "fake/a", ProviderClass: "fake", Label: "a"}}, p)
	require.Equal(t, []string{"Hel", "lo"}, collect(g.Stream(context.Background(), "fake/a", userTurn("hi"))))
}

func TestGateway_ErrorBecomesSingleDelta(t *testing.T) {
	p := &scriptedProvider{class: "fake", deltas: []string{"partial"}, err: errors.New("connection reset")}
	g := NewGateway([]model.ModelDescriptor{{ID: "fake/a", ProviderClass: "fake", Label: "a"}}, p)
	out := collect(g.Stream(context.Background(), "fake/a", userTurn("hi")))
	require.Len(t, out, 2)
	require.Equal(t, "partial", out[0])
	require.Equal(t, ErrorPrefix+"connection reset", out[1])
	require.True(t, IsErrorDelta(out[1]))
}

func TestGateway_UnknownModel(t *testing.T) {
	g := NewGateway(nil)
	out := collect(g.Stream(context.Background(), "nope/x", userTurn("hi")))
	require.Len(t, out, 1)
	require.True(t, IsErrorDelta(out[0]))
	require.Contains(t, out[0], "nope/x")
}

func TestGateway_UnsupportedProviderClass(t *testing.T) {
	g := NewGateway([]model.ModelDescriptor{{ID: "x/y", ProviderClass: "missing", Label: "y"}})
	out := collect(g.Stream(context.Background(), "x/y", userTurn("hi")))
	require.Len(t, out, 1)
	require.True(t, IsErrorDelta(out[0]))
}

func TestGateway_StreamIsSingleUse(t *testing.T) {
	p := &scriptedProvider{class: "fake", deltas: []string{"a", "b"}}
	g := NewGateway([]model.ModelDescriptor{{ID: "fake/a", ProviderClass: "fake", Label: "a"}}, p)
	s := g.Stream(context.Background(), "fake/a", userTurn("hi"))
	require.Equal(t, "ab", s.Collect())
	require.Equal(t, "", s.Collect())
}

func TestGateway_EarlyBreakReleasesProvider(t *testing.T) {
	p := &scriptedProvider{class: "fake", deltas: []string{"a", "b", "c"}}
	g := NewGateway([]model.ModelDescriptor{{ID: "fake/a", ProviderClass: "fake", Label: "a"}}, p)
	for d := range g.Stream(context.Background(), "fake/a", userTurn("hi")).All() {
		require.Equal(t, "a", d)
		break
	}
	require.True(t, p.closed)
}

func TestGateway_ModelsKeepConfigOrder(t *testing.T) {
	g := NewGateway([]model.ModelDescriptor{
		{ID: "google/b", ProviderClass: ClassGenAI},
		{ID: "openai/a", ProviderClass: ClassOpenAI},
	})
	models := g.Models()
	require.Len(t, models, 2)
	require.Equal(t, "google/b", models[0].ID)
	require.Equal(t, "openai/a", models[1].ID)
	_, ok := g.Descriptor("openai/a")
	require.True(t, ok)
}

func TestGateway_TimeoutYieldsOneErrorDelta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	desc := model.ModelDescriptor{
		ID:            "openai/x",
		ProviderClass: ClassOpenAI,
		Label:         "x",
		APIKey:        "key",
		BaseURL:       srv.URL,
		Timeout:       time.Second,
	}
	g := NewGateway([]model.ModelDescriptor{desc}, NewOpenAIChatProvider(ClassOpenAI))

	start := time.Now()
	out := collect(g.Stream(context.Background(), "openai/x", userTurn("hi")))
	elapsed := time.Since(start)

	require.Len(t, out, 1)
	require.True(t, IsErrorDelta(out[0]))
	require.GreaterOrEqual(t, elapsed, time.Second)
	require.Less(t, elapsed, 3*time.Second)
}

func TestOpenAIChat_SendsFullHistoryAndStreams(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.Equal(t, "egune-app", r.Header.Get("X-Title"))
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n")
		_, _ = fmt.Fprint(w, ": keepalive\n\n")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n")
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	desc := model.ModelDescriptor{ID: "openai/gpt", ProviderClass: ClassOpenAI, Label: "gpt", APIKey: "key", BaseURL: srv.URL}
	p := NewOpenAIChatProvider(ClassOpenAI, WithExtraHeader("X-Title", "egune-app"), WithExtraHeader("HTTP-Referer", ""))
	g := NewGateway([]model.ModelDescriptor{desc}, p)
	history := []model.Message{
		{Role: model.RoleSystem, Content: "sys"},
		{Role: model.RoleUser, Content: "first"},
		{Role: model.RoleAssistant, Content: "answer"},
		{Role: model.RoleUser, Content: "second"},
	}
	require.Equal(t, []string{"Hel", "lo"}, collect(g.Stream(context.Background(), "openai/gpt", history)))
	for _, want := range []string{`"model":"gpt"`, `"stream":true`, `"first"`, `"answer"`, `"second"`, `"sys"`} {
		require.Contains(t, gotBody, want)
	}
}

func TestOpenAIChat_HTTPErrorBecomesErrorDelta(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	desc := model.ModelDescriptor{ID: "chimege/egune", ProviderClass: ClassChimege, Label: "egune", APIKey: "k", BaseURL: srv.URL}
	g := NewGateway([]model.ModelDescriptor{desc}, NewOpenAIChatProvider(ClassChimege))
	out := collect(g.Stream(context.Background(), "chimege/egune", userTurn("hi")))
	require.Len(t, out, 1)
	require.True(t, IsErrorDelta(out[0]))
	require.Contains(t, out[0], "quota exceeded")
}

func TestOpenAIChat_MissingKeyIsUnavailable(t *testing.T) {
	desc := model.ModelDescriptor{ID: "openai/gpt", ProviderClass: ClassOpenAI, Label: "gpt"}
	var gotErr error
	for _, err := range NewOpenAIChatProvider(ClassOpenAI).StartTurn(context.Background(), desc, userTurn("hi")) {
		gotErr = err
	}
	require.ErrorIs(t, gotErr, ErrUnavailable)
}

func TestOpenRouterChat_UsesDefaultBaseURLAndAttribution(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "https://chat.example", r.Header.Get("HTTP-Referer"))
		require.Equal(t, "ragchat", r.Header.Get("X-Title"))
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	p := NewOpenRouterChatProvider("https://chat.example", "ragchat", WithDefaultBaseURL(srv.URL))
	require.Equal(t, ClassOpenRouter, p.Class())
	desc := model.ModelDescriptor{ID: "openrouter/llama", ProviderClass: ClassOpenRouter, Label: "meta/llama", APIKey: "k"}
	g := NewGateway([]model.ModelDescriptor{desc}, p)
	require.Equal(t, "ok", g.Stream(context.Background(), "openrouter/llama", userTurn("hi")).Collect())
}
