package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/xxxsen/ragchat/internal/model"
)

const (
	ClassOpenAI  = "openai"
	ClassChimege = "chimege"

	sseDataPrefix = "data:"
	sseDone       = "[DONE]"
)

type openAIChatRequest struct {
	Model    string          `json:"model"`
	Messages []openAIChatMsg `json:"messages"`
	Stream   bool            `json:"stream"`
}

type openAIChatMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// OpenAIChatProvider streams chat completions from any OpenAI-compatible
// endpoint. It is stateless: the full history is sent on every turn.
type OpenAIChatProvider struct {
	class          string
	defaultBaseURL string
	client         *http.Client
	headers        map[string]string
}

type OpenAIChatOption func(p *OpenAIChatProvider)

func WithHTTPClient(c *http.Client) OpenAIChatOption {
	return func(p *OpenAIChatProvider) {
		p.client = c
	}
}

// WithDefaultBaseURL sets the endpoint used when a descriptor carries none.
func WithDefaultBaseURL(u string) OpenAIChatOption {
	return func(p *OpenAIChatProvider) {
		p.defaultBaseURL = u
	}
}

func WithExtraHeader(key, value string) OpenAIChatOption {
	return func(p *OpenAIChatProvider) {
		if strings.TrimSpace(value) == "" {
			return
		}
		p.headers[key] = value
	}
}

func NewOpenAIChatProvider(class string, opts ...OpenAIChatOption) *OpenAIChatProvider {
	p := &OpenAIChatProvider{
		class:          class,
		defaultBaseURL: defaultOpenAIBaseURL,
		client:         http.DefaultClient,
		headers:        map[string]string{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *OpenAIChatProvider) Class() string {
	return p.class
}

func (p *OpenAIChatProvider) StartTurn(ctx context.Context, desc model.ModelDescriptor, history []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		body, err := p.open(ctx, desc, history)
		if err != nil {
			yield("", err)
			return
		}
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, sseDataPrefix) {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, sseDataPrefix))
			if payload == sseDone {
				return
			}
			var chunk openAIStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				yield("", fmt.Errorf("decode stream chunk: %w", err))
				return
			}
			if chunk.Error != nil {
				yield("", fmt.Errorf("%s stream error: %s", p.class, chunk.Error.Message))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(chunk.Choices[0].Delta.Content, nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
		}
	}
}

func (p *OpenAIChatProvider) open(ctx context.Context, desc model.ModelDescriptor, history []model.Message) (io.ReadCloser, error) {
	if desc.APIKey == "" {
		return nil, fmt.Errorf("%w: no api key for %s", ErrUnavailable, desc.ID)
	}
	baseURL := strings.TrimSpace(desc.BaseURL)
	if baseURL == "" {
		baseURL = p.defaultBaseURL
	}
	msgs := make([]openAIChatMsg, 0, len(history))
	for _, m := range history {
		msgs = append(msgs, openAIChatMsg{Role: string(m.Role), Content: m.Content})
	}
	data, err := json.Marshal(openAIChatRequest{
		Model:    desc.Label,
		Messages: msgs,
		Stream:   true,
	})
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+desc.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range p.headers {
		req.Header.Set(k, v)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%s request failed: %s: %s", p.class, resp.Status, strings.TrimSpace(string(body)))
	}
	return resp.Body, nil
}
