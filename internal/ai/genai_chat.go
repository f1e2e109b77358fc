package ai

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/xxxsen/ragchat/internal/model"
)

const ClassGenAI = "genai"

// ChatSession is a server-side conversation that remembers its own history.
// turnContext is the rendered system message of the turn and may be empty.
type ChatSession interface {
	SendStream(ctx context.Context, turnContext, text string) iter.Seq2[string, error]
}

type SessionFactory func(ctx context.Context, desc model.ModelDescriptor) (ChatSession, error)

// GenAIChatProvider keeps one chat session per model id for the process
// lifetime and sends only the latest user message on each turn, preceded by
// that turn's system message so fresh retrieval results reach the model.
type GenAIChatProvider struct {
	sessions   *SessionRegistry[ChatSession]
	newSession SessionFactory
}

func NewGenAIChatProvider(factory SessionFactory) *GenAIChatProvider {
	if factory == nil {
		factory = newGenAIClientPool().newSession
	}
	return &GenAIChatProvider{
		sessions:   NewSessionRegistry[ChatSession](),
		newSession: factory,
	}
}

func (p *GenAIChatProvider) Class() string {
	return ClassGenAI
}

func (p *GenAIChatProvider) StartTurn(ctx context.Context, desc model.ModelDescriptor, history []model.Message) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		text, ok := model.LastUserMessage(history)
		if !ok {
			yield("", fmt.Errorf("no user message in history"))
			return
		}
		system := ""
		for _, m := range history {
			if m.Role == model.RoleSystem {
				system = m.Content
				break
			}
		}
		sess, release, err := p.sessions.Acquire(ctx, desc.ID, func(ctx context.Context) (ChatSession, error) {
			logutil.GetLogger(ctx).Info("creating chat session", zap.String("model_id", desc.ID), zap.String("label", desc.Label))
			return p.newSession(ctx, desc)
		})
		if err != nil {
			yield("", err)
			return
		}
		defer release()
		for delta, err := range sess.SendStream(ctx, system, text) {
			if !yield(delta, err) || err != nil {
				return
			}
		}
	}
}

// genAIClientPool shares one genai client per api key.
type genAIClientPool struct {
	mu      sync.Mutex
	clients map[string]*genai.Client
}

func newGenAIClientPool() *genAIClientPool {
	return &genAIClientPool{clients: make(map[string]*genai.Client)}
}

func (c *genAIClientPool) client(ctx context.Context, apiKey string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cli, ok := c.clients[apiKey]; ok {
		return cli, nil
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	c.clients[apiKey] = cli
	return cli, nil
}

func (c *genAIClientPool) newSession(ctx context.Context, desc model.ModelDescriptor) (ChatSession, error) {
	if desc.APIKey == "" {
		return nil, fmt.Errorf("%w: no api key for %s", ErrUnavailable, desc.ID)
	}
	cli, err := c.client(ctx, desc.APIKey)
	if err != nil {
		return nil, err
	}
	chat, err := cli.Chats.Create(ctx, desc.Label, nil, nil)
	if err != nil {
		return nil, err
	}
	return &genAISession{chat: chat}, nil
}

type genAISession struct {
	chat *genai.Chat
}

func (s *genAISession) SendStream(ctx context.Context, turnContext, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range s.chat.SendMessageStream(ctx, turnParts(turnContext, text)...) {
			if err != nil {
				yield("", err)
				return
			}
			if resp == nil {
				continue
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
}

// turnParts puts the turn's system message ahead of the user text in one
// user content; the session keeps both in its history.
func turnParts(turnContext, text string) []genai.Part {
	if turnContext == "" {
		return []genai.Part{{Text: text}}
	}
	return []genai.Part{{Text: turnContext}, {Text: text}}
}
