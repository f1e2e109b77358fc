package ai

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync/atomic"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/model"
)

// ErrorPrefix marks the synthetic delta emitted when a turn fails. Callers that
// need to tell a failed answer from a real one check IsErrorDelta.
const ErrorPrefix = "Error: "

func IsErrorDelta(delta string) bool {
	return strings.HasPrefix(delta, ErrorPrefix)
}

// ChatProvider runs one assistant turn against a provider family. The
// returned sequence is lazy: no network call happens until it is ranged over,
// and every resource it opens is released when ranging stops.
type ChatProvider interface {
	Class() string
	StartTurn(ctx context.Context, desc model.ModelDescriptor, history []model.Message) iter.Seq2[string, error]
}

type Gateway struct {
	order     []string
	models    map[string]model.ModelDescriptor
	providers map[string]ChatProvider
}

func NewGateway(descs []model.ModelDescriptor, providers ...ChatProvider) *Gateway {
	g := &Gateway{
		models:    make(map[string]model.ModelDescriptor, len(descs)),
		providers: make(map[string]ChatProvider, len(providers)),
	}
	for _, d := range descs {
		if _, ok := g.models[d.ID]; !ok {
			g.order = append(g.order, d.ID)
		}
		g.models[d.ID] = d
	}
	for _, p := range providers {
		if p == nil {
			continue
		}
		g.providers[p.Class()] = p
	}
	return g
}

func (g *Gateway) Models() []model.ModelDescriptor {
	out := make([]model.ModelDescriptor, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.models[id])
	}
	return out
}

func (g *Gateway) Descriptor(modelID string) (model.ModelDescriptor, bool) {
	d, ok := g.models[modelID]
	return d, ok
}

// Stream starts a turn for modelID. It never fails: any error, including a
// timeout, becomes a single ErrorPrefix delta that ends the stream.
func (g *Gateway) Stream(ctx context.Context, modelID string, history []model.Message) *Stream {
	return &Stream{seq: func(yield func(string) bool) {
		logger := logutil.GetLogger(ctx).With(zap.String("model_id", modelID))
		desc, ok := g.models[modelID]
		if !ok {
			err := fmt.Errorf("%w: %s", ErrUnknownModel, modelID)
			logger.Error("generation failed", zap.Error(err))
			yield(ErrorPrefix + err.Error())
			return
		}
		provider, ok := g.providers[desc.ProviderClass]
		if !ok {
			err := fmt.Errorf("%w: %s", ErrUnsupportedProvider, desc.ProviderClass)
			logger.Error("generation failed", zap.Error(err))
			yield(ErrorPrefix + err.Error())
			return
		}

		var (
			turnCtx context.Context
			cancel  context.CancelFunc
		)
		if desc.Timeout > 0 {
			turnCtx, cancel = context.WithTimeout(ctx, desc.Timeout)
		} else {
			turnCtx, cancel = context.WithCancel(ctx)
		}
		defer cancel()

		deltas := 0
		for delta, err := range provider.StartTurn(turnCtx, desc, history) {
			if err != nil {
				if errors.Is(turnCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
					err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
				}
				logger.Error("generation failed",
					zap.String("provider", desc.ProviderClass),
					zap.Int("deltas", deltas),
					zap.Error(err),
				)
				yield(ErrorPrefix + err.Error())
				return
			}
			if delta == "" {
				continue
			}
			deltas++
			if !yield(delta) {
				logger.Debug("stream abandoned by caller", zap.Int("deltas", deltas))
				return
			}
		}
		logger.Debug("generation finished", zap.Int("deltas", deltas))
	}}
}

// Stream is a single-use sequence of text deltas.
type Stream struct {
	seq  iter.Seq[string]
	used atomic.Bool
}

// All yields the deltas. Only the first call produces anything.
func (s *Stream) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !s.used.CompareAndSwap(false, true) {
			return
		}
		s.seq(yield)
	}
}

// Collect drains the stream and concatenates the deltas.
func (s *Stream) Collect() string {
	var sb strings.Builder
	for delta := range s.All() {
		sb.WriteString(delta)
	}
	return sb.String()
}
