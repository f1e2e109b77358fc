package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/ragchat/internal/pkg/errcode"
	"github.com/xxxsen/ragchat/internal/pkg/response"
)

type streamSlot struct {
	started time.Time
	open    bool
}

type streamLimiter struct {
	mu            sync.Mutex
	interval      time.Duration
	slots         map[string]*streamSlot
	sweepInterval time.Duration
	lastSweep     time.Time
	now           func() time.Time
}

// StreamLimit admits at most one open chat stream per client, and no new
// stream within interval of the previous one starting. A zero interval
// still enforces the single open stream.
func StreamLimit(interval time.Duration) gin.HandlerFunc {
	return newStreamLimiter(interval).handle
}

func newStreamLimiter(interval time.Duration) *streamLimiter {
	return &streamLimiter{
		interval:      max(interval, 0),
		slots:         make(map[string]*streamSlot),
		sweepInterval: max(interval, time.Minute),
		now:           time.Now,
	}
}

func (l *streamLimiter) handle(c *gin.Context) {
	client := c.ClientIP()
	if reason := l.acquire(client); reason != "" {
		logutil.GetLogger(c.Request.Context()).Warn("chat stream rejected",
			zap.String("ip", client),
			zap.String("reason", reason),
		)
		response.Error(c, errcode.ErrTooMany, http.StatusText(http.StatusTooManyRequests))
		c.Abort()
		return
	}
	defer l.release(client)
	c.Next()
}

// acquire returns a non-empty reason when client may not start a stream.
func (l *streamLimiter) acquire(client string) string {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) >= l.sweepInterval {
		l.sweepLocked(now)
	}
	slot, ok := l.slots[client]
	switch {
	case !ok:
		slot = &streamSlot{}
		l.slots[client] = slot
	case slot.open:
		return "stream in progress"
	case now.Sub(slot.started) < l.interval:
		return "too soon"
	}
	slot.started = now
	slot.open = true
	return ""
}

func (l *streamLimiter) release(client string) {
	l.mu.Lock()
	if slot, ok := l.slots[client]; ok {
		slot.open = false
	}
	l.mu.Unlock()
}

func (l *streamLimiter) sweepLocked(now time.Time) {
	for client, slot := range l.slots {
		if !slot.open && now.Sub(slot.started) >= l.interval {
			delete(l.slots, client)
		}
	}
	l.lastSweep = now
}
