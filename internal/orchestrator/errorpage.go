package orchestrator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/a-h/templ"
)

// errorPageCache memoizes rendered error bodies by (status, detail), the
// same trade the teacher's web.TemplateCache makes for rendered views:
// synthesized error pages are few and static per status/detail pair, so a
// plain render-on-miss cache with no eviction beyond TTL is enough here.
// Grounded on the teacher's internal/web/template_cache.go TemplateCache,
// generalized away from its fiber.Ctx-keyed variant since this funnel has
// no per-user context to key on.
type errorPageCache struct {
	mu      sync.RWMutex
	entries map[string]cachedPage
	ttl     time.Duration
}

type cachedPage struct {
	body       []byte
	renderedAt time.Time
}

func newErrorPageCache(ttl time.Duration) *errorPageCache {
	return &errorPageCache{entries: make(map[string]cachedPage), ttl: ttl}
}

func (c *errorPageCache) render(status int, detail string) []byte {
	key := errorPageKey(status, detail)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && time.Since(entry.renderedAt) < c.ttl {
		return entry.body
	}

	var buf bytes.Buffer
	if err := errorPageComponent(status, detail).Render(context.Background(), &buf); err != nil {
		return []byte(httpStatusText(status))
	}

	body := buf.Bytes()

	c.mu.Lock()
	c.entries[key] = cachedPage{body: body, renderedAt: time.Now()}
	c.mu.Unlock()

	return body
}

func errorPageKey(status int, detail string) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(status)))
	h.Write([]byte{0})
	h.Write([]byte(detail))

	return hex.EncodeToString(h.Sum(nil))
}

// errorPageComponent hand-writes a templ.Component for a synthesized error
// body: a minimal, dependency-free HTML page naming the status and an
// optional detail string. There is no .templ source to generate this from
// in this repo, so it is written directly against the templ.ComponentFunc
// contract the way the teacher's RenderWithCache callers supply one.
func errorPageComponent(status int, detail string) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		_, err := w.Write(renderErrorPageHTML(status, detail))
		return err
	})
}

func renderErrorPageHTML(status int, detail string) []byte {
	var buf bytes.Buffer

	buf.WriteString("<!doctype html><html><head><title>")
	buf.WriteString(strconv.Itoa(status))
	buf.WriteString(" ")
	buf.WriteString(httpStatusText(status))
	buf.WriteString("</title></head><body><h1>")
	buf.WriteString(strconv.Itoa(status))
	buf.WriteString(" ")
	buf.WriteString(httpStatusText(status))
	buf.WriteString("</h1>")

	if detail != "" {
		buf.WriteString("<p>")
		buf.WriteString(detail)
		buf.WriteString("</p>")
	}

	buf.WriteString("</body></html>")

	return buf.Bytes()
}
