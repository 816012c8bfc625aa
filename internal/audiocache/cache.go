package audiocache

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/23f2000792/tambola/internal/audio"
)

// FillFunc produces the audio for a number on a cache miss.
type FillFunc func(ctx context.Context) (audio.Clip, error)

type call struct {
	done chan struct{}
	clip audio.Clip
	err  error
}

// Cache maps called numbers to synthesized announcement clips. Entries are
// immutable once stored and never evicted; the key domain is bounded by the
// game range. Concurrent requests for the same uncached number collapse into
// a single fill, and a failed fill is not cached so the next caller retries.
type Cache struct {
	mu       sync.Mutex
	clips    map[int]audio.Clip
	inflight map[int]*call
	log      *slog.Logger

	hits   metric.Int64Counter
	misses metric.Int64Counter
}

func New(log *slog.Logger) *Cache {
	meter := otel.Meter("tambola/audiocache")
	hits, _ := meter.Int64Counter("tambola_audio_cache_hits_total",
		metric.WithDescription("Announcement clips served from cache"))
	misses, _ := meter.Int64Counter("tambola_audio_cache_misses_total",
		metric.WithDescription("Announcement clips that required synthesis"))
	return &Cache{
		clips:    make(map[int]audio.Clip),
		inflight: make(map[int]*call),
		log:      log.With(slog.String("component", "audio-cache")),
		hits:     hits,
		misses:   misses,
	}
}

// Get returns the cached clip for a number, if present.
func (c *Cache) Get(number int) (audio.Clip, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	clip, ok := c.clips[number]
	return clip, ok
}

// Put stores a clip for a number. The first stored clip wins; later puts for
// the same number are ignored to keep entries immutable.
func (c *Cache) Put(number int, clip audio.Clip) {
	if clip.Empty() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.clips[number]; !ok {
		c.clips[number] = clip
	}
}

// Len reports how many numbers currently have cached audio.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.clips)
}

// Resolve returns the clip for a number, invoking fill at most once per
// number system-wide regardless of how many callers race on a miss. All
// waiters share the single outcome, success or failure.
func (c *Cache) Resolve(ctx context.Context, number int, fill FillFunc) (audio.Clip, error) {
	c.mu.Lock()
	if clip, ok := c.clips[number]; ok {
		c.mu.Unlock()
		c.hits.Add(ctx, 1)
		return clip, nil
	}
	if cl, ok := c.inflight[number]; ok {
		c.mu.Unlock()
		select {
		case <-cl.done:
			return cl.clip, cl.err
		case <-ctx.Done():
			return audio.Clip{}, ctx.Err()
		}
	}
	cl := &call{done: make(chan struct{})}
	c.inflight[number] = cl
	c.mu.Unlock()

	c.misses.Add(ctx, 1)
	cl.clip, cl.err = fill(ctx)

	c.mu.Lock()
	delete(c.inflight, number)
	if cl.err == nil && !cl.clip.Empty() {
		c.clips[number] = cl.clip
	}
	c.mu.Unlock()
	close(cl.done)

	if cl.err != nil {
		c.log.Warn("audio fill failed", slog.Int("number", number), slog.String("error", cl.err.Error()))
	}
	return cl.clip, cl.err
}
