// Package glossary implements the process-wide, TTL-bounded glossary term
// cache described in spec §4.3 step 5 and §5 ("a stale read is acceptable").
package glossary

import (
	"context"
	"sync"
	"time"

	"github.com/ILLUVRSE/meeting-minutes/internal/pipeline"
	"github.com/ILLUVRSE/meeting-minutes/internal/ports"
)

const defaultTTL = 10 * time.Minute

// Cache holds the full glossary term set, refreshed via a paginated scan
// no more often than every TTL. It is safe for concurrent use; per spec
// §9 this replaces a file-level global with a small type guarded by one
// mutex and a timestamp.
type Cache struct {
	record ports.Record
	ttl    time.Duration

	mu        sync.Mutex
	terms     []pipeline.GlossaryTerm
	fetchedAt time.Time
}

func New(record ports.Record) *Cache {
	return &Cache{record: record, ttl: defaultTTL}
}

// Terms returns the cached glossary term set, refreshing it via a
// paginated scan if the cache is empty or older than the TTL.
func (c *Cache) Terms(ctx context.Context) ([]pipeline.GlossaryTerm, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.fetchedAt.IsZero() && time.Since(c.fetchedAt) < c.ttl {
		return c.terms, nil
	}

	var all []pipeline.GlossaryTerm
	pageToken := ""
	for {
		items, next, err := c.record.ScanGlossaryTerms(ctx, pageToken)
		if err != nil {
			if len(c.terms) > 0 {
				// Stale read is acceptable per spec §5; keep serving
				// the old set rather than failing the report stage.
				return c.terms, nil
			}
			return nil, err
		}
		for _, item := range items {
			all = append(all, decodeTerm(item))
		}
		if next == "" {
			break
		}
		pageToken = next
	}

	c.terms = all
	c.fetchedAt = time.Now()
	return c.terms, nil
}

func decodeTerm(item map[string]interface{}) pipeline.GlossaryTerm {
	t := pipeline.GlossaryTerm{}
	if v, ok := item["termId"].(string); ok {
		t.TermID = v
	}
	if v, ok := item["term"].(string); ok {
		t.Term = v
	}
	if v, ok := item["definition"].(string); ok {
		t.Definition = v
	}
	if raw, ok := item["aliases"].([]interface{}); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				t.Aliases = append(t.Aliases, s)
			}
		}
	} else if raw, ok := item["aliases"].([]string); ok {
		t.Aliases = raw
	}
	return t
}
