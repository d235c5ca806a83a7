package search

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
)

const idxPosts = "gazette_posts"

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the posts index.
// The service keeps running when Meilisearch is down; a background loop
// re-checks health and reconfigures on recovery.
func NewMeili(url, apiKey string) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Printf("search: meilisearch unavailable at %s: %v", url, err)
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPosts,
		PrimaryKey: "id",
	}); err != nil {
		log.Printf("search: create index %s (may already exist): %v", idxPosts, err)
	}

	index := m.client.Index(idxPosts)
	filterable := []interface{}{"status", "tags"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		log.Printf("search: update filterable attrs for %s: %v", idxPosts, err)
	}
	searchable := []string{"title", "excerpt", "content"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		log.Printf("search: update searchable attrs for %s: %v", idxPosts, err)
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				log.Println("search: meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries the posts index.
func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	sr := &meili.SearchRequest{
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"*"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
		ShowRankingScore:      true,
	}
	if q.PublishedOnly {
		sr.Filter = []string{`status = "PUBLISHED"`}
	}

	resp, err := m.client.Index(idxPosts).Search(q.Text, sr)
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	results := make([]Result, 0, len(resp.Hits))
	for _, hit := range resp.Hits {
		results = append(results, hitToResult(hit))
	}
	return results, int(resp.EstimatedTotalHits), nil
}

func hitToResult(hit meili.Hit) Result {
	r := Result{
		ID:     decodeString(hit, "id"),
		Slug:   decodeString(hit, "slug"),
		Image:  decodeString(hit, "image"),
		Status: decodeString(hit, "status"),
		Tags:   decodeStrings(hit, "tags"),
	}
	r.Title = firstNonBlank(decodeFormattedString(hit, "title"), decodeString(hit, "title"))
	r.Snippet = firstNonBlank(decodeFormattedString(hit, "excerpt"), decodeString(hit, "excerpt"))
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeStrings(hit meili.Hit, key string) []string {
	raw, ok := hit[key]
	if !ok {
		return nil
	}

	var values []string
	if err := json.Unmarshal(raw, &values); err == nil {
		return values
	}
	return nil
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// IndexPost adds or updates a post in the search index.
func (m *Meili) IndexPost(p PostRecord) error {
	_, err := m.client.Index(idxPosts).AddDocuments([]PostRecord{p}, nil)
	return err
}

// DeletePost removes a post from the search index.
func (m *Meili) DeletePost(id string) error {
	_, err := m.client.Index(idxPosts).DeleteDocument(id, nil)
	return err
}

// IndexPosts bulk-indexes posts.
func (m *Meili) IndexPosts(posts []PostRecord) error {
	if len(posts) == 0 {
		return nil
	}
	_, err := m.client.Index(idxPosts).AddDocuments(posts, nil)
	return err
}
