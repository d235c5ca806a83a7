package search

// Result is a single search hit returned to the caller.
type Result struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Slug    string   `json:"slug"`
	Snippet string   `json:"snippet"`
	Image   string   `json:"image,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Status  string   `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text          string
	PublishedOnly bool
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over posts.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push posts into a search index.
type Indexer interface {
	IndexPost(p PostRecord) error
	DeletePost(id string) error
}

// PostRecord is the data we index for a post.
type PostRecord struct {
	ID      string   `json:"id"`
	Title   string   `json:"title"`
	Slug    string   `json:"slug"`
	Excerpt string   `json:"excerpt"`
	Content string   `json:"content"`
	Image   string   `json:"image"`
	Tags    []string `json:"tags"`
	Status  string   `json:"status"`
}
