package search

// Result is a single thought-record search hit returned to the caller.
type Result struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// Query describes a search request. UserID is mandatory: a caller only
// ever searches their own thought records.
type Query struct {
	Text   string
	UserID string
	Limit  int
	Offset int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// RecordDoc is the data we index for a thought record.
type RecordDoc struct {
	ID              string `json:"id"`
	UserID          string `json:"userId"`
	ActivatingEvent string `json:"activatingEvent"`
	Beliefs         string `json:"beliefs"`
	Consequences    string `json:"consequences"`
}
