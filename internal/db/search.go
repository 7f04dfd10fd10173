package db

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // default "vector"
	Filter       string // FT.SEARCH pre-filter, see TagEq / NumericRange
	Vector       []float32
	K            int
	ReturnFields []string
	RawScores    bool // return __vector_score as-is (distance, not similarity)
}

// Query is the input for a filtered, sorted FT.SEARCH listing.
type Query struct {
	IndexName    string
	Query        string // "*" matches everything
	SortBy       string // SORTABLE field, empty = index order
	Descending   bool
	Offset       int
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
