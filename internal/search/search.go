package search

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultContract ResultType = "contract"
	ResultClause   ResultType = "clause"
	ResultJournal  ResultType = "journal"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type       ResultType `json:"type"`
	ID         string     `json:"id"`
	Title      string     `json:"title"`
	Snippet    string     `json:"snippet"`
	ContractID string     `json:"contractId"`
	CohortID   string     `json:"cohortId"`
}

// Query describes a search request.
type Query struct {
	Text           string
	FilterType     ResultType // empty = all types
	FilterCohortID string
	Limit          int
	Offset         int
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

// ContractRecord is the data we index for a contract.
type ContractRecord struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	CohortID string `json:"cohortId"`
}

// ClauseRecord is the data we index for a clause.
type ClauseRecord struct {
	ID         string `json:"id"`
	Content    string `json:"content"`
	ContractID string `json:"contractId"`
	CohortID   string `json:"cohortId"`
	Author     string `json:"author"`
}

// JournalRecord is the data we index for a journal entry.
type JournalRecord struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Content    string `json:"content"`
	ContractID string `json:"contractId"`
	CohortID   string `json:"cohortId"`
}
