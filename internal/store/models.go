package store

import "time"

type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Cohort struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CohortMember is one row of the cohort/user join, with the member's
// display fields joined in for API responses.
type CohortMember struct {
	CohortID    string
	UserID      string
	Email       string
	DisplayName string
	Role        string
	JoinedAt    time.Time
}

type Contract struct {
	ID        string
	CohortID  string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Clause struct {
	ID         string
	ContractID string
	AuthorID   string
	AuthorName string
	Content    string
	SortOrder  int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Amendment struct {
	ID         string
	ClauseID   string
	AuthorID   string
	AuthorName string
	Content    string
	Status     string
	DecidedBy  *string
	DecidedAt  *time.Time
	CreatedAt  time.Time
}

// ClauseTree is a clause with its full amendment history, as served by the
// contract aggregate read.
type ClauseTree struct {
	Clause
	Amendments []Amendment
}

// ContractTree is the composed contract read: the contract, its clauses in
// order, and each clause's amendments in creation order.
type ContractTree struct {
	Contract
	Clauses []ClauseTree
}

type TensionMeasurement struct {
	ID         string
	ContractID string
	UserID     string
	Value      int
	Context    string
	CreatedAt  time.Time
}

type JournalEntry struct {
	ID         string
	ContractID string
	UserID     string
	Title      string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type FailureEntry struct {
	ID         string
	ContractID string
	UserID     string
	Title      string
	Content    string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Iteration struct {
	ID        string
	FailureID string
	Content   string
	CreatedAt time.Time
}
