// Package export renders a contract to PDF or DOCX.
package export

import (
	"errors"
	"time"
)

// Format is the export output format.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// Request contains parameters for an export operation.
type Request struct {
	ContractID        string
	Format            Format
	IncludeAmendments bool
}

// Result contains the export output.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ContractInfo holds contract metadata for rendering.
type ContractInfo struct {
	ID        string
	Title     string
	CohortID  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CohortInfo holds cohort metadata for rendering.
type CohortInfo struct {
	ID   string
	Name string
}

// ClauseInfo holds one clause for rendering.
type ClauseInfo struct {
	ID        string
	Content   string
	Author    string
	SortOrder int
	UpdatedAt time.Time
}

// AmendmentInfo holds one amendment for the appendix.
type AmendmentInfo struct {
	ID              string
	ClauseID        string
	ProposedContent string
	Author          string
	Status          string
	CreatedAt       time.Time
	DecidedAt       *time.Time
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)
