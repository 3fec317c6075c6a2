package candidates

import (
	"fmt"
	"time"
)

// UnknownEncoding fills the encoding half of a format when none is recorded.
const UnknownEncoding = "unknown"

// Candidate is a file that may serve as the source for a conversion.
type Candidate struct {
	Path      string
	Format    string
	Modified  time.Time
	Size      int64
	Generated bool
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s (%s)", c.Path, c.Format)
}

// Format joins a file type and encoding into a candidate format tag.
func Format(fileType, encoding string) string {
	if encoding == "" {
		encoding = UnknownEncoding
	}
	return fileType + "/" + encoding
}

// FormatOf returns the candidate's format unchanged.
func FormatOf(c Candidate) string { return c.Format }

// CatalogFormatOf returns the format of catalog-backed candidates and an
// empty string, which no pattern matches, for generated ones.
func CatalogFormatOf(c Candidate) string {
	if c.Generated {
		return ""
	}
	return c.Format
}

// Pool is the ordered candidate set for one entry during one build pass.
type Pool struct {
	items []Candidate
}

// NewPool copies candidates into a fresh pool.
func NewPool(candidates []Candidate) *Pool {
	items := make([]Candidate, len(candidates))
	copy(items, candidates)
	return &Pool{items: items}
}

// Prepend inserts c ahead of every existing candidate.
func (p *Pool) Prepend(c Candidate) {
	p.items = append([]Candidate{c}, p.items...)
}

// Items returns a snapshot of the pool in order.
func (p *Pool) Items() []Candidate {
	out := make([]Candidate, len(p.items))
	copy(out, p.items)
	return out
}

// Len reports the number of candidates.
func (p *Pool) Len() int { return len(p.items) }
