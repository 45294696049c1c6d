package crawler

import (
	"errors"
	"time"
)

// Section is the internal news category an article is filed under.
type Section string

// Section values persisted with each article.
const (
	SectionPolitics   Section = "POLITICS"
	SectionEconomy    Section = "ECONOMY"
	SectionSocial     Section = "SOCIAL"
	SectionTechnology Section = "TECHNOLOGY"
)

// DefaultSource is stored as the article source when no byline was resolved.
const DefaultSource = "NAVER"

var (
	// ErrDuplicateURL is returned by an ArticleStore when a bulk save hits the
	// unique constraint on url.
	ErrDuplicateURL = errors.New("article url already exists")
	// ErrFetch marks a fetch that failed after exhausting its retry budget.
	ErrFetch = errors.New("fetch failed")
)

// Candidate is a discovered article that has not been persisted yet.
type Candidate struct {
	URL          string
	Section      Section
	Title        string
	Content      string
	ThumbnailURL string
	Publisher    string
	Byline       string
	PublishedAt  time.Time
}

// Source returns the attribution stored with the article.
func (c Candidate) Source() string {
	if c.Byline != "" {
		return c.Byline
	}
	return DefaultSource
}

// Article is the persisted form of a Candidate.
type Article struct {
	ID           string    `json:"id"`
	Section      Section   `json:"section"`
	Title        string    `json:"title"`
	Content      string    `json:"content,omitempty"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	Source       string    `json:"source"`
	Publisher    string    `json:"publisher,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	Likes        int64     `json:"likes"`
	Dislikes     int64     `json:"dislikes"`
	CreatedAt    time.Time `json:"created_at"`
}

// SectionReport summarizes one section of a run.
type SectionReport struct {
	SectionID  string  `json:"section_id"`
	Section    Section `json:"section"`
	Candidates int     `json:"candidates"`
	Saved      int     `json:"saved"`
	Error      string  `json:"error,omitempty"`
}

// RunReport summarizes one orchestrator run.
type RunReport struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Sections   []SectionReport `json:"sections"`
	TotalSaved int             `json:"total_saved"`
}

// Failed reports how many sections ended with an error.
func (r RunReport) Failed() int {
	n := 0
	for _, s := range r.Sections {
		if s.Error != "" {
			n++
		}
	}
	return n
}
