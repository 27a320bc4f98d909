// Package portfolio implements the usage-gated content domain: portfolios,
// projects, blog posts and profile sections. Every creation of a limit-gated
// resource reserves a slot through the entitlement manager before the row is
// inserted, so the per-user ceilings hold even under concurrent requests.
package portfolio

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrSlugTaken is returned when a slug collides with an existing record
	ErrSlugTaken = errors.New("slug already taken")

	// ErrInvalidInput is returned when a record fails validation
	ErrInvalidInput = errors.New("invalid input")
)

// SectionKind enumerates the profile section types a portfolio page can carry.
type SectionKind string

const (
	SectionExperience    SectionKind = "experience"
	SectionEducation     SectionKind = "education"
	SectionCertification SectionKind = "certification"
	SectionSkill         SectionKind = "skill"
	SectionFAQ           SectionKind = "faq"
)

// SectionKinds returns all section kinds in display order.
func SectionKinds() []SectionKind {
	return []SectionKind{
		SectionExperience,
		SectionEducation,
		SectionCertification,
		SectionSkill,
		SectionFAQ,
	}
}

// Valid reports whether k is a known section kind.
func (k SectionKind) Valid() bool {
	switch k {
	case SectionExperience, SectionEducation, SectionCertification, SectionSkill, SectionFAQ:
		return true
	default:
		return false
	}
}

// Portfolio is a user's public site, addressed by its slug.
type Portfolio struct {
	ID           string
	UserID       string
	Slug         string // public username, unique across all portfolios
	Name         string
	Description  string
	ProfileImage string
	BannerImage  string
	PrimaryColor string
	SEOTitle     string
	SEOSubtitle  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Project is a showcased work item; its slug is unique within the portfolio.
type Project struct {
	ID           string
	PortfolioID  string
	UserID       string // denormalized for the usage gate
	Slug         string
	Title        string
	Description  string
	Technologies []string
	DemoURL      string
	RepoURL      string
	CoverImage   string
	Featured     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Post is a blog entry with a draft/published lifecycle. Creation counts
// against the blog post limit regardless of publication state.
type Post struct {
	ID          string
	PortfolioID string
	UserID      string
	Slug        string
	Title       string
	Content     string
	Published   bool
	PublishedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Section is a single profile entry (one job, one degree, one skill, ...).
// SortOrder positions it within its kind; reordering rewrites the whole
// ordering for that kind.
type Section struct {
	ID          string
	PortfolioID string
	UserID      string
	Kind        SectionKind
	Title       string
	Subtitle    string
	Description string
	StartDate   *time.Time
	EndDate     *time.Time
	SortOrder   int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// PublicView is the assembled public page for one portfolio slug: the
// portfolio itself, its projects, sections grouped by kind, and the
// published posts only.
type PublicView struct {
	Portfolio Portfolio
	Projects  []Project
	Sections  map[SectionKind][]Section
	Posts     []Post
}
