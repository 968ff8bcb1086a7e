package model

import (
	"strings"
	"time"
)

// CompetitionLevel enumerates how broad a scholarship's applicant pool is.
type CompetitionLevel string

const (
	CompetitionLocal    CompetitionLevel = "local"
	CompetitionRegional CompetitionLevel = "regional"
	CompetitionState    CompetitionLevel = "state"
	CompetitionNational CompetitionLevel = "national"
)

// ScholarshipExtracted is the canonical shape produced by the extraction
// engine. Every field is optional except Name and ApplicationURL, which
// default to "" and the source URL respectively when the model omits them.
type ScholarshipExtracted struct {
	Name                   string   `json:"name"`
	Organization           *string  `json:"organization"`
	Amount                 *int     `json:"amount"`
	Deadline               *string  `json:"deadline"` // YYYY-MM-DD
	ApplicationURL         string   `json:"application_url"`
	ShortDescription       *string  `json:"short_description"`
	FullDescription        *string  `json:"full_description"`
	GPAMin                 *float64 `json:"gpa_min"`
	GPAMax                 *float64 `json:"gpa_max"`
	National               *bool    `json:"national"`
	States                 []string `json:"states"`
	Cities                 []string `json:"cities"`
	Demographics           []string `json:"demographics"`
	Majors                 []string `json:"majors"`
	Athletics              []string `json:"athletics"`
	ECCategories           []string `json:"ec_categories"`
	EssayRequired          *bool    `json:"essay_required"`
	EssayPrompts           []string `json:"essay_prompts"`
	EssayWordCount         *int     `json:"essay_word_count"`
	RecommendationRequired *bool    `json:"recommendation_required"`
	TranscriptRequired     *bool    `json:"transcript_required"`
	ResumeRequired         *bool    `json:"resume_required"`
	CompetitionLevel       *string  `json:"competition_level"` // local|regional|state|national
	EstimatedApplicants    *int     `json:"estimated_applicants"`
}

// Scholarship is a canonical catalog row, created exactly once by the
// approve transition from a pending record's extracted data.
type Scholarship struct {
	ID                     int64     `json:"id"`
	Name                   string    `json:"name"`
	Organization           *string   `json:"organization"`
	Amount                 *int      `json:"amount"`
	Deadline               *string   `json:"deadline"`
	ApplicationURL         string    `json:"application_url"`
	ShortDescription       *string   `json:"short_description"`
	FullDescription        *string   `json:"full_description"`
	GPAMin                 *float64  `json:"gpa_min"`
	GPAMax                 *float64  `json:"gpa_max"`
	National               bool      `json:"national"`
	States                 []string  `json:"states"`
	Cities                 []string  `json:"cities"`
	Demographics           []string  `json:"demographics"`
	Majors                 []string  `json:"majors"`
	Athletics              []string  `json:"athletics"`
	ECCategories           []string  `json:"ec_categories"`
	EssayRequired          bool      `json:"essay_required"`
	EssayPrompts           []string  `json:"essay_prompts"`
	EssayWordCount         *int      `json:"essay_word_count"`
	RecommendationRequired bool      `json:"recommendation_required"`
	TranscriptRequired     bool      `json:"transcript_required"`
	ResumeRequired         bool      `json:"resume_required"`
	CompetitionLevel       *string   `json:"competition_level"`
	EstimatedApplicants    *int      `json:"estimated_applicants"`
	SourceURL              string    `json:"source_url"` // normalized
	CreatedAt              time.Time `json:"created_at"`
}

// FromExtracted builds a catalog row from extracted data, applying the
// approve-time defaults: booleans false when absent, list fields carried
// through as-is (nil stays nil).
func FromExtracted(e *ScholarshipExtracted, sourceURL string) *Scholarship {
	s := &Scholarship{
		Name:                e.Name,
		Organization:        e.Organization,
		Amount:              e.Amount,
		Deadline:            e.Deadline,
		ApplicationURL:      e.ApplicationURL,
		ShortDescription:    e.ShortDescription,
		FullDescription:     e.FullDescription,
		GPAMin:              e.GPAMin,
		GPAMax:              e.GPAMax,
		States:              e.States,
		Cities:              e.Cities,
		Demographics:        e.Demographics,
		Majors:              e.Majors,
		Athletics:           e.Athletics,
		ECCategories:        e.ECCategories,
		EssayPrompts:        e.EssayPrompts,
		EssayWordCount:      e.EssayWordCount,
		CompetitionLevel:    e.CompetitionLevel,
		EstimatedApplicants: e.EstimatedApplicants,
		SourceURL:           sourceURL,
	}
	if e.ApplicationURL == "" {
		// Source URLs are stored normalized with the scheme stripped, so
		// the fallback re-prefixes https to stay resolvable.
		s.ApplicationURL = ensureScheme(sourceURL)
	}
	if e.National != nil {
		s.National = *e.National
	}
	if e.EssayRequired != nil {
		s.EssayRequired = *e.EssayRequired
	}
	if e.RecommendationRequired != nil {
		s.RecommendationRequired = *e.RecommendationRequired
	}
	if e.TranscriptRequired != nil {
		s.TranscriptRequired = *e.TranscriptRequired
	}
	if e.ResumeRequired != nil {
		s.ResumeRequired = *e.ResumeRequired
	}
	return s
}

func ensureScheme(u string) string {
	if u == "" || strings.Contains(u, "://") {
		return u
	}
	return "https://" + u
}
