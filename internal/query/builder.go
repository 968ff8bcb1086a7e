// Package query turns a student profile into a bounded, deterministic list
// of search query strings. Building queries is a pure function: no network,
// no side effects, and the same profile always yields the same queries.
package query

import (
	"fmt"
	"strings"

	"github.com/scholarpath/scout-cli/internal/model"
)

// maxQueryLen caps each emitted query string.
const maxQueryLen = 200

// maxPerListSignal limits how many athletics / extracurricular entries each
// contribute their own query, keeping query count linear in signal count.
const maxPerListSignal = 2

// Build returns the ordered search queries for a profile: three baseline
// queries keyed on location, plus one query per optional signal present.
// Signals are independent and additive, never combined.
func Build(p model.Profile) []string {
	loc := strings.TrimSpace(strings.TrimSpace(p.City) + " " + strings.TrimSpace(p.State))

	queries := []string{
		fmt.Sprintf("scholarships for high school seniors class of %d %s", p.GraduationYear, loc),
		fmt.Sprintf("%s community foundation local scholarships", loc),
		fmt.Sprintf("Rotary Club Elks Lodge Kiwanis scholarship %s", loc),
	}

	if p.FirstGeneration {
		queries = append(queries, fmt.Sprintf("first generation college student scholarships %s", p.State))
	}
	if len(p.Ethnicity) > 0 {
		queries = append(queries, fmt.Sprintf("%s student scholarships %s", strings.Join(p.Ethnicity, " "), p.State))
	}
	if p.Gender != "" {
		queries = append(queries, fmt.Sprintf("scholarships for %s students %s", p.Gender, p.State))
	}
	if isLowIncome(p.IncomeBracket) {
		queries = append(queries, fmt.Sprintf("need based scholarships for low income students %s", p.State))
	}
	if p.IntendedMajor != "" {
		queries = append(queries, fmt.Sprintf("%s major scholarships for incoming college freshmen", p.IntendedMajor))
	}
	for _, sport := range capList(p.Athletics) {
		queries = append(queries, fmt.Sprintf("%s athletic scholarships %s high school", sport, p.State))
	}
	for _, cat := range capList(p.ECCategories) {
		queries = append(queries, fmt.Sprintf("%s scholarships for high school students", cat))
	}

	out := queries[:0]
	for _, q := range queries {
		q = strings.Join(strings.Fields(q), " ")
		if q == "" {
			continue
		}
		if len(q) > maxQueryLen {
			q = strings.TrimSpace(q[:maxQueryLen])
		}
		out = append(out, q)
	}
	return out
}

func isLowIncome(bracket string) bool {
	switch strings.ToLower(strings.TrimSpace(bracket)) {
	case "low", "low_income", "low-income", "under_30k", "under_50k":
		return true
	}
	return false
}

func capList(items []string) []string {
	var out []string
	for _, s := range items {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
		if len(out) == maxPerListSignal {
			break
		}
	}
	return out
}
