package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scholarpath/scout-cli/internal/model"
)

func baseProfile() model.Profile {
	return model.Profile{
		City:           "Springfield",
		State:          "IL",
		GraduationYear: 2027,
	}
}

func TestBuild_BaselineOnly(t *testing.T) {
	queries := Build(baseProfile())
	require.Len(t, queries, 3)

	for _, q := range queries {
		assert.NotEmpty(t, q)
		assert.LessOrEqual(t, len(q), 200)
		assert.NotContains(t, q, "  ", "whitespace collapsed")
	}
	assert.Contains(t, queries[0], "Springfield IL")
	assert.Contains(t, queries[1], "community foundation")
	assert.Contains(t, queries[2], "Rotary")
}

func TestBuild_EachSignalAddsOneQuery(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Profile)
		want   int
	}{
		{"first gen", func(p *model.Profile) { p.FirstGeneration = true }, 4},
		{"ethnicity joined", func(p *model.Profile) { p.Ethnicity = []string{"Hispanic", "Latino"} }, 4},
		{"gender", func(p *model.Profile) { p.Gender = "female" }, 4},
		{"low income", func(p *model.Profile) { p.IncomeBracket = "low" }, 4},
		{"high income no query", func(p *model.Profile) { p.IncomeBracket = "over_150k" }, 3},
		{"major", func(p *model.Profile) { p.IntendedMajor = "mechanical engineering" }, 4},
		{"one sport", func(p *model.Profile) { p.Athletics = []string{"soccer"} }, 4},
		{"three sports capped at two", func(p *model.Profile) { p.Athletics = []string{"soccer", "track", "swimming"} }, 5},
		{"one ec category", func(p *model.Profile) { p.ECCategories = []string{"robotics"} }, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseProfile()
			tt.mutate(&p)
			assert.Len(t, Build(p), tt.want)
		})
	}
}

func TestBuild_SignalsAreAdditive(t *testing.T) {
	p := baseProfile()
	p.FirstGeneration = true
	p.Gender = "female"
	p.IntendedMajor = "biology"
	p.Athletics = []string{"soccer", "track"}
	p.ECCategories = []string{"debate", "volunteering"}

	// 3 baseline + firstgen + gender + major + 2 sports + 2 ECs = 10.
	assert.Len(t, Build(p), 10)
}

func TestBuild_Deterministic(t *testing.T) {
	p := baseProfile()
	p.Ethnicity = []string{"Native American"}
	p.IntendedMajor = "nursing"

	first := Build(p)
	second := Build(p)
	assert.Equal(t, first, second)
}

func TestBuild_EmptyProfileNeverPanics(t *testing.T) {
	queries := Build(model.Profile{})
	require.Len(t, queries, 3)
	for _, q := range queries {
		assert.NotEmpty(t, q)
	}
}

func TestBuild_LongMajorTruncated(t *testing.T) {
	p := baseProfile()
	long := ""
	for i := 0; i < 30; i++ {
		long += "interdisciplinary "
	}
	p.IntendedMajor = long

	for _, q := range Build(p) {
		assert.LessOrEqual(t, len(q), 200)
	}
}
