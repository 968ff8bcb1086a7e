package model

// Profile describes the student whose eligibility drives query generation.
// It is read-only input to the pipeline and is never persisted by it.
type Profile struct {
	City            string   `json:"city" yaml:"city"`
	State           string   `json:"state" yaml:"state"`
	GPA             *float64 `json:"gpa,omitempty" yaml:"gpa,omitempty"`
	GraduationYear  int      `json:"graduation_year" yaml:"graduation_year"`
	Ethnicity       []string `json:"ethnicity,omitempty" yaml:"ethnicity,omitempty"`
	Gender          string   `json:"gender,omitempty" yaml:"gender,omitempty"`
	FirstGeneration bool     `json:"first_generation" yaml:"first_generation"`
	IncomeBracket   string   `json:"income_bracket,omitempty" yaml:"income_bracket,omitempty"`
	IntendedMajor   string   `json:"intended_major,omitempty" yaml:"intended_major,omitempty"`
	Athletics       []string `json:"athletics,omitempty" yaml:"athletics,omitempty"`
	ECCategories    []string `json:"ec_categories,omitempty" yaml:"ec_categories,omitempty"`
}
