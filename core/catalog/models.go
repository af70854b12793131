package catalog

// Type is the top level of the catalog hierarchy (e.g. a faculty of the university).
type Type struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	NameTH string `json:"name_th,omitempty" yaml:"name_th"`
}

// Faculty groups courses within a Type.
type Faculty struct {
	Code   string `json:"code" yaml:"code"`
	Name   string `json:"name" yaml:"name"`
	NameTH string `json:"name_th,omitempty" yaml:"name_th"`
}

// Course is a catalog entry. It is immutable once loaded.
type Course struct {
	Type          string `json:"course_type" yaml:"-"`
	TypeName      string `json:"course_type_name" yaml:"-"`
	FacultyCode   string `json:"faculty" yaml:"-"`
	FacultyName   string `json:"faculty_name" yaml:"-"`
	Code          string `json:"code" yaml:"code"`
	Name          string `json:"name" yaml:"name"`
	Year          int    `json:"year,omitempty" yaml:"year"`
	Credit        int    `json:"credit" yaml:"credit"`
	Prerequisite  string `json:"prerequisite,omitempty" yaml:"prerequisite"`
	DescriptionEN string `json:"description_en,omitempty" yaml:"description_en"`
	DescriptionTH string `json:"description_th,omitempty" yaml:"description_th"`
}

// Query filters catalog courses. Empty fields match everything.
type Query struct {
	Type    string `query:"type"`
	Faculty string `query:"faculty"`
	Year    int    `query:"year"`
	Text    string `query:"q"`
}

// yaml document layout
type (
	yamlCatalog struct {
		Types []yamlType `yaml:"types"`
	}

	yamlType struct {
		Type      `yaml:",inline"`
		Faculties []yamlFaculty `yaml:"faculties"`
	}

	yamlFaculty struct {
		Faculty `yaml:",inline"`
		Courses []Course `yaml:"courses"`
	}
)
