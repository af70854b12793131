package catalog

import (
	"bytes"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/trezcool/coursereview/core"
	appfs "github.com/trezcool/coursereview/fs"
)

const defaultCatalogPath = "catalog/catalog.yaml"

var ErrNotFound = errors.New("not found in catalog")

// Catalog is the read-only course hierarchy type -> faculty -> course.
// It is safe for concurrent use.
type Catalog struct {
	types     []Type
	faculties map[string][]Faculty // {typeID: faculties}
	courses   map[string][]Course  // {typeID/facultyCode: courses}
	byCode    map[string]Course
}

// LoadDefault loads the embedded catalog.
func LoadDefault() (*Catalog, error) {
	data, err := appfs.FS.ReadFile(defaultCatalogPath)
	if err != nil {
		return nil, errors.Wrap(err, "reading embedded catalog")
	}
	return Load(bytes.NewReader(data))
}

// LoadFile loads the catalog at path.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening catalog")
	}
	//goland:noinspection GoUnhandledErrorResult
	defer f.Close()
	return Load(f)
}

// Load decodes a YAML catalog and checks its consistency.
func Load(r io.Reader) (*Catalog, error) {
	var doc yamlCatalog
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding catalog")
	}

	cat := &Catalog{
		faculties: make(map[string][]Faculty),
		courses:   make(map[string][]Course),
		byCode:    make(map[string]Course),
	}
	for _, yt := range doc.Types {
		if yt.ID == "" || yt.Name == "" {
			return nil, errors.Errorf("catalog type %q: id and name are required", yt.ID)
		}
		if _, dup := cat.faculties[yt.ID]; dup {
			return nil, errors.Errorf("duplicate catalog type %q", yt.ID)
		}
		cat.types = append(cat.types, yt.Type)
		facs := make([]Faculty, 0, len(yt.Faculties))
		for _, yf := range yt.Faculties {
			if yf.Code == "" || yf.Name == "" {
				return nil, errors.Errorf("catalog faculty %s/%q: code and name are required", yt.ID, yf.Code)
			}
			if _, dup := cat.courses[courseKey(yt.ID, yf.Code)]; dup {
				return nil, errors.Errorf("duplicate faculty %q in catalog type %q", yf.Code, yt.ID)
			}
			facs = append(facs, yf.Faculty)
			courses := make([]Course, 0, len(yf.Courses))
			for _, c := range yf.Courses {
				c.Code = core.CleanString(c.Code)
				if c.Code == "" || c.Name == "" {
					return nil, errors.Errorf("catalog course in %s/%s: code and name are required", yt.ID, yf.Code)
				}
				if c.Credit < 0 {
					return nil, errors.Errorf("catalog course %s: negative credit", c.Code)
				}
				if _, dup := cat.byCode[c.Code]; dup {
					return nil, errors.Errorf("duplicate course code %q", c.Code)
				}
				c.Type = yt.ID
				c.TypeName = yt.Name
				c.FacultyCode = yf.Code
				c.FacultyName = yf.Name
				cat.byCode[c.Code] = c
				courses = append(courses, c)
			}
			cat.courses[courseKey(yt.ID, yf.Code)] = courses
		}
		cat.faculties[yt.ID] = facs
	}

	for _, c := range cat.byCode {
		if c.Prerequisite == "" {
			continue
		}
		if _, ok := cat.byCode[c.Prerequisite]; !ok {
			return nil, errors.Errorf("course %s: unknown prerequisite %q", c.Code, c.Prerequisite)
		}
	}
	return cat, nil
}

func courseKey(typeID, facultyCode string) string {
	return typeID + "/" + facultyCode
}

func (cat *Catalog) ListTypes() []Type {
	types := make([]Type, len(cat.types))
	copy(types, cat.types)
	return types
}

func (cat *Catalog) ListFaculties(typeID string) ([]Faculty, error) {
	facs, ok := cat.faculties[typeID]
	if !ok {
		return nil, ErrNotFound
	}
	res := make([]Faculty, len(facs))
	copy(res, facs)
	return res, nil
}

func (cat *Catalog) ListCourses(typeID, facultyCode string) ([]Course, error) {
	courses, ok := cat.courses[courseKey(typeID, facultyCode)]
	if !ok {
		return nil, ErrNotFound
	}
	res := make([]Course, len(courses))
	copy(res, courses)
	return res, nil
}

func (cat *Catalog) Lookup(code string) (Course, bool) {
	c, ok := cat.byCode[core.CleanString(code)]
	return c, ok
}

// Filter returns the courses matching every non-empty field of q, in catalog order.
// Text matches case-insensitively against the course code and name.
func (cat *Catalog) Filter(q Query) []Course {
	text := strings.ToLower(core.CleanString(q.Text))
	res := make([]Course, 0)
	for _, t := range cat.types {
		if q.Type != "" && q.Type != t.ID {
			continue
		}
		for _, f := range cat.faculties[t.ID] {
			if q.Faculty != "" && q.Faculty != f.Code {
				continue
			}
			for _, c := range cat.courses[courseKey(t.ID, f.Code)] {
				if q.Year != 0 && q.Year != c.Year {
					continue
				}
				if text != "" &&
					!strings.Contains(strings.ToLower(c.Code), text) &&
					!strings.Contains(strings.ToLower(c.Name), text) {
					continue
				}
				res = append(res, c)
			}
		}
	}
	return res
}

// Years lists the distinct study years offered, optionally narrowed to a type and faculty.
func (cat *Catalog) Years(typeID, facultyCode string) []int {
	seen := make(map[int]bool)
	for _, c := range cat.Filter(Query{Type: typeID, Faculty: facultyCode}) {
		if c.Year > 0 {
			seen[c.Year] = true
		}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
