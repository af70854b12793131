package review

import "sort"

type (
	CourseGroup struct {
		Code    string   `json:"course_code"`
		Name    string   `json:"course_name"`
		Reviews []Review `json:"reviews"`
	}

	FacultyGroup struct {
		Code    string        `json:"faculty"`
		Name    string        `json:"faculty_name"`
		Courses []CourseGroup `json:"courses"`
	}

	TypeGroup struct {
		Type      string         `json:"course_type"`
		Faculties []FacultyGroup `json:"faculties"`
	}
)

// Group partitions reviews into course_type -> faculty -> course.
// Keys are in ascending order at every level; reviews keep their input order within a course.
func Group(reviews []Review) []TypeGroup {
	type facultyAcc struct {
		name    string
		courses map[string]*CourseGroup
	}
	tree := make(map[string]map[string]*facultyAcc)

	for _, r := range reviews {
		facs, ok := tree[r.CourseType]
		if !ok {
			facs = make(map[string]*facultyAcc)
			tree[r.CourseType] = facs
		}
		fac, ok := facs[r.FacultyCode]
		if !ok {
			fac = &facultyAcc{name: r.FacultyName, courses: make(map[string]*CourseGroup)}
			facs[r.FacultyCode] = fac
		}
		course, ok := fac.courses[r.CourseCode]
		if !ok {
			course = &CourseGroup{Code: r.CourseCode, Name: r.CourseName}
			fac.courses[r.CourseCode] = course
		}
		course.Reviews = append(course.Reviews, r)
	}

	groups := make([]TypeGroup, 0, len(tree))
	for _, typeID := range sortedKeys(tree) {
		facs := tree[typeID]
		tg := TypeGroup{Type: typeID, Faculties: make([]FacultyGroup, 0, len(facs))}
		for _, facCode := range sortedKeys(facs) {
			fac := facs[facCode]
			fg := FacultyGroup{Code: facCode, Name: fac.name, Courses: make([]CourseGroup, 0, len(fac.courses))}
			for _, code := range sortedKeys(fac.courses) {
				fg.Courses = append(fg.Courses, *fac.courses[code])
			}
			tg.Faculties = append(tg.Faculties, fg)
		}
		groups = append(groups, tg)
	}
	return groups
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
