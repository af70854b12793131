package core

// Roles
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

const AnonymousID = "anonymous"

var AllRoles = []string{RoleStudent, RoleAdmin}

// Principal is the identity performing an action.
// It is passed explicitly to every operation that needs it.
type Principal struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// Anonymous is the Principal of unauthenticated requests.
var Anonymous = Principal{ID: AnonymousID}

func (p Principal) IsAuthenticated() bool { return p.ID != "" && p.ID != AnonymousID }
func (p Principal) IsAdmin() bool         { return p.IsAuthenticated() && p.Role == RoleAdmin }

// Author returns the identifier recorded on records created by p.
func (p Principal) Author() string {
	if !p.IsAuthenticated() {
		return AnonymousID
	}
	return p.ID
}
