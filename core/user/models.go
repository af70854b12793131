package user

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/argon2"

	"github.com/trezcool/coursereview/core"
)

// argon2id parameters
const (
	saltLen    = 16
	keyLen     = 32
	argonTime  = 1
	argonMem   = 64 * 1024
	argonProcs = 4
)

// Token kinds
const (
	TokenVerify = "verify"
	TokenReset  = "reset"
)

type User struct {
	Email        string    `json:"email"`
	PasswordSalt string    `json:"password_salt"` // base64
	PasswordHash string    `json:"password_hash"` // base64
	Role         string    `json:"role"`
	Display      string    `json:"display"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"` // UTC
}

// SetPassword hashes pwd with a fresh random salt.
func (u *User) SetPassword(pwd string) error {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return err
	}
	u.PasswordSalt = base64.StdEncoding.EncodeToString(salt)
	u.PasswordHash = base64.StdEncoding.EncodeToString(hashPassword(pwd, salt))
	return nil
}

func (u User) CheckPassword(pwd string) bool {
	salt, err := base64.StdEncoding.DecodeString(u.PasswordSalt)
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(u.PasswordHash)
	if err != nil {
		return false
	}
	return subtle.ConstantTimeCompare(hashPassword(pwd, salt), want) == 1
}

func hashPassword(pwd string, salt []byte) []byte {
	return argon2.IDKey([]byte(pwd), salt, argonTime, argonMem, argonProcs, keyLen)
}

func (u User) IsAdmin() bool { return u.Role == core.RoleAdmin }

// Principal returns the identity u acts as.
func (u User) Principal() core.Principal {
	return core.Principal{ID: u.Email, Role: u.Role}
}

// Token is a single-use verification or password reset token.
type Token struct {
	Token     string    `json:"token"`
	Email     string    `json:"email"`
	Kind      string    `json:"kind"`
	Used      bool      `json:"used"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (t Token) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(t.CreatedAt) > ttl
}

// Accounts is a snapshot of users and their tokens.
type Accounts struct {
	Version int64
	Users   []User
	Tokens  []Token
	Stale   bool
}

func (acc Accounts) find(email string) (int, bool) {
	for i, u := range acc.Users {
		if u.Email == email {
			return i, true
		}
	}
	return -1, false
}

func (acc Accounts) findToken(token, kind string) (int, bool) {
	for i, t := range acc.Tokens {
		if t.Kind == kind && subtle.ConstantTimeCompare([]byte(t.Token), []byte(token)) == 1 {
			return i, true
		}
	}
	return -1, false
}

// NewUser contains information needed to sign up.
type NewUser struct {
	Email           string `json:"email" validate:"required,email"`
	Display         string `json:"display" validate:"required,max=100,nocontrol"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Display = core.CleanString(nu.Display)
	return validate.Struct(nu)
}

type ResetPassword struct {
	Token           string `json:"token" validate:"required"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
}

func (rp *ResetPassword) Validate(validate *validator.Validate) error {
	rp.Token = core.CleanString(rp.Token)
	return validate.Struct(rp)
}

// AdminUser is what the admin CLI provides to create or update an account.
type AdminUser struct {
	Email    string `json:"email" validate:"required,email"`
	Display  string `json:"display" validate:"required,max=100,nocontrol"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=student admin"`
}

func (au *AdminUser) Validate(validate *validator.Validate) error {
	au.Email = core.CleanString(au.Email, true /* lower */)
	au.Display = core.CleanString(au.Display)
	au.Role = core.CleanString(au.Role, true /* lower */)
	return validate.Struct(au)
}
