package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/coursereview/core"
)

const defaultMaxRetries = 3

var (
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotVerified        = errors.New("email address is not verified")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	errStaleSnapshot = errors.New("store unreachable: only a cached snapshot is available")

	nowFunc  = time.Now // mockable
	newToken = func() string { return uuid.NewString() }
)

type (
	// Repository loads and saves the accounts part of the store.
	// Save fails with core.ErrConflict when the store changed since Accounts.Version was read.
	Repository interface {
		Load(ctx context.Context) (Accounts, error)
		Save(ctx context.Context, acc Accounts) error
	}

	ServiceDeps struct {
		Conf       *core.Config
		Repo       Repository
		Mail       core.EmailService
		Validate   *validator.Validate
		Translator ut.Translator
		Logger     core.Logger
		MaxRetries int
	}

	Service struct {
		conf       *core.Config
		repo       Repository
		mail       core.EmailService
		validate   *validator.Validate
		translator ut.Translator
		logger     core.Logger
		maxRetries int
	}
)

func NewService(deps ServiceDeps) *Service {
	svc := &Service{
		conf:       deps.Conf,
		repo:       deps.Repo,
		mail:       deps.Mail,
		validate:   deps.Validate,
		translator: deps.Translator,
		logger:     deps.Logger,
		maxRetries: deps.MaxRetries,
	}
	if svc.maxRetries <= 0 {
		svc.maxRetries = defaultMaxRetries
	}
	return svc
}

func (svc *Service) mutate(ctx context.Context, fn func(acc *Accounts) (bool, error)) error {
	for attempt := 0; ; attempt++ {
		acc, err := svc.repo.Load(ctx)
		if err != nil {
			return errors.Wrap(err, "loading accounts")
		}
		if acc.Stale {
			return core.NewStoreError("load", errStaleSnapshot, false)
		}

		changed, err := fn(&acc)
		if err != nil || !changed {
			return err
		}

		err = svc.repo.Save(ctx, acc)
		if err == nil {
			return nil
		}
		if !errors.Is(err, core.ErrConflict) || attempt >= svc.maxRetries {
			return errors.Wrap(err, "saving accounts")
		}
		svc.logger.Warn(fmt.Sprintf("account store conflict, retrying (%d/%d)", attempt+1, svc.maxRetries))
	}
}

// Signup creates an unverified student account and emails it a verification token.
func (svc *Service) Signup(ctx context.Context, nu NewUser) (User, error) {
	if err := nu.Validate(svc.validate); err != nil {
		return User{}, core.TranslateValidationErrors(err, svc.translator)
	}

	var (
		usr User
		tok Token
	)
	err := svc.mutate(ctx, func(acc *Accounts) (bool, error) {
		if _, exists := acc.find(nu.Email); exists {
			return false, core.NewValidationError(ErrEmailExists, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
		}
		usr = User{
			Email:     nu.Email,
			Role:      core.RoleStudent,
			Display:   nu.Display,
			CreatedAt: nowFunc().UTC().Truncate(time.Second),
		}
		if err := usr.SetPassword(nu.Password); err != nil {
			return false, err
		}
		acc.Users = append(append(make([]User, 0, len(acc.Users)+1), acc.Users...), usr)
		tok = issueToken(acc, usr.Email, TokenVerify)
		return true, nil
	})
	if err != nil {
		return User{}, err
	}
	svc.sendVerificationMail(usr, tok)
	return usr, nil
}

// Login checks credentials. Unverified accounts are refused with ErrNotVerified.
func (svc *Service) Login(ctx context.Context, email, pwd string) (User, error) {
	acc, err := svc.repo.Load(ctx)
	if err != nil {
		return User{}, errors.Wrap(err, "loading accounts")
	}
	idx, ok := acc.find(core.CleanString(email, true /* lower */))
	if !ok || !acc.Users[idx].CheckPassword(pwd) {
		return User{}, ErrInvalidCredentials
	}
	usr := acc.Users[idx]
	if !usr.IsVerified {
		return User{}, ErrNotVerified
	}
	return usr, nil
}

// SendVerification issues a new verification token. Unknown and already verified emails are ignored.
func (svc *Service) SendVerification(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	var (
		usr  User
		tok  Token
		send bool
	)
	err := svc.mutate(ctx, func(acc *Accounts) (bool, error) {
		idx, ok := acc.find(email)
		if !ok || acc.Users[idx].IsVerified {
			send = false
			return false, nil
		}
		usr = acc.Users[idx]
		tok = issueToken(acc, email, TokenVerify)
		send = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if send {
		svc.sendVerificationMail(usr, tok)
	}
	return nil
}

// Verify consumes a verification token and marks its account verified.
func (svc *Service) Verify(ctx context.Context, token string) (User, error) {
	var usr User
	err := svc.mutate(ctx, func(acc *Accounts) (bool, error) {
		idx, err := svc.consumeToken(acc, core.CleanString(token), TokenVerify, svc.conf.VerificationTimeoutDelta)
		if err != nil {
			return false, err
		}
		acc.Users = append([]User(nil), acc.Users...)
		acc.Users[idx].IsVerified = true
		usr = acc.Users[idx]
		return true, nil
	})
	if err != nil {
		return User{}, err
	}
	return usr, nil
}

// RequestPasswordReset emails a reset token. It is silent for unknown emails.
func (svc *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = core.CleanString(email, true /* lower */)
	var (
		usr  User
		tok  Token
		send bool
	)
	err := svc.mutate(ctx, func(acc *Accounts) (bool, error) {
		idx, ok := acc.find(email)
		if !ok {
			send = false
			return false, nil
		}
		usr = acc.Users[idx]
		tok = issueToken(acc, email, TokenReset)
		send = true
		return true, nil
	})
	if err != nil {
		return err
	}
	if send {
		svc.sendPasswordResetMail(usr, tok)
	}
	return nil
}

// ResetPassword consumes a reset token and sets the new password.
// A successful reset also verifies the account since the token proves ownership of the email.
func (svc *Service) ResetPassword(ctx context.Context, rp ResetPassword) error {
	if err := rp.Validate(svc.validate); err != nil {
		return core.TranslateValidationErrors(err, svc.translator)
	}
	return svc.mutate(ctx, func(acc *Accounts) (bool, error) {
		idx, err := svc.consumeToken(acc, rp.Token, TokenReset, svc.conf.PasswordResetTimeoutDelta)
		if err != nil {
			return false, err
		}
		usr := acc.Users[idx]
		if err := svc.checkPasswordFor(usr, rp.Password); err != nil {
			return false, err
		}
		if err := usr.SetPassword(rp.Password); err != nil {
			return false, err
		}
		usr.IsVerified = true
		acc.Users = append([]User(nil), acc.Users...)
		acc.Users[idx] = usr
		return true, nil
	})
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	acc, err := svc.repo.Load(ctx)
	if err != nil {
		return User{}, errors.Wrap(err, "loading accounts")
	}
	idx, ok := acc.find(core.CleanString(email, true /* lower */))
	if !ok {
		return User{}, ErrNotFound
	}
	return acc.Users[idx], nil
}

// CreateOrUpdate creates a verified account or overwrites the display, role and password of an existing one.
func (svc *Service) CreateOrUpdate(ctx context.Context, au AdminUser) (usr User, created bool, err error) {
	if err := au.Validate(svc.validate); err != nil {
		return User{}, false, core.TranslateValidationErrors(err, svc.translator)
	}
	err = svc.mutate(ctx, func(acc *Accounts) (bool, error) {
		idx, exists := acc.find(au.Email)
		if exists {
			usr = acc.Users[idx]
		} else {
			usr = User{Email: au.Email, CreatedAt: nowFunc().UTC().Truncate(time.Second)}
		}
		usr.Display = au.Display
		usr.Role = au.Role
		usr.IsVerified = true
		if err := usr.SetPassword(au.Password); err != nil {
			return false, err
		}

		acc.Users = append(make([]User, 0, len(acc.Users)+1), acc.Users...)
		if exists {
			acc.Users[idx] = usr
		} else {
			acc.Users = append(acc.Users, usr)
		}
		created = !exists
		return true, nil
	})
	if err != nil {
		return User{}, false, err
	}
	return usr, created, nil
}

// SetPassword replaces the password of an existing account.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	email = core.CleanString(email, true /* lower */)
	return svc.mutate(ctx, func(acc *Accounts) (bool, error) {
		idx, ok := acc.find(email)
		if !ok {
			return false, ErrNotFound
		}
		usr := acc.Users[idx]
		if err := svc.checkPasswordFor(usr, pwd); err != nil {
			return false, err
		}
		if err := usr.SetPassword(pwd); err != nil {
			return false, err
		}
		acc.Users = append([]User(nil), acc.Users...)
		acc.Users[idx] = usr
		return true, nil
	})
}

// checkPasswordFor applies the password policy with usr's attributes.
func (svc *Service) checkPasswordFor(usr User, pwd string) error {
	tag := checkPassword(pwd, usr.Display, usr.Email)
	if tag == "" {
		return nil
	}
	msg, err := svc.translator.T(tag, "password")
	if err != nil {
		msg = tag
	}
	return core.NewValidationError(nil, core.FieldError{Field: "password", Error: msg})
}

// consumeToken marks an unused, unexpired token as used and returns the index of its user.
func (svc *Service) consumeToken(acc *Accounts, token, kind string, ttl time.Duration) (int, error) {
	if token == "" {
		return -1, ErrInvalidToken
	}
	tIdx, ok := acc.findToken(token, kind)
	if !ok {
		return -1, ErrInvalidToken
	}
	tok := acc.Tokens[tIdx]
	if tok.Used {
		return -1, ErrInvalidToken
	}
	if tok.expired(nowFunc().UTC(), ttl) {
		return -1, ErrTokenExpired
	}
	uIdx, ok := acc.find(tok.Email)
	if !ok {
		return -1, ErrInvalidToken
	}
	acc.Tokens = append([]Token(nil), acc.Tokens...)
	acc.Tokens[tIdx].Used = true
	return uIdx, nil
}

// issueToken replaces every previous token of the same kind for email with a new one.
func issueToken(acc *Accounts, email, kind string) Token {
	tok := Token{Token: newToken(), Email: email, Kind: kind, CreatedAt: nowFunc().UTC().Truncate(time.Second)}
	tokens := make([]Token, 0, len(acc.Tokens)+1)
	for _, t := range acc.Tokens {
		if t.Email == email && t.Kind == kind {
			continue
		}
		tokens = append(tokens, t)
	}
	acc.Tokens = append(tokens, tok)
	return tok
}

func (svc *Service) sendVerificationMail(usr User, tok Token) {
	svc.mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Display, Address: usr.Email}},
		Subject:      "Verify your email address",
		TemplateName: "verify_email",
		TemplateData: map[string]interface{}{
			"Display":   usr.Display,
			"Token":     tok.Token,
			"ExpiresIn": humanDuration(svc.conf.VerificationTimeoutDelta),
		},
	})
}

func (svc *Service) sendPasswordResetMail(usr User, tok Token) {
	svc.mail.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Display, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Display":   usr.Display,
			"Token":     tok.Token,
			"ExpiresIn": humanDuration(svc.conf.PasswordResetTimeoutDelta),
		},
	})
}

func humanDuration(d time.Duration) string {
	if d >= 24*time.Hour && d%(24*time.Hour) == 0 {
		if days := int(d / (24 * time.Hour)); days > 1 {
			return fmt.Sprintf("%d days", days)
		}
		return "1 day"
	}
	if hours := int(d / time.Hour); hours > 1 {
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}
