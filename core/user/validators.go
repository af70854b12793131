package user

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/coursereview/core"
	appfs "github.com/trezcool/coursereview/fs"
)

const commonPasswordsFile = "assets/common-passwords.txt.gz"

var (
	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"

	commonPasswords     []string // sorted
	commonPasswordsOnce sync.Once
)

// InitValidators registers the password policy on validate.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	commonPasswordsOnce.Do(loadCommonPasswords)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, AdminUser{}, ResetPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(validate, translator, pwdNoCommonTag, pwdNoCommonText)
}

func loadCommonPasswords() {
	file, err := appfs.FS.Open(commonPasswordsFile)
	if err != nil {
		return
	}
	//goland:noinspection GoUnhandledErrorResult
	defer file.Close()
	gzRdr, err := gzip.NewReader(file)
	if err != nil {
		return
	}
	pwds := make([]string, 0, 128)
	scanner := bufio.NewScanner(gzRdr)
	for scanner.Scan() {
		if pwd := strings.TrimSpace(scanner.Text()); pwd != "" {
			pwds = append(pwds, strings.ToLower(pwd))
		}
	}
	sort.Strings(pwds)
	commonPasswords = pwds
}

// userStructValidation applies the password policy to NewUser, AdminUser and ResetPassword.
func userStructValidation(sl validator.StructLevel) {
	var tag, pwd string
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		pwd = usr.Password
		tag = checkPassword(pwd, usr.Display, usr.Email)
	case AdminUser:
		pwd = usr.Password
		tag = checkPassword(pwd, usr.Display, usr.Email)
	case ResetPassword:
		pwd = usr.Password
		tag = checkPassword(pwd) // the account is unknown until the token is checked
	}
	if tag != "" && pwd != "" {
		sl.ReportError(pwd, "password", "Password", tag, "")
	}
}

type pwdRule struct {
	tag    string
	broken func(pwd string, attrs []string) bool
}

// passwordPolicy is checked in order; the first broken rule is reported.
var passwordPolicy = []pwdRule{
	{pwdMinLenTag, func(pwd string, _ []string) bool { return utf8.RuneCountInString(pwd) < pwdMinLen }},
	{pwdNoSpaceTag, func(pwd string, _ []string) bool { return strings.IndexFunc(pwd, unicode.IsSpace) >= 0 }},
	{pwdNotAllNumTag, func(pwd string, _ []string) bool {
		return strings.IndexFunc(pwd, func(r rune) bool { return !unicode.IsDigit(r) }) < 0
	}},
	{pwdComplexityTag, func(pwd string, _ []string) bool {
		return !(strings.IndexFunc(pwd, unicode.IsUpper) >= 0 &&
			strings.IndexFunc(pwd, unicode.IsLower) >= 0 &&
			strings.IndexFunc(pwd, unicode.IsDigit) >= 0 &&
			specialRegex.MatchString(pwd))
	}},
	{pwdAttrSimTag, tooSimilar},
	{pwdNoCommonTag, func(pwd string, _ []string) bool { return core.StringsContain(commonPasswords, strings.ToLower(pwd)) }},
}

// checkPassword returns the tag of the first password policy rule pwd breaks, or "".
func checkPassword(pwd string, attrs ...string) string {
	for _, rule := range passwordPolicy {
		if rule.broken(pwd, attrs) {
			return rule.tag
		}
	}
	return ""
}

// tooSimilar reports whether pwd is too close to one of the account attributes (display name, email).
func tooSimilar(pwd string, attrs []string) bool {
	chars := strings.Split(strings.ToLower(pwd), "")
	for _, attr := range attrs {
		if attr == "" {
			continue
		}
		m := difflib.NewMatcher(chars, strings.Split(strings.ToLower(attr), ""))
		if m.QuickRatio() >= pwdMaxSim {
			return true
		}
	}
	return false
}
