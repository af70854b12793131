package user

import (
	"testing"
)

func TestCheckPassword(t *testing.T) {
	commonPasswordsOnce.Do(loadCommonPasswords)

	tests := []struct {
		name  string
		pwd   string
		attrs []string
		want  string
	}{
		{name: "too short", pwd: "Ab1!", want: pwdMinLenTag},
		{name: "whitespace", pwd: "Abcd 1234!", want: pwdNoSpaceTag},
		{name: "all numeric", pwd: "1234567890", want: pwdNotAllNumTag},
		{name: "no special", pwd: "Abcd12345", want: pwdComplexityTag},
		{name: "no upper", pwd: "abcd1234!", want: pwdComplexityTag},
		{name: "similar to display", pwd: "Somchai1!", attrs: []string{"Somchai"}, want: pwdAttrSimTag},
		{name: "similar to email", pwd: "Somchai@test1", attrs: []string{"", "somchai@test.ac.th"}, want: pwdAttrSimTag},
		{name: "common", pwd: "Password123!", want: pwdNoCommonTag},
		{name: "valid", pwd: goodPwd, attrs: []string{"Somchai", "somchai@test.ac.th"}, want: ""},
		{name: "valid thai", pwd: "รหัสผ่าน-Ab1", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := checkPassword(tt.pwd, tt.attrs...); got != tt.want {
				t.Errorf("checkPassword(%q) = %q; want %q", tt.pwd, got, tt.want)
			}
		})
	}
}

func TestUser_SetPassword(t *testing.T) {
	var a, b User
	if err := a.SetPassword(goodPwd); err != nil {
		t.Fatal(err)
	}
	if err := b.SetPassword(goodPwd); err != nil {
		t.Fatal(err)
	}
	if a.PasswordSalt == b.PasswordSalt || a.PasswordHash == b.PasswordHash {
		t.Error("SetPassword() reused a salt")
	}
	if !a.CheckPassword(goodPwd) || a.CheckPassword(goodPwd+"x") {
		t.Error("CheckPassword() mismatch")
	}
	if (User{}).CheckPassword("") {
		t.Error("CheckPassword() on an account without password succeeded")
	}
}
