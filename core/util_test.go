package core

import "testing"

func TestIsPlainText(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"อาจารย์สอนดีมาก ★★★★★", true},
		{"tab\there\r\nnext line", true},
		{"bell\a", false},
		{"nul\x00", false},
		{"del\x7f", false},
		{"c1\u0085", false},
		{"nonchar\uffff", false},
		{"broken \xff utf8", false},
	}
	for _, tt := range tests {
		if got := IsPlainText(tt.in); got != tt.want {
			t.Errorf("IsPlainText(%q) = %v; want %v", tt.in, got, tt.want)
		}
	}
}
