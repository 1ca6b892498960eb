package sanitize

import "testing"

func TestCharacterWhitelist_Defaults(t *testing.T) {
	w := NewCharacterWhitelist(true, nil, nil)

	tests := []struct {
		name string
		in   string
		want string
		tag  WhitelistTag
	}{
		{"plain ascii passes", "Hello, World!", "Hello, World!", ""},
		{"zero width space removed", "a​b", "ab", TagZeroWidthRemoved},
		{"byte order mark removed", "a﻿b", "ab", TagZeroWidthRemoved},
		{"control char removed", "a\x01b", "ab", TagControlRemoved},
		{"del removed", "a\x7Fb", "ab", TagNonWhitelistedRemoved},
		{"tab not in default whitelist", "a\tb", "ab", TagNonWhitelistedRemoved},
		{"high unicode removed", "a中b", "ab", TagUnicodeRemoved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := w.Filter(tt.in)
			if got.Out != tt.want {
				t.Errorf("Filter(%q).Out = %q, want %q", tt.in, got.Out, tt.want)
			}
			if tt.tag != "" && !got.Violations[tt.tag] {
				t.Errorf("Filter(%q) missing violation tag %s, got %v", tt.in, tt.tag, got.Violations)
			}
		})
	}
}

func TestCharacterWhitelist_ClosureInvariant(t *testing.T) {
	w := NewCharacterWhitelist(true, nil, nil)
	inputs := []string{
		"plain text",
		"a​b\x01c\x7Fd中e",
		"\x1b[31mred\x1b[0m",
	}
	for _, in := range inputs {
		out := w.Filter(in).Out
		for _, r := range out {
			if r < 0x20 || r > 0x7E {
				t.Errorf("Filter(%q) produced out-of-range rune %U in %q", in, r, out)
			}
		}
	}
}

func TestCharacterWhitelist_Disabled(t *testing.T) {
	w := NewCharacterWhitelist(false, nil, nil)
	in := "a\x01​b"
	got := w.Filter(in)
	if got.Out != in {
		t.Errorf("Filter() on disabled whitelist should be identity, got %q", got.Out)
	}
}

func TestCharacterWhitelist_CustomRanges(t *testing.T) {
	w := NewCharacterWhitelist(true, []CodePointRange{{Lo: 0x20, Hi: 0x7E}, {Lo: '\n', Hi: '\n'}}, nil)
	got := w.Filter("line1\nline2")
	if got.Out != "line1\nline2" {
		t.Errorf("Filter() = %q, want newline preserved", got.Out)
	}
}
