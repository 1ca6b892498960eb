package sanitize

import "testing"

func TestAnsiFilter_Strip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"sgr color", "\x1b[31mRED\x1b[0m", "RED"},
		{"osc title", "\x1b]0;title\x07visible", "visible"},
		{"cursor save restore", "a\x1b7b\x1b8c", "abc"},
		{"c1 csi", "\x9b1mhi\x9b0m", "hi"},
		{"residual esc", "a\x1bb", "ab"},
		{"no escapes", "plain text", "plain text"},
	}

	f := NewAnsiFilter(true, AnsiStrip)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := f.Filter(tt.in)
			if got.Out != tt.want {
				t.Errorf("Filter(%q).Out = %q, want %q", tt.in, got.Out, tt.want)
			}
			if got.Out != tt.in && !got.Removed {
				t.Errorf("Filter(%q).Removed = false, want true", tt.in)
			}
		})
	}
}

func TestAnsiFilter_NoResidualEscapeByte(t *testing.T) {
	f := NewAnsiFilter(true, AnsiStrip)
	inputs := []string{
		"\x1b[31mred\x1b[0m",
		"\x1b]0;t\x07x",
		"lone\x1bescape",
	}
	for _, in := range inputs {
		out := f.Filter(in).Out
		for i := 0; i < len(out); i++ {
			if out[i] == 0x1b {
				t.Errorf("Filter(%q) left a 0x1B byte in output %q", in, out)
			}
		}
	}
}

func TestAnsiFilter_Reject(t *testing.T) {
	f := NewAnsiFilter(true, AnsiReject)
	got := f.Filter("\x1b[31mRED\x1b[0m")
	if got.Out != "" || !got.Removed {
		t.Errorf("Filter() = %+v, want empty+removed", got)
	}
}

func TestAnsiFilter_Encode(t *testing.T) {
	f := NewAnsiFilter(true, AnsiEncode)
	got := f.Filter("a\x1bb")
	want := `a\x1bb`
	if got.Out != want {
		t.Errorf("Filter().Out = %q, want %q", got.Out, want)
	}
}

func TestAnsiFilter_Disabled(t *testing.T) {
	f := NewAnsiFilter(false, AnsiStrip)
	in := "\x1b[31mRED\x1b[0m"
	got := f.Filter(in)
	if got.Out != in || got.Removed {
		t.Errorf("Filter() on disabled filter should be identity, got %+v", got)
	}
}

func TestAnsiFilter_Idempotent(t *testing.T) {
	f := NewAnsiFilter(true, AnsiStrip)
	in := "\x1b[31mRED\x1b[0m plain \x9b1mhi\x9b0m"
	once := f.Filter(in).Out
	twice := f.Filter(once).Out
	if once != twice {
		t.Errorf("filter not idempotent: once=%q twice=%q", once, twice)
	}
}
