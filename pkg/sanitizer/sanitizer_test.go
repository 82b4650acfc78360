package sanitizer

import (
	"strings"
	"testing"
)

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "trim spaces", input: "  room is double booked  ", want: "room is double booked"},
		{name: "collapse inner whitespace", input: "no\t\n  show", want: "no show"},
		{name: "empty string", input: "", want: ""},
		{name: "only whitespace", input: "   \t\n  ", want: ""},
		{name: "keeps unicode", input: " Café & Spa™ ", want: "Café & Spa™"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TrimAndNormalize(tt.input); got != tt.want {
				t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "lowercase", input: "Consult", want: "consult"},
		{name: "hyphen and space", input: " Hair-Dresser ", want: "hair_dresser"},
		{name: "runs of punctuation", input: "room -- 3b!!", want: "room_3b"},
		{name: "only punctuation", input: "---", want: ""},
		{name: "hebrew letters kept", input: "חדר ישיבות", want: "חדר_ישיבות"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeCategory(tt.input)
			if got != tt.want {
				t.Errorf("NormalizeCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if again := NormalizeCategory(got); again != got {
				t.Errorf("NormalizeCategory is not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestNormalizeReason_CapsLength(t *testing.T) {
	long := strings.Repeat("é", MaxReasonLength+10)
	got := NormalizeReason(long)
	if n := len([]rune(got)); n != MaxReasonLength {
		t.Errorf("NormalizeReason length = %d, want %d", n, MaxReasonLength)
	}
	if got := NormalizeReason("  changed   plans "); got != "changed plans" {
		t.Errorf("NormalizeReason = %q", got)
	}
}

func TestSanitizeSlice(t *testing.T) {
	got := SanitizeSlice([]string{" Consult", "consult", "", "  ", "Room-A"}, NormalizeCategory)
	want := []string{"consult", "room_a"}
	if len(got) != len(want) {
		t.Fatalf("SanitizeSlice = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("SanitizeSlice[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	if out := SanitizeSlice(nil, NormalizeIdentifier); out == nil || len(out) != 0 {
		t.Errorf("SanitizeSlice(nil) = %v, want empty non-nil slice", out)
	}
}
