package solver

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestSolve_ChainOrderAndMisses(t *testing.T) {
	if ans := Solve(""); ans != nil {
		t.Errorf("empty prompt solved: %+v", ans)
	}
	if ans := Solve("write me a poem about rivers"); ans != nil {
		t.Errorf("prose solved locally: %+v", ans)
	}
	// Arithmetic outranks stats when both could bite.
	ans := Solve("2 + 2")
	if ans == nil || ans.Solver != "arithmetic" {
		t.Fatalf("ans = %+v, want arithmetic", ans)
	}
}

func TestTryPercent(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"what is 15% of 80", "15% of 80 = 12"},
		{"15 percent of 80", "15% of 80 = 12"},
		{"20 is what percent of 80", "20 is 25% of 80"},
		{"increase 80 by 15%", "80 increased by 15% = 92"},
		{"decrease 80 by 25 percent", "80 decreased by 25% = 60"},
		{"percent of nothing", ""},
	}
	for _, tt := range tests {
		if got := tryPercent(tt.prompt); got != tt.want {
			t.Errorf("tryPercent(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTryUnits(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"convert 5 km to miles", "5 km = 3.1069 miles"},
		{"10 kg in pounds", "10 kg = 22.0462 lbs"},
		{"100 c to f", "100 °C = 212 °F"},
		{"32 fahrenheit to celsius", "32 °F = 0 °C"},
		{"3.28084 ft to meters", "3.28084 ft = 1 m"},
		{"5 km to kg", ""},    // incompatible groups
		{"5 miles to miles", ""}, // same unit
		{"5 days to weeks", ""},  // unknown units
	}
	for _, tt := range tests {
		if got := tryUnits(tt.prompt); got != tt.want {
			t.Errorf("tryUnits(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTryDates(t *testing.T) {
	if got := tryDates("days between 2024-01-01 and 2024-03-01"); got != "60 days between 2024-01-01 and 2024-03-01" {
		t.Errorf("days between = %q", got)
	}
	year := time.Now().Year()
	got := tryDates("how old is someone born in 1990?")
	want := fmt.Sprintf("born in 1990: %d or %d years old in %d (depending on the birthday)", year-1991, year-1990, year)
	if got != want {
		t.Errorf("age = %q, want %q", got, want)
	}
	if got := tryDates("born in 1990"); got != "" {
		t.Errorf("age answered without an age question: %q", got)
	}
	if got := tryDates(fmt.Sprintf("how old is someone born in %d", year+1)); got != "" {
		t.Errorf("future birth year answered: %q", got)
	}
}

func TestTryEquation(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"solve 2x + 3 = 11", "x = 4"},
		{"3x - 4 = 5", "x = 3"},
		{"x + 7 = 10", "x = 3"},
		{"-x + 2 = 5", "x = -3"},
		{"11 = 2x + 3", "x = 4"},
		{"2.5x + 0.5 = 3", "x = 1"},
		{"the flux + 3 = 10", ""}, // x inside a word
	}
	for _, tt := range tests {
		if got := tryEquation(tt.prompt); got != tt.want {
			t.Errorf("tryEquation(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTryStats(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"average of [3, 5, 7]", "average of [3, 5, 7] = 5"},
		{"what's the mean of [1, 2, 3, 4]", "average of [1, 2, 3, 4] = 2.5"},
		{"median of [5, 1, 3]", "median of [5, 1, 3] = 3"},
		{"median of [4, 1, 3, 2]", "median of [4, 1, 3, 2] = 2.5"},
		{"sum of [1, 2, 3]", "sum of [1, 2, 3] = 6"},
		{"largest of [4, 9, 2]", "max of [4, 9, 2] = 9"},
		{"count of [1, 1, 1]", "count of [1, 1, 1] = 3"},
		{"determine the largest of [4, 2]", "max of [4, 2] = 4"},
		{"average of [1, two, 3]", ""}, // non-numeric
		{"[1, 2, 3]", ""},              // no operation word
	}
	for _, tt := range tests {
		if got := tryStats(tt.prompt); got != tt.want {
			t.Errorf("tryStats(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTrySets(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"union of [1, 2, 3] and [3, 4]", "union = [1, 2, 3, 4]"},
		{"intersection of [1, 2, 3] and [2, 3, 5]", "intersection = [2, 3]"},
		{"difference of [1, 2, 3] and [2]", "difference = [1, 3]"},
		{"union of [a, b] and [b, c]", "union = [a, b, c]"},
		{"no sets here", ""},
	}
	for _, tt := range tests {
		if got := trySets(tt.prompt); got != tt.want {
			t.Errorf("trySets(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTrySortFilter(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"sort [5, 3, 8]", "sorted = [3, 5, 8]"},
		{"sort [5, 3, 8] descending", "sorted = [8, 5, 3]"},
		{"sort [banana, apple, cherry]", "sorted = [apple, banana, cherry]"},
		{"filter [1, 5, 9] > 4", "filtered (> 4) = [5, 9]"},
		{"filter [1, 5, 9] <= 5", "filtered (<= 5) = [1, 5]"},
		{"sort these thoughts", ""},
	}
	for _, tt := range tests {
		if got := trySortFilter(tt.prompt); got != tt.want {
			t.Errorf("trySortFilter(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTryStrings(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{`reverse "hello"`, `"hello" reversed is "olleh"`},
		{`uppercase 'go'`, `"go" in uppercase is "GO"`},
		{`lowercase "LOUD"`, `"LOUD" in lowercase is "loud"`},
		{`length of "héllo"`, `"héllo" has 5 characters`},
		{`count words in "one two three"`, `"one two three" has 3 words`},
		{`reverse the trend`, ""}, // no quoted argument
	}
	for _, tt := range tests {
		if got := tryStrings(tt.prompt); got != tt.want {
			t.Errorf("tryStrings(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTryValidate(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"is ada@example.com a valid email?", "ada@example.com is a valid email address"},
		{"is ada@nodot a valid email?", "ada@nodot is not a valid email address"},
		{"validate url https://example.com/x", "https://example.com/x is a valid URL"},
		{"validate this url https://example.com/%zz", "https://example.com/%zz is not a valid URL"},
		{"is this valid?", ""},
	}
	for _, tt := range tests {
		if got := tryValidate(tt.prompt); got != tt.want {
			t.Errorf("tryValidate(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTryRegex(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{`does /^a+$/ match "aaa"`, `yes, /^a+$/ matches "aaa"`},
		{`does /^a+$/ match "aab"`, `no, /^a+$/ does not match "aab"`},
		{`test /\d{3}/ against '123'`, `yes, /\d{3}/ matches "123"`},
		{`does /[unclosed/ match "x"`, ""}, // invalid pattern
		{`/^a$/ "a"`, ""},                  // no match/test verb
	}
	for _, tt := range tests {
		if got := tryRegex(tt.prompt); got != tt.want {
			t.Errorf("tryRegex(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTryGeometry(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{"area of a circle with radius 3", "area of circle (r=3) = 28.2743"},
		{"circumference of a circle with radius 1", "circumference of circle (r=1) = 6.2832"},
		{"area of rectangle 4 by 5", "area of rectangle (4 × 5) = 20"},
		{"perimeter of a rectangle with width 4 and height 5", "perimeter of rectangle (4 × 5) = 18"},
		{"area of a triangle with base 6 and height 4", "area of triangle (base 6, height 4) = 12"},
		{"the area of my lawn", ""},
	}
	for _, tt := range tests {
		if got := tryGeometry(tt.prompt); got != tt.want {
			t.Errorf("tryGeometry(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestTryFormula(t *testing.T) {
	tests := []struct {
		prompt string
		want   string
	}{
		{`=UPPER("abc")`, `UPPER("abc") = "ABC"`},
		{`what does =LOWER("AbC") give`, `LOWER("AbC") = "abc"`},
		{`=TRIM("  spaced   out  ")`, `TRIM("  spaced   out  ") = "spaced out"`},
		{`=SUBSTITUTE("banana", "a", "o")`, `SUBSTITUTE("banana", "a", "o") = "bonono"`},
		{`=VLOOKUP("x")`, ""}, // unsupported function
	}
	for _, tt := range tests {
		if got := tryFormula(tt.prompt); got != tt.want {
			t.Errorf("tryFormula(%q) = %q, want %q", tt.prompt, got, tt.want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{26, "26"},
		{2.5, "2.5"},
		{3.14159, "3.1416"},
		{-4, "-4"},
		{0.5, "0.5"},
		{1.0000001, "1"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEnvelopeShape(t *testing.T) {
	for _, prompt := range []string{"28 - 4 + 2", "what is 15% of 80", "sort [2, 1]"} {
		ans := Solve(prompt)
		if ans == nil {
			t.Fatalf("Solve(%q) = nil", prompt)
		}
		if !strings.HasPrefix(ans.Text, "Thinking\n- (omitted by request)\n\nResult\n- ") {
			t.Errorf("Solve(%q) envelope wrong: %q", prompt, ans.Text)
		}
	}
}
