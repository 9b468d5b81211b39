package memory

import (
	"reflect"
	"testing"
)

func TestKeywords(t *testing.T) {
	tests := []struct {
		name string
		text string
		max  int
		want []string
	}{
		{
			name: "stopwords and short words stripped",
			text: "What is the capital of France?",
			max:  0,
			want: []string{"capital", "france"},
		},
		{
			name: "order preserved and deduped",
			text: "rust rust tokio rust",
			max:  0,
			want: []string{"rust", "tokio"},
		},
		{
			name: "punctuation splits words",
			text: "hello, world! hello...again",
			max:  0,
			want: []string{"hello", "world", "again"},
		},
		{
			name: "digits count as words",
			text: "error 404 on page 12",
			max:  0,
			want: []string{"error", "404", "page"},
		},
		{
			name: "cap applies after filtering",
			text: "the alpha beta gamma",
			max:  2,
			want: []string{"alpha", "beta"},
		},
		{
			name: "all filler yields nothing",
			text: "is it so, or<>",
			max:  0,
			want: nil,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Keywords(tc.text, tc.max)
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Keywords(%q) = %v, want %v", tc.text, got, tc.want)
			}
		})
	}
}
