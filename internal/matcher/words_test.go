package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchWords(t *testing.T) {
	tests := []struct {
		name  string
		words []string
		text  string
		want  bool
	}{
		{"empty words match vacuously", nil, "anything", true},
		{"empty words against empty text", []string{}, "", true},
		{"all words present", []string{"tesco", "metro"}, "tesco metro london", true},
		{"order of words does not matter", []string{"metro", "tesco"}, "tesco metro", true},
		{"missing word", []string{"tesco", "london"}, "tesco metro", false},
		{"substring inside longer word", []string{"art"}, "smart shop", true},
		{"repeated word needs repeated occurrence", []string{"pay", "pay"}, "pay online", false},
		{"repeated occurrence satisfies repeated word", []string{"pay", "pay"}, "paypal pay", true},
		{"occurrence is consumed", []string{"tes", "tesco"}, "tesco", false},
		{"case sensitive", []string{"Tesco"}, "tesco", false},
		{"words against empty text", []string{"a"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchWords(tt.words, tt.text))
		})
	}
}

func TestDescriptionWords(t *testing.T) {
	assert.Equal(t, []string{"tesco", "metro"}, DescriptionWords("  tesco \t metro\n"))
	assert.Empty(t, DescriptionWords(""))
	assert.Empty(t, DescriptionWords("   "))
}
