package arxiv

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortByPage(t *testing.T) {
	// Shuffled content filenames for a 12-page paper
	names := make([]string, 0, 12)
	for page := 1; page <= 12; page++ {
		names = append(names, fmt.Sprintf("2401.00001v1_Content_page_%d.txt", page))
	}
	rand.New(rand.NewSource(42)).Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})

	sortByPage(names)

	for i, name := range names {
		assert.Equal(t, fmt.Sprintf("2401.00001v1_Content_page_%d.txt", i+1), name)
	}
}

func TestSortByPageLexicographicTrap(t *testing.T) {
	names := []string{
		"x_page_1.txt",
		"x_page_10.txt",
		"x_page_2.txt",
	}

	sortByPage(names)

	assert.Equal(t, []string{"x_page_1.txt", "x_page_2.txt", "x_page_10.txt"}, names)
}

func TestSortByPageUnparseableNamesSortLast(t *testing.T) {
	names := []string{
		"notes.txt",
		"x_page_2.txt",
		"x_page_1.txt",
		"appendix.txt",
	}

	sortByPage(names)

	assert.Equal(t, []string{"x_page_1.txt", "x_page_2.txt", "appendix.txt", "notes.txt"}, names)
}

func TestPageNumber(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		want   int
		wantOK bool
	}{
		{"pdfcpu content name", "2401.00001v1_Content_page_7.txt", 7, true},
		{"bare page name", "page_12.txt", 12, true},
		{"double digits", "paper_page_10.txt", 10, true},
		{"no page suffix", "metadata.txt", 0, false},
		{"non-numeric suffix", "x_page_final.txt", 0, false},
		{"zero page", "x_page_0.txt", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pageNumber(tt.file)
			require.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTruncateRunesKeepsRuneBoundary(t *testing.T) {
	s := "résumé résumé"
	cut := truncateRunes(s, 6)
	assert.LessOrEqual(t, len(cut), 6)
	assert.Equal(t, "résum", cut)

	assert.Equal(t, "short", truncateRunes("short", 100))
}
