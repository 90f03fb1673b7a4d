package extid

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleID = "abcdefghijklmnopqrstuvwxyzabcdef"

func TestExtract(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		want   string
		wantOK bool
	}{
		{"exact run", sampleID, sampleID, true},
		{"upper case", strings.ToUpper(sampleID), sampleID, true},
		{"embedded", "ext_" + sampleID + "_v2", sampleID, true},
		{"longer run keeps first 32", sampleID + "xyz", sampleID, true},
		{"first of two runs", sampleID + "-" + strings.Repeat("q", 32), sampleID, true},
		{"digits break runs", "abcdefghijklmnop1qrstuvwxyzabcdefgh", "", false},
		{"too short", "abc", "", false},
		{"empty", "", "", false},
		{"non ascii letters ignored", "ééé" + sampleID, sampleID, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Extract(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFromFilename(t *testing.T) {
	id, ok := FromFilename("/downloads/" + sampleID + "_v2.crx")
	require.True(t, ok)
	assert.Equal(t, sampleID, id)

	// the extension is stripped before scanning, so it cannot extend a run
	id, ok = FromFilename(strings.Repeat("a", 29) + ".crx")
	assert.False(t, ok)
	assert.Empty(t, id)

	// letters in the directory name are not considered
	_, ok = FromFilename("/" + sampleID + "/package.crx")
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	id, err := Parse("  " + strings.ToUpper(sampleID) + " ")
	require.NoError(t, err)
	assert.Equal(t, sampleID, id)

	_, err = Parse(sampleID[:31])
	assert.ErrorIs(t, err, ErrIdentifierNotFound)

	_, err = Parse(sampleID[:31] + "1")
	assert.ErrorIs(t, err, ErrIdentifierNotFound)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(sampleID))
	assert.False(t, Valid(sampleID+"a"))
	assert.False(t, Valid(""))
}
