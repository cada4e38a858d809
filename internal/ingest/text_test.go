package ingest

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCombineText(t *testing.T) {
	assert.Equal(t, "Genomics: BRCA1 positive\nPathology: tumor: 4cm", CombineText("BRCA1 positive", "tumor: 4cm"))
	assert.Equal(t, "Genomics: \nPathology: ", CombineText("", ""))
}

func TestReadText(t *testing.T) {
	t.Run("Plain text", func(t *testing.T) {
		got, err := ReadText(strings.NewReader("lymph node positive"), 0)
		require.NoError(t, err)
		assert.Equal(t, "lymph node positive", got)
	})

	t.Run("Truncated at limit", func(t *testing.T) {
		got, err := ReadText(strings.NewReader("abcdef"), 3)
		require.NoError(t, err)
		assert.Equal(t, "abc", got)
	})

	t.Run("Invalid UTF-8 reads as empty", func(t *testing.T) {
		got, err := ReadText(bytes.NewReader([]byte{0xff, 0xfe, 0x00}), 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("Limit splitting a rune drops the partial rune", func(t *testing.T) {
		// "tumör" is 6 bytes; ö is 2 bytes starting at offset 3.
		got, err := ReadText(strings.NewReader("tumör"), 4)
		require.NoError(t, err)
		assert.Equal(t, "tum", got)

		got, err = ReadText(strings.NewReader("tumör"), 5)
		require.NoError(t, err)
		assert.Equal(t, "tumö", got)
	})

	t.Run("Limit splitting a four byte rune", func(t *testing.T) {
		got, err := ReadText(strings.NewReader("ab\U0001F600"), 5)
		require.NoError(t, err)
		assert.Equal(t, "ab", got)
	})

	t.Run("Read error", func(t *testing.T) {
		_, err := ReadText(iotest.ErrReader(errors.New("disk gone")), 0)
		assert.ErrorContains(t, err, "disk gone")
	})

	t.Run("Nil reader", func(t *testing.T) {
		got, err := ReadText(nil, 0)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}
