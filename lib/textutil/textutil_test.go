package textutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeText(t *testing.T) {
	require.Equal(t, "keine termine frei", NormalizeText("  Keine\n\tTermine   frei "))
}

func TestContainsPhrase(t *testing.T) {
	phrases := []string{
		"Zurzeit sind keine Termine frei",
		"keine freien Termine",
	}

	t.Run("case and whitespace insensitive", func(t *testing.T) {
		phrase, ok := ContainsPhrase("ZURZEIT  sind\nkeine Termine frei.", phrases)
		require.True(t, ok)
		require.Equal(t, "Zurzeit sind keine Termine frei", phrase)
	})

	t.Run("matches inside surrounding text", func(t *testing.T) {
		_, ok := ContainsPhrase("Hinweis: es gibt keine freien Termine mehr heute", phrases)
		require.True(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := ContainsPhrase("Termine verfügbar", phrases)
		require.False(t, ok)
	})
}
