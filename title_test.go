package crew

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTitleFromMessage(t *testing.T) {
	long := strings.Repeat("a", 45)
	require.Equal(t, strings.Repeat("a", 30)+"...", TitleFromMessage(long))
	require.Equal(t, "short request", TitleFromMessage("short request"))
	require.Equal(t, strings.Repeat("b", 30), TitleFromMessage(strings.Repeat("b", 30)))
	require.Equal(t, strings.Repeat("é", 30)+"...", TitleFromMessage(strings.Repeat("é", 31)))
}

func TestDefaultTitle(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 5, 7, 0, time.UTC)
	require.Equal(t, "Conversation 2025-03-01 09:05:07", DefaultTitle(now))
}

func TestTitleLengthProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")
		title := TitleFromMessage(text)
		n := utf8.RuneCountInString(text)
		if n <= TitleMaxRunes {
			if title != text {
				t.Fatalf("short text changed: %q -> %q", text, title)
			}
			return
		}
		if utf8.RuneCountInString(title) != TitleMaxRunes+3 || !strings.HasSuffix(title, "...") {
			t.Fatalf("long text not shortened: %q", title)
		}
		if !strings.HasPrefix(text, strings.TrimSuffix(title, "...")) {
			t.Fatalf("title is not a prefix: %q", title)
		}
	})
}
