package crew

import "time"

// TitleMaxRunes is the longest title derived from a first message before it
// is shortened.
const TitleMaxRunes = 30

// DefaultTitle is the title given to a new conversation.
func DefaultTitle(now time.Time) string {
	return "Conversation " + now.Format("2006-01-02 15:04:05")
}

// TitleFromMessage derives a thread title from its first user message.
// Messages longer than TitleMaxRunes are cut and marked with "...".
func TitleFromMessage(text string) string {
	if len([]rune(text)) > TitleMaxRunes {
		return truncate(text, TitleMaxRunes) + "..."
	}
	return text
}
