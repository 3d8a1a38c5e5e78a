package newsletter

import (
	"fmt"
	"strings"

	"github.com/bissquit/sendly/internal/domain"
)

const subjectTopics = 3

// Subject builds the email subject line, e.g.
// "Your weekly Sendly digest: AI & Blockchain".
func Subject(frequency domain.Frequency, topics []string) string {
	prefix := fmt.Sprintf("Your %s Sendly digest", frequency.OrDefault())
	if len(topics) == 0 {
		return prefix
	}
	return prefix + ": " + joinTopics(topics)
}

func joinTopics(topics []string) string {
	shown := topics
	extra := 0
	if len(topics) > subjectTopics {
		shown = topics[:subjectTopics]
		extra = len(topics) - subjectTopics
	}

	if extra > 0 {
		return fmt.Sprintf("%s & %d more", strings.Join(shown, ", "), extra)
	}
	if len(shown) == 1 {
		return shown[0]
	}
	return strings.Join(shown[:len(shown)-1], ", ") + " & " + shown[len(shown)-1]
}
