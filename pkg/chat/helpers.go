package chat

import (
	"time"

	"themeforge/pkg/prompt"
)

// DefaultMessage is the greeting shown when the log is empty. It is never
// stored.
func DefaultMessage() prompt.ChatMessage {
	return prompt.ChatMessage{
		ID:        DefaultMessageID,
		Role:      prompt.RoleAssistant,
		Content:   DefaultMessageContent,
		Timestamp: time.Now().UnixMilli(),
	}
}

func UserMessages(messages []prompt.ChatMessage) []prompt.ChatMessage {
	return filterRole(messages, prompt.RoleUser)
}

func AssistantMessages(messages []prompt.ChatMessage) []prompt.ChatMessage {
	return filterRole(messages, prompt.RoleAssistant)
}

func UserMessageCount(messages []prompt.ChatMessage) int {
	n := 0
	for _, m := range messages {
		if m.Role == prompt.RoleUser {
			n++
		}
	}
	return n
}

func LastUserMessage(messages []prompt.ChatMessage) (prompt.ChatMessage, bool) {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == prompt.RoleUser {
			return messages[i], true
		}
	}
	return prompt.ChatMessage{}, false
}

func filterRole(messages []prompt.ChatMessage, role prompt.Role) []prompt.ChatMessage {
	var out []prompt.ChatMessage
	for _, m := range messages {
		if m.Role == role {
			out = append(out, m)
		}
	}
	return out
}
