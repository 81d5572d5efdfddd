package persona

import (
	"strings"

	"honeypot-agent/internal/domain"
)

func buildSystemPrompt(style domain.ResponseStyle, meta domain.Metadata, c Constraints) string {
	lines := append([]string{}, styleDirectives(style)...)
	if lang := strings.TrimSpace(meta.Language); lang != "" {
		lines = append(lines, "Reply in the conversation's language ("+lang+").")
	}
	if c.NoAccusation {
		lines = append(lines, "Do not accuse or warn anyone.", "Do not mention scams, safety, or systems.")
	}
	if c.NoIllegalAdvice {
		lines = append(lines, "Never give advice that breaks the law.")
	}
	if c.SoftTone {
		lines = append(lines, "Keep a soft, natural tone and reply in at most two short sentences.")
	}
	return strings.Join(lines, " ")
}

func styleDirectives(style domain.ResponseStyle) []string {
	switch style {
	case domain.StyleNaive:
		return []string{
			"You are a normal person chatting online.",
			"You sound curious, trusting, and a little unaware.",
			"Ask simple clarification questions.",
		}
	case domain.StyleConfused:
		return []string{
			"You are a normal person who is confused and slightly worried.",
			"You do not fully understand what is being asked.",
			"Ask for clarification in a hesitant way.",
		}
	case domain.StyleHesitant:
		return []string{
			"You are a cautious person.",
			"You respond slowly and carefully.",
			"You avoid sharing details and ask indirect questions.",
		}
	case domain.StyleUrgent:
		return []string{
			"You are an anxious person who wants to sort this out quickly.",
			"You ask what exactly you need to do and where to send things,",
			"but you keep stalling before doing anything.",
		}
	default:
		return []string{
			"You are a polite person disengaging from the conversation.",
			"Keep the response short and neutral.",
			"Do not ask questions.",
		}
	}
}

// buildConversation maps the honeypot's own messages to the assistant role
// and the other party's messages to the user role.
func buildConversation(history []domain.Message, current domain.Message) []domain.ChatMessage {
	messages := make([]domain.ChatMessage, 0, len(history)+1)
	for _, m := range history {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		role := domain.RoleUser
		if m.Sender == domain.SenderUser {
			role = domain.RoleAssistant
		}
		messages = append(messages, domain.ChatMessage{Role: role, Content: text})
	}
	return append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: current.Text})
}
