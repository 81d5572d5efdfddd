package domain

// Sender identifies who authored a message in a honeypot conversation.
type Sender string

const (
	SenderScammer Sender = "scammer"
	SenderUser    Sender = "user"
)

// Message is a single normalized conversation message. Timestamp is RFC 3339.
type Message struct {
	Sender    Sender `json:"sender"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Metadata describes the channel a conversation arrived on.
type Metadata struct {
	Channel  string `json:"channel"`
	Language string `json:"language"`
	Locale   string `json:"locale"`
}

// Flags are derived by the transport layer from the history length.
type Flags struct {
	IsFirstMessage bool
	HasHistory     bool
}

// ResponseStyle is the tone directive handed to the reply generator.
type ResponseStyle string

const (
	StyleNaive    ResponseStyle = "NAIVE"
	StyleConfused ResponseStyle = "CONFUSED"
	StyleHesitant ResponseStyle = "HESITANT"
	StyleUrgent   ResponseStyle = "URGENT"
	StyleNeutral  ResponseStyle = "NEUTRAL"
)

// Chat roles understood by OpenAI-compatible completion APIs.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one entry of an LLM conversation. The persona maps
// honeypot messages onto these roles.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
