package domain

// LifecycleState is the conversation state machine position of a session.
type LifecycleState string

const (
	StateNewMessage            LifecycleState = "NEW_MESSAGE"
	StateSuspectedScam         LifecycleState = "SUSPECTED_SCAM"
	StateEngaging              LifecycleState = "ENGAGING"
	StateIntelligenceSaturated LifecycleState = "INTELLIGENCE_SATURATED"
	StateSoftExit              LifecycleState = "SOFT_EXIT"
	StateCallbackReady         LifecycleState = "CALLBACK_READY"
	StateClosed                LifecycleState = "CLOSED"
)

// Valid reports whether s is one of the known lifecycle states.
func (s LifecycleState) Valid() bool {
	switch s {
	case StateNewMessage, StateSuspectedScam, StateEngaging, StateIntelligenceSaturated,
		StateSoftExit, StateCallbackReady, StateClosed:
		return true
	}
	return false
}

// Engaging reports whether intelligence should be harvested in state s.
func (s LifecycleState) Engaging() bool {
	return s == StateSuspectedScam || s == StateEngaging
}

// SessionState is everything the honeypot remembers about one conversation.
type SessionState struct {
	SessionID              string
	State                  LifecycleState
	TotalMessages          int
	ScammerMessages        int
	AgentMessages          int
	NoNewIntelligenceTurns int
	Intelligence           IntelligenceSet
	ScamType               string
	NotificationSent       bool
	NotificationAttempts   int
	// NotificationPending is set when a report dispatch has been claimed and
	// cleared once its outcome is recorded. Finding it set on a new turn means
	// the outcome was lost, and the report must not be sent again.
	NotificationPending bool
	// Version is the persisted revision, used for optimistic concurrency by
	// durable stores. Zero means never saved.
	Version int64
}

// NewSessionState returns the initial state for a session seen for the first time.
func NewSessionState(sessionID string) SessionState {
	return SessionState{
		SessionID: sessionID,
		State:     StateNewMessage,
	}
}

// Clone returns a deep copy of s.
func (s SessionState) Clone() SessionState {
	s.Intelligence = s.Intelligence.Clone()
	return s
}

// Turn is the audit record of one processed inbound message. Turns without a
// Sender record the outcome of a report dispatch.
type Turn struct {
	SessionID string
	Sender    Sender
	Text      string
	Reply     string
	From      LifecycleState
	To        LifecycleState
	Notes     string
	At        string
}
