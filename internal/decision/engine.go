// Package decision implements the honeypot conversation state machine. It is
// a pure function of the current state, the inbound message and the session
// statistics; it performs no I/O.
package decision

import (
	"errors"
	"fmt"

	"honeypot-agent/internal/domain"
	"honeypot-agent/internal/extraction"
)

// SaturationTurns is the number of consecutive engagement turns without new
// intelligence after which the session is considered saturated.
const SaturationTurns = 3

// ScamTypeFinancial is the classification attached once a scam is confirmed.
const ScamTypeFinancial = "financial_scam"

// ScamKeywords trigger the scam signal when any appears in a message.
var ScamKeywords = []string{
	"urgent",
	"verify",
	"account",
	"blocked",
	"suspended",
	"otp",
	"upi",
	"click",
	"link",
	"immediately",
	"payment",
	"bank",
}

// ErrUnknownState is returned when the input carries a lifecycle state the
// engine does not recognise.
var ErrUnknownState = errors.New("decision: unknown lifecycle state")

// Stats are the session counters visible to the engine.
type Stats struct {
	TotalMessages          int
	ScammerMessages        int
	AgentMessages          int
	NoNewIntelligenceTurns int
}

// Input is everything a single evaluation needs.
type Input struct {
	SessionID    string
	CurrentState domain.LifecycleState
	Message      domain.Message
	History      []domain.Message
	Metadata     domain.Metadata
	Intelligence domain.IntelligenceSet
	Stats        Stats
	Flags        domain.Flags
	// ScamType is the classification already recorded for the session, if any.
	ScamType string
}

// Output is the engine's instruction to the orchestration loop.
type Output struct {
	NextState            domain.LifecycleState
	ShouldReply          bool
	ReplyStyle           domain.ResponseStyle
	ContinueConversation bool
	TriggerNotification  bool
	ScamDetected         bool
	ScamType             string
	Notes                string
}

// Decide evaluates one transition. For an unrecognised state it returns a
// CLOSED output together with ErrUnknownState.
func Decide(in Input) (Output, error) {
	scamSignal := extraction.ContainsAny(in.Message.Text, ScamKeywords)
	intelligenceFound := in.Intelligence.HasConfirmed()

	out := Output{
		ScamDetected: intelligenceFound,
		ScamType:     in.ScamType,
	}
	if intelligenceFound && out.ScamType == "" {
		out.ScamType = ScamTypeFinancial
	}

	switch in.CurrentState {
	case domain.StateNewMessage:
		if scamSignal {
			out.engage(domain.StateSuspectedScam, domain.StyleConfused, "Suspicious patterns detected in first message.")
		} else {
			out.stop(domain.StateSoftExit, "No scam indicators detected.")
		}

	case domain.StateSuspectedScam:
		switch {
		case intelligenceFound:
			out.engage(domain.StateEngaging, domain.StyleHesitant, "Scam confirmed via extracted intelligence.")
		case scamSignal:
			out.engage(domain.StateSuspectedScam, domain.StyleConfused, "Suspicious patterns persist; no intelligence yet.")
		default:
			out.stop(domain.StateSoftExit, "Scam signal faded without intelligence.")
		}

	case domain.StateEngaging:
		if in.Stats.NoNewIntelligenceTurns >= SaturationTurns {
			out.stop(domain.StateIntelligenceSaturated,
				fmt.Sprintf("Intelligence saturation reached after %d turns without new intelligence.", in.Stats.NoNewIntelligenceTurns))
		} else {
			out.engage(domain.StateEngaging, domain.StyleHesitant, "Engaging to harvest further intelligence.")
		}

	case domain.StateIntelligenceSaturated:
		out.NextState = domain.StateSoftExit
		out.ShouldReply = true
		out.ReplyStyle = domain.StyleNeutral
		out.Notes = "Disengaging politely after saturation."

	case domain.StateSoftExit:
		if intelligenceFound {
			out.stop(domain.StateCallbackReady, "Conversation concluded with confirmed intelligence; report pending.")
			out.TriggerNotification = true
		} else {
			out.stop(domain.StateClosed, "Conversation concluded without confirmed intelligence.")
		}

	case domain.StateCallbackReady:
		out.stop(domain.StateClosed, "Final report dispatched; closing session.")
		out.TriggerNotification = true

	case domain.StateClosed:
		out.stop(domain.StateClosed, "Session closed.")

	default:
		out.stop(domain.StateClosed, fmt.Sprintf("Unknown lifecycle state %q; forcing close.", in.CurrentState))
		return out, fmt.Errorf("%w: %q", ErrUnknownState, in.CurrentState)
	}
	return out, nil
}

func (o *Output) engage(next domain.LifecycleState, style domain.ResponseStyle, notes string) {
	o.NextState = next
	o.ShouldReply = true
	o.ReplyStyle = style
	o.ContinueConversation = true
	o.Notes = notes
}

func (o *Output) stop(next domain.LifecycleState, notes string) {
	o.NextState = next
	o.ShouldReply = false
	o.ReplyStyle = ""
	o.ContinueConversation = false
	o.Notes = notes
}
