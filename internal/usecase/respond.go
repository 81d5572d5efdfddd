package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"honeypot-agent/internal/decision"
	"honeypot-agent/internal/domain"
	"honeypot-agent/internal/extraction"
	"honeypot-agent/internal/integrations/callback"
	"honeypot-agent/internal/persona"
	"honeypot-agent/internal/repository"
)

const defaultMaxNotifyAttempts = 3

// NotifyFailurePolicy decides what happens to a session whose final report
// could not be delivered.
type NotifyFailurePolicy string

const (
	// NotifyFailureClose closes the session anyway. The report is lost.
	NotifyFailureClose NotifyFailurePolicy = "close"
	// NotifyFailureRetry keeps the session in CALLBACK_READY so the next
	// inbound message retries delivery, up to the configured attempt limit.
	NotifyFailureRetry NotifyFailurePolicy = "retry"
)

// ParseNotifyFailurePolicy accepts "close" or "retry"; empty means close.
func ParseNotifyFailurePolicy(s string) (NotifyFailurePolicy, error) {
	switch p := NotifyFailurePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "", NotifyFailureClose:
		return NotifyFailureClose, nil
	case NotifyFailureRetry:
		return p, nil
	default:
		return "", errors.New("usecase: unknown notify failure policy " + s)
	}
}

type ReplyGenerator interface {
	Generate(ctx context.Context, req persona.Request) persona.Result
}

type Notifier interface {
	Notify(ctx context.Context, p callback.Payload) (bool, error)
}

// SessionRunner holds a session's lock while the turn and the report
// dispatch that may follow it are persisted.
type SessionRunner interface {
	WithLock(ctx context.Context, sessionID string, fn func(repository.Tx) error) error
}

type RespondService struct {
	sessions SessionRunner
	replies  ReplyGenerator
	notifier Notifier
	logger   *slog.Logger

	failurePolicy     NotifyFailurePolicy
	maxNotifyAttempts int
	now               func() time.Time
}

type Option func(*RespondService)

func WithNotifyFailurePolicy(p NotifyFailurePolicy, maxAttempts int) Option {
	return func(s *RespondService) {
		s.failurePolicy = p
		if maxAttempts > 0 {
			s.maxNotifyAttempts = maxAttempts
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *RespondService) {
		s.now = now
	}
}

type RespondInput struct {
	SessionID string
	Message   domain.Message
	History   []domain.Message
	Metadata  domain.Metadata
	Flags     domain.Flags
}

type RespondOutput struct {
	// Reply is empty when no reply was produced this turn.
	Reply string
	State domain.LifecycleState
}

func NewRespondService(sessions SessionRunner, replies ReplyGenerator, notifier Notifier, logger *slog.Logger, opts ...Option) (*RespondService, error) {
	if sessions == nil {
		return nil, errors.New("usecase: session runner must not be nil")
	}
	if replies == nil {
		return nil, errors.New("usecase: reply generator must not be nil")
	}
	if notifier == nil {
		return nil, errors.New("usecase: notifier must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &RespondService{
		sessions:          sessions,
		replies:           replies,
		notifier:          notifier,
		logger:            logger,
		failurePolicy:     NotifyFailureClose,
		maxNotifyAttempts: defaultMaxNotifyAttempts,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Respond processes one inbound message for a session: it advances the state
// machine, optionally replies in character, harvests intelligence and, once
// the conversation concludes with a confirmed scam, sends the final report.
//
// Only malformed input is returned as an error. A turn that cannot be
// persisted is logged and answered with an empty reply.
func (s *RespondService) Respond(ctx context.Context, in RespondInput) (RespondOutput, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return RespondOutput{}, NewError(ErrorInvalidInput, "empty_session_id", nil)
	}
	if in.Message.Sender != domain.SenderScammer && in.Message.Sender != domain.SenderUser {
		return RespondOutput{}, NewError(ErrorInvalidInput, "invalid_sender", nil)
	}

	var (
		out       RespondOutput
		persisted bool
	)
	err := s.sessions.WithLock(ctx, sessionID, func(tx repository.Tx) error {
		var report *callback.Payload
		err := tx.Apply(func(st *domain.SessionState) (domain.Turn, error) {
			var turn domain.Turn
			turn, report = s.runTurn(ctx, st, in)
			out = RespondOutput{Reply: turn.Reply, State: st.State}
			return turn, nil
		})
		if err != nil {
			return err
		}
		persisted = true
		if report == nil {
			return nil
		}

		// The claim is stored; the report goes out at most once from here on.
		delivered, notifyErr := s.notifier.Notify(ctx, *report)
		return tx.Apply(func(st *domain.SessionState) (domain.Turn, error) {
			turn := s.recordReport(st, delivered, notifyErr)
			out.State = st.State
			return turn, nil
		})
	})
	if err != nil {
		s.logger.Error("session not persisted", "session_id", sessionID, "turn_saved", persisted, "err", err)
		if !persisted {
			return RespondOutput{}, nil
		}
	}
	return out, nil
}

// runTurn applies one message to st. When the turn concludes the session
// with a report due, the dispatch is claimed on st and its payload returned;
// the caller sends it only after the claim is saved.
func (s *RespondService) runTurn(ctx context.Context, st *domain.SessionState, in RespondInput) (domain.Turn, *callback.Payload) {
	log := s.logger.With("session_id", st.SessionID)
	turn := domain.Turn{
		Sender: in.Message.Sender,
		Text:   in.Message.Text,
		From:   st.State,
		At:     s.now().UTC().Format(time.RFC3339Nano),
	}

	if st.NotificationPending {
		log.Warn("previous report dispatch has no recorded outcome; closing without resending",
			"state", st.State, "attempt", st.NotificationAttempts)
		st.NotificationPending = false
		st.State = domain.StateClosed
	}

	dec, err := decision.Decide(decision.Input{
		SessionID:    st.SessionID,
		CurrentState: st.State,
		Message:      in.Message,
		History:      in.History,
		Metadata:     in.Metadata,
		Intelligence: st.Intelligence,
		Stats: decision.Stats{
			TotalMessages:          st.TotalMessages,
			ScammerMessages:        st.ScammerMessages,
			AgentMessages:          st.AgentMessages,
			NoNewIntelligenceTurns: st.NoNewIntelligenceTurns,
		},
		Flags:    in.Flags,
		ScamType: st.ScamType,
	})
	if err != nil {
		log.Error("decision contract violation; closing session", "state", st.State, "err", err)
		st.State = domain.StateClosed
		s.count(st, in.Message.Sender)
		turn.To, turn.Notes = st.State, dec.Notes
		return turn, nil
	}

	st.State = dec.NextState
	if dec.ScamType != "" {
		st.ScamType = dec.ScamType
	}
	log.Debug("decision", "from", turn.From, "to", dec.NextState, "reply", dec.ShouldReply,
		"style", dec.ReplyStyle, "scam_detected", dec.ScamDetected, "notes", dec.Notes)

	if dec.ShouldReply {
		res := s.replies.Generate(ctx, persona.Request{
			SessionID:      st.SessionID,
			CurrentMessage: in.Message,
			History:        in.History,
			Metadata:       in.Metadata,
			Style:          dec.ReplyStyle,
			Constraints:    persona.DefaultConstraints,
		})
		if res.OK() {
			turn.Reply = res.Reply
			st.AgentMessages++
		}
	}

	if st.State.Engaging() {
		found := extraction.Extract(in.Message.Text)
		var grew bool
		st.Intelligence, grew = domain.Merge(st.Intelligence, found.Intelligence)
		if grew {
			st.NoNewIntelligenceTurns = 0
		} else {
			st.NoNewIntelligenceTurns++
		}
	}

	s.count(st, in.Message.Sender)

	var report *callback.Payload
	if !st.NotificationSent && (st.State == domain.StateCallbackReady ||
		(dec.TriggerNotification && turn.From == domain.StateCallbackReady)) {
		report = s.claimReport(st, dec.Notes)
	}

	turn.To, turn.Notes = st.State, dec.Notes
	return turn, report
}

func (s *RespondService) count(st *domain.SessionState, sender domain.Sender) {
	st.TotalMessages++
	if sender == domain.SenderScammer {
		st.ScammerMessages++
	}
}

// claimReport marks a dispatch as in flight. Under the close policy the
// session is closed up front since no outcome can reopen it.
func (s *RespondService) claimReport(st *domain.SessionState, notes string) *callback.Payload {
	st.NotificationAttempts++
	st.NotificationPending = true
	if s.failurePolicy == NotifyFailureRetry {
		st.State = domain.StateCallbackReady
	} else {
		st.State = domain.StateClosed
	}
	return &callback.Payload{
		SessionID:              st.SessionID,
		ScamDetected:           st.Intelligence.HasConfirmed(),
		TotalMessagesExchanged: st.TotalMessages,
		ExtractedIntelligence:  st.Intelligence.Clone(),
		AgentNotes:             notes,
	}
}

// recordReport stores the outcome of a claimed dispatch.
func (s *RespondService) recordReport(st *domain.SessionState, delivered bool, notifyErr error) domain.Turn {
	log := s.logger.With("session_id", st.SessionID)
	turn := domain.Turn{From: st.State, At: s.now().UTC().Format(time.RFC3339Nano)}
	claimed := st.NotificationPending
	st.NotificationPending = false

	switch {
	case delivered:
		st.NotificationSent = true
		st.State = domain.StateClosed
		turn.Notes = "Final report delivered."
		log.Info("final report delivered", "attempt", st.NotificationAttempts)
	case claimed && s.failurePolicy == NotifyFailureRetry && st.NotificationAttempts < s.maxNotifyAttempts:
		st.State = domain.StateCallbackReady
		turn.Notes = "Final report not delivered; retrying on next message."
		log.Warn("final report not delivered; will retry on next message",
			"attempt", st.NotificationAttempts, "err", notifyErr)
	default:
		st.State = domain.StateClosed
		turn.Notes = "Final report not delivered; session closed without report."
		log.Error("final report not delivered; session closed without report",
			"attempt", st.NotificationAttempts, "policy", s.failurePolicy, "err", notifyErr)
	}
	turn.To = st.State
	return turn
}
