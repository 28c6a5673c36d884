package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/format"
	"github.com/m3rciful/quizbot/core/telegram/state"
)

// Dialog states driven by the session manager. A user without a session is
// unregistered.
const (
	StateAwaitingFirstName state.State = "awaiting_first_name"
	StateAwaitingLastName  state.State = "awaiting_last_name"
	StateRegistered        state.State = "registered"
	StateTestSent          state.State = "test_sent"
	StateAnswersSubmitted  state.State = "answers_submitted"
)

// Session temp-data keys for registration fields.
const (
	tempFirstName = "first_name"
	tempLastName  = "last_name"
)

// User-facing texts. The dialog is deliberately plain text; only the greeting
// uses Markdown (names are escaped by the transport layer).
const (
	TextAskFirstName      = "Hi! Please enter your first name:"
	TextAskLastName       = "Thanks! Now enter your surname:"
	TextUseButtons        = "Please use the buttons below to get the test or view statistics."
	TextAlreadySubmitted  = "You have already submitted your answers."
	TextAlreadyReceived   = "You have already received the test. Please send your answers."
	TextNotRegistered     = "Please send /start to register first."
	TextDataNotFound      = "Something went wrong. Your registration data was not found."
	TextNoStats           = "No statistics found."

	TextInstructions = "Recommended time for the test is 1 hour.\n" +
		"Send your answers in lower case without spaces.\n" +
		"Example: abcdeabcdeabcdeabcdeabcdeabcde"
)

// Outbound is a single transport-agnostic effect produced by the state
// machine: a text message, a photo upload, or a text with the action keyboard
// attached. Markdown marks texts that carry escaped Markdown markup.
type Outbound struct {
	Text     string
	Photo    []byte
	Keyboard bool
	Markdown bool
}

func text(s string) Outbound { return Outbound{Text: s} }

func textWithActions(s string) Outbound { return Outbound{Text: s, Keyboard: true} }

// Service is the per-user session state machine and the orchestrator of the
// answer key, scoring, and statistics components.
type Service struct {
	sessions state.Manager
	key      AnswerKeySource
	stats    StatsStore
	assets   []string
}

// NewService wires the state machine with its collaborators. assets is the
// fixed ordered list of test image paths delivered on request.
func NewService(sessions state.Manager, key AnswerKeySource, stats StatsStore, assets []string) *Service {
	return &Service{sessions: sessions, key: key, stats: stats, assets: assets}
}

// Sessions exposes the session manager for router wiring.
func (s *Service) Sessions() state.Manager {
	return s.sessions
}

// Start handles the /start command: registration restarts unconditionally,
// even mid-flow.
func (s *Service) Start(ctx context.Context, userID int64) ([]Outbound, error) {
	s.sessions.ClearTemp(userID, tempFirstName)
	s.sessions.ClearTemp(userID, tempLastName)
	s.sessions.SetState(userID, StateAwaitingFirstName)
	logger.Info(ctx, "service.quiz", "session.start",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.String("state", string(StateAwaitingFirstName)),
	)
	return []Outbound{text(TextAskFirstName)}, nil
}

// HandleText routes a free-text message according to the current state.
func (s *Service) HandleText(ctx context.Context, userID int64, raw string) ([]Outbound, error) {
	trimmed := strings.TrimSpace(raw)
	current := s.sessions.GetState(userID)

	switch current {
	case StateAwaitingFirstName:
		s.sessions.SetTemp(userID, tempFirstName, trimmed)
		s.sessions.SetState(userID, StateAwaitingLastName)
		return []Outbound{text(TextAskLastName)}, nil

	case StateAwaitingLastName:
		s.sessions.SetTemp(userID, tempLastName, trimmed)
		s.sessions.SetState(userID, StateRegistered)
		reg, _ := s.registration(userID)
		greeting := fmt.Sprintf("Thanks, *%s %s*!\nChoose what to do next:",
			escapeName(reg.FirstName), escapeName(reg.LastName))
		out := textWithActions(greeting)
		out.Markdown = true
		return []Outbound{out}, nil

	case StateRegistered:
		// Plain text instead of an action is not an answer submission.
		return []Outbound{textWithActions(TextUseButtons)}, nil

	case StateTestSent:
		return s.submitAnswers(ctx, userID, trimmed)

	case StateAnswersSubmitted:
		return []Outbound{text(TextAlreadySubmitted)}, nil

	default:
		return []Outbound{text(TextNotRegistered)}, nil
	}
}

// RequestTest delivers the fixed ordered test assets followed by the usage
// instructions. A missing asset is reported per-asset and does not abort the
// remaining deliveries.
func (s *Service) RequestTest(ctx context.Context, userID int64) ([]Outbound, error) {
	current := s.sessions.GetState(userID)
	if current == StateTestSent || current == StateAnswersSubmitted {
		return []Outbound{text(TextAlreadyReceived)}, nil
	}
	s.sessions.SetState(userID, StateTestSent)

	out := make([]Outbound, 0, len(s.assets)+1)
	failed := 0
	for i, path := range s.assets {
		data, err := os.ReadFile(path)
		if err != nil {
			failed++
			logger.Error(ctx, "service.quiz", "asset.missing",
				slog.String("status", "fail"),
				slog.Int64("user_id", userID),
				slog.String("asset", path),
				slog.String("err", fmt.Errorf("%w: %v", ErrAssetMissing, err).Error()),
			)
			out = append(out, text(fmt.Sprintf("Image %d of %d could not be delivered.", i+1, len(s.assets))))
			continue
		}
		out = append(out, Outbound{Photo: data})
	}
	logger.Info(ctx, "service.quiz", "test.sent",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.Int("assets_total", len(s.assets)),
		slog.Int("assets_failed", failed),
	)
	return append(out, text(TextInstructions)), nil
}

// ShowStats renders the descending ranking from a statistics snapshot.
func (s *Service) ShowStats(ctx context.Context) ([]Outbound, error) {
	users, err := s.stats.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load statistics: %w", err)
	}
	if len(users) == 0 {
		return []Outbound{text(TextNoStats)}, nil
	}

	var b strings.Builder
	b.WriteString("Statistics 📊:\n")
	for i, row := range Rank(users) {
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(row.FirstName)
		b.WriteString(" ")
		b.WriteString(row.LastName)
		b.WriteString(" - ")
		b.WriteString(strconv.Itoa(row.Total()))
		b.WriteString(" correct answers\n")
	}
	return []Outbound{text(strings.TrimRight(b.String(), "\n"))}, nil
}

// submitAnswers scores a submission against the key and records the attempt.
// The state advances to answers_submitted only after the attempt is durably
// recorded.
func (s *Service) submitAnswers(ctx context.Context, userID int64, raw string) ([]Outbound, error) {
	reg, ok := s.registration(userID)
	if !ok {
		logger.Error(ctx, "service.quiz", "submit.unknown_user",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", ErrUnknownUser.Error()),
		)
		return []Outbound{text(TextDataNotFound)}, nil
	}

	key := s.key.Load(ctx)
	answers := SplitAnswers(raw)
	if len(answers) != len(key) {
		mismatch := &CountMismatchError{Got: len(answers), Want: len(key)}
		logger.Warn(ctx, "service.quiz", "submit.count_mismatch",
			slog.String("status", "skip"),
			slog.Int64("user_id", userID),
			slog.Int("answers", mismatch.Got),
			slog.Int("questions", mismatch.Want),
		)
		msg := fmt.Sprintf("The number of answers (%d) does not match the number of questions (%d). Try again.",
			mismatch.Got, mismatch.Want)
		return []Outbound{text(msg)}, nil
	}

	report, vector := Score(answers, key)

	if err := s.stats.RecordAttempt(ctx, strconv.FormatInt(userID, 10), reg, vector); err != nil {
		return nil, fmt.Errorf("record attempt: %w", err)
	}
	s.sessions.SetState(userID, StateAnswersSubmitted)

	total := 0
	for _, v := range vector {
		total += v
	}
	logger.Info(ctx, "service.quiz", "submit.recorded",
		slog.String("status", "ok"),
		slog.Int64("user_id", userID),
		slog.Int("questions", len(key)),
		slog.Int("total", total),
	)
	return []Outbound{text("Results:\n" + report)}, nil
}

// escapeName protects user-entered names from being interpreted as Markdown
// markup in the greeting.
func escapeName(name string) string {
	escaped, err := format.EscapeMarkdown(name, format.MarkdownV1, "")
	if err != nil {
		return name
	}
	return escaped
}

// registration reads both name fields from the session; ok is false when
// either is missing.
func (s *Service) registration(userID int64) (Registration, bool) {
	first, okFirst := s.sessions.GetTemp(userID, tempFirstName)
	last, okLast := s.sessions.GetTemp(userID, tempLastName)
	if !okFirst || !okLast {
		return Registration{}, false
	}
	firstName, _ := first.(string)
	lastName, _ := last.(string)
	if firstName == "" && lastName == "" {
		return Registration{}, false
	}
	return Registration{FirstName: firstName, LastName: lastName}, true
}
