// Package handlers binds the quiz service to the Telegram transport:
// commands, the two inline-keyboard actions, and free-text routing through
// the session state machine.
package handlers

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/bot/quiz"
	"github.com/m3rciful/quizbot/core/logger"
	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/quizbot/core/telegram/helpers"
	"github.com/m3rciful/quizbot/core/telegram/keyboard"
	"github.com/m3rciful/quizbot/core/telegram/state"
)

// Callback keys offered on the post-registration keyboard.
const (
	CallbackGetTest   = "get_test"
	CallbackShowStats = "show_stats"
)

const textGenericError = "An error occurred. Please try again later."

// Handlers owns the transport-facing entry points of the bot.
type Handlers struct {
	svc   *quiz.Service
	stats quiz.StatsStore
}

// New creates the handler set. stats is used directly only by the admin
// maintenance commands.
func New(svc *quiz.Service, stats quiz.StatsStore) *Handlers {
	return &Handlers{svc: svc, stats: stats}
}

// Register wires commands and callbacks into the registry and binds the
// per-state text handlers of the session state machine.
func (h *Handlers) Register(reg *tg.Registry) {
	reg.RegisterCommand("/start", commands.Command{
		Handler:     h.OnStart,
		Description: "Register and begin the test dialog",
	})
	reg.RegisterCommand("/export", commands.Command{
		Handler:     h.OnExport,
		Description: "Regenerate the statistics export",
		AdminOnly:   true,
		Hidden:      true,
	})
	reg.RegisterCommand("/reload", commands.Command{
		Handler:     h.OnReload,
		Description: "Reload statistics from storage",
		AdminOnly:   true,
		Hidden:      true,
	})

	_ = reg.RegisterCallback(CallbackGetTest, h.OnGetTest)
	_ = reg.RegisterCallback(CallbackShowStats, h.OnShowStats)
	reg.SetTextFallback(h.OnText)

	// Every dialog state routes free text into the same entry point; the
	// service decides what the text means for the current state.
	for _, st := range []state.State{
		quiz.StateAwaitingFirstName,
		quiz.StateAwaitingLastName,
		quiz.StateRegistered,
		quiz.StateTestSent,
		quiz.StateAnswersSubmitted,
	} {
		state.RegisterHandler(st, h.OnText)
	}
}

// OnStart restarts registration unconditionally.
func (h *Handlers) OnStart(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	out, err := h.svc.Start(ctx, c.Sender().ID)
	return h.deliver(c, out, err)
}

// OnText routes free text through the session state machine.
func (h *Handlers) OnText(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	out, err := h.svc.HandleText(ctx, c.Sender().ID, c.Text())
	return h.deliver(c, out, err)
}

// OnGetTest handles the get_test action.
func (h *Handlers) OnGetTest(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	out, err := h.svc.RequestTest(ctx, c.Sender().ID)
	return h.deliver(c, out, err)
}

// OnShowStats handles the show_stats action.
func (h *Handlers) OnShowStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	out, err := h.svc.ShowStats(ctx)
	return h.deliver(c, out, err)
}

// OnExport forces a wholesale regeneration of the tabular export.
func (h *Handlers) OnExport(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := h.stats.Export(ctx); err != nil {
		_ = tghelpers.SendText(c, textGenericError)
		return err
	}
	return tghelpers.SendText(c, "Export regenerated.")
}

// OnReload drops the statistics cache and re-hydrates from durable storage.
func (h *Handlers) OnReload(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := h.stats.Reload(ctx); err != nil {
		_ = tghelpers.SendText(c, textGenericError)
		return err
	}
	return tghelpers.SendText(c, "Statistics reloaded from storage.")
}

// UnknownText satisfies ui.FallbackProvider.
func (h *Handlers) UnknownText() tele.HandlerFunc {
	return h.OnText
}

// UnknownDocument satisfies ui.FallbackProvider.
func (h *Handlers) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, "Please send your answers as a single text message.")
	}
}

// UnknownCallback satisfies ui.FallbackProvider.
func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
	}
}

// ActionsKeyboard builds the two-option inline keyboard offered after
// registration.
func ActionsKeyboard() *tele.ReplyMarkup {
	return keyboard.InlineButtons([]keyboard.InlineBtn{
		{Text: "Get the test", Unique: CallbackGetTest},
		{Text: "Show statistics", Unique: CallbackShowStats},
	})
}

// deliver sends the outbound effects in order. On service failure the user
// gets a generic retry message and the error propagates for router logging.
func (h *Handlers) deliver(c tele.Context, out []quiz.Outbound, err error) error {
	if err != nil {
		h.logDeliveryError(tghelpers.BuildContext(c), err)
		_ = tghelpers.SendText(c, textGenericError)
		return err
	}
	for _, o := range out {
		switch {
		case o.Photo != nil:
			if sendErr := tghelpers.SendPhotoBytes(c, o.Photo, ""); sendErr != nil {
				return sendErr
			}
		case o.Keyboard:
			opts := &tele.SendOptions{ReplyMarkup: ActionsKeyboard()}
			if o.Markdown {
				opts.ParseMode = tele.ModeMarkdown
			}
			if sendErr := tghelpers.SendText(c, o.Text, opts); sendErr != nil {
				return sendErr
			}
		case o.Markdown:
			if sendErr := tghelpers.SendMD(c, o.Text); sendErr != nil {
				return sendErr
			}
		default:
			if sendErr := tghelpers.SendText(c, o.Text); sendErr != nil {
				return sendErr
			}
		}
	}
	return nil
}

func (h *Handlers) logDeliveryError(ctx context.Context, err error) {
	logger.Error(ctx, "tg", "handler.service_error",
		slog.String("status", "fail"),
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
	)
}
