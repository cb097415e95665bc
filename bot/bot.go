package bot

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Johndevils/Mongodb-bot/config"
	"github.com/Johndevils/Mongodb-bot/errors"
	"github.com/Johndevils/Mongodb-bot/log"
	"github.com/Johndevils/Mongodb-bot/topo"
	"github.com/Johndevils/Mongodb-bot/transfer"
)

const durationPrecision = 100 * time.Millisecond

const helpText = `Commands:
/set_source <uri> — set the source connection string (must include a database)
/set_target <uri> — set the target connection string (must include a database)
/transfer <collection> [targetCollection] [skip|overwrite|fail] — start a transfer
/status — show the state of the current transfer
/help — this message`

// sender is the slice of *tgbotapi.BotAPI the bot uses to deliver
// messages. It exists so handlers can be tested without Telegram.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Runner executes one transfer and reports to the given reporter.
type Runner interface {
	Run(ctx context.Context, req transfer.Request, reporter transfer.ProgressReporter) (*transfer.Report, error)

	// Status returns the progress of the most recent transfer. The second
	// value is false when nothing has run yet.
	Status() (transfer.Progress, bool)
}

// Bot is the Telegram front end. It collects connection strings per chat
// and starts transfers. At most one transfer runs at a time.
type Bot struct {
	api      *tgbotapi.BotAPI
	send     sender
	runner   Runner
	cfg      config.TelegramConfig
	sessions *sessionStore
	lg       log.Logger

	running atomic.Bool
}

// New connects to the Telegram API and returns a ready bot.
func New(cfg config.TelegramConfig, runner Runner) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, errors.Wrap(err, "telegram api")
	}

	b := &Bot{
		api:      api,
		send:     api,
		runner:   runner,
		cfg:      cfg,
		sessions: newSessionStore(),
		lg:       log.New("bot"),
	}

	b.lg.Infof("Authorized as @%s", api.Self.UserName)

	return b, nil
}

// Run polls for updates until ctx ends.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30

	updates := b.api.GetUpdatesChan(u)

	b.notifyAdmin("🤖 Bot started and ready")

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()

			return ctx.Err() //nolint:wrapcheck

		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}

			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.reply(msg.Chat.ID, "I only understand commands. Try /help")

		return
	}

	b.lg.With(log.Str("command", msg.Command()), log.Int64("chat", msg.Chat.ID)).
		Debug("Handling command")

	switch msg.Command() {
	case "start":
		b.reply(msg.Chat.ID, "👋 I move documents between MongoDB collections.\n\n"+helpText)
	case "help":
		b.reply(msg.Chat.ID, helpText)
	case "set_source":
		b.handleSetSource(msg)
	case "set_target":
		b.handleSetTarget(msg)
	case "transfer":
		b.handleTransfer(ctx, msg)
	case "status":
		b.handleStatus(msg)
	default:
		b.reply(msg.Chat.ID, "Unknown command. Try /help")
	}
}

func (b *Bot) handleSetSource(msg *tgbotapi.Message) {
	uri := strings.TrimSpace(msg.CommandArguments())
	if err := checkURI(uri); err != nil {
		b.reply(msg.Chat.ID, "Invalid source: "+err.Error())

		return
	}

	b.sessions.setSource(msg.Chat.ID, uri)
	b.reply(msg.Chat.ID, "Source set to "+topo.Redact(uri))
}

func (b *Bot) handleSetTarget(msg *tgbotapi.Message) {
	uri := strings.TrimSpace(msg.CommandArguments())
	if err := checkURI(uri); err != nil {
		b.reply(msg.Chat.ID, "Invalid target: "+err.Error())

		return
	}

	b.sessions.setTarget(msg.Chat.ID, uri)
	b.reply(msg.Chat.ID, "Target set to "+topo.Redact(uri))
}

func (b *Bot) handleTransfer(ctx context.Context, msg *tgbotapi.Message) {
	sess := b.sessions.get(msg.Chat.ID)
	if sess.SourceURI == "" || sess.TargetURI == "" {
		b.reply(msg.Chat.ID, "Set both connection strings first: /set_source and /set_target")

		return
	}

	req, err := parseTransferArgs(msg.CommandArguments())
	if err != nil {
		b.reply(msg.Chat.ID, err.Error())

		return
	}

	req.SourceURI = sess.SourceURI
	req.TargetURI = sess.TargetURI

	if !b.running.CompareAndSwap(false, true) {
		b.reply(msg.Chat.ID, "A transfer is already running, try again later")

		return
	}

	b.reply(msg.Chat.ID, "🚀 Starting transfer of "+req.SourceCollection)

	go func() {
		defer b.running.Store(false)

		reporter := newChatReporter(b.send, msg.Chat.ID)

		rep, err := b.runner.Run(ctx, req, reporter)
		if err != nil {
			b.lg.Error(err, "Transfer")
		}
		if err != nil && rep == nil {
			// never started, so the reporter has nothing to show
			b.reply(msg.Chat.ID, "Transfer failed: "+err.Error())
		}
	}()
}

func (b *Bot) handleStatus(msg *tgbotapi.Message) {
	p, ok := b.runner.Status()
	if !ok {
		b.reply(msg.Chat.ID, "No transfer has run yet")

		return
	}

	b.reply(msg.Chat.ID, string(p.State)+"\n"+
		formatCounts(p.Read, p.Written, p.Skipped, p.Failed))
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.send.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.lg.Error(err, "Send reply")
	}
}

func (b *Bot) notifyAdmin(text string) {
	if b.cfg.AdminChatID == 0 {
		return
	}

	b.reply(b.cfg.AdminChatID, text)
}

// parseTransferArgs parses "<collection> [targetCollection] [policy]".
func parseTransferArgs(args string) (transfer.Request, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return transfer.Request{},
			errors.New("usage: /transfer <collection> [targetCollection] [skip|overwrite|fail]")
	}

	req := transfer.Request{
		SourceCollection: fields[0],
		TargetCollection: fields[0],
	}

	rest := fields[1:]
	if len(rest) > 0 && !isPolicy(rest[0]) {
		req.TargetCollection = rest[0]
		rest = rest[1:]
	}

	if len(rest) > 0 {
		if !isPolicy(rest[0]) {
			return transfer.Request{}, errors.Errorf("unknown duplicate policy %q", rest[0])
		}
		req.Policy = transfer.Policy(rest[0])
		rest = rest[1:]
	}

	if len(rest) > 0 {
		return transfer.Request{}, errors.New("too many arguments, see /help")
	}

	return req, nil
}

func isPolicy(s string) bool {
	switch transfer.Policy(s) {
	case transfer.PolicySkip, transfer.PolicyOverwrite, transfer.PolicyFail:
		return true
	}

	return false
}

func checkURI(uri string) error {
	if uri == "" {
		return errors.New("connection string is required")
	}

	if _, err := topo.ParseURI(uri); err != nil {
		return errors.New("not a valid mongodb:// connection string with a database")
	}

	return nil
}
