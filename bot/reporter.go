package bot

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Johndevils/Mongodb-bot/log"
	"github.com/Johndevils/Mongodb-bot/transfer"
)

// chatReporter delivers progress and the terminal report to one chat. The
// first progress event creates a message; later events edit it in place to
// avoid flooding the chat. Delivery failures are logged and never abort
// the transfer.
type chatReporter struct {
	api       sender
	chatID    int64
	messageID int
	lg        log.Logger
}

func newChatReporter(api sender, chatID int64) *chatReporter {
	return &chatReporter{
		api:    api,
		chatID: chatID,
		lg:     log.New("bot:reporter"),
	}
}

func (r *chatReporter) Progress(p transfer.Progress) {
	text := fmt.Sprintf("⏳ Transferring…\n%s", formatCounts(p.Read, p.Written, p.Skipped, p.Failed))

	if r.messageID == 0 {
		sent, err := r.api.Send(tgbotapi.NewMessage(r.chatID, text))
		if err != nil {
			r.lg.Error(err, "Send progress message")

			return
		}
		r.messageID = sent.MessageID

		return
	}

	edit := tgbotapi.NewEditMessageText(r.chatID, r.messageID, text)
	if _, err := r.api.Send(edit); err != nil {
		r.lg.Error(err, "Edit progress message")
	}
}

func (r *chatReporter) Done(rep *transfer.Report) {
	var sb strings.Builder

	switch rep.State {
	case transfer.StateSucceeded:
		sb.WriteString("✅ Transfer completed\n")
	case transfer.StatePartialFailure:
		sb.WriteString("⚠️ Transfer partially completed\n")
	default:
		sb.WriteString("❌ Transfer failed\n")
	}

	sb.WriteString(formatCounts(rep.Read, rep.Written, rep.Skipped, rep.Failed))
	fmt.Fprintf(&sb, "\nTook %s", rep.Elapsed.Round(durationPrecision))

	if rep.Error != "" {
		fmt.Fprintf(&sb, "\nError: %s", rep.Error)
	}

	if _, err := r.api.Send(tgbotapi.NewMessage(r.chatID, sb.String())); err != nil {
		r.lg.Error(err, "Send terminal report")
	}
}

func formatCounts(read, written, skipped, failed int64) string {
	return fmt.Sprintf("Read: %s | Written: %s | Skipped: %s | Failed: %s",
		humanize.Comma(read),
		humanize.Comma(written),
		humanize.Comma(skipped),
		humanize.Comma(failed))
}
