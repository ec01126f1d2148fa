package notify

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/shanehull/resultalert/internal/types"
)

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	// ChannelID is a numeric chat id or an @channel username.
	ChannelID string `mapstructure:"channel_id"`
	// PinStrong pins strong_positive and strong_negative alerts.
	PinStrong bool `mapstructure:"pin_strong"`
	// FailureAlerts sends a short alert with the filing link when a results
	// document cannot be downloaded or extracted.
	FailureAlerts bool `mapstructure:"failure_alerts"`
}

// BotClient is the part of *tgbotapi.BotAPI the sink uses.
type BotClient interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Telegram struct {
	bot       BotClient
	chatID    int64
	username  string
	pinStrong bool
	log       zerolog.Logger
}

// NewTelegram logs in with the bot token.
func NewTelegram(cfg TelegramConfig, log zerolog.Logger) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Str("channel", cfg.ChannelID).Msg("telegram notifier ready")
	return NewTelegramWith(bot, cfg, log)
}

func NewTelegramWith(bot BotClient, cfg TelegramConfig, log zerolog.Logger) (*Telegram, error) {
	t := &Telegram{bot: bot, pinStrong: cfg.PinStrong, log: log}
	if id, err := strconv.ParseInt(cfg.ChannelID, 10, 64); err == nil {
		t.chatID = id
	} else if strings.HasPrefix(cfg.ChannelID, "@") {
		t.username = cfg.ChannelID
	} else {
		return nil, fmt.Errorf("invalid telegram channel id %q", cfg.ChannelID)
	}
	return t, nil
}

func (t *Telegram) message(text string) tgbotapi.MessageConfig {
	var msg tgbotapi.MessageConfig
	if t.username != "" {
		msg = tgbotapi.NewMessageToChannel(t.username, text)
	} else {
		msg = tgbotapi.NewMessage(t.chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	return msg
}

func (t *Telegram) Emit(_ context.Context, r types.AnalysisResult) error {
	msg := t.message(FormatTelegram(r))
	msg.ReplyMarkup = Buttons(r)

	sent, err := t.bot.Send(msg)
	if err != nil {
		return fmt.Errorf("failed to send telegram alert for %s: %w", r.Symbol, err)
	}
	t.log.Info().Str("symbol", r.Symbol).Int("message_id", sent.MessageID).Msg("sent telegram alert")

	if t.pinStrong && (r.Sentiment == types.StrongPositive || r.Sentiment == types.StrongNegative) {
		pin := tgbotapi.PinChatMessageConfig{
			ChatID:          t.chatID,
			ChannelUsername: t.username,
			MessageID:       sent.MessageID,
		}
		if _, err := t.bot.Request(pin); err != nil {
			t.log.Warn().Err(err).Str("symbol", r.Symbol).Msg("failed to pin message")
		}
	}
	return nil
}

// FormatTelegram renders the alert body in Telegram's HTML subset.
func FormatTelegram(r types.AnalysisResult) string {
	m := r.Metrics
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s <b>%s Q%d FY%d Results</b>\n\n", r.Sentiment.Emoji(), html.EscapeString(displayName(r)), r.Quarter, r.FiscalYear))
	sb.WriteString(fmt.Sprintf("<b>Revenue:</b> %s %s\n", formatCrore(m.Revenue), formatGrowth(r.YoYRevenueGrowth)))
	sb.WriteString(fmt.Sprintf("<b>Profit:</b> %s %s\n", formatCrore(m.ProfitAfterTax), formatGrowth(r.YoYProfitGrowth)))
	sb.WriteString(fmt.Sprintf("<b>EPS:</b> %s\n", formatRupees(m.EPS)))

	if b := beats(r); len(b) > 0 {
		sb.WriteString("\n📊 <b>vs Estimates:</b>")
		for _, l := range b {
			sb.WriteString(fmt.Sprintf("\n• %s: %s", l.Label, l.Value))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n⚡ <b>Action:</b> %s\n", html.EscapeString(r.ActionText)))
	if f := flags(r); f != "" {
		sb.WriteString(fmt.Sprintf("<i>%s</i>\n", html.EscapeString(strings.TrimSpace(f))))
	}
	sb.WriteString(fmt.Sprintf("⏱️ Detected in %.1fs", r.DetectionTimeSec))
	return sb.String()
}

// Buttons links the chart, the filing, Screener and Kite. BSE scrip codes
// get the BSE quote page instead of a chart and no Kite link.
func Buttons(r types.AnalysisResult) tgbotapi.InlineKeyboardMarkup {
	return links(r.Symbol, r.Announcement.AttachmentURL)
}

func links(symbol, attachment string) tgbotapi.InlineKeyboardMarkup {
	pdf := attachment
	if pdf != "" && !strings.HasPrefix(pdf, "http") {
		pdf = "https://www.nseindia.com" + pdf
	}

	bse := types.IsScripCode(symbol)
	chart := "https://www.tradingview.com/chart/?symbol=NSE:" + symbol
	if bse {
		chart = "https://www.bseindia.com/stock-share-price/x/x/" + symbol + "/"
	}
	first := []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonURL("📈 Chart", chart),
	}
	if pdf != "" {
		first = append(first, tgbotapi.NewInlineKeyboardButtonURL("📄 PDF", pdf))
	}
	second := tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonURL("🔍 Screener", "https://www.screener.in/company/"+symbol+"/"),
	)
	if !bse {
		second = append(second, tgbotapi.NewInlineKeyboardButtonURL("💹 Kite", "https://kite.zerodha.com/chart/NSE/"+symbol))
	}
	return tgbotapi.NewInlineKeyboardMarkup(first, second)
}
