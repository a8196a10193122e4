package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"github.com/John-Robertt/wallpipe/internal/domain"
	"github.com/John-Robertt/wallpipe/internal/infra/logx"
)

const DefaultTelegramBaseURL = "https://api.telegram.org"

// DefaultReactions 是投递成功后可能附加的表情（Telegram 允许的 reaction 子集）。
var DefaultReactions = []string{"👍", "❤", "🔥", "🥰", "👏", "🎉", "🤩", "😍", "💯", "⚡", "🏆", "👌"}

type TelegramOptions struct {
	Token   string
	BaseURL string
	Client  *http.Client
	// Reactions 是启动时解析一次的能力开关：true 时在投递成功后尝试 setMessageReaction。
	Reactions bool
	Emojis    []string
	Log       logx.Logger
}

// TelegramSender 通过 Bot API 的 sendPhoto 投递；destinationID 即 chat_id。
type TelegramSender struct {
	opt  TelegramOptions
	pick func(n int) int
}

func NewTelegramSender(opt TelegramOptions) (*TelegramSender, error) {
	if strings.TrimSpace(opt.Token) == "" {
		return nil, errors.New("telegram token 不能为空")
	}
	if opt.BaseURL == "" {
		opt.BaseURL = DefaultTelegramBaseURL
	}
	opt.BaseURL = strings.TrimRight(opt.BaseURL, "/")
	if opt.Client == nil {
		opt.Client = http.DefaultClient
	}
	if len(opt.Emojis) == 0 {
		opt.Emojis = DefaultReactions
	}
	if opt.Log == nil {
		opt.Log = logx.NewNop()
	}
	return &TelegramSender{opt: opt, pick: rand.IntN}, nil
}

type inlineButton struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

type sendPhotoRequest struct {
	ChatID      string       `json:"chat_id"`
	Photo       string       `json:"photo"`
	Caption     string       `json:"caption"`
	ParseMode   string       `json:"parse_mode"`
	ReplyMarkup *replyMarkup `json:"reply_markup,omitempty"`
}

type reactionType struct {
	Type  string `json:"type"`
	Emoji string `json:"emoji"`
}

type setReactionRequest struct {
	ChatID    string         `json:"chat_id"`
	MessageID int64          `json:"message_id"`
	Reaction  []reactionType `json:"reaction"`
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	ErrorCode   int             `json:"error_code"`
	Result      json.RawMessage `json:"result"`
}

// APIError 是 Bot API 返回 ok=false 时的错误。
type APIError struct {
	Method      string
	Code        int
	Description string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram %s 失败：%d %s", e.Method, e.Code, e.Description)
}

func (s *TelegramSender) Send(ctx context.Context, destinationID string, rec domain.ContentRecord) error {
	req := sendPhotoRequest{
		ChatID:    destinationID,
		Photo:     rec.PreviewURL,
		Caption:   FormatCaption(rec),
		ParseMode: "Markdown",
	}
	if rec.DownloadURL != "" {
		req.ReplyMarkup = &replyMarkup{InlineKeyboard: [][]inlineButton{{{Text: "⬇️ Download", URL: rec.DownloadURL}}}}
	}

	var msg struct {
		MessageID int64 `json:"message_id"`
	}
	if err := s.call(ctx, "sendPhoto", req, &msg); err != nil {
		return err
	}
	s.opt.Log.Debug("telegram 投递成功", logx.String("chat", destinationID), logx.Int64("message_id", msg.MessageID))

	if s.opt.Reactions && msg.MessageID != 0 {
		// reaction 失败不影响投递结果。
		if err := s.react(ctx, destinationID, msg.MessageID); err != nil {
			s.opt.Log.Debug("添加 reaction 失败", logx.Err(err))
		}
	}
	return nil
}

func (s *TelegramSender) react(ctx context.Context, chatID string, messageID int64) error {
	emoji := s.opt.Emojis[s.pick(len(s.opt.Emojis))]
	return s.call(ctx, "setMessageReaction", setReactionRequest{
		ChatID:    chatID,
		MessageID: messageID,
		Reaction:  []reactionType{{Type: "emoji", Emoji: emoji}},
	}, nil)
}

func (s *TelegramSender) call(ctx context.Context, method string, in any, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	endpoint := s.opt.BaseURL + "/bot" + s.opt.Token + "/" + method
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("telegram %s：构造请求失败", method)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.opt.Client.Do(req)
	if err != nil {
		// url.Error 会带上含 token 的完整地址，只保留底层错误。
		var ue *url.Error
		if errors.As(err, &ue) {
			err = ue.Err
		}
		return fmt.Errorf("telegram %s：%w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("telegram %s：读取响应失败：%w", method, err)
	}
	var ar apiResponse
	if err := json.Unmarshal(raw, &ar); err != nil {
		return fmt.Errorf("telegram %s：HTTP %d，响应不是 JSON", method, resp.StatusCode)
	}
	if !ar.OK {
		code := ar.ErrorCode
		if code == 0 {
			code = resp.StatusCode
		}
		return &APIError{Method: method, Code: code, Description: ar.Description}
	}
	if out != nil && len(ar.Result) > 0 {
		if err := json.Unmarshal(ar.Result, out); err != nil {
			return fmt.Errorf("telegram %s：解析 result 失败：%w", method, err)
		}
	}
	return nil
}
