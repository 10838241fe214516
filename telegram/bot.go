// Package telegram drives the posting service from Telegram chat commands,
// via long polling. It is the single boundary where operation errors get
// logged and reported back to the user; one failed command never takes down
// the update loop.
package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/maurelioredfox/bsky-bot/service"
	"github.com/maurelioredfox/bsky-bot/store"
)

const authorizedUserKey = "AuthorizedUser"

const welcomeTemplate = `Welcome, here's your ID: %d, send it to my creator so you can be allowed to post,
meanwhile check what I can do:
/bluesky_post: the basic, I will ask for image and/or text and write a post (can also QRT or reply to a post)
/repost: repost a Bluesky post by URL
/update_profile: this allows to set Name, Description, Profile Picture or Banner
/list_posts: I try to keep track of things I posted, this will list and allow to add replies or delete something
/stop: if something broke or you want to stop what you're doing, this is the command`

// ConfigStore holds the authorized-user setting.
type ConfigStore interface {
	GetConfig(key string) (string, error)
	SetConfig(key, value string) error
}

type Bot struct {
	api     *tgbotapi.BotAPI
	svc     *service.Service
	cfg     ConfigStore
	adminID int64
	logger  *slog.Logger
	httpc   *http.Client

	mu       sync.Mutex
	convos   map[int64]*conversation
	limiters map[int64]*rate.Limiter
}

func New(token string, svc *service.Service, cfg ConfigStore, adminID int64, logger *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting to telegram: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		api:      api,
		svc:      svc,
		cfg:      cfg,
		adminID:  adminID,
		logger:   logger.With("subsystem", "telegram"),
		httpc:    &http.Client{Timeout: 30 * time.Second},
		convos:   make(map[int64]*conversation),
		limiters: make(map[int64]*rate.Limiter),
	}, nil
}

// Run blocks on the update loop until ctx is cancelled or the updates
// channel closes.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("bot starting", "username", b.api.Self.UserName)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			b.handleCallback(ctx, update.CallbackQuery)
		case update.Message != nil:
			b.handleMessage(ctx, update.Message)
		}
	}
	return ctx.Err()
}

func (b *Bot) limiter(chatID int64) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	lim, ok := b.limiters[chatID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Second), 5)
		b.limiters[chatID] = lim
	}
	return lim
}

func (b *Bot) reply(chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		b.logger.Warn("failed to send message", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) isAuthorized(userID int64) bool {
	val, err := b.cfg.GetConfig(authorizedUserKey)
	if err != nil {
		return false
	}
	return val == strconv.FormatInt(userID, 10)
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if !b.limiter(chatID).Allow() {
		b.reply(chatID, "Too many requests, slow down a little.")
		return
	}

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	// non-command messages only matter inside a conversation
	b.mu.Lock()
	convo := b.convos[chatID]
	b.mu.Unlock()
	if convo == nil {
		return
	}
	if err := b.advanceConversation(ctx, convo, msg); err != nil {
		b.logger.Warn("conversation step failed", "chat_id", chatID, "err", err)
		b.reply(chatID, "Failed: "+err.Error())
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID
	command := msg.Command()

	switch command {
	case "start":
		b.reply(chatID, fmt.Sprintf(welcomeTemplate, userID))
		return
	case "stop":
		b.endConversation(chatID)
		b.reply(chatID, "Operation cancelled")
		return
	case "set_authorized_user":
		b.handleSetAuthorizedUser(msg)
		return
	}

	if !b.isAuthorized(userID) {
		b.reply(chatID, fmt.Sprintf(welcomeTemplate, userID))
		return
	}

	var err error
	switch {
	case command == "bluesky_post":
		b.startConversation(chatID, &conversation{state: statePostText})
		b.reply(chatID, "Please, provide the text for the post")
	case command == "update_profile":
		b.startConversation(chatID, &conversation{state: stateProfileField})
		b.sendProfileKeyboard(chatID)
	case command == "addtolist":
		b.startConversation(chatID, &conversation{state: stateListHandle})
		b.reply(chatID, "Please provide the user handle of the Bluesky user you want to add to the list.")
	case command == "repost":
		err = b.runRepost(ctx, chatID, strings.TrimSpace(msg.CommandArguments()))
	case command == "list_posts":
		err = b.runList(ctx, chatID)
	case strings.HasPrefix(command, "reply_"):
		err = b.runReply(ctx, chatID, strings.TrimPrefix(command, "reply_"), strings.TrimSpace(msg.CommandArguments()))
	case strings.HasPrefix(command, "delete_"):
		err = b.runDelete(ctx, chatID, strings.TrimPrefix(command, "delete_"))
	default:
		b.reply(chatID, "Unknown command: /"+command)
	}
	if err != nil {
		b.logger.Warn("command failed", "command", command, "chat_id", chatID, "err", err)
		b.reply(chatID, "Failed: "+err.Error())
	}
}

func (b *Bot) handleSetAuthorizedUser(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.From.ID != b.adminID {
		b.reply(chatID, "These are not the droids you are looking for")
		return
	}
	arg := strings.TrimSpace(msg.CommandArguments())
	if arg == "" {
		b.reply(chatID, "Please, provide the user id")
		return
	}
	if _, err := strconv.ParseInt(arg, 10, 64); err != nil {
		b.reply(chatID, "That doesn't look like a user id")
		return
	}
	if err := b.cfg.SetConfig(authorizedUserKey, arg); err != nil {
		b.logger.Error("failed to store authorized user", "err", err)
		b.reply(chatID, "Failed to store the authorized user")
		return
	}
	b.reply(chatID, "Authorized user set to "+arg)
}

func (b *Bot) runRepost(ctx context.Context, chatID int64, url string) error {
	cmd, err := service.NewRepostCommand(url)
	if err != nil {
		return err
	}
	res, err := b.svc.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	b.reply(chatID, "Reposted! "+res.Post.Uri)
	return nil
}

func (b *Bot) runList(ctx context.Context, chatID int64) error {
	res, err := b.svc.Execute(ctx, service.NewListCommand(10))
	if err != nil {
		return err
	}
	if len(res.Posts) == 0 {
		b.reply(chatID, "No posts found")
		return nil
	}
	b.reply(chatID, formatPostList(res.Posts))
	return nil
}

func (b *Bot) runReply(ctx context.Context, chatID int64, rawID, text string) error {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid post id %q", rawID)
	}
	if text == "" {
		b.startConversation(chatID, &conversation{state: stateReplyText, replyTo: uint(id)})
		b.reply(chatID, "Please, provide the text for the reply")
		return nil
	}
	cmd, err := service.NewReplyCommand(uint(id), text)
	if err != nil {
		return err
	}
	res, err := b.svc.Execute(ctx, cmd)
	if err != nil {
		return err
	}
	b.reply(chatID, "Reply sent! "+res.Post.Uri)
	return nil
}

func (b *Bot) runDelete(ctx context.Context, chatID int64, rawID string) error {
	id, err := strconv.ParseUint(rawID, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid post id %q", rawID)
	}
	if _, err := b.svc.Execute(ctx, service.NewDeleteCommand(uint(id))); err != nil {
		return err
	}
	b.reply(chatID, "Post deleted")
	return nil
}

// formatPostList renders stored posts with their reply/delete shortcuts.
func formatPostList(posts []store.Post) string {
	entries := make([]string, 0, len(posts))
	for _, p := range posts {
		text := p.Text
		if text == "" && p.RepostOf != "" {
			text = "(repost of " + p.RepostOf + ")"
		}
		entries = append(entries, fmt.Sprintf("%s\n /reply_%d /delete_%d", text, p.ID, p.ID))
	}
	return strings.Join(entries, "\n-------------------\n")
}

// downloadPhoto fetches the largest size of a telegram photo.
func (b *Bot) downloadPhoto(photo []tgbotapi.PhotoSize) ([]byte, error) {
	if len(photo) == 0 {
		return nil, fmt.Errorf("message has no photo")
	}
	url, err := b.api.GetFileDirectURL(photo[len(photo)-1].FileID)
	if err != nil {
		return nil, fmt.Errorf("getting photo URL: %w", err)
	}
	resp, err := b.httpc.Get(url)
	if err != nil {
		return nil, fmt.Errorf("downloading photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading photo: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
