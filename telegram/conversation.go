package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/maurelioredfox/bsky-bot/service"
)

type convoState int

const (
	statePostText convoState = iota
	statePostImages
	statePostTarget
	stateReplyText
	stateProfileField
	stateProfileText
	stateProfileImage
	stateListHandle
)

// conversation is the per-chat multi-step state for /bluesky_post,
// /update_profile, /reply_N without text, and /addtolist.
type conversation struct {
	state convoState

	post         service.PostInput
	replyTo      uint
	profileField string
}

func (b *Bot) startConversation(chatID int64, c *conversation) {
	b.mu.Lock()
	b.convos[chatID] = c
	b.mu.Unlock()
}

func (b *Bot) endConversation(chatID int64) {
	b.mu.Lock()
	delete(b.convos, chatID)
	b.mu.Unlock()
}

func (b *Bot) advanceConversation(ctx context.Context, c *conversation, msg *tgbotapi.Message) error {
	chatID := msg.Chat.ID

	switch c.state {
	case statePostText:
		c.post.Text = msg.Text
		c.state = statePostImages
		b.reply(chatID, "Send up to 4 photos one by one, then type done. Or type noimage to post without images.")
		return nil

	case statePostImages:
		if len(msg.Photo) > 0 {
			if len(c.post.Images) >= 4 {
				b.reply(chatID, "That's already 4 photos, type done to continue.")
				return nil
			}
			data, err := b.downloadPhoto(msg.Photo)
			if err != nil {
				return err
			}
			c.post.Images = append(c.post.Images, service.Image{Data: data, Alt: msg.Caption})
			b.reply(chatID, fmt.Sprintf("Got it (%d so far). Send another or type done.", len(c.post.Images)))
			return nil
		}
		switch strings.ToLower(strings.TrimSpace(msg.Text)) {
		case "done", "noimage":
			c.state = statePostTarget
			b.reply(chatID, "Now you can:\n- paste a Bluesky post URL to quote it\n- paste any other URL to attach a link\n- write reply <post URL> to reply to it\n- type skip to just post")
		default:
			b.reply(chatID, "Send a photo, or type done / noimage.")
		}
		return nil

	case statePostTarget:
		input := strings.TrimSpace(msg.Text)
		switch {
		case strings.EqualFold(input, "skip"):
			// nothing to attach
		case strings.HasPrefix(strings.ToLower(input), "reply "):
			c.post.ReplyTo = strings.TrimSpace(input[len("reply "):])
		default:
			c.post.QuoteOrLink = input
		}
		b.endConversation(chatID)
		cmd, err := service.NewPostCommand(c.post)
		if err != nil {
			return err
		}
		res, err := b.svc.Execute(ctx, cmd)
		if err != nil {
			return err
		}
		b.reply(chatID, "Post sent! "+res.Post.Uri)
		return nil

	case stateReplyText:
		b.endConversation(chatID)
		cmd, err := service.NewReplyCommand(c.replyTo, msg.Text)
		if err != nil {
			return err
		}
		res, err := b.svc.Execute(ctx, cmd)
		if err != nil {
			return err
		}
		b.reply(chatID, "Reply sent! "+res.Post.Uri)
		return nil

	case stateProfileText:
		b.endConversation(chatID)
		update := service.ProfileUpdate{}
		text := msg.Text
		switch c.profileField {
		case "name":
			update.DisplayName = &text
		case "description":
			update.Description = &text
		}
		cmd, err := service.NewProfileUpdateCommand(update)
		if err != nil {
			return err
		}
		if _, err := b.svc.Execute(ctx, cmd); err != nil {
			return err
		}
		b.reply(chatID, "Update sent")
		return nil

	case stateProfileImage:
		if len(msg.Photo) == 0 {
			b.reply(chatID, "Please, provide the new image")
			return nil
		}
		b.endConversation(chatID)
		data, err := b.downloadPhoto(msg.Photo)
		if err != nil {
			return err
		}
		update := service.ProfileUpdate{}
		switch c.profileField {
		case "image":
			update.Avatar = data
		case "banner":
			update.Banner = data
		}
		cmd, err := service.NewProfileUpdateCommand(update)
		if err != nil {
			return err
		}
		if _, err := b.svc.Execute(ctx, cmd); err != nil {
			return err
		}
		b.reply(chatID, "Update sent")
		return nil

	case stateListHandle:
		b.endConversation(chatID)
		handle := strings.TrimPrefix(strings.TrimSpace(msg.Text), "@")
		cmd, err := service.NewAddToListCommand(handle)
		if err != nil {
			return err
		}
		if _, err := b.svc.Execute(ctx, cmd); err != nil {
			return err
		}
		b.reply(chatID, fmt.Sprintf("User @%s has been added to the list.", handle))
		return nil

	default:
		b.endConversation(chatID)
		return nil
	}
}

func (b *Bot) sendProfileKeyboard(chatID int64) {
	msg := tgbotapi.NewMessage(chatID, "What do you want to update?")
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Name", "profile:name"),
			tgbotapi.NewInlineKeyboardButtonData("Description", "profile:description"),
			tgbotapi.NewInlineKeyboardButtonData("Image", "profile:image"),
			tgbotapi.NewInlineKeyboardButtonData("Banner", "profile:banner"),
		),
	)
	if _, err := b.api.Send(msg); err != nil {
		b.logger.Warn("failed to send keyboard", "chat_id", chatID, "err", err)
	}
}

func (b *Bot) handleCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil {
		return
	}
	chatID := query.Message.Chat.ID

	// acknowledge so the client stops the spinner
	if _, err := b.api.Request(tgbotapi.NewCallback(query.ID, "")); err != nil {
		b.logger.Warn("failed to ack callback", "err", err)
	}

	parts := strings.Split(query.Data, ":")
	if len(parts) != 2 || parts[0] != "profile" {
		return
	}
	if !b.isAuthorized(query.From.ID) {
		b.reply(chatID, fmt.Sprintf(welcomeTemplate, query.From.ID))
		return
	}

	b.mu.Lock()
	convo := b.convos[chatID]
	b.mu.Unlock()
	if convo == nil || convo.state != stateProfileField {
		return
	}

	convo.profileField = parts[1]
	var prompt string
	switch parts[1] {
	case "name", "description":
		convo.state = stateProfileText
		prompt = "Please, provide the new text"
	case "image", "banner":
		convo.state = stateProfileImage
		prompt = "Please, provide the new image"
	default:
		return
	}
	edit := tgbotapi.NewEditMessageText(chatID, query.Message.MessageID, prompt)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warn("failed to edit message", "chat_id", chatID, "err", err)
	}
}
