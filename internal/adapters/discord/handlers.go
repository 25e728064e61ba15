package discord

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/discordgo"

	service "github.com/okian/tierboard/internal/app"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/internal/domain/ratings"
	"github.com/okian/tierboard/internal/domain/review"
	"github.com/okian/tierboard/pkg/logger"
)

const moderatorPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageGuild

func (b *Bot) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	b.handleMessage(context.Background(), m.Message)
}

func (b *Bot) onInteractionCreate(_ *discordgo.Session, i *discordgo.InteractionCreate) {
	b.handleInteraction(context.Background(), i.Interaction)
}

// handleMessage runs intake for a message posted in the submit channel.
func (b *Bot) handleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || m.Author.Bot || m.ChannelID != b.cfg.SubmitChannelID {
		return
	}

	sub, err := b.svc.Submit(ctx, m.ID, candidateFrom(m))
	if errors.Is(err, service.ErrRedelivered) {
		return
	}
	reply, rerr := b.sess.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
		Content:   intakeReply(sub, err),
		Reference: m.Reference(),
	})
	if rerr != nil {
		b.logger.Warn(ctx, "intake reply failed", logger.String("message_id", m.ID), logger.Error(rerr))
	} else {
		b.expire(reply)
	}
	if err == nil {
		return
	}
	if derr := b.sess.ChannelMessageDelete(m.ChannelID, m.ID); derr != nil {
		b.logger.Debug(ctx, "delete refused message failed", logger.String("message_id", m.ID), logger.Error(derr))
	}
}

// expire deletes msg after the reply TTL.
func (b *Bot) expire(msg *discordgo.Message) {
	if msg == nil {
		return
	}
	time.AfterFunc(b.replyTTL, func() {
		_ = b.sess.ChannelMessageDelete(msg.ChannelID, msg.ID)
	})
}

func candidateFrom(m *discordgo.Message) model.Candidate {
	c := model.Candidate{
		MemberID:    m.Author.ID,
		DisplayName: displayName(m.Author, m.Member),
		AvatarURL:   m.Author.AvatarURL("256"),
		Text:        m.Content,
		MessageID:   m.ID,
	}
	if m.GuildID != "" {
		c.MessageURL = fmt.Sprintf("https://discord.com/channels/%s/%s/%s", m.GuildID, m.ChannelID, m.ID)
	}
	if len(m.Attachments) > 0 {
		a := m.Attachments[0]
		c.Attachment = &model.Attachment{URL: a.URL, Filename: a.Filename, ContentType: a.ContentType}
	}
	return c
}

func displayName(u *discordgo.User, m *discordgo.Member) string {
	switch {
	case m != nil && m.Nick != "":
		return m.Nick
	case u.GlobalName != "":
		return u.GlobalName
	default:
		return u.Username
	}
}

// actorFrom derives the acting user and their moderator capability.
func (b *Bot) actorFrom(i *discordgo.Interaction) model.Actor {
	if i.Member == nil || i.Member.User == nil {
		if i.User != nil {
			return model.Actor{ID: i.User.ID, Tag: i.User.String()}
		}
		return model.Actor{}
	}
	mem := i.Member
	mod := mem.Permissions&moderatorPermissions != 0 ||
		(b.cfg.ModRoleID != "" && slices.Contains(mem.Roles, b.cfg.ModRoleID))
	return model.Actor{ID: mem.User.ID, Tag: mem.User.String(), Moderator: mod}
}

func (b *Bot) handleInteraction(ctx context.Context, i *discordgo.Interaction) {
	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		b.handleCommand(ctx, i)
	case discordgo.InteractionMessageComponent:
		b.handleComponent(ctx, i)
	case discordgo.InteractionModalSubmit:
		b.handleModal(ctx, i)
	}
}

func (b *Bot) respond(ctx context.Context, i *discordgo.Interaction, resp *discordgo.InteractionResponse) {
	if err := b.sess.InteractionRespond(i, resp); err != nil {
		b.logger.Warn(ctx, "interaction response failed", logger.String("interaction_id", i.ID), logger.Error(err))
	}
}

func (b *Bot) reply(ctx context.Context, i *discordgo.Interaction, content string, embeds ...*discordgo.MessageEmbed) {
	b.respond(ctx, i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Embeds:  embeds,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

func (b *Bot) handleComponent(ctx context.Context, i *discordgo.Interaction) {
	action, id, ok := parseCustomID(i.MessageComponentData().CustomID)
	if !ok {
		return
	}
	actor := b.actorFrom(i)
	switch action {
	case actionApprove:
		res, err := b.svc.Review(ctx, actor, review.Approve{ID: id})
		b.reply(ctx, i, reviewReply(res, err))
	case actionEdit, actionReject:
		// Resolved or stale submissions never get a modal.
		if _, err := b.svc.BeginReview(ctx, actor, id); err != nil {
			b.reply(ctx, i, reviewReply(review.Result{}, err))
			return
		}
		if action == actionEdit {
			b.respond(ctx, i, editScoreModal(id, b.floor))
			return
		}
		b.respond(ctx, i, rejectModal(id, b.reasonMax))
	}
}

func (b *Bot) handleModal(ctx context.Context, i *discordgo.Interaction) {
	data := i.ModalSubmitData()
	req, ok := modalRequest(data.CustomID, modalValues(data.Components))
	if !ok {
		return
	}
	res, err := b.svc.Review(ctx, b.actorFrom(i), req)
	b.reply(ctx, i, reviewReply(res, err))
}

// modalValues collects text input values by custom id.
func modalValues(rows []discordgo.MessageComponent) map[string]string {
	out := make(map[string]string)
	for _, row := range rows {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, c := range ar.Components {
			if in, ok := c.(*discordgo.TextInput); ok {
				out[in.CustomID] = in.Value
			}
		}
	}
	return out
}

func (b *Bot) handleCommand(ctx context.Context, i *discordgo.Interaction) {
	data := i.ApplicationCommandData()
	if data.Name != commandName || len(data.Options) == 0 {
		return
	}
	sub := data.Options[0]
	opts := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(sub.Options))
	for _, o := range sub.Options {
		opts[o.Name] = o
	}
	actor := b.actorFrom(i)

	switch sub.Name {
	case "me":
		b.replyRating(ctx, i, actor.ID)
	case "user":
		b.replyRating(ctx, i, userID(opts["member"]))
	case "pending":
		view, err := b.svc.Pending(ctx, actor)
		if err != nil {
			b.reply(ctx, i, errorReply(err))
			return
		}
		b.reply(ctx, i, pendingReply(view.Items, view.Total))
	case "rebuild":
		n, err := b.svc.Rebuild(ctx, actor)
		if err != nil {
			b.reply(ctx, i, errorReply(err))
			return
		}
		b.reply(ctx, i, fmt.Sprintf("🔁 Rebuilding %d cards and the index.", n))
	case "remove":
		memberID := userID(opts["member"])
		if _, err := b.svc.Remove(ctx, actor, memberID); err != nil {
			b.reply(ctx, i, errorReply(err))
			return
		}
		b.reply(ctx, i, fmt.Sprintf("🗑️ Removed %s.", mention(memberID)))
	case "wipe":
		b.wipe(ctx, i, actor, stringOpt(opts["mode"]), stringOpt(opts["confirm"]))
	case "labels":
		var labels [model.TierCount]string
		for t := range labels {
			labels[t] = stringOpt(opts[fmt.Sprintf("t%d", t+1)])
		}
		if _, err := b.svc.SetLabels(ctx, actor, labels); err != nil {
			b.reply(ctx, i, errorReply(err))
			return
		}
		b.reply(ctx, i, "🏷️ Tier labels updated.")
	}
}

func (b *Bot) wipe(ctx context.Context, i *discordgo.Interaction, actor model.Actor, rawMode, confirm string) {
	mode, err := ratings.ParseWipeMode(rawMode)
	if err != nil {
		b.reply(ctx, i, errorReply(err))
		return
	}
	n, err := b.svc.Wipe(ctx, actor, mode, confirm)
	if err != nil {
		b.reply(ctx, i, errorReply(err))
		return
	}
	b.reply(ctx, i, fmt.Sprintf("🧹 Wiped %d ratings (%s).", n, mode))
}

func (b *Bot) replyRating(ctx context.Context, i *discordgo.Interaction, memberID string) {
	r, err := b.svc.RatingOf(ctx, memberID)
	if errors.Is(err, model.ErrNotFound) {
		b.reply(ctx, i, fmt.Sprintf("%s has no rating yet.", mention(memberID)))
		return
	}
	if err != nil {
		b.reply(ctx, i, errorReply(err))
		return
	}
	settings, err := b.svc.Settings(ctx)
	if err != nil {
		settings = model.DefaultSettings()
	}
	b.reply(ctx, i, "", cardEmbed(r, "", settings))
}

func userID(o *discordgo.ApplicationCommandInteractionDataOption) string {
	if o == nil {
		return ""
	}
	// Option values for user options arrive as the snowflake string.
	if id, ok := o.Value.(string); ok {
		return id
	}
	return ""
}

func stringOpt(o *discordgo.ApplicationCommandInteractionDataOption) string {
	if o == nil {
		return ""
	}
	if s, ok := o.Value.(string); ok {
		return s
	}
	return ""
}
