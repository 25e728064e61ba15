// Package discord connects the service to a Discord guild: it reads score
// claims from the submit channel, serves the moderator review flow and the
// /elo command, and renders review surfaces, rating cards and the
// leaderboard index.
package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	service "github.com/okian/tierboard/internal/app"
	"github.com/okian/tierboard/internal/domain/leaderboard"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/internal/domain/ratings"
	"github.com/okian/tierboard/internal/domain/review"
	"github.com/okian/tierboard/pkg/logger"
)

const defaultReplyTTL = 8 * time.Second

// Config identifies the guild, channels and roles the bot works with.
type Config struct {
	Token             string
	GuildID           string
	SubmitChannelID   string
	ReviewChannelID   string
	TierlistChannelID string
	ModRoleID         string
	// LogChannelID receives audit lines; empty disables auditing.
	LogChannelID string
	// TierlistRoleID is granted to rated members; empty disables role sync.
	TierlistRoleID string
}

// Service is what the bot needs from the application layer.
type Service interface {
	Submit(ctx context.Context, messageID string, cand model.Candidate) (model.Submission, error)
	Review(ctx context.Context, actor model.Actor, req review.Request) (review.Result, error)
	BeginReview(ctx context.Context, actor model.Actor, id string) (model.Submission, error)
	Pending(ctx context.Context, actor model.Actor) (service.PendingView, error)
	RatingOf(ctx context.Context, memberID string) (model.Rating, error)
	Settings(ctx context.Context) (model.Settings, error)
	Remove(ctx context.Context, actor model.Actor, memberID string) (model.Rating, error)
	Wipe(ctx context.Context, actor model.Actor, mode ratings.WipeMode, confirm string) (int, error)
	SetLabels(ctx context.Context, actor model.Actor, labels [model.TierCount]string) (model.Settings, error)
	Rebuild(ctx context.Context, actor model.Actor) (int, error)
}

// session is the subset of *discordgo.Session the bot calls.
type session interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	ChannelMessagePin(channelID, messageID string, options ...discordgo.RequestOption) error
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error
}

// Bot is the Discord gateway adapter. It implements service.Platform.
type Bot struct {
	cfg       Config
	svc       Service
	sess      session
	dg        *discordgo.Session
	floor     int
	reasonMax int
	replyTTL  time.Duration
	logger    logger.Logger

	removeHandlers []func()
}

var _ service.Platform = (*Bot)(nil)

// Option applies a configuration option to the Bot.
type Option func(*Bot)

// WithLogger sets a custom logger for the bot.
func WithLogger(l logger.Logger) Option {
	return func(b *Bot) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithReplyTTL sets how long intake replies stay visible.
func WithReplyTTL(d time.Duration) Option {
	return func(b *Bot) {
		if d > 0 {
			b.replyTTL = d
		}
	}
}

// WithScoreFloor sets the minimum score shown in the edit prompt.
func WithScoreFloor(floor int) Option {
	return func(b *Bot) {
		if floor > 0 {
			b.floor = floor
		}
	}
}

// WithReasonMax sets the longest rejection reason the reject prompt accepts.
// Values above the platform's text input cap are clamped to it.
func WithReasonMax(n int) Option {
	return func(b *Bot) {
		if n > 0 {
			b.reasonMax = min(n, maxTextInputLength)
		}
	}
}

// New creates a bot session. Call Open to connect.
func New(cfg Config, svc Service, opts ...Option) (*Bot, error) {
	dg, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	b := newBot(cfg, svc, dg, opts...)
	b.dg = dg
	return b, nil
}

func newBot(cfg Config, svc Service, sess session, opts ...Option) *Bot {
	b := &Bot{
		cfg:       cfg,
		svc:       svc,
		sess:      sess,
		floor:     1,
		reasonMax: review.DefaultReasonMax,
		replyTTL:  defaultReplyTTL,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Get().Named("discord")
	}
	return b
}

// Open connects to the gateway and registers the /elo command.
func (b *Bot) Open(ctx context.Context) error {
	b.removeHandlers = append(b.removeHandlers,
		b.dg.AddHandler(b.onMessageCreate),
		b.dg.AddHandler(b.onInteractionCreate),
	)
	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	if _, err := b.dg.ApplicationCommandBulkOverwrite(b.dg.State.User.ID, b.cfg.GuildID, commands()); err != nil {
		return fmt.Errorf("register commands: %w", err)
	}
	b.logger.Info(ctx, "discord gateway connected",
		logger.String("user", b.dg.State.User.String()),
		logger.String("guild_id", b.cfg.GuildID))
	return nil
}

// Close disconnects from the gateway.
func (b *Bot) Close() error {
	for _, remove := range b.removeHandlers {
		remove()
	}
	b.removeHandlers = nil
	if b.dg == nil {
		return nil
	}
	if err := b.dg.Close(); err != nil {
		return fmt.Errorf("close discord gateway: %w", err)
	}
	return nil
}

// PublishReview posts the review surface into the review channel.
func (b *Bot) PublishReview(_ context.Context, sub model.Submission) (model.SurfaceRef, error) {
	msg, err := b.sess.ChannelMessageSendComplex(b.cfg.ReviewChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{reviewEmbed(sub)},
		Components: reviewComponents(sub),
	})
	if err != nil {
		return model.SurfaceRef{}, fmt.Errorf("send review: %w", err)
	}
	return model.SurfaceRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

// UpdateReview edits the review surface in place.
func (b *Bot) UpdateReview(_ context.Context, sub model.Submission) error {
	if sub.Review.IsZero() {
		return nil
	}
	edit := discordgo.NewMessageEdit(sub.Review.ChannelID, sub.Review.MessageID).
		SetEmbeds([]*discordgo.MessageEmbed{reviewEmbed(sub)})
	components := reviewComponents(sub)
	edit.Components = &components
	if _, err := b.sess.ChannelMessageEditComplex(edit); err != nil {
		return fmt.Errorf("edit review %s: %w", sub.ID, err)
	}
	return nil
}

// NotifyMember sends the submitter a direct message.
func (b *Bot) NotifyMember(_ context.Context, sub model.Submission) error {
	text := memberNotice(sub)
	if text == "" {
		return nil
	}
	ch, err := b.sess.UserChannelCreate(sub.MemberID)
	if err != nil {
		return fmt.Errorf("open dm %s: %w", sub.MemberID, err)
	}
	if _, err := b.sess.ChannelMessageSend(ch.ID, text); err != nil {
		return fmt.Errorf("send dm %s: %w", sub.MemberID, err)
	}
	return nil
}

// Audit posts line into the log channel when one is configured.
func (b *Bot) Audit(_ context.Context, line string) error {
	if b.cfg.LogChannelID == "" {
		return nil
	}
	if _, err := b.sess.ChannelMessageSend(b.cfg.LogChannelID, line); err != nil {
		return fmt.Errorf("send audit: %w", err)
	}
	return nil
}

// PublishCard edits the rating card in place, or posts a new one when it
// is missing or gone.
func (b *Bot) PublishCard(ctx context.Context, r model.Rating, reviewer string, settings model.Settings) (model.SurfaceRef, error) {
	embeds := []*discordgo.MessageEmbed{cardEmbed(r, reviewer, settings)}
	if !r.Card.IsZero() {
		edit := discordgo.NewMessageEdit(r.Card.ChannelID, r.Card.MessageID).SetEmbeds(embeds)
		_, err := b.sess.ChannelMessageEditComplex(edit)
		if err == nil {
			return r.Card, nil
		}
		b.logger.Debug(ctx, "card edit failed, reposting", logger.String("member_id", r.MemberID), logger.Error(err))
	}
	msg, err := b.sess.ChannelMessageSendComplex(b.cfg.TierlistChannelID, &discordgo.MessageSend{Embeds: embeds})
	if err != nil {
		return model.SurfaceRef{}, fmt.Errorf("send card %s: %w", r.MemberID, err)
	}
	return model.SurfaceRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

// DeleteCard removes a rendered rating card.
func (b *Bot) DeleteCard(_ context.Context, ref model.SurfaceRef) error {
	if ref.IsZero() {
		return nil
	}
	if err := b.sess.ChannelMessageDelete(ref.ChannelID, ref.MessageID); err != nil {
		return fmt.Errorf("delete card %s: %w", ref.MessageID, err)
	}
	return nil
}

// SetTierRole grants or releases the tier participant role.
func (b *Bot) SetTierRole(_ context.Context, memberID string, grant bool) error {
	if b.cfg.TierlistRoleID == "" {
		return nil
	}
	var err error
	if grant {
		err = b.sess.GuildMemberRoleAdd(b.cfg.GuildID, memberID, b.cfg.TierlistRoleID)
	} else {
		err = b.sess.GuildMemberRoleRemove(b.cfg.GuildID, memberID, b.cfg.TierlistRoleID)
	}
	if err != nil {
		return fmt.Errorf("set tier role %s grant=%t: %w", memberID, grant, err)
	}
	return nil
}

// PublishLeaderboard edits the pinned index message, recreating and
// re-pinning it when it is missing.
func (b *Bot) PublishLeaderboard(ctx context.Context, board leaderboard.Board, ref model.SurfaceRef) (model.SurfaceRef, error) {
	embeds := leaderboardEmbeds(board)
	if !ref.IsZero() {
		edit := discordgo.NewMessageEdit(ref.ChannelID, ref.MessageID).SetEmbeds(embeds)
		_, err := b.sess.ChannelMessageEditComplex(edit)
		if err == nil {
			return ref, nil
		}
		b.logger.Debug(ctx, "leaderboard edit failed, reposting", logger.Error(err))
	}
	msg, err := b.sess.ChannelMessageSendComplex(b.cfg.TierlistChannelID, &discordgo.MessageSend{Embeds: embeds})
	if err != nil {
		return model.SurfaceRef{}, fmt.Errorf("send leaderboard: %w", err)
	}
	if err := b.sess.ChannelMessagePin(msg.ChannelID, msg.ID); err != nil {
		b.logger.Warn(ctx, "pin leaderboard failed", logger.Error(err))
	}
	return model.SurfaceRef{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}
