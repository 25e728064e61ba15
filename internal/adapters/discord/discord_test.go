package discord

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"
	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/tierboard/internal/app"
	"github.com/okian/tierboard/internal/domain/intake"
	"github.com/okian/tierboard/internal/domain/leaderboard"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/internal/domain/ratings"
	"github.com/okian/tierboard/internal/domain/review"
	"github.com/okian/tierboard/pkg/logger"
)

func TestMain(m *testing.M) {
	_ = logger.Init()
	os.Exit(m.Run())
}

type fakeSession struct {
	mu        sync.Mutex
	sent      []*discordgo.MessageSend
	texts     []string
	edits     []*discordgo.MessageEdit
	deleted   []string
	pinned    []string
	roleAdds  []string
	responses []*discordgo.InteractionResponse
	editErr   error
	nextID    int
}

func (f *fakeSession) msg(channelID string) *discordgo.Message {
	f.nextID++
	return &discordgo.Message{ID: fmt.Sprintf("m%d", f.nextID), ChannelID: channelID}
}

func (f *fakeSession) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, channelID+":"+content)
	return f.msg(channelID), nil
}

func (f *fakeSession) ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return f.msg(channelID), nil
}

func (f *fakeSession) ChannelMessageEditComplex(m *discordgo.MessageEdit, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, m)
	if f.editErr != nil {
		return nil, f.editErr
	}
	return &discordgo.Message{ID: m.ID, ChannelID: m.Channel}, nil
}

func (f *fakeSession) ChannelMessageDelete(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, channelID+"/"+messageID)
	return nil
}

func (f *fakeSession) ChannelMessagePin(channelID, messageID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pinned = append(f.pinned, channelID+"/"+messageID)
	return nil
}

func (f *fakeSession) UserChannelCreate(recipientID string, _ ...discordgo.RequestOption) (*discordgo.Channel, error) {
	return &discordgo.Channel{ID: "dm-" + recipientID}, nil
}

func (f *fakeSession) GuildMemberRoleAdd(_, userID, _ string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleAdds = append(f.roleAdds, userID)
	return nil
}

func (f *fakeSession) GuildMemberRoleRemove(_, _, _ string, _ ...discordgo.RequestOption) error {
	return nil
}

func (f *fakeSession) InteractionRespond(_ *discordgo.Interaction, resp *discordgo.InteractionResponse, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, resp)
	return nil
}

type fakeService struct {
	submitErr error
	beginErr  error
	begun     []string
	reviews   []review.Request
	actors    []model.Actor
}

func (f *fakeService) Submit(_ context.Context, _ string, cand model.Candidate) (model.Submission, error) {
	if f.submitErr != nil {
		return model.Submission{}, f.submitErr
	}
	return model.Submission{ID: "s1", MemberID: cand.MemberID, Score: 73, Tier: 3}, nil
}

func (f *fakeService) Review(_ context.Context, actor model.Actor, req review.Request) (review.Result, error) {
	f.reviews = append(f.reviews, req)
	f.actors = append(f.actors, actor)
	if !actor.Moderator {
		return review.Result{}, model.NewKind("fake", model.ErrForbidden)
	}
	return review.Result{Outcome: review.OutcomeRejected, Submission: model.Submission{ID: req.SubmissionID()}}, nil
}

func (f *fakeService) BeginReview(_ context.Context, _ model.Actor, id string) (model.Submission, error) {
	f.begun = append(f.begun, id)
	return model.Submission{ID: id, Status: model.StatusPending}, f.beginErr
}

func (f *fakeService) Pending(context.Context, model.Actor) (service.PendingView, error) {
	return service.PendingView{}, nil
}

func (f *fakeService) RatingOf(context.Context, string) (model.Rating, error) {
	return model.Rating{}, model.NewKind("fake", model.ErrNotFound)
}

func (f *fakeService) Settings(context.Context) (model.Settings, error) {
	return model.DefaultSettings(), nil
}

func (f *fakeService) Remove(context.Context, model.Actor, string) (model.Rating, error) {
	return model.Rating{}, nil
}

func (f *fakeService) Wipe(context.Context, model.Actor, ratings.WipeMode, string) (int, error) {
	return 0, nil
}

func (f *fakeService) SetLabels(context.Context, model.Actor, [model.TierCount]string) (model.Settings, error) {
	return model.DefaultSettings(), nil
}

func (f *fakeService) Rebuild(context.Context, model.Actor) (int, error) { return 0, nil }

var testConfig = Config{
	GuildID:           "g",
	SubmitChannelID:   "submit",
	ReviewChannelID:   "review",
	TierlistChannelID: "tierlist",
	ModRoleID:         "mods",
}

func newTestBot() (*Bot, *fakeSession, *fakeService) {
	sess := &fakeSession{}
	svc := &fakeService{}
	return newBot(testConfig, svc, sess, WithReplyTTL(time.Hour)), sess, svc
}

func TestCustomID(t *testing.T) {
	Convey("Given encoded action identifiers", t, func() {
		Convey("Then well formed ids split into action and submission", func() {
			action, id, ok := parseCustomID(customID(actionApprove, "abc-123"))
			So(ok, ShouldBeTrue)
			So(action, ShouldEqual, "approve")
			So(id, ShouldEqual, "abc-123")
		})

		Convey("Then malformed ids are refused", func() {
			for _, raw := range []string{"", "approve", "approve:", ":abc"} {
				_, _, ok := parseCustomID(raw)
				So(ok, ShouldBeFalse)
			}
		})

		Convey("Then modals map to typed requests", func() {
			req, ok := modalRequest("edit_score:s1", map[string]string{inputScore: "95"})
			So(ok, ShouldBeTrue)
			So(req, ShouldResemble, review.EditScore{ID: "s1", Text: "95"})

			req, ok = modalRequest("reject_reason:s2", map[string]string{inputReason: "blurry"})
			So(ok, ShouldBeTrue)
			So(req, ShouldResemble, review.Reject{ID: "s2", Reason: "blurry"})

			_, ok = modalRequest("approve:s1", nil)
			So(ok, ShouldBeFalse)
		})
	})
}

func TestRender(t *testing.T) {
	Convey("Given a pending submission", t, func() {
		sub := model.Submission{ID: "s1", MemberID: "m1", Score: 73, Tier: 3, Status: model.StatusPending}

		Convey("Then it carries three action buttons", func() {
			rows := reviewComponents(sub)
			So(rows, ShouldHaveLength, 1)
			buttons := rows[0].(discordgo.ActionsRow).Components
			So(buttons, ShouldHaveLength, 3)
			So(buttons[0].(discordgo.Button).CustomID, ShouldEqual, "approve:s1")
			So(buttons[2].(discordgo.Button).CustomID, ShouldEqual, "reject:s1")
		})

		Convey("Then a resolved one carries none", func() {
			sub.Status = model.StatusExpired
			So(reviewComponents(sub), ShouldBeEmpty)
			So(reviewEmbed(sub).Color, ShouldEqual, colorExpired)
		})
	})

	Convey("Given an empty leaderboard", t, func() {
		embeds := leaderboardEmbeds(leaderboard.Render(nil, model.DefaultSettings()))

		Convey("Then every tier renders the empty marker", func() {
			So(embeds, ShouldHaveLength, model.TierCount)
			for _, e := range embeds {
				So(e.Description, ShouldEqual, leaderboard.EmptyMarker)
			}
			So(embeds[0].Title, ShouldEqual, "Tier 5")
		})
	})

	Convey("Given intake outcomes", t, func() {
		Convey("Then a cooldown reports the seconds left", func() {
			err := &intake.Rejection{Reason: intake.ReasonCooldown, Kind: model.ErrDuplicateState, Remaining: 90 * time.Second}
			So(intakeReply(model.Submission{}, err), ShouldEqual, "⏳ cooldown: 90s left")
		})

		Convey("Then other refusals report their reason", func() {
			err := &intake.Rejection{Reason: intake.ReasonDuplicateScore, Kind: model.ErrDuplicateState}
			So(intakeReply(model.Submission{}, err), ShouldEqual, "❌ duplicate score")
		})
	})

	Convey("Given review outcomes", t, func() {
		So(reviewReply(review.Result{}, &review.ResolvedError{Status: model.StatusApproved}), ShouldEqual, "Already approved.")
		So(reviewReply(review.Result{}, model.NewKind("x", model.ErrExpired)), ShouldContainSubstring, "expired")
		So(reviewReply(review.Result{}, model.NewKind("x", model.ErrForbidden)), ShouldContainSubstring, "Moderators only")
	})
}

func message(channelID string, bot bool) *discordgo.Message {
	return &discordgo.Message{
		ID:        "msg-1",
		ChannelID: channelID,
		GuildID:   "g",
		Content:   "73",
		Author:    &discordgo.User{ID: "m1", Username: "ann", Bot: bot},
		Attachments: []*discordgo.MessageAttachment{
			{URL: "https://cdn.example/a.png", Filename: "a.png", ContentType: "image/png"},
		},
	}
}

func TestHandleMessage(t *testing.T) {
	Convey("Given a bot watching the submit channel", t, func() {
		b, sess, svc := newTestBot()
		ctx := context.Background()

		Convey("When a bot or another channel posts", func() {
			b.handleMessage(ctx, message("submit", true))
			b.handleMessage(ctx, message("general", false))

			Convey("Then nothing happens", func() {
				So(sess.sent, ShouldBeEmpty)
				So(sess.deleted, ShouldBeEmpty)
			})
		})

		Convey("When a claim is accepted", func() {
			b.handleMessage(ctx, message("submit", false))

			Convey("Then the member gets a reply and the message stays", func() {
				So(sess.sent, ShouldHaveLength, 1)
				So(sess.sent[0].Content, ShouldContainSubstring, "received")
				So(sess.deleted, ShouldBeEmpty)
			})
		})

		Convey("When a claim is refused", func() {
			svc.submitErr = &intake.Rejection{Reason: intake.ReasonInvalid, Kind: model.ErrInvalidInput}
			b.handleMessage(ctx, message("submit", false))

			Convey("Then the reason is shown and the message deleted", func() {
				So(sess.sent[0].Content, ShouldEqual, "❌ need image + score")
				So(sess.deleted, ShouldResemble, []string{"submit/msg-1"})
			})
		})

		Convey("When the message was already handled", func() {
			svc.submitErr = service.ErrRedelivered
			b.handleMessage(ctx, message("submit", false))
			So(sess.sent, ShouldBeEmpty)
		})
	})
}

func interaction(typ discordgo.InteractionType, data discordgo.InteractionData, roles ...string) *discordgo.Interaction {
	return &discordgo.Interaction{
		ID:   "i1",
		Type: typ,
		Data: data,
		Member: &discordgo.Member{
			User:  &discordgo.User{ID: "mod-1", Username: "mod"},
			Roles: roles,
		},
	}
}

func TestHandleInteraction(t *testing.T) {
	Convey("Given a bot receiving review actions", t, func() {
		b, sess, svc := newTestBot()
		ctx := context.Background()

		Convey("When a non-moderator presses approve", func() {
			b.handleInteraction(ctx, interaction(discordgo.InteractionMessageComponent,
				discordgo.MessageComponentInteractionData{CustomID: "approve:s1"}))

			Convey("Then the service refuses it", func() {
				So(svc.actors[0].Moderator, ShouldBeFalse)
				So(sess.responses[0].Data.Content, ShouldContainSubstring, "Moderators only")
				So(sess.responses[0].Data.Flags, ShouldEqual, discordgo.MessageFlagsEphemeral)
			})
		})

		Convey("When a moderator presses approve", func() {
			b.handleInteraction(ctx, interaction(discordgo.InteractionMessageComponent,
				discordgo.MessageComponentInteractionData{CustomID: "approve:s1"}, "mods"))

			Convey("Then an Approve request reaches the service", func() {
				So(svc.reviews, ShouldResemble, []review.Request{review.Approve{ID: "s1"}})
				So(svc.actors[0].Moderator, ShouldBeTrue)
			})
		})

		Convey("When a moderator presses reject", func() {
			b.handleInteraction(ctx, interaction(discordgo.InteractionMessageComponent,
				discordgo.MessageComponentInteractionData{CustomID: "reject:s1"}, "mods"))

			Convey("Then the submission is checked and the reason modal opens", func() {
				So(svc.begun, ShouldResemble, []string{"s1"})
				So(sess.responses[0].Type, ShouldEqual, discordgo.InteractionResponseModal)
				So(sess.responses[0].Data.CustomID, ShouldEqual, "reject_reason:s1")
				So(reasonInput(sess.responses[0]).MaxLength, ShouldEqual, review.DefaultReasonMax)
			})
		})

		Convey("When reject is pressed on a resolved submission", func() {
			svc.beginErr = &review.ResolvedError{Status: model.StatusApproved}
			b.handleInteraction(ctx, interaction(discordgo.InteractionMessageComponent,
				discordgo.MessageComponentInteractionData{CustomID: "reject:s1"}, "mods"))

			Convey("Then no modal opens and the status is reported", func() {
				So(sess.responses, ShouldHaveLength, 1)
				So(sess.responses[0].Type, ShouldEqual, discordgo.InteractionResponseChannelMessageWithSource)
				So(sess.responses[0].Data.Content, ShouldEqual, "Already approved.")
			})
		})

		Convey("When edit is pressed on a stale submission", func() {
			svc.beginErr = model.NewKind("fake", model.ErrExpired)
			b.handleInteraction(ctx, interaction(discordgo.InteractionMessageComponent,
				discordgo.MessageComponentInteractionData{CustomID: "edit:s1"}, "mods"))

			Convey("Then the expiry is reported instead of a modal", func() {
				So(sess.responses[0].Type, ShouldEqual, discordgo.InteractionResponseChannelMessageWithSource)
				So(sess.responses[0].Data.Content, ShouldContainSubstring, "expired")
			})
		})

		Convey("When reject is pressed for an unknown submission", func() {
			svc.beginErr = model.NewKind("fake", model.ErrNotFound)
			b.handleInteraction(ctx, interaction(discordgo.InteractionMessageComponent,
				discordgo.MessageComponentInteractionData{CustomID: "reject:nope"}))

			Convey("Then not found is reported", func() {
				So(sess.responses[0].Data.Content, ShouldEqual, "Not found.")
			})
		})

		Convey("When the reject modal is submitted", func() {
			b.handleInteraction(ctx, interaction(discordgo.InteractionModalSubmit,
				discordgo.ModalSubmitInteractionData{
					CustomID: "reject_reason:s1",
					Components: []discordgo.MessageComponent{
						&discordgo.ActionsRow{Components: []discordgo.MessageComponent{
							&discordgo.TextInput{CustomID: inputReason, Value: "cropped"},
						}},
					},
				}, "mods"))

			Convey("Then a Reject request carries the reason", func() {
				So(svc.reviews, ShouldResemble, []review.Request{review.Reject{ID: "s1", Reason: "cropped"}})
			})
		})
	})
}

func TestPlatform(t *testing.T) {
	Convey("Given the bot as a platform", t, func() {
		b, sess, _ := newTestBot()
		ctx := context.Background()
		board := leaderboard.Render(nil, model.DefaultSettings())

		Convey("When no index message exists", func() {
			ref, err := b.PublishLeaderboard(ctx, board, model.SurfaceRef{})

			Convey("Then one is posted and pinned", func() {
				So(err, ShouldBeNil)
				So(ref.ChannelID, ShouldEqual, "tierlist")
				So(sess.pinned, ShouldHaveLength, 1)
			})
		})

		Convey("When the index message is gone", func() {
			sess.editErr = errors.New("unknown message")
			old := model.SurfaceRef{ChannelID: "tierlist", MessageID: "old"}
			ref, err := b.PublishLeaderboard(ctx, board, old)

			Convey("Then it is recreated", func() {
				So(err, ShouldBeNil)
				So(ref, ShouldNotResemble, old)
				So(sess.sent, ShouldHaveLength, 1)
			})
		})

		Convey("When the index message exists", func() {
			old := model.SurfaceRef{ChannelID: "tierlist", MessageID: "old"}
			ref, err := b.PublishLeaderboard(ctx, board, old)

			Convey("Then it is edited in place", func() {
				So(err, ShouldBeNil)
				So(ref, ShouldResemble, old)
				So(sess.sent, ShouldBeEmpty)
			})
		})

		Convey("When no tier role is configured", func() {
			So(b.SetTierRole(ctx, "m1", true), ShouldBeNil)
			So(sess.roleAdds, ShouldBeEmpty)
		})

		Convey("When no log channel is configured", func() {
			So(b.Audit(ctx, "line"), ShouldBeNil)
			So(sess.texts, ShouldBeEmpty)
		})

		Convey("When a member is notified of a rejection", func() {
			err := b.NotifyMember(ctx, model.Submission{MemberID: "m1", Score: 40, Status: model.StatusRejected, RejectReason: "blurry"})

			Convey("Then a DM carries the reason", func() {
				So(err, ShouldBeNil)
				So(strings.HasPrefix(sess.texts[0], "dm-m1:"), ShouldBeTrue)
				So(sess.texts[0], ShouldContainSubstring, "blurry")
			})
		})
	})
}

func reasonInput(resp *discordgo.InteractionResponse) discordgo.TextInput {
	row := resp.Data.Components[0].(discordgo.ActionsRow)
	return row.Components[0].(discordgo.TextInput)
}

func TestReasonMax(t *testing.T) {
	Convey("Given a configured rejection reason limit", t, func() {
		Convey("Then the reject modal accepts that many characters", func() {
			b := newBot(testConfig, &fakeService{}, &fakeSession{}, WithReasonMax(1500))
			So(reasonInput(rejectModal("s1", b.reasonMax)).MaxLength, ShouldEqual, 1500)
		})

		Convey("Then limits above the platform cap are clamped", func() {
			b := newBot(testConfig, &fakeService{}, &fakeSession{}, WithReasonMax(10_000))
			So(b.reasonMax, ShouldEqual, maxTextInputLength)
		})
	})
}

func TestLeaderboardBudget(t *testing.T) {
	Convey("Given five full tiers of fifty members", t, func() {
		var rated []model.Rating
		for tier := 1; tier <= model.TierCount; tier++ {
			for i := 0; i < leaderboard.MaxEntries+5; i++ {
				rated = append(rated, model.Rating{
					MemberID: fmt.Sprintf("1234567890123%d%04d", tier, i),
					Score:    100 + i,
					Tier:     model.Tier(tier),
				})
			}
		}
		embeds := leaderboardEmbeds(leaderboard.Render(rated, model.DefaultSettings()))

		Convey("Then the message fits the platform's embed limits", func() {
			So(embeds, ShouldHaveLength, model.TierCount)
			total := 0
			for _, e := range embeds {
				So(utf8.RuneCountInString(e.Description), ShouldBeLessThanOrEqualTo, maxDescription)
				total += utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.Description)
			}
			So(total, ShouldBeLessThanOrEqualTo, maxEmbedsTotal)
		})

		Convey("Then higher tiers keep their entries and lower ones say how many are hidden", func() {
			So(embeds[0].Description, ShouldStartWith, "1. <@")
			So(embeds[model.TierCount-1].Description, ShouldContainSubstring, "more")
			So(embeds[0].Description, ShouldEndWith, "… and 5 more")
		})
	})
}
