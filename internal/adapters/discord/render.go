package discord

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/okian/tierboard/internal/domain/intake"
	"github.com/okian/tierboard/internal/domain/leaderboard"
	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/internal/domain/ratings"
	"github.com/okian/tierboard/internal/domain/review"
)

const (
	colorPending  = 0xF1C40F
	colorApproved = 0x2ECC71
	colorRejected = 0xE74C3C
	colorExpired  = 0x95A5A6
	colorBoard    = 0x5865F2

	maxDescription = 4096
	// maxEmbedsTotal caps the characters of all embeds in one message.
	maxEmbedsTotal = 6000
)

func statusColor(s model.Status) int {
	switch s {
	case model.StatusApproved:
		return colorApproved
	case model.StatusRejected:
		return colorRejected
	case model.StatusExpired:
		return colorExpired
	default:
		return colorPending
	}
}

func statusLabel(s model.Status) string {
	switch s {
	case model.StatusApproved:
		return "✅ Approved"
	case model.StatusRejected:
		return "❌ Rejected"
	case model.StatusExpired:
		return "⌛ Expired"
	default:
		return "🕒 Pending"
	}
}

func mention(memberID string) string { return "<@" + memberID + ">" }

// reviewEmbed renders the moderator review surface for sub.
func reviewEmbed(sub model.Submission) *discordgo.MessageEmbed {
	fields := []*discordgo.MessageEmbedField{
		{Name: "Member", Value: mention(sub.MemberID), Inline: true},
		{Name: "Score", Value: fmt.Sprintf("%d", sub.Score), Inline: true},
		{Name: "Tier", Value: sub.Tier.String(), Inline: true},
		{Name: "Status", Value: statusLabel(sub.Status), Inline: true},
	}
	if sub.ReviewedBy != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reviewed by", Value: sub.ReviewedBy, Inline: true})
	}
	if sub.RejectReason != "" {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Reason", Value: sub.RejectReason})
	}
	desc := "Proof: " + sub.ProofURL
	if sub.MessageURL != "" {
		desc += "\nMessage: " + sub.MessageURL
	}
	return &discordgo.MessageEmbed{
		Title:       "Score claim from " + sub.DisplayName,
		Description: desc,
		Color:       statusColor(sub.Status),
		Fields:      fields,
		Image:       &discordgo.MessageEmbedImage{URL: sub.ProofURL},
		Footer:      &discordgo.MessageEmbedFooter{Text: "ID: " + sub.ID},
		Timestamp:   sub.CreatedAt.Format(time.RFC3339),
	}
}

// reviewComponents returns the action buttons; a resolved submission has none.
func reviewComponents(sub model.Submission) []discordgo.MessageComponent {
	if sub.Status != model.StatusPending {
		return []discordgo.MessageComponent{}
	}
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Approve", Style: discordgo.SuccessButton, CustomID: customID(actionApprove, sub.ID)},
				discordgo.Button{Label: "Edit score", Style: discordgo.SecondaryButton, CustomID: customID(actionEdit, sub.ID)},
				discordgo.Button{Label: "Reject", Style: discordgo.DangerButton, CustomID: customID(actionReject, sub.ID)},
			},
		},
	}
}

func editScoreModal(sub string, floor int) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID(modalEditScore, sub),
			Title:    "Edit score",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:    inputScore,
						Label:       "New score",
						Style:       discordgo.TextInputShort,
						Placeholder: fmt.Sprintf("at least %d", floor),
						Required:    true,
						MaxLength:   6,
					},
				}},
			},
		},
	}
}

func rejectModal(sub string, maxLen int) *discordgo.InteractionResponse {
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseModal,
		Data: &discordgo.InteractionResponseData{
			CustomID: customID(modalRejectReason, sub),
			Title:    "Reject submission",
			Components: []discordgo.MessageComponent{
				discordgo.ActionsRow{Components: []discordgo.MessageComponent{
					discordgo.TextInput{
						CustomID:  inputReason,
						Label:     "Reason",
						Style:     discordgo.TextInputParagraph,
						Required:  true,
						MaxLength: maxLen,
					},
				}},
			},
		},
	}
}

// cardEmbed renders a member's rating card.
func cardEmbed(r model.Rating, reviewer string, settings model.Settings) *discordgo.MessageEmbed {
	e := &discordgo.MessageEmbed{
		Title:       r.DisplayName,
		Description: fmt.Sprintf("%s\nScore **%d** · Tier **%s**", mention(r.MemberID), r.Score, settings.Label(r.Tier)),
		Color:       colorApproved,
		Image:       &discordgo.MessageEmbedImage{URL: r.ProofURL},
		Timestamp:   r.UpdatedAt.Format(time.RFC3339),
	}
	if r.AvatarURL != "" {
		e.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: r.AvatarURL}
	}
	if reviewer != "" {
		e.Footer = &discordgo.MessageEmbedFooter{Text: "Approved by " + reviewer}
	}
	return e
}

// leaderboardEmbeds renders one embed per tier, highest first. Every
// tier keeps its title and room for an overflow line; the remaining
// character budget of the message is spent on entry lines from the top
// tier down, and a tier that runs out ends with "… and N more".
func leaderboardEmbeds(board leaderboard.Board) []*discordgo.MessageEmbed {
	titles := make([]string, len(board.Groups))
	budget := maxEmbedsTotal
	for i, g := range board.Groups {
		titles[i] = fmt.Sprintf("Tier %s", g.Label)
		budget -= utf8.RuneCountInString(titles[i])
		if g.Empty {
			budget -= utf8.RuneCountInString(leaderboard.EmptyMarker)
		} else {
			budget -= utf8.RuneCountInString(overflowLine(g.Total))
		}
	}

	out := make([]*discordgo.MessageEmbed, 0, len(board.Groups))
	for i, g := range board.Groups {
		var sb strings.Builder
		if g.Empty {
			sb.WriteString(leaderboard.EmptyMarker)
		}
		shown, used := 0, 0
		for _, e := range g.Entries {
			line := fmt.Sprintf("%d. %s — %d\n", e.Rank, mention(e.MemberID), e.Score)
			n := utf8.RuneCountInString(line)
			if n > budget || used+n > maxDescription-utf8.RuneCountInString(overflowLine(g.Total)) {
				break
			}
			sb.WriteString(line)
			budget -= n
			used += n
			shown++
		}
		if hidden := g.Total - shown; !g.Empty && hidden > 0 {
			sb.WriteString(overflowLine(hidden))
		}
		out = append(out, &discordgo.MessageEmbed{
			Title:       titles[i],
			Description: strings.TrimRight(sb.String(), "\n"),
			Color:       colorBoard,
		})
	}
	return out
}

func overflowLine(hidden int) string {
	return fmt.Sprintf("… and %d more", hidden)
}

// memberNotice is the direct message sent when a claim is resolved.
func memberNotice(sub model.Submission) string {
	switch sub.Status {
	case model.StatusApproved:
		return fmt.Sprintf("✅ Your score %d was approved (tier %s).", sub.Score, sub.Tier)
	case model.StatusRejected:
		return fmt.Sprintf("❌ Your score %d was rejected: %s", sub.Score, sub.RejectReason)
	case model.StatusExpired:
		return fmt.Sprintf("⌛ Your score %d expired before review. You can submit it again.", sub.Score)
	default:
		return ""
	}
}

// intakeReply is the short-lived answer to a submit-channel message.
func intakeReply(sub model.Submission, err error) string {
	var rej *intake.Rejection
	switch {
	case err == nil:
		return fmt.Sprintf("📨 Score %d (tier %s) received, waiting for review.", sub.Score, sub.Tier)
	case errors.As(err, &rej) && rej.Reason == intake.ReasonCooldown:
		return fmt.Sprintf("⏳ cooldown: %ds left", int(rej.Remaining.Seconds()))
	case errors.As(err, &rej):
		return "❌ " + string(rej.Reason)
	default:
		return "⚠️ could not process the submission, try again later"
	}
}

// reviewReply is the ephemeral answer to a moderator action.
func reviewReply(res review.Result, err error) string {
	var resolved *review.ResolvedError
	switch {
	case errors.As(err, &resolved):
		return fmt.Sprintf("Already %s.", resolved.Status)
	case errors.Is(err, model.ErrExpired):
		return "⌛ Submission expired."
	case err != nil:
		return errorReply(err)
	}
	switch res.Outcome {
	case review.OutcomeApproved:
		return fmt.Sprintf("✅ Approved %s at %d.", mention(res.Submission.MemberID), res.Submission.Score)
	case review.OutcomeBelowFloor:
		return "❌ Rejected: " + review.BelowFloorReason + "."
	case review.OutcomeRejected:
		return "❌ Rejected."
	case review.OutcomeEdited:
		return fmt.Sprintf("✏️ Score set to %d (tier %s).", res.Submission.Score, res.Submission.Tier)
	default:
		return string(res.Outcome)
	}
}

func errorReply(err error) string {
	switch model.KindOf(err) {
	case model.ErrForbidden:
		return "🚫 Moderators only."
	case model.ErrNotFound:
		return "Not found."
	case model.ErrNotConfirmed:
		return fmt.Sprintf("Type %q to confirm.", ratings.ConfirmToken)
	case model.ErrInvalidInput:
		var me *model.Error
		if errors.As(err, &me) && me.Err != nil {
			return "⚠️ " + me.Err.Error()
		}
		return "⚠️ Invalid input."
	default:
		return "⚠️ Something went wrong."
	}
}

func pendingReply(items []model.Submission, total int) string {
	if total == 0 {
		return "No pending submissions."
	}
	var sb strings.Builder
	for _, s := range items {
		fmt.Fprintf(&sb, "`%s` %s %d (tier %s) <t:%d:R>\n", s.ID, mention(s.MemberID), s.Score, s.Tier, s.CreatedAt.Unix())
	}
	fmt.Fprintf(&sb, "Showing %d of %d.", len(items), total)
	return sb.String()
}
