package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/okian/tierboard/internal/domain/model"
	"github.com/okian/tierboard/internal/domain/ratings"
)

const commandName = "elo"

func userOption(name, desc string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        name,
		Description: desc,
		Required:    true,
	}
}

func commands() []*discordgo.ApplicationCommand {
	labels := make([]*discordgo.ApplicationCommandOption, 0, model.TierCount)
	for t := 1; t <= model.TierCount; t++ {
		labels = append(labels, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        fmt.Sprintf("t%d", t),
			Description: fmt.Sprintf("Label for tier %d", t),
			Required:    true,
		})
	}

	return []*discordgo.ApplicationCommand{{
		Name:        commandName,
		Description: "Score tier list",
		Options: []*discordgo.ApplicationCommandOption{
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "me", Description: "Show your rating"},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "user",
				Description: "Show a member's rating",
				Options:     []*discordgo.ApplicationCommandOption{userOption("member", "Member to look up")},
			},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "pending", Description: "List pending submissions"},
			{Type: discordgo.ApplicationCommandOptionSubCommand, Name: "rebuild", Description: "Re-render every card and the index"},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "remove",
				Description: "Remove a member's rating",
				Options:     []*discordgo.ApplicationCommandOption{userOption("member", "Member to remove")},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "wipe",
				Description: "Delete every rating",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "mode",
						Description: "soft keeps cards, hard deletes them",
						Required:    true,
						Choices: []*discordgo.ApplicationCommandOptionChoice{
							{Name: "soft", Value: string(ratings.WipeSoft)},
							{Name: "hard", Value: string(ratings.WipeHard)},
						},
					},
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "confirm",
						Description: fmt.Sprintf("Type %s", ratings.ConfirmToken),
						Required:    true,
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        "labels",
				Description: "Set the five tier labels",
				Options:     labels,
			},
		},
	}}
}
