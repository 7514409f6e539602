package discord

import (
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/kayz/xenobot/internal/logger"
	"github.com/kayz/xenobot/internal/router"
)

const adminPermissions = discordgo.PermissionAdministrator | discordgo.PermissionManageServer

func slashCommands() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "actlike",
			Description: "Change the AI's acting style",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "style",
					Description: "The style the AI should act in",
					Required:    true,
				},
			},
		},
		{
			Name:        "forget",
			Description: "Forget your recent conversation with the AI",
		},
	}
}

func (p *Platform) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	p.mu.RLock()
	handler := p.commandHandler
	p.mu.RUnlock()
	if handler == nil {
		return
	}

	cmd := commandFromInteraction(i)
	if cmd.ScopeID != "" {
		cmd.ScopeOwnerID = p.guildOwner(s, cmd.ScopeID)
	}

	resp := handler(p.ctx, cmd)
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: resp.Text,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		logger.Warn("[Discord] Failed to respond to /%s: %v", cmd.Name, err)
	}
}

// commandFromInteraction extracts the command and the permission facts the
// interaction carries. Guild interactions report the member's permissions.
func commandFromInteraction(i *discordgo.InteractionCreate) router.Command {
	data := i.ApplicationCommandData()
	cmd := router.Command{
		Platform:  "discord",
		Name:      data.Name,
		ChannelID: i.ChannelID,
		ScopeID:   i.GuildID,
	}
	for _, opt := range data.Options {
		if opt.Name == "style" && opt.Type == discordgo.ApplicationCommandOptionString {
			cmd.Args = strings.TrimSpace(opt.StringValue())
		}
	}

	switch {
	case i.Member != nil && i.Member.User != nil:
		cmd.UserID = i.Member.User.ID
		cmd.Username = i.Member.User.Username
		cmd.Admin = i.Member.Permissions&adminPermissions != 0
	case i.User != nil:
		cmd.UserID = i.User.ID
		cmd.Username = i.User.Username
	}
	return cmd
}

func (p *Platform) guildOwner(s *discordgo.Session, guildID string) string {
	if g, err := s.State.Guild(guildID); err == nil && g.OwnerID != "" {
		return g.OwnerID
	}
	g, err := s.Guild(guildID)
	if err != nil {
		logger.Warn("[Discord] Failed to look up guild %s: %v", guildID, err)
		return ""
	}
	return g.OwnerID
}
