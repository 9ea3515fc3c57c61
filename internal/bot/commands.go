package bot

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	cmdPing           = "ping"
	cmdHelp           = "help"
	cmdServerInfo     = "serverinfo"
	cmdUserInfo       = "userinfo"
	cmdSetWelcome     = "setwelcome"
	cmdSetRules       = "setrules"
	cmdWelcome        = "welcome"
	cmdGoodbye        = "goodbye"
	cmdWelcomeMessage = "welcomemessage"
	cmdGoodbyeMessage = "goodbyemessage"
	cmdEmbedColor     = "embedcolor"
	cmdSettings       = "settings"
)

var textChannelTypes = []discordgo.ChannelType{discordgo.ChannelTypeGuildText, discordgo.ChannelTypeGuildNews}

func onOffOption(description string) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "value",
		Description: description,
		Required:    true,
		Choices: []*discordgo.ApplicationCommandOptionChoice{
			{Name: "on", Value: "on"},
			{Name: "off", Value: "off"},
		},
	}
}

// applicationCommands returns every slash command the bot serves. Setters are
// restricted to members with Manage Server by default.
func applicationCommands() []*discordgo.ApplicationCommand {
	manageServer := int64(discordgo.PermissionManageServer)
	dm := false

	return []*discordgo.ApplicationCommand{
		{
			Name:        cmdPing,
			Description: "Check that the bot is alive",
		},
		{
			Name:        cmdHelp,
			Description: "List commands and message placeholders",
		},
		{
			Name:         cmdServerInfo,
			Description:  "Show information about this server",
			DMPermission: &dm,
		},
		{
			Name:         cmdUserInfo,
			Description:  "Show information about a member",
			DMPermission: &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "member to inspect (defaults to you)",
					Required:    false,
				},
			},
		},
		{
			Name:                     cmdSetWelcome,
			Description:              "Set the channel for welcome and goodbye messages",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "text channel",
					ChannelTypes: textChannelTypes,
					Required:     true,
				},
			},
		},
		{
			Name:                     cmdSetRules,
			Description:              "Set the rules channel referenced in welcome messages",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         "channel",
					Description:  "text channel",
					ChannelTypes: textChannelTypes,
					Required:     true,
				},
			},
		},
		{
			Name:                     cmdWelcome,
			Description:              "Turn welcome messages on or off",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dm,
			Options:                  []*discordgo.ApplicationCommandOption{onOffOption("on or off")},
		},
		{
			Name:                     cmdGoodbye,
			Description:              "Turn goodbye messages on or off",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dm,
			Options:                  []*discordgo.ApplicationCommandOption{onOffOption("on or off")},
		},
		{
			Name:                     cmdWelcomeMessage,
			Description:              "Set the welcome message template",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "template, see /help for placeholders",
					Required:    true,
					MaxLength:   1500,
				},
			},
		},
		{
			Name:                     cmdGoodbyeMessage,
			Description:              "Set the goodbye message template",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "text",
					Description: "template, see /help for placeholders",
					Required:    true,
					MaxLength:   1500,
				},
			},
		},
		{
			Name:                     cmdEmbedColor,
			Description:              "Set the embed color",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "hex",
					Description: "color such as #5865F2",
					Required:    true,
				},
			},
		},
		{
			Name:                     cmdSettings,
			Description:              "Show this server's bot settings",
			DefaultMemberPermissions: &manageServer,
			DMPermission:             &dm,
		},
	}
}

func (b *Bot) registerCommands() error {
	appID := b.session.State.User.ID
	registered, err := b.session.ApplicationCommandBulkOverwrite(appID, "", applicationCommands())
	if err != nil {
		return err
	}
	names := make([]string, 0, len(registered))
	for _, cmd := range registered {
		names = append(names, cmd.Name)
	}
	b.logger.Info("slash commands registered", zap.Strings("commands", names))
	return nil
}
