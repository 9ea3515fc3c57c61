package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"steward/internal/format"
	"steward/internal/metrics"
	"steward/internal/settings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()
	userID := interactionUserID(interaction)

	if !b.limiter.Allow(interaction.GuildID + ":" + userID) {
		metrics.CommandsTotal.WithLabelValues(data.Name, metrics.OutcomeLimited).Inc()
		b.respondEmbed(session, interaction, b.errorEmbed("Slow down", "You are using commands too quickly. Try again in a few seconds."), true)
		return
	}

	var err error
	switch data.Name {
	case cmdPing:
		err = b.handlePing(session, interaction)
	case cmdHelp:
		b.handleHelp(ctx, session, interaction)
	case cmdServerInfo, cmdUserInfo, cmdSetWelcome, cmdSetRules, cmdWelcome, cmdGoodbye,
		cmdWelcomeMessage, cmdGoodbyeMessage, cmdEmbedColor, cmdSettings:
		err = b.handleGuildCommand(ctx, session, interaction, data)
	default:
		err = fmt.Errorf("unknown command %q", data.Name)
		b.respondEmbed(session, interaction, b.errorEmbed("Unknown command", "This command is not supported."), true)
	}

	metrics.CommandsTotal.WithLabelValues(data.Name, metrics.Outcome(err)).Inc()
	if err != nil {
		b.logger.Warn("command failed",
			zap.String("command", data.Name),
			zap.String("guild_id", interaction.GuildID),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// handlePing defers the reply to time an API round trip, then posts both
// latencies publicly as a follow-up.
func (b *Bot) handlePing(api interactionAPI, interaction *discordgo.InteractionCreate) error {
	start := time.Now()
	err := api.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		return fmt.Errorf("defer ping: %w", err)
	}
	embed := pingEmbed(time.Since(start), api.HeartbeatLatency(), b.cfg.Notifications.EmbedColors.Action)
	if _, err := api.FollowupMessageCreate(interaction.Interaction, true, &discordgo.WebhookParams{
		Embeds: []*discordgo.MessageEmbed{embed},
	}); err != nil {
		return fmt.Errorf("ping follow-up: %w", err)
	}
	return nil
}

func (b *Bot) handleHelp(ctx context.Context, api interactionAPI, interaction *discordgo.InteractionCreate) {
	color := b.cfg.Notifications.EmbedColors.Action
	if interaction.GuildID != "" {
		color = b.guildSettings(ctx, interaction.GuildID).EmbedColor
	}
	b.respondEmbed(api, interaction, helpEmbed(color), false)
}

func (b *Bot) handleGuildCommand(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	if interaction.GuildID == "" {
		b.respondEmbed(session, interaction, b.errorEmbed("Server only", "This command can only be used inside a server."), true)
		return nil
	}

	switch data.Name {
	case cmdServerInfo:
		return b.handleServerInfo(ctx, session, interaction)
	case cmdUserInfo:
		return b.handleUserInfo(ctx, session, interaction, data)
	case cmdSettings:
		if !canManage(interaction) {
			return b.denyManage(session, interaction)
		}
		record := b.guildSettings(ctx, interaction.GuildID)
		b.respondEmbed(session, interaction, settingsEmbed(record), true)
		return nil
	}

	if !canManage(interaction) {
		return b.denyManage(session, interaction)
	}
	key, value, err := settingFromCommand(session, data)
	if err != nil {
		b.respondEmbed(session, interaction, b.errorEmbed("Settings", err.Error()), true)
		return err
	}
	return b.applySetting(ctx, session, interaction, key, value)
}

// settingFromCommand maps a setter command and its option to a settings key
// and value.
func settingFromCommand(session *discordgo.Session, data discordgo.ApplicationCommandInteractionData) (string, any, error) {
	if len(data.Options) == 0 {
		return "", nil, errors.New("missing option")
	}
	option := data.Options[0]

	switch data.Name {
	case cmdSetWelcome, cmdSetRules:
		channel := option.ChannelValue(session)
		if channel == nil || channel.Name == "" {
			return "", nil, errors.New("could not resolve that channel")
		}
		if data.Name == cmdSetWelcome {
			return settings.KeyWelcomeChannel, channel.Name, nil
		}
		return settings.KeyRulesChannel, channel.Name, nil
	case cmdWelcome:
		return settings.KeyWelcomeEnabled, option.StringValue(), nil
	case cmdGoodbye:
		return settings.KeyGoodbyeEnabled, option.StringValue(), nil
	case cmdWelcomeMessage:
		return settings.KeyWelcomeMessage, option.StringValue(), nil
	case cmdGoodbyeMessage:
		return settings.KeyGoodbyeMessage, option.StringValue(), nil
	case cmdEmbedColor:
		return settings.KeyEmbedColor, option.StringValue(), nil
	}
	return "", nil, fmt.Errorf("unknown setting command %q", data.Name)
}

func (b *Bot) applySetting(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, key string, value any) error {
	if err := b.store.Update(ctx, interaction.GuildID, key, value); err != nil {
		var invalid *settings.InvalidValueError
		if errors.As(err, &invalid) {
			b.respondEmbed(session, interaction, b.errorEmbed("Settings", fmt.Sprintf("Invalid value for `%s`: %s.", key, invalid.Reason)), true)
			return nil
		}
		b.respondEmbed(session, interaction, b.errorEmbed("Settings", "Could not save the setting. Please try again later."), true)
		return err
	}

	record := b.guildSettings(ctx, interaction.GuildID)
	stored, _ := record.Value(key)
	fields := []*discordgo.MessageEmbedField{{Name: key, Value: displayValue(key, stored), Inline: false}}

	if key == settings.KeyWelcomeMessage || key == settings.KeyGoodbyeMessage {
		name, count := guildSummary(session.State, interaction.GuildID)
		preview := format.Format(fmt.Sprint(stored), format.Context{
			Mention:     "<@" + interactionUserID(interaction) + ">",
			Username:    memberName(interaction.Member, interactionUser(interaction)),
			ServerName:  name,
			MemberCount: count,
		})
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Preview", Value: truncate(preview, 1024)})
	}

	b.logger.Info("guild setting changed",
		zap.String("guild_id", interaction.GuildID),
		zap.String("user_id", interactionUserID(interaction)),
		zap.String("key", key))
	b.respondEmbed(session, interaction, b.commandEmbed("Settings updated", "", record.EmbedColor, fields), true)
	return nil
}

func (b *Bot) handleServerInfo(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	guild, err := session.State.Guild(interaction.GuildID)
	if err != nil {
		guild, err = session.Guild(interaction.GuildID)
		if err != nil {
			b.respondEmbed(session, interaction, b.errorEmbed("Server info", "Could not load this server."), true)
			return err
		}
	}
	record := b.guildSettings(ctx, interaction.GuildID)
	b.respondEmbed(session, interaction, serverInfoEmbed(guild, record.EmbedColor), false)
	return nil
}

func (b *Bot) handleUserInfo(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, data discordgo.ApplicationCommandInteractionData) error {
	user := interactionUser(interaction)
	member := interaction.Member
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionUser {
		user = data.Options[0].UserValue(session)
		member = nil
		if user != nil && data.Resolved != nil {
			member = data.Resolved.Members[user.ID]
		}
	}
	if user == nil {
		b.respondEmbed(session, interaction, b.errorEmbed("User info", "Could not resolve that user."), true)
		return errors.New("user not resolved")
	}
	record := b.guildSettings(ctx, interaction.GuildID)
	b.respondEmbed(session, interaction, userInfoEmbed(user, member, record.EmbedColor), false)
	return nil
}

func (b *Bot) denyManage(session *discordgo.Session, interaction *discordgo.InteractionCreate) error {
	b.respondEmbed(session, interaction, b.errorEmbed("Missing permission", "You need the Manage Server permission to change bot settings."), true)
	return nil
}

func canManage(interaction *discordgo.InteractionCreate) bool {
	if interaction.Member == nil {
		return false
	}
	perms := interaction.Member.Permissions
	return perms&discordgo.PermissionAdministrator != 0 || perms&discordgo.PermissionManageServer != 0
}

func interactionUser(interaction *discordgo.InteractionCreate) *discordgo.User {
	if interaction.Member != nil && interaction.Member.User != nil {
		return interaction.Member.User
	}
	return interaction.User
}

func interactionUserID(interaction *discordgo.InteractionCreate) string {
	if user := interactionUser(interaction); user != nil {
		return user.ID
	}
	return ""
}

func truncate(value string, limit int) string {
	runes := []rune(value)
	if len(runes) <= limit {
		return value
	}
	return string(runes[:limit-1]) + "…"
}

func displayValue(key string, value any) string {
	switch v := value.(type) {
	case bool:
		if v {
			return "on"
		}
		return "off"
	case string:
		if v == "" {
			return "not set"
		}
		if key == settings.KeyWelcomeChannel || key == settings.KeyRulesChannel {
			return "#" + strings.TrimPrefix(v, "#")
		}
		return truncate(v, 1024)
	case int:
		if key == settings.KeyEmbedColor {
			return fmt.Sprintf("#%06X", v)
		}
		return fmt.Sprint(v)
	case nil:
		return "not set"
	}
	return truncate(fmt.Sprint(value), 1024)
}
