package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"steward/internal/format"
	"steward/internal/metrics"
	"steward/internal/settings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const (
	kindWelcome = "welcome"
	kindGoodbye = "goodbye"

	goodbyeColor = 0xFF6B6B
)

func (b *Bot) onGuildMemberAdd(session *discordgo.Session, event *discordgo.GuildMemberAdd) {
	if event.Member == nil || event.User == nil || event.GuildID == "" {
		return
	}
	ctx := context.Background()
	name, count := guildSummary(session.State, event.GuildID)
	mctx := format.Context{
		Mention:     event.User.Mention(),
		Username:    memberName(event.Member, event.User),
		ServerName:  name,
		MemberCount: count,
	}
	if err := b.announce(ctx, session, event.GuildID, kindWelcome, mctx, event.User.AvatarURL("")); err != nil {
		b.logger.Warn("welcome message failed", zap.String("guild_id", event.GuildID), zap.String("user_id", event.User.ID), zap.Error(err))
	}
}

func (b *Bot) onGuildMemberRemove(session *discordgo.Session, event *discordgo.GuildMemberRemove) {
	if event.Member == nil || event.User == nil || event.GuildID == "" {
		return
	}
	ctx := context.Background()
	name, count := guildSummary(session.State, event.GuildID)
	mctx := format.Context{
		Mention:     event.User.Mention(),
		Username:    memberName(event.Member, event.User),
		ServerName:  name,
		MemberCount: count,
	}
	if err := b.announce(ctx, session, event.GuildID, kindGoodbye, mctx, event.User.AvatarURL("")); err != nil {
		b.logger.Warn("goodbye message failed", zap.String("guild_id", event.GuildID), zap.String("user_id", event.User.ID), zap.Error(err))
	}
}

// announce posts the guild's welcome or goodbye message to its configured
// channel. Disabled announcements and missing channels are not errors.
func (b *Bot) announce(ctx context.Context, api channelAPI, guildID, kind string, mctx format.Context, avatarURL string) error {
	record := b.guildSettings(ctx, guildID)

	enabled, template := record.WelcomeEnabled, record.WelcomeMessage
	if kind == kindGoodbye {
		enabled, template = record.GoodbyeEnabled, record.GoodbyeMessage
	}
	if !enabled || strings.TrimSpace(template) == "" {
		metrics.MemberEventsTotal.WithLabelValues(kind, metrics.OutcomeSkipped).Inc()
		return nil
	}

	channels, err := api.GuildChannels(guildID)
	if err != nil {
		metrics.MemberEventsTotal.WithLabelValues(kind, metrics.OutcomeError).Inc()
		return fmt.Errorf("list channels: %w", err)
	}
	target := findTextChannel(channels, record.WelcomeChannel)
	if target == nil {
		b.logger.Warn("announcement channel not found",
			zap.String("guild_id", guildID),
			zap.String("kind", kind),
			zap.String("channel", record.WelcomeChannel))
		metrics.MemberEventsTotal.WithLabelValues(kind, metrics.OutcomeSkipped).Inc()
		return nil
	}

	description := format.Format(template, mctx)
	if kind == kindWelcome {
		if rules := findTextChannel(channels, record.RulesChannel); rules != nil {
			description += fmt.Sprintf("\n\nPlease read the rules in <#%s>.", rules.ID)
		}
	}

	_, err = api.ChannelMessageSendEmbed(target.ID, announcementEmbed(kind, description, record, avatarURL))
	metrics.MemberEventsTotal.WithLabelValues(kind, metrics.Outcome(err)).Inc()
	if err != nil {
		return fmt.Errorf("send to %s: %w", target.ID, err)
	}
	return nil
}

func announcementEmbed(kind, description string, record settings.Record, avatarURL string) *discordgo.MessageEmbed {
	title, color := "Welcome!", record.EmbedColor
	if kind == kindGoodbye {
		title, color = "Goodbye", goodbyeColor
	}
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
	}
	if avatarURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: avatarURL}
	}
	return embed
}

// findTextChannel matches a channel by name, ignoring case and a leading '#'.
func findTextChannel(channels []*discordgo.Channel, name string) *discordgo.Channel {
	name = strings.TrimPrefix(strings.TrimSpace(name), "#")
	if name == "" {
		return nil
	}
	for _, channel := range channels {
		if channel == nil {
			continue
		}
		if channel.Type != discordgo.ChannelTypeGuildText && channel.Type != discordgo.ChannelTypeGuildNews {
			continue
		}
		if strings.EqualFold(channel.Name, name) {
			return channel
		}
	}
	return nil
}

// guildSummary copies the guild's name and member count under the state
// lock, since discordgo updates both as members come and go.
func guildSummary(state *discordgo.State, guildID string) (string, int) {
	if state == nil {
		return "this server", 0
	}
	guild, err := state.Guild(guildID)
	if err != nil || guild == nil {
		return "this server", 0
	}
	state.RLock()
	defer state.RUnlock()
	return guild.Name, guild.MemberCount
}

// memberName prefers the server nickname, then the global display name.
func memberName(member *discordgo.Member, user *discordgo.User) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if user == nil {
		return ""
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}
