package bot

import (
	"fmt"
	"strings"
	"time"

	"steward/internal/format"
	"steward/internal/settings"

	"github.com/bwmarrin/discordgo"
)

var helpLines = [][2]string{
	{cmdPing, "check that the bot is alive"},
	{cmdHelp, "show this message"},
	{cmdServerInfo, "information about this server"},
	{cmdUserInfo, "information about you or another member"},
	{cmdSetWelcome, "channel for welcome and goodbye messages"},
	{cmdSetRules, "rules channel linked from welcome messages"},
	{cmdWelcome, "turn welcome messages on or off"},
	{cmdGoodbye, "turn goodbye messages on or off"},
	{cmdWelcomeMessage, "set the welcome template"},
	{cmdGoodbyeMessage, "set the goodbye template"},
	{cmdEmbedColor, "set the embed color"},
	{cmdSettings, "show the current settings"},
}

func pingEmbed(api, gateway time.Duration, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title: "Pong!",
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "API latency", Value: fmt.Sprintf("%d ms", api.Milliseconds()), Inline: true},
			{Name: "WebSocket latency", Value: fmt.Sprintf("%d ms", gateway.Milliseconds()), Inline: true},
		},
	}
}

func helpEmbed(color int) *discordgo.MessageEmbed {
	var commands strings.Builder
	for _, line := range helpLines {
		fmt.Fprintf(&commands, "`/%s` %s\n", line[0], line[1])
	}
	var placeholders strings.Builder
	for _, p := range format.Placeholders() {
		fmt.Fprintf(&placeholders, "`%s` %s\n", p[0], p[1])
	}
	return &discordgo.MessageEmbed{
		Title: "Help",
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Commands", Value: commands.String()},
			{Name: "Message placeholders", Value: placeholders.String()},
		},
	}
}

func settingsEmbed(record settings.Record) *discordgo.MessageEmbed {
	var fields []*discordgo.MessageEmbedField
	for _, key := range settings.Keys() {
		value, _ := record.Value(key)
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   key,
			Value:  displayValue(key, value),
			Inline: key != settings.KeyWelcomeMessage && key != settings.KeyGoodbyeMessage,
		})
	}
	for _, key := range record.ExtraKeys() {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:   key,
			Value:  displayValue(key, record.Extra[key]),
			Inline: true,
		})
	}
	return &discordgo.MessageEmbed{
		Title:  "Server settings",
		Color:  record.EmbedColor,
		Fields: fields,
	}
}

func serverInfoEmbed(guild *discordgo.Guild, color int) *discordgo.MessageEmbed {
	created, _ := discordgo.SnowflakeTimestamp(guild.ID)
	owner := "unknown"
	if guild.OwnerID != "" {
		owner = "<@" + guild.OwnerID + ">"
	}
	embed := &discordgo.MessageEmbed{
		Title: guild.Name,
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Owner", Value: owner, Inline: true},
			{Name: "Members", Value: fmt.Sprint(guild.MemberCount), Inline: true},
			{Name: "Channels", Value: fmt.Sprint(len(guild.Channels)), Inline: true},
			{Name: "Roles", Value: fmt.Sprint(len(guild.Roles)), Inline: true},
			{Name: "Created", Value: discordTimestamp(created, "D"), Inline: true},
			{Name: "Server ID", Value: guild.ID, Inline: true},
		},
	}
	if icon := guild.IconURL(""); icon != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: icon}
	}
	return embed
}

func userInfoEmbed(user *discordgo.User, member *discordgo.Member, color int) *discordgo.MessageEmbed {
	created, _ := discordgo.SnowflakeTimestamp(user.ID)
	fields := []*discordgo.MessageEmbedField{
		{Name: "Username", Value: user.Username, Inline: true},
		{Name: "User ID", Value: user.ID, Inline: true},
		{Name: "Account created", Value: discordTimestamp(created, "D"), Inline: true},
	}
	if member != nil {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Joined server", Value: discordTimestamp(member.JoinedAt, "D"), Inline: true})
		roles := "none"
		if len(member.Roles) > 0 {
			mentions := make([]string, 0, len(member.Roles))
			for _, id := range member.Roles {
				mentions = append(mentions, "<@&"+id+">")
			}
			roles = truncate(strings.Join(mentions, " "), 1024)
		}
		fields = append(fields, &discordgo.MessageEmbedField{Name: fmt.Sprintf("Roles (%d)", len(member.Roles)), Value: roles})
	}
	if user.Bot {
		fields = append(fields, &discordgo.MessageEmbedField{Name: "Bot", Value: "yes", Inline: true})
	}
	return &discordgo.MessageEmbed{
		Title:     memberName(member, user),
		Color:     color,
		Fields:    fields,
		Thumbnail: &discordgo.MessageEmbedThumbnail{URL: user.AvatarURL("")},
	}
}
