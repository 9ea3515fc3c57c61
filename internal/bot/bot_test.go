package bot

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"steward/internal/config"
	"steward/internal/format"
	"steward/internal/ratelimit"
	"steward/internal/settings"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentEmbed struct {
	channelID string
	embed     *discordgo.MessageEmbed
}

type fakeChannelAPI struct {
	channels []*discordgo.Channel
	listErr  error
	sendErr  error
	sent     []sentEmbed
}

func (f *fakeChannelAPI) GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error) {
	return f.channels, f.listErr
}

func (f *fakeChannelAPI) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, sentEmbed{channelID: channelID, embed: embed})
	return &discordgo.Message{ChannelID: channelID}, nil
}

type fakeInteractionAPI struct {
	responses []*discordgo.InteractionResponse
	followups []*discordgo.WebhookParams
	latency   time.Duration
}

func (f *fakeInteractionAPI) InteractionRespond(interaction *discordgo.Interaction, resp *discordgo.InteractionResponse, options ...discordgo.RequestOption) error {
	f.responses = append(f.responses, resp)
	return nil
}

func (f *fakeInteractionAPI) FollowupMessageCreate(interaction *discordgo.Interaction, wait bool, data *discordgo.WebhookParams, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.followups = append(f.followups, data)
	return &discordgo.Message{}, nil
}

func (f *fakeInteractionAPI) HeartbeatLatency() time.Duration {
	return f.latency
}

func newTestBot(t *testing.T) *Bot {
	t.Helper()
	cfg := config.DefaultConfig()
	d := cfg.Settings.Defaults
	store, err := settings.Open(context.Background(), settings.NewFileBackend(filepath.Join(t.TempDir(), "settings.json")), settings.Options{
		Defaults: settings.Record{
			WelcomeChannel: d.WelcomeChannel,
			RulesChannel:   d.RulesChannel,
			WelcomeEnabled: d.WelcomeEnabled,
			GoodbyeEnabled: d.GoodbyeEnabled,
			WelcomeMessage: d.WelcomeMessage,
			GoodbyeMessage: d.GoodbyeMessage,
			EmbedColor:     d.EmbedColor,
		},
	})
	require.NoError(t, err)
	return &Bot{
		cfg:     cfg,
		logger:  zap.NewNop(),
		store:   store,
		limiter: ratelimit.NewLimiter(0, 0),
	}
}

func guildChannels() []*discordgo.Channel {
	return []*discordgo.Channel{
		{ID: "c0", Name: "welcome", Type: discordgo.ChannelTypeGuildVoice},
		{ID: "c1", Name: "general", Type: discordgo.ChannelTypeGuildText},
		{ID: "c2", Name: "Welcome", Type: discordgo.ChannelTypeGuildText},
		{ID: "c3", Name: "rules", Type: discordgo.ChannelTypeGuildText},
	}
}

var bob = format.Context{Mention: "<@42>", Username: "bob", ServerName: "Acme", MemberCount: 7}

func TestAnnounceWelcome(t *testing.T) {
	b := newTestBot(t)
	api := &fakeChannelAPI{channels: guildChannels()}

	require.NoError(t, b.announce(context.Background(), api, "g1", kindWelcome, bob, "https://cdn/avatar.png"))

	require.Len(t, api.sent, 1)
	assert.Equal(t, "c2", api.sent[0].channelID)
	embed := api.sent[0].embed
	assert.Equal(t, "Welcome!", embed.Title)
	assert.Equal(t, "Welcome to Acme, <@42>! 🎉\n\nWe're glad to have you here. You're member #7!\n\nPlease read the rules in <#c3>.", embed.Description)
	assert.Equal(t, 0x00FF00, embed.Color)
	require.NotNil(t, embed.Thumbnail)
	assert.Equal(t, "https://cdn/avatar.png", embed.Thumbnail.URL)
}

func TestAnnounceGoodbyeUsesCustomTemplate(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, b.store.Update(ctx, "g1", settings.KeyGoodbyeMessage, "Farewell {user} from {server_name}"))
	require.NoError(t, b.store.Update(ctx, "g1", settings.KeyEmbedColor, "#112233"))
	api := &fakeChannelAPI{channels: guildChannels()}

	require.NoError(t, b.announce(ctx, api, "g1", kindGoodbye, bob, ""))

	require.Len(t, api.sent, 1)
	embed := api.sent[0].embed
	assert.Equal(t, "Goodbye", embed.Title)
	assert.Equal(t, "Farewell bob from Acme", embed.Description)
	assert.Equal(t, goodbyeColor, embed.Color)
	assert.Nil(t, embed.Thumbnail)
}

func TestAnnounceDisabled(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, b.store.Update(ctx, "g1", settings.KeyWelcomeEnabled, false))
	api := &fakeChannelAPI{channels: guildChannels()}

	require.NoError(t, b.announce(ctx, api, "g1", kindWelcome, bob, ""))
	assert.Empty(t, api.sent)

	require.NoError(t, b.announce(ctx, api, "g1", kindGoodbye, bob, ""))
	assert.Len(t, api.sent, 1)
}

func TestAnnounceMissingChannel(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, b.store.Update(ctx, "g1", settings.KeyWelcomeChannel, "lobby"))
	api := &fakeChannelAPI{channels: guildChannels()}

	require.NoError(t, b.announce(ctx, api, "g1", kindWelcome, bob, ""))
	assert.Empty(t, api.sent)
}

func TestAnnounceErrors(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()

	err := b.announce(ctx, &fakeChannelAPI{listErr: errors.New("forbidden")}, "g1", kindWelcome, bob, "")
	assert.ErrorContains(t, err, "list channels")

	err = b.announce(ctx, &fakeChannelAPI{channels: guildChannels(), sendErr: errors.New("missing access")}, "g1", kindWelcome, bob, "")
	assert.ErrorContains(t, err, "send to c2")
}

func TestFindTextChannel(t *testing.T) {
	channels := guildChannels()

	assert.Equal(t, "c2", findTextChannel(channels, "#WELCOME").ID)
	assert.Equal(t, "c1", findTextChannel(channels, " general ").ID)
	assert.Nil(t, findTextChannel(channels, "announcements"))
	assert.Nil(t, findTextChannel(channels, ""))
	assert.Nil(t, findTextChannel([]*discordgo.Channel{nil}, "general"))
}

func TestMemberName(t *testing.T) {
	user := &discordgo.User{ID: "1", Username: "bob_1", GlobalName: "Bob"}

	assert.Equal(t, "Bobby", memberName(&discordgo.Member{Nick: "Bobby"}, user))
	assert.Equal(t, "Bob", memberName(&discordgo.Member{}, user))
	assert.Equal(t, "bob_1", memberName(nil, &discordgo.User{Username: "bob_1"}))
	assert.Equal(t, "", memberName(nil, nil))
}

func TestCanManage(t *testing.T) {
	tests := []struct {
		name   string
		member *discordgo.Member
		want   bool
	}{
		{"no member", nil, false},
		{"no permissions", &discordgo.Member{Permissions: discordgo.PermissionSendMessages}, false},
		{"manage server", &discordgo.Member{Permissions: discordgo.PermissionManageServer}, true},
		{"administrator", &discordgo.Member{Permissions: discordgo.PermissionAdministrator}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			interaction := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: tc.member}}
			assert.Equal(t, tc.want, canManage(interaction))
		})
	}
}

func TestInteractionUser(t *testing.T) {
	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{Member: &discordgo.Member{User: &discordgo.User{ID: "m"}}}}
	direct := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{User: &discordgo.User{ID: "u"}}}
	empty := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}

	assert.Equal(t, "m", interactionUserID(guild))
	assert.Equal(t, "u", interactionUserID(direct))
	assert.Equal(t, "", interactionUserID(empty))
}

func TestDisplayValue(t *testing.T) {
	assert.Equal(t, "on", displayValue(settings.KeyWelcomeEnabled, true))
	assert.Equal(t, "off", displayValue(settings.KeyGoodbyeEnabled, false))
	assert.Equal(t, "#welcome", displayValue(settings.KeyWelcomeChannel, "welcome"))
	assert.Equal(t, "#5865F2", displayValue(settings.KeyEmbedColor, 0x5865F2))
	assert.Equal(t, "not set", displayValue("prefix", ""))
	assert.Equal(t, "not set", displayValue("prefix", nil))
	assert.Equal(t, "3", displayValue("legacy", float64(3)))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
	assert.Equal(t, "éé…", truncate("éééé", 3))
}

func TestSettingsEmbed(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, b.store.Update(ctx, "g1", "prefix", "!"))
	record, err := b.store.Get(ctx, "g1")
	require.NoError(t, err)

	embed := settingsEmbed(record)
	require.Len(t, embed.Fields, len(settings.Keys())+1)
	assert.Equal(t, settings.KeyWelcomeChannel, embed.Fields[0].Name)
	assert.Equal(t, "prefix", embed.Fields[len(embed.Fields)-1].Name)
	assert.Equal(t, "!", embed.Fields[len(embed.Fields)-1].Value)
}

func TestHelpEmbedListsEveryCommand(t *testing.T) {
	embed := helpEmbed(0)
	require.Len(t, embed.Fields, 2)
	for _, cmd := range applicationCommands() {
		assert.Contains(t, embed.Fields[0].Value, "/"+cmd.Name)
	}
	assert.Contains(t, embed.Fields[1].Value, format.TokenMemberCount)
}

func TestApplicationCommands(t *testing.T) {
	setters := map[string]bool{
		cmdSetWelcome: true, cmdSetRules: true, cmdWelcome: true, cmdGoodbye: true,
		cmdWelcomeMessage: true, cmdGoodbyeMessage: true, cmdEmbedColor: true, cmdSettings: true,
	}
	seen := make(map[string]bool)
	for _, cmd := range applicationCommands() {
		assert.False(t, seen[cmd.Name], "duplicate command %s", cmd.Name)
		seen[cmd.Name] = true
		assert.Equal(t, strings.ToLower(cmd.Name), cmd.Name)
		assert.NotEmpty(t, cmd.Description)
		if setters[cmd.Name] {
			require.NotNil(t, cmd.DefaultMemberPermissions, cmd.Name)
			assert.Equal(t, int64(discordgo.PermissionManageServer), *cmd.DefaultMemberPermissions)
		}
	}
	assert.Len(t, seen, len(helpLines))
}

func TestUserInfoEmbed(t *testing.T) {
	user := &discordgo.User{ID: "80351110224678912", Username: "nelly"}
	member := &discordgo.Member{Nick: "Nell", Roles: []string{"r1", "r2"}}

	embed := userInfoEmbed(user, member, 0xABCDEF)
	assert.Equal(t, "Nell", embed.Title)
	assert.Equal(t, 0xABCDEF, embed.Color)
	var roles *discordgo.MessageEmbedField
	for _, field := range embed.Fields {
		if strings.HasPrefix(field.Name, "Roles") {
			roles = field
		}
	}
	require.NotNil(t, roles)
	assert.Equal(t, "Roles (2)", roles.Name)
	assert.Equal(t, "<@&r1> <@&r2>", roles.Value)
}

func TestServerInfoEmbed(t *testing.T) {
	guild := &discordgo.Guild{ID: "197038439483310086", Name: "Acme", OwnerID: "1", MemberCount: 12, Roles: []*discordgo.Role{{ID: "r"}}}

	embed := serverInfoEmbed(guild, 0x123456)
	assert.Equal(t, "Acme", embed.Title)
	assert.Equal(t, "<@1>", embed.Fields[0].Value)
	assert.Equal(t, "12", embed.Fields[1].Value)
	assert.Equal(t, "0", embed.Fields[2].Value)
	assert.Equal(t, "1", embed.Fields[3].Value)
	assert.True(t, strings.HasPrefix(embed.Fields[4].Value, "<t:"))
}

func TestAnnounceGoodbyeIgnoresGuildColor(t *testing.T) {
	b := newTestBot(t)
	ctx := context.Background()
	require.NoError(t, b.store.Update(ctx, "g1", settings.KeyEmbedColor, "#112233"))
	api := &fakeChannelAPI{channels: guildChannels()}

	require.NoError(t, b.announce(ctx, api, "g1", kindWelcome, bob, ""))
	require.NoError(t, b.announce(ctx, api, "g1", kindGoodbye, bob, ""))

	require.Len(t, api.sent, 2)
	assert.Equal(t, 0x112233, api.sent[0].embed.Color)
	assert.Equal(t, 0xFF6B6B, api.sent[1].embed.Color)
}

func TestPingRepliesPubliclyWithBothLatencies(t *testing.T) {
	b := newTestBot(t)
	api := &fakeInteractionAPI{latency: 42 * time.Millisecond}
	interaction := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{GuildID: "g1"}}

	require.NoError(t, b.handlePing(api, interaction))

	require.Len(t, api.responses, 1)
	assert.Equal(t, discordgo.InteractionResponseDeferredChannelMessageWithSource, api.responses[0].Type)
	assert.Nil(t, api.responses[0].Data)

	require.Len(t, api.followups, 1)
	assert.Zero(t, api.followups[0].Flags&discordgo.MessageFlagsEphemeral)
	require.Len(t, api.followups[0].Embeds, 1)
	fields := api.followups[0].Embeds[0].Fields
	require.Len(t, fields, 2)
	assert.Equal(t, "API latency", fields[0].Name)
	assert.Equal(t, "WebSocket latency", fields[1].Name)
	assert.Equal(t, "42 ms", fields[1].Value)
}

func TestHelpRepliesPublicly(t *testing.T) {
	b := newTestBot(t)
	api := &fakeInteractionAPI{}
	interaction := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{GuildID: "g1"}}

	b.handleHelp(context.Background(), api, interaction)

	require.Len(t, api.responses, 1)
	data := api.responses[0].Data
	require.NotNil(t, data)
	assert.Zero(t, data.Flags&discordgo.MessageFlagsEphemeral)
	require.Len(t, data.Embeds, 1)
	assert.Equal(t, 0x00FF00, data.Embeds[0].Color)
}

func TestGuildSummary(t *testing.T) {
	name, count := guildSummary(nil, "g1")
	assert.Equal(t, "this server", name)
	assert.Zero(t, count)

	state := discordgo.NewState()
	name, count = guildSummary(state, "g1")
	assert.Equal(t, "this server", name)
	assert.Zero(t, count)

	require.NoError(t, state.GuildAdd(&discordgo.Guild{ID: "g1", Name: "Acme", MemberCount: 12}))
	name, count = guildSummary(state, "g1")
	assert.Equal(t, "Acme", name)
	assert.Equal(t, 12, count)
}

func TestGuildSummaryConsistentDuringGuildUpdates(t *testing.T) {
	state := discordgo.NewState()
	require.NoError(t, state.GuildAdd(&discordgo.Guild{ID: "g1", Name: "Acme-1", MemberCount: 1}))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 2; i <= 500; i++ {
			_ = state.GuildAdd(&discordgo.Guild{ID: "g1", Name: fmt.Sprintf("Acme-%d", i), MemberCount: i})
		}
	}()
	for i := 0; i < 500; i++ {
		name, count := guildSummary(state, "g1")
		require.Equal(t, fmt.Sprintf("Acme-%d", count), name)
	}
	wg.Wait()
}
