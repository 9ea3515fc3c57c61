// Package format expands the placeholder tokens used in welcome and goodbye
// templates.
package format

import (
	"strconv"
	"strings"
)

const (
	TokenMention     = "{mention}"
	TokenUsername    = "{username}"
	TokenUser        = "{user}"
	TokenServer      = "{server}"
	TokenServerName  = "{server_name}"
	TokenMemberCount = "{member_count}"
)

// Context carries the runtime values substituted into a template.
type Context struct {
	Mention     string
	Username    string
	ServerName  string
	MemberCount int
}

// Placeholders lists the recognised tokens with a short description each.
func Placeholders() [][2]string {
	return [][2]string{
		{TokenMention, "mentions the member"},
		{TokenUsername, "member display name"},
		{TokenUser, "same as {username}"},
		{TokenServer, "server name"},
		{TokenServerName, "same as {server}"},
		{TokenMemberCount, "current member count"},
	}
}

// Format replaces every recognised token in template in a single pass.
// Unknown placeholders are left alone and substituted values are not
// expanded again.
func Format(template string, ctx Context) string {
	count := strconv.Itoa(ctx.MemberCount)
	return strings.NewReplacer(
		TokenMention, ctx.Mention,
		TokenUsername, ctx.Username,
		TokenUser, ctx.Username,
		TokenServerName, ctx.ServerName,
		TokenServer, ctx.ServerName,
		TokenMemberCount, count,
	).Replace(template)
}
