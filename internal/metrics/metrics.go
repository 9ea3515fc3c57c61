// Package metrics holds the Prometheus instruments shared by the bot and the
// settings store. Collectors are registered with the default registry, so
// serving promhttp.Handler() is enough to expose them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeSkipped = "skipped"
	OutcomeLimited = "limited"
)

var (
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_commands_total",
			Help: "Slash commands handled, by command and outcome.",
		}, []string{"command", "outcome"})

	MemberEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_member_events_total",
			Help: "Member join/leave announcements, by kind and outcome.",
		}, []string{"kind", "outcome"})

	SettingsWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_settings_writes_total",
			Help: "Settings document writes, by outcome.",
		}, []string{"outcome"})

	GuildsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "steward_guilds_tracked",
			Help: "Guilds with a settings record in memory.",
		})
)

func init() {
	prometheus.MustRegister(
		CommandsTotal,
		MemberEventsTotal,
		SettingsWritesTotal,
		GuildsTracked,
	)
}

func Outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
