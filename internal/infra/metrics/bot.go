package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		messagesTotal,
		commandsTotal,
	)
}

var (
	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_messages_total",
			Help: "Inbound messages by disposition (dialogue/command/dropped).",
		},
		[]string{"disposition"},
	)

	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Commands by name and outcome.",
		},
		[]string{"command", "outcome"},
	)
)

func IncMessage(disposition string) {
	messagesTotal.WithLabelValues(norm(disposition)).Inc()
}

func IncCommand(command, outcome string) {
	commandsTotal.WithLabelValues(norm(command), norm(outcome)).Inc()
}
