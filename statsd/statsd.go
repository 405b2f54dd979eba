// Package statsd is a helper package that wraps some common statsd methods.
// It hides the datadog dependency so if we decide to migrate away from
// datadog in the future, we only need to edit this single file.
package statsd

import (
	"time"

	ddstatsd "github.com/DataDog/datadog-go/v5/statsd"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

var client ddstatsd.ClientInterface = &ddstatsd.NoOpClient{}

func Client() ddstatsd.ClientInterface {
	return client
}

// EmitTickStat records how long one reconciliation stage took.
func EmitTickStat(start time.Time, stage string) {
	duration := time.Since(start)
	if err := Client().Timing("tick", duration, []string{stage}, 1); err != nil {
		log.Warn().Msgf("failed to emit tick stat: %v", err)
	}
}

// EmitPoolGauges reports the current fleet and matchmaking occupancy.
func EmitPoolGauges(lobbies, matches, servers int) {
	gauges := map[string]int{
		"lobbies.active":  lobbies,
		"matches.active":  matches,
		"servers.running": servers,
	}
	for name, value := range gauges {
		if err := Client().Gauge(name, float64(value), nil, 1); err != nil {
			log.Warn().Msgf("failed to emit %s gauge: %v", name, err)
		}
	}
}

func Init(address string, tags []string) error {
	if address == "" {
		return eris.New("address must not be empty")
	}
	opts := []ddstatsd.Option{
		// The statsd namespace is the prefix of all metrics
		ddstatsd.WithNamespace("brsvc"),
	}
	if len(tags) > 0 {
		opts = append(opts, ddstatsd.WithTags(tags))
	}

	newClient, err := ddstatsd.New(address, opts...)
	if err != nil {
		return err
	}
	client = newClient
	return nil
}
