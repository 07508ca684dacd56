package events

import (
	"fmt"

	"github.com/diewo77/invoice-engine/internal/config"
	"github.com/rs/zerolog"
)

// FromConfig builds the publishers named in cfg.Driver. A broker that cannot be
// reached at startup is replaced by the log publisher so the service still starts.
func FromConfig(cfg config.EventsConfig, log zerolog.Logger) (Publisher, error) {
	var pubs MultiPublisher
	for _, driver := range cfg.Drivers() {
		switch driver {
		case "log":
			pubs = append(pubs, NewLogPublisher(log))
		case "rabbitmq":
			p, err := NewRabbitPublisher(cfg.RabbitURL, cfg.Exchange)
			if err != nil {
				log.Warn().Err(err).Msg("rabbitmq unavailable, falling back to log publisher")
				pubs = append(pubs, NewLogPublisher(log))
				continue
			}
			pubs = append(pubs, p)
		case "kafka":
			if len(cfg.KafkaBrokers) == 0 {
				return nil, fmt.Errorf("events: kafka driver needs KAFKA_BROKERS")
			}
			pubs = append(pubs, NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		default:
			return nil, fmt.Errorf("events: unknown driver %q", driver)
		}
	}
	if len(pubs) == 1 {
		return pubs[0], nil
	}
	return pubs, nil
}
