package status

import (
	"fmt"

	"github.com/psantana5/wfrunner/pkg/logging"
)

// Channel names accepted by New
const (
	ChannelHTTP     = "http"
	ChannelSQLite   = "sqlite"
	ChannelPostgres = "postgres"
	ChannelLog      = "log"
)

// Config selects and configures the status channel
type Config struct {
	Channel string
	HTTP    HTTPConfig
	DSN     string
}

// New creates the publisher for the configured channel. On error the
// returned Publisher is nil.
func New(cfg Config, logger *logging.Logger) (Publisher, error) {
	switch cfg.Channel {
	case ChannelHTTP, "":
		p, err := NewHTTPPublisher(cfg.HTTP)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ChannelSQLite:
		s, err := NewSQLiteStore(cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case ChannelPostgres:
		s, err := NewPostgresStore(StoreConfig{Type: ChannelPostgres, DSN: cfg.DSN})
		if err != nil {
			return nil, err
		}
		return s, nil
	case ChannelLog:
		return NewLogPublisher(logger), nil
	default:
		return nil, fmt.Errorf("unknown status channel %q (expected http, sqlite, postgres or log)", cfg.Channel)
	}
}
