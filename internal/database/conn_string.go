package database

import (
	"fmt"
	"net/url"

	"github.com/quotelab/watchfeed/internal/config"
)

// BuildConnString renders cfg as a postgres:// URL. The password is escaped
// so credentials with reserved characters survive pgx's URL parser; an
// unset ssl_mode falls back to "prefer".
func BuildConnString(cfg config.DBConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, url.QueryEscape(cfg.Password),
		cfg.Host, cfg.Port, cfg.Name, sslMode)
}
