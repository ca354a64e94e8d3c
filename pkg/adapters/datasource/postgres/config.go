// Package postgres implements schema discovery and query execution against
// PostgreSQL targets.
package postgres

import (
	"fmt"
	"net/url"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
)

// buildConnectionString renders a pgx-compatible URL from the connection
// config.
func buildConnectionString(cfg *datasource.ConnectionConfig) string {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "prefer"
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	q := u.Query()
	q.Set("sslmode", sslMode)
	u.RawQuery = q.Encode()

	return u.String()
}
