// Package mssql implements schema discovery and query execution against
// Microsoft SQL Server targets.
package mssql

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kgraph-ai/kgraph-engine/pkg/adapters/datasource"
)

// buildConnectionString renders a go-mssqldb URL from the connection config.
func buildConnectionString(cfg *datasource.ConnectionConfig) string {
	u := url.URL{
		Scheme: "sqlserver",
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	if cfg.Username != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	q := u.Query()
	q.Set("database", cfg.Database)
	if cfg.SSLMode == "disable" {
		q.Set("encrypt", "disable")
	}
	u.RawQuery = q.Encode()

	return u.String()
}

// quoteIdentifier wraps an identifier in brackets, escaping closing
// brackets.
func quoteIdentifier(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// qualifiedTableName returns a bracketed schema.table reference.
func qualifiedTableName(schemaName, tableName string) string {
	if schemaName == "" {
		return quoteIdentifier(tableName)
	}
	return quoteIdentifier(schemaName) + "." + quoteIdentifier(tableName)
}
