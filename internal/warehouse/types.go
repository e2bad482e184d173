package warehouse

import "strings"

// Config holds Snowflake warehouse configuration.
type Config struct {
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
	Enabled   bool   `yaml:"enabled"`
}

// buildDSN renders the gosnowflake connection string.
// Format: user:password@account/database/schema?warehouse=xxx
func buildDSN(cfg Config) string {
	dsn := cfg.User + ":" + cfg.Password + "@" + cfg.Account + "/" + cfg.Database + "/" + cfg.Schema
	if cfg.Warehouse != "" {
		dsn += "?warehouse=" + cfg.Warehouse
	}
	return dsn
}

// ParseConnectionString extracts components from an ops-style connection
// string. Format: scheme=https;ACCOUNT=xxx;USER=yyy;PASSWORD=zzz;DB=database.schema;
func ParseConnectionString(connStr string) Config {
	parts := make(map[string]string)
	for _, field := range strings.Split(connStr, ";") {
		if idx := strings.Index(field, "="); idx > 0 {
			parts[field[:idx]] = field[idx+1:]
		}
	}

	db := parts["DB"]
	var database, schema string
	if idx := strings.Index(db, "."); idx > 0 {
		database = db[:idx]
		schema = db[idx+1:]
	} else {
		database = db
	}

	return Config{
		Account:  parts["ACCOUNT"],
		User:     parts["USER"],
		Password: parts["PASSWORD"],
		Database: database,
		Schema:   schema,
	}
}
