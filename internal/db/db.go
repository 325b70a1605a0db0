package db

import "database/sql"

// DB wraps the shared sql handle so stores depend on one local type.
type DB struct {
	*sql.DB
}
