package db

import "database/sql"

// Conn is an open database with the dialect its repositories use and the URL
// migrations run against.
type Conn struct {
	DB         *sql.DB
	Dialect    Dialect
	MigrateURL string
}

// Connect opens the database selected by driver: the SQLite file at sqlitePath,
// or Postgres at databaseURL.
func Connect(driver, databaseURL, sqlitePath string) (*Conn, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if dialect == Postgres {
		sqlDB, err := Open(databaseURL)
		if err != nil {
			return nil, err
		}
		return &Conn{DB: sqlDB, Dialect: Postgres, MigrateURL: databaseURL}, nil
	}
	sqlDB, err := OpenSQLite(sqlitePath)
	if err != nil {
		return nil, err
	}
	return &Conn{DB: sqlDB, Dialect: SQLite, MigrateURL: SQLiteURL(sqlitePath)}, nil
}

// Close closes the underlying pool.
func (c *Conn) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
