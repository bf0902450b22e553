package kvstore

import "strings"

// Driver represents a key/value backend type.
type Driver string

const (
	// DriverMemory keeps entries in process memory (tests, throwaway sessions).
	DriverMemory Driver = "memory"
	// DriverSQLite stores entries in a SQLite file.
	DriverSQLite Driver = "sqlite"
	// DriverPostgres stores entries in a PostgreSQL table.
	DriverPostgres Driver = "postgres"
	// DriverRedis stores entries as Redis string keys.
	DriverRedis Driver = "redis"
)

// String returns the string representation of the driver.
func (d Driver) String() string {
	return string(d)
}

// IsValid returns true if the driver is a known type.
func (d Driver) IsValid() bool {
	switch d {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverRedis:
		return true
	default:
		return false
	}
}

// IsRemote reports whether the backend lives outside the process.
func (d Driver) IsRemote() bool {
	return d == DriverPostgres || d == DriverRedis
}

// DetectDriver parses a connection string and returns the driver type.
// Returns DriverSQLite for empty URLs to enable zero-config local mode.
// Returns "" for URLs with an unrecognised scheme.
func DetectDriver(url string) Driver {
	if url == "" {
		return DriverSQLite
	}

	switch {
	case strings.HasPrefix(url, "memory://"), url == ":memory:":
		return DriverMemory
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres
	case strings.HasPrefix(url, "redis://"), strings.HasPrefix(url, "rediss://"):
		return DriverRedis
	case strings.HasPrefix(url, "sqlite://"),
		strings.HasPrefix(url, "file:"),
		strings.HasSuffix(url, ".db"),
		strings.HasSuffix(url, ".sqlite"),
		strings.HasSuffix(url, ".sqlite3"):
		return DriverSQLite
	}

	if !strings.Contains(url, "://") {
		// A bare path is treated as a SQLite file.
		return DriverSQLite
	}
	return ""
}

// SQLitePathFromURL strips the sqlite:// scheme from url.
func SQLitePathFromURL(url string) string {
	return strings.TrimPrefix(url, "sqlite://")
}
