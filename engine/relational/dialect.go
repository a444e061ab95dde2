package relational

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/unkn0wn-root/cachekit/engine"
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type dialect struct {
	name     string
	blobType string
	dollar   bool // $1, $2 ... placeholders
}

var (
	sqliteDialect   = dialect{name: "sqlite", blobType: "BLOB"}
	postgresDialect = dialect{name: "postgres", blobType: "BYTEA", dollar: true}
)

func dialectFor(driver string) (dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return sqliteDialect, nil
	case "postgres", "pgx":
		return postgresDialect, nil
	default:
		return dialect{}, engine.BadRequest("relational engine: unsupported driver %q", driver)
	}
}

// rebind rewrites '?' placeholders for dialects that number them.
func (d dialect) rebind(q string) string {
	if !d.dollar {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

type queries struct {
	createTable string
	createIndex string
	get         string
	expiresAt   string
	upsert      string
	del         string
	expire      string
	flushAll    string
	flushPrefix string
	sweep       string
}

func buildQueries(d dialect, table string) queries {
	live := `(expires_at IS NULL OR expires_at > ?)`
	return queries{
		createTable: `CREATE TABLE IF NOT EXISTS ` + table + ` (
	path TEXT PRIMARY KEY,
	expires_at BIGINT NULL,
	value ` + d.blobType + ` NOT NULL
)`,
		createIndex: `CREATE INDEX IF NOT EXISTS ` + table + `_expires_at ON ` + table + ` (expires_at)`,
		get:         d.rebind(`SELECT value FROM ` + table + ` WHERE path = ? AND ` + live),
		expiresAt:   d.rebind(`SELECT expires_at FROM ` + table + ` WHERE path = ? AND ` + live),
		upsert: d.rebind(`INSERT INTO ` + table + ` (path, expires_at, value) VALUES (?, ?, ?)
ON CONFLICT(path) DO UPDATE SET expires_at = excluded.expires_at, value = excluded.value`),
		del:         d.rebind(`DELETE FROM ` + table + ` WHERE path = ?`),
		expire:      d.rebind(`UPDATE ` + table + ` SET expires_at = ? WHERE path = ? AND ` + live),
		flushAll:    `DELETE FROM ` + table,
		flushPrefix: d.rebind(`DELETE FROM ` + table + ` WHERE path LIKE ? ESCAPE '\'`),
		sweep:       d.rebind(`DELETE FROM ` + table + ` WHERE expires_at IS NOT NULL AND expires_at <= ?`),
	}
}
