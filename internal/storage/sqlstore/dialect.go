package sqlstore

import (
	"errors"

	"github.com/go-sql-driver/mysql"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Dialect selects the database/sql driver and its DDL.
type Dialect string

const (
	MySQL  Dialect = "mysql"
	SQLite Dialect = "sqlite"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func (d Dialect) schema() []string {
	switch d {
	case MySQL:
		return []string{
			`CREATE TABLE IF NOT EXISTS participants (
				seq BIGINT AUTO_INCREMENT PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				last_status BIGINT NOT NULL,
				UNIQUE KEY uq_participants_name (name)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_bin`,
			`CREATE TABLE IF NOT EXISTS messages (
				seq BIGINT AUTO_INCREMENT PRIMARY KEY,
				id CHAR(36) NOT NULL,
				from_name VARCHAR(255) NOT NULL,
				to_name VARCHAR(255) NOT NULL,
				text TEXT NOT NULL,
				kind VARCHAR(32) NOT NULL,
				time CHAR(8) NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		}
	default:
		return []string{
			`CREATE TABLE IF NOT EXISTS participants (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL UNIQUE,
				last_status INTEGER NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS messages (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL,
				from_name TEXT NOT NULL,
				to_name TEXT NOT NULL,
				text TEXT NOT NULL,
				kind TEXT NOT NULL,
				time TEXT NOT NULL
			)`,
		}
	}
}

func (d Dialect) isUniqueViolation(err error) bool {
	switch d {
	case MySQL:
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
	default:
		var liteErr *sqlite.Error
		return errors.As(err, &liteErr) && liteErr.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
	}
}
