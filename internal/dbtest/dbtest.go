// Package dbtest 为 SQL 仓储测试提供内存 SQLite 数据库。
// 表结构与生产 PostgreSQL 模式保持同形，SQL 语句本身保持两种方言兼容。
package dbtest

import (
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"
)

const schema = `
CREATE TABLE users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL,
	email         TEXT NOT NULL UNIQUE,
	password      TEXT NOT NULL,
	provider      TEXT NOT NULL DEFAULT 'custom',
	is_verified   BOOLEAN NOT NULL DEFAULT 0,
	token_version INTEGER NOT NULL DEFAULT 0,
	storage_used  BIGINT NOT NULL DEFAULT 0,
	loop_delay    INTEGER NOT NULL DEFAULT 2,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE users_files (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	file_name   TEXT NOT NULL,
	mime_type   TEXT NOT NULL,
	file_type   TEXT NOT NULL DEFAULT 'image',
	file_url    TEXT NOT NULL,
	audio_url   TEXT NOT NULL DEFAULT '',
	file_size   BIGINT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'active',
	archived_at TIMESTAMP,
	trashed_at  TIMESTAMP,
	created_at  TIMESTAMP NOT NULL,
	updated_at  TIMESTAMP NOT NULL
);

CREATE TABLE original_files (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	file_name  TEXT NOT NULL,
	mime_type  TEXT NOT NULL,
	file_url   TEXT NOT NULL,
	file_size  BIGINT NOT NULL,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Open 打开一个带模式的内存数据库，测试结束时自动关闭
func Open(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// 内存库只允许单连接，避免并发测试各自拿到空库
	db.SetMaxOpenConns(1)

	_, err = db.Exec(schema)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// SeedUser 插入一个用户并返回其 id
func SeedUser(t *testing.T, db *sql.DB, storageUsed int64) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Now()
	_, err := db.Exec(`
		INSERT INTO users (id, name, email, password, storage_used, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, "tester", id.String()+"@example.com", "x", storageUsed, now, now,
	)
	require.NoError(t, err)
	return id
}
