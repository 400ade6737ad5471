// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package storage implements the embedded SQL store: memories with FTS,
// per-memory vectors, a file-digest cache, and conversation/message tables.
// It is single-writer, multi-reader per project, guarded by a bounded
// connection pool.
package storage

// schemaStatements creates every table, index, and trigger idempotently.
// Ordering matters: memories before memories_fts (trigger references),
// memories before memory_vectors (FK).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		content TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT 'general',
		type TEXT NOT NULL DEFAULT 'general',
		tags_json TEXT NOT NULL DEFAULT '[]',
		metadata_json TEXT NOT NULL DEFAULT '{}',
		content_hash TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(type)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_context ON memories(context)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(content_hash)`,

	`CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
		content, context, tags, content='memories', content_rowid='id'
	)`,

	`CREATE TRIGGER IF NOT EXISTS memories_ai AFTER INSERT ON memories BEGIN
		INSERT INTO memories_fts(rowid, content, context, tags)
		VALUES (new.id, new.content, new.context, new.tags_json);
	END`,
	`CREATE TRIGGER IF NOT EXISTS memories_ad AFTER DELETE ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content, context, tags)
		VALUES ('delete', old.id, old.content, old.context, old.tags_json);
	END`,
	`CREATE TRIGGER IF NOT EXISTS memories_au AFTER UPDATE ON memories BEGIN
		INSERT INTO memories_fts(memories_fts, rowid, content, context, tags)
		VALUES ('delete', old.id, old.content, old.context, old.tags_json);
		INSERT INTO memories_fts(rowid, content, context, tags)
		VALUES (new.id, new.content, new.context, new.tags_json);
	END`,

	`CREATE TABLE IF NOT EXISTS memory_vectors (
		id INTEGER PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
		dim INTEGER NOT NULL,
		vector BLOB NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS file_digests (
		file TEXT PRIMARY KEY,
		digest TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		ai_assistant TEXT NOT NULL DEFAULT '',
		timestamp TEXT NOT NULL,
		context TEXT NOT NULL DEFAULT '{}',
		summary TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('user','assistant','system')),
		content TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id)`,
}

// pragmaStatements tune the connection for a single-writer/multi-reader
// embedded workload, mirroring the WAL-mode settings the grounding example
// ("codenerd" local store, other_examples/) applies to modernc.org/sqlite.
var pragmaStatements = []string{
	`PRAGMA journal_mode=WAL`,
	`PRAGMA synchronous=NORMAL`,
	`PRAGMA foreign_keys=ON`,
	`PRAGMA busy_timeout=5000`,
}
