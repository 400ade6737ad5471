// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation is one recorded AI conversation (spec §3).
type Conversation struct {
	ID          string
	ProjectID   string
	AIAssistant string
	Timestamp   time.Time
	ContextJSON string
	Summary     string
}

// Message belongs to a Conversation; deleted by FK cascade when the
// conversation is deleted.
type Message struct {
	ID             int64
	ConversationID string
	Role           string
	Content        string
	Timestamp      time.Time
	MetadataJSON   string
}

// CreateConversation inserts a new conversation with a fresh UUIDv4 id.
func (e *Engine) CreateConversation(ctx context.Context, projectID, aiAssistant, contextJSON, summary string) (string, error) {
	id := uuid.NewString()
	if contextJSON == "" {
		contextJSON = "{}"
	}
	_, err := e.db.ExecContext(ctx,
		`INSERT INTO conversations(id, project_id, ai_assistant, timestamp, context, summary) VALUES (?, ?, ?, ?, ?, ?)`,
		id, projectID, aiAssistant, time.Now().UTC().Format(time.RFC3339Nano), contextJSON, summary)
	if err != nil {
		return "", fmt.Errorf("storage: create conversation: %w", err)
	}
	return id, nil
}

// AppendMessage appends a message to an existing conversation.
func (e *Engine) AppendMessage(ctx context.Context, conversationID, role, content, metadataJSON string) (int64, error) {
	switch role {
	case "user", "assistant", "system":
	default:
		return 0, fmt.Errorf("InputInvalid: unknown message role %q", role)
	}
	if metadataJSON == "" {
		metadataJSON = "{}"
	}
	res, err := e.db.ExecContext(ctx,
		`INSERT INTO messages(conversation_id, role, content, timestamp, metadata) VALUES (?, ?, ?, ?, ?)`,
		conversationID, role, content, time.Now().UTC().Format(time.RFC3339Nano), metadataJSON)
	if err != nil {
		return 0, fmt.Errorf("storage: append message: %w", err)
	}
	return res.LastInsertId()
}

// DeleteConversation removes a conversation and, via FK cascade, its
// messages.
func (e *Engine) DeleteConversation(ctx context.Context, id string) error {
	if _, err := e.db.ExecContext(ctx, `DELETE FROM conversations WHERE id=?`, id); err != nil {
		return fmt.Errorf("storage: delete conversation: %w", err)
	}
	return nil
}

// ListMessages returns every message for a conversation in timestamp order.
func (e *Engine) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, timestamp, metadata FROM messages WHERE conversation_id=? ORDER BY id ASC`,
		conversationID)
	if err != nil {
		return nil, fmt.Errorf("storage: list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		var ts string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &ts, &m.MetadataJSON); err != nil {
			return nil, fmt.Errorf("storage: scan message row: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		out = append(out, m)
	}
	return out, rows.Err()
}
