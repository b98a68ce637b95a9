package wechat

import (
	"bytes"
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"
)

// SelfSender labels messages sent by the account owner.
const SelfSender = "我"

// DefaultLimit caps the messages returned per chat when no limit is given.
const DefaultLimit = 100

// Message is one chat message.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	IsMe      bool      `json:"isMe"`
}

var typeNames = map[int]string{
	1:     "text",
	3:     "image",
	34:    "voice",
	42:    "contact",
	43:    "video",
	47:    "emoji",
	48:    "location",
	49:    "link",
	50:    "voip",
	10000: "system",
	10002: "revoke",
}

// TypeName maps a WeChat local_type code to a message type.
func TypeName(code int) string {
	if n, ok := typeNames[code]; ok {
		return n
	}
	return "unknown"
}

var tableNameRe = regexp.MustCompile(`^Msg_[a-f0-9]{32}$`)

// TableName returns the message table holding username's history.
func TableName(username string) string {
	sum := md5.Sum([]byte(username))
	return "Msg_" + hex.EncodeToString(sum[:])
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Messages returns up to limit of the most recent messages of username
// created at or after since, oldest first. A zero since reads everything.
func (r *Reader) Messages(ctx context.Context, username string, since time.Time, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	table := TableName(username)
	if !tableNameRe.MatchString(table) {
		return nil, fmt.Errorf("invalid message table name %q", table)
	}
	if err := r.loadNames(ctx); err != nil {
		slog.Warn("loading contact names", "error", err)
	}

	var start int64
	if !since.IsZero() {
		start = since.Unix()
	}

	var all []Message
	for i, db := range r.messageDBs {
		msgs, err := r.readTable(ctx, db, table, username, start, limit)
		if err != nil {
			slog.Warn("reading message database", "index", i, "chat", username, "error", err)
			continue
		}
		all = append(all, msgs...)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Timestamp.Before(all[j].Timestamp) })
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

type rawMessage struct {
	localID    int64
	localType  int
	senderID   sql.NullString
	createTime int64
	content    any
	isSender   bool
}

func (r *Reader) readTable(ctx context.Context, db *sql.DB, table, username string, start int64, limit int) ([]Message, error) {
	var exists string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	// table matched tableNameRe, so interpolating it is safe.
	where := ""
	args := []any{r.selfID}
	if start > 0 {
		where = "WHERE msg.create_time >= ?"
		args = append(args, start)
	}
	args = append(args, limit)
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
		SELECT msg.local_id, msg.local_type, Name2Id.user_name, msg.create_time, msg.message_content,
		       CASE WHEN Name2Id.user_name = ? THEN 1 ELSE 0 END
		FROM %s AS msg
		LEFT JOIN Name2Id ON msg.real_sender_id = Name2Id.rowid
		%s
		ORDER BY msg.create_time DESC LIMIT ?`, table, where), args...)
	if err != nil {
		slog.Debug("Name2Id join failed, reading without sender", "table", table, "error", err)
		where = ""
		args = nil
		if start > 0 {
			where = "WHERE create_time >= ?"
			args = append(args, start)
		}
		args = append(args, limit)
		rows, err = db.QueryContext(ctx, fmt.Sprintf(`
			SELECT local_id, local_type, NULL, create_time, message_content, 0
			FROM %s
			%s
			ORDER BY create_time DESC LIMIT ?`, table, where), args...)
		if err != nil {
			return nil, err
		}
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m rawMessage
		if err := rows.Scan(&m.localID, &m.localType, &m.senderID, &m.createTime, &m.content, &m.isSender); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		out = append(out, r.convert(m, username))
	}
	return out, rows.Err()
}

func (r *Reader) convert(m rawMessage, chatID string) Message {
	sender := SelfSender
	if !m.isSender {
		sender = m.senderID.String
		r.mu.RLock()
		if n, ok := r.names[sender]; ok {
			sender = n
		}
		r.mu.RUnlock()
	}
	return Message{
		ID:        fmt.Sprintf("msg_%d", m.localID),
		ChatID:    chatID,
		Sender:    sender,
		Content:   r.decodeContent(m.content),
		Timestamp: time.Unix(m.createTime, 0),
		Type:      TypeName(m.localType),
		IsMe:      m.isSender,
	}
}

// decodeContent returns text content as is and decompresses zstd blobs.
func (r *Reader) decodeContent(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case []byte:
		if bytes.HasPrefix(c, zstdMagic) {
			out, err := r.dec.DecodeAll(c, nil)
			if err == nil {
				return string(out)
			}
			slog.Debug("zstd decode failed", "error", err)
		}
		return strings.ToValidUTF8(string(c), "")
	default:
		return ""
	}
}
