package wechat

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
)

// Contact is a friend or a group chat.
type Contact struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Alias   string `json:"alias,omitempty"`
	Avatar  string `json:"avatar,omitempty"`
	IsGroup bool   `json:"isGroup"`
}

const chatroomSuffix = "@chatroom"

const contactsQuery = `
	SELECT username, alias, remark, nick_name, small_head_url
	FROM contact
	WHERE (local_type=1 OR local_type=2 OR local_type=5)
	ORDER BY nick_name`

const legacyContactsQuery = `
	SELECT UserName, Alias, Remark, NickName, ''
	FROM Contact
	WHERE Type != 4
	  AND UserName NOT LIKE 'gh_%'
	  AND UserName NOT IN ('filehelper', 'floatbottle', 'medianote', 'fmessage')
	ORDER BY NickName`

const groupsQuery = `
	SELECT username, alias, remark, nick_name, small_head_url
	FROM contact
	WHERE username LIKE '%@chatroom'
	ORDER BY nick_name`

const legacyGroupsQuery = `
	SELECT UserName, Alias, Remark, NickName, ''
	FROM Contact
	WHERE UserName LIKE '%@chatroom'
	ORDER BY NickName`

// Contacts returns friends (group chats excluded).
func (r *Reader) Contacts(ctx context.Context) ([]Contact, error) {
	all, err := r.queryContacts(ctx, contactsQuery, legacyContactsQuery)
	if err != nil {
		return nil, err
	}
	out := make([]Contact, 0, len(all))
	for _, c := range all {
		if !c.IsGroup {
			out = append(out, c)
		}
	}
	return out, nil
}

// Groups returns group chats.
func (r *Reader) Groups(ctx context.Context) ([]Contact, error) {
	return r.queryContacts(ctx, groupsQuery, legacyGroupsQuery)
}

// queryContacts runs the 4.x query and falls back to the 3.x schema when it
// fails. Every row is cached in the display-name map.
func (r *Reader) queryContacts(ctx context.Context, query, legacy string) ([]Contact, error) {
	rows, err := r.contactDB.QueryContext(ctx, query)
	if err != nil {
		slog.Debug("wechat 4.x contact query failed, trying legacy schema", "error", err)
		var legacyErr error
		rows, legacyErr = r.contactDB.QueryContext(ctx, legacy)
		if legacyErr != nil {
			return nil, fmt.Errorf("querying contacts: %w", err)
		}
	}
	defer rows.Close()

	var out []Contact
	for rows.Next() {
		var id string
		var alias, remark, nick, avatar sql.NullString
		if err := rows.Scan(&id, &alias, &remark, &nick, &avatar); err != nil {
			return nil, fmt.Errorf("scanning contact: %w", err)
		}
		c := Contact{
			ID:      id,
			Name:    displayName(id, remark.String, nick.String),
			Alias:   alias.String,
			Avatar:  avatar.String,
			IsGroup: strings.HasSuffix(id, chatroomSuffix),
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	for _, c := range out {
		r.names[c.ID] = c.Name
	}
	r.mu.Unlock()
	return out, nil
}

func displayName(id, remark, nick string) string {
	if remark != "" {
		return remark
	}
	if nick != "" {
		return nick
	}
	return id
}

// loadNames fills the display-name map once.
func (r *Reader) loadNames(ctx context.Context) error {
	r.mu.RLock()
	loaded := r.namesLoaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	if _, err := r.queryContacts(ctx, contactsQuery, legacyContactsQuery); err != nil {
		return err
	}
	if _, err := r.queryContacts(ctx, groupsQuery, legacyGroupsQuery); err != nil {
		return err
	}
	r.mu.Lock()
	r.namesLoaded = true
	r.mu.Unlock()
	return nil
}

// Name returns the display name of id, or id itself when unknown.
func (r *Reader) Name(ctx context.Context, id string) (string, error) {
	if err := r.loadNames(ctx); err != nil {
		return "", err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if n, ok := r.names[id]; ok {
		return n, nil
	}
	return id, nil
}
