// Package wechat reads contacts and chat history from a decrypted WeChat
// (4.x, with a fallback for 3.x layouts) database directory.
package wechat

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// ErrNoDatabase is returned by Open when no contact database is found.
var ErrNoDatabase = errors.New("no WeChat contact database found")

const maxMessageDBs = 100

// Reader holds read-only connections to the WeChat databases in one directory.
type Reader struct {
	dir        string
	contactDB  *sql.DB
	sessionDB  *sql.DB
	messageDBs []*sql.DB
	selfID     string
	dec        *zstd.Decoder

	mu          sync.RWMutex
	names       map[string]string
	namesLoaded bool
}

// Status describes what Open found.
type Status struct {
	Initialized    bool `json:"initialized"`
	HasContactDB   bool `json:"hasContactDb"`
	HasSessionDB   bool `json:"hasSessionDb"`
	MessageDBCount int  `json:"messageDbCount"`
	ContactCount   int  `json:"contactCount"`
	DBVersion      int  `json:"dbVersion"`
}

// Open locates and opens the databases under dir.
func Open(dir string) (*Reader, error) {
	r := &Reader{dir: dir, names: make(map[string]string)}

	var err error
	if path := firstExisting(
		filepath.Join(dir, "contact", "contact.db"),
		filepath.Join(dir, "contact.db"),
		filepath.Join(dir, "MicroMsg.db"),
		filepath.Join(dir, "Msg", "MicroMsg.db"),
	); path != "" {
		if r.contactDB, err = openReadOnly(path); err != nil {
			return nil, err
		}
	}
	if r.contactDB == nil {
		return nil, fmt.Errorf("%w in %s", ErrNoDatabase, dir)
	}

	if path := firstExisting(
		filepath.Join(dir, "session", "session.db"),
		filepath.Join(dir, "session.db"),
	); path != "" {
		if r.sessionDB, err = openReadOnly(path); err != nil {
			r.Close()
			return nil, err
		}
	}

	paths := messageDBPaths(dir)
	for _, p := range paths {
		db, err := openReadOnly(p)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.messageDBs = append(r.messageDBs, db)
	}

	if r.dec, err = zstd.NewReader(nil); err != nil {
		r.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	r.selfID = readSelfID(dir)

	slog.Debug("wechat databases opened", "dir", dir, "message_dbs", len(r.messageDBs), "has_session", r.sessionDB != nil)
	return r, nil
}

// messageDBPaths returns message_N.db files (flat, else under message/),
// stopping at the first gap, or the legacy Msg/MSG*.db files.
func messageDBPaths(dir string) []string {
	base := ""
	switch {
	case fileExists(filepath.Join(dir, "message_0.db")):
		base = dir
	case fileExists(filepath.Join(dir, "message")):
		base = filepath.Join(dir, "message")
	}
	if base != "" {
		var out []string
		for i := range maxMessageDBs {
			p := filepath.Join(base, fmt.Sprintf("message_%d.db", i))
			if !fileExists(p) {
				break
			}
			out = append(out, p)
		}
		return out
	}

	entries, err := os.ReadDir(filepath.Join(dir, "Msg"))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() && strings.HasPrefix(name, "MSG") && strings.HasSuffix(name, ".db") {
			out = append(out, filepath.Join(dir, "Msg", name))
		}
	}
	sort.Strings(out)
	return out
}

func openReadOnly(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+filepath.ToSlash(path)+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return db, nil
}

// readSelfID returns the account's own wxid from info.json, or "".
func readSelfID(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "info.json"))
	if err != nil {
		return ""
	}
	var info struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &info); err != nil {
		slog.Debug("unreadable info.json", "error", err)
		return ""
	}
	return info.Username
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if fileExists(p) {
			return p
		}
	}
	return ""
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Status reports which databases were found.
func (r *Reader) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		Initialized:    r.contactDB != nil,
		HasContactDB:   r.contactDB != nil,
		HasSessionDB:   r.sessionDB != nil,
		MessageDBCount: len(r.messageDBs),
		ContactCount:   len(r.names),
		DBVersion:      4,
	}
}

// Close releases all database handles.
func (r *Reader) Close() error {
	var errs []error
	if r.contactDB != nil {
		errs = append(errs, r.contactDB.Close())
	}
	if r.sessionDB != nil {
		errs = append(errs, r.sessionDB.Close())
	}
	for _, db := range r.messageDBs {
		errs = append(errs, db.Close())
	}
	if r.dec != nil {
		r.dec.Close()
	}
	return errors.Join(errs...)
}
