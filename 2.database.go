package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joho/godotenv"
	_ "github.com/mattn/go-sqlite3"
)

// --- Configuration ---

type Config struct {
	DiscordToken   string
	GuildID        string // dev guild; empty means global registration
	DatabasePath   string
	PanelStorePath string
	Silent         bool
}

var AppConfig *Config

func LoadConfig() error {
	_ = godotenv.Load()

	AppConfig = &Config{
		DiscordToken:   os.Getenv("DISCORD_TOKEN"),
		GuildID:        os.Getenv("GUILD_ID"),
		DatabasePath:   os.Getenv("DATABASE_PATH"),
		PanelStorePath: os.Getenv("PANEL_STORE_PATH"),
		Silent:         strings.ToLower(os.Getenv("SILENT")) == "true",
	}

	if AppConfig.DatabasePath == "" {
		AppConfig.DatabasePath = GetProjectName() + ".db"
	}
	if AppConfig.PanelStorePath == "" {
		AppConfig.PanelStorePath = "user_data.json"
	}

	return AppConfig.Validate()
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	if err != nil {
		return "roc"
	}
	name := filepath.Base(exePath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// --- Database (bot state) ---

var DB *sql.DB

func InitDatabase() error {
	db, err := sql.Open("sqlite3", AppConfig.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := map[string]string{
		"journal_mode": "WAL",
		"synchronous":  "NORMAL",
		"busy_timeout": "5000",
	}
	for k, v := range pragmas {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA %s=%s;", k, v)); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, k, err)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS bot_config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`); err != nil {
		return fmt.Errorf(MsgDatabaseTableError, err)
	}

	DB = db
	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		_ = DB.Close()
	}
}

func GetBotConfig(key string) (string, error) {
	var value string
	err := DB.QueryRow("SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(key, value string) error {
	_, err := DB.Exec(
		"INSERT INTO bot_config (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// --- Panel Store ---

// Panel holds one saved panel credential set.
type Panel struct {
	PanelName string `json:"panelName"`
	PanelURL  string `json:"panelUrl"`
	APIKey    string `json:"apiKey"`
}

// PanelStore persists per-user panel credentials as a single JSON file
// keyed by Discord user ID. Every mutation rewrites the whole file.
type PanelStore struct {
	path string
	mu   sync.Mutex
}

var Store *PanelStore

func InitPanelStore() {
	Store = &PanelStore{path: AppConfig.PanelStorePath}
	data := Store.readAll()
	LogStore(MsgStoreLoaded, len(data))
}

func (s *PanelStore) readAll() map[string][]Panel {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		// Missing or unreadable file means an empty store.
		return map[string][]Panel{}
	}
	var data map[string][]Panel
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string][]Panel{}
	}
	if data == nil {
		data = map[string][]Panel{}
	}
	return data
}

// writeAll persists the full store. A write failure is fatal for the
// process: continuing would silently drop user credentials.
func (s *PanelStore) writeAll(data map[string][]Panel) {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		LogFatal(MsgStoreWriteFail, err)
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		LogFatal(MsgStoreWriteFail, err)
	}
}

// GetPanels returns all panels saved for a user, in insertion order.
func (s *PanelStore) GetPanels(userID string) []Panel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll()[userID]
}

// FindPanel resolves a panel by name, case-insensitively.
func (s *PanelStore) FindPanel(userID, name string) (Panel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.readAll()[userID] {
		if strings.EqualFold(p.PanelName, name) {
			return p, true
		}
	}
	return Panel{}, false
}

// AddPanel appends a panel after enforcing per-user uniqueness of both
// the URL and the name (name matching is case-insensitive).
func (s *PanelStore) AddPanel(userID string, panel Panel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.readAll()
	for _, p := range data[userID] {
		if p.PanelURL == panel.PanelURL {
			return fmt.Errorf(ErrStoreDuplicateURL)
		}
	}
	for _, p := range data[userID] {
		if strings.EqualFold(p.PanelName, panel.PanelName) {
			return fmt.Errorf(ErrStoreDuplicateName, panel.PanelName)
		}
	}

	data[userID] = append(data[userID], panel)
	s.writeAll(data)
	return nil
}

// EditPanel applies a partial update to the named panel. Empty fields
// keep their current value. Renames are checked against the user's
// other panels only.
func (s *PanelStore) EditPanel(userID, name string, newName, newURL, newKey string) (Panel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.readAll()
	panels := data[userID]
	idx := -1
	for i, p := range panels {
		if strings.EqualFold(p.PanelName, name) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return Panel{}, fmt.Errorf(ErrStorePanelNotFound, name)
	}

	if newName != "" {
		for i, p := range panels {
			if i != idx && strings.EqualFold(p.PanelName, newName) {
				return Panel{}, fmt.Errorf(ErrStoreDuplicateName, newName)
			}
		}
		panels[idx].PanelName = newName
	}
	if newURL != "" {
		for i, p := range panels {
			if i != idx && p.PanelURL == newURL {
				return Panel{}, fmt.Errorf(ErrStoreDuplicateURL)
			}
		}
		panels[idx].PanelURL = newURL
	}
	if newKey != "" {
		panels[idx].APIKey = newKey
	}

	data[userID] = panels
	s.writeAll(data)
	return panels[idx], nil
}

// DeletePanel removes the named panel for a user.
func (s *PanelStore) DeletePanel(userID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.readAll()
	panels := data[userID]
	idx := -1
	for i, p := range panels {
		if strings.EqualFold(p.PanelName, name) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf(ErrStorePanelNotFound, name)
	}

	panels = append(panels[:idx], panels[idx+1:]...)
	if len(panels) == 0 {
		delete(data, userID)
	} else {
		data[userID] = panels
	}
	s.writeAll(data)
	return nil
}

// DeleteAll wipes every panel a user has saved. Returns false when the
// user had nothing stored.
func (s *PanelStore) DeleteAll(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := s.readAll()
	if _, ok := data[userID]; !ok {
		return false
	}
	delete(data, userID)
	s.writeAll(data)
	return true
}
