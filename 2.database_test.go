package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *PanelStore {
	t.Helper()
	return &PanelStore{path: filepath.Join(t.TempDir(), "user_data.json")}
}

func TestPanelStoreAddAndGet(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k1"}))
	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Backup", PanelURL: "https://b.example.com", APIKey: "k2"}))

	panels := s.GetPanels("u1")
	require.Len(t, panels, 2)
	assert.Equal(t, "Main", panels[0].PanelName)
	assert.Equal(t, "Backup", panels[1].PanelName)

	assert.Empty(t, s.GetPanels("u2"))
}

func TestPanelStoreDuplicateName(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))

	err := s.AddPanel("u1", Panel{PanelName: "MAIN", PanelURL: "https://other.example.com", APIKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAIN")

	// Another user may reuse the name freely.
	assert.NoError(t, s.AddPanel("u2", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))
}

func TestPanelStoreDuplicateURL(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))

	err := s.AddPanel("u1", Panel{PanelName: "Other", PanelURL: "https://a.example.com", APIKey: "k"})
	require.Error(t, err)
	assert.Len(t, s.GetPanels("u1"), 1)
}

func TestPanelStoreFindPanel(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))

	p, ok := s.FindPanel("u1", "main")
	require.True(t, ok)
	assert.Equal(t, "Main", p.PanelName)

	_, ok = s.FindPanel("u1", "nope")
	assert.False(t, ok)
}

func TestPanelStoreEditPartialUpdate(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k1"}))

	// Only the key changes; name and URL keep their values.
	updated, err := s.EditPanel("u1", "Main", "", "", "k2")
	require.NoError(t, err)
	assert.Equal(t, "Main", updated.PanelName)
	assert.Equal(t, "https://a.example.com", updated.PanelURL)
	assert.Equal(t, "k2", updated.APIKey)

	// Only the name changes.
	updated, err = s.EditPanel("u1", "main", "Primary", "", "")
	require.NoError(t, err)
	assert.Equal(t, "Primary", updated.PanelName)
	assert.Equal(t, "k2", updated.APIKey)
}

func TestPanelStoreEditCollisions(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))
	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Backup", PanelURL: "https://b.example.com", APIKey: "k"}))

	_, err := s.EditPanel("u1", "Backup", "main", "", "")
	assert.Error(t, err)

	_, err = s.EditPanel("u1", "Backup", "", "https://a.example.com", "")
	assert.Error(t, err)

	// Re-asserting a panel's own name is not a collision.
	_, err = s.EditPanel("u1", "Backup", "Backup", "", "")
	assert.NoError(t, err)

	_, err = s.EditPanel("u1", "missing", "X", "", "")
	assert.Error(t, err)
}

func TestPanelStoreDeletePanel(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))
	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Backup", PanelURL: "https://b.example.com", APIKey: "k"}))

	require.NoError(t, s.DeletePanel("u1", "MAIN"))
	panels := s.GetPanels("u1")
	require.Len(t, panels, 1)
	assert.Equal(t, "Backup", panels[0].PanelName)

	assert.Error(t, s.DeletePanel("u1", "Main"))
}

func TestPanelStoreDeleteAll(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.DeleteAll("u1"))

	require.NoError(t, s.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))
	assert.True(t, s.DeleteAll("u1"))
	assert.Empty(t, s.GetPanels("u1"))
	assert.False(t, s.DeleteAll("u1"))
}

func TestPanelStorePersistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")
	s1 := &PanelStore{path: path}
	require.NoError(t, s1.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))

	// A fresh store over the same file sees the saved data.
	s2 := &PanelStore{path: path}
	panels := s2.GetPanels("u1")
	require.Len(t, panels, 1)
	assert.Equal(t, "Main", panels[0].PanelName)
}

func TestPanelStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "user_data.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	s := &PanelStore{path: path}
	assert.Empty(t, s.GetPanels("u1"))
	assert.NoError(t, s.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))
}
