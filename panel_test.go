package main

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withTestStore swaps the global store for a temp-file one.
func withTestStore(t *testing.T) *PanelStore {
	t.Helper()
	old := Store
	Store = &PanelStore{path: filepath.Join(t.TempDir(), "user_data.json")}
	t.Cleanup(func() { Store = old })
	return Store
}

func TestEditPanelReplyEmptyStore(t *testing.T) {
	withTestStore(t)

	// A user with nothing configured is pointed at setup, not told the
	// panel name is wrong.
	assert.Equal(t, ErrStoreNoPanels, editPanelReply("u1", "Main", "New", "", ""))
}

func TestDeletePanelReplyEmptyStore(t *testing.T) {
	withTestStore(t)
	assert.Equal(t, ErrStoreNoPanels, deletePanelReply("u1", "Main"))
}

func TestEditPanelReplyNotFound(t *testing.T) {
	withTestStore(t)
	require.NoError(t, Store.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))

	assert.Equal(t, fmt.Sprintf(ErrStorePanelNotFound, "Other"), editPanelReply("u1", "Other", "New", "", ""))
}

func TestEditPanelReplyNothingToEdit(t *testing.T) {
	withTestStore(t)
	require.NoError(t, Store.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))

	assert.Equal(t, ErrPanelNothingToEdit, editPanelReply("u1", "Main", "", "", ""))
}

func TestEditPanelReplyRename(t *testing.T) {
	withTestStore(t)
	require.NoError(t, Store.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))

	reply := editPanelReply("u1", "Main", "Primary", "", "")
	assert.Equal(t, fmt.Sprintf(MsgPanelRenamed, "Main", "Primary"), reply)

	_, ok := Store.FindPanel("u1", "Primary")
	assert.True(t, ok)
}

func TestDeletePanelReplyDeletes(t *testing.T) {
	withTestStore(t)
	require.NoError(t, Store.AddPanel("u1", Panel{PanelName: "Main", PanelURL: "https://a.example.com", APIKey: "k"}))

	assert.Equal(t, fmt.Sprintf(MsgPanelDeleted, "Main"), deletePanelReply("u1", "Main"))
	assert.Empty(t, Store.GetPanels("u1"))

	// The store is now empty again, so the empty-store reply wins over
	// the not-found one.
	assert.Equal(t, ErrStoreNoPanels, deletePanelReply("u1", "Main"))
}
