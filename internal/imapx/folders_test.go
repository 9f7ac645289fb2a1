package imapx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategorizeFolders(t *testing.T) {
	folders := []Folder{
		{Name: "INBOX"},
		{Name: "INBOX.Sent"},
		{Name: "INBOX.Drafts"},
		{Name: "INBOX.Trash"},
		{Name: "INBOX.Archive"},
		{Name: "Newsletters"},
	}

	c := CategorizeFolders(folders)
	assert.Equal(t, "INBOX", c.Inbox)
	assert.Equal(t, "INBOX.Sent", c.Sent)
	assert.Equal(t, "INBOX.Drafts", c.Drafts)
	assert.Equal(t, "INBOX.Trash", c.Trash)
	assert.Equal(t, []string{"INBOX.Archive", "Newsletters"}, c.Other)
}

func TestCategorizeFoldersGmailStyle(t *testing.T) {
	c := CategorizeFolders([]Folder{
		{Name: "INBOX"},
		{Name: "[Gmail]/Sent Mail"},
		{Name: "[Gmail]/Deleted Items"},
	})
	assert.Equal(t, "[Gmail]/Sent Mail", c.Sent)
	assert.Equal(t, "[Gmail]/Deleted Items", c.Trash)
}

func TestRecommendedSyncFolders(t *testing.T) {
	c := FolderCategories{Inbox: "INBOX", Sent: "INBOX.Sent"}
	assert.Equal(t, []string{"INBOX", "INBOX.Sent"}, c.RecommendedSyncFolders())

	assert.Equal(t, []string{"INBOX"}, FolderCategories{Inbox: "INBOX"}.RecommendedSyncFolders())
	assert.Empty(t, FolderCategories{}.RecommendedSyncFolders())
}
