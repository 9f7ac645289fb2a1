package imapx

import "strings"

// FolderCategories groups a server's folder list by role. Names vary
// wildly across servers ("Sent", "INBOX.Sent", "[Gmail]/Sent Mail"), so
// classification is substring-based.
type FolderCategories struct {
	Inbox  string
	Sent   string
	Drafts string
	Trash  string
	Other  []string
}

// CategorizeFolders classifies folder names by role.
func CategorizeFolders(folders []Folder) FolderCategories {
	var c FolderCategories
	for _, f := range folders {
		if f.Name == "" {
			continue
		}
		name := strings.ToLower(f.Name)
		switch {
		case name == "inbox":
			c.Inbox = f.Name
		case strings.Contains(name, "sent"):
			c.Sent = f.Name
		case strings.Contains(name, "draft"):
			c.Drafts = f.Name
		case strings.Contains(name, "trash") || strings.Contains(name, "deleted"):
			c.Trash = f.Name
		default:
			c.Other = append(c.Other, f.Name)
		}
	}
	return c
}

// RecommendedSyncFolders returns the folders worth synchronizing: the
// inbox and the sent folder, when present.
func (c FolderCategories) RecommendedSyncFolders() []string {
	var out []string
	if c.Inbox != "" {
		out = append(out, c.Inbox)
	}
	if c.Sent != "" {
		out = append(out, c.Sent)
	}
	return out
}
