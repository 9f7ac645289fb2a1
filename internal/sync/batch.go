package sync

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/relaycrm/mailroom/internal/imapx"
	"github.com/relaycrm/mailroom/internal/mail"
	"github.com/relaycrm/mailroom/internal/model"
)

// resumeState is the decoded position of a bulk import.
type resumeState struct {
	Folder  string
	LastUID uint32
	Batch   int
}

// parseResumeToken decodes "folder:lastUid:batchNumber". Folder names may
// themselves contain colons, so the numeric fields are taken from the
// right.
func parseResumeToken(token string) (resumeState, error) {
	parts := strings.Split(token, ":")
	if len(parts) < 3 {
		return resumeState{}, fmt.Errorf("malformed resume token %q", token)
	}

	batch, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return resumeState{}, fmt.Errorf("malformed resume token %q: %w", token, err)
	}
	lastUID, err := strconv.ParseUint(parts[len(parts)-2], 10, 32)
	if err != nil {
		return resumeState{}, fmt.Errorf("malformed resume token %q: %w", token, err)
	}

	return resumeState{
		Folder:  strings.Join(parts[:len(parts)-2], ":"),
		LastUID: uint32(lastUID),
		Batch:   batch,
	}, nil
}

func (s resumeState) token() string {
	return fmt.Sprintf("%s:%d:%d", s.Folder, s.LastUID, s.Batch)
}

// BatchOptions tunes one bulk-import invocation.
type BatchOptions struct {
	// Folders overrides the configured sync folders.
	Folders []string

	// Since and Before bound the import by delivery date. Zero values
	// leave the corresponding bound open.
	Since  time.Time
	Before time.Time

	// ResumeToken continues a previous invocation.
	ResumeToken string
}

// BatchResult reports one bulk-import invocation.
type BatchResult struct {
	MailboxID string `json:"mailbox_id"`

	// ResumeToken resumes the import where this invocation stopped.
	// Empty once the import has completed.
	ResumeToken string `json:"resume_token,omitempty"`

	Processed  int `json:"processed"`
	Imported   int `json:"total_imported"`
	Duplicates int `json:"duplicates"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Batches    int `json:"batches"`

	// NextFolder is the folder the next invocation will continue in.
	NextFolder string `json:"next_folder,omitempty"`

	// Errors lists per-message failures; they never abort the batch.
	Errors []string `json:"errors,omitempty"`

	// Completed means every folder has been drained.
	Completed bool `json:"completed"`

	// BudgetExhausted means the invocation stopped on the wall-clock
	// ceiling rather than on completion.
	BudgetExhausted bool `json:"budget_exhausted"`

	DurationMS int64 `json:"duration_ms"`
}

// BatchImport runs a resumable bulk import of a mailbox's history. It
// drains the configured folders batch by batch until either every folder
// is exhausted or the wall-clock budget runs out, whichever comes first.
// The budget is checked before each batch, never mid-batch, so a batch
// that has started always finishes and persists its watermark.
//
// An empty resume token starts from the beginning, or picks up an
// in-progress import recorded on the mailbox row.
func (c *Controller) BatchImport(ctx context.Context, mailboxID string, opts BatchOptions) (*BatchResult, error) {
	start := c.now()
	budget := time.Duration(c.cfg.TimeBudgetMS) * time.Millisecond

	m, err := c.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return nil, err
	}

	folders := opts.Folders
	if len(folders) == 0 {
		folders = c.syncFolders(m)
	}
	if len(folders) == 0 {
		return nil, fmt.Errorf("no folders configured for mailbox %s", m.Email)
	}
	state, totalProcessed, err := c.resumePosition(m, opts.ResumeToken)
	if err != nil {
		return nil, err
	}
	if state.Folder == "" {
		state.Folder = folders[0]
	}

	// A resume position naming a folder outside the current sync set,
	// typically after a folder rename or a config change, restarts from
	// the first folder instead of wedging the import.
	folderIdx := indexOf(folders, state.Folder)
	if folderIdx < 0 {
		c.log.Warn().
			Str("mailbox", m.Email).
			Str("folder", state.Folder).
			Msg("resume folder no longer in the sync set, restarting from the first folder")
		folderIdx = 0
		state = resumeState{Folder: folders[0]}
	}

	session, err := c.connect(m)
	if err != nil {
		if serr := c.store.SetSyncOutcome(ctx, m.ID, false, err.Error()); serr != nil {
			c.log.Error().Str("mailbox", m.Email).Err(serr).Msg("recording sync outcome failed")
		}
		return nil, err
	}
	defer session.Close()

	parser := mail.NewParser(mail.ParserOptions{SentFolders: c.cfg.SentFolders})
	policy := mail.DedupPolicy{InternalDomains: c.cfg.InternalDomains}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	result := &BatchResult{MailboxID: m.ID}
	selectedFolder := ""

	// A folder that cannot be selected or searched is recorded and
	// skipped; the remaining folders still get drained.
	skipFolder := func(err error) {
		result.Errors = append(result.Errors, err.Error())
		folderIdx++
		if folderIdx < len(folders) {
			state = resumeState{Folder: folders[folderIdx]}
		}
	}

	for folderIdx < len(folders) {
		if c.now().Sub(start) >= budget {
			result.BudgetExhausted = true
			break
		}

		folder := folders[folderIdx]
		if folder != selectedFolder {
			if _, err := session.SelectFolder(folder); err != nil {
				c.log.Warn().
					Str("mailbox", m.Email).
					Str("folder", folder).
					Err(err).
					Msg("selecting folder failed, skipping it")
				skipFolder(err)
				continue
			}
			selectedFolder = folder
		}

		uids, err := session.SearchUIDs(imapx.SearchCriteria{
			StartUID: state.LastUID,
			Since:    opts.Since,
			Before:   opts.Before,
		})
		if err != nil {
			c.log.Warn().
				Str("mailbox", m.Email).
				Str("folder", folder).
				Err(err).
				Msg("searching folder failed, skipping it")
			skipFolder(err)
			continue
		}
		// The search reports every remaining identifier, so a result
		// within the batch limit means this batch drains the folder.
		exhausted := len(uids) <= batchSize
		if len(uids) > batchSize {
			uids = uids[:batchSize]
		}

		if len(uids) > 0 {
			outcome, err := c.processMessages(ctx, session, parser, policy, m, folder, uids)
			if err != nil {
				return nil, err
			}

			result.Processed += outcome.processed()
			result.Imported += outcome.imported
			result.Duplicates += outcome.duplicates
			result.Skipped += outcome.skipped
			result.Failed += outcome.failed
			result.Errors = append(result.Errors, outcome.errs...)
			result.Batches++
			totalProcessed += outcome.processed()

			if outcome.maxUID > state.LastUID {
				state.LastUID = outcome.maxUID
			}
			state.Batch++

			// Persist progress only after the batch imported cleanly,
			// so a crash replays the batch instead of skipping it.
			err = c.store.SetLastSyncedUID(ctx, m.ID, folder, state.LastUID, true, "")
			if err != nil {
				return nil, fmt.Errorf("advancing watermark: %w", err)
			}
			err = c.store.SetLegacyImportStatus(ctx, m.ID, &model.LegacyImportStatus{
				Folder:         folder,
				LastUID:        state.LastUID,
				TotalProcessed: totalProcessed,
				InProgress:     true,
			})
			if err != nil {
				return nil, fmt.Errorf("recording import progress: %w", err)
			}

			c.log.Info().
				Str("mailbox", m.Email).
				Str("folder", folder).
				Int("batch", state.Batch).
				Int("imported", outcome.imported).
				Uint32("watermark", state.LastUID).
				Msg("import batch complete")
		}

		if exhausted {
			folderIdx++
			if folderIdx < len(folders) {
				state = resumeState{Folder: folders[folderIdx]}
			}
		}
	}

	result.DurationMS = c.now().Sub(start).Milliseconds()

	if folderIdx >= len(folders) {
		result.Completed = true
		completedAt := c.now().UTC()
		err = c.store.SetLegacyImportStatus(ctx, m.ID, &model.LegacyImportStatus{
			Folder:         state.Folder,
			LastUID:        state.LastUID,
			TotalProcessed: totalProcessed,
			InProgress:     false,
			CompletedAt:    &completedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("recording import completion: %w", err)
		}
		c.log.Info().
			Str("mailbox", m.Email).
			Int("total_processed", totalProcessed).
			Msg("bulk import complete")
	} else {
		result.ResumeToken = state.token()
		result.NextFolder = state.Folder
	}

	return result, nil
}

// resumePosition decides where a bulk import starts: the explicit token
// wins, then any in-progress state on the mailbox row, then from
// scratch. The caller maps an empty folder onto its first sync folder.
func (c *Controller) resumePosition(m *model.Mailbox, token string) (resumeState, int, error) {
	if token != "" {
		state, err := parseResumeToken(token)
		if err != nil {
			return resumeState{}, 0, err
		}
		prior := 0
		if li := m.SyncStatus.LegacyImport; li != nil {
			prior = li.TotalProcessed
		}
		return state, prior, nil
	}

	if li := m.SyncStatus.LegacyImport; li != nil && li.InProgress {
		return resumeState{Folder: li.Folder, LastUID: li.LastUID}, li.TotalProcessed, nil
	}

	return resumeState{}, 0, nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
