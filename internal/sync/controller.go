package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/relaycrm/mailroom/internal/credential"
	"github.com/relaycrm/mailroom/internal/imapx"
	"github.com/relaycrm/mailroom/internal/importer"
	"github.com/relaycrm/mailroom/internal/mail"
	"github.com/relaycrm/mailroom/internal/model"
	"github.com/relaycrm/mailroom/internal/store"
)

// Session is the slice of the protocol client the controller drives.
// *imapx.Session satisfies it; tests substitute a fake.
type Session interface {
	SelectFolder(name string) (imapx.FolderInfo, error)
	SearchUIDs(c imapx.SearchCriteria) ([]uint32, error)
	Fetch(uids []uint32) ([]mail.RawMessage, error)
	ListFolders() ([]imapx.Folder, error)
	Close() error
}

// DialFunc opens an authenticated session.
type DialFunc func(cfg imapx.Config) (Session, error)

// IMAPDialer adapts imapx.Dial to DialFunc.
func IMAPDialer(log zerolog.Logger) DialFunc {
	return func(cfg imapx.Config) (Session, error) {
		s, err := imapx.Dial(cfg, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Controller orchestrates synchronization across mailboxes: scheduled
// incremental syncs, resumable bulk imports, and on-demand reparsing.
type Controller struct {
	store    store.Store
	creds    credential.Provider
	dial     DialFunc
	importer *importer.Importer
	cfg      model.SyncConfig
	log      zerolog.Logger

	// now is the clock used for budget accounting.
	now func() time.Time
}

func NewController(
	st store.Store,
	creds credential.Provider,
	dial DialFunc,
	cfg model.SyncConfig,
	log zerolog.Logger,
) *Controller {
	return &Controller{
		store:    st,
		creds:    creds,
		dial:     dial,
		importer: importer.New(st, log),
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// MailboxResult is the per-mailbox outcome of one sync run.
type MailboxResult struct {
	MailboxID      string   `json:"mailbox_id"`
	Email          string   `json:"email"`
	Success        bool     `json:"success"`
	EmailsImported int      `json:"emails_imported"`
	EmailsSkipped  int      `json:"emails_skipped"`
	FoldersSynced  []string `json:"folders_synced"`
	Errors         []string `json:"errors,omitempty"`
	DurationMS     int64    `json:"duration_ms"`
}

// SyncSummary aggregates a whole run.
type SyncSummary struct {
	Mailboxes       []MailboxResult `json:"mailboxes"`
	TotalImported   int             `json:"total_imported"`
	TotalSkipped    int             `json:"total_skipped"`
	FailedMailboxes int             `json:"failed_mailboxes"`
	DurationMS      int64           `json:"duration_ms"`
}

// SyncAll runs an incremental sync over every active mailbox. Mailboxes
// are processed in bounded parallel slices; one mailbox failing never
// aborts the others.
func (c *Controller) SyncAll(ctx context.Context) (*SyncSummary, error) {
	start := c.now()

	mailboxes, err := c.store.GetActiveMailboxes(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active mailboxes: %w", err)
	}

	concurrency := c.cfg.MaxConcurrentMailboxes
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]MailboxResult, len(mailboxes))
	for base := 0; base < len(mailboxes); base += concurrency {
		end := base + concurrency
		if end > len(mailboxes) {
			end = len(mailboxes)
		}

		var wg sync.WaitGroup
		for i := base; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = c.syncMailbox(ctx, &mailboxes[i])
			}(i)
		}
		wg.Wait()
	}

	summary := &SyncSummary{Mailboxes: results}
	for _, r := range results {
		summary.TotalImported += r.EmailsImported
		summary.TotalSkipped += r.EmailsSkipped
		if !r.Success {
			summary.FailedMailboxes++
		}
	}
	summary.DurationMS = c.now().Sub(start).Milliseconds()

	c.log.Info().
		Int("mailboxes", len(mailboxes)).
		Int("imported", summary.TotalImported).
		Int("failed", summary.FailedMailboxes).
		Int64("duration_ms", summary.DurationMS).
		Msg("sync run complete")
	return summary, nil
}

// syncMailbox runs one incremental pass over a mailbox's folders,
// advancing each folder's watermark after its messages are imported.
func (c *Controller) syncMailbox(ctx context.Context, m *model.Mailbox) MailboxResult {
	start := c.now()
	result := MailboxResult{MailboxID: m.ID, Email: m.Email, Success: true}

	session, err := c.connect(m)
	if err != nil {
		result.Success = false
		result.Errors = append(result.Errors, err.Error())
		result.DurationMS = c.now().Sub(start).Milliseconds()
		c.log.Error().Str("mailbox", m.Email).Err(err).Msg("mailbox connection failed")
		if serr := c.store.SetSyncOutcome(ctx, m.ID, false, err.Error()); serr != nil {
			c.log.Error().Str("mailbox", m.Email).Err(serr).Msg("recording sync outcome failed")
		}
		return result
	}
	defer session.Close()

	parser := mail.NewParser(mail.ParserOptions{SentFolders: c.cfg.SentFolders})
	policy := mail.DedupPolicy{InternalDomains: c.cfg.InternalDomains}

	for _, folder := range c.syncFolders(m) {
		outcome, err := c.syncFolder(ctx, session, parser, policy, m, folder)
		result.EmailsImported += outcome.imported
		result.EmailsSkipped += outcome.skipped
		result.Errors = append(result.Errors, outcome.errs...)
		if err != nil {
			result.Success = false
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", folder, err))
			c.log.Warn().Str("mailbox", m.Email).Str("folder", folder).Err(err).Msg("folder sync failed")
			continue
		}
		result.FoldersSynced = append(result.FoldersSynced, folder)
	}

	if result.Success {
		if err := c.store.SetSyncOutcome(ctx, m.ID, true, ""); err != nil {
			c.log.Error().Str("mailbox", m.Email).Err(err).Msg("recording sync outcome failed")
		}
	}

	result.DurationMS = c.now().Sub(start).Milliseconds()
	return result
}

// syncFolder imports at most IncrementalBatchSize new messages above the
// folder's watermark, then advances the watermark. The watermark only
// moves after the messages behind it are imported, so a crash between
// fetch and import re-fetches rather than skips.
func (c *Controller) syncFolder(
	ctx context.Context,
	session Session,
	parser *mail.Parser,
	policy mail.DedupPolicy,
	m *model.Mailbox,
	folder string,
) (batchOutcome, error) {
	watermark, err := c.store.GetLastSyncedUID(ctx, m.ID, folder)
	if err != nil {
		return batchOutcome{}, fmt.Errorf("reading watermark: %w", err)
	}

	if _, err := session.SelectFolder(folder); err != nil {
		return batchOutcome{}, err
	}

	uids, err := session.SearchUIDs(imapx.SearchCriteria{StartUID: watermark})
	if err != nil {
		return batchOutcome{}, err
	}
	if len(uids) == 0 {
		return batchOutcome{}, nil
	}

	limit := c.cfg.IncrementalBatchSize
	if limit <= 0 {
		limit = 1
	}
	if len(uids) > limit {
		uids = uids[:limit]
	}

	outcome, err := c.processMessages(ctx, session, parser, policy, m, folder, uids)
	if err != nil {
		return outcome, err
	}

	if outcome.maxUID > watermark {
		err = c.store.SetLastSyncedUID(ctx, m.ID, folder, outcome.maxUID, true, "")
		if err != nil {
			return outcome, fmt.Errorf("advancing watermark: %w", err)
		}
	}
	return outcome, nil
}

// batchOutcome tallies one processed batch.
type batchOutcome struct {
	imported   int
	duplicates int
	skipped    int
	failed     int
	errs       []string
	maxUID     uint32
}

func (o batchOutcome) processed() int {
	return o.imported + o.duplicates + o.skipped + o.failed
}

// processMessages fetches and imports one batch of UIDs. Individual
// message failures are counted, logged, and do not abort the batch; the
// returned maxUID covers every message that was handled, including
// skipped and failed ones, so they are not refetched forever.
func (c *Controller) processMessages(
	ctx context.Context,
	session Session,
	parser *mail.Parser,
	policy mail.DedupPolicy,
	m *model.Mailbox,
	folder string,
	uids []uint32,
) (batchOutcome, error) {
	var out batchOutcome

	raws, err := session.Fetch(uids)
	if err != nil {
		return out, err
	}

	for _, raw := range raws {
		if raw.UID > out.maxUID {
			out.maxUID = raw.UID
		}

		pm, err := parser.Parse(raw, m.Email, folder)
		if err != nil {
			out.failed++
			out.errs = append(out.errs, err.Error())
			c.log.Warn().Str("folder", folder).Uint32("uid", raw.UID).Err(err).Msg("parse failed")
			continue
		}
		if err := parser.Validate(pm); err != nil {
			out.failed++
			out.errs = append(out.errs, err.Error())
			c.log.Warn().Str("folder", folder).Uint32("uid", raw.UID).Err(err).Msg("validation failed")
			continue
		}

		if !policy.ShouldImport(pm.Direction, pm.To, pm.Cc, m.Email) {
			out.skipped++
			continue
		}

		res, err := c.importer.Import(ctx, pm, m)
		if err != nil {
			out.failed++
			out.errs = append(out.errs, err.Error())
			c.log.Error().Str("folder", folder).Uint32("uid", raw.UID).Err(err).Msg("import failed")
			continue
		}
		if res.Created {
			out.imported++
		} else {
			out.duplicates++
		}
	}

	return out, nil
}

// syncFolders returns the folders to sync for a mailbox.
func (c *Controller) syncFolders(m *model.Mailbox) []string {
	if len(c.cfg.DefaultFolders) > 0 {
		return c.cfg.DefaultFolders
	}
	return []string{"INBOX"}
}

// connect resolves credentials and dials the mailbox's server.
func (c *Controller) connect(m *model.Mailbox) (Session, error) {
	password, err := c.creds.Password(m.ID)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials for %s: %w", m.Email, err)
	}

	session, err := c.dial(imapx.Config{
		Host:                   m.IMAPHost,
		Port:                   m.IMAPPort,
		Username:               m.LoginUsername(),
		Password:               password,
		FetchChunkSize:         c.cfg.FetchChunkSize,
		OversizeThresholdBytes: c.cfg.OversizeThresholdBytes,
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

// TestMailbox verifies connectivity and authentication by opening a
// session and selecting the inbox.
func (c *Controller) TestMailbox(ctx context.Context, mailboxID string) error {
	m, err := c.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return err
	}

	session, err := c.connect(m)
	if err != nil {
		return err
	}
	defer session.Close()

	if _, err := session.SelectFolder("INBOX"); err != nil {
		return err
	}
	return nil
}

// ListFolders lists and categorizes a mailbox's folders.
func (c *Controller) ListFolders(ctx context.Context, mailboxID string) (imapx.FolderCategories, error) {
	m, err := c.store.GetMailbox(ctx, mailboxID)
	if err != nil {
		return imapx.FolderCategories{}, err
	}

	session, err := c.connect(m)
	if err != nil {
		return imapx.FolderCategories{}, err
	}
	defer session.Close()

	folders, err := session.ListFolders()
	if err != nil {
		return imapx.FolderCategories{}, err
	}
	return imapx.CategorizeFolders(folders), nil
}
