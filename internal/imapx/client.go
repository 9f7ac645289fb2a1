package imapx

import (
	"fmt"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/rs/zerolog"

	"github.com/relaycrm/mailroom/internal/mail"
)

// Config describes one mail-server session.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string

	// FetchChunkSize is how many messages each fetch round trip
	// requests. Degenerate case is one per round trip.
	FetchChunkSize int

	// OversizeThresholdBytes is the body size above which inline
	// decoding is skipped and the body is carried raw.
	OversizeThresholdBytes int
}

// FolderInfo describes a selected folder.
type FolderInfo struct {
	Name         string
	MessageCount uint32
}

// Folder is one entry from a folder listing.
type Folder struct {
	Name  string
	Attrs []string
}

// SearchCriteria composes a UID search. A StartUID watermark becomes
// "uid greater than StartUID"; date bounds may be combined; the zero
// value means all messages in the folder.
type SearchCriteria struct {
	StartUID uint32
	Since    time.Time
	Before   time.Time
}

// Session is one authenticated connection to a mail server. Sessions are
// scoped to a single sync invocation and never pooled or shared; the
// caller must Close on every exit path.
type Session struct {
	client *imapclient.Client
	cfg    Config
	folder string
	log    zerolog.Logger
}

// dialStrategy is one entry in the ordered transport strategy list.
type dialStrategy struct {
	name string
	dial func(addr string) (*imapclient.Client, error)
}

// Dial connects and authenticates. Transports are tried in order,
// implicit TLS first, then plaintext upgraded via STARTTLS; both
// failures are combined into one TransportError when neither works.
func Dial(cfg Config, log zerolog.Logger) (*Session, error) {
	addr := cfg.Host + ":" + strconv.Itoa(cfg.Port)

	strategies := []dialStrategy{
		{"implicit-tls", func(addr string) (*imapclient.Client, error) {
			return imapclient.DialTLS(addr, nil)
		}},
		{"starttls", func(addr string) (*imapclient.Client, error) {
			return imapclient.DialStartTLS(addr, nil)
		}},
	}

	var client *imapclient.Client
	var attempts []error
	for _, s := range strategies {
		c, err := s.dial(addr)
		if err == nil {
			client = c
			break
		}
		attempts = append(attempts, fmt.Errorf("%s: %w", s.name, err))
		log.Debug().Str("transport", s.name).Err(err).Msg("dial attempt failed")
	}
	if client == nil {
		return nil, &TransportError{Addr: addr, Attempts: attempts}
	}

	if err := client.Login(cfg.Username, cfg.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &AuthError{Username: cfg.Username, Err: err}
	}

	return &Session{client: client, cfg: cfg, log: log}, nil
}

// Close logs out and releases the connection. Safe to call on every exit
// path; logout failures are swallowed because the session is done either
// way.
func (s *Session) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Logout().Wait()
	s.client = nil
	if err != nil {
		s.log.Debug().Err(err).Msg("logout failed")
	}
	return nil
}

// SelectFolder selects a folder and reports its message count.
func (s *Session) SelectFolder(name string) (FolderInfo, error) {
	data, err := s.client.Select(name, nil).Wait()
	if err != nil {
		return FolderInfo{}, &FolderError{Folder: name, Err: err}
	}
	s.folder = name
	return FolderInfo{Name: name, MessageCount: data.NumMessages}, nil
}

// SearchUIDs runs a UID search in the selected folder.
func (s *Session) SearchUIDs(c SearchCriteria) ([]uint32, error) {
	criteria := &imap.SearchCriteria{}

	if c.StartUID > 0 {
		criteria.UID = []imap.UIDSet{
			{imap.UIDRange{Start: imap.UID(c.StartUID + 1), Stop: 0}},
		}
	}
	if !c.Since.IsZero() {
		criteria.Since = c.Since
	}
	if !c.Before.IsZero() {
		criteria.Before = c.Before
	}

	data, err := s.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", s.folder, err)
	}

	uids := data.AllUIDs()
	out := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		out = append(out, uint32(uid))
	}
	return out, nil
}

// Fetch retrieves messages in chunks of FetchChunkSize. A failed chunk is
// logged and skipped; it never aborts the remaining chunks.
func (s *Session) Fetch(uids []uint32) ([]mail.RawMessage, error) {
	chunkSize := s.cfg.FetchChunkSize
	if chunkSize <= 0 {
		chunkSize = 1
	}

	var messages []mail.RawMessage
	for start := 0; start < len(uids); start += chunkSize {
		end := start + chunkSize
		if end > len(uids) {
			end = len(uids)
		}

		chunk, err := s.fetchChunk(uids[start:end])
		if err != nil {
			s.log.Warn().
				Str("folder", s.folder).
				Uints32("uids", uids[start:end]).
				Err(err).
				Msg("fetch chunk failed, continuing")
			continue
		}
		messages = append(messages, chunk...)
	}

	return messages, nil
}

// Body sections requested per message. Different servers populate
// different parts, so extraction tries them in a fixed order.
var (
	sectionHeader = &imap.FetchItemBodySection{Specifier: imap.PartSpecifierHeader, Peek: true}
	sectionText   = &imap.FetchItemBodySection{Specifier: imap.PartSpecifierText, Peek: true}
	sectionPart1  = &imap.FetchItemBodySection{Part: []int{1}, Peek: true}
	sectionPart2  = &imap.FetchItemBodySection{Part: []int{2}, Peek: true}
	sectionPart11 = &imap.FetchItemBodySection{Part: []int{1, 1}, Peek: true}
	sectionPart12 = &imap.FetchItemBodySection{Part: []int{1, 2}, Peek: true}
	sectionFull   = &imap.FetchItemBodySection{Peek: true}
)

// bodyFallbackOrder is the fixed order body extraction tries: the full
// text section, then the conventional positional parts including the
// nested multipart/alternative children.
var bodyFallbackOrder = []*imap.FetchItemBodySection{
	sectionText, sectionPart1, sectionPart2, sectionPart11, sectionPart12,
}

// firstBodySection returns the first non-empty section in fallback
// order. The lookup is injected so the order is independent of how the
// fetched sections are stored.
func firstBodySection(find func(*imap.FetchItemBodySection) []byte) []byte {
	for _, section := range bodyFallbackOrder {
		if b := find(section); len(b) > 0 {
			return b
		}
	}
	return nil
}

func (s *Session) fetchChunk(uids []uint32) ([]mail.RawMessage, error) {
	set := imap.UIDSet{}
	for _, uid := range uids {
		set.AddNum(imap.UID(uid))
	}

	opts := &imap.FetchOptions{
		UID:        true,
		Flags:      true,
		RFC822Size: true,
		BodySection: []*imap.FetchItemBodySection{
			sectionHeader, sectionText, sectionPart1, sectionPart2,
			sectionPart11, sectionPart12, sectionFull,
		},
	}

	cmd := s.client.Fetch(set, opts)
	defer cmd.Close()

	var out []mail.RawMessage
	for {
		msg := cmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			s.log.Warn().Err(err).Msg("collecting message failed, skipping")
			continue
		}

		out = append(out, s.convertMessage(buf))
	}

	if err := cmd.Close(); err != nil {
		return out, fmt.Errorf("fetching uids: %w", err)
	}
	return out, nil
}

// convertMessage extracts header and body from the fetched sections.
// Body extraction order: full text section, conventional positional
// parts, the raw blob split on the header/body boundary. The first
// non-empty result wins.
func (s *Session) convertMessage(buf *imapclient.FetchMessageBuffer) mail.RawMessage {
	header := buf.FindBodySection(sectionHeader)

	body := firstBodySection(buf.FindBodySection)

	if len(body) == 0 {
		if full := buf.FindBodySection(sectionFull); len(full) > 0 {
			h, b := mail.SplitHeaderAndBody(full)
			if len(header) == 0 {
				header = h
			}
			body = b
		}
	}

	flags := make([]string, 0, len(buf.Flags))
	for _, f := range buf.Flags {
		flags = append(flags, string(f))
	}

	threshold := s.cfg.OversizeThresholdBytes
	if threshold <= 0 {
		threshold = 100 * 1024
	}
	decoded := len(body) <= threshold
	if !decoded {
		s.log.Info().
			Uint32("uid", uint32(buf.UID)).
			Int("size", len(body)).
			Msg("oversized body, deferring decode")
	}

	return mail.RawMessage{
		UID:     uint32(buf.UID),
		Flags:   flags,
		Size:    buf.RFC822Size,
		Header:  header,
		Body:    body,
		Decoded: decoded,
	}
}

// ListFolders lists every folder on the server.
func (s *Session) ListFolders() ([]Folder, error) {
	list, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}

	folders := make([]Folder, 0, len(list))
	for _, item := range list {
		attrs := make([]string, 0, len(item.Attrs))
		for _, a := range item.Attrs {
			attrs = append(attrs, string(a))
		}
		folders = append(folders, Folder{Name: item.Mailbox, Attrs: attrs})
	}
	return folders, nil
}
