package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaycrm/mailroom/internal/credential"
	"github.com/relaycrm/mailroom/internal/imapx"
	"github.com/relaycrm/mailroom/internal/model"
	"github.com/relaycrm/mailroom/internal/store"
	"github.com/relaycrm/mailroom/internal/sync"
)

func newTestServer(t *testing.T) (*Server, *model.Mailbox) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	m := &model.Mailbox{
		Email:    "sales@acme.com",
		IMAPHost: "mail.acme.com",
		IMAPPort: 993,
		IsActive: true,
	}
	require.NoError(t, st.UpsertMailbox(context.Background(), m))

	dial := func(imapx.Config) (sync.Session, error) {
		return nil, &imapx.TransportError{
			Addr:     "mail.acme.com:993",
			Attempts: []error{fmt.Errorf("connection refused")},
		}
	}

	cfg := model.SyncConfig{DefaultFolders: []string{"INBOX"}, TimeBudgetMS: 1000}
	controller := sync.NewController(st, credential.Static{m.ID: "secret"}, dial, cfg, zerolog.Nop())

	return NewServer(controller, st, zerolog.Nop()), m
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestBatchImportValidation(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/import/batch", `{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = s.App().Test(jsonRequest(http.MethodPost, "/import/batch",
		`{"mailbox_id": "x", "start_date": "not-a-date"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestBatchImportUnknownMailbox(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/import/batch",
		`{"mailbox_id": "no-such-mailbox"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBatchImportUnreachableServer(t *testing.T) {
	s, m := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/import/batch",
		fmt.Sprintf(`{"mailbox_id": %q}`, m.ID)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestReparseValidation(t *testing.T) {
	s, _ := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/messages/reparse", `{}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = s.App().Test(jsonRequest(http.MethodPost, "/messages/reparse",
		`{"message_id": "missing@nowhere"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMailboxTestEndpointReportsTransportFailure(t *testing.T) {
	s, m := newTestServer(t)

	resp, err := s.App().Test(jsonRequest(http.MethodPost, "/mailboxes/test",
		fmt.Sprintf(`{"mailbox_id": %q}`, m.ID)))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["error"], "connection refused")
}
