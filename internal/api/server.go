package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/relaycrm/mailroom/internal/imapx"
	"github.com/relaycrm/mailroom/internal/store"
	"github.com/relaycrm/mailroom/internal/sync"
)

// Server exposes the ingestion engine over HTTP.
type Server struct {
	app        *fiber.App
	controller *sync.Controller
	store      store.Store
	log        zerolog.Logger
}

func NewServer(controller *sync.Controller, st store.Store, log zerolog.Logger) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	s := &Server{app: app, controller: controller, store: st, log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.app.Get("/health", s.handleHealth)
	s.app.Post("/sync/run", s.handleSyncRun)
	s.app.Post("/import/batch", s.handleBatchImport)
	s.app.Post("/messages/reparse", s.handleReparse)
	s.app.Post("/mailboxes/folders", s.handleListFolders)
	s.app.Post("/mailboxes/test", s.handleTestMailbox)
}

// Listen blocks serving HTTP on addr.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// App exposes the underlying fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleSyncRun triggers an incremental sync over every active mailbox.
func (s *Server) handleSyncRun(c *fiber.Ctx) error {
	summary, err := s.controller.SyncAll(c.Context())
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	return c.JSON(summary)
}

// BatchImportRequest starts or resumes a bulk historical import.
type BatchImportRequest struct {
	MailboxID   string   `json:"mailbox_id"`
	Folders     []string `json:"folders,omitempty"`
	StartDate   string   `json:"start_date,omitempty"`
	EndDate     string   `json:"end_date,omitempty"`
	ResumeToken string   `json:"resume_token,omitempty"`
}

func (s *Server) handleBatchImport(c *fiber.Ctx) error {
	var req BatchImportRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.MailboxID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "mailbox_id is required")
	}

	opts := sync.BatchOptions{Folders: req.Folders, ResumeToken: req.ResumeToken}

	var err error
	if opts.Since, err = parseDate(req.StartDate); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid start_date")
	}
	if opts.Before, err = parseDate(req.EndDate); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid end_date")
	}

	result, err := s.controller.BatchImport(c.Context(), req.MailboxID, opts)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(result)
}

// ReparseRequest identifies the message to decode, by protocol message
// identifier or row id.
type ReparseRequest struct {
	MessageID string `json:"message_id"`
}

func (s *Server) handleReparse(c *fiber.Ctx) error {
	var req ReparseRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.MessageID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "message_id is required")
	}

	result, err := s.controller.ReparseEmailBody(c.Context(), req.MessageID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(result)
}

// MailboxRequest addresses one configured mailbox.
type MailboxRequest struct {
	MailboxID string `json:"mailbox_id"`
}

// FoldersResponse lists a server's folders grouped by role.
type FoldersResponse struct {
	Inbox       string   `json:"inbox,omitempty"`
	Sent        string   `json:"sent,omitempty"`
	Drafts      string   `json:"drafts,omitempty"`
	Trash       string   `json:"trash,omitempty"`
	Other       []string `json:"other,omitempty"`
	Recommended []string `json:"recommended"`
}

func (s *Server) handleListFolders(c *fiber.Ctx) error {
	var req MailboxRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.MailboxID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "mailbox_id is required")
	}

	categories, err := s.controller.ListFolders(c.Context(), req.MailboxID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(FoldersResponse{
		Inbox:       categories.Inbox,
		Sent:        categories.Sent,
		Drafts:      categories.Drafts,
		Trash:       categories.Trash,
		Other:       categories.Other,
		Recommended: categories.RecommendedSyncFolders(),
	})
}

func (s *Server) handleTestMailbox(c *fiber.Ctx) error {
	var req MailboxRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if req.MailboxID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "mailbox_id is required")
	}

	if err := s.controller.TestMailbox(c.Context(), req.MailboxID); err != nil {
		return mapError(err)
	}
	return c.JSON(fiber.Map{"success": true})
}

// mapError translates domain errors into HTTP status codes.
func mapError(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case imapx.IsAuthError(err):
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	case imapx.IsTransportError(err):
		return fiber.NewError(fiber.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
