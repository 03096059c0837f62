package bill

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"bill-analyst/internal/chat"
	"bill-analyst/internal/extraction"
)

// ErrNoBillLoaded is returned by bill-dependent operations before any bill
// has been successfully parsed for the session
var ErrNoBillLoaded = errors.New("no bill loaded")

// IDGenerator generates unique session IDs
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates UUID session IDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service orchestrates extraction, session state and grounded conversation.
// All state lives in the session registry; the service itself is stateless
// and safe to share across sessions.
type Service struct {
	db          DB
	extractor   extraction.Extractor
	responder   chat.Responder
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, extractor extraction.Extractor, responder chat.Responder) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		responder:   responder,
		idGenerator: &defaultIDGenerator{},
		timeSource:  &defaultTimeSource{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, extractor extraction.Extractor, responder chat.Responder, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		extractor:   extractor,
		responder:   responder,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

// NewSessionID generates an ID for a fresh session
func (s *Service) NewSessionID() string {
	return s.idGenerator.Generate()
}

// loadOrCreateSession fetches the session, creating an empty one on first use.
// New sessions are not persisted until something is committed to them.
func (s *Service) loadOrCreateSession(sessionID string) (*Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	session, err := s.db.GetSession(sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		now := s.timeSource.Now()
		return &Session{
			ID:        sessionID,
			History:   []chat.Turn{},
			CreatedAt: now,
			UpdatedAt: now,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return session, nil
}

// UploadBill handles a bill image upload for a session. Uploading the same
// bytes again is a no-op that returns the current record without calling the
// model. A new fingerprint triggers extraction; only on success are the
// record, fingerprint and reset transcript committed together, so a failed
// extraction leaves the session exactly as it was.
func (s *Service) UploadBill(sessionID string, data []byte, contentType string) (*extraction.BillRecord, bool, error) {
	session, err := s.loadOrCreateSession(sessionID)
	if err != nil {
		return nil, false, err
	}

	fingerprint := FileFingerprint(data)
	if session.Fingerprint == fingerprint && session.Record != nil {
		return session.Record, false, nil
	}

	record, err := s.extractor.Extract(data, contentType)
	if err != nil {
		slog.Error("Failed to extract bill",
			"session_id", sessionID,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, false, fmt.Errorf("extracting bill: %w", err)
	}

	seller := strings.TrimSpace(record.Seller)
	if seller == "" {
		seller = "an unknown seller"
	}

	// Old history refers to a different bill's context, so it goes with it
	session.Fingerprint = fingerprint
	session.Record = record
	session.History = []chat.Turn{{
		Role:    chat.RoleAssistant,
		Content: fmt.Sprintf("Bill from %s successfully parsed. You can now ask questions about it or export the data.", seller),
	}}
	session.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveSession(session); err != nil {
		return nil, false, fmt.Errorf("saving session: %w", err)
	}

	return record, true, nil
}

// Ask forwards a user question to the conversational model, re-grounding it
// against the current bill record on every turn. The user and assistant turns
// are committed together after a successful reply; a failed call commits
// nothing.
func (s *Service) Ask(ctx context.Context, sessionID string, message string) (string, error) {
	session, err := s.loadOrCreateSession(sessionID)
	if err != nil {
		return "", err
	}

	var instruction string
	if session.Record != nil {
		billJSON, err := json.MarshalIndent(session.Record, "", "  ")
		if err != nil {
			return "", fmt.Errorf("serializing bill record: %w", err)
		}
		instruction = chat.SystemInstruction(string(billJSON))
	} else {
		instruction = chat.SystemInstructionNoBill()
	}

	reply, err := s.responder.Reply(ctx, instruction, session.History, message)
	if err != nil {
		slog.Error("Failed to generate reply", "session_id", sessionID, "error", err)
		return "", fmt.Errorf("generating reply: %w", err)
	}

	session.History = append(session.History,
		chat.Turn{Role: chat.RoleUser, Content: message},
		chat.Turn{Role: chat.RoleAssistant, Content: reply},
	)
	session.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveSession(session); err != nil {
		return "", fmt.Errorf("saving session: %w", err)
	}

	return reply, nil
}

// CurrentRecord returns the active bill record for a session
func (s *Service) CurrentRecord(sessionID string) (*extraction.BillRecord, error) {
	session, err := s.loadOrCreateSession(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Record == nil {
		return nil, ErrNoBillLoaded
	}
	return session.Record, nil
}

// History returns the chat transcript for a session
func (s *Service) History(sessionID string) ([]chat.Turn, error) {
	session, err := s.loadOrCreateSession(sessionID)
	if err != nil {
		return nil, err
	}
	return session.History, nil
}

// ExportJSON serializes the committed bill record for download and suggests
// a filename derived from the invoice number
func (s *Service) ExportJSON(sessionID string) ([]byte, string, error) {
	session, err := s.loadOrCreateSession(sessionID)
	if err != nil {
		return nil, "", err
	}
	if session.Record == nil {
		return nil, "", ErrNoBillLoaded
	}

	data, err := json.MarshalIndent(session.Record, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("serializing bill record: %w", err)
	}

	name := sanitizeFilenamePart(session.Record.InvoiceNumber)
	if name == "" {
		name = "extracted"
	}
	return data, name + "_bill_data.json", nil
}

// ResetSession drops all state for a session
func (s *Service) ResetSession(sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if err := s.db.DeleteSession(sessionID); err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

var filenameCleaner = regexp.MustCompile(`[^a-zA-Z0-9\-_]`)

// sanitizeFilenamePart strips characters that don't belong in a download
// filename and truncates overly long invoice numbers
func sanitizeFilenamePart(part string) string {
	part = filenameCleaner.ReplaceAllString(strings.TrimSpace(part), "")
	if len(part) > 50 {
		part = part[:50]
	}
	return part
}
