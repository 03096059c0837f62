package bill

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"bill-analyst/internal/chat"
	"bill-analyst/internal/extraction"
)

// Session holds one user's state for the lifetime of their interaction:
// the currently parsed bill, the fingerprint of the upload it came from, and
// the chat transcript. Record and Fingerprint are only ever replaced together,
// and History always refers to the current Record.
type Session struct {
	ID          string                 `json:"id"`
	Fingerprint string                 `json:"fingerprint,omitempty"`
	Record      *extraction.BillRecord `json:"record,omitempty"`
	History     []chat.Turn            `json:"history"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// FileFingerprint identifies an uploaded file so a re-render of the same
// upload can be told apart from a genuinely new one
func FileFingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
