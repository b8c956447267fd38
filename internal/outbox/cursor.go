package outbox

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/briefmarket/backend/internal/models"
)

// ErrBadCursor is returned for tokens the server did not mint.
var ErrBadCursor = errors.New("malformed cursor")

// Cursor is a position in the (created_at, id) ordering of outbox events.
// The zero value means "from the beginning".
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// After returns the cursor pointing just past the given event.
func After(ev *models.OutboxEvent) Cursor {
	return Cursor{CreatedAt: ev.CreatedAt, ID: ev.ID}
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := fmt.Sprintf("%d:%d", c.CreatedAt.UnixNano(), c.ID)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Encode. An empty token yields the
// zero cursor.
func DecodeCursor(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	nanos, idStr, ok := strings.Cut(string(raw), ":")
	if !ok {
		return Cursor{}, ErrBadCursor
	}
	ns, err := strconv.ParseInt(nanos, 10, 64)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	return Cursor{CreatedAt: time.Unix(0, ns).UTC(), ID: id}, nil
}
