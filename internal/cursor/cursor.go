package cursor

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/SWMChefTory/recommend-service/internal/domain"
	"github.com/google/uuid"
)

// cursor = base64url(requestID + "|" + engineToken)
//
// The request id is always a canonical 36-byte UUID, so splitting on the
// FIRST delimiter is unambiguous even when the engine token itself contains
// the delimiter byte.
const delim = "|"

// Encode builds the opaque page cursor. The engine token must be non-empty;
// terminal pages carry no cursor at all.
func Encode(requestID uuid.UUID, token string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(requestID.String() + delim + token))
}

// Decode reverses Encode. Any input not produced by Encode fails with
// domain.ErrInvalidCursor, never a partial result.
func Decode(s string) (uuid.UUID, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return uuid.Nil, "", domain.ErrInvalidCursor
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", domain.ErrInvalidCursor, err)
	}
	parts := strings.SplitN(string(raw), delim, 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return uuid.Nil, "", domain.ErrInvalidCursor
	}
	requestID, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: bad request id", domain.ErrInvalidCursor)
	}
	return requestID, parts[1], nil
}
