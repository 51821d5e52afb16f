package cursor_test

import (
	"encoding/base64"
	"testing"

	"github.com/SWMChefTory/recommend-service/internal/cursor"
	"github.com/SWMChefTory/recommend-service/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	tokens := []string{
		"abc",
		"WzEuMjMsICJyZWNpcGUtOTkiXQ",
		"token|with|delimiters",
		"   spaced token   ",
		"=",
	}
	for _, tok := range tokens {
		id := uuid.New()
		gotID, gotTok, err := cursor.Decode(cursor.Encode(id, tok))
		require.NoError(t, err, "token %q", tok)
		assert.Equal(t, id, gotID)
		assert.Equal(t, tok, gotTok)
	}
}

func TestCursor_Decode_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":              "",
		"blank":              "   ",
		"not base64":         "%%%not-base64%%%",
		"no delimiter":       base64.RawURLEncoding.EncodeToString([]byte("just-a-token")),
		"empty request id":   base64.RawURLEncoding.EncodeToString([]byte("|token")),
		"empty engine token": base64.RawURLEncoding.EncodeToString([]byte(uuid.NewString() + "|")),
		"non-uuid id":        base64.RawURLEncoding.EncodeToString([]byte("not-a-uuid|token")),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := cursor.Decode(in)
			assert.ErrorIs(t, err, domain.ErrInvalidCursor)
		})
	}
}

func TestCursor_TokenMayContainDelimiter(t *testing.T) {
	id := uuid.New()
	tok := "a|b|c"
	gotID, gotTok, err := cursor.Decode(cursor.Encode(id, tok))
	require.NoError(t, err)
	assert.Equal(t, id, gotID)
	assert.Equal(t, "a|b|c", gotTok)
}
