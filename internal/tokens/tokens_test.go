package tokens_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/tokens"
)

func testPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return string(pem.EncodeToMemory(block))
}

func TestAccessToken_RoundTrip_PreservesClaims(t *testing.T) {
	codec, err := tokens.NewCodec(testPEM(t), 15*time.Minute, "vactrail-test")
	require.NoError(t, err)

	userID, companyID := uuid.New(), uuid.New()
	signed, err := codec.IssueAccessToken(userID, companyID, "manager")
	require.NoError(t, err)

	claims, err := codec.Verify(signed, tokens.ScopeAccess)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, companyID, claims.CompanyID)
	assert.Equal(t, "manager", claims.Role)
}

func TestAccessToken_WrongScope_Rejected(t *testing.T) {
	codec, err := tokens.NewCodec(testPEM(t), 15*time.Minute, "vactrail-test")
	require.NoError(t, err)

	signed, err := codec.IssuePreAuthToken(uuid.New())
	require.NoError(t, err)

	_, err = codec.Verify(signed, tokens.ScopeAccess)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindWrongType))
}

func TestAccessToken_Expired(t *testing.T) {
	codec, err := tokens.NewCodec(testPEM(t), -1*time.Minute, "vactrail-test")
	require.NoError(t, err)

	signed, err := codec.IssueAccessToken(uuid.New(), uuid.New(), "user")
	require.NoError(t, err)

	_, err = codec.Verify(signed, tokens.ScopeAccess)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindExpired))
}

func TestOpaque_HashIsDeterministic_RawNeverStored(t *testing.T) {
	raw, err := tokens.GenerateOpaque()
	require.NoError(t, err)
	assert.NotEmpty(t, raw)

	h1 := tokens.Hash(raw)
	h2 := tokens.Hash(raw)
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, raw, h1)
}
