package password_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vactrail/backend/internal/apperr"
	"github.com/vactrail/backend/internal/password"
)

func TestHashAndVerify_RoundTrip(t *testing.T) {
	h := password.NewHasher(password.DefaultParams())

	encoded, err := h.Hash("Str0ng!Passw0rd!")
	require.NoError(t, err)

	res, err := h.Verify(encoded, "Str0ng!Passw0rd!")
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.False(t, res.NeedsRehash)
}

func TestVerify_WrongPassword_Mismatch(t *testing.T) {
	h := password.NewHasher(password.DefaultParams())

	encoded, err := h.Hash("Str0ng!Passw0rd!")
	require.NoError(t, err)

	res, err := h.Verify(encoded, "SomethingElse!1")
	require.NoError(t, err)
	assert.False(t, res.Match)
}

func TestVerify_CorruptHash_StoredHashCorrupt(t *testing.T) {
	h := password.NewHasher(password.DefaultParams())

	_, err := h.Verify("not-a-valid-encoding", "whatever")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindStoredHashCorrupt))
}

func TestVerify_NeedsRehash_WhenParamsWeaker(t *testing.T) {
	weak := password.NewHasher(password.Params{MemoryKiB: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLen: 16, KeyLen: 32})
	strong := password.NewHasher(password.DefaultParams())

	encoded, err := weak.Hash("Str0ng!Passw0rd!")
	require.NoError(t, err)

	res, err := strong.Verify(encoded, "Str0ng!Passw0rd!")
	require.NoError(t, err)
	assert.True(t, res.Match)
	assert.True(t, res.NeedsRehash)
}

func TestValidatePolicy(t *testing.T) {
	cases := []struct {
		name    string
		pw      string
		wantErr bool
	}{
		{"too short", "Sh0rt!", true},
		{"no uppercase", "lowercase123!!!!", true},
		{"no lowercase", "UPPERCASE123!!!!", true},
		{"no digit", "NoDigitsHere!!!!", true},
		{"no special", "NoSpecialChar123", true},
		{"valid", "Str0ng!Passw0rd!", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := password.ValidatePolicy(tc.pw)
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, apperr.Is(err, apperr.KindWeakPassword))
			} else {
				require.NoError(t, err)
			}
		})
	}
}
