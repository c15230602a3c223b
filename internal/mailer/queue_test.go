package mailer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vactrail/backend/internal/mailer"
)

func TestHashRecipient_Deterministic(t *testing.T) {
	a := mailer.HashRecipient("user@example.com")
	b := mailer.HashRecipient("user@example.com")
	assert.Equal(t, a, b)
}

func TestHashRecipient_DistinctInputsDiffer(t *testing.T) {
	a := mailer.HashRecipient("user@example.com")
	b := mailer.HashRecipient("other@example.com")
	assert.NotEqual(t, a, b)
}

func TestHashRecipient_NeverContainsRawAddress(t *testing.T) {
	hash := mailer.HashRecipient("user@example.com")
	assert.NotContains(t, hash, "user@example.com")
	assert.Len(t, hash, 64) // hex-encoded sha256
}
