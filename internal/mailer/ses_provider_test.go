package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSESProvider_RejectsInvalidFromAddress(t *testing.T) {
	_, err := NewSESProvider(context.Background(), "eu-west-1", "not-an-email")
	require.Error(t, err)
}
