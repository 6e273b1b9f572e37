package domain

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCredentialsNeverFormatSecrets(t *testing.T) {
	creds := Credentials{
		APIKey:       "the-key",
		APISecret:    "the-secret",
		AccountID:    "DU12345",
		SessionToken: "the-token",
	}

	for _, rendered := range []string{
		fmt.Sprintf("%v", creds),
		fmt.Sprintf("%s", creds),
		fmt.Sprint(creds),
	} {
		require.NotContains(t, rendered, "the-key")
		require.NotContains(t, rendered, "the-secret")
		require.NotContains(t, rendered, "the-token")
		require.Equal(t, "credentials(redacted)", rendered)
	}
}
