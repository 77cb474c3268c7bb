package credential_test

import (
	"testing"

	"github.com/nhle/travelbot/internal/credential"
)

func TestValidKey(t *testing.T) {
	for _, key := range credential.KnownKeys() {
		if !credential.ValidKey(key) {
			t.Fatalf("known key %q rejected", key)
		}
	}
	for _, key := range []string{"", "imap_password", "api-key", "IMAP-PASSWORD"} {
		if credential.ValidKey(key) {
			t.Fatalf("unknown key %q accepted", key)
		}
	}
}
