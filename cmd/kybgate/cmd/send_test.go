package cmd

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeyFile(t *testing.T, block *pem.Block) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "webhook.key")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestLoadPrivateKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	t.Run("pkcs1", func(t *testing.T) {
		path := writeKeyFile(t, &pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})
		loaded, err := loadPrivateKey(path)
		require.NoError(t, err)
		assert.True(t, key.Equal(loaded))
	})

	t.Run("pkcs8", func(t *testing.T) {
		der, err := x509.MarshalPKCS8PrivateKey(key)
		require.NoError(t, err)
		path := writeKeyFile(t, &pem.Block{Type: "PRIVATE KEY", Bytes: der})
		loaded, err := loadPrivateKey(path)
		require.NoError(t, err)
		assert.True(t, key.Equal(loaded))
	})

	t.Run("not pem", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "garbage.key")
		require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))
		_, err := loadPrivateKey(path)
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadPrivateKey(filepath.Join(t.TempDir(), "absent.key"))
		assert.Error(t, err)
	})
}
