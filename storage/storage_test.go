package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hr-engine/config"
	"github.com/warp/hr-engine/generic"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

// exerciseStore runs the round trip every backend must satisfy.
func exerciseStore(t *testing.T, fs FileStore) {
	ctx := context.Background()
	key := CertificateKey("acme", "u1", "a1", "note.pdf")

	// GIVEN: a stored file
	require.NoError(t, fs.Put(ctx, key, strings.NewReader("hello"), 5, "application/pdf"))

	// THEN: it reads back unchanged
	rc, err := fs.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "hello", readAll(t, rc))

	// WHEN: deleted
	require.NoError(t, fs.Delete(ctx, key))

	// THEN: reads report not found, deleting again is harmless
	_, err = fs.Get(ctx, key)
	assert.ErrorIs(t, err, generic.ErrNotFound)
	assert.NoError(t, fs.Delete(ctx, key))
}

func TestMemory_RoundTrip(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFileSystem_RoundTrip(t *testing.T) {
	fs, err := NewFileSystem(t.TempDir())
	require.NoError(t, err)
	exerciseStore(t, fs)
}

func TestFileSystem_WritesBelowRoot(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileSystem(root)
	require.NoError(t, err)

	key := CertificateKey("acme", "u1", "a1", "scan.png")
	require.NoError(t, fs.Put(context.Background(), key, strings.NewReader("png"), 3, "image/png"))

	data, err := os.ReadFile(filepath.Join(root, "absences", "acme", "u1", "a1", "scan.png"))
	require.NoError(t, err)
	assert.Equal(t, "png", string(data))
}

func TestFileSystem_SizeMismatchLeavesNoFile(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileSystem(root)
	require.NoError(t, err)

	err = fs.Put(context.Background(), "a/b.txt", strings.NewReader("abc"), 10, "")
	require.Error(t, err)

	_, err = fs.Get(context.Background(), "a/b.txt")
	assert.ErrorIs(t, err, generic.ErrNotFound)
}

func TestEncrypted_RoundTripAndCiphertextAtRest(t *testing.T) {
	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	inner := NewMemory()
	enc, err := NewEncrypted(inner, id.String())
	require.NoError(t, err)

	exerciseStore(t, enc)

	// GIVEN: a file written through the encrypted store
	ctx := context.Background()
	require.NoError(t, enc.Put(ctx, "k/secret.txt", strings.NewReader("diagnosis"), -1, "text/plain"))

	// THEN: the wrapped store only holds ciphertext
	raw, err := inner.Get(ctx, "k/secret.txt")
	require.NoError(t, err)
	stored := readAll(t, raw)
	assert.NotContains(t, stored, "diagnosis")

	// AND: a different identity cannot read it
	other, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	_, err = NewEncryptedWithIdentity(inner, other).Get(ctx, "k/secret.txt")
	assert.Error(t, err)
}

func TestNewEncrypted_RejectsBadIdentity(t *testing.T) {
	_, err := NewEncrypted(NewMemory(), "not-a-key")
	assert.Error(t, err)
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
		ok   bool
	}{
		{"a/b/c.pdf", "a/b/c.pdf", true},
		{"a//b/./c.pdf", "a/b/c.pdf", true},
		{"", "", false},
		{"/etc/passwd", "", false},
		{"../escape", "", false},
		{"a/../../escape", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := CleanKey(tt.key)
			if !tt.ok {
				assert.ErrorIs(t, err, generic.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCertificateKey_StripsDirectories(t *testing.T) {
	assert.Equal(t, "absences/acme/u1/a1/x.pdf", CertificateKey("acme", "u1", "a1", "../../x.pdf"))
	assert.Equal(t, "absences/acme/u1/a1/x.pdf", CertificateKey("acme", "u1", "a1", `C:\docs\x.pdf`))
	assert.Equal(t, "absences/acme/u1/a1/certificate", CertificateKey("acme", "u1", "a1", ""))
}

func TestNew_SelectsBackend(t *testing.T) {
	ctx := context.Background()

	fs, err := New(ctx, config.StorageConfig{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, fs)

	fs, err = New(ctx, config.StorageConfig{Type: "filesystem", Root: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileSystem{}, fs)

	id, err := age.GenerateX25519Identity()
	require.NoError(t, err)
	fs, err = New(ctx, config.StorageConfig{Type: "memory", EncryptKey: id.String()})
	require.NoError(t, err)
	assert.IsType(t, &Encrypted{}, fs)

	_, err = New(ctx, config.StorageConfig{Type: "floppy"})
	assert.Error(t, err)
}

func TestMemory_Len(t *testing.T) {
	m := NewMemory()
	require.NoError(t, m.Put(context.Background(), "a", bytes.NewReader([]byte("x")), 1, ""))
	assert.Equal(t, 1, m.Len())
}
