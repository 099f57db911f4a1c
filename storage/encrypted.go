package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"filippo.io/age"
)

// Encrypted age-encrypts content before handing it to the wrapped store and
// decrypts on read. The X25519 identity is both the decryption key and the
// source of the recipient.
type Encrypted struct {
	inner     FileStore
	identity  *age.X25519Identity
	recipient age.Recipient
}

// NewEncrypted parses an "AGE-SECRET-KEY-1..." identity.
func NewEncrypted(inner FileStore, identity string) (*Encrypted, error) {
	id, err := age.ParseX25519Identity(strings.TrimSpace(identity))
	if err != nil {
		return nil, fmt.Errorf("parsing age identity: %w", err)
	}
	return NewEncryptedWithIdentity(inner, id), nil
}

func NewEncryptedWithIdentity(inner FileStore, id *age.X25519Identity) *Encrypted {
	return &Encrypted{inner: inner, identity: id, recipient: id.Recipient()}
}

func (e *Encrypted) Put(ctx context.Context, key string, r io.Reader, _ int64, contentType string) error {
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, e.recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return e.inner.Put(ctx, key, &buf, int64(buf.Len()), contentType)
}

func (e *Encrypted) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	rc, err := e.inner.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	dec, err := age.Decrypt(rc, e.identity)
	if err != nil {
		rc.Close()
		return nil, fmt.Errorf("creating decrypted reader: %w", err)
	}
	return &decryptedReader{Reader: dec, closer: rc}, nil
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

type decryptedReader struct {
	io.Reader
	closer io.Closer
}

func (d *decryptedReader) Close() error { return d.closer.Close() }
