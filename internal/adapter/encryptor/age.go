package encryptor

import (
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
)

// AgeEncryptor encrypts artifacts to X25519 recipients. Decryption needs the
// identity file and is only used by restore, so either half may be missing.
type AgeEncryptor struct {
	recipients []age.Recipient
	identities []age.Identity
}

func NewAge(recipients []string, identityFile string) (*AgeEncryptor, error) {
	if len(recipients) == 0 && identityFile == "" {
		return nil, errors.New("age needs recipients to encrypt or an identity file to decrypt")
	}

	e := &AgeEncryptor{}
	for _, r := range recipients {
		recipient, err := age.ParseX25519Recipient(r)
		if err != nil {
			return nil, fmt.Errorf("invalid age recipient %q: %w", r, err)
		}
		e.recipients = append(e.recipients, recipient)
	}

	if identityFile != "" {
		f, err := os.Open(identityFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open identity file: %w", err)
		}
		defer f.Close()

		e.identities, err = age.ParseIdentities(f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse identity file: %w", err)
		}
	}

	return e, nil
}

func (e *AgeEncryptor) Extension() string { return ".age" }

func (e *AgeEncryptor) Encrypt(sourcePath, destPath string) error {
	if len(e.recipients) == 0 {
		return errors.New("no age recipient configured for encryption")
	}

	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}
	defer destFile.Close()

	w, err := age.Encrypt(destFile, e.recipients...)
	if err != nil {
		return fmt.Errorf("failed to start encryption: %w", err)
	}
	if _, err := io.Copy(w, sourceFile); err != nil {
		return fmt.Errorf("failed to encrypt: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish encryption: %w", err)
	}
	return destFile.Sync()
}

func (e *AgeEncryptor) Decrypt(sourcePath, destPath string) error {
	if len(e.identities) == 0 {
		return errors.New("no age identity configured for decryption")
	}

	sourceFile, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer sourceFile.Close()

	r, err := age.Decrypt(sourceFile, e.identities...)
	if err != nil {
		return fmt.Errorf("failed to decrypt: %w", err)
	}

	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create dest file: %w", err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, r); err != nil {
		return fmt.Errorf("failed to decrypt: %w", err)
	}
	return nil
}
