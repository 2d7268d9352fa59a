// Package commitment implements the commit-reveal scheme for the secret and
// hidden words. Commitments are plain sha256 over ASCII so anyone can
// recompute them from the published reveal:
//
//	secret family: sha256(lowercaseHex(salt) || word)   (legacy byte order)
//	hidden family: sha256(word || lowercaseHex(salt))   (bonus and burn words)
//
// Salts are 32 bytes from crypto/rand, one per word, never reused across
// rounds. The two byte orders are deliberate and must not be conflated.
package commitment

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const saltLen = 32

var (
	// ErrCommitmentMismatch means a stored commitment cannot be reproduced
	// from its revealed word and salt. This is tampering or a bug, never
	// something to paper over.
	ErrCommitmentMismatch = errors.New("commitment mismatch")

	ErrBadMasterKey = errors.New("master key must be 32 bytes")
)

// Family selects the hash byte order.
type Family string

const (
	FamilySecret Family = "secret"
	FamilyHidden Family = "hidden"
)

// Committed is one word's commitment material. Word is plaintext and must
// only be persisted through Manager.Encrypt.
type Committed struct {
	Word   string
	Salt   string // lowercase hex, 32 bytes
	Hash   string // lowercase hex sha256
	Family Family
}

// Manager holds the at-rest encryption key for committed words.
type Manager struct {
	aead cipher.AEAD
}

func NewManager(masterKey []byte) (*Manager, error) {
	if len(masterKey) != 32 {
		return nil, ErrBadMasterKey
	}
	block, err := aes.NewCipher(masterKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Manager{aead: aead}, nil
}

// NewSalt draws a fresh 32-byte salt from the system CSPRNG.
func NewSalt() (string, error) {
	b := make([]byte, saltLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("draw salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Hash computes the commitment hash for a word under the given family.
func Hash(family Family, word, saltHex string) string {
	var sum [32]byte
	switch family {
	case FamilySecret:
		sum = sha256.Sum256([]byte(saltHex + word))
	default:
		sum = sha256.Sum256([]byte(word + saltHex))
	}
	return hex.EncodeToString(sum[:])
}

// Verify reports whether word+salt reproduce the expected hash.
func Verify(family Family, word, saltHex, expectedHash string) bool {
	return Hash(family, word, saltHex) == expectedHash
}

// Check is Verify with the integrity error attached.
func Check(family Family, word, saltHex, expectedHash string) error {
	if !Verify(family, word, saltHex, expectedHash) {
		return fmt.Errorf("%w: family=%s", ErrCommitmentMismatch, family)
	}
	return nil
}

// Commit draws one salt per word and returns the commitment set. Must run,
// and its output must be persisted, before the round accepts any guesses.
func (m *Manager) Commit(family Family, words []string) ([]Committed, error) {
	out := make([]Committed, 0, len(words))
	for _, w := range words {
		salt, err := NewSalt()
		if err != nil {
			return nil, err
		}
		out = append(out, Committed{
			Word:   w,
			Salt:   salt,
			Hash:   Hash(family, w, salt),
			Family: family,
		})
	}
	return out, nil
}

// Encrypt seals a word for at-rest storage. Output is nonce||ciphertext.
func (m *Manager) Encrypt(word string) ([]byte, error) {
	nonce := make([]byte, m.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return m.aead.Seal(nonce, nonce, []byte(word), nil), nil
}

// Decrypt opens a sealed word.
func (m *Manager) Decrypt(sealed []byte) (string, error) {
	ns := m.aead.NonceSize()
	if len(sealed) < ns {
		return "", errors.New("sealed word too short")
	}
	plain, err := m.aead.Open(nil, sealed[:ns], sealed[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("open sealed word: %w", err)
	}
	return string(plain), nil
}

// RevealedWord is one entry of a post-resolution reveal bundle.
type RevealedWord struct {
	WordIndex int    `json:"word_index"`
	Family    Family `json:"family"`
	Word      string `json:"word"`
	Salt      string `json:"salt"`
	Hash      string `json:"hash"`
}

// VerifyBundle recomputes every commitment in a reveal. Any failure is fatal.
func VerifyBundle(words []RevealedWord) error {
	for _, rw := range words {
		if err := Check(rw.Family, rw.Word, rw.Salt, rw.Hash); err != nil {
			return fmt.Errorf("word index %d: %w", rw.WordIndex, err)
		}
	}
	return nil
}
