package commitment

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(make([]byte, 32))
	require.NoError(t, err)
	return m
}

func TestNewManagerRejectsShortKey(t *testing.T) {
	_, err := NewManager([]byte("too short"))
	require.ErrorIs(t, err, ErrBadMasterKey)
}

func TestNewSalt(t *testing.T) {
	s1, err := NewSalt()
	require.NoError(t, err)
	s2, err := NewSalt()
	require.NoError(t, err)

	assert.Len(t, s1, 64) // 32 bytes, hex
	assert.NotEqual(t, s1, s2)
	_, err = hex.DecodeString(s1)
	assert.NoError(t, err)
}

// The two families hash in opposite byte orders; external verifiers depend
// on the exact layout, so pin it against raw sha256.
func TestHashFamilyByteOrder(t *testing.T) {
	salt := "00ff"
	word := "APPLE"

	secret := sha256.Sum256([]byte(salt + word))
	hidden := sha256.Sum256([]byte(word + salt))

	assert.Equal(t, hex.EncodeToString(secret[:]), Hash(FamilySecret, word, salt))
	assert.Equal(t, hex.EncodeToString(hidden[:]), Hash(FamilyHidden, word, salt))
	assert.NotEqual(t, Hash(FamilySecret, word, salt), Hash(FamilyHidden, word, salt))
}

func TestVerifyAndCheck(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)
	h := Hash(FamilySecret, "APPLE", salt)

	assert.True(t, Verify(FamilySecret, "APPLE", salt, h))
	assert.False(t, Verify(FamilySecret, "BEACH", salt, h))
	assert.False(t, Verify(FamilyHidden, "APPLE", salt, h))

	assert.NoError(t, Check(FamilySecret, "APPLE", salt, h))
	assert.ErrorIs(t, Check(FamilySecret, "BEACH", salt, h), ErrCommitmentMismatch)
}

func TestCommit(t *testing.T) {
	m := testManager(t)

	words := []string{"APPLE", "BEACH", "CANDY"}
	committed, err := m.Commit(FamilyHidden, words)
	require.NoError(t, err)
	require.Len(t, committed, 3)

	salts := make(map[string]struct{})
	for i, c := range committed {
		assert.Equal(t, words[i], c.Word)
		assert.Equal(t, FamilyHidden, c.Family)
		assert.True(t, Verify(FamilyHidden, c.Word, c.Salt, c.Hash))
		salts[c.Salt] = struct{}{}
	}
	assert.Len(t, salts, 3, "salts must be unique per word")
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	m := testManager(t)

	sealed, err := m.Encrypt("APPLE")
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "APPLE")

	word, err := m.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "APPLE", word)

	// same plaintext, fresh nonce
	sealed2, err := m.Encrypt("APPLE")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, sealed2)
}

func TestDecryptRejectsTampering(t *testing.T) {
	m := testManager(t)

	sealed, err := m.Encrypt("APPLE")
	require.NoError(t, err)
	sealed[len(sealed)-1] ^= 0x01

	_, err = m.Decrypt(sealed)
	require.Error(t, err)

	_, err = m.Decrypt([]byte("short"))
	require.Error(t, err)
}

func TestVerifyBundle(t *testing.T) {
	m := testManager(t)

	secret, err := m.Commit(FamilySecret, []string{"APPLE"})
	require.NoError(t, err)
	hidden, err := m.Commit(FamilyHidden, []string{"BEACH", "CANDY"})
	require.NoError(t, err)

	bundle := []RevealedWord{
		{WordIndex: 0, Family: FamilySecret, Word: secret[0].Word, Salt: secret[0].Salt, Hash: secret[0].Hash},
		{WordIndex: 1, Family: FamilyHidden, Word: hidden[0].Word, Salt: hidden[0].Salt, Hash: hidden[0].Hash},
		{WordIndex: 2, Family: FamilyHidden, Word: hidden[1].Word, Salt: hidden[1].Salt, Hash: hidden[1].Hash},
	}
	require.NoError(t, VerifyBundle(bundle))

	bundle[2].Word = "DAISY"
	err = VerifyBundle(bundle)
	require.ErrorIs(t, err, ErrCommitmentMismatch)
	assert.Contains(t, err.Error(), "word index 2")
}
