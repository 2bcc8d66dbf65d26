package vault

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeyHexLength is the length of a cipher key in hex characters (32 bytes).
const KeyHexLength = 2 * chacha20poly1305.KeySize

// Cipher seals secrets with XChaCha20-Poly1305. Ciphertexts are encoded as
// hex(nonce) ":" hex(sealed).
type Cipher struct {
	key []byte
}

func NewCipher(hexKey string) (*Cipher, error) {
	clean := strings.TrimSpace(hexKey)
	if len(clean) != KeyHexLength {
		return nil, clierr.New(clierr.CodeConfig, fmt.Sprintf("encryption key must be %d hex characters", KeyHexLength))
	}
	key, err := hex.DecodeString(clean)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "encryption key is not valid hex", err)
	}
	return &Cipher{key: key}, nil
}

// GenerateKey returns a fresh random key in the format NewCipher expects.
func GenerateKey() (string, error) {
	buf := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (c *Cipher) Seal(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", clierr.Wrap(clierr.CodeConfig, "init cipher", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", clierr.Wrap(clierr.CodeInternal, "read nonce", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(sealed), nil
}

func (c *Cipher) Open(ciphertext string) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "init cipher", err)
	}
	nonceHex, sealedHex, ok := strings.Cut(ciphertext, ":")
	if !ok {
		return nil, clierr.New(clierr.CodeSigner, "malformed encrypted key")
	}
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil || len(nonce) != aead.NonceSize() {
		return nil, clierr.New(clierr.CodeSigner, "malformed encrypted key nonce")
	}
	sealed, err := hex.DecodeString(sealedHex)
	if err != nil {
		return nil, clierr.New(clierr.CodeSigner, "malformed encrypted key payload")
	}
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "decrypt key", err)
	}
	return plain, nil
}
