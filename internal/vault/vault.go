// Package vault creates, imports and stores user wallets. Private keys only
// leave the vault as a short-lived signer.
package vault

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	clierr "github.com/ggonzalez94/walletbot/internal/errors"
	"github.com/ggonzalez94/walletbot/internal/execution/signer"
	"github.com/ggonzalez94/walletbot/internal/session"
)

var privateKeyPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

type UserWallet struct {
	Address             string `json:"address"`
	EncryptedPrivateKey string `json:"encrypted_private_key"`
}

type Vault struct {
	cipher  *Cipher
	wallets *session.Keyed[UserWallet]
}

func New(cipher *Cipher, store session.Store) *Vault {
	return &Vault{cipher: cipher, wallets: session.NewKeyed[UserWallet](store, "wallet")}
}

// Create generates a new key and returns the sealed wallet. The plaintext key
// is discarded before returning.
func (v *Vault) Create() (UserWallet, error) {
	pk, err := crypto.GenerateKey()
	if err != nil {
		return UserWallet{}, clierr.Wrap(clierr.CodeInternal, "generate key", err)
	}
	defer zero(pk)
	return v.seal(pk)
}

// Import validates a 0x-prefixed 32-byte hex key and seals it.
func (v *Vault) Import(raw string) (UserWallet, error) {
	clean := strings.TrimSpace(raw)
	if !privateKeyPattern.MatchString(clean) {
		return UserWallet{}, clierr.New(clierr.CodeInvalidKey, "Invalid private key. Please check and try again.")
	}
	pk, err := crypto.HexToECDSA(clean[2:])
	if err != nil {
		return UserWallet{}, clierr.Wrap(clierr.CodeInvalidKey, "Invalid private key. Please check and try again.", err)
	}
	defer zero(pk)
	return v.seal(pk)
}

func (v *Vault) seal(pk *ecdsa.PrivateKey) (UserWallet, error) {
	raw := crypto.FromECDSA(pk)
	defer wipeBytes(raw)
	encoded := []byte(hex.EncodeToString(raw))
	defer wipeBytes(encoded)
	sealed, err := v.cipher.Seal(encoded)
	if err != nil {
		return UserWallet{}, err
	}
	return UserWallet{
		Address:             crypto.PubkeyToAddress(pk.PublicKey).Hex(),
		EncryptedPrivateKey: sealed,
	}, nil
}

// Signer opens the wallet's key. Callers must Wipe the signer when done;
// WithSigner does that for them.
func (v *Vault) Signer(w UserWallet) (*signer.LocalSigner, error) {
	plain, err := v.cipher.Open(w.EncryptedPrivateKey)
	if err != nil {
		return nil, err
	}
	defer wipeBytes(plain)
	s, err := signer.NewLocalSignerFromHex(string(plain))
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeSigner, "load signer", err)
	}
	if !strings.EqualFold(s.Address().Hex(), w.Address) {
		s.Wipe()
		return nil, clierr.New(clierr.CodeSigner, "decrypted key does not match wallet address")
	}
	return s, nil
}

func (v *Vault) WithSigner(w UserWallet, fn func(signer.Signer) error) error {
	s, err := v.Signer(w)
	if err != nil {
		return err
	}
	defer s.Wipe()
	return fn(s)
}

func (v *Vault) Save(ctx context.Context, userID int64, w UserWallet) error {
	if err := v.wallets.Save(ctx, strconv.FormatInt(userID, 10), w); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "save wallet", err)
	}
	return nil
}

func (v *Vault) Get(ctx context.Context, userID int64) (UserWallet, bool, error) {
	w, ok, err := v.wallets.Get(ctx, strconv.FormatInt(userID, 10))
	if err != nil {
		return UserWallet{}, false, clierr.Wrap(clierr.CodeUnavailable, "load wallet", err)
	}
	return w, ok, nil
}

func zero(pk *ecdsa.PrivateKey) {
	if pk != nil && pk.D != nil {
		pk.D.SetInt64(0)
	}
}

func wipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
