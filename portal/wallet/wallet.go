// Package wallet provides the account that signs messages and sends
// transactions for the portal.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "wallet").Logger()
}

// ErrUserRejected is returned when the holder of the wallet declines to sign.
var ErrUserRejected = errors.New("user rejected the request")

// fallbackGasLimit is used when gas estimation fails.
const fallbackGasLimit = 300_000

// Signer signs arbitrary messages with EIP-191 personal_sign semantics.
type Signer interface {
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// Wallet is the connected account: identity, active chain and the ability to
// sign and send.
type Wallet interface {
	Signer
	Connected() bool
	Address() common.Address
	ChainID() uint64
	SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error)
}

// Backend is the subset of ethclient a KeyWallet needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// KeyWallet signs with a local secp256k1 key and sends legacy transactions
// through a Backend.
type KeyWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	backend Backend
	chainID *big.Int

	// serializes nonce lookup and submission
	mu sync.Mutex
}

// NewKeyWallet parses privKeyHex (with or without 0x) and resolves the chain id
// of backend.
func NewKeyWallet(ctx context.Context, backend Backend, privKeyHex string) (*KeyWallet, error) {
	key, err := ParsePrivateKey(privKeyHex)
	if err != nil {
		return nil, err
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	return &KeyWallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		backend: backend,
		chainID: chainID,
	}, nil
}

// Dial connects to rpcURL and builds a KeyWallet on top of it.
func Dial(ctx context.Context, rpcURL, privKeyHex string) (*KeyWallet, *ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial eth rpc: %w", err)
	}
	w, err := NewKeyWallet(ctx, client, privKeyHex)
	if err != nil {
		client.Close()
		return nil, nil, err
	}
	return w, client, nil
}

func (w *KeyWallet) Connected() bool {
	return w != nil && w.key != nil
}

func (w *KeyWallet) Address() common.Address {
	return w.address
}

func (w *KeyWallet) ChainID() uint64 {
	return w.chainID.Uint64()
}

// SignMessage signs keccak256("\x19Ethereum Signed Message:\n" + len + message).
// The returned signature has V in {27, 28}.
func (w *KeyWallet) SignMessage(_ context.Context, message []byte) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), w.key)
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// SendTransaction signs and submits a call to `to`. Gas is estimated, falling
// back to a fixed limit when estimation fails.
func (w *KeyWallet) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if value == nil {
		value = new(big.Int)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	nonce, err := w.backend.PendingNonceAt(ctx, w.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := w.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	msg := ethereum.CallMsg{From: w.address, To: &to, Data: data, Value: value, GasPrice: gasPrice}
	gasLimit, err := w.backend.EstimateGas(ctx, msg)
	if err != nil {
		log.Warn().Err(err).Str("to", to.Hex()).Msg("Gas estimation failed, using fallback limit")
		gasLimit = fallbackGasLimit
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(w.chainID), w.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign tx: %w", err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("send tx: %w", err)
	}

	log.Debug().Str("hash", signed.Hash().Hex()).Uint64("nonce", nonce).Msg("Transaction sent")
	return signed.Hash(), nil
}

// ParsePrivateKey parses a hex private key string into an ECDSA key.
func ParsePrivateKey(h string) (*ecdsa.PrivateKey, error) {
	h = strings.TrimSpace(h)
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	b, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("decode hex key: %w", err)
	}
	pk, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, fmt.Errorf("to ecdsa: %w", err)
	}
	return pk, nil
}

// RecoverSigner returns the address that produced a SignMessage signature.
func RecoverSigner(message, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	s := make([]byte, len(sig))
	copy(s, sig)
	if s[crypto.RecoveryIDOffset] >= 27 {
		s[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(message), s)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
