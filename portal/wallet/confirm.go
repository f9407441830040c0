package wallet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/term"
)

// ConfirmingSigner asks before every signature or transaction. Anything but
// "y" or "yes" rejects with ErrUserRejected, and so does a non interactive input.
type ConfirmingSigner struct {
	Wallet
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

// NewConfirmingSigner wraps w. When in is a file it must be a terminal,
// otherwise every request is rejected.
func NewConfirmingSigner(w Wallet, in io.Reader, out io.Writer) *ConfirmingSigner {
	interactive := true
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}
	return &ConfirmingSigner{Wallet: w, in: bufio.NewReader(in), out: out, interactive: interactive}
}

func (c *ConfirmingSigner) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := c.confirm(fmt.Sprintf("Sign message %s with %s?", hexutil.Encode(message), c.Address().Hex())); err != nil {
		return nil, err
	}
	return c.Wallet.SignMessage(ctx, message)
}

func (c *ConfirmingSigner) SendTransaction(ctx context.Context, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	q := fmt.Sprintf("Send transaction to %s on chain %d (%d bytes of calldata)?", to.Hex(), c.ChainID(), len(data))
	if err := c.confirm(q); err != nil {
		return common.Hash{}, err
	}
	return c.Wallet.SendTransaction(ctx, to, data, value)
}

func (c *ConfirmingSigner) confirm(question string) error {
	if !c.interactive {
		return ErrUserRejected
	}
	fmt.Fprintf(c.out, "%s [y/N]: ", question)
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		return ErrUserRejected
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return nil
	default:
		return ErrUserRejected
	}
}

// ReadKey reads a private key from the terminal without echoing it.
func ReadKey(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("key input failed: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}
