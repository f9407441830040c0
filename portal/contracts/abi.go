// Package contracts reads and writes the index (Set) protocol contracts and
// the ERC-20 tokens they hold.
package contracts

import (
	"bytes"
	"embed"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

//go:embed abis/*.json
var abiFiles embed.FS

var (
	SetTokenABI            abi.ABI
	ERC20ABI               abi.ABI
	BasicIssuanceModuleABI abi.ABI
	SetTokenCreatorABI     abi.ABI
	ControllerABI          abi.ABI
	MulticallABI           abi.ABI
	SpokePoolABI           abi.ABI
)

// AddressZero is passed as the pre-issue hook when initializing the issuance module.
var AddressZero = common.Address{}

func init() {
	SetTokenABI = mustLoad("SetToken")
	ERC20ABI = mustLoad("ERC20")
	BasicIssuanceModuleABI = mustLoad("BasicIssuanceModule")
	SetTokenCreatorABI = mustLoad("SetTokenCreator")
	ControllerABI = mustLoad("Controller")
	MulticallABI = mustLoad("Multicall")
	SpokePoolABI = mustLoad("SpokePool")
}

func mustLoad(name string) abi.ABI {
	raw, err := abiFiles.ReadFile("abis/" + name + ".json")
	if err != nil {
		panic(err)
	}
	a, err := abi.JSON(bytes.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse %s abi: %v", name, err))
	}
	return a
}

// Pack encodes a method call with the given ABI.
func Pack(contractABI abi.ABI, method string, args ...any) ([]byte, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	return data, nil
}

// EncodeApprove returns ERC-20 approve(spender, amount) calldata.
func EncodeApprove(spender common.Address, amount *big.Int) ([]byte, error) {
	return Pack(ERC20ABI, "approve", spender, amount)
}

// EncodeTransfer returns ERC-20 transfer(to, amount) calldata.
func EncodeTransfer(to common.Address, amount *big.Int) ([]byte, error) {
	return Pack(ERC20ABI, "transfer", to, amount)
}

// EncodeMint returns mint(to, amount) calldata of the faucet tokens.
func EncodeMint(to common.Address, amount *big.Int) ([]byte, error) {
	return Pack(ERC20ABI, "mint", to, amount)
}
