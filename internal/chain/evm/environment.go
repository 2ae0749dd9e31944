package evm

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
	"github.com/R3E-Network/stablecoin_bootstrap/pkg/logger"
)

// DefaultConfirmTimeout is the default time to wait for a receipt.
const DefaultConfirmTimeout = 2 * time.Minute

// DefaultPollInterval is the default receipt polling interval.
const DefaultPollInterval = 500 * time.Millisecond

// Options configures an Environment.
type Options struct {
	Client    *Client
	Artifacts *Artifacts
	// Privileged enables hardhat_setBalance. Leave false for live networks.
	Privileged     bool
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	Logger         *logger.Logger
}

// Environment implements chain.Environment over JSON-RPC.
type Environment struct {
	client         *Client
	artifacts      *Artifacts
	privileged     bool
	confirmTimeout time.Duration
	pollInterval   time.Duration
	log            *logger.Logger
}

var _ chain.Environment = (*Environment)(nil)

// New creates an Environment.
func New(opts Options) (*Environment, error) {
	if opts.Client == nil {
		return nil, fmt.Errorf("client required")
	}
	if opts.Artifacts == nil {
		return nil, fmt.Errorf("artifacts required")
	}
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault("evm")
	}
	return &Environment{
		client:         opts.Client,
		artifacts:      opts.Artifacts,
		privileged:     opts.Privileged,
		confirmTimeout: opts.ConfirmTimeout,
		pollInterval:   opts.PollInterval,
		log:            opts.Logger,
	}, nil
}

// classify maps node errors onto the bootstrap taxonomy.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *bserr.Error
	if stderrors.As(err, &classified) {
		return err
	}
	var rpcErr *RPCError
	if stderrors.As(err, &rpcErr) {
		msg := strings.ToLower(rpcErr.Message)
		switch {
		case strings.Contains(msg, "insufficient funds"):
			return bserr.New(bserr.KindInsufficientFunds, op, err)
		case strings.Contains(msg, "already initialized"):
			return bserr.New(bserr.KindAlreadyInitialized, op, err)
		default:
			return bserr.New(bserr.KindConstructorRejected, op, err)
		}
	}
	return bserr.New(bserr.KindEnvironmentUnavailable, op, err)
}

// =============================================================================
// Transactions
// =============================================================================

type txArgs struct {
	From  string `json:"from"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
}

type txReceipt struct {
	chain.Receipt
	ContractAddress chain.Address
}

// send submits tx from a node-managed account and waits for its receipt.
func (e *Environment) send(ctx context.Context, op string, tx txArgs, fast bool) (txReceipt, error) {
	var hash string
	if err := e.client.CallResult(ctx, "eth_sendTransaction", []interface{}{tx}, &hash); err != nil {
		return txReceipt{}, classify(op, err)
	}

	if fast {
		// evm_mine is a hardhat/anvil extension; its absence is not an error.
		if _, err := e.client.Call(ctx, "evm_mine", nil); err != nil {
			e.log.WithField("tx_hash", hash).WithError(err).Debug("fast finality unavailable")
		}
	}

	return e.waitForReceipt(ctx, op, hash)
}

// waitForReceipt polls until the transaction is mined or the confirmation
// timeout expires. Expiry leaves the commitment state unknown and is reported
// as EnvironmentUnavailable.
func (e *Environment) waitForReceipt(ctx context.Context, op, hash string) (txReceipt, error) {
	wctx, cancel := context.WithTimeout(ctx, e.confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		raw, err := e.client.Call(wctx, "eth_getTransactionReceipt", []interface{}{hash})
		if err != nil {
			if wctx.Err() != nil {
				return txReceipt{}, bserr.Newf(bserr.KindEnvironmentUnavailable, op, "no confirmation for %s within %s", hash, e.confirmTimeout)
			}
			return txReceipt{}, classify(op, err)
		}

		if len(raw) > 0 && string(raw) != "null" {
			return parseReceipt(op, hash, raw)
		}

		select {
		case <-wctx.Done():
			return txReceipt{}, bserr.Newf(bserr.KindEnvironmentUnavailable, op, "no confirmation for %s within %s", hash, e.confirmTimeout)
		case <-ticker.C:
		}
	}
}

func parseReceipt(op, hash string, raw []byte) (txReceipt, error) {
	r := gjson.ParseBytes(raw)

	out := txReceipt{Receipt: chain.Receipt{TxHash: hash}}
	if bn := r.Get("blockNumber").String(); bn != "" {
		if n, err := strconv.ParseUint(strings.TrimPrefix(bn, "0x"), 16, 64); err == nil {
			out.Block = n
		}
	}
	if status := r.Get("status").String(); status == "0x0" {
		return out, bserr.Newf(bserr.KindConstructorRejected, op, "transaction %s reverted", hash)
	}
	if ca := r.Get("contractAddress").String(); ca != "" {
		addr, err := chain.ParseAddress(ca)
		if err != nil {
			return out, bserr.New(bserr.KindEnvironmentUnavailable, op, err)
		}
		out.ContractAddress = addr
	}
	return out, nil
}

func (e *Environment) call(ctx context.Context, op string, to chain.Address, sig string, args ...interface{}) (string, error) {
	data, err := encodeCall(sig, args...)
	if err != nil {
		return "", bserr.New(bserr.KindConstructorRejected, op, err)
	}
	var out string
	err = e.client.CallResult(ctx, "eth_call", []interface{}{txArgs{To: to.String(), Data: data}, "latest"}, &out)
	if err != nil {
		return "", classify(op, err)
	}
	return out, nil
}

func (e *Environment) transact(ctx context.Context, op string, from, to chain.Address, value *big.Int, fast bool, sig string, args ...interface{}) (chain.Receipt, error) {
	data, err := encodeCall(sig, args...)
	if err != nil {
		return chain.Receipt{}, bserr.New(bserr.KindConstructorRejected, op, err)
	}
	tx := txArgs{From: from.String(), To: to.String(), Data: data}
	if value != nil && value.Sign() > 0 {
		tx.Value = hexQuantity(value)
	}
	r, err := e.send(ctx, op, tx, fast)
	if err != nil {
		return chain.Receipt{}, err
	}
	return r.Receipt, nil
}

// =============================================================================
// Factory and Query
// =============================================================================

// Accounts returns the node-managed accounts.
func (e *Environment) Accounts(ctx context.Context) ([]chain.Address, error) {
	var raw []string
	if err := e.client.CallResult(ctx, "eth_accounts", nil, &raw); err != nil {
		return nil, classify("eth_accounts", err)
	}
	out := make([]chain.Address, 0, len(raw))
	for _, s := range raw {
		a, err := chain.ParseAddress(s)
		if err != nil {
			return nil, bserr.New(bserr.KindEnvironmentUnavailable, "eth_accounts", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// Create deploys the artifact named in req with ABI-encoded constructor args.
func (e *Environment) Create(ctx context.Context, req chain.CreateRequest, from chain.Address, opts chain.CreateOptions) (chain.Deployment, error) {
	code, err := e.artifacts.Bytecode(req.Name)
	if err != nil {
		return chain.Deployment{}, err
	}
	args := make([]interface{}, len(req.Args))
	for i, a := range req.Args {
		args[i] = a
	}
	encoded, err := encodeArgs(args...)
	if err != nil {
		return chain.Deployment{}, bserr.New(bserr.KindConstructorRejected, "create", err)
	}
	data := code + hex.EncodeToString(encoded)

	r, err := e.send(ctx, "create "+req.Name, txArgs{From: from.String(), Data: data}, opts.FastFinality)
	if err != nil {
		return chain.Deployment{}, err
	}
	if r.ContractAddress.IsZero() {
		return chain.Deployment{}, bserr.Newf(bserr.KindEnvironmentUnavailable, "create "+req.Name, "receipt for %s has no contract address", r.TxHash)
	}
	return chain.Deployment{Address: r.ContractAddress, Receipt: r.Receipt}, nil
}

// HasCode reports whether runtime code is deployed at addr.
func (e *Environment) HasCode(ctx context.Context, addr chain.Address) (bool, error) {
	var code string
	if err := e.client.CallResult(ctx, "eth_getCode", []interface{}{addr.String(), "latest"}, &code); err != nil {
		return false, classify("eth_getCode", err)
	}
	return code != "" && code != "0x" && code != "0x0", nil
}

// NativeBalance returns the native balance of addr.
func (e *Environment) NativeBalance(ctx context.Context, addr chain.Address) (*big.Int, error) {
	var q string
	if err := e.client.CallResult(ctx, "eth_getBalance", []interface{}{addr.String(), "latest"}, &q); err != nil {
		return nil, classify("eth_getBalance", err)
	}
	v, err := parseQuantity(q)
	if err != nil {
		return nil, bserr.New(bserr.KindEnvironmentUnavailable, "eth_getBalance", err)
	}
	return v, nil
}

// =============================================================================
// Privileged
// =============================================================================

// Privileged reports whether hardhat_setBalance may be used.
func (e *Environment) Privileged() bool { return e.privileged }

// SetBalance assigns a native balance with hardhat_setBalance.
func (e *Environment) SetBalance(ctx context.Context, addr chain.Address, amount *big.Int) error {
	if !e.privileged {
		return bserr.Newf(bserr.KindConstructorRejected, "hardhat_setBalance", "balance assignment is disabled for this network")
	}
	if _, err := e.client.Call(ctx, "hardhat_setBalance", []interface{}{addr.String(), hexQuantity(amount)}); err != nil {
		return classify("hardhat_setBalance", err)
	}
	return nil
}

// =============================================================================
// Issuer
// =============================================================================

// MintTo calls mintTo(to, amount) on the issuer.
func (e *Environment) MintTo(ctx context.Context, issuer, from, to chain.Address, amount *big.Int, opts chain.CallOptions) (chain.Receipt, error) {
	return e.transact(ctx, "mintTo", from, issuer, nil, opts.FastFinality, sigMintTo, to, amount)
}

// Approve calls approve(spender, amount) on the issuer.
func (e *Environment) Approve(ctx context.Context, issuer, from, spender chain.Address, amount *big.Int, opts chain.CallOptions) (chain.Receipt, error) {
	return e.transact(ctx, "approve", from, issuer, nil, opts.FastFinality, sigApprove, spender, amount)
}

// TransferOwnership calls transferOwnership(newOwner) on the issuer.
func (e *Environment) TransferOwnership(ctx context.Context, issuer, from, newOwner chain.Address, opts chain.CallOptions) (chain.Receipt, error) {
	return e.transact(ctx, "transferOwnership", from, issuer, nil, opts.FastFinality, sigTransferOwnership, newOwner)
}

// Owner reads owner() from the issuer.
func (e *Environment) Owner(ctx context.Context, issuer chain.Address) (chain.Address, error) {
	out, err := e.call(ctx, "owner", issuer, sigOwner)
	if err != nil {
		return "", err
	}
	a, err := decodeAddress(out)
	if err != nil {
		return "", bserr.New(bserr.KindEnvironmentUnavailable, "owner", err)
	}
	return a, nil
}

func (e *Environment) readUint(ctx context.Context, op string, to chain.Address, sig string, args ...interface{}) (*big.Int, error) {
	out, err := e.call(ctx, op, to, sig, args...)
	if err != nil {
		return nil, err
	}
	v, err := decodeUint(out)
	if err != nil {
		return nil, bserr.New(bserr.KindEnvironmentUnavailable, op, err)
	}
	return v, nil
}

// BalanceOf reads balanceOf(holder) from the issuer.
func (e *Environment) BalanceOf(ctx context.Context, issuer, holder chain.Address) (*big.Int, error) {
	return e.readUint(ctx, "balanceOf", issuer, sigBalanceOf, holder)
}

// Allowance reads allowance(holder, spender) from the issuer.
func (e *Environment) Allowance(ctx context.Context, issuer, holder, spender chain.Address) (*big.Int, error) {
	return e.readUint(ctx, "allowance", issuer, sigAllowance, holder, spender)
}

// TotalSupply reads totalSupply() from the issuer.
func (e *Environment) TotalSupply(ctx context.Context, issuer chain.Address) (*big.Int, error) {
	return e.readUint(ctx, "totalSupply", issuer, sigTotalSupply)
}

// =============================================================================
// Exchange
// =============================================================================

// InitLiquidity calls init(tokenAmount) sending nativeAmount as value.
func (e *Environment) InitLiquidity(ctx context.Context, exchange, from chain.Address, tokenAmount, nativeAmount *big.Int, opts chain.CallOptions) (chain.Receipt, error) {
	return e.transact(ctx, "init", from, exchange, nativeAmount, opts.FastFinality, sigInit, tokenAmount)
}

// LiquidityInitialized reports whether totalLiquidity() is non-zero.
func (e *Environment) LiquidityInitialized(ctx context.Context, exchange chain.Address) (bool, error) {
	v, err := e.readUint(ctx, "totalLiquidity", exchange, sigTotalLiquidity)
	if err != nil {
		return false, err
	}
	return v.Sign() > 0, nil
}
