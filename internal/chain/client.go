package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"PayRunway/internal/account"
	"PayRunway/internal/observability"
)

// ErrNoSigner is returned by write calls on a read-only client.
var ErrNoSigner = errors.New("chain client has no signing key")

// Backend is the subset of an Ethereum RPC client the engine needs.
// *ethclient.Client satisfies it.
type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error)
}

// Config identifies the contracts of one network.
type Config struct {
	Network               string
	RPCURL                string
	PaymentsAddress       common.Address
	TokenAddress          common.Address
	StorageServiceAddress common.Address

	// PrivateKeyHex signs deposits, withdrawals and approvals. Empty gives a
	// read-only client.
	PrivateKeyHex string

	// GasLimit overrides gas estimation when non-zero.
	GasLimit uint64
}

// Client reads account state from and submits funding transactions to the
// payments contract. Transactions from one client are serialized so nonces
// never collide.
type Client struct {
	backend Backend
	cfg     Config
	abis    *contractABIs
	key     *ecdsa.PrivateKey
	from    common.Address
	metrics *observability.Metrics
	logger  zerolog.Logger

	sendMu sync.Mutex
}

func NewClient(backend Backend, cfg Config, logger zerolog.Logger) (*Client, error) {
	abis, err := parseABIs()
	if err != nil {
		return nil, err
	}
	c := &Client{
		backend: backend,
		cfg:     cfg,
		abis:    abis,
		logger:  logger.With().Str("network", cfg.Network).Logger(),
	}
	if cfg.PrivateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	return c, nil
}

// Dial connects to cfg.RPCURL.
func Dial(ctx context.Context, cfg Config, logger zerolog.Logger) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Network, err)
	}
	c, err := NewClient(rpc, cfg, logger)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) WithMetrics(m *observability.Metrics) *Client {
	c.metrics = m
	return c
}

// Address is the signing account, zero for a read-only client.
func (c *Client) Address() common.Address {
	return c.from
}

// Ping checks that the RPC endpoint answers.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.backend.ChainID(ctx)
	return err
}

// FetchAccountSnapshot reads the wallet, deposit and operator approval of
// address concurrently.
func (c *Client) FetchAccountSnapshot(ctx context.Context, address common.Address) (*account.Snapshot, error) {
	snap := &account.Snapshot{
		Network: c.cfg.Network,
		Address: address,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bal, err := observe(c, "balance_at", func() (*big.Int, error) {
			return c.backend.BalanceAt(gctx, address, nil)
		})
		if err != nil {
			return fmt.Errorf("native balance: %w", err)
		}
		snap.NativeGasBalance = bal
		return nil
	})

	g.Go(func() error {
		out, err := c.call(gctx, c.cfg.TokenAddress, c.abis.erc20, "balanceOf", address)
		if err != nil {
			return fmt.Errorf("token balance: %w", err)
		}
		snap.WalletTokenBalance, err = bigAt(out, 0)
		return err
	})

	g.Go(func() error {
		out, err := c.call(gctx, c.cfg.PaymentsAddress, c.abis.payments, "accounts", c.cfg.TokenAddress, address)
		if err != nil {
			return fmt.Errorf("payments account: %w", err)
		}
		if snap.DepositedBalance, err = bigAt(out, 0); err != nil {
			return err
		}
		if snap.Allowances.LockupUsed, err = bigAt(out, 1); err != nil {
			return err
		}
		snap.Allowances.RateUsed, err = bigAt(out, 2)
		return err
	})

	var rateAllowance, lockupAllowance, maxLockup *big.Int
	g.Go(func() error {
		out, err := c.call(gctx, c.cfg.PaymentsAddress, c.abis.payments, "operatorApprovals",
			c.cfg.TokenAddress, address, c.cfg.StorageServiceAddress)
		if err != nil {
			return fmt.Errorf("operator approval: %w", err)
		}
		if rateAllowance, err = bigAt(out, 1); err != nil {
			return err
		}
		if lockupAllowance, err = bigAt(out, 2); err != nil {
			return err
		}
		maxLockup, err = bigAt(out, 5)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch snapshot %s: %w", address.Hex(), err)
	}

	snap.Allowances.RateAllowance = rateAllowance
	snap.Allowances.LockupAllowance = lockupAllowance
	if maxLockup.IsInt64() {
		snap.Allowances.MaxLockupPeriod = maxLockup.Int64()
	} else {
		snap.Allowances.MaxLockupPeriod = 1<<63 - 1
	}
	snap.FetchedAt = time.Now().UTC()
	return snap, nil
}

// FetchCurrentPrice reads the storage service list price per TiB per epoch.
func (c *Client) FetchCurrentPrice(ctx context.Context) (*big.Int, error) {
	out, err := c.call(ctx, c.cfg.StorageServiceAddress, c.abis.service, "pricePerTiBPerEpoch")
	if err != nil {
		return nil, fmt.Errorf("fetch price: %w", err)
	}
	return bigAt(out, 0)
}

// SubmitDeposit deposits amount into the signer's payments account. When the
// token allowance for the payments contract is short it first approves
// amount and waits for the approval to be mined.
func (c *Client) SubmitDeposit(ctx context.Context, amount *big.Int) (string, error) {
	if c.key == nil {
		return "", ErrNoSigner
	}

	out, err := c.call(ctx, c.cfg.TokenAddress, c.abis.erc20, "allowance", c.from, c.cfg.PaymentsAddress)
	if err != nil {
		return "", fmt.Errorf("read token allowance: %w", err)
	}
	allowance, err := bigAt(out, 0)
	if err != nil {
		return "", err
	}

	if allowance.Cmp(amount) < 0 {
		approveTx, err := c.send(ctx, c.cfg.TokenAddress, c.abis.erc20, "approve", c.cfg.PaymentsAddress, amount)
		if err != nil {
			return "", fmt.Errorf("approve token: %w", err)
		}
		receipt, err := bind.WaitMined(ctx, c.backend, approveTx)
		if err != nil {
			return "", fmt.Errorf("wait for approval %s: %w", approveTx.Hash().Hex(), err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			return "", fmt.Errorf("approval %s reverted", approveTx.Hash().Hex())
		}
		c.logger.Info().Str("tx", approveTx.Hash().Hex()).Str("amount", amount.String()).Msg("token approval mined")
	}

	tx, err := c.send(ctx, c.cfg.PaymentsAddress, c.abis.payments, "deposit", c.cfg.TokenAddress, c.from, amount)
	if err != nil {
		return "", fmt.Errorf("deposit: %w", err)
	}
	return tx.Hash().Hex(), nil
}

// SubmitWithdraw withdraws amount of available deposit back to the wallet.
func (c *Client) SubmitWithdraw(ctx context.Context, amount *big.Int) (string, error) {
	if c.key == nil {
		return "", ErrNoSigner
	}
	tx, err := c.send(ctx, c.cfg.PaymentsAddress, c.abis.payments, "withdraw", c.cfg.TokenAddress, amount)
	if err != nil {
		return "", fmt.Errorf("withdraw: %w", err)
	}
	return tx.Hash().Hex(), nil
}

// SetAllowances approves the storage service as operator with the given
// rate and lockup allowances.
func (c *Client) SetAllowances(ctx context.Context, rate, lockup *big.Int, maxLockupPeriod int64) (string, error) {
	if c.key == nil {
		return "", ErrNoSigner
	}
	tx, err := c.send(ctx, c.cfg.PaymentsAddress, c.abis.payments, "setOperatorApproval",
		c.cfg.TokenAddress, c.cfg.StorageServiceAddress, true, rate, lockup, big.NewInt(maxLockupPeriod))
	if err != nil {
		return "", fmt.Errorf("set operator approval: %w", err)
	}
	return tx.Hash().Hex(), nil
}

func (c *Client) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	raw, err := observe(c, method, func() ([]byte, error) {
		return c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	})
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// send signs and broadcasts a legacy transaction. Gas price is the node's
// suggestion plus 20%.
func (c *Client) send(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...interface{}) (*types.Transaction, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	chainID, err := c.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	nonce, err := c.backend.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(120)), big.NewInt(100))

	gasLimit := c.cfg.GasLimit
	if gasLimit == 0 {
		gasLimit, err = c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.from, To: &to, Data: data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas for %s: %w", method, err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}

	_, err = observe(c, "send_"+method, func() (struct{}, error) {
		return struct{}{}, c.backend.SendTransaction(ctx, signed)
	})
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	c.logger.Info().
		Str("method", method).
		Str("tx", signed.Hash().Hex()).
		Uint64("nonce", nonce).
		Uint64("gas", gasLimit).
		Msg("transaction sent")
	return signed, nil
}

func observe[T any](c *Client, method string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	if c.metrics != nil {
		status := "ok"
		if err != nil {
			status = "error"
		}
		c.metrics.ChainCalls.WithLabelValues(method, status).Inc()
		c.metrics.ChainCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
	return v, err
}

func bigAt(out []interface{}, i int) (*big.Int, error) {
	if i >= len(out) {
		return nil, fmt.Errorf("output %d missing, got %d values", i, len(out))
	}
	v, ok := out[i].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("output %d: expected *big.Int, got %T", i, out[i])
	}
	return new(big.Int).Set(v), nil
}
