package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PayRunway/internal/observability"
)

var (
	paymentsAddr = common.HexToAddress("0x0000000000000000000000000000000000000001")
	tokenAddr    = common.HexToAddress("0x0000000000000000000000000000000000000002")
	serviceAddr  = common.HexToAddress("0x0000000000000000000000000000000000000003")
	ownerAddr    = common.HexToAddress("0x00000000000000000000000000000000000000a1")
)

// fakeBackend answers contract calls from in-memory state and records
// every transaction sent.
type fakeBackend struct {
	t    *testing.T
	abis *contractABIs

	mu             sync.Mutex
	funds          *big.Int
	lockupCurrent  *big.Int
	lockupRate     *big.Int
	rateAllowance  *big.Int
	lockupAllow    *big.Int
	maxLockup      *big.Int
	tokenBalance   *big.Int
	tokenAllowance *big.Int
	native         *big.Int
	price          *big.Int

	callErr error
	sent    []*types.Transaction
	methods []string
}

func newFakeBackend(t *testing.T) *fakeBackend {
	abis, err := parseABIs()
	require.NoError(t, err)
	return &fakeBackend{
		t:              t,
		abis:           abis,
		funds:          big.NewInt(5_000),
		lockupCurrent:  big.NewInt(1_000),
		lockupRate:     big.NewInt(7),
		rateAllowance:  big.NewInt(100),
		lockupAllow:    big.NewInt(100_000),
		maxLockup:      big.NewInt(28_800),
		tokenBalance:   big.NewInt(9_000),
		tokenAllowance: big.NewInt(0),
		native:         big.NewInt(1e18),
		price:          big.NewInt(42),
	}
}

func (f *fakeBackend) contractFor(to common.Address) abi.ABI {
	switch to {
	case paymentsAddr:
		return f.abis.payments
	case tokenAddr:
		return f.abis.erc20
	case serviceAddr:
		return f.abis.service
	}
	f.t.Fatalf("call to unknown contract %s", to.Hex())
	return abi.ABI{}
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	contract := f.contractFor(*msg.To)
	method, err := contract.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	var values []interface{}
	switch method.Name {
	case "accounts":
		values = []interface{}{f.funds, f.lockupCurrent, f.lockupRate, big.NewInt(0)}
	case "operatorApprovals":
		values = []interface{}{true, f.rateAllowance, f.lockupAllow, f.lockupRate, f.lockupCurrent, f.maxLockup}
	case "balanceOf":
		values = []interface{}{f.tokenBalance}
	case "allowance":
		values = []interface{}{f.tokenAllowance}
	case "pricePerTiBPerEpoch":
		values = []interface{}{f.price}
	default:
		return nil, fmt.Errorf("unexpected call %s", method.Name)
	}
	return method.Outputs.Pack(values...)
}

func (f *fakeBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	return new(big.Int).Set(f.native), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000), nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 90_000, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	contract := f.contractFor(*tx.To())
	method, err := contract.MethodById(tx.Data()[:4])
	if err != nil {
		return err
	}
	f.sent = append(f.sent, tx)
	f.methods = append(f.methods, method.Name)
	return nil
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(314159), nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func (f *fakeBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func newTestClient(t *testing.T, backend *fakeBackend, signer bool) *Client {
	t.Helper()
	cfg := Config{
		Network:               "calibration",
		PaymentsAddress:       paymentsAddr,
		TokenAddress:          tokenAddr,
		StorageServiceAddress: serviceAddr,
	}
	if signer {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		cfg.PrivateKeyHex = fmt.Sprintf("%x", crypto.FromECDSA(key))
	}
	c, err := NewClient(backend, cfg, zerolog.Nop())
	require.NoError(t, err)
	return c
}

// ============================================================================
// Reads
// ============================================================================

func TestFetchAccountSnapshot(t *testing.T) {
	backend := newFakeBackend(t)
	c := newTestClient(t, backend, false)

	snap, err := c.FetchAccountSnapshot(context.Background(), ownerAddr)
	require.NoError(t, err)

	assert.Equal(t, "calibration", snap.Network)
	assert.Equal(t, ownerAddr, snap.Address)
	assert.Equal(t, "5000", snap.DepositedBalance.String())
	assert.Equal(t, "9000", snap.WalletTokenBalance.String())
	assert.Equal(t, "1000", snap.Allowances.LockupUsed.String())
	assert.Equal(t, "7", snap.Allowances.RateUsed.String())
	assert.Equal(t, "100", snap.Allowances.RateAllowance.String())
	assert.Equal(t, "100000", snap.Allowances.LockupAllowance.String())
	assert.Equal(t, int64(28_800), snap.Allowances.MaxLockupPeriod)
	assert.Equal(t, "4000", snap.Available().String())
	assert.False(t, snap.FetchedAt.IsZero())
	require.NoError(t, snap.Validate())
}

func TestFetchAccountSnapshot_CallError(t *testing.T) {
	backend := newFakeBackend(t)
	backend.callErr = errors.New("connection refused")
	c := newTestClient(t, backend, false)

	_, err := c.FetchAccountSnapshot(context.Background(), ownerAddr)
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.callErr)
}

func TestFetchCurrentPrice(t *testing.T) {
	c := newTestClient(t, newFakeBackend(t), false)
	price, err := c.FetchCurrentPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "42", price.String())
}

func TestChainCallMetrics(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	c := newTestClient(t, newFakeBackend(t), false).WithMetrics(metrics)

	_, err := c.FetchCurrentPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, promtest.ToFloat64(metrics.ChainCalls.WithLabelValues("pricePerTiBPerEpoch", "ok")))
}

// ============================================================================
// Writes
// ============================================================================

func TestWritesRequireSigner(t *testing.T) {
	c := newTestClient(t, newFakeBackend(t), false)
	ctx := context.Background()

	_, err := c.SubmitDeposit(ctx, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoSigner)
	_, err = c.SubmitWithdraw(ctx, big.NewInt(1))
	assert.ErrorIs(t, err, ErrNoSigner)
	_, err = c.SetAllowances(ctx, big.NewInt(1), big.NewInt(1), 1)
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestSubmitDeposit_ApprovesWhenAllowanceShort(t *testing.T) {
	backend := newFakeBackend(t)
	c := newTestClient(t, backend, true)

	ref, err := c.SubmitDeposit(context.Background(), big.NewInt(500))
	require.NoError(t, err)

	require.Equal(t, []string{"approve", "deposit"}, backend.methods)
	assert.Equal(t, backend.sent[1].Hash().Hex(), ref)

	// nonces follow the pending count
	assert.Equal(t, uint64(0), backend.sent[0].Nonce())
	assert.Equal(t, uint64(1), backend.sent[1].Nonce())
	// 120% of the suggested price
	assert.Equal(t, "1200", backend.sent[1].GasPrice().String())

	args, err := c.abis.payments.Methods["deposit"].Inputs.Unpack(backend.sent[1].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, tokenAddr, args[0])
	assert.Equal(t, c.Address(), args[1])
	assert.Equal(t, "500", args[2].(*big.Int).String())

	sender, err := types.Sender(types.LatestSignerForChainID(big.NewInt(314159)), backend.sent[1])
	require.NoError(t, err)
	assert.Equal(t, c.Address(), sender)
}

func TestSubmitDeposit_SkipsApprovalWhenAllowed(t *testing.T) {
	backend := newFakeBackend(t)
	backend.tokenAllowance = big.NewInt(1_000)
	c := newTestClient(t, backend, true)

	_, err := c.SubmitDeposit(context.Background(), big.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, []string{"deposit"}, backend.methods)
}

func TestSubmitWithdraw(t *testing.T) {
	backend := newFakeBackend(t)
	c := newTestClient(t, backend, true)

	_, err := c.SubmitWithdraw(context.Background(), big.NewInt(300))
	require.NoError(t, err)
	require.Equal(t, []string{"withdraw"}, backend.methods)

	args, err := c.abis.payments.Methods["withdraw"].Inputs.Unpack(backend.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, "300", args[1].(*big.Int).String())
}

func TestSetAllowances(t *testing.T) {
	backend := newFakeBackend(t)
	c := newTestClient(t, backend, true)

	_, err := c.SetAllowances(context.Background(), big.NewInt(10), big.NewInt(288_000), 28_800)
	require.NoError(t, err)
	require.Equal(t, []string{"setOperatorApproval"}, backend.methods)

	args, err := c.abis.payments.Methods["setOperatorApproval"].Inputs.Unpack(backend.sent[0].Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, serviceAddr, args[1])
	assert.Equal(t, true, args[2])
	assert.Equal(t, "10", args[3].(*big.Int).String())
	assert.Equal(t, "288000", args[4].(*big.Int).String())
	assert.Equal(t, "28800", args[5].(*big.Int).String())
}

func TestNewClient_BadKey(t *testing.T) {
	_, err := NewClient(newFakeBackend(t), Config{PrivateKeyHex: "0xnothex"}, zerolog.Nop())
	assert.Error(t, err)
}
