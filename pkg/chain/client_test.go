package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

const (
	testTreasury = "0x1111111111111111111111111111111111111111"
	testContract = "0x2222222222222222222222222222222222222222"
	testSender   = "0x3333333333333333333333333333333333333333"
	testTxHash   = "0x4f1a2b3c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8"
)

type fakeBackend struct {
	receipt    *types.Receipt
	receiptErr error
	head       uint64
	nonce      uint64
	gasPrice   *big.Int
	gasLimit   uint64
	sendErr    error
	sent       *types.Transaction
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return f.receipt, f.receiptErr
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return f.gasPrice, nil }

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gasLimit, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.sent = tx
	return f.sendErr
}

func testChainConfig() config.ChainConfig {
	return config.ChainConfig{
		ChainID:          56,
		TreasuryAddress:  testTreasury,
		MinConfirmations: 3,
		GasLimitBuffer:   5000,
		Tokens:           []string{"USDT:" + testContract + ":18:tether"},
	}
}

func transferLog(contract, from, to string, units *big.Int) *types.Log {
	return &types.Log{
		Address: common.HexToAddress(contract),
		Topics: []common.Hash{
			transferEventID(),
			common.BytesToHash(common.HexToAddress(from).Bytes()),
			common.BytesToHash(common.HexToAddress(to).Bytes()),
		},
		Data: common.LeftPadBytes(units.Bytes(), 32),
	}
}

func successfulReceipt(logs ...*types.Log) *types.Receipt {
	return &types.Receipt{
		Status:      types.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(100),
		Logs:        logs,
	}
}

func TestVerifyTransferReturnsTreasuryTransfer(t *testing.T) {
	units := ToUnits(decimal.RequireFromString("1000.5"), 18)
	backend := &fakeBackend{
		head: 102,
		receipt: successfulReceipt(
			transferLog(testContract, testSender, "0x9999999999999999999999999999999999999999", big.NewInt(7)),
			transferLog(testContract, testSender, testTreasury, units),
		),
	}
	client, err := newClient(backend, testChainConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	got, err := client.VerifyTransfer(context.Background(), testTxHash, "usdt")
	if err != nil {
		t.Fatalf("verify transfer: %v", err)
	}
	if !got.Amount.Equal(decimal.RequireFromString("1000.5")) {
		t.Fatalf("unexpected amount %s", got.Amount)
	}
	if !SameAddress(got.Sender, testSender) || !SameAddress(got.Recipient, testTreasury) {
		t.Fatalf("unexpected parties %s -> %s", got.Sender, got.Recipient)
	}
	if got.Token != "USDT" || got.BlockNumber != 100 || got.TxHash != testTxHash {
		t.Fatalf("unexpected transfer %+v", got)
	}
}

func TestVerifyTransferRejections(t *testing.T) {
	units := big.NewInt(1_000_000)
	cases := map[string]struct {
		hash    string
		symbol  string
		backend *fakeBackend
		want    error
	}{
		"malformed hash": {
			hash: "0x1234", symbol: "USDT", backend: &fakeBackend{}, want: ErrInvalidTxHash,
		},
		"unknown token": {
			hash: testTxHash, symbol: "DOGE", backend: &fakeBackend{}, want: ErrUnsupportedToken,
		},
		"missing receipt": {
			hash: testTxHash, symbol: "USDT", backend: &fakeBackend{receiptErr: ethereum.NotFound}, want: ErrTransferNotFound,
		},
		"reverted": {
			hash: testTxHash, symbol: "USDT",
			backend: &fakeBackend{head: 200, receipt: &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}},
			want:    ErrTransferReverted,
		},
		"too few confirmations": {
			hash: testTxHash, symbol: "USDT",
			backend: &fakeBackend{head: 101, receipt: successfulReceipt(transferLog(testContract, testSender, testTreasury, units))},
			want:    ErrNotConfirmed,
		},
		"wrong contract": {
			hash: testTxHash, symbol: "USDT",
			backend: &fakeBackend{head: 200, receipt: successfulReceipt(transferLog(testSender, testSender, testTreasury, units))},
			want:    ErrNoMatchingTransfer,
		},
		"not to treasury": {
			hash: testTxHash, symbol: "USDT",
			backend: &fakeBackend{head: 200, receipt: successfulReceipt(transferLog(testContract, testSender, testSender, units))},
			want:    ErrNoMatchingTransfer,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			client, err := newClient(tc.backend, testChainConfig())
			if err != nil {
				t.Fatalf("new client: %v", err)
			}
			_, err = client.VerifyTransfer(context.Background(), tc.hash, tc.symbol)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestVerifyTransferSurfacesRPCFailures(t *testing.T) {
	rpcErr := errors.New("connection refused")
	client, err := newClient(&fakeBackend{receiptErr: rpcErr}, testChainConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.VerifyTransfer(context.Background(), testTxHash, "USDT")
	if !errors.Is(err, rpcErr) {
		t.Fatalf("expected rpc error to be wrapped, got %v", err)
	}
}

func TestTransferSignsERC20Payout(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	cfg := testChainConfig()
	cfg.HotWalletKey = common.Bytes2Hex(crypto.FromECDSA(key))

	backend := &fakeBackend{nonce: 7, gasPrice: big.NewInt(3_000_000_000), gasLimit: 50_000}
	client, err := newClient(backend, cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	destination := "0x5555555555555555555555555555555555555555"
	hash, err := client.Transfer(context.Background(), TransferRequest{
		Token:       "USDT",
		Destination: destination,
		Amount:      decimal.RequireFromString("90"),
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	tx := backend.sent
	if tx == nil {
		t.Fatal("expected transaction to be sent")
	}
	if hash != tx.Hash().Hex() {
		t.Fatalf("returned hash %s does not match sent tx %s", hash, tx.Hash().Hex())
	}
	if tx.Nonce() != 7 || tx.Gas() != 55_000 {
		t.Fatalf("unexpected nonce/gas %d/%d", tx.Nonce(), tx.Gas())
	}
	if tx.To() == nil || *tx.To() != common.HexToAddress(testContract) {
		t.Fatalf("expected call to token contract, got %v", tx.To())
	}

	sender, err := types.Sender(types.NewEIP155Signer(big.NewInt(56)), tx)
	if err != nil {
		t.Fatalf("recover sender: %v", err)
	}
	if sender != crypto.PubkeyToAddress(key.PublicKey) {
		t.Fatalf("unexpected signer %s", sender.Hex())
	}

	args, err := erc20ABI.Methods["transfer"].Inputs.Unpack(tx.Data()[4:])
	if err != nil {
		t.Fatalf("unpack transfer: %v", err)
	}
	if args[0].(common.Address) != common.HexToAddress(destination) {
		t.Fatalf("unexpected destination %v", args[0])
	}
	want := ToUnits(decimal.RequireFromString("90"), 18)
	if args[1].(*big.Int).Cmp(want) != 0 {
		t.Fatalf("expected %s units, got %s", want, args[1])
	}
}

func TestTransferValidation(t *testing.T) {
	client, err := newClient(&fakeBackend{}, testChainConfig())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Transfer(context.Background(), TransferRequest{Token: "USDT"}); !errors.Is(err, ErrBroadcasterDisabled) {
		t.Fatalf("expected broadcaster disabled, got %v", err)
	}

	key, _ := crypto.GenerateKey()
	cfg := testChainConfig()
	cfg.HotWalletKey = "0x" + common.Bytes2Hex(crypto.FromECDSA(key))
	client, err = newClient(&fakeBackend{}, cfg)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := client.Transfer(context.Background(), TransferRequest{Token: "USDT", Destination: "nope", Amount: decimal.NewFromInt(1)}); !errors.Is(err, ErrInvalidDestination) {
		t.Fatalf("expected invalid destination, got %v", err)
	}
	if _, err := client.Transfer(context.Background(), TransferRequest{Token: "USDT", Destination: testSender, Amount: decimal.Zero}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestNewClientValidatesConfig(t *testing.T) {
	cfg := testChainConfig()
	cfg.TreasuryAddress = "treasury"
	if _, err := newClient(&fakeBackend{}, cfg); err == nil {
		t.Fatal("expected invalid treasury error")
	}

	cfg = testChainConfig()
	cfg.Tokens = []string{"USDT:not-an-address:6:tether"}
	if _, err := newClient(&fakeBackend{}, cfg); err == nil {
		t.Fatal("expected invalid contract error")
	}

	cfg = testChainConfig()
	cfg.HotWalletKey = "zz"
	if _, err := newClient(&fakeBackend{}, cfg); err == nil {
		t.Fatal("expected invalid key error")
	}
}

func TestUnitConversion(t *testing.T) {
	units := ToUnits(decimal.RequireFromString("12.3456789"), 6)
	if units.String() != "12345678" {
		t.Fatalf("expected truncation to 6 decimals, got %s", units)
	}
	if got := FromUnits(big.NewInt(12345678), 6); !got.Equal(decimal.RequireFromString("12.345678")) {
		t.Fatalf("unexpected amount %s", got)
	}
	if !SameAddress(testTreasury, "0x1111111111111111111111111111111111111111") || SameAddress(testTreasury, "x") {
		t.Fatal("address comparison mismatch")
	}
}
