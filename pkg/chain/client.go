package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/angelmondragon/yieldvault-backend/pkg/config"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTxHash       = errors.New("invalid transaction hash")
	ErrUnsupportedToken    = errors.New("unsupported token")
	ErrTransferNotFound    = errors.New("transaction not found")
	ErrTransferReverted    = errors.New("transaction reverted")
	ErrNotConfirmed        = errors.New("transaction not yet confirmed")
	ErrNoMatchingTransfer  = errors.New("no token transfer to the treasury in transaction")
	ErrInvalidDestination  = errors.New("invalid destination address")
	ErrInvalidAmount       = errors.New("transfer amount must be positive")
	ErrBroadcasterDisabled = errors.New("hot wallet key not configured")
)

// ethBackend is the subset of ethclient.Client the ledger relies on.
type ethBackend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// VerifiedTransfer is an on-chain ERC-20 transfer into the treasury.
type VerifiedTransfer struct {
	TxHash      string
	Sender      string
	Recipient   string
	Token       string
	Amount      decimal.Decimal
	BlockNumber uint64
}

// TransferRequest describes a payout from the hot wallet.
type TransferRequest struct {
	Token       string
	Destination string
	Amount      decimal.Decimal
}

// Client verifies deposits and broadcasts withdrawals against an EVM chain.
type Client struct {
	backend          ethBackend
	closer           func()
	chainID          *big.Int
	treasury         common.Address
	tokens           map[string]config.Token
	hotWallet        *ecdsa.PrivateKey
	minConfirmations uint64
	gasLimitBuffer   uint64
	rpcTimeout       time.Duration
}

// New dials the configured RPC endpoint.
func New(ctx context.Context, cfg config.ChainConfig) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("chain rpc url is required")
	}
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	client, err := newClient(rpc, cfg)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	client.closer = rpc.Close
	return client, nil
}

func newClient(backend ethBackend, cfg config.ChainConfig) (*Client, error) {
	if backend == nil {
		return nil, fmt.Errorf("chain backend is required")
	}
	if !IsAddress(cfg.TreasuryAddress) {
		return nil, fmt.Errorf("chain treasury address %q is invalid", cfg.TreasuryAddress)
	}
	tokens, err := cfg.ParsedTokens()
	if err != nil {
		return nil, err
	}
	for symbol, token := range tokens {
		if !IsAddress(token.Contract) {
			return nil, fmt.Errorf("token %s contract %q is invalid", symbol, token.Contract)
		}
	}

	var key *ecdsa.PrivateKey
	if raw := strings.TrimSpace(cfg.HotWalletKey); raw != "" {
		key, err = crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse hot wallet key: %w", err)
		}
	}

	timeout := cfg.RPCTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		backend:          backend,
		chainID:          big.NewInt(cfg.ChainID),
		treasury:         common.HexToAddress(cfg.TreasuryAddress),
		tokens:           tokens,
		hotWallet:        key,
		minConfirmations: cfg.MinConfirmations,
		gasLimitBuffer:   cfg.GasLimitBuffer,
		rpcTimeout:       timeout,
	}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c != nil && c.closer != nil {
		c.closer()
	}
}

// Token returns the configured token for symbol.
func (c *Client) Token(symbol string) (config.Token, bool) {
	token, ok := c.tokens[strings.ToUpper(strings.TrimSpace(symbol))]
	return token, ok
}

// VerifyTransfer checks that txHash is a successful, sufficiently confirmed
// ERC-20 transfer of symbol into the treasury and returns its details.
func (c *Client) VerifyTransfer(ctx context.Context, txHash, symbol string) (VerifiedTransfer, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(txHash))
	if err != nil || len(raw) != common.HashLength {
		return VerifiedTransfer{}, ErrInvalidTxHash
	}
	token, ok := c.Token(symbol)
	if !ok {
		return VerifiedTransfer{}, fmt.Errorf("%w: %s", ErrUnsupportedToken, symbol)
	}

	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()

	hash := common.BytesToHash(raw)
	receipt, err := c.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return VerifiedTransfer{}, ErrTransferNotFound
		}
		return VerifiedTransfer{}, fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return VerifiedTransfer{}, ErrTransferReverted
	}

	if c.minConfirmations > 0 && receipt.BlockNumber != nil {
		head, err := c.backend.BlockNumber(ctx)
		if err != nil {
			return VerifiedTransfer{}, fmt.Errorf("fetch head block: %w", err)
		}
		mined := receipt.BlockNumber.Uint64()
		if head < mined || head-mined+1 < c.minConfirmations {
			return VerifiedTransfer{}, ErrNotConfirmed
		}
	}

	contract := common.HexToAddress(token.Contract)
	eventID := transferEventID()
	for _, entry := range receipt.Logs {
		if entry == nil || entry.Address != contract || len(entry.Topics) != 3 || entry.Topics[0] != eventID {
			continue
		}
		to := common.BytesToAddress(entry.Topics[2].Bytes())
		if to != c.treasury {
			continue
		}
		from := common.BytesToAddress(entry.Topics[1].Bytes())
		amount := FromUnits(new(big.Int).SetBytes(entry.Data), token.Decimals)
		if !amount.IsPositive() {
			continue
		}
		var block uint64
		if receipt.BlockNumber != nil {
			block = receipt.BlockNumber.Uint64()
		}
		return VerifiedTransfer{
			TxHash:      strings.ToLower(hash.Hex()),
			Sender:      from.Hex(),
			Recipient:   to.Hex(),
			Token:       token.Symbol,
			Amount:      amount,
			BlockNumber: block,
		}, nil
	}
	return VerifiedTransfer{}, ErrNoMatchingTransfer
}

// Transfer signs and broadcasts an ERC-20 transfer from the hot wallet and
// returns the transaction hash. It does not wait for inclusion.
func (c *Client) Transfer(ctx context.Context, req TransferRequest) (string, error) {
	if c.hotWallet == nil {
		return "", ErrBroadcasterDisabled
	}
	token, ok := c.Token(req.Token)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedToken, req.Token)
	}
	if !IsAddress(req.Destination) {
		return "", ErrInvalidDestination
	}
	units := ToUnits(req.Amount, token.Decimals)
	if units.Sign() <= 0 {
		return "", ErrInvalidAmount
	}

	data, err := erc20ABI.Pack("transfer", common.HexToAddress(req.Destination), units)
	if err != nil {
		return "", fmt.Errorf("pack transfer: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.rpcTimeout)
	defer cancel()

	from := crypto.PubkeyToAddress(c.hotWallet.PublicKey)
	contract := common.HexToAddress(token.Contract)

	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return "", fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}
	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &contract,
		Data:  data,
		Value: big.NewInt(0),
	})
	if err != nil {
		return "", fmt.Errorf("estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, contract, big.NewInt(0), gasLimit+c.gasLimitBuffer, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.hotWallet)
	if err != nil {
		return "", fmt.Errorf("sign transfer: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send transfer: %w", err)
	}
	return signed.Hash().Hex(), nil
}
