// Package evm backs the token ledger with bridged-token contracts on EVM
// chains. One service key holds the bridge role on every configured token.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/spantoken/bridge-hub/pkg/bridge"
	"github.com/spantoken/bridge-hub/pkg/config"
	"github.com/spantoken/bridge-hub/pkg/ledger"
)

// tokenDecimals is the fixed precision of the bridged token contracts.
const tokenDecimals = 18

// tokenABI is the bridge-role surface of the bridged token contract.
const tokenABI = `[
  {"type":"function","name":"mint","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"burnFrom","stateMutability":"nonpayable","inputs":[{"name":"from","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalMinted","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"totalBurned","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`

type chainBinding struct {
	chainID     *big.Int
	client      *ethclient.Client
	token       *bind.BoundContract
	gasLimit    uint64
	maxGasPrice *big.Int
}

// Ledger implements ledger.Ledger over per-chain token contracts.
type Ledger struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chains  map[bridge.ChainID]*chainBinding
	logger  *zap.Logger
}

// New dials every configured chain and binds its token contract.
func New(cfg *config.EVMLedgerConfig, logger *zap.Logger) (*Ledger, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.BridgePrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to load bridge private key: %w", err)
	}

	parsed, err := abi.JSON(strings.NewReader(tokenABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token abi: %w", err)
	}

	l := &Ledger{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		chains:  make(map[bridge.ChainID]*chainBinding, len(cfg.Chains)),
		logger:  logger.Named("evm"),
	}

	for _, chain := range cfg.Chains {
		client, err := ethclient.Dial(chain.RPCURL)
		if err != nil {
			l.Close()
			return nil, fmt.Errorf("failed to connect to chain %d: %w", chain.ChainID, err)
		}

		binding := &chainBinding{
			chainID:  new(big.Int).SetUint64(chain.ChainID),
			client:   client,
			gasLimit: chain.GasLimit,
			token: bind.NewBoundContract(
				common.HexToAddress(chain.TokenContract), parsed, client, client, client),
		}
		if chain.MaxGasPrice != "" {
			maxGasPrice, ok := new(big.Int).SetString(chain.MaxGasPrice, 10)
			if !ok {
				l.Close()
				return nil, fmt.Errorf("invalid max gas price %q for chain %d", chain.MaxGasPrice, chain.ChainID)
			}
			binding.maxGasPrice = maxGasPrice
		}
		l.chains[bridge.ChainID(chain.ChainID)] = binding

		l.logger.Info("Connected to EVM chain",
			zap.Uint64("chain_id", chain.ChainID),
			zap.String("rpc_url", chain.RPCURL),
			zap.String("token_contract", chain.TokenContract),
			zap.String("bridge_address", l.address.Hex()))
	}

	return l, nil
}

// Close closes every chain connection.
func (l *Ledger) Close() {
	for _, c := range l.chains {
		if c.client != nil {
			c.client.Close()
		}
	}
}

func (l *Ledger) binding(chain bridge.ChainID) (*chainBinding, error) {
	c, ok := l.chains[chain]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ledger.ErrUnknownChain, chain)
	}
	return c, nil
}

// transactor builds a signer with the pending nonce and the gas cap applied.
func (l *Ledger) transactor(ctx context.Context, c *chainBinding) (*bind.TransactOpts, error) {
	auth, err := bind.NewKeyedTransactorWithChainID(l.key, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, l.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	auth.GasLimit = c.gasLimit
	auth.Context = ctx

	if c.maxGasPrice != nil {
		gasPrice, err := c.client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to suggest gas price: %w", err)
		}
		if gasPrice.Cmp(c.maxGasPrice) > 0 {
			l.logger.Warn("Suggested gas price exceeds maximum",
				zap.String("suggested", gasPrice.String()),
				zap.String("max", c.maxGasPrice.String()))
			gasPrice = c.maxGasPrice
		}
		auth.GasPrice = gasPrice
	}

	return auth, nil
}

// Mint credits recipient on the given chain.
func (l *Ledger) Mint(ctx context.Context, chain bridge.ChainID, recipient string, amount decimal.Decimal) error {
	c, err := l.binding(chain)
	if err != nil {
		return err
	}
	to, err := parseAddress(recipient)
	if err != nil {
		return err
	}

	auth, err := l.transactor(ctx, c)
	if err != nil {
		return err
	}

	tx, err := c.token.Transact(auth, "mint", to, toWei(amount))
	if err != nil {
		return fmt.Errorf("mint on chain %d: %w", chain, err)
	}

	l.logger.Info("Mint transaction submitted",
		zap.Uint64("chain", uint64(chain)),
		zap.String("recipient", recipient),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", tx.Hash().Hex()))
	return nil
}

// Burn debits holder on the given chain. The bridge key must hold the
// burner role; holder balances are enforced by the contract.
func (l *Ledger) Burn(ctx context.Context, chain bridge.ChainID, holder string, amount decimal.Decimal) error {
	c, err := l.binding(chain)
	if err != nil {
		return err
	}
	from, err := parseAddress(holder)
	if err != nil {
		return err
	}

	balance, err := l.BalanceOf(ctx, chain, holder)
	if err != nil {
		return err
	}
	if balance.LessThan(amount) {
		return fmt.Errorf("%w: %s has %s, needs %s", ledger.ErrInsufficientBalance, holder, balance, amount)
	}

	auth, err := l.transactor(ctx, c)
	if err != nil {
		return err
	}

	tx, err := c.token.Transact(auth, "burnFrom", from, toWei(amount))
	if err != nil {
		return fmt.Errorf("burn on chain %d: %w", chain, err)
	}

	l.logger.Info("Burn transaction submitted",
		zap.Uint64("chain", uint64(chain)),
		zap.String("holder", holder),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", tx.Hash().Hex()))
	return nil
}

// TotalMinted reads the cumulative mint counter.
func (l *Ledger) TotalMinted(ctx context.Context, chain bridge.ChainID) (decimal.Decimal, error) {
	return l.callUint(ctx, chain, "totalMinted")
}

// TotalBurned reads the cumulative burn counter.
func (l *Ledger) TotalBurned(ctx context.Context, chain bridge.ChainID) (decimal.Decimal, error) {
	return l.callUint(ctx, chain, "totalBurned")
}

// BalanceOf reads an account balance.
func (l *Ledger) BalanceOf(ctx context.Context, chain bridge.ChainID, account string) (decimal.Decimal, error) {
	c, err := l.binding(chain)
	if err != nil {
		return decimal.Zero, err
	}
	addr, err := parseAddress(account)
	if err != nil {
		return decimal.Zero, err
	}

	var out []interface{}
	if err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", addr); err != nil {
		return decimal.Zero, fmt.Errorf("balanceOf on chain %d: %w", chain, err)
	}
	return fromWei(out[0].(*big.Int)), nil
}

func (l *Ledger) callUint(ctx context.Context, chain bridge.ChainID, method string) (decimal.Decimal, error) {
	c, err := l.binding(chain)
	if err != nil {
		return decimal.Zero, err
	}

	var out []interface{}
	if err := c.token.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return decimal.Zero, fmt.Errorf("%s on chain %d: %w", method, chain, err)
	}
	return fromWei(out[0].(*big.Int)), nil
}

func parseAddress(account string) (common.Address, error) {
	if !common.IsHexAddress(account) {
		return common.Address{}, fmt.Errorf("account %q is not a hex address", account)
	}
	return common.HexToAddress(account), nil
}

func toWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(tokenDecimals).BigInt()
}

func fromWei(amount *big.Int) decimal.Decimal {
	return decimal.NewFromBigInt(amount, -tokenDecimals)
}
