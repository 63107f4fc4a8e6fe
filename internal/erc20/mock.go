package erc20

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/nova-relay/internal/chain"
)

// ReturnMode selects how a Mock token reports success.
type ReturnMode int

const (
	Standard ReturnMode = iota
	NoReturnValue
	ReturnFalse
	BadReturnValue
)

func (m ReturnMode) String() string {
	switch m {
	case Standard:
		return "standard"
	case NoReturnValue:
		return "no-return-value"
	case ReturnFalse:
		return "return-false"
	case BadReturnValue:
		return "bad-return-value"
	default:
		return "unknown"
	}
}

// transferGas approximates the cost of a warm ERC20 transfer.
const transferGas = 30_000

type allowanceKey struct{ owner, spender common.Address }

type mockState struct {
	balances   map[common.Address]*big.Int
	allowances map[allowanceKey]*big.Int
	supply     *big.Int
}

// Mock is an in-memory ERC20 token.
type Mock struct {
	Symbol string
	mode   ReturnMode
	st     mockState
}

func NewMock(symbol string, mode ReturnMode) *Mock {
	return &Mock{
		Symbol: symbol,
		mode:   mode,
		st: mockState{
			balances:   make(map[common.Address]*big.Int),
			allowances: make(map[allowanceKey]*big.Int),
			supply:     new(big.Int),
		},
	}
}

func (t *Mock) Snapshot() any {
	cp := mockState{
		balances:   make(map[common.Address]*big.Int, len(t.st.balances)),
		allowances: make(map[allowanceKey]*big.Int, len(t.st.allowances)),
		supply:     new(big.Int).Set(t.st.supply),
	}
	for k, v := range t.st.balances {
		cp.balances[k] = new(big.Int).Set(v)
	}
	for k, v := range t.st.allowances {
		cp.allowances[k] = new(big.Int).Set(v)
	}
	return cp
}

func (t *Mock) Restore(s any) { t.st = s.(mockState) }

func (t *Mock) TotalSupply() *big.Int { return new(big.Int).Set(t.st.supply) }

func (t *Mock) BalanceOf(owner common.Address) *big.Int {
	if b, ok := t.st.balances[owner]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *Mock) Allowance(owner, spender common.Address) *big.Int {
	if a, ok := t.st.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Mint credits amount to `to`. Anyone may mint.
func (t *Mock) Mint(msg *chain.Msg, to common.Address, amount *big.Int) error {
	if err := msg.UseGas(transferGas); err != nil {
		return err
	}
	t.st.balances[to] = new(big.Int).Add(t.BalanceOf(to), amount)
	t.st.supply.Add(t.st.supply, amount)
	return nil
}

func (t *Mock) Transfer(msg *chain.Msg, to common.Address, amount *big.Int) ([]byte, error) {
	if err := msg.UseGas(transferGas); err != nil {
		return nil, err
	}
	if err := t.move(msg.Sender, to, amount); err != nil {
		return nil, err
	}
	return t.ret(), nil
}

func (t *Mock) TransferFrom(msg *chain.Msg, from, to common.Address, amount *big.Int) ([]byte, error) {
	if err := msg.UseGas(transferGas); err != nil {
		return nil, err
	}
	key := allowanceKey{from, msg.Sender}
	allowed := t.Allowance(from, msg.Sender)
	if allowed.Cmp(amount) < 0 {
		return nil, ErrInsufficientAllow
	}
	if err := t.move(from, to, amount); err != nil {
		return nil, err
	}
	t.st.allowances[key] = allowed.Sub(allowed, amount)
	return t.ret(), nil
}

func (t *Mock) Approve(msg *chain.Msg, spender common.Address, amount *big.Int) ([]byte, error) {
	if err := msg.UseGas(transferGas); err != nil {
		return nil, err
	}
	t.st.allowances[allowanceKey{msg.Sender, spender}] = new(big.Int).Set(amount)
	return t.ret(), nil
}

func (t *Mock) move(from, to common.Address, amount *big.Int) error {
	bal := t.BalanceOf(from)
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	t.st.balances[from] = bal.Sub(bal, amount)
	t.st.balances[to] = new(big.Int).Add(t.BalanceOf(to), amount)
	return nil
}

func (t *Mock) ret() []byte {
	switch t.mode {
	case NoReturnValue:
		return nil
	case ReturnFalse:
		return EncodeBool(false)
	case BadReturnValue:
		return common.LeftPadBytes([]byte{0x42}, 32)
	default:
		return EncodeBool(true)
	}
}
