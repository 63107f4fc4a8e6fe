package auth

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0gfoundation/nova-relay/internal/chain"
)

var ErrUnauthorized = errors.New("UNAUTHORIZED")

var (
	// Any matches every address in a Guard rule.
	Any = common.HexToAddress("0xffffffffffffffffffffffffffffffffffffffff")
	// AnySig matches every selector in a Guard rule.
	AnySig = [4]byte{0xff, 0xff, 0xff, 0xff}
)

// Selector returns the 4-byte function selector of a canonical signature
// such as "transferFrom(address,address,uint256)".
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], crypto.Keccak256([]byte(signature))[:4])
	return sel
}

// Authority answers "may src call function sig on dst".
type Authority interface {
	CanCall(src, dst common.Address, sig [4]byte) bool
}

// ── Owned ────────────────────────────────────────────────────────────────────

var (
	selSetOwner     = Selector("setOwner(address)")
	selSetAuthority = Selector("setAuthority(address)")
)

// Owned is embedded by contracts that gate entry points. A caller is
// authorized when it is the contract itself, the owner, or permitted by the
// authority. The zero value has no owner and no authority.
type Owned struct {
	Self      common.Address
	owner     common.Address
	authority Authority
}

func NewOwned(self, owner common.Address) Owned {
	return Owned{Self: self, owner: owner}
}

func (o *Owned) Owner() common.Address { return o.owner }

func (o *Owned) Authority() Authority { return o.authority }

func (o *Owned) IsAuthorized(src common.Address, sig [4]byte) bool {
	if src == o.Self || src == o.owner {
		return true
	}
	if o.authority == nil {
		return false
	}
	return o.authority.CanCall(src, o.Self, sig)
}

// Auth fails with ErrUnauthorized unless the message sender may call sig.
func (o *Owned) Auth(msg *chain.Msg, sig [4]byte) error {
	if !o.IsAuthorized(msg.Sender, sig) {
		return ErrUnauthorized
	}
	return nil
}

func (o *Owned) SetOwner(msg *chain.Msg, owner common.Address) error {
	if err := o.Auth(msg, selSetOwner); err != nil {
		return err
	}
	o.owner = owner
	return nil
}

func (o *Owned) SetAuthority(msg *chain.Msg, a Authority) error {
	if err := o.Auth(msg, selSetAuthority); err != nil {
		return err
	}
	o.authority = a
	return nil
}

// ── Guard ────────────────────────────────────────────────────────────────────

var (
	selPermit = Selector("permit(address,address,bytes32)")
	selForbid = Selector("forbid(address,address,bytes32)")
)

type rule struct {
	src, dst common.Address
	sig      [4]byte
}

// Guard is an access-control list Authority. Any and AnySig act as
// wildcards on either side of a rule.
type Guard struct {
	Owned
	acl map[rule]bool
}

func NewGuard(self, owner common.Address) *Guard {
	return &Guard{Owned: NewOwned(self, owner), acl: make(map[rule]bool)}
}

type guardState struct {
	owned Owned
	acl   map[rule]bool
}

func (g *Guard) Snapshot() any {
	acl := make(map[rule]bool, len(g.acl))
	for k, v := range g.acl {
		acl[k] = v
	}
	return guardState{owned: g.Owned, acl: acl}
}

func (g *Guard) Restore(s any) {
	st := s.(guardState)
	g.Owned, g.acl = st.owned, st.acl
}

func (g *Guard) CanCall(src, dst common.Address, sig [4]byte) bool {
	for _, s := range [2]common.Address{src, Any} {
		for _, d := range [2]common.Address{dst, Any} {
			for _, f := range [2][4]byte{sig, AnySig} {
				if g.acl[rule{s, d, f}] {
					return true
				}
			}
		}
	}
	return false
}

func (g *Guard) Permit(msg *chain.Msg, src, dst common.Address, sig [4]byte) error {
	if err := g.Auth(msg, selPermit); err != nil {
		return err
	}
	g.acl[rule{src, dst, sig}] = true
	return nil
}

func (g *Guard) Forbid(msg *chain.Msg, src, dst common.Address, sig [4]byte) error {
	if err := g.Auth(msg, selForbid); err != nil {
		return err
	}
	delete(g.acl, rule{src, dst, sig})
	return nil
}

// PermitAnySource opens sig on dst to every caller.
func (g *Guard) PermitAnySource(msg *chain.Msg, dst common.Address, sig [4]byte) error {
	return g.Permit(msg, Any, dst, sig)
}
