package sandbox

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/0gfoundation/nova-relay/internal/auth"
	"github.com/0gfoundation/nova-relay/internal/chain"
	"github.com/0gfoundation/nova-relay/internal/erc20"
)

// ApprovalEscrow holds relayers' token approvals so that strategies can
// never be handed an allowance on the sandbox itself. Only the sandbox can
// move approved tokens.
type ApprovalEscrow struct {
	self    common.Address
	sandbox common.Address
}

func NewApprovalEscrow(self, sandbox common.Address) *ApprovalEscrow {
	return &ApprovalEscrow{self: self, sandbox: sandbox}
}

func (e *ApprovalEscrow) Address() common.Address { return e.self }

// TransferApprovedToken pulls amount of token from sender to recipient using
// the allowance sender granted the escrow.
func (e *ApprovalEscrow) TransferApprovedToken(msg *chain.Msg, token common.Address, amount *big.Int, sender, recipient common.Address) error {
	if msg.Sender != e.sandbox {
		return auth.ErrUnauthorized
	}
	return erc20.SafeTransferFrom(msg.Call(e.self), token, sender, recipient, amount)
}
