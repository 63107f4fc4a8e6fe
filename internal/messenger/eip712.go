package messenger

import (
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var messageTypeHash = crypto.Keccak256Hash([]byte(
	"CrossDomainMessage(uint256 nonce,address sender,address target,bytes data,uint256 gasLimit)",
))

// Domain binds signatures to one outbox on one chain.
type Domain struct {
	ChainID *big.Int
	Outbox  common.Address
}

func (d Domain) separator() [32]byte {
	domainTypeHash := crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)",
	))
	nameHash := crypto.Keccak256Hash([]byte("Nova Cross Domain Messenger"))
	versionHash := crypto.Keccak256Hash([]byte("1"))

	// (bytes32, bytes32, bytes32, uint256, address), each in a 32-byte slot
	encoded := make([]byte, 5*32)
	copy(encoded[0:32], domainTypeHash[:])
	copy(encoded[32:64], nameHash[:])
	copy(encoded[64:96], versionHash[:])
	d.ChainID.FillBytes(encoded[96:128])
	copy(encoded[140:160], d.Outbox.Bytes())

	return crypto.Keccak256Hash(encoded)
}

func (d Domain) digest(m *Message) [32]byte {
	dataHash := crypto.Keccak256Hash(m.Data)

	encoded := make([]byte, 6*32)
	copy(encoded[0:32], messageTypeHash[:])
	new(big.Int).SetUint64(m.Nonce).FillBytes(encoded[32:64])
	copy(encoded[76:96], m.Sender.Bytes())
	copy(encoded[108:128], m.Target.Bytes())
	copy(encoded[128:160], dataHash[:])
	new(big.Int).SetUint64(m.GasLimit).FillBytes(encoded[160:192])

	structHash := crypto.Keccak256Hash(encoded)
	sep := d.separator()

	// keccak256(0x1901 || domainSeparator || structHash)
	msg := make([]byte, 2+32+32)
	msg[0] = 0x19
	msg[1] = 0x01
	copy(msg[2:34], sep[:])
	copy(msg[34:66], structHash[:])
	return crypto.Keccak256Hash(msg)
}

// Sign signs the message in place with V in {27,28}.
func (d Domain) Sign(m *Message, key *ecdsa.PrivateKey) error {
	digest := d.digest(m)
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return err
	}
	sig[64] += 27
	m.Signature = sig
	return nil
}

// Verify recovers the signer of a message.
func (d Domain) Verify(m *Message) (common.Address, error) {
	if len(m.Signature) != 65 {
		return common.Address{}, ErrBadSignature
	}
	digest := d.digest(m)
	sig := make([]byte, 65)
	copy(sig, m.Signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
