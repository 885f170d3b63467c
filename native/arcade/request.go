package arcade

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const (
	// ProtocolName is the EIP-712 domain name.
	ProtocolName = "ArcadeSwap"
	// ProtocolVersion is the EIP-712 domain version.
	ProtocolVersion = "1"
	// RequestType is the type string RequestTypeHash commits to.
	RequestType = "Request(address maker,address requester,uint256 gameId,uint256 amount,uint256 reserved1,uint256 reserved2)"
)

var (
	// DomainTypeHash is keccak256 of the EIP-712 domain type string.
	DomainTypeHash = ethcrypto.Keccak256Hash([]byte("EIP712Domain(string name,string version,uint256 chainId,address verifyingContract)"))
	// RequestTypeHash is keccak256 of RequestType. The encoded struct also
	// carries gcToken after requester, which the type string does not
	// declare. Digests therefore differ from those of generic EIP-712
	// tooling and match the ArcadeSwap signing service.
	RequestTypeHash = common.HexToHash("0xd32aee5345fa208c941f81688a0bd6baed57015ace9fce44cfd25c5fb8a5fbf7")
)

// Operation names the engine call a request authorises. It travels in the
// signed reserved2 slot so a request issued for one call cannot be spent on
// another.
type Operation uint64

const (
	OpBuy  Operation = 1
	OpSell Operation = 2
	OpMint Operation = 3
)

func (op Operation) String() string {
	switch op {
	case OpBuy:
		return "buy"
	case OpSell:
		return "sell"
	case OpMint:
		return "mint"
	default:
		return fmt.Sprintf("operation(%d)", uint64(op))
	}
}

// Word returns op as the reserved2 value to sign.
func (op Operation) Word() *uint256.Int {
	return uint256.NewInt(uint64(op))
}

// Operation reports the call the request was signed for. Unknown or
// oversized values yield zero.
func (r *SignedRequest) Operation() Operation {
	if r.Reserved2 == nil || !r.Reserved2.IsUint64() {
		return 0
	}
	switch op := Operation(r.Reserved2.Uint64()); op {
	case OpBuy, OpSell, OpMint:
		return op
	}
	return 0
}

// Domain binds signatures to one deployment on one network.
type Domain struct {
	Name              string
	Version           string
	ChainID           *big.Int
	VerifyingContract common.Address
}

// NewDomain returns the ArcadeSwap v1 domain for a deployment.
func NewDomain(chainID uint64, verifyingContract common.Address) Domain {
	return Domain{
		Name:              ProtocolName,
		Version:           ProtocolVersion,
		ChainID:           new(big.Int).SetUint64(chainID),
		VerifyingContract: verifyingContract,
	}
}

// Separator computes the EIP-712 domain separator.
func (d Domain) Separator() common.Hash {
	chainID := new(uint256.Int)
	if d.ChainID != nil {
		chainID.SetFromBig(d.ChainID)
	}
	return ethcrypto.Keccak256Hash(
		DomainTypeHash.Bytes(),
		ethcrypto.Keccak256([]byte(d.Name)),
		ethcrypto.Keccak256([]byte(d.Version)),
		word(chainID),
		common.LeftPadBytes(d.VerifyingContract.Bytes(), 32),
	)
}

// SignedRequest is a backend-authorised instruction for one buy, sell or mint.
type SignedRequest struct {
	Maker       common.Address
	Requester   common.Address
	CurrencyRef common.Address
	GameID      *uint256.Int
	Amount      *uint256.Int
	Reserved1   *uint256.Int
	Reserved2   *uint256.Int

	V uint8
	R common.Hash
	S common.Hash
}

// StructHash returns keccak256(abi.encode(typeHash, fields...)). The
// reserved slots are always encoded, zero or not.
func (r *SignedRequest) StructHash() common.Hash {
	return ethcrypto.Keccak256Hash(
		RequestTypeHash.Bytes(),
		common.LeftPadBytes(r.Maker.Bytes(), 32),
		common.LeftPadBytes(r.Requester.Bytes(), 32),
		common.LeftPadBytes(r.CurrencyRef.Bytes(), 32),
		word(r.GameID),
		word(r.Amount),
		word(r.Reserved1),
		word(r.Reserved2),
	)
}

// Digest returns keccak256("\x19\x01" || domainSeparator || structHash).
func (r *SignedRequest) Digest(domain Domain) common.Hash {
	sep := domain.Separator()
	structHash := r.StructHash()
	return ethcrypto.Keccak256Hash([]byte{0x19, 0x01}, sep.Bytes(), structHash.Bytes())
}

// Signature returns the 65-byte [R || S || V] form with V normalised to 0/1.
func (r *SignedRequest) Signature() ([]byte, error) {
	v := r.V
	if v >= 27 {
		v -= 27
	}
	if v > 1 {
		return nil, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, r.V)
	}
	sig := make([]byte, 65)
	copy(sig[:32], r.R.Bytes())
	copy(sig[32:64], r.S.Bytes())
	sig[64] = v
	return sig, nil
}

// SignRequest signs req for domain with key and fills V, R and S. V is set in
// the 27/28 form used by wallet tooling.
func SignRequest(key *ecdsa.PrivateKey, domain Domain, req *SignedRequest) error {
	if key == nil || req == nil {
		return fmt.Errorf("arcade: signing key and request required")
	}
	digest := req.Digest(domain)
	sig, err := ethcrypto.Sign(digest.Bytes(), key)
	if err != nil {
		return err
	}
	req.R = common.BytesToHash(sig[:32])
	req.S = common.BytesToHash(sig[32:64])
	req.V = sig[64] + 27
	return nil
}

func word(v *uint256.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	b := v.Bytes32()
	return b[:]
}

type requestJSON struct {
	Maker     common.Address `json:"maker"`
	Requester common.Address `json:"requester"`
	GCToken   common.Address `json:"gcToken"`
	GameID    string         `json:"gameId"`
	Amount    string         `json:"amount"`
	Reserved1 string         `json:"reserved1"`
	Reserved2 string         `json:"reserved2"`
	V         uint8          `json:"v"`
	R         hexutil.Bytes  `json:"r"`
	S         hexutil.Bytes  `json:"s"`
}

// MarshalJSON encodes the request using decimal integer strings.
func (r SignedRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(requestJSON{
		Maker:     r.Maker,
		Requester: r.Requester,
		GCToken:   r.CurrencyRef,
		GameID:    decimal(r.GameID),
		Amount:    decimal(r.Amount),
		Reserved1: decimal(r.Reserved1),
		Reserved2: decimal(r.Reserved2),
		V:         r.V,
		R:         r.R.Bytes(),
		S:         r.S.Bytes(),
	})
}

// UnmarshalJSON decodes the wire representation. Integers may be decimal or
// 0x-prefixed hex; empty reserved fields decode as zero.
func (r *SignedRequest) UnmarshalJSON(data []byte) error {
	if r == nil {
		return fmt.Errorf("request: nil receiver")
	}
	var payload requestJSON
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	gameID, err := ParseAmount(payload.GameID)
	if err != nil {
		return fmt.Errorf("request: gameId: %w", err)
	}
	amount, err := ParseAmount(payload.Amount)
	if err != nil {
		return fmt.Errorf("request: amount: %w", err)
	}
	reserved1, err := parseOptional(payload.Reserved1)
	if err != nil {
		return fmt.Errorf("request: reserved1: %w", err)
	}
	reserved2, err := parseOptional(payload.Reserved2)
	if err != nil {
		return fmt.Errorf("request: reserved2: %w", err)
	}
	if len(payload.R) != 32 || len(payload.S) != 32 {
		return fmt.Errorf("request: r and s must be 32 bytes")
	}
	*r = SignedRequest{
		Maker:       payload.Maker,
		Requester:   payload.Requester,
		CurrencyRef: payload.GCToken,
		GameID:      gameID,
		Amount:      amount,
		Reserved1:   reserved1,
		Reserved2:   reserved2,
		V:           payload.V,
		R:           common.BytesToHash(payload.R),
		S:           common.BytesToHash(payload.S),
	}
	return nil
}

// ParseAmount parses a decimal or 0x-prefixed hex unsigned integer.
func ParseAmount(raw string) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("value required")
	}
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		return uint256.FromHex(trimmed)
	}
	return uint256.FromDecimal(trimmed)
}

func parseOptional(raw string) (*uint256.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return new(uint256.Int), nil
	}
	return ParseAmount(raw)
}

func decimal(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}
