package arcade

import (
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

type fixedSigner common.Address

func (s fixedSigner) BackendSigner() (common.Address, error) { return common.Address(s), nil }

func sampleRequest(t *testing.T) (*SignedRequest, Domain) {
	t.Helper()
	key := signerKey(t)
	domain := NewDomain(testChainID, engineAddr)
	req := &SignedRequest{
		Maker:       ethcrypto.PubkeyToAddress(key.PublicKey),
		Requester:   alice,
		CurrencyRef: common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		GameID:      uint256.NewInt(1),
		Amount:      uint256.NewInt(100000),
		Reserved1:   uint256.NewInt(0),
		Reserved2:   uint256.NewInt(0),
	}
	if err := SignRequest(key, domain, req); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return req, domain
}

func TestRequestTypeHashPreimage(t *testing.T) {
	if got := ethcrypto.Keccak256Hash([]byte(RequestType)); got != RequestTypeHash {
		t.Fatalf("type hash %s does not match keccak(%q) = %s", RequestTypeHash.Hex(), RequestType, got.Hex())
	}
	declared := "Request(address maker,address requester,address gcToken,uint256 gameId,uint256 amount,uint256 reserved1,uint256 reserved2)"
	if got := ethcrypto.Keccak256Hash([]byte(declared)); got == RequestTypeHash {
		t.Fatalf("type hash unexpectedly commits to the gcToken field")
	} else if got.Hex() != "0xc18e015e4644742304dc8f09e9c76c43de20c8866ee0571808c46aadeaf3ae2a" {
		t.Fatalf("unexpected keccak for declared layout: %s", got.Hex())
	}
}

func TestSignerKeyAddress(t *testing.T) {
	key := signerKey(t)
	want := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	if got := ethcrypto.PubkeyToAddress(key.PublicKey); got != want {
		t.Fatalf("unexpected signer address %s", got.Hex())
	}
}

func TestStructHashMatchesABIEncoding(t *testing.T) {
	req, _ := sampleRequest(t)
	bytes32, _ := abi.NewType("bytes32", "", nil)
	address, _ := abi.NewType("address", "", nil)
	uint256Type, _ := abi.NewType("uint256", "", nil)
	args := abi.Arguments{
		{Type: bytes32}, {Type: address}, {Type: address}, {Type: address},
		{Type: uint256Type}, {Type: uint256Type}, {Type: uint256Type}, {Type: uint256Type},
	}
	packed, err := args.Pack(
		[32]byte(RequestTypeHash),
		req.Maker, req.Requester, req.CurrencyRef,
		req.GameID.ToBig(), req.Amount.ToBig(), req.Reserved1.ToBig(), req.Reserved2.ToBig(),
	)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if got := req.StructHash(); got != ethcrypto.Keccak256Hash(packed) {
		t.Fatalf("struct hash mismatch: %s", got.Hex())
	}
}

func TestVerifyAcceptsBackendSignature(t *testing.T) {
	req, domain := sampleRequest(t)
	auth := NewAuthorizer(domain, fixedSigner(req.Maker))
	requester, digest, err := auth.Verify(req)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if requester != alice {
		t.Fatalf("unexpected requester %s", requester.Hex())
	}
	if digest != req.Digest(domain) {
		t.Fatalf("digest mismatch")
	}

	// Raw 0/1 recovery ids are accepted as well as 27/28.
	req.V -= 27
	if _, _, err := auth.Verify(req); err != nil {
		t.Fatalf("verify with raw recovery id: %v", err)
	}
}

func TestVerifyRejections(t *testing.T) {
	base, domain := sampleRequest(t)
	signer := base.Maker

	tests := []struct {
		name   string
		mutate func(r *SignedRequest) Domain
		signer common.Address
	}{
		{
			name:   "tampered amount",
			mutate: func(r *SignedRequest) Domain { r.Amount = uint256.NewInt(1); return domain },
			signer: signer,
		},
		{
			name:   "tampered reserved slot",
			mutate: func(r *SignedRequest) Domain { r.Reserved2 = uint256.NewInt(9); return domain },
			signer: signer,
		},
		{
			name:   "other chain",
			mutate: func(r *SignedRequest) Domain { return NewDomain(1, engineAddr) },
			signer: signer,
		},
		{
			name:   "other deployment",
			mutate: func(r *SignedRequest) Domain { return NewDomain(testChainID, factoryAddr) },
			signer: signer,
		},
		{
			name:   "rotated backend signer",
			mutate: func(r *SignedRequest) Domain { return domain },
			signer: bob,
		},
		{
			name: "high s",
			mutate: func(r *SignedRequest) Domain {
				n := ethcrypto.S256().Params().N
				s := new(big.Int).Sub(n, new(big.Int).SetBytes(r.S.Bytes()))
				r.S = common.BigToHash(s)
				if r.V == 27 {
					r.V = 28
				} else {
					r.V = 27
				}
				return domain
			},
			signer: signer,
		},
		{
			name:   "bad recovery id",
			mutate: func(r *SignedRequest) Domain { r.V = 5; return domain },
			signer: signer,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := *base
			d := tc.mutate(&req)
			auth := NewAuthorizer(d, fixedSigner(tc.signer))
			if _, _, err := auth.Verify(&req); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("expected invalid signature, got %v", err)
			}
		})
	}
}

func TestVerifyRequiresMakerToSign(t *testing.T) {
	req, domain := sampleRequest(t)
	signer := req.Maker
	req.Maker = bob
	if err := SignRequest(signerKey(t), domain, req); err != nil {
		t.Fatalf("sign: %v", err)
	}
	auth := NewAuthorizer(domain, fixedSigner(signer))
	if _, _, err := auth.Verify(req); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected invalid signature, got %v", err)
	}
}

func TestRequestJSONRoundTrip(t *testing.T) {
	req, domain := sampleRequest(t)
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded SignedRequest
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Digest(domain) != req.Digest(domain) || decoded.V != req.V || decoded.R != req.R || decoded.S != req.S {
		t.Fatalf("round trip changed request: %s", raw)
	}

	payload := `{"maker":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266","requester":"0x70997970C51812dc3A010C7d01b50e0d17dc79C8",` +
		`"gcToken":"0x5FbDB2315678afecb367f032d93F642f64180aa3","gameId":"0x1","amount":"100000",` +
		`"v":27,"r":"0x` + common.Bytes2Hex(req.R.Bytes()) + `","s":"0x` + common.Bytes2Hex(req.S.Bytes()) + `"}`
	var sparse SignedRequest
	if err := json.Unmarshal([]byte(payload), &sparse); err != nil {
		t.Fatalf("unmarshal sparse: %v", err)
	}
	if sparse.Reserved1.Sign() != 0 || sparse.Reserved2.Sign() != 0 {
		t.Fatalf("missing reserved fields must decode as zero")
	}
	if sparse.GameID.Uint64() != 1 {
		t.Fatalf("hex game id not parsed")
	}
}

func TestParseAmount(t *testing.T) {
	for raw, want := range map[string]uint64{"0": 0, " 42 ": 42, "0x2a": 42, "1000000": 1000000} {
		got, err := ParseAmount(raw)
		if err != nil {
			t.Fatalf("parse %q: %v", raw, err)
		}
		if got.Uint64() != want {
			t.Fatalf("parse %q: got %d", raw, got.Uint64())
		}
	}
	for _, raw := range []string{"", "-1", "abc", "0xzz"} {
		if _, err := ParseAmount(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}
