package arcade

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SignerSource resolves the identity every request must be signed by.
type SignerSource interface {
	BackendSigner() (common.Address, error)
}

// Authorizer verifies that a request was approved by the backend signer.
// Verification is pure: replay tracking is the ReplayGuard's job.
type Authorizer struct {
	domain  Domain
	signers SignerSource
}

// NewAuthorizer binds an authorizer to the deployment domain.
func NewAuthorizer(domain Domain, signers SignerSource) *Authorizer {
	return &Authorizer{domain: domain, signers: signers}
}

// Domain returns the domain the authorizer verifies against.
func (a *Authorizer) Domain() Domain {
	return a.domain
}

// Verify recovers the signing identity and checks it against the backend
// signer and the request maker. It returns the requester and the digest that
// was signed.
func (a *Authorizer) Verify(req *SignedRequest) (common.Address, common.Hash, error) {
	if a == nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("arcade: authorizer not configured")
	}
	if req == nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: request required", ErrInvalidSignature)
	}
	expected, err := a.signers.BackendSigner()
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	sig, err := req.Signature()
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	r := new(big.Int).SetBytes(req.R.Bytes())
	s := new(big.Int).SetBytes(req.S.Bytes())
	// Homestead rules reject high-s signatures, closing the malleable twin.
	if !ethcrypto.ValidateSignatureValues(sig[64], r, s, true) {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: malformed signature values", ErrInvalidSignature)
	}
	digest := req.Digest(a.domain)
	pub, err := ethcrypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	recovered := ethcrypto.PubkeyToAddress(*pub)
	if recovered != expected {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: recovered %s", ErrInvalidSignature, recovered.Hex())
	}
	if req.Maker != recovered {
		return common.Address{}, common.Hash{}, fmt.Errorf("%w: maker %s did not sign", ErrInvalidSignature, req.Maker.Hex())
	}
	return req.Requester, digest, nil
}
