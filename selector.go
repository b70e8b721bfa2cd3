package x402

import (
	"sort"
	"strings"
)

// PaymentSelector chooses a signer for one of the payment options a
// server offered and produces a signed payment.
type PaymentSelector interface {
	// SelectAndSign picks the best signer/requirement pair from the
	// server's accepted options and signs a payment for it.
	SelectAndSign(signers []Signer, requirements []PaymentRequirements) (*PaymentPayload, error)
}

// DefaultPaymentSelector implements the standard selection algorithm:
//  1. Only signer/requirement pairs the signer can actually satisfy.
//  2. Same-chain options beat cross-chain ones; paying on the
//     destination network needs no bridge hop and settles faster.
//  3. Configuration order breaks ties, so selection is deterministic.
type DefaultPaymentSelector struct{}

// NewDefaultPaymentSelector creates a new DefaultPaymentSelector.
func NewDefaultPaymentSelector() *DefaultPaymentSelector {
	return &DefaultPaymentSelector{}
}

// SelectAndSign implements PaymentSelector.
func (s *DefaultPaymentSelector) SelectAndSign(signers []Signer, requirements []PaymentRequirements) (*PaymentPayload, error) {
	if len(signers) == 0 {
		return nil, ErrNoValidSigner
	}
	if len(requirements) == 0 {
		return nil, ErrInvalidRequirements
	}

	type candidate struct {
		requirement      *PaymentRequirements
		signer           Signer
		crossChain       bool
		signerIndex      int
		requirementIndex int
	}

	var candidates []candidate
	hasValidRequirement := false

	for i := range requirements {
		req := &requirements[i]
		if _, err := ParseAtomicAmount(req.MaxAmountRequired); err != nil {
			continue
		}
		hasValidRequirement = true

		for signerIndex, signer := range signers {
			if !signer.CanSign(req) {
				continue
			}
			candidates = append(candidates, candidate{
				requirement:      req,
				signer:           signer,
				crossChain:       !strings.EqualFold(signer.Network(), req.Network),
				signerIndex:      signerIndex,
				requirementIndex: i,
			})
		}
	}

	if !hasValidRequirement {
		return nil, ErrInvalidRequirements
	}
	if len(candidates) == 0 {
		return nil, ErrNoValidSigner
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].crossChain != candidates[j].crossChain {
			return !candidates[i].crossChain
		}
		if candidates[i].signerIndex != candidates[j].signerIndex {
			return candidates[i].signerIndex < candidates[j].signerIndex
		}
		return candidates[i].requirementIndex < candidates[j].requirementIndex
	})

	return candidates[0].signer.Sign(candidates[0].requirement)
}

// FindMatchingRequirement finds the accepted requirement a payment was
// signed against, by scheme and network. The payment's network may be
// either the destination network or a declared source network; both
// directions of a cross-chain option match.
func FindMatchingRequirement(payment *PaymentPayload, requirements []PaymentRequirements) (*PaymentRequirements, error) {
	for i := range requirements {
		req := &requirements[i]
		if req.Scheme != payment.Scheme {
			continue
		}
		if strings.EqualFold(req.Network, payment.Network) {
			return req, nil
		}
		if req.SourceNetwork != "" && strings.EqualFold(req.SourceNetwork, payment.Network) {
			return req, nil
		}
	}
	return nil, ErrUnsupportedScheme
}
