package facilitator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	x402 "github.com/divi2806/x402-cross-bridge-sdk"
	"github.com/divi2806/x402-cross-bridge-sdk/bridge"
	"github.com/divi2806/x402-cross-bridge-sdk/evm"
	"github.com/divi2806/x402-cross-bridge-sdk/validation"
)

// Config configures the local facilitator engine.
type Config struct {
	// Wallets maps network names to the operating wallet for that chain.
	// Settlement on a network without a wallet fails with
	// UNSUPPORTED_NETWORK.
	Wallets map[string]WalletAPI

	// Bridge executes cross-chain swaps. Required when any configured
	// pair of networks differs.
	Bridge BridgeAPI

	// Ledger is the settlement registry. When nil, idempotency relies
	// solely on the in-process payment lock.
	Ledger LedgerAPI

	// VerifyPoll bounds bridge status polling during verify.
	// Defaults to DefaultVerifyPoll.
	VerifyPoll x402.PollConfig

	// SettlePoll bounds bridge fill polling during settlement.
	// Defaults to DefaultSettlePoll.
	SettlePoll x402.PollConfig

	// Logger receives structured operation logs. Defaults to slog.Default.
	Logger *slog.Logger

	// OnEvent receives payment lifecycle events.
	OnEvent x402.PaymentCallback
}

// Service is the local facilitator engine. It implements Interface.
type Service struct {
	wallets    map[string]WalletAPI
	bridge     BridgeAPI
	ledger     LedgerAPI
	verifier   *Verifier
	verifyPoll x402.PollConfig
	settlePoll x402.PollConfig
	logger     *slog.Logger
	onEvent    x402.PaymentCallback
	locks      *paymentLocks
}

// New creates a facilitator engine from the given configuration.
func New(cfg Config) (*Service, error) {
	if len(cfg.Wallets) == 0 {
		return nil, fmt.Errorf("at least one wallet is required")
	}
	if cfg.Bridge == nil {
		return nil, fmt.Errorf("bridge client is required")
	}

	verifyPoll := cfg.VerifyPoll
	if verifyPoll == (x402.PollConfig{}) {
		verifyPoll = x402.DefaultVerifyPoll
	}
	settlePoll := cfg.SettlePoll
	if settlePoll == (x402.PollConfig{}) {
		settlePoll = x402.DefaultSettlePoll
	}
	if err := verifyPoll.Validate(); err != nil {
		return nil, fmt.Errorf("invalid verify poll config: %w", err)
	}
	if err := settlePoll.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settle poll config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Any configured wallet address is accepted as a collection
	// recipient; they are all operated by this facilitator.
	var facilitatorAddr common.Address
	for _, w := range cfg.Wallets {
		facilitatorAddr = w.Address()
		break
	}

	return &Service{
		wallets:    cfg.Wallets,
		bridge:     cfg.Bridge,
		ledger:     cfg.Ledger,
		verifier:   &Verifier{FacilitatorAddress: facilitatorAddr},
		verifyPoll: verifyPoll,
		settlePoll: settlePoll,
		logger:     logger,
		onEvent:    cfg.OnEvent,
		locks:      newPaymentLocks(),
	}, nil
}

// Verify checks a payment without moving funds.
//
// Native payments are verified by polling the bridge for the referenced
// transfer: COMPLETED is valid, FAILED is invalid, and an exhausted poll
// budget is invalid-but-retryable since the true outcome is unknown.
// Signed payments are verified off chain against the EIP-712 domain of
// the source token.
func (s *Service) Verify(ctx context.Context, req *VerifyRequest) (*x402.VerifyResponse, error) {
	start := time.Now()
	payload := &req.PaymentPayload

	s.emit(x402.PaymentEvent{
		Type:      x402.PaymentEventAttempt,
		Timestamp: start,
		Operation: "verify",
		Network:   req.PaymentRequirements.Network,
		Scheme:    req.PaymentRequirements.Scheme,
		Amount:    req.PaymentRequirements.MaxAmountRequired,
		Asset:     req.PaymentRequirements.Asset,
		Recipient: req.PaymentRequirements.PayTo,
		Payer:     payload.Payer(),
	})

	resp, err := s.verify(ctx, req)
	if err != nil {
		s.emitOutcome("verify", start, payload, &req.PaymentRequirements, "", err)
		return nil, err
	}

	if resp.IsValid {
		s.emitOutcome("verify", start, payload, &req.PaymentRequirements, "", nil)
	} else {
		s.emitOutcome("verify", start, payload, &req.PaymentRequirements, "", errors.New(resp.InvalidReason))
	}
	return resp, nil
}

func (s *Service) verify(ctx context.Context, req *VerifyRequest) (*x402.VerifyResponse, error) {
	payload := &req.PaymentPayload

	if err := validation.ValidatePaymentRequirements(req.PaymentRequirements); err != nil {
		return invalid(err.Error(), payload.Payer()), nil
	}
	if err := validation.ValidatePaymentPayload(*payload); err != nil {
		return invalid(err.Error(), payload.Payer()), nil
	}

	method, err := payload.Method()
	if err != nil {
		return invalid(err.Error(), payload.Payer()), nil
	}

	switch method {
	case x402.MethodNative:
		return s.verifyNative(ctx, payload)
	case x402.MethodPermit:
		if verr := s.verifier.VerifyPermit(payload, &req.PaymentRequirements); verr != nil {
			return invalid(verr.Error(), payload.Payer()), nil
		}
	case x402.MethodAuthorization:
		if verr := s.verifier.VerifyAuthorization(payload, &req.PaymentRequirements); verr != nil {
			return invalid(verr.Error(), payload.Payer()), nil
		}
	default:
		return invalid(x402.ErrMalformedPayload.Error(), payload.Payer()), nil
	}

	return &x402.VerifyResponse{IsValid: true, Payer: payload.Payer()}, nil
}

func (s *Service) verifyNative(ctx context.Context, payload *x402.PaymentPayload) (*x402.VerifyResponse, error) {
	key := payload.Native.RequestID
	if key == "" {
		key = payload.Native.TxHash
	}

	status, err := s.bridge.PollUntilTerminal(ctx, key, s.verifyPoll)
	switch {
	case err == nil && status == bridge.StatusCompleted:
		return &x402.VerifyResponse{IsValid: true, Payer: payload.Native.From}, nil
	case err == nil && status == bridge.StatusFailed:
		return invalid("payment failed on bridge", payload.Native.From), nil
	case errors.Is(err, x402.ErrBridgeStatusUnknown):
		// Not a definitive failure: the transfer may still complete.
		return invalid(err.Error(), payload.Native.From), nil
	case err != nil:
		return nil, err
	default:
		return invalid("payment still pending", payload.Native.From), nil
	}
}

// Settle executes the payment. Settlement is idempotent: repeat calls
// for an already-settled payment id succeed without moving funds again,
// and concurrent calls for the same payment id are serialized.
func (s *Service) Settle(ctx context.Context, req *SettleRequest) (*x402.SettleResponse, error) {
	start := time.Now()
	payload := &req.PaymentPayload

	paymentID, err := payload.PaymentID(req.PaymentRequirements.PayTo)
	if err != nil {
		resp := s.failure(x402.ErrCodeMalformedPayload, err, req)
		s.emitOutcome("settle", start, payload, &req.PaymentRequirements, "", err)
		return resp, nil
	}

	s.emit(x402.PaymentEvent{
		Type:      x402.PaymentEventAttempt,
		Timestamp: start,
		Operation: "settle",
		PaymentID: paymentID.Hex(),
		Network:   req.PaymentRequirements.Network,
		Scheme:    req.PaymentRequirements.Scheme,
		Amount:    req.PaymentRequirements.MaxAmountRequired,
		Asset:     req.PaymentRequirements.Asset,
		Recipient: req.PaymentRequirements.PayTo,
		Payer:     payload.Payer(),
	})

	unlock := s.locks.Lock(paymentID)
	defer unlock()

	if s.ledger != nil {
		settled, lerr := s.ledger.IsSettled(ctx, paymentID)
		if lerr != nil {
			// An unreadable registry must not cause a double spend;
			// surface it as an infrastructure error.
			s.emitOutcome("settle", start, payload, &req.PaymentRequirements, "", lerr)
			return nil, lerr
		}
		if settled {
			s.logger.Info("payment already settled, skipping",
				"paymentId", paymentID.Hex(),
				"payer", payload.Payer())
			resp := &x402.SettleResponse{
				Success: true,
				Network: req.PaymentRequirements.Network,
				Payer:   payload.Payer(),
			}
			s.emitOutcome("settle", start, payload, &req.PaymentRequirements, "", nil)
			return resp, nil
		}
	}

	resp, err := s.settle(ctx, paymentID, req)
	if err != nil {
		s.emitOutcome("settle", start, payload, &req.PaymentRequirements, "", err)
		return nil, err
	}

	if resp.Success {
		s.emitOutcome("settle", start, payload, &req.PaymentRequirements, resp.Transaction, nil)
	} else {
		s.emitOutcome("settle", start, payload, &req.PaymentRequirements, resp.Transaction, errors.New(resp.ErrorReason))
	}
	return resp, nil
}

// rail describes where a payment collects and delivers: the source and
// destination chains, the asset collected on the source chain, and
// whether the two ends are the same chain and token (no bridge hop).
type rail struct {
	src, dst    x402.ChainConfig
	sourceAsset string
	same        bool
}

func railFor(payload *x402.PaymentPayload, req *x402.PaymentRequirements) (rail, error) {
	src, err := x402.GetChainConfig(payload.Network)
	if err != nil {
		return rail{}, err
	}
	dst := x402.ChainConfigOrDefault(req.Network)

	sourceAsset := req.SourceAsset
	if sourceAsset == "" {
		if src.ChainID == dst.ChainID {
			sourceAsset = req.Asset
		} else {
			sourceAsset = src.USDCAddress
		}
	}

	return rail{
		src:         src,
		dst:         dst,
		sourceAsset: sourceAsset,
		same:        src.ChainID == dst.ChainID && strings.EqualFold(sourceAsset, req.Asset),
	}, nil
}

func (s *Service) settle(ctx context.Context, paymentID common.Hash, req *SettleRequest) (*x402.SettleResponse, error) {
	payload := &req.PaymentPayload
	requirements := &req.PaymentRequirements

	method, err := payload.Method()
	if err != nil {
		return s.failure(x402.ErrCodeMalformedPayload, err, req), nil
	}

	if method == x402.MethodNative {
		return s.settleNative(ctx, paymentID, req)
	}

	wallet, ok := s.wallets[payload.Network]
	if !ok {
		return s.failure(x402.ErrCodeUnsupportedNetwork,
			fmt.Errorf("no wallet configured for network %s", payload.Network), req), nil
	}

	r, err := railFor(payload, requirements)
	if err != nil {
		return s.failure(x402.ErrCodeUnsupportedNetwork, err, req), nil
	}
	token := common.HexToAddress(r.sourceAsset)
	payTo := common.HexToAddress(requirements.PayTo)
	custody := wallet.Address()

	amount, err := x402.ParseAtomicAmount(requirements.MaxAmountRequired)
	if err != nil {
		return s.failure(x402.ErrCodeMalformedPayload, err, req), nil
	}

	var (
		collectTx common.Hash
		payer     common.Address
	)

	switch method {
	case x402.MethodAuthorization:
		auth, aerr := AuthorizationFromPayload(payload.Authorization)
		if aerr != nil {
			return s.failure(x402.ErrCodeMalformedPayload, aerr, req), nil
		}
		payer = auth.From

		// The signed recipient is fixed on chain; it decides where the
		// collection lands. Only the merchant on the same rail or the
		// facilitator's custody address are settleable. Anything else
		// is rejected before funds move: a cross-chain authorization
		// paying the merchant directly would land tokens on the wrong
		// chain and leave custody empty for the bridge leg.
		directToMerchant := r.same && auth.To == payTo
		if !directToMerchant && auth.To != custody {
			return s.failure(x402.ErrCodeMalformedPayload,
				fmt.Errorf("%w: authorization recipient %s is not settleable", x402.ErrRecipientMismatch, auth.To.Hex()), req), nil
		}

		receipt, terr := wallet.TransferWithAuthorization(ctx, token, auth, payload.Signature)
		if terr != nil {
			return s.failure(x402.ErrCodeCollectionFailed, terr, req), nil
		}
		collectTx = receipt.TxHash

		if directToMerchant {
			// Signed straight to the merchant; nothing left to move.
			return s.finish(ctx, paymentID, payer, amount, payTo, collectTx, req)
		}
		if r.same {
			// Custody collection on the destination rail: pay the
			// merchant out directly, no bridge hop.
			payout, perr := wallet.Transfer(ctx, token, payTo, amount)
			if perr != nil {
				serr := x402.NewSettlementError(x402.ErrCodeCollectionFailed, "merchant payout failed after collection", perr)
				s.logger.Error("payout failed after custody collection",
					"paymentId", paymentID.Hex(),
					"payer", payer.Hex(),
					"collectTx", collectTx.Hex(),
					"error", perr)
				return s.failureWithTx(serr, collectTx, req), nil
			}
			return s.finish(ctx, paymentID, payer, amount, payTo, payout.TxHash, req)
		}

	case x402.MethodPermit:
		permit, perr := PermitFromPayload(payload.Permit)
		if perr != nil {
			return s.failure(x402.ErrCodeMalformedPayload, perr, req), nil
		}
		payer = permit.Owner

		// The facilitator's wallet executes the pull, so the permit
		// must approve this wallet. Any other spender cannot be
		// settled here; reject before touching the chain.
		if permit.Spender != custody {
			return s.failure(x402.ErrCodeMalformedPayload,
				fmt.Errorf("%w: permit spender %s is not the facilitator", x402.ErrRecipientMismatch, permit.Spender.Hex()), req), nil
		}

		if _, perr := wallet.Permit(ctx, token, permit, payload.Signature); perr != nil {
			return s.failure(x402.ErrCodeCollectionFailed, perr, req), nil
		}

		// On the same rail the permit allowance moves funds straight
		// to the merchant; cross-chain they are pulled into custody
		// for bridging.
		destination := custody
		if r.same {
			destination = payTo
		}
		receipt, terr := wallet.TransferFrom(ctx, token, permit.Owner, destination, amount)
		if terr != nil {
			return s.failure(x402.ErrCodeCollectionFailed, terr, req), nil
		}
		collectTx = receipt.TxHash

		if r.same {
			return s.finish(ctx, paymentID, payer, amount, payTo, collectTx, req)
		}

	default:
		return s.failure(x402.ErrCodeMalformedPayload, x402.ErrMalformedPayload, req), nil
	}

	bridgeTx, serr := s.bridgeAndDeliver(ctx, wallet, r.src, r.dst, r.sourceAsset, req)
	if serr != nil {
		if serr.Code == x402.ErrCodeBridgeNotCompleted {
			// Collection already happened; funds may sit in custody
			// without delivery. This needs operator attention.
			s.logger.Error("bridge did not complete after collection",
				"paymentId", paymentID.Hex(),
				"payer", payer.Hex(),
				"collectTx", collectTx.Hex(),
				"error", serr)
		}
		return s.failureWithTx(serr, collectTx, req), nil
	}

	return s.finish(ctx, paymentID, payer, amount, payTo, bridgeTx, req)
}

// settleNative records a native payment that verify already confirmed
// on the bridge. No funds move here; the transfer happened on chain
// before settle was called.
func (s *Service) settleNative(ctx context.Context, paymentID common.Hash, req *SettleRequest) (*x402.SettleResponse, error) {
	native := req.PaymentPayload.Native

	amount, err := x402.ParseAtomicAmount(native.Amount)
	if err != nil {
		return s.failure(x402.ErrCodeMalformedPayload, err, req), nil
	}

	return s.finish(ctx, paymentID,
		common.HexToAddress(native.From),
		amount,
		common.HexToAddress(req.PaymentRequirements.PayTo),
		common.HexToHash(native.TxHash),
		req)
}

// bridgeAndDeliver swaps custody funds into the destination asset and
// delivers them to the merchant through the aggregator.
func (s *Service) bridgeAndDeliver(ctx context.Context, wallet WalletAPI, srcChain, dstChain x402.ChainConfig, sourceAsset string, req *SettleRequest) (common.Hash, *x402.SettlementError) {
	requirements := &req.PaymentRequirements

	quote, err := s.bridge.GetSwapBridgeQuote(ctx, bridge.QuoteRequest{
		User:                wallet.Address().Hex(),
		Recipient:           requirements.PayTo,
		OriginChainID:       srcChain.ChainID,
		DestinationChainID:  dstChain.ChainID,
		OriginCurrency:      sourceAsset,
		DestinationCurrency: requirements.Asset,
		Amount:              requirements.MaxAmountRequired,
	})
	if err != nil {
		return common.Hash{}, x402.NewSettlementError(x402.ErrCodeQuoteUnavailable, "no executable bridge route", err)
	}

	if !x402.IsNativeToken(sourceAsset) {
		if aerr := s.ensureAllowance(ctx, wallet, common.HexToAddress(sourceAsset), common.HexToAddress(quote.To), quote.AmountIn); aerr != nil {
			return common.Hash{}, x402.NewSettlementError(x402.ErrCodeApprovalFailed, "bridge spend approval failed", aerr)
		}
	}

	receipt, err := wallet.SendQuoteTransaction(ctx, quote.To, quote.Data, quote.Value)
	if err != nil {
		return common.Hash{}, x402.NewSettlementError(x402.ErrCodeBridgeSubmissionFailed, "bridge transaction failed", err)
	}

	key := quote.RequestID
	if key == "" {
		key = receipt.TxHash.Hex()
	}

	status, err := s.bridge.PollUntilTerminal(ctx, key, s.settlePoll)
	if err != nil || status != bridge.StatusCompleted {
		if err == nil {
			err = fmt.Errorf("bridge finished with status %s", status)
		}
		return receipt.TxHash, x402.NewSettlementError(x402.ErrCodeBridgeNotCompleted, "bridge did not complete", err).
			WithDetails("bridgeTx", receipt.TxHash.Hex()).
			WithDetails("requestId", key)
	}

	return receipt.TxHash, nil
}

// ensureAllowance grants the route target an unlimited allowance unless
// the current allowance already covers the route input.
func (s *Service) ensureAllowance(ctx context.Context, wallet WalletAPI, token, spender common.Address, amountIn string) error {
	required, err := x402.ParseAtomicAmount(amountIn)
	if err != nil {
		// A route without a parseable input amount still gets the
		// unlimited approval.
		required = nil
	}

	if required != nil {
		current, aerr := wallet.Allowance(ctx, token, wallet.Address(), spender)
		if aerr == nil && current.Cmp(required) >= 0 {
			return nil
		}
	}

	_, err = wallet.Approve(ctx, token, spender, evm.MaxUint256)
	return err
}

// finish records the settlement in the registry and builds the success
// response. Both registry writes carry the destination asset so the
// contract can enforce token identity on settle.
func (s *Service) finish(ctx context.Context, paymentID common.Hash, payer common.Address, amount *big.Int, payTo common.Address, tx common.Hash, req *SettleRequest) (*x402.SettleResponse, error) {
	if s.ledger != nil {
		token := common.HexToAddress(req.PaymentRequirements.Asset)

		// A requirement registered by an earlier attempt is fine; only
		// the settle write is load bearing.
		if err := s.ledger.RegisterRequirement(ctx, paymentID, token, amount, payTo); err != nil {
			s.logger.Warn("requirement registration failed",
				"paymentId", paymentID.Hex(),
				"error", err)
		}

		if err := s.ledger.MarkSettled(ctx, paymentID, payer, amount, token); err != nil {
			serr := x402.NewSettlementError(x402.ErrCodeLedgerWriteFailed, "settlement registry write failed", err)
			return s.failureWithTx(serr, tx, req), nil
		}
	}

	return &x402.SettleResponse{
		Success:     true,
		Transaction: tx.Hex(),
		Network:     req.PaymentRequirements.Network,
		Payer:       req.PaymentPayload.Payer(),
	}, nil
}

// Supported lists the payment kinds this facilitator accepts: the exact
// scheme on every network with a configured wallet.
func (s *Service) Supported(ctx context.Context) (*x402.SupportedResponse, error) {
	kinds := make([]x402.SupportedKind, 0, len(s.wallets))
	signers := make(map[string][]string, len(s.wallets))

	for _, network := range x402.SupportedNetworks() {
		wallet, ok := s.wallets[network]
		if !ok {
			continue
		}
		kinds = append(kinds, x402.SupportedKind{
			X402Version: x402.X402Version,
			Scheme:      x402.SchemeExact,
			Network:     network,
		})
		signers[network] = []string{wallet.Address().Hex()}
	}

	return &x402.SupportedResponse{Kinds: kinds, Signers: signers}, nil
}

func (s *Service) failure(code x402.ErrorCode, err error, req *SettleRequest) *x402.SettleResponse {
	return s.failureWithTx(x402.NewSettlementError(code, string(code), err), common.Hash{}, req)
}

func (s *Service) failureWithTx(serr *x402.SettlementError, tx common.Hash, req *SettleRequest) *x402.SettleResponse {
	reason := fmt.Sprintf("%s: %v", serr.Code, serr.Unwrap())
	if serr.Unwrap() == nil {
		reason = string(serr.Code)
	}

	resp := &x402.SettleResponse{
		Success:     false,
		ErrorReason: reason,
		Network:     req.PaymentRequirements.Network,
		Payer:       req.PaymentPayload.Payer(),
	}
	if tx != (common.Hash{}) {
		resp.Transaction = tx.Hex()
	}
	return resp
}

func (s *Service) emit(event x402.PaymentEvent) {
	if s.onEvent != nil {
		s.onEvent(event)
	}
}

func (s *Service) emitOutcome(operation string, start time.Time, payload *x402.PaymentPayload, req *x402.PaymentRequirements, tx string, err error) {
	if s.onEvent == nil {
		return
	}

	event := x402.PaymentEvent{
		Timestamp:   time.Now(),
		Operation:   operation,
		Network:     req.Network,
		Scheme:      req.Scheme,
		Amount:      req.MaxAmountRequired,
		Asset:       req.Asset,
		Recipient:   req.PayTo,
		Payer:       payload.Payer(),
		Transaction: tx,
		Duration:    time.Since(start),
	}
	if method, merr := payload.Method(); merr == nil {
		event.Method = method.String()
	}
	if id, ierr := payload.PaymentID(req.PayTo); ierr == nil {
		event.PaymentID = id.Hex()
	}

	if err != nil {
		event.Type = x402.PaymentEventFailure
		event.Error = err
	} else {
		event.Type = x402.PaymentEventSuccess
	}
	s.onEvent(event)
}

func invalid(reason, payer string) *x402.VerifyResponse {
	return &x402.VerifyResponse{IsValid: false, InvalidReason: reason, Payer: payer}
}

var _ Interface = (*Service)(nil)
