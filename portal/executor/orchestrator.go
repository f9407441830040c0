// Package executor runs interchain transactions through the execution node:
// quote, signature over the quote hash, then execution. Nothing is retried.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Cogwheel-Validator/spectra-index-portal/portal/models"
	"github.com/Cogwheel-Validator/spectra-index-portal/portal/wallet"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "executor").Logger()
}

var (
	// ErrCancelled means the signer declined. Nothing was executed.
	ErrCancelled     = errors.New("cancelled by user")
	ErrQuoteFailed   = errors.New("quote failed")
	ErrExecuteFailed = errors.New("execution failed")
	ErrNoSigner      = errors.New("no signer configured")
)

// Outcome is the terminal state of a flow.
type Outcome string

const (
	OutcomeExecuted  Outcome = "executed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

// OutcomeOf maps the error returned by Execute to an Outcome.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeExecuted
	case errors.Is(err, ErrCancelled):
		return OutcomeCancelled
	default:
		return OutcomeFailed
	}
}

// Result reports what happened to one interchain transaction.
type Result struct {
	Outcome Outcome
	ItxHash common.Hash
	Quote   *models.Quote
}

// Orchestrator drives the quote -> sign -> execute sequence.
type Orchestrator struct {
	node     Node
	signer   wallet.Signer
	outcomes metric.Int64Counter
}

func NewOrchestrator(node Node, signer wallet.Signer) *Orchestrator {
	meter := otel.Meter("github.com/Cogwheel-Validator/spectra-index-portal/portal/executor")
	outcomes, err := meter.Int64Counter(
		"portal_flow_outcomes",
		metric.WithDescription("Terminal outcomes of interchain flows"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to create outcome counter")
	}
	return &Orchestrator{node: node, signer: signer, outcomes: outcomes}
}

// Execute quotes tx, asks the signer to sign the quote hash and submits the
// signed quote. flow names the calling flow in logs and metrics.
func (o *Orchestrator) Execute(ctx context.Context, flow string, tx models.InterchainTx) (*Result, error) {
	res, err := o.execute(ctx, tx)
	outcome := OutcomeOf(err)
	res.Outcome = outcome
	o.record(ctx, flow, outcome)

	switch outcome {
	case OutcomeExecuted:
		log.Info().Str("flow", flow).Str("itx_hash", res.ItxHash.Hex()).Msg("Interchain transaction executed")
	case OutcomeCancelled:
		log.Info().Str("flow", flow).Msg("Signature rejected, nothing executed")
	default:
		log.Error().Err(err).Str("flow", flow).Msg("Interchain transaction failed")
	}
	return res, err
}

func (o *Orchestrator) execute(ctx context.Context, tx models.InterchainTx) (*Result, error) {
	res := &Result{}
	if o.signer == nil {
		return res, ErrNoSigner
	}

	quote, err := o.node.GetQuote(ctx, tx)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrQuoteFailed, err)
	}
	res.Quote = quote
	res.ItxHash = quote.ItxHash

	signature, err := o.signer.SignMessage(ctx, quote.ItxHash.Bytes())
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			return res, fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		return res, fmt.Errorf("sign quote: %w", err)
	}

	result, err := o.node.Execute(ctx, quote, signature)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrExecuteFailed, err)
	}
	if result.ItxHash != (common.Hash{}) {
		res.ItxHash = result.ItxHash
	}
	return res, nil
}

func (o *Orchestrator) record(ctx context.Context, flow string, outcome Outcome) {
	if o.outcomes == nil {
		return
	}
	o.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("flow", flow),
		attribute.String("outcome", string(outcome)),
	))
}
