package preflight

import (
	"context"
	"fmt"

	"github.com/taikoxyz/raiko-sub001/pkg/proofrequest"
	"github.com/taikoxyz/raiko-sub001/pkg/witness"
)

// ChainSpecs resolves the named Network/L1Network pair on a
// proofrequest.ProofRequest into the witness.ChainSpec the preflight engine
// and block builder operate against. The chain-spec *definitions*
// themselves (fork blocks/timestamps per named network) are an external
// collaborator, out of scope per spec §1 ("chain-spec management").
type ChainSpecs interface {
	Resolve(network string) (witness.ChainSpec, error)
}

// Pipeline adapts a Preflighter into the actor.Pipeline contract, turning a
// validated proofrequest.ProofRequest into the (GuestInput, GuestOutput)
// pair the proof actor (C7) hands to a driver.
type Pipeline struct {
	preflighter *Preflighter
	chainSpecs  ChainSpecs
}

// NewPipeline constructs a Pipeline.
func NewPipeline(preflighter *Preflighter, chainSpecs ChainSpecs) *Pipeline {
	return &Pipeline{preflighter: preflighter, chainSpecs: chainSpecs}
}

// Run implements actor.Pipeline.
func (p *Pipeline) Run(ctx context.Context, req *proofrequest.ProofRequest) (*witness.GuestInput, *witness.GuestOutput, error) {
	chainSpec, err := p.chainSpecs.Resolve(req.Network)
	if err != nil {
		return nil, nil, fmt.Errorf("preflight pipeline: resolve chain spec: %w", err)
	}

	return p.preflighter.Run(ctx, &Request{
		BlockNumber:            req.BlockNumber,
		L1InclusionBlockNumber: req.L1InclusionBlockNumber,
		ChainSpec:              chainSpec,
		Graffiti:               req.Graffiti,
		ProverAddress:          req.ProverAddress,
	})
}
