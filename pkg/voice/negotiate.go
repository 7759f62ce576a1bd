// Package voice places negotiation calls against local shops and records
// their outcomes. The Runner walks a job's store list sequentially through a
// Dialer; the default SimulatedDialer stands in until a real ConvAI agent is
// wired through Session.
package voice

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"appraisal/pkg/logx"
	"appraisal/pkg/mapper"
	"appraisal/pkg/persistence"
)

// Price bounds used when an analysis carries no negotiation strategy.
const (
	defaultWalkAwayPrice = 50.0
	defaultTargetPrice   = 100.0
)

// CallOutcome is the result of a single negotiation call.
type CallOutcome struct {
	Accepted    bool
	AgreedPrice *float64
	Summary     *string
}

// Dialer places one negotiation call to a store. Implementations must honor
// ctx cancellation.
type Dialer interface {
	Call(ctx context.Context, store mapper.LocalStore, strategy *mapper.NegotiationStrategy) (CallOutcome, error)
}

var simulatedSummaries = []string{
	"Store was interested and agreed to the price after a brief negotiation.",
	"Owner reviewed the item details and confirmed they're ready to buy at the agreed price.",
	"Quick call, they said it fits their current inventory needs and accepted the offer.",
}

// SimulatedDialer alternates accepted and rejected outcomes. Accepted prices
// land between the walk-away and target prices from the strategy.
type SimulatedDialer struct {
	// CallDuration is how long each simulated call takes.
	CallDuration time.Duration

	rng   *rand.Rand
	calls int
}

func NewSimulatedDialer() *SimulatedDialer {
	return &SimulatedDialer{
		CallDuration: time.Second,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (d *SimulatedDialer) Call(ctx context.Context, store mapper.LocalStore, strategy *mapper.NegotiationStrategy) (CallOutcome, error) {
	select {
	case <-ctx.Done():
		return CallOutcome{}, fmt.Errorf("call to %s interrupted: %w", store.Name, ctx.Err())
	case <-time.After(d.CallDuration):
	}

	accepted := d.calls%2 == 0
	d.calls++
	if !accepted {
		return CallOutcome{}, nil
	}

	walkAway, target := priceBounds(strategy)
	price := math.Round((walkAway+d.rng.Float64()*(target-walkAway))*100) / 100
	summary := simulatedSummaries[d.rng.Intn(len(simulatedSummaries))]
	return CallOutcome{Accepted: true, AgreedPrice: &price, Summary: &summary}, nil
}

func priceBounds(strategy *mapper.NegotiationStrategy) (walkAway, target float64) {
	walkAway, target = defaultWalkAwayPrice, defaultTargetPrice
	if strategy != nil {
		if strategy.WalkAwayPrice > 0 {
			walkAway = strategy.WalkAwayPrice
		}
		if strategy.TargetPrice > 0 {
			target = strategy.TargetPrice
		}
	}
	if target < walkAway {
		target = walkAway
	}
	return walkAway, target
}

// Runner executes a negotiation job: one call per store, outcome recorded
// after each call, job status driven pending -> in_progress -> done.
type Runner struct {
	ops    *persistence.DatabaseOperations
	dialer Dialer
	logger *logx.Logger
}

// NewRunner builds a Runner. A nil dialer selects the simulated one.
func NewRunner(ops *persistence.DatabaseOperations, dialer Dialer) *Runner {
	if dialer == nil {
		dialer = NewSimulatedDialer()
	}
	return &Runner{
		ops:    ops,
		dialer: dialer,
		logger: logx.NewLogger("voice"),
	}
}

// Run works through the job's stores in order. A failed call records a
// rejected offer and moves on; only cancellation or a job-status write
// failure stops the run early.
func (r *Runner) Run(ctx context.Context, jobID string, stores []mapper.LocalStore, strategy *mapper.NegotiationStrategy) error {
	if err := r.ops.UpdateJobStatus(jobID, persistence.JobStatusInProgress); err != nil {
		return fmt.Errorf("starting negotiation job %s: %w", jobID, err)
	}
	r.logger.Info("negotiation job %s started with %d stores", jobID, len(stores))

	for _, store := range stores {
		outcome, err := r.dialer.Call(ctx, store, strategy)
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("negotiation job %s canceled: %w", jobID, ctx.Err())
			}
			r.logger.Warn("call to %s failed: %v", store.Name, err)
			outcome = CallOutcome{}
		}

		if err := r.ops.RecordOffer(jobID, store.Name, outcome.Accepted, outcome.AgreedPrice, outcome.Summary); err != nil {
			r.logger.Error("recording offer for %s on job %s: %v", store.Name, jobID, err)
			continue
		}
		if outcome.Accepted && outcome.AgreedPrice != nil {
			r.logger.Info("%s accepted at $%.2f", store.Name, *outcome.AgreedPrice)
		} else {
			r.logger.Info("%s declined", store.Name)
		}
	}

	if err := r.ops.UpdateJobStatus(jobID, persistence.JobStatusDone); err != nil {
		return fmt.Errorf("finishing negotiation job %s: %w", jobID, err)
	}
	r.logger.Info("negotiation job %s done", jobID)
	return nil
}
