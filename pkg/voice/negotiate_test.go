package voice

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/pkg/mapper"
	"appraisal/pkg/persistence"
)

func testOps(t *testing.T) *persistence.DatabaseOperations {
	t.Helper()
	db, err := persistence.InitializeDatabase(filepath.Join(t.TempDir(), "voice.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return persistence.NewDatabaseOperations(db)
}

func seedJob(t *testing.T, ops *persistence.DatabaseOperations, stores []mapper.LocalStore) (string, *mapper.NegotiationStrategy) {
	t.Helper()
	strategy := &mapper.NegotiationStrategy{
		OpeningPrice: 300, TargetPrice: 250, WalkAwayPrice: 180,
		OpeningScript: "Hi", CounterScript: "How about", AcceptScript: "Deal", WalkAwayScript: "Thanks",
	}
	analysis := &mapper.AnalyzeResponse{
		AnalysisID:          uuid.NewString(),
		ItemName:            "Fender Stratocaster",
		Condition:           "good",
		BestPlatform:        "Reverb",
		LocalStores:         stores,
		NegotiationStrategy: strategy,
	}
	require.NoError(t, ops.SaveAnalysis(analysis))
	jobID, err := ops.CreateNegotiationJob(analysis.AnalysisID, stores)
	require.NoError(t, err)
	return jobID, strategy
}

func threeStores() []mapper.LocalStore {
	return []mapper.LocalStore{
		{Name: "Guitar Exchange", Address: "1 Main St", Phone: "555-0100", Specialty: "Specialty Store"},
		{Name: "EZ Pawn", Address: "2 Main St", Phone: "555-0101", Specialty: "Pawn Shop"},
		{Name: "Music Row Buyers", Address: "3 Main St", Phone: "555-0102", Specialty: "Used Goods Buyer"},
	}
}

// scriptedDialer replays fixed outcomes in order.
type scriptedDialer struct {
	outcomes []CallOutcome
	errs     []error
	calls    int
}

func (d *scriptedDialer) Call(_ context.Context, _ mapper.LocalStore, _ *mapper.NegotiationStrategy) (CallOutcome, error) {
	i := d.calls
	d.calls++
	if i < len(d.errs) && d.errs[i] != nil {
		return CallOutcome{}, d.errs[i]
	}
	return d.outcomes[i], nil
}

func TestRunnerRecordsOffersAndFinishesJob(t *testing.T) {
	ops := testOps(t)
	stores := threeStores()
	jobID, strategy := seedJob(t, ops, stores)

	price := 225.50
	summary := "Agreed quickly."
	dialer := &scriptedDialer{outcomes: []CallOutcome{
		{Accepted: true, AgreedPrice: &price, Summary: &summary},
		{},
		{Accepted: true, AgreedPrice: &price, Summary: &summary},
	}}

	runner := NewRunner(ops, dialer)
	require.NoError(t, runner.Run(context.Background(), jobID, stores, strategy))

	job, err := ops.GetNegotiationJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusDone, job.Status)

	offers, err := ops.GetOffersByJob(jobID)
	require.NoError(t, err)
	require.Len(t, offers, 3)

	assert.True(t, offers[0].Accepted)
	require.NotNil(t, offers[0].AgreedPrice)
	assert.Equal(t, price, *offers[0].AgreedPrice)
	require.NotNil(t, offers[0].CallSummary)
	assert.Equal(t, summary, *offers[0].CallSummary)

	assert.False(t, offers[1].Accepted)
	assert.Nil(t, offers[1].AgreedPrice)
	assert.Nil(t, offers[1].CallSummary)

	assert.True(t, offers[2].Accepted)
}

func TestRunnerFailedCallRecordsRejection(t *testing.T) {
	ops := testOps(t)
	stores := threeStores()[:1]
	jobID, strategy := seedJob(t, ops, stores)

	dialer := &scriptedDialer{
		outcomes: []CallOutcome{{}},
		errs:     []error{errors.New("line busy")},
	}
	runner := NewRunner(ops, dialer)
	require.NoError(t, runner.Run(context.Background(), jobID, stores, strategy))

	offers, err := ops.GetOffersByJob(jobID)
	require.NoError(t, err)
	require.Len(t, offers, 1)
	assert.False(t, offers[0].Accepted)

	job, err := ops.GetNegotiationJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusDone, job.Status)
}

func TestRunnerStopsOnCancellation(t *testing.T) {
	ops := testOps(t)
	stores := threeStores()
	jobID, strategy := seedJob(t, ops, stores)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	dialer := NewSimulatedDialer()
	dialer.CallDuration = time.Minute

	runner := NewRunner(ops, dialer)
	err := runner.Run(ctx, jobID, stores, strategy)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	// Job stays in_progress so a watcher can tell it never completed.
	job, err := ops.GetNegotiationJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, persistence.JobStatusInProgress, job.Status)
}

func TestRunnerUnknownJob(t *testing.T) {
	ops := testOps(t)
	runner := NewRunner(ops, nil)

	err := runner.Run(context.Background(), "no-such-job", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestSimulatedDialerAlternatesAndBoundsPrices(t *testing.T) {
	dialer := NewSimulatedDialer()
	dialer.CallDuration = 0

	strategy := &mapper.NegotiationStrategy{TargetPrice: 250, WalkAwayPrice: 180}
	store := mapper.LocalStore{Name: "EZ Pawn"}

	for i := 0; i < 6; i++ {
		outcome, err := dialer.Call(context.Background(), store, strategy)
		require.NoError(t, err)

		wantAccepted := i%2 == 0
		assert.Equal(t, wantAccepted, outcome.Accepted, "call %d", i)
		if wantAccepted {
			require.NotNil(t, outcome.AgreedPrice)
			assert.GreaterOrEqual(t, *outcome.AgreedPrice, 180.0)
			assert.LessOrEqual(t, *outcome.AgreedPrice, 250.0)
			require.NotNil(t, outcome.Summary)
			assert.NotEmpty(t, *outcome.Summary)
		} else {
			assert.Nil(t, outcome.AgreedPrice)
			assert.Nil(t, outcome.Summary)
		}
	}
}

func TestSimulatedDialerDefaultsWithoutStrategy(t *testing.T) {
	dialer := NewSimulatedDialer()
	dialer.CallDuration = 0

	outcome, err := dialer.Call(context.Background(), mapper.LocalStore{Name: "EZ Pawn"}, nil)
	require.NoError(t, err)
	require.True(t, outcome.Accepted)
	require.NotNil(t, outcome.AgreedPrice)
	assert.GreaterOrEqual(t, *outcome.AgreedPrice, defaultWalkAwayPrice)
	assert.LessOrEqual(t, *outcome.AgreedPrice, defaultTargetPrice)
}
