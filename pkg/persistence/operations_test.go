package persistence

import (
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/pkg/mapper"
)

func testOps(t *testing.T) *DatabaseOperations {
	t.Helper()
	db, err := InitializeDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewDatabaseOperations(db)
}

func sampleAnalysis() *mapper.AnalyzeResponse {
	return &mapper.AnalyzeResponse{
		AnalysisID:      uuid.NewString(),
		ImageURL:        "https://img.example/bike.jpg",
		ItemName:        "Specialized Stumpjumper (2024)",
		ItemDescription: "A well-kept trail bike.",
		Condition:       "good",
		EstimatedPriceRange: mapper.PriceRange{
			Low: 2200, Fair: 2700, High: 3100, Currency: "USD",
		},
		MarketContext: "Strong spring demand.",
		BestPlatform:  "eBay",
		Platforms: []mapper.PlatformResult{
			{Name: "eBay", AvgPrice: 2700, Demand: "high"},
		},
		LocalStores: []mapper.LocalStore{
			{Name: "Borough Bikes", Address: "1 Main St", Phone: "718-555-0100",
				Specialty: "Specialty Store", Priority: 1, ShopType: "specialty"},
			{Name: "EZ Pawn", Address: "12 Atlantic Ave", Phone: "718-555-0101",
				Specialty: "Pawn Shop", Priority: 2, ShopType: "pawn"},
		},
		NegotiationStrategy: &mapper.NegotiationStrategy{
			OpeningPrice: 2900, TargetPrice: 2600, WalkAwayPrice: 2200,
			OpeningScript: "Hi", CounterScript: "How about", AcceptScript: "Deal", WalkAwayScript: "Thanks",
		},
		ConditionTips:    []string{"Address: worn grips"},
		Confidence:       0.8,
		ProcessingTimeMs: 42000,
	}
}

func TestSaveAndGetAnalysis(t *testing.T) {
	ops := testOps(t)
	in := sampleAnalysis()

	require.NoError(t, ops.SaveAnalysis(in))

	out, err := ops.GetAnalysis(in.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestGetAnalysisNotFound(t *testing.T) {
	ops := testOps(t)

	_, err := ops.GetAnalysis("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveAnalysisWithoutNegotiationStrategy(t *testing.T) {
	ops := testOps(t)
	in := sampleAnalysis()
	in.NegotiationStrategy = nil

	require.NoError(t, ops.SaveAnalysis(in))

	out, err := ops.GetAnalysis(in.AnalysisID)
	require.NoError(t, err)
	assert.Nil(t, out.NegotiationStrategy)
}

func TestNegotiationJobLifecycle(t *testing.T) {
	ops := testOps(t)
	analysis := sampleAnalysis()
	require.NoError(t, ops.SaveAnalysis(analysis))

	jobID, err := ops.CreateNegotiationJob(analysis.AnalysisID, analysis.LocalStores)
	require.NoError(t, err)

	job, err := ops.GetNegotiationJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, analysis.AnalysisID, job.AnalysisID)

	offers, err := ops.GetOffersByJob(jobID)
	require.NoError(t, err)
	require.Len(t, offers, 2)
	assert.Equal(t, "Borough Bikes", offers[0].StoreName)
	assert.False(t, offers[0].Accepted)
	assert.Nil(t, offers[0].AgreedPrice)

	require.NoError(t, ops.UpdateJobStatus(jobID, JobStatusInProgress))

	price := 2450.0
	summary := "Agreed after a short call."
	require.NoError(t, ops.RecordOffer(jobID, "Borough Bikes", true, &price, &summary))

	require.NoError(t, ops.UpdateJobStatus(jobID, JobStatusDone))

	job, err = ops.GetNegotiationJob(jobID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusDone, job.Status)

	offers, err = ops.GetOffersByJob(jobID)
	require.NoError(t, err)
	assert.True(t, offers[0].Accepted)
	require.NotNil(t, offers[0].AgreedPrice)
	assert.Equal(t, 2450.0, *offers[0].AgreedPrice)
	assert.False(t, offers[1].Accepted)
}

func TestUpdateJobStatusUnknownJob(t *testing.T) {
	ops := testOps(t)
	assert.ErrorIs(t, ops.UpdateJobStatus("missing", JobStatusDone), ErrNotFound)
}

func TestSchemaVersionIsCurrent(t *testing.T) {
	db, err := InitializeDatabase(filepath.Join(t.TempDir(), "v.db"))
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)

	// Re-initializing an existing database is a no-op.
	require.NoError(t, initializeSchemaWithMigrations(db))
}
