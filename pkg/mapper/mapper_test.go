package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appraisal/pkg/pipeline"
	"appraisal/pkg/swarm"
)

func TestNormalizeDemand(t *testing.T) {
	cases := map[string]string{
		"very_high": "high",
		"high":      "high",
		"HIGH":      "high",
		"medium":    "medium",
		"low":       "low",
		"very_low":  "low",
		"":          "medium",
		"unknown":   "medium",
		"soaring":   "medium",
	}
	for raw, want := range cases {
		assert.Equal(t, want, NormalizeDemand(raw), "raw %q", raw)
	}
}

func TestMapBestPlatformAndConfidence(t *testing.T) {
	rec := pipeline.NewRecord("an-1", "@40.7,-73.9").
		WithVision("2024 widget X, excellent condition", `{"condition_grade":"excellent"}`).
		WithSwarm([]swarm.Result{
			{Worker: "online_marketplace_analyst", Result: map[string]any{
				"platforms": []any{
					map[string]any{"name": "eBay", "estimated_sold_price": 100.0, "sell_through_rate": "high"},
				},
			}},
			{Worker: "local_marketplace_analyst", Result: map[string]any{
				"platforms": []any{
					map[string]any{"name": "Craigslist", "estimated_price": 120.0, "typical_days_to_sell": 7.0},
				},
			}},
			{Worker: "market_demand_analyst", Error: "timeout"},
		})

	resp := Map(rec, "https://img.example/1.jpg")

	assert.Equal(t, "Craigslist", resp.BestPlatform)
	assert.InDelta(t, 0.67, resp.Confidence, 0.001)
	require.Len(t, resp.Platforms, 2)
	assert.Equal(t, 100.0, resp.Platforms[0].AvgPrice)
	assert.Equal(t, "high", resp.Platforms[0].Demand)
	assert.Equal(t, 7, resp.Platforms[1].TimeToSellDays)
	// Demand analyst errored, so the local channel gets the medium default.
	assert.Equal(t, "medium", resp.Platforms[1].Demand)
}

func TestMapDefaultsWithNoPlatforms(t *testing.T) {
	rec := pipeline.NewRecord("an-2", "@40.7,-73.9").
		WithVision("ceramic garden gnome", `{"condition_grade":"good"}`)

	resp := Map(rec, "")

	assert.Equal(t, "eBay", resp.BestPlatform)
	assert.Equal(t, "ceramic garden gnome", resp.ItemName)
	assert.Equal(t, "good", resp.Condition)
	assert.Equal(t, "USD", resp.EstimatedPriceRange.Currency)
	assert.Zero(t, resp.Confidence)
	assert.Nil(t, resp.NegotiationStrategy)
}

func TestMapConditionTipsFromDeductions(t *testing.T) {
	rec := pipeline.NewRecord("an-3", "@40.7,-73.9").
		WithVision("used laptop", `{"condition_grade":"fair","condition_details":"Cracked bezel and worn keys."}`).
		WithSwarm([]swarm.Result{
			{Worker: "condition_impact_analyst", Result: map[string]any{
				"deductions": []any{
					map[string]any{"factor": "cracked bezel", "impact_pct": 10.0},
					map[string]any{"factor": "  ", "impact_pct": 5.0},
					map[string]any{"factor": "worn keycaps", "impact_pct": 5.0},
				},
			}},
		})

	resp := Map(rec, "")
	assert.Equal(t, []string{"Address: cracked bezel", "Address: worn keycaps"}, resp.ConditionTips)
}

func TestMapConditionTipsFallBackToVisionSentence(t *testing.T) {
	rec := pipeline.NewRecord("an-4", "@40.7,-73.9").
		WithVision("used laptop", `{"condition_grade":"fair","condition_details":"Cracked bezel."}`)

	resp := Map(rec, "")
	assert.Equal(t, []string{"Cracked bezel."}, resp.ConditionTips)
}

func TestMapSynthesisPayloadFields(t *testing.T) {
	rec := pipeline.NewRecord("an-5", "@40.7,-73.9").
		WithVision("gold ring", `{"condition_grade":"excellent"}`).
		WithSynthesis(map[string]any{
			"item_name":              "14k Gold Band",
			"item_description":       "A classic ring.",
			"market_context":         "Gold prices are up.",
			"estimated_market_value": map[string]any{"low": 150.0, "fair": 200.0, "high": 260.0},
			"target_shops": []any{
				map[string]any{
					"name": "Borough Gold Exchange", "address": "88 Flatbush Ave",
					"phone": "718-555-0101", "rating": 4.7, "priority": 1.0,
					"reason": "Buys gold daily", "shop_type": "specialty",
				},
				map[string]any{
					"name": "EZ Pawn", "address": "12 Atlantic Ave",
					"phone": "718-555-0100", "shop_type": "general_buyer",
				},
			},
			"negotiation_strategy": map[string]any{
				"opening_price": 240.0, "target_price": 200.0, "walk_away_price": 150.0,
				"opening_script": "Hi there", "counter_script": "How about",
				"accept_script": "Deal", "walk_away_script": "Thanks anyway",
			},
		})

	resp := Map(rec, "https://img.example/ring.jpg")

	assert.Equal(t, "14k Gold Band", resp.ItemName)
	assert.Equal(t, PriceRange{Low: 150, Fair: 200, High: 260, Currency: "USD"}, resp.EstimatedPriceRange)

	require.Len(t, resp.LocalStores, 2)
	assert.Equal(t, "Specialty Store", resp.LocalStores[0].Specialty)
	assert.Equal(t, 1, resp.LocalStores[0].Priority)
	// Unknown shop types fall back to a prettified label.
	assert.Equal(t, "General Buyer", resp.LocalStores[1].Specialty)

	require.NotNil(t, resp.NegotiationStrategy)
	assert.Equal(t, 150.0, resp.NegotiationStrategy.WalkAwayPrice)
	assert.Equal(t, "Deal", resp.NegotiationStrategy.AcceptScript)
}
