// Package mapper reshapes the loosely-typed pipeline record into the
// strictly-typed response object served at the web boundary and persisted
// per analysis.
package mapper

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"appraisal/pkg/pipeline"
)

// PlatformResult is one sale channel with its estimated price and demand.
type PlatformResult struct {
	Name            string  `json:"name"`
	AvgPrice        float64 `json:"avg_price"`
	Demand          string  `json:"demand"` // "high" | "medium" | "low"
	TimeToSellDays  int     `json:"time_to_sell_days,omitempty"`
	SellThroughRate string  `json:"sell_through_rate,omitempty"`
}

// LocalStore is one shop selected by synthesis for the calling stage.
type LocalStore struct {
	Name      string  `json:"name"`
	Address   string  `json:"address"`
	Phone     string  `json:"phone"`
	Specialty string  `json:"specialty"`
	Rating    float64 `json:"rating,omitempty"`
	Priority  int     `json:"priority,omitempty"`
	Reason    string  `json:"reason,omitempty"`
	ShopType  string  `json:"shop_type,omitempty"` // "pawn" | "specialty" | "buyer"
}

// NegotiationStrategy is the script bundle the voice agent works from.
type NegotiationStrategy struct {
	OpeningPrice   float64 `json:"opening_price"`
	TargetPrice    float64 `json:"target_price"`
	WalkAwayPrice  float64 `json:"walk_away_price"`
	OpeningScript  string  `json:"opening_script"`
	CounterScript  string  `json:"counter_script"`
	AcceptScript   string  `json:"accept_script"`
	WalkAwayScript string  `json:"walk_away_script"`
}

// PriceRange is the consolidated value estimate.
type PriceRange struct {
	Low      float64 `json:"low"`
	Fair     float64 `json:"fair"`
	High     float64 `json:"high"`
	Currency string  `json:"currency"`
}

// AnalyzeResponse is the web boundary contract for one completed analysis.
type AnalyzeResponse struct {
	AnalysisID          string               `json:"analysis_id"`
	ImageURL            string               `json:"image_url"`
	ItemName            string               `json:"item_name"`
	ItemDescription     string               `json:"item_description"`
	Condition           string               `json:"condition"` // "like_new" | "excellent" | "good" | "fair" | "poor"
	EstimatedPriceRange PriceRange           `json:"estimated_price_range"`
	MarketContext       string               `json:"market_context"`
	BestPlatform        string               `json:"best_platform"`
	Platforms           []PlatformResult     `json:"platforms"`
	LocalStores         []LocalStore         `json:"local_stores"`
	NegotiationStrategy *NegotiationStrategy `json:"negotiation_strategy,omitempty"`
	ConditionTips       []string             `json:"condition_tips"`
	Confidence          float64              `json:"confidence"` // swarm success rate, 0..1
	ProcessingTimeMs    int64                `json:"processing_time_ms"`
}

// NormalizeDemand maps heterogeneous demand vocabularies onto the
// three-level scale the response uses.
func NormalizeDemand(raw string) string {
	switch strings.ToLower(raw) {
	case "very_high", "high":
		return "high"
	case "low", "very_low":
		return "low"
	default:
		return "medium"
	}
}

var shopTypeLabels = map[string]string{
	"pawn":      "Pawn Shop",
	"specialty": "Specialty Store",
	"buyer":     "Used Goods Buyer",
}

// Map converts a completed pipeline record into the response object.
func Map(rec pipeline.Record, imageURL string) AnalyzeResponse {
	payload := rec.FinalPayload
	if payload == nil {
		payload = map[string]any{}
	}

	var conditionData map[string]any
	if err := json.Unmarshal([]byte(rec.ConditionDetails), &conditionData); err != nil {
		conditionData = map[string]any{}
	}

	// Index clean worker results by name. Error-tagged and sentinel entries
	// are left out here; they still count in the confidence denominator.
	byWorker := make(map[string]map[string]any, len(rec.SwarmResults))
	for i := range rec.SwarmResults {
		r := &rec.SwarmResults[i]
		if r.Succeeded() {
			byWorker[r.Worker] = r.Result
		}
	}

	overallDemand := asString(byWorker["market_demand_analyst"]["demand_level"])
	if overallDemand == "" {
		overallDemand = "medium"
	}

	platforms := collectPlatforms(byWorker, overallDemand)

	bestPlatform := "eBay"
	bestPrice := math.Inf(-1)
	for _, p := range platforms {
		if p.AvgPrice > bestPrice {
			bestPrice = p.AvgPrice
			bestPlatform = p.Name
		}
	}

	itemName := asString(payload["item_name"])
	if itemName == "" {
		itemName = rec.Identification
	}
	if itemName == "" {
		itemName = "Unknown Item"
	}

	successful := 0
	for i := range rec.SwarmResults {
		if rec.SwarmResults[i].Succeeded() {
			successful++
		}
	}
	total := len(rec.SwarmResults)
	if total == 0 {
		total = 1
	}
	confidence := math.Round(float64(successful)/float64(total)*100) / 100

	return AnalyzeResponse{
		AnalysisID:          rec.AnalysisID,
		ImageURL:            imageURL,
		ItemName:            itemName,
		ItemDescription:     asString(payload["item_description"]),
		Condition:           conditionGrade(conditionData),
		EstimatedPriceRange: priceRange(payload),
		MarketContext:       asString(payload["market_context"]),
		BestPlatform:        bestPlatform,
		Platforms:           platforms,
		LocalStores:         localStores(payload),
		NegotiationStrategy: negotiationStrategy(payload),
		ConditionTips:       conditionTips(byWorker, conditionData),
		Confidence:          confidence,
		ProcessingTimeMs:    rec.Elapsed().Milliseconds(),
	}
}

func collectPlatforms(byWorker map[string]map[string]any, overallDemand string) []PlatformResult {
	platforms := []PlatformResult{}

	for _, entry := range asSlice(byWorker["online_marketplace_analyst"]["platforms"]) {
		p, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		price := asFloat(p["estimated_sold_price"])
		if price == 0 {
			price = asFloat(p["listing_price"])
		}
		demand := asString(p["sell_through_rate"])
		if demand == "" {
			demand = overallDemand
		}
		platforms = append(platforms, PlatformResult{
			Name:            asString(p["name"]),
			AvgPrice:        price,
			Demand:          NormalizeDemand(demand),
			SellThroughRate: asString(p["sell_through_rate"]),
		})
	}

	for _, entry := range asSlice(byWorker["local_marketplace_analyst"]["platforms"]) {
		p, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		platforms = append(platforms, PlatformResult{
			Name:           asString(p["name"]),
			AvgPrice:       asFloat(p["estimated_price"]),
			Demand:         NormalizeDemand(overallDemand),
			TimeToSellDays: int(asFloat(p["typical_days_to_sell"])),
		})
	}

	return platforms
}

// conditionTips derives tips from the condition-impact deductions, falling
// back to the vision condition sentence when no deductions parsed.
func conditionTips(byWorker map[string]map[string]any, conditionData map[string]any) []string {
	tips := []string{}
	for _, entry := range asSlice(byWorker["condition_impact_analyst"]["deductions"]) {
		d, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		factor := strings.TrimSpace(asString(d["factor"]))
		if factor != "" {
			tips = append(tips, fmt.Sprintf("Address: %s", factor))
		}
	}
	if len(tips) == 0 {
		if detail := asString(conditionData["condition_details"]); detail != "" {
			tips = []string{detail}
		}
	}
	return tips
}

func localStores(payload map[string]any) []LocalStore {
	stores := []LocalStore{}
	for _, entry := range asSlice(payload["target_shops"]) {
		s, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		shopType := asString(s["shop_type"])
		specialty, known := shopTypeLabels[shopType]
		if !known {
			specialty = titleCase(strings.ReplaceAll(shopType, "_", " "))
		}
		stores = append(stores, LocalStore{
			Name:      asString(s["name"]),
			Address:   asString(s["address"]),
			Phone:     asString(s["phone"]),
			Specialty: specialty,
			Rating:    asFloat(s["rating"]),
			Priority:  int(asFloat(s["priority"])),
			Reason:    asString(s["reason"]),
			ShopType:  shopType,
		})
	}
	return stores
}

func negotiationStrategy(payload map[string]any) *NegotiationStrategy {
	neg, ok := payload["negotiation_strategy"].(map[string]any)
	if !ok || len(neg) == 0 {
		return nil
	}
	return &NegotiationStrategy{
		OpeningPrice:   asFloat(neg["opening_price"]),
		TargetPrice:    asFloat(neg["target_price"]),
		WalkAwayPrice:  asFloat(neg["walk_away_price"]),
		OpeningScript:  asString(neg["opening_script"]),
		CounterScript:  asString(neg["counter_script"]),
		AcceptScript:   asString(neg["accept_script"]),
		WalkAwayScript: asString(neg["walk_away_script"]),
	}
}

func priceRange(payload map[string]any) PriceRange {
	mv, _ := payload["estimated_market_value"].(map[string]any)
	return PriceRange{
		Low:      asFloat(mv["low"]),
		Fair:     asFloat(mv["fair"]),
		High:     asFloat(mv["high"]),
		Currency: "USD",
	}
}

func conditionGrade(conditionData map[string]any) string {
	if grade := asString(conditionData["condition_grade"]); grade != "" {
		return grade
	}
	return "unknown"
}

// Loose accessors: model output arrives as map[string]any with JSON number
// semantics, so everything numeric is float64 and absent keys are nil.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
