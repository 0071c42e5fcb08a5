package config

import "time"

// BuiltinConfig carries the worker registry and limits compiled into the
// binary. User YAML merges over these; a deployment with no voyagent.yaml
// still runs with the full worker set.
type BuiltinConfig struct {
	Workers map[string]WorkerConfig
	Limits  Limits
}

// tripadvisorTools is the read-only search/detail surface of the location
// content provider. The registry exposes no mutations for this domain.
var tripadvisorTools = []string{
	"search_locations",
	"search_nearby_locations",
	"get_location_details",
	"get_location_photos",
	"get_location_reviews",
	"search_restaurants",
	"get_restaurant_details",
	"search_attractions",
	"get_attraction_details",
	"search_hotels_tripadvisor",
	"search_geos",
	"get_airport_details",
	"search_airports",
	"get_popular_destinations",
	"get_seasonal_events",
}

// GetBuiltinConfig returns the compiled-in defaults.
// The returned value is fresh on every call so callers may mutate it
// during merging without affecting other callers.
func GetBuiltinConfig() *BuiltinConfig {
	return &BuiltinConfig{
		Workers: map[string]WorkerConfig{
			"flight": {
				Name: "flight",
				AllowedTools: []string{
					"search_flights_oneway",
					"search_flights_roundtrip",
					"search_flights_flexible",
				},
				MemoryKeywords: []string{
					"flight", "airline", "airport", "fly", "seat", "cabin",
					"economy", "business", "first class", "layover", "direct",
				},
			},
			"hotel": {
				Name: "hotel",
				AllowedTools: []string{
					"search_hotels",
					"get_hotel_rates",
					"get_hotel_details",
					"book_hotel",
				},
				MemoryKeywords: []string{
					"hotel", "stay", "room", "accommodation", "hostel",
					"resort", "check-in", "check-out", "breakfast", "suite",
				},
			},
			"visa": {
				Name:         "visa",
				AllowedTools: []string{"check_visa_requirements"},
				MemoryKeywords: []string{
					"visa", "passport", "nationality", "citizen", "embassy",
					"residence", "permit",
				},
			},
			"tripadvisor": {
				Name:         "tripadvisor",
				AllowedTools: tripadvisorTools,
				MemoryKeywords: []string{
					"restaurant", "attraction", "museum", "tour", "food",
					"vegetarian", "vegan", "activity", "beach", "hiking",
				},
			},
			"utilities": {
				Name: "utilities",
				AllowedTools: []string{
					"get_holidays",
					"get_weather",
					"convert_currency",
					"get_datetime",
					"get_esim_bundles",
				},
				MemoryKeywords: []string{
					"holiday", "weather", "currency", "budget", "esim",
					"sim", "timezone", "season", "rain", "temperature",
				},
				MultipleResults: true,
			},
		},
		Limits: Limits{
			MaxFeedbackRetries: 2,
			MaxJoinPolls:       20,
			JoinPollInterval:   500 * time.Millisecond,
			RecursionBudget:    50,
			RequestDeadline:    120 * time.Second,
			STMWindow:          10,
			MemoryTopK:         5,
		},
	}
}
