package workers

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/models"
)

const hotelPrompt = `You are the hotel specialist of a travel assistant.
Choose the tool matching the user's intent:
- search_hotels for a listing without prices
- get_hotel_rates when the user wants prices (requires check_in and
  check_out dates, YYYY-MM-DD)
- get_hotel_details for one named property
Never choose book_hotel: bookings are completed on a secure page, not in
chat.`

// bookingBaseURL is where the responder sends users to complete a booking.
const bookingBaseURL = "https://book.voyagent.app/hotel"

// NewHotel builds the hotel worker. A model that still picks book_hotel is
// intercepted: no booking mutation ever runs from chat; the result carries
// the secure booking URL instead.
func NewHotel(cfg config.WorkerConfig, client llm.Client, tools ToolInvoker, rec *audit.Recorder) *Worker {
	return &Worker{
		name:      models.WorkerHotel,
		cfg:       cfg,
		prompt:    hotelPrompt,
		llm:       client,
		tools:     tools,
		rec:       rec,
		intercept: interceptBooking,
	}
}

func interceptBooking(tool string, args map[string]any) *models.WorkerResult {
	if tool != "book_hotel" {
		return nil
	}
	hotelID, _ := args["hotel_id"].(string)
	if hotelID == "" {
		hotelID, _ = args["hotel_name"].(string)
	}
	payload, _ := json.Marshal(map[string]any{
		"booking_url": fmt.Sprintf("%s?hotel=%s", bookingBaseURL, url.QueryEscape(hotelID)),
		"note":        "booking is completed on the secure page, not in chat",
	})
	return &models.WorkerResult{
		Worker: models.WorkerHotel,
		Tool:   tool,
		Args:   args,
		Data:   payload,
	}
}
