package llm

// Tool names the assistant can call to drive the booking flow.
const (
	ToolGetAvailableSlots     = "get_available_slots"
	ToolGetNextAvailableDates = "get_next_available_dates"
	ToolStartBooking          = "start_booking"
)

// BookingTools returns the tool set exposed to the model when the tenant has
// bookings enabled. Everything else is answered from the prompt.
func BookingTools() []Tool {
	return []Tool{
		{
			Name:        ToolGetAvailableSlots,
			Description: "Get the available booking time slots for a specific date. Use when the customer asks about availability on a day.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"date": map[string]interface{}{
						"type":        "string",
						"description": "The date to check, formatted YYYY-MM-DD",
					},
				},
				"required": []string{"date"},
			},
		},
		{
			Name:        ToolGetNextAvailableDates,
			Description: "Get the next dates that still have open booking slots. Use when the customer asks when they can come without naming a date.",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        ToolStartBooking,
			Description: "Start the step-by-step booking dialogue. Use when the customer wants to make an appointment or reservation.",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"reason": map[string]interface{}{
						"type":        "string",
						"description": "The reason or service the customer wants to book, if they already said it",
					},
				},
			},
		},
	}
}
