package llm

import (
	"fmt"
	"strings"
)

// BusinessProfile is the tenant-facing identity the assistant speaks as.
type BusinessProfile struct {
	BusinessName string
	Description  string
	Tone         string
	Language     string
}

// BuildSystemPrompt assembles the system prompt from the tenant profile and
// the retrieved knowledge chunks.
func BuildSystemPrompt(profile BusinessProfile, knowledge []string, bookingEnabled bool) string {
	var sb strings.Builder

	name := profile.BusinessName
	if name == "" {
		name = "this business"
	}
	tone := profile.Tone
	if tone == "" {
		tone = "friendly and professional"
	}

	sb.WriteString(fmt.Sprintf("You are the virtual assistant for %s.\n", name))
	if profile.Description != "" {
		sb.WriteString(fmt.Sprintf("About the business: %s\n", profile.Description))
	}
	sb.WriteString(fmt.Sprintf("Communication tone: %s.\n", tone))
	if profile.Language != "" {
		sb.WriteString(fmt.Sprintf("Always answer in %s.\n", profile.Language))
	}
	sb.WriteString("\n")

	if len(knowledge) > 0 {
		sb.WriteString("=== BUSINESS KNOWLEDGE ===\n")
		for _, chunk := range knowledge {
			sb.WriteString(chunk)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString("Instructions:\n")
	sb.WriteString("- Answer using the business knowledge above when it is relevant\n")
	sb.WriteString("- If you do not know something, say so honestly\n")
	sb.WriteString("- Never invent prices, schedules, or policies\n")
	sb.WriteString("- Keep replies short, this is a chat conversation\n")
	if bookingEnabled {
		sb.WriteString("- Use the booking tools when the customer wants an appointment or asks about availability\n")
	} else {
		sb.WriteString("- This business does not take bookings through chat\n")
	}

	return sb.String()
}
