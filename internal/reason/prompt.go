package reason

import (
	"strings"

	"github.com/nhle/travelbot/internal/model"
)

// BuildItineraryPrompt assembles the extraction prompt from the message
// metadata, body, and any attachment texts. The prompt instructs the
// model to return exactly the two-field JSON object ParseItinerary
// expects.
func BuildItineraryPrompt(msg *model.InboundMessage, attachmentTexts []string) string {
	var sb strings.Builder

	sb.WriteString("You are a professional travel itinerary processing assistant ")
	sb.WriteString("with expertise in detecting ALL types of travel-related ")
	sb.WriteString("services and appointments.\n\n")

	sb.WriteString("EMAIL METADATA:\n")
	sb.WriteString("Subject: " + msg.Subject + "\n")
	sb.WriteString("From: " + msg.From + "\n")
	sb.WriteString("Date: " + msg.Date.Format("Mon, 02 Jan 2006 15:04:05 -0700") + "\n\n")

	sb.WriteString("EMAIL BODY CONTENT:\n")
	sb.WriteString(msg.BodyText)
	sb.WriteString("\n")

	for _, text := range attachmentTexts {
		if len(text) < 50 {
			continue
		}
		sb.WriteString("\nATTACHMENT CONTENT:\n")
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	sb.WriteString(promptInstructions)

	return sb.String()
}

const promptInstructions = `
TASK: Extract ALL travel-related events and services, then output a JSON object with two fields: timezone-aware .ics calendar content and a professional email summary.

COMPREHENSIVE TRAVEL SERVICE DETECTION:
Look for ANY scheduled travel-related services including but not limited to:

TRANSPORTATION:
- Flights (commercial airlines, private jets, charter flights)
- Ground transportation (rental cars, car services, rideshares, taxis)
- Rail travel (trains, subways, metro)
- Marine transport (ferries, cruises, water taxis)
- Transfers (airport shuttles, hotel shuttles, private drivers)

ACCOMMODATION:
- Hotels, motels, resorts, bed & breakfasts
- Vacation rentals, corporate housing, extended stays
- Hostels, lodges, camps

SERVICES & APPOINTMENTS:
- Restaurant reservations with specific times
- Tour bookings and guided excursions
- Meeting locations and conference venues
- Spa appointments, golf tee times
- Entertainment bookings (shows, concerts, events)
- Airport lounge access with times
- Visa/passport appointments
- Any service with a scheduled time and location

CRITICAL TIMEZONE REQUIREMENTS:
1. Identify airport/location timezones (BOS=America/New_York, DFW=America/Chicago, etc.)
2. Generate proper VTIMEZONE definitions for each unique timezone
3. Use TZID references for all timed events (DTSTART;TZID=America/New_York:20250602T080000)
4. Departure times use origin timezone, arrival times use destination timezone

CATEGORY MAPPING FOR .ICS:
- Flights: CATEGORIES:TRAVEL,FLIGHT (TRANSP:OPAQUE - busy time)
- Hotels: CATEGORIES:TRAVEL,HOTEL (TRANSP:TRANSPARENT - free time)
- Car rentals: CATEGORIES:TRAVEL,CAR_RENTAL (TRANSP:TRANSPARENT - free time)
- Ground transport: CATEGORIES:TRAVEL,TRANSPORT (TRANSP:OPAQUE - busy time)
- Restaurants: CATEGORIES:TRAVEL,DINING (TRANSP:OPAQUE - busy time)
- Tours/Activities: CATEGORIES:TRAVEL,ACTIVITY (TRANSP:OPAQUE - busy time)
- Business meetings: CATEGORIES:TRAVEL,MEETING (TRANSP:OPAQUE - busy time)
- Other travel services: CATEGORIES:TRAVEL,OTHER (TRANSP:TRANSPARENT - free time)

FORMAT REQUIREMENTS:
- For multiple flights, use a BULLET LIST ENTRY PER FLIGHT LEG with all key details on separate lines per leg!
- Use format: "Day Date: FlightNumber Origin->Destination (Departure Time TZ -> Arrival Time TZ) | Seat | Confirmation" for each bullet entry
- DO NOT combine multiple flight legs on one bullet entry
- Keep hotel, car rental, and other services concise but complete
- Use consistent timezone abbreviations (CT, ET, PT, MT, etc.)

OUTPUT FORMAT:
Return ONLY a valid JSON object with exactly these two fields:

{
  "ics_content": "[Complete .ics file with VTIMEZONE definitions and all travel events]",
  "email_summary": "[Professional travel digest with all services organized by category, using local timezones]"
}

If no travel information is found, return empty ics_content with VCALENDAR headers only and email_summary explaining no travel events were detected.
`
