package calendar

import (
	"fmt"

	"github.com/google/uuid"
)

// AttachmentName returns a unique filename for an outbound .ics
// attachment. Some mail clients cache attachments by name, so reusing
// one name across replies can surface a stale itinerary.
func AttachmentName() string {
	return fmt.Sprintf("travel_itinerary_%s.ics", uuid.NewString()[:8])
}
