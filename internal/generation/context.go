package generation

import (
	"context"

	"github.com/sneakerslayer/StartSmart-v2-sub008/internal/models"
)

// enrichContext fills the parts of the context bundle the device
// cannot know ahead of time. Lookups are best-effort; a cold script
// beats no script.
func (o *Orchestrator) enrichContext(ctx context.Context, intent *models.Intent) {
	intent.Context.TimeOfDay = models.TimeOfDayBucket(intent.ScheduledFor)
	intent.Context.DayOfWeek = intent.ScheduledFor.Weekday().String()

	if o.weather != nil && intent.Context.Latitude != nil && intent.Context.Longitude != nil {
		summary, err := o.weather.Summary(ctx, *intent.Context.Latitude, *intent.Context.Longitude)
		if err != nil {
			o.logger.Warn("weather lookup failed", "intent_id", intent.ID, "error", err)
		} else {
			intent.Context.Weather = summary
		}
	}

	if o.calendar != nil && intent.Context.CalendarFeedURL != "" {
		events, err := o.calendar.DaySummaries(ctx, intent.Context.CalendarFeedURL, intent.ScheduledFor)
		if err != nil {
			o.logger.Warn("calendar lookup failed", "intent_id", intent.ID, "error", err)
		} else {
			intent.Context.CalendarEvents = events
		}
	}
}
