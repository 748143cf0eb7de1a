package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/emersion/go-ical"
)

// The prompt only has room for a handful of events.
const maxCalendarEvents = 6

// CalendarService reads a user's iCalendar feed and extracts the events
// that fall on the wake-up day.
type CalendarService struct {
	client *http.Client
	logger *log.Logger
}

func NewCalendarService(logger *log.Logger) *CalendarService {
	return &CalendarService{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// DaySummaries returns "15:04 Title" lines for the events on the same
// calendar day as day, in start order. Cancelled events are skipped.
func (s *CalendarService) DaySummaries(ctx context.Context, feedURL string, day time.Time) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calendar request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("calendar feed error (%d)", resp.StatusCode)
	}

	if err := validateFeedFormat(string(body)); err != nil {
		return nil, err
	}

	type entry struct {
		at   time.Time
		line string
	}
	var entries []entry

	decoder := ical.NewDecoder(strings.NewReader(string(body)))
	for {
		cal, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to decode calendar: %w", err)
		}

		for _, comp := range cal.Children {
			if comp.Name != ical.CompEvent {
				continue
			}
			if statusProp := comp.Props.Get(ical.PropStatus); statusProp != nil && statusProp.Value == "CANCELLED" {
				continue
			}

			startProp := comp.Props.Get(ical.PropDateTimeStart)
			summaryProp := comp.Props.Get(ical.PropSummary)
			if startProp == nil || summaryProp == nil {
				continue
			}
			start, err := startProp.DateTime(day.Location())
			if err != nil {
				continue
			}

			start = start.In(day.Location())
			if !sameDay(start, day) {
				continue
			}

			line := summaryProp.Value
			if !(start.Hour() == 0 && start.Minute() == 0) {
				line = start.Format("15:04") + " " + line
			}
			entries = append(entries, entry{at: start, line: line})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].at.Before(entries[j].at) })
	if len(entries) > maxCalendarEvents {
		entries = entries[:maxCalendarEvents]
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.line
	}
	s.logger.Debug("calendar fetched", "day", day.Format("2006-01-02"), "events", len(lines))
	return lines, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// validateFeedFormat rejects responses that are clearly not iCalendar
// data, most often an HTML login page.
func validateFeedFormat(body string) error {
	trimmed := strings.TrimSpace(body)
	upper := strings.ToUpper(trimmed)
	if strings.HasPrefix(upper, "<!DOCTYPE") || strings.HasPrefix(upper, "<HTML") {
		return fmt.Errorf("received HTML instead of iCalendar data - check if the feed URL requires authentication")
	}
	if !strings.HasPrefix(trimmed, "BEGIN:VCALENDAR") {
		return fmt.Errorf("invalid iCalendar format - expected BEGIN:VCALENDAR")
	}
	return nil
}
