package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/trappiz/tesla-order-status/internal/diff"
	"github.com/trappiz/tesla-order-status/internal/store"
	"github.com/trappiz/tesla-order-status/internal/tree"
)

// supportedLocales are the display languages the renderer knows date layouts
// for. The matcher falls back to English for anything else.
var supportedLocales = []language.Tag{
	language.English,
	language.German,
	language.Finnish,
	language.Swedish,
	language.Polish,
}

var localeMatcher = language.NewMatcher(supportedLocales)

// dateLayouts maps a matched locale to its date layout.
var dateLayouts = map[language.Tag]string{
	language.English: "2006-01-02",
	language.German:  "02.01.2006",
	language.Finnish: "2.1.2006",
	language.Swedish: "2006-01-02",
	language.Polish:  "02.01.2006",
}

// Renderer turns results, change records, and history batches into the text
// output of the check and history commands.
type Renderer struct {
	layout string
}

// NewRenderer creates a Renderer for the given locale string ("de",
// "en-US", ...). Unknown locales render dates in ISO form.
func NewRenderer(locale string) *Renderer {
	tag, _ := language.MatchStrings(localeMatcher, locale)
	base, _ := tag.Base()
	layout := dateLayouts[language.English]
	for candidate, l := range dateLayouts {
		cb, _ := candidate.Base()
		if cb == base {
			layout = l
			break
		}
	}
	return &Renderer{layout: layout}
}

// Date renders an ISO-8601 timestamp as a locale date, passing through
// values it cannot parse.
func (r *Renderer) Date(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "N/A") {
		return value
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts.Format(r.layout)
		}
	}
	return value
}

// summaryFields are the snapshot paths shown in the order summary, in
// display order.
var summaryFields = []struct {
	label  string
	path   []string
	isDate bool
}{
	{"Status", []string{"order", "orderStatus"}, false},
	{"Model", []string{"order", "modelCode"}, false},
	{"VIN", []string{"details", "tasks", "scheduling", "vin"}, false},
	{"Delivery Window", []string{"details", "tasks", "scheduling", "deliveryWindowDisplay"}, false},
	{"Expected Registration", []string{"details", "tasks", "registration", "expectedRegDate"}, true},
	{"Delivery Appointment", []string{"details", "tasks", "scheduling", "apptDateTimeAddressStr"}, false},
}

// Summary renders the headline block for one order snapshot.
func (r *Renderer) Summary(snap store.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Order %s\n", snap.Reference)
	for _, f := range summaryFields {
		value := tree.StringAt(snap.Body, f.path...)
		if value == "" {
			continue
		}
		if f.isDate {
			value = r.Date(value)
		}
		fmt.Fprintf(&b, "  %-22s %s\n", f.label+":", value)
	}
	return b.String()
}

// Changes renders one line per change record.
func (r *Renderer) Changes(records []diff.Record) string {
	var b strings.Builder
	for _, rec := range records {
		switch rec.Kind {
		case diff.KindAdded:
			fmt.Fprintf(&b, "  + %s: %s\n", rec.Path, renderValue(rec.New))
		case diff.KindRemoved:
			fmt.Fprintf(&b, "  - %s: %s\n", rec.Path, renderValue(rec.Old))
		case diff.KindChanged:
			fmt.Fprintf(&b, "  ~ %s: %s -> %s\n", rec.Path, renderValue(rec.Old), renderValue(rec.New))
		}
	}
	return b.String()
}

// renderValue formats a leaf node for display.
func renderValue(n tree.Node) string {
	switch v := n.(type) {
	case nil:
		return ""
	case tree.Null:
		return "null"
	case tree.String:
		return string(v)
	default:
		data, err := tree.Encode(n)
		if err != nil {
			return "?"
		}
		return string(data)
	}
}

// TimelineEntry is one dated milestone in an order's life.
type TimelineEntry struct {
	Timestamp string
	Label     string
	Value     string
}

// timelineLabels maps the terminal snapshot path of a change to its
// milestone label. Changes outside this list never enter the timeline.
var timelineLabels = map[string]string{
	"details.tasks.scheduling.vin":                        "VIN",
	"details.tasks.scheduling.deliveryWindowDisplay":      "Delivery Window",
	"details.tasks.scheduling.apptDateTimeAddressStr":     "Delivery Appointment Date",
	"details.tasks.registration.expectedRegDate":          "Expected Registration Date",
	"details.tasks.finalPayment.data.etaToDeliveryCenter": "ETA To Delivery Center",
	"order.orderStatus":                                   "Order Status",
	"order.vehicleOdometer":                               "Vehicle Odometer",
}

// Timeline builds the milestone list for one order from its snapshot and
// history batches, sorted by timestamp with input order as tiebreak.
func (r *Renderer) Timeline(snap store.Snapshot, history []store.Batch) []TimelineEntry {
	var entries []TimelineEntry

	if v := tree.StringAt(snap.Body, "details", "tasks", "registration", "orderDetails", "reservationDate"); v != "" {
		entries = append(entries, TimelineEntry{Timestamp: v, Label: "Reservation"})
	}
	if v := tree.StringAt(snap.Body, "details", "tasks", "registration", "orderDetails", "orderBookedDate"); v != "" {
		entries = append(entries, TimelineEntry{Timestamp: v, Label: "Order Booked"})
	}

	seen := make(map[string]bool)
	firstOdometer := true
	for _, batch := range history {
		for _, rec := range batch.Changes {
			path := rec.Path.String()
			label, ok := timelineLabels[path]
			if !ok {
				continue
			}
			// The first odometer reading marks the car leaving the factory.
			if label == "Vehicle Odometer" {
				if !firstOdometer {
					continue
				}
				firstOdometer = false
				entries = append(entries, TimelineEntry{
					Timestamp: batch.DetectedAt.Format(time.RFC3339),
					Label:     "Car Built",
				})
				continue
			}
			entries = append(entries, TimelineEntry{
				Timestamp: batch.DetectedAt.Format(time.RFC3339),
				Label:     label,
				Value:     renderValue(rec.New),
			})
			seen[label] = true
		}
	}

	// Current snapshot values fill in milestones the history never caught.
	if !seen["Delivery Window"] {
		if v := tree.StringAt(snap.Body, "details", "tasks", "scheduling", "deliveryWindowDisplay"); v != "" {
			entries = append(entries, TimelineEntry{Label: "Delivery Window", Value: v})
		}
	}
	if !seen["Expected Registration Date"] {
		if v := tree.StringAt(snap.Body, "details", "tasks", "registration", "expectedRegDate"); v != "" {
			entries = append(entries, TimelineEntry{Timestamp: v, Label: "Expected Registration Date"})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		ti, iok := parseTimestamp(entries[i].Timestamp)
		tj, jok := parseTimestamp(entries[j].Timestamp)
		if iok && jok {
			return ti.Before(tj)
		}
		// Undated entries sink to the end.
		return iok && !jok
	})
	return entries
}

// RenderTimeline renders timeline entries as text lines.
func (r *Renderer) RenderTimeline(entries []TimelineEntry) string {
	var b strings.Builder
	for _, e := range entries {
		ts := "          "
		if e.Timestamp != "" {
			ts = r.Date(e.Timestamp)
		}
		if e.Value != "" {
			fmt.Fprintf(&b, "  %s  %s: %s\n", ts, e.Label, e.Value)
		} else {
			fmt.Fprintf(&b, "  %s  %s\n", ts, e.Label)
		}
	}
	return b.String()
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
