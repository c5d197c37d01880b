// Package ics renders a user's events as an iCalendar feed.
package ics

import (
	"io"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/jw6ventures/calgrid/internal/event"
	"github.com/jw6ventures/calgrid/internal/store"
)

const (
	productID = "-//jw6ventures//calgrid//EN"
	uidDomain = "@calgrid"
)

// Build returns a PUBLISH calendar holding events. Times are written in UTC.
func Build(name string, events []store.Event, now time.Time) *ical.Calendar {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, ev := range events {
		ve := cal.AddEvent(ev.ID + uidDomain)
		ve.SetDtStampTime(now.UTC())
		if !ev.CreatedAt.IsZero() {
			ve.SetCreatedTime(ev.CreatedAt.UTC())
		}
		if !ev.UpdatedAt.IsZero() {
			ve.SetModifiedAt(ev.UpdatedAt.UTC())
		}
		ve.SetStartAt(time.UnixMilli(ev.StartMS).UTC())
		ve.SetEndAt(time.UnixMilli(ev.EndMS).UTC())

		title := ev.Title
		if title == "" {
			title = event.UnnamedTitle
		}
		ve.SetSummary(title)
		if ev.Description != "" {
			ve.SetDescription(ev.Description)
		}
	}
	return cal
}

// Write serializes Build's calendar to w.
func Write(w io.Writer, name string, events []store.Event, now time.Time) error {
	_, err := io.WriteString(w, Build(name, events, now).Serialize())
	return err
}
