package notifdb

import (
	"fmt"
	"time"

	"howett.net/plist"
)

// cocoaEpochOffset is the number of seconds between the Unix epoch (1970)
// and the Cocoa epoch (2001).
const cocoaEpochOffset = 978307200

// Notification is the decoded content of a record's plist blob.
type Notification struct {
	App       string
	Title     string
	Subtitle  string
	Body      string
	Timestamp time.Time
}

// recordPlist mirrors the layout usernoted writes: app and date are top
// level, the visible fields are nested under req.
type recordPlist struct {
	App  string  `plist:"app"`
	Date float64 `plist:"date"`
	Req  struct {
		Title    string `plist:"titl"`
		Subtitle string `plist:"subt"`
		Body     string `plist:"body"`
	} `plist:"req"`
}

// Decode parses a record's binary plist blob. The record's App field (from
// the app-table join) overrides the plist's own app key.
func Decode(rec Record) (Notification, error) {
	var p recordPlist
	if _, err := plist.Unmarshal(rec.Data, &p); err != nil {
		return Notification{}, fmt.Errorf("notifdb: decode plist for rec_id=%d: %w", rec.RecID, err)
	}

	n := Notification{
		App:      rec.App,
		Title:    p.Req.Title,
		Subtitle: p.Req.Subtitle,
		Body:     p.Req.Body,
	}
	if n.App == "" {
		n.App = p.App
	}
	if p.Date != 0 {
		n.Timestamp = cocoaTime(p.Date)
	} else if !rec.DeliveredAt.IsZero() {
		n.Timestamp = rec.DeliveredAt
	}
	return n, nil
}

func cocoaTime(cocoaSeconds float64) time.Time {
	unix := cocoaSeconds + cocoaEpochOffset
	sec := int64(unix)
	nsec := int64((unix - float64(sec)) * float64(time.Second))
	return time.Unix(sec, nsec).UTC()
}
