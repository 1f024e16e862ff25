package payment

import (
	"fmt"
	"strconv"
)

const (
	metaBookingID   = "booking_id"
	metaUserID      = "user_id"
	metaServiceID   = "service_id"
	metaDate        = "date"
	metaStartTime   = "start_time"
	metaEndTime     = "end_time"
	metaNotes       = "notes"
	metaCheckoutRef = "checkout_ref"
)

// Metadata is the bag attached to a checkout session. It carries either an
// existing BookingID or the raw parameters of a booking to create on payment.
type Metadata struct {
	BookingID   string
	UserID      string
	ServiceID   uint
	Date        string
	StartTime   string
	EndTime     string
	Notes       string
	CheckoutRef string
}

// Deferred reports whether the booking row does not exist yet.
func (m Metadata) Deferred() bool {
	return m.BookingID == ""
}

// Validate checks that a deferred bag carries everything needed to insert.
func (m Metadata) Validate() error {
	if !m.Deferred() {
		return nil
	}
	if m.UserID == "" || m.ServiceID == 0 || m.Date == "" || m.StartTime == "" || m.EndTime == "" {
		return fmt.Errorf("incomplete booking metadata: %+v", m)
	}
	return nil
}

func (m Metadata) ToMap() map[string]string {
	out := map[string]string{}
	put := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	put(metaBookingID, m.BookingID)
	put(metaUserID, m.UserID)
	if m.ServiceID != 0 {
		out[metaServiceID] = strconv.FormatUint(uint64(m.ServiceID), 10)
	}
	put(metaDate, m.Date)
	put(metaStartTime, m.StartTime)
	put(metaEndTime, m.EndTime)
	put(metaNotes, m.Notes)
	put(metaCheckoutRef, m.CheckoutRef)
	return out
}

func MetadataFromMap(in map[string]string) Metadata {
	m := Metadata{
		BookingID:   in[metaBookingID],
		UserID:      in[metaUserID],
		Date:        in[metaDate],
		StartTime:   in[metaStartTime],
		EndTime:     in[metaEndTime],
		Notes:       in[metaNotes],
		CheckoutRef: in[metaCheckoutRef],
	}
	if id, err := strconv.ParseUint(in[metaServiceID], 10, 64); err == nil {
		m.ServiceID = uint(id)
	}
	return m
}

// metadataFromAny accepts decoded JSON metadata whose values may be strings
// or numbers.
func metadataFromAny(in map[string]any) Metadata {
	flat := make(map[string]string, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case string:
			flat[k] = val
		case float64:
			flat[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case nil:
		default:
			flat[k] = fmt.Sprint(val)
		}
	}
	return MetadataFromMap(flat)
}
