package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatlyid/whatsapp-assistant-be/internal/cache"
	"github.com/chatlyid/whatsapp-assistant-be/internal/store"
)

// Booking statuses.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusRejected  = "rejected"
	StatusCompleted = "completed"
)

// Same-day slots must start at least this far in the future.
const minLeadTime = 30 * time.Minute

// How far ahead GetNextAvailableDates scans.
const scanWindowDays = 14

// Booking is one confirmed-or-pending appointment row.
type Booking struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Phone       string `json:"phone"`
	Name        string `json:"name"`
	Reason      string `json:"reason"`
	Date        string `json:"date"`      // YYYY-MM-DD
	TimeSlot    string `json:"time_slot"` // HH:MM
	TokenNumber int    `json:"token_number"`
	Status      string `json:"status"`
	StaffNote   string `json:"staff_note,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	ConfirmedAt string `json:"confirmed_at,omitempty"`
}

// Availability is the result of a slot lookup. TotalSlots and BookedCount
// are kept for observability even though callers mostly use Slots.
type Availability struct {
	Available   bool     `json:"available"`
	Reason      string   `json:"reason,omitempty"`
	Date        string   `json:"date"`
	Slots       []string `json:"slots"`
	TotalSlots  int      `json:"total_slots"`
	BookedCount int      `json:"booked_count"`
}

// CreateRequest carries the fields collected by the booking dialogue.
type CreateRequest struct {
	Phone    string `json:"phone"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

// CreateResult is a typed outcome: conflicts are reported here, not as
// errors, so callers re-prompt instead of failing.
type CreateResult struct {
	Success     bool   `json:"success"`
	BookingID   string `json:"booking_id,omitempty"`
	TokenNumber int    `json:"token_number,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Engine derives available slots from the weekly schedule and arbitrates
// booking creation with the double-check pattern: a fresh availability
// recompute followed by a narrow conflict query immediately before insert.
// The residual race between that query and the insert is accepted; see the
// conflict handling in CreateBooking.
type Engine struct {
	docs  store.DocumentStore
	cache *cache.TTLCache
	now   func() time.Time

	// betweenChecks is a test seam invoked after the availability recompute
	// and before the narrow conflict query.
	betweenChecks func()
}

func NewEngine(docs store.DocumentStore, ttlCache *cache.TTLCache) *Engine {
	return &Engine{docs: docs, cache: ttlCache, now: time.Now}
}

func schedulePath(tenantID string) string {
	return fmt.Sprintf("tenant/%s/consultantSchedule", tenantID)
}

func bookingCollection(tenantID string) string {
	return fmt.Sprintf("tenant/%s/booking", tenantID)
}

// GetSettings returns the tenant's booking settings, nil when none are
// configured. Both outcomes are cached; a cached nil is a valid hit.
func (e *Engine) GetSettings(ctx context.Context, tenantID string) (*Settings, error) {
	if cached, ok := e.cache.Get(cache.NamespaceSettings, "booking:"+tenantID); ok {
		settings, _ := cached.(*Settings)
		return settings, nil
	}

	data, err := e.docs.Get(ctx, schedulePath(tenantID))
	if errors.Is(err, store.ErrNotFound) {
		e.cache.Set(cache.NamespaceSettings, "booking:"+tenantID, (*Settings)(nil))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read booking settings: %w", err)
	}

	settings, err := decodeSettings(data)
	if err != nil {
		return nil, err
	}
	e.cache.Set(cache.NamespaceSettings, "booking:"+tenantID, settings)
	return settings, nil
}

// SaveSettings validates, normalizes and persists the booking settings.
func (e *Engine) SaveSettings(ctx context.Context, tenantID string, settings *Settings) error {
	settings.Normalize()
	if err := settings.Validate(); err != nil {
		return err
	}

	data, err := encodeJSON(settings)
	if err != nil {
		return err
	}
	data["updatedAt"] = store.ServerTimestamp

	if err := e.docs.Set(ctx, schedulePath(tenantID), data, false); err != nil {
		return fmt.Errorf("write booking settings: %w", err)
	}
	e.cache.Invalidate("booking:" + tenantID)
	return nil
}

// GetAvailableSlots computes the open slots of one calendar date.
func (e *Engine) GetAvailableSlots(ctx context.Context, tenantID, date string) (*Availability, error) {
	avail := &Availability{Date: date}

	settings, err := e.GetSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.Enabled {
		avail.Reason = "booking is not enabled"
		return avail, nil
	}

	loc := settings.location()
	day, err := parseDate(date, loc)
	if err != nil {
		avail.Reason = err.Error()
		return avail, nil
	}

	now := e.now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if day.Before(today) {
		avail.Reason = "date is in the past"
		return avail, nil
	}

	weekday := strings.ToLower(day.Weekday().String())
	schedule, ok := settings.Days[weekday]
	if !ok || !schedule.Enabled {
		avail.Reason = fmt.Sprintf("%s is not a working day", weekday)
		return avail, nil
	}

	all := GenerateSlots(schedule, settings.SlotDuration)
	avail.TotalSlots = len(all)

	booked, err := e.bookedSlots(ctx, tenantID, date)
	if err != nil {
		return nil, err
	}

	sameDay := day.Equal(today)
	cutoffMinutes := now.Hour()*60 + now.Minute() + int(minLeadTime.Minutes())

	open := make([]string, 0, len(all))
	for _, slot := range all {
		if _, taken := booked[slot]; taken {
			avail.BookedCount++
			continue
		}
		if sameDay {
			minutes, err := parseHHMM(slot)
			if err != nil || minutes < cutoffMinutes {
				continue
			}
		}
		open = append(open, slot)
	}

	avail.Available = true
	avail.Slots = open
	return avail, nil
}

// CreateBooking re-validates availability against a fresh recompute, runs a
// narrow conflict query immediately before insert, and assigns the per-day
// token number. Best effort, not serializable: two writers can still race
// between the conflict query and the insert.
func (e *Engine) CreateBooking(ctx context.Context, tenantID string, req CreateRequest) (*CreateResult, error) {
	avail, err := e.GetAvailableSlots(ctx, tenantID, req.Date)
	if err != nil {
		return nil, err
	}
	if !avail.Available {
		return &CreateResult{Error: avail.Reason}, nil
	}
	if !containsSlot(avail.Slots, req.TimeSlot) {
		return &CreateResult{Error: fmt.Sprintf("slot %s is not available on %s", req.TimeSlot, req.Date)}, nil
	}

	if e.betweenChecks != nil {
		e.betweenChecks()
	}

	// Narrow existence check right before the insert to shrink the race
	// window left by the availability recompute above.
	conflicts, err := e.docs.Query(ctx, bookingCollection(tenantID), store.Query{
		Filters: []store.Filter{
			{Field: "date", Op: "==", Value: req.Date},
			{Field: "timeSlot", Op: "==", Value: req.TimeSlot},
			{Field: "status", Op: "in", Value: []string{StatusPending, StatusConfirmed}},
		},
		Limit: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("conflict check: %w", err)
	}
	if len(conflicts) > 0 {
		return &CreateResult{Error: "this slot was just booked, please pick another"}, nil
	}

	token, err := e.nextTokenNumber(ctx, tenantID, req.Date)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	err = e.docs.Set(ctx, bookingCollection(tenantID)+"/"+id, map[string]interface{}{
		"phone":       req.Phone,
		"name":        req.Name,
		"reason":      req.Reason,
		"date":        req.Date,
		"timeSlot":    req.TimeSlot,
		"tokenNumber": token,
		"status":      StatusPending,
		"createdAt":   store.ServerTimestamp,
	}, false)
	if err != nil {
		return nil, fmt.Errorf("write booking: %w", err)
	}

	log.Info().Str("tenant_id", tenantID).Str("date", req.Date).Str("slot", req.TimeSlot).
		Int("token", token).Msg("booking created")
	return &CreateResult{Success: true, BookingID: id, TokenNumber: token}, nil
}

// UpdateBookingStatus writes the new status and returns the updated booking
// so the caller can notify the customer.
func (e *Engine) UpdateBookingStatus(ctx context.Context, tenantID, bookingID, status, note string) (*Booking, error) {
	switch status {
	case StatusPending, StatusConfirmed, StatusRejected, StatusCompleted:
	default:
		return nil, fmt.Errorf("invalid booking status %q", status)
	}

	path := bookingCollection(tenantID) + "/" + bookingID
	if _, err := e.docs.Get(ctx, path); err != nil {
		return nil, fmt.Errorf("load booking %s: %w", bookingID, err)
	}

	update := map[string]interface{}{
		"status":    status,
		"updatedAt": store.ServerTimestamp,
	}
	if status == StatusConfirmed {
		update["confirmedAt"] = store.ServerTimestamp
	}
	if note != "" {
		update["staffNote"] = note
	}
	if err := e.docs.Set(ctx, path, update, true); err != nil {
		return nil, fmt.Errorf("update booking %s: %w", bookingID, err)
	}

	data, err := e.docs.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("reload booking %s: %w", bookingID, err)
	}
	return decodeBooking(bookingID, tenantID, data), nil
}

// ListBookings returns a tenant's bookings, optionally filtered by date
// and/or status.
func (e *Engine) ListBookings(ctx context.Context, tenantID, date, status string) ([]Booking, error) {
	var filters []store.Filter
	if date != "" {
		filters = append(filters, store.Filter{Field: "date", Op: "==", Value: date})
	}
	if status != "" {
		filters = append(filters, store.Filter{Field: "status", Op: "==", Value: status})
	}

	docs, err := e.docs.Query(ctx, bookingCollection(tenantID), store.Query{
		Filters: filters,
		OrderBy: store.FieldCreatedAt,
		Desc:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}

	bookings := make([]Booking, 0, len(docs))
	for _, doc := range docs {
		bookings = append(bookings, *decodeBooking(doc.ID, tenantID, doc.Data))
	}
	return bookings, nil
}

// GetBooking loads one booking row.
func (e *Engine) GetBooking(ctx context.Context, tenantID, bookingID string) (*Booking, error) {
	data, err := e.docs.Get(ctx, bookingCollection(tenantID)+"/"+bookingID)
	if err != nil {
		return nil, fmt.Errorf("load booking %s: %w", bookingID, err)
	}
	return decodeBooking(bookingID, tenantID, data), nil
}

// GetNextAvailableDates scans forward day by day (bounded to scanWindowDays)
// collecting dates with at least one open slot. Empty when booking is
// disabled.
func (e *Engine) GetNextAvailableDates(ctx context.Context, tenantID string, count int) ([]string, error) {
	settings, err := e.GetSettings(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if settings == nil || !settings.Enabled || count <= 0 {
		return nil, nil
	}

	loc := settings.location()
	today := e.now().In(loc)

	var dates []string
	for i := 0; i < scanWindowDays && len(dates) < count; i++ {
		date := today.AddDate(0, 0, i).Format("2006-01-02")
		avail, err := e.GetAvailableSlots(ctx, tenantID, date)
		if err != nil {
			return nil, err
		}
		if avail.Available && len(avail.Slots) > 0 {
			dates = append(dates, date)
		}
	}
	return dates, nil
}

func (e *Engine) bookedSlots(ctx context.Context, tenantID, date string) (map[string]struct{}, error) {
	docs, err := e.docs.Query(ctx, bookingCollection(tenantID), store.Query{
		Filters: []store.Filter{
			{Field: "date", Op: "==", Value: date},
			{Field: "status", Op: "in", Value: []string{StatusPending, StatusConfirmed}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("list booked slots: %w", err)
	}

	booked := make(map[string]struct{}, len(docs))
	for _, doc := range docs {
		if slot, ok := doc.Data["timeSlot"].(string); ok {
			booked[slot] = struct{}{}
		}
	}
	return booked, nil
}

// nextTokenNumber is the count of all bookings on that date plus one.
// Per-day sequence shown to customers; not reused on deletion.
func (e *Engine) nextTokenNumber(ctx context.Context, tenantID, date string) (int, error) {
	docs, err := e.docs.Query(ctx, bookingCollection(tenantID), store.Query{
		Filters: []store.Filter{{Field: "date", Op: "==", Value: date}},
	})
	if err != nil {
		return 0, fmt.Errorf("count bookings: %w", err)
	}
	return len(docs) + 1, nil
}

func (s *Settings) location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseDate builds the calendar date from its components in the tenant's
// timezone. Parsing through a timezone-sensitive layout would shift the day
// at UTC offsets.
func parseDate(date string, loc *time.Location) (time.Time, error) {
	parts := strings.Split(date, "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	year, err1 := atoi(parts[0])
	month, err2 := atoi(parts[1])
	dayNum, err3 := atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || month < 1 || month > 12 || dayNum < 1 || dayNum > 31 {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
	}
	return time.Date(year, time.Month(month), dayNum, 0, 0, 0, 0, loc), nil
}

func atoi(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func containsSlot(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}

func encodeJSON(v interface{}) (map[string]interface{}, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	data := make(map[string]interface{})
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return data, nil
}

func decodeSettings(data map[string]interface{}) (*Settings, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal(raw, &settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	settings.Normalize()
	return &settings, nil
}

func decodeBooking(id, tenantID string, data map[string]interface{}) *Booking {
	b := &Booking{
		ID:       id,
		TenantID: tenantID,
		Phone:    stringValue(data, "phone"),
		Name:     stringValue(data, "name"),
		Reason:   stringValue(data, "reason"),
		Date:     stringValue(data, "date"),
		TimeSlot: stringValue(data, "timeSlot"),
		Status:   stringValue(data, "status"),
		StaffNote: stringValue(data, "staffNote"),
	}
	switch v := data["tokenNumber"].(type) {
	case float64:
		b.TokenNumber = int(v)
	case int:
		b.TokenNumber = v
	case int64:
		b.TokenNumber = int(v)
	}
	b.CreatedAt = timestampString(data["createdAt"])
	b.ConfirmedAt = timestampString(data["confirmedAt"])
	return b
}

func timestampString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return ""
	}
}

func stringValue(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
