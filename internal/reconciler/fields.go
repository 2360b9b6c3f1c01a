package reconciler

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"salesconsumer/internal/codec"
	"salesconsumer/internal/domain"
	"salesconsumer/internal/util"
)

var dateLayouts = []string{
	time.DateOnly,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	time.DateTime,
}

func invalidField(key string, v any, reason string) error {
	return fmt.Errorf("%w: %s=%v: %s", domain.ErrInvalidField, key, v, reason)
}

func stringField(rec codec.Record, key string) (*string, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case string:
		return &x, nil
	case float64:
		s := strconv.FormatFloat(x, 'f', -1, 64)
		return &s, nil
	default:
		return nil, invalidField(key, v, "expected string")
	}
}

func floatField(rec codec.Record, key string) (*float64, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch x := v.(type) {
	case float64:
		return &x, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil, invalidField(key, v, "expected number")
		}
		return &f, nil
	default:
		return nil, invalidField(key, v, "expected number")
	}
}

// dateField accepts a calendar date or a timestamp and keeps the date part.
func dateField(rec codec.Record, key string) (*time.Time, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, invalidField(key, v, "expected date string")
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d, nil
		}
	}
	return nil, invalidField(key, v, "expected YYYY-MM-DD date")
}

func boolField(rec codec.Record, key string, def bool) (bool, error) {
	v, ok := rec[key]
	if !ok || v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case bool:
		return x, nil
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(x)); err == nil {
			return b, nil
		}
	}
	return false, invalidField(key, v, "expected boolean")
}

// metadataField reads `metadata`, falling back to the legacy `meta_data` key.
func metadataField(rec codec.Record) (json.RawMessage, error) {
	for _, key := range []string{"metadata", "meta_data"} {
		v, ok := rec[key]
		if !ok || v == nil {
			continue
		}
		raw, err := codec.Marshal(v)
		if err != nil {
			return nil, invalidField(key, v, err.Error())
		}
		return raw, nil
	}
	return nil, nil
}

// eventID returns the producer-supplied event id, or a stable id derived from
// the payload when the producer omitted it.
func eventID(rec codec.Record, objectType domain.ObjectType) (string, error) {
	id, err := stringField(rec, "event_id")
	if err != nil {
		return "", err
	}
	if id != nil && strings.TrimSpace(*id) != "" {
		return strings.TrimSpace(*id), nil
	}
	canonical, err := rec.Canonical()
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize payload: %w", err)
	}
	return util.DeriveEventID(objectType.String(), canonical), nil
}

type fieldReader struct {
	rec codec.Record
	err error
}

func (r *fieldReader) str(key string) *string {
	if r.err != nil {
		return nil
	}
	v, err := stringField(r.rec, key)
	r.err = err
	return v
}

func (r *fieldReader) number(key string) *float64 {
	if r.err != nil {
		return nil
	}
	v, err := floatField(r.rec, key)
	r.err = err
	return v
}

func (r *fieldReader) date(key string) *time.Time {
	if r.err != nil {
		return nil
	}
	v, err := dateField(r.rec, key)
	r.err = err
	return v
}

func (r *fieldReader) flag(key string, def bool) bool {
	if r.err != nil {
		return def
	}
	v, err := boolField(r.rec, key, def)
	r.err = err
	return v
}

func (r *fieldReader) metadata() json.RawMessage {
	if r.err != nil {
		return nil
	}
	v, err := metadataField(r.rec)
	r.err = err
	return v
}

func (r *fieldReader) eventID(objectType domain.ObjectType) string {
	if r.err != nil {
		return ""
	}
	v, err := eventID(r.rec, objectType)
	r.err = err
	return v
}

// OpportunityFieldsFrom projects rec onto the Opportunity field set.
func OpportunityFieldsFrom(rec codec.Record) (domain.OpportunityFields, error) {
	r := &fieldReader{rec: rec}
	f := domain.OpportunityFields{
		EventID:           r.eventID(domain.ObjectTypeOpportunity),
		Name:              r.str("name"),
		Stage:             r.str("stage"),
		Amount:            r.number("amount"),
		Probability:       r.number("probability"),
		ExpectedCloseDate: r.date("expected_close_date"),
		AccountID:         r.str("account_id"),
		OwnerID:           r.str("owner_id"),
		Metadata:          r.metadata(),
	}
	return f, r.err
}

// ProjectFieldsFrom projects rec onto the Project field set. is_active
// defaults to true.
func ProjectFieldsFrom(rec codec.Record) (domain.ProjectFields, error) {
	r := &fieldReader{rec: rec}
	f := domain.ProjectFields{
		EventID:   r.eventID(domain.ObjectTypeProject),
		Name:      r.str("name"),
		Status:    r.str("status"),
		StartDate: r.date("start_date"),
		EndDate:   r.date("end_date"),
		Budget:    r.number("budget"),
		IsActive:  r.flag("is_active", true),
		ManagerID: r.str("manager_id"),
		ClientID:  r.str("client_id"),
		Metadata:  r.metadata(),
	}
	return f, r.err
}
