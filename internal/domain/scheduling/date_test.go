package scheduling

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-03-14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Equal(NewDate(2025, time.March, 14)) {
		t.Errorf("got %s", d)
	}
	if _, err := ParseDate("14.03.2025"); err == nil {
		t.Error("expected error for non-ISO date")
	}
}

func TestDateOf_UsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	// 22:00 UTC on the 1st is already the 2nd in UTC+5
	instant := time.Date(2025, time.May, 1, 22, 0, 0, 0, time.UTC)
	if got := DateOf(instant.In(loc)); got.String() != "2025-05-02" {
		t.Errorf("expected 2025-05-02, got %s", got)
	}
}

func TestDate_Ordering(t *testing.T) {
	d := NewDate(2025, time.January, 31)
	next := d.AddDays(1)
	if next.String() != "2025-02-01" {
		t.Errorf("AddDays crossed month wrong: %s", next)
	}
	if !d.Before(next) || !next.After(d) || d.Equal(next) {
		t.Error("ordering broken")
	}
}

func TestDate_JSON(t *testing.T) {
	type payload struct {
		Date Date `json:"date"`
	}
	b, err := json.Marshal(payload{Date: NewDate(2025, time.June, 9)})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"date":"2025-06-09"}` {
		t.Errorf("unexpected json %s", b)
	}

	var p payload
	if err := json.Unmarshal([]byte(`{"date":"2025-12-31"}`), &p); err != nil {
		t.Fatal(err)
	}
	if p.Date.String() != "2025-12-31" {
		t.Errorf("got %s", p.Date)
	}

	p = payload{}
	if err := json.Unmarshal([]byte(`{"date":null}`), &p); err != nil || !p.Date.IsZero() {
		t.Errorf("null should decode to zero date, got %s, %v", p.Date, err)
	}
	if err := json.Unmarshal([]byte(`{"date":"31/12/2025"}`), &p); err == nil {
		t.Error("expected error for bad date")
	}

	b, _ = json.Marshal(payload{})
	if string(b) != `{"date":null}` {
		t.Errorf("zero date should encode as null, got %s", b)
	}
}

func TestDate_PG(t *testing.T) {
	d := NewDate(2025, time.July, 4)
	v, err := d.DateValue()
	if err != nil || !v.Valid {
		t.Fatalf("DateValue = %+v, %v", v, err)
	}
	var back Date
	if err := back.ScanDate(v); err != nil {
		t.Fatal(err)
	}
	if !back.Equal(d) {
		t.Errorf("round trip mismatch: %s", back)
	}

	zero, _ := Date{}.DateValue()
	if zero.Valid {
		t.Error("zero date should be NULL")
	}
}
