package catalog

import (
	"errors"
	"testing"
)

func TestCategory_Valid(t *testing.T) {
	for _, c := range []Category{CategoryNone, CategorySecond, CategoryFirst, CategoryHighest} {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	for _, c := range []Category{"", "top", "FIRST"} {
		if c.Valid() {
			t.Errorf("%q should be invalid", c)
		}
	}
}

func TestSlotsForDuration(t *testing.T) {
	tests := []struct {
		minutes int
		want    int
		wantErr bool
	}{
		{30, 1, false},
		{60, 2, false},
		{360, 12, false},
		{0, 0, true},
		{20, 0, true},
		{390, 0, true},
	}
	for _, tt := range tests {
		got, err := SlotsForDuration(tt.minutes)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("%d: expected ErrInvalid, got %v", tt.minutes, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("%d: got (%d, %v), want %d", tt.minutes, got, err, tt.want)
		}
	}
}
