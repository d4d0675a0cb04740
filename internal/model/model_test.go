package model

import (
	"encoding/json"
	"testing"
)

func TestEncodeDecode_PreservesMetaAndFields(t *testing.T) {
	in := Booking{
		Meta:        Meta{ID: "bk-1", CreatedAt: 1_700_000_000_123, UpdatedAt: 1_700_000_000_456},
		OwnerID:     "owner-1",
		UnitID:      "run-1",
		StartDate:   1_760_000_000_000,
		EndDate:     1_760_172_800_000,
		Status:      StatusPending,
		AmountCents: 12_000,
	}

	doc, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if doc.ID != "bk-1" || doc.CreatedAt != in.CreatedAt || doc.UpdatedAt != in.UpdatedAt {
		t.Errorf("meta not carried into document: %+v", doc)
	}
	if _, ok := doc.Fields["id"]; ok {
		t.Error("id must not be stored in Fields")
	}
	if got := doc.Fields["startDate"]; got != json.Number("1760000000000") {
		t.Errorf("startDate = %#v, want exact json.Number", got)
	}

	out, err := Decode[Booking](doc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out != in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestDocumentMerge_IgnoresMetaKeys(t *testing.T) {
	doc := Document{ID: "pet-1", Fields: map[string]any{"name": "Rex"}, CreatedAt: 10, UpdatedAt: 10}

	merged := doc.Merge(map[string]any{"name": "Max", "id": "other", "createdAt": 99, "notes": "shy"})

	if merged.ID != "pet-1" || merged.CreatedAt != 10 {
		t.Errorf("meta changed by merge: %+v", merged)
	}
	if merged.Fields["name"] != "Max" || merged.Fields["notes"] != "shy" {
		t.Errorf("fields not merged: %v", merged.Fields)
	}
	if doc.Fields["name"] != "Rex" {
		t.Error("Merge mutated the original document")
	}
}

func TestDocumentField_ResolvesMeta(t *testing.T) {
	doc := Document{ID: "x", Fields: map[string]any{"petId": "pet-1"}, CreatedAt: 5, UpdatedAt: 6}

	if v, _ := doc.Field(FieldCreatedAt); v != int64(5) {
		t.Errorf("createdAt = %v, want 5", v)
	}
	if v, ok := doc.Field("petId"); !ok || v != "pet-1" {
		t.Errorf("petId = %v (ok=%v)", v, ok)
	}
	if _, ok := doc.Field("missing"); ok {
		t.Error("missing field reported present")
	}
}

func TestBookingStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		want     bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusConfirmed, StatusCheckedIn, true},
		{StatusCheckedIn, StatusCheckedOut, true},
		{StatusPending, StatusCheckedIn, false},
		{StatusConfirmed, StatusPending, false},
		{StatusPending, StatusCancelled, true},
		{StatusCheckedIn, StatusCancelled, true},
		{StatusCheckedOut, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{"bogus", StatusConfirmed, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.want {
			t.Errorf("%s → %s = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestBookingStatus_Occupies(t *testing.T) {
	for _, s := range []BookingStatus{StatusPending, StatusConfirmed, StatusCheckedIn} {
		if !s.Occupies() {
			t.Errorf("%s should occupy a slot", s)
		}
	}
	for _, s := range []BookingStatus{StatusCheckedOut, StatusCancelled} {
		if s.Occupies() {
			t.Errorf("%s should release its slot", s)
		}
	}
}

func TestDateRange_Validate(t *testing.T) {
	if err := (DateRange{Start: 1000, End: 2000}).Validate(); err != nil {
		t.Errorf("valid range rejected: %v", err)
	}
	if err := (DateRange{Start: 2000, End: 2000}).Validate(); err == nil {
		t.Error("empty range accepted")
	}
	if err := (DateRange{End: 2000}).Validate(); err == nil {
		t.Error("range without start accepted")
	}
}
