package models

import "testing"

func TestStatusAdvanceNeverRegresses(t *testing.T) {
	tests := []struct {
		from, next, want Status
	}{
		{StatusSent, StatusDelivered, StatusDelivered},
		{StatusDelivered, StatusSeen, StatusSeen},
		{StatusSeen, StatusSent, StatusSeen},
		{StatusSeen, StatusDelivered, StatusSeen},
		{StatusDelivered, StatusSent, StatusDelivered},
	}
	for _, tt := range tests {
		if got := tt.from.Advance(tt.next); got != tt.want {
			t.Errorf("%s.Advance(%s) = %s, want %s", tt.from, tt.next, got, tt.want)
		}
	}
}

func TestParseStatusAndKind(t *testing.T) {
	if ParseStatus("SEEN") != StatusSeen {
		t.Error("expected SEEN to parse as seen")
	}
	if ParseStatus("Delivered") != StatusDelivered {
		t.Error("expected Delivered to parse as delivered")
	}
	if ParseStatus("") != StatusSent {
		t.Error("expected empty state to default to sent")
	}
	if ParseKind("IMAGE") != KindImage || ParseKind("file") != KindFile || ParseKind("TEXT") != KindText {
		t.Error("unexpected kind parsing")
	}
}

func TestSessionValid(t *testing.T) {
	var s *Session
	if s.Valid() {
		t.Error("nil session must not be valid")
	}
	if (&Session{UserID: "u1"}).Valid() {
		t.Error("session without token must not be valid")
	}
	if !(&Session{UserID: "u1", Token: "t"}).Valid() {
		t.Error("expected valid session")
	}
}
