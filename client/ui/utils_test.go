package ui

import (
	"strings"
	"testing"
	"time"

	"chatsync/models"
)

func TestFormatLastSeen(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		seen time.Time
		want string
	}{
		{time.Time{}, ""},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-time.Minute), "1 min ago"},
		{now.Add(-25 * time.Minute), "25 min ago"},
		{now.Add(-3 * time.Hour), "3 hours ago"},
		{now.Add(-26 * time.Hour), "1 day ago"},
		{now.Add(-60 * 24 * time.Hour), "Jan 10, 2024"},
	}
	for _, tt := range tests {
		if got := formatLastSeen(tt.seen, now); got != tt.want {
			t.Errorf("formatLastSeen(%v) = %q, want %q", tt.seen, got, tt.want)
		}
	}
}

func TestStatusIcon(t *testing.T) {
	local := models.Message{Local: true, Status: models.StatusSent}
	if got := statusIcon(local); got != "[gray]○[-]" {
		t.Errorf("local icon = %q", got)
	}
	if got := statusIcon(models.Message{Status: models.StatusSeen}); !strings.Contains(got, "green") {
		t.Errorf("seen icon = %q", got)
	}
}

func TestMessageText(t *testing.T) {
	img := models.Message{Kind: models.KindImage, Body: "cat.png", MediaURL: "/media/abc.png"}
	got := messageText(img, "http://localhost:8080/")
	if !strings.Contains(got, "http://localhost:8080/media/abc.png") {
		t.Errorf("media link not absolute: %q", got)
	}
	if got := messageText(models.Message{Body: "[red]x"}, ""); got == "[red]x" {
		t.Error("color tags not escaped")
	}
}

func TestFormatFileSize(t *testing.T) {
	if got := formatFileSize(512); got != "512 B" {
		t.Errorf("got %q", got)
	}
	if got := formatFileSize(3 * 1024 * 1024); got != "3.0 MB" {
		t.Errorf("got %q", got)
	}
}
