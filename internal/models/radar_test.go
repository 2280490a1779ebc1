package models

import (
	"testing"
	"time"
)

func TestParsePrecipKind(t *testing.T) {
	tests := []struct {
		input   string
		want    PrecipKind
		wantErr bool
	}{
		{"rain", PrecipRain, false},
		{"snow", PrecipSnow, false},
		{"RAIN", PrecipRain, false},
		{"  Snow  ", PrecipSnow, false},
		{"hail", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		got, err := ParsePrecipKind(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParsePrecipKind(%q) expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePrecipKind(%q) error = %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePrecipKind(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDefaultPrecipKind(t *testing.T) {
	tests := []struct {
		month time.Month
		want  PrecipKind
	}{
		{time.January, PrecipSnow},
		{time.March, PrecipSnow},
		{time.April, PrecipRain},
		{time.July, PrecipRain},
		{time.October, PrecipRain},
		{time.November, PrecipSnow},
		{time.December, PrecipSnow},
	}

	for _, tt := range tests {
		if got := DefaultPrecipKind(tt.month); got != tt.want {
			t.Errorf("DefaultPrecipKind(%v) = %v, want %v", tt.month, got, tt.want)
		}
	}
}

func TestPrecipKindLayers(t *testing.T) {
	if got := PrecipRain.Layer(); got != "RADAR_1KM_RRAI" {
		t.Errorf("rain layer = %q", got)
	}
	if got := PrecipSnow.Layer(); got != "RADAR_1KM_RSNO" {
		t.Errorf("snow layer = %q", got)
	}
	if got := PrecipRain.LegendStyle(); got != "RADARURPPRECIPR" {
		t.Errorf("rain legend style = %q", got)
	}
	if got := PrecipSnow.LegendStyle(); got != "RADARURPPRECIPS14" {
		t.Errorf("snow legend style = %q", got)
	}
}

func TestPrecipKindTitle(t *testing.T) {
	if got := PrecipRain.Title(); got != "Rain" {
		t.Errorf("Title() = %q, want Rain", got)
	}
	if got := PrecipSnow.Title(); got != "Snow" {
		t.Errorf("Title() = %q, want Snow", got)
	}
}

func TestBoundingBoxString(t *testing.T) {
	b := BoundingBox{LatMin: 43.99217, LonMin: -82.03029, LatMax: 47.58863, LonMax: -77.11691}
	want := "43.99217,-82.03029,47.58863,-77.11691"
	if got := b.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestBoundingBoxStringWholeDegrees(t *testing.T) {
	b := BoundingBox{LatMin: 43, LonMin: -82, LatMax: 47, LonMax: -77}
	if got := b.String(); got != "43,-82,47,-77" {
		t.Errorf("String() = %q, want unpadded whole degrees", got)
	}
}
