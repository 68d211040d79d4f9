package duration

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"eve_bot/internal/model"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    time.Duration
		wantErr bool
	}{
		{name: "minutes", input: "10m", want: 600 * time.Second},
		{name: "combined", input: "1h30m", want: 5400 * time.Second},
		{name: "days", input: "2d", want: 172800 * time.Second},
		{name: "seconds synonym", input: "45 sec", want: 45 * time.Second},
		{name: "uppercase", input: "2H", want: 2 * time.Hour},
		{name: "weeks", input: "1w", want: 7 * 24 * time.Hour},
		{name: "months approximate", input: "1mo", want: 30 * 24 * time.Hour},
		{name: "years approximate", input: "1y", want: 365 * 24 * time.Hour},
		{name: "spaced pairs", input: "1 hour 15 minutes", want: 75 * time.Minute},
		{name: "words only", input: "abc", wantErr: true},
		{name: "empty", input: "", wantErr: true},
		{name: "unknown unit", input: "10parsecs", wantErr: true},
		{name: "zero total", input: "0m", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q, got %v", tt.input, got)
				}
				if !errors.Is(err, model.ErrInvalidDuration) {
					t.Errorf("error %v is not ErrInvalidDuration", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("duration mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "10m", want: "10 Minutes"},
		{input: "1h30m", want: "1 Hour 30 Minutes"},
		{input: "1h 1m", want: "1 Hour 1 Minute"},
		{input: "2 days", want: "2 Days"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Describe(tt.input)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("description mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDescribeInvalid(t *testing.T) {
	if _, err := Describe("soon"); !errors.Is(err, model.ErrInvalidDuration) {
		t.Errorf("expected ErrInvalidDuration, got %v", err)
	}
}
