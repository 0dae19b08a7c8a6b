package model

import (
	"errors"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"", StatusTodo, false},
		{"todo", StatusTodo, false},
		{"in-progress", StatusInProgress, false},
		{"done", StatusDone, false},
		{"in_progress", "", true},
		{"Done", "", true},
	}
	for _, tt := range tests {
		got, err := ParseStatus(tt.in)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidStatus) {
				t.Errorf("ParseStatus(%q): expected ErrInvalidStatus, got %v", tt.in, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseStatus(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
		}
	}
}

func TestClampProgress(t *testing.T) {
	for in, want := range map[int]int{-10: 0, 0: 0, 55: 55, 100: 100, 101: 100} {
		if got := ClampProgress(in); got != want {
			t.Errorf("ClampProgress(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestDueDate(t *testing.T) {
	if got := (Task{}).DueDate(); got != "" {
		t.Errorf("Expected empty due date, got %q", got)
	}
	d := time.Date(2024, 6, 1, 23, 30, 0, 0, time.FixedZone("PDT", -7*3600))
	if got := (Task{Due: &d}).DueDate(); got != "2024-06-01" {
		t.Errorf("Expected the local date 2024-06-01, got %q", got)
	}
	utc := d.UTC()
	if got := (Task{Due: &utc}).DueDate(); got != "2024-06-02" {
		t.Errorf("Expected the UTC date 2024-06-02, got %q", got)
	}
}
