package models

import (
	"testing"
	"time"
)

func TestJobMaxAttempts(t *testing.T) {
	cases := []struct {
		jobType JobType
		want    int
	}{
		{JobTypeVatValidation, 3},
		{JobTypeDraftRecompute, 3},
		{JobTypeInvoiceIssued, 3},
		{JobType("unknown"), 3},
	}
	for _, tc := range cases {
		if got := JobMaxAttempts(tc.jobType); got != tc.want {
			t.Errorf("JobMaxAttempts(%s) = %d, want %d", tc.jobType, got, tc.want)
		}
	}
}

func TestJobRetryDelay(t *testing.T) {
	cases := []struct {
		jobType JobType
		attempt int
		want    time.Duration
	}{
		{JobTypeVatValidation, 1, 10 * time.Minute},
		{JobTypeVatValidation, 2, 30 * time.Minute},
		{JobTypeVatValidation, 3, 120 * time.Minute},
		// past the schedule, cap at the last entry
		{JobTypeVatValidation, 4, 120 * time.Minute},
		{JobTypeDraftRecompute, 1, 1 * time.Minute},
		{JobTypeDraftRecompute, 2, 5 * time.Minute},
		{JobTypeDraftRecompute, 3, 15 * time.Minute},
		{JobTypeInvoiceIssued, 1, 1 * time.Minute},
		// below 1 is treated as the first attempt
		{JobTypeVatValidation, 0, 10 * time.Minute},
	}
	for _, tc := range cases {
		if got := JobRetryDelay(tc.jobType, tc.attempt); got != tc.want {
			t.Errorf("JobRetryDelay(%s, %d) = %v, want %v", tc.jobType, tc.attempt, got, tc.want)
		}
	}
}
