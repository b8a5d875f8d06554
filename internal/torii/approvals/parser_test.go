package approvals_test

import (
	"errors"
	"testing"

	"github.com/bdobrica/Torii/internal/torii/approvals"
)

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		text string
		want approvals.Decision
	}{
		{
			name: "bare approve",
			text: "approve",
			want: approvals.Decision{Approve: true},
		},
		{
			name: "approve with id",
			text: "approve 123e4567-e89b-12d3-a456-426614174000",
			want: approvals.Decision{Approve: true, RequestID: "123e4567-e89b-12d3-a456-426614174000"},
		},
		{
			name: "uppercase verb",
			text: "APPROVE abc",
			want: approvals.Decision{Approve: true, RequestID: "abc"},
		},
		{
			name: "reject with id",
			text: "reject abc",
			want: approvals.Decision{Approve: false, RequestID: "abc"},
		},
		{
			name: "deny alias",
			text: "deny abc",
			want: approvals.Decision{Approve: false, RequestID: "abc"},
		},
		{
			name: "reject with plain reason",
			text: "reject abc wrong ticket",
			want: approvals.Decision{Approve: false, RequestID: "abc", Reason: "wrong ticket"},
		},
		{
			name: "reject with quoted reason",
			text: `reject abc reason="wrong ticket"`,
			want: approvals.Decision{Approve: false, RequestID: "abc", Reason: "wrong ticket"},
		},
		{
			name: "surrounding whitespace",
			text: "  approve abc  ",
			want: approvals.Decision{Approve: true, RequestID: "abc"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := approvals.ParseDecision(tt.text)
			if err != nil {
				t.Fatalf("ParseDecision(%q): %v", tt.text, err)
			}
			if *got != tt.want {
				t.Fatalf("ParseDecision(%q) = %+v, want %+v", tt.text, *got, tt.want)
			}
		})
	}
}

func TestParseDecisionNotADecision(t *testing.T) {
	for _, text := range []string{
		"",
		"   ",
		"create ticket in PROJ: fix it",
		"approved the budget yesterday",
		"show me my tickets",
	} {
		if _, err := approvals.ParseDecision(text); !errors.Is(err, approvals.ErrNotADecision) {
			t.Errorf("ParseDecision(%q) err = %v, want ErrNotADecision", text, err)
		}
	}
}
