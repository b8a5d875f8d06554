package preview_test

import (
	"strings"
	"testing"

	"github.com/bdobrica/Torii/internal/torii/ops"
	"github.com/bdobrica/Torii/internal/torii/preview"
)

func TestBuildCreateFillsDefaults(t *testing.T) {
	desired := ops.Fields{
		"project": "PROJ",
		"summary": "Fix login bug",
	}
	p := preview.Build(ops.KindCreate, desired, nil)

	want := map[string]string{
		"project":    "PROJ",
		"summary":    "Fix login bug",
		"issue_type": "Task",
		"assignee":   "Unassigned",
		"priority":   "Medium",
	}
	if len(p) != len(want) {
		t.Fatalf("preview has %d changes, want %d: %+v", len(p), len(want), p)
	}
	for field, to := range want {
		c, ok := p.Get(field)
		if !ok {
			t.Fatalf("missing field %q", field)
		}
		if c.To != to {
			t.Errorf("%s: to = %q, want %q", field, c.To, to)
		}
		if c.From != "" {
			t.Errorf("%s: from = %q, want empty for create", field, c.From)
		}
	}
}

func TestBuildCreateRespectsExplicitValues(t *testing.T) {
	desired := ops.Fields{
		"project":    "PROJ",
		"summary":    "Crash on logout",
		"issue_type": "Bug",
		"priority":   "High",
	}
	p := preview.Build(ops.KindCreate, desired, nil)

	if c, _ := p.Get("issue_type"); c.To != "Bug" {
		t.Errorf("issue_type = %q, want Bug", c.To)
	}
	if c, _ := p.Get("priority"); c.To != "High" {
		t.Errorf("priority = %q, want High", c.To)
	}
	if c, _ := p.Get("assignee"); c.To != "Unassigned" {
		t.Errorf("assignee = %q, want default Unassigned", c.To)
	}
}

func TestBuildCreateCanonicalOrder(t *testing.T) {
	desired := ops.Fields{
		"summary":  "A",
		"project":  "PROJ",
		"labels":   "auth",
		"priority": "Low",
	}
	p := preview.Build(ops.KindCreate, desired, nil)

	var got []string
	for _, c := range p {
		got = append(got, c.Field)
	}
	want := []string{"project", "summary", "issue_type", "assignee", "priority", "labels"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("field order = %v, want %v", got, want)
	}
}

func TestBuildUpdateOmitsUnchangedFields(t *testing.T) {
	desired := ops.Fields{
		"key":      "PROJ-7",
		"status":   "Done",
		"assignee": "carol",
	}
	current := ops.Fields{
		"status":   "In Progress",
		"assignee": "carol",
	}
	p := preview.Build(ops.KindTransition, desired, current)

	if _, ok := p.Get("key"); ok {
		t.Error("target field key must not appear in preview")
	}
	if _, ok := p.Get("assignee"); ok {
		t.Error("unchanged assignee must be omitted")
	}
	c, ok := p.Get("status")
	if !ok {
		t.Fatal("missing status change")
	}
	if c.From != "In Progress" || c.To != "Done" {
		t.Fatalf("status change = %+v", c)
	}
}

func TestBuildUpdateAlwaysShowsMandatoryFields(t *testing.T) {
	desired := ops.Fields{
		"key":      "PROJ-7",
		"summary":  "Same summary",
		"priority": "High",
	}
	current := ops.Fields{
		"summary":  "Same summary",
		"priority": "Medium",
	}
	p := preview.Build(ops.KindUpdate, desired, current)

	if _, ok := p.Get("summary"); !ok {
		t.Error("mandatory summary must be shown even when unchanged")
	}
	if c, _ := p.Get("priority"); c.From != "Medium" || c.To != "High" {
		t.Errorf("priority change = %+v", c)
	}
}

func TestApplyRoundTrip(t *testing.T) {
	desired := ops.Fields{
		"key":      "PROJ-7",
		"status":   "Done",
		"priority": "High",
	}
	current := ops.Fields{
		"summary":  "Fix login bug",
		"status":   "In Progress",
		"priority": "Medium",
	}
	p := preview.Build(ops.KindUpdate, desired, current)

	applied := preview.Apply(p, current)
	for _, c := range p {
		if applied[c.Field] != c.To {
			t.Errorf("%s: applied = %q, want %q", c.Field, applied[c.Field], c.To)
		}
	}
	// Fields outside the preview are untouched.
	if applied["summary"] != "Fix login bug" {
		t.Errorf("summary = %q, want unchanged", applied["summary"])
	}
	// Apply must not mutate its input.
	if current["status"] != "In Progress" {
		t.Error("Apply mutated the current field map")
	}
}

func TestRenderBanner(t *testing.T) {
	p := preview.Preview{
		{Field: "project", To: "PROJ"},
		{Field: "summary", To: "Fix login bug"},
		{Field: "status", From: "In Progress", To: "Done"},
	}
	out := preview.Render("req-1", ops.KindTransition, "PROJ-7", p)

	for _, want := range []string{
		"APPROVAL REQUIRED — TRANSITION",
		"Request ID: req-1",
		"Ticket:     PROJ-7",
		`status: "In Progress" → "Done"`,
		"approve req-1",
		"reject req-1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
}

func TestRenderMultilineDiff(t *testing.T) {
	p := preview.Preview{
		{
			Field: "description",
			From:  "line one\nline two\nline three\n",
			To:    "line one\nline 2\nline three\n",
		},
	}
	out := preview.Render("req-2", ops.KindUpdate, "PROJ-7", p)

	for _, want := range []string{"--- current", "+++ proposed", "-line two", "+line 2"} {
		if !strings.Contains(out, want) {
			t.Errorf("diff missing %q:\n%s", want, out)
		}
	}
}
