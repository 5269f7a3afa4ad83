package hipaa

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func defaultPolicy(t *testing.T, recordType string) RetentionPolicy {
	t.Helper()
	for _, p := range DefaultRetentionPolicies() {
		if p.RecordType == recordType {
			return p
		}
	}
	t.Fatalf("no default policy for %s", recordType)
	return RetentionPolicy{}
}

func TestDefaultSchedule(t *testing.T) {
	if got := len(DefaultRetentionPolicies()); got != 4 {
		t.Fatalf("default schedule has %d policies, want 4", got)
	}

	t.Run("AuditTrailKeepsSixYears", func(t *testing.T) {
		if p := defaultPolicy(t, "decision_audit"); p.RetentionDays < days6Years {
			t.Errorf("decision_audit retains %d days, want >= %d", p.RetentionDays, days6Years)
		}
	})

	t.Run("EmergencyChecksKeepTenYears", func(t *testing.T) {
		if p := defaultPolicy(t, "emergency_check"); p.RetentionDays < days10Years {
			t.Errorf("emergency_check retains %d days, want >= %d", p.RetentionDays, days10Years)
		}
	})

	t.Run("CheckRecordsNeverPurged", func(t *testing.T) {
		for _, rt := range []string{"conflict_check", "emergency_check"} {
			if p := defaultPolicy(t, rt); p.PurgeAfter != 0 {
				t.Errorf("%s purges after %d days, want never", rt, p.PurgeAfter)
			}
		}
	})

	t.Run("EveryPolicyDescribed", func(t *testing.T) {
		for _, p := range DefaultRetentionPolicies() {
			if p.Description == "" {
				t.Errorf("policy %s has no description", p.RecordType)
			}
		}
	})
}

func TestRetentionServicePolicyLookup(t *testing.T) {
	svc := NewRetentionService(DefaultRetentionPolicies(), zerolog.Nop())

	if p := svc.GetPolicy("decision_audit"); p == nil || p.RecordType != "decision_audit" {
		t.Fatalf("GetPolicy(decision_audit) = %+v", p)
	}
	if p := svc.GetPolicy("visit_note"); p != nil {
		t.Errorf("GetPolicy(visit_note) = %+v, want nil", p)
	}

	want := []string{"clinical_alert", "conflict_check", "decision_audit", "emergency_check"}
	all := svc.GetAllPolicies()
	if len(all) != len(want) {
		t.Fatalf("GetAllPolicies returned %d policies, want %d", len(all), len(want))
	}
	for i, rt := range want {
		if all[i].RecordType != rt {
			t.Errorf("policies[%d] = %q, want %q", i, all[i].RecordType, rt)
		}
	}
}

func TestClassifyLifecycle(t *testing.T) {
	policy := RetentionPolicy{
		RecordType:    "decision_audit",
		RetentionDays: days6Years,
		ArchiveAfter:  days3Years,
		PurgeAfter:    days7Years,
	}
	created := time.Date(2020, 1, 15, 9, 30, 0, 0, time.UTC)
	archiveAt := created.AddDate(0, 0, days3Years)
	purgeAt := created.AddDate(0, 0, days7Years)

	cases := map[string]struct {
		now        time.Time
		wantState  string
		wantExpiry time.Time
	}{
		"FreshRecord":        {created.Add(time.Hour), RetentionStateActive, archiveAt},
		"JustBeforeArchive":  {archiveAt.Add(-time.Second), RetentionStateActive, archiveAt},
		"AtArchiveThreshold": {archiveAt, RetentionStateArchiveEligible, purgeAt},
		"BetweenThresholds":  {archiveAt.AddDate(0, 6, 0), RetentionStateArchiveEligible, purgeAt},
		"AtPurgeThreshold":   {purgeAt, RetentionStatePurgeEligible, purgeAt},
		"LongPastPurge":      {purgeAt.AddDate(5, 0, 0), RetentionStatePurgeEligible, purgeAt},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got := classify(policy, created, tc.now)
			if got.State != tc.wantState {
				t.Errorf("state = %q, want %q", got.State, tc.wantState)
			}
			if !got.ExpiresAt.Equal(tc.wantExpiry) {
				t.Errorf("expiry = %v, want %v", got.ExpiresAt, tc.wantExpiry)
			}
			if got.PolicyName != "decision_audit" {
				t.Errorf("policy name = %q, want decision_audit", got.PolicyName)
			}
		})
	}
}

func TestClassifyNeverPurgedType(t *testing.T) {
	policy := RetentionPolicy{RecordType: "conflict_check", RetentionDays: days6Years, ArchiveAfter: days5Years}
	created := time.Date(2010, 6, 1, 0, 0, 0, 0, time.UTC)

	// Thirty years on, a never-purged type still only archives, and its
	// expiry is the retention end rather than a purge date.
	got := classify(policy, created, created.AddDate(30, 0, 0))
	if got.State != RetentionStateArchiveEligible {
		t.Errorf("state = %q, want %q", got.State, RetentionStateArchiveEligible)
	}
	if want := created.AddDate(0, 0, days6Years); !got.ExpiresAt.Equal(want) {
		t.Errorf("expiry = %v, want retention end %v", got.ExpiresAt, want)
	}
}

func TestClassifyArchiveDisabled(t *testing.T) {
	policy := RetentionPolicy{RecordType: "scratch", RetentionDays: 90, PurgeAfter: 90}
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	active := classify(policy, created, created.AddDate(0, 0, 89))
	if active.State != RetentionStateActive {
		t.Errorf("day 89 state = %q, want %q", active.State, RetentionStateActive)
	}
	if want := created.AddDate(0, 0, 90); !active.ExpiresAt.Equal(want) {
		t.Errorf("day 89 expiry = %v, want %v", active.ExpiresAt, want)
	}

	purgeable := classify(policy, created, created.AddDate(0, 0, 90))
	if purgeable.State != RetentionStatePurgeEligible {
		t.Errorf("day 90 state = %q, want %q", purgeable.State, RetentionStatePurgeEligible)
	}
}

func TestRetentionServiceCheckRetention(t *testing.T) {
	svc := NewRetentionService(DefaultRetentionPolicies(), zerolog.Nop())

	t.Run("RecentDecisionActive", func(t *testing.T) {
		status := svc.CheckRetention("decision_audit", time.Now().UTC().AddDate(0, 0, -30))
		if status.State != RetentionStateActive {
			t.Errorf("state = %q, want %q", status.State, RetentionStateActive)
		}
	})

	t.Run("AncientDecisionPurgeable", func(t *testing.T) {
		status := svc.CheckRetention("decision_audit", time.Now().UTC().AddDate(0, 0, -2600))
		if status.State != RetentionStatePurgeEligible {
			t.Errorf("state = %q, want %q", status.State, RetentionStatePurgeEligible)
		}
	})

	t.Run("UnknownTypeStaysActive", func(t *testing.T) {
		status := svc.CheckRetention("visit_note", time.Now().UTC().AddDate(-20, 0, 0))
		if status.State != RetentionStateActive {
			t.Errorf("state = %q, want %q", status.State, RetentionStateActive)
		}
		if status.PolicyName != "unknown" {
			t.Errorf("policy name = %q, want unknown", status.PolicyName)
		}
		if !status.ExpiresAt.IsZero() {
			t.Errorf("expiry = %v, want zero", status.ExpiresAt)
		}
	})

	t.Run("CustomScheduleReplacesDefaults", func(t *testing.T) {
		custom := NewRetentionService([]RetentionPolicy{
			{RecordType: "scratch_data", RetentionDays: 30, PurgeAfter: 30, Description: "scratch"},
		}, zerolog.Nop())

		status := custom.CheckRetention("scratch_data", time.Now().UTC().AddDate(0, 0, -45))
		if status.State != RetentionStatePurgeEligible {
			t.Errorf("state = %q, want %q", status.State, RetentionStatePurgeEligible)
		}
		if custom.GetPolicy("decision_audit") != nil {
			t.Error("defaults present despite a custom schedule")
		}
	})
}

// --- RetentionHandler tests ---

type fakeRecordCounter struct {
	counts map[string]RetentionCounts
	err    error
}

func (f *fakeRecordCounter) CountByState(_ context.Context, policy RetentionPolicy) (RetentionCounts, error) {
	if f.err != nil {
		return RetentionCounts{}, f.err
	}
	return f.counts[policy.RecordType], nil
}

func newRetentionFixture(counter RecordCounter) (*RetentionHandler, *echo.Echo) {
	svc := NewRetentionService(DefaultRetentionPolicies(), zerolog.Nop())
	return NewRetentionHandler(svc, counter), echo.New()
}

func TestRetentionHandler_ListPolicies(t *testing.T) {
	h, e := newRetentionFixture(&fakeRecordCounter{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/retention/policies", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandlePolicies(c); err != nil {
		t.Fatalf("HandlePolicies returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body RetentionPolicyList
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Total != 4 || len(body.Policies) != 4 {
		t.Errorf("expected 4 policies, got total=%d len=%d", body.Total, len(body.Policies))
	}
}

func TestRetentionHandler_GetPolicy_Found(t *testing.T) {
	h, e := newRetentionFixture(&fakeRecordCounter{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/audit/retention/policies/:recordType")
	c.SetParamNames("recordType")
	c.SetParamValues("decision_audit")

	if err := h.HandleGetPolicy(c); err != nil {
		t.Fatalf("HandleGetPolicy returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var policy RetentionPolicy
	if err := json.Unmarshal(rec.Body.Bytes(), &policy); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if policy.RecordType != "decision_audit" {
		t.Errorf("expected record type decision_audit, got %q", policy.RecordType)
	}
}

func TestRetentionHandler_GetPolicy_NotFound(t *testing.T) {
	h, e := newRetentionFixture(&fakeRecordCounter{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/api/v1/audit/retention/policies/:recordType")
	c.SetParamNames("recordType")
	c.SetParamValues("visit_note")

	if err := h.HandleGetPolicy(c); err != nil {
		t.Fatalf("HandleGetPolicy returned error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestRetentionHandler_Status(t *testing.T) {
	counter := &fakeRecordCounter{counts: map[string]RetentionCounts{
		"decision_audit": {Active: 10, Archivable: 3, Purgeable: 1},
		"conflict_check": {Active: 25},
	}}
	h, e := newRetentionFixture(counter)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/retention/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleStatus(c); err != nil {
		t.Fatalf("HandleStatus returned error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	var body RetentionStatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body.Reports) != 4 {
		t.Fatalf("expected 4 reports, got %d", len(body.Reports))
	}
	if body.AsOf.IsZero() {
		t.Error("expected as_of to be stamped")
	}
	for _, r := range body.Reports {
		if r.RecordType == "decision_audit" {
			if r.Counts.Active != 10 || r.Counts.Archivable != 3 || r.Counts.Purgeable != 1 {
				t.Errorf("decision_audit counts = %d/%d/%d, want 10/3/1",
					r.Counts.Active, r.Counts.Archivable, r.Counts.Purgeable)
			}
			if r.Policy.RetentionDays != 2190 {
				t.Errorf("expected the policy alongside the counts, got %+v", r.Policy)
			}
		}
	}
}

func TestRetentionHandler_Status_CounterError(t *testing.T) {
	counter := &fakeRecordCounter{err: errors.New("connection refused")}
	h, e := newRetentionFixture(counter)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/audit/retention/status", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleStatus(c); err != nil {
		t.Fatalf("HandleStatus returned error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
}
