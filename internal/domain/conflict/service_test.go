package conflict

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinsafe/clinsafe/internal/domain/catalog"
	"github.com/clinsafe/clinsafe/internal/platform/hipaa"
)

// ---------- Mocks ----------

type mockCheckRepo struct {
	created    []*CheckRecord
	conflicts  map[uuid.UUID][]Conflict
	failCreate bool
}

func newMockCheckRepo() *mockCheckRepo {
	return &mockCheckRepo{conflicts: make(map[uuid.UUID][]Conflict)}
}

func (m *mockCheckRepo) CreateCheck(ctx context.Context, check *CheckRecord, conflicts []Conflict) error {
	if m.failCreate {
		return fmt.Errorf("connection refused")
	}
	check.ID = uuid.New()
	check.CreatedAt = time.Now()
	m.created = append(m.created, check)
	m.conflicts[check.ID] = conflicts
	return nil
}

func (m *mockCheckRepo) GetCheck(ctx context.Context, id uuid.UUID) (*CheckRecord, []*StoredConflict, error) {
	for _, c := range m.created {
		if c.ID == id {
			var stored []*StoredConflict
			for _, cf := range m.conflicts[id] {
				stored = append(stored, &StoredConflict{
					ID:          uuid.New(),
					CheckID:     id,
					Type:        cf.Type,
					Severity:    cf.Severity,
					Description: cf.Description,
				})
			}
			return c, stored, nil
		}
	}
	return nil, nil, fmt.Errorf("no rows in result set")
}

func (m *mockCheckRepo) ListChecks(ctx context.Context, limit, offset int) ([]*CheckRecord, int, error) {
	return m.created, len(m.created), nil
}

func (m *mockCheckRepo) ListChecksBySubject(ctx context.Context, subjectID string, limit, offset int) ([]*CheckRecord, int, error) {
	var out []*CheckRecord
	for _, c := range m.created {
		if c.SubjectID == subjectID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

type stubCatalogs struct{}

func (stubCatalogs) Snapshot() *catalog.Catalog { return catalog.Default() }

type mockAuditor struct {
	decisions []*hipaa.DecisionEvent
}

func (m *mockAuditor) LogDecision(ctx context.Context, event *hipaa.DecisionEvent) error {
	m.decisions = append(m.decisions, event)
	return nil
}

func testService(repo CheckRepository, audit DecisionAuditor) *Service {
	return NewService(repo, stubCatalogs{}, DefaultDetectionConfig(), audit, nil, zerolog.Nop())
}

func warfarinAspirinRequest() *CheckRequest {
	return &CheckRequest{
		SubjectID: "subj-123",
		Medications: []Medication{
			activeMed("m1", "warfarin"),
			activeMed("m2", "aspirin"),
		},
	}
}

// ---------- Tests ----------

func TestRunCheck_PersistsRecord(t *testing.T) {
	repo := newMockCheckRepo()
	svc := testService(repo, nil)

	actorID := uuid.New()
	actor := hipaa.Actor{ID: &actorID, Name: "Dr. Adams", Role: "physician"}

	result, record, err := svc.RunCheck(context.Background(), warfarinAspirinRequest(), actor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ConflictCount != 1 || result.SafetyScore != 85 {
		t.Fatalf("unexpected detection result: %+v", result)
	}
	if record == nil {
		t.Fatal("expected a persisted record")
	}
	if record.SubjectID != "subj-123" {
		t.Errorf("expected subject on record, got %q", record.SubjectID)
	}
	if record.ConflictCount != 1 || record.SafetyScore != 85 || !record.HasConflicts {
		t.Errorf("record disagrees with result: %+v", record)
	}
	if !record.RequiresClinicalReview {
		t.Error("expected review flag on record")
	}
	if !record.ChecksMedication || !record.ChecksAllergy || !record.ChecksCondition {
		t.Errorf("expected all checks recorded, got %+v", record)
	}
	if record.CheckedBy == nil || *record.CheckedBy != actorID {
		t.Errorf("expected actor id on record, got %v", record.CheckedBy)
	}
	if got := len(repo.conflicts[record.ID]); got != 1 {
		t.Errorf("expected 1 conflict persisted with the check, got %d", got)
	}
}

func TestRunCheck_RequiresSubjectID(t *testing.T) {
	svc := testService(newMockCheckRepo(), nil)

	req := &CheckRequest{Medications: []Medication{activeMed("m1", "warfarin")}}
	_, _, err := svc.RunCheck(context.Background(), req, hipaa.Actor{})
	if err == nil {
		t.Fatal("expected error for missing subject_id")
	}
}

func TestRunCheck_PersistFailureKeepsResult(t *testing.T) {
	repo := newMockCheckRepo()
	repo.failCreate = true
	svc := testService(repo, nil)

	result, record, err := svc.RunCheck(context.Background(), warfarinAspirinRequest(), hipaa.Actor{})
	if err != nil {
		t.Fatalf("persistence failure must not surface as an error: %v", err)
	}
	if record != nil {
		t.Error("expected nil record on persistence failure")
	}
	if result.ConflictCount != 1 || result.SafetyScore != 85 {
		t.Errorf("result must be unaffected by persistence failure, got %+v", result)
	}
}

func TestRunCheck_AuditsCompletedOutcome(t *testing.T) {
	audit := &mockAuditor{}
	svc := testService(newMockCheckRepo(), audit)

	req := &CheckRequest{
		SubjectID:   "subj-123",
		Medications: []Medication{activeMed("m1", "acetaminophen")},
	}
	_, _, err := svc.RunCheck(context.Background(), req, hipaa.Actor{Name: "Dr. Adams", Role: "physician"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(audit.decisions) != 1 {
		t.Fatalf("expected 1 decision event, got %d", len(audit.decisions))
	}
	event := audit.decisions[0]
	if event.DecisionType != hipaa.DecisionConflictCheck {
		t.Errorf("expected decision type %q, got %q", hipaa.DecisionConflictCheck, event.DecisionType)
	}
	if event.Outcome != hipaa.OutcomeCompleted {
		t.Errorf("expected outcome %q, got %q", hipaa.OutcomeCompleted, event.Outcome)
	}
	if event.SeveritySummary != "none" {
		t.Errorf("expected severity summary none for a clean run, got %q", event.SeveritySummary)
	}
	if event.SubjectID != "subj-123" {
		t.Errorf("expected subject on event, got %q", event.SubjectID)
	}
	if event.ActorName != "Dr. Adams" || event.ActorRole != "physician" {
		t.Errorf("actor not carried into event: %+v", event)
	}
	if event.Detail["conflict_count"] != 0 {
		t.Errorf("expected conflict count in detail, got %v", event.Detail)
	}
}

func TestRunCheck_AuditsHighSeveritySummary(t *testing.T) {
	audit := &mockAuditor{}
	svc := testService(newMockCheckRepo(), audit)

	_, _, err := svc.RunCheck(context.Background(), warfarinAspirinRequest(), hipaa.Actor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := audit.decisions[0]
	if event.Outcome != hipaa.OutcomeCompleted {
		t.Errorf("high severity without critical completes, got %q", event.Outcome)
	}
	if event.SeveritySummary != SeverityHigh {
		t.Errorf("expected severity summary %q, got %q", SeverityHigh, event.SeveritySummary)
	}
}

func TestRunCheck_AuditsBlockedOutcome(t *testing.T) {
	audit := &mockAuditor{}
	svc := testService(newMockCheckRepo(), audit)

	req := &CheckRequest{
		SubjectID: "subj-123",
		Medications: []Medication{
			activeMed("m1", "phenelzine"),
			activeMed("m2", "sertraline"),
		},
	}
	_, _, err := svc.RunCheck(context.Background(), req, hipaa.Actor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	event := audit.decisions[0]
	if event.Outcome != hipaa.OutcomeBlocked {
		t.Errorf("critical conflicts must audit as blocked, got %q", event.Outcome)
	}
	if event.SeveritySummary != SeverityCritical {
		t.Errorf("expected severity summary %q, got %q", SeverityCritical, event.SeveritySummary)
	}
}

func TestListChecksBySubject_RequiresSubject(t *testing.T) {
	svc := testService(newMockCheckRepo(), nil)

	_, _, err := svc.ListChecksBySubject(context.Background(), "", 20, 0)
	if err == nil {
		t.Fatal("expected error for empty subject_id")
	}
}

func TestListChecksBySubject_Filters(t *testing.T) {
	repo := newMockCheckRepo()
	svc := testService(repo, nil)

	_, _, _ = svc.RunCheck(context.Background(), warfarinAspirinRequest(), hipaa.Actor{})
	other := &CheckRequest{SubjectID: "subj-999"}
	_, _, _ = svc.RunCheck(context.Background(), other, hipaa.Actor{})

	checks, total, err := svc.ListChecksBySubject(context.Background(), "subj-123", 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(checks) != 1 {
		t.Fatalf("expected 1 check for subj-123, got total=%d len=%d", total, len(checks))
	}
	if checks[0].SubjectID != "subj-123" {
		t.Errorf("filter returned wrong subject: %q", checks[0].SubjectID)
	}
}

func TestGetCheck_RoundTrip(t *testing.T) {
	repo := newMockCheckRepo()
	svc := testService(repo, nil)

	_, record, err := svc.RunCheck(context.Background(), warfarinAspirinRequest(), hipaa.Actor{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	check, conflicts, err := svc.GetCheck(context.Background(), record.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if check.ID != record.ID || check.SubjectID != "subj-123" {
		t.Errorf("round trip mismatch: %+v", check)
	}
	if len(conflicts) != 1 || conflicts[0].Type != TypeMedicationInteraction {
		t.Errorf("expected stored conflict, got %+v", conflicts)
	}
}

func TestSeveritySummary(t *testing.T) {
	cases := []struct {
		name   string
		result DetectionResult
		want   string
	}{
		{"failure", FailureResult(), "failure"},
		{"clean", DetectionResult{}, "none"},
		{
			"highest_wins",
			DetectionResult{Conflicts: []Conflict{
				{Severity: SeverityLow},
				{Severity: SeverityCritical},
				{Severity: SeverityMedium},
			}},
			SeverityCritical,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := severitySummary(&tc.result); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
