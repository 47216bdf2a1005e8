package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/rehearsa/internal/store"
	"github.com/MrWong99/rehearsa/pkg/types"
)

func TestInterviews(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := &store.Interview{UserID: "u1", Role: "SRE", Questions: []string{"What is an SLO?"}, CreatedAt: base}
	newer := &store.Interview{UserID: "u1", Role: "Backend", Questions: []string{"Why Go?"}, CreatedAt: base.Add(time.Hour)}
	other := &store.Interview{UserID: "u2", Role: "Data", Questions: []string{"Explain joins."}}
	for _, iv := range []*store.Interview{older, newer, other} {
		if err := s.CreateInterview(ctx, iv); err != nil {
			t.Fatalf("CreateInterview: %v", err)
		}
		if iv.ID == "" {
			t.Fatal("ID not assigned")
		}
	}
	if other.CreatedAt.IsZero() {
		t.Error("CreatedAt not assigned")
	}

	got, err := s.GetInterview(ctx, older.ID)
	if err != nil {
		t.Fatalf("GetInterview: %v", err)
	}
	got.Questions[0] = "mutated"
	again, _ := s.GetInterview(ctx, older.ID)
	if again.Questions[0] != "What is an SLO?" {
		t.Error("store shares memory with callers")
	}

	list, err := s.ListInterviews(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("ListInterviews: %v", err)
	}
	if len(list) != 2 || list[0].ID != newer.ID || list[1].ID != older.ID {
		t.Errorf("ListInterviews = %+v, want newest first", list)
	}
	if list, _ := s.ListInterviews(ctx, "u1", 1); len(list) != 1 {
		t.Errorf("limit not applied: %d", len(list))
	}

	if _, err := s.GetInterview(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := s.CreateInterview(ctx, &store.Interview{ID: older.ID}); err == nil {
		t.Error("duplicate ID accepted")
	}
}

func TestSaveFeedback_OverwritesPerInterviewAndUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := New()

	first := &store.Feedback{
		InterviewID: "iv1",
		UserID:      "u1",
		TotalScore:  40,
		Transcript:  []types.Message{{Role: types.RoleAssistant, Content: "Why Go?"}},
	}
	if err := s.SaveFeedback(ctx, first); err != nil {
		t.Fatalf("SaveFeedback: %v", err)
	}
	second := &store.Feedback{InterviewID: "iv1", UserID: "u1", TotalScore: 75}
	if err := s.SaveFeedback(ctx, second); err != nil {
		t.Fatalf("SaveFeedback: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("second.ID = %q, want reuse of %q", second.ID, first.ID)
	}

	got, err := s.GetFeedback(ctx, "iv1", "u1")
	if err != nil {
		t.Fatalf("GetFeedback: %v", err)
	}
	if got.TotalScore != 75 {
		t.Errorf("TotalScore = %d, want overwritten 75", got.TotalScore)
	}

	byID, err := s.GetFeedbackByID(ctx, first.ID)
	if err != nil || byID.TotalScore != 75 {
		t.Errorf("GetFeedbackByID = %+v, %v", byID, err)
	}

	otherUser := &store.Feedback{InterviewID: "iv1", UserID: "u2", TotalScore: 10}
	_ = s.SaveFeedback(ctx, otherUser)
	if otherUser.ID == first.ID {
		t.Error("different user shares feedback ID")
	}

	if _, err := s.GetFeedback(ctx, "iv2", "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
