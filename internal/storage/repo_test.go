package storage

import (
	"context"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := "file:" + t.Name() + "?mode=memory&cache=shared"
	s, err := Open(context.Background(), "sqlite", dsn, true, "")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestListPublicProjectsFiltersPrivate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.InsertProject(ctx, Project{Title: "Solar Tracker", Summary: "Sun-following panel rig", Author: "Ada", Tags: "hardware,energy", IsPublic: true}); err != nil {
		t.Fatalf("insert public: %v", err)
	}
	if _, err := s.InsertProject(ctx, Project{Title: "Secret Draft", Summary: "wip", Author: "Ben", IsPublic: false}); err != nil {
		t.Fatalf("insert private: %v", err)
	}

	projects, err := s.ListPublicProjects(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(projects) != 1 {
		t.Fatalf("expected 1 public project, got %d", len(projects))
	}
	if projects[0].Title != "Solar Tracker" {
		t.Fatalf("unexpected project %q", projects[0].Title)
	}
}

func TestInsertChatLogAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []ChatLogEntry{
		{Question: "What projects use generative AI?", Outcome: OutcomeAnswered, Attempts: 1, DurationMS: 850},
		{Question: "Any robotics projects?", Outcome: OutcomeAnswered, Attempts: 3, DurationMS: 4200},
		{Question: "hi", Outcome: OutcomeRateLimited, Attempts: 0},
	}
	for _, e := range entries {
		if err := s.InsertChatLog(ctx, e); err != nil {
			t.Fatalf("insert chat log: %v", err)
		}
	}

	answered, err := s.CountChatLog(ctx, OutcomeAnswered)
	if err != nil {
		t.Fatalf("count answered: %v", err)
	}
	if answered != 2 {
		t.Fatalf("expected 2 answered, got %d", answered)
	}

	all, err := s.CountChatLog(ctx, "")
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if all != 3 {
		t.Fatalf("expected 3 rows, got %d", all)
	}
}
