package services

import (
	"testing"
	"time"
)

func TestMemorySessionStore_SetGetClear(t *testing.T) {
	store := NewMemorySessionStore(10 * time.Minute)

	if _, ok := store.Get("919900001111"); ok {
		t.Error("empty store should not return a session")
	}

	session := &Session{Name: "Asha Verma", UpdatedAt: time.Now()}
	store.Set("919900001111", session)

	got, ok := store.Get("919900001111")
	if !ok {
		t.Fatal("expected stored session")
	}
	if got.Name != "Asha Verma" {
		t.Errorf("name = %q, want %q", got.Name, "Asha Verma")
	}

	store.Clear("919900001111")
	if _, ok := store.Get("919900001111"); ok {
		t.Error("cleared session should be gone")
	}
}

func TestMemorySessionStore_ActiveSessions(t *testing.T) {
	store := NewMemorySessionStore(10 * time.Minute)

	store.Set("1", &Session{})
	store.Set("2", &Session{})
	store.Set("1", &Session{Name: "overwrite"})

	if got := store.ActiveSessions(); got != 2 {
		t.Errorf("active sessions = %d, want 2", got)
	}
}

func TestSession_HasAllRequiredData(t *testing.T) {
	complete := &Session{
		Name:             "Asha Verma",
		MembershipNumber: "MB-2041",
		Category:         "Others",
		Suggestion:       "More fans in the card room",
	}
	if !complete.HasAllRequiredData() {
		t.Error("complete session should pass")
	}

	missing := []*Session{
		{MembershipNumber: "MB-2041", Category: "Others", Suggestion: "x"},
		{Name: "A", Category: "Others", Suggestion: "x"},
		{Name: "A", MembershipNumber: "MB-2041", Suggestion: "x"},
		{Name: "A", MembershipNumber: "MB-2041", Category: "Others"},
	}
	for i, s := range missing {
		if s.HasAllRequiredData() {
			t.Errorf("session %d missing a field should fail", i)
		}
	}
}
