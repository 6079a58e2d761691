package session

import (
	"testing"

	"github.com/hitoshi/jokecentral/internal/model"
)

func TestStore_InitialState_SignedOut(t *testing.T) {
	s := NewStore()

	if s.CurrentIdentity() != nil {
		t.Error("expected nil identity")
	}
	if s.CurrentPage() != model.PageLogin {
		t.Errorf("CurrentPage = %q, want %q", s.CurrentPage(), model.PageLogin)
	}
	if s.SignedIn() {
		t.Error("expected signed out")
	}
}

func TestStore_PageFollowsIdentity(t *testing.T) {
	s := NewStore()

	s.set(&model.Identity{ID: "user-1"})
	if s.CurrentPage() != model.PageHome {
		t.Errorf("CurrentPage = %q, want %q", s.CurrentPage(), model.PageHome)
	}

	s.set(nil)
	if s.CurrentPage() != model.PageLogin {
		t.Errorf("CurrentPage = %q, want %q", s.CurrentPage(), model.PageLogin)
	}
}

func TestStore_Transitions(t *testing.T) {
	alice := &model.Identity{ID: "alice"}
	aliceAgain := &model.Identity{ID: "alice", Email: "alice@example.com"}
	bob := &model.Identity{ID: "bob"}

	tests := []struct {
		name          string
		from          *model.Identity
		to            *model.Identity
		wantSignedIn  bool
		wantSignedOut bool
	}{
		{"nil to identity", nil, alice, true, false},
		{"same user rewritten", alice, aliceAgain, false, false},
		{"different user", alice, bob, true, false},
		{"identity to nil", alice, nil, false, true},
		{"nil to nil", nil, nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			s.set(tt.from)

			var got []Transition
			s.Watch(func(tr Transition) { got = append(got, tr) })

			s.set(tt.to)

			if len(got) != 1 {
				t.Fatalf("expected 1 transition, got %d", len(got))
			}
			if got[0].SignedIn != tt.wantSignedIn {
				t.Errorf("SignedIn = %v, want %v", got[0].SignedIn, tt.wantSignedIn)
			}
			if got[0].SignedOut() != tt.wantSignedOut {
				t.Errorf("SignedOut() = %v, want %v", got[0].SignedOut(), tt.wantSignedOut)
			}
			if got[0].To != tt.to {
				t.Errorf("To = %+v, want %+v", got[0].To, tt.to)
			}
		})
	}
}

func TestStore_WatchCancel_IsIdempotent(t *testing.T) {
	s := NewStore()

	calls := 0
	cancel := s.Watch(func(Transition) { calls++ })
	s.set(&model.Identity{ID: "user-1"})

	cancel()
	cancel()
	s.set(nil)

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestStore_WatcherMayReadStore(t *testing.T) {
	s := NewStore()

	var page model.Page
	s.Watch(func(Transition) { page = s.CurrentPage() })
	s.set(&model.Identity{ID: "user-1"})

	if page != model.PageHome {
		t.Errorf("watcher observed page %q, want %q", page, model.PageHome)
	}
}
