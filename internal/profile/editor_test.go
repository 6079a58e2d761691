package profile

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hitoshi/jokecentral/internal/model"
)

// --- モック定義 ---

type mockUserProvider struct {
	getUserFn    func(ctx context.Context) (*model.Identity, error)
	updateUserFn func(ctx context.Context, data model.Metadata) (*model.Identity, error)
}

func (m *mockUserProvider) GetUser(ctx context.Context) (*model.Identity, error) {
	if m.getUserFn != nil {
		return m.getUserFn(ctx)
	}
	return nil, nil
}

func (m *mockUserProvider) UpdateUser(ctx context.Context, data model.Metadata) (*model.Identity, error) {
	if m.updateUserFn != nil {
		return m.updateUserFn(ctx, data)
	}
	return &model.Identity{Metadata: data}, nil
}

func TestEditor_Load_PopulatesForm(t *testing.T) {
	p := &mockUserProvider{getUserFn: func(ctx context.Context) (*model.Identity, error) {
		return &model.Identity{
			ID:       "user-1",
			Email:    "user@example.com",
			Metadata: model.Metadata{Username: "jester", FullName: "Jest Er"},
		}, nil
	}}

	got := NewEditor(p, nil).Load(context.Background())

	want := View{Form: Form{Email: "user@example.com", Username: "jester", FullName: "Jest Er"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestEditor_Load_MissingMetadata_EmptyFields(t *testing.T) {
	p := &mockUserProvider{getUserFn: func(ctx context.Context) (*model.Identity, error) {
		return &model.Identity{ID: "user-1", Email: "user@example.com"}, nil
	}}

	got := NewEditor(p, nil).Load(context.Background())

	want := View{Form: Form{Email: "user@example.com"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestEditor_Load_NoUser_EmptyWithoutError(t *testing.T) {
	got := NewEditor(&mockUserProvider{}, nil).Load(context.Background())

	if diff := cmp.Diff(View{}, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestEditor_Load_Failure_ShowsStaticMessage(t *testing.T) {
	p := &mockUserProvider{getUserFn: func(ctx context.Context) (*model.Identity, error) {
		return nil, errors.New("jwt expired: secret detail")
	}}

	got := NewEditor(p, nil).Load(context.Background())

	if got.ErrorMessage != "Error loading user data" {
		t.Errorf("ErrorMessage = %q", got.ErrorMessage)
	}
	if got.Form != (Form{}) {
		t.Errorf("Form = %+v, want empty", got.Form)
	}
}

func TestEditor_Save_SendsMetadataAndAcknowledges(t *testing.T) {
	var sent model.Metadata
	p := &mockUserProvider{updateUserFn: func(ctx context.Context, data model.Metadata) (*model.Identity, error) {
		sent = data
		return &model.Identity{ID: "user-1", Metadata: data}, nil
	}}
	form := Form{Email: "user@example.com", Username: "jester", FullName: "Jest Er"}

	got := NewEditor(p, nil).Save(context.Background(), form)

	if diff := cmp.Diff(model.Metadata{Username: "jester", FullName: "Jest Er"}, sent); diff != "" {
		t.Errorf("metadata mismatch (-want +got):\n%s", diff)
	}
	want := View{Form: form, Notice: "Profile updated successfully!"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Save() mismatch (-want +got):\n%s", diff)
	}
}

func TestEditor_Save_Failure_KeepsTypedFields(t *testing.T) {
	p := &mockUserProvider{updateUserFn: func(ctx context.Context, data model.Metadata) (*model.Identity, error) {
		return nil, errors.New("status 422")
	}}
	form := Form{Email: "user@example.com", Username: "typed", FullName: "As Typed"}

	got := NewEditor(p, nil).Save(context.Background(), form)

	want := View{Form: form, ErrorMessage: "Error updating profile"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Save() mismatch (-want +got):\n%s", diff)
	}
}
