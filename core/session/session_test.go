package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"soundwaves/model"
)

func TestResolve(t *testing.T) {
	r := NewResolver("secret")
	user := model.Authenticated{ID: "user-1", DisplayName: "Ada", AvatarURL: "http://img/ada.png"}

	valid, err := r.Issue(user, "ada@example.com", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	expired, _ := r.Issue(user, "ada@example.com", -time.Hour)
	foreign, _ := NewResolver("other").Issue(user, "", time.Hour)

	tests := []struct {
		name    string
		header  string
		want    model.Session
		wantErr bool
	}{
		{name: "no header", header: "", want: model.Anonymous{}},
		{name: "valid token", header: "Bearer " + valid, want: user},
		{name: "expired token", header: "Bearer " + expired, want: model.Anonymous{}, wantErr: true},
		{name: "wrong secret", header: "Bearer " + foreign, want: model.Anonymous{}, wantErr: true},
		{name: "not bearer", header: "Basic abc", want: model.Anonymous{}, wantErr: true},
		{name: "garbage", header: "Bearer abc.def", want: model.Anonymous{}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.header)
			if tt.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestDisplayNameFallsBackToEmail(t *testing.T) {
	r := NewResolver("secret")
	token, _ := r.Issue(model.Authenticated{ID: "u"}, "u@example.com", time.Hour)
	s, err := r.Resolve("Bearer " + token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	user, ok := model.AuthenticatedUser(s)
	if !ok || user.DisplayName != "u@example.com" {
		t.Fatalf("unexpected session %#v", s)
	}
}

func TestContextDefaultsToAnonymous(t *testing.T) {
	if _, ok := FromContext(context.Background()).(model.Anonymous); !ok {
		t.Fatal("empty context should be anonymous")
	}
	ctx := WithSession(context.Background(), model.Authenticated{ID: "x"})
	if u, ok := model.AuthenticatedUser(FromContext(ctx)); !ok || u.ID != "x" {
		t.Fatal("session should round-trip through context")
	}
}
