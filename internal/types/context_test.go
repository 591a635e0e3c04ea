package types

import (
	"context"
	"testing"
)

func TestWithActor_GetActor(t *testing.T) {
	actor := Actor{ID: "user-123", Type: ActorTypeUser, AdminRole: AdminRoleGroup, GroupID: "g1"}
	ctx := WithActor(context.Background(), actor)

	got, ok := GetActor(ctx)
	if !ok {
		t.Fatal("expected ok to be true, got false")
	}
	if got != actor {
		t.Errorf("got %+v, want %+v", got, actor)
	}
	if !got.IsAdmin() || got.IsMaster() {
		t.Error("group admin should be admin but not master")
	}

	if _, ok := GetActor(context.Background()); ok {
		t.Error("empty context should not carry an actor")
	}
}

func TestRequestID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if GetRequestID(ctx) != "req-1" {
		t.Errorf("GetRequestID = %q", GetRequestID(ctx))
	}
	if GetRequestID(context.Background()) != "" {
		t.Error("missing request id should be empty")
	}
}
