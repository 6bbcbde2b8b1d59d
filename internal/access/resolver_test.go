package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/collabtext/realtime-docs/internal/apperr"
	"github.com/collabtext/realtime-docs/internal/document"
)

type fakeStore struct{ rec *document.Record }

func (f fakeStore) GetByID(_ context.Context, id string) (*document.Record, error) {
	if f.rec == nil || f.rec.ID != id {
		return nil, apperr.NotFound
	}
	return f.rec, nil
}

func TestResolve(t *testing.T) {
	rec := &document.Record{
		ID:    "d1",
		Owner: "alice",
		Shares: map[string]document.Role{
			"bob":   document.RoleEditor,
			"carol": document.RoleViewer,
		},
	}

	require.Equal(t, document.RoleOwner, Resolve(rec, "alice"))
	require.Equal(t, document.RoleEditor, Resolve(rec, "bob"))
	require.Equal(t, document.RoleViewer, Resolve(rec, "carol"))
	require.Equal(t, document.RoleNone, Resolve(rec, "mallory"))
}

func TestCapabilities(t *testing.T) {
	require.True(t, Capabilities(document.RoleOwner).CanShare)
	require.False(t, Capabilities(document.RoleEditor).CanShare)
	require.True(t, Capabilities(document.RoleEditor).CanEdit)
	require.False(t, Capabilities(document.RoleCommenter).CanEdit)
	require.True(t, Capabilities(document.RoleCommenter).CanRead)
	require.False(t, Capabilities(document.RoleNone).CanRead)
}

func TestGetDocumentWithAccess_ForbiddenDoesNotLeak(t *testing.T) {
	rec := &document.Record{ID: "d1", Owner: "alice"}
	_, role, err := GetDocumentWithAccess(context.Background(), fakeStore{rec: rec}, "d1", "mallory", RequireRead)
	require.Error(t, err)
	require.Equal(t, apperr.KindForbidden, apperr.KindOf(err))
	require.Equal(t, document.RoleNone, role)
}

func TestGetDocumentWithAccess_NotFound(t *testing.T) {
	_, _, err := GetDocumentWithAccess(context.Background(), fakeStore{}, "missing", "alice", RequireRead)
	require.Error(t, err)
	require.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}
