package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wachat-ws/internal/domain"
	"wachat-ws/internal/infrastructure/memstore"
)

func newStatusFixture(t *testing.T, userIDs ...string) (*StatusBroadcaster, map[string]*fakeConn) {
	t.Helper()
	b, conns, _ := newStatusFixtureWithUsers(t, userIDs...)
	return b, conns
}

func newStatusFixtureWithUsers(t *testing.T, userIDs ...string) (*StatusBroadcaster, map[string]*fakeConn, *memstore.Users) {
	t.Helper()
	r, users := newTestRegistry()
	conns := connectAll(t, r, userIDs...)
	return NewStatusBroadcaster(memstore.NewStatuses(), users, r, nil, time.Hour, testLogger()), conns, users
}

func TestCreateStatusReachesEveryoneButOwner(t *testing.T) {
	b, conns := newStatusFixture(t, "owner", "p1", "p2", "p3")

	st, err := b.Create(context.Background(), "owner", domain.CreateStatusBody{Content: "at the beach"})
	require.NoError(t, err)
	assert.Equal(t, domain.ContentText, st.ContentType)
	assert.Empty(t, st.Viewers)

	for _, id := range []string{"p1", "p2", "p3"} {
		got := conns[id].events(domain.EventNewStatus)
		require.Len(t, got, 1, id)
		assert.Equal(t, st.ID, got[0].Payload.(domain.StatusView).ID)
	}
	assert.Empty(t, conns["owner"].events(domain.EventNewStatus))
}

func TestCreateStatusAppliesTTL(t *testing.T) {
	b, _ := newStatusFixture(t, "owner")
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	b.now = fixedClock(at)

	st, err := b.Create(context.Background(), "owner", domain.CreateStatusBody{Content: "x"})
	require.NoError(t, err)
	assert.True(t, st.ExpiresAt.Equal(at.Add(time.Hour)))

	active, err := b.Active(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)

	b.now = fixedClock(at.Add(2 * time.Hour))
	active, err = b.Active(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestCreateStatusValidation(t *testing.T) {
	b, _ := newStatusFixture(t)
	_, err := b.Create(context.Background(), "owner", domain.CreateStatusBody{Content: " "})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = b.Create(context.Background(), "owner", domain.CreateStatusBody{Content: "x", ContentType: "AUDIO"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestViewStatusNotifiesOwnerOnce(t *testing.T) {
	b, conns := newStatusFixture(t, "owner", "viewer")
	ctx := context.Background()

	st, err := b.Create(ctx, "owner", domain.CreateStatusBody{Content: "x"})
	require.NoError(t, err)

	_, added, err := b.View(ctx, st.ID, "viewer")
	require.NoError(t, err)
	assert.True(t, added)
	got, added, err := b.View(ctx, st.ID, "viewer")
	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, []string{"viewer"}, got.Viewers)

	viewed := conns["owner"].events(domain.EventStatusViewed)
	require.Len(t, viewed, 1)
	assert.Equal(t, domain.StatusViewedPayload{
		StatusID:     st.ID,
		ViewerID:     "viewer",
		TotalViewers: 1,
		Viewers:      []domain.UserSummary{{ID: "viewer"}},
	}, viewed[0].Payload)

	_, _, err = b.View(ctx, "missing", "viewer")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteStatus(t *testing.T) {
	b, conns := newStatusFixture(t, "owner", "p1")
	ctx := context.Background()

	st, err := b.Create(ctx, "owner", domain.CreateStatusBody{Content: "x"})
	require.NoError(t, err)

	assert.ErrorIs(t, b.Delete(ctx, st.ID, "p1"), domain.ErrForbidden)
	assert.Empty(t, conns["p1"].events(domain.EventStatusDeleted))

	require.NoError(t, b.Delete(ctx, st.ID, "owner"))
	got := conns["p1"].events(domain.EventStatusDeleted)
	require.Len(t, got, 1)
	assert.Equal(t, st.ID, got[0].Payload)
	assert.Empty(t, conns["owner"].events(domain.EventStatusDeleted))

	assert.ErrorIs(t, b.Delete(ctx, st.ID, "owner"), domain.ErrNotFound)
}

func TestStatusPushesCarryProfiles(t *testing.T) {
	b, conns, users := newStatusFixtureWithUsers(t, "owner", "viewer")
	users.Put(domain.User{ID: "owner", UserName: "Olive", ProfilePicture: "https://cdn/o.png"})
	users.Put(domain.User{ID: "viewer", UserName: "Vic"})
	ctx := context.Background()

	st, err := b.Create(ctx, "owner", domain.CreateStatusBody{Content: "x"})
	require.NoError(t, err)
	created := conns["viewer"].events(domain.EventNewStatus)
	require.Len(t, created, 1)
	view := created[0].Payload.(domain.StatusView)
	assert.Equal(t, domain.UserSummary{ID: "owner", UserName: "Olive", ProfilePicture: "https://cdn/o.png"}, view.User)
	assert.Empty(t, view.Viewers)

	_, _, err = b.View(ctx, st.ID, "viewer")
	require.NoError(t, err)
	viewed := conns["owner"].events(domain.EventStatusViewed)
	require.Len(t, viewed, 1)
	payload := viewed[0].Payload.(domain.StatusViewedPayload)
	assert.Equal(t, []domain.UserSummary{{ID: "viewer", UserName: "Vic"}}, payload.Viewers)
}
