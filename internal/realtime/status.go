package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wachat-ws/internal/domain"
)

// DefaultStatusTTL is how long a status stays visible.
const DefaultStatusTTL = 24 * time.Hour

// StatusBroadcaster announces status creation, views and deletion.
type StatusBroadcaster struct {
	statuses domain.StatusStore
	profiles profiles
	peers    Peers
	events   EventPublisher
	ttl      time.Duration
	now      func() time.Time
	log      zerolog.Logger
}

// NewStatusBroadcaster builds a broadcaster. users resolves owner and viewer
// profiles for pushes and may be nil.
func NewStatusBroadcaster(statuses domain.StatusStore, users domain.UserDirectory, peers Peers, events EventPublisher, ttl time.Duration, log zerolog.Logger) *StatusBroadcaster {
	if ttl <= 0 {
		ttl = DefaultStatusTTL
	}
	log = log.With().Str("component", "status").Logger()
	return &StatusBroadcaster{
		statuses: statuses,
		profiles: profiles{users: users, log: log},
		peers:    peers,
		events:   events,
		ttl:      ttl,
		now:      time.Now,
		log:      log,
	}
}

// Create stores a status for ownerID and pushes it to every other connected user.
func (b *StatusBroadcaster) Create(ctx context.Context, ownerID string, body domain.CreateStatusBody) (*domain.Status, error) {
	if ownerID == "" || strings.TrimSpace(body.Content) == "" {
		return nil, fmt.Errorf("create status: owner and content required: %w", domain.ErrInvalidInput)
	}
	contentType := body.ContentType
	if contentType == "" {
		contentType = domain.ContentText
	}
	if !contentType.Valid() {
		return nil, fmt.Errorf("create status: unsupported content type %q: %w", contentType, domain.ErrInvalidInput)
	}

	now := b.now()
	status := &domain.Status{
		ID:          uuid.NewString(),
		UserID:      ownerID,
		Content:     body.Content,
		ContentType: contentType,
		Viewers:     []string{},
		ExpiresAt:   now.Add(b.ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.statuses.Create(ctx, status); err != nil {
		return nil, err
	}

	n := b.peers.Broadcast(domain.EventNewStatus, b.profiles.status(ctx, status), ownerID)
	b.log.Info().Str("status_id", status.ID).Str("owner_id", ownerID).Int("notified", n).Msg("status created")

	publish(ctx, b.log, b.events, domain.StatusEvent{Type: "status_created", StatusID: status.ID, OwnerID: ownerID, Timestamp: now})
	return status, nil
}

// View records viewerID on statusID. Only the first view by a viewer is
// stored and reported to the owner; repeats return added=false.
func (b *StatusBroadcaster) View(ctx context.Context, statusID, viewerID string) (*domain.Status, bool, error) {
	if statusID == "" || viewerID == "" {
		return nil, false, fmt.Errorf("view status: %w", domain.ErrInvalidInput)
	}

	status, added, err := b.statuses.AddViewer(ctx, statusID, viewerID)
	if err != nil {
		return nil, false, err
	}
	if !added {
		return status, false, nil
	}

	delivered := pushTo(b.log, b.peers, status.UserID, domain.EventStatusViewed, domain.StatusViewedPayload{
		StatusID:     statusID,
		ViewerID:     viewerID,
		TotalViewers: len(status.Viewers),
		Viewers:      b.profiles.summaries(ctx, status.Viewers),
	})
	if !delivered {
		b.log.Debug().Str("status_id", statusID).Str("owner_id", status.UserID).Msg("status owner not connected")
	}

	publish(ctx, b.log, b.events, domain.StatusEvent{Type: "status_viewed", StatusID: statusID, OwnerID: status.UserID, ViewerID: viewerID, Timestamp: b.now()})
	return status, true, nil
}

// Delete removes a status on behalf of its owner and tells every other connected user.
func (b *StatusBroadcaster) Delete(ctx context.Context, statusID, actorID string) error {
	if statusID == "" || actorID == "" {
		return fmt.Errorf("delete status: %w", domain.ErrInvalidInput)
	}
	status, err := b.statuses.FindByID(ctx, statusID)
	if err != nil {
		return err
	}
	if status.UserID != actorID {
		return fmt.Errorf("delete status %s: %w", statusID, domain.ErrForbidden)
	}
	if err := b.statuses.Delete(ctx, statusID); err != nil {
		return err
	}

	n := b.peers.Broadcast(domain.EventStatusDeleted, statusID, actorID)
	b.log.Info().Str("status_id", statusID).Int("notified", n).Msg("status deleted")

	publish(ctx, b.log, b.events, domain.StatusEvent{Type: "status_deleted", StatusID: statusID, OwnerID: actorID, Timestamp: b.now()})
	return nil
}

// Active lists unexpired statuses, newest first.
func (b *StatusBroadcaster) Active(ctx context.Context) ([]domain.Status, error) {
	return b.statuses.FindActive(ctx, b.now())
}
