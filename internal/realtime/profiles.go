package realtime

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"wachat-ws/internal/domain"
)

// profiles resolves user ids into the summaries clients render next to
// messages and statuses. A profile that cannot be loaded falls back to the
// bare id, so a push is never held back by the directory.
type profiles struct {
	users domain.UserDirectory
	log   zerolog.Logger
}

func (p profiles) summary(ctx context.Context, userID string) domain.UserSummary {
	out := domain.UserSummary{ID: userID}
	if p.users == nil || userID == "" {
		return out
	}
	u, err := p.users.FindByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			p.log.Warn().Err(err).Str("user_id", userID).Msg("failed to resolve profile")
		}
		return out
	}
	out.UserName = u.UserName
	out.ProfilePicture = u.ProfilePicture
	return out
}

func (p profiles) summaries(ctx context.Context, userIDs []string) []domain.UserSummary {
	out := make([]domain.UserSummary, 0, len(userIDs))
	for _, id := range userIDs {
		out = append(out, p.summary(ctx, id))
	}
	return out
}

func (p profiles) message(ctx context.Context, msg *domain.Message) domain.MessageView {
	return domain.MessageView{
		Message:  *msg,
		Sender:   p.summary(ctx, msg.SenderID),
		Receiver: p.summary(ctx, msg.ReceiverID),
	}
}

func (p profiles) status(ctx context.Context, st *domain.Status) domain.StatusView {
	return domain.StatusView{
		Status:  *st,
		User:    p.summary(ctx, st.UserID),
		Viewers: p.summaries(ctx, st.Viewers),
	}
}
