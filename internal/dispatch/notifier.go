package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/storage"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// Sender delivers one rendered notification over a channel (email, SMS, push).
// The transport lives outside this module.
type Sender interface {
	Send(ctx context.Context, partnerID, channel, message string) error
}

// LogSender writes notifications to the log. Stands in where no transport is
// configured.
type LogSender struct {
	Logger *zap.Logger
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, partnerID, channel, message string) error {
	s.Logger.Info("notification",
		zap.String("partner_id", partnerID),
		zap.String("channel", channel),
		zap.String("message", message))
	return nil
}

// Notifier fans match results out to counterparties, honoring opt-in and a
// per-user rate limit. Notification failures never affect the match task.
type Notifier struct {
	cfg     config.NotificationConfig
	storage storage.Gateway
	sender  Sender
	logger  *zap.Logger

	mu       sync.Mutex
	lastSent map[string]time.Time
	now      func() time.Time
}

// NewNotifier creates a notifier.
func NewNotifier(cfg config.NotificationConfig, gw storage.Gateway, sender Sender, logger *zap.Logger) *Notifier {
	if cfg.MaxMatchesToNotify <= 0 {
		cfg.MaxMatchesToNotify = 5
	}
	if cfg.RateLimitSeconds <= 0 {
		cfg.RateLimitSeconds = 60
	}
	return &Notifier{
		cfg:      cfg,
		storage:  gw,
		sender:   sender,
		logger:   logger,
		lastSent: make(map[string]time.Time),
		now:      time.Now,
	}
}

// NotifyMatches sends at most MaxMatchesToNotify notifications for the top
// matches, one per counterparty, each dispatched in the background.
func (n *Notifier) NotifyMatches(ctx context.Context, task *MatchRequest, matches []*types.MatchResult) {
	limit := n.cfg.MaxMatchesToNotify
	if len(matches) < limit {
		limit = len(matches)
	}

	for _, m := range matches[:limit] {
		partnerID, err := n.counterpartyID(ctx, task, m)
		if err != nil {
			n.logger.Warn("notification-counterparty-lookup-failed",
				zap.String("entity_id", task.EntityID), zap.Error(err))
			continue
		}
		n.notifyOne(ctx, partnerID, m)
	}
}

// counterpartyID resolves who gets told about the match: the other side of
// the entity the task rematched.
func (n *Notifier) counterpartyID(ctx context.Context, task *MatchRequest, m *types.MatchResult) (string, error) {
	if task.EntityType == EntityRequirement {
		avail, err := n.storage.GetAvailability(ctx, m.AvailabilityID, false)
		if err != nil {
			return "", err
		}
		return avail.SellerID, nil
	}
	req, err := n.storage.GetRequirement(ctx, m.RequirementID, false)
	if err != nil {
		return "", err
	}
	return req.BuyerID, nil
}

func (n *Notifier) notifyOne(ctx context.Context, partnerID string, m *types.MatchResult) {
	partner, err := n.storage.GetPartner(ctx, partnerID)
	if err != nil {
		n.logger.Warn("notification-partner-lookup-failed",
			zap.String("partner_id", partnerID), zap.Error(err))
		return
	}
	if !partner.NotifyOptIn {
		NotificationsSuppressedTotal.WithLabelValues("opt_out").Inc()
		return
	}
	if !n.allow(partnerID) {
		NotificationsSuppressedTotal.WithLabelValues("rate_limited").Inc()
		return
	}

	channels := partner.NotifyChannels
	if len(channels) == 0 {
		channels = []string{"email"}
	}
	message := fmt.Sprintf("New match found (score %.2f): %s", m.Score, m.Recommendation)

	// Fire and forget; the worker never waits on transports.
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		for _, channel := range channels {
			if err := n.sender.Send(sendCtx, partnerID, channel, message); err != nil {
				n.logger.Warn("notification-send-failed",
					zap.String("partner_id", partnerID),
					zap.String("channel", channel),
					zap.Error(err))
				continue
			}
			NotificationsSentTotal.Inc()
		}
	}()
}

// allow enforces one notification per partner per rate-limit window.
func (n *Notifier) allow(partnerID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	window := time.Duration(n.cfg.RateLimitSeconds) * time.Second
	if last, ok := n.lastSent[partnerID]; ok && now.Sub(last) < window {
		return false
	}
	n.lastSent[partnerID] = now
	return true
}
