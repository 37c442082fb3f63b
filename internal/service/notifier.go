package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/iconidentify/mediagrabba/internal/domain"
	"github.com/iconidentify/mediagrabba/internal/repository"
)

// Notifier publishes the refreshed snapshot of a collection after it changed.
// A failed deletion is reported inside the payload instead of being dropped.
type Notifier struct {
	store     *repository.Store
	publisher domain.Publisher
	logger    *slog.Logger
}

// NewNotifier creates a new notifier.
func NewNotifier(store *repository.Store, publisher domain.Publisher, logger *slog.Logger) *Notifier {
	return &Notifier{
		store:     store,
		publisher: publisher,
		logger:    logger,
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// ScheduleChanged publishes the schedule snapshot.
func (n *Notifier) ScheduleChanged(ctx context.Context, opErr error) {
	entries, err := n.store.Schedule.List(ctx)
	if err != nil {
		n.logger.Error("list schedule for notification", "error", err)
	}
	items := make([]domain.ScheduleEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, *e)
	}
	n.publisher.Publish(domain.EventScheduleUpdate, domain.ListPayload[domain.ScheduleEntry]{
		Items: items,
		Error: errorText(opErr),
	})
}

// FinishedChanged publishes the finished list snapshot.
func (n *Notifier) FinishedChanged(ctx context.Context, opErr error) {
	entries, err := n.store.Finished.List(ctx)
	if err != nil {
		n.logger.Error("list finished for notification", "error", err)
	}
	items := make([]domain.FinishedEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, *e)
	}
	n.publisher.Publish(domain.EventFinishedUpdate, domain.ListPayload[domain.FinishedEntry]{
		Items: items,
		Error: errorText(opErr),
	})
}

// IgnoreChanged publishes the ignore list snapshot.
func (n *Notifier) IgnoreChanged(ctx context.Context, opErr error) {
	entries, err := n.store.Ignore.List(ctx)
	if err != nil {
		n.logger.Error("list ignore list for notification", "error", err)
	}
	items := make([]domain.IgnoreEntry, 0, len(entries))
	for _, e := range entries {
		items = append(items, *e)
	}
	n.publisher.Publish(domain.EventIgnoreListUpdate, domain.ListPayload[domain.IgnoreEntry]{
		Items: items,
		Error: errorText(opErr),
	})
}

// SettingsChanged publishes the current settings.
func (n *Notifier) SettingsChanged(ctx context.Context) {
	settings, err := n.store.Settings.Load(ctx)
	if err != nil {
		n.logger.Error("load settings for notification", "error", err)
	}
	n.publisher.Publish(domain.EventSettingsUpdate, settings)
}

// CatalogChanged publishes the catalog snapshot.
func (n *Notifier) CatalogChanged(ctx context.Context) {
	catalogs, err := n.store.Catalog.List(ctx)
	if err != nil {
		n.logger.Error("list catalog for notification", "error", err)
	}
	n.publisher.Publish(domain.EventCatalogUpdate, domain.ListPayload[domain.ChannelCatalog]{
		Items: catalogs,
		Error: errorText(err),
	})
}

// Banner shows a short notice to the user.
func (n *Notifier) Banner(severity domain.EventSeverity, title, message string) {
	n.publisher.Publish(domain.EventBanner, domain.Banner{
		Severity: severity,
		Title:    title,
		Message:  message,
	})
}

// NextRefresh announces when the catalog is refreshed next.
func (n *Notifier) NextRefresh(at time.Time) {
	n.publisher.Publish(domain.EventNextCatalogRefresh, map[string]time.Time{"next": at})
}
