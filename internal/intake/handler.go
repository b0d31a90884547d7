package intake

import (
	"context"
	"fmt"
	"log/slog"

	"linkrelay/internal/dispatch"
	"linkrelay/internal/folders"
	"linkrelay/internal/journal"
	"linkrelay/internal/links"
	"linkrelay/internal/logging"
	"linkrelay/internal/observability"
	"linkrelay/internal/services"
)

// Outcome is the immediate answer given to the webhook caller.
type Outcome string

const (
	OutcomeAccepted Outcome = "accepted"
	OutcomeIgnored  Outcome = "ignored"
)

// FolderManager creates and renames task folders.
type FolderManager interface {
	Create(ctx context.Context, folderPath string) (folders.Status, error)
	Rename(ctx context.Context, oldPath, newPath string) error
}

// LinkProvisioner mints and releases public shares.
type LinkProvisioner interface {
	Create(ctx context.Context, taskID, folderPath string) (links.Link, error)
	Revoke(ctx context.Context, shareID string) bool
	Release(ctx context.Context, taskID, overrideShareID string) error
}

// Dependencies bundles the collaborators a Handler needs.
type Dependencies struct {
	Store    journal.Store
	Folders  FolderManager
	Links    LinkProvisioner
	Dispatch dispatch.Scheduler
	Catalog  string
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// Handler turns tracker events into background units of work.
type Handler struct {
	store    journal.Store
	folders  FolderManager
	links    LinkProvisioner
	dispatch dispatch.Scheduler
	catalog  string
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewHandler validates deps and returns a Handler.
func NewHandler(deps Dependencies) (*Handler, error) {
	if deps.Store == nil || deps.Folders == nil || deps.Links == nil || deps.Dispatch == nil {
		return nil, services.Wrap(services.ErrConfiguration, "intake", "init", "missing dependency", nil)
	}
	return &Handler{
		store:    deps.Store,
		folders:  deps.Folders,
		links:    deps.Links,
		dispatch: deps.Dispatch,
		catalog:  deps.Catalog,
		metrics:  deps.Metrics,
		logger:   logging.NewComponentLogger(deps.Logger, "intake"),
	}, nil
}

// HandleBody parses a raw webhook body and handles it. Bodies that cannot be
// parsed are logged and ignored.
func (h *Handler) HandleBody(ctx context.Context, body []byte) Outcome {
	ev, err := Parse(body)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, h.logger), "webhook payload rejected", "payload_invalid",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the tracker webhook configuration"),
			logging.String(logging.FieldImpact, "event ignored"),
		)
		h.metrics.ObserveEvent("invalid", string(OutcomeIgnored))
		return OutcomeIgnored
	}
	return h.Handle(ctx, ev)
}

// Handle dispatches recognised events onto the queue and returns at once.
func (h *Handler) Handle(ctx context.Context, ev Event) Outcome {
	kind := ev.Kind()
	logger := logging.WithContext(ctx, h.logger).With(
		logging.String(logging.FieldTaskID, ev.TaskID),
		logging.String("event", ev.Type),
	)

	jobCtx := func(parent context.Context) context.Context {
		parent = services.WithTaskID(parent, ev.TaskID)
		parent = services.WithOperation(parent, kind.String())
		if rid, ok := services.RequestIDFromContext(ctx); ok {
			parent = services.WithRequestID(parent, rid)
		}
		return parent
	}

	switch kind {
	case KindCreate:
		h.dispatch.Go("create:"+ev.TaskID, func(c context.Context) error {
			return h.create(jobCtx(c), ev)
		})
	case KindDrop:
		h.dispatch.Go("drop:"+ev.TaskID, func(c context.Context) error {
			return h.drop(jobCtx(c), ev.TaskID)
		})
	default:
		logger.Info("unsupported event ignored", logging.String(logging.FieldEventType, "event_ignored"))
		h.metrics.ObserveEvent(kind.String(), string(OutcomeIgnored))
		return OutcomeIgnored
	}
	logger.Info("event accepted", logging.String(logging.FieldEventType, "event_accepted"))
	h.metrics.ObserveEvent(kind.String(), string(OutcomeAccepted))
	return OutcomeAccepted
}

func (h *Handler) create(ctx context.Context, ev Event) error {
	logger := logging.WithContext(ctx, h.logger)
	folderPath := folders.PathFor(h.catalog, ev.TaskID, ev.TaskName, ev.HumanNumber)
	logger = logger.With(logging.String("folder_path", folderPath))

	j, err := h.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("create %s: %w", ev.TaskID, err)
	}

	if existing, ok := j.Get(ev.TaskID); ok {
		switch {
		case ev.Rename:
			return h.rename(ctx, logger, j, existing, folderPath)
		case ev.CreateAgain:
			logger.Info("recreating binding", logging.String("previous_share_id", existing.ShareID))
			h.links.Revoke(ctx, existing.ShareID)
			j.Delete(ev.TaskID)
		default:
			logger.Info("task already journaled; nothing to do",
				logging.String(logging.FieldEventType, "create_duplicate"),
			)
			return nil
		}
	}

	j.Put(journal.Binding{TaskID: ev.TaskID, FolderPath: folderPath})
	if err := h.store.Save(ctx, j); err != nil {
		return fmt.Errorf("create %s: %w", ev.TaskID, err)
	}

	if _, err := h.folders.Create(ctx, folderPath); err != nil {
		return nil
	}

	link, err := h.links.Create(ctx, ev.TaskID, folderPath)
	if err != nil {
		return err
	}
	if link.IsZero() {
		return nil
	}

	j, err = h.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("create %s: %w", ev.TaskID, err)
	}
	binding, ok := j.Get(ev.TaskID)
	if !ok {
		logging.WarnWithContext(logger, "task left the journal while its share was minted", "binding_vanished",
			logging.String("share_id", link.ShareID),
			logging.String(logging.FieldImpact, "share id not recorded"),
		)
		return nil
	}
	binding.ShareID = link.ShareID
	j.Put(binding)
	if err := h.store.Save(ctx, j); err != nil {
		return fmt.Errorf("create %s: %w", ev.TaskID, err)
	}
	logger.Info("binding recorded",
		logging.String("share_id", link.ShareID),
		logging.String(logging.FieldEventType, "binding_recorded"),
	)
	return nil
}

// rename persists the new path before the remote MOVE; a failed MOVE is not rolled back.
func (h *Handler) rename(ctx context.Context, logger *slog.Logger, j *journal.Journal, existing journal.Binding, folderPath string) error {
	if existing.FolderPath == folderPath {
		logger.Info("rename requested but path unchanged", logging.String(logging.FieldEventType, "rename_noop"))
		return nil
	}
	oldPath := existing.FolderPath
	existing.FolderPath = folderPath
	j.Put(existing)
	if err := h.store.Save(ctx, j); err != nil {
		return fmt.Errorf("rename %s: %w", existing.TaskID, err)
	}
	_ = h.folders.Rename(ctx, oldPath, folderPath)
	return nil
}

func (h *Handler) drop(ctx context.Context, taskID string) error {
	return h.links.Release(ctx, taskID, "")
}
