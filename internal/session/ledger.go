package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/mindx/internal/domain"
	"github.com/ashureev/mindx/internal/store"
)

// Ledger serializes every change to the progress record and saves the
// result after each one. Changes are functions of the current record, so a
// save that loses a version race is replayed on top of the stored record
// instead of overwriting it.
type Ledger struct {
	repo      store.Repository
	namespace string
	logger    *slog.Logger
	now       func() time.Time

	mu           sync.Mutex
	current      domain.Progress
	savedVersion int64
	warning      string
}

// OpenLedger loads the record for namespace, starting fresh when none exists.
func OpenLedger(ctx context.Context, repo store.Repository, namespace string, logger *slog.Logger) (*Ledger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Ledger{repo: repo, namespace: namespace, logger: logger, now: time.Now}

	p, err := repo.LoadProgress(ctx, namespace)
	switch {
	case err == nil:
		l.current = p
		l.savedVersion = p.Version
		logger.Info("progress restored", "namespace", namespace, "version", p.Version, "points", p.Points)
	case errors.Is(err, store.ErrNotFound):
		l.current = domain.NewProgress()
		logger.Info("no saved progress, starting fresh", "namespace", namespace)
	default:
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return l, nil
}

// Current returns a copy of the record.
func (l *Ledger) Current() domain.Progress {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.current.Clone()
}

// Update applies fn to a copy of the record, makes the result current and
// saves it. The in-memory record always advances; a non-nil error means the
// save failed and is also reported by PersistWarning.
func (l *Ledger) Update(ctx context.Context, fn func(*domain.Progress)) (domain.Progress, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.apply(l.current, fn)
	err := l.repo.SaveProgress(ctx, l.namespace, next, l.savedVersion)
	if errors.Is(err, store.ErrVersionConflict) {
		next, err = l.replay(ctx, fn)
	}
	l.current = next
	if err != nil {
		l.warning = "Progress could not be saved: " + err.Error()
		l.logger.Warn("failed to persist progress", "namespace", l.namespace, "version", next.Version, "error", err)
		return next.Clone(), fmt.Errorf("persist progress: %w", err)
	}
	l.savedVersion = next.Version
	l.warning = ""
	return next.Clone(), nil
}

// replay re-applies fn on top of the stored record after a version conflict.
func (l *Ledger) replay(ctx context.Context, fn func(*domain.Progress)) (domain.Progress, error) {
	stored, err := l.repo.LoadProgress(ctx, l.namespace)
	if err != nil {
		return l.apply(l.current, fn), fmt.Errorf("reload after version conflict: %w", err)
	}
	l.logger.Warn("progress version conflict, replaying update",
		"namespace", l.namespace,
		"expected_version", l.savedVersion,
		"stored_version", stored.Version,
	)
	next := l.apply(stored, fn)
	if err := l.repo.SaveProgress(ctx, l.namespace, next, stored.Version); err != nil {
		return next, err
	}
	return next, nil
}

func (l *Ledger) apply(base domain.Progress, fn func(*domain.Progress)) domain.Progress {
	next := base.Clone()
	fn(&next)
	next.Version = base.Version + 1
	next.UpdatedAt = l.now().UTC()
	return next
}

// PersistWarning returns the last save failure, or "" after a successful save.
func (l *Ledger) PersistWarning() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warning
}
