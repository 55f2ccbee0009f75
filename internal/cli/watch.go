package cli

import (
	"context"

	"github.com/dmitrijs2005/moments/internal/models"
)

// Watch toggles a subscription that prints a line whenever history changes.
func (a *App) Watch(ctx context.Context, args []string) error {
	a.mu.Lock()
	active := a.unwatch != nil
	a.mu.Unlock()

	if active {
		a.stopWatch()
		a.println("Stopped watching.")
		return nil
	}

	unsubscribe, err := a.svc.Subscribe(ctx, func(videos []models.Video) {
		a.printf("* history changed: %d videos, %d moments\n", len(videos), models.TotalMoments(videos))
	})
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.unwatch = unsubscribe
	a.mu.Unlock()

	a.println("Watching for changes (type 'watch' again to stop).")
	return nil
}

func (a *App) stopWatch() {
	a.mu.Lock()
	stop := a.unwatch
	a.unwatch = nil
	a.mu.Unlock()

	if stop != nil {
		stop()
	}
}
