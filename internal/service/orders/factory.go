package orders

import (
	"context"
	"strings"
)

type actionFunc func(context.Context, Event) error

type actionFactory struct {
	byStatus map[string]actionFunc
}

func newActionFactory(onCreated, onStoreStatus, onCanceled actionFunc) *actionFactory {
	return &actionFactory{
		byStatus: map[string]actionFunc{
			"created":   onCreated,
			"confirmed": onStoreStatus,
			"preparing": onStoreStatus,
			"ready":     onStoreStatus,
			"canceled":  onCanceled,
			"cancelled": onCanceled,
			"deleted":   onCanceled,
		},
	}
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

func (f *actionFactory) get(status string) (actionFunc, bool) {
	fn, ok := f.byStatus[normalizeStatus(status)]
	return fn, ok
}
