package observability

import (
	"context"
	"sync"
)

type userHolderKey struct{}

type userHolder struct {
	mu  sync.Mutex
	uid string
}

func (h *userHolder) set(uid string) {
	h.mu.Lock()
	h.uid = uid
	h.mu.Unlock()
}

func (h *userHolder) get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.uid
}

func withUserHolder(ctx context.Context, h *userHolder) context.Context {
	return context.WithValue(ctx, userHolderKey{}, h)
}

func userHolderFrom(ctx context.Context) *userHolder {
	h, _ := ctx.Value(userHolderKey{}).(*userHolder)
	return h
}
