package vectorindex

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pamin/idms/internal/core/domain"
)

// markerLock is a file-based mutual exclusion lock. The marker file is
// created with O_EXCL and tagged with the writer's pid, so independent
// processes coordinating on the same index honour it too.
type markerLock struct {
	path    string
	timeout time.Duration
	poll    time.Duration
}

func newMarkerLock(path string, timeout time.Duration) *markerLock {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &markerLock{path: path, timeout: timeout, poll: 500 * time.Millisecond}
}

// acquire waits (bounded by the timeout) for the marker to clear and
// then claims it. The returned release func is safe to call exactly
// once on every exit path.
func (l *markerLock) acquire(ctx context.Context) (func(), error) {
	deadline := time.Now().Add(l.timeout)
	for {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()))
			_ = f.Close()
			return func() { _ = os.Remove(l.path) }, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock marker: %w", err)
		}

		if time.Now().After(deadline) {
			return nil, domain.WrapError(domain.ErrLockTimeout, "acquire index lock",
				fmt.Errorf("marker %s held beyond %s", l.path, l.timeout))
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.poll):
		}
	}
}
