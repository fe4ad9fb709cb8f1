package fileutils

import (
	"context"
)

// WatchFile emits on the returned channel every time the fingerprint of
// the file at path changes. The file is checked on every tick.
func WatchFile(ctx context.Context, path string, ticker <-chan struct{}, onErr func(err error)) (<-chan struct{}, error) {
	ch := make(chan struct{})

	last, err := FingerprintFile(path)
	if err != nil {
		return nil, err
	}

	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-ticker:
				if !ok {
					return
				}
				current, err := FingerprintFile(path)
				if err != nil {
					onErr(err)
					continue
				}
				if current == last {
					continue
				}
				last = current
				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ch, nil
}
