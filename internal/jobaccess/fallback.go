package jobaccess

import (
	"fmt"

	"tonearm/internal/ipc"
	"tonearm/internal/queue"
)

// Session represents a job access handle and its cleanup function.
type Session struct {
	Access Access
	// DialErr holds the IPC failure that caused a fallback to the store.
	DialErr error
	close   func() error
}

// Close releases resources associated with the session.
func (s Session) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenWithFallback tries IPC-backed access first, then falls back to direct
// store access.
func OpenWithFallback(
	dial func() (*ipc.Client, error),
	openStore func() (*queue.Store, error),
) (Session, error) {
	var dialErr error
	if dial != nil {
		client, err := dial()
		if err == nil {
			return Session{Access: NewIPCAccess(client), close: client.Close}, nil
		}
		dialErr = err
	}

	if openStore == nil {
		return Session{}, fmt.Errorf("open job store: no store opener configured")
	}
	store, err := openStore()
	if err != nil {
		return Session{}, fmt.Errorf("open job store: %w", err)
	}
	return Session{
		Access:  NewStoreAccess(store),
		DialErr: dialErr,
		close:   store.Close,
	}, nil
}
