package archive

import (
	"context"
	"time"
)

// Archive keeps finalized record sets after they were returned to the caller.
type Archive interface {
	Record(ctx context.Context, session *Session) error
	List(ctx context.Context, limit int) ([]Session, error)
	Close() error
}

// Repository defines the interface for session storage
type Repository interface {
	Insert(ctx context.Context, session *Session) error
	List(ctx context.Context, limit int) ([]Session, error)
	Close() error
}

// Session is one start..stop logging run of a channel.
type Session struct {
	ID         string
	Channel    string
	StartedAt  time.Time
	StoppedAt  time.Time
	EntryCount int
	Payload    []byte
}
