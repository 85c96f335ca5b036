// Package lock serializes sync runs per device.
package lock

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrLocked is returned when another run holds the device
var ErrLocked = errors.New("device sync already in progress")

// Locker hands out one run slot per device.
// TryLock never waits; release must be called exactly once.
type Locker interface {
	TryLock(ctx context.Context, deviceID uuid.UUID) (release func(), err error)
}

// LocalLocker serializes runs inside one process
type LocalLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]struct{}
}

// NewLocalLocker creates an empty in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[uuid.UUID]struct{})}
}

func (l *LocalLocker) TryLock(ctx context.Context, deviceID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[deviceID]; busy {
		return nil, ErrLocked
	}
	l.held[deviceID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, deviceID)
			l.mu.Unlock()
		})
	}, nil
}

// PGAdvisoryLocker serializes runs across processes with PostgreSQL
// session-level advisory locks. Each held lock pins one pool connection.
type PGAdvisoryLocker struct {
	pool *pgxpool.Pool
}

// NewPGAdvisoryLocker connects a dedicated pool to dsn
func NewPGAdvisoryLocker(ctx context.Context, dsn string) (*PGAdvisoryLocker, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("lock pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("lock pool ping: %w", err)
	}
	return &PGAdvisoryLocker{pool: pool}, nil
}

func (l *PGAdvisoryLocker) TryLock(ctx context.Context, deviceID uuid.UUID) (func(), error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire lock connection: %w", err)
	}

	key := AdvisoryKey(deviceID)
	var ok bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&ok); err != nil {
		conn.Release()
		return nil, fmt.Errorf("pg_try_advisory_lock: %w", err)
	}
	if !ok {
		conn.Release()
		return nil, ErrLocked
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := conn.Exec(unlockCtx, "SELECT pg_advisory_unlock($1)", key); err != nil {
				// the lock dies with the session; drop the connection instead of reusing it
				log.Printf("⚠️ advisory unlock for device %s failed: %v", deviceID, err)
				conn.Conn().Close(unlockCtx)
			}
			conn.Release()
		})
	}, nil
}

// Close releases the pool
func (l *PGAdvisoryLocker) Close() {
	l.pool.Close()
}

// AdvisoryKey folds a device id into the bigint key space of advisory locks
func AdvisoryKey(deviceID uuid.UUID) int64 {
	hi := binary.BigEndian.Uint64(deviceID[:8])
	lo := binary.BigEndian.Uint64(deviceID[8:])
	return int64(hi ^ lo)
}
