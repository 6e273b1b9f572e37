package auth

import (
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

// NonceSource produces strictly increasing nonces for signed requests.
type NonceSource interface {
	Next() (string, error)
}

// clockNonce derives nonces from wall-clock milliseconds, bumping by one when
// two requests land in the same millisecond. Monotonic only within a process;
// use PersistentNonceSource when nonces must survive restarts.
type clockNonce struct {
	mu    sync.Mutex
	clock clock.Clock
	last  int64
}

func NewClockNonce() NonceSource {
	return newClockNonce(clock.New())
}

func newClockNonce(c clock.Clock) *clockNonce {
	return &clockNonce{clock: c}
}

func (n *clockNonce) Next() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	nonce := n.clock.Now().UnixMilli()
	if nonce <= n.last {
		nonce = n.last + 1
	}
	n.last = nonce
	return strconv.FormatInt(nonce, 10), nil
}

const nonceKey = "last_nonce"

// PersistentNonceSource persists the last issued nonce in a write-ahead log
// so monotonicity holds across process restarts, even against a venue that
// rejects any nonce lower than the highest it has ever seen.
type PersistentNonceSource struct {
	mu    sync.Mutex
	clock clock.Clock
	wal   *gowal.Wal
	last  int64
}

func NewPersistentNonceSource(dir string) (*PersistentNonceSource, error) {
	return newPersistentNonceSource(dir, clock.New())
}

func newPersistentNonceSource(dir string, c clock.Clock) (*PersistentNonceSource, error) {
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "nonce_",
		SegmentThreshold: 10000,
		MaxSegments:      10,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open nonce log")
	}

	var last int64
	for msg := range wal.Iterator() {
		if msg.Key != nonceKey || len(msg.Value) != 8 {
			continue
		}
		if v := int64(binary.BigEndian.Uint64(msg.Value)); v > last {
			last = v
		}
	}

	return &PersistentNonceSource{clock: c, wal: wal, last: last}, nil
}

func (n *PersistentNonceSource) Next() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	nonce := n.clock.Now().UnixMilli()
	if nonce <= n.last {
		nonce = n.last + 1
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(nonce))
	if err := n.wal.Write(n.wal.CurrentIndex()+1, nonceKey, buf); err != nil {
		return "", errors.Wrap(err, "failed to persist nonce")
	}

	n.last = nonce
	return strconv.FormatInt(nonce, 10), nil
}

func (n *PersistentNonceSource) Close() error {
	return n.wal.Close()
}
