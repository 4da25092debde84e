package clock

import (
	"crypto/rand"
	"sync"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

// ===== Clock =====

type Clock interface{ Now() time.Time }

type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Fixed はテスト用の固定時計
type Fixed struct{ T time.Time }

func NewFixed(t time.Time) Fixed { return Fixed{T: t} }

func (f Fixed) Now() time.Time { return f.T }

// ===== ID =====

type IDGen interface{ NewULID(t time.Time) string }

// ULIDGen は同一ミリ秒内でも単調増加する ULID を払い出す。
// ulid.Monotonic はスレッドセーフではないので mutex で守る。
type ULIDGen struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewULIDGen() *ULIDGen {
	return &ULIDGen{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *ULIDGen) NewULID(t time.Time) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t), g.entropy).String()
}
