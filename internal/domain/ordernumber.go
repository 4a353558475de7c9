package domain

import (
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"
)

const (
	orderNumberPrefix = "FS"
	tailModulo        = 100_000_000
	suffixSpace       = 1000
)

var orderNumberPattern = regexp.MustCompile(`^FS\d{11}$`)

// ValidOrderNumber reports whether s has the FS + 8 digit + 3 digit shape.
func ValidOrderNumber(s string) bool {
	return orderNumberPattern.MatchString(s)
}

// OrderNumberGenerator issues FS + 8-digit millisecond tail + 3-digit random suffix numbers.
// Numbers issued by one generator never repeat: the millisecond never moves backwards, and once
// all suffixes of a millisecond are used the generator borrows the next one.
type OrderNumberGenerator struct {
	mu     sync.Mutex
	now    func() time.Time
	intn   func(n int) int
	lastMs int64
	used   map[int]struct{}
}

// NewOrderNumberGenerator creates a generator. Nil arguments select the wall clock and math/rand.
func NewOrderNumberGenerator(now func() time.Time, intn func(n int) int) *OrderNumberGenerator {
	if now == nil {
		now = time.Now
	}
	if intn == nil {
		intn = rand.Intn
	}
	return &OrderNumberGenerator{now: now, intn: intn, used: make(map[int]struct{}, 16)}
}

// Next returns a fresh order number.
func (g *OrderNumberGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms < g.lastMs {
		ms = g.lastMs
	}
	if ms == g.lastMs && len(g.used) >= suffixSpace {
		ms = g.lastMs + 1
	}
	if ms != g.lastMs {
		g.lastMs = ms
		clear(g.used)
	}

	suffix := g.intn(suffixSpace)
	for {
		if _, taken := g.used[suffix]; !taken {
			break
		}
		suffix = (suffix + 1) % suffixSpace
	}
	g.used[suffix] = struct{}{}

	return fmt.Sprintf("%s%08d%03d", orderNumberPrefix, ms%tailModulo, suffix)
}
