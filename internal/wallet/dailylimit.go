package wallet

import (
	"encoding/binary"
	"time"

	"CoVault/internal/storage"
)

const secondsPerDay = 86400

// dailyLimitGuard arbitrates whether a payload-free transfer may bypass
// quorum. It tracks spending against a rolling daily allowance; the window
// resets lazily on first consultation after a day boundary, never by timer.
type dailyLimitGuard struct {
	db  *storage.Storage
	key []byte
	now func() time.Time

	dailyLimit   uint64
	spentToday   uint64
	lastResetDay uint64
}

// newDailyLimitGuard creates a guard with the given allowance.
func newDailyLimitGuard(db *storage.Storage, key []byte, dailyLimit uint64, now func() time.Time) *dailyLimitGuard {
	return &dailyLimitGuard{
		db:         db,
		key:        key,
		now:        now,
		dailyLimit: dailyLimit,
	}
}

// openDailyLimitGuard loads guard state persisted by a previous run.
func openDailyLimitGuard(db *storage.Storage, key []byte, now func() time.Time) (*dailyLimitGuard, error) {
	g := &dailyLimitGuard{db: db, key: key, now: now}

	value, err := g.db.Get(key)
	if err != nil {
		return nil, err
	}
	if len(value) == 24 {
		g.dailyLimit = binary.LittleEndian.Uint64(value[0:8])
		g.spentToday = binary.LittleEndian.Uint64(value[8:16])
		g.lastResetDay = binary.LittleEndian.Uint64(value[16:24])
	}

	return g, nil
}

// today returns the current day index.
func (g *dailyLimitGuard) today() uint64 {
	return uint64(g.now().Unix()) / secondsPerDay
}

// rollover resets the spent counter when the day has advanced.
func (g *dailyLimitGuard) rollover() {
	day := g.today()
	if day != g.lastResetDay {
		g.spentToday = 0
		g.lastResetDay = day
		g.persist()
	}
}

// tryApprove reports whether value may be spent immediately, bypassing
// quorum, and records the spend if so. Payload eligibility is the engine's
// check; the guard only arbitrates the amount. A denial mutates nothing.
func (g *dailyLimitGuard) tryApprove(value uint64) bool {
	g.rollover()

	if g.spentToday > g.dailyLimit {
		// Limit was lowered below what is already spent today.
		return false
	}
	if value > g.dailyLimit-g.spentToday {
		return false
	}

	g.spentToday += value
	g.persist()

	return true
}

// maxWithdraw returns how much may still bypass quorum today.
// Pure view: a pending day boundary is reported but not committed.
func (g *dailyLimitGuard) maxWithdraw() uint64 {
	if g.today() != g.lastResetDay {
		return g.dailyLimit
	}
	if g.spentToday > g.dailyLimit {
		return 0
	}

	return g.dailyLimit - g.spentToday
}

// setLimit changes the daily allowance. Lowering it below spentToday does
// not fail anything retroactively; maxWithdraw reports 0 until the reset.
func (g *dailyLimitGuard) setLimit(limit uint64) {
	g.dailyLimit = limit
	g.persist()
}

// persist writes the guard state: dailyLimit || spentToday || lastResetDay (u64 LE each).
func (g *dailyLimitGuard) persist() {
	buf := make([]byte, 24)
	binary.LittleEndian.PutUint64(buf[0:8], g.dailyLimit)
	binary.LittleEndian.PutUint64(buf[8:16], g.spentToday)
	binary.LittleEndian.PutUint64(buf[16:24], g.lastResetDay)

	_ = g.db.Set(g.key, buf)
}
