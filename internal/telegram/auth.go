package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// AuthManager управляет правами доступа и rate limiting
type AuthManager struct {
	mu              sync.Mutex
	adminIDs        map[int64]bool
	whitelist       map[int64]bool
	enableWhitelist bool
	limiters        map[int64]*userLimiter
	now             func() time.Time
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewAuthManager создает менеджер из списков ID через запятую
func NewAuthManager(adminIDsStr, whitelistStr string) *AuthManager {
	am := &AuthManager{
		adminIDs:  parseIDs(adminIDsStr),
		whitelist: parseIDs(whitelistStr),
		limiters:  make(map[int64]*userLimiter),
		now:       time.Now,
	}
	am.enableWhitelist = strings.TrimSpace(whitelistStr) != ""
	return am
}

func parseIDs(list string) map[int64]bool {
	ids := make(map[int64]bool)
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if id, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids[id] = true
		}
	}
	return ids
}

// IsAdmin проверяет, является ли пользователь администратором.
// Пустой список админов разрешает всем.
func (am *AuthManager) IsAdmin(userID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	if len(am.adminIDs) == 0 {
		return true
	}
	return am.adminIDs[userID]
}

// IsAllowed проверяет доступ к командам чтения
func (am *AuthManager) IsAllowed(userID int64) bool {
	am.mu.Lock()
	defer am.mu.Unlock()

	if !am.enableWhitelist {
		return true
	}
	return am.adminIDs[userID] || am.whitelist[userID]
}

// RequireAdmin возвращает ошибку, если пользователь не администратор
func (am *AuthManager) RequireAdmin(userID int64) error {
	if !am.IsAdmin(userID) {
		return fmt.Errorf("access denied: admin permission required")
	}
	return nil
}

// CheckRateLimit token bucket на пользователя: maxPerSecond запросов в секунду
func (am *AuthManager) CheckRateLimit(userID int64, maxPerSecond int) error {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	ul, ok := am.limiters[userID]
	if !ok {
		ul = &userLimiter{limiter: rate.NewLimiter(rate.Limit(maxPerSecond), maxPerSecond)}
		am.limiters[userID] = ul
	}
	ul.lastSeen = now

	r := ul.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return fmt.Errorf("rate limit exceeded, please wait %v", delay.Round(time.Millisecond))
	}
	return nil
}

// AdminIDs список ID администраторов
func (am *AuthManager) AdminIDs() []int64 {
	am.mu.Lock()
	defer am.mu.Unlock()

	ids := make([]int64, 0, len(am.adminIDs))
	for id := range am.adminIDs {
		ids = append(ids, id)
	}
	return ids
}

// CleanupRateLimiters удаляет лимитеры пользователей, неактивных дольше idle
func (am *AuthManager) CleanupRateLimiters(idle time.Duration) int {
	am.mu.Lock()
	defer am.mu.Unlock()

	now := am.now()
	removed := 0
	for userID, ul := range am.limiters {
		if now.Sub(ul.lastSeen) > idle {
			delete(am.limiters, userID)
			removed++
		}
	}
	return removed
}
