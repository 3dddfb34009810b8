package execution

import (
	"sync"
	"time"

	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// KillSwitch блокирует новые входы после аварийного закрытия.
// Выходы из позиций не блокируются.
type KillSwitch struct {
	mu          sync.RWMutex
	active      bool
	activatedAt time.Time
	reason      string
	logger      *utils.Logger
}

// NewKillSwitch создает новый kill switch
func NewKillSwitch(logger *utils.Logger) *KillSwitch {
	return &KillSwitch{logger: logger}
}

// Activate активирует kill switch
func (ks *KillSwitch) Activate(reason string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	ks.active = true
	ks.activatedAt = time.Now()
	ks.reason = reason

	ks.logger.Error("🚨 KILL SWITCH ACTIVATED: %s", reason)
}

// Deactivate снимает блокировку (при start/resume оператором)
func (ks *KillSwitch) Deactivate() {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if !ks.active {
		return
	}
	ks.active = false
	ks.reason = ""

	ks.logger.Info("✅ Kill switch deactivated")
}

// IsActive проверяет активен ли kill switch
func (ks *KillSwitch) IsActive() bool {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return ks.active
}

// GetStatus возвращает статус kill switch
func (ks *KillSwitch) GetStatus() (bool, string, time.Time) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	return ks.active, ks.reason, ks.activatedAt
}
