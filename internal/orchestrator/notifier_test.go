package orchestrator

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/strategy"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

func TestMultiNotifier_FansOut(t *testing.T) {
	ctx := context.Background()
	first := &recordingNotifier{}
	multi := NewMultiNotifier(first, NewLogNotifier(utils.NewLoggerWithFormat("error", "json", io.Discard)))

	multi.Notify(ctx, "before")

	late := &recordingNotifier{}
	multi.Add(late)
	multi.Notify(ctx, "after")
	multi.NotifyExit(ctx, domain.Position{Code: "A"}, domain.ExitTP1)
	multi.NotifyScreening(ctx, &strategy.ScreeningResult{TradingDate: "2026-03-02"})

	assert.Equal(t, []string{"before", "after"}, first.texts)
	assert.Equal(t, []string{"after"}, late.texts)
	assert.Equal(t, []domain.ExitReason{domain.ExitTP1}, late.exits)
	assert.Len(t, late.screenings, 1)
}
