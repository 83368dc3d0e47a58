package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openLong(t *testing.T) *Position {
	t.Helper()
	pos, err := NewPosition(
		Pair{From: "ETH", To: "USDT"},
		DirectionLong,
		decimal.NewFromInt(100),
		decimal.NewFromFloat(98.5),
		decimal.NewFromInt(103),
		decimal.NewFromInt(1000),
		decimal.NewFromInt(10),
		decimal.NewFromInt(15),
		time.Now().UTC(),
	)
	require.NoError(t, err)
	return pos
}

func TestNewPositionValidation(t *testing.T) {
	_, err := NewPosition(Pair{From: "ETH", To: "USDT"}, DirectionLong,
		decimal.NewFromInt(100), decimal.NewFromFloat(98.5), decimal.NewFromInt(103),
		decimal.NewFromInt(1000), decimal.Zero, decimal.NewFromInt(15), time.Now())
	require.Error(t, err)

	_, err = NewPosition(Pair{From: "ETH", To: "USDT"}, DirectionLong,
		decimal.Zero, decimal.NewFromFloat(98.5), decimal.NewFromInt(103),
		decimal.NewFromInt(1000), decimal.NewFromInt(10), decimal.NewFromInt(15), time.Now())
	require.Error(t, err)

	_, err = NewPosition(Pair{From: "ETH", To: "USDT"}, DirectionLong,
		decimal.NewFromInt(100), decimal.NewFromInt(100), decimal.NewFromInt(103),
		decimal.NewFromInt(1000), decimal.NewFromInt(10), decimal.NewFromInt(15), time.Now())
	require.Error(t, err)
}

func TestProgressInRUnits(t *testing.T) {
	pos := openLong(t)

	// stop distance is 1.5, so price 101.5 is exactly 1R in profit
	assert.True(t, pos.Progress(decimal.NewFromFloat(101.5)).Equal(decimal.NewFromInt(1)))
	assert.True(t, pos.Progress(decimal.NewFromInt(100)).IsZero())
	assert.True(t, pos.Progress(decimal.NewFromFloat(98.5)).Equal(decimal.NewFromInt(-1)))
}

func TestStopDistanceSurvivesBreakEven(t *testing.T) {
	pos := openLong(t)
	before := pos.StopDistance()

	require.True(t, pos.MoveStopToBreakEven())
	assert.True(t, pos.StopLoss.Equal(pos.EntryPrice))
	assert.True(t, pos.StopDistance().Equal(before))
	assert.True(t, pos.Progress(decimal.NewFromFloat(101.5)).Equal(decimal.NewFromInt(1)))

	// second move is a no-op
	assert.False(t, pos.MoveStopToBreakEven())
}

func TestMarkPartialExit(t *testing.T) {
	pos := openLong(t)

	require.True(t, pos.MarkPartialExit(decimal.NewFromFloat(0.7)))
	assert.True(t, pos.Contracts.Equal(decimal.NewFromInt(3)))
	assert.True(t, pos.ExitedContracts().Equal(decimal.NewFromInt(7)))

	// already applied
	assert.False(t, pos.MarkPartialExit(decimal.NewFromFloat(0.7)))
	assert.True(t, pos.Contracts.Equal(decimal.NewFromInt(3)))
}

func TestMarkPartialExitRejectsBadFraction(t *testing.T) {
	for _, fraction := range []decimal.Decimal{
		decimal.Zero,
		decimal.NewFromInt(-1),
		decimal.NewFromInt(1),
		decimal.NewFromFloat(1.5),
	} {
		pos := openLong(t)
		assert.False(t, pos.MarkPartialExit(fraction), "fraction %s", fraction)
		assert.True(t, pos.Contracts.Equal(pos.InitialContracts))
	}
}

func TestFavorablePercentShort(t *testing.T) {
	pos, err := NewPosition(
		Pair{From: "SOL", To: "USDT"},
		DirectionShort,
		decimal.NewFromInt(100),
		decimal.NewFromFloat(101.5),
		decimal.NewFromInt(97),
		decimal.NewFromInt(1000),
		decimal.NewFromInt(10),
		decimal.NewFromInt(15),
		time.Now().UTC(),
	)
	require.NoError(t, err)

	// price dropping is favorable for a short
	assert.True(t, pos.FavorablePercent(decimal.NewFromInt(98)).Equal(decimal.NewFromInt(2)))
	assert.True(t, pos.FavorablePercent(decimal.NewFromInt(101)).Equal(decimal.NewFromInt(-1)))
}
