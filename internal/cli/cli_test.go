package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/pawnshop/internal/migration"
	domain "github.com/Additional-Code/pawnshop/internal/pawn"
	"github.com/Additional-Code/pawnshop/internal/units"
	"github.com/Additional-Code/pawnshop/pkg/errorbank"
)

func TestRootCommandWiresSubcommands(t *testing.T) {
	root := NewRootCommand()

	for _, path := range [][]string{
		{"start"},
		{"run"},
		{"migrate", "up"},
		{"migrate", "down"},
		{"migrate", "status"},
		{"seed"},
		{"worker", "run"},
		{"orders", "list"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, strings.Join(path, " "))
		assert.NotEqual(t, root, cmd, strings.Join(path, " "))
	}
}

func TestOrdersListRejectsUnknownFilter(t *testing.T) {
	root := NewRootCommand()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"orders", "list", "--status", "archived"})

	err := root.Execute()
	require.Error(t, err)
	assert.True(t, errorbank.Is(err, errorbank.KindInvalidInput))
}

func TestPrintOrders(t *testing.T) {
	price, err := domain.ParseAmount("1500000000000000000")
	require.NoError(t, err)

	orders := []domain.Order{
		{ID: 1, ItemName: "car", Grade: domain.GradeGold, Status: domain.StatusPending, Price: price},
		{ID: 2, ItemName: "watch", Grade: domain.GradeSilver, Status: domain.StatusStaked, Price: price, StartDate: 1700000000},
	}

	var out bytes.Buffer
	require.NoError(t, printOrders(&out, orders, units.New(18)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "STATUS")
	assert.Contains(t, lines[1], "PENDING")
	assert.Contains(t, lines[1], "1.5")
	assert.True(t, strings.HasSuffix(lines[1], " -"), lines[1])
	assert.Contains(t, lines[2], domain.PhaseInProgress)
	assert.Contains(t, lines[2], "2023-11-14T22:13:20Z")
}

func TestPrintMigrations(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printMigrations(&out, []migration.State{
		{Version: 1, Path: "00001_create_pawn_ledger.sql", Applied: true, AppliedAt: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{Version: 2, Path: "00002_create_pawn_events.sql"},
	}))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "applied")
	assert.Contains(t, lines[1], "2024-03-01T00:00:00Z")
	assert.Contains(t, lines[2], "pending")
}
