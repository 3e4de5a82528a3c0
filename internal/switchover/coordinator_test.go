package switchover

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medswitch/medswitch/internal/adapters"
	"github.com/medswitch/medswitch/internal/catalog"
	"github.com/medswitch/medswitch/internal/compose"
	"github.com/medswitch/medswitch/internal/config"
	"github.com/medswitch/medswitch/internal/conversation"
	"github.com/medswitch/medswitch/internal/executor"
	"github.com/medswitch/medswitch/internal/fallback"
	"github.com/medswitch/medswitch/internal/metrics"
	"github.com/medswitch/medswitch/internal/provider"
	"github.com/medswitch/medswitch/internal/store"
)

type fixture struct {
	coordinator *Coordinator
	selection   *Selection
	store       *conversation.Store

	primary   *adapters.Scripted
	secondary *adapters.Scripted
	summary   *adapters.Scripted
}

func newFixture(t *testing.T, sel *Selection) *fixture {
	t.Helper()

	registry, err := catalog.New([]config.ModelSpec{
		{ID: "m-a", Name: "Model A", Family: "fam-a", ContextWindow: 8192},
		{ID: "m-b", Name: "Model B", Family: "fam-b", ContextWindow: 8192},
		{ID: "m-sum", Name: "Summarizer", Family: "fam-sum", ContextWindow: 8192},
	}, nil)
	require.NoError(t, err)

	f := &fixture{
		selection: sel,
		store: conversation.NewStore(conversation.Config{
			MaxConversations:           10,
			MaxMessagesPerConversation: 20,
			TTL:                        time.Hour,
			SummaryWindow:              10,
		}, nil),
		primary:   adapters.NewScripted("fam-a").WithResponse("from a"),
		secondary: adapters.NewScripted("fam-b").WithResponse("from b"),
		summary:   adapters.NewScripted("fam-sum").WithResponse("patient reports headache"),
	}

	byFamily := map[string]provider.Adapter{
		"fam-a":   f.primary,
		"fam-b":   f.secondary,
		"fam-sum": f.summary,
	}
	exec := executor.New(byFamily, metrics.NewTracker(), nil, time.Second, false)
	chain, err := fallback.NewChain(nil)
	require.NoError(t, err)
	controller := fallback.NewController(chain, registry, exec, 2)
	composer := compose.New(f.store, nil, 10)

	f.coordinator = NewCoordinator(sel, registry, f.store, composer, controller, "m-sum")
	return f
}

func seedSession(f *fixture, sessionID string) {
	f.store.Append(sessionID,
		conversation.Message{Role: conversation.RoleUser, Content: "my head hurts"},
		conversation.Message{Role: conversation.RoleAssistant, Content: "since when?"},
	)
}

func TestSwitchCommitsWithContextTransfer(t *testing.T) {
	sel, err := NewSelection(nil, "m-a")
	require.NoError(t, err)
	f := newFixture(t, sel)
	seedSession(f, "s1")

	res := f.coordinator.Switch(context.Background(), "m-b", "s1", "user request")

	assert.True(t, res.Success)
	assert.Equal(t, "m-a", res.PreviousModel)
	assert.Equal(t, "m-b", res.CurrentModel)
	assert.True(t, res.ContextTransferred)
	assert.Equal(t, "m-b", sel.Current())

	// One summary call, one warm-up call on the target.
	assert.Equal(t, 1, f.summary.Calls())
	assert.Equal(t, 1, f.secondary.Calls())
}

func TestSwitchToUnknownModelLeavesSelection(t *testing.T) {
	sel, err := NewSelection(nil, "m-a")
	require.NoError(t, err)
	f := newFixture(t, sel)

	res := f.coordinator.Switch(context.Background(), "nope", "s1", "user request")

	assert.False(t, res.Success)
	assert.Equal(t, "m-a", res.CurrentModel)
	assert.Equal(t, "m-a", sel.Current())
	assert.NotEmpty(t, res.Error)
}

func TestSwitchToCurrentModelIsNoOp(t *testing.T) {
	sel, err := NewSelection(nil, "m-a")
	require.NoError(t, err)
	f := newFixture(t, sel)
	seedSession(f, "s1")

	res := f.coordinator.Switch(context.Background(), "m-a", "s1", "user request")

	assert.True(t, res.Success)
	assert.False(t, res.ContextTransferred)
	assert.Equal(t, 0, f.summary.Calls())
}

func TestEmptyHistorySkipsTransfer(t *testing.T) {
	sel, err := NewSelection(nil, "m-a")
	require.NoError(t, err)
	f := newFixture(t, sel)

	res := f.coordinator.Switch(context.Background(), "m-b", "empty-session", "user request")

	assert.True(t, res.Success)
	assert.False(t, res.ContextTransferred)
	assert.Equal(t, 0, f.summary.Calls())
	assert.Equal(t, 0, f.secondary.Calls())
	assert.Equal(t, "m-b", sel.Current())
}

func TestSummaryFailureDegradesButCommits(t *testing.T) {
	sel, err := NewSelection(nil, "m-a")
	require.NoError(t, err)
	f := newFixture(t, sel)
	seedSession(f, "s1")
	f.summary.WithError(errors.New("summarizer offline"))

	res := f.coordinator.Switch(context.Background(), "m-b", "s1", "user request")

	assert.True(t, res.Success)
	assert.False(t, res.ContextTransferred)
	assert.Equal(t, "m-b", sel.Current())
	assert.Equal(t, 0, f.secondary.Calls())
}

func TestWarmUpFailureDegradesButCommits(t *testing.T) {
	sel, err := NewSelection(nil, "m-a")
	require.NoError(t, err)
	f := newFixture(t, sel)
	seedSession(f, "s1")
	f.secondary.WithError(errors.New("target offline"))

	res := f.coordinator.Switch(context.Background(), "m-b", "s1", "user request")

	assert.True(t, res.Success)
	assert.False(t, res.ContextTransferred)
	assert.Equal(t, "m-b", sel.Current())
}

func TestPersistFailureKeepsPreviousSelection(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS current_selection").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT model_id FROM current_selection").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO current_selection").
		WillReturnError(errors.New("disk full"))

	st, err := store.NewWithDB(db)
	require.NoError(t, err)
	sel, err := NewSelection(st, "m-a")
	require.NoError(t, err)

	f := newFixture(t, sel)
	seedSession(f, "s1")

	res := f.coordinator.Switch(context.Background(), "m-b", "s1", "user request")

	assert.False(t, res.Success)
	assert.Equal(t, "m-a", res.CurrentModel)
	assert.Equal(t, "m-a", sel.Current())
	require.NoError(t, mock.ExpectationsWereMet())
}
