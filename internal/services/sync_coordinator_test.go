package services_test

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pandeptwidyaop/macrosync/internal/codec"
	"github.com/pandeptwidyaop/macrosync/internal/config"
	"github.com/pandeptwidyaop/macrosync/internal/models"
	"github.com/pandeptwidyaop/macrosync/internal/remote"
	"github.com/pandeptwidyaop/macrosync/internal/services"
)

const twoMacros = `{"version":1,"macros":[
	{"name":"jump","memo":"","trigger":{"keys":["ALT","J"]},"steps":[{"type":"Tap","key":"SPACE"}]},
	{"name":"dash","trigger":{"keys":["ALT","D"]},"steps":[{"type":"Delay","minMs":50,"maxMs":130}]}
]}`

func newCoordinator(runner remote.Runner, mutate ...func(*services.SyncOptions)) *services.SyncCoordinator {
	cfg := config.Default()
	opts := services.SyncOptions{
		ReadTimeout:  cfg.Remote.GetReadTimeout(),
		WriteTimeout: cfg.Remote.GetWriteTimeout(),
		ApplyMode:    cfg.Store.ApplyMode,
		CommandFIFO:  cfg.Store.CommandFIFO,
	}
	for _, m := range mutate {
		m(&opts)
	}
	return services.NewSyncCoordinator(runner, services.NewPresetPolicy(cfg.Store), opts, nil)
}

func sample() []*models.Macro {
	return []*models.Macro{{
		Name:        "combo",
		TriggerKeys: []string{"CTRL", "Q"},
		Steps:       []*models.Step{models.NewTap("Q"), models.NewRandomDelay(20, 40)},
	}}
}

func TestSyncCoordinator_FetchSnapshot(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result { return ok(twoMacros) }}
	c := newCoordinator(runner)

	out := c.FetchSnapshot(context.Background())

	assert.True(t, out.OK)
	assert.Equal(t, "Loaded: 2 macros", out.Message)
	assert.Equal(t, out.Message, c.LastMessage())
	require.Len(t, c.Macros(), 2)
	assert.Equal(t, "Delay 50~130ms", c.Macros()[1].Steps[0].String())

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, `cat "/opt/bong_macro/macros.json"`, calls[0].Command)
	assert.Nil(t, calls[0].Stdin)
}

func TestSyncCoordinator_FetchFailurePreservesState(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result {
		return fail(1, "cat: /opt/bong_macro/macros.json: No such file or directory\n")
	}}
	c := newCoordinator(runner)
	before := sample()
	c.ReplaceMacros(before)

	out := c.FetchSnapshot(context.Background())

	assert.False(t, out.OK)
	assert.Equal(t, "PI ERR(1): cat: /opt/bong_macro/macros.json: No such file or directory", out.Message)
	after := c.Macros()
	require.Len(t, after, 1)
	assert.Same(t, before[0], after[0])
}

func TestSyncCoordinator_FetchParseErrorPreservesState(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result { return ok(`{"version":1,"macros":[`) }}
	c := newCoordinator(runner)
	before := sample()
	c.ReplaceMacros(before)

	out := c.Refresh(context.Background())

	assert.False(t, out.OK)
	assert.True(t, strings.HasPrefix(out.Message, "JSON PARSE ERR: "), out.Message)
	assert.Same(t, before[0], c.Macros()[0])
}

func TestSyncCoordinator_FetchBlankDocument(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result { return ok("  \n") }}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	out := c.FetchSnapshot(context.Background())

	assert.True(t, out.OK)
	assert.Equal(t, "Loaded: 0 macros", out.Message)
	assert.Empty(t, c.Macros())
}

func TestSyncCoordinator_RefreshFrom(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result { return ok(twoMacros) }}
	c := newCoordinator(runner)

	require.True(t, c.RefreshFrom(context.Background(), "/home/pi/backup.json").OK)
	require.True(t, c.RefreshFrom(context.Background(), "macros_game").OK)
	out := c.RefreshFrom(context.Background(), "/opt/../etc/shadow")
	assert.False(t, out.OK)

	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, `cat "/home/pi/backup.json"`, calls[0].Command)
	assert.Equal(t, `cat "/opt/bong_macro/macros_game.json"`, calls[1].Command)
}

func TestSyncCoordinator_SaveMacros(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	out := c.SaveMacros(context.Background())

	assert.True(t, out.OK)
	assert.Equal(t, "Saved: 1 macros", out.Message)

	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t,
		`mkdir -p "/opt/bong_macro" && cat > "/opt/bong_macro/macros.json.tmp" && mv "/opt/bong_macro/macros.json.tmp" "/opt/bong_macro/macros.json"`,
		calls[0].Command)
	require.NotNil(t, calls[0].Stdin)

	written, err := codec.Decode(*calls[0].Stdin)
	require.NoError(t, err)
	assert.Equal(t, sample(), written)
}

func TestSyncCoordinator_SaveMacrosTransportFailure(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result {
		return fail(255, "ssh: connect to host raspberrypi.local port 22: Connection refused\n")
	}}
	c := newCoordinator(runner)
	before := sample()
	c.ReplaceMacros(before)

	out := c.SaveMacros(context.Background())

	assert.False(t, out.OK)
	assert.Equal(t, "SAVE ERR(255): ssh: connect to host raspberrypi.local port 22: Connection refused", out.Message)
	assert.Same(t, before[0], c.Macros()[0])
}

func TestSyncCoordinator_SaveBlockedByInvalidRange(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)
	c.ReplaceMacros([]*models.Macro{{Name: "bad", Steps: []*models.Step{models.NewRandomDelay(300, 100)}}})

	out := c.SaveMacros(context.Background())
	assert.False(t, out.OK)
	assert.True(t, strings.HasPrefix(out.Message, "SAVE BLOCKED: "), out.Message)

	out = c.SavePreset(context.Background(), "macros_x", false)
	assert.False(t, out.OK)
	assert.True(t, strings.HasPrefix(out.Message, "SAVE BLOCKED: "), out.Message)

	assert.Empty(t, runner.Calls())
}

func TestSyncCoordinator_ListPresetFiles(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result {
		return ok("/opt/bong_macro/macros.json\r\n/opt/bong_macro/macros_game.json\n\n/opt/bong_macro/macros_fps.json\n")
	}}
	c := newCoordinator(runner)

	files, out := c.ListPresetFiles(context.Background())

	assert.True(t, out.OK)
	assert.Equal(t, "Preset list: 3", out.Message)
	assert.Equal(t, []string{"macros.json", "macros_game.json", "macros_fps.json"}, files)
	assert.Equal(t, `ls -1 "/opt/bong_macro"/macros*.json 2>/dev/null || true`, runner.Calls()[0].Command)
}

func TestSyncCoordinator_ListPresetFilesEmpty(t *testing.T) {
	c := newCoordinator(&fakeRunner{handler: func(int, string, *string) remote.Result { return ok("") }})

	files, out := c.ListPresetFiles(context.Background())

	assert.True(t, out.OK)
	assert.NotNil(t, files)
	assert.Empty(t, files)
	assert.Equal(t, "Preset list: 0", out.Message)
}

func TestSyncCoordinator_ListPresetFilesFailure(t *testing.T) {
	c := newCoordinator(&fakeRunner{handler: func(int, string, *string) remote.Result {
		return remote.Result{ExitCode: remote.ExitTimeout, Stderr: "timeout after 3s"}
	}})

	files, out := c.ListPresetFiles(context.Background())

	assert.False(t, out.OK)
	assert.Empty(t, files)
	assert.Equal(t, "LIST ERR(-2): timeout after 3s", out.Message)
}

func TestSyncCoordinator_LoadPreset(t *testing.T) {
	runner := &fakeRunner{handler: func(i int, cmd string, _ *string) remote.Result {
		switch {
		case strings.Contains(cmd, "macros_game.json"):
			return ok(twoMacros)
		case strings.Contains(cmd, "macros_broken.json"):
			return ok("{not json")
		default:
			return fail(1, "No such file")
		}
	}}
	c := newCoordinator(runner)
	before := sample()
	c.ReplaceMacros(before)

	out := c.LoadPreset(context.Background(), "macros_missing.json")
	assert.Equal(t, "LOAD ERR(1): No such file", out.Message)
	assert.Same(t, before[0], c.Macros()[0])

	out = c.LoadPreset(context.Background(), "macros_broken.json")
	assert.True(t, strings.HasPrefix(out.Message, "LOAD PARSE ERR: "), out.Message)
	assert.Same(t, before[0], c.Macros()[0])

	out = c.LoadPreset(context.Background(), "macros_game")
	assert.True(t, out.OK)
	assert.Equal(t, "Loaded preset: macros_game.json (2 macros)", out.Message)
	assert.Len(t, c.Macros(), 2)
}

func TestSyncCoordinator_SavePreset(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	out := c.SavePreset(context.Background(), "macros_game", false)

	assert.True(t, out.OK)
	assert.Equal(t, "Saved preset: macros_game.json", out.Message)
	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Command, `cat > "/opt/bong_macro/macros_game.json.tmp" && mv "/opt/bong_macro/macros_game.json.tmp" "/opt/bong_macro/macros_game.json"`)
}

func TestSyncCoordinator_SavePresetDefaultName(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	out := c.SavePreset(context.Background(), "  ", false)
	assert.Equal(t, "Saved preset: macros_new.json", out.Message)
}

func TestSyncCoordinator_SavePresetAndApply(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	out := c.SavePreset(context.Background(), "macros_game.json", true)

	assert.True(t, out.OK)
	assert.Equal(t, "Saved preset + applied: macros_game.json", out.Message)
	calls := runner.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t,
		`cp "/opt/bong_macro/macros_game.json" "/opt/bong_macro/macros.json.tmp" && mv "/opt/bong_macro/macros.json.tmp" "/opt/bong_macro/macros.json"`,
		calls[1].Command)
}

func TestSyncCoordinator_SavedButApplyFailed(t *testing.T) {
	runner := &fakeRunner{handler: func(i int, _ string, _ *string) remote.Result {
		if i == 1 {
			return fail(1, "cp: cannot stat\n")
		}
		return ok("")
	}}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	out := c.SavePreset(context.Background(), "macros_game.json", true)

	assert.False(t, out.OK)
	assert.Equal(t, "SAVED BUT APPLY ERR(1): cp: cannot stat", out.Message)
}

func TestSyncCoordinator_SavePresetFirstStepFailureSkipsApply(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result { return fail(1, "disk full") }}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	out := c.SavePreset(context.Background(), "macros_game.json", true)

	assert.Equal(t, "SAVE ERR(1): disk full", out.Message)
	assert.Len(t, runner.Calls(), 1)
}

func TestSyncCoordinator_SavePresetProtected(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	for _, name := range []string{"macros_active", "macros.json", "macros_active.json"} {
		out := c.SavePreset(context.Background(), name, false)
		assert.False(t, out.OK)
		assert.True(t, strings.HasPrefix(out.Message, "SAVE BLOCKED: "), out.Message)
	}
	assert.Empty(t, runner.Calls())
}

func TestSyncCoordinator_ApplyPresetFIFO(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)

	out := c.ApplyPreset(context.Background(), "macros_game.json")

	assert.True(t, out.OK)
	assert.Equal(t, "Applied: game", out.Message)
	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, `cat > "/tmp/proxykbd_cmd"`, calls[0].Command)
	require.NotNil(t, calls[0].Stdin)
	assert.Equal(t, "load game\n", *calls[0].Stdin)
}

func TestSyncCoordinator_ApplyPresetCopy(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner, func(o *services.SyncOptions) { o.ApplyMode = config.ApplyModeCopy })

	out := c.ApplyPreset(context.Background(), "macros_game.json")

	assert.True(t, out.OK)
	calls := runner.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t,
		`cp "/opt/bong_macro/macros_game.json" "/opt/bong_macro/macros.json.tmp" && mv "/opt/bong_macro/macros.json.tmp" "/opt/bong_macro/macros.json"`,
		calls[0].Command)
}

func TestSyncCoordinator_ApplyPresetFailures(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result {
		return remote.Result{ExitCode: remote.ExitTimeout, Stderr: "timeout after 3s"}
	}}
	c := newCoordinator(runner)

	assert.Equal(t, "apply failed: empty preset", c.ApplyPreset(context.Background(), " ").Message)
	assert.Equal(t, "apply failed: invalid preset file: ../x", c.ApplyPreset(context.Background(), "../x").Message)
	assert.Empty(t, runner.Calls())

	out := c.ApplyPreset(context.Background(), "macros_game.json")
	assert.False(t, out.OK)
	assert.Equal(t, "PI ERR(-2): timeout after 3s", out.Message)
}

func TestSyncCoordinator_DeleteProtectedNeverContactsDevice(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)

	for _, name := range []string{"macros.json", "macros_active.json", "default", "MACROS.JSON"} {
		out := c.DeletePreset(context.Background(), name)
		assert.False(t, out.OK)
		assert.True(t, strings.HasPrefix(out.Message, "DELETE BLOCKED: "), out.Message)
	}
	assert.Equal(t, "DELETE BLOCKED: macros.json", c.DeletePreset(context.Background(), "macros.json").Message)
	assert.Equal(t, "DELETE ERR: empty preset name", c.DeletePreset(context.Background(), "").Message)
	assert.Empty(t, runner.Calls())
}

func TestSyncCoordinator_DeletePreset(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)

	out := c.DeletePreset(context.Background(), "macros_game")

	assert.True(t, out.OK)
	assert.Equal(t, "Deleted preset: macros_game.json", out.Message)
	assert.Equal(t, `rm -f "/opt/bong_macro/macros_game.json"`, runner.Calls()[0].Command)
}

func TestSyncCoordinator_DeletePresetFailure(t *testing.T) {
	c := newCoordinator(&fakeRunner{handler: func(int, string, *string) remote.Result {
		return fail(1, "rm: cannot remove: Permission denied")
	}})

	out := c.DeletePreset(context.Background(), "macros_game.json")
	assert.Equal(t, "DELETE ERR(1): rm: cannot remove: Permission denied", out.Message)
}

func TestSyncCoordinator_InitOnce(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result { return ok(twoMacros) }}
	c := newCoordinator(runner)
	ctx := context.Background()

	assert.True(t, c.InitOnce(ctx))
	assert.True(t, c.Initialized())
	assert.False(t, c.InitOnce(ctx))
	assert.Len(t, runner.Calls(), 1)

	c.HandleConnectionChanged(ctx, false)
	assert.False(t, c.Initialized())

	c.HandleConnectionChanged(ctx, true)
	assert.Len(t, runner.Calls(), 2)
	c.HandleConnectionChanged(ctx, true)
	assert.Len(t, runner.Calls(), 2)
}

func TestSyncCoordinator_InitOnceAfterFailedFetch(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result { return fail(255, "unreachable") }}
	c := newCoordinator(runner)

	assert.True(t, c.InitOnce(context.Background()))
	assert.False(t, c.InitOnce(context.Background()))
	assert.Equal(t, "PI ERR(255): unreachable", c.LastMessage())

	c.ResetInitFlag()
	assert.True(t, c.InitOnce(context.Background()))
}

func TestSyncCoordinator_AuditAndListeners(t *testing.T) {
	runner := &fakeRunner{handler: func(int, string, *string) remote.Result { return ok(twoMacros) }}
	c := newCoordinator(runner)
	rec := &auditRecorder{}
	c.SetAuditRecorder(rec)

	var ops []string
	c.OnOutcome(func(op string, out services.Outcome) { ops = append(ops, op+":"+out.Message) })

	ctx := services.WithActor(context.Background(), services.Actor{Name: "token", IP: "10.0.0.9"})
	c.FetchSnapshot(ctx)
	c.DeletePreset(context.Background(), "macros.json")

	assert.Equal(t, []string{"fetch:Loaded: 2 macros", "delete:DELETE BLOCKED: macros.json"}, ops)
	require.Len(t, rec.entries, 2)
	assert.Equal(t, services.AuditLog{
		Actor: "token", IPAddress: "10.0.0.9", Action: "fetch", Target: "macros.json",
		Message: "Loaded: 2 macros", Success: true,
	}, rec.entries[0])
	assert.Equal(t, "system", rec.entries[1].Actor)
	assert.False(t, rec.entries[1].Success)
}

func TestSyncCoordinator_Update(t *testing.T) {
	c := newCoordinator(&fakeRunner{})
	c.ReplaceMacros(sample())

	c.Update(func(list []*models.Macro) []*models.Macro {
		return append(list, models.NewDefaultMacro(2))
	})

	names := []string{}
	for _, m := range c.Macros() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"combo", "NewMacro2"}, names)
}

func TestSyncCoordinator_SavedPresetNameMatchesListAndApply(t *testing.T) {
	runner := &fakeRunner{handler: func(_ int, command string, _ *string) remote.Result {
		if strings.HasPrefix(command, "ls ") {
			return ok("/opt/bong_macro/macros.json\n/opt/bong_macro/macros_game.json\n")
		}
		return ok("")
	}}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	out := c.SavePreset(context.Background(), "game", false)
	require.True(t, out.OK, out.Message)
	assert.Equal(t, "Saved preset: macros_game.json", out.Message)

	files, _ := c.ListPresetFiles(context.Background())
	assert.Contains(t, files, "macros_game.json")

	out = c.ApplyPreset(context.Background(), "game")
	require.True(t, out.OK, out.Message)
	calls := runner.Calls()
	require.NotNil(t, calls[len(calls)-1].Stdin)
	assert.Equal(t, "load game\n", *calls[len(calls)-1].Stdin)
}

func TestSyncCoordinator_OutcomeKinds(t *testing.T) {
	runner := &fakeRunner{handler: func(_ int, command string, _ *string) remote.Result {
		if strings.Contains(command, "broken") {
			return ok("{oops")
		}
		return fail(1, "cat: empty file")
	}}
	c := newCoordinator(runner)

	assert.Equal(t, services.KindTransport, c.FetchSnapshot(context.Background()).Kind)
	assert.Equal(t, services.KindDecode, c.LoadPreset(context.Background(), "macros_broken").Kind)
	assert.Equal(t, services.KindRejected, c.ApplyPreset(context.Background(), "../x").Kind)
	assert.Equal(t, services.KindRefused, c.DeletePreset(context.Background(), "default").Kind)

	runner.handler = nil
	out := c.DeletePreset(context.Background(), "macros_game")
	assert.True(t, out.OK)
	assert.Equal(t, services.KindOK, out.Kind)
}

func TestSyncCoordinator_SaveWhileEditing(t *testing.T) {
	runner := &fakeRunner{}
	c := newCoordinator(runner)
	c.ReplaceMacros(sample())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			c.Update(func(ms []*models.Macro) []*models.Macro {
				ms[0].Name = fmt.Sprintf("combo%d", i)
				ms[0].TriggerKeys = []string{"CTRL", "Q"}
				return nil
			})
		}
	}()
	for i := 0; i < 50; i++ {
		out := c.SaveMacros(context.Background())
		require.True(t, out.OK, out.Message)
	}
	<-done

	for _, call := range runner.Calls() {
		require.NotNil(t, call.Stdin)
		list, err := codec.Decode(*call.Stdin)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, []string{"CTRL", "Q"}, list[0].TriggerKeys)
	}
}
