package services

import (
	"context"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/pandeptwidyaop/macrosync/internal/codec"
	"github.com/pandeptwidyaop/macrosync/internal/config"
	"github.com/pandeptwidyaop/macrosync/internal/models"
	"github.com/pandeptwidyaop/macrosync/internal/remote"
	"github.com/pandeptwidyaop/macrosync/internal/validation"
)

// OutcomeKind classifies how an operation ended.
type OutcomeKind string

const (
	KindOK OutcomeKind = "ok"
	// KindRefused is a naming or collection rule that forbids the operation.
	KindRefused OutcomeKind = "refused"
	// KindRejected is operator input that could not be turned into a request.
	KindRejected  OutcomeKind = "rejected"
	KindTransport OutcomeKind = "transport"
	KindDecode    OutcomeKind = "decode"
	KindEncode    OutcomeKind = "encode"
)

// Outcome is what every coordinator operation reports back: a success flag,
// its kind and the human-readable status line shown to the operator.
type Outcome struct {
	OK      bool        `json:"ok"`
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message"`
}

// ActivityRecorder receives one entry per coordinator operation.
type ActivityRecorder interface {
	Log(entry AuditLog) error
}

// SnapshotSink stores documents read from or written to the device.
type SnapshotSink interface {
	Save(source, document string, macroCount int) (*Snapshot, error)
}

// SyncOptions holds the coordinator's timing and activation settings.
type SyncOptions struct {
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ApplyMode    string
	CommandFIFO  string
}

// SyncCoordinator owns the in-memory macro collection and sequences every
// read and write against the device's document store.
type SyncCoordinator struct {
	runner    remote.Runner
	policy    *PresetPolicy
	opts      SyncOptions
	logger    *zap.Logger
	audit     ActivityRecorder
	snapshots SnapshotSink

	mu          sync.RWMutex
	macros      []*models.Macro
	lastMessage string

	initialized atomic.Bool

	listenersMu sync.RWMutex
	listeners   []func(op string, out Outcome)
}

// NewSyncCoordinator creates a coordinator with an empty collection.
func NewSyncCoordinator(runner remote.Runner, policy *PresetPolicy, opts SyncOptions, logger *zap.Logger) *SyncCoordinator {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 6 * time.Second
	}
	if opts.ApplyMode == "" {
		opts.ApplyMode = config.ApplyModeFIFO
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncCoordinator{
		runner: runner,
		policy: policy,
		opts:   opts,
		logger: logger.Named("sync"),
		macros: []*models.Macro{},
	}
}

// SetAuditRecorder attaches an activity recorder.
func (c *SyncCoordinator) SetAuditRecorder(r ActivityRecorder) { c.audit = r }

// SetSnapshotSink attaches a snapshot store.
func (c *SyncCoordinator) SetSnapshotSink(s SnapshotSink) { c.snapshots = s }

// OnOutcome registers a listener called after every operation completes.
func (c *SyncCoordinator) OnOutcome(fn func(op string, out Outcome)) {
	c.listenersMu.Lock()
	c.listeners = append(c.listeners, fn)
	c.listenersMu.Unlock()
}

// Policy returns the preset naming policy in use.
func (c *SyncCoordinator) Policy() *PresetPolicy { return c.policy }

// Macros returns the live records in collection order. The slice is a copy;
// the records are not.
func (c *SyncCoordinator) Macros() []*models.Macro {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*models.Macro, len(c.macros))
	copy(out, c.macros)
	return out
}

// View runs fn with shared access to the collection. Records must not be
// retained or modified by fn; encoders use it to read a consistent document.
func (c *SyncCoordinator) View(fn func(macros []*models.Macro)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	macros := c.macros
	if macros == nil {
		macros = []*models.Macro{}
	}
	fn(macros)
}

// ReplaceMacros swaps the collection wholesale with consumer-supplied records.
func (c *SyncCoordinator) ReplaceMacros(macros []*models.Macro) {
	if macros == nil {
		macros = []*models.Macro{}
	}
	c.mu.Lock()
	c.macros = macros
	c.mu.Unlock()
}

// Update runs fn with exclusive access to the collection and stores the
// slice it returns. Consumers use it to serialize their edits.
func (c *SyncCoordinator) Update(fn func(macros []*models.Macro) []*models.Macro) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if next := fn(c.macros); next != nil {
		c.macros = next
	}
}

// LastMessage returns the status line of the most recent operation.
func (c *SyncCoordinator) LastMessage() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastMessage
}

// Initialized reports whether the first fetch of this session has run.
func (c *SyncCoordinator) Initialized() bool { return c.initialized.Load() }

// InitOnce performs the first fetch of a connected session. It returns false
// without doing anything when the session was already initialized.
func (c *SyncCoordinator) InitOnce(ctx context.Context) bool {
	if !c.initialized.CompareAndSwap(false, true) {
		return false
	}
	c.FetchSnapshot(ctx)
	return true
}

// ResetInitFlag makes the next InitOnce fetch again.
func (c *SyncCoordinator) ResetInitFlag() {
	c.initialized.Store(false)
}

// HandleConnectionChanged fetches once after a reconnect and re-arms the
// initial fetch after a disconnect.
func (c *SyncCoordinator) HandleConnectionChanged(ctx context.Context, connected bool) {
	if connected {
		c.InitOnce(ctx)
		return
	}
	c.ResetInitFlag()
}

// FetchSnapshot reads the active document and replaces the collection.
func (c *SyncCoordinator) FetchSnapshot(ctx context.Context) Outcome {
	return c.refresh(ctx, "fetch", c.policy.ActivePath(), c.policy.ActiveFile)
}

// Refresh is FetchSnapshot under the name consumers use after an apply.
func (c *SyncCoordinator) Refresh(ctx context.Context) Outcome {
	return c.FetchSnapshot(ctx)
}

// RefreshFrom reads an explicit document instead of the active one. target
// is either an absolute remote path or a file in the store directory.
func (c *SyncCoordinator) RefreshFrom(ctx context.Context, target string) Outcome {
	target = strings.TrimSpace(target)
	if target == "" {
		return c.FetchSnapshot(ctx)
	}
	if strings.HasPrefix(target, "/") {
		if err := validation.ValidatePath(target); err != nil {
			return c.finish(ctx, "refresh", target, KindRejected, fmt.Sprintf("PI ERR: invalid path %s: %v", target, err))
		}
		return c.refresh(ctx, "refresh", target, target)
	}
	file, err := c.policy.Resolve(target)
	if err != nil {
		return c.finish(ctx, "refresh", target, KindRejected, fmt.Sprintf("PI ERR: invalid file %s: %v", target, err))
	}
	return c.refresh(ctx, "refresh", c.policy.Path(file), file)
}

func (c *SyncCoordinator) refresh(ctx context.Context, op, remotePath, label string) Outcome {
	list, res, err := c.read(ctx, remotePath)
	if !res.Success {
		return c.finish(ctx, op, label, KindTransport, transportMessage("PI ERR", res))
	}
	if err != nil {
		return c.finish(ctx, op, label, KindDecode, "JSON PARSE ERR: "+err.Error())
	}
	c.replace(list)
	c.snapshot(op+":"+label, res.Stdout, len(list))
	return c.finish(ctx, op, label, KindOK, fmt.Sprintf("Loaded: %d macros", len(list)))
}

// read fetches and decodes a remote document. The collection is not touched.
func (c *SyncCoordinator) read(ctx context.Context, remotePath string) ([]*models.Macro, remote.Result, error) {
	res := c.runner.Run(ctx, "cat "+remote.Quote(remotePath), c.opts.ReadTimeout)
	if !res.Success {
		return nil, res, nil
	}
	list, err := codec.Decode(res.Stdout)
	return list, res, err
}

func (c *SyncCoordinator) replace(list []*models.Macro) {
	c.mu.Lock()
	c.macros = list
	c.mu.Unlock()
}

// SaveMacros writes the collection to the active document with a crash-safe replace.
func (c *SyncCoordinator) SaveMacros(ctx context.Context) Outcome {
	const op = "save"
	target := c.policy.ActiveFile

	text, count, blocked, err := c.encodeForRemote()
	if blocked != "" {
		return c.finish(ctx, op, target, KindRefused, "SAVE BLOCKED: "+blocked)
	}
	if err != nil {
		return c.finish(ctx, op, target, KindEncode, "SERIALIZE ERR: "+err.Error())
	}

	res := c.runner.RunWithInput(ctx, c.policy.WriteCommand(target), text, c.opts.WriteTimeout)
	if !res.Success {
		return c.finish(ctx, op, target, KindTransport, transportMessage("SAVE ERR", res))
	}
	c.snapshot(op+":"+target, text, count)
	return c.finish(ctx, op, target, KindOK, fmt.Sprintf("Saved: %d macros", count))
}

// encodeForRemote checks the collection is fit for the device and encodes it.
// A non-empty blocked string names the policy violation.
func (c *SyncCoordinator) encodeForRemote() (text string, count int, blocked string, err error) {
	c.View(func(list []*models.Macro) {
		if m, i := models.FirstInvalid(list); m != nil {
			blocked = fmt.Sprintf("macro %q step %d: %v", m.Name, i+1, models.ErrInvalidRange)
			return
		}
		text, err = codec.Encode(list)
		count = len(list)
	})
	if blocked != "" || err != nil {
		return "", 0, blocked, err
	}
	return text + "\n", count, "", nil
}

// ListPresetFiles lists preset file base names. No matches is a success.
func (c *SyncCoordinator) ListPresetFiles(ctx context.Context) ([]string, Outcome) {
	const op = "list"
	res := c.runner.Run(ctx, c.policy.ListCommand(), c.opts.ReadTimeout)
	if !res.Success {
		return []string{}, c.finish(ctx, op, c.policy.Glob, KindTransport, transportMessage("LIST ERR", res))
	}

	files := []string{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if line == "" {
			continue
		}
		base := path.Base(line)
		if c.policy.Accepts(base) {
			files = append(files, base)
		}
	}
	return files, c.finish(ctx, op, c.policy.Glob, KindOK, fmt.Sprintf("Preset list: %d", len(files)))
}

// LoadPreset reads a preset and replaces the collection with it.
func (c *SyncCoordinator) LoadPreset(ctx context.Context, name string) Outcome {
	const op = "load"
	file, err := c.policy.Resolve(name)
	if err != nil {
		return c.finish(ctx, op, name, KindRejected, fmt.Sprintf("LOAD ERR: invalid preset %q: %v", name, err))
	}

	list, res, err := c.read(ctx, c.policy.Path(file))
	if !res.Success {
		return c.finish(ctx, op, file, KindTransport, transportMessage("LOAD ERR", res))
	}
	if err != nil {
		return c.finish(ctx, op, file, KindDecode, "LOAD PARSE ERR: "+err.Error())
	}
	c.replace(list)
	c.snapshot(op+":"+file, res.Stdout, len(list))
	return c.finish(ctx, op, file, KindOK, fmt.Sprintf("Loaded preset: %s (%d macros)", file, len(list)))
}

// SavePreset writes the collection to a preset file. With applyAlso the
// preset is then copied over the active document; that second step only runs
// when the first succeeded.
func (c *SyncCoordinator) SavePreset(ctx context.Context, name string, applyAlso bool) Outcome {
	const op = "save_preset"
	file, err := c.policy.Normalize(name)
	if err != nil {
		return c.finish(ctx, op, name, KindRejected, fmt.Sprintf("SAVE ERR: invalid preset %q: %v", name, err))
	}
	if c.policy.IsProtected(file) {
		return c.finish(ctx, op, file, KindRefused, "SAVE BLOCKED: "+file)
	}

	text, count, blocked, err := c.encodeForRemote()
	if blocked != "" {
		return c.finish(ctx, op, file, KindRefused, "SAVE BLOCKED: "+blocked)
	}
	if err != nil {
		return c.finish(ctx, op, file, KindEncode, "SERIALIZE ERR: "+err.Error())
	}

	res := c.runner.RunWithInput(ctx, c.policy.WriteCommand(file), text, c.opts.WriteTimeout)
	if !res.Success {
		return c.finish(ctx, op, file, KindTransport, transportMessage("SAVE ERR", res))
	}
	c.snapshot(op+":"+file, text, count)

	if !applyAlso {
		return c.finish(ctx, op, file, KindOK, "Saved preset: "+file)
	}

	res = c.runner.Run(ctx, c.policy.CopyCommand(file, c.policy.ActiveFile), c.opts.WriteTimeout)
	if !res.Success {
		return c.finish(ctx, op, file, KindTransport, transportMessage("SAVED BUT APPLY ERR", res))
	}
	return c.finish(ctx, op, file, KindOK, "Saved preset + applied: "+file)
}

// ApplyPreset makes the named preset the active document, either through the
// device's command FIFO or by copying the file over the active path.
func (c *SyncCoordinator) ApplyPreset(ctx context.Context, name string) Outcome {
	const op = "apply"
	if strings.TrimSpace(name) == "" {
		return c.finish(ctx, op, name, KindRejected, "apply failed: empty preset")
	}
	file, err := c.policy.Resolve(name)
	if err != nil {
		return c.finish(ctx, op, name, KindRejected, "apply failed: invalid preset file: "+name)
	}
	display := c.policy.DisplayName(file)

	var res remote.Result
	switch c.opts.ApplyMode {
	case config.ApplyModeCopy:
		if file == c.policy.ActiveFile {
			return c.finish(ctx, op, file, KindOK, "Applied: "+display)
		}
		res = c.runner.Run(ctx, c.policy.CopyCommand(file, c.policy.ActiveFile), c.opts.WriteTimeout)
	default:
		res = c.runner.RunWithInput(ctx, "cat > "+remote.Quote(c.opts.CommandFIFO), "load "+display+"\n", c.opts.ReadTimeout)
	}
	if !res.Success {
		return c.finish(ctx, op, file, KindTransport, transportMessage("PI ERR", res))
	}
	return c.finish(ctx, op, file, KindOK, "Applied: "+display)
}

// DeletePreset removes a preset file. Protected names are refused without
// contacting the device.
func (c *SyncCoordinator) DeletePreset(ctx context.Context, name string) Outcome {
	const op = "delete"
	if strings.TrimSpace(name) == "" {
		return c.finish(ctx, op, name, KindRejected, "DELETE ERR: empty preset name")
	}
	file, err := c.policy.Resolve(name)
	if err != nil {
		return c.finish(ctx, op, name, KindRejected, fmt.Sprintf("DELETE ERR: invalid preset %q: %v", name, err))
	}
	if c.policy.IsProtected(file) {
		return c.finish(ctx, op, file, KindRefused, "DELETE BLOCKED: "+file)
	}

	res := c.runner.Run(ctx, "rm -f "+remote.Quote(c.policy.Path(file)), c.opts.WriteTimeout)
	if !res.Success {
		return c.finish(ctx, op, file, KindTransport, transportMessage("DELETE ERR", res))
	}
	return c.finish(ctx, op, file, KindOK, "Deleted preset: "+file)
}

// finish records the outcome as the last message and fans it out.
func (c *SyncCoordinator) finish(ctx context.Context, op, target string, kind OutcomeKind, msg string) Outcome {
	ok := kind == KindOK
	out := Outcome{OK: ok, Kind: kind, Message: msg}

	c.mu.Lock()
	c.lastMessage = msg
	c.mu.Unlock()

	if ok {
		c.logger.Info(msg, zap.String("op", op), zap.String("target", target))
	} else {
		c.logger.Warn(msg, zap.String("op", op), zap.String("target", target))
	}

	if c.audit != nil {
		actor := ActorFromContext(ctx)
		if err := c.audit.Log(AuditLog{
			Actor:     actor.Name,
			IPAddress: actor.IP,
			Action:    op,
			Target:    target,
			Success:   ok,
			Message:   msg,
		}); err != nil {
			c.logger.Warn("failed to record audit entry", zap.Error(err))
		}
	}

	c.listenersMu.RLock()
	listeners := c.listeners
	c.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(op, out)
	}
	return out
}

func (c *SyncCoordinator) snapshot(source, document string, count int) {
	if c.snapshots == nil {
		return
	}
	if _, err := c.snapshots.Save(source, document, count); err != nil {
		c.logger.Warn("failed to store snapshot", zap.String("source", source), zap.Error(err))
	}
}

func transportMessage(prefix string, res remote.Result) string {
	return fmt.Sprintf("%s(%d): %s", prefix, res.ExitCode, strings.TrimSpace(res.Stderr))
}
