// Package orchestrator implements the coordinator's startup and
// shutdown state machine: preflight checks, sync-daemon consultation,
// lock acquisition with race-window verification, the child process
// lifecycle, and the reverse teardown sequence run from any exit path
// (normal quit, a failed startup step, or a signal).
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/mshontz/mc-coordinator/internal/child"
	"github.com/mshontz/mc-coordinator/internal/config"
	"github.com/mshontz/mc-coordinator/internal/console"
	"github.com/mshontz/mc-coordinator/internal/integrity"
	"github.com/mshontz/mc-coordinator/internal/lock"
	"github.com/mshontz/mc-coordinator/internal/preflight"
	"github.com/mshontz/mc-coordinator/internal/snapshot"
	"github.com/mshontz/mc-coordinator/internal/syncclient"
	"github.com/mshontz/mc-coordinator/internal/ui"
	"github.com/mshontz/mc-coordinator/internal/worker"
)

// Orchestrator wires every subsystem together and drives the startup
// (S0-S7) and shutdown (T0-T6) sequences over them.
type Orchestrator struct {
	Config *config.Config
	Log    zerolog.Logger
	IO     ui.IO

	Lock      *lock.Manager
	Sync      *syncclient.Client // nil when syncthing.api_key is unset: sync management is disabled
	Snapshots *snapshot.Manager
	Child     *child.Supervisor

	heartbeat    *worker.Supervised
	syncPaused   bool
	shutdownMu   sync.Mutex
	shutdownDone bool
}

// New builds an Orchestrator from a validated Config.
func New(cfg *config.Config, logger zerolog.Logger) *Orchestrator {
	var syncClient *syncclient.Client
	if cfg.Syncthing.APIKey != "" {
		syncClient = syncclient.New(cfg.Syncthing.URL, cfg.Syncthing.APIKey, cfg.Syncthing.FolderID)
	}

	return &Orchestrator{
		Config: cfg,
		Log:    logger,
		IO:     ui.IO{In: os.Stdin, Out: os.Stdout},
		Lock:   lock.New(cfg.LockFile(), cfg.Safety.HeartbeatInterval(), cfg.Safety.StaleThreshold()),
		Sync:   syncClient,
		Snapshots: snapshot.New(cfg.Backup.Folder, cfg.WorldFolder(), cfg.Backup.AutoPrune,
			cfg.Backup.KeepMinimum, cfg.Backup.KeepDays),
		Child: child.New(child.Config{
			JavaPath:   cfg.Server.JavaPath,
			JarPath:    cfg.ServerJar(),
			WorkDir:    cfg.Server.Folder,
			JVMArgs:    buildJVMArgs(cfg.Server),
			ServerArgs: []string{"nogui"},
		}),
	}
}

func buildJVMArgs(s config.Server) []string {
	var args []string
	if s.MinMemory != "" {
		args = append(args, "-Xms"+s.MinMemory)
	}
	if s.MaxMemory != "" {
		args = append(args, "-Xmx"+s.MaxMemory)
	}
	args = append(args, s.ExtraArgs...)
	return args
}

// PreflightChecks runs S0: jar/java/backup-dir/disk-space checks, plus
// a sync-daemon reachability probe when sync management is enabled.
func (o *Orchestrator) PreflightChecks(ctx context.Context) preflight.Report {
	cfg := preflight.Config{
		JarPath:   o.Config.ServerJar(),
		JavaPath:  o.Config.Server.JavaPath,
		BackupDir: o.Config.Backup.Folder,
	}
	if o.Sync != nil {
		cfg.CheckSyncDaemon = o.Sync.CheckConnection
	}
	report := preflight.Run(ctx, cfg)
	for _, r := range report.Checks {
		fmt.Fprintf(o.IO.Out, "  [%s] %s: %s\n", r.Status, r.Name, r.Message)
	}
	return report
}

// CheckSyncStatus runs S1: if sync management is disabled this is a
// no-op success. Otherwise it consults the sync daemon's folder status
// and waits out an in-progress sync, offering the operator an override
// on any error or timeout.
func (o *Orchestrator) CheckSyncStatus(ctx context.Context) bool {
	if o.Sync == nil {
		return true
	}

	status, err := o.Sync.GetFolderStatus(ctx)
	if err != nil {
		fmt.Fprintf(o.IO.Out, "[mc-coordinator] Sync daemon unreachable or errored: %v\n", err)
		ok, _ := o.IO.Confirm("Proceed without sync management? (risky)", false)
		return ok
	}

	if status.IsSynced() {
		fmt.Fprintln(o.IO.Out, "[mc-coordinator] Sync daemon: up to date")
		return true
	}
	if status.HasErrors() {
		fmt.Fprintf(o.IO.Out, "[mc-coordinator] Sync daemon reports errors (errors=%d pullErrors=%d)\n",
			status.Errors, status.PullErrors)
		ok, _ := o.IO.Confirm("Proceed anyway?", false)
		return ok
	}
	if status.IsSyncing() {
		fmt.Fprintln(o.IO.Out, "[mc-coordinator] Sync daemon is currently syncing...")
		if err := o.Sync.WaitForSync(ctx, o.Config.Safety.SyncWaitTimeout(), 2*time.Second); err != nil {
			fmt.Fprintf(o.IO.Out, "[mc-coordinator] Sync wait timed out: %v\n", err)
			ok, _ := o.IO.Confirm("Proceed anyway?", false)
			return ok
		}
		return true
	}
	fmt.Fprintf(o.IO.Out, "[mc-coordinator] Sync daemon state: %s\n", status.State)
	return true
}

// HandleLock runs S2: classify the current lock file and branch on
// free / owned / other_active / other_stale.
func (o *Orchestrator) HandleLock(ctx context.Context) bool {
	status, rec, err := o.Lock.CheckStatus()
	if err != nil {
		fmt.Fprintf(o.IO.Out, "[mc-coordinator] Failed to read lock file: %v\n", err)
		return false
	}

	switch status {
	case lock.StatusFree:
		fmt.Fprintln(o.IO.Out, "[mc-coordinator] No existing lock file found")
		return true
	case lock.StatusOwned:
		return o.handleOwnCrash(rec)
	case lock.StatusOtherActive:
		fmt.Fprintln(o.IO.Out, "\n[mc-coordinator] Server is already running!")
		fmt.Fprintf(o.IO.Out, "  Hostname:  %s\n", rec.Hostname)
		fmt.Fprintf(o.IO.Out, "  Started:   %s\n", rec.StartedAt)
		fmt.Fprintf(o.IO.Out, "  Heartbeat: %.0fs ago\n", rec.HeartbeatAge())
		fmt.Fprintln(o.IO.Out, "\nCannot start while another machine is hosting.")
		return false
	case lock.StatusOtherStale:
		return o.handleOtherCrash(rec)
	default:
		return false
	}
}

func (o *Orchestrator) handleOwnCrash(rec *lock.Record) bool {
	fmt.Fprintln(o.IO.Out, "\n[mc-coordinator] Detected unclean shutdown from previous session")
	fmt.Fprintf(o.IO.Out, "  Started:   %s\n", rec.StartedAt)
	fmt.Fprintf(o.IO.Out, "  Last seen: %s\n", rec.LastHeartbeat)

	report := o.runIntegrityCheck()

	var options []string
	if report.HasIssues() {
		options = []string{
			"Recover: clean up lock and proceed with startup",
			"Restore: restore from a backup before starting",
			"Abort: exit without changes",
		}
	} else {
		options = []string{
			"Recover: clean up lock and proceed with startup",
			"Abort: exit without changes",
		}
	}

	choice, _ := o.IO.Select("What would you like to do?", options)
	switch {
	case choice == 0:
		return o.Lock.Delete() == nil
	case report.HasIssues() && choice == 1:
		if o.restoreBackupInteractive() {
			return o.Lock.Delete() == nil
		}
		return false
	default:
		return false
	}
}

func (o *Orchestrator) handleOtherCrash(rec *lock.Record) bool {
	fmt.Fprintln(o.IO.Out, "\n[mc-coordinator] Another machine appears to have crashed")
	fmt.Fprintf(o.IO.Out, "  Hostname:  %s\n", rec.Hostname)
	fmt.Fprintf(o.IO.Out, "  Started:   %s\n", rec.StartedAt)
	fmt.Fprintf(o.IO.Out, "  Last seen: %s (%.0fs ago)\n", rec.LastHeartbeat, rec.HeartbeatAge())

	report := o.runIntegrityCheck()

	takeOver, _ := o.IO.Confirm("\nTake over and start the server?", false)
	if !takeOver {
		return false
	}

	if !report.HasIssues() {
		return o.Lock.Delete() == nil
	}

	choice, _ := o.IO.Select("World has issues. What would you like to do?", []string{
		"Continue: proceed with current world",
		"Restore: restore from a backup first",
		"Abort: exit without changes",
	})
	switch choice {
	case 0:
		return o.Lock.Delete() == nil
	case 1:
		if o.restoreBackupInteractive() {
			return o.Lock.Delete() == nil
		}
		return false
	default:
		return false
	}
}

func (o *Orchestrator) runIntegrityCheck() integrity.Report {
	fmt.Fprintln(o.IO.Out, "\n[mc-coordinator] Running world integrity check...")
	report := integrity.CheckWorldIntegrity(o.Config.WorldFolder())
	fmt.Fprintln(o.IO.Out, report.Summary())
	return report
}

func (o *Orchestrator) restoreBackupInteractive() bool {
	backups, err := o.Snapshots.List()
	if err != nil || len(backups) == 0 {
		fmt.Fprintln(o.IO.Out, "No backups available!")
		return false
	}

	options := make([]string, len(backups))
	for i, b := range backups {
		options[i] = b.String()
	}
	choice, _ := o.IO.Select("Select a backup to restore", options)
	if choice < 0 {
		return false
	}

	confirmed, _ := o.IO.Confirm(fmt.Sprintf("Restore backup from %s?", backups[choice].Timestamp), false)
	if !confirmed {
		return false
	}
	if err := o.Snapshots.Restore(backups[choice]); err != nil {
		fmt.Fprintf(o.IO.Out, "Restore failed: %v\n", err)
		return false
	}
	return true
}

// PreStartBackup runs S3: snapshot the world if it has changed since
// the last backup, offering an override if the snapshot attempt fails.
func (o *Orchestrator) PreStartBackup() bool {
	if _, err := os.Stat(o.Config.WorldFolder()); err != nil {
		return true // no world folder yet, nothing to snapshot
	}

	changed, err := o.Snapshots.WorldChangedSinceBackup()
	if err != nil || !changed {
		fmt.Fprintln(o.IO.Out, "[mc-coordinator] World unchanged since last backup, skipping")
		return true
	}

	fmt.Fprintln(o.IO.Out, "[mc-coordinator] World has changed since last backup")
	if _, err := o.Snapshots.Create(); err != nil {
		fmt.Fprintf(o.IO.Out, "[mc-coordinator] Backup failed: %v\n", err)
		ok, _ := o.IO.Confirm("Continue without backup?", false)
		return ok
	}
	return true
}

// AcquireLock runs S4: write a placeholder lock record, wait out the
// race window, then re-read and confirm this host still owns it.
func (o *Orchestrator) AcquireLock() bool {
	fmt.Fprintf(o.IO.Out, "[mc-coordinator] Created lock file, waiting %s for sync...\n",
		o.Config.Safety.RaceWait())

	won, err := o.Lock.Acquire(o.Config.Safety.RaceWait(), nil)
	if err != nil {
		fmt.Fprintf(o.IO.Out, "[mc-coordinator] Failed to acquire lock: %v\n", err)
		return false
	}
	if !won {
		fmt.Fprintln(o.IO.Out, "[mc-coordinator] Race condition! Lock claimed by another host")
		return false
	}
	fmt.Fprintln(o.IO.Out, "[mc-coordinator] Lock verified")
	return true
}

// PauseSync runs S5: pause the sync daemon now that lock ownership is
// confirmed and the child is about to start writing world data.
func (o *Orchestrator) PauseSync(ctx context.Context) bool {
	if o.Sync == nil {
		return true
	}
	if err := o.Sync.PauseFolder(ctx); err != nil {
		fmt.Fprintf(o.IO.Out, "[mc-coordinator] Failed to pause sync daemon: %v\n", err)
		ok, _ := o.IO.Confirm("Continue anyway?", false)
		return ok
	}
	o.syncPaused = true
	return true
}

// StartServer runs S6: launch the child process and update the lock
// file with its real pid.
func (o *Orchestrator) StartServer() bool {
	if err := o.Child.Start(); err != nil {
		fmt.Fprintf(o.IO.Out, "[mc-coordinator] Failed to start server: %v\n", err)
		return false
	}
	if err := o.Lock.UpdatePID(o.Child.PID()); err != nil {
		o.Log.Warn().Err(err).Msg("failed to write real pid to lock file")
	}
	fmt.Fprintf(o.IO.Out, "[mc-coordinator] Server started (PID: %d)\n", o.Child.PID())
	o.Log.Info().Int("pid", o.Child.PID()).Msg("server started")
	return true
}

// StartHeartbeat runs S7's heartbeat half: a background ticker that
// keeps the lock file's last_heartbeat fresh for as long as this host
// hosts the server.
func (o *Orchestrator) StartHeartbeat() {
	o.heartbeat = worker.Start("lock-heartbeat", &worker.TickerService{
		ServiceName: "lock-heartbeat",
		Interval:    o.Config.Safety.HeartbeatInterval(),
		Fn: func(ctx context.Context) error {
			return o.Lock.UpdateHeartbeat()
		},
		OnError: func(err error) {
			o.Log.Warn().Err(err).Msg("heartbeat update failed")
		},
	})
}

// RunInteractive executes the full S0-S7 startup sequence, runs the
// interactive console on success, installs signal handlers that invoke
// Shutdown exactly once, and returns a process exit code.
func (o *Orchestrator) RunInteractive(ctx context.Context) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	// Whichever path runs the shutdown sequence first (signal, console
	// quit, or the final call below) records a non-zero exit code here;
	// the repeated calls that follow return 0 and must not mask it.
	var codeMu sync.Mutex
	exitCode := 0
	shutdown := func() {
		if c := o.Shutdown(); c != 0 {
			codeMu.Lock()
			exitCode = c
			codeMu.Unlock()
		}
	}
	go func() {
		<-ctx.Done()
		fmt.Fprintln(o.IO.Out, "\n[mc-coordinator] Received shutdown signal")
		shutdown()
	}()

	fmt.Fprintln(o.IO.Out, "\nRunning pre-flight checks...")
	if !o.PreflightChecks(ctx).Healthy() {
		return 1
	}
	if !o.CheckSyncStatus(ctx) {
		return 1
	}
	if !o.HandleLock(ctx) {
		return 1
	}
	if !o.PreStartBackup() {
		return 1
	}
	if !o.AcquireLock() {
		return 1
	}
	if !o.PauseSync(ctx) {
		_ = o.Lock.Delete()
		return 1
	}
	if !o.StartServer() {
		_ = o.Lock.Delete()
		o.resumeSync(ctx)
		return 1
	}
	o.StartHeartbeat()

	con := console.New(o.Child, o.Snapshots, o.Sync, shutdown, o.IO.Out, o.IO.In)
	con.Start(ctx)

	shutdown()
	codeMu.Lock()
	defer codeMu.Unlock()
	return exitCode
}

// Shutdown runs T0-T6: stop the child, stop the heartbeat, snapshot,
// release the lock, prune, resume sync, release pipe resources. It is
// idempotent: concurrent or repeated calls (console quit racing a
// signal) only run the sequence once.
func (o *Orchestrator) Shutdown() int {
	o.shutdownMu.Lock()
	if o.shutdownDone {
		o.shutdownMu.Unlock()
		return 0
	}
	o.shutdownDone = true
	o.shutdownMu.Unlock()

	fmt.Fprintln(o.IO.Out, "\n[mc-coordinator] Shutting down...")
	o.Log.Info().Msg("starting shutdown sequence")
	exitCode := 0

	// T0: stop child
	if o.Child.IsRunning() {
		if !o.Child.Stop(child.DefaultStopTimeout) {
			o.Log.Warn().Msg("server did not stop cleanly, force-killed")
			exitCode = 1
		}
	}

	// T1: stop heartbeat
	if o.heartbeat != nil {
		o.heartbeat.Stop(o.Config.Safety.HeartbeatInterval() + 5*time.Second)
	}

	// T2: post-stop snapshot (non-fatal)
	if _, err := os.Stat(o.Config.WorldFolder()); err == nil {
		fmt.Fprintln(o.IO.Out, "[mc-coordinator] Creating shutdown backup...")
		if _, err := o.Snapshots.Create(); err != nil {
			fmt.Fprintf(o.IO.Out, "[mc-coordinator] Backup failed: %v\n", err)
		}
	}

	// T3: delete lock
	if err := o.Lock.Delete(); err != nil {
		o.Log.Warn().Err(err).Msg("failed to delete lock file")
	}

	// T4: prune snapshots
	if _, err := o.Snapshots.Prune(); err != nil {
		o.Log.Warn().Err(err).Msg("failed to prune old snapshots")
	}

	// T5: resume sync daemon
	o.resumeSync(context.Background())

	// T6: release pipe resources
	o.Child.Cleanup()

	fmt.Fprintln(o.IO.Out, "[mc-coordinator] Shutdown complete")
	o.Log.Info().Msg("shutdown complete")
	return exitCode
}

func (o *Orchestrator) resumeSync(ctx context.Context) {
	if o.Sync == nil || !o.syncPaused {
		return
	}
	if err := o.Sync.ResumeFolder(ctx); err != nil {
		fmt.Fprintf(o.IO.Out, "[mc-coordinator] Failed to resume sync daemon: %v\n", err)
		o.Log.Warn().Err(err).Msg("failed to resume sync daemon")
		return
	}
	o.syncPaused = false
}

// StatusReport prints a point-in-time snapshot of lock, sync, and
// backup state without starting anything, for the "status" CLI
// subcommand.
func (o *Orchestrator) StatusReport(ctx context.Context) {
	fmt.Fprintln(o.IO.Out, "\nMinecraft Coordinator Status")
	fmt.Fprintln(o.IO.Out, "==================================================")

	status, rec, err := o.Lock.CheckStatus()
	fmt.Fprintln(o.IO.Out, "\nLock Status:")
	switch {
	case err != nil:
		fmt.Fprintf(o.IO.Out, "  Status: error reading lock file: %v\n", err)
	case status == lock.StatusFree:
		fmt.Fprintln(o.IO.Out, "  Status: Available")
	case status == lock.StatusOwned:
		fmt.Fprintf(o.IO.Out, "  Status: Stale lock (own machine), last seen %s\n", rec.LastHeartbeat)
	case status == lock.StatusOtherActive:
		fmt.Fprintf(o.IO.Out, "  Status: Running on %s since %s\n", rec.Hostname, rec.StartedAt)
	case status == lock.StatusOtherStale:
		fmt.Fprintf(o.IO.Out, "  Status: Stale lock on %s, last seen %s\n", rec.Hostname, rec.LastHeartbeat)
	}

	fmt.Fprintln(o.IO.Out, "\nSync daemon:")
	if o.Sync == nil {
		fmt.Fprintln(o.IO.Out, "  Status: Disabled")
	} else if status, err := o.Sync.GetFolderStatus(ctx); err == nil {
		paused, _ := o.Sync.IsFolderPaused(ctx)
		fmt.Fprintf(o.IO.Out, "  Status: %s (paused=%v)\n", status.State, paused)
	} else {
		fmt.Fprintf(o.IO.Out, "  Status: error: %v\n", err)
	}

	fmt.Fprintln(o.IO.Out, "\nBackups:")
	backups, _ := o.Snapshots.List()
	fmt.Fprintf(o.IO.Out, "  Count: %d\n", len(backups))
	if len(backups) > 0 {
		fmt.Fprintf(o.IO.Out, "  Latest: %s\n", backups[0].Timestamp.Format("2006-01-02 15:04"))
	}
	fmt.Fprintln(o.IO.Out)
}
