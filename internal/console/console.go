// Package console implements the operator-facing interactive shell: a
// read loop that recognizes a handful of built-in verbs and otherwise
// passes the line straight through to the running server's stdin,
// plus a background drainer that prints the server's own output as it
// arrives.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mshontz/mc-coordinator/internal/child"
	"github.com/mshontz/mc-coordinator/internal/snapshot"
	"github.com/mshontz/mc-coordinator/internal/syncclient"
	"github.com/mshontz/mc-coordinator/internal/ui"
	"github.com/mshontz/mc-coordinator/internal/worker"
)

// Prompt is printed before every line of operator input.
const Prompt = "[mc-coordinator] > "

// protectedCommands are passed through to handleProtected instead of
// straight to the server: 'stop' bypasses the coordinator's own backup
// + lock-release + resume sequence, so typing it directly is almost
// always a mistake.
var protectedCommands = map[string]bool{"stop": true}

// builtins lists the verbs this package intercepts itself, with a
// one-line description shown by the help command.
var builtins = []struct {
	name string
	desc string
}{
	{"quit", "Trigger safe shutdown sequence"},
	{"exit", "Same as quit"},
	{"backup", "Create a manual backup without stopping"},
	{"status", "Show current server status"},
	{"help", "Show available commands"},
}

// Console wires the child process, snapshot engine, and sync-daemon
// client together behind a single interactive prompt.
type Console struct {
	Server     *child.Supervisor
	Snapshots  *snapshot.Manager
	SyncClient *syncclient.Client
	OnShutdown func()

	Out io.Writer
	In  *bufio.Reader

	drainer *worker.Supervised
}

// New constructs a Console. out/in default to stdout/stdin if nil.
func New(server *child.Supervisor, snapshots *snapshot.Manager, syncClient *syncclient.Client, onShutdown func(), out io.Writer, in io.Reader) *Console {
	return &Console{
		Server:     server,
		Snapshots:  snapshots,
		SyncClient: syncClient,
		OnShutdown: onShutdown,
		Out:        out,
		In:         bufio.NewReader(in),
	}
}

// Start launches the background output drainer and blocks in the
// input loop until quit/exit is typed or input reaches EOF. The loop
// re-checks Server.IsRunning before each prompt, which stays true until
// the supervisor's Stop or Cleanup runs; a server process that exits on
// its own does not end the loop.
func (c *Console) Start(ctx context.Context) {
	c.drainer = worker.Start("console-output", &worker.TickerService{
		ServiceName: "console-output",
		Interval:    100 * time.Millisecond,
		Fn:          c.drainOnce,
	})
	defer c.drainer.Stop(2 * time.Second)

	fmt.Fprintf(c.Out, "\nMinecraft Server Console\n")
	fmt.Fprintf(c.Out, "Type 'help' for available commands, 'quit' to shutdown safely.\n\n")

	for c.Server.IsRunning() {
		fmt.Fprint(c.Out, Prompt)
		line, err := c.In.ReadString('\n')
		line = strings.TrimSpace(line)

		if err == io.EOF {
			fmt.Fprintln(c.Out)
			c.cmdQuit()
			return
		}
		if err != nil {
			return
		}
		if line == "" {
			continue
		}

		if done := c.process(line); done {
			return
		}
	}
}

func (c *Console) drainOnce(ctx context.Context) error {
	if !c.Server.IsRunning() {
		return nil
	}
	readCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	line, err := c.Server.ReadLine(readCtx)
	if line != "" {
		fmt.Fprint(c.Out, "\r"+strings.Repeat(" ", 80)+"\r")
		fmt.Fprint(c.Out, line)
		if !strings.HasSuffix(line, "\n") {
			fmt.Fprintln(c.Out)
		}
		fmt.Fprint(c.Out, Prompt)
	}
	if err != nil && err != context.DeadlineExceeded {
		return nil // stdout closed or process exited: nothing to log, not fatal
	}
	return nil
}

// process handles one input line, returning true if the console loop
// should exit (quit/exit was issued).
func (c *Console) process(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd := strings.ToLower(fields[0])

	switch {
	case cmd == "quit" || cmd == "exit":
		c.cmdQuit()
		return true
	case cmd == "backup":
		c.cmdBackup()
	case cmd == "status":
		c.cmdStatus()
	case cmd == "help":
		c.cmdHelp()
	case protectedCommands[cmd]:
		c.handleProtected(cmd, line)
	default:
		_ = c.Server.SendCommand(line)
	}
	return false
}

func (c *Console) cmdQuit() {
	fmt.Fprintf(c.Out, "\nInitiating safe shutdown...\n")
	if c.OnShutdown != nil {
		c.OnShutdown()
	}
}

func (c *Console) cmdBackup() {
	fmt.Fprintln(c.Out)
	info, err := c.Snapshots.Create()
	if err != nil {
		fmt.Fprintf(c.Out, "Backup failed: %v\n", err)
	} else {
		fmt.Fprintf(c.Out, "Backup created: %s\n", info.Name())
	}
	fmt.Fprintln(c.Out)
}

func (c *Console) cmdStatus() {
	fmt.Fprintf(c.Out, "\nServer Status\n")
	fmt.Fprintln(c.Out, strings.Repeat("-", 40))

	if c.Server.IsRunning() {
		fmt.Fprintf(c.Out, "  Status:    Running\n")
		fmt.Fprintf(c.Out, "  PID:       %d\n", c.Server.PID())
		fmt.Fprintf(c.Out, "  Uptime:    %s\n", c.Server.Uptime().Round(time.Second))
	} else {
		fmt.Fprintf(c.Out, "  Status:    Stopped\n")
	}

	if latest, err := c.Snapshots.Latest(); err == nil && latest != nil {
		fmt.Fprintf(c.Out, "  Last backup: %s\n", latest.Timestamp.Format("2006-01-02 15:04"))
	} else {
		fmt.Fprintf(c.Out, "  Last backup: None\n")
	}

	if c.SyncClient != nil {
		if c.SyncClient.CheckConnection(context.Background()) {
			status, err := c.SyncClient.GetFolderStatus(context.Background())
			if err == nil {
				fmt.Fprintf(c.Out, "  Sync daemon: %s\n", status.State)
			} else {
				fmt.Fprintf(c.Out, "  Sync daemon: Unreachable\n")
			}
		} else {
			fmt.Fprintf(c.Out, "  Sync daemon: Unreachable\n")
		}
	} else {
		fmt.Fprintf(c.Out, "  Sync daemon: Disabled\n")
	}

	fmt.Fprintln(c.Out, strings.Repeat("-", 40))
	fmt.Fprintln(c.Out)
}

func (c *Console) cmdHelp() {
	fmt.Fprintf(c.Out, "\nAvailable Commands\n")
	fmt.Fprintln(c.Out, strings.Repeat("-", 40))
	fmt.Fprintf(c.Out, "\nCoordinator Commands:\n")
	for _, b := range builtins {
		fmt.Fprintf(c.Out, "  %-12s - %s\n", b.name, b.desc)
	}
	fmt.Fprintf(c.Out, "\nServer Commands:\n")
	fmt.Fprintln(c.Out, "  Any other command is passed directly to the Minecraft server.")
	fmt.Fprintln(c.Out, "  Common commands: list, say <msg>, op <player>, whitelist add <player>")
	fmt.Fprintf(c.Out, "\nProtected Commands:\n")
	fmt.Fprintln(c.Out, "  stop         - Use 'quit' instead for safe shutdown")
	fmt.Fprintln(c.Out, strings.Repeat("-", 40))
	fmt.Fprintln(c.Out)
}

func (c *Console) handleProtected(cmd, fullLine string) {
	if cmd != "stop" {
		_ = c.Server.SendCommand(fullLine)
		return
	}

	fmt.Fprintf(c.Out, "\nThe stop command bypasses safe shutdown.\n")
	fmt.Fprintln(c.Out, "Use 'quit' for a safe shutdown that:")
	fmt.Fprintln(c.Out, "  - Creates a backup")
	fmt.Fprintln(c.Out, "  - Cleans up the lock file")
	fmt.Fprintln(c.Out, "  - Resumes the sync daemon")
	fmt.Fprintln(c.Out)

	useSafe, err := ui.Confirm("Do you want to use safe shutdown instead?", true)
	if err == nil && useSafe {
		c.cmdQuit()
		return
	}
	fmt.Fprintln(c.Out, "Sending raw stop command...")
	_ = c.Server.SendCommand(fullLine)
}
