// Command claw is the agent-side CLI for the shared coordination
// store. Every invocation performs exactly one store operation against
// the SQLite database shared by all agents.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/user"
	"strconv"

	"github.com/openclaw/clawd/internal/version"
	"github.com/openclaw/clawd/store"
)

func main() {
	var (
		dbPath    = flag.String("db", defaultDBPath(), "path to SQLite database (or $CLAWD_DB)")
		agentName = flag.String("agent", defaultAgent(), "agent identity (or $CLAWD_AGENT)")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	cli := &CLI{DBPath: *dbPath, Agent: *agentName}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "version":
		fmt.Printf("claw %s (commit %s, built %s)\n",
			version.Version, version.Commit, version.BuildDate)
	case "init":
		err = cli.cmdInit(rest)
	case "add":
		err = cli.cmdAdd(rest)
	case "list":
		err = cli.cmdList(rest)
	case "claim":
		err = cli.cmdClaim(rest)
	case "start":
		err = cli.cmdStart(rest)
	case "done":
		err = cli.cmdDone(rest)
	case "review":
		err = cli.cmdReview(rest)
	case "approve":
		err = cli.cmdApprove(rest)
	case "reject":
		err = cli.cmdReject(rest)
	case "cancel":
		err = cli.cmdCancel(rest)
	case "block":
		err = cli.cmdBlock(rest)
	case "reset":
		err = cli.cmdReset(rest)
	case "next":
		err = cli.cmdNext(rest)
	case "board":
		err = cli.cmdBoard(rest)
	case "msg":
		err = cli.cmdMsg(rest)
	case "broadcast":
		err = cli.cmdBroadcast(rest)
	case "inbox":
		err = cli.cmdInbox(rest)
	case "read":
		err = cli.cmdRead(rest)
	case "register":
		err = cli.cmdRegister(rest)
	case "checkin":
		err = cli.cmdCheckin(rest)
	case "whoami":
		err = cli.cmdWhoami(rest)
	case "fleet":
		err = cli.cmdFleet(rest)
	case "feed":
		err = cli.cmdFeed(rest)
	case "summary":
		err = cli.cmdSummary(rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `claw — shared task coordination for agents

Usage:
  claw [flags] <command> [args]

Flags:
  --db     <path>  SQLite database path (or $CLAWD_DB)
  --agent  <name>  agent identity (or $CLAWD_AGENT)

Tasks:
  init                      create the database
  add <subject>             create a task (-d desc, -p priority, --for agent, --parent id)
  list                      list open tasks (--mine, --all, --status s)
  claim <id>                take ownership (--force to steal)
  start <id>                begin work on a claimed task
  review <id>               submit your work for review
  approve <id>              approve a reviewed task (-m note)
  reject <id>               send a reviewed task back (-m reason)
  done <id>                 complete directly (-m note, --force)
  cancel <id>               cancel a task
  block <id> --by <id>      mark a task blocked by another
  reset <id>                revive a done/cancelled/blocked task (--force)
  next                      show your highest-priority actionable task
  board                     kanban-style overview

Fleet & messaging:
  register <name>           register an agent (--role r)
  checkin                   heartbeat; refreshes busy/idle status
  whoami                    show identity and database path
  fleet                     show all agents
  feed                      activity log (--limit n, --agent a)
  summary                   fleet and task overview
  msg <to> <text>           send a direct message
  broadcast <text>          send an alert to everyone
  inbox                     show your messages (--unread)
  read [id...]              mark messages read (all direct when no ids)

  version                   print version
`)
}

// CLI holds per-invocation state for commands.
type CLI struct {
	DBPath string
	Agent  string
}

// open opens the shared store.
func (c *CLI) open() (*store.Store, error) {
	return store.Open(c.DBPath)
}

func defaultDBPath() string {
	if p := os.Getenv("CLAWD_DB"); p != "" {
		return p
	}
	return "./clawd.db"
}

func defaultAgent() string {
	if a := os.Getenv("CLAWD_AGENT"); a != "" {
		return a
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "anonymous"
}

// parseID parses a task id argument.
func parseID(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errors.New("task id required")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid task id %q", args[0])
	}
	return id, nil
}

// statusIcon renders a one-rune status marker for listings.
func statusIcon(s store.Status) string {
	switch s {
	case store.StatusPending:
		return "○"
	case store.StatusClaimed:
		return "◉"
	case store.StatusInProgress:
		return "▶"
	case store.StatusReview:
		return "☰"
	case store.StatusBlocked:
		return "⊘"
	case store.StatusDone:
		return "✓"
	case store.StatusCancelled:
		return "✗"
	}
	return "?"
}
