package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"

	"github.com/openclaw/clawd/store"
)

func (c *CLI) cmdInit(_ []string) error {
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Printf("Initialized %s\n", c.DBPath)
	return nil
}

func (c *CLI) cmdAdd(args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	desc := fs.String("d", "", "task description")
	priority := fs.Int("p", 0, "priority (higher = more urgent)")
	assignee := fs.String("for", "", "assign the task to an agent")
	parent := fs.Int64("parent", 0, "parent task id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("subject required")
	}
	subject := strings.Join(fs.Args(), " ")

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.AddTask(subject, store.AddOptions{
		Description: *desc,
		Priority:    *priority,
		ParentID:    *parent,
		Assignee:    *assignee,
		CreatedBy:   c.Agent,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Created #%d: %s\n", t.ID, t.Subject)
	if t.Owner != "" {
		fmt.Printf("  assigned to %s\n", t.Owner)
	}
	return nil
}

func (c *CLI) cmdList(args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	mine := fs.Bool("mine", false, "only my tasks")
	all := fs.Bool("all", false, "include done and cancelled")
	status := fs.String("status", "", "filter by status")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	filter := store.ListFilter{Status: store.Status(*status), IncludeAll: *all}
	if *mine {
		filter.Owner = c.Agent
	}
	tasks, err := st.ListTasks(filter)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}
	for _, t := range tasks {
		owner := t.Owner
		if owner == "" {
			owner = "-"
		}
		fmt.Printf("%s #%-4d p%d  %-12s %-10s %s\n",
			statusIcon(t.Status), t.ID, t.Priority, t.Status, owner, t.Subject)
	}
	return nil
}

func (c *CLI) cmdClaim(args []string) error {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	force := fs.Bool("force", false, "steal the task from its current owner")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.Claim(id, c.Agent, *force, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Claimed #%d: %s\n", t.ID, t.Subject)
	return nil
}

func (c *CLI) cmdStart(args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.Start(id, c.Agent, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Working on #%d: %s\n", t.ID, t.Subject)
	return nil
}

func (c *CLI) cmdDone(args []string) error {
	fs := flag.NewFlagSet("done", flag.ExitOnError)
	note := fs.String("m", "", "completion note delivered to the task creator")
	force := fs.Bool("force", false, "complete a task you do not own")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, changed, err := st.Complete(id, c.Agent, *note, *force, nil)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Printf("#%d already done\n", t.ID)
		return nil
	}
	fmt.Printf("Done #%d: %s\n", t.ID, t.Subject)
	if *note != "" {
		fmt.Printf("  note: %s\n", *note)
	}
	return nil
}

func (c *CLI) cmdReview(args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.Review(id, c.Agent, nil)
	if err != nil {
		return err
	}
	fmt.Printf("#%d submitted for review: %s\n", t.ID, t.Subject)
	return nil
}

func (c *CLI) cmdApprove(args []string) error {
	fs := flag.NewFlagSet("approve", flag.ExitOnError)
	note := fs.String("m", "", "approval note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, changed, err := st.Approve(id, c.Agent, *note, nil)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Printf("#%d already done\n", t.ID)
		return nil
	}
	fmt.Printf("Approved #%d: %s\n", t.ID, t.Subject)
	return nil
}

func (c *CLI) cmdReject(args []string) error {
	fs := flag.NewFlagSet("reject", flag.ExitOnError)
	reason := fs.String("m", "", "rejection reason")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.Reject(id, c.Agent, *reason, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Rejected #%d back to pending\n", t.ID)
	return nil
}

func (c *CLI) cmdCancel(args []string) error {
	id, err := parseID(args)
	if err != nil {
		return err
	}
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, changed, err := st.Cancel(id, c.Agent, nil)
	if err != nil {
		return err
	}
	if !changed {
		fmt.Printf("#%d already %s\n", t.ID, t.Status)
		return nil
	}
	fmt.Printf("Cancelled #%d: %s\n", t.ID, t.Subject)
	return nil
}

func (c *CLI) cmdBlock(args []string) error {
	fs := flag.NewFlagSet("block", flag.ExitOnError)
	by := fs.Int64("by", 0, "id of the blocking task")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}
	if *by == 0 {
		return errors.New("--by <id> required")
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.Block(id, *by, c.Agent, nil)
	if err != nil {
		return err
	}
	fmt.Printf("#%d blocked by #%d\n", t.ID, *by)
	return nil
}

func (c *CLI) cmdReset(args []string) error {
	fs := flag.NewFlagSet("reset", flag.ExitOnError)
	force := fs.Bool("force", false, "reset regardless of status")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := parseID(fs.Args())
	if err != nil {
		return err
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.Reset(id, c.Agent, *force, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Reset #%d to pending\n", t.ID)
	return nil
}

func (c *CLI) cmdNext(_ []string) error {
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	t, err := st.Next(c.Agent)
	if err != nil {
		return err
	}
	if t == nil {
		fmt.Println("No actionable tasks")
		return nil
	}
	fmt.Printf("%s #%d p%d  %s\n", statusIcon(t.Status), t.ID, t.Priority, t.Subject)
	if t.Description != "" {
		fmt.Printf("  %s\n", t.Description)
	}
	return nil
}

func (c *CLI) cmdBoard(_ []string) error {
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	board, err := st.GetBoard()
	if err != nil {
		return err
	}
	printColumn := func(name string, tasks []*store.BoardTask) {
		fmt.Printf("%s (%d)\n", name, len(tasks))
		for _, t := range tasks {
			line := fmt.Sprintf("  %s #%-4d %-12s %s", statusIcon(t.Status), t.ID, t.Status, t.Subject)
			if len(t.BlockedBy) > 0 {
				blockers := make([]string, len(t.BlockedBy))
				for i, b := range t.BlockedBy {
					blockers[i] = fmt.Sprintf("#%d", b)
				}
				line += " (blocked by " + strings.Join(blockers, ", ") + ")"
			}
			fmt.Println(line)
		}
	}
	printColumn("QUEUED", board.Queued)
	printColumn("ACTIVE", board.Active)
	printColumn("BLOCKED", board.Blocked)
	printColumn("DONE", board.Done)
	return nil
}
