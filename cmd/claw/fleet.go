package main

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"
)

func (c *CLI) cmdMsg(args []string) error {
	fs := flag.NewFlagSet("msg", flag.ExitOnError)
	taskID := fs.Int64("task", 0, "attach the message to a task")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("usage: msg <to> <text>")
	}
	to := fs.Arg(0)
	body := strings.Join(fs.Args()[1:], " ")

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.SendMessage(c.Agent, to, body, "", *taskID); err != nil {
		return err
	}
	fmt.Printf("Sent to %s: %s\n", to, body)
	return nil
}

func (c *CLI) cmdBroadcast(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: broadcast <text>")
	}
	body := strings.Join(args, " ")

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.Broadcast(c.Agent, body); err != nil {
		return err
	}
	fmt.Printf("Broadcast: %s\n", body)
	return nil
}

func (c *CLI) cmdInbox(args []string) error {
	fs := flag.NewFlagSet("inbox", flag.ExitOnError)
	unread := fs.Bool("unread", false, "only unread messages")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	msgs, err := st.Inbox(c.Agent, *unread)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Println("No messages")
		return nil
	}
	for _, m := range msgs {
		marker := " "
		if m.ReadAt == nil {
			marker = "*"
		}
		scope := ""
		if m.ToAgent == "" {
			scope = " [all]"
		}
		ref := ""
		if m.TaskID != 0 {
			ref = fmt.Sprintf(" (#%d)", m.TaskID)
		}
		fmt.Printf("%s %s  %s%s%s: %s\n",
			marker, m.CreatedAt.Local().Format("Jan 02 15:04"),
			m.FromAgent, scope, ref, m.Body)
	}
	return nil
}

func (c *CLI) cmdRead(args []string) error {
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.MarkRead(c.Agent, args...); err != nil {
		return err
	}
	if len(args) == 0 {
		fmt.Println("Marked all direct messages read")
	} else {
		fmt.Printf("Marked %d message(s) read\n", len(args))
	}
	return nil
}

func (c *CLI) cmdRegister(args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	role := fs.String("role", "", "agent role")
	if err := fs.Parse(args); err != nil {
		return err
	}
	name := c.Agent
	if fs.NArg() > 0 {
		name = fs.Arg(0)
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := st.RegisterAgent(name, *role)
	if err != nil {
		return err
	}
	fmt.Printf("Registered %s", a.Name)
	if a.Role != "" {
		fmt.Printf(" (%s)", a.Role)
	}
	fmt.Println()
	return nil
}

func (c *CLI) cmdCheckin(_ []string) error {
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := st.Checkin(c.Agent)
	if err != nil {
		return err
	}
	fmt.Printf("Checked in %s (%s)\n", a.Name, a.Status)
	return nil
}

func (c *CLI) cmdWhoami(_ []string) error {
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	fmt.Printf("Agent: %s\n", c.Agent)
	fmt.Printf("Role:  %s\n", st.AgentRole(c.Agent))
	fmt.Printf("DB:    %s\n", c.DBPath)
	return nil
}

func (c *CLI) cmdFleet(_ []string) error {
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	agents, err := st.Fleet()
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		fmt.Println("No agents")
		return nil
	}
	for _, a := range agents {
		line := fmt.Sprintf("%-12s %-10s %s", a.Name, a.Status, a.Role)
		if a.WorkingOn != "" {
			line += "  working on: " + a.WorkingOn
		}
		fmt.Println(line)
	}
	return nil
}

func (c *CLI) cmdFeed(args []string) error {
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	limit := fs.Int("limit", 30, "number of entries")
	agent := fs.String("agent", "", "filter by agent")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.Feed(*limit, *agent)
	if err != nil {
		return err
	}
	for _, e := range entries {
		ref := ""
		if e.TaskID != 0 {
			ref = fmt.Sprintf(" #%d", e.TaskID)
		}
		detail := ""
		if e.Detail != "" {
			detail = ": " + e.Detail
		}
		fmt.Printf("%s  %-12s %s%s%s\n",
			e.At.Local().Format(time.DateTime), e.Agent, e.Action, ref, detail)
	}
	return nil
}

func (c *CLI) cmdSummary(_ []string) error {
	st, err := c.open()
	if err != nil {
		return err
	}
	defer st.Close()

	sum, err := st.GetSummary()
	if err != nil {
		return err
	}
	fmt.Println("── SUMMARY ──")
	fmt.Printf("Open tasks:   %d (in progress: %d, blocked: %d)\n",
		sum.Open, sum.InProgress, sum.Blocked)
	fmt.Printf("Done:         %d\n", sum.Done)
	fmt.Printf("Agents:       %d\n", len(sum.Agents))
	for _, a := range sum.Agents {
		fmt.Printf("  %-12s %s\n", a.Name, a.Status)
	}
	return nil
}
