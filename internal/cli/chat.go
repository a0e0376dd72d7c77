package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"groupchat/pkg/client"
	"groupchat/pkg/mention"
	"groupchat/pkg/models"
	"groupchat/pkg/presence"
	"groupchat/pkg/reconciler"
)

const heartbeatEvery = 10 * time.Second

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open an interactive session on the channel",
	Long: `chat renders the channel and keeps it live. Type a line to send it;
end a line with \ to keep composing. A line ending in @name lists matching
members instead of sending: /pick <n> completes the mention, further lines
continue the draft and an empty line sends it as typed. Commands:

  /reply <id> <text>   /edit <id> <text>   /delete <id>
  /pin <id>  /unpin <id>  /react <id> <emoji>  /mute <user> <1h|24h|7d|permanent>
  /pick <n>  /older  /read  /quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		chID, err := s.channel()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(cmdContext(cmd))
		defer cancel()
		return runChat(ctx, s.client, chID, s.profile.User, os.Stdin, os.Stdout)
	},
}

type chatSession struct {
	ctx    context.Context
	r      *reconciler.Reconciler
	out    io.Writer
	viewer string
	typing *presence.Tracker

	mu     sync.Mutex
	status string
	roster *presence.Roster
	// draft is text composed but not sent yet
	draft  string
	picker *mention.Picker
}

func runChat(ctx context.Context, c *client.Client, channelID, viewer string, in io.Reader, out io.Writer) error {
	ch, err := c.GetChannel(ctx, channelID)
	if err != nil {
		return err
	}
	events, err := c.Subscribe(ctx, channelID)
	if err != nil {
		return err
	}
	defer events.Close()
	pres, err := c.Presence(ctx, channelID)
	if err != nil {
		return err
	}
	defer pres.Close()

	cs := &chatSession{
		ctx:    ctx,
		out:    out,
		viewer: viewer,
		roster: presence.NewRoster(viewer),
		picker: mention.NewPicker(nil, viewer),
	}
	cs.r = reconciler.New(c, ch, viewer, reconciler.Options{OnChange: cs.redraw})
	if err := cs.r.Load(ctx); err != nil {
		return err
	}
	cs.r.MarkRead(ctx)

	go func() {
		for ev := range events.Events() {
			cs.r.Apply(ev)
		}
	}()
	go func() {
		for ev := range pres.Events() {
			if p, ok := ev.(models.PresenceChanged); ok {
				cs.mu.Lock()
				cs.roster.Apply(p)
				cs.mu.Unlock()
				cs.redraw()
			}
		}
	}()
	go func() {
		t := time.NewTicker(heartbeatEvery)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				_ = pres.Heartbeat()
			case <-ctx.Done():
				return
			}
		}
	}()

	cs.typing = presence.NewTracker(0, func(typing bool) { _ = pres.Typing(typing) })
	defer cs.typing.Stop()

	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if !cs.input(sc.Text()) {
			return nil
		}
	}
	return sc.Err()
}

// input feeds one typed line and reports false once the session should end.
func (cs *chatSession) input(line string) bool {
	if line == "/quit" {
		return false
	}
	if f := strings.Fields(line); len(f) > 0 && f[0] == "/pick" {
		cs.pick(strings.Join(f[1:], " "))
		return true
	}
	cs.mu.Lock()
	text := cs.draft + line
	cs.mu.Unlock()

	if strings.HasSuffix(line, `\`) {
		cs.buffer(strings.TrimSuffix(text, `\`) + "\n")
		return true
	}
	if line != "" && !strings.HasPrefix(text, "/") && cs.completes(text) {
		cs.buffer(text)
		return true
	}
	cs.buffer("")
	if strings.TrimSpace(text) == "" {
		return true
	}
	cs.handle(text)
	cs.typing.Sent()
	return true
}

// completes reports whether text ends in an @token some member matches.
func (cs *chatSession) completes(text string) bool {
	tok, ok := mention.DetectToken(text, utf8.RuneCountInString(text))
	if !ok {
		return false
	}
	return len(mention.Candidates(cs.r.Roster(), tok.Query, cs.viewer)) > 0
}

// buffer makes text the draft and refreshes the mention picker against it.
func (cs *chatSession) buffer(text string) {
	roster := cs.r.Roster()
	cs.mu.Lock()
	cs.draft = text
	cs.picker.SetRoster(roster)
	cs.picker.Update(text, utf8.RuneCountInString(text))
	cs.mu.Unlock()
	if text != "" {
		cs.typing.Changed()
		cs.redraw()
	}
}

func (cs *chatSession) pick(arg string) {
	n, err := strconv.Atoi(arg)
	cs.mu.Lock()
	count := len(cs.picker.Candidates())
	switch {
	case !cs.picker.Open():
		cs.mu.Unlock()
		cs.setStatus("no mention to complete")
		return
	case err != nil || n < 1 || n > count:
		cs.mu.Unlock()
		cs.setStatus("pick a number from 1 to %d", count)
		return
	}
	cs.picker.Select(n - 1)
	cs.draft, _, _ = cs.picker.Commit()
	cs.mu.Unlock()
	cs.typing.Changed()
	cs.setStatus("")
}

func (cs *chatSession) setStatus(format string, args ...any) {
	cs.mu.Lock()
	cs.status = fmt.Sprintf(format, args...)
	cs.mu.Unlock()
	cs.redraw()
}

func (cs *chatSession) handle(text string) {
	if !strings.HasPrefix(text, "/") {
		cs.send(text, "")
		return
	}
	fields := strings.Fields(text)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	rest := func(i int) string {
		if i < len(fields) {
			return strings.Join(fields[i:], " ")
		}
		return ""
	}

	var err error
	switch fields[0] {
	case "/reply":
		cs.send(rest(2), arg(1))
		return
	case "/edit":
		_, err = cs.r.Edit(cs.ctx, arg(1), rest(2))
	case "/delete":
		_, err = cs.r.Delete(cs.ctx, arg(1))
	case "/pin":
		_, err = cs.r.Pin(cs.ctx, arg(1))
	case "/unpin":
		_, err = cs.r.Unpin(cs.ctx, arg(1))
	case "/react":
		err = cs.r.ToggleReaction(cs.ctx, arg(1), arg(2))
	case "/mute":
		var d models.MuteDuration
		if d, err = models.ParseMuteDuration(arg(2)); err == nil {
			_, err = cs.r.Mute(cs.ctx, arg(1), d)
		}
	case "/older":
		_, err = cs.r.LoadOlder(cs.ctx)
	case "/read":
		cs.r.MarkRead(cs.ctx)
	default:
		err = fmt.Errorf("unknown command %s", fields[0])
	}
	if err != nil {
		cs.setStatus("%v", err)
		return
	}
	cs.setStatus("")
}

func (cs *chatSession) send(text, replyTo string) {
	p, err := cs.r.Send(cs.ctx, text, "", replyTo)
	if err != nil {
		cs.setStatus("%v", err)
		return
	}
	go func() {
		out := <-p.Done
		if out.Err != nil {
			cs.setStatus("not sent (%v): %s", out.Err, out.RestoredText)
		}
	}()
}

func (cs *chatSession) redraw() {
	v := cs.r.View(time.Local)
	cs.mu.Lock()
	defer cs.mu.Unlock()
	fmt.Fprint(cs.out, "\033[H\033[2J")
	RenderView(cs.out, v, time.Now())
	if line := presence.FormatTyping(cs.roster.Typing()); line != "" {
		fmt.Fprintf(cs.out, "%s…\n", line)
	}
	if cs.status != "" {
		fmt.Fprintf(cs.out, "! %s\n", cs.status)
	}
	if cs.picker.Open() {
		for i, m := range cs.picker.Candidates() {
			mark := " "
			if i == cs.picker.Selected() {
				mark = "*"
			}
			fmt.Fprintf(cs.out, "%s%d) @%s\n", mark, i+1, m.DisplayName)
		}
	}
	fmt.Fprint(cs.out, "> "+strings.ReplaceAll(cs.draft, "\n", "\n  "))
}
