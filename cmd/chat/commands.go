package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/streamchat/internal/client"
	"github.com/zhouzirui/streamchat/internal/client/tui"
	"github.com/zhouzirui/streamchat/internal/model/chat"
)

var errReplyFailed = errors.New("reply failed")

func runTUI(cmd *cobra.Command, opts *options) error {
	follow := &tui.Follow{}
	a, err := opts.open(cmd, follow)
	if err != nil {
		return err
	}
	defer a.Close()

	return tui.Run(cmd.Context(), a.client, follow)
}

func newAskCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message>",
		Short: "Send one message and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			return ask(cmd, a.client, strings.Join(args, " "))
		},
	}
}

func ask(cmd *cobra.Command, c *client.Client, text string) error {
	out := cmd.OutOrStdout()
	p := &replyPrinter{out: out}
	cancel := c.Subscribe(p.update)
	defer cancel()

	outcome := c.Exchange(cmd.Context(), text)
	if outcome == client.OutcomeRejected {
		return errors.New("message is empty or a reply is already in progress")
	}
	fmt.Fprintln(out)

	if outcome != client.OutcomeFinalized {
		return errors.Wrap(errReplyFailed, outcome.String())
	}
	return nil
}

// replyPrinter writes the growing bot reply as it streams, one delta at a
// time. Each view carries the full text so far.
type replyPrinter struct {
	out     io.Writer
	id      string
	printed int
}

func (p *replyPrinter) update(v client.View) {
	if len(v.Messages) == 0 {
		return
	}
	last := v.Messages[len(v.Messages)-1]
	if last.Sender != chat.SenderBot || last.IsThinking {
		return
	}
	if last.ID != p.id {
		p.id, p.printed = last.ID, 0
	}
	if len(last.Text) < p.printed {
		return
	}
	io.WriteString(p.out, last.Text[p.printed:])
	p.printed = len(last.Text)
}

func newClearCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Start a new conversation and drop the backend history of the old one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			a.client.Clear(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "conversation cleared (session %s)\n", a.client.SessionID())
			return nil
		},
	}
}

func newHistoryCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd, nil)
			if err != nil {
				return err
			}
			defer a.Close()

			printTranscript(cmd.OutOrStdout(), a.client.View().Messages)
			return nil
		},
	}
}

func printTranscript(out io.Writer, msgs []chat.Message) {
	for _, m := range msgs {
		fmt.Fprintf(out, "[%s] %s: %s\n", m.Timestamp.Local().Format("2006-01-02 15:04"), m.Sender, m.Text)
	}
}
