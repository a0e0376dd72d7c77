package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"groupchat/pkg/models"
	"groupchat/pkg/reconciler"
)

func init() {
	sendCmd.Flags().String("reply-to", "", "message id to reply to")
	sendCmd.Flags().String("image", "", "image reference to attach")
	pinCmd.Flags().Bool("unpin", false, "remove the pin instead")
	muteCmd.Flags().String("for", string(models.MuteOneHour), "duration: 1h, 24h, 7d or permanent")
	historyCmd.Flags().Int("pages", 1, "number of pages to load")
	channelCmd.Flags().String("group", "", "owning group id")
	channelCmd.Flags().String("event", "", "event id for event channels")
	memberCmd.Flags().Bool("admin", false, "grant the admin role")
	memberCmd.Flags().String("name", "", "display name")

	rootCmd.AddCommand(signCmd, channelCmd, memberCmd, systemCmd,
		sendCmd, editCmd, deleteCmd, pinCmd, reactCmd, muteCmd, unmuteCmd,
		readCmd, renameCmd, membersCmd, historyCmd, sweepCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var signCmd = &cobra.Command{
	Use:   "sign <user-id>",
	Short: "Issue a frontend signature for a user (backend key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		sig, err := s.client.Sign(cmdContext(cmd), args[0])
		if err != nil {
			return err
		}
		fmt.Println(sig)
		return nil
	},
}

var channelCmd = &cobra.Command{
	Use:   "create-channel <name>",
	Short: "Create a channel (backend key)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		group, _ := cmd.Flags().GetString("group")
		event, _ := cmd.Flags().GetString("event")
		ch, err := s.client.CreateChannel(cmdContext(cmd), models.Channel{
			ID: s.profile.Channel, GroupID: group, EventID: event, Name: args[0],
		})
		if err != nil {
			return err
		}
		return printJSON(ch)
	},
}

var memberCmd = &cobra.Command{
	Use:   "put-member <group-id> <user-id>",
	Short: "Add or update a roster entry (backend key)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		name, _ := cmd.Flags().GetString("name")
		admin, _ := cmd.Flags().GetBool("admin")
		role := models.RoleMember
		if admin {
			role = models.RoleAdmin
		}
		m, err := s.client.PutMember(cmdContext(cmd), models.Member{GroupID: args[0], ID: args[1], DisplayName: name, Role: role})
		if err != nil {
			return err
		}
		return printJSON(m)
	},
}

var systemCmd = &cobra.Command{
	Use:   "announce <text>",
	Short: "Post a system message (backend key)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		ch, err := s.channel()
		if err != nil {
			return err
		}
		m, err := s.client.PostSystem(cmdContext(cmd), ch, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(m.ID)
		return nil
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <text>",
	Short: "Send a message",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		ch, err := s.channel()
		if err != nil {
			return err
		}
		reply, _ := cmd.Flags().GetString("reply-to")
		image, _ := cmd.Flags().GetString("image")
		m, err := s.client.Send(cmdContext(cmd), ch, models.SendRequest{
			Content: strings.Join(args, " "), ImageRef: image, ReplyToID: reply,
		})
		if err != nil {
			return err
		}
		fmt.Println(m.ID)
		return nil
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <message-id> <text>",
	Short: "Edit one of your messages",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		_, err = s.client.Edit(cmdContext(cmd), args[0], strings.Join(args[1:], " "))
		return err
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <message-id>",
	Short: "Delete a message (yours, or any as an admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		_, err = s.client.Delete(cmdContext(cmd), args[0])
		return err
	},
}

var pinCmd = &cobra.Command{
	Use:   "pin <message-id>",
	Short: "Pin or unpin a message (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		unpin, _ := cmd.Flags().GetBool("unpin")
		_, err = s.client.SetPinned(cmdContext(cmd), args[0], !unpin)
		return err
	},
}

var reactCmd = &cobra.Command{
	Use:   "react <message-id> <emoji>",
	Short: "Toggle a reaction on a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		ch, err := s.channel()
		if err != nil {
			return err
		}
		ctx := cmdContext(cmd)
		rows, err := s.client.ListReactions(ctx, ch, []string{args[0]})
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.Emoji == args[1] && r.UserID == s.profile.User {
				return s.client.RemoveReaction(ctx, args[0], args[1])
			}
		}
		_, err = s.client.AddReaction(ctx, args[0], args[1])
		return err
	},
}

var muteCmd = &cobra.Command{
	Use:   "mute <group-id> <user-id>",
	Short: "Mute a member (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		raw, _ := cmd.Flags().GetString("for")
		d, err := models.ParseMuteDuration(raw)
		if err != nil {
			return err
		}
		m, err := s.client.Mute(cmdContext(cmd), args[0], args[1], d)
		if err != nil {
			return err
		}
		if m.Permanent {
			fmt.Printf("%s muted permanently\n", m.UserID)
		} else {
			fmt.Printf("%s muted until %s\n", m.UserID, humanize.Time(time.Unix(0, m.UntilTS)))
		}
		return nil
	},
}

var unmuteCmd = &cobra.Command{
	Use:   "unmute <group-id> <user-id>",
	Short: "Lift a mute (admin)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		removed, err := s.client.Unmute(cmdContext(cmd), args[0], args[1])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Println("no active mute")
		}
		return nil
	},
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Mark the channel read up to now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		ch, err := s.channel()
		if err != nil {
			return err
		}
		return s.client.MarkRead(cmdContext(cmd), ch)
	},
}

var renameCmd = &cobra.Command{
	Use:   "rename <name>",
	Short: "Rename the channel (admin)",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		ch, err := s.channel()
		if err != nil {
			return err
		}
		out, err := s.client.RenameChannel(cmdContext(cmd), ch, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Println(out.Name)
		return nil
	},
}

var membersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the channel roster",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		ch, err := s.channel()
		if err != nil {
			return err
		}
		members, err := s.client.ListMembers(cmdContext(cmd), ch)
		if err != nil {
			return err
		}
		for _, m := range members {
			line := fmt.Sprintf("%-20s %-8s %s", m.DisplayName, m.Role, m.ID)
			if m.Mute != nil {
				line += "  (muted)"
			}
			fmt.Println(line)
		}
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent channel history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		chID, err := s.channel()
		if err != nil {
			return err
		}
		ctx := cmdContext(cmd)
		ch, err := s.client.GetChannel(ctx, chID)
		if err != nil {
			return err
		}
		r := reconciler.New(s.client, ch, s.profile.User, reconciler.Options{})
		if err := r.Load(ctx); err != nil {
			return err
		}
		pages, _ := cmd.Flags().GetInt("pages")
		for i := 1; i < pages; i++ {
			more, err := r.LoadOlder(ctx)
			if err != nil {
				return err
			}
			if !more {
				break
			}
		}
		RenderView(os.Stdout, r.View(time.Local), time.Now())
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:   "sweep-mutes",
	Short: "Purge expired mutes now (admin key)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := newSession()
		if err != nil {
			return err
		}
		n, err := s.client.SweepMutes(cmdContext(cmd))
		if err != nil {
			return err
		}
		fmt.Printf("purged %s expired mutes\n", humanize.Comma(int64(n)))
		return nil
	},
}
