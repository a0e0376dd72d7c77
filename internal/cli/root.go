// Package cli is the groupchat command line client: one-shot chat actions
// and an interactive channel session over the HTTP API.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"groupchat/pkg/client"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	profilePath string
	flagProfile Profile
	timeout     time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "groupchat-cli",
	Short: "Command line client for groupchat channels",
	Long: `groupchat-cli talks to a groupchat server: it can sign users, seed
channels and rosters, send and moderate messages, and open an interactive
session on a channel.`,
	Version:      fmt.Sprintf("%s (commit: %s)", version, commit),
	SilenceUsage: true,
}

// Execute runs the root command. It is called once by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&profilePath, "profile", DefaultProfilePath(), "profile file path")
	pf.StringVarP(&flagProfile.Server, "server", "s", "", "server base url (default http://localhost:8080)")
	pf.StringVarP(&flagProfile.APIKey, "api-key", "k", "", "api key")
	pf.StringVarP(&flagProfile.User, "user", "u", "", "acting user id")
	pf.StringVar(&flagProfile.Signature, "signature", "", "user signature issued by the backend")
	pf.StringVarP(&flagProfile.Channel, "channel", "c", "", "channel id")
	pf.DurationVar(&timeout, "timeout", 10*time.Second, "per request timeout")
}

// session is the resolved profile and a client built from it.
type session struct {
	profile Profile
	client  *client.Client
}

func newSession() (*session, error) {
	p, err := LoadProfile(profilePath)
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", profilePath, err)
	}
	p = p.Resolve(os.Getenv, flagProfile)
	c := client.New(client.Options{
		BaseURL:   p.Server,
		APIKey:    p.APIKey,
		UserID:    p.User,
		Signature: p.Signature,
		Timeout:   timeout,
	})
	return &session{profile: p, client: c}, nil
}

func (s *session) channel() (string, error) {
	if s.profile.Channel == "" {
		return "", fmt.Errorf("no channel: pass --channel or set GROUPCHAT_CHANNEL")
	}
	return s.profile.Channel, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
