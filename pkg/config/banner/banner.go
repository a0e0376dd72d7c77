package banner

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"groupchat/pkg/config"
)

const banner = `
  __ _ _ __ ___  _   _ _ __   ___| |__   __ _| |_
 / _' | '__/ _ \| | | | '_ \ / __| '_ \ / _' | __|
| (_| | | | (_) | |_| | |_) | (__| | | | (_| | |_
 \__, |_|  \___/ \__,_| .__/ \___|_| |_|\__,_|\__|
 |___/                |_|
`

// Print writes the startup banner and a readiness checklist to stdout.
func Print(eff config.EffectiveConfigResult, version string) {
	addr := eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config:   %s\n", src)
	if eff.Config == nil {
		return
	}
	c := eff.Config

	fmt.Println("\n== Production? =================================================")
	keys := []struct {
		name string
		n    int
		why  string
	}{
		{"Backend", len(c.Server.APIKeys.Backend), "required to sign users"},
		{"Frontend", len(c.Server.APIKeys.Frontend), "required for client access"},
		{"Admin", len(c.Server.APIKeys.Admin), "required for admin tooling"},
	}
	for _, k := range keys {
		if k.n > 0 {
			fmt.Printf("- %s API keys: OK (%d)\n", k.name, k.n)
		} else {
			fmt.Printf("- %s API keys: MISSING (%s)\n", k.name, k.why)
		}
	}
	fmt.Printf("- Max body: %s\n", humanize.IBytes(uint64(c.Server.MaxBodySize.Int64())))
	fmt.Printf("- Presence TTL: %s\n", c.Chat.PresenceTTL.Duration())
	if c.Sweeper.Enabled {
		fmt.Printf("- Mute sweeper: enabled (cron=%s)\n", c.Sweeper.Cron)
	} else {
		fmt.Println("- Mute sweeper: disabled")
	}
}
