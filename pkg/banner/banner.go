package banner

import (
	"fmt"

	"pairdb/pkg/config"
)

const banner = `
██████╗  █████╗ ██╗██████╗ ██████╗ ██████╗
██╔══██╗██╔══██╗██║██╔══██╗██╔══██╗██╔══██╗
██████╔╝███████║██║██████╔╝██║  ██║██████╔╝
██╔═══╝ ██╔══██║██║██╔══██╗██║  ██║██╔══██╗
██║     ██║  ██║██║██║  ██║██████╔╝██████╔╝
╚═╝     ╚═╝  ╚═╝╚═╝╚═╝  ╚═╝╚═════╝ ╚═════╝
`

func Print(addr, dbPath, sources, version string) {
	// Deprecated: previous signature printed explicit fields. Newer callers
	// pass an effective config so we can display runtime info centrally.
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	if sources != "" {
		fmt.Printf("Config sources: %s\n", sources)
	}
	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/messages - Send a direct message (JSON: sender, to, content)")
	fmt.Println("GET  /v1/messages?other=<id>&limit=<n> - List messages with a contact")
	fmt.Println("\n== Examples ===================================================")
	fmt.Printf("curl -X POST 'http://localhost%s/v1/messages' -d '{\"to\": \"u_x\", \"content\": \"hello\"}'\n", addr)
	fmt.Printf("curl 'http://localhost%s/v1/messages?other=u_x&limit=10'\n", addr)
	fmt.Println("\n== Production? =================================================")
	fmt.Println("Set a proper storage path (--db)")
	fmt.Println("Add API keys and signed caller headers for production use")
}

// PrintWithEff prints the banner using an EffectiveConfigResult which
// provides richer context (config, addr, dbpath, source).
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	var addr = eff.Addr
	if addr == "" && eff.Config != nil {
		addr = eff.Config.Addr()
	}
	var dbPath = eff.DBPath
	if dbPath == "" && eff.Config != nil {
		dbPath = eff.Config.Server.DBPath
	}
	var src = eff.Source
	if src == "" {
		src = "flags"
	}

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", addr)
	fmt.Printf("DB Path:  %s\n", dbPath)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	fmt.Printf("Config: %s\n", src)

	fmt.Println("\n== Examples ===================================================")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/users/sync' -d '{\"external_id\": \"crm-42\", \"name\": \"Ada\"}'")
	fmt.Println("curl -X POST 'http://<host>:<port>/v1/messages' -d '{\"to\": \"u_x\", \"content\": \"hello\"}'")
	fmt.Println("curl 'http://<host>:<port>/v1/reads/unread'")
	fmt.Println("\n== Production? =================================================")
	// API keys
	be := 0
	fe := 0
	ak := 0
	if eff.Config != nil {
		be = len(eff.Config.Security.APIKeys.Backend)
		fe = len(eff.Config.Security.APIKeys.Frontend)
		ak = len(eff.Config.Security.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}

	// TLS
	tlsOK := false
	if eff.Config != nil && eff.Config.Server.TLS.CertFile != "" && eff.Config.Server.TLS.KeyFile != "" {
		tlsOK = true
	}
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}

	// DB path
	if eff.DBPath != "" {
		fmt.Printf("- DB Path: %s\n", eff.DBPath)
	} else {
		fmt.Println("- DB Path: not set (use --db or PAIRDB_DB_PATH)")
	}

	// Presence
	if eff.Config != nil {
		ow := eff.Config.Presence.OnlineWindow.Duration()
		tt := eff.Config.Presence.TypingTTL.Duration()
		if ow > 0 || tt > 0 {
			fmt.Printf("- Presence: online_window=%s typing_ttl=%s\n", ow, tt)
		} else {
			fmt.Println("- Presence: defaults (2s online window, 2s typing TTL)")
		}
	}

	// Sweeper
	swEnabled := false
	swInfo := ""
	if eff.Config != nil {
		swEnabled = eff.Config.Sweeper.Enabled
		if swEnabled && eff.Config.Sweeper.Cron != "" {
			swInfo = "cron=" + eff.Config.Sweeper.Cron
		}
	}
	if swEnabled {
		if swInfo != "" {
			fmt.Printf("- Sweeper: enabled (%s)\n", swInfo)
		} else {
			fmt.Println("- Sweeper: enabled")
		}
	} else {
		fmt.Println("- Sweeper: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
