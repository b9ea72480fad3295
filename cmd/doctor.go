package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/neeroai/migue.ai-sub000/internal/config"
	"github.com/neeroai/migue.ai-sub000/internal/store/sqldb"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("migue doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, defaults + env apply)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  WhatsApp:")
	checkSecret("Verify token", cfg.WhatsApp.VerifyToken)
	checkSecret("App secret", cfg.WhatsApp.AppSecret)
	checkSecret("Access token", cfg.WhatsApp.AccessToken)
	checkValue("Phone number ID", cfg.WhatsApp.PhoneNumberID)

	fmt.Println()
	fmt.Println("  Providers:")
	checkSecret("Anthropic key", cfg.Providers.Anthropic.APIKey)
	checkSecret("OpenAI key", cfg.Providers.OpenAI.APIKey)

	fmt.Println()
	fmt.Println("  Database:")
	if cfg.Database.DSN == "" {
		fmt.Printf("    %-16s in-memory (MIGUE_DATABASE_DSN not set)\n", "Backend:")
	} else {
		_, db, dbErr := sqldb.Open(cfg.Database.DSN)
		if dbErr != nil {
			fmt.Printf("    %-16s FAILED: %s\n", "Open:", dbErr)
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if pingErr := db.PingContext(ctx); pingErr != nil {
				fmt.Printf("    %-16s FAILED: %s\n", "Ping:", pingErr)
			} else {
				fmt.Printf("    %-16s OK\n", "Ping:")
			}
			cancel()
			db.Close()
		}
	}

	fmt.Println()
	fmt.Println("  Tools:")
	fmt.Printf("    %-16s %s", "Allowlist:", cfg.Tools.AllowlistPath)
	if _, err := os.Stat(cfg.Tools.AllowlistPath); err != nil {
		fmt.Println(" (NOT FOUND, send_message will be denied)")
	} else {
		fmt.Println(" (OK)")
	}
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-16s NOT SET\n", name+":")
		return
	}
	fmt.Printf("    %-16s set (%d chars)\n", name+":", len(value))
}

func checkValue(name, value string) {
	if value == "" {
		fmt.Printf("    %-16s NOT SET\n", name+":")
		return
	}
	fmt.Printf("    %-16s %s\n", name+":", value)
}
