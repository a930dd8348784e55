package commands

import (
	"log/slog"
	"time"

	"ogwatch/lib/attackstore"
	"ogwatch/lib/serviceutil"
	"ogwatch/lib/sms"
	"ogwatch/lib/telemetry"
	"ogwatch/lib/watchconfig"
	"ogwatch/services/watcher"

	"github.com/spf13/cobra"
)

var checkConfig *string

func init() {
	checkConfig = checkCmd.Flags().String("config", "config.json5", "The watcher configuration to run with.")
	rootCmd.AddCommand(checkCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check [--config <path/to/config.json5>]",
	Short: "Runs one polling pass over every configured user and exits.",
	Run: func(cmd *cobra.Command, args []string) {
		config, err := watchconfig.Read(*checkConfig)
		if err != nil {
			serviceutil.Fatal("failed to read config", err)
		}
		if config.Debug {
			telemetry.InitSlog(true)
		}

		store, err := attackstore.NewStore(config.StorePath)
		if err != nil {
			serviceutil.Fatal("failed to open attack store", err)
		}
		sender := sms.NewTwilioSender(sms.TwilioOptions{
			AccountSid: config.Twilio.AccountSid,
			AuthToken:  config.Twilio.AuthToken,
			FromNumber: config.Twilio.FromNumber,
		})

		t1 := time.Now()
		err = watcher.NewService(config, store, sender).Run(cmd.Context())
		if err != nil {
			// partial failure is not fatal, every user that could be
			// checked has been
			slog.Error("polling pass finished with errors", "err", err)
		}
		slog.Info("polling pass complete", "seconds", time.Since(t1).Seconds())
	},
}
