package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/voxloop/voxloop-sdk-go/pkg/voxloop"
)

var (
	verbose  bool
	endpoint string
	profile  string
	holdSecs float64
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "voxloop",
		Short: "Voxloop realtime voice CLI",
		Long:  "A command-line interface for the Voxloop realtime voice SDK",
	}

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&endpoint, "endpoint", "", "WebSocket endpoint URL")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "Path to a TOML profile")

	// Add subcommands
	rootCmd.AddCommand(talkCmd())
	rootCmd.AddCommand(devicesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		voxloop.GetGlobalLogger().WithError(err).Fatal("CLI execution failed")
	}
}

// loadConfigs builds the three config layers: defaults, environment, then
// any profile and flag overrides.
func loadConfigs() (*voxloop.Config, *voxloop.AudioConfig, *voxloop.SessionOptions, error) {
	config := voxloop.NewConfig()
	audioConfig := voxloop.NewAudioConfig()
	sessionOpts := voxloop.NewSessionOptions()

	if profile != "" {
		p, err := voxloop.LoadProfile(profile)
		if err != nil {
			return nil, nil, nil, err
		}
		p.Apply(config, audioConfig, sessionOpts)
	}
	if endpoint != "" {
		config.Endpoint = endpoint
	}
	if verbose {
		config.LogLevel = "debug"
	}

	return config, audioConfig, sessionOpts, nil
}

func talkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "talk",
		Short: "Start a push-to-talk voice session",
		Long:  "Connect to the realtime endpoint and talk by pressing Enter to start and stop recording",
		Run: func(cmd *cobra.Command, args []string) {
			config, audioConfig, sessionOpts, err := loadConfigs()
			if err != nil {
				voxloop.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
			}

			client := voxloop.NewRealtimeClient(config, audioConfig, sessionOpts)
			client.AddErrorHandler(voxloop.CreateErrorLoggingHandler("Talk"))
			client.AddEventHandler(voxloop.CreateTranscriptHandler(func(text string, final bool) {
				if final {
					fmt.Printf("\nAssistant: %s\n", text)
				}
			}))
			if verbose {
				client.AddEventHandler(voxloop.CreateLoggingEventHandler(true))
				client.SetLevelHandler(voxloop.CreateLevelMeterHandler(20))
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if holdSecs > 0 {
				trigger := voxloop.NewTimedTrigger(time.Duration(holdSecs * float64(time.Second)))
				client.SetTrigger(trigger)
				go func() {
					fmt.Printf("Recording for %.1f seconds...\n", holdSecs)
					trigger.Start()
				}()
			} else {
				trigger := voxloop.NewManualTrigger()
				client.SetTrigger(trigger)
				go readToggles(ctx, trigger)
				fmt.Println("Press Enter to start recording, Enter again to stop. Ctrl-C to quit.")
			}

			if err := client.Run(ctx); err != nil && ctx.Err() == nil {
				voxloop.GetGlobalLogger().WithError(err).Fatal("Session failed")
			}
			fmt.Println("Session ended.")
		},
	}

	cmd.Flags().Float64Var(&holdSecs, "hold", 0, "Record a single turn of this many seconds instead of toggling")
	return cmd
}

// readToggles flips the trigger on every Enter keypress.
func readToggles(ctx context.Context, trigger *voxloop.ManualTrigger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if trigger.Toggle() {
			fmt.Println("Recording... press Enter to stop.")
		} else {
			fmt.Println("Stopped. Waiting for reply...")
		}
	}
}

func devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  "List all available audio input and output devices",
		Run: func(cmd *cobra.Command, args []string) {
			devices, err := voxloop.GetAllAudioDevices()
			if err != nil {
				voxloop.GetGlobalLogger().WithError(err).Fatal("Failed to list devices")
			}

			fmt.Printf("Found %d audio devices:\n\n", len(devices))
			for _, dev := range devices {
				marker := " "
				if dev.IsDefault {
					marker = "*"
				}
				caps := ""
				if dev.IsInput {
					caps += "in"
				}
				if dev.IsOutput {
					if caps != "" {
						caps += "/"
					}
					caps += "out"
				}
				fmt.Printf("%s [%d] %s (%s, %s, %.0f Hz)\n",
					marker, dev.ID, dev.Name, dev.HostAPI, caps, dev.DefaultSampleRate)
			}
			fmt.Println("\n* = system default")
		},
	}

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration",
		Long:  "Print the resolved configuration and report any validation issues",
		Run: func(cmd *cobra.Command, args []string) {
			config, audioConfig, sessionOpts, err := loadConfigs()
			if err != nil {
				voxloop.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
			}

			fmt.Printf("Endpoint:           %s\n", config.Endpoint)
			fmt.Printf("Token auth:         %v\n", config.UseTokenAuth)
			fmt.Printf("Reconnect attempts: %d\n", config.MaxReconnectAttempts)
			fmt.Printf("Response timeout:   %s\n", config.ResponseTimeout)
			fmt.Printf("Log level:          %s\n", config.LogLevel)
			fmt.Printf("Sample rate:        %d Hz\n", audioConfig.SampleRate)
			fmt.Printf("Chunk:              %d ms (%d bytes)\n", audioConfig.ChunkMs, audioConfig.ChunkBytes())
			fmt.Printf("Max turn:           %s\n", audioConfig.MaxTurnDuration)
			fmt.Printf("Turn detection:     %s\n", sessionOpts.TurnDetectionType)

			if issues := config.Validate(); len(issues) > 0 {
				fmt.Println("\nConfiguration issues:")
				for _, issue := range issues {
					fmt.Printf("  - %s\n", issue)
				}
				os.Exit(1)
			}
			fmt.Println("\nConfiguration OK")
		},
	}

	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a gateway auth token",
		Long:  "Generate a short-lived gateway token from the environment API key",
		Run: func(cmd *cobra.Command, args []string) {
			result := voxloop.GenerateGatewayToken()
			if !result.Success {
				voxloop.GetGlobalLogger().LogError(result.Error)
				os.Exit(1)
			}
			fmt.Println(result.Data.Token)
			fmt.Fprintf(os.Stderr, "Expires in %d seconds\n", voxloop.GetTokenTTL(result.Data))
		},
	}

	return cmd
}
