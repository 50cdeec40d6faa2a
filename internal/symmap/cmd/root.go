package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"

	"symmap/internal/logging"
	"symmap/internal/symmap/log"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "Current working directory")
	rootCmd.PersistentFlags().StringP("config", "C", "", "Config file (default symmap.yaml in . or $HOME/.symmap)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Debug")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to a file instead of stderr")

	rootCmd.AddCommand(resolveCmd, scanCmd, exportsCmd, schemaCmd)
}

var rootCmd = &cobra.Command{
	Use:   "symmap",
	Short: "Resolve code and data addresses in binaries from byte signatures",
	Long: `Symmap locates functions and globals inside executable images by scanning
for byte signatures described in an XML rule document, and follows the
instructions at each match to the addresses they reference.`,
	Example: `
# Resolve every mapping in rules.xml against a binary
symmap resolve --rules rules.xml --module game.exe

# Try a signature by hand
symmap scan game.exe "48 8B 05 ?? ?? ?? ?? 48 85 C0" --disasm 6
  `,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if _, err := ResolveCwd(cmd); err != nil {
			return err
		}
		debug, _ := cmd.Flags().GetBool("debug")
		logFile, _ := cmd.Flags().GetString("log-file")
		if debug {
			os.Setenv("SYMMAP_LOG_LEVEL", "debug")
		}
		log.Setup(logFile, debug)

		// Piped output gets no escape codes
		if !term.IsTerminal(os.Stdout.Fd()) {
			os.Setenv("SYMMAP_NO_COLOR", "1")
		}
		return nil
	},
}

// newLogger builds the engine logger, honoring a config log level when the
// environment does not set one.
func newLogger(level string) *logging.LoggerCloser {
	if os.Getenv("SYMMAP_LOG_LEVEL") == "" && level != "" {
		os.Setenv("SYMMAP_LOG_LEVEL", level)
	}
	return logging.NewLogger()
}

func Execute() {
	// Bypass fang's styled output when piped
	if !term.IsTerminal(os.Stdout.Fd()) {
		if err := rootCmd.Execute(); err != nil {
			os.Exit(1)
		}
		return
	}

	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
