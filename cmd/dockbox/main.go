package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"dockbox/internal/app"
	dockboxerrors "dockbox/internal/errors"
	"dockbox/pkg/session"
)

// version is set at build time via ldflags
var version = "dev"

var rootCmd = &cobra.Command{
	Use:     "dockbox",
	Short:   "Dockbox - run commands inside throwaway Docker containers",
	Version: version,
	Long: `Dockbox starts a container session, runs commands inside it with docker exec,
and guarantees the container is stopped and removed afterwards - on success,
failure, or interrupt alike.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the commands of a session spec file in one container session",
	Long: `Run parses a session spec YAML file, starts a single container session from
the configured image, executes the listed commands in order, and releases the
container when the last command finishes or the first one fails.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if file == "" {
			fmt.Fprintln(os.Stderr, "Error: --file flag is required")
			os.Exit(1)
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")

		if err := app.Run(file, dryRun); err != nil {
			dockboxerrors.HandleError(err)
			os.Exit(1)
		}
	},
}

var execCmd = &cobra.Command{
	Use:   "exec -- COMMAND",
	Short: "Run a single command in a throwaway container",
	Long: `Exec starts a container session from the given image, runs one command inside
it, prints the captured output, and removes the container. The process exit
code mirrors the command's exit code.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		image, _ := cmd.Flags().GetString("image")
		prefix, _ := cmd.Flags().GetString("prefix")
		workdir, _ := cmd.Flags().GetString("workdir")
		privileged, _ := cmd.Flags().GetBool("privileged")
		combineOutput, _ := cmd.Flags().GetBool("combine-output")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		env, _ := cmd.Flags().GetStringToString("env")
		volumes, _ := cmd.Flags().GetStringToString("volume")

		cfg := session.Config{
			Image:         image,
			NamePrefix:    prefix,
			WorkingDir:    workdir,
			Privileged:    privileged,
			CombineOutput: combineOutput,
			Timeout:       timeout,
			Env:           env,
			VolumeMounts:  volumes,
		}

		exitCode, err := app.ExecOnce(cfg, strings.Join(args, " "))
		if err != nil {
			dockboxerrors.HandleError(err)
			os.Exit(1)
		}
		os.Exit(exitCode)
	},
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the container engine is reachable",
	Run: func(cmd *cobra.Command, args []string) {
		if err := app.CheckPrerequisites(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			os.Exit(1)
		}
		fmt.Println("Container engine is reachable.")
	},
}

func init() {
	runCmd.Flags().StringP("file", "f", "", "Path to the session spec YAML file (required)")
	runCmd.Flags().Bool("dry-run", false, "Print the commands that would run without creating a container")
	if err := runCmd.MarkFlagRequired("file"); err != nil {
		slog.Error("Failed to mark file flag as required for run command", "error", err)
	}
	rootCmd.AddCommand(runCmd)

	execCmd.Flags().String("image", session.DefaultImage, "Base image for the session container")
	execCmd.Flags().String("prefix", session.DefaultNamePrefix, "Container name prefix")
	execCmd.Flags().String("workdir", "", "Working directory inside the container")
	execCmd.Flags().Bool("privileged", false, "Run the container in privileged mode")
	execCmd.Flags().Bool("combine-output", false, "Fold stderr into stdout")
	execCmd.Flags().Duration("timeout", session.DefaultTimeout, "Maximum lifetime of the session container")
	execCmd.Flags().StringToString("env", nil, "Environment variables (KEY=VALUE, repeatable)")
	execCmd.Flags().StringToString("volume", nil, "Bind mounts (HOSTPATH=CONTAINERPATH, repeatable)")
	rootCmd.AddCommand(execCmd)

	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
