package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/datum/internal/config"
	"github.com/aretw0/datum/pkg/domain"
)

// execCmd represents the exec command
var execCmd = &cobra.Command{
	Use:   "exec <command-type>",
	Short: "Execute a single command against the in-process document",
	Long: `Runs one command through the full validation and execution pipeline and
prints the result as JSON. Parameters are read from --params, or from
stdin when --params is "-".`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		raw, _ := cmd.Flags().GetString("params")
		validateOnly, _ := cmd.Flags().GetBool("validate-only")

		if raw == "-" {
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Printf("Error reading stdin: %v\n", err)
				os.Exit(1)
			}
			raw = string(data)
		}

		params := map[string]any{}
		if raw != "" {
			if err := json.Unmarshal([]byte(raw), &params); err != nil {
				fmt.Printf("Error parsing parameters: %v\n", err)
				os.Exit(1)
			}
		}

		cfg, err := config.Load()
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
		logger := newLogger(cmd, cfg)

		engine, _, cleanup, err := buildEngine(cmd.Context(), cfg, logger)
		if err != nil {
			fmt.Printf("Error initializing datum: %v\n", err)
			os.Exit(1)
		}
		defer cleanup()

		command := domain.Command{Type: args[0], Parameters: params}

		var out any
		failed := false
		if validateOnly {
			res := engine.Validate(cmd.Context(), command)
			out = res
			failed = !res.IsValid
		} else {
			result := engine.Execute(cmd.Context(), command)
			out = result
			failed = !result.Success
		}

		encoded, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Printf("Error encoding result: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(encoded))

		if failed {
			cleanup()
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(execCmd)

	execCmd.Flags().String("params", "", `Command parameters as JSON ("-" reads stdin)`)
	execCmd.Flags().Bool("validate-only", false, "Run validation phases without executing")
}
