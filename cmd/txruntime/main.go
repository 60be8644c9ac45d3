// Command txruntime is a thin driver over the kernel: it decodes a manifest
// file and either runs it against a fresh in-memory substate store
// (execute), runs it the same way and prints the receipt with a note that
// nothing was persisted (dry-run),
// or pretty-prints a previously captured receipt (inspect-receipt).
//
// Grounded on cmd/synnergy/main.go's root-command shape (one cobra.Command
// per verb, flags read with cmd.Flags().GetString) and cmd/cli's RunE +
// cmd.OutOrStdout() convention for subcommand bodies.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"txruntime/engine/executor"
	"txruntime/engine/receipt"
	"txruntime/engine/substate"
	"txruntime/pkg/runtimeconfig"
)

func main() {
	rootCmd := &cobra.Command{Use: "txruntime"}
	rootCmd.AddCommand(executeCmd(false))
	rootCmd.AddCommand(executeCmd(true))
	rootCmd.AddCommand(inspectReceiptCmd())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func executeCmd(dryRun bool) *cobra.Command {
	use := "execute [manifest]"
	short := "run a manifest against a fresh in-memory store and print its receipt"
	if dryRun {
		use = "dry-run [manifest]"
		short = "run a manifest the same way execute does, without treating a commit as final"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runManifest(cmd, args[0], dryRun)
		},
	}
	cmd.Flags().String("config", "", "path to a YAML runtime config file (defaults to runtimeconfig.Default())")
	cmd.Flags().String("wasm-dir", "", "directory of compiled blueprint modules, <wasm-dir>/<package-hex>/<blueprint-hex>.wasm")
	return cmd
}

func runManifest(cmd *cobra.Command, path string, dryRun bool) error {
	log := logrus.NewEntry(logrus.StandardLogger())

	jm, err := loadManifestFile(path)
	if err != nil {
		return err
	}

	txHash, err := parseHash32(jm.TransactionHash)
	if err != nil {
		return fmt.Errorf("transaction_hash: %w", err)
	}
	signers, err := jm.signerKeys()
	if err != nil {
		return err
	}
	blobs, err := jm.blobMap()
	if err != nil {
		return err
	}
	instructions, err := jm.instructions()
	if err != nil {
		return err
	}

	configPath, _ := cmd.Flags().GetString("config")
	cfg := runtimeconfig.Default()
	if configPath != "" {
		cfg, err = runtimeconfig.Load(configPath)
		if err != nil {
			return err
		}
	}

	wasmDir, _ := cmd.Flags().GetString("wasm-dir")

	lookup := newOpenLookup(instructions)
	deps := executor.Deps{
		Store:   substate.NewStore(),
		Roles:   noRoles{},
		Lookup:  lookup,
		Invoker: buildInvoker(wasmDir, log),
		Log:     log,
	}

	in := executor.Input{
		TransactionHash:  txHash,
		SignerKeys:       signers,
		Instructions:     instructions,
		Blobs:            blobs,
		EpochValidations: jm.epochValidations(),
		CurrentEpoch:     jm.CurrentEpoch,
	}

	rec, err := executor.Execute(in, cfg, deps)
	if err != nil {
		return fmt.Errorf("running manifest: %w", err)
	}

	if dryRun {
		cmd.Println("dry-run: result discarded, nothing was persisted")
	}
	return printReceipt(cmd, rec)
}

func inspectReceiptCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect-receipt [file]",
		Short: "pretty-print a previously captured JSON receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading receipt file: %w", err)
			}
			var r receipt.Receipt
			if err := json.Unmarshal(raw, &r); err != nil {
				return fmt.Errorf("decoding receipt file: %w", err)
			}
			return printReceipt(cmd, r)
		},
	}
	return cmd
}

func printReceipt(cmd *cobra.Command, r receipt.Receipt) error {
	encoded, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding receipt: %w", err)
	}
	cmd.Println(string(encoded))
	switch r.Result.Kind {
	case receipt.ResultReject:
		return fmt.Errorf("transaction rejected: %s", r.Result.RejectError)
	case receipt.ResultCommit:
		if r.Result.Outcome == receipt.OutcomeFailure {
			return fmt.Errorf("transaction committed as a failure: %s", r.Result.FailureError)
		}
	}
	return nil
}
