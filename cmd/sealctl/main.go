// Command sealctl runs the Seal Coin host and drives its contract.
package main

import (
	"fmt"
	"io"
	"os"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "serve", "server":
		return runServeCmd(args[2:], stdout, stderr)
	case "keys":
		return runKeysCmd(args[2:], stdout, stderr)
	case "deploy-token":
		return runDeployTokenCmd(args[2:], stdout, stderr)
	case "init":
		return runInitCmd(args[2:], stdout, stderr)
	case "update":
		return runUpdateCmd(args[2:], stdout, stderr)
	case "reset":
		return runResetCmd(args[2:], stdout, stderr)
	case "upgrade":
		return runUpgradeCmd(args[2:], stdout, stderr)
	case "publish-logic":
		return runPublishLogicCmd(args[2:], stdout, stderr)
	case "version":
		return runVersionCmd(args[2:], stdout, stderr)
	case "state":
		return runStateCmd(args[2:], stdout, stderr)
	case "balance":
		return runBalanceCmd(args[2:], stdout, stderr)
	case "journal":
		return runJournalCmd(args[2:], stdout, stderr)
	case "submit":
		return runSubmitCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGreen = "\033[32m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sSeal Coin%s\n", ColorBold+ColorBlue, ColorReset)
	_, _ = fmt.Fprintf(w, "%sSupply follows the ice.%s\n", ColorGray, ColorReset)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	_, _ = fmt.Fprintln(w, "  sealctl <command> [flags]")
	_, _ = fmt.Fprintln(w, "")

	printSection(w, "HOST")
	printCommand(w, "serve", "Run the contract host and HTTP API")
	printCommand(w, "keys", "Load or generate named keys (admin, issuer, distributor)")
	printCommand(w, "deploy-token", "Deploy the token and mint the genesis supply")
	printCommand(w, "publish-logic", "Publish a logic bundle for upgrade")

	printSection(w, "CONTRACT")
	printCommand(w, "init", "Bind the admin and token")
	printCommand(w, "update", "Submit a sea-ice extent reading (--day, --extent)")
	printCommand(w, "reset", "Clear the token binding and last reading")
	printCommand(w, "upgrade", "Switch to published logic (--hash)")
	printCommand(w, "version", "Show the contract version")
	printCommand(w, "state", "Show the contract state")
	printCommand(w, "balance", "Show a token balance")
	printCommand(w, "journal", "List recent receipts")

	printSection(w, "ORACLE")
	printCommand(w, "submit", "Fetch NSIDC readings and submit them daily (--once)")
	printCommand(w, "help", "Show this help")
	_, _ = fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	_, _ = fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	_, _ = fmt.Fprintf(w, "  %s%-14s%s %s\n", ColorGreen, name, ColorReset, desc)
}
