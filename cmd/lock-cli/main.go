package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
)

var rpcEndpoint = defaultRPCEndpoint() // Defaults to localhost, can be overridden via LOCK_RPC_URL or --rpc flag
var rpcAuthToken = os.Getenv("LOCK_RPC_TOKEN")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	args, err := applyGlobalFlags(args)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	switch args[0] {
	case "vesting":
		return runVestingCommand(args[1:], stdout, stderr)
	case "airdrop":
		return runAirdropCommand(args[1:], stdout, stderr)
	case "bond":
		return runBondCommand(args[1:], stdout, stderr)
	case "rewards":
		return runRewardsCommand(args[1:], stdout, stderr)
	case "tiers":
		return printCall(stdout, stderr, "lock_getTiers", nil, false)
	case "outbox":
		return runOutboxCommand(args[1:], stdout, stderr)
	case "export":
		return runExportCommand(args[1:], stdout, stderr)
	case "token":
		return runTokenCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: lock-cli [--rpc URL] [--token JWT] <command> [options]")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  vesting  <create|claim|cancel|show|claimable|spendable|backing>")
	fmt.Fprintln(w, "  airdrop  <stage|claim|show>")
	fmt.Fprintln(w, "  bond     <bond|unbond|withdraw|show|unbonds|claims|totals|votes>")
	fmt.Fprintln(w, "  rewards  <notify|claim|delegate|delegate-of|pending|ledger>")
	fmt.Fprintln(w, "  tiers")
	fmt.Fprintln(w, "  outbox   <pending|ack>")
	fmt.Fprintln(w, "  export   --dsn DSN [--status S] [--format csv|jsonl|parquet] [--out FILE]")
	fmt.Fprintln(w, "  token    --subject ACCOUNT [--scope admin] [--ttl 1h]")
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("LOCK_RPC_URL")); v != "" {
		return v
	}
	return "http://localhost:8547"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--rpc" || arg == "--token":
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for %s", arg)
			}
			if arg == "--rpc" {
				rpcEndpoint = args[i+1]
			} else {
				rpcAuthToken = args[i+1]
			}
			i++
		case strings.HasPrefix(arg, "--rpc="):
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
		case strings.HasPrefix(arg, "--token="):
			rpcAuthToken = strings.TrimPrefix(arg, "--token=")
		default:
			out = append(out, arg)
		}
	}
	return out, nil
}

func doRPCRequest(payload []byte, requireAuth bool) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodPost, rpcEndpoint, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if requireAuth {
		if strings.TrimSpace(rpcAuthToken) == "" {
			return nil, fmt.Errorf("this command requires a token; set LOCK_RPC_TOKEN or pass --token")
		}
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(rpcAuthToken))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", rpcEndpoint, err)
	}
	return resp, nil
}

type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func callRPC(method string, param interface{}, requireAuth bool) (json.RawMessage, error) {
	payload := map[string]interface{}{"jsonrpc": "2.0", "id": 1, "method": method}
	if param != nil {
		payload["params"] = []interface{}{param}
	} else {
		payload["params"] = []interface{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	resp, err := doRPCRequest(body, requireAuth)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var rpcResp struct {
		Result json.RawMessage `json:"result"`
		Error  *rpcError       `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s (HTTP %d)", rpcEndpoint, resp.StatusCode)
	}
	if rpcResp.Error != nil {
		msg := fmt.Sprintf("error from node (%d): %s", rpcResp.Error.Code, rpcResp.Error.Message)
		if len(rpcResp.Error.Data) > 0 {
			msg += " " + string(rpcResp.Error.Data)
		}
		return nil, fmt.Errorf("%s", msg)
	}
	return rpcResp.Result, nil
}

// printCall issues method and pretty-prints its result.
func printCall(stdout, stderr io.Writer, method string, param interface{}, requireAuth bool) int {
	result, err := callRPC(method, param, requireAuth)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, result, "", "  "); err != nil {
		fmt.Fprintln(stdout, string(result))
		return 0
	}
	fmt.Fprintln(stdout, pretty.String())
	return 0
}

// subcommand splits args into the subcommand name and its flags.
func subcommand(args []string, usage string, stderr io.Writer) (string, []string, bool) {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage)
		return "", nil, false
	}
	return args[0], args[1:], true
}

func unknownSubcommand(stderr io.Writer, name, usage string) int {
	fmt.Fprintf(stderr, "Unknown subcommand: %s\n", name)
	fmt.Fprintln(stderr, usage)
	return 1
}

func require(stderr io.Writer, values map[string]string) bool {
	for flagName, value := range values {
		if strings.TrimSpace(value) == "" {
			fmt.Fprintf(stderr, "Error: --%s is required\n", flagName)
			return false
		}
	}
	return true
}
