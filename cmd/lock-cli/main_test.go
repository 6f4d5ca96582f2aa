package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"tokenlock/core/processor"
	"tokenlock/core/types"
	"tokenlock/crypto"
	"tokenlock/integrations/outbox"
	"tokenlock/rpc"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

type capturedCall struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	Auth   string            `json:"-"`
}

// stubRPC points the CLI at a fake node that records the request and answers
// with result.
func stubRPC(t *testing.T, result string) *capturedCall {
	t.Helper()
	originalEndpoint, originalToken, originalClient := rpcEndpoint, rpcAuthToken, http.DefaultClient
	t.Cleanup(func() {
		rpcEndpoint, rpcAuthToken, http.DefaultClient = originalEndpoint, originalToken, originalClient
	})
	rpcEndpoint = "http://node.test"
	rpcAuthToken = ""

	call := &capturedCall{}
	http.DefaultClient = &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if err := json.NewDecoder(req.Body).Decode(call); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		call.Auth = req.Header.Get("Authorization")
		body := `{"jsonrpc":"2.0","id":1,"result":` + result + `}`
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(strings.NewReader(body)),
			Header:     make(http.Header),
		}, nil
	})}
	return call
}

func TestVestingCreateBuildsLinearSchedule(t *testing.T) {
	call := stubRPC(t, `{"id":"abc"}`)
	owner := crypto.AccountString([20]byte{0xA1})

	var stdout, stderr bytes.Buffer
	code := run([]string{"--token", "tok", "vesting", "create", "--owner", owner, "--amount", "1000", "--start", "0", "--end", "1000"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if call.Method != "lock_createVesting" {
		t.Fatalf("unexpected method %q", call.Method)
	}
	if call.Auth != "Bearer tok" {
		t.Fatalf("expected bearer token, got %q", call.Auth)
	}
	var params struct {
		Owner    string `json:"owner"`
		Amount   string `json:"amount"`
		Schedule struct {
			Kind  string `json:"kind"`
			Steps []struct {
				T uint64 `json:"t"`
				Y string `json:"y"`
			} `json:"steps"`
		} `json:"schedule"`
	}
	if err := json.Unmarshal(call.Params[0], &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params.Owner != owner || params.Amount != "1000" {
		t.Fatalf("unexpected params %+v", params)
	}
	if params.Schedule.Kind != "saturating_linear" || len(params.Schedule.Steps) != 2 || params.Schedule.Steps[1].Y != "1000" {
		t.Fatalf("unexpected schedule %+v", params.Schedule)
	}
	if !strings.Contains(stdout.String(), `"id": "abc"`) {
		t.Fatalf("expected pretty result, got %q", stdout.String())
	}
}

func TestSignedCommandRequiresToken(t *testing.T) {
	stubRPC(t, `{}`)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"rewards", "claim"}, &stdout, &stderr); code == 0 {
		t.Fatalf("expected failure without token")
	}
	if !strings.Contains(stderr.String(), "LOCK_RPC_TOKEN") {
		t.Fatalf("expected token hint, got %q", stderr.String())
	}
}

func TestQueriesArePublic(t *testing.T) {
	call := stubRPC(t, `{"amount":"800"}`)
	account := crypto.AccountString([20]byte{0xA1})

	var stdout, stderr bytes.Buffer
	if code := run([]string{"bond", "votes", "--account", account}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if call.Method != "lock_getVotingPower" || call.Auth != "" {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestRewardsClaimForwardsOwnerAndReceiver(t *testing.T) {
	call := stubRPC(t, `{"amount":"40"}`)
	owner := crypto.AccountString([20]byte{0xB0})
	receiver := crypto.AccountString([20]byte{0x15})

	var stdout, stderr bytes.Buffer
	code := run([]string{"--token", "tok", "rewards", "claim", "--owner", owner, "--receiver", receiver}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if call.Method != "lock_claimReward" || len(call.Params) != 1 {
		t.Fatalf("unexpected call %+v", call)
	}
	var params map[string]string
	if err := json.Unmarshal(call.Params[0], &params); err != nil {
		t.Fatalf("decode params: %v", err)
	}
	if params["owner"] != owner || params["receiver"] != receiver {
		t.Fatalf("unexpected params %+v", params)
	}
}

func TestBondTotalsIsPublic(t *testing.T) {
	call := stubRPC(t, `{"bonded":"10","unbonding":"0","tiers":[]}`)
	var stdout, stderr bytes.Buffer
	if code := run([]string{"bond", "totals", "--tier", "2"}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	if call.Method != "lock_getTotals" || call.Auth != "" || string(call.Params[0]) != `{"tier":2}` {
		t.Fatalf("unexpected call %+v", call)
	}
}

func TestRPCErrorIsReported(t *testing.T) {
	stubRPC(t, `null`)
	http.DefaultClient = &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		body := `{"jsonrpc":"2.0","id":1,"error":{"code":-32010,"message":"insufficient unlocked","data":{"reason":"insufficient_unlocked"}}}`
		return &http.Response{StatusCode: http.StatusBadRequest, Body: io.NopCloser(strings.NewReader(body)), Header: make(http.Header)}, nil
	})}
	rpcAuthToken = "tok"

	var stdout, stderr bytes.Buffer
	if code := run([]string{"vesting", "claim", "--amount", "5"}, &stdout, &stderr); code == 0 {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(stderr.String(), "insufficient_unlocked") {
		t.Fatalf("expected reason in error, got %q", stderr.String())
	}
}

func TestDialErrorIncludesEndpoint(t *testing.T) {
	stubRPC(t, `null`)
	http.DefaultClient = &http.Client{Transport: roundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused (test stub)")
	})}

	var stdout, stderr bytes.Buffer
	if code := run([]string{"tiers"}, &stdout, &stderr); code == 0 {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(stderr.String(), "http://node.test") {
		t.Fatalf("expected endpoint in error, got %q", stderr.String())
	}
}

func TestUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := run([]string{"frobnicate"}, &stdout, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Unknown command") {
		t.Fatalf("unexpected stderr %q", stderr.String())
	}
}

func TestExportWritesChecksummedCSV(t *testing.T) {
	dir := t.TempDir()
	dsn := "file:" + filepath.Join(dir, "outbox.db")
	store, err := outbox.Open(dsn)
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	receipt := &processor.Receipt{ID: uuid.New(), Command: processor.KindCreateVesting, Now: 10}
	receipt.Transfers = []types.Transfer{{
		From:   [20]byte{0x15},
		To:     [20]byte{0xCC},
		Amount: uint256.NewInt(1000),
		Reason: types.TransferVestingFund,
	}}
	if err := store.Enqueue(context.Background(), receipt); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	out := filepath.Join(dir, "transfers.csv")
	var stdout, stderr bytes.Buffer
	if code := run([]string{"export", "--dsn", dsn, "--status", "pending", "--out", out}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "id,receipt_id") {
		t.Fatalf("unexpected export %q", string(data))
	}
	if !strings.Contains(stdout.String(), "sha256=") {
		t.Fatalf("expected checksum, got %q", stdout.String())
	}
}

func TestTokenIssuesVerifiableJWT(t *testing.T) {
	t.Setenv("LOCK_TEST_SECRET", "s3cret")
	subject := crypto.AccountString([20]byte{0xAD})

	var stdout, stderr bytes.Buffer
	code := run([]string{"token", "--subject", subject, "--scope", "admin", "--secret-env", "LOCK_TEST_SECRET"}, &stdout, &stderr)
	if code != 0 {
		t.Fatalf("exit code %d: %s", code, stderr.String())
	}
	auth, err := rpc.NewAuthenticator(rpc.AuthConfig{HMACSecret: "s3cret", Issuer: "tokenlock", Audience: "tokenlock-rpc"})
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}
	req, _ := http.NewRequest(http.MethodPost, "http://node.test", nil)
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(stdout.String()))
	principal, err := auth.Authenticate(req)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if principal.Account != ([20]byte{0xAD}) || !principal.HasScope(rpc.ScopeAdmin) {
		t.Fatalf("unexpected principal %+v", principal)
	}
}
