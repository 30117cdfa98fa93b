// Package wire implements the branch-to-branch request/response protocol:
// length-prefixed JSON frames over TCP, one request and one response per
// connection, carrying a flat action+params request rather than a
// multi-shard broadcast envelope.
package wire

import "github.com/goccy/go-json"

// Action names recognized by a branch's dispatch table.
const (
	ActionCreateAccount       = "create_account"
	ActionListAccounts        = "list_accounts"
	ActionBalance             = "balance"
	ActionDeposit             = "deposit"
	ActionWithdraw            = "withdraw"
	ActionLocalTransfer       = "local_transfer"
	ActionInterBranchTransfer = "inter_branch_transfer"
	ActionPrepareWithdraw     = "prepare_withdraw"
	ActionCommitWithdraw      = "commit_withdraw"
	ActionAbortWithdraw       = "abort_withdraw"
	ActionPrepareDeposit      = "prepare_deposit"
	ActionCommitDeposit       = "commit_deposit"
	ActionAbortDeposit        = "abort_deposit"
	ActionReplicate           = "replicate"
)

// Request is the wire shape of every inbound call: {"action":..., "params":...}.
type Request struct {
	Action string                 `json:"action"`
	Params map[string]interface{} `json:"params"`
}

// Response is the wire shape of every outbound reply: {"status":..., ...}.
type Response struct {
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// StatusOK and StatusError are the only two values Status may take.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// OK builds a successful response, result may be nil.
func OK(result interface{}) Response {
	return Response{Status: StatusOK, Result: result}
}

// Err builds an error response.
func Err(msg string) Response {
	return Response{Status: StatusError, Error: msg}
}

// Marshal and Unmarshal wrap goccy/go-json, used for every request and
// response payload that crosses the wire.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
