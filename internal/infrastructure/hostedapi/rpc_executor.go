package hostedapi

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/brifyai/plataforma-incentivos-mvp-sub010/internal/infrastructure/sqlscript"
)

// RPCExecutor runs statements through a SQL execution function exposed by the
// gateway, e.g.
//
//	create function exec_sql(sql text) returns json ...
//
// The function may either raise or return {"success": false, "error": "..."}.
type RPCExecutor struct {
	client   *Client
	function string
}

// NewRPCExecutor creates an executor calling function through client
func NewRPCExecutor(client *Client, function string) *RPCExecutor {
	if function == "" {
		function = "exec_sql"
	}
	return &RPCExecutor{client: client, function: function}
}

func (e *RPCExecutor) Name() string { return "rpc" }

type rpcResult struct {
	Success *bool  `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (e *RPCExecutor) Exec(ctx context.Context, stmt sqlscript.Statement) error {
	if e.client == nil {
		return sqlscript.ErrUnavailable
	}

	var raw json.RawMessage
	if err := e.client.RPC(ctx, e.function, map[string]string{"sql": stmt.Text}, &raw); err != nil {
		return sqlscript.Classify(err)
	}

	var res rpcResult
	if json.Unmarshal(raw, &res) == nil && res.Success != nil && !*res.Success {
		msg := res.Error
		if msg == "" {
			msg = "statement rejected by " + e.function
		}
		if res.Code != "" {
			return sqlscript.Classify(&APIError{Status: 200, Code: res.Code, Message: msg})
		}
		return sqlscript.Classify(errors.New(msg))
	}
	return nil
}
