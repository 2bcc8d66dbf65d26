package model

import "time"

const EnvelopeVersion = "v1"

type Envelope struct {
	Version  string       `json:"version"`
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorBody   `json:"error"`
	Warnings []string     `json:"warnings,omitempty"`
	Meta     EnvelopeMeta `json:"meta"`
}

type ErrorBody struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

type EnvelopeMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}

// BalanceRow is one token on one chain. Balance holds the formatted amount
// or the read error shown in its place.
type BalanceRow struct {
	Chain   string `json:"chain"`
	ChainID string `json:"chain_id"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

type BalanceReport struct {
	Address  string       `json:"address"`
	Balances []BalanceRow `json:"balances"`
}

type EncryptionKey struct {
	Key    string `json:"encryption_key"`
	EnvVar string `json:"env_var"`
}

type ChainInfo struct {
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	ChainID string `json:"chain_id"`
	RPCURL  string `json:"rpc_url"`
}

type RouteInfo struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Token      string `json:"token"`
	Protocol   string `json:"protocol"`
	Aggregator string `json:"aggregator"`
}
