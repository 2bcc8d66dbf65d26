package bot

type SessionKind string

const (
	SessionIdle                   SessionKind = "idle"
	SessionImportingWallet        SessionKind = "importing_wallet"
	SessionAwaitingBalanceAddress SessionKind = "awaiting_balance_address"
	SessionTransferring           SessionKind = "transferring"
	SessionMigrating              SessionKind = "migrating"
)

type TransferState struct {
	Ticker    string `json:"ticker"`
	Recipient string `json:"recipient,omitempty"`
	Amount    string `json:"amount,omitempty"`
}

// Ready reports whether every field has been collected.
func (s TransferState) Ready() bool {
	return s.Ticker != "" && s.Recipient != "" && s.Amount != ""
}

type MigrationState struct {
	FromNetwork string `json:"from_network,omitempty"`
	ToNetwork   string `json:"to_network,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	Token       string `json:"token,omitempty"`
	Amount      string `json:"amount,omitempty"`
}

// Session is the per-user workflow. At most one of Transfer and Migration is
// set, matching Kind.
type Session struct {
	Kind      SessionKind     `json:"kind"`
	Transfer  *TransferState  `json:"transfer,omitempty"`
	Migration *MigrationState `json:"migration,omitempty"`
}

func idleSession() Session {
	return Session{Kind: SessionIdle}
}

func (s Session) idle() bool {
	return s.Kind == "" || s.Kind == SessionIdle
}

// workflow names the pending workflow for user-facing notices.
func (s Session) workflow() string {
	switch s.Kind {
	case SessionImportingWallet:
		return "wallet import"
	case SessionAwaitingBalanceAddress:
		return "balance check"
	case SessionTransferring:
		return "transfer"
	case SessionMigrating:
		return "migration"
	default:
		return ""
	}
}
