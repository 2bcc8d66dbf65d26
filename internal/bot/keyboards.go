package bot

import (
	"fmt"
	"strings"

	"github.com/ggonzalez94/walletbot/internal/id"
)

const (
	actionMainMenu          = "main_menu"
	actionCreateWallet      = "create_wallet"
	actionImportWallet      = "import_wallet"
	actionCheckBalance      = "check_balance"
	actionCheckMyBalance    = "check_my_balance"
	actionCheckOtherBalance = "check_other_balance"
	actionTransferAsset     = "transfer_asset"
	actionConfirmTransfer   = "confirm_transfer"
	actionCancelTransfer    = "cancel_transfer"
	actionMigratePosition   = "migrate_position"
	actionCancelMigration   = "cancel_migration"
	actionExit              = "exit"

	prefixTransfer    = "transfer_"
	prefixMigrateFrom = "migrate_from_"
	prefixMigrateTo   = "migrate_to_"
)

const (
	textWelcome          = "Welcome to the Wallet Bot! What would you like to do?"
	textMenu             = "What would you like to do?"
	textNext             = "What would you like to do next?"
	textGoodbye          = "Thank you for using the Wallet Bot. Goodbye!"
	textUnknown          = "I didn't understand that. What would you like to do?"
	textGenericError     = "An error occurred. Please try again later or contact support."
	textNeedWallet       = "You need to create or import a wallet first:"
	textImportPrompt     = `Please send me your private key. It should start with "0x" and be 66 characters long. WARNING: Never share your private key with anyone else!`
	textBalanceChoice    = "What balance would you like to check?"
	textBalanceAddress   = "Please send me the wallet address you want to check."
	textBalanceInvalid   = "Invalid Ethereum address. Please check and try again."
	textBalanceFailed    = "An error occurred while checking the balance. Please try again later."
	textSelectAsset      = "Please select the asset you want to transfer:"
	textInvalidSelection = "Invalid selection. Please try again."
	textInvalidRecipient = "Invalid Ethereum address. Please enter a valid address:"
	textInvalidAmount    = "Invalid amount. Please enter a positive number:"
	textNoTransfer       = "Transfer process not initiated. Please start over."
	textTransferFailed   = "An error occurred during the transfer. Please try again later."
	textTransferCancel   = "Transfer cancelled. What would you like to do next?"
	textMigrateSource    = "Let's migrate your position. First, choose the source network:"
	textMigrateDest      = "Great! Now choose the destination network:"
	textMigrateToken     = "Which token would you like to migrate? (e.g., USDC)"
	textMigrateAmount    = "How much would you like to migrate?"
	textMigrateApproving = "Sending approval transaction..."
	textMigrateBuilt     = "Migration calldata generated. Preparing to execute the multicall transaction..."
	textMigrateFailed    = "An error occurred during the migration. Please try again later."
	textMigrateCancel    = "Migration process cancelled."
	textNoMigration      = "Migration process not initiated. Please start over."
	textNothingToCancel  = "There is nothing to cancel. What would you like to do?"
)

func mainMenuKeyboard() Keyboard {
	return Keyboard{
		{{Text: "Create Wallet", Data: actionCreateWallet}},
		{{Text: "Import Wallet", Data: actionImportWallet}},
		{{Text: "Check Balance", Data: actionCheckBalance}},
		{{Text: "Transfer Asset", Data: actionTransferAsset}},
		{{Text: "Migrate Position", Data: actionMigratePosition}},
		{{Text: "Exit", Data: actionExit}},
	}
}

func backToMainMenuKeyboard() Keyboard {
	return Keyboard{{{Text: "Back to Main Menu", Data: actionMainMenu}}}
}

func checkBalanceKeyboard() Keyboard {
	return Keyboard{
		{{Text: "Check My Wallet Balance", Data: actionCheckMyBalance}},
		{{Text: "Check Other Address", Data: actionCheckOtherBalance}},
		{{Text: "Back to Main Menu", Data: actionMainMenu}},
	}
}

func createOrImportKeyboard() Keyboard {
	return Keyboard{
		{{Text: "Create New Wallet", Data: actionCreateWallet}},
		{{Text: "Import Existing Wallet", Data: actionImportWallet}},
		{{Text: "Back to Main Menu", Data: actionMainMenu}},
	}
}

// transferAssetKeyboard offers every registry ticker. Tickers without a
// contract on the transfer chain are rejected at confirmation.
func transferAssetKeyboard() Keyboard {
	tokens := id.Tokens()
	kb := make(Keyboard, 0, len(tokens))
	for _, t := range tokens {
		kb = append(kb, []Button{{Text: t.Symbol, Data: prefixTransfer + t.Symbol}})
	}
	return kb
}

func confirmTransferKeyboard() Keyboard {
	return Keyboard{
		{{Text: "Confirm", Data: actionConfirmTransfer}},
		{{Text: "Cancel", Data: actionCancelTransfer}},
	}
}

func networkKeyboard(prefix string, slugs []string) Keyboard {
	kb := make(Keyboard, 0, len(slugs)+1)
	for _, slug := range slugs {
		kb = append(kb, []Button{{Text: chainName(slug), Data: prefix + slug}})
	}
	return append(kb, []Button{{Text: "Cancel", Data: actionCancelMigration}})
}

func chainName(slug string) string {
	if c, err := id.ParseChain(slug); err == nil {
		return c.Name
	}
	return slug
}

func transferConfirmText(s TransferState) string {
	return fmt.Sprintf("Please confirm the transfer:\nTicker: %s\nRecipient: %s\nAmount: %s", s.Ticker, s.Recipient, s.Amount)
}

func walletCreatedText(address, sealed string) string {
	return strings.Join([]string{
		"New wallet created:",
		"",
		"Address: " + address,
		"Encrypted Private Key: " + sealed,
		"",
		"IMPORTANT:",
		"1. The bot only stores your key encrypted and never shows it in plain text.",
		"2. Fund this address before transferring or migrating assets.",
	}, "\n")
}
