package dispatch

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/rickgao/walletstream/internal/notify"
	"github.com/rickgao/walletstream/internal/wire"
)

const defaultCurrency = "KES"

var amountPrinter = message.NewPrinter(language.English)

// FormatAmount renders the magnitude of d with thousands separators and at
// most two fraction digits, e.g. -1500.5 -> "1,500.5".
func FormatAmount(d decimal.Decimal) string {
	f := d.Abs().Round(2).InexactFloat64()
	return amountPrinter.Sprintf("%v", number.Decimal(f, number.MaxFractionDigits(2)))
}

// TransactionToast builds the credit/debit toast for a transaction.
func TransactionToast(tx wire.Transaction) notify.Toast {
	currency := tx.Currency
	if currency == "" {
		currency = defaultCurrency
	}
	amount := currency + " " + FormatAmount(tx.Amount)

	if tx.Polarity() == wire.Credit {
		return notify.Toast{Level: notify.LevelSuccess, Message: "Received " + amount}
	}
	return notify.Toast{Level: notify.LevelInfo, Message: "Sent " + amount}
}

// SystemToast maps the notification level to a toast severity.
func SystemToast(ev wire.SystemNotification) notify.Toast {
	level := notify.LevelInfo
	switch ev.Level {
	case "error":
		level = notify.LevelError
	case "warning":
		level = notify.LevelWarning
	}
	return notify.Toast{Level: level, Message: ev.Message}
}
