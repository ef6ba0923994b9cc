package marketplace

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var nairaPrinter = message.NewPrinter(language.English)

// FormatNaira renders amount with grouping, e.g. ₦12,500.00.
func FormatNaira(amount float64) string {
	if amount < 0 {
		return "-" + nairaPrinter.Sprintf("₦%.2f", -amount)
	}
	return nairaPrinter.Sprintf("₦%.2f", amount)
}
