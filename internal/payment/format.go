package payment

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// AmountFormatter renders whole currency units with locale grouping and no fraction.
type AmountFormatter struct {
	symbol  string
	printer *message.Printer
}

func NewAmountFormatter(locale, symbol string) *AmountFormatter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.MustParse("en-IN")
	}
	return &AmountFormatter{symbol: symbol, printer: message.NewPrinter(tag)}
}

func (f *AmountFormatter) Format(amount int64) string {
	if amount < 0 {
		return "-" + f.symbol + f.printer.Sprintf("%d", -amount)
	}
	return f.symbol + f.printer.Sprintf("%d", amount)
}

var defaultFormatter = NewAmountFormatter("en-IN", "₹")

// FormatAmount uses the en-IN / ₹ pair.
func FormatAmount(amount int64) string {
	return defaultFormatter.Format(amount)
}
