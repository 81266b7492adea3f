package payment

import (
	"time"

	"github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/core/common/validation"
)

type MethodKind string

const (
	MethodCard       MethodKind = "card"
	MethodUPI        MethodKind = "upi"
	MethodNetBanking MethodKind = "netbanking"
	MethodWallet     MethodKind = "wallet"
	MethodFree       MethodKind = "free"
)

// Payable reports whether the method has a gateway path.
func (k MethodKind) Payable() bool {
	return k == MethodCard || k == MethodUPI
}

type MethodInfo struct {
	Kind      MethodKind `json:"kind"`
	Label     string     `json:"label"`
	Available bool       `json:"available"`
}

func Methods() []MethodInfo {
	return []MethodInfo{
		{Kind: MethodCard, Label: "Credit / Debit Card", Available: true},
		{Kind: MethodUPI, Label: "UPI", Available: true},
		{Kind: MethodNetBanking, Label: "Net Banking", Available: false},
		{Kind: MethodWallet, Label: "Wallet", Available: false},
	}
}

type CardInput struct {
	Number string `json:"card_number"`
	Expiry string `json:"expiry_date"`
	CVV    string `json:"cvv"`
	Name   string `json:"cardholder_name"`
}

// UPIInput is either an app selection or a manually entered UPI id; App wins when both are set.
type UPIInput struct {
	App string `json:"app,omitempty"`
	ID  string `json:"upi_id,omitempty"`
}

type PaymentMethodInput struct {
	Kind MethodKind `json:"method"`
	Card *CardInput `json:"card,omitempty"`
	UPI  *UPIInput  `json:"upi,omitempty"`
}

type MethodValidation struct {
	Kind     MethodKind                 `json:"method"`
	Valid    bool                       `json:"is_valid"`
	Fields   map[string]bool            `json:"fields"`
	Errors   []internal.ValidationError `json:"errors,omitempty"`
	CardType CardType                   `json:"card_type,omitempty"`
}

// Validate returns the inline view: empty fields are incomplete but carry no error.
func (in PaymentMethodInput) Validate(now time.Time) MethodValidation {
	return in.check(now, false)
}

// SubmissionErrors reports every field that blocks payment, including empty ones.
func (in PaymentMethodInput) SubmissionErrors(now time.Time) []internal.ValidationError {
	return in.check(now, true).Errors
}

func (in PaymentMethodInput) check(now time.Time, strict bool) MethodValidation {
	mv := MethodValidation{Kind: in.Kind, Fields: map[string]bool{}}
	v := validation.NewValidator()

	field := func(name, value string, ok bool, message string, code internal.ErrorCode) {
		mv.Fields[name] = ok
		if value == "" && !strict {
			return
		}
		v.Field(name, value).Required().Check(ok, message, code)
	}

	switch in.Kind {
	case MethodCard:
		c := CardInput{}
		if in.Card != nil {
			c = *in.Card
		}
		field("card_number", c.Number, ValidateCardNumber(c.Number), "Enter a valid card number", internal.ErrCodeInvalidCardNumber)
		field("expiry_date", c.Expiry, ValidateExpiryDate(c.Expiry, now), "Enter a valid expiry date (MM/YY)", internal.ErrCodeInvalidExpiry)
		field("cvv", c.CVV, ValidateCVV(c.CVV), "Enter a valid CVV", internal.ErrCodeInvalidCVV)
		field("cardholder_name", c.Name, ValidateCardholderName(c.Name), "Enter the name shown on the card", internal.ErrCodeInvalidName)
		mv.CardType = GetCardType(c.Number)
	case MethodUPI:
		u := UPIInput{}
		if in.UPI != nil {
			u = *in.UPI
		}
		if u.App != "" {
			field("upi_app", u.App, IsKnownUPIApp(u.App), "Select a supported UPI app", internal.ErrCodeInvalidUPIApp)
		} else {
			res := ValidateUPIID(u.ID)
			mv.Fields["upi_id"] = res.Valid
			if res.ShowError || (strict && !res.Valid) {
				v.Field("upi_id", u.ID).Required().Check(res.Valid, "Enter a valid UPI ID (e.g. name@bank)", internal.ErrCodeInvalidUPI)
			}
		}
	case MethodNetBanking, MethodWallet:
		v.Field("method", string(in.Kind)).Check(false, "This payment method is not available yet", internal.ErrCodeUnsupportedMethod)
	default:
		if strict || in.Kind != "" {
			v.Field("method", string(in.Kind)).Check(false, "Select a payment method", internal.ErrCodeUnsupportedMethod)
		}
	}

	mv.Errors = v.Errors()
	mv.Valid = in.Kind.Payable() && len(mv.Errors) == 0
	for _, ok := range mv.Fields {
		mv.Valid = mv.Valid && ok
	}
	return mv
}

// Masked returns a copy safe to echo back or log.
func (in PaymentMethodInput) Masked() PaymentMethodInput {
	out := PaymentMethodInput{Kind: in.Kind}
	if in.Card != nil {
		out.Card = &CardInput{
			Number: MaskCardNumber(in.Card.Number),
			Expiry: in.Card.Expiry,
			Name:   in.Card.Name,
		}
		if in.Card.CVV != "" {
			out.Card.CVV = "***"
		}
	}
	if in.UPI != nil {
		out.UPI = &UPIInput{App: in.UPI.App, ID: MaskUPIID(in.UPI.ID)}
		if in.UPI.ID == "" {
			out.UPI.ID = ""
		}
	}
	return out
}

// Summary describes the method for the stored gateway response.
func (in PaymentMethodInput) Summary() map[string]string {
	s := map[string]string{"method": string(in.Kind)}
	switch {
	case in.Kind == MethodCard && in.Card != nil:
		s["card_type"] = string(GetCardType(in.Card.Number))
		s["card_number"] = MaskCardNumber(in.Card.Number)
	case in.Kind == MethodUPI && in.UPI != nil:
		if in.UPI.App != "" {
			s["upi_app"] = in.UPI.App
		} else {
			s["upi_id"] = MaskUPIID(in.UPI.ID)
		}
	}
	return s
}
