package payment_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/frahmantamala/course-checkout/internal"
	"github.com/frahmantamala/course-checkout/internal/payment"
)

var _ = Describe("Card validators", func() {
	DescribeTable("ValidateCardNumber",
		func(input string, expected bool) {
			Expect(payment.ValidateCardNumber(input)).To(Equal(expected))
		},
		Entry("test visa", "4111111111111111", true),
		Entry("checksum off by one", "4111111111111112", false),
		Entry("spaces are ignored", "4111 1111 1111 1111", true),
		Entry("amex", "378282246310005", true),
		Entry("mastercard", "5555555555554444", true),
		Entry("12 digits is too short", "411111111111", false),
		Entry("20 digits is too long", "41111111111111111113", false),
		Entry("letters", "4111a11111111111", false),
		Entry("empty", "", false),
	)

	DescribeTable("ValidateExpiryDate in March 2025",
		func(input string, expected bool) {
			Expect(payment.ValidateExpiryDate(input, march2025)).To(Equal(expected))
		},
		Entry("previous month", "02/25", false),
		Entry("current month", "03/25", true),
		Entry("next month", "04/25", true),
		Entry("month 13", "13/25", false),
		Entry("month 00", "00/26", false),
		Entry("last year", "12/24", false),
		Entry("far future", "01/39", true),
		Entry("missing slash", "0325", false),
		Entry("four digit year", "03/2025", false),
	)

	DescribeTable("ValidateCVV",
		func(input string, expected bool) {
			Expect(payment.ValidateCVV(input)).To(Equal(expected))
		},
		Entry("three digits", "123", true),
		Entry("four digits", "1234", true),
		Entry("two digits", "12", false),
		Entry("five digits", "12345", false),
		Entry("letters", "12a", false),
	)

	DescribeTable("ValidateCardholderName",
		func(input string, expected bool) {
			Expect(payment.ValidateCardholderName(input)).To(Equal(expected))
		},
		Entry("plain name", "Asha Rao", true),
		Entry("punctuation", "Mary-Jane O'Neil Jr.", true),
		Entry("single letter", "A", false),
		Entry("blank", "   ", false),
		Entry("digits", "Agent 47", false),
	)

	DescribeTable("GetCardType",
		func(input string, expected payment.CardType) {
			Expect(payment.GetCardType(input)).To(Equal(expected))
		},
		Entry("visa", "4111111111111111", payment.CardTypeVisa),
		Entry("mastercard 5x", "5555555555554444", payment.CardTypeMastercard),
		Entry("mastercard 2x", "2221000000000009", payment.CardTypeMastercard),
		Entry("amex", "378282246310005", payment.CardTypeAmex),
		Entry("discover", "6011111111111117", payment.CardTypeDiscover),
		Entry("unknown", "9999999999999995", payment.CardTypeUnknown),
	)

	It("groups card numbers in blocks of four and caps the length", func() {
		Expect(payment.FormatCardNumber("4111111111111111")).To(Equal("4111 1111 1111 1111"))
		Expect(payment.FormatCardNumber("41111")).To(Equal("4111 1"))
		Expect(payment.FormatCardNumber("4111-1111-1111-1111-999")).To(HaveLen(19))
	})

	It("inserts the expiry slash after two digits", func() {
		Expect(payment.FormatExpiryDate("0")).To(Equal("0"))
		Expect(payment.FormatExpiryDate("03")).To(Equal("03"))
		Expect(payment.FormatExpiryDate("032")).To(Equal("03/2"))
		Expect(payment.FormatExpiryDate("03/259")).To(Equal("03/25"))
	})

	It("masks all but the last four digits", func() {
		Expect(payment.MaskCardNumber("4111 1111 1111 1111")).To(Equal("************1111"))
	})
})

var _ = Describe("UPI validators", func() {
	It("accepts a handle@bank id", func() {
		Expect(payment.ValidateUPIID("9876543210@paytm")).To(Equal(payment.UPIValidation{Valid: true}))
		Expect(payment.ValidateUPIID("asha.rao@okhdfcbank").Valid).To(BeTrue())
	})

	It("flags a malformed id as an error", func() {
		res := payment.ValidateUPIID("bad id@@x")
		Expect(res.Valid).To(BeFalse())
		Expect(res.ShowError).To(BeTrue())
	})

	It("treats an empty id as incomplete, not an error", func() {
		res := payment.ValidateUPIID("")
		Expect(res.Valid).To(BeFalse())
		Expect(res.ShowError).To(BeFalse())
	})

	It("knows the supported apps", func() {
		Expect(payment.IsKnownUPIApp("gpay")).To(BeTrue())
		Expect(payment.IsKnownUPIApp("venmo")).To(BeFalse())
		Expect(payment.UPIApps()).To(HaveLen(4))
	})

	It("masks the local part of an id", func() {
		Expect(payment.MaskUPIID("9876543210@paytm")).To(Equal("98********@paytm"))
	})
})

var _ = Describe("FormatAmount", func() {
	It("renders whole rupees with grouping and no decimals", func() {
		Expect(payment.FormatAmount(1500)).To(Equal("₹1,500"))
		Expect(payment.FormatAmount(0)).To(Equal("₹0"))
		Expect(payment.FormatAmount(999)).To(Equal("₹999"))
	})

	It("never emits a decimal separator", func() {
		for _, amount := range []int64{1, 1500, 49999, 1250000} {
			Expect(strings.Contains(payment.FormatAmount(amount), ".")).To(BeFalse())
		}
	})

	It("honours a configured symbol", func() {
		f := payment.NewAmountFormatter("en-US", "$")
		Expect(f.Format(1500)).To(Equal("$1,500"))
	})
})

var _ = Describe("PaymentMethodInput", func() {
	It("is valid for a complete card", func() {
		v := validCard().Validate(march2025)
		Expect(v.Valid).To(BeTrue())
		Expect(v.Errors).To(BeEmpty())
		Expect(v.CardType).To(Equal(payment.CardTypeVisa))
	})

	It("shows no inline errors for untouched card fields", func() {
		in := payment.PaymentMethodInput{Kind: payment.MethodCard, Card: &payment.CardInput{Number: "4111111111111111"}}

		v := in.Validate(march2025)

		Expect(v.Valid).To(BeFalse())
		Expect(v.Errors).To(BeEmpty())
		Expect(v.Fields).To(HaveKeyWithValue("card_number", true))
		Expect(v.Fields).To(HaveKeyWithValue("cvv", false))
	})

	It("reports every blocking field on submission", func() {
		in := payment.PaymentMethodInput{Kind: payment.MethodCard, Card: &payment.CardInput{Number: "4111111111111112"}}

		errs := in.SubmissionErrors(march2025)

		fields := []string{}
		for _, e := range errs {
			fields = append(fields, e.Field)
		}
		Expect(fields).To(ConsistOf("card_number", "expiry_date", "cvv", "cardholder_name"))
		Expect(errs[0].Code).To(Equal(string(internal.ErrCodeInvalidCardNumber)))
	})

	It("accepts a UPI app selection without an id", func() {
		in := payment.PaymentMethodInput{Kind: payment.MethodUPI, UPI: &payment.UPIInput{App: "phonepe"}}
		Expect(in.Validate(march2025).Valid).To(BeTrue())
	})

	It("rejects an unknown UPI app", func() {
		in := payment.PaymentMethodInput{Kind: payment.MethodUPI, UPI: &payment.UPIInput{App: "venmo"}}
		v := in.Validate(march2025)
		Expect(v.Valid).To(BeFalse())
		Expect(v.Errors[0].Code).To(Equal(string(internal.ErrCodeInvalidUPIApp)))
	})

	It("does not enable an empty UPI id", func() {
		in := payment.PaymentMethodInput{Kind: payment.MethodUPI, UPI: &payment.UPIInput{}}
		v := in.Validate(march2025)
		Expect(v.Valid).To(BeFalse())
		Expect(v.Errors).To(BeEmpty())
		Expect(in.SubmissionErrors(march2025)).To(HaveLen(1))
	})

	It("refuses methods without a gateway path", func() {
		in := payment.PaymentMethodInput{Kind: payment.MethodWallet}
		v := in.Validate(march2025)
		Expect(v.Valid).To(BeFalse())
		Expect(v.Errors[0].Code).To(Equal(string(internal.ErrCodeUnsupportedMethod)))
	})

	It("masks sensitive fields", func() {
		masked := validCard().Masked()
		Expect(masked.Card.Number).To(Equal("************1111"))
		Expect(masked.Card.CVV).To(Equal("***"))
		Expect(masked.Card.Name).To(Equal("Asha Rao"))
	})
})
