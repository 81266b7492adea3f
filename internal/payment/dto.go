package payment

import (
	errors "github.com/frahmantamala/course-checkout/internal"
	paymentmodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/payment"
	"github.com/frahmantamala/course-checkout/internal/core/common/validation"
)

// InputRequest is the body of POST /checkout/{sessionID}/input.
type InputRequest struct {
	PaymentMethodInput
}

func (r *InputRequest) Validate() error {
	validator := validation.NewValidator()

	validator.Field("method", string(r.Kind)).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// PayRequest is the optional body of POST /checkout/{sessionID}/pay.
// An empty body pays with the input already on the checkout.
type PayRequest struct {
	Method *PaymentMethodInput `json:"input,omitempty"`
}

func (r *PayRequest) Validate() error {
	if r.Method == nil {
		return nil
	}
	validator := validation.NewValidator()

	validator.Field("input.method", string(r.Method.Kind)).Required()

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

type InputResponse struct {
	Validation MethodValidation `json:"validation"`
	Checkout   Snapshot         `json:"checkout"`
}

type MethodsResponse struct {
	Methods []MethodInfo `json:"methods"`
	UPIApps []UPIApp     `json:"upi_apps"`
}

type HistoryResponse struct {
	EnrollmentID int64                       `json:"enrollment_id"`
	Payments     []*paymentmodel.Transaction `json:"payments"`
}

type CheckoutResponse struct {
	Checkout Snapshot `json:"checkout"`
}

func checkoutResponse(s Snapshot) CheckoutResponse {
	return CheckoutResponse{Checkout: s}
}

var errInvalidBody = errors.NewValidationError("invalid request body", errors.ErrCodeValidationFailed)
