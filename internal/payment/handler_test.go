package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/frahmantamala/course-checkout/internal"
	paymentmodel "github.com/frahmantamala/course-checkout/internal/core/datamodel/payment"
	paymentpkg "github.com/frahmantamala/course-checkout/internal/payment"
	"github.com/frahmantamala/course-checkout/pkg/logger"
)

type mockCheckoutService struct {
	snapshot   paymentpkg.Snapshot
	validation paymentpkg.MethodValidation
	history    []*paymentmodel.Transaction
	err        error

	lastPrincipal internal.Principal
	lastSession   string
	lastInput     *paymentpkg.PaymentMethodInput
}

func (m *mockCheckoutService) Open(_ context.Context, p internal.Principal, enrollmentID int64) (paymentpkg.Snapshot, error) {
	m.lastPrincipal = p
	m.snapshot.EnrollmentID = enrollmentID
	return m.snapshot, m.err
}

func (m *mockCheckoutService) Get(_ context.Context, p internal.Principal, sessionID string) (paymentpkg.Snapshot, error) {
	m.lastPrincipal, m.lastSession = p, sessionID
	return m.snapshot, m.err
}

func (m *mockCheckoutService) UpdateInput(_ context.Context, p internal.Principal, sessionID string, in paymentpkg.PaymentMethodInput) (paymentpkg.MethodValidation, paymentpkg.Snapshot, error) {
	m.lastPrincipal, m.lastSession, m.lastInput = p, sessionID, &in
	return m.validation, m.snapshot, m.err
}

func (m *mockCheckoutService) Pay(_ context.Context, p internal.Principal, sessionID string, in *paymentpkg.PaymentMethodInput) (paymentpkg.Snapshot, error) {
	m.lastPrincipal, m.lastSession, m.lastInput = p, sessionID, in
	return m.snapshot, m.err
}

func (m *mockCheckoutService) Retry(_ context.Context, p internal.Principal, sessionID string) (paymentpkg.Snapshot, error) {
	m.lastPrincipal, m.lastSession = p, sessionID
	return m.snapshot, m.err
}

func (m *mockCheckoutService) Cancel(_ context.Context, p internal.Principal, sessionID string) (paymentpkg.Snapshot, error) {
	m.lastPrincipal, m.lastSession = p, sessionID
	return m.snapshot, m.err
}

func (m *mockCheckoutService) History(_ context.Context, p internal.Principal, enrollmentID int64) ([]*paymentmodel.Transaction, error) {
	m.lastPrincipal = p
	m.snapshot.EnrollmentID = enrollmentID
	return m.history, m.err
}

func withPrincipal(p *internal.Principal) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p != nil {
				r = r.WithContext(internal.ContextWithPrincipal(r.Context(), *p))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decodeError(body []byte) internal.ErrorCode {
	var resp struct {
		Error struct {
			Code internal.ErrorCode `json:"code"`
		} `json:"error"`
	}
	gomega.Expect(json.Unmarshal(body, &resp)).To(gomega.Succeed())
	return resp.Error.Code
}

var _ = ginkgo.Describe("PaymentHandler", func() {
	var (
		service   *mockCheckoutService
		principal *internal.Principal
		router    chi.Router
		recorder  *httptest.ResponseRecorder
	)

	ginkgo.BeforeEach(func() {
		service = &mockCheckoutService{
			snapshot: paymentpkg.Snapshot{SessionID: "session_1", State: paymentpkg.StateMethod, Amount: 1500, FormattedAmount: "₹1,500"},
		}
		principal = &internal.Principal{UserID: 7, Role: internal.RoleLearner}
		recorder = httptest.NewRecorder()
	})

	serve := func(method, target string, body []byte) {
		handler := paymentpkg.NewHandler(service, logger.Discard())
		router = chi.NewRouter()
		router.Use(withPrincipal(principal))
		router.Post("/enrollments/{id}/checkout", handler.OpenCheckout)
		router.Get("/enrollments/{id}/payments", handler.PaymentHistory)
		router.Get("/checkout/methods", handler.ListMethods)
		router.Get("/checkout/{sessionID}", handler.GetCheckout)
		router.Post("/checkout/{sessionID}/input", handler.UpdateInput)
		router.Post("/checkout/{sessionID}/pay", handler.Pay)
		router.Post("/checkout/{sessionID}/retry", handler.Retry)
		router.Post("/checkout/{sessionID}/cancel", handler.Cancel)

		req := httptest.NewRequest(method, target, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(recorder, req)
	}

	ginkgo.Context("OpenCheckout", func() {
		ginkgo.It("should open a checkout for the enrollment", func() {
			serve("POST", "/enrollments/11/checkout", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusCreated))
			var resp paymentpkg.CheckoutResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Checkout.SessionID).To(gomega.Equal("session_1"))
			gomega.Expect(resp.Checkout.EnrollmentID).To(gomega.Equal(int64(11)))
			gomega.Expect(service.lastPrincipal.UserID).To(gomega.Equal(int64(7)))
		})

		ginkgo.It("should reject a non-numeric enrollment id", func() {
			serve("POST", "/enrollments/abc/checkout", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should require authentication", func() {
			principal = nil
			serve("POST", "/enrollments/11/checkout", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnauthorized))
		})

		ginkgo.It("should map service errors to their status", func() {
			service.err = internal.ErrAlreadyPaid
			serve("POST", "/enrollments/11/checkout", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
			gomega.Expect(decodeError(recorder.Body.Bytes())).To(gomega.Equal(internal.ErrCodeAlreadyPaid))
		})

		ginkgo.It("should hide unexpected errors behind a 500", func() {
			service.err = errors.New("database error")
			serve("POST", "/enrollments/11/checkout", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusInternalServerError))
			gomega.Expect(recorder.Body.String()).ToNot(gomega.ContainSubstring("database error"))
		})
	})

	ginkgo.Context("PaymentHistory", func() {
		ginkgo.It("should list the recorded payments for the enrollment", func() {
			txnID := "TXN000000000001"
			service.history = []*paymentmodel.Transaction{
				{ID: 2, EnrollmentID: 11, TransactionID: &txnID, Amount: 1500, Currency: "INR", Status: paymentmodel.StatusSuccess, PaymentMethod: "card"},
			}
			serve("GET", "/enrollments/11/payments", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp struct {
				EnrollmentID int64 `json:"enrollment_id"`
				Payments     []struct {
					TransactionID string `json:"transaction_id"`
					Status        string `json:"status"`
				} `json:"payments"`
			}
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.EnrollmentID).To(gomega.Equal(int64(11)))
			gomega.Expect(resp.Payments).To(gomega.HaveLen(1))
			gomega.Expect(resp.Payments[0].TransactionID).To(gomega.Equal(txnID))
			gomega.Expect(resp.Payments[0].Status).To(gomega.Equal("success"))
		})

		ginkgo.It("should map access errors to 403", func() {
			service.err = internal.ErrUnauthorizedAccess
			serve("GET", "/enrollments/11/payments", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusForbidden))
		})
	})

	ginkgo.Context("ListMethods", func() {
		ginkgo.It("should list methods and UPI apps", func() {
			serve("GET", "/checkout/methods", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			var resp paymentpkg.MethodsResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Methods).To(gomega.HaveLen(4))
			gomega.Expect(resp.UPIApps).To(gomega.HaveLen(4))
		})
	})

	ginkgo.Context("GetCheckout", func() {
		ginkgo.It("should return not found for an unknown session", func() {
			service.err = internal.ErrSessionNotFound
			serve("GET", "/checkout/session_x", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusNotFound))
			gomega.Expect(service.lastSession).To(gomega.Equal("session_x"))
		})
	})

	ginkgo.Context("UpdateInput", func() {
		ginkgo.It("should pass the input through and return validation", func() {
			service.validation = paymentpkg.MethodValidation{Kind: paymentpkg.MethodUPI, Valid: true}
			body, _ := json.Marshal(map[string]interface{}{
				"method": "upi",
				"upi":    map[string]string{"upi_id": "9876543210@paytm"},
			})
			serve("POST", "/checkout/session_1/input", body)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(service.lastInput.Kind).To(gomega.Equal(paymentpkg.MethodUPI))
			gomega.Expect(service.lastInput.UPI.ID).To(gomega.Equal("9876543210@paytm"))

			var resp paymentpkg.InputResponse
			gomega.Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(gomega.Succeed())
			gomega.Expect(resp.Validation.Valid).To(gomega.BeTrue())
		})

		ginkgo.It("should require a method", func() {
			serve("POST", "/checkout/session_1/input", []byte(`{}`))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should reject invalid JSON", func() {
			serve("POST", "/checkout/session_1/input", []byte("invalid json"))

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusBadRequest))
		})
	})

	ginkgo.Context("Pay", func() {
		ginkgo.It("should accept a payment that is processing", func() {
			service.snapshot.State = paymentpkg.StateProcessing
			body, _ := json.Marshal(map[string]interface{}{
				"input": map[string]interface{}{
					"method": "card",
					"card": map[string]string{
						"card_number": "4111111111111111", "expiry_date": "12/27", "cvv": "123", "cardholder_name": "Asha Rao",
					},
				},
			})
			serve("POST", "/checkout/session_1/pay", body)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusAccepted))
			gomega.Expect(service.lastInput.Card.Number).To(gomega.Equal("4111111111111111"))
		})

		ginkgo.It("should accept an empty body", func() {
			service.snapshot.State = paymentpkg.StateSuccess
			serve("POST", "/checkout/session_1/pay", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(service.lastInput).To(gomega.BeNil())
		})

		ginkgo.It("should return 422 for inputs that fail validation", func() {
			service.err = internal.NewFieldErrors([]internal.ValidationError{{Field: "cvv", Message: "Enter a valid CVV", Code: "INVALID_CVV"}})
			serve("POST", "/checkout/session_1/pay", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusUnprocessableEntity))
		})

		ginkgo.It("should return conflict while a payment is in progress", func() {
			service.err = internal.ErrPaymentInProgress
			serve("POST", "/checkout/session_1/pay", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
			gomega.Expect(decodeError(recorder.Body.Bytes())).To(gomega.Equal(internal.ErrCodePaymentInProgress))
		})
	})

	ginkgo.Context("Retry and Cancel", func() {
		ginkgo.It("should retry a failed checkout", func() {
			serve("POST", "/checkout/session_1/retry", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(service.lastSession).To(gomega.Equal("session_1"))
		})

		ginkgo.It("should refuse cancel while processing", func() {
			service.err = internal.ErrCancelNotAllowed
			serve("POST", "/checkout/session_1/cancel", nil)

			gomega.Expect(recorder.Code).To(gomega.Equal(http.StatusConflict))
			gomega.Expect(decodeError(recorder.Body.Bytes())).To(gomega.Equal(internal.ErrCodeCancelNotAllowed))
		})
	})
})
