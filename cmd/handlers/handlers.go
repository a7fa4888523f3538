// Package handlers exposes the HTTP surface of the orchestration engine.
// Handlers only translate between the wire and the pipeline; no payment
// logic lives here.
package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/payflow-engine/payflow/internal/apierror"
	"github.com/payflow-engine/payflow/internal/pipeline"
	"github.com/payflow-engine/payflow/internal/webhook"
)

var (
	Pipeline *pipeline.Service
	Webhooks *webhook.Processor
)

// merchantID pulls the caller identity set by the auth middleware upstream;
// the X-Merchant-Id header stands in for a full API-key layer.
func merchantID(c *fiber.Ctx) string {
	return c.Get("X-Merchant-Id")
}

// renderError maps pipeline errors onto HTTP replies. Anything that is not
// an APIError is an internal failure and must not leak details.
func renderError(c *fiber.Ctx, err error) error {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		return c.Status(apiErr.StatusCode).JSON(apiErr)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(apierror.Internal("unexpected error"))
}

func HandleCreatePayment(c *fiber.Ctx) error {
	var req pipeline.CreatePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, apierror.InvalidRequest("malformed request body"))
	}
	req.MerchantID = merchantID(c)
	resp, err := Pipeline.CreatePayment(c.Context(), &req)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func HandleConfirmPayment(c *fiber.Ctx) error {
	var req pipeline.ConfirmPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, apierror.InvalidRequest("malformed request body"))
	}
	req.MerchantID = merchantID(c)
	req.PaymentID = c.Params("payment_id")
	resp, err := Pipeline.ConfirmPayment(c.Context(), &req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(resp)
}

func HandleCapturePayment(c *fiber.Ctx) error {
	var req pipeline.CapturePaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, apierror.InvalidRequest("malformed request body"))
	}
	req.MerchantID = merchantID(c)
	req.PaymentID = c.Params("payment_id")
	resp, err := Pipeline.CapturePayment(c.Context(), &req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(resp)
}

func HandleCancelPayment(c *fiber.Ctx) error {
	var req pipeline.CancelPaymentRequest
	// The cancellation body is optional.
	_ = c.BodyParser(&req)
	req.MerchantID = merchantID(c)
	req.PaymentID = c.Params("payment_id")
	resp, err := Pipeline.CancelPayment(c.Context(), &req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(resp)
}

func HandleGetPayment(c *fiber.Ctx) error {
	resp, err := Pipeline.SyncPayment(c.Context(), &pipeline.SyncPaymentRequest{
		MerchantID: merchantID(c),
		PaymentID:  c.Params("payment_id"),
		ForceSync:  c.QueryBool("force_sync"),
	})
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(resp)
}

func HandleCreateSession(c *fiber.Ctx) error {
	var req pipeline.CreateSessionRequest
	// The session body is optional.
	_ = c.BodyParser(&req)
	req.MerchantID = merchantID(c)
	req.PaymentID = c.Params("payment_id")
	resp, err := Pipeline.CreateSession(c.Context(), &req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(resp)
}

func HandleSetupMandate(c *fiber.Ctx) error {
	var req pipeline.SetupMandateRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, apierror.InvalidRequest("malformed request body"))
	}
	req.MerchantID = merchantID(c)
	resp, err := Pipeline.SetupMandate(c.Context(), &req)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(resp)
}

func HandleCreateRefund(c *fiber.Ctx) error {
	var req pipeline.CreateRefundRequest
	if err := c.BodyParser(&req); err != nil {
		return renderError(c, apierror.InvalidRequest("malformed request body"))
	}
	req.MerchantID = merchantID(c)
	resp, err := Pipeline.CreateRefund(c.Context(), &req)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func HandleGetRefund(c *fiber.Ctx) error {
	resp, err := Pipeline.SyncRefund(c.Context(), &pipeline.SyncRefundRequest{
		MerchantID: merchantID(c),
		RefundID:   c.Params("refund_id"),
		ForceSync:  c.QueryBool("force_sync"),
	})
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(resp)
}

// HandleWebhook receives connector notifications. The merchant and connector
// identities come from the URL the merchant registered with the processor.
func HandleWebhook(c *fiber.Ctx) error {
	headers := make(map[string]string)
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[string(key)] = string(value)
	})
	outcome, err := Webhooks.Process(
		c.Context(),
		c.Params("merchant_id"),
		c.Params("connector"),
		c.Body(),
		headers,
	)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(outcome)
}
