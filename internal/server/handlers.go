package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/payway/internal/checkout/domain"
	"gorm.io/datatypes"
)

func parseID(c *gin.Context, param string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(param)))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return 0, false
	}
	return id, true
}

type paymentBody struct {
	Data map[string]string `json:"data"`
}

func (s *Server) ProcessPayment(c *gin.Context) {
	orderID, ok := parseID(c, "order_id")
	if !ok {
		return
	}
	var body paymentBody
	if err := c.ShouldBindJSON(&body); err != nil && err != io.EOF {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	res, err := s.checkoutSvc.ProcessPayment(c.Request.Context(), checkoutdomain.PaymentRequest{
		OrderID: orderID,
		Data:    body.Data,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) PayFromProfile(c *gin.Context) {
	orderID, ok := parseID(c, "order_id")
	if !ok {
		return
	}
	var body paymentBody
	if err := c.ShouldBindJSON(&body); err != nil && err != io.EOF {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	res, err := s.checkoutSvc.PayFromProfile(c.Request.Context(), checkoutdomain.PaymentRequest{
		OrderID: orderID,
		Data:    body.Data,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) OrderStatusChanged(c *gin.Context) {
	orderID, ok := parseID(c, "order_id")
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.checkoutSvc.HandleOrderStatusChanged(c.Request.Context(), orderID, body.Status); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListTransactions(c *gin.Context) {
	orderID, ok := parseID(c, "order_id")
	if !ok {
		return
	}
	entries, err := s.checkoutSvc.ListTransactions(c.Request.Context(), orderID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": entries})
}

func (s *Server) Refund(c *gin.Context) {
	entryID, ok := parseID(c, "id")
	if !ok {
		return
	}
	var body struct {
		Amount int64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&body); err != nil && err != io.EOF {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	err := s.checkoutSvc.Refund(c.Request.Context(), checkoutdomain.RefundRequest{
		EntryID: entryID,
		Amount:  body.Amount,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "refunded"})
}

func (s *Server) Capture(c *gin.Context) {
	entryID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.checkoutSvc.Capture(c.Request.Context(), entryID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "captured"})
}

func (s *Server) CancelAuthorization(c *gin.Context) {
	entryID, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.checkoutSvc.CancelAuthorization(c.Request.Context(), entryID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "voided"})
}

func (s *Server) ListPaymentMethods(c *gin.Context) {
	methods, err := s.methodSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment_methods": methods})
}

func (s *Server) GetPaymentMethod(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	method, err := s.methodSvc.Get(c.Request.Context(), code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	gw, err := s.registry.FindGateway(code)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"payment_method":  method,
		"settings_fields": gw.SettingsFields(),
	})
}

func (s *Server) UpdateMethodSettings(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil || len(raw) == 0 {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.methodSvc.UpdateSettings(c.Request.Context(), code, datatypes.JSON(raw)); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) EnableMethod(c *gin.Context) {
	s.setEnabled(c, true)
}

func (s *Server) DisableMethod(c *gin.Context) {
	s.setEnabled(c, false)
}

func (s *Server) setEnabled(c *gin.Context, enabled bool) {
	code := strings.TrimSpace(c.Param("code"))
	if err := s.methodSvc.SetEnabled(c.Request.Context(), code, enabled); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) SetDefaultMethod(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	if err := s.methodSvc.SetDefault(c.Request.Context(), code); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ListProfiles(c *gin.Context) {
	customerID, ok := parseID(c, "customer_id")
	if !ok {
		return
	}
	profiles, err := s.checkoutSvc.ListProfiles(c.Request.Context(), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profiles": profiles})
}

func (s *Server) UpdateProfile(c *gin.Context) {
	customerID, ok := parseID(c, "customer_id")
	if !ok {
		return
	}
	var body paymentBody
	if err := c.ShouldBindJSON(&body); err != nil && err != io.EOF {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	profile, err := s.checkoutSvc.UpdatePaymentProfile(c.Request.Context(),
		strings.TrimSpace(c.Param("code")), customerID, body.Data)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

func (s *Server) MakePrimaryProfile(c *gin.Context) {
	customerID, ok := parseID(c, "customer_id")
	if !ok {
		return
	}
	err := s.checkoutSvc.MakePrimaryProfile(c.Request.Context(),
		strings.TrimSpace(c.Param("code")), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) DeleteProfile(c *gin.Context) {
	customerID, ok := parseID(c, "customer_id")
	if !ok {
		return
	}
	err := s.checkoutSvc.DeletePaymentProfile(c.Request.Context(),
		strings.TrimSpace(c.Param("code")), customerID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// RunEntryPoint dispatches provider callback URLs of the form
// /payments/{entry_point}/{extra...}.
func (s *Server) RunEntryPoint(c *gin.Context) {
	name := strings.TrimSpace(c.Param("entry_point"))
	rest := splitRest(c.Param("rest"))

	res, err := s.registry.RunEntryPoint(c.Request.Context(), name, rest)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if res.RedirectURL != "" {
		c.Redirect(res.Status, res.RedirectURL)
		return
	}
	status := res.Status
	if status == 0 {
		status = http.StatusOK
	}
	if res.Body != nil {
		c.JSON(status, res.Body)
		return
	}
	c.Status(status)
}

func splitRest(raw string) []string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func (s *Server) HandleWebhook(c *gin.Context) {
	code := strings.TrimSpace(c.Param("code"))
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	if err := s.checkoutSvc.HandleWebhook(c.Request.Context(), code, payload, c.Request.Header); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
