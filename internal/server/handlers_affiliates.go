package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/gin-gonic/gin"
)

func (h *httpHandler) handleListAffiliates(c *gin.Context) {
	records, err := h.affiliates.List(c.Request.Context())
	if err != nil {
		h.writeAffiliateError(c, "affiliates.list", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *httpHandler) handleAffiliateStats(c *gin.Context) {
	summary, err := h.affiliates.Summary(c.Request.Context())
	if err != nil {
		h.writeAffiliateError(c, "affiliates.summary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *httpHandler) handleCreateAffiliate(c *gin.Context) {
	var request affiliates.CreateRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		invalidRequest(c, "Request body must be JSON")
		return
	}
	if request.Status == "" {
		request.Status = affiliates.StatusActive
	}

	record, err := h.affiliates.Create(c.Request.Context(), request)
	if err != nil {
		h.writeAffiliateError(c, "affiliates.create", err)
		return
	}
	h.publish(c, affiliates.ChangeCreated, record)
	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) handleApproveAffiliate(c *gin.Context) {
	id, ok := affiliateIDParam(c)
	if !ok {
		return
	}
	record, err := h.affiliates.Approve(c.Request.Context(), id)
	if err != nil {
		h.writeAffiliateError(c, "affiliates.approve", err)
		return
	}
	h.publish(c, affiliates.ChangeApproved, record)
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleSuspendAffiliate(c *gin.Context) {
	id, ok := affiliateIDParam(c)
	if !ok {
		return
	}
	record, err := h.affiliates.Suspend(c.Request.Context(), id)
	if err != nil {
		h.writeAffiliateError(c, "affiliates.suspend", err)
		return
	}
	h.publish(c, affiliates.ChangeSuspended, record)
	c.JSON(http.StatusOK, record)
}

var jsonNull = []byte("null")

// handlePatchAffiliate accepts {"status": ..., "approvedAt": null, "suspendedAt": null}.
// An explicit null clears the timestamp; an absent key leaves it as is. Timestamps cannot be set here.
func (h *httpHandler) handlePatchAffiliate(c *gin.Context) {
	id, ok := affiliateIDParam(c)
	if !ok {
		return
	}

	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		invalidRequest(c, "Request body must be a JSON object")
		return
	}

	var rawStatus string
	if err := json.Unmarshal(body["status"], &rawStatus); err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{
			Error:   "affiliates.patch_status.invalid_request",
			Message: "Validation failed",
			Fields:  map[string]string{"status": "Status is invalid"},
		})
		return
	}
	status, err := affiliates.ParseStatus(rawStatus)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{
			Error:   "affiliates.patch_status.invalid_request",
			Message: "Validation failed",
			Fields:  map[string]string{"status": "Status is invalid"},
		})
		return
	}

	patch := affiliates.StatusPatch{Status: status}
	fields := map[string]string{}
	if raw, present := body["approvedAt"]; present {
		if !bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			fields["approvedAt"] = "Only null is accepted"
		}
		patch.ClearApproval = true
	}
	if raw, present := body["suspendedAt"]; present {
		if !bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
			fields["suspendedAt"] = "Only null is accepted"
		}
		patch.ClearSuspension = true
	}
	if len(fields) > 0 {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "affiliates.patch_status.invalid_request", Message: "Validation failed", Fields: fields})
		return
	}

	record, err := h.affiliates.PatchStatus(c.Request.Context(), id, patch)
	if err != nil {
		h.writeAffiliateError(c, "affiliates.patch_status", err)
		return
	}
	h.publish(c, affiliates.ChangePatched, record)
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleDeleteAffiliate(c *gin.Context) {
	id, ok := affiliateIDParam(c)
	if !ok {
		return
	}
	if err := h.affiliates.Delete(c.Request.Context(), id); err != nil {
		h.writeAffiliateError(c, "affiliates.delete", err)
		return
	}
	h.publish(c, affiliates.ChangeDeleted, affiliates.Record{ID: id.String()})
	c.Status(http.StatusNoContent)
}

func affiliateIDParam(c *gin.Context) (affiliates.AffiliateID, bool) {
	id, err := affiliates.NewAffiliateID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_affiliate_id", Message: "Invalid affiliate id"})
		return "", false
	}
	return id, true
}

func (h *httpHandler) publish(c *gin.Context, action affiliates.ChangeAction, record affiliates.Record) {
	h.metrics.recordMutation(string(action))
	event := affiliates.ChangeEvent{
		Action:       action,
		AffiliateIDs: []string{record.ID},
		Status:       record.Status,
	}
	if claims, ok := sessionClaims(c); ok {
		event.ActorID = claims.UserID
	}
	h.realtime.Publish(event)
}
