package routes

import (
	"net/http"

	"tour-marketplace-server/models"
	"tour-marketplace-server/utils"

	"github.com/kataras/iris/v12"
)

// ListVerificationRequests - GET /requests?status=&page=&per_page= (admin)
func ListVerificationRequests(ctx iris.Context) {
	page, perPage := pageParams(ctx)
	status := ctx.URLParamDefault("status", "")
	if status != "" &&
		status != models.VerificationStatusPending &&
		status != models.VerificationStatusApproved &&
		status != models.VerificationStatusRejected {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_status", "status must be pending, approved or rejected")
		return
	}

	requests, total, err := verificationService().ListRequests(status, page, perPage)
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	utils.JSONPage(ctx, requests, page, perPage, total)
}

// DecideVerificationRequest - PUT /requests/:id/status { status, note } (admin)
func DecideVerificationRequest(ctx iris.Context) {
	adminID, ok := currentUserID(ctx)
	if !ok {
		return
	}

	requestID := ctx.Params().GetUintDefault("id", 0)
	if requestID == 0 {
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_id", "invalid request id")
		return
	}

	var body struct {
		Status string `json:"status"`
		Note   string `json:"note"`
	}
	if err := ctx.ReadJSON(&body); err != nil ||
		(body.Status != models.VerificationStatusApproved && body.Status != models.VerificationStatusRejected) {
		utils.JSONError(ctx, http.StatusUnprocessableEntity, "invalid_payload", "status must be approved or rejected")
		return
	}

	request, err := verificationService().Decide(requestID, adminID, body.Status, body.Note)
	if err != nil {
		mapServiceError(ctx, err)
		return
	}

	utils.Audit(ctx, "verification.decide", "verification_request", request.ID, nil, request)
	ctx.JSON(iris.Map{"success": true, "data": request})
}
