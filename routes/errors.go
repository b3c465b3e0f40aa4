package routes

import (
	"errors"
	"net/http"

	"tour-marketplace-server/services"
	"tour-marketplace-server/utils"

	"github.com/kataras/iris/v12"
)

// mapServiceError translates ledger errors onto the HTTP surface. The
// message stays the sentinel's stable text; gateway errors surface the
// underlying gateway message to the caller.
func mapServiceError(ctx iris.Context, err error) {
	switch {
	case errors.Is(err, services.ErrTourNotFound),
		errors.Is(err, services.ErrBookingNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrRequestNotFound):
		utils.JSONError(ctx, http.StatusNotFound, "not_found", err.Error())

	case errors.Is(err, services.ErrNotOwner):
		utils.JSONError(ctx, http.StatusForbidden, "forbidden", "you do not have access to this resource")

	case errors.Is(err, services.ErrCancellationWindow):
		utils.JSONError(ctx, http.StatusForbidden, "cancellation_window_closed", "bookings cannot be cancelled this close to the trip date")

	case errors.Is(err, services.ErrTourInactive):
		utils.JSONError(ctx, http.StatusBadRequest, "tour_inactive", "this tour is not open for booking")

	case errors.Is(err, services.ErrInvalidStateTransition):
		utils.JSONError(ctx, http.StatusConflict, "invalid_state_transition", err.Error())

	case errors.Is(err, services.ErrRequestPending):
		utils.JSONError(ctx, http.StatusConflict, "request_already_pending", "a verification request is already awaiting review")

	case errors.Is(err, services.ErrSubscriptionRequired):
		utils.JSONError(ctx, http.StatusForbidden, "subscription_required", "start a subscription before submitting verification")

	case errors.Is(err, services.ErrSubscriptionUnpaid):
		utils.JSONError(ctx, http.StatusForbidden, "subscription_unpaid", "the verification subscription has not been paid")

	case errors.Is(err, services.ErrPaymentSetup):
		utils.JSONError(ctx, http.StatusBadGateway, "payment_setup_failed", err.Error())

	case services.IsGatewayError(err):
		utils.JSONError(ctx, http.StatusBadGateway, "payment_gateway_error", err.Error())

	case errors.Is(err, services.ErrReviewNotEligible):
		utils.JSONError(ctx, http.StatusForbidden, "review_not_eligible", "you can only review tours you've completed a booking for")

	case errors.Is(err, services.ErrAlreadyReviewed):
		utils.JSONError(ctx, http.StatusBadRequest, "already_reviewed", "you have already reviewed this tour")

	default:
		utils.JSONError(ctx, http.StatusInternalServerError, "server_error", "something went wrong")
	}
}

// currentUserID pulls the authenticated user's id set by the JWT middleware.
func currentUserID(ctx iris.Context) (uint, bool) {
	v := ctx.Values().Get("userID")
	if v == nil {
		ctx.StatusCode(iris.StatusUnauthorized)
		ctx.JSON(iris.Map{"message": "User not authenticated"})
		return 0, false
	}
	userID, ok := v.(uint)
	if !ok {
		ctx.StatusCode(iris.StatusUnauthorized)
		ctx.JSON(iris.Map{"message": "Invalid user ID"})
		return 0, false
	}
	return userID, true
}

func currentRole(ctx iris.Context) string {
	if v := ctx.Values().Get("role"); v != nil {
		if role, ok := v.(string); ok {
			return role
		}
	}
	return "user"
}

func pageParams(ctx iris.Context) (int, int) {
	page := ctx.URLParamIntDefault("page", 1)
	perPage := ctx.URLParamIntDefault("per_page", 25)
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 25
	}
	return page, perPage
}
