package main

import (
	"log"
	"os"

	"tour-marketplace-server/routes"
	"tour-marketplace-server/services"
	"tour-marketplace-server/storage"
	"tour-marketplace-server/utils"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func main() {
	godotenv.Load()
	storage.InitializeDB()
	storage.InitializeRedis()
	storage.InitializeCloudinary()
	services.InitializePaymentGateway()

	app := iris.New()
	app.Validator = validator.New()

	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	app.Use(iris.Compression)

	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	user := app.Party("/api/user", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		user.Get("/me", routes.GetMe)
	}

	notifications := app.Party("/api/notifications", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		notifications.Get("/", routes.GetMyNotifications)
		notifications.Put("/{id:uint}/read", routes.MarkNotificationRead)
	}

	tours := app.Party("/api/tours")
	{
		tours.Get("/", routes.ListTours)
		tours.Get("/{id:uint}", routes.GetTour)
		tours.Get("/{tourId:uint}/reviews", routes.ListTourReviews)

		tours.Post("/", accessTokenVerifierMiddleware, utils.AgencyOrAdminMiddleware, routes.CreateTour)
		tours.Post("/{tourId:uint}/reviews", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware, routes.CreateTourReview)
	}

	reviews := app.Party("/api/reviews", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		reviews.Delete("/{id:uint}", routes.DeleteReview)
	}

	bookings := app.Party("/api/bookings", accessTokenVerifierMiddleware, utils.UserIDFromTokenMiddleware)
	{
		bookings.Post("/", routes.CreateBooking)
		bookings.Post("/checkout-session", routes.CreateCheckoutSession)
		bookings.Post("/verify-payment", routes.VerifyPayment)
		bookings.Get("/my-bookings", routes.GetMyBookings)
		bookings.Get("/{id:uint}", routes.GetBooking)
		bookings.Put("/{id:uint}/cancel", routes.CancelBooking)
		bookings.Get("/", utils.AgencyOrAdminMiddleware, routes.ListBookings)
	}

	requests := app.Party("/api/requests", accessTokenVerifierMiddleware)
	{
		requests.Post("/subscription", utils.UserIDFromTokenMiddleware, routes.StartSubscription)
		requests.Post("/", utils.UserIDFromTokenMiddleware, routes.SubmitVerificationRequest)

		requests.Get("/", utils.AdminOnlyMiddleware, routes.ListVerificationRequests)
		requests.Put("/{id:uint}/status", utils.AdminOnlyMiddleware, routes.DecideVerificationRequest)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	log.Println("starting server on port", port)
	app.Listen(":" + port)
}
