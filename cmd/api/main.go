package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/mygrant-hub/mygrant-api/internal/alerts"
	"github.com/mygrant-hub/mygrant-api/internal/auth"
	"github.com/mygrant-hub/mygrant-api/internal/comments"
	"github.com/mygrant-hub/mygrant-api/internal/crowdfunding"
	"github.com/mygrant-hub/mygrant-api/internal/db"
	"github.com/mygrant-hub/mygrant-api/internal/marketplace"
	"github.com/mygrant-hub/mygrant-api/internal/messaging"
	appmw "github.com/mygrant-hub/mygrant-api/internal/middleware"
	"github.com/mygrant-hub/mygrant-api/internal/user"
	"github.com/mygrant-hub/mygrant-api/internal/wallet"
)

func main() {
	_ = godotenv.Load()

	// Init subsystems
	db.Init()
	alerts.Init()
	defer alerts.Close()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// Health
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/ready", func(c echo.Context) error {
		if db.Conn == nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db not initialized"})
		}
		if err := db.Conn.Ping(context.Background()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not_ready", "error": "db unreachable"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
	})

	// Auth routes with per-IP rate limiting to protect signup/login from abuse
	authGroup := e.Group("/auth")
	authGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(20)))
	authGroup.POST("/signup", auth.Signup)
	authGroup.POST("/login", auth.Login)

	// Public discovery
	e.GET("/user/:id/profile", user.GetPublicProfile)
	e.GET("/services", marketplace.ListServices)
	e.GET("/services/search", marketplace.SearchServices)
	e.GET("/services/num-pages", marketplace.NumPagesHandler)
	e.GET("/services/:id", marketplace.GetService)
	e.GET("/services/:id/images", marketplace.ListServiceImages)
	e.GET("/services/:id/comments", comments.List)
	e.GET("/crowdfundings", crowdfunding.List)
	e.GET("/crowdfundings/:id", crowdfunding.Get)
	e.GET("/crowdfundings/:id/rating", crowdfunding.Rating)

	// Authenticated group
	g := e.Group("")
	g.Use(appmw.JWTMiddleware)

	g.GET("/auth/me", auth.Me)
	g.PATCH("/user/profile", user.UpdateProfile)

	// Wallet
	g.GET("/wallet/balance", wallet.Balance)
	g.GET("/wallet/transactions", wallet.Transactions)

	// Services
	g.PUT("/services", marketplace.CreateService)
	g.PUT("/services/:id", marketplace.EditService)
	g.DELETE("/services/:id", marketplace.DeleteService)
	g.PUT("/services/:id/images", marketplace.CreateServiceImage)
	g.DELETE("/services/:id/images/:image", marketplace.DeleteServiceImage)

	// Offers
	g.POST("/services/:id/offers", marketplace.MakeOffer)
	g.GET("/services/:id/offers", marketplace.ListOffers)
	g.GET("/services/:id/offers/:type/:candidate", marketplace.GetOffer)
	g.POST("/services/:id/offers/accept", marketplace.AcceptOffer)
	g.POST("/services/:id/offers/decline", marketplace.DeclineOffer)

	// Instances
	g.GET("/services/instances", marketplace.ListInstances)
	g.GET("/services/instance/:id", marketplace.GetInstance)
	g.PUT("/services/instance/:id", marketplace.RateInstance)

	// Comments
	g.POST("/services/:id/comments", comments.Create)
	g.GET("/services/:id/comments/stream", comments.Stream)
	g.PUT("/services/:id/comments/:cid", comments.Edit)
	g.DELETE("/services/:id/comments/:cid", comments.Delete)

	// Crowdfundings
	g.POST("/crowdfundings", crowdfunding.Create)
	g.PUT("/crowdfundings/:id", crowdfunding.Update)
	g.DELETE("/crowdfundings/:id", crowdfunding.Delete)

	// Direct messages
	g.GET("/messages", messaging.GetConversations)
	g.GET("/messages/:user", messaging.GetMessages)
	g.POST("/messages/:user", messaging.SendMessage)

	// Notifications
	g.GET("/notifications", alerts.ListNotifications)
	g.POST("/notifications/:id/read", alerts.MarkNotificationRead)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("API server listening on :%s", port)
	if err := e.Start(":" + port); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
