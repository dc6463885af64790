package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mesikahq/patient-monitoring/internal/auth"
	"github.com/mesikahq/patient-monitoring/internal/middleware"
)

type Router struct {
	handler        *Handler
	authMiddleware *auth.Middleware
}

func NewRouter(handler *Handler, authService auth.Service) *Router {
	return &Router{
		handler:        handler,
		authMiddleware: auth.NewMiddleware(authService),
	}
}

func (r *Router) SetupRouter(logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(
		middleware.RequestID(),
		middleware.SecurityHeaders(),
		middleware.Recovery(logger),
		middleware.Logger(logger),
		middleware.RateLimit(rate.Every(time.Second), 30),
	)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	api := router.Group("/api")
	{
		api.POST("/auth/login", r.handler.Login)

		protected := api.Group("")
		protected.Use(r.authMiddleware.RequirePrincipal())
		{
			protected.GET("/capabilities", r.handler.Capabilities)

			profiles := protected.Group("/profiles")
			{
				profiles.GET("", r.handler.ListProfiles)
				profiles.POST("", r.handler.CreateProfile)
				profiles.GET("/:id", r.handler.GetProfile)
				profiles.PUT("/:id", r.handler.UpdateProfile)
				profiles.DELETE("/:id", r.handler.DeleteProfile)
				profiles.PUT("/:id/role", r.handler.ChangeProfileRole)
			}

			patients := protected.Group("/patients")
			{
				patients.GET("", r.handler.ListPatients)
				patients.POST("", r.handler.CreatePatient)
				patients.GET("/unassigned", r.handler.ListUnassignedPatients)
				patients.GET("/:id", r.handler.GetPatient)
				patients.PUT("/:id", r.handler.UpdatePatient)
				patients.DELETE("/:id", r.handler.DeletePatient)
				patients.PUT("/:id/doctor", r.handler.AssignDoctor)
				patients.GET("/:id/contacts", r.handler.ListContacts)
				patients.POST("/:id/contacts", r.handler.AddContact)
			}

			contacts := protected.Group("/contacts")
			{
				contacts.GET("/:id", r.handler.GetContact)
				contacts.PUT("/:id", r.handler.UpdateContact)
				contacts.DELETE("/:id", r.handler.DeleteContact)
			}

			protected.GET("/principals/:id/groups", r.handler.PrincipalGroups)
		}
	}

	return router
}
