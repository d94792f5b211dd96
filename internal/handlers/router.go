package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/services"
	"github.com/SAP-F-2025/test-access-service/internal/utils"
)

const serviceName = "test-access-service"

type HandlerManager struct {
	testHandler    *TestHandler
	attemptHandler *AttemptHandler
	groupHandler   *GroupHandler
	importHandler  *ImportHandler
	studentHandler *StudentHandler
	userHandler    *UserHandler
	authMiddleware *CasdoorAuthMiddleware
	serviceManager services.ServiceManager
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	authMiddleware *CasdoorAuthMiddleware,
	userRepo repositories.UserRepository,
) *HandlerManager {
	return &HandlerManager{
		testHandler:    NewTestHandler(serviceManager.Tests(), logger),
		attemptHandler: NewAttemptHandler(serviceManager.Attempts(), serviceManager.Answers(), logger),
		groupHandler:   NewGroupHandler(serviceManager.Groups(), logger),
		importHandler:  NewImportHandler(serviceManager.Imports(), logger),
		studentHandler: NewStudentHandler(serviceManager.Tests(), logger),
		userHandler:    NewUserHandler(userRepo, logger),
		authMiddleware: authMiddleware,
		serviceManager: serviceManager,
	}
}

// SetupRoutes sets up all API routes
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	managers := hm.authMiddleware.RequireRoleMiddleware(models.RoleTeacher, models.RoleSchoolAdmin)
	students := hm.authMiddleware.RequireRoleMiddleware(models.RoleStudent)

	v1 := router.Group("/api/v1")
	v1.Use(hm.authMiddleware.AuthMiddleware())
	{
		tests := v1.Group("/tests")
		{
			// Authoring - Teachers and School Admins only
			tests.POST("", managers, hm.testHandler.CreateTest)
			tests.GET("", managers, hm.testHandler.ListTests)
			tests.GET("/:id", managers, hm.testHandler.GetTest)
			tests.PUT("/:id", managers, hm.testHandler.UpdateTest)
			tests.PUT("/:id/structure", managers, hm.testHandler.UpdateStructure)
			tests.DELETE("/:id", managers, hm.testHandler.DeleteTest)
			tests.POST("/:id/duplicate", managers, hm.testHandler.DuplicateTest)
			tests.POST("/:id/publish-toggle", managers, hm.testHandler.TogglePublish)
			tests.GET("/:id/assignment", managers, hm.testHandler.GetAssignment)
			tests.PUT("/:id/assignment", managers, hm.testHandler.SetAssignment)
			tests.GET("/:id/attempts", managers, hm.attemptHandler.ListAttempts)

			// Students may ask about themselves; the service enforces it
			tests.GET("/:id/eligibility", hm.testHandler.CheckEligibility)

			// Taking a test - Students only
			tests.POST("/:id/attempts/start", students, hm.attemptHandler.StartAttempt)
			tests.GET("/:id/attempts/me", students, hm.attemptHandler.GetMyAttempt)
			tests.POST("/:id/answers", students, hm.attemptHandler.SaveAnswer)
			tests.GET("/:id/answers", students, hm.attemptHandler.GetAnswers)
			tests.POST("/:id/submit", students, hm.attemptHandler.SubmitAttempt)
		}

		groups := v1.Group("/groups")
		groups.Use(managers)
		{
			groups.POST("", hm.groupHandler.CreateGroup)
			groups.GET("/:id", hm.groupHandler.GetGroup)
			groups.POST("/:id/members", hm.groupHandler.AddMembers)
			groups.DELETE("/:id/members/:student_id", hm.groupHandler.RemoveMember)
		}

		imports := v1.Group("/imports")
		imports.Use(managers)
		{
			imports.GET("/template", hm.importHandler.DownloadTemplate)
			imports.POST("", hm.importHandler.CreateImport)
			imports.GET("/:id", hm.importHandler.GetImport)
			imports.POST("/:id/review", hm.importHandler.ReviewImport)
			imports.POST("/:id/commit", hm.importHandler.CommitImport)
		}

		users := v1.Group("/users")
		users.Use(managers)
		{
			users.GET("", hm.userHandler.ListUsers)
			users.GET("/:id", hm.userHandler.GetUser)
		}

		me := v1.Group("/students/me")
		me.Use(students)
		{
			me.GET("/tests", hm.studentHandler.GetStudentTests)
		}
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": serviceName,
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		if err := hm.serviceManager.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unavailable",
				"service": serviceName,
				"error":   err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"service": serviceName,
		})
	})
}
