package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ikkim/storefront-backend/internal/app/service"
	"github.com/ikkim/storefront-backend/internal/middleware"
)

type AuthController struct {
	authService service.AuthService
}

func NewAuthController(authService service.AuthService) *AuthController {
	return &AuthController{
		authService: authService,
	}
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Register handles user registration
// POST /api/v1/auth/register
func (ctrl *AuthController) Register(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req RegisterRequest
	if !bindJSON(c, log, &req) {
		return
	}

	result, err := ctrl.authService.Register(req.Email, req.Password, req.Name, req.Phone)
	if err != nil {
		respondServiceError(c, log, "Registration failed", err, map[string]interface{}{
			"email": req.Email,
		})
		return
	}

	log.Info("User registered successfully", map[string]interface{}{
		"user_id": result.User.ID,
	})
	c.JSON(http.StatusCreated, result)
}

// Login handles user login
// POST /api/v1/auth/login
func (ctrl *AuthController) Login(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req LoginRequest
	if !bindJSON(c, log, &req) {
		return
	}

	result, err := ctrl.authService.Login(req.Email, req.Password)
	if err != nil {
		respondServiceError(c, log, "Login failed", err, nil)
		return
	}

	log.Info("User logged in", map[string]interface{}{
		"user_id": result.User.ID,
	})
	c.JSON(http.StatusOK, result)
}

// GetMe returns the authenticated user
// GET /api/v1/auth/me
func (ctrl *AuthController) GetMe(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	user, err := ctrl.authService.GetUserByID(userID)
	if err != nil {
		respondServiceError(c, log, "Failed to fetch current user", err, map[string]interface{}{
			"user_id": userID,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
