package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	userdomain "github.com/hormisur/backoffice/internal/user/domain"
	"github.com/hormisur/backoffice/internal/usercontext"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	user, err := s.userSvc.VerifyCredentials(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	token, err := s.issueToken(user, s.clock.Now())
	if err != nil {
		AbortWithError(c, ErrInternal)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user,
	})
}

func (s *Server) Me(c *gin.Context) {
	ctx := c.Request.Context()
	userID, ok := usercontext.UserIDFromContext(ctx)
	if !ok || userID == 0 {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	user, err := s.userSvc.GetByID(ctx, userdomain.GetUserRequest{ID: userID.String()})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "roles": usercontext.RolesFromContext(ctx)})
}
