package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/keeper/core"
	"github.com/layer-3/keeper/ports"
	"github.com/layer-3/keeper/service"
)

// Handlers contains HTTP handlers for auth and bonding endpoints
type Handlers struct {
	sessions *service.SessionService
	bonding  *service.BondingService
	users    ports.UserStore
	identity ports.IdentityVerifier
}

// NewHandlers creates new handlers
func NewHandlers(
	sessions *service.SessionService,
	bonding *service.BondingService,
	users ports.UserStore,
	identity ports.IdentityVerifier,
) *Handlers {
	return &Handlers{
		sessions: sessions,
		bonding:  bonding,
		users:    users,
		identity: identity,
	}
}

type tokenPairRequest struct {
	AccessToken  string `json:"access_token" binding:"required"`
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// SignIn exchanges an identity provider token for a session
func (h *Handlers) SignIn(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	ctx := c.Request.Context()
	externalID, err := h.identity.Verify(ctx, req.Token)
	if err != nil {
		abortWithError(c, err)
		return
	}

	user, err := h.users.FindOrCreate(ctx, externalID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	session, err := h.sessions.Open(ctx, user.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": session,
		"user":    user,
	})
}

// Refresh rotates a session
func (h *Handlers) Refresh(c *gin.Context) {
	var req tokenPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	session, err := h.sessions.Rotate(c.Request.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": session})
}

// Logout closes a session
func (h *Handlers) Logout(c *gin.Context) {
	var req tokenPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.sessions.Close(c.Request.Context(), req.AccessToken, req.RefreshToken); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// ChooseRole sets the role of the authenticated user
func (h *Handlers) ChooseRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	role, err := core.ParseRole(req.Role)
	if err != nil {
		abortWithError(c, err)
		return
	}

	if err := h.bonding.ChooseRole(c.Request.Context(), subject(c), role); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"role": role})
}

// Bonds lists the users bonded with the authenticated user
func (h *Handlers) Bonds(c *gin.Context) {
	bonds, err := h.bonding.Bonds(c.Request.Context(), subject(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"bonds": bonds})
}

// BondingCode issues a bonding code for the authenticated user
func (h *Handlers) BondingCode(c *gin.Context) {
	code, err := h.bonding.IssueCode(c.Request.Context(), subject(c))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"code": code})
}

// EstablishBond redeems a bonding code as the authenticated user
func (h *Handlers) EstablishBond(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if err := h.bonding.Redeem(c.Request.Context(), req.Code, subject(c)); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Bonding completed"})
}
