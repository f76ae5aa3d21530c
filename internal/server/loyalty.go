package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	loyaltydomain "github.com/countercore/tally/internal/loyalty/domain"
)

func (s *Server) GetLoyaltySettings(c *gin.Context) {
	settings, err := s.loyaltySvc.GetSettings(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": settings})
}

func (s *Server) UpdateLoyaltySettings(c *gin.Context) {
	var req struct {
		SilverThreshold   int64 `json:"silver_threshold"`
		GoldThreshold     int64 `json:"gold_threshold"`
		PlatinumThreshold int64 `json:"platinum_threshold"`
		RedeemValue       int64 `json:"redeem_value"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	settings, err := s.loyaltySvc.UpdateSettings(c.Request.Context(), loyaltydomain.UpdateSettingsRequest{
		SilverThreshold:   req.SilverThreshold,
		GoldThreshold:     req.GoldThreshold,
		PlatinumThreshold: req.PlatinumThreshold,
		RedeemValue:       req.RedeemValue,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": settings})
}

func (s *Server) GetLoyaltyBalance(c *gin.Context) {
	balance, err := s.loyaltySvc.GetBalance(c.Request.Context(), c.Param("customer_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": balance})
}

type loyaltyPointsRequest struct {
	Points int64 `json:"points"`
}

func (s *Server) AccrueLoyalty(c *gin.Context) {
	var req loyaltyPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.loyaltySvc.Accrue(c.Request.Context(), c.Param("customer_id"), req.Points)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) RedeemLoyalty(c *gin.Context) {
	var req loyaltyPointsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	balance, err := s.loyaltySvc.Redeem(c.Request.Context(), c.Param("customer_id"), req.Points)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": balance})
}

func (s *Server) ResetLoyalty(c *gin.Context) {
	balance, err := s.loyaltySvc.Reset(c.Request.Context(), c.Param("customer_id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": balance})
}
