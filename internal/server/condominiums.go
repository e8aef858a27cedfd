package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	condominiumdomain "github.com/smallbiznis/condopay/internal/condominium/domain"
)

type createCondominiumRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (s *Server) CreateCondominium(c *gin.Context) {
	var req createCondominiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.condominiumSvc.Create(c.Request.Context(), condominiumdomain.CreateCondominiumRequest{
		Name:     strings.TrimSpace(req.Name),
		Currency: strings.TrimSpace(req.Currency),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetCondominium(c *gin.Context) {
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.condominiumSvc.GetByID(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
