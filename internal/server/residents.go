package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/condopay/internal/authorization"
	residentdomain "github.com/smallbiznis/condopay/internal/resident/domain"
)

type registerResidentRequest struct {
	ApartmentNumber string  `json:"apartment_number"`
	Floor           *string `json:"floor"`
	FirstName       string  `json:"first_name"`
	LastName        string  `json:"last_name"`
}

func (s *Server) RegisterResident(c *gin.Context) {
	condominiumID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req registerResidentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.residentSvc.Register(c.Request.Context(), condominiumID, residentdomain.RegisterResidentRequest{
		ApartmentNumber: strings.TrimSpace(req.ApartmentNumber),
		Floor:           req.Floor,
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListResidents(c *gin.Context) {
	condominiumID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.residentSvc.List(c.Request.Context(), condominiumID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetResidentOverview is open to the resident themselves and to the
// coordinators of their condominium.
func (s *Server) GetResidentOverview(c *gin.Context) {
	residentID, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	year, err := parseYear(c, s.clock.Now())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	resident, err := s.residentSvc.GetByID(ctx, residentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorize(c, authorization.Request{
		CondominiumID: resident.CondominiumID,
		ResidentID:    resident.ID,
		Object:        authorization.ObjectResidentOverview,
		Action:        authorization.ActionOverviewView,
	}); err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.contributionSvc.GetResidentOverview(ctx, residentID, year)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
