package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/elara-health/chat-service/internal/common"
	"github.com/elara-health/chat-service/internal/profile"
)

func (h *Handler) GetProfile(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	p, err := h.Profiles.GetByUserID(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40005, "profile not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to load profile")
		return
	}

	common.OK(c, gin.H{"profile": p})
}

type putProfileReq struct {
	DisplayName string `json:"display_name"`
	BirthYear   int    `json:"birth_year"`
	Sex         string `json:"sex"`
	Conditions  string `json:"conditions"`
	Medications string `json:"medications"`
	Goals       string `json:"goals"`
}

func (h *Handler) PutProfile(c *gin.Context) {
	uid, okk := userIDFromContext(c)
	if !okk {
		common.Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
		return
	}

	var req putProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	p := &profile.Profile{
		UserID:      uid,
		DisplayName: req.DisplayName,
		BirthYear:   req.BirthYear,
		Sex:         req.Sex,
		Conditions:  req.Conditions,
		Medications: req.Medications,
		Goals:       req.Goals,
	}
	if err := h.Profiles.Upsert(c.Request.Context(), p); err != nil {
		log.Printf("[PutProfile] upsert failed user_id=%s err=%v", uid, err)
		common.Fail(c, http.StatusInternalServerError, 50004, "failed to save profile")
		return
	}

	common.OK(c, gin.H{"profile": p})
}
