package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"pooltv-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint         string  `json:"endpoint" binding:"required"`
	P256DH           string  `json:"p256dh" binding:"required"`
	Auth             string  `json:"auth" binding:"required"`
	SubscribedTables []int64 `json:"subscribed_tables"`
}

// PutSubscription handles the creation or replacement of a push
// subscription and its table watch list.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "endpoint"}},
			DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth"}),
		}).Create(&subscription).Error; err != nil {
			return err
		}

		if err := tx.Delete(&model.SubscriptionTable{}, "endpoint = ?", req.Endpoint).Error; err != nil {
			return err
		}
		for _, tableID := range req.SubscribedTables {
			mapping := model.SubscriptionTable{Endpoint: req.Endpoint, TableID: tableID}
			if err := tx.Create(&mapping).Error; err != nil {
				return err
			}
		}
		return nil
	})

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.SubscriptionTable{}, "endpoint = ?", req.Endpoint).Error; err != nil {
			return err
		}
		return tx.Delete(&model.PushSubscription{Endpoint: req.Endpoint}).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// GetSubscription handles the retrieval of a subscription's table
// watch list.
func (h *Handler) GetSubscription(c *gin.Context) {
	endpoint := c.Query("endpoint")
	if endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "endpoint is required"})
		return
	}

	db := h.db.WithContext(c.Request.Context())
	var subscription model.PushSubscription
	if err := db.First(&subscription, "endpoint = ?", endpoint).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	var mappings []model.SubscriptionTable
	if err := db.Find(&mappings, "endpoint = ?", endpoint).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	tableIDs := make([]int64, len(mappings))
	for i, m := range mappings {
		tableIDs[i] = m.TableID
	}
	c.JSON(http.StatusOK, gin.H{"subscribed_tables": tableIDs})
}
