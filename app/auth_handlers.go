// Package app provides public health and authenticated identity endpoints.
package app

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
	"github.com/LaDySmOkEs/DueProcessAI44/auth"

	"github.com/gin-gonic/gin"
)

// Health is a public health check endpoint.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Me returns subscription tier and monthly usage info for the authenticated
// user.
func Me(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	if db == nil {
		plan := PlanForTier(models.TierFree)
		c.JSON(http.StatusOK, gin.H{
			"tier":          models.TierFree,
			"status":        "",
			"ai_usage":      0,
			"monthly_limit": plan.MonthlyQuota,
			"remaining":     plan.MonthlyQuota,
		})
		return
	}

	user, err := getUserByAuth0Sub(c.Request.Context(), claims.Subject)
	if err != nil {
		if err == sql.ErrNoRows {
			_ = UpsertUserFromClaims(c.Request.Context(), claims)
			user, err = getUserByAuth0Sub(c.Request.Context(), claims.Subject)
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load user"})
			return
		}
	}

	currentMonthStart := monthStartUTC(time.Now())
	if user.LastUsageReset.Before(currentMonthStart) {
		user.AIUsageCount = 0
		user.LastUsageReset = currentMonthStart
		_, _ = db.ExecContext(
			c.Request.Context(),
			`
				UPDATE users
				SET ai_usage_count = $1, last_usage_reset = $2
				WHERE auth0_sub = $3;
			`,
			user.AIUsageCount,
			user.LastUsageReset,
			claims.Subject,
		)
	}

	plan := PlanForTier(user.SubscriptionTier)
	var monthlyLimit any = nil
	var remaining any = nil
	if !plan.Unlimited {
		monthlyLimit = plan.MonthlyQuota
		remainingCount := plan.MonthlyQuota - user.AIUsageCount
		if remainingCount < 0 {
			remainingCount = 0
		}
		remaining = remainingCount
	}

	c.JSON(http.StatusOK, gin.H{
		"tier":          user.SubscriptionTier,
		"status":        user.SubscriptionStatus,
		"ai_usage":      user.AIUsageCount,
		"monthly_limit": monthlyLimit,
		"remaining":     remaining,
	})
}
