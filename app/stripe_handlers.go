package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/LaDySmOkEs/DueProcessAI44/app/config"
	"github.com/LaDySmOkEs/DueProcessAI44/app/models"
	"github.com/LaDySmOkEs/DueProcessAI44/auth"
	"github.com/LaDySmOkEs/DueProcessAI44/utils"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79"
	portal "github.com/stripe/stripe-go/v79/billingportal/session"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

type checkoutRequest struct {
	PriceID string `json:"price_id"`
}

// CreateCheckoutSession starts a Stripe Checkout Session for the authenticated
// user. The requested price must be one we sell; the session and the resulting
// subscription both carry user_id metadata so webhook events correlate back to
// the user without guessing.
func CreateCheckoutSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}

	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing price_id"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError(err, "stripe checkout config load failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	plan, ok := planForPriceID(cfg, req.PriceID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown price_id"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		utils.LogError(nil, "missing Stripe config: frontend_url")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	stripeCustomerID, err := ensureStripeCustomer(c.Request.Context(), claims.Subject)
	if err != nil {
		utils.LogError(err, "ensureStripeCustomer failed for sub="+claims.Subject)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to prepare billing"})
		return
	}

	params := &stripe.CheckoutSessionParams{
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer: stripe.String(stripeCustomerID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": claims.Subject},
		},
		SuccessURL: stripe.String(frontendURL + "/billing/success"),
		CancelURL:  stripe.String(frontendURL + "/billing/cancel"),
	}
	params.AddMetadata("user_id", claims.Subject)
	params.AddMetadata("price_lookup_key", plan.LookupKey)

	sess, err := session.New(params)
	if err != nil {
		utils.LogError(err, "stripe checkout session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create checkout session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

func planForPriceID(cfg *config.Config, priceID string) (Plan, bool) {
	switch priceID {
	case cfg.Stripe.PriceIDBasic:
		return PlanForTier(models.TierBasic), cfg.Stripe.PriceIDBasic != ""
	case cfg.Stripe.PriceIDPremium:
		return PlanForTier(models.TierPremium), cfg.Stripe.PriceIDPremium != ""
	}
	return Plan{}, false
}

// CreatePortalSession creates a Stripe Customer Portal session for the
// authenticated user. Requires an existing Stripe customer.
func CreatePortalSession(c *gin.Context) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return
	}
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "db not initialized"})
		return
	}

	var stripeCustomerID sql.NullString
	err := db.QueryRowContext(
		c.Request.Context(),
		`
			SELECT stripe_customer_id
			FROM users
			WHERE auth0_sub = $1;
		`,
		claims.Subject,
	).Scan(&stripeCustomerID)
	if err != nil {
		utils.LogError(err, "portal lookup failed sub="+claims.Subject)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load customer"})
		return
	}
	if !stripeCustomerID.Valid || stripeCustomerID.String == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "stripe customer missing for user"})
		return
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError(err, "portal config load failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	frontendURL := strings.TrimRight(cfg.Stripe.FrontendURL, "/")
	if frontendURL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "billing not configured"})
		return
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(stripeCustomerID.String),
		ReturnURL: stripe.String(frontendURL + "/settings/billing"),
	}

	sess, err := portal.New(params)
	if err != nil {
		utils.LogError(err, "stripe portal session failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create portal session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": sess.URL})
}

// errNoCorrelation marks a webhook event that cannot be mapped to a user.
var errNoCorrelation = errors.New("webhook event has no user correlation")

// StripeWebhook keeps subscription tier, status, and usage counters in sync
// with Stripe's lifecycle events. Every branch is a full-field overwrite, so
// redelivery of the same event converges to the same user state. Delivery
// order is not reconciled: a late stale event wins (last-write-wins by
// arrival).
func StripeWebhook(c *gin.Context) {
	const maxBodyBytes = int64(65536)
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes))
	if err != nil {
		utils.LogError(err, "stripe webhook read failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	sigHeader := c.GetHeader("Stripe-Signature")
	cfg, err := config.LoadConfig()
	if err != nil {
		utils.LogError(err, "stripe webhook config load failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	endpointSecret := cfg.Stripe.WebhookSecret
	if endpointSecret == "" {
		utils.LogError(nil, "stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		sigHeader,
		endpointSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		utils.LogError(err, "stripe webhook signature failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			utils.LogError(err, "stripe session unmarshal failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session payload"})
			return
		}
		err = applyCheckoutCompleted(c.Request.Context(), &sess)
	case "customer.subscription.updated":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			utils.LogError(err, "stripe subscription unmarshal failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		err = applySubscriptionUpdated(c.Request.Context(), &sub)
	case "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			utils.LogError(err, "stripe subscription unmarshal failed")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription payload"})
			return
		}
		err = applySubscriptionDeleted(c.Request.Context(), &sub)
	default:
		// Intentionally ignore unhandled events.
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err != nil {
		if errors.Is(err, errNoCorrelation) {
			utils.LogError(err, "stripe webhook dropped: event type "+string(event.Type))
			c.JSON(http.StatusBadRequest, gin.H{"error": "event not correlated to a user"})
			return
		}
		// Persistence failures must surface as 5xx so Stripe redelivers.
		utils.LogError(err, "stripe webhook apply failed: event type "+string(event.Type))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// applyCheckoutCompleted starts a paid period: customer and subscription ids,
// status, and tier are overwritten and the usage counter is reset.
func applyCheckoutCompleted(ctx context.Context, sess *stripe.CheckoutSession) error {
	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	auth0Sub, err := resolveWebhookUser(ctx, sess.Metadata["user_id"], customerID)
	if err != nil {
		return err
	}

	subscriptionID := ""
	status := "active"
	if sess.Subscription != nil {
		subscriptionID = sess.Subscription.ID
		if sess.Subscription.Status != "" {
			status = string(sess.Subscription.Status)
		}
	}
	tier := TierFromLookupKey(sess.Metadata["price_lookup_key"])

	res, err := db.ExecContext(ctx, `
		UPDATE users
		SET stripe_customer_id = $1,
		    stripe_subscription_id = $2,
		    subscription_status = $3,
		    subscription_tier = $4,
		    ai_usage_count = 0,
		    last_usage_reset = now()
		WHERE auth0_sub = $5;
	`, nullIfEmpty(customerID), nullIfEmpty(subscriptionID), status, tier, auth0Sub)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// applySubscriptionUpdated overwrites status and recomputes tier from the
// subscription's current price lookup key.
func applySubscriptionUpdated(ctx context.Context, sub *stripe.Subscription) error {
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	auth0Sub, err := resolveWebhookUser(ctx, sub.Metadata["user_id"], customerID)
	if err != nil {
		return err
	}

	tier := models.TierFree
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		tier = TierFromLookupKey(sub.Items.Data[0].Price.LookupKey)
	}

	res, err := db.ExecContext(ctx, `
		UPDATE users
		SET stripe_subscription_id = $1,
		    subscription_status = $2,
		    subscription_tier = $3
		WHERE auth0_sub = $4;
	`, nullIfEmpty(sub.ID), string(sub.Status), tier, auth0Sub)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// applySubscriptionDeleted drops the user back to free with the provider's
// terminal status.
func applySubscriptionDeleted(ctx context.Context, sub *stripe.Subscription) error {
	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}
	auth0Sub, err := resolveWebhookUser(ctx, sub.Metadata["user_id"], customerID)
	if err != nil {
		return err
	}

	status := string(sub.Status)
	if status == "" {
		status = "canceled"
	}

	res, err := db.ExecContext(ctx, `
		UPDATE users
		SET subscription_status = $1,
		    subscription_tier = $2
		WHERE auth0_sub = $3;
	`, status, models.TierFree, auth0Sub)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// resolveWebhookUser prefers the user_id metadata stamped at checkout and
// falls back to the stored Stripe customer id.
func resolveWebhookUser(ctx context.Context, metaUserID, customerID string) (string, error) {
	if db == nil {
		return "", errors.New("db not initialized")
	}
	if metaUserID != "" {
		return metaUserID, nil
	}
	if customerID == "" {
		return "", errNoCorrelation
	}
	var auth0Sub string
	err := db.QueryRowContext(ctx, `
		SELECT auth0_sub
		FROM users
		WHERE stripe_customer_id = $1;
	`, customerID).Scan(&auth0Sub)
	if errors.Is(err, sql.ErrNoRows) {
		return "", errNoCorrelation
	}
	if err != nil {
		return "", err
	}
	return auth0Sub, nil
}

// requireRow treats an update that matched no user as a correlation failure
// rather than a silent no-op.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errNoCorrelation
	}
	return nil
}
