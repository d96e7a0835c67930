package httpapi

import (
	"license-commerce/internal/ratelimit"
	"license-commerce/internal/rbac"
	"license-commerce/internal/wallet"

	"github.com/gin-gonic/gin"
)

// Register mounts the versioned API on v1.
// authMW must verify the access token and put the identity on the request context.
// limiter may be nil, which disables per-user concurrency caps.
func Register(v1 *gin.RouterGroup, h Handlers, authMW gin.HandlerFunc, limiter *ratelimit.Limiter) {
	authGroup := v1.Group("/auth")
	{
		if h.AllowLogin {
			authGroup.POST("/login", h.Login)
		}
		authGroup.POST("/refresh", h.Refresh)
	}

	me := v1.Group("")
	me.Use(authMW, rbac.RequireTenant())
	{
		me.GET("/wallet", h.GetWallet)
		me.GET("/wallet/transactions", h.ListTransactions)

		me.GET("/cart", h.GetCart)
		carts := me.Group("/cart")
		carts.Use(limiter.PerUser("cart"))
		{
			carts.POST("/items", h.AddCartItem)
			carts.PUT("/items/:product_id", h.UpdateCartItem)
			carts.DELETE("/items/:product_id", h.RemoveCartItem)
			carts.DELETE("", h.ClearCart)
		}

		me.POST("/checkout", limiter.PerUser("checkout"), wallet.RequireActiveWallet(h.Wallet), h.CheckoutCart)
		me.GET("/orders/:order_id", h.GetOrder)
	}

	admin := v1.Group("/admin")
	admin.Use(authMW, rbac.RequireTenant(), rbac.RequireAnyRole(rbac.AdminRoles...))
	{
		wallets := admin.Group("/wallets/:user_id")
		{
			wallets.GET("", h.AdminGetWallet)
			wallets.GET("/reconcile", h.AdminReconcile)
			wallets.POST("/deposit", h.AdminDeposit)
			wallets.POST("/credit-limit", h.AdminSetCreditLimit)
			wallets.POST("/credit-payment", h.AdminCreditPayment)
			wallets.POST("/refund", h.AdminRefund)
			wallets.POST("/deactivate", h.AdminDeactivate)
			wallets.POST("/activate", h.AdminActivate)
		}

		carts := admin.Group("/carts/:user_id")
		{
			carts.GET("/events", h.AdminCartEvents)
			carts.POST("/rebuild", h.AdminRebuildCart)
		}

		reports := admin.Group("/reports")
		{
			reports.GET("/overlimit", h.OverlimitReport)
			reports.GET("/spend", h.SpendReport)
		}
	}
}
