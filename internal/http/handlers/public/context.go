package public

import (
	handlershared "github.com/dujiao-next/checkout/internal/http/handlers/shared"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func getUserID(c *gin.Context) (uint, bool) {
	return handlershared.GetContextUint(c, "user_id")
}

func requestLog(c *gin.Context) *zap.SugaredLogger {
	return handlershared.RequestLog(c)
}

func respondError(c *gin.Context, code int, msg string, err error) {
	handlershared.RespondError(c, code, msg, err)
}

var (
	checkoutErrorRules = handlershared.CheckoutErrorRules
	orderErrorRules    = handlershared.OrderErrorRules
	paymentErrorRules  = handlershared.PaymentErrorRules
)

func respondCheckoutError(c *gin.Context, err error) {
	handlershared.RespondWithMappedError(c, err, checkoutErrorRules)
}

func respondOrderError(c *gin.Context, err error) {
	handlershared.RespondWithMappedError(c, err, orderErrorRules)
}

func respondPaymentError(c *gin.Context, err error) {
	handlershared.RespondWithMappedError(c, err, paymentErrorRules)
}
