package service

import (
	"strings"

	"github.com/dujiao-next/checkout/internal/constants"
)

var allowedTransitions = map[string]map[string]bool{
	constants.OrderStatusPending: {
		constants.OrderStatusConfirmed: true,
		constants.OrderStatusCancelled: true,
	},
	constants.OrderStatusConfirmed: {
		constants.OrderStatusShipping:  true,
		constants.OrderStatusCancelled: true,
	},
	constants.OrderStatusShipping: {
		constants.OrderStatusDelivered: true,
	},
}

var validOrderStatuses = map[string]bool{
	constants.OrderStatusPending:   true,
	constants.OrderStatusConfirmed: true,
	constants.OrderStatusShipping:  true,
	constants.OrderStatusDelivered: true,
	constants.OrderStatusCancelled: true,
}

// normalizeOrderStatus 规范化并校验订单状态取值
func normalizeOrderStatus(status string) (string, bool) {
	normalized := strings.ToLower(strings.TrimSpace(status))
	return normalized, validOrderStatuses[normalized]
}

// isTransitionAllowed 终态不可回退，同状态不视为流转
func isTransitionAllowed(current, target string) bool {
	nexts, ok := allowedTransitions[current]
	if !ok {
		return false
	}
	return nexts[target]
}
