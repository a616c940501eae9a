package provider

import (
	"net/http"
	"strings"
	"time"

	"github.com/dujiao-next/checkout/internal/config"
	"github.com/dujiao-next/checkout/internal/constants"
	"github.com/dujiao-next/checkout/internal/logger"
	"github.com/dujiao-next/checkout/internal/payment"
	"github.com/dujiao-next/checkout/internal/payment/bankredirect"
	"github.com/dujiao-next/checkout/internal/payment/cod"
	"github.com/dujiao-next/checkout/internal/payment/walleta"
	"github.com/dujiao-next/checkout/internal/payment/walletb"
)

// BuildGatewayRegistry 按配置注册支付网关，配置缺失或不完整的网关被跳过
func BuildGatewayRegistry(cfg config.PaymentConfig) *payment.Registry {
	registry := payment.NewRegistry(cod.New())
	client := payment.NewHTTPClient(time.Duration(cfg.HTTPTimeoutSeconds) * time.Second)

	for name, raw := range cfg.Gateways {
		gateway, err := buildGateway(strings.ToLower(strings.TrimSpace(name)), raw, client)
		if err != nil {
			logger.Warnw("provider_payment_gateway_skipped", "gateway", name, "error", err)
			continue
		}
		if gateway == nil {
			logger.Warnw("provider_payment_gateway_unknown", "gateway", name)
			continue
		}
		registry.Register(gateway)
	}
	logger.Infow("provider_payment_gateways_ready", "gateways", registry.Names())
	return registry
}

func buildGateway(name string, raw map[string]interface{}, client *http.Client) (payment.Gateway, error) {
	switch name {
	case constants.PaymentGatewayBankRedirect:
		cfg, err := bankredirect.ParseConfig(raw)
		if err != nil {
			return nil, err
		}
		if err := bankredirect.ValidateConfig(cfg); err != nil {
			return nil, err
		}
		return bankredirect.New(cfg), nil
	case constants.PaymentGatewayWalletA:
		cfg, err := walleta.ParseConfig(raw)
		if err != nil {
			return nil, err
		}
		if err := walleta.ValidateConfig(cfg); err != nil {
			return nil, err
		}
		return walleta.New(cfg, client), nil
	case constants.PaymentGatewayWalletB:
		cfg, err := walletb.ParseConfig(raw)
		if err != nil {
			return nil, err
		}
		if err := walletb.ValidateConfig(cfg); err != nil {
			return nil, err
		}
		return walletb.New(cfg, client), nil
	}
	return nil, nil
}
