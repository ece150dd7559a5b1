package wallet

import (
	"strings"

	constant "github.com/jose254W/cards/wallet/constants"
)

const maxMerchantPayload = 512

// Merchant is the payee encoded in a merchant QR code.
type Merchant struct {
	ID   string
	Name string
}

// ParseMerchantCode parses a QR payload of the form "merchantId|merchantName".
// The name is optional; a payload without the separator is a bare id.
func ParseMerchantCode(payload string) (Merchant, error) {
	payload = strings.TrimSpace(payload)

	if payload == "" {
		return Merchant{}, constant.NewDomainError(constant.CodeInvalidMerchantQR, "payload", "empty merchant code")
	}

	if len(payload) > maxMerchantPayload {
		return Merchant{}, constant.NewDomainError(constant.CodeInvalidMerchantQR, "payload", "merchant code too long")
	}

	id, name, _ := strings.Cut(payload, constant.MerchantCodeSeparator)

	m := Merchant{ID: strings.TrimSpace(id), Name: strings.TrimSpace(name)}
	if m.ID == "" {
		return Merchant{}, constant.NewDomainError(constant.CodeInvalidMerchantQR, "merchantId", "missing merchant id")
	}

	if strings.Contains(m.Name, constant.MerchantCodeSeparator) {
		return Merchant{}, constant.NewDomainError(constant.CodeInvalidMerchantQR, "merchantName", "unexpected separator in merchant name")
	}

	return m, nil
}
