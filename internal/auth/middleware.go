package auth

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/verification-bot/internal/line"
	apperrors "github.com/spec-kit/verification-bot/pkg/util/errorutil"
)

// SignatureMiddleware authenticates webhook deliveries by their channel signature.
type SignatureMiddleware struct {
	channelSecret string
	logger        *zap.Logger
}

// NewSignatureMiddleware constructs middleware.
func NewSignatureMiddleware(channelSecret string, logger *zap.Logger) *SignatureMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SignatureMiddleware{channelSecret: channelSecret, logger: logger}
}

// Handle rejects requests whose body does not match the signature header.
func (m *SignatureMiddleware) Handle(c *fiber.Ctx) error {
	signature := c.Get(line.SignatureHeader)
	if signature == "" {
		return apperrors.NewInvalidSignature("missing signature header")
	}
	if !line.ValidateSignature(m.channelSecret, c.Body(), signature) {
		m.logger.Warn("webhook signature mismatch", zap.String("ip", c.IP()))
		return apperrors.NewInvalidSignature("invalid signature")
	}
	return c.Next()
}
