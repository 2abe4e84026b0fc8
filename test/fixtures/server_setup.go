package fixtures

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/logger"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/middleware"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/openrouter"
	"github.com/opendatahub-io/models-as-a-service/key-provisioner/internal/provisioner"
)

// TestServerConfig holds configuration for test server setup
type TestServerConfig struct {
	// UpstreamURL is the provisioning endpoint the relay calls.
	UpstreamURL string
	// UpstreamTimeout defaults to 2s so unreachable upstreams fail fast.
	UpstreamTimeout time.Duration
	// ProvisioningKey defaults to TestProvisioningKey.
	ProvisioningKey string
}

// SetupTestServer creates a relay router wired the same way as the binary,
// middleware included, against the configured upstream.
func SetupTestServer(_ *testing.T, config TestServerConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)

	if config.UpstreamTimeout == 0 {
		config.UpstreamTimeout = 2 * time.Second
	}
	if config.ProvisioningKey == "" {
		config.ProvisioningKey = TestProvisioningKey
	}

	log := logger.Nop()
	client := openrouter.NewClient(config.ProvisioningKey,
		openrouter.WithEndpoint(config.UpstreamURL),
		openrouter.WithTimeout(config.UpstreamTimeout),
		openrouter.WithLogger(log),
	)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(log), middleware.Recovery(log))
	provisioner.Register(router, provisioner.NewHandler(log, client))

	return router
}
