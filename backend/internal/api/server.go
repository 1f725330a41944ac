package api

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"silent-partners/backend/internal/extraction"
	"silent-partners/backend/internal/network"
	"silent-partners/backend/pkg/logger"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

// NetworkStore is the network storage the API serves
type NetworkStore interface {
	Submit(ctx context.Context, req network.SubmitRequest) (*network.SubmitResult, error)
	Get(ctx context.Context, id string) (*network.Network, error)
	List(ctx context.Context) []network.Summary
	Delete(ctx context.Context, id string) error
	Export(ctx context.Context, id string) (*network.Graph, error)
	Candidates(ctx context.Context, id, text string, minConfidence float64) ([]network.Candidate, error)
	Stats(ctx context.Context) network.Stats
}

// Extractor turns text into network records
type Extractor interface {
	Extract(ctx context.Context, req extraction.ExtractRequest) (*extraction.ExtractionResult, error)
	Infer(ctx context.Context, req extraction.InferRequest) (*extraction.InferenceResult, error)
}

// Options tune the router
type Options struct {
	CORSOrigins []string
	MaxBodySize int64
}

// Server wires the HTTP surface to the network store and the extractor
type Server struct {
	store     NetworkStore
	extractor Extractor
	opts      Options
	logger    *zap.Logger
}

// NewServer creates a server. extractor may be nil, in which case the
// extraction endpoints answer 503.
func NewServer(store NetworkStore, extractor Extractor, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{
		store:     store,
		extractor: extractor,
		opts:      opts,
		logger:    logger.Named("api"),
	}
}

// Router builds the gin engine with every route registered
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(s.logger))
	router.Use(gin.Recovery())
	router.Use(cors(s.opts.CORSOrigins))
	if s.opts.MaxBodySize > 0 {
		router.Use(limitBody(s.opts.MaxBodySize))
	}

	router.GET("/health", s.health)

	api := router.Group("/api")
	{
		api.GET("/health", s.health)

		api.POST("/network", s.submitNetwork)
		api.GET("/networks", s.listNetworks)
		api.GET("/network/:id", s.getNetwork)
		api.DELETE("/network/:id", s.deleteNetwork)
		api.GET("/network/:id/export", s.exportNetwork)
		api.GET("/network/:id/candidates", s.networkCandidates)

		api.POST("/extract", s.extract)
		api.POST("/infer", s.infer)
	}

	return router
}
