package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/go-playground/validator/v10"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"supplier-catalog-service/internal/catalog"
	"supplier-catalog-service/internal/domain"
	"supplier-catalog-service/internal/store"
)

// GRPCHandler implements catalog.v1.CatalogService.
type GRPCHandler struct {
	catalog   Catalog
	scheduler RefreshScheduler
	validate  *validator.Validate
	log       *slog.Logger
}

var _ CatalogServiceServer = (*GRPCHandler)(nil)

// NewGRPCHandler creates a new GRPCHandler.
func NewGRPCHandler(c Catalog, s RefreshScheduler, logger *slog.Logger) *GRPCHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCHandler{
		catalog:   c,
		scheduler: s,
		validate:  validator.New(),
		log:       logger.With(slog.String("component", "grpc")),
	}
}

// --- Helper: Error Mapping ---
func (s *GRPCHandler) mapErrorToGrpcStatus(err error, resourceName string, resourceID interface{}) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, catalog.ErrProductNotFound), errors.Is(err, store.ErrRefreshCycleNotFound):
		return status.Errorf(codes.NotFound, "%s %v not found", resourceName, resourceID)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.log.Error("request failed",
			slog.String("resource", resourceName),
			slog.Any("id", resourceID),
			slog.Any("error", err))
		return status.Errorf(codes.Internal, "Failed to process request for %s %v", resourceName, resourceID)
	}
}

// --- CatalogService Methods ---

func (s *GRPCHandler) ListProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	input := ListProductsInput{
		Search:   stringField(req, "search"),
		Category: stringField(req, "category"),
		Brand:    stringField(req, "brand"),
		MinPrice: numberField(req, "minPrice"),
		MaxPrice: numberField(req, "maxPrice"),
		InStock:  boolField(req, "inStock"),
		Supplier: strings.ToLower(stringField(req, "supplier")),
		SortBy:   strings.ToLower(stringField(req, "sortBy")),
		Page:     intField(req, "page"),
		Limit:    min(intField(req, "limit"), domain.MaxLimit),
	}
	if input.Category != "" {
		attrs := req.GetFields()["attributes"].GetStructValue()
		for _, key := range s.catalog.AttributeKeys(input.Category) {
			if v := strings.TrimSpace(stringField(attrs, key)); v != "" {
				if input.Attributes == nil {
					input.Attributes = make(map[string]string)
				}
				input.Attributes[key] = v
			}
		}
	}
	if err := validateListInput(s.validate, input); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid ListProducts request: %v", err)
	}

	return s.respond(s.catalog.ListProducts(ctx, input.Filters()))
}

func (s *GRPCHandler) SearchProducts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	input := SearchInput{Query: stringField(req, "query"), Limit: intField(req, "limit")}
	if err := s.validate.Struct(input); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid SearchProducts request: %v", err)
	}
	if input.Limit == 0 {
		input.Limit = defaultSearchLimit
	}

	items := s.catalog.SearchProducts(ctx, input.Query, input.Limit)
	return s.respond(SearchResponse{Query: input.Query, Items: items, Count: len(items)})
}

func (s *GRPCHandler) GetProduct(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	sku := strings.TrimSpace(stringField(req, "sku"))
	if sku == "" {
		return nil, status.Error(codes.InvalidArgument, "sku is required")
	}

	product, err := s.catalog.GetProductBySku(ctx, sku)
	if err != nil {
		return nil, s.mapErrorToGrpcStatus(err, "Product", sku)
	}
	return s.respond(product)
}

// TriggerRefresh runs a manual cycle. When one is already running the current
// stats are returned with started=false.
func (s *GRPCHandler) TriggerRefresh(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	stats, started := s.scheduler.TriggerManualRefresh(context.WithoutCancel(ctx))
	s.log.Info("manual refresh requested", slog.Bool("started", started))
	return s.respond(RefreshResponse{Started: started, Stats: stats})
}

func (s *GRPCHandler) GetSchedulerStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return s.respond(SchedulerStatusResponse{
		Scheduler: s.scheduler.Stats(),
		Caches:    s.catalog.CacheStatus(),
	})
}

// --- Helper Functions for Conversion ---

func (s *GRPCHandler) respond(v interface{}) (*structpb.Struct, error) {
	out, err := toStruct(v)
	if err != nil {
		s.log.Error("failed to convert response", slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// toStruct converts v through its JSON form so both transports share one
// wire shape.
func toStruct(v interface{}) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func boolField(s *structpb.Struct, name string) bool {
	return s.GetFields()[name].GetBoolValue()
}

func numberField(s *structpb.Struct, name string) *float64 {
	v, ok := s.GetFields()[name]
	if !ok {
		return nil
	}
	if _, isNumber := v.GetKind().(*structpb.Value_NumberValue); !isNumber {
		return nil
	}
	n := v.GetNumberValue()
	return &n
}

func intField(s *structpb.Struct, name string) int {
	n := numberField(s, name)
	if n == nil || *n < 0 || math.IsNaN(*n) {
		return 0
	}
	return int(math.Min(*n, math.MaxInt32))
}
