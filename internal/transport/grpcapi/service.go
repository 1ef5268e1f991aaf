package grpcapi

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vladislavdragonenkov/procurement/internal/domain"
	"github.com/vladislavdragonenkov/procurement/internal/service/lifecycle"
)

const errorDomain = "procurement"

// LifecycleService: операции жизненного цикла заказа.
type LifecycleService interface {
	GetActiveStatus(ctx context.Context, orderID string) (domain.OrderStatus, bool, error)
	ListValidTargets(current domain.StatusName) []domain.StatusName
	ChangeStatus(ctx context.Context, orderID string, target domain.StatusName) (lifecycle.TransitionResult, error)
}

// RetirementService: вывод поставщика.
type RetirementService interface {
	Retire(ctx context.Context, supplierID string) (domain.Supplier, error)
}

// Service реализует ProcurementServer.
type Service struct {
	lifecycle  LifecycleService
	retirement RetirementService
	logger     *log.Entry
}

// NewService создаёт gRPC-сервис закупок.
func NewService(lifecycle LifecycleService, retirement RetirementService, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.WithField("component", "grpc-api")
	}
	return &Service{
		lifecycle:  lifecycle,
		retirement: retirement,
		logger:     logger,
	}
}

// GetActiveStatus принимает {order_id}.
func (s *Service) GetActiveStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	orderID, err := requiredString(req, "order_id")
	if err != nil {
		return nil, err
	}
	current, ok, err := s.lifecycle.GetActiveStatus(ctx, orderID)
	if err != nil {
		return nil, s.toStatusError(err, MethodGetActiveStatus)
	}

	resp := map[string]interface{}{
		"order_id":      orderID,
		"has_status":    ok,
		"valid_targets": []interface{}{},
	}
	if ok {
		resp["status"] = statusToMap(current)
		resp["valid_targets"] = targetsToList(s.lifecycle.ListValidTargets(current.Name))
	}
	return newStruct(resp)
}

// ListValidTargets принимает {status}.
func (s *Service) ListValidTargets(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	current, err := requiredString(req, "status")
	if err != nil {
		return nil, err
	}
	return newStruct(map[string]interface{}{
		"status":        current,
		"valid_targets": targetsToList(s.lifecycle.ListValidTargets(domain.StatusName(current))),
	})
}

// TransitionStatus принимает {order_id, target}.
func (s *Service) TransitionStatus(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	orderID, err := requiredString(req, "order_id")
	if err != nil {
		return nil, err
	}
	target, err := requiredString(req, "target")
	if err != nil {
		return nil, err
	}
	result, err := s.lifecycle.ChangeStatus(ctx, orderID, domain.StatusName(target))
	if err != nil && !domain.IsPartialSuccess(err) {
		return nil, s.toStatusError(err, MethodTransitionStatus)
	}

	resp := map[string]interface{}{
		"status":             statusToMap(result.Status),
		"follow_up_required": err != nil,
	}
	if err != nil {
		resp["code"] = domain.ErrorCode(err)
		resp["message"] = err.Error()
	}
	if fin := result.Finalization; fin != nil {
		finalization := map[string]interface{}{
			"article_id":     fin.ArticleID,
			"previous_stock": fin.PreviousStock,
			"new_stock":      fin.NewStock,
		}
		if w := fin.Warning; w != nil {
			finalization["reorder_warning"] = map[string]interface{}{
				"article_id":    w.ArticleID,
				"article_name":  w.ArticleName,
				"new_stock":     w.NewStock,
				"reorder_point": w.ReorderPoint,
				"message":       w.String(),
			}
		}
		resp["finalization"] = finalization
	}
	return newStruct(resp)
}

// RetireSupplier принимает {supplier_id}.
func (s *Service) RetireSupplier(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	supplierID, err := requiredString(req, "supplier_id")
	if err != nil {
		return nil, err
	}
	supplier, err := s.retirement.Retire(ctx, supplierID)
	if err != nil {
		return nil, s.toStatusError(err, MethodRetireSupplier)
	}
	resp := map[string]interface{}{
		"id":   supplier.ID,
		"name": supplier.Name,
	}
	if supplier.DeactivatedAt != nil {
		resp["deactivated_at"] = formatTime(*supplier.DeactivatedAt)
	}
	return newStruct(resp)
}

// grpcCode сопоставляет код правила с кодом gRPC.
func grpcCode(code string) codes.Code {
	switch code {
	case domain.CodeNotFound:
		return codes.NotFound
	case domain.CodeInvalidTransition, domain.CodeDefaultSupplierInUse, domain.CodeOpenOrderExists,
		domain.CodeSupplierRetired, domain.CodeIncompleteOrderData, domain.CodeArticleNotFound:
		return codes.FailedPrecondition
	case domain.CodeStatusConflict:
		return codes.Aborted
	case domain.CodeStoreUnavailable:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// toStatusError превращает доменную ошибку в gRPC status с ErrorInfo{Reason: код правила}.
func (s *Service) toStatusError(err error, method string) error {
	code := domain.ErrorCode(err)
	grpcStatusCode := grpcCode(code)
	message := err.Error()
	if grpcStatusCode == codes.Internal {
		s.logger.WithError(err).WithField("method", method).Error("unexpected grpc error")
		message = "internal error"
	}

	st := status.New(grpcStatusCode, message)
	detailed, detailErr := st.WithDetails(&errdetails.ErrorInfo{Reason: code, Domain: errorDomain})
	if detailErr != nil {
		return st.Err()
	}
	return detailed.Err()
}

// ReasonFromError достаёт код правила из gRPC-ошибки.
func ReasonFromError(err error) string {
	st, ok := status.FromError(err)
	if !ok {
		return ""
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == errorDomain {
			return info.GetReason()
		}
	}
	return ""
}

func requiredString(req *structpb.Struct, field string) (string, error) {
	if req == nil {
		return "", status.Error(codes.InvalidArgument, "request is required")
	}
	value, ok := req.GetFields()[field]
	if !ok || value.GetStringValue() == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", field)
	}
	return value.GetStringValue(), nil
}

func statusToMap(st domain.OrderStatus) map[string]interface{} {
	result := map[string]interface{}{
		"id":           st.ID,
		"order_id":     st.OrderID,
		"name":         string(st.Name),
		"activated_at": formatTime(st.ActivatedAt),
	}
	if st.DeactivatedAt != nil {
		result["deactivated_at"] = formatTime(*st.DeactivatedAt)
	}
	return result
}

func targetsToList(targets []domain.StatusName) []interface{} {
	result := make([]interface{}, 0, len(targets))
	for _, target := range targets {
		result = append(result, string(target))
	}
	return result
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func newStruct(fields map[string]interface{}) (*structpb.Struct, error) {
	result, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return result, nil
}

var _ ProcurementServer = (*Service)(nil)
