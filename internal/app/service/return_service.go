package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ikkim/storefront-backend/config"
	"github.com/ikkim/storefront-backend/internal/app/model"
	"github.com/ikkim/storefront-backend/internal/app/repository"
	"github.com/ikkim/storefront-backend/pkg/carrier"
	"github.com/ikkim/storefront-backend/pkg/logger"
	"github.com/ikkim/storefront-backend/pkg/mailer"
	"github.com/ikkim/storefront-backend/pkg/util"
	"gorm.io/gorm"
)

const sideEffectTimeout = 20 * time.Second

// Identity is the caller of a returns operation. A zero UserID means an
// unauthenticated caller who proves ownership through order contact details.
type Identity struct {
	UserID       *uint
	IsAdmin      bool
	ContactEmail string
	ContactPhone string
}

type CreateReturnInput struct {
	OrderNumber    string
	Reason         string
	Details        string
	Photos         []string
	ResolutionType model.ResolutionType
	Identity       Identity
}

type ReturnService interface {
	CreateReturnRequest(ctx context.Context, input CreateReturnInput) (*model.ReturnRequest, error)
	Approve(ctx context.Context, returnID uint, adminID *uint, note string) (*model.ReturnRequest, error)
	Reject(ctx context.Context, returnID uint, adminID *uint, reason string) (*model.ReturnRequest, error)
	Complete(ctx context.Context, returnID uint, adminID *uint, note string) (*model.ReturnRequest, error)
	GetReturn(id uint) (*model.ReturnRequest, error)
	ListUserReturns(userID uint) ([]model.ReturnRequest, error)
	ListReturns(filter repository.ReturnFilter) ([]model.ReturnRequest, int64, error)
}

type returnService struct {
	db          *gorm.DB
	returnRepo  repository.ReturnRepository
	orderRepo   repository.OrderRepository
	paymentRepo repository.PaymentRepository
	orderSvc    OrderService
	couponSvc   CouponService
	gateway     PaymentGateway
	carrier     ShipmentCarrier
	notifier    mailer.Notifier
	cfg         config.ReturnsConfig
	now         func() time.Time
}

func NewReturnService(
	db *gorm.DB,
	returnRepo repository.ReturnRepository,
	orderRepo repository.OrderRepository,
	paymentRepo repository.PaymentRepository,
	orderSvc OrderService,
	couponSvc CouponService,
	gateway PaymentGateway,
	shipmentCarrier ShipmentCarrier,
	notifier mailer.Notifier,
	cfg config.ReturnsConfig,
) ReturnService {
	return &returnService{
		db:          db,
		returnRepo:  returnRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		orderSvc:    orderSvc,
		couponSvc:   couponSvc,
		gateway:     gateway,
		carrier:     shipmentCarrier,
		notifier:    notifier,
		cfg:         cfg,
		now:         time.Now,
	}
}

func (s *returnService) validateCreate(input CreateReturnInput) error {
	if strings.TrimSpace(input.OrderNumber) == "" {
		return validationf("order number is required")
	}
	reason := strings.TrimSpace(input.Reason)
	if len(reason) < 2 || len(reason) > 100 {
		return validationf("reason must be between 2 and 100 characters")
	}
	if !input.ResolutionType.Valid() {
		return validationf("unknown resolution type %q", input.ResolutionType)
	}
	if s.cfg.MaxPhotos > 0 && len(input.Photos) > s.cfg.MaxPhotos {
		return validationf("at most %d photos may be attached", s.cfg.MaxPhotos)
	}
	for _, p := range input.Photos {
		u, err := url.Parse(p)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return validationf("photo %q is not a valid URL", p)
		}
	}
	return nil
}

// authorizeReturn checks that the caller may open a return for the order.
// Account orders belong to their user; guests prove ownership with the email
// or phone the order was placed with.
func authorizeReturn(order *model.Order, id Identity) error {
	if id.IsAdmin {
		return nil
	}
	if id.UserID != nil {
		if order.UserID != nil && *order.UserID == *id.UserID {
			return nil
		}
		if order.UserID != nil {
			return ErrOrderNotOwned
		}
	}

	if email := strings.TrimSpace(id.ContactEmail); email != "" {
		if strings.EqualFold(email, order.ContactEmail) {
			return nil
		}
		if order.User != nil && strings.EqualFold(email, order.User.Email) {
			return nil
		}
	}
	if phone := id.ContactPhone; phone != "" {
		candidates := []string{order.ContactPhone, order.ShippingAddress.Data().Phone}
		if order.User != nil {
			candidates = append(candidates, order.User.Phone)
		}
		for _, c := range candidates {
			if util.PhonesMatch(phone, c) {
				return nil
			}
		}
	}
	return ErrReturnVerificationFailed
}

func (s *returnService) deliveredAt(order *model.Order) time.Time {
	if order.Shipping != nil && order.Shipping.DeliveredAt != nil {
		return *order.Shipping.DeliveredAt
	}
	return order.UpdatedAt
}

func (s *returnService) CreateReturnRequest(ctx context.Context, input CreateReturnInput) (*model.ReturnRequest, error) {
	if err := s.validateCreate(input); err != nil {
		return nil, err
	}

	order, err := s.orderSvc.GetOrderByNumber(input.OrderNumber)
	if err != nil {
		return nil, err
	}
	if err := authorizeReturn(order, input.Identity); err != nil {
		logger.Warn("Return request verification failed", map[string]interface{}{
			"order_number": order.OrderNumber,
			"guest":        input.Identity.UserID == nil,
		})
		return nil, err
	}
	if order.Status != model.OrderStatusDelivered {
		return nil, conflictf("order %s is %s; only delivered orders can be returned", order.OrderNumber, order.Status)
	}
	if s.cfg.WindowDays > 0 {
		deadline := s.deliveredAt(order).AddDate(0, 0, s.cfg.WindowDays)
		if s.now().After(deadline) {
			return nil, validationf("the %d day return window for order %s has closed", s.cfg.WindowDays, order.OrderNumber)
		}
	}

	req := &model.ReturnRequest{
		OrderID:        order.ID,
		UserID:         order.UserID,
		ContactEmail:   strings.TrimSpace(input.Identity.ContactEmail),
		ContactPhone:   util.NormalizePhone(input.Identity.ContactPhone),
		Reason:         strings.TrimSpace(input.Reason),
		Details:        strings.TrimSpace(input.Details),
		Photos:         input.Photos,
		ResolutionType: input.ResolutionType,
		Status:         model.ReturnStatusPending,
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		returns := s.returnRepo.WithTx(tx)
		if _, err := returns.FindActiveByOrderID(order.ID); err == nil {
			return conflictf("order %s already has an open return", order.OrderNumber)
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if req.ResolutionType.PaysOut() {
			settled, err := returns.CountPaidOut(order.ID)
			if err != nil {
				return err
			}
			if settled > 0 {
				return conflictf("order %s was already refunded or credited through a return", order.OrderNumber)
			}
		}
		if err := returns.Create(req); err != nil {
			return err
		}
		return returns.AppendLog(&model.ReturnLog{
			ReturnRequestID: req.ID,
			Status:          model.ReturnStatusPending,
			ActorID:         input.Identity.UserID,
			Note:            "Return requested: " + req.Reason,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Return request created", map[string]interface{}{
		"return_id":       req.ID,
		"order_number":    order.OrderNumber,
		"resolution_type": req.ResolutionType,
	})

	notifyAsync(s.notifier, s.recipient(req, order), mailer.KindReturnReceived, map[string]interface{}{
		"return_id":    req.ID,
		"order_number": order.OrderNumber,
	})
	return s.GetReturn(req.ID)
}

func (s *returnService) recipient(req *model.ReturnRequest, order *model.Order) string {
	if r := orderRecipient(order); r != "" {
		return r
	}
	return req.ContactEmail
}

func (s *returnService) GetReturn(id uint) (*model.ReturnRequest, error) {
	req, err := s.returnRepo.FindByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReturnNotFound
		}
		return nil, err
	}
	return req, nil
}

func (s *returnService) ListUserReturns(userID uint) ([]model.ReturnRequest, error) {
	return s.returnRepo.FindByUserID(userID)
}

func (s *returnService) ListReturns(filter repository.ReturnFilter) ([]model.ReturnRequest, int64, error) {
	return s.returnRepo.List(filter)
}

// transition applies from → to with a log entry in one transaction. A
// request that is no longer in `from` yields Conflict.
func (s *returnService) transition(returnID uint, from, to model.ReturnStatus, fields map[string]interface{}, entry model.ReturnLog) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		returns := s.returnRepo.WithTx(tx)
		ok, err := returns.TransitionStatus(returnID, from, to, fields)
		if err != nil {
			return err
		}
		if !ok {
			current, err := returns.FindByID(returnID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrReturnNotFound
				}
				return err
			}
			return conflictf("return request %d is %s; cannot move to %s", returnID, current.Status, to)
		}
		entry.ReturnRequestID = returnID
		entry.Status = to
		return returns.AppendLog(&entry)
	})
}

// audit appends a log entry outside the state transition. Failures are logged.
func (s *returnService) audit(returnID uint, status model.ReturnStatus, actorID *uint, note string) {
	if err := s.returnRepo.AppendLog(&model.ReturnLog{
		ReturnRequestID: returnID,
		Status:          status,
		ActorID:         actorID,
		Note:            note,
	}); err != nil {
		logger.Error("Failed to append return log", err, map[string]interface{}{
			"return_id": returnID,
			"note":      note,
		})
	}
}

func (s *returnService) Approve(ctx context.Context, returnID uint, adminID *uint, note string) (*model.ReturnRequest, error) {
	if adminID == nil {
		return nil, ErrAdminRequired
	}

	reviewedAt := s.now()
	logNote := "Return approved"
	if n := strings.TrimSpace(note); n != "" {
		logNote += ": " + n
	}
	err := s.transition(returnID, model.ReturnStatusPending, model.ReturnStatusApproved,
		map[string]interface{}{"reviewed_by": *adminID, "reviewed_at": reviewedAt},
		model.ReturnLog{ActorID: adminID, Note: logNote})
	if err != nil {
		return nil, err
	}

	logger.Info("Return approved", map[string]interface{}{
		"return_id": returnID,
		"admin_id":  *adminID,
	})

	req, err := s.GetReturn(returnID)
	if err != nil {
		return nil, err
	}

	// Side effects run past the caller's cancellation and never undo the approval.
	bg := context.WithoutCancel(ctx)
	data := map[string]interface{}{
		"return_id":    req.ID,
		"order_number": req.Order.OrderNumber,
	}
	data["pickup_waybill"] = s.bookPickup(bg, req)

	switch req.ResolutionType {
	case model.ResolutionRefund:
		s.issueRefund(bg, req)
	case model.ResolutionExchange:
		if number := s.createExchange(bg, req); number != "" {
			data["exchange_order_number"] = number
		}
	case model.ResolutionStoreCredit:
		if coupon := s.mintStoreCredit(bg, req, adminID); coupon != nil {
			data["store_credit_code"] = coupon.Code
			data["store_credit_amount"] = fmt.Sprintf("%.2f", coupon.DiscountValue)
		}
	}

	notifyAsync(s.notifier, s.recipient(req, req.Order), mailer.KindReturnApproved, data)
	return s.GetReturn(returnID)
}

// bookPickup requests a reverse pickup and stores its waybill, falling back
// to the PICKUP_PENDING placeholder when the carrier cannot book one.
func (s *returnService) bookPickup(ctx context.Context, req *model.ReturnRequest) string {
	waybill := model.PickupPendingWaybill
	if s.carrier == nil {
		s.audit(req.ID, model.ReturnStatusApproved, nil, "Reverse pickup pending: carrier not configured")
	} else {
		callCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
		res, err := s.carrier.CreatePickup(callCtx, toCarrierAddress(req.Order.ShippingAddress.Data()),
			carrier.PickupReverse, fmt.Sprintf("RET-%d", req.ID))
		cancel()
		if err != nil {
			logger.Error("Reverse pickup booking failed", err, map[string]interface{}{
				"return_id": req.ID,
			})
			s.audit(req.ID, model.ReturnStatusApproved, nil, "Reverse pickup pending: "+err.Error())
		} else {
			waybill = res.Waybill
			s.audit(req.ID, model.ReturnStatusApproved, nil, "Reverse pickup booked: "+waybill)
		}
	}

	if err := s.returnRepo.UpdateFields(req.ID, map[string]interface{}{"pickup_waybill": waybill}); err != nil {
		logger.Error("Failed to store pickup waybill", err, map[string]interface{}{
			"return_id": req.ID,
			"waybill":   waybill,
		})
	}
	return waybill
}

func (s *returnService) issueRefund(ctx context.Context, req *model.ReturnRequest) {
	fail := func(err error) {
		logger.Error("Return refund failed; manual reconciliation required", err, map[string]interface{}{
			"return_id": req.ID,
			"order_id":  req.OrderID,
		})
		s.audit(req.ID, model.ReturnStatusApproved, nil, "Refund failed: "+err.Error())
	}

	if s.gateway == nil {
		fail(errors.New("payment gateway not configured"))
		return
	}
	payment, err := s.paymentRepo.FindCompletedByOrderID(req.OrderID)
	if err != nil {
		fail(fmt.Errorf("no captured payment: %w", err))
		return
	}
	if payment.RefundID != "" {
		logger.Warn("Return refund skipped: payment already refunded", map[string]interface{}{
			"return_id":  req.ID,
			"payment_id": payment.ID,
			"refund_id":  payment.RefundID,
		})
		s.audit(req.ID, model.ReturnStatusApproved, nil, "Refund skipped: payment already refunded as "+payment.RefundID)
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()
	refundID, err := s.gateway.Refund(callCtx, payment.GatewayPaymentID, util.ToMinorUnits(payment.Amount), map[string]string{
		"return_id":    fmt.Sprintf("%d", req.ID),
		"order_number": req.Order.OrderNumber,
	})
	if err != nil {
		recordRefundTimeout(s.paymentRepo, payment, err, map[string]interface{}{
			"return_id":    req.ID,
			"order_number": req.Order.OrderNumber,
		})
		fail(err)
		return
	}

	if err := s.returnRepo.UpdateFields(req.ID, map[string]interface{}{"refund_id": refundID}); err != nil {
		logger.Error("Failed to store refund id on return", err, map[string]interface{}{
			"return_id": req.ID,
		})
	}
	if err := s.paymentRepo.SetRefundID(payment.ID, refundID); err != nil {
		logger.Error("Failed to store refund id on payment", err, map[string]interface{}{
			"payment_id": payment.ID,
		})
	}
	s.audit(req.ID, model.ReturnStatusApproved, nil, "Refund issued: "+refundID)
	logger.Info("Return refund issued", map[string]interface{}{
		"return_id": req.ID,
		"refund_id": refundID,
	})
}

func (s *returnService) createExchange(ctx context.Context, req *model.ReturnRequest) string {
	callCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	replacement, err := s.orderSvc.CreateReplacementOrder(callCtx, req.Order,
		fmt.Sprintf("Exchange for %s (return #%d)", req.Order.OrderNumber, req.ID))
	if err != nil {
		logger.Error("Exchange order creation failed", err, map[string]interface{}{
			"return_id": req.ID,
		})
		s.audit(req.ID, model.ReturnStatusApproved, nil, "Exchange order failed: "+err.Error())
		return ""
	}

	if err := s.returnRepo.UpdateFields(req.ID, map[string]interface{}{"exchange_order_number": replacement.OrderNumber}); err != nil {
		logger.Error("Failed to store exchange order number", err, map[string]interface{}{
			"return_id": req.ID,
		})
	}
	s.audit(req.ID, model.ReturnStatusApproved, nil, "Exchange order created: "+replacement.OrderNumber)
	return replacement.OrderNumber
}

func (s *returnService) mintStoreCredit(ctx context.Context, req *model.ReturnRequest, adminID *uint) *model.Coupon {
	callCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
	defer cancel()

	coupon, err := s.couponSvc.MintStoreCredit(callCtx, StoreCreditInput{
		ReturnID: req.ID,
		OrderID:  req.OrderID,
		UserID:   req.Order.UserID,
		Amount:   req.Order.TotalAmount,
	})
	if err != nil {
		logger.Error("Store credit minting failed", err, map[string]interface{}{
			"return_id": req.ID,
		})
		s.audit(req.ID, model.ReturnStatusApproved, nil, "Store credit failed: "+err.Error())
		return nil
	}

	if err := s.returnRepo.UpdateFields(req.ID, map[string]interface{}{"store_credit_code": coupon.Code}); err != nil {
		logger.Error("Failed to store credit code on return", err, map[string]interface{}{
			"return_id": req.ID,
		})
	}
	s.audit(req.ID, model.ReturnStatusApproved, adminID,
		fmt.Sprintf("Store credit issued: %s (%.2f)", coupon.Code, coupon.DiscountValue))
	return coupon
}

func (s *returnService) Reject(ctx context.Context, returnID uint, adminID *uint, reason string) (*model.ReturnRequest, error) {
	if adminID == nil {
		return nil, ErrAdminRequired
	}
	reason = strings.TrimSpace(reason)
	if len(reason) < 2 {
		return nil, validationf("rejection reason must be at least 2 characters")
	}

	err := s.transition(returnID, model.ReturnStatusPending, model.ReturnStatusRejected,
		map[string]interface{}{
			"rejection_reason": reason,
			"reviewed_by":      *adminID,
			"reviewed_at":      s.now(),
		},
		model.ReturnLog{ActorID: adminID, Note: "Return rejected: " + reason})
	if err != nil {
		return nil, err
	}

	logger.Info("Return rejected", map[string]interface{}{
		"return_id": returnID,
		"admin_id":  *adminID,
	})

	req, err := s.GetReturn(returnID)
	if err != nil {
		return nil, err
	}
	notifyAsync(s.notifier, s.recipient(req, req.Order), mailer.KindReturnRejected, map[string]interface{}{
		"return_id":    req.ID,
		"order_number": req.Order.OrderNumber,
		"reason":       reason,
	})
	return req, nil
}

// Complete closes an approved return once the goods are back.
func (s *returnService) Complete(ctx context.Context, returnID uint, adminID *uint, note string) (*model.ReturnRequest, error) {
	if adminID == nil {
		return nil, ErrAdminRequired
	}

	logNote := "Return completed"
	if n := strings.TrimSpace(note); n != "" {
		logNote += ": " + n
	}
	if err := s.transition(returnID, model.ReturnStatusApproved, model.ReturnStatusCompleted, nil,
		model.ReturnLog{ActorID: adminID, Note: logNote}); err != nil {
		return nil, err
	}

	req, err := s.GetReturn(returnID)
	if err != nil {
		return nil, err
	}
	notifyAsync(s.notifier, s.recipient(req, req.Order), mailer.KindReturnCompleted, map[string]interface{}{
		"return_id":    req.ID,
		"order_number": req.Order.OrderNumber,
	})
	return req, nil
}
