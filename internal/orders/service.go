package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/dispute"
	"github.com/escrowpi/escrowpi/internal/fees"
	"github.com/escrowpi/escrowpi/internal/idgen"
	"github.com/escrowpi/escrowpi/internal/logging"
	"github.com/escrowpi/escrowpi/internal/metrics"
	"github.com/escrowpi/escrowpi/internal/pagination"
	"github.com/escrowpi/escrowpi/internal/payments"
	"github.com/escrowpi/escrowpi/internal/syncutil"
	"github.com/escrowpi/escrowpi/internal/traces"
	"github.com/escrowpi/escrowpi/internal/txstate"
	"github.com/escrowpi/escrowpi/internal/validation"
)

// DefaultListLimit bounds List.
const DefaultListLimit = 100

// CreateRequest contains the parameters for creating an order.
type CreateRequest struct {
	Counterparty string `json:"counterparty"`
	Type         string `json:"type"`
	Note         string `json:"note"`
	Amount       string `json:"amount"`
	// PaymentID and TxID come from the Pi SDK when a send is funded on the
	// payer's device.
	PaymentID string `json:"paymentId"`
	TxID      string `json:"txid"`
}

// ActionRequest asks to take Action on an order the caller last saw in
// ExpectedStatus.
type ActionRequest struct {
	Action         string `json:"action"`
	ExpectedStatus string `json:"expectedStatus"`
	// Percent is required for propose_refund and accept_refund.
	Percent   string `json:"percent"`
	PaymentID string `json:"paymentId"`
	TxID      string `json:"txid"`
}

// Notifier delivers a notification to one user about one order.
type Notifier interface {
	Notify(ctx context.Context, username, orderID, reason string) error
}

// Service implements the order workflow.
type Service struct {
	store    Store
	comments *comments.Service
	payments payments.Provider
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	// locks serialize actions on one order within this process; the
	// store's compare-and-set covers other processes.
	locks *syncutil.KeyedLock
}

// NewService creates a new order service.
func NewService(store Store, commentSvc *comments.Service, provider payments.Provider) *Service {
	return &Service{
		store:    store,
		comments: commentSvc,
		payments: provider,
		logger:   slog.Default(),
		now:      time.Now,
		locks:    syncutil.NewKeyedLock(),
	}
}

// WithLogger sets the service logger. Request ids and the viewer are added
// from the context on every call.
func (s *Service) WithLogger(l *slog.Logger) *Service {
	s.logger = l
	return s
}

// WithNotifier tells the counterparty of every committed transition and
// dispute event. Without one, events are only audited.
func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

// WithClock overrides time.Now.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) log(ctx context.Context) *slog.Logger {
	return logging.Enrich(ctx, s.logger)
}

// collaborator wraps a failed store, comment or payment call.
func (s *Service) collaborator(ctx context.Context, name string, err error) error {
	metrics.CollaboratorErrorsTotal.WithLabelValues(name).Inc()
	s.log(ctx).Warn("collaborator call failed", "collaborator", name, "error", err)
	return fmt.Errorf("%w: %s: %w", ErrCollaborator, name, err)
}

// storeErr passes through the store's own sentinels and wraps the rest.
func (s *Service) storeErr(ctx context.Context, err error) error {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleState) || errors.Is(err, txstate.ErrInvalidTransition) {
		return err
	}
	return s.collaborator(ctx, "order_store", err)
}

// load fetches an order and checks that viewer takes part in it.
func (s *Service) load(ctx context.Context, id, viewer string) (*Order, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}
	if !o.IsParticipant(viewer) {
		return nil, ErrForbidden
	}
	return o, nil
}

// Create opens a new order. A request starts requested with the viewer as
// payee. A send starts initiated with the viewer as payer and is funded
// immediately; if the payment fails the order stays initiated and the
// error is returned with it.
func (s *Service) Create(ctx context.Context, viewer string, req CreateRequest) (*View, error) {
	ctx, span := traces.StartSpan(ctx, "orders.Create", traces.Username(viewer))
	var err error
	defer func() { traces.End(span, err) }()

	req.Counterparty = strings.TrimSpace(req.Counterparty)
	if errs := validation.Validate(
		validation.Required("counterparty", req.Counterparty),
		validation.ValidUsername("counterparty", req.Counterparty),
		validation.OneOf("type", req.Type, string(TypeSend), string(TypeRequest)),
		validation.Required("amount", req.Amount),
		validation.ValidAmount("amount", req.Amount),
		validation.MaxLength("note", req.Note, validation.MaxNoteLength),
	); len(errs) > 0 {
		err = errs
		return nil, err
	}
	if req.Counterparty == viewer {
		err = ErrSelfOrder
		return nil, err
	}
	amount, err := fees.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:        idgen.OrderNo(),
		Type:      Type(req.Type),
		Amount:    amount,
		Note:      validation.SanitizeString(req.Note, validation.MaxNoteLength),
		Dispute:   dispute.Dispute{Status: dispute.StatusNone},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if o.Type == TypeRequest {
		o.PayeeUsername, o.PayerUsername, o.Status = viewer, req.Counterparty, txstate.StatusRequested
	} else {
		o.PayerUsername, o.PayeeUsername, o.Status = viewer, req.Counterparty, txstate.StatusInitiated
	}

	if cerr := s.store.Create(ctx, o); cerr != nil {
		err = s.collaborator(ctx, "order_store", cerr)
		return nil, err
	}
	s.log(ctx).Info("order created",
		"orderId", o.ID, "type", o.Type, "payer", o.PayerUsername, "payee", o.PayeeUsername, "amount", o.Amount.String())

	if o.Type == TypeRequest {
		s.notify(ctx, o, viewer, fmt.Sprintf("User %s has requested %s pi", viewer, fees.Format(o.Amount)))
		return MapOrderToViewModel(o, viewer), nil
	}

	funded, ferr := s.fund(ctx, o, viewer, req.PaymentID, req.TxID)
	if ferr != nil {
		err = ferr
		return MapOrderToViewModel(o, viewer), err
	}
	return MapOrderToViewModel(funded, viewer), nil
}

// fund pays for an initiated send order and commits initiated -> paid.
func (s *Service) fund(ctx context.Context, o *Order, actor, paymentID, txID string) (*Order, error) {
	to, err := txstate.Funded(o.Status)
	if err != nil {
		return nil, err
	}
	receipt, err := s.pay(ctx, o, paymentID, txID)
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues("fund", "failed").Inc()
		return nil, err
	}
	updated, err := s.commit(ctx, o, "fund", StatusUpdate{From: o.Status, To: to, Actor: actor, Receipt: &receipt})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// pay settles the order total with the payment provider.
func (s *Service) pay(ctx context.Context, o *Order, paymentID, txID string) (payments.Receipt, error) {
	breakdown, err := fees.ComputeBreakdown(o.Amount)
	if err != nil {
		return payments.Receipt{}, err
	}
	receipt, err := s.payments.Pay(ctx, payments.Request{
		OrderID:   o.ID,
		Amount:    breakdown.Total,
		Memo:      fmt.Sprintf("EscrowPi %s: %s pi to %s", o.ID, fees.Format(o.Amount), o.PayeeUsername),
		Metadata:  map[string]string{"orderId": o.ID, "payer": o.PayerUsername, "payee": o.PayeeUsername},
		PaymentID: paymentID,
		TxID:      txID,
	})
	if err != nil {
		return payments.Receipt{}, s.collaborator(ctx, "payments", err)
	}
	s.log(ctx).Info("payment settled",
		"orderId", o.ID, "paymentId", receipt.PaymentID, "txid", receipt.TxID, "amount", receipt.Amount.String())
	return receipt, nil
}

// commit persists a status change and records the audit comment. The
// transition is durable once the store returns; a failed audit write is
// logged, not surfaced. A receipt that could not be committed has already
// moved funds and is logged at error level for reconciliation.
func (s *Service) commit(ctx context.Context, o *Order, action string, u StatusUpdate) (*Order, error) {
	updated, sysComment, err := s.store.UpdateStatus(ctx, o.ID, u)
	if err != nil {
		result := "failed"
		if errors.Is(err, ErrStaleState) {
			result = "stale"
		}
		metrics.TransitionsTotal.WithLabelValues(action, result).Inc()
		if u.Receipt != nil {
			metrics.PaymentsTotal.WithLabelValues("unreconciled").Inc()
			s.log(ctx).Error("payment settled but transition not committed",
				"orderId", o.ID, "action", action, "from", u.From, "to", u.To,
				"paymentId", u.Receipt.PaymentID, "txid", u.Receipt.TxID,
				"amount", u.Receipt.Amount.String(), "error", err)
		}
		return nil, s.storeErr(ctx, err)
	}
	metrics.TransitionsTotal.WithLabelValues(action, "committed").Inc()
	s.log(ctx).Info("order transition committed",
		"orderId", o.ID, "action", action, "from", u.From, "to", u.To, "actor", u.Actor)

	text := comments.TransitionText(u.Actor, u.To.Label())
	if sysComment == nil {
		s.audit(ctx, o.ID, u.Actor, text)
	}
	s.notify(ctx, updated, u.Actor, text)
	s.observeSettlement(updated)
	return updated, nil
}

func (s *Service) audit(ctx context.Context, orderID, actor, text string) {
	if _, err := s.comments.PostSystem(ctx, orderID, actor, text); err != nil {
		metrics.CollaboratorErrorsTotal.WithLabelValues("comment_store").Inc()
		s.log(ctx).Warn("failed to record audit comment", "orderId", orderID, "error", err)
	}
}

// notify tells every participant of o except actor. The system actor's
// events reach both parties. Failures are logged, not surfaced.
func (s *Service) notify(ctx context.Context, o *Order, actor, text string) {
	if s.notifier == nil || o == nil {
		return
	}
	for _, user := range []string{o.PayerUsername, o.PayeeUsername} {
		if user == actor {
			continue
		}
		if err := s.notifier.Notify(ctx, user, o.ID, text); err != nil {
			metrics.CollaboratorErrorsTotal.WithLabelValues("notifications").Inc()
			s.log(ctx).Warn("failed to notify counterparty", "orderId", o.ID, "recipient", user, "error", err)
		}
	}
}

// record audits an event on o and notifies the other party.
func (s *Service) record(ctx context.Context, o *Order, actor, text string) {
	s.audit(ctx, o.ID, actor, text)
	s.notify(ctx, o, actor, text)
}

func (s *Service) observeSettlement(o *Order) {
	if o != nil && o.IsTerminal() && !o.CreatedAt.IsZero() {
		metrics.OrderSettlementDuration.Observe(s.now().Sub(o.CreatedAt).Seconds())
	}
}

// Detail re-fetches the order and its comments and maps them for viewer.
// localPercent is what the viewer has typed into the dispute centre.
func (s *Service) Detail(ctx context.Context, id, viewer string, localPercent decimal.NullDecimal) (*View, error) {
	ctx, span := traces.StartSpan(ctx, "orders.Detail", traces.OrderID(id), traces.Username(viewer))
	var err error
	defer func() { traces.End(span, err) }()

	o, err := s.load(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	list, cerr := s.comments.List(ctx, id, viewer)
	if cerr != nil {
		err = s.collaborator(ctx, "comment_store", cerr)
		return nil, err
	}
	v := mapOrder(o, viewer, localPercent)
	v.Comments = list
	return v, nil
}

// Refresh is Detail: the authoritative order, comments and dispute state
// replace whatever the caller held.
func (s *Service) Refresh(ctx context.Context, id, viewer string, localPercent decimal.NullDecimal) (*View, error) {
	return s.Detail(ctx, id, viewer, localPercent)
}

// Page is one page of the viewer's orders. NextCursor is empty on the
// last page.
type Page struct {
	Orders     []*View `json:"orders"`
	NextCursor string  `json:"nextCursor,omitempty"`
}

// List returns a page of the viewer's orders, newest first, starting after
// cursor ("" for the first page).
func (s *Service) List(ctx context.Context, viewer, cursor string, limit int) (*Page, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	after, err := pagination.Decode(cursor)
	if err != nil {
		return nil, validation.ValidationErrors{{Field: "cursor", Message: err.Error()}}
	}
	list, err := s.store.ListByUser(ctx, viewer, after, limit+1)
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}
	list, next := pagination.Page(list, limit, func(o *Order) (time.Time, string) {
		return o.CreatedAt, o.ID
	})

	page := &Page{Orders: make([]*View, 0, len(list)), NextCursor: next}
	for _, o := range list {
		page.Orders = append(page.Orders, MapOrderToViewModel(o, viewer))
	}
	return page, nil
}

// Act takes a lifecycle action. The order must still be in the status the
// caller saw; accept settles the payment before anything is committed.
func (s *Service) Act(ctx context.Context, id, viewer string, req ActionRequest) (*View, error) {
	if errs := validation.Validate(
		validation.Required("action", req.Action),
		validation.Required("expectedStatus", req.ExpectedStatus),
	); len(errs) > 0 {
		return nil, errs
	}
	action, err := txstate.ParseAction(req.Action)
	if err != nil {
		return nil, validation.ValidationErrors{{Field: "action", Message: err.Error()}}
	}
	expected, err := txstate.ParseStatus(req.ExpectedStatus)
	if err != nil {
		return nil, validation.ValidationErrors{{Field: "expectedStatus", Message: err.Error()}}
	}

	switch action {
	case txstate.ActionProposeRefund:
		return s.proposeRefund(ctx, id, viewer, req.Percent, expected)
	case txstate.ActionAcceptRefund:
		return s.acceptRefund(ctx, id, viewer, req.Percent, expected)
	}

	ctx, span := traces.StartSpan(ctx, "orders.Act",
		traces.OrderID(id), traces.Action(string(action)), traces.Username(viewer))
	defer func() { traces.End(span, err) }()

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.load(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	role := o.RoleOf(viewer)
	span.SetAttributes(traces.OrderStatus(string(o.Status)), traces.Role(string(role)))

	if o.Status != expected {
		metrics.TransitionsTotal.WithLabelValues(string(action), "stale").Inc()
		err = fmt.Errorf("%w: expected %s, order is %s", ErrStaleState, expected, o.Status)
		return nil, err
	}
	to, err := txstate.Apply(o.Status, role, action)
	if err != nil {
		metrics.TransitionsTotal.WithLabelValues(string(action), "invalid").Inc()
		return nil, err
	}

	update := StatusUpdate{From: o.Status, To: to, Actor: viewer}
	if txstate.RequiresPayment(action) {
		receipt, perr := s.pay(ctx, o, req.PaymentID, req.TxID)
		if perr != nil {
			metrics.TransitionsTotal.WithLabelValues(string(action), "failed").Inc()
			err = perr
			return nil, err
		}
		update.Receipt = &receipt
	}

	updated, err := s.commit(ctx, o, string(action), update)
	if err != nil {
		return nil, err
	}
	return MapOrderToViewModel(updated, viewer), nil
}

// disputeContext loads a disputed order for a dispute centre event and
// checks the event is legal for the viewer's role. A non-empty expected
// status must match the stored one.
func (s *Service) disputeContext(ctx context.Context, id, viewer string, action txstate.Action, expected txstate.Status) (*Order, txstate.Role, error) {
	o, err := s.load(ctx, id, viewer)
	if err != nil {
		return nil, "", err
	}
	if expected != "" && o.Status != expected {
		return nil, "", fmt.Errorf("%w: expected %s, order is %s", ErrStaleState, expected, o.Status)
	}
	role := o.RoleOf(viewer)
	if _, err := txstate.Apply(o.Status, role, action); err != nil {
		return nil, "", err
	}
	return o, role, nil
}

func disputeResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrStaleState), errors.Is(err, ErrProposalChanged):
		return "conflict"
	case errors.Is(err, txstate.ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, fees.ErrInvalidPercent):
		return "invalid"
	}
	return "failed"
}

// ProposeRefund records the viewer's refund proposal, or counter-proposes
// over the other party's.
func (s *Service) ProposeRefund(ctx context.Context, id, viewer, percent string) (*View, error) {
	return s.proposeRefund(ctx, id, viewer, percent, "")
}

func (s *Service) proposeRefund(ctx context.Context, id, viewer, percent string, expected txstate.Status) (v *View, err error) {
	ctx, span := traces.StartSpan(ctx, "orders.ProposeRefund", traces.OrderID(id), traces.Username(viewer))
	defer func() {
		metrics.DisputeEventsTotal.WithLabelValues("propose", disputeResult(err)).Inc()
		traces.End(span, err)
	}()

	p, err := parsePercent(percent)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, role, err := s.disputeContext(ctx, id, viewer, txstate.ActionProposeRefund, expected)
	if err != nil {
		return nil, err
	}
	next, err := dispute.Propose(o.Dispute, role, viewer, p)
	if err != nil {
		return nil, err
	}
	updated, err := s.store.ProposeDispute(ctx, id, o.Dispute, next)
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}

	s.log(ctx).Info("refund proposed", "orderId", id, "by", viewer, "role", role, "percent", next.ProposalPercent.String())
	s.record(ctx, updated, viewer, fmt.Sprintf("User %s has proposed a %s%% refund", viewer, next.ProposalPercent.StringFixed(fees.PercentPlaces)))
	return MapOrderToViewModel(updated, viewer), nil
}

// AcceptRefund accepts the counterpart's proposal at exactly the percent
// the viewer entered and releases the order.
func (s *Service) AcceptRefund(ctx context.Context, id, viewer, percent string) (*View, error) {
	return s.acceptRefund(ctx, id, viewer, percent, "")
}

func (s *Service) acceptRefund(ctx context.Context, id, viewer, percent string, expected txstate.Status) (v *View, err error) {
	ctx, span := traces.StartSpan(ctx, "orders.AcceptRefund", traces.OrderID(id), traces.Username(viewer))
	defer func() {
		metrics.DisputeEventsTotal.WithLabelValues("accept", disputeResult(err)).Inc()
		traces.End(span, err)
	}()

	p, err := parsePercent(percent)
	if err != nil {
		return nil, err
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, role, err := s.disputeContext(ctx, id, viewer, txstate.ActionAcceptRefund, expected)
	if err != nil {
		return nil, err
	}
	accepted, err := dispute.Accept(o.Dispute, role, viewer, p)
	if err != nil {
		return nil, err
	}
	updated, sysComment, err := s.store.AcceptDispute(ctx, id, o.Dispute, accepted)
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}

	metrics.TransitionsTotal.WithLabelValues(string(txstate.ActionAcceptRefund), "committed").Inc()
	s.log(ctx).Info("refund accepted", "orderId", id, "by", viewer, "role", role, "percent", accepted.ProposalPercent.String())
	text := comments.TransitionText(viewer, updated.Status.Label())
	if sysComment == nil {
		s.audit(ctx, id, viewer, text)
	}
	s.notify(ctx, updated, viewer, text)
	s.observeSettlement(updated)
	return MapOrderToViewModel(updated, viewer), nil
}

// WithdrawProposal lets the proposer take back their proposal.
func (s *Service) WithdrawProposal(ctx context.Context, id, viewer string) (*View, error) {
	return s.clearProposal(ctx, id, viewer, "withdraw", dispute.Withdraw)
}

// DeclineProposal lets the counterpart reject the outstanding proposal.
func (s *Service) DeclineProposal(ctx context.Context, id, viewer string) (*View, error) {
	return s.clearProposal(ctx, id, viewer, "decline", dispute.Decline)
}

func (s *Service) clearProposal(ctx context.Context, id, viewer, event string,
	step func(dispute.Dispute, txstate.Role) (dispute.Dispute, error)) (v *View, err error) {
	ctx, span := traces.StartSpan(ctx, "orders."+event+"Proposal", traces.OrderID(id), traces.Username(viewer))
	defer func() {
		metrics.DisputeEventsTotal.WithLabelValues(event, disputeResult(err)).Inc()
		traces.End(span, err)
	}()

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Withdraw and decline are only reachable while the order is disputed.
	o, role, err := s.disputeContext(ctx, id, viewer, txstate.ActionProposeRefund, "")
	if err != nil {
		return nil, err
	}
	if _, err = step(o.Dispute, role); err != nil {
		return nil, err
	}
	updated, err := s.store.ClearDispute(ctx, id, o.Dispute)
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}

	verb := "withdrawn"
	if event == "decline" {
		verb = "declined"
	}
	s.log(ctx).Info("refund proposal cleared", "orderId", id, "by", viewer, "event", event)
	s.record(ctx, updated, viewer, fmt.Sprintf("User %s has %s the refund proposal", viewer, verb))
	return MapOrderToViewModel(updated, viewer), nil
}

// AddComment posts a user comment. Finished orders take no comments.
func (s *Service) AddComment(ctx context.Context, id, viewer, text string) (*comments.Comment, error) {
	o, err := s.load(ctx, id, viewer)
	if err != nil {
		return nil, err
	}
	if o.IsTerminal() {
		return nil, ErrCommentsClosed
	}
	c, err := s.comments.Post(ctx, id, viewer, text)
	if err != nil {
		if errors.Is(err, comments.ErrCommentEmpty) || errors.Is(err, comments.ErrCommentTooLong) {
			return nil, err
		}
		return nil, s.collaborator(ctx, "comment_store", err)
	}
	cp := *c
	cp.Author = c.DisplayAuthor(viewer)
	return &cp, nil
}

// Comments returns an order's comments with the viewer shown as "You".
func (s *Service) Comments(ctx context.Context, id, viewer string) ([]*comments.Comment, error) {
	if _, err := s.load(ctx, id, viewer); err != nil {
		return nil, err
	}
	list, err := s.comments.List(ctx, id, viewer)
	if err != nil {
		return nil, s.collaborator(ctx, "comment_store", err)
	}
	return list, nil
}

// Expire moves an order nobody acted on to expired. The order is re-read
// under its lock; one that moved on in the meantime is left alone.
func (s *Service) Expire(ctx context.Context, id string) (*Order, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}
	to, err := txstate.Expire(o.Status)
	if err != nil {
		return nil, err
	}
	updated, _, err := s.store.UpdateStatus(ctx, id, StatusUpdate{From: o.Status, To: to, Actor: SystemActor})
	if err != nil {
		return nil, s.storeErr(ctx, err)
	}
	metrics.OrdersExpiredTotal.Inc()
	s.record(ctx, updated, SystemActor, "This transaction has expired")
	s.observeSettlement(updated)
	return updated, nil
}

func parsePercent(s string) (decimal.Decimal, error) {
	if errs := validation.Validate(validation.Required("percent", s)); len(errs) > 0 {
		return decimal.Zero, errs
	}
	if errs := validation.Validate(validation.ValidPercent("percent", s)); len(errs) > 0 {
		return decimal.Zero, errs
	}
	return fees.ParsePercent(s)
}
