package checkout

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/boddenberg/upsell-checkout-bfa/internal/countdown"
	"github.com/boddenberg/upsell-checkout-bfa/internal/document"
	"github.com/boddenberg/upsell-checkout-bfa/internal/domain"
	"github.com/boddenberg/upsell-checkout-bfa/internal/port"
)

// Deps are the collaborators every controller shares.
type Deps struct {
	Offer       domain.Offer
	Identities  port.IdentityResolver
	Payments    port.PaymentIntentCreator
	Events      port.EventRecorder
	Attribution port.AttributionSource
	Scheduler   *countdown.Scheduler
	Logger      *zap.Logger
}

// Controller owns one session's checkout state. Transitions are applied
// under its mutex; network effects run outside it.
type Controller struct {
	id   string
	deps Deps

	mu         sync.Mutex
	state      State
	pageURL    string
	offerTimer *countdown.Countdown
	pixTimer   *countdown.Countdown
	closed     bool
}

// NewController creates a controller and starts the offer countdown.
func NewController(id string, deps Deps) (*Controller, error) {
	c := &Controller{
		id:    id,
		deps:  deps,
		state: State{Phase: PhaseIdle},
	}

	if deps.Scheduler != nil && deps.Offer.Countdown > 0 {
		timer, err := deps.Scheduler.Start("offer", deps.Offer.Countdown, c.offerExpired)
		if err != nil {
			return nil, err
		}
		c.offerTimer = timer
	}
	return c, nil
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetPageURL remembers the page the session is on; tracked events carry it.
func (c *Controller) SetPageURL(u string) {
	if u == "" {
		return
	}
	c.mu.Lock()
	c.pageURL = u
	c.mu.Unlock()
}

// OfferCountdown returns the session's offer timer, nil when disabled.
func (c *Controller) OfferCountdown() *countdown.Countdown {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offerTimer
}

// PixCountdown returns the running PIX timer, nil when none.
func (c *Controller) PixCountdown() *countdown.Countdown {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pixTimer
}

// Open opens the payment form, tracking the click with the time left.
func (c *Controller) Open(ctx context.Context) State {
	var remaining int64
	if t := c.OfferCountdown(); t != nil {
		remaining = t.View().RemainingSeconds
	}
	return c.apply(ctx, func(s State) (State, []Effect) {
		return OpenForm(s, c.deps.Offer, remaining)
	})
}

// EnterCPF updates the CPF field and, at 11 digits, waits for the lookup.
func (c *Controller) EnterCPF(ctx context.Context, raw string) State {
	return c.apply(ctx, func(s State) (State, []Effect) { return EnterCPF(s, raw) })
}

// EnterPhone updates the phone field.
func (c *Controller) EnterPhone(ctx context.Context, raw string) State {
	return c.apply(ctx, func(s State) (State, []Effect) { return EnterPhone(s, raw) })
}

// Submit creates the PIX charge. A submit while another is in flight fails
// with *domain.ErrConflict and never reaches the gateway. An incomplete form
// yields ErrNotSubmittable; a gateway failure yields its *domain.ErrPayment.
func (c *Controller) Submit(ctx context.Context) (State, error) {
	var utm string
	if c.deps.Attribution != nil {
		utm = c.deps.Attribution.Fragment(ctx, c.id)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return State{}, &domain.ErrNotFound{Resource: "session", ID: c.id}
	}
	if c.state.Phase == PhaseSubmitting {
		c.mu.Unlock()
		return c.State(), &domain.ErrConflict{Message: "a submission is already in progress"}
	}
	next, effects := Submit(c.state, SubmitInput{Offer: c.deps.Offer, UTMQuery: utm})
	c.state = next
	c.mu.Unlock()

	if next.Phase != PhaseSubmitting {
		return next, ErrNotSubmittable
	}

	c.deps.Logger.Info("checkout submitted",
		zap.String("session_id", c.id),
		zap.String("cpf", document.MaskCPF(next.CPF)),
		zap.String("phone", document.MaskPhone(next.Phone)),
	)

	if err := c.run(ctx, effects); err != nil {
		return c.State(), err
	}

	// A session closed mid-request never resolves the charge.
	c.mu.Lock()
	st, closed := c.state, c.closed
	c.mu.Unlock()
	if closed || st.Payment == nil {
		return st, &domain.ErrNotFound{Resource: "session", ID: c.id}
	}
	return st, nil
}

// ClosePix dismisses the PIX modal and stops its timer.
func (c *Controller) ClosePix(ctx context.Context) State {
	return c.apply(ctx, ClosePix)
}

// Confirm moves to the thank-you page once a charge exists.
func (c *Controller) Confirm(ctx context.Context) (State, error) {
	var ok bool
	st := c.apply(ctx, func(s State) (State, []Effect) {
		next, effects, confirmed := ConfirmPayment(s, c.deps.Offer)
		ok = confirmed
		return next, effects
	})
	if !ok {
		return st, &domain.ErrConflict{Message: "no PIX charge to confirm"}
	}
	return st, nil
}

// Close stops the session's timers. In-flight requests finish but their
// results are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	offer, pix := c.offerTimer, c.pixTimer
	c.pixTimer = nil
	c.mu.Unlock()

	if offer != nil {
		offer.Cancel()
	}
	if pix != nil {
		pix.Cancel()
	}
}

// apply runs a transition under the lock and then its effects.
func (c *Controller) apply(ctx context.Context, fn func(State) (State, []Effect)) State {
	c.mu.Lock()
	if c.closed {
		st := c.state
		c.mu.Unlock()
		return st
	}
	next, effects := fn(c.state)
	c.state = next
	c.mu.Unlock()

	_ = c.run(ctx, effects)
	return c.State()
}

// run executes effects in order and returns the payment failure, if any.
// Network effects are not cancelled when the caller goes away.
func (c *Controller) run(ctx context.Context, effects []Effect) error {
	if len(effects) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	var payErr error
	for _, e := range effects {
		switch e := e.(type) {
		case LookupCPF:
			res := c.deps.Identities.LookupCPF(ctx, e.CPF)
			c.apply(ctx, func(s State) (State, []Effect) { return CPFResolved(s, e.CPF, res) })

		case CreatePaymentIntent:
			res, err := c.deps.Payments.CreatePaymentIntent(ctx, e.Request)
			payErr = err
			c.apply(ctx, func(s State) (State, []Effect) {
				return PaymentResolved(s, c.deps.Offer, res, err)
			})

		case TrackEvent:
			c.record(ctx, e.Name, e.Fields)

		case StartPixCountdown:
			c.startPixTimer()

		case CancelPixCountdown:
			c.mu.Lock()
			timer := c.pixTimer
			c.pixTimer = nil
			c.mu.Unlock()
			if timer != nil {
				timer.Cancel()
			}
		}
	}
	return payErr
}

func (c *Controller) record(ctx context.Context, name string, fields map[string]any) {
	if c.deps.Events == nil {
		return
	}
	c.mu.Lock()
	page := c.pageURL
	c.mu.Unlock()
	c.deps.Events.Record(ctx, c.id, name, page, fields)
}

func (c *Controller) startPixTimer() {
	if c.deps.Scheduler == nil || c.deps.Offer.PixCountdown <= 0 {
		return
	}
	timer, err := c.deps.Scheduler.Start("pix", c.deps.Offer.PixCountdown, c.pixExpired)
	if err != nil {
		c.deps.Logger.Warn("failed to start pix countdown", zap.String("session_id", c.id), zap.Error(err))
		return
	}

	c.mu.Lock()
	old := c.pixTimer
	c.pixTimer = timer
	closed := c.closed
	c.mu.Unlock()

	if old != nil {
		old.Cancel()
	}
	if closed {
		timer.Cancel()
	}
}

func (c *Controller) offerExpired() {
	c.record(context.Background(), EventTimerExpired, map[string]any{
		"page":           "upsell",
		"time_remaining": 0,
	})
}

func (c *Controller) pixExpired() {
	c.record(context.Background(), EventPixExpired, map[string]any{
		"page":           "pix",
		"time_remaining": 0,
	})
}
