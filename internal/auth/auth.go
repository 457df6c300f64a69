// Package auth implements the credential state machine described for the
// AMQP IoT device transport's Claims-Based Security authentication core: it
// mints or accepts a SAS token, submits it to CBS on an audience derived
// from the device identity, tracks the in-flight request against a timeout,
// refreshes the token before expiry, and revokes it cleanly on shutdown.
package auth

import (
	"context"
	"sync"
	"time"

	"github.com/AstralVarkon/azure-iot-sdks/internal/auth/cbs"
	"github.com/AstralVarkon/azure-iot-sdks/internal/auth/sas"
	"github.com/AstralVarkon/azure-iot-sdks/internal/clock"
	"github.com/AstralVarkon/azure-iot-sdks/internal/metrics"
)

// Options carries the CBS timing configuration from spec.md §3
// "CBS configuration".
type Options struct {
	// SASTokenLifetime is the intended validity of a freshly minted
	// token.
	SASTokenLifetime time.Duration
	// SASTokenRefreshTime is the elapsed time after creation at which
	// refresh is due. Must be <= SASTokenLifetime.
	SASTokenRefreshTime time.Duration
	// CBSRequestTimeout is the maximum wall-clock time to wait for a
	// put-token completion before declaring timeout.
	CBSRequestTimeout time.Duration
	// SASTokenKeyName is a reserved component of token construction,
	// presently always an empty string placeholder.
	SASTokenKeyName string
}

// Authenticator is the authentication state machine: spec.md's top-level
// component. A single caller thread is expected to drive Start, DoWork,
// Stop, SetOption and the read accessors; CBS completions may legitimately
// arrive from a different goroutine (the AMQP client's own receive loop),
// so unlike the C source — which assumes a single thread drives everything,
// completions included — this type takes a mutex around all state mutation.
type Authenticator struct {
	mu sync.Mutex

	store     *Store
	cbsClient cbs.Client
	minter    *minter
	clk       clock.Clock

	opts Options

	status Status

	createTime time.Time
	putTime    time.Time

	onStatusChanged StatusChangedFunc
	onStopCompleted StopCompletedFunc
}

// New constructs an Authenticator from a credential Store, an injected CBS
// client, an injected SAS signer, an injected clock, and the CBS timing
// Options. The Authenticator starts in StatusNone.
func New(store *Store, cbsClient cbs.Client, signer sas.Signer, clk clock.Clock, opts Options) (*Authenticator, error) {
	if store == nil {
		return nil, newErr("new", ErrKindInvalidArgument, nil)
	}
	needsCBS := store.CredentialType() == CredentialDeviceKey || store.CredentialType() == CredentialDeviceSASToken
	if needsCBS && cbsClient == nil {
		return nil, newErr("new", ErrKindInvalidArgument, nil)
	}

	return &Authenticator{
		store:     store,
		cbsClient: cbsClient,
		minter:    &minter{signer: signer, clk: clk},
		clk:       clk,
		opts:      opts,
		status:    StatusNone,
	}, nil
}

// Status returns the current status. Safe to call from any goroutine.
func (a *Authenticator) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// CredentialType returns the credential variant this Authenticator was
// constructed with.
func (a *Authenticator) CredentialType() CredentialType {
	return a.store.CredentialType()
}

// Start installs the status listener and transitions StatusNone/StatusIdle
// to StatusStarted. Requires cbsHandle-equivalent wiring to already be
// present on the Authenticator (it was supplied to New); this mirrors
// spec.md's "cbs_handle must be non-null" check for CBS-requiring
// credentials, which New already enforces, so Start's own job is purely the
// status transition and listener installation.
func (a *Authenticator) Start(onStatusChanged StatusChangedFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusNone && a.status != StatusIdle {
		return newErr("start", ErrKindInvalidState, nil)
	}

	a.onStatusChanged = onStatusChanged
	a.setStatusLocked(StatusStarted)
	metrics.AuthStatusGauge(a.status.String())
	return nil
}

// SetOption applies one of the recognized CBS timing options (spec.md §6):
// sas_token_lifetime, sas_token_refresh_time, cbs_request_timeout, each a
// count of milliseconds. Unlike the C source — which validates these
// arguments but never applies them (spec.md §9 Open Question 2) — this
// Authenticator applies the value immediately. An unrecognized name is
// rejected rather than silently accepted.
func (a *Authenticator) SetOption(name string, valueMs uint64) error {
	if name == "" {
		return newErr("set_option", ErrKindInvalidArgument, nil)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	d := time.Duration(valueMs) * time.Millisecond
	switch name {
	case "sas_token_lifetime":
		a.opts.SASTokenLifetime = d
	case "sas_token_refresh_time":
		a.opts.SASTokenRefreshTime = d
	case "cbs_request_timeout":
		a.opts.CBSRequestTimeout = d
	default:
		return newErr("set_option", ErrKindInvalidArgument, nil)
	}
	return nil
}

// Destroy releases the Authenticator. Only safe from a terminal status
// (None, Idle, Failed, FailedTimeout).
func (a *Authenticator) Destroy() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.status.terminal() {
		return newErr("destroy", ErrKindInvalidState, nil)
	}
	a.onStatusChanged = nil
	a.onStopCompleted = nil
	return nil
}

// DoWork is the periodic driver tick. It is the enclosing transport's
// responsibility to call this regularly; the Authenticator performs no
// internal scheduling of its own.
func (a *Authenticator) DoWork() {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.status {
	case StatusNone, StatusIdle:
		// Nothing to do; caller must Start first. This is not
		// surfaced as an error to DoWork's (void) signature — callers
		// that need to observe it should check Status().

	case StatusStarted, StatusRefreshing:
		a.authenticateDeviceLocked()

	case StatusAuthenticated:
		if a.store.CredentialType() == CredentialDeviceKey && a.refreshDueLocked() {
			a.setStatusLocked(StatusRefreshing)
		}

	case StatusAuthenticating:
		if a.timeoutDueLocked() {
			a.setStatusLocked(StatusFailedTimeout)
		}

	default:
		// Deauthenticating, Failed, FailedTimeout: no periodic work.
	}
}

// refreshDueLocked implements spec.md §4.4's refresh test:
// (now_s - create_time_s) >= refresh_ms/1000. An indefinite clock reading
// is treated fail-safe: refresh is forced.
func (a *Authenticator) refreshDueLocked() bool {
	now, ok := a.clk.Now()
	if !ok {
		return true
	}
	refreshSeconds := int64(a.opts.SASTokenRefreshTime / time.Second)
	return now.Unix()-a.createTime.Unix() >= refreshSeconds
}

// timeoutDueLocked implements spec.md §4.4's timeout test:
// (now_s - put_time_s) * 1000 >= request_timeout_ms. An indefinite clock
// reading is treated fail-safe: timeout is forced.
func (a *Authenticator) timeoutDueLocked() bool {
	now, ok := a.clk.Now()
	if !ok {
		return true
	}
	elapsedMs := (now.Unix() - a.putTime.Unix()) * 1000
	return elapsedMs >= int64(a.opts.CBSRequestTimeout/time.Millisecond)
}

// authenticateDeviceLocked implements spec.md §4.4's authenticate_device,
// entered from Started or Refreshing.
func (a *Authenticator) authenticateDeviceLocked() {
	switch a.store.CredentialType() {
	case CredentialDeviceKey:
		a.authenticateDeviceKeyLocked()
	case CredentialDeviceSASToken:
		a.authenticateDeviceSASTokenLocked()
	default:
		// X509 (and None, which NewStore rejects) has no token to
		// submit to CBS. Start does not check the credential type, so
		// a tick from Started with an X509 store lands here.
		a.setStatusLocked(StatusFailed)
	}
}

func (a *Authenticator) authenticateDeviceKeyLocked() {
	cred := a.store.Credential()
	audience := a.store.Audience()

	token, createTime, err := a.minter.mint(cred.Key, audience, a.opts.SASTokenKeyName, a.opts.SASTokenLifetime)
	if err != nil {
		a.setStatusLocked(StatusFailed)
		return
	}
	a.createTime = createTime

	a.setStatusLocked(StatusAuthenticating)
	a.submitLocked(audience, token)
}

func (a *Authenticator) authenticateDeviceSASTokenLocked() {
	audience := a.store.Audience()
	cred := a.store.Credential()

	a.setStatusLocked(StatusAuthenticating)
	a.submitLocked(audience, cred.Token)
}

// submitLocked calls PutToken and, on successful submission, records
// put_time. A submission failure transitions to Failed (the status has
// already moved to Authenticating by the time this runs, per
// spec.md §4.4's "if any sub-step fails after the status has already moved
// to Authenticating, transition to Failed").
func (a *Authenticator) submitLocked(audience, token string) {
	now, ok := a.clk.Now()
	if !ok {
		a.setStatusLocked(StatusFailed)
		return
	}

	err := a.cbsClient.PutToken(context.Background(), audience, token, a.onPutTokenComplete)
	if err != nil {
		a.setStatusLocked(StatusFailed)
		return
	}
	a.putTime = now
}

// onPutTokenComplete is the CBS completion callback for put-token. It
// guards on the current status so a completion that arrives after a
// timeout-induced transition (or after Destroy) is silently ignored, per
// spec.md §5's callback-context-lifetime contract.
func (a *Authenticator) onPutTokenComplete(result cbs.Result, statusCode uint32, statusDescription string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusAuthenticating {
		return
	}

	if result == cbs.ResultOK {
		a.setStatusLocked(StatusAuthenticated)
	} else {
		a.setStatusLocked(StatusFailed)
	}
}

// Stop initiates teardown. See spec.md §4.4's stop transition table.
func (a *Authenticator) Stop(onStopCompleted StopCompletedFunc) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch a.status {
	case StatusFailed, StatusFailedTimeout:
		a.onStatusChanged = nil
		a.setStatusLocked(StatusIdle)
		if onStopCompleted != nil {
			onStopCompleted(StopSuccess)
		}
		return nil

	case StatusAuthenticated, StatusAuthenticating:
		a.onStopCompleted = onStopCompleted
		audience := a.store.Audience()
		a.setStatusLocked(StatusDeauthenticating)

		if err := a.cbsClient.DeleteToken(context.Background(), audience, a.onDeleteTokenComplete); err != nil {
			a.setStatusLocked(StatusFailed)
			a.fireStopCompletedLocked(StopError)
			return nil
		}
		return nil

	default:
		return newErr("stop", ErrKindInvalidState, nil)
	}
}

// onDeleteTokenComplete is the CBS completion callback for delete-token.
func (a *Authenticator) onDeleteTokenComplete(result cbs.Result, statusCode uint32, statusDescription string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status != StatusDeauthenticating {
		return
	}

	if result == cbs.ResultOK {
		// Only the success path resets create_time; a failed delete
		// leaves it untouched, matching on_delete_token_complete in
		// the original C source (see SPEC_FULL.md §10).
		a.createTime = time.Time{}
		a.setStatusLocked(StatusIdle)
		a.fireStopCompletedLocked(StopSuccess)
	} else {
		a.setStatusLocked(StatusFailed)
		a.fireStopCompletedLocked(StopError)
	}
}

// fireStopCompletedLocked fires and clears the one-shot stop-completed
// listener, matching spec.md's "on_stop_completed, once fired, is cleared;
// it fires at most once per stop invocation."
func (a *Authenticator) fireStopCompletedLocked(result StopResult) {
	cb := a.onStopCompleted
	a.onStopCompleted = nil
	if cb != nil {
		cb(result)
	}
}

// setStatusLocked transitions status and fires onStatusChanged iff the
// transition is to a distinct status.
func (a *Authenticator) setStatusLocked(newStatus Status) {
	if a.status == newStatus {
		return
	}
	old := a.status
	a.status = newStatus
	metrics.AuthTransitionCounter(old.String(), newStatus.String())
	metrics.AuthStatusGauge(newStatus.String())
	if a.onStatusChanged != nil {
		a.onStatusChanged(old, newStatus)
	}
}
