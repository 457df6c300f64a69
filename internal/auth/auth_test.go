package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/AstralVarkon/azure-iot-sdks/internal/auth/cbs"
	"github.com/AstralVarkon/azure-iot-sdks/internal/clock"
)

const (
	testDeviceID = "dev1"
	testHubFQDN  = "hub.example.net"
)

type stubSigner struct {
	calls  int
	token  string
	signed []string // audience per successful call
	err    error
}

func (s *stubSigner) Sign(key []byte, audience, keyName string, expiry int64) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	s.signed = append(s.signed, audience)
	return s.token, nil
}

type AuthenticatorSuite struct {
	suite.Suite

	clk      *clock.Fake
	signer   *stubSigner
	cbs      *cbs.FakeClient
	statuses []struct{ old, new Status }
}

func (s *AuthenticatorSuite) SetupTest() {
	s.clk = clock.NewFake(time.Unix(1_700_000_000, 0))
	s.signer = &stubSigner{token: "SAS...1"}
	s.cbs = cbs.NewFakeClient()
	s.statuses = nil
}

func (s *AuthenticatorSuite) newDeviceKeyAuthenticator(opts Options) *Authenticator {
	store, err := NewStore(Identity{DeviceID: testDeviceID, HubFQDN: testHubFQDN}, Credential{
		Type: CredentialDeviceKey,
		Key:  []byte("secret-key"),
	})
	s.Require().NoError(err)

	a, err := New(store, s.cbs, s.signer, s.clk, opts)
	s.Require().NoError(err)
	return a
}

func (s *AuthenticatorSuite) newSASTokenAuthenticator(token string) *Authenticator {
	store, err := NewStore(Identity{DeviceID: testDeviceID, HubFQDN: testHubFQDN}, Credential{
		Type:  CredentialDeviceSASToken,
		Token: token,
	})
	s.Require().NoError(err)

	a, err := New(store, s.cbs, s.signer, s.clk, Options{})
	s.Require().NoError(err)
	return a
}

func (s *AuthenticatorSuite) recordStatus(old, new Status) {
	s.statuses = append(s.statuses, struct{ old, new Status }{old, new})
}

// S1: device-key happy path.
func (s *AuthenticatorSuite) TestDeviceKeyHappyPath() {
	a := s.newDeviceKeyAuthenticator(Options{
		SASTokenLifetime:    time.Hour,
		SASTokenRefreshTime: 45 * time.Minute,
		CBSRequestTimeout:   30 * time.Second,
	})

	s.Require().NoError(a.Start(s.recordStatus))
	s.Equal(StatusStarted, a.Status())

	a.DoWork()
	s.Equal(StatusAuthenticating, a.Status())
	s.Equal(testHubFQDN+"/devices/"+testDeviceID, s.cbs.PutAudience)
	s.Equal("SAS...1", s.cbs.PutTokenString)

	s.cbs.CompletePut(cbs.ResultOK, 200, "")
	s.Equal(StatusAuthenticated, a.Status())

	s.Equal([]Status{StatusStarted, StatusAuthenticating, StatusAuthenticated}, s.newStatuses())
}

// S2: device-SAS happy path; token passed through byte-equal, never refreshed.
func (s *AuthenticatorSuite) TestDeviceSASTokenHappyPath() {
	a := s.newSASTokenAuthenticator("PRE")

	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.Equal(StatusAuthenticating, a.Status())
	s.Equal("PRE", s.cbs.PutTokenString)

	s.cbs.CompletePut(cbs.ResultOK, 200, "")
	s.Equal(StatusAuthenticated, a.Status())

	// create_time never set for a pre-minted token: refresh predicate
	// never fires however far the clock advances.
	s.clk.Advance(365 * 24 * time.Hour)
	a.DoWork()
	s.Equal(StatusAuthenticated, a.Status())
}

// S3: authentication timeout.
func (s *AuthenticatorSuite) TestAuthenticationTimeout() {
	a := s.newDeviceKeyAuthenticator(Options{
		SASTokenLifetime:    time.Hour,
		SASTokenRefreshTime: 45 * time.Minute,
		CBSRequestTimeout:   30 * time.Second,
	})

	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.Equal(StatusAuthenticating, a.Status())

	s.clk.Advance(31 * time.Second)
	a.DoWork()
	s.Equal(StatusFailedTimeout, a.Status())

	// a late completion must not resurrect the abandoned request.
	s.cbs.CompletePut(cbs.ResultOK, 200, "")
	s.Equal(StatusFailedTimeout, a.Status())
}

// S4: CBS rejection.
func (s *AuthenticatorSuite) TestCBSRejection() {
	a := s.newDeviceKeyAuthenticator(Options{
		SASTokenLifetime:  time.Hour,
		CBSRequestTimeout: 30 * time.Second,
	})

	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.cbs.CompletePut(cbs.ResultError, 401, "unauthorized")
	s.Equal(StatusFailed, a.Status())
}

// S5: refresh.
func (s *AuthenticatorSuite) TestRefresh() {
	a := s.newDeviceKeyAuthenticator(Options{
		SASTokenLifetime:    time.Hour,
		SASTokenRefreshTime: 45 * time.Minute,
		CBSRequestTimeout:   30 * time.Second,
	})

	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.cbs.CompletePut(cbs.ResultOK, 200, "")
	s.Require().Equal(StatusAuthenticated, a.Status())

	s.clk.Advance(45*time.Minute + time.Second)
	a.DoWork()
	s.Equal(StatusRefreshing, a.Status())

	s.signer.token = "SAS...2"
	a.DoWork()
	s.Equal(StatusAuthenticating, a.Status())

	s.cbs.CompletePut(cbs.ResultOK, 200, "")
	s.Equal(StatusAuthenticated, a.Status())
	s.Equal(2, s.signer.calls)
}

// S6: graceful stop with delete error.
func (s *AuthenticatorSuite) TestStopWithDeleteError() {
	a := s.newDeviceKeyAuthenticator(Options{SASTokenLifetime: time.Hour, CBSRequestTimeout: 30 * time.Second})

	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.cbs.CompletePut(cbs.ResultOK, 200, "")
	s.Require().Equal(StatusAuthenticated, a.Status())

	var stopResults []StopResult
	s.Require().NoError(a.Stop(func(r StopResult) { stopResults = append(stopResults, r) }))
	s.Equal(StatusDeauthenticating, a.Status())

	s.cbs.CompleteDelete(cbs.ResultError, 500, "internal error")
	s.Equal(StatusFailed, a.Status())
	s.Require().Len(stopResults, 1)
	s.Equal(StopError, stopResults[0])
}

// Round-trip: start -> do_work -> ok -> stop -> ok.
func (s *AuthenticatorSuite) TestRoundTripStartStop() {
	a := s.newDeviceKeyAuthenticator(Options{SASTokenLifetime: time.Hour, CBSRequestTimeout: 30 * time.Second})

	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.cbs.CompletePut(cbs.ResultOK, 200, "")

	var stopResults []StopResult
	s.Require().NoError(a.Stop(func(r StopResult) { stopResults = append(stopResults, r) }))
	s.cbs.CompleteDelete(cbs.ResultOK, 200, "")

	s.Equal(StatusIdle, a.Status())
	s.Require().Len(stopResults, 1)
	s.Equal(StopSuccess, stopResults[0])
	s.Equal(
		[]Status{StatusStarted, StatusAuthenticating, StatusAuthenticated, StatusDeauthenticating, StatusIdle},
		s.newStatuses(),
	)
}

// Stop from Started (nothing submitted yet) is rejected.
func (s *AuthenticatorSuite) TestStopFromStartedIsRejected() {
	a := s.newDeviceKeyAuthenticator(Options{SASTokenLifetime: time.Hour})
	s.Require().NoError(a.Start(s.recordStatus))

	err := a.Stop(nil)
	s.Require().Error(err)
	kind, ok := Kind(err)
	s.Require().True(ok)
	s.Equal(ErrKindInvalidState, kind)
}

// Destroy after construction without Start releases storage without
// contacting CBS.
func (s *AuthenticatorSuite) TestDestroyWithoutStart() {
	a := s.newDeviceKeyAuthenticator(Options{})
	s.Require().NoError(a.Destroy())
	s.Equal("", s.cbs.PutAudience)
}

// Stop from Failed/FailedTimeout short-circuits to Idle without contacting
// CBS, completing immediately with Success.
func (s *AuthenticatorSuite) TestStopFromFailedTimeoutShortCircuits() {
	a := s.newDeviceKeyAuthenticator(Options{SASTokenLifetime: time.Hour, CBSRequestTimeout: 0})
	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	a.DoWork() // timeout_ms == 0 ⇒ timeout test true on next tick
	s.Require().Equal(StatusFailedTimeout, a.Status())

	var stopResults []StopResult
	s.Require().NoError(a.Stop(func(r StopResult) { stopResults = append(stopResults, r) }))
	s.Equal(StatusIdle, a.Status())
	s.Require().Len(stopResults, 1)
	s.Equal(StopSuccess, stopResults[0])
	s.Equal("", s.cbs.DeleteAudience)
}

// Boundary: put_time == now with request_timeout_ms == 0 means the timeout
// test is true immediately on the next tick.
func (s *AuthenticatorSuite) TestTimeoutBoundaryZero() {
	a := s.newDeviceKeyAuthenticator(Options{SASTokenLifetime: time.Hour, CBSRequestTimeout: 0})
	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.Require().Equal(StatusAuthenticating, a.Status())

	a.DoWork()
	s.Equal(StatusFailedTimeout, a.Status())
}

// Boundary: create_time == now with refresh_ms == 0 means refresh fires on
// the very next tick after Authenticated.
func (s *AuthenticatorSuite) TestRefreshBoundaryZero() {
	a := s.newDeviceKeyAuthenticator(Options{SASTokenLifetime: time.Hour, SASTokenRefreshTime: 0, CBSRequestTimeout: 30 * time.Second})
	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.cbs.CompletePut(cbs.ResultOK, 200, "")
	s.Require().Equal(StatusAuthenticated, a.Status())

	a.DoWork()
	s.Equal(StatusRefreshing, a.Status())
}

// Indefinite clock during refresh check forces refresh.
func (s *AuthenticatorSuite) TestIndefiniteClockForcesRefresh() {
	a := s.newDeviceKeyAuthenticator(Options{SASTokenLifetime: time.Hour, SASTokenRefreshTime: time.Hour, CBSRequestTimeout: 30 * time.Second})
	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.cbs.CompletePut(cbs.ResultOK, 200, "")
	s.Require().Equal(StatusAuthenticated, a.Status())

	s.clk.SetIndefinite(true)
	a.DoWork()
	s.Equal(StatusRefreshing, a.Status())
}

// Indefinite clock during timeout check forces timeout.
func (s *AuthenticatorSuite) TestIndefiniteClockForcesTimeout() {
	a := s.newDeviceKeyAuthenticator(Options{SASTokenLifetime: time.Hour, CBSRequestTimeout: time.Hour})
	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.Require().Equal(StatusAuthenticating, a.Status())

	s.clk.SetIndefinite(true)
	a.DoWork()
	s.Equal(StatusFailedTimeout, a.Status())
}

// do_work before start is a no-op, not a crash, and status stays put.
func (s *AuthenticatorSuite) TestDoWorkBeforeStart() {
	a := s.newDeviceKeyAuthenticator(Options{})
	a.DoWork()
	s.Equal(StatusNone, a.Status())
}

// Same-to-same transitions never invoke the status callback.
func (s *AuthenticatorSuite) TestNoCallbackOnSameToSame() {
	a := s.newDeviceKeyAuthenticator(Options{SASTokenLifetime: time.Hour, SASTokenRefreshTime: time.Hour, CBSRequestTimeout: 30 * time.Second})
	s.Require().NoError(a.Start(s.recordStatus))
	a.DoWork()
	s.cbs.CompletePut(cbs.ResultOK, 200, "")

	before := len(s.statuses)
	a.DoWork() // Authenticated, refresh not due: no-op
	s.Equal(before, len(s.statuses))
}

// New requires a non-nil CBS client for CBS-requiring credentials.
func (s *AuthenticatorSuite) TestNewRejectsMissingCBSHandleForDeviceKey() {
	store, err := NewStore(Identity{DeviceID: testDeviceID, HubFQDN: testHubFQDN}, Credential{
		Type: CredentialDeviceKey,
		Key:  []byte("secret-key"),
	})
	s.Require().NoError(err)

	_, err = New(store, nil, s.signer, s.clk, Options{})
	s.Require().Error(err)
	kind, ok := Kind(err)
	s.Require().True(ok)
	s.Equal(ErrKindInvalidArgument, kind)
}

func (s *AuthenticatorSuite) newStatuses() []Status {
	out := make([]Status, len(s.statuses))
	for i, t := range s.statuses {
		out[i] = t.new
	}
	return out
}

func TestAuthenticatorSuite(t *testing.T) {
	suite.Run(t, new(AuthenticatorSuite))
}
