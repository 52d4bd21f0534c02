package deskauth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

var testEpoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

const testPassword = "s3cret-pass"

/*
====================================
CLOCK
====================================
*/

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

/*
====================================
USER STORE
====================================
*/

type memUserStore struct {
	mu        sync.Mutex
	accounts  map[string]Account
	passwords map[string]string

	findErr        error
	updateErr      error
	setPasswordErr error

	checkPasswordCalls int
	incrementCalls     int
	resetCalls         int
	setLockoutCalls    int
	updateCalls        int
}

func newMemUserStore() *memUserStore {
	return &memUserStore{
		accounts:  make(map[string]Account),
		passwords: make(map[string]string),
	}
}

func (s *memUserStore) seed(acct Account, password string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = testEpoch
	}
	s.accounts[acct.ID] = acct
	s.passwords[acct.ID] = password
	return acct
}

func (s *memUserStore) get(id string) Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memUserStore) password(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passwords[id]
}

func (s *memUserStore) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, id)
	delete(s.passwords, id)
}

func (s *memUserStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.accounts)
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return Account{}, s.findErr
	}
	for _, acct := range s.accounts {
		if strings.EqualFold(acct.Email, email) {
			return acct, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (s *memUserStore) FindByID(_ context.Context, id string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return Account{}, s.findErr
	}
	acct, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acct, nil
}

func (s *memUserStore) Create(_ context.Context, acct Account, password string) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if strings.EqualFold(existing.Email, acct.Email) || existing.Username == acct.Username {
			return Account{}, ErrAccountExists
		}
	}
	if acct.ID == "" {
		return Account{}, errors.New("missing id")
	}
	s.accounts[acct.ID] = acct
	s.passwords[acct.ID] = password
	return acct, nil
}

func (s *memUserStore) Update(_ context.Context, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateCalls++
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.accounts[acct.ID]; !ok {
		return ErrAccountNotFound
	}
	s.accounts[acct.ID] = acct
	return nil
}

func (s *memUserStore) CheckPassword(_ context.Context, acct Account, password string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkPasswordCalls++
	stored, ok := s.passwords[acct.ID]
	return ok && stored == password, nil
}

func (s *memUserStore) SetPassword(_ context.Context, acct Account, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setPasswordErr != nil {
		return s.setPasswordErr
	}
	if _, ok := s.accounts[acct.ID]; !ok {
		return ErrAccountNotFound
	}
	s.passwords[acct.ID] = password
	return nil
}

func (s *memUserStore) IncrementFailedAccessCount(_ context.Context, acct Account) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.incrementCalls++
	stored, ok := s.accounts[acct.ID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	stored.FailedAccessCount++
	s.accounts[acct.ID] = stored
	return stored.FailedAccessCount, nil
}

func (s *memUserStore) ResetFailedAccessCount(_ context.Context, acct Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetCalls++
	stored, ok := s.accounts[acct.ID]
	if !ok {
		return ErrAccountNotFound
	}
	stored.FailedAccessCount = 0
	s.accounts[acct.ID] = stored
	return nil
}

func (s *memUserStore) SetLockout(_ context.Context, acct Account, state LockoutState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLockoutCalls++
	stored, ok := s.accounts[acct.ID]
	if !ok {
		return ErrAccountNotFound
	}
	stored.Lockout = state
	s.accounts[acct.ID] = stored
	return nil
}

// txUserStore adds a snapshot-and-restore InTx to memUserStore.
type txUserStore struct {
	*memUserStore
	txCalls int
}

func (s *txUserStore) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	s.txCalls++
	accounts := make(map[string]Account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v
	}
	passwords := make(map[string]string, len(s.passwords))
	for k, v := range s.passwords {
		passwords[k] = v
	}
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.accounts = accounts
		s.passwords = passwords
		s.mu.Unlock()
		return err
	}
	return nil
}

/*
====================================
OTP STORE
====================================
*/

type memOtpStore struct {
	mu    sync.Mutex
	codes map[string]OtpCode
	order []string

	addErr    error
	findCalls int
}

func newMemOtpStore() *memOtpStore {
	return &memOtpStore{codes: make(map[string]OtpCode)}
}

func (s *memOtpStore) all() []OtpCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]OtpCode, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.codes[id])
	}
	return out
}

func (s *memOtpStore) Add(_ context.Context, otp OtpCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addErr != nil {
		return s.addErr
	}
	s.codes[otp.ID] = otp
	s.order = append(s.order, otp.ID)
	return nil
}

func (s *memOtpStore) FindValid(_ context.Context, accountID, code string, purpose OtpPurpose) (OtpCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++

	var consumed *OtpCode
	for i := len(s.order) - 1; i >= 0; i-- {
		otp := s.codes[s.order[i]]
		if otp.AccountID != accountID || otp.Code != code || otp.Purpose != purpose {
			continue
		}
		if otp.Status == OtpGenerated {
			return otp, nil
		}
		if consumed == nil {
			c := otp
			consumed = &c
		}
	}
	if consumed != nil {
		return *consumed, nil
	}
	return OtpCode{}, ErrOtpNotFound
}

func (s *memOtpStore) Update(_ context.Context, otp OtpCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[otp.ID]
	if !ok {
		return ErrOtpNotFound
	}
	if otp.Status == OtpConsumed && stored.Status == OtpConsumed {
		return ErrOtpAlreadyUsed
	}
	s.codes[otp.ID] = otp
	return nil
}

func (s *memOtpStore) InvalidateGenerated(_ context.Context, accountID string, purpose OtpPurpose) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, otp := range s.codes {
		if otp.AccountID == accountID && otp.Purpose == purpose && otp.Status == OtpGenerated {
			otp.Status = OtpConsumed
			s.codes[id] = otp
			n++
		}
	}
	return n, nil
}

/*
====================================
TOKENS AND MAIL
====================================
*/

type fakeIssuer struct {
	mu           sync.Mutex
	accessErr    error
	refreshErr   error
	accessCalls  int
	refreshCalls int
	lastRoles    []Role
	refresh      map[string]string
}

func newFakeIssuer() *fakeIssuer {
	return &fakeIssuer{refresh: make(map[string]string)}
}

func (f *fakeIssuer) IssueAccess(_ context.Context, account Account, roles []Role) (string, time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accessCalls++
	if f.accessErr != nil {
		return "", time.Time{}, f.accessErr
	}
	f.lastRoles = append([]Role(nil), roles...)
	return "access-" + account.ID + "-" + strconv.Itoa(f.accessCalls), testEpoch.Add(15 * time.Minute), nil
}

func (f *fakeIssuer) IssueRefresh(_ context.Context, account Account) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	token := "refresh-" + account.ID + "-" + strconv.Itoa(f.refreshCalls)
	f.refresh[token] = account.ID
	return token, nil
}

func (f *fakeIssuer) ParseRefresh(_ context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.refresh[token]
	if !ok {
		return "", errors.New("unknown refresh token")
	}
	return id, nil
}

// accessOnlyIssuer hides ParseRefresh.
type accessOnlyIssuer struct {
	TokenIssuer
}

type sentMail struct {
	To      string
	Subject string
	Body    string
}

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []sentMail
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeSender) messages() []sentMail {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMail(nil), f.sent...)
}

/*
====================================
ENGINE
====================================
*/

type testEnv struct {
	engine *Engine
	users  *memUserStore
	tx     *txUserStore
	otps   *memOtpStore
	tokens *fakeIssuer
	mail   *fakeSender
	clock  *testClock
}

type envOption func(*envSetup)

type envSetup struct {
	cfg           Config
	transactional bool
	noMail        bool
	noInvalidator bool
	accessOnly    bool
	sinks         []AuditSink
}

func withConfig(fn func(*Config)) envOption {
	return func(s *envSetup) { fn(&s.cfg) }
}

func withTransactions() envOption {
	return func(s *envSetup) { s.transactional = true }
}

func withoutMail() envOption {
	return func(s *envSetup) { s.noMail = true }
}

func withoutInvalidator() envOption {
	return func(s *envSetup) { s.noInvalidator = true }
}

func withAccessOnlyIssuer() envOption {
	return func(s *envSetup) { s.accessOnly = true }
}

func withAuditSink(sink AuditSink) envOption {
	return func(s *envSetup) { s.sinks = append(s.sinks, sink) }
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Environment = "test"
	cfg.Otp.ExposeCodes = true
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	setup := envSetup{cfg: testConfig()}
	for _, opt := range opts {
		opt(&setup)
	}

	env := &testEnv{
		users:  newMemUserStore(),
		otps:   newMemOtpStore(),
		tokens: newFakeIssuer(),
		mail:   &fakeSender{},
		clock:  newTestClock(),
	}

	b := New().
		WithConfig(setup.cfg).
		WithTokenIssuer(env.tokens).
		WithEmailSender(env.mail).
		WithOtpStore(env.otps).
		WithClock(env.clock.Now)

	if setup.transactional {
		env.tx = &txUserStore{memUserStore: env.users}
		b.WithUserStore(env.tx)
	} else {
		b.WithUserStore(env.users)
	}
	if setup.noMail {
		b.WithEmailSender(nil)
	}
	if setup.noInvalidator {
		b.WithOtpStore(struct{ OtpStore }{env.otps})
	}
	if setup.accessOnly {
		b.WithTokenIssuer(accessOnlyIssuer{env.tokens})
	}
	for _, sink := range setup.sinks {
		b.WithAuditSink(sink)
	}

	engine, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	return env
}

// seedUser stores a confirmed, unlocked User account.
func (env *testEnv) seedUser(id, email string) Account {
	return env.users.seed(Account{
		ID:             id,
		Username:       id,
		Email:          email,
		FirstName:      "Sam",
		Role:           RoleUser,
		EmailConfirmed: true,
		Lockout:        Unlocked(),
	}, testPassword)
}

func (env *testEnv) metric(id MetricID) uint64 {
	return env.engine.Metrics().Value(id)
}
