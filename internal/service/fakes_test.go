package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"reservation-service/internal/models"
	"reservation-service/internal/payment"
	"reservation-service/internal/store"

	"github.com/google/uuid"
)

const (
	testLocation = "loc-1"
	testDate     = "2026-03-10"
	dinnerID     = "svc-dinner"
)

// fakeRepo is an in-memory Repository that mirrors the SQL store's conditional writes
type fakeRepo struct {
	mu           sync.Mutex
	settings     map[string]models.LocationSettings
	policies     map[string]models.CancellationPolicy
	closures     map[string]models.Closure
	services     map[string]models.Service
	zones        map[string]models.Zone
	tables       map[string]models.Table
	promos       map[string]models.PromoCode
	reservations map[string]models.Reservation
	deposits     map[string]models.Deposit
	guarantees   map[string]models.CardGuarantee
	customers    map[string]models.CustomerProfile
	waitlist     []models.WaitlistEntry

	failListReservations error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		settings:     make(map[string]models.LocationSettings),
		policies:     make(map[string]models.CancellationPolicy),
		closures:     make(map[string]models.Closure),
		services:     make(map[string]models.Service),
		zones:        make(map[string]models.Zone),
		tables:       make(map[string]models.Table),
		promos:       make(map[string]models.PromoCode),
		reservations: make(map[string]models.Reservation),
		deposits:     make(map[string]models.Deposit),
		guarantees:   make(map[string]models.CardGuarantee),
		customers:    make(map[string]models.CustomerProfile),
	}
}

func (f *fakeRepo) GetLocationSettings(ctx context.Context, locationID string) (*models.LocationSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.settings[locationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f *fakeRepo) GetClosure(ctx context.Context, locationID, date string) (*models.Closure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.closures[locationID+"|"+date]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeRepo) GetCancellationPolicy(ctx context.Context, locationID string) (*models.CancellationPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.policies[locationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &p, nil
}

func (f *fakeRepo) GetService(ctx context.Context, serviceID string) (*models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.services[serviceID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f *fakeRepo) ListServices(ctx context.Context, locationID string) ([]models.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Service
	for _, s := range f.services {
		if s.LocationID == locationID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (f *fakeRepo) GetZone(ctx context.Context, zoneID string) (*models.Zone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	z, ok := f.zones[zoneID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &z, nil
}

func (f *fakeRepo) GetTable(ctx context.Context, tableID string) (*models.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tables[tableID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &t, nil
}

func (f *fakeRepo) ListTables(ctx context.Context, locationID, zoneID string) ([]models.Table, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Table
	for _, t := range f.tables {
		if t.LocationID == locationID && (zoneID == "" || t.ZoneID == zoneID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (f *fakeRepo) GetPromoCode(ctx context.Context, locationID, code string) (*models.PromoCode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.promos[locationID+"|"+strings.ToUpper(code)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeRepo) CreateReservation(ctx context.Context, r *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reservations[r.ID]; ok {
		return store.ErrDuplicate
	}
	if r.IdempotencyKey != "" {
		for _, existing := range f.reservations {
			if existing.IdempotencyKey == r.IdempotencyKey {
				return store.ErrDuplicate
			}
		}
	}
	f.reservations[r.ID] = *r
	return nil
}

func (f *fakeRepo) GetReservation(ctx context.Context, id string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &r, nil
}

func (f *fakeRepo) GetReservationByIdempotencyKey(ctx context.Context, key string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.IdempotencyKey == key {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) sortedReservations(keep func(models.Reservation) bool) []models.Reservation {
	var out []models.Reservation
	for _, r := range f.reservations {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (f *fakeRepo) ListActiveReservations(ctx context.Context, locationID, date string) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failListReservations != nil {
		return nil, f.failListReservations
	}
	return f.sortedReservations(func(r models.Reservation) bool {
		return r.LocationID == locationID && r.Date == date && r.IsActive()
	}), nil
}

func (f *fakeRepo) ListUnassignedConfirmed(ctx context.Context, locationID, date string) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedReservations(func(r models.Reservation) bool {
		return r.LocationID == locationID && r.Date == date &&
			r.Status == models.ReservationStatusConfirmed && r.TableID == nil
	}), nil
}

func (f *fakeRepo) FindSeatedReservationByTable(ctx context.Context, tableID string) (*models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.reservations {
		if r.Status == models.ReservationStatusSeated && r.TableIDValue() == tableID {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) ListExpiredReconfirmations(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedReservations(func(r models.Reservation) bool {
		return r.Status == models.ReservationStatusPending && r.ReconfirmationRequired &&
			r.ReconfirmedAt == nil && r.ReconfirmationDeadline != nil && !r.ReconfirmationDeadline.After(now)
	}), nil
}

func (f *fakeRepo) ListDueReconfirmationReminders(ctx context.Context, now time.Time) ([]models.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sortedReservations(func(r models.Reservation) bool {
		return r.Status == models.ReservationStatusPending && r.ReconfirmationRequired &&
			r.ReconfirmedAt == nil && r.ReconfirmationSentAt == nil &&
			r.ReconfirmationRemindAt != nil && !r.ReconfirmationRemindAt.After(now) &&
			r.ReconfirmationDeadline != nil && r.ReconfirmationDeadline.After(now)
	}), nil
}

func (f *fakeRepo) UpdateReservationStatus(ctx context.Context, id, fromStatus, toStatus string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.Status != fromStatus {
		return store.ErrConcurrentUpdate
	}
	r.Status = toStatus
	r.UpdatedAt = at
	switch toStatus {
	case models.ReservationStatusSeated:
		r.SeatedAt = &at
	case models.ReservationStatusCompleted:
		r.CompletedAt = &at
	}
	f.reservations[id] = r
	return nil
}

func (f *fakeRepo) AssignTable(ctx context.Context, id, tableID, zoneID string, auto bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return store.ErrNotFound
	}
	if !r.IsActive() {
		return store.ErrConcurrentUpdate
	}
	r.TableID = &tableID
	if zoneID != "" {
		r.ZoneID = &zoneID
	}
	r.AutoAssigned = auto
	f.reservations[id] = r
	return nil
}

func (f *fakeRepo) CancelReservation(ctx context.Context, id, status, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return store.ErrNotFound
	}
	if r.Status != models.ReservationStatusPending && r.Status != models.ReservationStatusConfirmed {
		return store.ErrConcurrentUpdate
	}
	r.Status = status
	r.CancellationReason = reason
	r.CancelledAt = &at
	r.UpdatedAt = at
	f.reservations[id] = r
	return nil
}

func (f *fakeRepo) UpdateReconfirmation(ctx context.Context, in *models.Reservation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[in.ID]
	if !ok {
		return store.ErrNotFound
	}
	r.ReconfirmationRequired = in.ReconfirmationRequired
	r.ReconfirmationRemindAt = in.ReconfirmationRemindAt
	r.ReconfirmationDeadline = in.ReconfirmationDeadline
	r.ReconfirmedAt = in.ReconfirmedAt
	f.reservations[in.ID] = r
	return nil
}

func (f *fakeRepo) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[id]
	if !ok {
		return store.ErrNotFound
	}
	r.ReconfirmationSentAt = &at
	f.reservations[id] = r
	return nil
}

func (f *fakeRepo) LinkDeposit(ctx context.Context, reservationID, depositID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.reservations[reservationID]
	if !ok {
		return store.ErrNotFound
	}
	r.DepositID = &depositID
	f.reservations[reservationID] = r
	return nil
}

func (f *fakeRepo) CreateDeposit(ctx context.Context, d *models.Deposit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.deposits {
		if existing.ReservationID == d.ReservationID {
			return store.ErrDuplicate
		}
	}
	f.deposits[d.ID] = *d
	return nil
}

func (f *fakeRepo) GetDeposit(ctx context.Context, id string) (*models.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deposits[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &d, nil
}

func (f *fakeRepo) GetDepositByReservation(ctx context.Context, reservationID string) (*models.Deposit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deposits {
		if d.ReservationID == reservationID {
			d := d
			return &d, nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) TransitionDeposit(ctx context.Context, d *models.Deposit, fromStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored, ok := f.deposits[d.ID]
	if !ok {
		return store.ErrNotFound
	}
	if stored.Status != fromStatus {
		return store.ErrConcurrentUpdate
	}
	f.deposits[d.ID] = *d
	return nil
}

func (f *fakeRepo) CreateCardGuarantee(ctx context.Context, g *models.CardGuarantee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.guarantees[g.ReservationID]; ok {
		return store.ErrDuplicate
	}
	f.guarantees[g.ReservationID] = *g
	return nil
}

func (f *fakeRepo) GetCardGuaranteeByReservation(ctx context.Context, reservationID string) (*models.CardGuarantee, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	g, ok := f.guarantees[reservationID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (f *fakeRepo) UpdateCardGuarantee(ctx context.Context, g *models.CardGuarantee) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.guarantees[g.ReservationID]; !ok {
		return store.ErrNotFound
	}
	f.guarantees[g.ReservationID] = *g
	return nil
}

func (f *fakeRepo) EnsureCustomer(ctx context.Context, locationID, name, email, phone string) (*models.CustomerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if c.LocationID != locationID {
			continue
		}
		if (email != "" && strings.EqualFold(c.Email, email)) || (email == "" && phone != "" && c.Phone == phone) {
			c := c
			return &c, nil
		}
	}
	c := models.CustomerProfile{ID: uuid.New().String(), LocationID: locationID, Name: name, Email: email, Phone: phone}
	f.customers[c.ID] = c
	return &c, nil
}

func (f *fakeRepo) GetCustomer(ctx context.Context, id string) (*models.CustomerProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &c, nil
}

func (f *fakeRepo) IncrementNoShow(ctx context.Context, customerID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok {
		return 0, store.ErrNotFound
	}
	c.NoShowCount++
	f.customers[customerID] = c
	return c.NoShowCount, nil
}

func (f *fakeRepo) BlockCustomer(ctx context.Context, customerID, reason string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.customers[customerID]
	if !ok {
		return store.ErrNotFound
	}
	c.Blocked = true
	c.BlockedReason = reason
	c.BlockedAt = &at
	f.customers[customerID] = c
	return nil
}

func (f *fakeRepo) FindWaitlistCandidate(ctx context.Context, locationID, date string, minCapacity, maxCapacity int) (*models.WaitlistEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.WaitlistEntry
	for i := range f.waitlist {
		e := &f.waitlist[i]
		if e.LocationID != locationID || e.Date != date || e.Status != models.WaitlistStatusWaiting {
			continue
		}
		if e.PartySize < minCapacity || e.PartySize > maxCapacity {
			continue
		}
		if best == nil || e.CreatedAt.Before(best.CreatedAt) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}
	out := *best
	return &out, nil
}

func (f *fakeRepo) MarkWaitlistNotified(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.waitlist {
		if f.waitlist[i].ID == id {
			f.waitlist[i].Status = models.WaitlistStatusNotified
			f.waitlist[i].NotifiedAt = &at
			return nil
		}
	}
	return store.ErrNotFound
}

// fakeLocker is an in-process Locker
type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	acquired int
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) AcquireLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	token := uuid.New().String()
	l.held[key] = token
	l.acquired++
	return token, true, nil
}

func (l *fakeLocker) ReleaseLock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

func (l *fakeLocker) isHeld(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// recordingEvents captures published events
type recordingEvents struct {
	mu           sync.Mutex
	reservations []*models.ReservationEvent
	deposits     []*models.DepositEvent
	waitlist     []*models.WaitlistEvent
}

func (e *recordingEvents) PublishReservationEvent(ctx context.Context, event *models.ReservationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reservations = append(e.reservations, event)
	return nil
}

func (e *recordingEvents) PublishDepositEvent(ctx context.Context, event *models.DepositEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deposits = append(e.deposits, event)
	return nil
}

func (e *recordingEvents) PublishWaitlistEvent(ctx context.Context, event *models.WaitlistEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.waitlist = append(e.waitlist, event)
	return nil
}

func (e *recordingEvents) reservationTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.reservations))
	for _, ev := range e.reservations {
		out = append(out, ev.EventType)
	}
	return out
}

func (e *recordingEvents) depositTypes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, 0, len(e.deposits))
	for _, ev := range e.deposits {
		out = append(out, ev.EventType)
	}
	return out
}

type sentMessage struct {
	Channel string
	To      string
	Subject string
	Body    string
}

// recordingMessenger captures outbound messages and can be told to fail
type recordingMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

var errDeliveryFailed = errors.New("delivery failed")

func (m *recordingMessenger) SendEmail(ctx context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errDeliveryFailed
	}
	m.sent = append(m.sent, sentMessage{Channel: "email", To: to, Subject: subject, Body: body})
	return nil
}

func (m *recordingMessenger) SendSMS(ctx context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errDeliveryFailed
	}
	m.sent = append(m.sent, sentMessage{Channel: "sms", To: to, Body: body})
	return nil
}

func (m *recordingMessenger) messages() []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentMessage, len(m.sent))
	copy(out, m.sent)
	return out
}

// fixture wires every engine component against the fakes with a controllable clock
type fixture struct {
	repo      *fakeRepo
	locker    *fakeLocker
	events    *recordingEvents
	messenger *recordingMessenger
	payments  *payment.MockProvider

	availability *AvailabilityChecker
	pacing       *PacingController
	occupancy    *OccupancyService
	seating      *SeatingAssigner
	deposits     *DepositLedger
	policies     *CancellationPolicyEngine
	reservations *ReservationService
	reconfirm    *ReconfirmationController

	now time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		repo:      newFakeRepo(),
		locker:    newFakeLocker(),
		events:    &recordingEvents{},
		messenger: &recordingMessenger{},
		payments:  payment.NewMockProvider(),
		now:       time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.availability = NewAvailabilityChecker(f.repo)
	f.pacing = NewPacingController(f.repo)
	f.occupancy = NewOccupancyService(f.repo, nil, 0)
	f.seating = NewSeatingAssigner(f.repo, f.locker, f.events, f.messenger, f.occupancy)
	f.seating.now = clock
	f.deposits = NewDepositLedger(f.repo, f.payments, f.events)
	f.deposits.now = clock
	f.policies = NewCancellationPolicyEngine(f.repo, f.payments)
	f.policies.now = clock
	f.reservations = NewReservationService(f.repo, f.locker, f.events, f.messenger,
		f.availability, f.pacing, f.seating, f.deposits, f.policies, f.occupancy, BookingOptions{})
	f.reservations.now = clock
	f.reconfirm = NewReconfirmationController(f.repo, f.reservations, f.messenger, f.events, 4)
	f.reconfirm.now = clock

	f.repo.settings[testLocation] = models.LocationSettings{
		LocationID:   testLocation,
		Timezone:     "UTC",
		Currency:     "EUR",
		MinPartySize: 1,
		MaxPartySize: 12,
		SlotMinutes:  15,
	}
	return f
}

func intPtr(v int) *int { return &v }

// withDinner adds a 17:00-23:00 dinner service
func (f *fixture) withDinner(maxCovers *int) *fixture {
	f.repo.services[dinnerID] = models.Service{
		ID:                     dinnerID,
		LocationID:             testLocation,
		Name:                   "Dinner",
		StartTime:              "17:00",
		EndTime:                "23:00",
		SlotMinutes:            15,
		MaxCovers:              maxCovers,
		DefaultDurationMinutes: 90,
		Active:                 true,
	}
	return f
}

func (f *fixture) withZone(id string, capacity int) *fixture {
	f.repo.zones[id] = models.Zone{ID: id, LocationID: testLocation, Name: "Zone " + id, Capacity: capacity, Active: true}
	return f
}

func (f *fixture) withTable(id, zoneID string, minCap, maxCap int) *fixture {
	f.repo.tables[id] = models.Table{
		ID:          id,
		LocationID:  testLocation,
		ZoneID:      zoneID,
		Name:        "Table " + id,
		MinCapacity: minCap,
		MaxCapacity: maxCap,
		Active:      true,
	}
	return f
}

func (f *fixture) updateSettings(fn func(s *models.LocationSettings)) {
	s := f.repo.settings[testLocation]
	fn(&s)
	f.repo.settings[testLocation] = s
}

func (f *fixture) setPolicy(p models.CancellationPolicy) {
	p.LocationID = testLocation
	f.repo.policies[testLocation] = p
}

// addReservation stores a dinner reservation directly, bypassing the booking flow
func (f *fixture) addReservation(partySize int, clock string, mutate ...func(r *models.Reservation)) *models.Reservation {
	r := models.Reservation{
		ID:              uuid.New().String(),
		LocationID:      testLocation,
		GuestName:       "Guest",
		GuestEmail:      "guest@example.com",
		PartySize:       partySize,
		Date:            testDate,
		Time:            clock,
		DurationMinutes: 90,
		ServiceID:       dinnerID,
		Status:          models.ReservationStatusConfirmed,
		CreatedAt:       f.now,
		UpdatedAt:       f.now,
	}
	for _, m := range mutate {
		m(&r)
	}
	f.repo.reservations[r.ID] = r
	return &r
}

func (f *fixture) reservation(t *testing.T, id string) models.Reservation {
	t.Helper()
	r, ok := f.repo.reservations[id]
	if !ok {
		t.Fatalf("reservation %s not stored", id)
	}
	return r
}

func onTable(tableID string) func(r *models.Reservation) {
	return func(r *models.Reservation) { r.TableID = &tableID }
}

func withStatus(status string) func(r *models.Reservation) {
	return func(r *models.Reservation) { r.Status = status }
}

// addAuthorizedDeposit authorizes amount with the mock provider and stores the deposit
func (f *fixture) addAuthorizedDeposit(t *testing.T, reservationID string, amount int64) *models.Deposit {
	t.Helper()
	intent, err := f.payments.AuthorizePayment(context.Background(), amount, "EUR", nil)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	d := models.Deposit{
		ID:              uuid.New().String(),
		ReservationID:   reservationID,
		LocationID:      testLocation,
		Amount:          amount,
		Currency:        "EUR",
		Status:          models.DepositStatusAuthorized,
		PaymentIntentID: intent.ID,
		CreatedAt:       f.now,
		UpdatedAt:       f.now,
	}
	f.repo.deposits[d.ID] = d
	return &d
}
